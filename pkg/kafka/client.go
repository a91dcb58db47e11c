// Package kafka 通过 Kafka 在多个实例之间转发信息流变更事件。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"lostfound-go/internal/config"
	"lostfound-go/internal/model"
	"lostfound-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// Producer 把 feed 事件写入 Kafka 主题。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(Brokers(cfg)...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个 feed 事件到 Kafka。
func (p *Producer) Publish(ctx context.Context, event model.FeedEvent) error {
	value, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event.Type), Value: value}); err != nil {
		return fmt.Errorf("写入 Kafka 失败: %w", err)
	}
	return nil
}

// Close 关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// EncodeEvent 把事件编码为消息体。
func EncodeEvent(event model.FeedEvent) ([]byte, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("编码 feed 事件失败: %w", err)
	}
	return b, nil
}

// DecodeEvent 解析消息体，类型为空视为格式错误。
func DecodeEvent(value []byte) (model.FeedEvent, error) {
	var event model.FeedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return event, fmt.Errorf("解析 feed 事件失败: %w", err)
	}
	if event.Type == "" {
		return event, errors.New("feed 事件缺少 type")
	}
	return event, nil
}

// Brokers 把逗号分隔的地址拆分为列表。
func Brokers(cfg config.KafkaConfig) []string {
	var out []string
	for _, b := range strings.Split(cfg.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// GroupID 返回本实例的消费组。每个实例都要收到全部事件，
// 因此配置的 group_id 只作为前缀，后面总是拼上主机名和进程号。
func GroupID(cfg config.KafkaConfig) string {
	prefix := cfg.GroupID
	if prefix == "" {
		prefix = "lostfound-feed"
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", prefix, host, os.Getpid())
}

// StartConsumer 启动一个 Kafka 消费者，把收到的事件交给 handle，直到 ctx 取消。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, handle func(context.Context, model.FeedEvent)) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     Brokers(cfg),
		Topic:       cfg.Topic,
		GroupID:     GroupID(cfg),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		event, err := DecodeEvent(m.Value)
		if err != nil {
			// 消息格式错误，直接提交，避免阻塞队列
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		} else {
			handle(ctx, event)
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
