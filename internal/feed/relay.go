package feed

import (
	"context"

	"lostfound-go/internal/model"
	"lostfound-go/pkg/log"
)

// Publisher 发布一个信息流事件。
type Publisher interface {
	Publish(ctx context.Context, event model.FeedEvent) error
}

// Relay 经由远端（Kafka）发布事件，远端写入失败时退回本地 Hub 广播，
// 本实例的监听器（重置对话）与订阅者因此总能收到变更。
type Relay struct {
	remote Publisher
	hub    *Hub
}

// NewRelay 创建一个 Relay。
func NewRelay(remote Publisher, hub *Hub) *Relay {
	return &Relay{remote: remote, hub: hub}
}

// Publish 远端失败时只记录日志并在本地广播，不向调用方返回错误。
func (r *Relay) Publish(ctx context.Context, event model.FeedEvent) error {
	if err := r.remote.Publish(ctx, event); err != nil {
		log.Warnf("[FeedRelay] 远端发布失败，改为本地广播, type: %s, error: %v", event.Type, err)
		r.hub.Broadcast(ctx, event)
	}
	return nil
}
