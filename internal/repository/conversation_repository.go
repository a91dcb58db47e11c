package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lostfound-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// conversationTTL 对话在 Redis 中的最长保留时间；信息流更新时会被提前清空。
const conversationTTL = 24 * time.Hour

// ConversationRepository 定义了对话历史记录的操作接口。
type ConversationRepository interface {
	GetOrCreateConversationID(ctx context.Context, userID uint) (string, error)
	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error
	// ResetConversation 丢弃用户当前的对话，下次提问将重新注入知识库。
	ResetConversation(ctx context.Context, userID uint) error
	// ResetAll 丢弃所有用户的对话，返回被清理的数量。
	ResetAll(ctx context.Context) (int, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func userConversationKey(userID uint) string {
	return fmt.Sprintf("user:%d:current_conversation", userID)
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID
}

// GetOrCreateConversationID 获取或创建一个新的对话ID。
func (r *redisConversationRepository) GetOrCreateConversationID(ctx context.Context, userID uint) (string, error) {
	userKey := userConversationKey(userID)
	convID, err := r.redisClient.Get(ctx, userKey).Result()
	if err == redis.Nil {
		convID = fmt.Sprintf("%d-%d", time.Now().UnixNano(), userID)
		if err := r.redisClient.Set(ctx, userKey, convID, conversationTTL).Err(); err != nil {
			return "", fmt.Errorf("failed to set conversation id: %w", err)
		}
		return convID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get conversation id: %w", err)
	}
	return convID, nil
}

// GetConversationHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, conversationKey(conversationID)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// UpdateConversationHistory 在 Redis 中覆盖对话历史记录。
func (r *redisConversationRepository) UpdateConversationHistory(ctx context.Context, conversationID string, messages []model.ChatMessage) error {
	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	if err := r.redisClient.Set(ctx, conversationKey(conversationID), jsonData, conversationTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

// ResetConversation 删除用户的当前对话及其映射。
func (r *redisConversationRepository) ResetConversation(ctx context.Context, userID uint) error {
	userKey := userConversationKey(userID)
	convID, err := r.redisClient.Get(ctx, userKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get conversation id: %w", err)
	}
	if err := r.redisClient.Del(ctx, userKey, conversationKey(convID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ResetAll 扫描 user:*:current_conversation 并删除所有对话。
func (r *redisConversationRepository) ResetAll(ctx context.Context) (int, error) {
	keys, err := r.redisClient.Keys(ctx, "user:*:current_conversation").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan user conversation keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	toDelete := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		toDelete = append(toDelete, k)
		convID, getErr := r.redisClient.Get(ctx, k).Result()
		if getErr != nil {
			continue
		}
		toDelete = append(toDelete, conversationKey(convID))
	}
	if err := r.redisClient.Del(ctx, toDelete...).Err(); err != nil {
		return 0, fmt.Errorf("failed to delete conversations: %w", err)
	}
	return len(keys), nil
}
