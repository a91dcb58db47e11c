package service

import (
	"context"

	"lostfound-go/internal/model"
	"lostfound-go/internal/repository"
)

// ConversationService 定义了对话记录查询的接口。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error)
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetConversationHistory 返回用户当前对话中的问答，不包含首轮注入的知识库。
func (s *conversationService) GetConversationHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	conversationID, err := s.repo.GetOrCreateConversationID(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(history) <= 1 {
		return []model.ChatMessage{}, nil
	}
	return history[1:], nil
}
