package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"lostfound-go/internal/config"
	"lostfound-go/internal/model"
	"lostfound-go/internal/repository"
	"lostfound-go/pkg/llm"
	"lostfound-go/pkg/log"
)

// NetworkErrorReply 是无法连上模型服务时返回给用户的固定文本。
const NetworkErrorReply = "I'm having trouble connecting to the network."

// KnowledgeSource 提供对话首轮注入的知识库文本。
type KnowledgeSource interface {
	KnowledgeSnapshot(ctx context.Context) (string, error)
}

// ChatService 维护每个用户与模型之间的多轮对话。
type ChatService interface {
	// Ask 发送一个问题，总是返回可以直接展示的文本，错误也转换为文本。
	Ask(ctx context.Context, user *model.User, question string) string
	// Reset 清空一个用户的对话。
	Reset(ctx context.Context, user *model.User) error
	// Invalidate 清空所有对话，信息流每次变化时调用。
	Invalidate(ctx context.Context) error
}

type chatService struct {
	llmClient        llm.Client
	conversationRepo repository.ConversationRepository
	knowledge        KnowledgeSource
	rules            string
	maxTurns         int

	userLocks  sync.Map // key: userID, value: *sync.Mutex
	generation atomic.Uint64
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(llmClient llm.Client, conversationRepo repository.ConversationRepository, knowledge KnowledgeSource, cfg config.LLMConfig) ChatService {
	rules := strings.TrimSpace(cfg.Prompt.Rules)
	if rules == "" {
		rules = "You are a campus assistant."
	}
	return &chatService{
		llmClient:        llmClient,
		conversationRepo: conversationRepo,
		knowledge:        knowledge,
		rules:            rules,
		maxTurns:         cfg.MaxTurns,
	}
}

func (s *chatService) lockUser(userID uint) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// SeedPrompt 构造对话首轮的上下文。
func SeedPrompt(rules, knowledgeBase string) string {
	return fmt.Sprintf("%s Use this knowledge base for context:\n%s\n\nRespond based on this data and maintain conversation continuity.", rules, knowledgeBase)
}

// CleanReply 去掉回答中的全部星号。
func CleanReply(answer string) string {
	return strings.ReplaceAll(answer, "*", "")
}

func (s *chatService) Ask(ctx context.Context, user *model.User, question string) string {
	unlock := s.lockUser(user.ID)
	defer unlock()

	gen := s.generation.Load()

	conversationID, err := s.conversationRepo.GetOrCreateConversationID(ctx, user.ID)
	if err != nil {
		log.Errorf("[ChatService] 获取对话ID失败, userID: %d, error: %v", user.ID, err)
		return NetworkErrorReply
	}
	history, err := s.conversationRepo.GetConversationHistory(ctx, conversationID)
	if err != nil {
		log.Errorf("[ChatService] 读取对话历史失败, userID: %d, error: %v", user.ID, err)
		return NetworkErrorReply
	}

	now := time.Now()
	if len(history) == 0 {
		// 知识库读取失败时不发送也不保存
		kb, err := s.snapshot(ctx)
		if err != nil {
			log.Errorf("[ChatService] 生成知识库失败, userID: %d, error: %v", user.ID, err)
			return NetworkErrorReply
		}
		history = append(history, model.ChatMessage{Role: llm.RoleUser, Content: SeedPrompt(s.rules, kb), Timestamp: now})
	}
	history = append(history, model.ChatMessage{Role: llm.RoleUser, Content: question, Timestamp: now})

	messages := make([]llm.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	answer, err := s.llmClient.GenerateContent(ctx, messages, nil)
	if err != nil {
		return s.handleFailure(ctx, user, err)
	}

	history = append(history, model.ChatMessage{Role: llm.RoleModel, Content: answer, Timestamp: time.Now()})
	history = TrimHistory(history, s.maxTurns)

	// 请求期间信息流发生变化时，旧知识库上的历史不再保存
	if s.generation.Load() != gen {
		log.Infof("[ChatService] 对话在请求期间被重置，不保存本轮, userID: %d", user.ID)
	} else if err := s.conversationRepo.UpdateConversationHistory(ctx, conversationID, history); err != nil {
		log.Errorf("[ChatService] 保存对话历史失败, userID: %d, error: %v", user.ID, err)
	}

	return CleanReply(answer)
}

// handleFailure 把调用失败转换为展示文本：
// 429/400 与传输失败会清空对话，其他接口错误保持历史不变。
func (s *chatService) handleFailure(ctx context.Context, user *model.User, err error) string {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		log.Warnf("[ChatService] 模型接口返回错误, userID: %d, code: %d, message: %s", user.ID, apiErr.Code, apiErr.Message)
		if apiErr.IsRateLimited() || apiErr.IsBadRequest() {
			s.resetQuietly(ctx, user.ID)
		}
		return "Error: " + apiErr.Message
	}

	log.Errorf("[ChatService] 调用模型失败, userID: %d, error: %v", user.ID, err)
	s.resetQuietly(ctx, user.ID)
	return NetworkErrorReply
}

func (s *chatService) resetQuietly(ctx context.Context, userID uint) {
	if err := s.conversationRepo.ResetConversation(ctx, userID); err != nil {
		log.Errorf("[ChatService] 重置对话失败, userID: %d, error: %v", userID, err)
	}
}

func (s *chatService) snapshot(ctx context.Context) (string, error) {
	if s.knowledge == nil {
		return "", nil
	}
	return s.knowledge.KnowledgeSnapshot(ctx)
}

func (s *chatService) Reset(ctx context.Context, user *model.User) error {
	unlock := s.lockUser(user.ID)
	defer unlock()
	if err := s.conversationRepo.ResetConversation(ctx, user.ID); err != nil {
		return fmt.Errorf("重置对话失败: %w", err)
	}
	log.Infof("[ChatService] 用户对话已重置, userID: %d", user.ID)
	return nil
}

func (s *chatService) Invalidate(ctx context.Context) error {
	s.generation.Add(1)
	n, err := s.conversationRepo.ResetAll(ctx)
	if err != nil {
		return fmt.Errorf("清空对话失败: %w", err)
	}
	log.Infof("[ChatService] 信息流已变化，清空 %d 个对话", n)
	return nil
}

// TrimHistory 在超过 maxTurns 条时保留首轮上下文，并按问答对丢弃最早的轮次。
func TrimHistory(history []model.ChatMessage, maxTurns int) []model.ChatMessage {
	if maxTurns <= 0 || len(history) <= maxTurns {
		return history
	}
	keep := (maxTurns - 1) / 2 * 2
	if keep < 2 {
		keep = 2
	}
	out := make([]model.ChatMessage, 0, keep+1)
	out = append(out, history[0])
	out = append(out, history[len(history)-keep:]...)
	return out
}
