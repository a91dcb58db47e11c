package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"lostfound-go/internal/model"
	"lostfound-go/pkg/llm"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Item{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// memoryStore 是 storage.ImageStore 的内存实现。
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (s *memoryStore) PutImage(ctx context.Context, objectName string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[objectName] = data
	return nil
}

func (s *memoryStore) RemoveImage(ctx context.Context, objectName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectName)
	return nil
}

func (s *memoryStore) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "https://minio.local/lostfound/" + objectName + "?X-Amz-Expires=" + fmt.Sprint(int(expiry.Seconds())), nil
}

func (s *memoryStore) has(objectName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectName]
	return ok
}

// recordingPublisher 记录所有发布的事件。
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.FeedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event model.FeedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeLLM 按顺序返回预设的结果，并记录每次收到的消息。
type fakeLLM struct {
	mu      sync.Mutex
	replies []func() (string, error)
	calls   [][]llm.Message
	onCall  func()
}

func (f *fakeLLM) GenerateContent(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
	var next func() (string, error)
	if len(f.replies) > 0 {
		next = f.replies[0]
		f.replies = f.replies[1:]
	}
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if next == nil {
		return "ok", nil
	}
	return next()
}

func reply(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

type staticKnowledge string

func (k staticKnowledge) KnowledgeSnapshot(ctx context.Context) (string, error) {
	return string(k), nil
}

// flakyKnowledge 在 failures 次失败之后返回正常的知识库。
type flakyKnowledge struct {
	mu       sync.Mutex
	failures int
	text     string
}

func (k *flakyKnowledge) KnowledgeSnapshot(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failures > 0 {
		k.failures--
		return "", errors.New("database is unavailable")
	}
	return k.text, nil
}

// failingPublisher 模拟 Kafka 写入失败。
type failingPublisher struct {
	mu    sync.Mutex
	calls int
}

func (p *failingPublisher) Publish(ctx context.Context, event model.FeedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return errors.New("kafka: leader not available")
}
