package handler

import (
	"context"
	"sync"

	"lostfound-go/internal/model"
	"lostfound-go/internal/service"
	"lostfound-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testUser = &model.User{ID: 7, Email: "ana@campus.edu", DisplayName: "Ana", Role: model.RoleUser}

// withUser 模拟 AuthMiddleware 注入当前用户。
func withUser(user *model.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", user)
		c.Set("token", "tok")
		c.Next()
	}
}

type stubUserService struct {
	service.UserService
	user *model.User
	err  error
}

func (s *stubUserService) Authenticate(ctx context.Context, tokenString string) (*model.User, *token.CustomClaims, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	return s.user, &token.CustomClaims{UserID: s.user.ID}, nil
}

type fakeFeedService struct {
	service.FeedService
	mu        sync.Mutex
	posted    []service.PostItemRequest
	imageSize int
	postErr   error
	filters   [][2]string
	result    service.FilterResult
	filterErr error
	deleteErr error
}

func (f *fakeFeedService) Post(ctx context.Context, user *model.User, req service.PostItemRequest) (*model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Image != nil {
		buf := make([]byte, 64)
		for {
			n, err := req.Image.Body.Read(buf)
			f.imageSize += n
			if err != nil {
				break
			}
		}
	}
	f.posted = append(f.posted, req)
	if f.postErr != nil {
		return nil, f.postErr
	}
	return &model.Item{ID: 1, ItemName: req.ItemName, ItemType: req.ItemType, PostedBy: user.Email}, nil
}

func (f *fakeFeedService) Filter(ctx context.Context, category, search string) (service.FilterResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, [2]string{category, search})
	return f.result, f.filterErr
}

func (f *fakeFeedService) Delete(ctx context.Context, user *model.User, id uint) error {
	return f.deleteErr
}

func (f *fakeFeedService) lastFilter() [2]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.filters) == 0 {
		return [2]string{}
	}
	return f.filters[len(f.filters)-1]
}

type fakeChatService struct {
	mu        sync.Mutex
	questions []string
	resets    int
}

func (f *fakeChatService) Ask(ctx context.Context, user *model.User, question string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	return "answer to " + question
}

func (f *fakeChatService) Reset(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeChatService) Invalidate(ctx context.Context) error { return nil }
