package service

import (
	"context"
	"errors"
	"fmt"

	"lostfound-go/internal/model"
	"lostfound-go/internal/repository"
	"lostfound-go/pkg/log"

	"gorm.io/gorm"
)

// ErrInvalidRole 角色不是 USER 或 ADMIN。
var ErrInvalidRole = errors.New("role must be USER or ADMIN")

// UserListResponse 定义了用户列表 API 的响应结构。
type UserListResponse struct {
	Content       []model.UserProfile `json:"content"`
	TotalElements int64               `json:"totalElements"`
	TotalPages    int                 `json:"totalPages"`
	Size          int                 `json:"size"`
	Number        int                 `json:"number"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	ListUsers(page, size int) (*UserListResponse, error)
	SetUserRole(userID uint, role string) (*model.User, error)
	ResetConversations(ctx context.Context) error
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo    repository.UserRepository
	chatService ChatService
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository, chatService ChatService) AdminService {
	return &adminService{userRepo: userRepo, chatService: chatService}
}

// ListUsers 以分页的形式返回用户列表。
func (s *adminService) ListUsers(page, size int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 10
	}
	users, total, err := s.userRepo.FindWithPagination((page-1)*size, size)
	if err != nil {
		return nil, err
	}

	content := make([]model.UserProfile, 0, len(users))
	for i := range users {
		content = append(content, users[i].Profile())
	}

	totalPages := 0
	if total > 0 {
		totalPages = (int(total) + size - 1) / size
	}
	return &UserListResponse{
		Content:       content,
		TotalElements: total,
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
	}, nil
}

// SetUserRole 修改用户角色，用于授予或收回删除任意记录的权限。
func (s *adminService) SetUserRole(userID uint, role string) (*model.User, error) {
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, ErrInvalidRole
	}
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	user.Role = role
	if err := s.userRepo.Update(user); err != nil {
		return nil, fmt.Errorf("更新用户角色失败: %w", err)
	}
	log.Infof("[AdminService] 用户角色已更新, userID: %d, role: %s", userID, role)
	return user, nil
}

// ResetConversations 手动清空所有对话。
func (s *adminService) ResetConversations(ctx context.Context) error {
	return s.chatService.Invalidate(ctx)
}
