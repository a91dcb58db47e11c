// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"lostfound-go/internal/config"
	"lostfound-go/internal/model"
	"lostfound-go/internal/repository"
	"lostfound-go/pkg/hash"
	"lostfound-go/pkg/log"
	"lostfound-go/pkg/token"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// minPasswordLength 与常见托管认证服务的下限保持一致。
const minPasswordLength = 6

var (
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrWeakPassword        = errors.New("password must be at least 6 characters")
	ErrDomainNotAllowed    = errors.New("email domain is not allowed")
	ErrEmailTaken          = errors.New("email is already registered")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserNotFound        = errors.New("user not found")
	ErrTokenRevoked        = errors.New("token has been revoked")
)

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(email, displayName, password string) (*model.User, error)
	Login(email, password string) (accessToken, refreshToken string, err error)
	GetProfile(userID uint) (*model.User, error)
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	Logout(ctx context.Context, tokenString string) error
	IsTokenRevoked(ctx context.Context, tokenString string) (bool, error)
	IsAllowedEmail(email string) bool
	// Authenticate 校验 access token 并返回当前用户，供中间件与 WebSocket 握手共用。
	Authenticate(ctx context.Context, tokenString string) (*model.User, *token.CustomClaims, error)
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo      repository.UserRepository
	jwtManager    *token.JWTManager
	redisClient   *redis.Client
	allowedDomain string
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager, redisClient *redis.Client, authCfg config.AuthConfig) UserService {
	return &userService{
		userRepo:      userRepo,
		jwtManager:    jwtManager,
		redisClient:   redisClient,
		allowedDomain: authCfg.AllowedEmailDomain,
	}
}

// EmailAllowed 判断邮箱是否满足域名限制。
// rule 为空不限制；以 "." 开头按后缀匹配；否则要求以 "@rule" 结尾。
func EmailAllowed(rule, email string) bool {
	rule = strings.ToLower(strings.TrimSpace(rule))
	if rule == "" {
		return true
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if strings.HasPrefix(rule, ".") {
		return strings.HasSuffix(email, rule)
	}
	return strings.HasSuffix(email, "@"+rule)
}

func (s *userService) IsAllowedEmail(email string) bool {
	return EmailAllowed(s.allowedDomain, email)
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(email, displayName, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if !s.IsAllowedEmail(email) {
		return nil, ErrDomainNotAllowed
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	// 检查邮箱是否已注册
	_, err := s.userRepo.FindByEmail(email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	newUser := &model.User{
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Password:    hashedPassword,
		Role:        model.RoleUser,
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(email, password string) (accessToken, refreshToken string, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !s.IsAllowedEmail(email) {
		return "", "", ErrDomainNotAllowed
	}

	user, err := s.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}
	if !hash.CheckPasswordHash(password, user.Password) {
		return "", "", ErrInvalidCredentials
	}

	return s.issueTokens(user)
}

func (s *userService) issueTokens(user *model.User) (string, string, error) {
	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Email, user.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// GetProfile 根据用户 ID 获取用户详细信息。
func (s *userService) GetProfile(userID uint) (*model.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// RefreshToken 验证 refresh token 并签发新的 access token 和 refresh token。
func (s *userService) RefreshToken(refreshTokenString string) (string, string, error) {
	claims, err := s.jwtManager.VerifyRefreshToken(refreshTokenString)
	if err != nil {
		return "", "", ErrInvalidRefreshToken
	}
	revoked, err := s.IsTokenRevoked(context.Background(), refreshTokenString)
	if err != nil {
		return "", "", err
	}
	if revoked {
		return "", "", ErrInvalidRefreshToken
	}

	user, err := s.GetProfile(claims.UserID)
	if err != nil {
		return "", "", err
	}
	if !s.IsAllowedEmail(user.Email) {
		return "", "", ErrDomainNotAllowed
	}
	return s.issueTokens(user)
}

func blacklistKey(tokenString string) string {
	return "blacklist:" + tokenString
}

// Logout 将 token 加入 Redis 黑名单，过期时间为 token 的剩余有效期。
func (s *userService) Logout(ctx context.Context, tokenString string) error {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	expiration := time.Until(claims.ExpiresAt.Time)
	if expiration <= 0 {
		return nil
	}
	if err := s.redisClient.Set(ctx, blacklistKey(tokenString), "true", expiration).Err(); err != nil {
		return fmt.Errorf("写入 token 黑名单失败: %w", err)
	}
	log.Infof("[UserService] 用户已登出, userID: %d", claims.UserID)
	return nil
}

// IsTokenRevoked 检查 token 是否已被加入黑名单。
func (s *userService) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	n, err := s.redisClient.Exists(ctx, blacklistKey(tokenString)).Result()
	if err != nil {
		return false, fmt.Errorf("查询 token 黑名单失败: %w", err)
	}
	return n > 0, nil
}

// Authenticate 依次检查签名、黑名单、用户是否存在以及邮箱域名。
// 域名已不再允许的用户会被强制登出。
func (s *userService) Authenticate(ctx context.Context, tokenString string) (*model.User, *token.CustomClaims, error) {
	claims, err := s.jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, err
	}
	revoked, err := s.IsTokenRevoked(ctx, tokenString)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, ErrTokenRevoked
	}
	user, err := s.GetProfile(claims.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !s.IsAllowedEmail(user.Email) {
		log.Warnf("[UserService] 用户邮箱域名不再允许，强制登出, userID: %d, email: %s", user.ID, user.Email)
		if err := s.Logout(ctx, tokenString); err != nil {
			log.Errorf("[UserService] 强制登出失败: %v", err)
		}
		return nil, nil, ErrDomainNotAllowed
	}
	return user, claims, nil
}
