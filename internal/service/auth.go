package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"uploadnest/internal/apperror"
	"uploadnest/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AuthConfig 是签发会话令牌所需的参数。
type AuthConfig struct {
	JWTSecret         string
	JWTIssuer         string
	JWTAudience       string
	JWTTTL            time.Duration
	StorageQuotaBytes int64 // 注册时授予的默认配额
}

// RegisterInput 是注册请求体。
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResult 是登录成功的响应。
type LoginResult struct {
	User        *repository.User `json:"user"`
	AccessToken string           `json:"accessToken"`
	ExpiresAt   time.Time        `json:"expiresAt"`
}

// AuthService 负责注册、登录与会话令牌签发。
type AuthService struct {
	users  repository.UserRepository
	cfg    AuthConfig
	logger *slog.Logger
}

func NewAuthService(users repository.UserRepository, cfg AuthConfig, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{users: users, cfg: cfg, logger: logger}
}

// Register 创建用户及其配额账户，两者在同一事务内落库。
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*repository.User, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" || email == "" || input.Password == "" {
		return nil, apperror.BadRequest("Name, email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &repository.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}

	created, err := s.users.CreateWithAccount(ctx, user, s.cfg.StorageQuotaBytes)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Conflict("User already exists")
		}
		s.logger.Error("用户注册失败", "email", email, "err", err)
		return nil, fmt.Errorf("register user: %w", err)
	}

	return created, nil
}

// Login 校验凭证并签发 HS256 会话令牌。
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("Email/Password not found")
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperror.Unauthorized("Email/Password is incorrect")
	}

	token, expiresAt, err := s.signToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &LoginResult{
		User:        user,
		AccessToken: token,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *AuthService) signToken(userID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.JWTTTL)

	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.cfg.JWTIssuer,
		Audience:  jwt.ClaimStrings{s.cfg.JWTAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}
