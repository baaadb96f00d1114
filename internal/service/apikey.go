package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"uploadnest/internal/apperror"
	"uploadnest/internal/repository"

	"github.com/google/uuid"
)

// 原始密钥形如 un_<64 hex>，只在创建响应里出现一次。
const apiKeyPrefix = "un_"

// CreatedAPIKey 是创建密钥的一次性响应，RawKey 之后不可再取回。
type CreatedAPIKey struct {
	Key    *repository.APIKey `json:"key"`
	RawKey string             `json:"rawKey"`
}

// APIKeyListResult 是密钥列表响应。
type APIKeyListResult struct {
	Keys       []repository.APIKey `json:"keys"`
	Pagination Pagination          `json:"pagination"`
}

// APIKeyService 负责编程访问密钥的签发、检索与校验。
type APIKeyService struct {
	keys   repository.APIKeyRepository
	logger *slog.Logger
}

func NewAPIKeyService(keys repository.APIKeyRepository, logger *slog.Logger) *APIKeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyService{keys: keys, logger: logger}
}

// Create 生成新密钥。数据库只存哈希，展示用的 displayKey 仅保留前缀片段。
func (s *APIKeyService) Create(ctx context.Context, ownerID, name string) (*CreatedAPIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.BadRequest("API key name is required")
	}

	rawKey, err := generateRawKey()
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	key := &repository.APIKey{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Name:       name,
		DisplayKey: displayKey(rawKey),
		HashedKey:  hashAPIKey(rawKey),
	}

	created, err := s.keys.Create(ctx, key)
	if err != nil {
		s.logger.Error("密钥创建失败", "owner", ownerID, "err", err)
		return nil, fmt.Errorf("create api key: %w", err)
	}

	return &CreatedAPIKey{Key: created, RawKey: rawKey}, nil
}

// List 分页列出用户的密钥。哈希字段不参与序列化。
func (s *APIKeyService) List(ctx context.Context, ownerID string, params repository.ListAPIKeysParams) (*APIKeyListResult, error) {
	if params.PageSize <= 0 {
		params.PageSize = 10
	}
	if params.PageNumber <= 0 {
		params.PageNumber = 1
	}

	keys, total, err := s.keys.ListByOwner(ctx, ownerID, params)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	totalPages := (total + int64(params.PageSize) - 1) / int64(params.PageSize)

	return &APIKeyListResult{
		Keys: keys,
		Pagination: Pagination{
			PageSize:   params.PageSize,
			PageNumber: params.PageNumber,
			TotalCount: total,
			TotalPages: totalPages,
			Skip:       params.Offset(),
		},
	}, nil
}

// Delete 删除用户自己的密钥。
func (s *APIKeyService) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.keys.DeleteOwned(ctx, id, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound("API key not found")
		}
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// Authenticate 用原始密钥换取属主 id，并按尽力而为更新最近使用时间。
func (s *APIKeyService) Authenticate(ctx context.Context, rawKey string) (string, error) {
	if !strings.HasPrefix(rawKey, apiKeyPrefix) {
		return "", apperror.Unauthorized("Invalid API key")
	}

	hashed := hashAPIKey(rawKey)
	key, err := s.keys.GetByHash(ctx, hashed)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperror.Unauthorized("Invalid API key")
		}
		return "", fmt.Errorf("lookup api key: %w", err)
	}

	// 失败只记日志，不影响本次请求
	if err := s.keys.TouchLastUsed(ctx, hashed); err != nil {
		s.logger.Warn("更新密钥使用时间失败", "key", key.ID, "err", err)
	}

	return key.OwnerID, nil
}

func generateRawKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// displayKey 保留足以辨认的前缀，其余打码。
func displayKey(rawKey string) string {
	const visible = len(apiKeyPrefix) + 8
	if len(rawKey) <= visible {
		return rawKey
	}
	return rawKey[:visible] + "********"
}

func hashAPIKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
