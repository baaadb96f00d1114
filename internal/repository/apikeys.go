package repository

import (
	"context"
	"time"
)

// APIKey 代表一个编程访问密钥。只保存哈希，原始 key 创建后不再出现。
type APIKey struct {
	ID         string     `json:"id"`
	OwnerID    string     `json:"ownerId"`
	Name       string     `json:"name"`
	DisplayKey string     `json:"displayKey"`
	HashedKey  string     `json:"-"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ListAPIKeysParams 用于分页检索密钥。
type ListAPIKeysParams struct {
	PageSize   int
	PageNumber int
}

// Offset 计算偏移量，页码从 1 开始。
func (p ListAPIKeysParams) Offset() int {
	if p.PageNumber <= 1 {
		return 0
	}
	return (p.PageNumber - 1) * p.PageSize
}

// APIKeyRepository 统一密钥持久层接口。
type APIKeyRepository interface {
	Create(ctx context.Context, key *APIKey) (*APIKey, error)
	ListByOwner(ctx context.Context, ownerID string, params ListAPIKeysParams) ([]APIKey, int64, error)
	// DeleteOwned 仅删除属于 ownerID 的密钥，目标不存在时返回 ErrNotFound。
	DeleteOwned(ctx context.Context, id, ownerID string) error
	GetByHash(ctx context.Context, hashedKey string) (*APIKey, error)
	// TouchLastUsed 更新最近使用时间，调用方按尽力而为处理。
	TouchLastUsed(ctx context.Context, hashedKey string) error
}
