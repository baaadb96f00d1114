package repository

import (
	"context"
	"time"
)

// StorageAccount 记录每个用户的存储配额。
// 用量不在这里落库，而是每次从文件记录聚合得出，避免部分失败造成计数漂移。
type StorageAccount struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	QuotaBytes int64     `json:"quotaBytes"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// StorageAccountRepository 统一配额账户持久层接口。
type StorageAccountRepository interface {
	GetByOwner(ctx context.Context, ownerID string) (*StorageAccount, error)
}
