package repository

import (
	"context"
	"time"
)

// User 代表注册用户。PasswordHash 不参与 JSON 序列化。
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserRepository 统一用户持久层接口。
type UserRepository interface {
	// CreateWithAccount 在同一事务内创建用户和其存储配额账户。
	// 邮箱已存在时返回 ErrDuplicate。
	CreateWithAccount(ctx context.Context, user *User, quotaBytes int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Exists(ctx context.Context, id string) (bool, error)
}
