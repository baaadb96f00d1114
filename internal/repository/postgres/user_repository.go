package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"uploadnest/internal/repository"

	"github.com/google/uuid"
)

// NewUserRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UserRepository 实现 repository.UserRepository。
type UserRepository struct {
	db *sql.DB
}

const userSelectColumns = "id, name, email, password_hash, created_at, updated_at"

// CreateWithAccount 在同一事务内创建用户及其配额账户。
// 两条插入要么都生效要么都回滚，保证每个用户必有配额账户。
func (r *UserRepository) CreateWithAccount(ctx context.Context, user *repository.User, quotaBytes int64) (*repository.User, error) {
	if user == nil {
		return nil, fmt.Errorf("user is nil")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin register tx: %w", err)
	}

	row := tx.QueryRowContext(ctx, fmt.Sprintf(`INSERT INTO users (id, name, email, password_hash)
	VALUES ($1, $2, $3, $4)
	RETURNING %s`, userSelectColumns),
		user.ID, user.Name, user.Email, user.PasswordHash,
	)

	created, err := scanUser(row)
	if err != nil {
		tx.Rollback()
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO storage_accounts (id, owner_id, quota_bytes)
	VALUES ($1, $2, $3)`,
		uuid.NewString(), created.ID, quotaBytes,
	); err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("create storage account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit register tx: %w", err)
	}

	return created, nil
}

// GetByEmail 按邮箱查询用户，邮箱统一小写存储。
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM users WHERE email = LOWER($1)`, userSelectColumns), email)
	user, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// Exists 判断用户是否存在。
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func scanUser(rs rowScanner) (*repository.User, error) {
	var u repository.User
	if err := rs.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}
