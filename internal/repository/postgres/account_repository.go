package postgres

import (
	"context"
	"database/sql"

	"uploadnest/internal/repository"
)

// NewStorageAccountRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewStorageAccountRepository(db *sql.DB) *StorageAccountRepository {
	return &StorageAccountRepository{db: db}
}

// StorageAccountRepository 实现 repository.StorageAccountRepository。
type StorageAccountRepository struct {
	db *sql.DB
}

// GetByOwner 查询用户的配额账户。
func (r *StorageAccountRepository) GetByOwner(ctx context.Context, ownerID string) (*repository.StorageAccount, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, owner_id, quota_bytes, created_at, updated_at
	FROM storage_accounts WHERE owner_id = $1`, ownerID)

	var acc repository.StorageAccount
	if err := row.Scan(&acc.ID, &acc.OwnerID, &acc.QuotaBytes, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}
