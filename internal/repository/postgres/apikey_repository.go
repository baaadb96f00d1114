package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"uploadnest/internal/repository"
)

// NewAPIKeyRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// APIKeyRepository 实现 repository.APIKeyRepository。
type APIKeyRepository struct {
	db *sql.DB
}

const apiKeySelectColumns = "id, owner_id, name, display_key, hashed_key, last_used_at, created_at, updated_at"

// Create 插入密钥记录并返回数据库生成字段。
func (r *APIKeyRepository) Create(ctx context.Context, key *repository.APIKey) (*repository.APIKey, error) {
	if key == nil {
		return nil, fmt.Errorf("api key is nil")
	}

	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`INSERT INTO api_keys (id, owner_id, name, display_key, hashed_key)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING %s`, apiKeySelectColumns),
		key.ID, key.OwnerID, key.Name, key.DisplayKey, key.HashedKey,
	)

	created, err := scanAPIKey(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, err
	}
	return created, nil
}

// ListByOwner 按创建时间倒序分页列出密钥，同时返回总数。
func (r *APIKeyRepository) ListByOwner(ctx context.Context, ownerID string, params repository.ListAPIKeysParams) ([]repository.APIKey, int64, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM api_keys WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM api_keys
	WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, apiKeySelectColumns),
		ownerID, pageSize, params.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []repository.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *key)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

// DeleteOwned 删除属于 ownerID 的密钥，目标不存在时返回 ErrNotFound。
func (r *APIKeyRepository) DeleteOwned(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByHash 通过哈希查找密钥，用于 API 鉴权。
func (r *APIKeyRepository) GetByHash(ctx context.Context, hashedKey string) (*repository.APIKey, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM api_keys WHERE hashed_key = $1`, apiKeySelectColumns), hashedKey)
	key, err := scanAPIKey(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return key, nil
}

// TouchLastUsed 更新最近使用时间。
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, hashedKey string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $1, updated_at = $1 WHERE hashed_key = $2`,
		time.Now().UTC(), hashedKey)
	return err
}

func scanAPIKey(rs rowScanner) (*repository.APIKey, error) {
	var (
		key      repository.APIKey
		lastUsed sql.NullTime
	)

	if err := rs.Scan(
		&key.ID,
		&key.OwnerID,
		&key.Name,
		&key.DisplayKey,
		&key.HashedKey,
		&lastUsed,
		&key.CreatedAt,
		&key.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}

	return &key, nil
}
