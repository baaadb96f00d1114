package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"uploadnest/internal/repository"
)

// NewFileRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

// FileRepository 实现 repository.FileRepository。
type FileRepository struct {
	db *sql.DB
}

var fileSelectColumns = []string{
	"id",
	"owner_id",
	"original_name",
	"storage_key",
	"mime_type",
	"size_bytes",
	"extension",
	"upload_source",
	"created_at",
	"updated_at",
}

var fileInsertColumns = []string{
	"id",
	"owner_id",
	"original_name",
	"storage_key",
	"mime_type",
	"size_bytes",
	"extension",
	"upload_source",
}

// Create 插入文件记录并返回数据库生成字段（如时间戳）。
// storage_key 唯一约束冲突时返回 ErrDuplicate。
func (r *FileRepository) Create(ctx context.Context, record *repository.FileRecord) (*repository.FileRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("file record is nil")
	}

	placeholders := make([]string, len(fileInsertColumns))
	for i := range fileInsertColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO files (%s)
	VALUES (%s)
	RETURNING %s`,
		strings.Join(fileInsertColumns, ","),
		strings.Join(placeholders, ","),
		strings.Join(fileSelectColumns, ","),
	)

	row := r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.OwnerID,
		record.OriginalName,
		record.StorageKey,
		record.MimeType,
		record.SizeBytes,
		record.Extension,
		record.UploadSource,
	)

	created, err := scanFileRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrDuplicate
		}
		return nil, err
	}
	return created, nil
}

// GetByID 通过主键查询文件记录。
func (r *FileRepository) GetByID(ctx context.Context, id string) (*repository.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, strings.Join(fileSelectColumns, ","))
	row := r.db.QueryRowContext(ctx, query, id)
	record, err := scanFileRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// FindByOwner 支持关键字过滤与分页，按创建时间倒序，同时返回匹配总数。
func (r *FileRepository) FindByOwner(ctx context.Context, ownerID string, params repository.ListFilesParams) ([]repository.FileRecord, int64, error) {
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	args := []any{ownerID}
	whereClause := "WHERE owner_id = $1"
	if params.Keyword != "" {
		args = append(args, "%"+params.Keyword+"%")
		whereClause += fmt.Sprintf(" AND original_name ILIKE $%d", len(args))
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, whereClause)
	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, pageSize)
	tail := fmt.Sprintf("ORDER BY created_at DESC LIMIT $%d", len(args))
	if offset := params.Offset(); offset > 0 {
		args = append(args, offset)
		tail += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM files %s %s`, strings.Join(fileSelectColumns, ","), whereClause, tail)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []repository.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

// FindByIDs 返回存在的记录，缺失的 id 静默跳过。
func (r *FileRepository) FindByIDs(ctx context.Context, ids []string) ([]repository.FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM files WHERE id IN (%s) ORDER BY created_at DESC`,
		strings.Join(fileSelectColumns, ","),
		strings.Join(placeholders, ","),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// DeleteManyOwned 删除指定 id 中属于 ownerID 的记录，返回实际删除数。
func (r *FileRepository) DeleteManyOwned(ctx context.Context, ids []string, ownerID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := []any{ownerID}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}

	query := fmt.Sprintf(`DELETE FROM files WHERE owner_id = $1 AND id IN (%s)`, strings.Join(placeholders, ","))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// SumSizeByOwner 聚合用户全部文件大小，无文件时返回 0。
func (r *FileRepository) SumSizeByOwner(ctx context.Context, ownerID string) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE owner_id = $1`, ownerID).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(rs rowScanner) (*repository.FileRecord, error) {
	var rec repository.FileRecord
	if err := rs.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.OriginalName,
		&rec.StorageKey,
		&rec.MimeType,
		&rec.SizeBytes,
		&rec.Extension,
		&rec.UploadSource,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
