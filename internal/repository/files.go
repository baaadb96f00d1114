package repository

import (
	"context"
	"time"
)

// UploadSource 标记文件是经网页端还是 API Key 上传的。
type UploadSource string

const (
	UploadSourceWeb UploadSource = "WEB"
	UploadSourceAPI UploadSource = "API"
)

// FileRecord 代表数据库中的文件元数据。
// StorageKey 唯一对应对象存储中的一个对象，删除后也不会复用。
type FileRecord struct {
	ID           string       `json:"id"`
	OwnerID      string       `json:"ownerId"`
	OriginalName string       `json:"originalName"`
	StorageKey   string       `json:"-"`
	MimeType     string       `json:"mimeType"`
	SizeBytes    int64        `json:"sizeBytes"`
	Extension    string       `json:"extension"`
	UploadSource UploadSource `json:"uploadSource"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// ListFilesParams 用于分页检索文件。Keyword 对原始文件名做不区分大小写的子串匹配。
type ListFilesParams struct {
	Keyword    string
	PageSize   int
	PageNumber int
}

// Offset 计算偏移量，页码从 1 开始。
func (p ListFilesParams) Offset() int {
	if p.PageNumber <= 1 {
		return 0
	}
	return (p.PageNumber - 1) * p.PageSize
}

// FileRepository 统一文件元数据持久层接口。
type FileRepository interface {
	Create(ctx context.Context, record *FileRecord) (*FileRecord, error)
	GetByID(ctx context.Context, id string) (*FileRecord, error)
	// FindByOwner 返回按创建时间倒序的一页记录和匹配总数。
	FindByOwner(ctx context.Context, ownerID string, params ListFilesParams) ([]FileRecord, int64, error)
	// FindByIDs 返回存在的记录，不存在的 id 直接缺席，不单独报告。
	FindByIDs(ctx context.Context, ids []string) ([]FileRecord, error)
	// DeleteManyOwned 仅删除属于 ownerID 的记录，返回实际删除数。
	DeleteManyOwned(ctx context.Context, ids []string, ownerID string) (int64, error)
	// SumSizeByOwner 聚合该用户全部文件大小，无文件时返回 0。
	SumSizeByOwner(ctx context.Context, ownerID string) (int64, error)
}
