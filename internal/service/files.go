package service

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"uploadnest/internal/apperror"
	"uploadnest/internal/repository"
	"uploadnest/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// UploadFile 是一个待上传的内存文件。大小与 MIME 类型已由 API 层把关。
type UploadFile struct {
	OriginalName string
	MimeType     string
	Data         []byte
}

// UploadResult 描述单个成功上传的文件。
type UploadResult struct {
	FileID       string `json:"fileId"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Extension    string `json:"ext"`
	MimeType     string `json:"mimeType"`
}

// UploadBatchResult 是批量上传的汇总。部分失败是正常结果而非错误。
type UploadBatchResult struct {
	Message     string         `json:"message"`
	Succeeded   []UploadResult `json:"data"`
	FailedCount int            `json:"failedCount"`
}

// FileView 是附带签名链接的文件记录视图。
type FileView struct {
	repository.FileRecord
	URL string `json:"url"`
}

// Pagination 描述分页结果。
type Pagination struct {
	PageSize   int   `json:"pageSize"`
	PageNumber int   `json:"pageNumber"`
	TotalCount int64 `json:"totalCount"`
	TotalPages int64 `json:"totalPages"`
	Skip       int   `json:"skip"`
}

// FileListResult 是文件列表响应。
type FileListResult struct {
	Files      []FileView `json:"files"`
	Pagination Pagination `json:"pagination"`
}

// DownloadResult 是下载链接响应。多文件时 URL 指向临时打包的 zip。
type DownloadResult struct {
	URL   string `json:"url"`
	IsZip bool   `json:"isZip"`
}

// DeleteBatchResult 是批量删除的汇总。
type DeleteBatchResult struct {
	DeletedCount int64 `json:"deletedCount"`
	FailedCount  int   `json:"failedCount"`
}

// ServedFile 是直接流式响应所需的内容与元信息。
type ServedFile struct {
	Stream      io.ReadCloser
	ContentType string
	SizeBytes   int64
}

// FileServiceOptions 控制打包下载行为。
type FileServiceOptions struct {
	ZipCompressionLevel int           // zip 压缩级别，1-9
	LinkTTL             time.Duration // 列表与打包下载的签名链接有效期
}

// FileService 封装文件上传、检索、下载与删除的业务流程。
type FileService struct {
	files    repository.FileRepository
	users    repository.UserRepository
	store    storage.ObjectStore
	logger   *slog.Logger
	zipLevel int
	linkTTL  time.Duration
}

func NewFileService(files repository.FileRepository, users repository.UserRepository, store storage.ObjectStore, logger *slog.Logger, opts FileServiceOptions) *FileService {
	if logger == nil {
		logger = slog.Default()
	}
	zipLevel := opts.ZipCompressionLevel
	if zipLevel < 1 || zipLevel > 9 {
		zipLevel = 6
	}
	linkTTL := opts.LinkTTL
	if linkTTL <= 0 {
		linkTTL = time.Hour
	}
	return &FileService{
		files:    files,
		users:    users,
		store:    store,
		logger:   logger,
		zipLevel: zipLevel,
		linkTTL:  linkTTL,
	}
}

// UploadBatch 并发上传一批文件并登记元数据。
// 单个文件失败只计入 failedCount，不会中断或取消其余文件；
// 整体仅在批级前置条件不满足（用户不存在、空批次）时报错。
// 成功列表保持与入参相同的顺序。
func (s *FileService) UploadBatch(ctx context.Context, ownerID string, files []UploadFile, source repository.UploadSource) (*UploadBatchResult, error) {
	exists, err := s.users.Exists(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("check owner: %w", err)
	}
	if !exists {
		return nil, apperror.Unauthorized("Unauthorized access")
	}
	if len(files) == 0 {
		return nil, apperror.BadRequest("No files provided")
	}

	// 逐文件独立结算：按下标写回结果，完成顺序不影响响应顺序
	results := make([]*UploadResult, len(files))
	var wg sync.WaitGroup
	for i := range files {
		wg.Add(1)
		go func(idx int, file UploadFile) {
			defer wg.Done()
			res, err := s.uploadOne(ctx, ownerID, file, source)
			if err != nil {
				s.logger.Error("文件上传失败", "owner", ownerID, "name", file.OriginalName, "err", err)
				return
			}
			results[idx] = res
		}(i, files[i])
	}
	wg.Wait()

	succeeded := make([]UploadResult, 0, len(files))
	for _, res := range results {
		if res != nil {
			succeeded = append(succeeded, *res)
		}
	}
	failedCount := len(files) - len(succeeded)

	if failedCount > 0 {
		s.logger.Warn("部分文件上传失败", "owner", ownerID, "failed", failedCount, "total", len(files))
	}

	return &UploadBatchResult{
		Message:     fmt.Sprintf("Uploaded successfully %d out of %d files", len(succeeded), len(files)),
		Succeeded:   succeeded,
		FailedCount: failedCount,
	}, nil
}

func (s *FileService) uploadOne(ctx context.Context, ownerID string, file UploadFile, source repository.UploadSource) (*UploadResult, error) {
	key := buildStorageKey(ownerID, file.OriginalName)

	// 先写对象再落元数据：记录存在即对象一定存在
	if err := s.store.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), file.MimeType, nil); err != nil {
		return nil, fmt.Errorf("upload object: %w", err)
	}

	record := &repository.FileRecord{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		OriginalName: file.OriginalName,
		StorageKey:   key,
		MimeType:     file.MimeType,
		SizeBytes:    int64(len(file.Data)),
		Extension:    fileExtension(file.OriginalName),
		UploadSource: source,
	}

	created, err := s.files.Create(ctx, record)
	if err != nil {
		// 元数据落库失败则回删对象，避免留下无记录可寻的孤儿对象
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Error("补偿删除失败，对象可能成为孤儿", "key", key, "err", delErr)
		}
		return nil, fmt.Errorf("persist metadata: %w", err)
	}

	return &UploadResult{
		FileID:       created.ID,
		OriginalName: created.OriginalName,
		Size:         created.SizeBytes,
		Extension:    created.Extension,
		MimeType:     created.MimeType,
	}, nil
}

// List 分页检索用户文件并为每条记录签发内联展示的访问链接。
func (s *FileService) List(ctx context.Context, ownerID string, params repository.ListFilesParams) (*FileListResult, error) {
	if params.PageSize <= 0 {
		params.PageSize = 20
	}
	if params.PageNumber <= 0 {
		params.PageNumber = 1
	}

	records, total, err := s.files.FindByOwner(ctx, ownerID, params)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	views := make([]FileView, 0, len(records))
	for _, rec := range records {
		url, err := s.store.SignedURL(ctx, storage.SignedURLOptions{
			Key:         rec.StorageKey,
			ExpiresIn:   s.linkTTL,
			ContentType: rec.MimeType,
		})
		if err != nil {
			return nil, fmt.Errorf("sign url for %s: %w", rec.ID, err)
		}
		views = append(views, FileView{FileRecord: rec, URL: url})
	}

	totalPages := (total + int64(params.PageSize) - 1) / int64(params.PageSize)

	return &FileListResult{
		Files: views,
		Pagination: Pagination{
			PageSize:   params.PageSize,
			PageNumber: params.PageNumber,
			TotalCount: total,
			TotalPages: totalPages,
			Skip:       params.Offset(),
		},
	}, nil
}

// Download 解析下载请求：单文件返回直链，多文件打包成临时 zip 后返回其签名链接。
// 解析不到任何记录时报 NotFound；个别缺失的 id 静默忽略。
// id 解析不按属主过滤，ownerID 只用于临时 zip 的存储路径。
func (s *FileService) Download(ctx context.Context, ownerID string, fileIDs []string) (*DownloadResult, error) {
	records, err := s.files.FindByIDs(ctx, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve files: %w", err)
	}
	if len(records) == 0 {
		return nil, apperror.NotFound("No files found")
	}

	if len(records) == 1 {
		url, err := s.store.SignedURL(ctx, storage.SignedURLOptions{
			Key:              records[0].StorageKey,
			DownloadFilename: records[0].OriginalName,
		})
		if err != nil {
			return nil, fmt.Errorf("sign download url: %w", err)
		}
		return &DownloadResult{URL: url, IsZip: false}, nil
	}

	url, err := s.buildZipDownload(ctx, ownerID, records)
	if err != nil {
		return nil, err
	}
	return &DownloadResult{URL: url, IsZip: true}, nil
}

// buildZipDownload 把多个对象边打包边上传：归档写入端和对象存储上传端
// 通过管道连接并发运行，无需在内存里缓冲完整 zip。任何一侧出错都会
// 使另一侧尽快退出，不会留下被当作完整文件的半成品归档。
func (s *FileService) buildZipDownload(ctx context.Context, ownerID string, records []repository.FileRecord) (string, error) {
	timestamp := time.Now().UnixMilli()
	zipKey := fmt.Sprintf("temp-zips/%s/%d.zip", ownerID, timestamp)
	zipFilename := fmt.Sprintf("uploadnest-%d.zip", timestamp)

	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	// 消费端：把归档字节流直接推给对象存储，大小未知交由 SDK 分片
	g.Go(func() error {
		if err := s.store.Put(gctx, zipKey, pr, -1, "application/zip", nil); err != nil {
			pr.CloseWithError(err)
			return fmt.Errorf("upload zip: %w", err)
		}
		return nil
	})

	// 生产端：按解析顺序逐个取流并追加进归档
	g.Go(func() error {
		zw := zip.NewWriter(pw)
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, s.zipLevel)
		})

		for _, rec := range records {
			rc, err := s.store.Read(gctx, rec.StorageKey)
			if err != nil {
				pw.CloseWithError(err)
				return fmt.Errorf("read %s: %w", rec.StorageKey, err)
			}

			entry, err := zw.Create(sanitizeFilename(rec.OriginalName))
			if err != nil {
				rc.Close()
				pw.CloseWithError(err)
				return fmt.Errorf("append %s: %w", rec.StorageKey, err)
			}

			if _, err := io.Copy(entry, rc); err != nil {
				rc.Close()
				pw.CloseWithError(err)
				return fmt.Errorf("copy %s: %w", rec.StorageKey, err)
			}
			rc.Close()
		}

		if err := zw.Close(); err != nil {
			pw.CloseWithError(err)
			return fmt.Errorf("finalize zip: %w", err)
		}
		return pw.Close()
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("打包下载失败", "owner", ownerID, "key", zipKey, "err", err)
		return "", err
	}

	url, err := s.store.SignedURL(ctx, storage.SignedURLOptions{
		Key:              zipKey,
		ExpiresIn:        s.linkTTL,
		DownloadFilename: zipFilename,
	})
	if err != nil {
		return "", fmt.Errorf("sign zip url: %w", err)
	}

	// 临时 zip 不登记元数据，由对象存储的生命周期策略负责清理
	return url, nil
}

// DeleteBatch 并发删除对象后再清理元数据。
// 对象删除失败的记录被保留：系统绝不丢弃指向仍然存在的对象的唯一引用。
func (s *FileService) DeleteBatch(ctx context.Context, ownerID string, fileIDs []string) (*DeleteBatchResult, error) {
	records, err := s.files.FindByIDs(ctx, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve files: %w", err)
	}
	if len(records) == 0 {
		return nil, apperror.NotFound("No files found")
	}

	var (
		mu     sync.Mutex
		failed = make(map[string]struct{})
		wg     sync.WaitGroup
	)
	for _, rec := range records {
		wg.Add(1)
		go func(rec repository.FileRecord) {
			defer wg.Done()
			if err := s.store.Delete(ctx, rec.StorageKey); err != nil {
				s.logger.Error("对象删除失败，保留其元数据", "owner", ownerID, "key", rec.StorageKey, "err", err)
				mu.Lock()
				failed[rec.ID] = struct{}{}
				mu.Unlock()
			}
		}(rec)
	}
	wg.Wait()

	succeededIDs := make([]string, 0, len(records))
	for _, rec := range records {
		if _, ok := failed[rec.ID]; !ok {
			succeededIDs = append(succeededIDs, rec.ID)
		}
	}

	var deleted int64
	if len(succeededIDs) > 0 {
		// 元数据删除仍按 owner 过滤，防止越权清除他人记录
		deleted, err = s.files.DeleteManyOwned(ctx, succeededIDs, ownerID)
		if err != nil {
			return nil, fmt.Errorf("delete metadata: %w", err)
		}
	}

	return &DeleteBatchResult{
		DeletedCount: deleted,
		FailedCount:  len(failed),
	}, nil
}

// ResolveForServing 解析公开访问的文件流。
// 该路径有意不做属主校验：拿到文件 id 即可读取，属产品层面的公开分享行为。
func (s *FileService) ResolveForServing(ctx context.Context, fileID string) (*ServedFile, error) {
	record, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("File not found")
		}
		return nil, fmt.Errorf("load file: %w", err)
	}

	stream, err := s.store.Read(ctx, record.StorageKey)
	if err != nil {
		return nil, apperror.Internal("Failed to retrieve file", err)
	}

	return &ServedFile{
		Stream:      stream,
		ContentType: record.MimeType,
		SizeBytes:   record.SizeBytes,
	}, nil
}
