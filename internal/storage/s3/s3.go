package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"uploadnest/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 包含 S3/MinIO 存储所需的配置。
type Config struct {
	Endpoint   string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	UseSSL     bool
	DefaultTTL time.Duration // SignedURL 未指定有效期时的默认值
}

// Store 实现了 storage.ObjectStore 接口，使用 S3 兼容存储。
type Store struct {
	client     *minio.Client
	bucket     string
	defaultTTL time.Duration
	logger     *slog.Logger
}

// New 创建新的 S3 存储网关。
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	// 检查 bucket 是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{
			Region: cfg.Region,
		}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	defaultTTL := cfg.DefaultTTL
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client:     client,
		bucket:     cfg.Bucket,
		defaultTTL: defaultTTL,
		logger:     logger,
	}, nil
}

// Put 以流式写入对象。size 为 -1 时由 SDK 自动分片。
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 store uninitialized")
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	})
	if err != nil {
		s.logger.Error("对象写入失败", "key", key, "err", err)
		return fmt.Errorf("put object %s: %w", key, err)
	}

	return nil
}

// Delete 删除对象。底层存储对不存在的 key 同样返回成功。
func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 store uninitialized")
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		s.logger.Error("对象删除失败", "key", key, "err", err)
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Read 返回对象内容的读取流。对象缺失或响应无内容时报错。
func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("s3 store uninitialized")
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		s.logger.Error("对象读取失败", "key", key, "err", err)
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}

	// GetObject 是惰性的，Stat 确认对象确实存在且有内容
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		s.logger.Error("对象读取失败", "key", key, "err", err)
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("object not found: %s", key)
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}

	return obj, nil
}

// SignedURL 生成预签名 GET 链接。
// DownloadFilename 非空时响应头强制 attachment 下载，否则按 ContentType 内联。
func (s *Store) SignedURL(ctx context.Context, opts storage.SignedURLOptions) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("s3 store uninitialized")
	}

	expiry := opts.ExpiresIn
	if expiry <= 0 {
		expiry = s.defaultTTL
	}

	reqParams := make(url.Values)
	if opts.DownloadFilename != "" {
		reqParams.Set("response-content-disposition", fmt.Sprintf("attachment;filename=%q", opts.DownloadFilename))
	} else {
		reqParams.Set("response-content-disposition", "inline")
		if opts.ContentType != "" {
			reqParams.Set("response-content-type", opts.ContentType)
		}
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, opts.Key, expiry, reqParams)
	if err != nil {
		s.logger.Error("签名链接生成失败", "key", opts.Key, "err", err)
		return "", fmt.Errorf("presign get %s: %w", opts.Key, err)
	}

	return u.String(), nil
}
