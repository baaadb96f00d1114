package storage

import (
	"context"
	"io"
	"time"
)

// SignedURLOptions 描述签名链接的生成参数。
// 给出 DownloadFilename 时强制 attachment 下载；否则按 ContentType 内联展示。
// ExpiresIn 为零时由实现方使用默认短有效期。
type SignedURLOptions struct {
	Key              string
	ExpiresIn        time.Duration
	DownloadFilename string
	ContentType      string
}

// ObjectStore 定义对象存储网关。所有实现必须是无状态、可安全并发复用的。
type ObjectStore interface {
	// Put 以流式写入对象。size 未知时传 -1。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error
	// Delete 删除对象。key 不存在与删除成功不作区分。
	Delete(ctx context.Context, key string) error
	// Read 返回对象内容的读取流，由调用方负责关闭。
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	// SignedURL 生成限时的预签名访问链接。
	SignedURL(ctx context.Context, opts SignedURLOptions) (string, error)
}
