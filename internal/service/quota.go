package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"uploadnest/internal/apperror"
	"uploadnest/internal/repository"

	"github.com/dustin/go-humanize"
)

// StorageMetrics 描述用户当前的配额使用情况。
// Usage 每次都从文件记录实时聚合，Remaining 在配额被调低后可能为负。
type StorageMetrics struct {
	Quota     int64 `json:"quota"`
	Usage     int64 `json:"usage"`
	Remaining int64 `json:"remaining"`
}

// UploadValidation 是配额校验通过时的用量预估。
type UploadValidation struct {
	Allowed              bool  `json:"allowed"`
	NewUsage             int64 `json:"newUsage"`
	RemainingAfterUpload int64 `json:"remainingAfterUpload"`
}

// QuotaService 负责配额查询与上传前校验。
type QuotaService struct {
	accounts repository.StorageAccountRepository
	files    repository.FileRepository
	logger   *slog.Logger
}

func NewQuotaService(accounts repository.StorageAccountRepository, files repository.FileRepository, logger *slog.Logger) *QuotaService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaService{accounts: accounts, files: files, logger: logger}
}

// Metrics 返回用户的配额、实时用量和剩余空间。
// 用量永远重新聚合而不是读缓存计数，保证与文件记录一致。
func (s *QuotaService) Metrics(ctx context.Context, ownerID string) (*StorageMetrics, error) {
	account, err := s.accounts.GetByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound("Storage account not found")
		}
		return nil, fmt.Errorf("load storage account: %w", err)
	}

	usage, err := s.files.SumSizeByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("aggregate storage usage: %w", err)
	}

	return &StorageMetrics{
		Quota:     account.QuotaBytes,
		Usage:     usage,
		Remaining: account.QuotaBytes - usage,
	}, nil
}

// ValidateUpload 校验一次上传是否超出配额。
// 这只是检查而非预留：同一用户并发上传可能同时通过校验而合计超额，属已接受的竞态。
func (s *QuotaService) ValidateUpload(ctx context.Context, ownerID string, totalBytes int64) (*UploadValidation, error) {
	if totalBytes < 0 {
		return nil, apperror.InvalidInput("File size must be positive")
	}

	metrics, err := s.Metrics(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if metrics.Remaining < totalBytes {
		shortfall := totalBytes - metrics.Remaining
		s.logger.Warn("配额不足，拒绝上传",
			"owner", ownerID, "requested", totalBytes, "remaining", metrics.Remaining)
		return nil, apperror.InsufficientStorage(
			fmt.Sprintf("Insufficient storage. %s needed.", humanize.IBytes(uint64(shortfall))))
	}

	return &UploadValidation{
		Allowed:              true,
		NewUsage:             metrics.Usage + totalBytes,
		RemainingAfterUpload: metrics.Remaining - totalBytes,
	}, nil
}
