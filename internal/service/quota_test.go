package service

import (
	"context"
	"strings"
	"testing"

	"uploadnest/internal/apperror"
	"uploadnest/internal/repository"
)

type mockAccountRepo struct {
	account *repository.StorageAccount
	err     error
}

func (m *mockAccountRepo) GetByOwner(ctx context.Context, ownerID string) (*repository.StorageAccount, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.account, nil
}

func TestQuotaService_Metrics(t *testing.T) {
	accounts := &mockAccountRepo{account: &repository.StorageAccount{OwnerID: "owner-1", QuotaBytes: 1000}}
	files := &mockFileRepo{sum: 900}
	svc := NewQuotaService(accounts, files, nil)

	metrics, err := svc.Metrics(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("Metrics returned error: %v", err)
	}
	if metrics.Quota != 1000 || metrics.Usage != 900 || metrics.Remaining != 100 {
		t.Fatalf("unexpected metrics: %+v", metrics)
	}
}

func TestQuotaService_Metrics_NoAccount(t *testing.T) {
	svc := NewQuotaService(&mockAccountRepo{err: repository.ErrNotFound}, &mockFileRepo{}, nil)

	_, err := svc.Metrics(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected error for missing account")
	}
	if apperror.From(err).Code != apperror.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuotaService_ValidateUpload_Exceeded(t *testing.T) {
	accounts := &mockAccountRepo{account: &repository.StorageAccount{QuotaBytes: 1000}}
	svc := NewQuotaService(accounts, &mockFileRepo{sum: 900}, nil)

	_, err := svc.ValidateUpload(context.Background(), "owner-1", 150)
	if err == nil {
		t.Fatal("expected quota error")
	}
	appErr := apperror.From(err)
	if appErr.Code != apperror.CodeInsufficientStorage {
		t.Fatalf("expected insufficient storage, got %v", appErr.Code)
	}
	// 提示缺口而不是请求量
	if !strings.Contains(appErr.Message, "50 B") {
		t.Fatalf("expected shortfall in message, got %q", appErr.Message)
	}
}

func TestQuotaService_ValidateUpload_ExactFit(t *testing.T) {
	accounts := &mockAccountRepo{account: &repository.StorageAccount{QuotaBytes: 1000}}
	svc := NewQuotaService(accounts, &mockFileRepo{sum: 900}, nil)

	result, err := svc.ValidateUpload(context.Background(), "owner-1", 100)
	if err != nil {
		t.Fatalf("exact fit must be allowed: %v", err)
	}
	if !result.Allowed || result.NewUsage != 1000 || result.RemainingAfterUpload != 0 {
		t.Fatalf("unexpected validation: %+v", result)
	}
}

func TestQuotaService_ValidateUpload_NegativeSize(t *testing.T) {
	svc := NewQuotaService(&mockAccountRepo{}, &mockFileRepo{}, nil)

	_, err := svc.ValidateUpload(context.Background(), "owner-1", -1)
	if err == nil {
		t.Fatal("expected error for negative size")
	}
	if apperror.From(err).Code != apperror.CodeInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
