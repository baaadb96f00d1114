package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"uploadnest/internal/middleware"
	"uploadnest/internal/repository"
	"uploadnest/internal/service"
	"uploadnest/internal/storage"

	"github.com/go-chi/chi/v5"
)

type handlerFileRepo struct {
	mu         sync.Mutex
	created    []*repository.FileRecord
	records    []repository.FileRecord
	listResult []repository.FileRecord
	listTotal  int64
	deletedIDs []string
	sum        int64
}

func (m *handlerFileRepo) Create(ctx context.Context, record *repository.FileRecord) (*repository.FileRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, record)
	return record, nil
}

func (m *handlerFileRepo) GetByID(ctx context.Context, id string) (*repository.FileRecord, error) {
	for i := range m.records {
		if m.records[i].ID == id {
			return &m.records[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *handlerFileRepo) FindByOwner(ctx context.Context, ownerID string, params repository.ListFilesParams) ([]repository.FileRecord, int64, error) {
	return m.listResult, m.listTotal, nil
}

func (m *handlerFileRepo) FindByIDs(ctx context.Context, ids []string) ([]repository.FileRecord, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []repository.FileRecord
	for _, rec := range m.records {
		if _, ok := wanted[rec.ID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *handlerFileRepo) DeleteManyOwned(ctx context.Context, ids []string, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletedIDs = append(m.deletedIDs, ids...)
	return int64(len(ids)), nil
}

func (m *handlerFileRepo) SumSizeByOwner(ctx context.Context, ownerID string) (int64, error) {
	return m.sum, nil
}

type handlerUserRepo struct{}

func (m *handlerUserRepo) CreateWithAccount(ctx context.Context, user *repository.User, quotaBytes int64) (*repository.User, error) {
	return user, nil
}

func (m *handlerUserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	return nil, repository.ErrNotFound
}

func (m *handlerUserRepo) Exists(ctx context.Context, id string) (bool, error) {
	return true, nil
}

type handlerAccountRepo struct {
	quota int64
}

func (m *handlerAccountRepo) GetByOwner(ctx context.Context, ownerID string) (*repository.StorageAccount, error) {
	return &repository.StorageAccount{OwnerID: ownerID, QuotaBytes: m.quota}, nil
}

type handlerStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newHandlerStore() *handlerStore {
	return &handlerStore{objects: map[string][]byte{}}
}

func (m *handlerStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *handlerStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *handlerStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *handlerStore) SignedURL(ctx context.Context, opts storage.SignedURLOptions) (string, error) {
	return "https://files.test/" + opts.Key, nil
}

func newTestHandler(repo *handlerFileRepo, store *handlerStore, quota int64) *FileHandler {
	files := service.NewFileService(repo, &handlerUserRepo{}, store, nil, service.FileServiceOptions{})
	quotaSvc := service.NewQuotaService(&handlerAccountRepo{quota: quota}, repo, nil)
	return NewFileHandler(files, quotaSvc, UploadLimits{
		MaxFileSizeBytes:  200 * 1024,
		MaxFilesPerUpload: 10,
		AllowedMimeTypes:  []string{"text/plain", "image/png"},
	})
}

func withOwner(req *http.Request, ownerID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.OwnerContextKey{}, ownerID)
	ctx = context.WithValue(ctx, middleware.UploadSourceContextKey{}, repository.UploadSourceWeb)
	return req.WithContext(ctx)
}

type uploadPart struct {
	filename    string
	contentType string
	content     []byte
}

func newUploadRequest(t *testing.T, parts []uploadPart) *http.Request {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, p.filename))
		header.Set("Content-Type", p.contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(p.content); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/files/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestFileHandler_Upload(t *testing.T) {
	repo := &handlerFileRepo{}
	store := newHandlerStore()
	handler := newTestHandler(repo, store, 1024*1024)

	req := withOwner(newUploadRequest(t, []uploadPart{
		{filename: "a.txt", contentType: "text/plain", content: []byte("hello")},
		{filename: "b.txt", contentType: "text/plain", content: []byte("world!")},
	}), "owner-1")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Message     string `json:"message"`
		Data        []any  `json:"data"`
		FailedCount int    `json:"failedCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data) != 2 || resp.FailedCount != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(repo.created) != 2 {
		t.Fatalf("expected 2 records, got %d", len(repo.created))
	}
	if len(store.objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(store.objects))
	}
}

func TestFileHandler_Upload_RejectsDisallowedMime(t *testing.T) {
	handler := newTestHandler(&handlerFileRepo{}, newHandlerStore(), 1024*1024)

	req := withOwner(newUploadRequest(t, []uploadPart{
		{filename: "payload.bin", contentType: "application/x-msdownload", content: []byte{0x4d, 0x5a}},
	}), "owner-1")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ErrorCode != "INVALID_INPUT" || resp.Success {
		t.Fatalf("unexpected error envelope: %+v", resp)
	}
}

func TestFileHandler_Upload_QuotaExceeded(t *testing.T) {
	repo := &handlerFileRepo{sum: 90}
	handler := newTestHandler(repo, newHandlerStore(), 100)

	req := withOwner(newUploadRequest(t, []uploadPart{
		{filename: "big.txt", contentType: "text/plain", content: bytes.Repeat([]byte("x"), 50)},
	}), "owner-1")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp errorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ErrorCode != "INSUFFICIENT_STORAGE" {
		t.Fatalf("unexpected error code %q", resp.ErrorCode)
	}
	// 批级前置校验失败时不应有任何对象写入
	if len(repo.created) != 0 {
		t.Fatalf("no records should be created, got %d", len(repo.created))
	}
}

func TestFileHandler_Upload_TooManyFiles(t *testing.T) {
	handler := newTestHandler(&handlerFileRepo{}, newHandlerStore(), 1024*1024)

	parts := make([]uploadPart, 11)
	for i := range parts {
		parts[i] = uploadPart{
			filename:    fmt.Sprintf("f%d.txt", i),
			contentType: "text/plain",
			content:     []byte("x"),
		}
	}
	req := withOwner(newUploadRequest(t, parts), "owner-1")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFileHandler_List(t *testing.T) {
	repo := &handlerFileRepo{
		listResult: []repository.FileRecord{
			{ID: "f1", OriginalName: "a.txt", StorageKey: "users/owner-1/k1-a.txt", MimeType: "text/plain"},
		},
		listTotal: 1,
	}
	handler := newTestHandler(repo, newHandlerStore(), 1024*1024)

	req := withOwner(httptest.NewRequest(http.MethodGet, "/api/files/all?keyword=a&pageSize=5&pageNumber=1", nil), "owner-1")
	rec := httptest.NewRecorder()

	handler.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Files []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"files"`
		Pagination struct {
			TotalCount int64 `json:"totalCount"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Files) != 1 || resp.Pagination.TotalCount != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Files[0].URL == "" {
		t.Fatal("expected signed url in listing")
	}
}

func TestFileHandler_BulkDelete(t *testing.T) {
	repo := &handlerFileRepo{
		records: []repository.FileRecord{
			{ID: "f1", OwnerID: "owner-1", StorageKey: "users/owner-1/k1-a.txt"},
		},
	}
	store := newHandlerStore()
	store.objects["users/owner-1/k1-a.txt"] = []byte("a")
	handler := newTestHandler(repo, store, 1024*1024)

	body := strings.NewReader(`{"fileIds":["f1"]}`)
	req := withOwner(httptest.NewRequest(http.MethodDelete, "/api/files/bulk-delete", body), "owner-1")
	rec := httptest.NewRecorder()

	handler.BulkDelete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.deletedIDs) != 1 || repo.deletedIDs[0] != "f1" {
		t.Fatalf("unexpected deletions: %v", repo.deletedIDs)
	}
	if len(store.objects) != 0 {
		t.Fatalf("object not removed: %v", store.objects)
	}
}

func TestFileHandler_BulkDelete_RequiresIDs(t *testing.T) {
	handler := newTestHandler(&handlerFileRepo{}, newHandlerStore(), 1024*1024)

	body := strings.NewReader(`{"fileIds":[]}`)
	req := withOwner(httptest.NewRequest(http.MethodDelete, "/api/files/bulk-delete", body), "owner-1")
	rec := httptest.NewRecorder()

	handler.BulkDelete(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFileHandler_Download_Single(t *testing.T) {
	repo := &handlerFileRepo{
		records: []repository.FileRecord{
			{ID: "f1", OwnerID: "owner-1", OriginalName: "a.txt", StorageKey: "users/owner-1/k1-a.txt"},
		},
	}
	handler := newTestHandler(repo, newHandlerStore(), 1024*1024)

	body := strings.NewReader(`{"fileIds":["f1"]}`)
	req := withOwner(httptest.NewRequest(http.MethodPost, "/api/files/download", body), "owner-1")
	rec := httptest.NewRecorder()

	handler.Download(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		DownloadURL string `json:"downloadUrl"`
		IsZip       bool   `json:"isZip"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.IsZip {
		t.Fatal("single file must not be zipped")
	}
	if resp.DownloadURL == "" {
		t.Fatal("expected download url")
	}
}

func TestFileHandler_ServePublicFile(t *testing.T) {
	repo := &handlerFileRepo{
		records: []repository.FileRecord{
			{ID: "f1", StorageKey: "users/owner-1/k1-pic.png", MimeType: "image/png", SizeBytes: 4},
		},
	}
	store := newHandlerStore()
	store.objects["users/owner-1/k1-pic.png"] = []byte("data")
	handler := newTestHandler(repo, store, 1024*1024)

	r := chi.NewRouter()
	handler.RegisterPublicRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/files/public/f1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "4" {
		t.Fatalf("unexpected content length %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Fatalf("unexpected cache control %q", got)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("unexpected nosniff header %q", got)
	}
	if rec.Body.String() != "data" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/files/public/missing", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", rec.Code)
	}
}
