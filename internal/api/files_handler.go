package api

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"uploadnest/internal/apperror"
	"uploadnest/internal/middleware"
	"uploadnest/internal/repository"
	"uploadnest/internal/service"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
)

const multipartMemoryBudget int64 = 16 * 1024 * 1024

// UploadLimits 是 API 层对上传的入口约束，在业务逻辑之前执行。
type UploadLimits struct {
	MaxFileSizeBytes  int64
	MaxFilesPerUpload int
	AllowedMimeTypes  []string
}

// FileHandler 提供文件上传、检索、下载与删除的 HTTP 端点。
type FileHandler struct {
	files  *service.FileService
	quota  *service.QuotaService
	limits UploadLimits
	mimes  map[string]struct{}
}

func NewFileHandler(files *service.FileService, quota *service.QuotaService, limits UploadLimits) *FileHandler {
	mimes := make(map[string]struct{}, len(limits.AllowedMimeTypes))
	for _, m := range limits.AllowedMimeTypes {
		mimes[strings.ToLower(strings.TrimSpace(m))] = struct{}{}
	}
	return &FileHandler{files: files, quota: quota, limits: limits, mimes: mimes}
}

// RegisterRoutes 注册需要鉴权的文件端点。
func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Post("/upload", h.Upload)
		r.Get("/all", h.List)
		r.Delete("/bulk-delete", h.BulkDelete)
		r.Post("/download", h.Download)
	})
}

// RegisterPublicRoutes 注册无需鉴权的公开访问端点。
func (h *FileHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/files/public/{fileID}", h.ServePublicFile)
}

// Upload 接受 multipart 批量上传。
// 表单字段名为 files，可重复；数量、单文件大小与 MIME 类型在此把关，
// 配额校验按本批总字节数整体执行。
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		writeError(w, apperror.BadRequest("Request body is empty"))
		return
	}

	maxBody := h.limits.MaxFileSizeBytes*int64(h.limits.MaxFilesPerUpload) + multipartMemoryBudget
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	defer r.Body.Close()

	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		writeError(w, apperror.BadRequest(fmt.Sprintf("Invalid multipart form: %v", err)))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, apperror.BadRequest("No files provided"))
		return
	}
	if len(headers) > h.limits.MaxFilesPerUpload {
		writeError(w, apperror.BadRequest(
			fmt.Sprintf("Too many files. At most %d files per upload.", h.limits.MaxFilesPerUpload)))
		return
	}

	uploads := make([]service.UploadFile, 0, len(headers))
	var totalBytes int64
	for _, header := range headers {
		upload, err := h.readUpload(header)
		if err != nil {
			writeError(w, err)
			return
		}
		totalBytes += int64(len(upload.Data))
		uploads = append(uploads, *upload)
	}

	ownerID := middleware.GetOwnerID(r.Context())
	if _, err := h.quota.ValidateUpload(r.Context(), ownerID, totalBytes); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.files.UploadBatch(r.Context(), ownerID, uploads, middleware.GetUploadSource(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	middleware.UploadedFiles.WithLabelValues("success").Add(float64(len(result.Succeeded)))
	middleware.UploadedFiles.WithLabelValues("failed").Add(float64(result.FailedCount))
	for _, res := range result.Succeeded {
		middleware.UploadedBytes.Add(float64(res.Size))
	}

	writeJSON(w, http.StatusOK, result)
}

// readUpload 读取单个 multipart 文件并执行大小与类型校验。
func (h *FileHandler) readUpload(header *multipart.FileHeader) (*service.UploadFile, error) {
	if header.Size > h.limits.MaxFileSizeBytes {
		return nil, apperror.InvalidInput(fmt.Sprintf("File %q exceeds the %s size limit",
			header.Filename, humanize.IBytes(uint64(h.limits.MaxFileSizeBytes))))
	}

	mimeType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if _, ok := h.mimes[mimeType]; !ok {
		return nil, apperror.InvalidInput(fmt.Sprintf("File type %q is not allowed", mimeType))
	}

	file, err := header.Open()
	if err != nil {
		return nil, apperror.BadRequest("Unable to read uploaded file")
	}
	defer file.Close()

	// 限额之内的文件整体读入内存，上传失败可重试且无半写状态
	data, err := io.ReadAll(io.LimitReader(file, h.limits.MaxFileSizeBytes+1))
	if err != nil {
		return nil, apperror.BadRequest("Unable to read uploaded file")
	}
	if int64(len(data)) > h.limits.MaxFileSizeBytes {
		return nil, apperror.InvalidInput(fmt.Sprintf("File %q exceeds the %s size limit",
			header.Filename, humanize.IBytes(uint64(h.limits.MaxFileSizeBytes))))
	}
	if len(data) == 0 {
		return nil, apperror.InvalidInput(fmt.Sprintf("File %q is empty", header.Filename))
	}

	return &service.UploadFile{
		OriginalName: header.Filename,
		MimeType:     mimeType,
		Data:         data,
	}, nil
}

// List 分页返回当前用户的文件，支持按名称关键字过滤。
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := repository.ListFilesParams{
		Keyword: strings.TrimSpace(query.Get("keyword")),
	}
	if raw := query.Get("pageSize"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			params.PageSize = v
		}
	}
	if raw := query.Get("pageNumber"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			params.PageNumber = v
		}
	}

	result, err := h.files.List(r.Context(), middleware.GetOwnerID(r.Context()), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type fileIDsRequest struct {
	FileIDs []string `json:"fileIds"`
}

func (req *fileIDsRequest) validate() error {
	if len(req.FileIDs) == 0 {
		return apperror.BadRequest("fileIds is required")
	}
	return nil
}

// BulkDelete 删除当前用户指定的一批文件。
func (h *FileHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req fileIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperror.BadRequest("Invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.files.DeleteBatch(r.Context(), middleware.GetOwnerID(r.Context()), req.FileIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      fmt.Sprintf("Deleted %d file(s)", result.DeletedCount),
		"deletedCount": result.DeletedCount,
		"failedCount":  result.FailedCount,
	})
}

// Download 返回下载链接。单文件为对象直链，多文件打包成 zip。
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req fileIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperror.BadRequest("Invalid request body"))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.files.Download(r.Context(), middleware.GetOwnerID(r.Context()), req.FileIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	if result.IsZip {
		middleware.ZipDownloads.Inc()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Download URL generated",
		"downloadUrl": result.URL,
		"isZip":       result.IsZip,
	})
}

// ServePublicFile 直接流式返回文件内容，凭文件 id 公开访问。
func (h *FileHandler) ServePublicFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if fileID == "" {
		writeError(w, apperror.BadRequest("File id is required"))
		return
	}

	served, err := h.files.ResolveForServing(r.Context(), fileID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer served.Stream.Close()

	w.Header().Set("Content-Type", served.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(served.SizeBytes, 10))
	w.Header().Set("Content-Disposition", "inline")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, served.Stream); err != nil {
		// 客户端可能已断开，无法再写入错误响应
		return
	}
}
