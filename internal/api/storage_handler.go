package api

import (
	"net/http"

	"uploadnest/internal/middleware"
	"uploadnest/internal/service"

	"github.com/go-chi/chi/v5"
)

// StorageHandler 提供配额使用情况端点。
type StorageHandler struct {
	quota *service.QuotaService
}

func NewStorageHandler(quota *service.QuotaService) *StorageHandler {
	return &StorageHandler{quota: quota}
}

func (h *StorageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/storage/metrics", h.Metrics)
}

// Metrics 返回当前用户的配额、实时用量与剩余空间。
func (h *StorageHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.quota.Metrics(r.Context(), middleware.GetOwnerID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metrics)
}
