package api

import (
	"net/http"
	"strconv"

	"uploadnest/internal/apperror"
	"uploadnest/internal/middleware"
	"uploadnest/internal/repository"
	"uploadnest/internal/service"

	"github.com/go-chi/chi/v5"
)

// APIKeyHandler 提供编程访问密钥的管理端点。
type APIKeyHandler struct {
	keys *service.APIKeyService
}

func NewAPIKeyHandler(keys *service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{keys: keys}
}

func (h *APIKeyHandler) RegisterRoutes(r chi.Router) {
	r.Route("/apikeys", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Delete("/{id}", h.Delete)
	})
}

type createAPIKeyRequest struct {
	Name string `json:"name"`
}

// Create 签发新密钥。原始密钥只在本次响应中返回一次。
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperror.BadRequest("Invalid request body"))
		return
	}

	created, err := h.keys.Create(r.Context(), middleware.GetOwnerID(r.Context()), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// List 分页列出当前用户的密钥。
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := repository.ListAPIKeysParams{}
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

	result, err := h.keys.List(r.Context(), middleware.GetOwnerID(r.Context()), params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Delete 删除当前用户的指定密钥。
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, apperror.BadRequest("API key id is required"))
		return
	}

	if err := h.keys.Delete(r.Context(), middleware.GetOwnerID(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
