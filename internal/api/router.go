package api

import (
	"net/http"

	"uploadnest/internal/config"
	unmiddleware "uploadnest/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 汇集路由注册所需的全部处理器。
type Handlers struct {
	Auth    *AuthHandler
	Files   *FileHandler
	APIKeys *APIKeyHandler
	Storage *StorageHandler
}

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(cfg *config.Config, handlers Handlers, authn func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(unmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(unmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	r.Use(unmiddleware.Metrics())

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	// 公开文件访问同时暴露在根路径，供分享链接直接使用
	handlers.Files.RegisterPublicRoutes(r)

	r.Route("/api", func(r chi.Router) {
		// 注册、登录与公开文件访问无需鉴权
		handlers.Auth.RegisterRoutes(r)
		handlers.Files.RegisterPublicRoutes(r)

		// 其余端点统一经过鉴权
		r.Group(func(r chi.Router) {
			r.Use(authn)
			handlers.Files.RegisterRoutes(r)
			handlers.APIKeys.RegisterRoutes(r)
			handlers.Storage.RegisterRoutes(r)
		})
	})

	return r
}
