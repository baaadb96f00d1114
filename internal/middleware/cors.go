package middleware

import (
	"net/http"
	"strings"
)

const corsMaxAgeSeconds = "600"

// CORS 按来源白名单放行跨域请求，"*" 表示放行一切来源。
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	wildcard := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			wildcard = true
		default:
			allowed[origin] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			grant := ""
			switch {
			case origin == "":
			case wildcard:
				grant = "*"
			default:
				if _, ok := allowed[origin]; ok {
					grant = origin
				}
			}

			if grant != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", grant)
				h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				h.Set("Access-Control-Max-Age", corsMaxAgeSeconds)
				if grant != "*" {
					// 具名来源才能携带凭证
					h.Add("Vary", "Origin")
					h.Set("Access-Control-Allow-Credentials", "true")
				}

				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
