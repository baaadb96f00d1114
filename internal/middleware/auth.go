package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"uploadnest/internal/repository"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerContextKey 是存储在 context 中的属主 id 的键。
type OwnerContextKey struct{}

// UploadSourceContextKey 标记请求经由哪种凭证进入（WEB 会话或 API 密钥）。
type UploadSourceContextKey struct{}

// APIKeyAuthenticator 用原始密钥换取属主 id。
type APIKeyAuthenticator interface {
	Authenticate(ctx context.Context, rawKey string) (string, error)
}

// AuthConfig 是鉴权中间件的验签参数。
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	// 可选：配置后，非 HMAC 签名的令牌改用该 JWKS 验签（外部身份源）
	JWKSURL string
}

// Auth 创建统一鉴权中间件，按 Authorization 前缀分流：
//
//	Bearer <token>  会话 JWT，本地 HMAC 验签，必要时回退 JWKS
//	ApiKey <key>    编程访问密钥，哈希后查库
//
// 验证通过后将属主 id 与上传来源写入 context。
func Auth(cfg AuthConfig, apiKeys APIKeyAuthenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	var jwks *keyfunc.JWKS
	if cfg.JWKSURL != "" {
		var err error
		jwks, err = keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				logger.Error("JWKS 刷新失败", "url", cfg.JWKSURL, "err", err)
			},
		})
		if err != nil {
			// JWKS 不可用不阻止启动，HMAC 会话令牌仍然可用
			logger.Warn("JWKS 初始化失败，仅支持本地 HMAC 验签", "url", cfg.JWKSURL, "err", err)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing Authorization header")
				return
			}

			switch {
			case strings.HasPrefix(authHeader, "Bearer "):
				tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
				if tokenString == "" {
					writeAuthError(w, "empty token")
					return
				}

				ownerID, err := verifyToken(tokenString, cfg, jwks)
				if err != nil {
					logger.Debug("令牌验证失败", "err", err)
					writeAuthError(w, "invalid or expired token")
					return
				}
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ownerID, repository.UploadSourceWeb)))

			case strings.HasPrefix(authHeader, "ApiKey "):
				rawKey := strings.TrimSpace(strings.TrimPrefix(authHeader, "ApiKey "))
				if rawKey == "" || apiKeys == nil {
					writeAuthError(w, "empty API key")
					return
				}

				ownerID, err := apiKeys.Authenticate(r.Context(), rawKey)
				if err != nil {
					writeAuthError(w, "invalid API key")
					return
				}
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ownerID, repository.UploadSourceAPI)))

			default:
				writeAuthError(w, "invalid Authorization format, expected: Bearer <token> or ApiKey <key>")
			}
		})
	}
}

func verifyToken(tokenString string, cfg AuthConfig, jwks *keyfunc.JWKS) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return []byte(cfg.JWTSecret), nil
		}
		if jwks != nil {
			return jwks.Keyfunc(token)
		}
		return nil, fmt.Errorf("unsupported signing method %v", token.Header["alg"])
	},
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithAudience(cfg.JWTAudience),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token invalid")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return sub, nil
}

func withIdentity(ctx context.Context, ownerID string, source repository.UploadSource) context.Context {
	ctx = context.WithValue(ctx, OwnerContextKey{}, ownerID)
	return context.WithValue(ctx, UploadSourceContextKey{}, source)
}

// GetOwnerID 从 context 中获取经过鉴权的属主 id。
func GetOwnerID(ctx context.Context) string {
	if v, ok := ctx.Value(OwnerContextKey{}).(string); ok {
		return v
	}
	return ""
}

// GetUploadSource 返回请求的凭证来源，未标记时按 WEB 处理。
func GetUploadSource(ctx context.Context) repository.UploadSource {
	if v, ok := ctx.Value(UploadSourceContextKey{}).(repository.UploadSource); ok {
		return v
	}
	return repository.UploadSourceWeb
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="uploadnest API"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"statusCode": http.StatusUnauthorized,
		"message":    message,
		"errorCode":  "ACCESS_UNAUTHORIZED",
		"success":    false,
	})
}
