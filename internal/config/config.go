package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 与历史部署保持一致的默认值。
const (
	DefaultStorageQuotaBytes int64 = 100 * 1024 * 1024 // 每用户 100MB
	DefaultMaxFileSizeBytes  int64 = 200 * 1024        // 单文件 200KB
	DefaultMaxFilesPerUpload       = 10
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string
	LogLevel           string
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// 对象存储（S3/MinIO）
	S3Endpoint  string // 不含协议
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool

	// 会话令牌
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration
	// 可选：外部身份源签发的令牌通过 JWKS 验证
	JWKSURL string

	// 上传与配额
	StorageQuotaBytes int64
	MaxFileSizeBytes  int64
	MaxFilesPerUpload int
	AllowedMimeTypes  []string

	// 签名链接有效期：默认值用于即取即用的场景，列表/打包下载用长效值
	PresignDefaultTTL  time.Duration
	PresignExtendedTTL time.Duration

	ZipCompressionLevel int
}

// Load 从环境变量加载配置，并提供默认值。存在 .env 时先行载入。
func Load() (*Config, error) {
	_ = godotenv.Load()

	rateLimitRequests, err := parseIntEnv("RATE_LIMIT_REQUESTS", 60)
	if err != nil {
		return nil, err
	}
	rateLimitWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	jwtTTL, err := parseDurationEnv("JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	quota, err := parseInt64Env("STORAGE_QUOTA_BYTES", DefaultStorageQuotaBytes)
	if err != nil {
		return nil, err
	}
	maxFileSize, err := parseInt64Env("MAX_FILE_SIZE_BYTES", DefaultMaxFileSizeBytes)
	if err != nil {
		return nil, err
	}
	maxFiles, err := parseIntEnv("MAX_FILES_PER_UPLOAD", DefaultMaxFilesPerUpload)
	if err != nil {
		return nil, err
	}

	presignDefault, err := parseDurationEnv("PRESIGN_DEFAULT_TTL", time.Minute)
	if err != nil {
		return nil, err
	}
	presignExtended, err := parseDurationEnv("PRESIGN_EXTENDED_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	zipLevel, err := parseIntEnv("ZIP_COMPRESSION_LEVEL", 6)
	if err != nil {
		return nil, err
	}
	if zipLevel < 1 || zipLevel > 9 {
		return nil, fmt.Errorf("ZIP_COMPRESSION_LEVEL 必须在 1-9 之间，当前为 %d", zipLevel)
	}

	corsOrigins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}

	mimeTypes := parseList(os.Getenv("ALLOWED_MIME_TYPES"))
	if len(mimeTypes) == 0 {
		mimeTypes = defaultAllowedMimeTypes()
	}

	return &Config{
		HTTPPort:            envOrDefault("PORT", "8080"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		CORSAllowedOrigins:  corsOrigins,
		RateLimitRequests:   rateLimitRequests,
		RateLimitWindow:     rateLimitWindow,
		DBHost:              envOrDefault("DB_HOST", "127.0.0.1"),
		DBPort:              dbPort,
		DBUser:              envOrDefault("DB_USER", "uploadnest"),
		DBPassword:          envOrDefault("DB_PASSWORD", "uploadnest"),
		DBName:              envOrDefault("DB_NAME", "uploadnest"),
		DBSSLMode:           envOrDefault("DB_SSL_MODE", "disable"),
		S3Endpoint:          envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:         envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:         envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:            envOrDefault("S3_BUCKET", "uploadnest"),
		S3Region:            envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:            parseBoolEnv("S3_USE_SSL", false),
		JWTSecret:           envOrDefault("JWT_SECRET", "dev-jwt-secret"),
		JWTIssuer:           envOrDefault("JWT_ISSUER", "uploadnest"),
		JWTAudience:         envOrDefault("JWT_AUDIENCE", "uploadnest-web"),
		JWTTTL:              jwtTTL,
		JWKSURL:             os.Getenv("JWKS_URL"),
		StorageQuotaBytes:   quota,
		MaxFileSizeBytes:    maxFileSize,
		MaxFilesPerUpload:   maxFiles,
		AllowedMimeTypes:    mimeTypes,
		PresignDefaultTTL:   presignDefault,
		PresignExtendedTTL:  presignExtended,
		ZipCompressionLevel: zipLevel,
	}, nil
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func defaultAllowedMimeTypes() []string {
	return []string{
		// 图片
		"image/jpeg",
		"image/png",
		"image/webp",
		"image/svg+xml",
		"image/gif",
		// 文档
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		// 文本
		"text/plain",
		"text/csv",
		// 压缩包
		"application/zip",
		"application/x-zip-compressed",
		"application/x-tar",
		// 音视频
		"audio/wav",
		"audio/webm",
		"video/mp4",
		"video/webm",
	}
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseInt64Env(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes"
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
