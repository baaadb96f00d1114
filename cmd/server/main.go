package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uploadnest/internal/api"
	"uploadnest/internal/config"
	"uploadnest/internal/database"
	"uploadnest/internal/logging"
	"uploadnest/internal/middleware"
	"uploadnest/internal/migrations"
	"uploadnest/internal/repository/postgres"
	"uploadnest/internal/service"
	"uploadnest/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("配置加载完成，开始启动服务")

	ctx := context.Background()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Error("数据库连接失败", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db); err != nil {
		logger.Error("数据库迁移失败", "err", err)
		os.Exit(1)
	}

	store, err := s3.New(ctx, s3.Config{
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		Bucket:     cfg.S3Bucket,
		Region:     cfg.S3Region,
		UseSSL:     cfg.S3UseSSL,
		DefaultTTL: cfg.PresignDefaultTTL,
	}, logger)
	if err != nil {
		logger.Error("对象存储初始化失败", "err", err)
		os.Exit(1)
	}

	fileRepo := postgres.NewFileRepository(db)
	userRepo := postgres.NewUserRepository(db)
	accountRepo := postgres.NewStorageAccountRepository(db)
	apiKeyRepo := postgres.NewAPIKeyRepository(db)

	authService := service.NewAuthService(userRepo, service.AuthConfig{
		JWTSecret:         cfg.JWTSecret,
		JWTIssuer:         cfg.JWTIssuer,
		JWTAudience:       cfg.JWTAudience,
		JWTTTL:            cfg.JWTTTL,
		StorageQuotaBytes: cfg.StorageQuotaBytes,
	}, logger)
	quotaService := service.NewQuotaService(accountRepo, fileRepo, logger)
	fileService := service.NewFileService(fileRepo, userRepo, store, logger, service.FileServiceOptions{
		ZipCompressionLevel: cfg.ZipCompressionLevel,
		LinkTTL:             cfg.PresignExtendedTTL,
	})
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, logger)

	authn := middleware.Auth(middleware.AuthConfig{
		JWTSecret:   cfg.JWTSecret,
		JWTIssuer:   cfg.JWTIssuer,
		JWTAudience: cfg.JWTAudience,
		JWKSURL:     cfg.JWKSURL,
	}, apiKeyService, logger)

	router := api.NewRouter(cfg, api.Handlers{
		Auth: api.NewAuthHandler(authService),
		Files: api.NewFileHandler(fileService, quotaService, api.UploadLimits{
			MaxFileSizeBytes:  cfg.MaxFileSizeBytes,
			MaxFilesPerUpload: cfg.MaxFilesPerUpload,
			AllowedMimeTypes:  cfg.AllowedMimeTypes,
		}),
		APIKeys: api.NewAPIKeyHandler(apiKeyService),
		Storage: api.NewStorageHandler(quotaService),
	}, authn)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      router,
	}

	logger.Info("服务开始监听", "port", cfg.HTTPPort)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("监听失败", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("优雅关闭失败", "err", err)
	}

	logger.Info("服务已停止")
}
