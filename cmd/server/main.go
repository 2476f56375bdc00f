// Package main runs the video pipeline HTTP server with WebSocket fan-out,
// an embedded processing worker and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clipstream/backend/config"
	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/middleware"
	"github.com/clipstream/backend/internal/processing"
	"github.com/clipstream/backend/internal/realtime"
	"github.com/clipstream/backend/internal/videos"
	"github.com/clipstream/backend/internal/worker"
	"github.com/clipstream/backend/pkg/database"
	"github.com/clipstream/backend/pkg/queue"
	"github.com/clipstream/backend/pkg/redis"
	"github.com/clipstream/backend/pkg/response"
	"github.com/clipstream/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub, pubsub)

	videoRepo := videos.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	orchestrator := processing.NewOrchestrator(
		videoRepo,
		store,
		processing.NewFFProbeExtractor(),
		processing.NewKeywordClassifier(time.Duration(cfg.Processing.ClassifierDelayMs)*time.Millisecond),
		hub,
		processing.Timeouts{
			Extract:  time.Duration(cfg.Processing.ExtractTimeoutSec) * time.Second,
			Classify: time.Duration(cfg.Processing.ClassifyTimeoutSec) * time.Second,
		},
		logger,
	)
	videoProcessor := worker.NewProcessor(orchestrator, jobQueue, logger)

	videoHandler := videos.NewHandler(videoRepo, store, jobQueue, cfg.Upload.MaxBytes, cfg.Upload.AllowedTypes, logger)

	jwtValidate := func(token string) (userID uuid.UUID, tenant, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", "", err
		}
		return claims.UserID, claims.Tenant, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (JWT required; token also accepted via query for players)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/videos", middleware.RequireRole(auth.RoleEditor, auth.RoleAdmin), videoHandler.Upload)
		api.GET("/videos/:id", videoHandler.GetByID)
		api.GET("/videos/:id/stream", videoHandler.Stream)
		api.DELETE("/videos/:id", middleware.RequireRole(auth.RoleEditor, auth.RoleAdmin), videoHandler.Delete)
	}

	// WebSocket (token in query; authenticated before any scope join)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Embedded processing worker; cmd/worker runs the same loop standalone.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go videoProcessor.Run(workerCtx)
	logger.Info("processing worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	if cfg.Storage.Backend == "s3" {
		return storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.Storage.Region,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
		}, logger)
	}
	return storage.NewLocal(cfg.Storage.LocalDir, logger)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
