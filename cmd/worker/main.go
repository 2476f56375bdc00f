// Package main runs the standalone processing worker. Progress events are
// published over Redis so server instances fan them out to their
// subscribers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/clipstream/backend/config"
	"github.com/clipstream/backend/internal/processing"
	"github.com/clipstream/backend/internal/realtime"
	"github.com/clipstream/backend/internal/videos"
	"github.com/clipstream/backend/internal/worker"
	"github.com/clipstream/backend/pkg/database"
	"github.com/clipstream/backend/pkg/queue"
	"github.com/clipstream/backend/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}

	videoRepo := videos.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	publisher := realtime.NewRedisPubSub(rdb.Client, logger)

	orchestrator := processing.NewOrchestrator(
		videoRepo,
		store,
		processing.NewFFProbeExtractor(),
		processing.NewKeywordClassifier(time.Duration(cfg.Processing.ClassifierDelayMs)*time.Millisecond),
		publisher,
		processing.Timeouts{
			Extract:  time.Duration(cfg.Processing.ExtractTimeoutSec) * time.Second,
			Classify: time.Duration(cfg.Processing.ClassifyTimeoutSec) * time.Second,
		},
		logger,
	)
	processor := worker.NewProcessor(orchestrator, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
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
