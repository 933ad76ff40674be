// Package main runs the background job worker (certificate images and email delivery).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nexstream/backend/config"
	"github.com/nexstream/backend/internal/certificates"
	"github.com/nexstream/backend/internal/notify"
	"github.com/nexstream/backend/internal/registrations"
	"github.com/nexstream/backend/internal/worker"
	"github.com/nexstream/backend/pkg/database"
	"github.com/nexstream/backend/pkg/queue"
	"github.com/nexstream/backend/pkg/redis"
	"github.com/nexstream/backend/pkg/storage"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.KeyPrefix, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var objects certificates.ObjectStore
	if cfg.AWS.CertificatesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.CertificatesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		objects = s3Client
	}

	jobQueue := queue.NewQueue(rdb.Client, rdb.Prefix(), logger)
	registrationRepo := registrations.NewRepository(pool)
	certificateSvc := certificates.NewService(certificates.NewRepository(pool), registrationRepo, jobQueue,
		objects, nil, cfg.Certificate, logger)

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.Email.APIKey != "" {
		dispatcher = notify.NewResendDispatcher(cfg.Email.APIKey, cfg.Email.FromName+" <"+cfg.Email.FromAddress+">", logger)
	}
	processor := worker.NewProcessor(jobQueue, certificateSvc, dispatcher, notify.NewRepository(pool), logger)

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

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
