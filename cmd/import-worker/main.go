package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaic-archive/mosaic/pkg/common/config"
	"github.com/mosaic-archive/mosaic/pkg/common/database"
	"github.com/mosaic-archive/mosaic/pkg/common/kafka"
	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/ingest"
	"github.com/mosaic-archive/mosaic/pkg/ingest/hooks"
	"github.com/mosaic-archive/mosaic/pkg/ingest/jobs"
	"github.com/mosaic-archive/mosaic/pkg/ingest/store"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := store.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate import tables")
	}

	registry := ingest.NewRegistry()
	if cfg.DetectionRulesPath != "" {
		rules, err := ingest.LoadDetectionRules(cfg.DetectionRulesPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load detection rules")
		}
		registry.ApplyRules(rules)
	}

	hookRegistry := hooks.NewRegistry()
	hookRegistry.Register(hooks.LoggingHook{})

	producer := kafka.NewProducer(cfg.ImportJobsTopic)
	defer producer.Close()

	dlqProducer := kafka.NewProducer(cfg.ImportJobsDLQTopic)
	defer dlqProducer.Close()

	redisClient := database.GetRedis()
	defer database.CloseRedis()

	worker := jobs.NewWorker(repo, registry, hookRegistry, producer, dlqProducer,
		jobs.WithRetryPolicy(cfg.ImportMaxRetries, cfg.ImportRetryBackoff, cfg.ImportRetryMax),
		jobs.WithRunStatePublishing(redisClient, cfg.RunStateTTL),
		jobs.WithCoordinatorOptions(
			ingest.WithBatchSize(cfg.IngestBatchSize),
			ingest.WithProgressFlushEvery(cfg.ProgressFlushEvery),
		),
	)

	consumer := kafka.NewConsumer(cfg.ImportJobsTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Log.WithField("topic", cfg.ImportJobsTopic).Info("Import Worker started")
		if err := consumer.ConsumeAck(ctx, worker.Handle); err != nil && err != context.Canceled {
			logger.Log.WithError(err).Fatal("Consumer error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Import Worker...")
	cancel()

	logger.Log.Info("Import Worker stopped")
}
