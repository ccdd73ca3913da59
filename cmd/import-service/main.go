package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mosaic-archive/mosaic/pkg/common/config"
	"github.com/mosaic-archive/mosaic/pkg/common/database"
	"github.com/mosaic-archive/mosaic/pkg/common/kafka"
	"github.com/mosaic-archive/mosaic/pkg/common/logger"
	"github.com/mosaic-archive/mosaic/pkg/ingest"
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

	producer := kafka.NewProducer(cfg.ImportJobsTopic)
	defer producer.Close()

	redisClient := database.GetRedis()
	defer database.CloseRedis()

	svc := jobs.NewService(repo, producer)
	handler := jobs.NewHTTPHandler(svc, registry, redisClient, cfg.MaxRequestBody)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Import Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Import Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Import Service stopped")
}
