package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/duckmesh/arrowscan/internal/api"
	"github.com/duckmesh/arrowscan/internal/auth"
	"github.com/duckmesh/arrowscan/internal/config"
	"github.com/duckmesh/arrowscan/internal/dataset"
	"github.com/duckmesh/arrowscan/internal/observability"
	"github.com/duckmesh/arrowscan/internal/scanner"
	"github.com/duckmesh/arrowscan/internal/storage/backend"
)

func main() {
	cfg, err := config.LoadFromEnv("arrowscan-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	objectStore, err := backend.Open(context.Background(), cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	provider, err := dataset.NewService(objectStore, dataset.Options{
		BatchSize:        cfg.Scan.BatchSize,
		FetchConcurrency: cfg.Scan.FetchConcurrency,
		TempDir:          cfg.Scan.TempDir,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to initialize dataset provider", slog.Any("error", err))
		os.Exit(1)
	}
	tableScanner, err := scanner.New(provider, scanner.Options{Logger: logger, MaxLimit: cfg.Scan.MaxLimit})
	if err != nil {
		logger.Error("failed to initialize scanner", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:  logger,
		Scanner: tableScanner,
		Readiness: api.CombineReadinessChecks(
			api.CheckStorageConfig(cfg),
			api.CheckObjectStore(objectStore),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Warn("auth is required but no static keys are configured; every table request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator, auth.RoleReader)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("storage_backend", string(cfg.Storage.Backend)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
