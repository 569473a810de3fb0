package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/duckmesh/arrowscan/internal/config"
	"github.com/duckmesh/arrowscan/internal/observability"
	"github.com/duckmesh/arrowscan/internal/seed"
	"github.com/duckmesh/arrowscan/internal/storage/backend"
)

func main() {
	prefix := flag.String("prefix", "", "dataset path prefix")
	only := flag.String("tables", "", "comma separated subset of "+strings.Join(seed.Names, ","))
	flag.Parse()

	cfg, err := config.LoadFromEnv("arrowscan-seed")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}
	seeder, err := seed.New(store, seed.Options{Prefix: *prefix, Logger: logger})
	if err != nil {
		logger.Error("failed to initialize seeder", slog.Any("error", err))
		os.Exit(1)
	}

	if strings.TrimSpace(*only) == "" {
		if _, err := seeder.SeedAll(ctx); err != nil {
			logger.Error("seeding failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}
	for _, name := range strings.Split(*only, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		if _, err := seeder.Seed(ctx, name); err != nil {
			logger.Error("seeding failed", slog.String("table", name), slog.Any("error", err))
			os.Exit(1)
		}
	}
}
