package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duckmesh/arrowscan/internal/config"
	"github.com/duckmesh/arrowscan/internal/dataset"
	"github.com/duckmesh/arrowscan/internal/export/postgres"
	"github.com/duckmesh/arrowscan/internal/observability"
	"github.com/duckmesh/arrowscan/internal/scanner"
	"github.com/duckmesh/arrowscan/internal/storage/backend"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		filter  string
		columns string
		limit   int64
	)
	cmd := &cobra.Command{
		Use:          "arrowscan-export <dataset-path> <target-table>",
		Short:        "Copy a dataset scan into a Postgres jsonb table",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := postgres.Request{
				DatasetPath: args[0],
				TargetTable: args[1],
				Filter:      strings.TrimSpace(filter),
			}
			for _, column := range strings.Split(columns, ",") {
				if column = strings.TrimSpace(column); column != "" {
					req.Columns = append(req.Columns, column)
				}
			}
			if cmd.Flags().Changed("limit") {
				req.Limit = &limit
			}
			return run(cmd.Context(), req)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "row filter expression")
	cmd.Flags().StringVar(&columns, "columns", "", "comma separated projection")
	cmd.Flags().Int64Var(&limit, "limit", 0, "maximum number of rows to export")
	return cmd
}

func run(ctx context.Context, req postgres.Request) error {
	cfg, err := config.LoadFromEnv("arrowscan-export")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	store, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		return err
	}
	provider, err := dataset.NewService(store, dataset.Options{
		BatchSize:        cfg.Scan.BatchSize,
		FetchConcurrency: cfg.Scan.FetchConcurrency,
		TempDir:          cfg.Scan.TempDir,
		Logger:           logger,
	})
	if err != nil {
		logger.Error("failed to initialize dataset provider", slog.Any("error", err))
		return err
	}
	// Exports are bounded by the caller's --limit only.
	tableScanner, err := scanner.New(provider, scanner.Options{Logger: logger})
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, postgres.DBConfigFrom(cfg.Export))
	if err != nil {
		logger.Error("failed to open export database", slog.Any("error", err))
		return err
	}
	defer func() { _ = db.Close() }()

	exporter, err := postgres.NewExporter(db, tableScanner, postgres.Options{
		BatchSize: cfg.Export.InsertBatchSize,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	result, err := exporter.Export(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run %s exported %d row(s) from version %d\n", result.RunID, result.Rows, result.DatasetVersion)
	return nil
}
