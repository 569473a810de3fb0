// Package postgres materialises scan output into a Postgres table with one
// jsonb row_data column per row, recording every run in arrowscan_export_run.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duckmesh/arrowscan/internal/columnar"
	"github.com/duckmesh/arrowscan/internal/observability"
	"github.com/duckmesh/arrowscan/internal/scanner"
)

const defaultBatchSize = 500

var ErrInvalidTarget = errors.New("invalid target table")

// RowSource is the subset of scanner.Service the exporter reads from.
type RowSource interface {
	ScanEach(ctx context.Context, path string, opts scanner.ScanOptions, fn scanner.RowFunc) (scanner.ScanResult, error)
}

type Options struct {
	BatchSize int
	Logger    *slog.Logger
}

type Request struct {
	DatasetPath string
	// TargetTable is a table name, optionally schema qualified as schema.table.
	TargetTable string
	Filter      string
	Columns     []string
	Limit       *int64
}

type Result struct {
	RunID          uuid.UUID
	DatasetVersion uint64
	Rows           int64
}

type Exporter struct {
	db        *sql.DB
	source    RowSource
	batchSize int
	logger    *slog.Logger
}

func NewExporter(db *sql.DB, source RowSource, opts Options) (*Exporter, error) {
	if db == nil {
		return nil, fmt.Errorf("export db is required")
	}
	if source == nil {
		return nil, fmt.Errorf("row source is required")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Exporter{db: db, source: source, batchSize: batchSize, logger: logger}, nil
}

// Export copies the scan of req.DatasetPath into req.TargetTable inside one
// transaction. The run row is written before the transaction starts so a
// failed export stays visible with its error message.
func (e *Exporter) Export(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.DatasetPath) == "" {
		return Result{}, fmt.Errorf("dataset path is required")
	}
	target, err := ParseIdentifier(req.TargetTable)
	if err != nil {
		return Result{}, err
	}

	runID := uuid.New()
	if _, err := e.db.ExecContext(ctx, `
INSERT INTO arrowscan_export_run (run_id, dataset_path, target_table, filter_expr, state)
VALUES ($1, $2, $3, $4, 'running')`,
		runID.String(), req.DatasetPath, target.Sanitize(), req.Filter,
	); err != nil {
		return Result{}, fmt.Errorf("record export run: %w", err)
	}

	logger := e.logger.With(
		slog.String("run_id", runID.String()),
		slog.String("dataset_path", req.DatasetPath),
		slog.String("target_table", target.Sanitize()),
	)
	scan, err := e.copyRows(ctx, target, req)
	if err != nil {
		if markErr := e.markFailed(context.WithoutCancel(ctx), runID, err); markErr != nil {
			logger.Error("failed to record export failure", slog.Any("error", markErr))
		}
		logger.Warn("export failed", slog.Any("error", err))
		return Result{RunID: runID}, err
	}

	if _, err := e.db.ExecContext(ctx, `
UPDATE arrowscan_export_run
SET state = 'succeeded', dataset_version = $2, row_count = $3, finished_at = NOW()
WHERE run_id = $1`,
		runID.String(), int64(scan.Version), scan.Rows,
	); err != nil {
		return Result{RunID: runID}, fmt.Errorf("finish export run: %w", err)
	}
	observability.AddExportRows(scan.Rows)
	logger.Info("export finished",
		slog.Uint64("dataset_version", scan.Version),
		slog.Int64("rows", scan.Rows),
	)
	return Result{RunID: runID, DatasetVersion: scan.Version, Rows: scan.Rows}, nil
}

func (e *Exporter) copyRows(ctx context.Context, target pgx.Identifier, req Request) (scanner.ScanResult, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return scanner.ScanResult{}, fmt.Errorf("begin export tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	table := target.Sanitize()
	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+table+" (row_data jsonb NOT NULL)"); err != nil {
		return scanner.ScanResult{}, fmt.Errorf("create target table: %w", err)
	}

	batch := make([]any, 0, e.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, insertStatement(table, len(batch)), batch...); err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	scan, err := e.source.ScanEach(ctx, req.DatasetPath, scanner.ScanOptions{
		Limit:   req.Limit,
		Filter:  req.Filter,
		Columns: req.Columns,
	}, func(row columnar.Value) error {
		data, err := row.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
		batch = append(batch, string(data))
		if len(batch) == e.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return scanner.ScanResult{}, err
	}
	if err := flush(); err != nil {
		return scanner.ScanResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return scanner.ScanResult{}, fmt.Errorf("commit export tx: %w", err)
	}
	return scan, nil
}

func (e *Exporter) markFailed(ctx context.Context, runID uuid.UUID, cause error) error {
	_, err := e.db.ExecContext(ctx, `
UPDATE arrowscan_export_run
SET state = 'failed', error_message = $2, finished_at = NOW()
WHERE run_id = $1`,
		runID.String(), cause.Error(),
	)
	return err
}

func insertStatement(table string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (row_data) VALUES ")
	for i := 1; i <= rows; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		b.WriteString("($")
		b.WriteString(strconv.Itoa(i))
		b.WriteString("::jsonb)")
	}
	return b.String()
}

// ParseIdentifier splits a possibly schema qualified table name into a
// quotable identifier.
func ParseIdentifier(name string) (pgx.Identifier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidTarget)
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("%w: %q has more than one schema qualifier", ErrInvalidTarget, name)
	}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return nil, fmt.Errorf("%w: %q has an empty name part", ErrInvalidTarget, name)
		}
	}
	return pgx.Identifier(parts), nil
}
