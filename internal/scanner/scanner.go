// Package scanner exposes datasets to relational hosts: column projections,
// dataset statistics and bounded row scans of canonical values.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/duckmesh/arrowscan/internal/columnar"
	"github.com/duckmesh/arrowscan/internal/dataset"
	"github.com/duckmesh/arrowscan/internal/observability"
)

// ErrLimitExceeded is returned when a requested limit is above the configured
// maximum.
var ErrLimitExceeded = errors.New("limit exceeds configured maximum")

// cancellation is checked once per this many emitted rows.
const cancelCheckInterval = 1024

type ColumnInfo struct {
	Name     string `json:"column_name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// TableInfo is the relational projection of a dataset schema. Warnings name
// the columns that are exposed as text.
type TableInfo struct {
	Path     string
	Version  uint64
	Columns  []ColumnInfo
	Warnings []columnar.UnsupportedTypeWarning
}

// ScanOptions narrows a scan. A nil Limit emits every row; a Limit <= 0 emits
// none.
type ScanOptions struct {
	Limit   *int64
	Filter  string
	Columns []string
}

// RowFunc receives one row object. Returning an error stops the scan.
type RowFunc func(row columnar.Value) error

// ScanResult describes a finished ScanEach.
type ScanResult struct {
	Version uint64
	Rows    int64
}

type Options struct {
	Logger *slog.Logger
	// MaxLimit caps the rows of one scan. Zero leaves scans unbounded.
	MaxLimit int64
}

type Service struct {
	provider dataset.Provider
	logger   *slog.Logger
	maxLimit int64
}

func New(provider dataset.Provider, opts Options) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("dataset provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{provider: provider, logger: logger, maxLimit: max(opts.MaxLimit, 0)}, nil
}

func (s *Service) TableInfo(ctx context.Context, path string) (TableInfo, error) {
	h, err := s.provider.Open(ctx, path)
	if err != nil {
		return TableInfo{}, err
	}
	info := TableInfo{Path: h.Path(), Version: h.Version()}
	schema := h.Schema()
	if schema == nil {
		return info, nil
	}
	warn := func(w columnar.UnsupportedTypeWarning) {
		s.logger.WarnContext(ctx, "unsupported column type",
			slog.String("path", h.Path()),
			slog.String("column", w.Column),
			slog.String("arrow_type", w.Type),
		)
		info.Warnings = append(info.Warnings, w)
	}
	info.Columns = make([]ColumnInfo, 0, schema.NumFields())
	for _, field := range schema.Fields() {
		column := columnar.MapField(field, warn)
		info.Columns = append(info.Columns, ColumnInfo{
			Name:     column.Name,
			DataType: column.TypeName(),
			Nullable: column.Nullable,
		})
	}
	observability.AddUnsupportedTypeWarnings(len(info.Warnings))
	return info, nil
}

// TableStats reports the dataset version, its full unfiltered row count and
// its column count. It never depends on any scan's limit or filter.
func (s *Service) TableStats(ctx context.Context, path string) (columnar.TableStats, error) {
	h, err := s.provider.Open(ctx, path)
	if err != nil {
		return columnar.TableStats{}, err
	}
	return columnar.ReadStats(ctx, statsSource{provider: s.provider, handle: h})
}

// Scan collects the rows of a bounded scan. No rows are returned on error.
func (s *Service) Scan(ctx context.Context, path string, opts ScanOptions) ([]columnar.Value, error) {
	var rows []columnar.Value
	_, err := s.ScanEach(ctx, path, opts, func(row columnar.Value) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []columnar.Value{}
	}
	return rows, nil
}

// ScanEach opens path, materialises the selected batches and then hands each
// row object to fn in batch and row order. fn is only called once every batch
// was fetched, so open, filter and fetch failures never follow emitted rows.
func (s *Service) ScanEach(ctx context.Context, path string, opts ScanOptions, fn RowFunc) (ScanResult, error) {
	if fn == nil {
		return ScanResult{}, fmt.Errorf("row func is required")
	}
	start := time.Now()
	limit, err := s.effectiveLimit(opts.Limit)
	if err != nil {
		return ScanResult{}, err
	}

	h, err := s.provider.Open(ctx, path)
	if err != nil {
		observability.ObserveScan(observability.ScanOutcomeOpenFailed, 0, time.Since(start))
		return ScanResult{}, err
	}
	batches, err := s.provider.Scan(ctx, h, dataset.ScanRequest{
		Filter:  opts.Filter,
		Limit:   limit,
		Columns: opts.Columns,
	})
	if err != nil {
		observability.ObserveScan(scanFailureOutcome(err), 0, time.Since(start))
		return ScanResult{}, err
	}
	defer batches.Release()

	placeholders := placeholderColumns(batches.Schema)
	var placeholderCells int64
	it := columnar.NewRowIterator(batches.Records, limit)
	for it.Next() {
		if it.Emitted()%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				observability.ObserveScan(observability.ScanOutcomeFailed, it.Emitted()-1, time.Since(start))
				return ScanResult{}, err
			}
		}
		ref := it.Row()
		for _, column := range placeholders {
			if !ref.Batch.Column(column).IsNull(ref.Row) {
				placeholderCells++
			}
		}
		if err := fn(columnar.ConvertRow(ref.Batch, ref.Row)); err != nil {
			observability.ObserveScan(observability.ScanOutcomeFailed, it.Emitted()-1, time.Since(start))
			return ScanResult{}, err
		}
	}

	result := ScanResult{Version: h.Version(), Rows: it.Emitted()}
	observability.ObserveScan(observability.ScanOutcomeOK, result.Rows, time.Since(start))
	observability.AddPlaceholderConversions(placeholderCells)
	s.logger.DebugContext(ctx, "scan completed",
		slog.String("path", h.Path()),
		slog.Uint64("version", result.Version),
		slog.Int64("rows", result.Rows),
		slog.Int("files", batches.FetchedFiles),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (s *Service) effectiveLimit(requested *int64) (*int64, error) {
	if s.maxLimit == 0 {
		return requested, nil
	}
	if requested == nil {
		limit := s.maxLimit
		return &limit, nil
	}
	if *requested > s.maxLimit {
		return nil, fmt.Errorf("%w: %d > %d", ErrLimitExceeded, *requested, s.maxLimit)
	}
	return requested, nil
}

func scanFailureOutcome(err error) string {
	switch dataset.KindOf(err) {
	case dataset.ErrOpen:
		return observability.ScanOutcomeOpenFailed
	case dataset.ErrFilterSyntax:
		return observability.ScanOutcomeFilterSyntax
	default:
		return observability.ScanOutcomeFailed
	}
}

func placeholderColumns(schema *arrow.Schema) []int {
	if schema == nil {
		return nil
	}
	var out []int
	for i, field := range schema.Fields() {
		if !columnar.HasConversion(field.Type) {
			out = append(out, i)
		}
	}
	return out
}

type statsSource struct {
	provider dataset.Provider
	handle   *dataset.Handle
}

func (s statsSource) Schema() *arrow.Schema { return s.handle.Schema() }
func (s statsSource) Version() uint64       { return s.handle.Version() }

func (s statsSource) CountRows(ctx context.Context) (uint64, error) {
	stats, err := s.provider.Stats(ctx, s.handle)
	if err != nil {
		return 0, err
	}
	return stats.RowCount, nil
}
