// Package dataset reads versioned parquet datasets from an object store and
// hands them out as Arrow schemas and record batches.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/duckmesh/arrowscan/internal/observability"
	"github.com/duckmesh/arrowscan/internal/storage"
)

const (
	DefaultBatchSize        = 1024
	DefaultFetchConcurrency = 4
)

type Provider interface {
	Open(ctx context.Context, path string) (*Handle, error)
	Scan(ctx context.Context, h *Handle, req ScanRequest) (*Batches, error)
	Stats(ctx context.Context, h *Handle) (Stats, error)
}

// Handle pins one dataset version and its schema.
type Handle struct {
	path     string
	manifest Manifest
	schema   *arrow.Schema
}

func NewHandle(path string, manifest Manifest, schema *arrow.Schema) *Handle {
	return &Handle{path: path, manifest: manifest, schema: schema}
}

func (h *Handle) Path() string          { return h.path }
func (h *Handle) Schema() *arrow.Schema { return h.schema }
func (h *Handle) Version() uint64       { return h.manifest.Version }
func (h *Handle) Manifest() Manifest    { return h.manifest }

// ScanRequest narrows a scan. Filter is a SQL boolean expression over the
// dataset columns; Columns projects by name in the given order.
type ScanRequest struct {
	Filter  string
	Limit   *int64
	Columns []string
}

// Batches is the materialised result of one scan. Release must be called once
// the records are no longer used.
type Batches struct {
	Schema       *arrow.Schema
	Records      []arrow.Record
	FetchedFiles int
	FetchedBytes int64
}

func (b *Batches) NumRows() int64 {
	var total int64
	for _, rec := range b.Records {
		total += rec.NumRows()
	}
	return total
}

func (b *Batches) Release() {
	if b == nil {
		return
	}
	releaseAll(b.Records)
	b.Records = nil
}

type Stats struct {
	Version  uint64
	RowCount uint64
}

type Options struct {
	Allocator        memory.Allocator
	BatchSize        int
	FetchConcurrency int
	TempDir          string
	Logger           *slog.Logger
}

// Service is a Provider over datasets stored in an ObjectStore.
type Service struct {
	store       storage.ObjectStore
	mem         memory.Allocator
	batchSize   int
	concurrency int
	tempDir     string
	logger      *slog.Logger
}

func NewService(store storage.ObjectStore, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	s := &Service{
		store:       store,
		mem:         opts.Allocator,
		batchSize:   opts.BatchSize,
		concurrency: opts.FetchConcurrency,
		tempDir:     opts.TempDir,
		logger:      opts.Logger,
	}
	if s.mem == nil {
		s.mem = memory.DefaultAllocator
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultFetchConcurrency
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s, nil
}

func (s *Service) Open(ctx context.Context, path string) (*Handle, error) {
	cleaned, err := storage.CleanDatasetPath(path)
	if err != nil {
		return nil, newError("open", path, ErrOpen, err)
	}
	manifest, err := loadLatestManifest(ctx, s.store, cleaned)
	if err != nil {
		return nil, newError("open", cleaned, ErrOpen, err)
	}
	if len(manifest.Files) == 0 {
		return nil, newError("open", cleaned, ErrOpen, fmt.Errorf("version %d has no data files", manifest.Version))
	}
	data, err := s.fetch(ctx, cleaned, manifest.Files[0])
	if err != nil {
		return nil, newError("open", cleaned, ErrOpen, err)
	}
	schema, err := readSchema(data, s.mem)
	if err != nil {
		return nil, newError("open", cleaned, ErrOpen, err)
	}
	s.logger.DebugContext(ctx, "dataset opened",
		slog.String("path", cleaned),
		slog.Uint64("version", manifest.Version),
		slog.Int("files", len(manifest.Files)),
		slog.Int("columns", schema.NumFields()),
	)
	return &Handle{path: cleaned, manifest: manifest, schema: schema}, nil
}

func (s *Service) Stats(_ context.Context, h *Handle) (Stats, error) {
	if h == nil {
		return Stats{}, newError("stats", "", ErrInternal, fmt.Errorf("dataset handle is required"))
	}
	return Stats{Version: h.manifest.Version, RowCount: h.manifest.RowCount()}, nil
}

func (s *Service) Scan(ctx context.Context, h *Handle, req ScanRequest) (*Batches, error) {
	if h == nil {
		return nil, newError("scan", "", ErrInternal, fmt.Errorf("dataset handle is required"))
	}
	projected, indices, err := projectSchema(h.schema, req.Columns)
	if err != nil {
		return nil, newError("scan", h.path, ErrInvalidColumn, err)
	}

	limit := int64(-1)
	if req.Limit != nil {
		limit = max(*req.Limit, 0)
	}
	if limit == 0 {
		return &Batches{Schema: projected}, nil
	}

	start := time.Now()
	var batches *Batches
	if filter := strings.TrimSpace(req.Filter); filter != "" {
		batches, err = s.scanFiltered(ctx, h, filter, limit)
	} else {
		batches, err = s.scanAll(ctx, h, limit)
	}
	if err != nil {
		var dsErr *Error
		if errors.As(err, &dsErr) {
			return nil, err
		}
		return nil, newError("scan", h.path, ErrInternal, err)
	}

	batches.Records = truncate(batches.Records, limit)
	if indices != nil {
		batches.Records = projectRecords(batches.Records, projected, indices)
	}
	batches.Schema = projected
	s.logger.DebugContext(ctx, "dataset scanned",
		slog.String("path", h.path),
		slog.Bool("filtered", strings.TrimSpace(req.Filter) != ""),
		slog.Int64("rows", batches.NumRows()),
		slog.Int("files", batches.FetchedFiles),
		slog.Int64("bytes", batches.FetchedBytes),
		slog.Duration("duration", time.Since(start)),
	)
	return batches, nil
}

func (s *Service) scanAll(ctx context.Context, h *Handle, limit int64) (*Batches, error) {
	files := filesForLimit(h.manifest.Files, limit)
	results := make([][]arrow.Record, len(files))
	sizes := make([]int64, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range files {
		g.Go(func() error {
			started := time.Now()
			data, err := s.fetch(gctx, h.path, f)
			if err != nil {
				return err
			}
			records, err := decodeRecords(gctx, data, s.mem, s.batchSize, limit)
			if err != nil {
				return fmt.Errorf("decode %q: %w", f.Path, err)
			}
			if err := checkWidth(records, h.schema); err != nil {
				releaseAll(records)
				return fmt.Errorf("decode %q: %w", f.Path, err)
			}
			observability.ObserveProviderFetch(int64(len(data)), time.Since(started))
			results[i] = records
			sizes[i] = int64(len(data))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, records := range results {
			releaseAll(records)
		}
		return nil, err
	}

	out := &Batches{FetchedFiles: len(files)}
	for i, records := range results {
		out.Records = append(out.Records, records...)
		out.FetchedBytes += sizes[i]
	}
	return out, nil
}

func (s *Service) fetch(ctx context.Context, datasetPath string, f DataFile) ([]byte, error) {
	key, err := storage.ResolveDataFile(datasetPath, f.Path)
	if err != nil {
		return nil, err
	}
	reader, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get data file %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read data file %q: %w", key, err)
	}
	return data, nil
}

// filesForLimit returns the manifest prefix whose record counts cover limit.
func filesForLimit(files []DataFile, limit int64) []DataFile {
	if limit < 0 {
		return files
	}
	var covered int64
	for i, f := range files {
		covered += f.RecordCount
		if covered >= limit {
			return files[:i+1]
		}
	}
	return files
}

// truncate keeps the first limit rows, slicing the record that crosses it.
func truncate(records []arrow.Record, limit int64) []arrow.Record {
	if limit < 0 {
		return records
	}
	var kept int64
	for i, rec := range records {
		if kept+rec.NumRows() <= limit {
			kept += rec.NumRows()
			continue
		}
		remaining := limit - kept
		var out []arrow.Record
		out = append(out, records[:i]...)
		if remaining > 0 {
			out = append(out, rec.NewSlice(0, remaining))
		}
		releaseAll(records[i:])
		return out
	}
	return records
}

func projectSchema(schema *arrow.Schema, columns []string) (*arrow.Schema, []int, error) {
	if len(columns) == 0 {
		return schema, nil, nil
	}
	fields := make([]arrow.Field, 0, len(columns))
	indices := make([]int, 0, len(columns))
	for _, name := range columns {
		matches := schema.FieldIndices(name)
		if len(matches) == 0 {
			return nil, nil, fmt.Errorf("column %q does not exist", name)
		}
		indices = append(indices, matches[0])
		fields = append(fields, schema.Field(matches[0]))
	}
	metadata := schema.Metadata()
	return arrow.NewSchema(fields, &metadata), indices, nil
}

func projectRecords(records []arrow.Record, schema *arrow.Schema, indices []int) []arrow.Record {
	out := make([]arrow.Record, 0, len(records))
	for _, rec := range records {
		columns := make([]arrow.Array, len(indices))
		for i, idx := range indices {
			columns[i] = rec.Column(idx)
		}
		out = append(out, array.NewRecord(schema, columns, rec.NumRows()))
		rec.Release()
	}
	return out
}

func checkWidth(records []arrow.Record, schema *arrow.Schema) error {
	for _, rec := range records {
		if int(rec.NumCols()) != schema.NumFields() {
			return fmt.Errorf("file has %d columns, dataset schema has %d", rec.NumCols(), schema.NumFields())
		}
	}
	return nil
}
