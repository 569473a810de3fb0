// Package seed writes the reference datasets used by integration tests and
// local demos.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dustin/go-humanize"
	"github.com/parquet-go/parquet-go"

	"github.com/duckmesh/arrowscan/internal/dataset"
	"github.com/duckmesh/arrowscan/internal/storage"
)

const (
	SimpleTable  = "simple_table"
	VectorTable  = "vector_table"
	ComplexTable = "complex_table"
	LargeTable   = "large_table"

	LargeTableRows = 1000
)

// Names lists every dataset in the order SeedAll writes them.
var Names = []string{SimpleTable, VectorTable, ComplexTable, LargeTable}

type Options struct {
	// Prefix is prepended to every dataset path, e.g. "reference/".
	Prefix    string
	Allocator memory.Allocator
	Logger    *slog.Logger
}

type Result struct {
	Path    string
	Version uint64
	Rows    int64
	Bytes   int64
}

type Seeder struct {
	writer *dataset.Writer
	prefix string
	mem    memory.Allocator
	logger *slog.Logger
}

func New(store storage.ObjectStore, opts Options) (*Seeder, error) {
	writer, err := dataset.NewWriter(store)
	if err != nil {
		return nil, err
	}
	mem := opts.Allocator
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	prefix := strings.Trim(opts.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Seeder{writer: writer, prefix: prefix, mem: mem, logger: logger}, nil
}

func (s *Seeder) SeedAll(ctx context.Context) ([]Result, error) {
	results := make([]Result, 0, len(Names))
	for _, name := range Names {
		result, err := s.Seed(ctx, name)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

// Seed overwrites one reference dataset with a fresh version.
func (s *Seeder) Seed(ctx context.Context, name string) (Result, error) {
	path := s.prefix + name
	var (
		manifest dataset.Manifest
		err      error
	)
	switch name {
	case SimpleTable:
		manifest, err = s.writeRecord(ctx, path, buildSimple)
	case VectorTable:
		manifest, err = s.writeRecord(ctx, path, buildVector)
	case ComplexTable:
		manifest, err = s.writeRecord(ctx, path, buildComplex)
	case LargeTable:
		manifest, err = s.writeLarge(ctx, path)
	default:
		return Result{}, fmt.Errorf("unknown dataset %q", name)
	}
	if err != nil {
		return Result{}, fmt.Errorf("seed %s: %w", name, err)
	}

	result := Result{Path: path, Version: manifest.Version, Rows: int64(manifest.RowCount())}
	for _, f := range manifest.Files {
		result.Bytes += f.SizeBytes
	}
	s.logger.InfoContext(ctx, "dataset seeded",
		slog.String("path", result.Path),
		slog.Uint64("version", result.Version),
		slog.Int64("rows", result.Rows),
		slog.String("size", humanize.Bytes(uint64(result.Bytes))),
	)
	return result, nil
}

func (s *Seeder) writeRecord(ctx context.Context, path string, build func(memory.Allocator) arrow.Record) (dataset.Manifest, error) {
	rec := build(s.mem)
	defer rec.Release()
	return s.writer.WriteRecords(ctx, path, rec.Schema(), []arrow.Record{rec}, dataset.WriteOverwrite)
}

type largeRow struct {
	ID       int64   `parquet:"id"`
	Value    float64 `parquet:"value"`
	Category string  `parquet:"category"`
	Flag     bool    `parquet:"flag"`
}

func largeRows() []largeRow {
	rows := make([]largeRow, LargeTableRows)
	for i := range rows {
		rows[i] = largeRow{
			ID:       int64(i + 1),
			Value:    float64(i) * 0.1,
			Category: fmt.Sprintf("cat_%d", i%10),
			Flag:     i%2 == 0,
		}
	}
	return rows
}

func (s *Seeder) writeLarge(ctx context.Context, path string) (dataset.Manifest, error) {
	rows := largeRows()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[largeRow](buf, parquet.Compression(&parquet.Snappy))
	if _, err := writer.Write(rows); err != nil {
		return dataset.Manifest{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return dataset.Manifest{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return s.writer.CommitFiles(ctx, path, []dataset.ParquetFile{{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
	}}, dataset.WriteOverwrite)
}
