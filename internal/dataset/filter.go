package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/duckmesh/arrowscan/internal/observability"
)

// scanFiltered evaluates filter with DuckDB, one data file at a time in
// manifest order. DuckDB only reports the positions of matching rows; the
// rows themselves are sliced out of the pqarrow decoded records, so column
// types are exactly those of an unfiltered scan.
func (s *Service) scanFiltered(ctx context.Context, h *Handle, filter string, limit int64) (*Batches, error) {
	filter, err := normalizeFilter(filter)
	if err != nil {
		return nil, newError("scan", h.path, ErrFilterSyntax, err)
	}

	workDir, err := os.MkdirTemp(s.tempDir, "arrowscan-filter-")
	if err != nil {
		return nil, fmt.Errorf("create filter temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()
	if resolved, err := filepath.EvalSymlinks(workDir); err == nil {
		workDir = resolved
	}

	db, err := openSandbox(ctx, workDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	out := &Batches{}
	var matched int64
	for i, f := range h.manifest.Files {
		if limit >= 0 && matched >= limit {
			break
		}
		started := time.Now()
		data, err := s.fetch(ctx, h.path, f)
		if err != nil {
			releaseAll(out.Records)
			return nil, err
		}
		out.FetchedFiles++
		out.FetchedBytes += int64(len(data))

		localPath := filepath.Join(workDir, fmt.Sprintf("part_%05d.parquet", i))
		if err := os.WriteFile(localPath, data, 0o600); err != nil {
			releaseAll(out.Records)
			return nil, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if i == 0 {
			if err := validateFilter(ctx, db, localPath, filter); err != nil {
				return nil, newError("scan", h.path, ErrFilterSyntax, err)
			}
		}

		remaining := int64(-1)
		if limit >= 0 {
			remaining = limit - matched
		}
		positions, err := matchingRows(ctx, db, localPath, filter, remaining)
		if err != nil {
			releaseAll(out.Records)
			return nil, fmt.Errorf("evaluate filter on %q: %w", f.Path, err)
		}
		observability.ObserveProviderFetch(int64(len(data)), time.Since(started))
		if len(positions) == 0 {
			continue
		}

		records, err := decodeRecords(ctx, data, s.mem, s.batchSize, positions[len(positions)-1]+1)
		if err != nil {
			releaseAll(out.Records)
			return nil, fmt.Errorf("decode %q: %w", f.Path, err)
		}
		if err := checkWidth(records, h.schema); err != nil {
			releaseAll(records)
			releaseAll(out.Records)
			return nil, fmt.Errorf("decode %q: %w", f.Path, err)
		}
		out.Records = append(out.Records, selectRows(records, positions)...)
		releaseAll(records)
		matched += int64(len(positions))
	}
	return out, nil
}

// openSandbox opens an in-memory DuckDB that can only read files below
// workDir, since the filter expression is caller supplied SQL.
func openSandbox(ctx context.Context, workDir string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	statements := []string{
		fmt.Sprintf("SET allowed_directories = [%s]", quoteLiteral(workDir)),
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure duckdb: %w", err)
		}
	}
	return db, nil
}

func validateFilter(ctx context.Context, db *sql.DB, localPath, filter string) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("EXPLAIN SELECT * FROM read_parquet(%s) WHERE (%s)", quoteLiteral(localPath), filter))
	if err != nil {
		return err
	}
	return rows.Close()
}

func matchingRows(ctx context.Context, db *sql.DB, localPath, filter string, limit int64) ([]int64, error) {
	query := fmt.Sprintf(
		"SELECT file_row_number FROM read_parquet(%s, file_row_number = true) WHERE (%s) ORDER BY file_row_number",
		quoteLiteral(localPath), filter,
	)
	if limit >= 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var positions []int64
	for rows.Next() {
		var position int64
		if err := rows.Scan(&position); err != nil {
			return nil, fmt.Errorf("scan row position: %w", err)
		}
		positions = append(positions, position)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate row positions: %w", err)
	}
	return positions, nil
}

// selectRows slices the rows at the ascending file positions out of records,
// one zero-copy slice per run of consecutive positions.
func selectRows(records []arrow.Record, positions []int64) []arrow.Record {
	var (
		out  []arrow.Record
		base int64
		next int
	)
	for _, rec := range records {
		n := rec.NumRows()
		for next < len(positions) && positions[next] < base+n {
			start := positions[next]
			end := start + 1
			next++
			for next < len(positions) && positions[next] == end && end < base+n {
				end++
				next++
			}
			out = append(out, rec.NewSlice(start-base, end-base))
		}
		base += n
	}
	return out
}

func normalizeFilter(filter string) (string, error) {
	trimmed := strings.TrimSpace(filter)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	if trimmed == "" {
		return "", fmt.Errorf("filter is empty")
	}
	if strings.Contains(trimmed, ";") {
		return "", fmt.Errorf("filter must be a single expression")
	}
	return trimmed, nil
}

func quoteLiteral(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
