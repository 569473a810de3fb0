package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/duckmesh/arrowscan/internal/columnar"
	"github.com/duckmesh/arrowscan/internal/dataset"
	"github.com/duckmesh/arrowscan/internal/scanner"
)

// ndjsonFlushEvery is the number of streamed rows between flushes.
const ndjsonFlushEvery = 256

type tableInfoResponse struct {
	Path     string               `json:"path"`
	Version  uint64               `json:"version"`
	Columns  []scanner.ColumnInfo `json:"columns"`
	Warnings []string             `json:"warnings"`
}

type tableStatsResponse struct {
	Version    int64 `json:"version"`
	NumRows    int64 `json:"num_rows"`
	NumColumns int32 `json:"num_columns"`
}

type scanRow struct {
	RowData columnar.Value `json:"row_data"`
}

type tableScanResponse struct {
	Rows     []scanRow `json:"rows"`
	RowCount int       `json:"row_count"`
}

func handleTableInfo(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !scannerConfigured(deps, w, r) {
		return
	}
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	info, err := deps.Scanner.TableInfo(r.Context(), path)
	if err != nil {
		writeTableError(r.Context(), w, err, "INFO_FAILED")
		return
	}
	warnings := make([]string, 0, len(info.Warnings))
	for _, warning := range info.Warnings {
		warnings = append(warnings, warning.String())
	}
	columns := info.Columns
	if columns == nil {
		columns = []scanner.ColumnInfo{}
	}
	writeJSON(w, http.StatusOK, tableInfoResponse{
		Path:     info.Path,
		Version:  info.Version,
		Columns:  columns,
		Warnings: warnings,
	})
}

func handleTableStats(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !scannerConfigured(deps, w, r) {
		return
	}
	path, ok := requirePath(w, r)
	if !ok {
		return
	}
	stats, err := deps.Scanner.TableStats(r.Context(), path)
	if err != nil {
		writeTableError(r.Context(), w, err, "STATS_FAILED")
		return
	}
	version, rows, columns := stats.HostRow()
	writeJSON(w, http.StatusOK, tableStatsResponse{Version: version, NumRows: rows, NumColumns: columns})
}

func handleTableScan(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !scannerConfigured(deps, w, r) {
		return
	}
	path, opts, ok := parseScanRequest(w, r)
	if !ok {
		return
	}
	rows, err := deps.Scanner.Scan(r.Context(), path, opts)
	if err != nil {
		writeTableError(r.Context(), w, err, "SCAN_FAILED")
		return
	}
	out := make([]scanRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, scanRow{RowData: row})
	}
	writeJSON(w, http.StatusOK, tableScanResponse{Rows: out, RowCount: len(out)})
}

// handleTableScanNDJSON streams one row_data object per line. Errors raised
// before the first row still produce the JSON error envelope.
func handleTableScanNDJSON(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !scannerConfigured(deps, w, r) {
		return
	}
	path, opts, ok := parseScanRequest(w, r)
	if !ok {
		return
	}
	flusher, _ := w.(http.Flusher)
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	}

	var streamed int64
	_, err := deps.Scanner.ScanEach(r.Context(), path, opts, func(row columnar.Value) error {
		start()
		line, err := row.MarshalJSON()
		if err != nil {
			return err
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return err
		}
		streamed++
		if flusher != nil && streamed%ndjsonFlushEvery == 0 {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		if !started {
			writeTableError(r.Context(), w, err, "SCAN_FAILED")
			return
		}
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "ndjson scan aborted",
				slog.String("path", path),
				slog.Int64("rows_streamed", streamed),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	start()
	if flusher != nil {
		flusher.Flush()
	}
}

func scannerConfigured(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Scanner == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCANNER_NOT_CONFIGURED", "scanner dependency is not configured", false, nil)
		return false
	}
	return true
}

func requirePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PATH_REQUIRED", "path query parameter is required", false, nil)
		return "", false
	}
	return path, true
}

func parseScanRequest(w http.ResponseWriter, r *http.Request) (string, scanner.ScanOptions, bool) {
	path, ok := requirePath(w, r)
	if !ok {
		return "", scanner.ScanOptions{}, false
	}
	query := r.URL.Query()
	opts := scanner.ScanOptions{Filter: strings.TrimSpace(query.Get("filter"))}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer", false, map[string]any{"limit": raw})
			return "", scanner.ScanOptions{}, false
		}
		opts.Limit = &limit
	}
	for _, column := range strings.Split(query.Get("columns"), ",") {
		if column = strings.TrimSpace(column); column != "" {
			opts.Columns = append(opts.Columns, column)
		}
	}
	return path, opts, true
}

func writeTableError(ctx context.Context, w http.ResponseWriter, err error, fallbackCode string) {
	details := map[string]any{"details": err.Error()}
	switch {
	case errors.Is(err, scanner.ErrLimitExceeded):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_LIMIT", "limit exceeds the configured maximum", false, details)
	case errors.Is(err, dataset.ErrOpen):
		writeError(ctx, w, http.StatusNotFound, "DATASET_OPEN_FAILED", "dataset could not be opened", false, details)
	case errors.Is(err, dataset.ErrFilterSyntax):
		writeError(ctx, w, http.StatusBadRequest, "FILTER_SYNTAX", "filter expression is malformed", false, details)
	case errors.Is(err, dataset.ErrInvalidColumn):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_COLUMN", "unknown column requested", false, details)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusServiceUnavailable, "REQUEST_CANCELED", "request was canceled before completion", true, details)
	default:
		writeError(ctx, w, http.StatusInternalServerError, fallbackCode, "failed to read dataset", true, details)
	}
}
