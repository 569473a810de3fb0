package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckmesh/arrowscan/internal/columnar"
	"github.com/duckmesh/arrowscan/internal/config"
	"github.com/duckmesh/arrowscan/internal/observability"
	"github.com/duckmesh/arrowscan/internal/scanner"
)

type ReadinessCheck func(ctx context.Context) error

// TableScanner is the query surface the table routes are served from.
type TableScanner interface {
	TableInfo(ctx context.Context, path string) (scanner.TableInfo, error)
	TableStats(ctx context.Context, path string) (columnar.TableStats, error)
	Scan(ctx context.Context, path string, opts scanner.ScanOptions) ([]columnar.Value, error)
	ScanEach(ctx context.Context, path string, opts scanner.ScanOptions, fn scanner.RowFunc) (scanner.ScanResult, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Scanner           TableScanner
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/tables/info", func(w http.ResponseWriter, r *http.Request) {
		handleTableInfo(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/stats", func(w http.ResponseWriter, r *http.Request) {
		handleTableStats(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/scan", func(w http.ResponseWriter, r *http.Request) {
		handleTableScan(deps, w, r)
	})
	protected.HandleFunc("GET /v1/tables/scan.ndjson", func(w http.ResponseWriter, r *http.Request) {
		handleTableScanNDJSON(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("GET /v1/tables/info", protectedHandler)
	mux.Handle("GET /v1/tables/stats", protectedHandler)
	mux.Handle("GET /v1/tables/scan", protectedHandler)
	mux.Handle("GET /v1/tables/scan.ndjson", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// Pinger is implemented by object stores that can check their backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

func CheckObjectStore(store Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("object store is not configured")
		}
		return store.Ping(ctx)
	}
}

func CheckStorageConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		switch cfg.Storage.Backend {
		case config.StorageBackendLocal:
			if cfg.Storage.LocalRoot == "" {
				return errors.New("local storage root is not configured")
			}
		case config.StorageBackendS3:
			if cfg.Storage.S3.Endpoint == "" {
				return errors.New("object store endpoint is not configured")
			}
			if cfg.Storage.S3.Bucket == "" {
				return errors.New("object store bucket is not configured")
			}
		default:
			return errors.New("storage backend is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
