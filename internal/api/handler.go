package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flatbridge/flatbridge/internal/config"
	"github.com/flatbridge/flatbridge/internal/flatfile"
	"github.com/flatbridge/flatbridge/internal/ingest"
	"github.com/flatbridge/flatbridge/internal/job"
	"github.com/flatbridge/flatbridge/internal/observability"
	"github.com/flatbridge/flatbridge/internal/preview"
	"github.com/flatbridge/flatbridge/internal/store"
)

type ReadinessCheck func(ctx context.Context) error

// Bridge is the operation surface served over HTTP.
type Bridge interface {
	TestConnection(ctx context.Context, params store.ConnectionParams) bool
	ListTables(ctx context.Context, params store.ConnectionParams) ([]string, error)
	GetSchema(ctx context.Context, table string, params store.ConnectionParams) (store.TableSchema, error)
	PreviewTable(ctx context.Context, table string, params store.ConnectionParams, columns []string, limit int) ([]preview.Row, error)
	PreviewFile(data []byte, delimiter string, limit int) ([]preview.Row, error)
	StartExport(ctx context.Context, req ingest.Request) (job.Job, error)
	StartImport(ctx context.Context, data []byte, req ingest.Request) (job.Job, error)
	GetJobStatus(id string) (job.Job, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Bridge            Bridge
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

	h := &handlers{bridge: deps.Bridge, maxUpload: cfg.HTTP.MaxUploadBytes}
	mux.HandleFunc("POST /v1/connection/test", h.requireBridge(h.testConnection))
	mux.HandleFunc("POST /v1/tables", h.requireBridge(h.listTables))
	mux.HandleFunc("POST /v1/schema/{table}", h.requireBridge(h.getSchema))
	mux.HandleFunc("POST /v1/preview/{table}", h.requireBridge(h.previewTable))
	mux.HandleFunc("POST /v1/preview-file", h.requireBridge(h.previewFile))
	mux.HandleFunc("POST /v1/ingest/store-to-file", h.requireBridge(h.startExport))
	mux.HandleFunc("POST /v1/ingest/file-to-store", h.requireBridge(h.startImport))
	mux.HandleFunc("GET /v1/ingest/status/{id}", h.requireBridge(h.jobStatus))

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckStore reports the store unready when a session cannot be opened.
func CheckStore(bridge Bridge) ReadinessCheck {
	return func(ctx context.Context) error {
		if bridge == nil {
			return errors.New("bridge is not configured")
		}
		if !bridge.TestConnection(ctx, store.ConnectionParams{}) {
			return errors.New("store is not reachable")
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

// writeOperationError maps domain sentinels to status codes.
func writeOperationError(ctx context.Context, w http.ResponseWriter, err error, extra map[string]any) {
	details := map[string]any{"details": err.Error()}
	for k, v := range extra {
		details[k] = v
	}
	switch {
	case errors.Is(err, ingest.ErrInvalidRequest):
		writeError(ctx, w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, extra)
	case errors.Is(err, preview.ErrEmptyFile):
		writeError(ctx, w, http.StatusBadRequest, "FILE_EMPTY", "file is empty", false, extra)
	case errors.Is(err, store.ErrTableNotFound):
		writeError(ctx, w, http.StatusNotFound, "TABLE_NOT_FOUND", "table was not found", false, extra)
	case errors.Is(err, job.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "JOB_NOT_FOUND", "ingestion job was not found", false, extra)
	case errors.Is(err, job.ErrQueueFull), errors.Is(err, job.ErrPoolClosed):
		writeError(ctx, w, http.StatusServiceUnavailable, "QUEUE_FULL", "job queue is not accepting work", true, details)
	case errors.Is(err, store.ErrConnection):
		writeError(ctx, w, http.StatusBadGateway, "STORE_UNAVAILABLE", "failed to connect to store", true, details)
	case errors.Is(err, store.ErrQuery):
		writeError(ctx, w, http.StatusBadRequest, "QUERY_FAILED", "store rejected the statement", false, details)
	case errors.Is(err, flatfile.ErrIO):
		writeError(ctx, w, http.StatusInternalServerError, "IO_ERROR", "file operation failed", true, details)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "operation failed", true, details)
	}
}
