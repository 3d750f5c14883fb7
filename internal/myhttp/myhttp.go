package myhttp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
)

// NewServerMux returns a mux whose middleware routes trace, profile and
// duration histogram per pattern. maxBodyBytes caps request bodies; zero
// means unlimited.
func NewServerMux(logger *slog.Logger, httpRequestsDurationMicroSeconds metric.Int64Histogram, maxBodyBytes int64) *myRouter {
	return &myRouter{
		ServeMux:                         http.NewServeMux(),
		logger:                           logger,
		httpRequestsDurationMicroSeconds: httpRequestsDurationMicroSeconds,
		maxBodyBytes:                     maxBodyBytes,
	}
}

type loggerKey struct{}

func withLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger returns the request scoped logger carrying trace and span IDs.
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger(ctx).Error("failed to encode response", "error", err)
	}
}

// Error writes a JSON error body with the status text as fallback message.
func Error(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		message = err.Error()
		Logger(ctx).Info("request failed", "status", status, "error", err)
	}
	WriteJSON(ctx, w, status, map[string]string{"error": message})
}
