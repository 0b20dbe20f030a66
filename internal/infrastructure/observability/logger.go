package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

func InitLogger(level string) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithContext returns the default logger enriched with the active trace id.
func WithContext(ctx context.Context, attrs ...any) *slog.Logger {
	logger := slog.With(attrs...)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		logger = logger.With("trace_id", sc.TraceID().String())
	}
	return logger
}
