package observability

import (
	"context"

	"github.com/honeynil/CampusGigService/internal/infrastructure/observability"
)

// Setup initialises logs, metrics and traces and returns the tracer shutdown hook.
func Setup(ctx context.Context, serviceName, logLevel, otlpEndpoint string) (func(context.Context) error, error) {
	observability.InitLogger(logLevel)
	observability.InitMetrics()
	return observability.InitTracing(ctx, serviceName, otlpEndpoint)
}
