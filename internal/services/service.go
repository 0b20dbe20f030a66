package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/honeynil/CampusGigService/internal/infrastructure/kafka"
	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID  string
	IsAdmin bool
}

func (a Actor) check() error {
	if a.UserID == "" {
		return pkgerrors.ErrUnauthenticated
	}
	return nil
}

// EventPublisher delivers change notifications after a commit.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event kafka.Event) error
}

// NopPublisher is used when the event bus is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, kafka.Event) error { return nil }

// notifier runs the post-commit side effects of a mutation: the balance cache
// of every affected user is dropped and the change is published. Neither may
// fail the already committed operation.
type notifier struct {
	cache     redis.RedisClient
	publisher EventPublisher
}

func (n notifier) committed(ctx context.Context, topic string, event kafka.Event) {
	if len(event.UserIDs) > 0 && n.cache != nil {
		keys := make([]string, 0, len(event.UserIDs))
		for _, id := range event.UserIDs {
			keys = append(keys, redis.BalanceKey(id))
		}
		if err := n.cache.Del(ctx, keys...); err != nil {
			slog.Error("failed to invalidate balance cache", "event", event.Type, "error", err)
		}
	}
	if n.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := n.publisher.Publish(ctx, topic, event); err != nil {
		slog.Error("failed to publish event", "topic", topic, "event", event.Type, "entity_id", event.EntityID, "error", err)
	}
}

func startSpan(ctx context.Context, tracer, name string) (context.Context, trace.Span) {
	return otel.Tracer(tracer).Start(ctx, name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
