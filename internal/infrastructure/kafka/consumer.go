package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"

	"github.com/honeynil/CampusGigService/internal/infrastructure/redis"
	"github.com/segmentio/kafka-go"
)

// Broadcaster fans a change notification out to subscribed clients.
type Broadcaster interface {
	Broadcast(topic string, payload []byte)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer turns committed-change events into cache invalidations and
// realtime notifications.
type Consumer struct {
	reader      messageReader
	cache       redis.RedisClient
	broadcaster Broadcaster
}

func NewConsumer(brokers []string, groupID string, cache redis.RedisClient, broadcaster Broadcaster) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     brokers,
			GroupID:     groupID,
			GroupTopics: Topics,
			MinBytes:    1,
			MaxBytes:    10e6,
		}),
		cache:       cache,
		broadcaster: broadcaster,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
				slog.Info("Kafka consumer stopped")
				return
			}
			slog.Error("failed to read Kafka message", "error", err)
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key))

	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		slog.Error("failed to unmarshal event", "topic", msg.Topic, "error", err)
		return
	}

	if len(event.UserIDs) > 0 && c.cache != nil {
		keys := make([]string, 0, len(event.UserIDs))
		for _, id := range event.UserIDs {
			keys = append(keys, redis.BalanceKey(id))
		}
		if err := c.cache.Del(ctx, keys...); err != nil {
			slog.Error("failed to invalidate balance cache", "topic", msg.Topic, "type", event.Type, "error", err)
		}
	}

	if c.broadcaster != nil {
		c.broadcaster.Broadcast(msg.Topic, msg.Value)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
