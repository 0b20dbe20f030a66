package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	TopicUsers    = "users"
	TopicGigs     = "gigs"
	TopicWallet   = "wallet"
	TopicCoupons  = "coupons"
	TopicPlatform = "platform"
)

var Topics = []string{TopicUsers, TopicGigs, TopicWallet, TopicCoupons, TopicPlatform}

// Event is the change notification published after a committed mutation.
type Event struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entity_id"`
	UserIDs    []string  `json:"user_ids,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}

type KafkaProducer interface {
	Send(ctx context.Context, topic string, key string, value []byte) error
	Close() error
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		Async:                  true,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer}
}

func (p *Producer) Send(ctx context.Context, topic string, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("failed to send Kafka message", "topic", topic, "key", key, "error", err)
		return err
	}
	slog.Info("Kafka message sent", "topic", topic, "key", key)
	return nil
}

// Publish encodes event and sends it keyed by its entity id.
func (p *Producer) Publish(ctx context.Context, topic string, event Event) error {
	return Publish(ctx, p, topic, event)
}

func Publish(ctx context.Context, producer KafkaProducer, topic string, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}
	return producer.Send(ctx, topic, event.EntityID, value)
}

func (p *Producer) Close() error {
	if err := p.writer.Close(); err != nil {
		slog.Error("failed to close Kafka writer", "error", err)
		return err
	}
	slog.Info("Kafka writer closed")
	return nil
}
