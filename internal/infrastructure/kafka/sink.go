// Package kafka publishes change events to a Kafka topic for downstream
// consumers such as the notification dispatch collaborator.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/petmarket/escrow-hub/internal/domain/notification"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink writes one message per event keyed by order id, so every change to
// an order lands on the same partition in commit order.
type Sink struct {
	writer messageWriter
}

func NewSink(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink requires at least one broker")
	}
	if topic == "" {
		return nil, errors.New("kafka sink requires a topic")
	}
	return &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (s *Sink) Name() string { return "kafka" }

func (s *Sink) Publish(ctx context.Context, e *notification.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.OrderID.String()),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.EventID.String())},
			{Key: "entity_type", Value: []byte(e.EntityType)},
		},
	})
}

func (s *Sink) Close() error {
	return s.writer.Close()
}
