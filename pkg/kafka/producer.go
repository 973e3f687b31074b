// Package kafka publishes and consumes JSON search analytics events with
// segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/config"
)

// Event is one message. Key picks the partition; Value is JSON encoded.
type Event struct {
	Key   string
	Value any
}

type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    max(cfg.BatchSize, 1),
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// PublishBatch encodes events and writes them in one call. An event that
// cannot be encoded fails the whole batch before anything is written.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	messages, err := encode(events)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("publishing %d events: %w", len(messages), err)
	}
	p.logger.Debug("batch published", "count", len(messages))
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(events []Event) ([]kafka.Message, error) {
	messages := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			return nil, fmt.Errorf("marshaling event %q: %w", e.Key, err)
		}
		messages = append(messages, kafka.Message{Key: []byte(e.Key), Value: value})
	}
	return messages, nil
}
