package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/resilience"
)

// MessageHandler processes one search event. Errors are retried a few times;
// a message that keeps failing is logged, counted and skipped.
type MessageHandler func(ctx context.Context, key, value []byte) error

// messageReader is the part of *kafka.Reader the consume loop uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerStats counts what the loop has done so far.
type ConsumerStats struct {
	Handled     int64
	Skipped     int64
	FetchErrors int64
}

type Consumer struct {
	reader  messageReader
	handler MessageHandler
	retry   resilience.RetryConfig
	backoff time.Duration

	handled     atomic.Int64
	skipped     atomic.Int64
	fetchErrors atomic.Int64

	logger *slog.Logger
}

// NewConsumer reads topic as part of the configured consumer group, starting
// from the newest events when the group has no committed offset.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     cfg.FlushInterval,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, handler, slog.Default().With("component", "kafka-consumer", "topic", topic))
}

func newConsumer(r messageReader, handler MessageHandler, logger *slog.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
		},
		backoff: time.Second,
		logger:  logger,
	}
}

// Stats returns a snapshot of the loop counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Handled:     c.handled.Load(),
		Skipped:     c.skipped.Load(),
		FetchErrors: c.fetchErrors.Load(),
	}
}

// Run fetches, handles and commits events until ctx is cancelled. Skipped
// events are committed too so a poison message cannot stall the group.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				st := c.Stats()
				c.logger.Info("consumer stopping",
					"handled", st.Handled,
					"skipped", st.Skipped,
					"fetch_errors", st.FetchErrors,
				)
				return nil
			}
			c.fetchErrors.Add(1)
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.backoff):
			}
			continue
		}

		err = resilience.Retry(ctx, "handle event", c.retry, func(ctx context.Context) error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.skipped.Add(1)
			c.logger.Error("skipping event after retries",
				"key", string(msg.Key),
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		} else {
			c.handled.Add(1)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("failed to commit message", "offset", msg.Offset, "error", err)
		}
	}
}

// DecodeJSON unmarshals an event payload into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
