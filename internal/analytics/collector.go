package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/logger"
)

// Publisher ships event batches. *kafka.Producer satisfies it.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector feeds events to the local aggregator and, when a publisher is
// configured, buffers them for batched publishing.
type Collector struct {
	publisher     Publisher
	aggregator    *Aggregator
	mu            sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	flushInterval time.Duration
	flushing      sync.Mutex
	done          chan struct{}
	logger        *slog.Logger
}

// NewCollector builds a collector. publisher may be nil.
func NewCollector(publisher Publisher, aggregator *Aggregator, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		aggregator:    aggregator,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "analytics-collector"),
	}
}

// Run flushes periodically until ctx is cancelled, then flushes once more
// with a short deadline.
func (c *Collector) Run(ctx context.Context) error {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	c.logger.Info("analytics collector started",
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
		"publishing", c.publisher != nil,
	)
	for {
		select {
		case <-ticker.C:
			c.Flush(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.Flush(flushCtx)
			cancel()
			return nil
		}
	}
}

// Wait blocks until Run has returned.
func (c *Collector) Wait() {
	<-c.done
}

func (c *Collector) RecordSearch(e SearchEvent) {
	if c.aggregator != nil {
		c.aggregator.RecordSearch(e)
	}
	c.enqueue(string(e.Type), e)
}

func (c *Collector) RecordClick(e ClickEvent) {
	if c.aggregator != nil {
		c.aggregator.RecordClick(e)
	}
	c.enqueue(string(e.Type), e)
}

// SearchCompleted records a search issued from a page session.
func (c *Collector) SearchCompleted(ctx context.Context, res *engine.Result, took time.Duration) {
	e := NewSearchEvent(OriginSession, res.Query, res.Tokens, res.TotalHits, len(res.Hits), took)
	e.SessionID = logger.SessionID(ctx)
	c.RecordSearch(e)
}

// ResultSelected records a result opened from a page session.
func (c *Collector) ResultSelected(ctx context.Context, query string, hit engine.Hit, position int) {
	c.RecordClick(ClickEvent{
		Type:      EventResultClick,
		Query:     query,
		DocID:     hit.DocID,
		URL:       hit.URL,
		Position:  position,
		Timestamp: time.Now().UTC(),
		SessionID: logger.SessionID(ctx),
	})
}

// BufferLen is the number of events waiting to be published.
func (c *Collector) BufferLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

func (c *Collector) enqueue(key string, value any) {
	if c.publisher == nil {
		return
	}
	c.mu.Lock()
	c.buffer = append(c.buffer, kafka.Event{Key: key, Value: value})
	full := len(c.buffer) >= c.batchSize
	c.mu.Unlock()
	if full {
		go c.Flush(context.Background())
	}
}

// Flush publishes the buffered events. Failed batches are put back, capped
// at three batches.
func (c *Collector) Flush(ctx context.Context) {
	if c.publisher == nil {
		return
	}
	c.flushing.Lock()
	defer c.flushing.Unlock()

	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]kafka.Event, 0, c.batchSize)
	c.mu.Unlock()

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("analytics flush failed", "events", len(batch), "error", err)
		c.mu.Lock()
		c.buffer = append(batch, c.buffer...)
		if limit := c.batchSize * 3; len(c.buffer) > limit {
			c.logger.Warn("analytics buffer overflow, events dropped", "dropped", len(c.buffer)-limit)
			c.buffer = c.buffer[:limit]
		}
		c.mu.Unlock()
		return
	}
	c.logger.Debug("analytics batch flushed", "events", len(batch))
}
