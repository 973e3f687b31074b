package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/logger"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestNewSearchEvent_ZeroResultType(t *testing.T) {
	e := NewSearchEvent(OriginAPI, "nothing", []string{"nothing"}, 0, 0, 3*time.Millisecond)
	assert.Equal(t, EventZeroResult, e.Type)
	assert.Equal(t, int64(3), e.LatencyMs)

	e = NewSearchEvent(OriginAPI, "install", []string{"install"}, 4, 2, 0)
	assert.Equal(t, EventSearch, e.Type)
}

func TestAggregator_Stats(t *testing.T) {
	a := NewAggregator()
	a.RecordSearch(SearchEvent{Query: "install", Returned: 2, LatencyMs: 10})
	a.RecordSearch(SearchEvent{Query: "install", Returned: 2, LatencyMs: 20, CacheSource: "local"})
	a.RecordSearch(SearchEvent{Query: "missing", Returned: 0, LatencyMs: 30})
	a.RecordClick(ClickEvent{URL: "guide.html#install"})

	s := a.Stats()
	assert.Equal(t, int64(3), s.TotalSearches)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.Clicks)
	assert.InDelta(t, 1.0/3.0, s.ClickThroughRate, 1e-9)
	assert.InDelta(t, 20.0, s.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(20), s.P50LatencyMs)
	require.NotEmpty(t, s.TopQueries)
	assert.Equal(t, QueryCount{Query: "install", Count: 2}, s.TopQueries[0])
	assert.Equal(t, []QueryCount{{Query: "missing", Count: 1}}, s.ZeroResultQueries)
	assert.Equal(t, []QueryCount{{Query: "guide.html#install", Count: 1}}, s.TopClickedURLs)
}

func TestAggregator_EmptyStats(t *testing.T) {
	s := NewAggregator().Stats()
	assert.Zero(t, s.TotalSearches)
	assert.Zero(t, s.ClickThroughRate)
	assert.Empty(t, s.TopQueries)
}

func TestAggregator_HandleMessage(t *testing.T) {
	a := NewAggregator()
	search, err := json.Marshal(NewSearchEvent(OriginSession, "q", nil, 1, 1, 0))
	require.NoError(t, err)
	click, err := json.Marshal(ClickEvent{Type: EventResultClick, URL: "a.html"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.HandleMessage(ctx, nil, search))
	require.NoError(t, a.HandleMessage(ctx, nil, click))
	require.NoError(t, a.HandleMessage(ctx, nil, []byte(`{"type":"other"}`)))
	require.NoError(t, a.HandleMessage(ctx, nil, []byte(`not json`)), "bad messages are dropped, not retried")

	s := a.Stats()
	assert.Equal(t, int64(1), s.TotalSearches)
	assert.Equal(t, int64(1), s.Clicks)
}

func TestCollector_WithoutPublisherOnlyAggregates(t *testing.T) {
	a := NewAggregator()
	c := NewCollector(nil, a, 10, time.Second)
	c.RecordSearch(SearchEvent{Query: "q", Returned: 1})
	assert.Zero(t, c.BufferLen())
	assert.Equal(t, int64(1), a.Stats().TotalSearches)
}

func TestCollector_FlushPublishesBuffered(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, NewAggregator(), 10, time.Hour)
	c.RecordSearch(SearchEvent{Type: EventSearch, Query: "a"})
	c.RecordClick(ClickEvent{Type: EventResultClick, URL: "x"})
	assert.Equal(t, 2, c.BufferLen())

	c.Flush(context.Background())
	assert.Zero(t, c.BufferLen())
	require.Len(t, pub.batches, 1)
	assert.Equal(t, "search", pub.batches[0][0].Key)
	assert.Equal(t, "result_click", pub.batches[0][1].Key)
}

func TestCollector_FailedFlushKeepsEvents(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, nil, 10, time.Hour)
	c.RecordSearch(SearchEvent{Query: "a"})
	c.Flush(context.Background())
	assert.Equal(t, 1, c.BufferLen())

	pub.err = nil
	c.Flush(context.Background())
	assert.Zero(t, c.BufferLen())
	assert.Equal(t, 1, pub.count())
}

func TestCollector_FullBatchFlushes(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, nil, 2, time.Hour)
	c.RecordSearch(SearchEvent{Query: "a"})
	c.RecordSearch(SearchEvent{Query: "b"})
	assert.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCollector_RunFlushesOnShutdown(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, nil, 10, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()

	c.RecordSearch(SearchEvent{Query: "a"})
	cancel()
	c.Wait()
	assert.Equal(t, 1, pub.count())
}

func TestCollector_ObserverMethods(t *testing.T) {
	a := NewAggregator()
	c := NewCollector(nil, a, 10, time.Second)
	ctx := logger.WithSessionID(context.Background(), "s-1")

	res := &engine.Result{Query: "install", Tokens: []string{"install"}, TotalHits: 1,
		Hits: []engine.Hit{{DocID: 0, URL: "guide.html"}}}
	c.SearchCompleted(ctx, res, 2*time.Millisecond)
	c.ResultSelected(ctx, "install", res.Hits[0], 0)

	s := a.Stats()
	assert.Equal(t, int64(1), s.TotalSearches)
	assert.Equal(t, int64(1), s.Clicks)
	assert.Equal(t, "guide.html", s.TopClickedURLs[0].Query)
}

func TestHandler_Stats(t *testing.T) {
	a := NewAggregator()
	a.RecordSearch(SearchEvent{Query: "q", Returned: 1})
	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var s Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, int64(1), s.TotalSearches)
}
