package analytics

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/kafka"
)

type Stats struct {
	TotalSearches     int64        `json:"total_searches"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	CacheHits         int64        `json:"cache_hits"`
	Clicks            int64        `json:"clicks"`
	ClickThroughRate  float64      `json:"click_through_rate"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	TopClickedURLs    []QueryCount `json:"top_clicked_urls"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// maxLatencies bounds the latency sample kept for percentiles.
const maxLatencies = 10000

// Aggregator keeps running search statistics in memory.
type Aggregator struct {
	mu                sync.Mutex
	totalSearches     int64
	zeroResults       int64
	cacheHits         int64
	clicks            int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	clickedURLs       map[string]int64
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		clickedURLs:       make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

func (a *Aggregator) RecordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches++
	if e.CacheSource == "local" || e.CacheSource == "remote" {
		a.cacheHits++
	}
	if len(a.latencies) < maxLatencies {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.totalSearches%maxLatencies] = e.LatencyMs
	}
	a.queryCounts[e.Query]++
	if e.Returned == 0 {
		a.zeroResults++
		a.zeroResultQueries[e.Query]++
	}
}

func (a *Aggregator) RecordClick(e ClickEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.clicks++
	a.clickedURLs[e.URL]++
}

// HandleMessage routes a consumed event to the matching Record method.
func (a *Aggregator) HandleMessage(_ context.Context, _ []byte, value []byte) error {
	head, err := kafka.DecodeJSON[struct {
		Type EventType `json:"type"`
	}](value)
	if err != nil {
		a.logger.Error("dropping undecodable analytics event", "error", err)
		return nil
	}
	switch head.Type {
	case EventSearch, EventZeroResult:
		e, err := kafka.DecodeJSON[SearchEvent](value)
		if err != nil {
			return nil
		}
		a.RecordSearch(e)
	case EventResultClick:
		e, err := kafka.DecodeJSON[ClickEvent](value)
		if err != nil {
			return nil
		}
		a.RecordClick(e)
	default:
		a.logger.Warn("unknown analytics event type", "type", head.Type)
	}
	return nil
}

func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalSearches:   a.totalSearches,
		ZeroResultCount: a.zeroResults,
		CacheHits:       a.cacheHits,
		Clicks:          a.clicks,
	}
	if a.totalSearches > 0 {
		stats.ClickThroughRate = float64(a.clicks) / float64(a.totalSearches)
	}
	if len(a.latencies) > 0 {
		sorted := append([]int64(nil), a.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopClickedURLs = topN(a.clickedURLs, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.totalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then by key for a deterministic listing.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for q, c := range counts {
		result = append(result, QueryCount{Query: q, Count: c})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
