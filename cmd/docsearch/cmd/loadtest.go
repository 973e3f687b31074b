package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
)

var defaultLoadQueries = []string{
	"install",
	"configuration",
	"search",
	"getting started",
	"api reference",
	"安装",
	"配置文件",
	"release notes",
}

type loadOptions struct {
	baseURL     string
	concurrency int
	duration    time.Duration
	limit       int
	queries     []string
}

func newLoadTestCmd() *cobra.Command {
	var opts loadOptions
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive the search API with concurrent queries and report latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1")
			}
			if len(opts.queries) == 0 {
				opts.queries = defaultLoadQueries
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "target %s, %d workers for %s, %d queries\n",
				opts.baseURL, opts.concurrency, opts.duration, len(opts.queries))

			stats := runLoadTest(cmd.Context(), opts)
			printLoadReport(out, stats, opts.duration)
			if stats.total.Load() == 0 {
				return fmt.Errorf("no requests completed; is the service running?")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the search service")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	cmd.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().IntVar(&opts.limit, "limit", 10, "limit parameter sent with each query")
	cmd.Flags().StringSliceVarP(&opts.queries, "query", "q", nil, "query to send (repeatable)")
	return cmd
}

type loadStats struct {
	total     atomic.Int64
	success   atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies: make([]time.Duration, 0, 4096),
		codes:     make(map[int]int64),
	}
}

func (s *loadStats) record(d time.Duration, status int, cacheSource string, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.failed.Add(1)
	}
	if cacheSource == "local" || cacheSource == "remote" {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[status]++
	s.mu.Unlock()
}

func runLoadTest(ctx context.Context, opts loadOptions) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	base := strings.TrimRight(opts.baseURL, "/")
	var wg sync.WaitGroup
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				q := opts.queries[next%len(opts.queries)]
				next++
				target := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", base, url.QueryEscape(q), opts.limit)
				start := time.Now()
				status, source, err := doSearch(ctx, client, target)
				if ctx.Err() != nil {
					return
				}
				stats.record(time.Since(start), status, source, err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func doSearch(ctx context.Context, client *http.Client, target string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	var body struct {
		CacheSource string `json:"cache_source"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body.CacheSource, nil
}

func printLoadReport(w io.Writer, stats *loadStats, duration time.Duration) {
	total := stats.total.Load()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "requests:   %d\n", total)
	fmt.Fprintf(w, "successful: %d\n", stats.success.Load())
	fmt.Fprintf(w, "failed:     %d\n", stats.failed.Load())
	fmt.Fprintf(w, "cache hits: %d\n", stats.cacheHits.Load())
	if total > 0 {
		fmt.Fprintf(w, "error rate: %.2f%%\n", float64(stats.failed.Load())/float64(total)*100)
		fmt.Fprintf(w, "req/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	codes := make([]int, 0, len(stats.codes))
	for c := range stats.codes {
		codes = append(codes, c)
	}
	counts := make(map[int]int64, len(stats.codes))
	for c, n := range stats.codes {
		counts[c] = n
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "latency min %s avg %s p50 %s p95 %s p99 %s max %s\n",
			latencies[0],
			sum/time.Duration(len(latencies)),
			latencyPercentile(latencies, 50),
			latencyPercentile(latencies, 95),
			latencyPercentile(latencies, 99),
			latencies[len(latencies)-1],
		)
	}

	sort.Ints(codes)
	for _, c := range codes {
		fmt.Fprintf(w, "  %d: %d\n", c, counts[c])
	}
}

func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
