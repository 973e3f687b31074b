// Package engine owns one search index snapshot and answers queries
// against it. An Engine is built once and lives until its owner goes away.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/assets"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/teaser"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/tracing"
)

// Fetcher provides asset contents. *assets.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
	FetchFile(ctx context.Context, location string) (string, error)
}

type Options struct {
	IndexPath       string
	DictionaryPath  string
	LimitResults    int
	TeaserWordCount int
	Window          teaser.Window
	PathToRoot      string
	MaxQueryLength  int
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		IndexPath:       cfg.Assets.IndexPath,
		DictionaryPath:  cfg.Assets.DictionaryPath,
		LimitResults:    cfg.Search.LimitResults,
		TeaserWordCount: cfg.Search.TeaserWordCount,
		Window: teaser.Window{
			Before: cfg.Search.TeaserWindowBefore,
			After:  cfg.Search.TeaserWindowAfter,
		},
		PathToRoot:     cfg.Search.PathToRoot,
		MaxQueryLength: cfg.Search.MaxQueryLength,
	}
}

type Hit struct {
	DocID       int     `json:"doc_id"`
	URL         string  `json:"url"`
	Breadcrumbs string  `json:"breadcrumbs"`
	Score       float64 `json:"score"`
	Teaser      string  `json:"teaser"`
}

type Result struct {
	Query     string   `json:"query"`
	Tokens    []string `json:"tokens"`
	TotalHits int      `json:"total_hits"`
	Hits      []Hit    `json:"results"`
}

type Engine struct {
	opts    Options
	loader  *assets.Loader
	fetcher Fetcher
	tok     *tokenizer.Active
	docs    *index.DocumentCache
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu              sync.RWMutex
	limit           int
	teaserWordCount int
}

// New wires an engine. Nothing is loaded until Initialize or EnsureReady.
// m may be nil.
func New(opts Options, loader *assets.Loader, fetcher Fetcher, m *metrics.Metrics) *Engine {
	if opts.Window == (teaser.Window{}) {
		opts.Window = teaser.DefaultWindow
	}
	tok := tokenizer.NewActive(m)
	return &Engine{
		opts:            opts,
		loader:          loader,
		fetcher:         fetcher,
		tok:             tok,
		docs:            index.NewDocumentCache(tok),
		metrics:         m,
		logger:          slog.Default().With("component", "search-engine"),
		limit:           opts.LimitResults,
		teaserWordCount: opts.TeaserWordCount,
	}
}

// Initialize loads the segmenter, then the index. A segmenter that cannot
// be loaded only switches tokenization to the fallback; an index that cannot
// be loaded is returned as ErrAssetUnavailable.
func (e *Engine) Initialize(ctx context.Context) error {
	if _, err := e.loader.Load(ctx, assets.KeySegmenter, e.loadSegmenter); err != nil {
		return err
	}
	if _, err := e.loader.Load(ctx, assets.KeyIndex, e.loadIndex); err != nil {
		return err
	}
	return nil
}

// EnsureReady runs onReady once both assets are available. If the index
// never loads, onReady is never called.
func (e *Engine) EnsureReady(onReady func()) {
	e.loader.EnsureLoaded(assets.KeySegmenter, e.loadSegmenter, func(any) {
		e.loader.EnsureLoaded(assets.KeyIndex, e.loadIndex, func(any) {
			onReady()
		})
	})
}

// Ready reports whether the index has been loaded.
func (e *Engine) Ready() bool {
	return e.loader.Loaded(assets.KeyIndex)
}

// Unavailable reports whether loading the index failed for good.
func (e *Engine) Unavailable() bool {
	return e.loader.Failed(assets.KeyIndex)
}

// Fingerprint identifies the loaded corpus; empty until the index loads.
func (e *Engine) Fingerprint() string {
	return e.docs.Fingerprint()
}

func (e *Engine) TokenizerStrategy() string {
	return e.tok.Strategy()
}

func (e *Engine) Limit() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limit
}

func (e *Engine) TeaserWordCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.teaserWordCount
}

func (e *Engine) PathToRoot() string {
	return e.opts.PathToRoot
}

// Tokenize splits text with the active strategy.
func (e *Engine) Tokenize(text string) []string {
	return e.tok.Tokenize(text)
}

func (e *Engine) loadSegmenter(ctx context.Context) (any, error) {
	if err := e.installSegmenter(ctx); err != nil {
		e.tok.Disable(err)
	}
	return e.tok.Strategy(), nil
}

func (e *Engine) installSegmenter(ctx context.Context) error {
	if e.opts.DictionaryPath == "" {
		return errors.New("no segmentation dictionary configured")
	}
	path, err := e.fetcher.FetchFile(ctx, e.opts.DictionaryPath)
	if err != nil {
		return fmt.Errorf("fetching dictionary: %w", err)
	}
	seg, err := tokenizer.NewSegmenter(path)
	if err != nil {
		return err
	}
	e.tok.Install(seg)
	return nil
}

func (e *Engine) loadIndex(ctx context.Context) (any, error) {
	data, err := e.fetcher.Fetch(ctx, e.opts.IndexPath)
	if err != nil {
		return nil, err
	}
	payload := index.ParsePayload(data)
	docs := e.docs.BuildOnce(payload)

	e.mu.Lock()
	if payload.ResultsOptions.LimitResults > 0 {
		e.limit = payload.ResultsOptions.LimitResults
	}
	if payload.ResultsOptions.TeaserWordCount > 0 {
		e.teaserWordCount = payload.ResultsOptions.TeaserWordCount
	}
	e.mu.Unlock()

	return len(docs), nil
}

// Search loads the assets if needed and ranks the corpus against raw.
// limit <= 0 uses the configured limit.
func (e *Engine) Search(ctx context.Context, raw string, limit int) (*Result, error) {
	if err := e.Initialize(ctx); err != nil {
		e.observe("error", 0, time.Now())
		return nil, err
	}
	return e.SearchLoaded(ctx, raw, limit)
}

// SearchLoaded ranks the corpus without triggering asset loads. Before the
// index is loaded it fails with ErrIndexNotReady.
func (e *Engine) SearchLoaded(ctx context.Context, raw string, limit int) (*Result, error) {
	start := time.Now()
	if !e.docs.Built() {
		return nil, apperrors.ErrIndexNotReady
	}
	if e.opts.MaxQueryLength > 0 && utf8.RuneCountInString(raw) > e.opts.MaxQueryLength {
		e.observe("error", 0, start)
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"query longer than %d characters", e.opts.MaxQueryLength)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("search cancelled: %w", err)
	}
	if limit <= 0 {
		limit = e.Limit()
	}

	_, span := tracing.StartChildSpan(ctx, "tokenize")
	tokens := e.tok.Tokenize(raw)
	span.SetAttr("tokens", len(tokens))
	span.End()
	result := &Result{
		Query:  strings.TrimSpace(raw),
		Tokens: tokens,
		Hits:   []Hit{},
	}
	if len(tokens) == 0 {
		e.observe("skipped", 0, start)
		return result, nil
	}

	_, span = tracing.StartChildSpan(ctx, "frequencies")
	docs := e.docs.Documents()
	for i, d := range docs {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				span.End()
				return nil, fmt.Errorf("search cancelled: %w", err)
			}
		}
		e.docs.EnsureFrequencies(d)
	}
	span.SetAttr("docs", len(docs))
	span.End()

	_, span = tracing.StartChildSpan(ctx, "rank")
	ranked := ranker.Rank(docs, tokens, 0)
	result.TotalHits = len(ranked)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	span.SetAttr("matches", result.TotalHits)
	span.End()

	_, span = tracing.StartChildSpan(ctx, "teasers")
	defer span.End()
	for _, r := range ranked {
		result.Hits = append(result.Hits, Hit{
			DocID:       r.DocID,
			URL:         r.Doc.URL,
			Breadcrumbs: r.Doc.Breadcrumbs,
			Score:       r.Score,
			Teaser:      teaser.Make(r.Doc.Body, tokens, e.opts.Window),
		})
	}

	resultType := "hit"
	if len(result.Hits) == 0 {
		resultType = "zero_result"
	}
	e.observe(resultType, len(result.Hits), start)
	e.logger.Debug("query executed",
		"query", result.Query,
		"tokens", tokens,
		"matches", result.TotalHits,
		"results", len(result.Hits),
		"duration", time.Since(start),
	)
	return result, nil
}

// RenderHits renders every hit as result list markup, numbering teasers
// from first.
func (e *Engine) RenderHits(r *Result, first int) []string {
	out := make([]string, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = teaser.FormatResult(e.opts.PathToRoot, teaser.Item{
			URL:         h.URL,
			Breadcrumbs: h.Breadcrumbs,
			Teaser:      h.Teaser,
		}, r.Tokens, first+i)
	}
	return out
}

func (e *Engine) observe(resultType string, results int, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if resultType == "error" {
		return
	}
	e.metrics.SearchLatency.WithLabelValues("engine").Observe(time.Since(start).Seconds())
	e.metrics.SearchResultsCount.Observe(float64(results))
}
