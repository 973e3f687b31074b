// Package handler serves the JSON search API on top of the search engine and
// the result cache.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/tracing"
)

// Searcher is the engine surface the API needs.
type Searcher interface {
	Initialize(ctx context.Context) error
	SearchLoaded(ctx context.Context, raw string, limit int) (*engine.Result, error)
	RenderHits(r *engine.Result, first int) []string
	Fingerprint() string
	TokenizerStrategy() string
	Limit() int
}

type Handler struct {
	searcher  Searcher
	cache     *cache.ResultCache
	collector *analytics.Collector
	maxLimit  int
	logger    *slog.Logger
}

type hitView struct {
	engine.Hit
	HTML string `json:"html"`
}

type searchResponse struct {
	Query       string    `json:"query"`
	Tokens      []string  `json:"tokens"`
	TotalHits   int       `json:"total_hits"`
	Results     []hitView `json:"results"`
	CacheSource string    `json:"cache_source,omitempty"`
	TookMs      int64     `json:"took_ms"`
}

// New builds the handler. resultCache and collector may be nil; maxLimit
// <= 0 leaves the limit parameter uncapped.
func New(s Searcher, resultCache *cache.ResultCache, collector *analytics.Collector, maxLimit int) *Handler {
	return &Handler{
		searcher:  s,
		cache:     resultCache,
		collector: collector,
		maxLimit:  maxLimit,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search serves GET /api/v1/search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	if err := h.searcher.Initialize(ctx); err != nil {
		h.writeSearchError(w, log, query, err)
		return
	}
	if limit == 0 {
		limit = h.searcher.Limit()
	}
	if h.maxLimit > 0 && (limit <= 0 || limit > h.maxLimit) {
		limit = h.maxLimit
	}

	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	result, source, err := h.run(ctx, query, limit)
	span.SetAttr("cache_source", string(source))
	span.End()
	span.Log(log)
	if err != nil {
		h.writeSearchError(w, log, query, err)
		return
	}

	took := time.Since(start)
	log.Info("search completed",
		"query", result.Query,
		"total_hits", result.TotalHits,
		"returned", len(result.Hits),
		"cache_source", source,
		"latency_ms", took.Milliseconds(),
	)
	if h.collector != nil {
		e := analytics.NewSearchEvent(analytics.OriginAPI, result.Query, result.Tokens, result.TotalHits, len(result.Hits), took)
		e.CacheSource = string(source)
		e.Tokenizer = h.searcher.TokenizerStrategy()
		e.RequestID = logger.RequestID(ctx)
		h.collector.RecordSearch(e)
	}

	resp := searchResponse{
		Query:     result.Query,
		Tokens:    result.Tokens,
		TotalHits: result.TotalHits,
		Results:   make([]hitView, len(result.Hits)),
		TookMs:    took.Milliseconds(),
	}
	if h.cache != nil {
		resp.CacheSource = string(source)
	}
	html := h.searcher.RenderHits(result, 0)
	for i, hit := range result.Hits {
		resp.Results[i] = hitView{Hit: hit, HTML: html[i]}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) run(ctx context.Context, query string, limit int) (*engine.Result, cache.Source, error) {
	if h.cache == nil {
		res, err := h.searcher.SearchLoaded(ctx, query, limit)
		return res, cache.SourceCompute, err
	}
	key := cache.Key{
		Fingerprint: h.searcher.Fingerprint(),
		Strategy:    h.searcher.TokenizerStrategy(),
		Query:       query,
		Limit:       limit,
	}
	return h.cache.GetOrCompute(ctx, key, func(ctx context.Context) (*engine.Result, error) {
		return h.searcher.SearchLoaded(ctx, query, limit)
	})
}

// CacheStats serves GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "enabled",
		"local_entries": h.cache.Len(),
		"fingerprint":   h.searcher.Fingerprint(),
		"tokenizer":     h.searcher.TokenizerStrategy(),
	})
}

// CacheInvalidate serves DELETE /api/v1/cache.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context(), h.searcher.Fingerprint()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeSearchError(w http.ResponseWriter, log *slog.Logger, query string, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = apperrors.ErrTimeout
	}
	status := apperrors.HTTPStatusCode(err)
	message := "search failed"
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		message = appErr.Message
	case status != http.StatusInternalServerError:
		message = err.Error()
	}
	if status >= http.StatusInternalServerError {
		log.Error("search failed", "query", query, "status", status, "error", err)
	} else {
		log.Warn("search rejected", "query", query, "status", status, "error", err)
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
