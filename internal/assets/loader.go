// Package assets loads the search subsystem's external assets (the
// segmentation dictionary and the search index payload) lazily and at most
// once per loader. Concurrent requests for the same asset share one in-flight
// load; results and failures are remembered for the loader's lifetime.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/metrics"
)

// Well-known asset keys.
const (
	KeySegmenter = "segmenter"
	KeyIndex     = "search-index"
)

// LoadFunc produces the value of an asset. It runs at most once per key.
type LoadFunc func(ctx context.Context) (any, error)

type result struct {
	value any
	err   error
}

type Loader struct {
	group   singleflight.Group
	mu      sync.RWMutex
	done    map[string]result
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLoader creates an empty Loader. m may be nil.
func NewLoader(m *metrics.Metrics) *Loader {
	return &Loader{
		done:    make(map[string]result),
		metrics: m,
		logger:  slog.Default().With("component", "asset-loader"),
	}
}

// Load returns the asset stored under key, running fn if no load has happened
// yet. The load itself is detached from ctx: once started it always runs to
// completion, ctx only bounds how long this caller waits for it.
func (l *Loader) Load(ctx context.Context, key string, fn LoadFunc) (any, error) {
	if r, ok := l.lookup(key); ok {
		return r.value, r.err
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		if r, ok := l.lookup(key); ok {
			return r.value, r.err
		}
		value, err := l.run(loadCtx, key, fn)
		l.mu.Lock()
		l.done[key] = result{value: value, err: err}
		l.mu.Unlock()
		return value, err
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for asset %s: %w", key, ctx.Err())
	}
}

// EnsureLoaded is the callback form of Load. onReady runs on its own
// goroutine once the asset is available, including when it already was. On
// failure onReady is never called; the failure has already been logged.
func (l *Loader) EnsureLoaded(key string, fn LoadFunc, onReady func(value any)) {
	go func() {
		value, err := l.Load(context.Background(), key, fn)
		if err != nil {
			return
		}
		onReady(value)
	}()
}

// Loaded reports whether key finished loading successfully.
func (l *Loader) Loaded(key string) bool {
	r, ok := l.lookup(key)
	return ok && r.err == nil
}

// Failed reports whether the load for key finished with an error.
func (l *Loader) Failed(key string) bool {
	r, ok := l.lookup(key)
	return ok && r.err != nil
}

func (l *Loader) lookup(key string) (result, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.done[key]
	return r, ok
}

func (l *Loader) run(ctx context.Context, key string, fn LoadFunc) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("asset loader panicked: %v", p)
		}
		status := "ok"
		if err != nil {
			status = "error"
			err = fmt.Errorf("loading asset %s: %w: %w", key, apperrors.ErrAssetUnavailable, err)
			l.logger.Error("failed to load asset", "asset", key, "error", err)
		} else {
			l.logger.Info("asset loaded", "asset", key)
		}
		if l.metrics != nil {
			l.metrics.AssetLoadsTotal.WithLabelValues(key, status).Inc()
		}
	}()
	return fn(ctx)
}
