// Package cache memoizes search results in process (LRU) and, optionally,
// in a shared remote tier. Keys include the corpus fingerprint and the
// tokenizer strategy, so a different index or tokenizer never reads stale
// entries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/metrics"
)

const (
	keyPrefix        = "docsearch:"
	DefaultLocalSize = 512
)

// Tier is a shared byte cache. *redis.Client satisfies it.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Key identifies one search.
type Key struct {
	Fingerprint string
	Strategy    string
	Query       string
	Limit       int
}

// Source says where a result came from.
type Source string

const (
	SourceLocal   Source = "local"
	SourceRemote  Source = "remote"
	SourceCompute Source = "compute"
)

type ResultCache struct {
	local   *lru.Cache[string, *engine.Result]
	remote  Tier
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds a cache. remote and m may be nil.
func New(localSize int, remote Tier, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	if localSize <= 0 {
		localSize = DefaultLocalSize
	}
	local, _ := lru.New[string, *engine.Result](localSize)
	return &ResultCache{
		local:   local,
		remote:  remote,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
}

// GetOrCompute returns the cached result for k or computes it once for all
// concurrent callers. Remote tier failures are logged and treated as misses.
func (c *ResultCache) GetOrCompute(
	ctx context.Context,
	k Key,
	compute func(ctx context.Context) (*engine.Result, error),
) (*engine.Result, Source, error) {
	key := buildKey(k)
	if res, ok := c.local.Get(key); ok {
		c.hit(SourceLocal)
		return res, SourceLocal, nil
	}

	type outcome struct {
		res    *engine.Result
		source Source
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		if res, ok := c.getRemote(ctx, key); ok {
			c.local.Add(key, res)
			return outcome{res, SourceRemote}, nil
		}
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.local.Add(key, res)
		c.setRemote(ctx, key, res)
		return outcome{res, SourceCompute}, nil
	})
	if err != nil {
		return nil, "", err
	}
	out := val.(outcome)
	if out.source == SourceRemote {
		c.hit(SourceRemote)
	} else if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
	return out.res, out.source, nil
}

// Invalidate drops every local entry and every remote entry for the given
// corpus fingerprint (all corpora when empty).
func (c *ResultCache) Invalidate(ctx context.Context, fingerprint string) error {
	c.local.Purge()
	if c.remote == nil {
		return nil
	}
	prefix := keyPrefix
	if fingerprint != "" {
		prefix += fingerprint + ":"
	}
	deleted, err := c.remote.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("invalidating result cache: %w", err)
	}
	c.logger.Info("result cache invalidated", "remote_keys_deleted", deleted)
	return nil
}

// Len is the number of entries in the local tier.
func (c *ResultCache) Len() int {
	return c.local.Len()
}

func (c *ResultCache) getRemote(ctx context.Context, key string) (*engine.Result, bool) {
	if c.remote == nil {
		return nil, false
	}
	data, ok, err := c.remote.Get(ctx, key)
	if err != nil {
		c.logger.Error("remote cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res engine.Result
	if err := json.Unmarshal(data, &res); err != nil {
		c.logger.Error("remote cache entry unreadable", "key", key, "error", err)
		return nil, false
	}
	return &res, true
}

func (c *ResultCache) setRemote(ctx context.Context, key string, res *engine.Result) {
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.remote.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("remote cache set failed", "key", key, "error", err)
	}
}

func (c *ResultCache) hit(source Source) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(string(source)).Inc()
	}
}

func buildKey(k Key) string {
	raw := fmt.Sprintf("%s|%s|limit=%d", k.Strategy, strings.TrimSpace(k.Query), k.Limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, k.Fingerprint, hash[:16])
}
