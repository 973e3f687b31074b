package benchmark

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/assets"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/teaser"
)

func builtDocs(b *testing.B, n int) []*index.Document {
	b.Helper()
	c := index.NewDocumentCache(tokenizer.NewActive(nil))
	docs := c.BuildOnce(syntheticPayload(n))
	for _, d := range docs {
		c.EnsureFrequencies(d)
	}
	return docs
}

func BenchmarkRank(b *testing.B) {
	tokens := []string{"install", "guide", "配置文件"}
	for _, n := range []int{100, 1000, 10000} {
		docs := builtDocs(b, n)
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = ranker.Rank(docs, tokens, 30)
			}
		})
	}
}

func BenchmarkTeaser(b *testing.B) {
	body := sampleTexts["long"]
	tokens := []string{"search", "index", "标题"}
	b.ReportAllocs()
	b.SetBytes(int64(len(body)))
	for i := 0; i < b.N; i++ {
		_ = teaser.Make(body, tokens, teaser.DefaultWindow)
	}
}

type payloadFetcher []byte

func (f payloadFetcher) Fetch(context.Context, string) ([]byte, error) { return f, nil }

func (f payloadFetcher) FetchFile(context.Context, string) (string, error) {
	return "", errors.New("no dictionary")
}

const benchCorpus = `{"doc_urls":["a.html","b.html","c.html"],"index":{"documentStore":{"docs":{
  "0":{"title":"install guide","body":"Run the install script and follow the prompts."},
  "1":{"title":"configuration","body":"The configuration file controls the install path."},
  "2":{"title":"FAQ","body":"安装之前请先阅读配置文件说明。"}}}}}`

func newBenchEngine(b *testing.B) *engine.Engine {
	b.Helper()
	e := engine.New(engine.Options{IndexPath: "searchindex.json", LimitResults: 30},
		assets.NewLoader(nil), payloadFetcher(benchCorpus), nil)
	if err := e.Initialize(context.Background()); err != nil {
		b.Fatalf("initialize: %v", err)
	}
	return e
}

func BenchmarkEngineSearch(b *testing.B) {
	e := newBenchEngine(b)
	ctx := context.Background()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := e.SearchLoaded(ctx, "install configuration", 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEngineSearchParallel(b *testing.B) {
	e := newBenchEngine(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = e.SearchLoaded(ctx, "install", 0)
		}
	})
}

func BenchmarkResultCacheHit(b *testing.B) {
	e := newBenchEngine(b)
	rc := cache.New(128, nil, time.Minute, nil)
	ctx := context.Background()
	key := cache.Key{Fingerprint: e.Fingerprint(), Strategy: e.TokenizerStrategy(), Query: "install", Limit: 30}
	compute := func(ctx context.Context) (*engine.Result, error) {
		return e.SearchLoaded(ctx, "install", 30)
	}
	if _, _, err := rc.GetOrCompute(ctx, key, compute); err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = rc.GetOrCompute(ctx, key, compute)
	}
}
