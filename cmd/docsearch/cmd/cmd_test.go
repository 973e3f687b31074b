package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
)

const corpus = `{
  "doc_urls": ["install.html#top", "faq.html"],
  "index": {"documentStore": {"docs": {
    "0": {"title": "install guide", "body": "Run the install script & wait.", "breadcrumbs": "Guide » Install"},
    "1": {"title": "FAQ", "body": "install steps are covered in the install guide."}
  }}}
}`

func writeIndex(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "searchindex.json")
	require.NoError(t, os.WriteFile(path, []byte(corpus), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestQuery_Text(t *testing.T) {
	out, err := runCLI(t, "query", "install", "--index", writeIndex(t), "--dict", "missing.txt", "--no-color")
	require.NoError(t, err)

	assert.Contains(t, out, "2 条结果: 'install'")
	assert.Contains(t, out, " 1. Guide » Install  (6)")
	assert.Contains(t, out, "install.html#top")
	assert.Contains(t, out, "Run the install script & wait.")
}

func TestQuery_JSONWithLimit(t *testing.T) {
	out, err := runCLI(t, "query", "install", "--index", writeIndex(t), "--dict", "missing.txt", "--format", "json", "-n", "1")
	require.NoError(t, err)

	var res engine.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 2, res.TotalHits)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "install.html#top", res.Hits[0].URL)
}

func TestQuery_Errors(t *testing.T) {
	_, err := runCLI(t, "query")
	assert.Error(t, err, "terms are required")

	_, err = runCLI(t, "query", "install", "--index", filepath.Join(t.TempDir(), "none.json"), "--dict", "missing.txt")
	assert.Error(t, err)

	_, err = runCLI(t, "query", "install", "--index", writeIndex(t), "--dict", "missing.txt", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestRenderResults_NoMatches(t *testing.T) {
	out := renderResults(&engine.Result{Query: "zebra", Tokens: []string{"zebra"}, Hits: []engine.Hit{}}, plainStyles())
	assert.Equal(t, "未找到: 'zebra'\n", out)
}

func TestRenderResults_MoreNotShown(t *testing.T) {
	res := &engine.Result{
		Tokens:    []string{"a"},
		TotalHits: 3,
		Hits:      []engine.Hit{{URL: "a.html", Breadcrumbs: "A", Score: 5}},
	}
	assert.Contains(t, renderResults(res, plainStyles()), "2 more not shown")
}

func TestTerminalTeaser(t *testing.T) {
	got := terminalTeaser("a &lt;b&gt; <em>install</em> &amp; <em>run", plainStyles().Highlight)
	assert.Equal(t, "a <b> install & run", got)
}

func TestRoot_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  limitResults: -1\n"), 0o644))
	_, err := runCLI(t, "query", "x", "--config", path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestLoadTest_AgainstStubServer(t *testing.T) {
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		source := "compute"
		if n > 1 {
			source = "local"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"query":"` + r.URL.Query().Get("q") + `","cache_source":"` + source + `"}`))
	}))
	defer ts.Close()

	stats := runLoadTest(context.Background(), loadOptions{
		baseURL:     ts.URL,
		concurrency: 2,
		duration:    100 * time.Millisecond,
		limit:       5,
		queries:     []string{"install"},
	})
	require.Positive(t, stats.total.Load())
	assert.Zero(t, stats.failed.Load())
	assert.GreaterOrEqual(t, stats.cacheHits.Load(), stats.total.Load()-1, "only the first request computes")

	var out bytes.Buffer
	printLoadReport(&out, stats, 100*time.Millisecond)
	assert.Contains(t, out.String(), "200: ")
}

func TestLatencyPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), latencyPercentile(sorted, 50))
	assert.Equal(t, time.Duration(10), latencyPercentile(sorted, 99))
	assert.Zero(t, latencyPercentile(nil, 50))
}
