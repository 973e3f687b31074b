package assets

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/config"
)

func testFetcher() *Fetcher {
	return NewFetcher(config.AssetsConfig{
		FetchTimeout:  time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	})
}

func TestFetch_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchindex.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"doc_urls":[]}`), 0o644))

	data, err := testFetcher().Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_urls":[]}`, string(data))
}

func TestFetch_LocalFileMissing(t *testing.T) {
	_, err := testFetcher().Fetch(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestFetch_RemoteRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	data, err := testFetcher().Fetch(context.Background(), ts.URL+"/searchindex.json")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_RemoteNotFoundIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer ts.Close()

	_, err := testFetcher().Fetch(context.Background(), ts.URL+"/missing.json")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchFile_DownloadsRemote(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("搜索 3 n\n"))
	}))
	defer ts.Close()

	path, err := testFetcher().FetchFile(context.Background(), ts.URL+"/dict.txt")
	require.NoError(t, err)
	defer os.Remove(path)
	assert.Equal(t, ".txt", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "搜索 3 n\n", string(data))
}

func TestFetchFile_LocalPathReturnedAsIs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt")
	require.NoError(t, os.WriteFile(path, []byte("x 1\n"), 0o644))

	got, err := testFetcher().FetchFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestFetch_DecompressesZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchindex.json.zst")
	require.NoError(t, os.WriteFile(path, compress(t, []byte(`{"doc_urls":["a.html"]}`)), 0o644))

	data, err := testFetcher().Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_urls":["a.html"]}`, string(data))
}

func TestFetch_CorruptZstd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "searchindex.json.zst")
	require.NoError(t, os.WriteFile(path, []byte("not zstd"), 0o644))

	_, err := testFetcher().Fetch(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decompressing")
}

func TestFetchFile_CompressedLocalIsExpanded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dict.txt.zst")
	require.NoError(t, os.WriteFile(path, compress(t, []byte("搜索 3 n\n")), 0o644))

	got, err := testFetcher().FetchFile(context.Background(), path)
	require.NoError(t, err)
	defer os.Remove(got)
	assert.Equal(t, ".txt", filepath.Ext(got))
	data, err := os.ReadFile(got)
	require.NoError(t, err)
	assert.Equal(t, "搜索 3 n\n", string(data))
}

func TestFetch_RemoteOversizedIsRejected(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"doc_urls":["a.html","b.html"]}`))
	}))
	defer ts.Close()

	f := testFetcher()
	f.maxSize = 8
	_, err := f.Fetch(context.Background(), ts.URL+"/searchindex.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 8 bytes")
	assert.Equal(t, int32(1), hits.Load(), "size errors are not retried")
}

func TestFetch_RemoteAtSizeLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("12345678"))
	}))
	defer ts.Close()

	f := testFetcher()
	f.maxSize = 8
	data, err := f.Fetch(context.Background(), ts.URL+"/dict.txt")
	require.NoError(t, err)
	assert.Equal(t, "12345678", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriteTemp_RemovesFileOnFailure(t *testing.T) {
	f := testFetcher()
	f.tempDir = t.TempDir()

	_, err := f.writeTemp(failingReader{}, ".txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
