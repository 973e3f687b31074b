package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/resilience"
)

// maxAssetSize bounds remote downloads; search indexes for large books are
// tens of megabytes.
const maxAssetSize = 256 << 20

// Fetcher reads asset bytes from a local path or an http(s) URL.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	retry   resilience.RetryConfig
	maxSize int64
	tempDir string
	logger  *slog.Logger
}

func NewFetcher(cfg config.AssetsConfig) *Fetcher {
	return &Fetcher{
		client:  &http.Client{},
		timeout: cfg.FetchTimeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
		},
		maxSize: maxAssetSize,
		logger: slog.Default().With("component", "asset-fetcher"),
	}
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// zstdExt marks assets published compressed, e.g. searchindex.json.zst.
const zstdExt = ".zst"

var zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	return zstd.NewReader(nil)
})

func isCompressed(location string) bool {
	return strings.HasSuffix(location, zstdExt)
}

func decompress(location string, data []byte) ([]byte, error) {
	dec, err := zstdDecoder()
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", location, err)
	}
	return out, nil
}

// Fetch returns the full contents of location, decompressed when the name
// ends in .zst.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	data, err := f.fetchRaw(ctx, location)
	if err != nil {
		return nil, err
	}
	if isCompressed(location) {
		return decompress(location, data)
	}
	return data, nil
}

func (f *Fetcher) fetchRaw(ctx context.Context, location string) ([]byte, error) {
	if !isRemote(location) {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("reading asset %s: %w", location, err)
		}
		return data, nil
	}
	var data []byte
	err := resilience.Retry(ctx, "fetch "+location, f.retry, func(ctx context.Context) error {
		body, err := f.get(ctx, location)
		if err != nil {
			return err
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("asset fetched", "location", location, "bytes", len(data))
	return data, nil
}

// FetchFile makes location available as a local file and returns its path.
// Remote and compressed assets are written to a temporary file that lives for
// the rest of the process.
func (f *Fetcher) FetchFile(ctx context.Context, location string) (string, error) {
	if !isRemote(location) && !isCompressed(location) {
		if _, err := os.Stat(location); err != nil {
			return "", fmt.Errorf("stat asset %s: %w", location, err)
		}
		return location, nil
	}
	data, err := f.Fetch(ctx, location)
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(strings.TrimSuffix(location, zstdExt))
	return f.writeTemp(bytes.NewReader(data), ext)
}

// writeTemp copies r into a new temporary file. Nothing is left behind when
// the copy fails.
func (f *Fetcher) writeTemp(r io.Reader, ext string) (string, error) {
	tmp, err := os.CreateTemp(f.tempDir, "docsearch-*"+ext)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	_, err = io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("writing temp file %s: %w", tmp.Name(), err)
	}
	return tmp.Name(), nil
}

func (f *Fetcher) get(ctx context.Context, location string) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d for %s", resp.StatusCode, location)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", location, err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, resilience.Permanent(fmt.Errorf("asset %s exceeds %d bytes", location, f.maxSize))
	}
	return body, nil
}
