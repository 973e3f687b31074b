package assets

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/metrics"
)

func TestLoad_RunsOnceAndCaches(t *testing.T) {
	l := NewLoader(nil)
	var calls atomic.Int32
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "payload", nil
	}

	for i := 0; i < 3; i++ {
		v, err := l.Load(context.Background(), KeyIndex, fn)
		require.NoError(t, err)
		assert.Equal(t, "payload", v)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, l.Loaded(KeyIndex))
}

func TestLoad_ConcurrentRequestsShareInFlightLoad(t *testing.T) {
	l := NewLoader(nil)
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Load(context.Background(), KeySegmenter, fn)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestLoad_FailureIsRemembered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	l := NewLoader(m)
	var calls atomic.Int32
	fn := func(ctx context.Context) (any, error) {
		calls.Add(1)
		return nil, errors.New("404")
	}

	_, err := l.Load(context.Background(), KeyIndex, fn)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAssetUnavailable)

	_, err = l.Load(context.Background(), KeyIndex, fn)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, l.Failed(KeyIndex))
	assert.False(t, l.Loaded(KeyIndex))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssetLoadsTotal.WithLabelValues(KeyIndex, "error")))
}

func TestLoad_PanicBecomesFailure(t *testing.T) {
	l := NewLoader(nil)
	_, err := l.Load(context.Background(), KeySegmenter, func(ctx context.Context) (any, error) {
		panic("dictionary corrupt")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dictionary corrupt")
}

func TestLoad_CallerContextDoesNotCancelLoad(t *testing.T) {
	l := NewLoader(nil)
	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		<-release
		return "late", ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := l.Load(ctx, KeyIndex, fn)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := l.Load(context.Background(), KeyIndex, fn)
	require.NoError(t, err)
	assert.Equal(t, "late", v)
}

func TestEnsureLoaded_InvokesOnReady(t *testing.T) {
	l := NewLoader(nil)
	got := make(chan any, 2)
	fn := func(ctx context.Context) (any, error) { return "ready", nil }

	l.EnsureLoaded(KeyIndex, fn, func(v any) { got <- v })
	l.EnsureLoaded(KeyIndex, fn, func(v any) { got <- v })

	for i := 0; i < 2; i++ {
		select {
		case v := <-got:
			assert.Equal(t, "ready", v)
		case <-time.After(time.Second):
			t.Fatal("onReady not invoked")
		}
	}
}

func TestEnsureLoaded_FailureNeverInvokesOnReady(t *testing.T) {
	l := NewLoader(nil)
	called := make(chan struct{}, 1)
	l.EnsureLoaded(KeySegmenter, func(ctx context.Context) (any, error) {
		return nil, errors.New("script error")
	}, func(any) { called <- struct{}{} })

	require.Eventually(t, func() bool { return l.Failed(KeySegmenter) }, time.Second, 5*time.Millisecond)
	select {
	case <-called:
		t.Fatal("onReady must not run after a failed load")
	case <-time.After(30 * time.Millisecond):
	}
}
