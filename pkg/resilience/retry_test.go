package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "fetch", fastRetry(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	sentinel := errors.New("unreachable")
	calls := 0
	err := Retry(context.Background(), "fetch", fastRetry(2), func(ctx context.Context) error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, calls)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("404 not found")
	calls := 0
	err := Retry(context.Background(), "fetch", fastRetry(5), func(ctx context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "fetch", fastRetry(3), func(ctx context.Context) error {
		return errors.New("fail")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
