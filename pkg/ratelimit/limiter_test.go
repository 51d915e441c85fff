package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterWait(t *testing.T) {
	limiter := New(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.Less(t, time.Since(start), 25*time.Millisecond, "first call should be immediate")

	start = time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	assert.Equal(t, int64(2), limiter.Stats().RequestCount)
}

func TestLimiterZeroInterval(t *testing.T) {
	limiter := New(0)
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Wait(context.Background()))
	}
	assert.Equal(t, int64(5), limiter.Stats().RequestCount)
}

func TestLimiterContextCancellation(t *testing.T) {
	limiter := New(time.Hour)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterBackoff(t *testing.T) {
	limiter := New(0)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	for i := 0; i < backoffThreshold; i++ {
		limiter.RecordError()
	}
	assert.False(t, limiter.Stats().InBackoff)

	limiter.RecordError()
	stats := limiter.Stats()
	assert.True(t, stats.InBackoff)
	assert.Equal(t, now.Add(4*backoffStep), stats.BackoffUntil)

	for i := 0; i < 20; i++ {
		limiter.RecordError()
	}
	assert.Equal(t, now.Add(maxBackoff), limiter.Stats().BackoffUntil)

	limiter.RecordSuccess()
	assert.Zero(t, limiter.Stats().ErrorCount)
}

func TestLimiterBackoffBlocksWait(t *testing.T) {
	limiter := New(0)
	limiter.backoffUntil = time.Now().Add(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx))
}

func TestLimiterConcurrentAccess(t *testing.T) {
	limiter := New(time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, limiter.Wait(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), limiter.Stats().RequestCount)
}
