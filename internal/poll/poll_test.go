// internal/poll/poll_test.go
package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilSucceedsAfterKTicks(t *testing.T) {
	const k = 3
	var calls int32

	start := time.Now()
	v, err := Until(context.Background(), 10*time.Millisecond, func(ctx context.Context) (string, bool) {
		// The first invocation happens immediately, then one per tick. The
		// condition holds on the k-th tick.
		if atomic.AddInt32(&calls, 1) > k {
			return "ready", true
		}
		return "", false
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ready", v)
	assert.Equal(t, int32(k+1), atomic.LoadInt32(&calls), "check runs once immediately plus once per tick")
	assert.GreaterOrEqual(t, elapsed, time.Duration(k)*10*time.Millisecond, "success must not fire before k ticks")
}

func TestUntilImmediateSuccessSkipsScheduling(t *testing.T) {
	var calls int
	v, err := Until(context.Background(), time.Hour, func(ctx context.Context) (int, bool) {
		calls++
		return 42, true
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestUntilRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := Until(ctx, 5*time.Millisecond, func(ctx context.Context) (int, bool) {
		return 0, false
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUntilIndependentPollsDoNotInterfere(t *testing.T) {
	ctx := context.Background()
	var aTicks, bTicks int32

	done := make(chan struct{}, 2)
	go func() {
		_, err := Until(ctx, 5*time.Millisecond, func(ctx context.Context) (int, bool) {
			return 1, atomic.AddInt32(&aTicks, 1) >= 4
		})
		assert.NoError(t, err)
		done <- struct{}{}
	}()
	go func() {
		_, err := Until(ctx, 5*time.Millisecond, func(ctx context.Context) (int, bool) {
			return 2, atomic.AddInt32(&bTicks, 1) >= 2
		})
		assert.NoError(t, err)
		done <- struct{}{}
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("poll did not finish")
		}
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&aTicks), int32(4))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&bTicks), int32(2))
}

func TestUntilTrue(t *testing.T) {
	var calls int
	err := UntilTrue(context.Background(), time.Millisecond, func(ctx context.Context) bool {
		calls++
		return calls == 3
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilDoesNotCheckAfterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Until(ctx, time.Millisecond, func(ctx context.Context) (int, bool) {
		called = true
		return 0, true
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called, "a cancelled context must short-circuit the first check")
}
