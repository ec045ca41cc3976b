// internal/poll/poll.go

// Package poll provides the scheduled retry primitive that the rest of the
// automation is built on. The target UIs render asynchronously and expose no
// completion signal, so every "wait for X" is expressed as a predicate
// checked on a fixed cadence.
package poll

import (
	"context"
	"time"
)

// DefaultInterval is the cadence used for element-level readiness checks.
const DefaultInterval = 100 * time.Millisecond

// Check inspects the world once. It returns the result and true when the
// awaited condition holds, or the zero value and false when it does not yet.
type Check[T any] func(ctx context.Context) (T, bool)

// Until invokes check immediately and then once per interval until it reports
// ready, returning the result exactly once. There is no retry bound: render
// latency of the target UI is unpredictable and a human is supervising, so
// patience is the policy. Callers that do want a deadline wrap ctx with one;
// cancellation is the only way Until returns without a result.
//
// Independent polls do not interfere; each call owns its own ticker.
func Until[T any](ctx context.Context, interval time.Duration, check Check[T]) (T, error) {
	var zero T
	if interval <= 0 {
		interval = DefaultInterval
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if v, ok := check(ctx); ok {
		return v, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
			if v, ok := check(ctx); ok {
				return v, nil
			}
		}
	}
}

// UntilTrue is Until for conditions with no interesting result.
func UntilTrue(ctx context.Context, interval time.Duration, check func(ctx context.Context) bool) error {
	_, err := Until(ctx, interval, func(ctx context.Context) (struct{}, bool) {
		return struct{}{}, check(ctx)
	})
	return err
}
