// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext derives a context from primary that is additionally
// canceled when secondary ends. chromedp operations need this: primary
// carries the CDP connection, secondary the per-operation deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps the parent's values (the CDP target
// information lives there) but outlives its cancellation. Used for shutdown
// work that must still reach the browser.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
