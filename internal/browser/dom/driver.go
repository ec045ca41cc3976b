// internal/browser/dom/driver.go
package dom

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/poll"
)

// Evaluator runs a JavaScript expression inside the page and unmarshals the
// by-value result into out. The browser session implements it; tests mock it.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, out any) error
}

// dateLayout matches the MM/DD/YYYY display format the reactive datepicker
// widgets expect (Intl.DateTimeFormat with 2-digit month/day, numeric year).
const dateLayout = "01/02/2006"

// Driver sets values on inputs owned by a reactive framework. Writing
// element.value directly is not enough: the framework installs a prototype
// level property setter and only notices mutations that go through it, so the
// driver invokes that setter from inside the page and then dispatches a
// bubbling input event.
type Driver struct {
	eval     Evaluator
	logger   *zap.Logger
	interval time.Duration
}

// NewDriver creates a Driver polling at the given interval while it waits for
// elements to mount. A non-positive interval falls back to poll.DefaultInterval.
func NewDriver(eval Evaluator, logger *zap.Logger, interval time.Duration) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = poll.DefaultInterval
	}
	return &Driver{eval: eval, logger: logger.Named("dom"), interval: interval}
}

// Interval reports the element polling cadence.
func (d *Driver) Interval() time.Duration { return d.interval }

// Exists reports whether the selector currently matches an element.
func (d *Driver) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	script := fmt.Sprintf(`!!document.querySelector(%s)`, jsonEncode(selector))
	if err := d.eval.Evaluate(ctx, script, &found); err != nil {
		return false, fmt.Errorf("existence check for %q: %w", selector, err)
	}
	return found, nil
}

// Count returns how many elements the selector matches.
func (d *Driver) Count(ctx context.Context, selector string) (int, error) {
	var n int
	script := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsonEncode(selector))
	if err := d.eval.Evaluate(ctx, script, &n); err != nil {
		return 0, fmt.Errorf("count for %q: %w", selector, err)
	}
	return n, nil
}

// Text returns the trimmed textContent of the first match, or "" when the
// selector matches nothing.
func (d *Driver) Text(ctx context.Context, selector string) (string, error) {
	var text string
	script := fmt.Sprintf(`(function(sel) {
		const node = document.querySelector(sel);
		return node ? (node.textContent || '').trim() : '';
	})(%s)`, jsonEncode(selector))
	if err := d.eval.Evaluate(ctx, script, &text); err != nil {
		return "", fmt.Errorf("text for %q: %w", selector, err)
	}
	return text, nil
}

// WaitFor polls until the selector matches an element. Unbounded; bound it by
// deadline on ctx.
func (d *Driver) WaitFor(ctx context.Context, selector string) error {
	return poll.UntilTrue(ctx, d.interval, func(ctx context.Context) bool {
		found, err := d.Exists(ctx, selector)
		if err != nil {
			d.logger.Debug("existence poll failed, retrying", zap.String("selector", selector), zap.Error(err))
			return false
		}
		return found
	})
}

// Click dispatches a click on the first match. Missing elements are an error;
// callers that must tolerate late rendering poll first.
func (d *Driver) Click(ctx context.Context, selector string) error {
	var clicked bool
	script := fmt.Sprintf(`(function(sel) {
		const node = document.querySelector(sel);
		if (!node) return false;
		node.click();
		return true;
	})(%s)`, jsonEncode(selector))
	if err := d.eval.Evaluate(ctx, script, &clicked); err != nil {
		return fmt.Errorf("click on %q: %w", selector, err)
	}
	if !clicked {
		return fmt.Errorf("click on %q: no matching element", selector)
	}
	return nil
}

// ClickAll clicks every current match and returns how many were clicked.
func (d *Driver) ClickAll(ctx context.Context, selector string) (int, error) {
	var n int
	script := fmt.Sprintf(`(function(sel) {
		const nodes = Array.from(document.querySelectorAll(sel));
		nodes.forEach(function(node) { node.click(); });
		return nodes.length;
	})(%s)`, jsonEncode(selector))
	if err := d.eval.Evaluate(ctx, script, &n); err != nil {
		return 0, fmt.Errorf("click all on %q: %w", selector, err)
	}
	return n, nil
}

// Focus focuses the first match.
func (d *Driver) Focus(ctx context.Context, selector string) error {
	var focused bool
	script := fmt.Sprintf(`(function(sel) {
		const node = document.querySelector(sel);
		if (!node) return false;
		node.focus();
		return true;
	})(%s)`, jsonEncode(selector))
	if err := d.eval.Evaluate(ctx, script, &focused); err != nil {
		return fmt.Errorf("focus on %q: %w", selector, err)
	}
	if !focused {
		return fmt.Errorf("focus on %q: no matching element", selector)
	}
	return nil
}

// setValueScript applies the framework workaround: prefer the prototype level
// value setter (the framework intercepts it to reconcile its internal state),
// fall back to the instance setter, and dispatch a bubbling input event either
// way. When neither setter exists the value is silently not set; raising would
// halt the automation chain irrecoverably.
// See https://github.com/facebook/react/issues/10135#issuecomment-314441175
const setValueScript = `(function(sel, value) {
	const element = document.querySelector(sel);
	if (!element) return 'missing';

	const descriptor = Object.getOwnPropertyDescriptor(element, 'value');
	const instanceSetter = descriptor && descriptor.set;

	const prototype = Object.getPrototypeOf(element);
	const prototypeDescriptor = Object.getOwnPropertyDescriptor(prototype, 'value');
	const prototypeSetter = prototypeDescriptor && prototypeDescriptor.set;

	let applied = 'none';
	if (prototypeSetter) {
		prototypeSetter.call(element, value);
		applied = 'prototype';
	} else if (instanceSetter) {
		instanceSetter.call(element, value);
		applied = 'instance';
	}

	element.dispatchEvent(new Event('input', { bubbles: true }));
	return applied;
})(%s, %s)`

// SetValue waits for the element to mount, then writes value through the
// framework's setter and dispatches the input event. time.Time values are
// formatted the way the datepicker widgets display them. Calling SetValue
// twice with the same value dispatches twice; the prior value is never
// queried, and the duplicate event is an accepted side effect.
func (d *Driver) SetValue(ctx context.Context, selector string, value any) error {
	if t, ok := value.(time.Time); ok {
		value = t.Format(dateLayout)
	}

	script := fmt.Sprintf(setValueScript, jsonEncode(selector), jsonEncode(value))

	applied, err := poll.Until(ctx, d.interval, func(ctx context.Context) (string, bool) {
		var result string
		if err := d.eval.Evaluate(ctx, script, &result); err != nil {
			d.logger.Debug("set value evaluation failed, retrying", zap.String("selector", selector), zap.Error(err))
			return "", false
		}
		// The element may not have been mounted by the framework yet.
		return result, result != "missing"
	})
	if err != nil {
		return fmt.Errorf("set value on %q: %w", selector, err)
	}

	if applied == "none" {
		// Documented limitation: no setter means the value stays unset.
		d.logger.Warn("no value setter found; value not applied", zap.String("selector", selector))
	}
	return nil
}

// jsonEncode safely encodes a value for embedding in a JS expression.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
