// internal/browser/sequence/sequence.go

// Package sequence composes multi-step UI procedures out of the readiness
// poller and the synthetic input driver. The third-party widgets expose no
// "set selected options" API; only simulated user interaction reaches their
// internal state, and every step has to tolerate the menu or list rendering
// some time after the click that requested it.
package sequence

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/poll"
)

// PageDriver is the slice of the DOM driver the sequencer needs.
type PageDriver interface {
	Exists(ctx context.Context, selector string) (bool, error)
	Count(ctx context.Context, selector string) (int, error)
	Click(ctx context.Context, selector string) error
	ClickAll(ctx context.Context, selector string) (int, error)
	Focus(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector string, value any) error
	WaitFor(ctx context.Context, selector string) error
	Interval() time.Duration
}

// Step is one named stage of a procedure.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Sequencer executes ordered steps against a page.
type Sequencer struct {
	page   PageDriver
	logger *zap.Logger
}

// NewSequencer creates a Sequencer.
func NewSequencer(page PageDriver, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{page: page, logger: logger.Named("sequence")}
}

// Run executes steps strictly in declared order: step N+1 never begins before
// step N returns. A step failure is logged and the chain continues with the
// next step; the automation must make forward progress even when one field
// could not be filled. Only context cancellation aborts the chain.
func (s *Sequencer) Run(ctx context.Context, steps ...Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.Debug("running step", zap.Int("index", i), zap.String("step", step.Name))
		if err := step.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("step failed, continuing chain", zap.String("step", step.Name), zap.Error(err))
		}
	}
	return nil
}

// SearchSelect drives a search-select dropdown identified by its test id:
// open the control (only if not already expanded), wait for the option list
// to render, type the search text, wait for the list to narrow to exactly one
// option, and click all matches (by construction, exactly one).
func (s *Sequencer) SearchSelect(ctx context.Context, testID string, value any) error {
	fieldSel := fmt.Sprintf("div[data-test-id=%s]", testID)
	popupMarkerSel := fmt.Sprintf("div[data-test-id=%s] div[aria-haspopup=true]", testID)
	triggerSel := fmt.Sprintf("div[data-test-id=%s] div[role=button]", testID)
	optionSel := fmt.Sprintf(`div[data-test-id=%s-list] div[class*="optionText"]`, testID)
	searchSel := fmt.Sprintf("input[data-test-id=%s-search]", testID)

	return s.Run(ctx,
		Step{Name: "request popup", Run: func(ctx context.Context) error {
			if err := s.page.WaitFor(ctx, fieldSel); err != nil {
				return err
			}
			expanded, err := s.page.Exists(ctx, popupMarkerSel)
			if err != nil {
				return err
			}
			if expanded {
				// Clicking an already expanded control would collapse it.
				return nil
			}
			return s.page.Click(ctx, triggerSel)
		}},
		Step{Name: "wait for options", Run: func(ctx context.Context) error {
			return s.waitForCount(ctx, optionSel, atLeastOne)
		}},
		Step{Name: "filter and select", Run: func(ctx context.Context) error {
			if err := s.page.SetValue(ctx, searchSel, value); err != nil {
				return err
			}
			if err := s.waitForCount(ctx, optionSel, exactlyOne); err != nil {
				return err
			}
			n, err := s.page.ClickAll(ctx, optionSel)
			if err != nil {
				return err
			}
			s.logger.Debug("selected filtered options", zap.String("test_id", testID), zap.Int("count", n))
			return nil
		}},
	)
}

// AddLabel adds one value to a tag-like label list. The input is focused
// directly (these fields need no opening click), the value typed, and every
// item of the suggestion menu clicked once it renders.
func (s *Sequencer) AddLabel(ctx context.Context, testID string, value any) error {
	inputSel := fmt.Sprintf("div[data-test-id=%s] input", testID)
	menuItemSel := `div[class*="ssc-scrollable"] div[role=menuitem]`

	return s.Run(ctx,
		Step{Name: "focus label input", Run: func(ctx context.Context) error {
			if err := s.page.WaitFor(ctx, inputSel); err != nil {
				return err
			}
			return s.page.Focus(ctx, inputSel)
		}},
		Step{Name: "type and pick", Run: func(ctx context.Context) error {
			if err := s.page.SetValue(ctx, inputSel, value); err != nil {
				return err
			}
			if err := s.waitForCount(ctx, menuItemSel, atLeastOne); err != nil {
				return err
			}
			_, err := s.page.ClickAll(ctx, menuItemSel)
			return err
		}},
	)
}

// AddLabels applies values strictly in the given order; value N+1 is not
// typed until value N's menu click completed.
func (s *Sequencer) AddLabels(ctx context.Context, testID string, values []string) error {
	steps := make([]Step, 0, len(values))
	for _, value := range values {
		steps = append(steps, Step{
			Name: fmt.Sprintf("add label %q", value),
			Run: func(ctx context.Context) error {
				return s.AddLabel(ctx, testID, value)
			},
		})
	}
	return s.Run(ctx, steps...)
}

type countCondition func(n int) bool

func atLeastOne(n int) bool { return n >= 1 }
func exactlyOne(n int) bool { return n == 1 }

func (s *Sequencer) waitForCount(ctx context.Context, selector string, cond countCondition) error {
	return poll.UntilTrue(ctx, s.page.Interval(), func(ctx context.Context) bool {
		n, err := s.page.Count(ctx, selector)
		if err != nil {
			s.logger.Debug("count poll failed, retrying", zap.String("selector", selector), zap.Error(err))
			return false
		}
		return cond(n)
	})
}
