// internal/tracker/form.go
package tracker

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/browser/sequence"
	"github.com/deskmate-tools/deskmate-cli/internal/config"
	"github.com/deskmate-tools/deskmate-cli/internal/poll"
)

// Page is the slice of the DOM driver the form automation needs: everything
// the sequencer uses, plus reading widget text.
type Page interface {
	sequence.PageDriver
	Text(ctx context.Context, selector string) (string, error)
}

// BaselineSource resolves the baseline version pre-filled into the form.
// Implemented by Patcher; mocked in tests.
type BaselineSource interface {
	Baseline(ctx context.Context, accountCode string) string
}

// TicketFacts is the slice of ticket metadata the form consumes.
type TicketFacts struct {
	Subject       string
	CreatedAt     string
	AccountCode   string
	SupportRegion string
	Tags          []string
}

// Form fills the "Create Issue" modal.
type Form struct {
	page     Page
	seq      *sequence.Sequencer
	baseline BaselineSource
	cfg      config.TrackerConfig
	// widgetInterval is the slow poll cadence used while waiting for the
	// whole modal rather than a single element.
	widgetInterval time.Duration
	logger         *zap.Logger
}

// NewForm creates a Form driving the given page.
func NewForm(page Page, baseline BaselineSource, cfg config.TrackerConfig, pollCfg config.PollConfig, logger *zap.Logger) *Form {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Form{
		page:           page,
		seq:            sequence.NewSequencer(page, logger),
		baseline:       baseline,
		cfg:            cfg,
		widgetInterval: pollCfg.WidgetInterval,
		logger:         logger.Named("tracker"),
	}
}

// Automate runs the whole pre-fill procedure: pick the project, wait until
// the modal has settled on the Customer Issue type, then fill the fields.
func (f *Form) Automate(ctx context.Context, facts TicketFacts) error {
	if err := f.SelectProject(ctx); err != nil {
		return err
	}
	if err := f.WaitForCustomerIssue(ctx); err != nil {
		return err
	}
	return f.Fill(ctx, facts)
}

// SelectProject selects the configured project through the search-select
// dropdown.
func (f *Form) SelectProject(ctx context.Context) error {
	return f.seq.SearchSelect(ctx, "projectId", f.cfg.Project)
}

// WaitForCustomerIssue blocks until the issue-type menu has rendered and
// reads "Customer Issue". The menu repopulates asynchronously after the
// project selection, so both absence and a stale value mean "not yet".
func (f *Form) WaitForCustomerIssue(ctx context.Context) error {
	return poll.UntilTrue(ctx, f.widgetInterval, func(ctx context.Context) bool {
		text, err := f.page.Text(ctx, `div[data-test-id="issuetype-menu"]`)
		if err != nil {
			f.logger.Debug("issue type menu not readable yet", zap.Error(err))
			return false
		}
		return text == "Customer Issue"
	})
}

// Fill sets the form fields strictly in order. Individual field failures
// leave that field blank and the chain continues; an agent fixing one field
// by hand beats an aborted form.
func (f *Form) Fill(ctx context.Context, facts TicketFacts) error {
	versions := ProductVersions(facts.Tags)

	return f.seq.Run(ctx,
		sequence.Step{Name: "summary", Run: func(ctx context.Context) error {
			return f.page.SetValue(ctx, "input[data-test-id=summary]", facts.Subject)
		}},
		sequence.Step{Name: "creation date", Run: func(ctx context.Context) error {
			created, err := time.Parse(time.RFC3339, facts.CreatedAt)
			if err != nil {
				return fmt.Errorf("unparseable creation date %q: %w", facts.CreatedAt, err)
			}
			return f.page.SetValue(ctx, "span[data-test-id=customfield_10134] input", created)
		}},
		sequence.Step{Name: "baseline", Run: func(ctx context.Context) error {
			version := f.baseline.Baseline(ctx, facts.AccountCode)
			return f.page.SetValue(ctx, "input[data-test-id=customfield_10172]", version)
		}},
		sequence.Step{Name: "support offices", Run: func(ctx context.Context) error {
			return f.seq.AddLabels(ctx, "customfield_10133", SupportOffices(facts.SupportRegion))
		}},
		sequence.Step{Name: "affects version", Run: func(ctx context.Context) error {
			version := AffectsVersion(versions)
			if version == "" {
				return nil
			}
			return f.seq.AddLabel(ctx, "versions", version)
		}},
		sequence.Step{Name: "focus summary", Run: func(ctx context.Context) error {
			return f.page.Focus(ctx, "input[data-test-id=summary]")
		}},
	)
}

// SupportOffices maps an organization's support region to the office labels
// used by the tracker. Unknown regions map to nothing.
func SupportOffices(supportRegion string) []string {
	switch supportRegion {
	case "australia":
		return []string{"APAC", "AU/NZ"}
	case "brazil":
		return []string{"Brazil"}
	case "hungary":
		return []string{"EU"}
	case "india":
		return []string{"India"}
	case "japan":
		return []string{"Japan"}
	case "spain":
		return []string{"Spain"}
	case "us":
		return []string{"US"}
	default:
		return nil
	}
}

// productTagPattern matches version tags such as "7_2_x" or "7_3_sp1".
var productTagPattern = regexp.MustCompile(`^(\d+)_(\d+)(?:_|$)`)

// ProductVersions extracts the major.minor product versions referenced by
// the ticket's tags, deduplicated in first-seen order.
func ProductVersions(tags []string) []string {
	var versions []string
	seen := make(map[string]bool)
	for _, tag := range tags {
		match := productTagPattern.FindStringSubmatch(tag)
		if match == nil {
			continue
		}
		version := match[1] + "." + match[2]
		if !seen[version] {
			seen[version] = true
			versions = append(versions, version)
		}
	}
	return versions
}

// AffectsVersion maps the detected product versions onto the tracker's
// affects-version value. The oldest recognized line wins; unrecognized
// versions mean the field is skipped entirely.
func AffectsVersion(versions []string) string {
	mapping := []struct{ line, value string }{
		{"7.0", "7.0.10"},
		{"7.1", "7.1.10"},
		{"7.2", "7.2.10"},
		{"7.3", "7.3.10"},
	}
	for _, m := range mapping {
		for _, v := range versions {
			if v == m.line {
				return m.value
			}
		}
	}
	return ""
}
