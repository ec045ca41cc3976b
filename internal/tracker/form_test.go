// internal/tracker/form_test.go
package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/config"
)

// fakeModal answers DOM queries the way a settled "Create Issue" modal
// would: every element exists, every option list has already narrowed to a
// single entry. It records the interactions in order.
type fakeModal struct {
	mu  sync.Mutex
	ops []string

	issueTypeReads int
	// issueTypeReadyAfter delays the "Customer Issue" text by this many
	// reads to exercise the widget poll.
	issueTypeReadyAfter int
}

func (m *fakeModal) record(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, fmt.Sprintf(format, args...))
}

func (m *fakeModal) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

func (m *fakeModal) Exists(ctx context.Context, selector string) (bool, error) {
	// The popup expansion marker is the one probe that must answer "no"
	// so the dropdown trigger gets clicked.
	if selector == "div[data-test-id=projectId] div[aria-haspopup=true]" {
		return false, nil
	}
	return true, nil
}

func (m *fakeModal) Count(ctx context.Context, selector string) (int, error) { return 1, nil }

func (m *fakeModal) Click(ctx context.Context, selector string) error {
	m.record("click %s", selector)
	return nil
}

func (m *fakeModal) ClickAll(ctx context.Context, selector string) (int, error) {
	m.record("clickall %s", selector)
	return 1, nil
}

func (m *fakeModal) Focus(ctx context.Context, selector string) error {
	m.record("focus %s", selector)
	return nil
}

func (m *fakeModal) SetValue(ctx context.Context, selector string, value any) error {
	if t, ok := value.(time.Time); ok {
		value = t.Format("01/02/2006")
	}
	m.record("set %s = %v", selector, value)
	return nil
}

func (m *fakeModal) WaitFor(ctx context.Context, selector string) error { return nil }

func (m *fakeModal) Interval() time.Duration { return time.Millisecond }

func (m *fakeModal) Text(ctx context.Context, selector string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issueTypeReads++
	if m.issueTypeReads <= m.issueTypeReadyAfter {
		return "Loading...", nil
	}
	return "Customer Issue", nil
}

type fixedBaseline struct {
	version string
	asked   []string
}

func (b *fixedBaseline) Baseline(ctx context.Context, accountCode string) string {
	b.asked = append(b.asked, accountCode)
	return b.version
}

func newTestForm(modal *fakeModal, baseline BaselineSource) *Form {
	cfg := config.TrackerConfig{Project: "LPP", PatcherURL: "https://patcher.invalid"}
	pollCfg := config.PollConfig{Interval: time.Millisecond, WidgetInterval: time.Millisecond}
	return NewForm(modal, baseline, cfg, pollCfg, zap.NewNop())
}

func TestFillSetsFieldsInDeclaredOrder(t *testing.T) {
	modal := &fakeModal{}
	baseline := &fixedBaseline{version: "7.2.10 DXP 8"}
	form := newTestForm(modal, baseline)

	facts := TicketFacts{
		Subject:       "Portal NPE on login",
		CreatedAt:     "2024-03-07T10:00:00Z",
		AccountCode:   "ABC123",
		SupportRegion: "australia",
		Tags:          []string{"prod", "7_2_x"},
	}
	require.NoError(t, form.Fill(context.Background(), facts))

	assert.Equal(t, []string{"ABC123"}, baseline.asked)

	want := []string{
		"set input[data-test-id=summary] = Portal NPE on login",
		"set span[data-test-id=customfield_10134] input = 03/07/2024",
		"set input[data-test-id=customfield_10172] = 7.2.10 DXP 8",
		"focus div[data-test-id=customfield_10133] input",
		"set div[data-test-id=customfield_10133] input = APAC",
		`clickall div[class*="ssc-scrollable"] div[role=menuitem]`,
		"focus div[data-test-id=customfield_10133] input",
		"set div[data-test-id=customfield_10133] input = AU/NZ",
		`clickall div[class*="ssc-scrollable"] div[role=menuitem]`,
		"focus div[data-test-id=versions] input",
		"set div[data-test-id=versions] input = 7.2.10",
		`clickall div[class*="ssc-scrollable"] div[role=menuitem]`,
		"focus input[data-test-id=summary]",
	}
	assert.Equal(t, want, modal.recorded())
}

func TestFillContinuesPastBadCreationDate(t *testing.T) {
	modal := &fakeModal{}
	form := newTestForm(modal, &fixedBaseline{})

	facts := TicketFacts{
		Subject:       "subject",
		CreatedAt:     "not a date",
		SupportRegion: "unknown-region",
	}
	require.NoError(t, form.Fill(context.Background(), facts))

	ops := modal.recorded()
	assert.Contains(t, ops, "set input[data-test-id=summary] = subject")
	// The date field is skipped, the empty baseline is still written, and
	// the chain reaches the final focus.
	assert.Contains(t, ops, "set input[data-test-id=customfield_10172] = ")
	assert.Equal(t, "focus input[data-test-id=summary]", ops[len(ops)-1])
}

func TestSelectProjectDrivesSearchSelect(t *testing.T) {
	modal := &fakeModal{}
	form := newTestForm(modal, &fixedBaseline{})

	require.NoError(t, form.SelectProject(context.Background()))

	want := []string{
		"click div[data-test-id=projectId] div[role=button]",
		"set input[data-test-id=projectId-search] = LPP",
		`clickall div[data-test-id=projectId-list] div[class*="optionText"]`,
	}
	assert.Equal(t, want, modal.recorded())
}

func TestWaitForCustomerIssuePollsUntilMenuSettles(t *testing.T) {
	modal := &fakeModal{issueTypeReadyAfter: 3}
	form := newTestForm(modal, &fixedBaseline{})

	require.NoError(t, form.WaitForCustomerIssue(context.Background()))
	assert.Equal(t, 4, modal.issueTypeReads)
}

func TestSupportOffices(t *testing.T) {
	assert.Equal(t, []string{"APAC", "AU/NZ"}, SupportOffices("australia"))
	assert.Equal(t, []string{"Brazil"}, SupportOffices("brazil"))
	assert.Equal(t, []string{"EU"}, SupportOffices("hungary"))
	assert.Equal(t, []string{"India"}, SupportOffices("india"))
	assert.Equal(t, []string{"Japan"}, SupportOffices("japan"))
	assert.Equal(t, []string{"Spain"}, SupportOffices("spain"))
	assert.Equal(t, []string{"US"}, SupportOffices("us"))
	assert.Nil(t, SupportOffices("atlantis"))
}

func TestProductVersions(t *testing.T) {
	versions := ProductVersions([]string{"prod", "7_2_x", "7_0_sp3", "7_2_x", "platinum"})
	assert.Equal(t, []string{"7.2", "7.0"}, versions)
}

func TestAffectsVersionPrefersOldestLine(t *testing.T) {
	assert.Equal(t, "7.0.10", AffectsVersion([]string{"7.3", "7.0"}))
	assert.Equal(t, "7.3.10", AffectsVersion([]string{"7.3"}))
	assert.Equal(t, "", AffectsVersion([]string{"6.2"}))
	assert.Equal(t, "", AffectsVersion(nil))
}
