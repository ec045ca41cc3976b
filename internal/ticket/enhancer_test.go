// internal/ticket/enhancer_test.go
package ticket

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/attachments"
	"github.com/deskmate-tools/deskmate-cli/internal/helpdesk"
)

const ticketConversation = `
<div data-comment-id="2001" class="is-public">
  <div class="actor"><span class="name">Ada Lovelace</span></div>
  <time title="March 8, 2024" datetime="2024-03-08T09:00:00Z"></time>
  <div class="zd-comment">
    <a class="attachment" href="https://files.example.com/att/2?name=newer.txt">newer.txt</a>
  </div>
</div>
<div data-comment-id="2002" class="is-public">
  <div class="actor"><span class="name">Grace Hopper</span></div>
  <time title="March 7, 2024" datetime="2024-03-07T09:00:00Z"></time>
  <div class="zd-comment">
    <a class="attachment" href="https://files.example.com/att/1?name=older.txt">older.txt</a>
  </div>
</div>
`

// fakeTicketPage simulates a conversation that needs a few show-more clicks
// and then a progress bar drain before it settles.
type fakeTicketPage struct {
	showMoreClicks int
	progressTicks  int
	sidebarValue   string
}

func (p *fakeTicketPage) Evaluate(ctx context.Context, script string, out any) error {
	if strings.Contains(script, "convolog-show-more-button") {
		settled := out.(*bool)
		if p.showMoreClicks > 0 {
			p.showMoreClicks--
			*settled = false
			return nil
		}
		if p.progressTicks > 0 {
			p.progressTicks--
			*settled = false
			return nil
		}
		*settled = true
		return nil
	}
	if strings.Contains(script, "account_code") {
		*(out.(*string)) = p.sidebarValue
		return nil
	}
	return nil
}

func (p *fakeTicketPage) DOMSnapshot(ctx context.Context) (string, error) {
	return ticketConversation, nil
}

type fakeTableRenderer struct {
	renderedID    string
	renderedLinks []attachments.LinkMetadata
	checked       []string
}

func (r *fakeTableRenderer) RenderAttachmentTable(ctx context.Context, ticketID string, links []attachments.LinkMetadata) error {
	r.renderedID = ticketID
	r.renderedLinks = links
	return nil
}

func (r *fakeTableRenderer) CheckedLinks(ctx context.Context) ([]string, error) {
	return r.checked, nil
}

type fakeArchiver struct {
	ticketID    string
	accountCode string
	links       []attachments.LinkMetadata
}

func (a *fakeArchiver) Run(ctx context.Context, ticketID, accountCode string, links []attachments.LinkMetadata) error {
	a.ticketID = ticketID
	a.accountCode = accountCode
	a.links = links
	return nil
}

type fakeMetadata struct {
	info        *helpdesk.TicketMetadata
	eventsErr   error
	eventCalls  int
	accountCode string
}

func (m *fakeMetadata) CheckTicket(ctx context.Context, ticketID string, cb func(string, *helpdesk.TicketMetadata)) {
	cb(ticketID, m.info)
}

func (m *fakeMetadata) CheckEvents(ctx context.Context, ticketID string, info *helpdesk.TicketMetadata) error {
	m.eventCalls++
	return m.eventsErr
}

func (m *fakeMetadata) AccountCode(ticketID string, info *helpdesk.TicketMetadata, formValue func() string) string {
	if m.accountCode != "" {
		return m.accountCode
	}
	return formValue()
}

func newTestEnhancer(page Page, renderer TableRenderer, archiver Archiver, metadata MetadataSource) *Enhancer {
	return NewEnhancer(page, renderer, archiver, metadata, time.Millisecond, zap.NewNop())
}

func TestEnhanceLoadsScansAndRenders(t *testing.T) {
	page := &fakeTicketPage{showMoreClicks: 2, progressTicks: 1}
	renderer := &fakeTableRenderer{}
	metadata := &fakeMetadata{info: &helpdesk.TicketMetadata{Ticket: &helpdesk.Ticket{ID: 42}}}
	e := newTestEnhancer(page, renderer, &fakeArchiver{}, metadata)

	require.NoError(t, e.Enhance(context.Background(), "42"))

	assert.Equal(t, "42", renderer.renderedID)
	require.Len(t, renderer.renderedLinks, 2)
	assert.Equal(t, "newer.txt", renderer.renderedLinks[0].Text, "newest attachment first")
	assert.Equal(t, "older.txt", renderer.renderedLinks[1].Text)
	assert.Equal(t, 1, metadata.eventCalls, "audit trail resolved after the metadata callback")
}

func TestEnhanceNilMetadataSkipsEvents(t *testing.T) {
	page := &fakeTicketPage{}
	metadata := &fakeMetadata{info: nil}
	e := newTestEnhancer(page, &fakeTableRenderer{}, &fakeArchiver{}, metadata)

	require.NoError(t, e.Enhance(context.Background(), "42"))
	assert.Zero(t, metadata.eventCalls)
}

func TestBulkDownloadMapsSelectionToLinks(t *testing.T) {
	page := &fakeTicketPage{}
	renderer := &fakeTableRenderer{checked: []string{"https://files.example.com/att/1?name=older.txt"}}
	archiver := &fakeArchiver{}
	metadata := &fakeMetadata{accountCode: "ABC123", info: &helpdesk.TicketMetadata{}}
	e := newTestEnhancer(page, renderer, archiver, metadata)

	require.NoError(t, e.Enhance(context.Background(), "42"))
	require.NoError(t, e.BulkDownload(context.Background(), "42", metadata.info))

	assert.Equal(t, "42", archiver.ticketID)
	assert.Equal(t, "ABC123", archiver.accountCode)
	require.Len(t, archiver.links, 1)
	assert.Equal(t, "older.txt", archiver.links[0].Download)
}

func TestBulkDownloadFallsBackToSidebarField(t *testing.T) {
	page := &fakeTicketPage{sidebarValue: "XYZ999"}
	renderer := &fakeTableRenderer{}
	archiver := &fakeArchiver{}
	metadata := &fakeMetadata{info: &helpdesk.TicketMetadata{}}
	e := newTestEnhancer(page, renderer, archiver, metadata)

	require.NoError(t, e.Enhance(context.Background(), "42"))
	require.NoError(t, e.BulkDownload(context.Background(), "42", metadata.info))

	assert.Equal(t, "XYZ999", archiver.accountCode)
}

func TestLoadFullConversationCancellation(t *testing.T) {
	page := &fakeTicketPage{showMoreClicks: 1 << 30}
	e := newTestEnhancer(page, &fakeTableRenderer{}, &fakeArchiver{}, &fakeMetadata{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := e.LoadFullConversation(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
