// internal/ticket/enhancer.go

// Package ticket orchestrates the agent ticket view enhancement: load the
// whole conversation, synthesize the attachment table, resolve the ticket's
// remote metadata and serve bulk downloads.
package ticket

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/attachments"
	"github.com/deskmate-tools/deskmate-cli/internal/helpdesk"
	"github.com/deskmate-tools/deskmate-cli/internal/poll"
)

// Page is the slice of the browser session the enhancer needs.
type Page interface {
	Evaluate(ctx context.Context, script string, out any) error
	DOMSnapshot(ctx context.Context) (string, error)
}

// TableRenderer places the synthesized attachment UI into the page.
// Implemented by the DOM renderer.
type TableRenderer interface {
	RenderAttachmentTable(ctx context.Context, ticketID string, links []attachments.LinkMetadata) error
	CheckedLinks(ctx context.Context) ([]string, error)
}

// Archiver runs the bulk download for a selection of links.
type Archiver interface {
	Run(ctx context.Context, ticketID, accountCode string, links []attachments.LinkMetadata) error
}

// MetadataSource resolves ticket metadata and the account code. Implemented
// by the helpdesk resolver.
type MetadataSource interface {
	CheckTicket(ctx context.Context, ticketID string, cb func(ticketID string, info *helpdesk.TicketMetadata))
	CheckEvents(ctx context.Context, ticketID string, info *helpdesk.TicketMetadata) error
	AccountCode(ticketID string, info *helpdesk.TicketMetadata, formValue func() string) string
}

// Enhancer drives one ticket view.
type Enhancer struct {
	page     Page
	renderer TableRenderer
	archiver Archiver
	metadata MetadataSource
	interval time.Duration
	logger   *zap.Logger

	links []attachments.LinkMetadata
}

// NewEnhancer creates an Enhancer. interval is the conversation poll cadence.
func NewEnhancer(page Page, renderer TableRenderer, archiver Archiver, metadata MetadataSource, interval time.Duration, logger *zap.Logger) *Enhancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Enhancer{
		page:     page,
		renderer: renderer,
		archiver: archiver,
		metadata: metadata,
		interval: interval,
		logger:   logger.Named("ticket"),
	}
}

// Enhance builds the attachment table for a ticket view and kicks off the
// metadata resolution. It blocks until the conversation is fully loaded and
// the table rendered; metadata arrives through the resolver's cache.
func (e *Enhancer) Enhance(ctx context.Context, ticketID string) error {
	if err := e.LoadFullConversation(ctx); err != nil {
		return err
	}

	links, err := e.ScanConversation(ctx)
	if err != nil {
		return err
	}
	e.links = links

	if len(links) > 0 {
		if err := e.renderer.RenderAttachmentTable(ctx, ticketID, links); err != nil {
			return err
		}
	}

	e.metadata.CheckTicket(ctx, ticketID, func(id string, info *helpdesk.TicketMetadata) {
		if info == nil {
			e.logger.Warn("ticket metadata unavailable", zap.String("ticket_id", id))
			return
		}
		if err := e.metadata.CheckEvents(ctx, id, info); err != nil {
			e.logger.Warn("audit trail unavailable", zap.String("ticket_id", id), zap.Error(err))
		}
		e.logger.Info("ticket metadata resolved",
			zap.String("ticket_id", id),
			zap.Int("organizations", len(info.Organizations)),
			zap.Int("audits", len(info.Audits)))
	})
	return nil
}

// LoadFullConversation clicks through the conversation's "show more" button
// until neither the button nor a progress bar remains. Older comments load
// in pages, and attachments hide in those older comments.
func (e *Enhancer) LoadFullConversation(ctx context.Context) error {
	const script = `(function() {
		const showMore = document.querySelector('button[data-test-id="convolog-show-more-button"]');
		if (showMore) {
			showMore.click();
			return false;
		}
		return !document.querySelector('[role="progressbar"]');
	})()`

	return poll.UntilTrue(ctx, e.interval, func(ctx context.Context) bool {
		var settled bool
		if err := e.page.Evaluate(ctx, script, &settled); err != nil {
			e.logger.Debug("conversation probe failed, retrying", zap.Error(err))
			return false
		}
		return settled
	})
}

// ScanConversation snapshots the loaded conversation and extracts the
// attachment links, newest first.
func (e *Enhancer) ScanConversation(ctx context.Context) ([]attachments.LinkMetadata, error) {
	markup, err := e.page.DOMSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	links, err := attachments.ParseConversation(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	attachments.SortLinks(links)
	return links, nil
}

// BulkDownload reads the current checkbox selection back from the page and
// hands the matching links to the archiver. The account code comes from the
// resolver, falling back to the organization field rendered in the sidebar.
func (e *Enhancer) BulkDownload(ctx context.Context, ticketID string, info *helpdesk.TicketMetadata) error {
	hrefs, err := e.renderer.CheckedLinks(ctx)
	if err != nil {
		return err
	}

	selected := make([]attachments.LinkMetadata, 0, len(hrefs))
	byHref := make(map[string]attachments.LinkMetadata, len(e.links))
	for _, link := range e.links {
		byHref[link.Href] = link
	}
	for _, href := range hrefs {
		if link, ok := byHref[href]; ok {
			selected = append(selected, link)
		}
	}

	accountCode := e.metadata.AccountCode(ticketID, info, func() string {
		return e.sidebarAccountCode(ctx)
	})
	return e.archiver.Run(ctx, ticketID, accountCode, selected)
}

// sidebarAccountCode reads the manually maintained account code field from
// the ticket sidebar. Empty when the field is absent or blank.
func (e *Enhancer) sidebarAccountCode(ctx context.Context) string {
	var value string
	script := `(function() {
		const field = document.querySelector('.custom_field_account_code input, input[name="account_code"]');
		return field ? field.value.trim() : '';
	})()`
	if err := e.page.Evaluate(ctx, script, &value); err != nil {
		e.logger.Debug("sidebar account code unreadable", zap.Error(err))
		return ""
	}
	return value
}
