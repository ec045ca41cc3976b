// internal/renderer/renderer.go

// Package renderer is the only place that builds DOM nodes. Core logic hands
// it structured data (attachment links, archive bytes, ticket URLs) and the
// renderer turns that into markup inside the live page, keeping the page
// manipulation JS out of the decision-making code.
package renderer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/attachments"
	"github.com/deskmate-tools/deskmate-cli/internal/browser/dom"
)

// DOMRenderer renders into the live page through the session's Evaluator.
type DOMRenderer struct {
	eval   dom.Evaluator
	logger *zap.Logger
}

// NewDOMRenderer creates a DOMRenderer.
func NewDOMRenderer(eval dom.Evaluator, logger *zap.Logger) *DOMRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DOMRenderer{eval: eval, logger: logger.Named("renderer")}
}

// RenderAttachmentTable builds the synthesized attachments container above
// the conversation: one row per link with file name, author, comment
// permalink and a selection checkbox, plus the bulk download trigger.
// CORS-disqualified rows render with a disabled, unchecked checkbox and an
// explanatory title.
func (r *DOMRenderer) RenderAttachmentTable(ctx context.Context, ticketID string, links []attachments.LinkMetadata) error {
	script := fmt.Sprintf(`(function(ticketId, links) {
		const anchor = document.querySelector('div[data-side-conversations-anchor-id="' + ticketId + '"]');
		if (!anchor) return false;
		const previous = anchor.querySelector('.deskmate-attachments');
		if (previous) previous.remove();
		if (links.length === 0) return true;

		const container = document.createElement('div');
		container.classList.add('deskmate-attachments');

		const label = document.createElement('div');
		label.classList.add('deskmate-attachments-label');
		label.textContent = 'Attachments:';
		container.appendChild(label);

		const info = document.createElement('div');
		info.classList.add('deskmate-attachment-info');

		for (const link of links) {
			const row = document.createElement('a');
			row.textContent = link.text;
			row.setAttribute('href', link.href);
			row.setAttribute('download', link.download);
			row.classList.add('attachment');
			info.appendChild(row);

			const extra = document.createElement('div');
			extra.classList.add('deskmate-attachment-extra-info');
			extra.appendChild(document.createTextNode(link.author + ' on '));
			const permalink = document.createElement('a');
			permalink.textContent = link.time;
			permalink.setAttribute('data-comment-id', link.commentId);
			permalink.classList.add('attachment-comment-link');
			extra.appendChild(permalink);
			info.appendChild(extra);

			const checkbox = document.createElement('input');
			checkbox.setAttribute('type', 'checkbox');
			checkbox.setAttribute('data-href', link.href);
			checkbox.setAttribute('data-download', link.download);
			if (link.missingCorsHeader) {
				checkbox.disabled = true;
				checkbox.setAttribute('title', 'The domain where this attachment is hosted does not send proper CORS headers, so it is not eligible for bulk download.');
			} else {
				checkbox.checked = true;
			}
			info.appendChild(checkbox);
		}
		container.appendChild(info);

		const bulk = document.createElement('div');
		bulk.classList.add('deskmate-attachments-bulk-download');
		const trigger = document.createElement('a');
		trigger.textContent = 'Generate Bulk Download';
		trigger.classList.add('deskmate-bulk-download-trigger');
		bulk.appendChild(trigger);
		container.appendChild(bulk);

		anchor.prepend(container);
		return true;
	})(%s, %s)`, jsString(ticketID), jsLinks(links))

	var rendered bool
	if err := r.eval.Evaluate(ctx, script, &rendered); err != nil {
		return fmt.Errorf("rendering attachment table: %w", err)
	}
	if !rendered {
		return fmt.Errorf("rendering attachment table: conversation for ticket %s not present", ticketID)
	}
	return nil
}

// CheckedLinks reads the current selection state back out of the rendered
// table: the hrefs of every enabled, checked checkbox.
func (r *DOMRenderer) CheckedLinks(ctx context.Context) ([]string, error) {
	var hrefs []string
	script := `Array.from(document.querySelectorAll('.deskmate-attachment-info input[type=checkbox]'))
		.filter(cb => cb.checked && !cb.disabled)
		.map(cb => cb.getAttribute('data-href'))`
	if err := r.eval.Evaluate(ctx, script, &hrefs); err != nil {
		return nil, fmt.Errorf("reading attachment selection: %w", err)
	}
	return hrefs, nil
}

// DisableSelection freezes every attachment checkbox so the selection cannot
// change once the bulk download started.
func (r *DOMRenderer) DisableSelection(ctx context.Context) error {
	var n int
	script := `(function() {
		const boxes = document.querySelectorAll('.deskmate-attachment-info input[type=checkbox]');
		for (const box of boxes) box.disabled = true;
		return boxes.length;
	})()`
	if err := r.eval.Evaluate(ctx, script, &n); err != nil {
		return fmt.Errorf("freezing attachment selection: %w", err)
	}
	return nil
}

// MarkBusy toggles the in-progress styling on the bulk download trigger.
func (r *DOMRenderer) MarkBusy(ctx context.Context, busy bool) error {
	script := fmt.Sprintf(`(function(busy) {
		const trigger = document.querySelector('.deskmate-bulk-download-trigger');
		if (!trigger) return false;
		trigger.classList.toggle('downloading', busy);
		return true;
	})(%t)`, busy)
	var ok bool
	if err := r.eval.Evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("toggling busy indicator: %w", err)
	}
	return nil
}

// MarkDownloading toggles the in-progress styling on the table row whose
// link carries the given href.
func (r *DOMRenderer) MarkDownloading(ctx context.Context, href string, busy bool) error {
	script := fmt.Sprintf(`(function(href, busy) {
		const rows = document.querySelectorAll('.deskmate-attachment-info a.attachment');
		let found = false;
		for (const row of rows) {
			if (row.getAttribute('href') !== href) continue;
			row.classList.toggle('downloading', busy);
			found = true;
		}
		return found;
	})(%s, %t)`, jsString(href), busy)
	var ok bool
	if err := r.eval.Evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("toggling row indicator: %w", err)
	}
	return nil
}

// PublishArchive replaces the bulk download trigger with a link to the
// finished archive. The bytes travel as a base64 data URL; the page side
// turns them into an object URL so the browser treats it as a download.
func (r *DOMRenderer) PublishArchive(ctx context.Context, name string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	script := fmt.Sprintf(`(async function(name, b64) {
		const trigger = document.querySelector('.deskmate-bulk-download-trigger');
		if (!trigger) return false;
		const resp = await fetch('data:application/zip;base64,' + b64);
		const blob = await resp.blob();
		const link = document.createElement('a');
		link.textContent = 'Download ' + name;
		link.setAttribute('href', URL.createObjectURL(blob));
		link.setAttribute('download', name);
		link.classList.add('deskmate-attachments-download-blob');
		trigger.parentElement.replaceChild(link, trigger);
		return true;
	})(%s, %s)`, jsString(name), jsString(encoded))

	var ok bool
	if err := r.eval.Evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("publishing archive %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("publishing archive %s: bulk download trigger not present", name)
	}
	return nil
}

// PublishTicketLinks appends agent ticket links to the article meta section.
// Idempotent per page load via the marker class.
func (r *DOMRenderer) PublishTicketLinks(ctx context.Context, urls []string) error {
	script := fmt.Sprintf(`(function(urls) {
		const meta = document.querySelector('div.article-author .article-meta');
		if (!meta || meta.classList.contains('deskmate-article-linked')) return false;
		meta.classList.add('deskmate-article-linked');
		const group = document.createElement('div');
		group.classList.add('meta-group', 'secondary-font', 'secondary-text-color');
		group.style.gap = '0.5em';
		for (const url of urls) {
			const link = document.createElement('a');
			link.textContent = url;
			link.setAttribute('href', url);
			group.appendChild(link);
		}
		meta.appendChild(group);
		return true;
	})(%s)`, jsValue(urls))

	var ok bool
	if err := r.eval.Evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("rendering ticket links: %w", err)
	}
	return nil
}

// RemoveTicketLinksPlaceholder drops the link group again when no source
// tickets resolved.
func (r *DOMRenderer) RemoveTicketLinksPlaceholder(ctx context.Context) error {
	script := `(function() {
		const meta = document.querySelector('div.article-author .article-meta');
		if (!meta) return false;
		const group = meta.querySelector('.meta-group');
		if (group) group.remove();
		return true;
	})()`
	var ok bool
	if err := r.eval.Evaluate(ctx, script, &ok); err != nil {
		return fmt.Errorf("removing ticket links placeholder: %w", err)
	}
	return nil
}

func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}

func jsValue(v any) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(encoded)
}

// jsLinks serializes link metadata with the field names the render script
// expects.
func jsLinks(links []attachments.LinkMetadata) string {
	type wireLink struct {
		Text              string `json:"text"`
		Href              string `json:"href"`
		Download          string `json:"download"`
		CommentID         string `json:"commentId"`
		Author            string `json:"author"`
		Time              string `json:"time"`
		MissingCORSHeader bool   `json:"missingCorsHeader"`
	}
	wire := make([]wireLink, 0, len(links))
	for _, l := range links {
		wire = append(wire, wireLink{
			Text:              l.Text,
			Href:              l.Href,
			Download:          l.Download,
			CommentID:         l.CommentID,
			Author:            l.Author,
			Time:              l.Time,
			MissingCORSHeader: l.MissingCORSHeader,
		})
	}
	return jsValue(wire)
}
