// internal/attachments/metadata.go
package attachments

import (
	"io"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// LinkMetadata describes one downloadable file referenced from a ticket
// conversation, together with the comment it was posted in.
type LinkMetadata struct {
	// Text is the human readable file name. The anchor text in the page is
	// truncated, so it is recovered from the href query string instead.
	Text      string
	Href      string
	Download  string
	CommentID string
	Author    string
	// Time is the human readable comment timestamp, Timestamp the
	// machine readable one used for ordering.
	Time      string
	Timestamp string
	// MissingCORSHeader marks links hosted on a domain that does not send
	// CORS headers. Those are listed but excluded from bulk download.
	MissingCORSHeader bool
}

// ParseConversation walks a conversation DOM snapshot and extracts every
// attachment reference: inline attachment anchors (class "attachment") and
// external large-file links in public comments. External links are
// recognized by the ticketAttachmentId marker in their href and are flagged
// as CORS-disqualified.
func ParseConversation(r io.Reader) ([]LinkMetadata, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []LinkMetadata
	walk(root, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		switch {
		case hasClass(n, "attachment"):
			if link, ok := attachmentLink(n); ok {
				links = append(links, link)
			}
		case isExternalAttachment(n):
			if link, ok := externalLink(n); ok {
				links = append(links, link)
			}
		}
	})
	return links, nil
}

// SortLinks orders attachments newest first; ties on the timestamp fall back
// to the file name, ascending.
func SortLinks(links []LinkMetadata) {
	sort.SliceStable(links, func(i, j int) bool {
		if links[i].Timestamp != links[j].Timestamp {
			return links[i].Timestamp > links[j].Timestamp
		}
		return links[i].Text < links[j].Text
	})
}

// FileNameFromHref recovers the original file name from the href query
// string ("?name=..."). The server encodes spaces as '+', which must be
// rewritten before percent-decoding so that literal pluses survive.
func FileNameFromHref(href string) string {
	idx := strings.Index(href, "?")
	if idx < 0 {
		return href
	}
	encoded := strings.TrimPrefix(href[idx+1:], "name=")
	encoded = strings.ReplaceAll(encoded, "+", "%20")
	decoded, err := url.PathUnescape(encoded)
	if err != nil {
		return encoded
	}
	return decoded
}

func attachmentLink(anchor *html.Node) (LinkMetadata, bool) {
	comment := closestComment(anchor)
	if comment == nil {
		return LinkMetadata{}, false
	}
	href := attr(anchor, "href")
	name := FileNameFromHref(href)

	link := LinkMetadata{
		Text:      name,
		Href:      href,
		Download:  name,
		CommentID: attr(comment, "data-comment-id"),
	}
	fillCommentInfo(&link, comment)
	return link, true
}

func externalLink(anchor *html.Node) (LinkMetadata, bool) {
	comment := closestComment(anchor)
	if comment == nil {
		return LinkMetadata{}, false
	}
	text := strings.TrimSpace(nodeText(anchor))

	link := LinkMetadata{
		Text:              text,
		Href:              attr(anchor, "href"),
		Download:          text,
		CommentID:         attr(comment, "data-comment-id"),
		MissingCORSHeader: true,
	}
	fillCommentInfo(&link, comment)
	return link, true
}

func fillCommentInfo(link *LinkMetadata, comment *html.Node) {
	if actor := findClass(comment, "div", "actor"); actor != nil {
		if name := findClass(actor, "", "name"); name != nil {
			link.Author = strings.TrimSpace(nodeText(name))
		}
	}
	if t := findElement(comment, "time"); t != nil {
		link.Time = attr(t, "title")
		link.Timestamp = attr(t, "datetime")
	}
}

// isExternalAttachment matches `.is-public .zd-comment > a` anchors whose
// href carries the large-attachment marker.
func isExternalAttachment(anchor *html.Node) bool {
	if !strings.Contains(attr(anchor, "href"), "ticketAttachmentId") {
		return false
	}
	parent := anchor.Parent
	if parent == nil || !hasClass(parent, "zd-comment") {
		return false
	}
	for n := parent.Parent; n != nil; n = n.Parent {
		if hasClass(n, "is-public") {
			return true
		}
	}
	return false
}

// --- small DOM helpers over x/net/html ---

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func closestComment(n *html.Node) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.Data == "div" && attr(cur, "data-comment-id") != "" {
			return cur
		}
	}
	return nil
}

// findClass returns the first descendant with the given class, optionally
// constrained to a tag name.
func findClass(root *html.Node, tag, class string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found != nil || n == root {
			return
		}
		if (tag == "" || n.Data == tag) && hasClass(n, class) {
			found = n
		}
	})
	return found
}

func findElement(root *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) {
		if found == nil && n.Type == html.ElementNode && n.Data == tag {
			found = n
		}
	})
	return found
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	})
	return sb.String()
}
