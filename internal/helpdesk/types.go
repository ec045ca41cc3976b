// internal/helpdesk/types.go
package helpdesk

import jsoniter "github.com/json-iterator/go"

// Ticket is the helpdesk support case record, reduced to the fields the
// automation consumes.
type Ticket struct {
	ID          int64    `json:"id"`
	Subject     string   `json:"subject"`
	Description string   `json:"description"`
	RequesterID int64    `json:"requester_id"`
	CreatedAt   string   `json:"created_at"`
	Status      string   `json:"status"`
	Tags        []string `json:"tags"`
}

// OrganizationFields carries the custom fields attached to a customer
// account entity.
type OrganizationFields struct {
	AccountCode   string `json:"account_code"`
	SupportRegion string `json:"support_region"`
}

// OrganizationMetadata is a customer account entity linked to tickets and
// users.
type OrganizationMetadata struct {
	ID                 int64              `json:"id"`
	Name               string             `json:"name"`
	OrganizationFields OrganizationFields `json:"organization_fields"`
}

// AuditEvent is one immutable log entry describing a ticket state change.
// The nested event payloads vary wildly by type, so they stay raw.
type AuditEvent struct {
	ID        int64                 `json:"id"`
	TicketID  int64                 `json:"ticket_id"`
	AuthorID  int64                 `json:"author_id"`
	CreatedAt string                `json:"created_at"`
	Events    []jsoniter.RawMessage `json:"events"`
}

// TicketMetadata is the merged view of a ticket: the ticket record itself,
// the organizations resolved for it (from the ticket or, when the ticket has
// none, from its requester), and optionally the full audit trail.
type TicketMetadata struct {
	Ticket        *Ticket                `json:"ticket"`
	Organizations []OrganizationMetadata `json:"organizations"`
	Audits        []AuditEvent           `json:"audits,omitempty"`
}

// empty reports whether the merged view carries no fields at all; such a view
// is invalid and its cache entry gets evicted.
func (m *TicketMetadata) empty() bool {
	return m == nil || (m.Ticket == nil && m.Organizations == nil && m.Audits == nil)
}

// merge overlays src onto m, field by field (shallow key union).
func (m *TicketMetadata) merge(src *TicketMetadata) {
	if src == nil {
		return
	}
	if src.Ticket != nil {
		m.Ticket = src.Ticket
	}
	if src.Organizations != nil {
		m.Organizations = src.Organizations
	}
	if src.Audits != nil {
		m.Audits = src.Audits
	}
}

// AuditPage is one page of the paginated audit listing. NextPage is the
// URL of the following page, empty on the last one.
type AuditPage struct {
	Audits   []AuditEvent `json:"audits"`
	NextPage string       `json:"next_page"`
}

// Article is a knowledge base article. Label names that are all digits are
// ticket ids linking the article back to its source tickets.
type Article struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	LabelNames []string `json:"label_names"`
}
