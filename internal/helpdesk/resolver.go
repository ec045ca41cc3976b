// internal/helpdesk/resolver.go
package helpdesk

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// API is the slice of the REST client the resolver consumes.
type API interface {
	TicketWithOrganizations(ctx context.Context, ticketID string) (*TicketMetadata, error)
	UserOrganizations(ctx context.Context, userID int64) ([]OrganizationMetadata, error)
	AuditPage(ctx context.Context, ticketID string, page int) (*AuditPage, error)
}

// entryState is the per-ticket cache lifecycle. Eviction removes the entry,
// so an evicted ticket is indistinguishable from an uncached one and the next
// call retries from scratch.
type entryState int

const (
	statePending entryState = iota
	stateCached
)

type ticketEntry struct {
	state entryState
	info  *TicketMetadata
}

// Resolver fetches and merges ticket, organization and user metadata, and
// owns the process wide caches. The Pending state is the sole guard against
// duplicate concurrent fetches for the same ticket: a caller that finds an
// entry Pending gets no callback and is expected to re-poll or rely on the
// original caller. It is deliberately not a queue.
type Resolver struct {
	api    API
	logger *zap.Logger

	mu            sync.Mutex
	tickets       map[string]*ticketEntry
	organizations map[string]OrganizationMetadata
	accountCodes  map[string]string
}

// NewResolver creates a Resolver with fresh caches.
func NewResolver(api API, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		api:           api,
		logger:        logger.Named("resolver"),
		tickets:       make(map[string]*ticketEntry),
		organizations: make(map[string]OrganizationMetadata),
		accountCodes:  make(map[string]string),
	}
}

// CheckTicket resolves ticket metadata and hands it to cb.
//
//   - Cached: cb is invoked immediately with the cached payload, no network.
//   - Pending: another caller's fetch is in flight; CheckTicket returns
//     without invoking cb.
//   - Otherwise the entry is marked Pending and fetched. A ticket without
//     organizations gets them from its requester's user record. Any
//     transport failure delivers nil to cb and evicts the entry so the next
//     call retries.
func (r *Resolver) CheckTicket(ctx context.Context, ticketID string, cb func(ticketID string, info *TicketMetadata)) {
	r.mu.Lock()
	if entry, ok := r.tickets[ticketID]; ok {
		if entry.state == statePending {
			r.mu.Unlock()
			return
		}
		info := entry.info
		r.mu.Unlock()
		cb(ticketID, info)
		return
	}
	r.tickets[ticketID] = &ticketEntry{state: statePending}
	r.mu.Unlock()

	payload, err := r.api.TicketWithOrganizations(ctx, ticketID)
	if err != nil {
		r.logger.Error("ticket fetch failed", zap.String("ticket_id", ticketID), zap.Error(err))
		r.evict(ticketID)
		cb(ticketID, nil)
		return
	}

	if len(payload.Organizations) == 0 && payload.Ticket != nil {
		orgs, err := r.api.UserOrganizations(ctx, payload.Ticket.RequesterID)
		if err != nil {
			r.logger.Error("requester fetch failed",
				zap.String("ticket_id", ticketID),
				zap.Int64("user_id", payload.Ticket.RequesterID),
				zap.Error(err))
			r.evict(ticketID)
			cb(ticketID, nil)
			return
		}
		payload.Organizations = orgs
	}

	r.cacheOrganizations(payload.Organizations)
	info := r.join(ticketID, payload)
	cb(ticketID, info)
}

// join merges a partial payload into the ticket's running view under the
// lock. A union that ends up with zero fields is invalid: the entry is
// evicted rather than cached empty.
func (r *Resolver) join(ticketID string, src *TicketMetadata) *TicketMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tickets[ticketID]
	if !ok {
		entry = &ticketEntry{state: statePending}
		r.tickets[ticketID] = entry
	}
	if entry.info == nil {
		entry.info = &TicketMetadata{}
	}
	entry.info.merge(src)

	if entry.info.empty() {
		delete(r.tickets, ticketID)
		return nil
	}
	entry.state = stateCached
	return entry.info
}

func (r *Resolver) evict(ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tickets, ticketID)
}

func (r *Resolver) cacheOrganizations(organizations []OrganizationMetadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, org := range organizations {
		r.organizations[org.OrganizationFields.AccountCode] = org
	}
}

// Organization returns a cached organization by account code.
func (r *Resolver) Organization(accountCode string) (OrganizationMetadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	org, ok := r.organizations[accountCode]
	return org, ok
}

// CheckEvents retrieves the full audit trail. The listing is paginated and
// each page request depends on the previous page's next_page flag, so the
// pages are inherently sequential. On success the accumulated audits are
// attached to info; returning is the completion signal. A transport failure
// returns the error without attaching anything, and the caller's chain
// proceeds without the audit trail.
func (r *Resolver) CheckEvents(ctx context.Context, ticketID string, info *TicketMetadata) error {
	var audits []AuditEvent
	for page := 1; ; page++ {
		pageData, err := r.api.AuditPage(ctx, ticketID, page)
		if err != nil {
			r.logger.Error("audit page fetch failed",
				zap.String("ticket_id", ticketID), zap.Int("page", page), zap.Error(err))
			return err
		}
		audits = append(audits, pageData.Audits...)
		if pageData.NextPage == "" {
			break
		}
	}
	info.Audits = audits
	return nil
}

// AccountCode resolves the account code for a ticket. Exactly one
// organization on the ticket is unambiguous and wins; otherwise formValue
// (the manually entered sidebar field, read lazily) is consulted. The result
// is cached per ticket once resolved non-empty; an empty result is never
// cached, so a later call retries after the agent fills the field in.
func (r *Resolver) AccountCode(ticketID string, info *TicketMetadata, formValue func() string) string {
	r.mu.Lock()
	if code, ok := r.accountCodes[ticketID]; ok && ticketID != "" {
		r.mu.Unlock()
		return code
	}
	r.mu.Unlock()

	var accountCode string
	if info != nil && len(info.Organizations) == 1 {
		accountCode = info.Organizations[0].OrganizationFields.AccountCode
	} else if formValue != nil {
		accountCode = formValue()
	}

	if ticketID != "" && accountCode != "" {
		r.mu.Lock()
		r.accountCodes[ticketID] = accountCode
		r.mu.Unlock()
	}
	return accountCode
}
