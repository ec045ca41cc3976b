// internal/helpdesk/client.go
package helpdesk

import (
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to the helpdesk REST API. All requests carry cache busting
// headers: the agent UI aggressively caches these endpoints and stale ticket
// metadata is worse than no metadata.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client for the configured helpdesk instance.
func NewClient(cfg config.HelpdeskConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("helpdesk"),
	}
}

// NewClientWithHTTP creates a Client using a caller supplied http.Client.
// Used by tests and by callers that need custom transports.
func NewClientWithHTTP(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, logger: logger.Named("helpdesk")}
}

// TicketWithOrganizations fetches a ticket with its organizations side loaded.
func (c *Client) TicketWithOrganizations(ctx context.Context, ticketID string) (*TicketMetadata, error) {
	var payload TicketMetadata
	url := fmt.Sprintf("%s/api/v2/tickets/%s?include=organizations", c.baseURL, ticketID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// UserOrganizations fetches the organizations side loaded on a user record.
// Used when a ticket carries no organization of its own.
func (c *Client) UserOrganizations(ctx context.Context, userID int64) ([]OrganizationMetadata, error) {
	var payload struct {
		Organizations []OrganizationMetadata `json:"organizations"`
	}
	url := fmt.Sprintf("%s/api/v2/users/%d?include=organizations", c.baseURL, userID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	return payload.Organizations, nil
}

// AuditPage fetches one page of a ticket's audit trail. Page numbering
// starts at 1.
func (c *Client) AuditPage(ctx context.Context, ticketID string, page int) (*AuditPage, error) {
	var payload AuditPage
	url := fmt.Sprintf("%s/api/v2/tickets/%s/audits.json?page=%d", c.baseURL, ticketID, page)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Article fetches a knowledge base article.
func (c *Client) Article(ctx context.Context, articleID string) (*Article, error) {
	var payload struct {
		Article *Article `json:"article"`
	}
	url := fmt.Sprintf("%s/api/v2/help_center/articles/%s.json", c.baseURL, articleID)
	if err := c.getJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	if payload.Article == nil {
		return nil, fmt.Errorf("article %s: payload missing article object", articleID)
	}
	return payload.Article, nil
}

// Download fetches a binary attachment. href is absolute: attachment hosts
// differ from the API host.
func (c *Client) Download(ctx context.Context, href string) ([]byte, error) {
	req, err := c.newRequest(ctx, href)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", href, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download %s: unexpected status %d", href, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download %s: reading body: %w", href, err)
	}
	return data, nil
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("Cache-Control", "no-cache, no-store, max-age=0")
	req.Header.Set("Pragma", "no-cache")
	return req, nil
}

// getJSON performs a GET and decodes the JSON body. A non-2xx status or a
// malformed body are both transport failures; callers translate them into
// the null-payload signal their chain expects.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("request failed",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode),
			zap.String("status_text", http.StatusText(resp.StatusCode)))
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: reading body: %w", url, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GET %s: malformed JSON: %w", url, err)
	}
	return nil
}
