// internal/tracker/patcher.go

// Package tracker drives the issue tracker's "Create Issue" modal,
// pre-filling it from helpdesk ticket metadata. The modal is a reactive
// third-party form, so every field is set through simulated user input.
package tracker

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var authTokenPattern = regexp.MustCompile(`Liferay.authToken="([^"]*)"`)

// Patcher queries the patch baseline service for the version an account is
// currently built against.
type Patcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPatcher creates a Patcher for the configured baseline service.
func NewPatcher(cfg config.TrackerConfig, logger *zap.Logger) *Patcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Patcher{
		baseURL:    cfg.PatcherURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("patcher"),
	}
}

// NewPatcherWithHTTP creates a Patcher with a caller supplied http.Client.
func NewPatcherWithHTTP(baseURL string, httpClient *http.Client, logger *zap.Logger) *Patcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Patcher{baseURL: baseURL, httpClient: httpClient, logger: logger.Named("patcher")}
}

// Baseline resolves the account's current baseline version: fetch the
// service landing page, scrape the session auth token out of it, then query
// the account's most recent build. Every failure path returns the empty
// string; the form field is then left blank rather than blocking the chain.
func (p *Patcher) Baseline(ctx context.Context, accountCode string) string {
	token := p.authToken(ctx)
	if token == "" {
		return ""
	}

	form := url.Values{
		"limit":                        {"1"},
		"patcherBuildAccountEntryCode": {accountCode},
		"cmd":                          {`{"/osb-patcher-portlet.accounts/view":{}}`},
		"p_auth":                       {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/jsonws/invoke", strings.NewReader(form.Encode()))
	if err != nil {
		p.logger.Warn("baseline query build failed", zap.Error(err))
		return ""
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setNoCacheHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("baseline query failed", zap.String("account_code", accountCode), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Warn("baseline response unreadable", zap.Error(err))
		return ""
	}

	var payload struct {
		Data []struct {
			PatcherProjectVersionName string `json:"patcherProjectVersionName"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		p.logger.Warn("baseline response malformed", zap.Error(err))
		return ""
	}
	if len(payload.Data) == 0 {
		p.logger.Debug("no builds on record", zap.String("account_code", accountCode))
		return ""
	}
	return payload.Data[0].PatcherProjectVersionName
}

// authToken scrapes the per-session auth token from the service landing
// page. The service exposes no token endpoint; the inline script assignment
// is the only place it appears.
func (p *Patcher) authToken(ctx context.Context) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/jsonws", nil)
	if err != nil {
		p.logger.Warn("token request build failed", zap.Error(err))
		return ""
	}
	setNoCacheHeaders(req)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("token page fetch failed", zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Warn("token page unreadable", zap.Error(err))
		return ""
	}

	match := authTokenPattern.FindSubmatch(body)
	if match == nil {
		p.logger.Warn("auth token not present on token page")
		return ""
	}
	return string(match[1])
}

func setNoCacheHeaders(req *http.Request) {
	req.Header.Set("Cache-Control", "no-cache, no-store, max-age=0")
	req.Header.Set("Pragma", "no-cache")
}
