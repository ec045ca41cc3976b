// internal/browser/session/session.go

// Package session owns the connection to Chrome. It either attaches to an
// already running instance over the DevTools protocol or launches its own,
// and exposes the one primitive everything else is built on: evaluating
// JavaScript in the page and getting the result back by value.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/config"
)

// Session is a live connection to one browser tab.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc

	closeOnce sync.Once
}

// NewSession connects to the browser. With AttachURL set it attaches to the
// running instance behind that DevTools endpoint (the normal mode: the agent
// already has the helpdesk open); otherwise it launches a fresh Chrome.
func NewSession(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.With(zap.String("session_id", sessionID))

	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if cfg.AttachURL != "" {
		log.Info("attaching to running browser", zap.String("attach_url", cfg.AttachURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parentCtx, cfg.AttachURL)
	} else {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if !cfg.Headless {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		if cfg.IgnoreTLSErrors {
			opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
		}
		for _, arg := range cfg.Args {
			opts = append(opts, chromedp.Flag(arg, true))
		}
		log.Info("launching browser", zap.Bool("headless", cfg.Headless))
		allocCtx, allocCancel = chromedp.NewExecAllocator(parentCtx, opts...)
	}

	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	// Materialize the tab now so a bad endpoint fails here, not on the
	// first operation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("establishing browser session: %w", err)
	}

	return &Session{
		id:          sessionID,
		logger:      log,
		cfg:         cfg,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// ID returns the per-run session id.
func (s *Session) ID() string { return s.id }

// RunActions executes CDP actions under a context that carries the session's
// connection but honors the caller's deadline.
func (s *Session) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL and waits for the document body.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	s.logger.Debug("navigating", zap.String("url", targetURL))
	if err := s.RunActions(ctx, chromedp.Navigate(targetURL), chromedp.WaitReady("body")); err != nil {
		return fmt.Errorf("navigating to %s: %w", targetURL, err)
	}
	return nil
}

// Evaluate runs a script in the page and unmarshals its by-value result
// into out. Promises are awaited, so async page functions work transparently.
// A nil out discards the result.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	if s.cfg.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.EvalTimeout)
		defer cancel()
	}
	action := chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
	})
	if err := s.RunActions(ctx, action); err != nil {
		return fmt.Errorf("evaluating script: %w", err)
	}
	return nil
}

// Location returns the current page path (location.pathname).
func (s *Session) Location(ctx context.Context) (string, error) {
	var path string
	if err := s.Evaluate(ctx, "window.location.pathname", &path); err != nil {
		return "", err
	}
	return path, nil
}

// DOMSnapshot captures the current document as HTML text.
func (s *Session) DOMSnapshot(ctx context.Context) (string, error) {
	var markup string
	if err := s.Evaluate(ctx, "document.documentElement.outerHTML", &markup); err != nil {
		return "", fmt.Errorf("capturing DOM snapshot: %w", err)
	}
	return markup, nil
}

// Close tears the session down. An attached browser keeps running; only the
// DevTools connection (and a launched browser process) is shut down.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		// Give pending CDP traffic a moment to flush before cutting the
		// connection.
		flushCtx, cancel := context.WithTimeout(Detach(s.ctx), 2*time.Second)
		_ = chromedp.Run(flushCtx)
		cancel()

		s.cancel()
		s.allocCancel()
		s.logger.Info("browser session closed")
	})
	return nil
}
