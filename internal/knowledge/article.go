// internal/knowledge/article.go

// Package knowledge augments the knowledge base: it links published articles
// back to the helpdesk tickets they were written from, and extends the
// article editor toolbar.
package knowledge

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/config"
	"github.com/deskmate-tools/deskmate-cli/internal/helpdesk"
)

// ArticleAPI is the slice of the helpdesk client the linker needs.
type ArticleAPI interface {
	Article(ctx context.Context, articleID string) (*helpdesk.Article, error)
}

// ArticleRenderer places the resolved ticket links into the article meta
// section, or removes the placeholder when there is nothing to show.
type ArticleRenderer interface {
	PublishTicketLinks(ctx context.Context, urls []string) error
	RemoveTicketLinksPlaceholder(ctx context.Context) error
}

// Linker resolves the source tickets of a published article.
type Linker struct {
	api            ArticleAPI
	renderer       ArticleRenderer
	agentTicketURL string
	logger         *zap.Logger
}

// NewLinker creates a Linker.
func NewLinker(api ArticleAPI, renderer ArticleRenderer, cfg config.HelpdeskConfig, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{
		api:            api,
		renderer:       renderer,
		agentTicketURL: strings.TrimSuffix(cfg.AgentTicketURL, "/"),
		logger:         logger.Named("knowledge"),
	}
}

// EnhanceArticle looks up the article behind the current path and renders
// links to its source tickets. Lookup failures are deliberately silent: an
// article page without the extra links is fine, a broken page is not.
func (l *Linker) EnhanceArticle(ctx context.Context, path string) {
	articleID, ok := ArticleIDFromPath(path)
	if !ok {
		return
	}

	article, err := l.api.Article(ctx, articleID)
	if err != nil {
		l.logger.Debug("article lookup failed", zap.String("article_id", articleID), zap.Error(err))
		return
	}

	urls := l.TicketURLs(article.LabelNames)
	if len(urls) == 0 {
		if err := l.renderer.RemoveTicketLinksPlaceholder(ctx); err != nil {
			l.logger.Debug("placeholder removal failed", zap.Error(err))
		}
		return
	}
	if err := l.renderer.PublishTicketLinks(ctx, urls); err != nil {
		l.logger.Debug("ticket links render failed", zap.Error(err))
	}
}

// TicketURLs turns the article's labels into agent ticket links. Labels
// that are all digits are ticket ids; everything else is an ordinary tag.
func (l *Linker) TicketURLs(labelNames []string) []string {
	var urls []string
	for _, label := range labelNames {
		if !allDigits(label) {
			continue
		}
		urls = append(urls, l.agentTicketURL+"/"+label)
	}
	return urls
}

// ArticleIDFromPath extracts the numeric article id from a help center
// article path such as /hc/en-us/articles/360001-some-title. Paths outside
// the help center article space report false.
func ArticleIDFromPath(path string) (string, bool) {
	if !strings.HasPrefix(path, "/hc/") || !strings.Contains(path, "/articles/") {
		return "", false
	}
	slug := path[strings.LastIndex(path, "/")+1:]
	if id, _, found := strings.Cut(slug, "-"); found {
		slug = id
	}
	if slug == "" {
		return "", false
	}
	return slug, true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
