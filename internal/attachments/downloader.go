// internal/attachments/downloader.go
package attachments

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/deskmate-tools/deskmate-cli/internal/config"
)

// Fetcher retrieves the raw bytes of one attachment.
type Fetcher interface {
	Download(ctx context.Context, href string) ([]byte, error)
}

// Controls is the page side of the bulk download: freezing the selection UI
// while the batch runs and publishing the finished archive. Implemented by
// the renderer.
type Controls interface {
	// DisableSelection greys out every attachment checkbox so the selection
	// cannot change mid-batch.
	DisableSelection(ctx context.Context) error
	// MarkBusy toggles the in-progress indicator on the bulk download link.
	MarkBusy(ctx context.Context, busy bool) error
	// MarkDownloading toggles the in-progress indicator on the row for the
	// given href, so the agent sees which file is being fetched right now.
	MarkDownloading(ctx context.Context, href string, busy bool) error
	// PublishArchive replaces the bulk download trigger with a link to the
	// finished archive.
	PublishArchive(ctx context.Context, name string, data []byte) error
}

// Downloader assembles the selected attachments of a ticket into a single
// zip archive.
type Downloader struct {
	fetcher  Fetcher
	controls Controls
	logger   *zap.Logger
	limit    int
	limiter  *rate.Limiter
}

// NewDownloader builds a Downloader with the configured concurrency cap and
// download pacing.
func NewDownloader(fetcher Fetcher, controls Controls, cfg config.DownloadConfig, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		fetcher:  fetcher,
		controls: controls,
		logger:   logger.Named("downloader"),
		limit:    cfg.Concurrency,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Concurrency),
	}
}

// ArchiveName builds the published file name. The account code distinguishes
// archives from different customers in a shared download folder; UNKNOWN
// when it could not be resolved.
func ArchiveName(accountCode, ticketID string) string {
	if accountCode == "" {
		accountCode = "UNKNOWN"
	}
	return fmt.Sprintf("%s.zendesk-%s.zip", accountCode, ticketID)
}

// Run downloads every selected link concurrently and publishes the archive.
//
// The selection is frozen before anything starts. CORS-disqualified links
// are skipped even if passed in. An individual download failure only costs
// that one file; the archive is still finalized, exactly once, after every
// download has reported in. With an empty selection nothing happens at all.
func (d *Downloader) Run(ctx context.Context, ticketID, accountCode string, links []LinkMetadata) error {
	if err := d.controls.DisableSelection(ctx); err != nil {
		return fmt.Errorf("freezing attachment selection: %w", err)
	}

	eligible := make([]LinkMetadata, 0, len(links))
	for _, link := range links {
		if !link.MissingCORSHeader {
			eligible = append(eligible, link)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	if err := d.controls.MarkBusy(ctx, true); err != nil {
		d.logger.Warn("busy indicator unavailable", zap.Error(err))
	}

	var (
		mu    sync.Mutex
		files = make(map[string][]byte, len(eligible))
	)

	var g errgroup.Group
	g.SetLimit(d.limit)
	for _, link := range eligible {
		link := link
		g.Go(func() error {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := d.controls.MarkDownloading(ctx, link.Href, true); err != nil {
				d.logger.Debug("row indicator unavailable", zap.Error(err))
			}
			data, err := d.fetcher.Download(ctx, link.Href)
			if markErr := d.controls.MarkDownloading(ctx, link.Href, false); markErr != nil {
				d.logger.Debug("row indicator unavailable", zap.Error(markErr))
			}
			if err != nil {
				// One bad file must not sink the batch.
				d.logger.Warn("attachment skipped",
					zap.String("name", link.Download), zap.Error(err))
				return nil
			}
			mu.Lock()
			files[link.Download] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.controls.MarkBusy(ctx, false)
		return fmt.Errorf("bulk download aborted: %w", err)
	}

	archive, err := buildArchive(files)
	if err != nil {
		d.controls.MarkBusy(ctx, false)
		return fmt.Errorf("assembling archive: %w", err)
	}

	if err := d.controls.MarkBusy(ctx, false); err != nil {
		d.logger.Warn("busy indicator unavailable", zap.Error(err))
	}

	name := ArchiveName(accountCode, ticketID)
	if err := d.controls.PublishArchive(ctx, name, archive); err != nil {
		return fmt.Errorf("publishing %s: %w", name, err)
	}
	d.logger.Info("archive published",
		zap.String("name", name),
		zap.Int("files", len(files)),
		zap.Int("requested", len(eligible)))
	return nil
}

// buildArchive writes the collected files into a zip, in name order so the
// output is stable regardless of download completion order.
func buildArchive(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		entry, err := w.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := entry.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
