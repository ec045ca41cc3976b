// internal/attachments/downloader_test.go
package attachments

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// opRecorder collects an interleaved trace of fetches and indicator toggles
// so tests can assert their relative order.
type opRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *opRecorder) add(op string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	fails map[string]error
	calls []string
	rec   *opRecorder
}

func (f *fakeFetcher) Download(ctx context.Context, href string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, href)
	f.mu.Unlock()
	f.rec.add("fetch " + href)
	if err, ok := f.fails[href]; ok {
		return nil, err
	}
	return f.data[href], nil
}

type fakeControls struct {
	mu            sync.Mutex
	disabled      bool
	publishedName string
	publishedData []byte
	publishCount  int32
	rec           *opRecorder
}

func (c *fakeControls) DisableSelection(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = true
	return nil
}

func (c *fakeControls) MarkBusy(ctx context.Context, busy bool) error { return nil }

func (c *fakeControls) MarkDownloading(ctx context.Context, href string, busy bool) error {
	c.rec.add(fmt.Sprintf("busy %s %t", href, busy))
	return nil
}

func (c *fakeControls) PublishArchive(ctx context.Context, name string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	atomic.AddInt32(&c.publishCount, 1)
	c.publishedName = name
	c.publishedData = data
	return nil
}

func downloadCfg() config.DownloadConfig {
	return config.DownloadConfig{Concurrency: 4, RatePerSecond: 1000}
}

func archiveEntries(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	entries := make(map[string][]byte, len(r.File))
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		entries[f.Name] = content
	}
	return entries
}

func TestRunPartialFailureStillFinalizesOnce(t *testing.T) {
	fetcher := &fakeFetcher{
		data: map[string][]byte{
			"https://h/1": []byte("alpha"),
			"https://h/3": []byte("gamma"),
		},
		fails: map[string]error{"https://h/2": errors.New("status 403")},
	}
	controls := &fakeControls{}
	d := NewDownloader(fetcher, controls, downloadCfg(), zap.NewNop())

	links := []LinkMetadata{
		{Download: "a.txt", Href: "https://h/1"},
		{Download: "b.txt", Href: "https://h/2"},
		{Download: "c.txt", Href: "https://h/3"},
	}
	require.NoError(t, d.Run(context.Background(), "42", "ABC123", links))

	assert.Equal(t, int32(1), atomic.LoadInt32(&controls.publishCount), "archive finalized exactly once")
	assert.Equal(t, "ABC123.zendesk-42.zip", controls.publishedName)

	entries := archiveEntries(t, controls.publishedData)
	require.Len(t, entries, 2, "the failed file is dropped, not represented")
	assert.Equal(t, []byte("alpha"), entries["a.txt"])
	assert.Equal(t, []byte("gamma"), entries["c.txt"])
}

func TestRunEmptySelectionIsNoOp(t *testing.T) {
	fetcher := &fakeFetcher{}
	controls := &fakeControls{}
	d := NewDownloader(fetcher, controls, downloadCfg(), zap.NewNop())

	require.NoError(t, d.Run(context.Background(), "42", "ABC123", nil))

	assert.True(t, controls.disabled, "the selection is frozen before counting")
	assert.Empty(t, fetcher.calls)
	assert.Zero(t, atomic.LoadInt32(&controls.publishCount))
}

func TestRunSkipsCORSDisqualifiedLinks(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string][]byte{"https://h/1": []byte("x")}}
	controls := &fakeControls{}
	d := NewDownloader(fetcher, controls, downloadCfg(), zap.NewNop())

	links := []LinkMetadata{
		{Download: "ok.txt", Href: "https://h/1"},
		{Download: "big.hprof", Href: "https://h/big", MissingCORSHeader: true},
	}
	require.NoError(t, d.Run(context.Background(), "42", "", links))

	assert.Equal(t, []string{"https://h/1"}, fetcher.calls)
	entries := archiveEntries(t, controls.publishedData)
	assert.Len(t, entries, 1)
}

func TestRunUnknownAccountCodeFallback(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string][]byte{"https://h/1": []byte("x")}}
	controls := &fakeControls{}
	d := NewDownloader(fetcher, controls, downloadCfg(), zap.NewNop())

	links := []LinkMetadata{{Download: "x.txt", Href: "https://h/1"}}
	require.NoError(t, d.Run(context.Background(), "42", "", links))

	assert.Equal(t, "UNKNOWN.zendesk-42.zip", controls.publishedName)
}

func TestRunDuplicateNamesKeepSingleEntry(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string][]byte{
		"https://h/1": []byte("first"),
		"https://h/2": []byte("second"),
	}}
	controls := &fakeControls{}
	d := NewDownloader(fetcher, controls, downloadCfg(), zap.NewNop())

	links := []LinkMetadata{
		{Download: "log.txt", Href: "https://h/1"},
		{Download: "log.txt", Href: "https://h/2"},
	}
	require.NoError(t, d.Run(context.Background(), "42", "ABC123", links))

	entries := archiveEntries(t, controls.publishedData)
	assert.Len(t, entries, 1, "colliding names collapse to one entry")
}

func TestRunBracketsEachFetchWithRowIndicator(t *testing.T) {
	rec := &opRecorder{}
	fetcher := &fakeFetcher{
		data: map[string][]byte{
			"https://h/1": []byte("alpha"),
			"https://h/2": []byte("beta"),
		},
		rec: rec,
	}
	controls := &fakeControls{rec: rec}
	// Single worker so the trace is deterministic.
	cfg := config.DownloadConfig{Concurrency: 1, RatePerSecond: 1000}
	d := NewDownloader(fetcher, controls, cfg, zap.NewNop())

	links := []LinkMetadata{
		{Download: "a.txt", Href: "https://h/1"},
		{Download: "b.txt", Href: "https://h/2"},
	}
	require.NoError(t, d.Run(context.Background(), "42", "ABC123", links))

	want := []string{
		"busy https://h/1 true",
		"fetch https://h/1",
		"busy https://h/1 false",
		"busy https://h/2 true",
		"fetch https://h/2",
		"busy https://h/2 false",
	}
	assert.Equal(t, want, rec.ops, "each fetch is bracketed by its own row indicator")
}

func TestRunClearsRowIndicatorAfterFailedFetch(t *testing.T) {
	rec := &opRecorder{}
	fetcher := &fakeFetcher{
		fails: map[string]error{"https://h/1": errors.New("status 403")},
		rec:   rec,
	}
	controls := &fakeControls{rec: rec}
	d := NewDownloader(fetcher, controls, downloadCfg(), zap.NewNop())

	links := []LinkMetadata{{Download: "a.txt", Href: "https://h/1"}}
	require.NoError(t, d.Run(context.Background(), "42", "ABC123", links))

	assert.Equal(t, []string{
		"busy https://h/1 true",
		"fetch https://h/1",
		"busy https://h/1 false",
	}, rec.ops, "the indicator is cleared even when the fetch fails")
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{data: map[string][]byte{"https://h/1": []byte("x")}}
	controls := &fakeControls{}
	d := NewDownloader(fetcher, controls, downloadCfg(), zap.NewNop())

	err := d.Run(ctx, "42", "ABC123", []LinkMetadata{{Download: "x.txt", Href: "https://h/1"}})
	require.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&controls.publishCount), "no archive on abort")
}
