package enrich

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formascrape/config"
	"formascrape/internal/store"
)

// fakeBacklog serves scripted pending items and records resolutions.
type fakeBacklog struct {
	pending    []*store.Training
	touched    []int64
	done       []int64
	enriched   []store.Enrichment
	enrichErr  error
}

func (f *fakeBacklog) NextPendingDetail(context.Context) (*store.Training, error) {
	if len(f.pending) == 0 {
		return nil, sql.ErrNoRows
	}
	t := f.pending[0]
	f.pending = f.pending[1:]
	return t, nil
}

func (f *fakeBacklog) TouchDetailAttempt(_ context.Context, id int64) error {
	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeBacklog) MarkDetailDone(_ context.Context, id int64) error {
	f.done = append(f.done, id)
	return nil
}

func (f *fakeBacklog) ApplyEnrichment(_ context.Context, e store.Enrichment) error {
	if f.enrichErr != nil {
		return f.enrichErr
	}
	f.enriched = append(f.enriched, e)
	return nil
}

// fakeFetcher returns a fixed page, or an error per URL.
type fakeFetcher struct {
	html    string
	failing map[string]error
	visited []string
}

func (f *fakeFetcher) Navigate(url string) error {
	f.visited = append(f.visited, url)
	if err, ok := f.failing[url]; ok {
		return err
	}
	return nil
}

func (f *fakeFetcher) HTML() (string, error) { return f.html, nil }

func workerConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.DelayMin = 0
	cfg.DelayMax = time.Millisecond
	return &cfg
}

func pendingItem(id int64, url string) *store.Training {
	return &store.Training{ID: id, CenterID: 1, DetailURL: url, NeedsDetail: true}
}

func TestWorkerDrainsBacklog(t *testing.T) {
	backlog := &fakeBacklog{pending: []*store.Training{
		pendingItem(1, "https://x/f/1"),
		pendingItem(2, "https://x/f/2"),
	}}
	fetcher := &fakeFetcher{html: detailPage}
	w := NewWorker(workerConfig(), backlog, fetcher)

	stats, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Visited)
	assert.Equal(t, 2, stats.Enriched)
	assert.Equal(t, []int64{1, 2}, backlog.touched)
	require.Len(t, backlog.enriched, 2)
	assert.Equal(t, int64(1), backlog.enriched[0].TrainingID)
	require.NotNil(t, backlog.enriched[0].Price)
	assert.Equal(t, 1290.5, *backlog.enriched[0].Price)
	assert.Equal(t, "contact@lingua.fr", backlog.enriched[0].CenterAddress.Email)
}

func TestWorkerSkipsItemsWithoutURL(t *testing.T) {
	backlog := &fakeBacklog{pending: []*store.Training{pendingItem(7, "")}}
	fetcher := &fakeFetcher{html: detailPage}
	w := NewWorker(workerConfig(), backlog, fetcher)

	stats, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Visited)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []int64{7}, backlog.done)
	assert.Empty(t, fetcher.visited)
}

func TestWorkerLeavesFailedVisitsPending(t *testing.T) {
	backlog := &fakeBacklog{pending: []*store.Training{pendingItem(3, "https://x/f/3")}}
	fetcher := &fakeFetcher{
		html:    detailPage,
		failing: map[string]error{"https://x/f/3": errors.New("nav timeout")},
	}
	w := NewWorker(workerConfig(), backlog, fetcher)

	stats, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	// The attempt was claimed but never resolved, so the item stays in
	// the backlog for a later pass.
	assert.Equal(t, []int64{3}, backlog.touched)
	assert.Empty(t, backlog.done)
	assert.Empty(t, backlog.enriched)
}

func TestWorkerResolvesUnparseablePages(t *testing.T) {
	backlog := &fakeBacklog{pending: []*store.Training{pendingItem(4, "https://x/f/4")}}
	fetcher := &fakeFetcher{html: `<html><body>rien</body></html>`}
	w := NewWorker(workerConfig(), backlog, fetcher)

	stats, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []int64{4}, backlog.done)
}

func TestWorkerFallsBackWhenEnrichmentFails(t *testing.T) {
	backlog := &fakeBacklog{
		pending:   []*store.Training{pendingItem(5, "https://x/f/5")},
		enrichErr: errors.New("constraint violation"),
	}
	fetcher := &fakeFetcher{html: detailPage}
	w := NewWorker(workerConfig(), backlog, fetcher)

	stats, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Fallback)
	assert.Equal(t, []int64{5}, backlog.done)
}

func TestWorkerHonorsBatchBudget(t *testing.T) {
	backlog := &fakeBacklog{pending: []*store.Training{
		pendingItem(1, "https://x/f/1"),
		pendingItem(2, "https://x/f/2"),
		pendingItem(3, "https://x/f/3"),
	}}
	fetcher := &fakeFetcher{html: detailPage}
	cfg := workerConfig()
	cfg.DetailBatchSize = 2
	w := NewWorker(cfg, backlog, fetcher)

	stats, err := w.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Visited)
	assert.Len(t, backlog.pending, 1)
}
