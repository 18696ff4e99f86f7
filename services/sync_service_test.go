package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/models"
	"github.com/camden-git/gallerysync/realtime"
	"github.com/camden-git/gallerysync/workers"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDiscoverer struct {
	assets []models.Asset
	err    error
}

func (f fakeDiscoverer) Discover(ctx context.Context) ([]models.Asset, error) {
	return f.assets, f.err
}

type fakeQueue struct {
	mu   sync.Mutex
	jobs []workers.EnrichJob
}

func (q *fakeQueue) QueueJob(ctx context.Context, job workers.EnrichJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

func (q *fakeQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func TestSyncLoadsStateAndQueuesEnrichment(t *testing.T) {
	state := gallery.New()
	queue := &fakeQueue{}
	pub := &recordingPublisher{}
	source := fakeDiscoverer{assets: []models.Asset{
		{ID: "1", SourceURL: "https://example.com/1.jpg", DisplayName: "1.jpg"},
		{ID: "2", SourceURL: "https://example.com/2.jpg", DisplayName: "2.jpg"},
	}}
	svc := NewSyncService(source, state, queue, pub, zerolog.Nop())

	assets, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, assets, 2)
	assert.Equal(t, 2, state.Len())

	require.Eventually(t, func() bool { return queue.len() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "https://example.com/1.jpg", queue.jobs[0].SourceURL)
	assert.Contains(t, pub.events, realtime.EventSyncComplete+":")
}

func TestSyncFailureKeepsCollection(t *testing.T) {
	state := gallery.New()
	state.Load([]models.Asset{{ID: "old", DisplayName: "old.jpg"}})
	state.Toggle("old")

	svc := NewSyncService(fakeDiscoverer{err: &DiscoveryError{URL: "x", Err: errors.New("boom")}}, state, nil, nil, zerolog.Nop())
	_, err := svc.Sync(context.Background())

	var de *DiscoveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, state.Len())
	assert.True(t, state.IsSelected("old"))
}

func TestSyncWithEnrichmentPool(t *testing.T) {
	state := gallery.New()
	sizes := staticProber{info: models.SizeInfo{FormattedSize: "5.0 KB", SizeBytes: 5120}}
	pool := workers.NewEnrichmentPool(sizes, state, 8, 2, zerolog.Nop())
	defer pool.Stop()

	source := fakeDiscoverer{assets: []models.Asset{
		{ID: "1", SourceURL: "https://example.com/1.jpg"},
		{ID: "2", SourceURL: "https://example.com/2.jpg"},
		{ID: "3", SourceURL: "https://example.com/3.jpg"},
	}}
	svc := NewSyncService(source, state, pool, nil, zerolog.Nop())
	_, err := svc.Sync(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, a := range state.Assets() {
			if a.FormattedSize == nil {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	state.SelectAll()
	require.NotNil(t, state.SelectedSize())
	assert.Equal(t, int64(3*5120), *state.SelectedSize())
}

type staticProber struct {
	info models.SizeInfo
}

func (p staticProber) Probe(ctx context.Context, url string) models.SizeInfo {
	return p.info
}

func TestSyncRejectedDuringExport(t *testing.T) {
	unblock := make(chan struct{})
	state, srv := exportFixture(t, func(w http.ResponseWriter, r *http.Request) {
		<-unblock
		serveBodies(w, r)
	}, 2)
	var once sync.Once
	release := func() { once.Do(func() { close(unblock) }) }
	defer release()
	selected := state.SelectedIDs()
	exporter := NewExportService(state, ExportOptions{HTTPClient: srv.Client(), Logger: zerolog.Nop()})

	done := make(chan error, 1)
	go func() {
		_, err := exporter.Export(context.Background(), nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return state.ProcessingID() != "" }, time.Second, 5*time.Millisecond)
	marker := state.ProcessingID()

	source := fakeDiscoverer{assets: []models.Asset{{ID: "fresh", SourceURL: "https://example.com/fresh.jpg"}}}
	svc := NewSyncService(source, state, nil, nil, zerolog.Nop())
	_, err := svc.Sync(context.Background())
	assert.ErrorIs(t, err, ErrExportInProgress)
	assert.Equal(t, 2, state.Len())
	assert.Equal(t, marker, state.ProcessingID())
	assert.ElementsMatch(t, selected, state.SelectedIDs())

	release()
	require.NoError(t, <-done)
	assert.Empty(t, state.SelectedIDs())

	_, err = svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.Len())
}
