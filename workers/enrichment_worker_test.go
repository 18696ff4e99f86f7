package workers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/camden-git/gallerysync/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu    sync.Mutex
	calls map[string]int
	block chan struct{}
}

func (f *fakeProber) Probe(ctx context.Context, url string) models.SizeInfo {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls[url]++
	f.mu.Unlock()
	return models.SizeInfo{FormattedSize: "1.0 KB", SizeBytes: 1024}
}

type fakeSink struct {
	mu      sync.Mutex
	applied map[string]models.SizeInfo
}

func (f *fakeSink) ApplySize(id string, info models.SizeInfo) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied[id] = info
	return true
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

func TestEnrichmentPoolProbesEveryAsset(t *testing.T) {
	prober := &fakeProber{calls: map[string]int{}}
	sink := &fakeSink{applied: map[string]models.SizeInfo{}}
	pool := NewEnrichmentPool(prober, sink, 4, 3, zerolog.Nop())
	defer pool.Stop()

	for i := 0; i < 20; i++ {
		ok := pool.QueueJob(context.Background(), EnrichJob{
			AssetID:   fmt.Sprintf("id%d", i),
			SourceURL: fmt.Sprintf("https://example.com/%d.jpg", i),
		})
		require.True(t, ok)
	}

	require.Eventually(t, func() bool { return sink.count() == 20 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return pool.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestEnrichmentPoolDedupsPendingJobs(t *testing.T) {
	block := make(chan struct{})
	prober := &fakeProber{calls: map[string]int{}, block: block}
	sink := &fakeSink{applied: map[string]models.SizeInfo{}}
	pool := NewEnrichmentPool(prober, sink, 4, 1, zerolog.Nop())

	job := EnrichJob{AssetID: "same", SourceURL: "https://example.com/a.jpg"}
	assert.True(t, pool.QueueJob(context.Background(), job))
	assert.False(t, pool.QueueJob(context.Background(), job))

	close(block)
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	pool.Stop()

	assert.Equal(t, 1, prober.calls["https://example.com/a.jpg"])
}

func TestQueueJobGivesUpWhenContextEnds(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	prober := &fakeProber{calls: map[string]int{}, block: block}
	sink := &fakeSink{applied: map[string]models.SizeInfo{}}
	pool := NewEnrichmentPool(prober, sink, 1, 1, zerolog.Nop())

	// one job held by the worker, one sitting in the queue
	require.True(t, pool.QueueJob(context.Background(), EnrichJob{AssetID: "a"}))
	require.Eventually(t, func() bool { return len(pool.JobQueue) == 0 }, time.Second, time.Millisecond)
	require.True(t, pool.QueueJob(context.Background(), EnrichJob{AssetID: "b"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.False(t, pool.QueueJob(ctx, EnrichJob{AssetID: "c"}))
	assert.Equal(t, 2, pool.PendingCount())
}
