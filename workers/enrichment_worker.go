package workers

import (
	"context"
	"sync"

	"github.com/camden-git/gallerysync/models"
	"github.com/rs/zerolog"
)

// Prober resolves the size of one asset. It never fails; unknown sizes come back as the
// Unknown sentinel.
type Prober interface {
	Probe(ctx context.Context, url string) models.SizeInfo
}

// SizeSink receives probe results keyed by asset id.
type SizeSink interface {
	ApplySize(id string, info models.SizeInfo) bool
}

type EnrichJob struct {
	AssetID   string
	SourceURL string
}

// EnrichmentPool fans size probes out to a fixed set of workers. Completions arrive in
// any order and each one touches only its own asset.
type EnrichmentPool struct {
	JobQueue chan EnrichJob
	StopChan chan struct{}
	Wg       sync.WaitGroup
	Pending  map[string]bool
	Mutex    sync.Mutex

	prober Prober
	sink   SizeSink
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

func NewEnrichmentPool(prober Prober, sink SizeSink, queueSize, numWorkers int, logger zerolog.Logger) *EnrichmentPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := &EnrichmentPool{
		JobQueue: make(chan EnrichJob, queueSize),
		StopChan: make(chan struct{}),
		Pending:  make(map[string]bool),
		prober:   prober,
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.With().Str("component", "enrichment").Logger(),
	}
	pool.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.worker(i)
	}
	pool.logger.Info().Int("workers", numWorkers).Int("queue_size", queueSize).Msg("started enrichment workers")
	return pool
}

func (p *EnrichmentPool) worker(id int) {
	defer p.Wg.Done()
	for {
		select {
		case job := <-p.JobQueue:
			p.process(id, job)
		case <-p.StopChan:
			return
		}
	}
}

func (p *EnrichmentPool) process(id int, job EnrichJob) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Str("asset_id", job.AssetID).Msg("probe panicked")
		}
		p.Mutex.Lock()
		delete(p.Pending, job.AssetID)
		p.Mutex.Unlock()
	}()

	info := p.prober.Probe(p.ctx, job.SourceURL)
	if !p.sink.ApplySize(job.AssetID, info) {
		p.logger.Debug().Int("worker", id).Str("asset_id", job.AssetID).Msg("size result discarded")
		return
	}
	p.logger.Debug().Int("worker", id).Str("asset_id", job.AssetID).Str("size", info.FormattedSize).Msg("size probed")
}

// QueueJob enqueues a probe unless one for the same asset is already pending. It blocks
// while the queue is full and gives up when ctx ends or the pool stops.
func (p *EnrichmentPool) QueueJob(ctx context.Context, job EnrichJob) bool {
	p.Mutex.Lock()
	if p.Pending[job.AssetID] {
		p.Mutex.Unlock()
		return false
	}
	p.Pending[job.AssetID] = true
	p.Mutex.Unlock()

	select {
	case p.JobQueue <- job:
		return true
	case <-ctx.Done():
	case <-p.StopChan:
	}
	p.Mutex.Lock()
	delete(p.Pending, job.AssetID)
	p.Mutex.Unlock()
	return false
}

// PendingCount is the number of queued or running probes.
func (p *EnrichmentPool) PendingCount() int {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	return len(p.Pending)
}

func (p *EnrichmentPool) Stop() {
	p.logger.Info().Msg("stopping enrichment workers")
	p.cancel()
	close(p.StopChan)
	p.Wg.Wait()
	p.logger.Info().Msg("all enrichment workers stopped")
}
