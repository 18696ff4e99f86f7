package services

import (
	"context"

	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/models"
	"github.com/camden-git/gallerysync/realtime"
	"github.com/camden-git/gallerysync/workers"
	"github.com/rs/zerolog"
)

// Discoverer produces the asset collection.
type Discoverer interface {
	Discover(ctx context.Context) ([]models.Asset, error)
}

// EnrichQueue accepts size probe jobs.
type EnrichQueue interface {
	QueueJob(ctx context.Context, job workers.EnrichJob) bool
}

// SyncService loads a fresh discovery into the gallery and hands every asset to the
// enrichment pool. It never waits for enrichment to finish.
type SyncService struct {
	source    Discoverer
	state     *gallery.State
	queue     EnrichQueue
	publisher realtime.Publisher
	logger    zerolog.Logger
}

func NewSyncService(source Discoverer, state *gallery.State, queue EnrichQueue, publisher realtime.Publisher, logger zerolog.Logger) *SyncService {
	if publisher == nil {
		publisher = realtime.Discard{}
	}
	return &SyncService{
		source:    source,
		state:     state,
		queue:     queue,
		publisher: publisher,
		logger:    logger.With().Str("component", "sync").Logger(),
	}
}

// Sync replaces the gallery contents with the current listing. On failure the existing
// collection is kept. A sync while an export is running returns ErrExportInProgress
// and leaves the collection untouched.
func (s *SyncService) Sync(ctx context.Context) ([]models.Asset, error) {
	if s.state.Exporting() {
		return nil, ErrExportInProgress
	}
	assets, err := s.source.Discover(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("discovery failed")
		return nil, err
	}
	if !s.state.Load(assets) {
		s.logger.Warn().Msg("export started during discovery, result discarded")
		return nil, ErrExportInProgress
	}

	if s.queue != nil {
		jobs := make([]workers.EnrichJob, len(assets))
		for i, a := range assets {
			jobs[i] = workers.EnrichJob{AssetID: a.ID, SourceURL: a.SourceURL}
		}
		// queueing outlives the calling request
		go func(ctx context.Context) {
			queued := 0
			for _, job := range jobs {
				if s.queue.QueueJob(ctx, job) {
					queued++
				}
			}
			s.logger.Debug().Int("queued", queued).Msg("enrichment queued")
		}(context.WithoutCancel(ctx))
	}

	s.publisher.Publish(realtime.Event{
		Type:  realtime.EventSyncComplete,
		Extra: map[string]interface{}{"count": len(assets)},
	})
	return s.state.Assets(), nil
}
