package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/models"
	"github.com/camden-git/gallerysync/realtime"
	"github.com/camden-git/gallerysync/utils"
	"github.com/rs/zerolog"
)

// ProgressFunc receives the 1-indexed count of packed items and the snapshot size.
type ProgressFunc func(current, total int)

type ExportOptions struct {
	HTTPClient *http.Client
	ItemDelay  time.Duration
	Publisher  realtime.Publisher
	Logger     zerolog.Logger
}

// ExportService packs the selected assets into one ZIP, strictly one at a time.
type ExportService struct {
	state     *gallery.State
	client    *http.Client
	delay     time.Duration
	publisher realtime.Publisher
	logger    zerolog.Logger

	mu       sync.Mutex
	progress models.ExportProgress
}

func NewExportService(state *gallery.State, opts ExportOptions) *ExportService {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = realtime.Discard{}
	}
	return &ExportService{
		state:     state,
		client:    client,
		delay:     opts.ItemDelay,
		publisher: publisher,
		logger:    opts.Logger.With().Str("component", "export").Logger(),
	}
}

// Status returns a copy of the live job state.
func (s *ExportService) Status() models.ExportProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *ExportService) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress.Active {
		return false
	}
	s.progress = models.ExportProgress{Active: true}
	return true
}

func (s *ExportService) release() {
	s.mu.Lock()
	s.progress = models.ExportProgress{}
	s.mu.Unlock()
	s.state.SetProcessing("")
	s.state.SetExporting(false)
}

func (s *ExportService) setProgress(current, total int, processingID string) models.ExportProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.Current = current
	s.progress.Total = total
	s.progress.ProcessingID = processingID
	return s.progress
}

// Export fetches every selected asset in display order and returns the finished archive.
// The first failed retrieval aborts the job with an ExportError naming the asset, and the
// selection is left untouched. Only a completed archive clears the selection.
func (s *ExportService) Export(ctx context.Context, onProgress ProgressFunc) ([]byte, error) {
	if !s.acquire() {
		return nil, ErrExportInProgress
	}
	defer s.release()

	snapshot := s.state.SelectedAssets()
	if len(snapshot) == 0 {
		return nil, ErrNothingSelected
	}
	s.state.SetExporting(true)

	total := len(snapshot)
	log := s.logger.With().Int("total", total).Logger()
	log.Info().Msg("export started")

	archive := utils.NewArchive()
	for i, asset := range snapshot {
		if err := ctx.Err(); err != nil {
			s.finished(err, "")
			return nil, err
		}

		s.state.SetProcessing(asset.ID)
		s.setProgress(i, total, asset.ID)

		data, err := fetchBytes(ctx, s.client, asset.SourceURL, maxAssetBytes)
		if err != nil {
			exportErr := &ExportError{AssetName: asset.DisplayName, Err: err}
			log.Error().Err(err).Str("asset", asset.DisplayName).Int("item", i+1).Msg("export aborted")
			s.finished(exportErr, asset.DisplayName)
			return nil, exportErr
		}
		if _, err := archive.Add(asset.DisplayName, data); err != nil {
			exportErr := &ExportError{AssetName: asset.DisplayName, Err: fmt.Errorf("pack: %w", err)}
			s.finished(exportErr, asset.DisplayName)
			return nil, exportErr
		}

		progress := s.setProgress(i+1, total, asset.ID)
		if onProgress != nil {
			onProgress(i+1, total)
		}
		s.publisher.Publish(realtime.Event{
			Type:    realtime.EventExportProgress,
			AssetID: asset.ID,
			Data:    progress,
		})

		if err := s.wait(ctx); err != nil {
			s.finished(err, "")
			return nil, err
		}
	}

	payload, err := archive.Finalize()
	if err != nil {
		s.finished(err, "")
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	s.state.ClearSelection()
	s.finished(nil, "")
	log.Info().Int("bytes", len(payload)).Msg("export finished")
	return payload, nil
}

func (s *ExportService) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *ExportService) finished(err error, assetName string) {
	event := realtime.Event{Type: realtime.EventExportFinished, Status: "success"}
	if err != nil {
		event.Status = "failed"
		event.Error = err.Error()
		if assetName != "" {
			event.Extra = map[string]interface{}{"asset_name": assetName}
		}
	}
	s.publisher.Publish(event)
}
