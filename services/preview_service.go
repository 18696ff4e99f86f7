package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/models"
	"github.com/rs/zerolog"
)

// PreviewService renders thumbnails of remote assets. Decoding an image is also a
// dimension signal, so every rendered preview refines the asset.
type PreviewService struct {
	state     *gallery.State
	client    *http.Client
	processor *media.Processor
	logger    zerolog.Logger
}

func NewPreviewService(state *gallery.State, client *http.Client, processor *media.Processor, logger zerolog.Logger) *PreviewService {
	if client == nil {
		client = http.DefaultClient
	}
	return &PreviewService{
		state:     state,
		client:    client,
		processor: processor,
		logger:    logger.With().Str("component", "preview").Logger(),
	}
}

func (s *PreviewService) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	asset, ok := s.state.Get(id)
	if !ok {
		return nil, ErrAssetNotFound
	}
	data, err := fetchBytes(ctx, s.client, asset.SourceURL, maxAssetBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", asset.DisplayName, err)
	}
	thumb, width, height, err := s.processor.Thumbnail(data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", asset.DisplayName, err)
	}

	details := models.ImageDetails{Width: width, Height: height}
	if inspected, err := media.Inspect(data); err == nil {
		details.CameraModel = inspected.CameraModel
		details.TakenAt = inspected.TakenAt
	}
	s.state.ApplyDimensions(id, details)
	s.logger.Debug().Str("asset_id", id).Int("width", width).Int("height", height).Msg("thumbnail rendered")
	return thumb, nil
}
