package services

import (
	"context"
	"net/http"

	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/models"
	"github.com/rs/zerolog"
)

// MetadataService probes asset sizes with HEAD requests.
type MetadataService struct {
	client *http.Client
	logger zerolog.Logger
}

func NewMetadataService(client *http.Client, logger zerolog.Logger) *MetadataService {
	return &MetadataService{
		client: client,
		logger: logger.With().Str("component", "metadata").Logger(),
	}
}

// Probe never fails: anything short of a usable Content-Length yields the Unknown sentinel.
func (s *MetadataService) Probe(ctx context.Context, target string) models.SizeInfo {
	unknown := models.SizeInfo{FormattedSize: models.UnknownSize}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return unknown
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", target).Msg("size probe failed")
		return unknown
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Debug().Int("status", resp.StatusCode).Str("url", target).Msg("size probe rejected")
		return unknown
	}

	// -1 when the header is missing or unparsable
	n := resp.ContentLength
	if n < 0 {
		return unknown
	}
	return models.SizeInfo{FormattedSize: media.FormatSize(n), SizeBytes: n}
}
