package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/camden-git/gallerysync/credentials"
	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/models"
	"github.com/rs/zerolog"
)

// TagState is where an asset sits in the tagging workflow.
type TagState string

const (
	TagUnanalyzed TagState = "UNANALYZED"
	TagAnalyzing  TagState = "ANALYZING"
	TagTagged     TagState = "TAGGED"
	TagFailed     TagState = "FAILED"
)

// StateOf derives the workflow state from an asset's fields.
func StateOf(a models.Asset) TagState {
	switch {
	case a.Analyzing:
		return TagAnalyzing
	case len(a.Tags) == 1 && a.Tags[0] == models.AnalysisFailedTag:
		return TagFailed
	case len(a.Tags) > 0:
		return TagTagged
	}
	return TagUnanalyzed
}

// TagService drives per-asset analysis and escalates credential failures to the prompt.
type TagService struct {
	state    *gallery.State
	analyzer Analyzer
	prompt   *credentials.Prompt
	logger   zerolog.Logger
}

func NewTagService(state *gallery.State, analyzer Analyzer, prompt *credentials.Prompt, logger zerolog.Logger) *TagService {
	return &TagService{
		state:    state,
		analyzer: analyzer,
		prompt:   prompt,
		logger:   logger.With().Str("component", "tagging").Logger(),
	}
}

// Request moves the asset into ANALYZING and finishes the analysis in the background.
// It returns ErrAlreadyAnalyzing when a call for the same asset is still in flight.
func (s *TagService) Request(ctx context.Context, id string) error {
	asset, ok := s.state.Get(id)
	if !ok {
		return ErrAssetNotFound
	}
	if err := s.state.BeginAnalysis(id); err != nil {
		return err
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Interface("panic", r).Str("asset_id", id).Msg("analysis panicked")
				s.state.ApplyTags(id, []string{models.AnalysisFailedTag})
			}
		}()
		s.finish(ctx, asset)
	}()
	return nil
}

// Run is the synchronous form of Request and reports the state the asset ended in.
func (s *TagService) Run(ctx context.Context, id string) (TagState, error) {
	asset, ok := s.state.Get(id)
	if !ok {
		return TagUnanalyzed, ErrAssetNotFound
	}
	if err := s.state.BeginAnalysis(id); err != nil {
		return TagAnalyzing, err
	}
	return s.finish(ctx, asset)
}

func (s *TagService) finish(ctx context.Context, asset models.Asset) (TagState, error) {
	log := s.logger.With().Str("asset_id", asset.ID).Str("name", asset.DisplayName).Logger()

	result, err := s.analyzer.Analyze(ctx, asset.SourceURL)
	if err == nil {
		if details, inspectErr := media.Inspect(result.Image); inspectErr == nil {
			s.state.ApplyDimensions(asset.ID, details)
		}
		s.state.ApplyTags(asset.ID, result.Tags)
		log.Info().Strs("tags", result.Tags).Msg("asset tagged")
		return TagTagged, nil
	}

	var credErr *CredentialError
	if errors.As(err, &credErr) {
		// tags from an earlier outcome are kept
		s.state.ClearAnalysis(asset.ID)
		if s.prompt != nil {
			s.prompt.Raise(credErr.Error())
		}
		log.Warn().Err(err).Msg("analysis needs a credential")
		if updated, ok := s.state.Get(asset.ID); ok {
			return StateOf(updated), err
		}
		return TagUnanalyzed, err
	}

	s.state.ApplyTags(asset.ID, []string{models.AnalysisFailedTag})
	log.Error().Err(err).Msg("analysis failed")
	return TagFailed, fmt.Errorf("analyze %s: %w", asset.DisplayName, err)
}
