package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/camden-git/gallerysync/credentials"
	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	mu      sync.Mutex
	result  *Analysis
	err     error
	release chan struct{}
	urls    []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, sourceURL string) (*Analysis, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, sourceURL)
	return f.result, f.err
}

func newTagFixture(analyzer Analyzer) (*gallery.State, *credentials.Prompt, *TagService) {
	state := gallery.New()
	state.Load([]models.Asset{{ID: "a1", SourceURL: "https://example.com/a1.png", DisplayName: "a1.png", Kind: "PNG"}})
	prompt := credentials.NewPrompt(&credentials.Override{}, nil)
	return state, prompt, NewTagService(state, analyzer, prompt, zerolog.Nop())
}

func TestTagWorkflowTagged(t *testing.T) {
	analyzer := &fakeAnalyzer{result: &Analysis{Tags: []string{"cat", "sofa"}, Image: pngBytes(t, 8, 6)}}
	state, prompt, svc := newTagFixture(analyzer)

	got, err := svc.Run(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, TagTagged, got)

	a, _ := state.Get("a1")
	assert.Equal(t, []string{"cat", "sofa"}, a.Tags)
	assert.False(t, a.Analyzing)
	require.NotNil(t, a.Dimensions)
	assert.Equal(t, "8x6", *a.Dimensions)
	assert.Equal(t, TagTagged, StateOf(a))
	assert.False(t, prompt.State().Pending)
}

func TestTagWorkflowCredentialFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &CredentialError{}}
	state, prompt, svc := newTagFixture(analyzer)

	got, err := svc.Run(context.Background(), "a1")
	require.Error(t, err)
	assert.Equal(t, TagUnanalyzed, got)

	a, _ := state.Get("a1")
	assert.Nil(t, a.Tags)
	assert.False(t, a.Analyzing)
	assert.Equal(t, TagUnanalyzed, StateOf(a))
	assert.True(t, prompt.State().Pending)
}

func TestTagWorkflowGenericFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &AnalysisError{Err: errors.New("model overloaded")}}
	state, prompt, svc := newTagFixture(analyzer)

	got, err := svc.Run(context.Background(), "a1")
	require.Error(t, err)
	assert.Equal(t, TagFailed, got)

	a, _ := state.Get("a1")
	assert.Equal(t, []string{models.AnalysisFailedTag}, a.Tags)
	assert.False(t, a.Analyzing)
	assert.Equal(t, TagFailed, StateOf(a))
	assert.False(t, prompt.State().Pending)

	// a failed asset can be analyzed again
	analyzer.err = nil
	analyzer.result = &Analysis{Tags: []string{"dog"}}
	got, err = svc.Run(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, TagTagged, got)
}

func TestTagCredentialFailureAfterFailedAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{err: &AnalysisError{Err: errors.New("bad response")}}
	state, prompt, svc := newTagFixture(analyzer)

	got, err := svc.Run(context.Background(), "a1")
	require.Error(t, err)
	assert.Equal(t, TagFailed, got)

	analyzer.err = &CredentialError{Err: errors.New("API key not valid")}
	got, err = svc.Run(context.Background(), "a1")
	require.Error(t, err)
	assert.True(t, IsCredentialError(err))

	a, _ := state.Get("a1")
	assert.False(t, a.Analyzing)
	assert.Equal(t, []string{models.AnalysisFailedTag}, a.Tags)
	assert.Equal(t, StateOf(a), got)
	assert.Equal(t, TagFailed, got)
	assert.True(t, prompt.State().Pending)
}

func TestTagRequestIsSingleFlightPerAsset(t *testing.T) {
	analyzer := &fakeAnalyzer{
		result:  &Analysis{Tags: []string{"tree"}},
		release: make(chan struct{}),
	}
	state, _, svc := newTagFixture(analyzer)

	require.NoError(t, svc.Request(context.Background(), "a1"))
	a, _ := state.Get("a1")
	assert.Equal(t, TagAnalyzing, StateOf(a))

	assert.ErrorIs(t, svc.Request(context.Background(), "a1"), ErrAlreadyAnalyzing)
	assert.ErrorIs(t, svc.Request(context.Background(), "missing"), ErrAssetNotFound)

	close(analyzer.release)
	require.Eventually(t, func() bool {
		a, _ := state.Get("a1")
		return StateOf(a) == TagTagged
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"https://example.com/a1.png"}, analyzer.urls)
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, TagUnanalyzed, StateOf(models.Asset{}))
	assert.Equal(t, TagAnalyzing, StateOf(models.Asset{Analyzing: true, Tags: []string{"x"}}))
	assert.Equal(t, TagTagged, StateOf(models.Asset{Tags: []string{"x"}}))
	assert.Equal(t, TagFailed, StateOf(models.Asset{Tags: []string{models.AnalysisFailedTag}}))
}
