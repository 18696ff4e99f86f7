package services

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/models"
	"github.com/camden-git/gallerysync/realtime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(e realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e.Type+":"+e.Status)
}

func exportFixture(t *testing.T, handler http.HandlerFunc, n int) (*gallery.State, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	assets := make([]models.Asset, n)
	for i := range assets {
		name := fmt.Sprintf("%d.jpg", i+1)
		assets[i] = models.Asset{ID: fmt.Sprintf("id%d", i+1), SourceURL: srv.URL + "/" + name, DisplayName: name, Kind: "JPG"}
	}
	state := gallery.New()
	state.Load(assets)
	state.SelectAll()
	return state, srv
}

func serveBodies(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "bytes of %s", r.URL.Path)
}

func TestExportReportsProgressWithSingleMarker(t *testing.T) {
	state, srv := exportFixture(t, serveBodies, 3)
	pub := &recordingPublisher{}
	svc := NewExportService(state, ExportOptions{HTTPClient: srv.Client(), Publisher: pub, Logger: zerolog.Nop()})

	var steps [][2]int
	snapshot := state.SelectedAssets()
	payload, err := svc.Export(context.Background(), func(current, total int) {
		steps = append(steps, [2]int{current, total})

		processing := 0
		for _, a := range state.Assets() {
			if a.Processing {
				processing++
				assert.Equal(t, snapshot[current-1].ID, a.ID)
			}
		}
		assert.Equal(t, 1, processing)
		assert.True(t, svc.Status().Active)
		assert.Equal(t, current, svc.Status().Current)
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, steps)

	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)
	for i, f := range zr.File {
		assert.Equal(t, fmt.Sprintf("%d.jpg", i+1), f.Name)
		rc, err := f.Open()
		require.NoError(t, err)
		body, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, fmt.Sprintf("bytes of /%d.jpg", i+1), string(body))
	}

	assert.Empty(t, state.SelectedIDs())
	assert.Empty(t, state.ProcessingID())
	assert.False(t, svc.Status().Active)
	assert.False(t, state.Exporting())
	assert.Contains(t, pub.events, "export_finished:success")
}

func TestExportAbortsOnFailedItem(t *testing.T) {
	state, srv := exportFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/2.jpg" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		serveBodies(w, r)
	}, 3)
	svc := NewExportService(state, ExportOptions{HTTPClient: srv.Client(), Logger: zerolog.Nop()})

	var steps [][2]int
	payload, err := svc.Export(context.Background(), func(current, total int) {
		steps = append(steps, [2]int{current, total})
	})
	require.Error(t, err)
	assert.Nil(t, payload)

	var exportErr *ExportError
	require.True(t, errors.As(err, &exportErr))
	assert.Equal(t, "2.jpg", exportErr.AssetName)
	assert.Contains(t, err.Error(), "2.jpg")

	assert.Equal(t, [][2]int{{1, 3}}, steps)
	assert.Len(t, state.SelectedIDs(), 3)
	assert.Empty(t, state.ProcessingID())
	assert.False(t, svc.Status().Active)
}

func TestExportRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	state, srv := exportFixture(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		serveBodies(w, r)
	}, 2)
	svc := NewExportService(state, ExportOptions{HTTPClient: srv.Client(), Logger: zerolog.Nop()})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Export(context.Background(), nil)
		done <- err
	}()

	require.Eventually(t, func() bool { return state.ProcessingID() != "" }, 2*time.Second, 5*time.Millisecond)

	_, err := svc.Export(context.Background(), nil)
	assert.ErrorIs(t, err, ErrExportInProgress)

	// selection is frozen while the first export runs
	assert.False(t, state.Toggle("id1"))

	close(release)
	require.NoError(t, <-done)
}

func TestExportNothingSelected(t *testing.T) {
	var hits int
	state, srv := exportFixture(t, func(w http.ResponseWriter, r *http.Request) { hits++ }, 2)
	state.SelectAll() // all -> none
	svc := NewExportService(state, ExportOptions{HTTPClient: srv.Client(), Logger: zerolog.Nop()})

	_, err := svc.Export(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.Zero(t, hits)
	assert.False(t, svc.Status().Active)
}

func TestExportStopsOnCancel(t *testing.T) {
	state, srv := exportFixture(t, serveBodies, 3)
	svc := NewExportService(state, ExportOptions{HTTPClient: srv.Client(), ItemDelay: time.Hour, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := svc.Export(ctx, func(current, total int) { cancel() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, state.SelectedIDs(), 3)
	assert.Empty(t, state.ProcessingID())
	assert.False(t, svc.Status().Active)
}

func TestExportDuplicateNamesAreKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(serveBodies))
	defer srv.Close()

	state := gallery.New()
	state.Load([]models.Asset{
		{ID: "x", SourceURL: srv.URL + "/a/photo.jpg", DisplayName: "photo.jpg"},
		{ID: "y", SourceURL: srv.URL + "/b/photo.jpg", DisplayName: "photo.jpg"},
	})
	state.SelectAll()
	svc := NewExportService(state, ExportOptions{HTTPClient: srv.Client(), Logger: zerolog.Nop()})

	payload, err := svc.Export(context.Background(), nil)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "photo.jpg", zr.File[0].Name)
	assert.Equal(t, "photo (1).jpg", zr.File[1].Name)
}
