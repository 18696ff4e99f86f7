package services

import (
	"bytes"
	"context"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThumbnailAppliesDimensions(t *testing.T) {
	img := pngBytes(t, 120, 60)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(img)
	}))
	defer srv.Close()

	state := gallery.New()
	state.Load([]models.Asset{{ID: "p", SourceURL: srv.URL + "/p.png", DisplayName: "p.png"}})
	svc := NewPreviewService(state, srv.Client(), media.NewProcessor(30), zerolog.Nop())

	thumb, err := svc.Thumbnail(context.Background(), "p")
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 30, decoded.Bounds().Dx())
	assert.Equal(t, 15, decoded.Bounds().Dy())

	a, _ := state.Get("p")
	require.NotNil(t, a.Dimensions)
	assert.Equal(t, "120x60", *a.Dimensions)
}

func TestThumbnailUnknownAsset(t *testing.T) {
	svc := NewPreviewService(gallery.New(), nil, media.NewProcessor(0), zerolog.Nop())
	_, err := svc.Thumbnail(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrAssetNotFound)
}
