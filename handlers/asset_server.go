package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AssetServer creates a handler to serve saved files from a subdirectory of the media
// storage path. The route is expected to be mounted as /api/<subDir>/*, e.g.
//
//	r.Get("/archives/*", AssetServer(cfg.MediaStoragePath, "archives", logger))
func AssetServer(baseStoragePath, subDir string, logger zerolog.Logger) http.HandlerFunc {
	fullAssetDirPath := filepath.Clean(filepath.Join(baseStoragePath, subDir))
	logger = logger.With().Str("component", "assets").Str("dir", fullAssetDirPath).Logger()
	logger.Info().Msgf("serving assets for '/%s/*'", subDir)

	routePrefix := "/api/" + subDir + "/"

	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := strings.TrimPrefix(r.URL.Path, routePrefix)
		if relativePath == "" || relativePath == r.URL.Path || strings.Contains(relativePath, "..") {
			WriteAPIError(w, http.StatusBadRequest, "invalid_path", "invalid asset path")
			return
		}

		cleanedAssetPath := filepath.Clean(filepath.Join(fullAssetDirPath, relativePath))
		if !strings.HasPrefix(cleanedAssetPath, fullAssetDirPath+string(filepath.Separator)) {
			logger.Warn().Str("request", r.URL.Path).Str("resolved", cleanedAssetPath).Msg("asset access outside designated directory")
			WriteAPIError(w, http.StatusForbidden, "forbidden", "forbidden")
			return
		}

		info, err := os.Stat(cleanedAssetPath)
		if os.IsNotExist(err) || (err == nil && info.IsDir()) {
			WriteAPIError(w, http.StatusNotFound, "not_found", "asset not found")
			return
		} else if err != nil {
			logger.Error().Err(err).Str("path", cleanedAssetPath).Msg("error stating asset file")
			WriteAPIError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, cleanedAssetPath)
	}
}
