package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/gallerysync/credentials"
	"github.com/camden-git/gallerysync/gallery"
	"github.com/camden-git/gallerysync/media"
	"github.com/camden-git/gallerysync/models"
	"github.com/camden-git/gallerysync/services"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const msgpackContentType = "application/msgpack"

// GalleryHandler exposes the gallery core over HTTP.
type GalleryHandler struct {
	State    *gallery.State
	Sync     *services.SyncService
	Export   *services.ExportService
	Tags     *services.TagService
	Previews *services.PreviewService
	Prompt   *credentials.Prompt
	Store    media.Store
	Logger   zerolog.Logger
}

// Mount registers the gallery routes on r, which is expected to be the /api subrouter.
func (h *GalleryHandler) Mount(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post("/sync", h.SyncDirectory)

	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.ListAssets)
		r.Route("/{asset_id}", func(r chi.Router) {
			r.Get("/", h.GetAsset)
			r.Post("/toggle", h.ToggleAsset)
			r.Post("/dimensions", h.ReportDimensions)
			r.Get("/thumbnail", h.Thumbnail)
			r.Post("/analyze", h.AnalyzeAsset)
		})
	})
	r.Put("/view", h.UpdateView)

	r.Get("/selection", h.GetSelection)
	r.Post("/selection/all", h.SelectAll)

	r.Post("/export", h.ExportSelection)
	r.Get("/export/status", h.ExportStatus)

	r.Get("/credentials/prompt", h.GetCredentialPrompt)
	r.Delete("/credentials/prompt", h.DismissCredentialPrompt)
	r.Put("/credentials", h.SetCredential)
}

func (h *GalleryHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.Logger.Error().Err(err).Msg("error encoding JSON response")
		}
	}
}

// writeNegotiated answers with msgpack when the client asks for it and JSON otherwise.
func (h *GalleryHandler) writeNegotiated(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if !strings.Contains(r.Header.Get("Accept"), msgpackContentType) {
		h.writeJSON(w, status, data)
		return
	}
	encoded, err := msgpack.Marshal(data)
	if err != nil {
		h.Logger.Error().Err(err).Msg("error encoding msgpack response")
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", msgpackContentType)
	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

type SelectionSummary struct {
	IDs           []string `json:"ids" msgpack:"ids"`
	Count         int      `json:"count" msgpack:"count"`
	Total         int      `json:"total" msgpack:"total"`
	SizeBytes     *int64   `json:"size_bytes,omitempty" msgpack:"size_bytes,omitempty"`
	FormattedSize *string  `json:"formatted_size,omitempty" msgpack:"formatted_size,omitempty"`
}

type AssetListResponse struct {
	Assets    []models.Asset   `json:"assets" msgpack:"assets"`
	Filter    string           `json:"filter" msgpack:"filter"`
	Sort      gallery.SortMode `json:"sort" msgpack:"sort"`
	Exporting bool             `json:"exporting" msgpack:"exporting"`
	Selection SelectionSummary `json:"selection" msgpack:"selection"`
}

func (h *GalleryHandler) selection() SelectionSummary {
	ids := h.State.SelectedIDs()
	if ids == nil {
		ids = []string{}
	}
	summary := SelectionSummary{IDs: ids, Count: len(ids), Total: h.State.Len()}
	if size := h.State.SelectedSize(); size != nil {
		formatted := media.FormatSize(*size)
		summary.SizeBytes = size
		summary.FormattedSize = &formatted
	}
	return summary
}

func (h *GalleryHandler) assetList() AssetListResponse {
	return AssetListResponse{
		Assets:    h.State.Filtered(),
		Filter:    h.State.Filter(),
		Sort:      h.State.Sort(),
		Exporting: h.State.Exporting(),
		Selection: h.selection(),
	}
}

func (h *GalleryHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"assets":    h.State.Len(),
		"exporting": h.State.Exporting(),
	})
}

func (h *GalleryHandler) SyncDirectory(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Sync.Sync(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeNegotiated(w, r, http.StatusOK, h.assetList())
}

func (h *GalleryHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	h.writeNegotiated(w, r, http.StatusOK, h.assetList())
}

func (h *GalleryHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset, ok := h.State.Get(chi.URLParam(r, "asset_id"))
	if !ok {
		writeServiceError(w, services.ErrAssetNotFound)
		return
	}
	h.writeNegotiated(w, r, http.StatusOK, asset)
}

type viewRequest struct {
	Filter *string `json:"filter"`
	Sort   *string `json:"sort"`
}

func (h *GalleryHandler) UpdateView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}
	if req.Sort != nil {
		mode, err := gallery.ParseSortMode(*req.Sort)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_sort", err.Error())
			return
		}
		h.State.SetSort(mode)
	}
	if req.Filter != nil {
		h.State.SetFilter(*req.Filter)
	}
	h.writeNegotiated(w, r, http.StatusOK, h.assetList())
}

func (h *GalleryHandler) ToggleAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "asset_id")
	if _, ok := h.State.Get(id); !ok {
		writeServiceError(w, services.ErrAssetNotFound)
		return
	}
	if !h.State.Toggle(id) {
		writeServiceError(w, services.ErrExportInProgress)
		return
	}
	h.writeJSON(w, http.StatusOK, h.selection())
}

func (h *GalleryHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	if h.State.Exporting() {
		writeServiceError(w, services.ErrExportInProgress)
		return
	}
	h.State.SelectAll()
	h.writeJSON(w, http.StatusOK, h.selection())
}

func (h *GalleryHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.selection())
}

type dimensionsRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (h *GalleryHandler) ReportDimensions(w http.ResponseWriter, r *http.Request) {
	var req dimensionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_dimensions", "width and height must be positive")
		return
	}
	id := chi.URLParam(r, "asset_id")
	if !h.State.ApplyDimensions(id, models.ImageDetails{Width: req.Width, Height: req.Height}) {
		writeServiceError(w, services.ErrAssetNotFound)
		return
	}
	asset, _ := h.State.Get(id)
	h.writeJSON(w, http.StatusOK, asset)
}

func (h *GalleryHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	thumb, err := h.Previews.Thumbnail(r.Context(), chi.URLParam(r, "asset_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(thumb)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(thumb)
}

func (h *GalleryHandler) AnalyzeAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "asset_id")
	// the analysis finishes after this response is written
	if err := h.Tags.Request(context.WithoutCancel(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}
	asset, _ := h.State.Get(id)
	h.writeJSON(w, http.StatusAccepted, asset)
}

func (h *GalleryHandler) ExportSelection(w http.ResponseWriter, r *http.Request) {
	payload, err := h.Export.Export(r.Context(), nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	filename := media.ArchiveFilename(time.Now())
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save && h.Store != nil {
		relativePath, err := h.Store.Save(media.AssetTypeArchive, filename, bytes.NewReader(payload))
		if err != nil {
			h.Logger.Error().Err(err).Str("file", filename).Msg("failed to save archive")
			WriteAPIError(w, http.StatusInternalServerError, "archive_save_failed", err.Error())
			return
		}
		w.Header().Set("X-Archive-Path", "/api/"+relativePath)
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *GalleryHandler) ExportStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Export.Status())
}

func (h *GalleryHandler) GetCredentialPrompt(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Prompt.State())
}

func (h *GalleryHandler) DismissCredentialPrompt(w http.ResponseWriter, r *http.Request) {
	h.Prompt.Dismiss()
	w.WriteHeader(http.StatusNoContent)
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

func (h *GalleryHandler) SetCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_api_key", "api_key is required")
		return
	}
	h.Prompt.Resolve(req.APIKey)
	h.Logger.Info().Msg("analysis credential updated")
	h.writeJSON(w, http.StatusOK, h.Prompt.State())
}
