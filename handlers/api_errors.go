package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/camden-git/gallerysync/services"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string            `json:"code"`
	Status string            `json:"status"`
	Detail string            `json:"detail"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	writeAPIErrorDetail(w, httpStatus, APIErrorDetail{Code: code, Detail: detail})
}

func writeAPIErrorDetail(w http.ResponseWriter, httpStatus int, detail APIErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	detail.Status = strconv.Itoa(httpStatus)
	_ = json.NewEncoder(w).Encode(APIErrorResponse{Errors: []APIErrorDetail{detail}})
}

// writeServiceError maps the core error kinds onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		discoveryErr *services.DiscoveryError
		exportErr    *services.ExportError
		credErr      *services.CredentialError
	)
	switch {
	case errors.As(err, &discoveryErr):
		WriteAPIError(w, http.StatusBadGateway, "discovery_failed", err.Error())
	case errors.As(err, &exportErr):
		writeAPIErrorDetail(w, http.StatusBadGateway, APIErrorDetail{
			Code:   "export_failed",
			Detail: err.Error(),
			Meta:   map[string]string{"asset_name": exportErr.AssetName},
		})
	case errors.As(err, &credErr):
		WriteAPIError(w, http.StatusUnauthorized, "credential_needed", err.Error())
	case errors.Is(err, services.ErrExportInProgress):
		WriteAPIError(w, http.StatusConflict, "export_in_progress", err.Error())
	case errors.Is(err, services.ErrAlreadyAnalyzing):
		WriteAPIError(w, http.StatusConflict, "already_analyzing", err.Error())
	case errors.Is(err, services.ErrNothingSelected):
		WriteAPIError(w, http.StatusBadRequest, "nothing_selected", err.Error())
	case errors.Is(err, services.ErrAssetNotFound):
		WriteAPIError(w, http.StatusNotFound, "asset_not_found", err.Error())
	default:
		WriteAPIError(w, http.StatusBadGateway, "upstream_failed", err.Error())
	}
}
