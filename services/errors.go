package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/camden-git/gallerysync/gallery"
)

var (
	ErrExportInProgress = errors.New("an export is already running")
	ErrNothingSelected  = errors.New("no assets selected")
	ErrAssetNotFound    = gallery.ErrAssetNotFound
	ErrAlreadyAnalyzing = gallery.ErrAlreadyAnalyzing
)

// DiscoveryError reports that the directory listing could not be retrieved.
type DiscoveryError struct {
	URL string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to load directory %s: %v", e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ExportError names the asset whose retrieval aborted an export.
type ExportError struct {
	AssetName string
	Err       error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.AssetName, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// CredentialError means the analysis call has no usable credential. It is recoverable:
// supplying a new key and retrying can succeed.
type CredentialError struct {
	Err error
}

func (e *CredentialError) Error() string {
	if e.Err == nil {
		return "no usable analysis credential"
	}
	return fmt.Sprintf("analysis credential rejected: %v", e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// AnalysisError is any other analysis failure.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response from a remote endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	status := fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
	if e.Body == "" {
		return "status " + status
	}
	return fmt.Sprintf("status %s: %s", status, e.Body)
}

func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}
