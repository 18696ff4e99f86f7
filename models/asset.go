package models

// UnknownSize is the formatted size reported when a probe could not determine a byte count.
const UnknownSize = "Unknown"

// AnalysisFailedTag is the single tag stored on an asset whose analysis failed for a
// reason other than credentials.
const AnalysisFailedTag = "Analysis Failed"

// Asset is one image discovered in the remote listing, plus whatever has been learned
// about it since. Values are copied on every write; never mutate an Asset shared with
// another goroutine.
type Asset struct {
	ID          string `json:"id" msgpack:"id"`
	SourceURL   string `json:"source_url" msgpack:"source_url"` // absolute, query stripped
	DisplayName string `json:"display_name" msgpack:"display_name"`
	Kind        string `json:"kind" msgpack:"kind"` // upper-cased extension, e.g. "JPG"

	Tags      []string `json:"tags,omitempty" msgpack:"tags,omitempty"` // nil until analyzed
	Analyzing bool     `json:"analyzing" msgpack:"analyzing"`

	Dimensions  *string `json:"dimensions,omitempty" msgpack:"dimensions,omitempty"` // "WxH"
	CameraModel *string `json:"camera_model,omitempty" msgpack:"camera_model,omitempty"`
	TakenAt     *int64  `json:"taken_at,omitempty" msgpack:"taken_at,omitempty"` // unix seconds

	FormattedSize *string `json:"formatted_size,omitempty" msgpack:"formatted_size,omitempty"`
	SizeBytes     int64   `json:"size_bytes" msgpack:"size_bytes"` // 0 means unknown

	Processing bool `json:"processing" msgpack:"processing"` // set only in views
}

// Clone returns a deep copy so callers can modify slices and pointers freely.
func (a Asset) Clone() Asset {
	c := a
	if a.Tags != nil {
		c.Tags = append([]string(nil), a.Tags...)
	}
	c.Dimensions = cloneString(a.Dimensions)
	c.CameraModel = cloneString(a.CameraModel)
	c.FormattedSize = cloneString(a.FormattedSize)
	if a.TakenAt != nil {
		v := *a.TakenAt
		c.TakenAt = &v
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// SizeInfo is the result of a size probe. FormattedSize and SizeBytes always travel together.
type SizeInfo struct {
	FormattedSize string `json:"formatted_size"`
	SizeBytes     int64  `json:"size_bytes"`
}

// ImageDetails carries what a decode of the image bytes revealed.
type ImageDetails struct {
	Width       int
	Height      int
	CameraModel *string
	TakenAt     *int64
}

// ExportProgress is the live state of the export job.
type ExportProgress struct {
	Active       bool   `json:"active"`
	Current      int    `json:"current"` // 1-indexed, 0 before the first item completes
	Total        int    `json:"total"`
	ProcessingID string `json:"processing_id,omitempty"`
}
