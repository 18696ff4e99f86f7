package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/camden-git/gallerysync/models"
	"github.com/rwcarlsen/goexif/exif"
)

// helper to safely get a string tag, trimming null terminators and quotes
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		val = strings.Trim(tag.String(), "\"")
	}
	val = strings.TrimSpace(strings.TrimRight(val, "\x00"))
	if val == "" {
		return nil
	}
	return &val
}

// Inspect decodes the image header for dimensions and, when present, EXIF camera and
// capture time. A missing EXIF block is not an error.
func Inspect(data []byte) (models.ImageDetails, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.ImageDetails{}, fmt.Errorf("media: decode image config: %w", err)
	}
	details := models.ImageDetails{Width: cfg.Width, Height: cfg.Height}

	exifData, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		// most PNG/GIF files carry no EXIF
		return details, nil
	}

	details.CameraModel = getString(exifData, exif.Model)
	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		details.TakenAt = &ts
	}
	return details, nil
}
