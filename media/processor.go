package media

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

const (
	ThumbnailJpegQuality = 85
	DefaultThumbnailSize = 300
)

// Processor renders previews of fetched image bytes.
type Processor struct {
	maxSize int
}

func NewProcessor(maxSize int) *Processor {
	if maxSize <= 0 {
		maxSize = DefaultThumbnailSize
	}
	return &Processor{maxSize: maxSize}
}

// Thumbnail decodes data and returns a JPEG whose longest side is at most the configured
// size, together with the original dimensions.
func (p *Processor) Thumbnail(data []byte) ([]byte, int, int, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := img.Bounds()
	origWidth, origHeight := bounds.Dx(), bounds.Dy()
	if origWidth <= 0 || origHeight <= 0 {
		return nil, 0, 0, fmt.Errorf("invalid original image dimensions: %dx%d", origWidth, origHeight)
	}

	thumb := img
	if origWidth > p.maxSize || origHeight > p.maxSize {
		thumb = imaging.Fit(img, p.maxSize, p.maxSize, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(ThumbnailJpegQuality)); err != nil {
		return nil, 0, 0, fmt.Errorf("thumbnail encoding failed: %w", err)
	}
	return buf.Bytes(), origWidth, origHeight, nil
}
