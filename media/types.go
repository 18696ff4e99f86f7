package media

import (
	"path"
	"strings"
)

// AssetType names the kind of generated artifact kept in a Store.
type AssetType string

const (
	AssetTypeArchive AssetType = "archive"
)

// DefaultKind is the kind label for a name without an extension.
const DefaultKind = "IMG"

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".bmp": true, ".svg": true, ".avif": true, ".tif": true, ".tiff": true,
}

// IsImage reports whether the name carries an allow-listed image extension (case-insensitive).
func IsImage(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return supportedImageExtensions[ext]
}

// Kind derives the short type label from a file name: the extension without its dot, upper-cased.
func Kind(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return DefaultKind
	}
	return strings.ToUpper(ext)
}
