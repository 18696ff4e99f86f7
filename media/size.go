package media

import "fmt"

const (
	kib = 1024
	mib = 1024 * 1024
)

// FormatSize renders a byte count with binary-prefix thresholds:
// bytes below 1 KiB, KB with one decimal below 1 MiB, MB with one decimal above.
func FormatSize(n int64) string {
	switch {
	case n < kib:
		return fmt.Sprintf("%d B", n)
	case n < mib:
		return fmt.Sprintf("%.1f KB", float64(n)/kib)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/mib)
	}
}

// FormatDimensions renders width and height as "WxH".
func FormatDimensions(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}
