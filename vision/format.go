// MODUL: format
// ZWECK: Bildformat-Erkennung anhand der Magic Bytes
// INPUT: Rohdaten
// OUTPUT: Format und MIME-Typ
// NEBENEFFEKTE: keine

package vision

import (
	"bytes"
	"errors"
)

type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

var ErrUnknownFormat = errors.New("vision: unknown image format")

var (
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicPNG  = []byte{0x89, 'P', 'N', 'G'}
	magicRIFF = []byte("RIFF")
)

// DetectFormat sniffs the container format from the leading magic bytes.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, magicJPEG):
		return FormatJPEG
	case bytes.HasPrefix(data, magicPNG):
		return FormatPNG
	case bytes.HasPrefix(data, magicRIFF) && len(data) >= 12 && string(data[8:12]) == "WEBP":
		return FormatWebP
	default:
		return FormatUnknown
	}
}

func (f Format) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
