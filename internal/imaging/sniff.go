package imaging

import (
	"bytes"
	"errors"
	"image"
	_ "image/gif"  // Register GIF so it classifies as an unsupported image
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"net/http"
	"strings"

	_ "golang.org/x/image/bmp"  // Register BMP so it classifies as an unsupported image
	_ "golang.org/x/image/tiff" // Register TIFF so it classifies as an unsupported image
	_ "golang.org/x/image/webp" // Register WebP so it classifies as an unsupported image
)

// Format is the result of sniffing an image payload.
//
// Classification never trusts a filename or a declared content type; it is
// derived from the leading bytes and the container header only.
type Format int

const (
	// FormatNotImage means the payload is not an image at all, or is an image
	// whose header is corrupt.
	FormatNotImage Format = iota

	// FormatUnsupported means the payload is a recognised image container
	// (GIF, BMP, TIFF, WebP, ICO, ...) that filters cannot process.
	FormatUnsupported

	// FormatPNG is a PNG image with a readable header.
	FormatPNG

	// FormatJPEG is a JPEG image with a readable header.
	FormatJPEG
)

// String returns the lowercase name of the format.
func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatUnsupported:
		return "unsupported"
	default:
		return "not-image"
	}
}

// Supported reports whether filters accept images of this format.
func (f Format) Supported() bool {
	return f == FormatPNG || f == FormatJPEG
}

// Extension returns the file extension used when staging an image of this
// format on disk. It is empty for unsupported formats.
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatJPEG:
		return ".jpg"
	default:
		return ""
	}
}

// Classify sniffs data and reports which Format it holds.
//
// # Algorithm
//
//  1. The header is parsed with image.DecodeConfig, which matches the magic
//     number of every registered decoder (PNG, JPEG, GIF, BMP, TIFF, WebP).
//     A readable PNG or JPEG header yields FormatPNG or FormatJPEG; any other
//     registered container yields FormatUnsupported.
//  2. A registered magic number followed by an unreadable header is corrupt
//     and yields FormatNotImage.
//  3. Payloads no decoder recognises fall back to content sniffing: an
//     "image/*" content type (e.g. ICO) yields FormatUnsupported, anything
//     else FormatNotImage.
func Classify(data []byte) Format {
	if len(data) == 0 {
		return FormatNotImage
	}

	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	switch {
	case err == nil:
		switch name {
		case "png":
			return FormatPNG
		case "jpeg":
			return FormatJPEG
		default:
			return FormatUnsupported
		}
	case !errors.Is(err, image.ErrFormat):
		// Known magic, broken header.
		return FormatNotImage
	}

	if strings.HasPrefix(http.DetectContentType(data), "image/") {
		return FormatUnsupported
	}
	return FormatNotImage
}
