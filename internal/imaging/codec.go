package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrTooLarge reports an image whose pixel count exceeds the configured
// limit.
var ErrTooLarge = errors.New("image too large")

// Decode decodes an encoded PNG or JPEG payload.
//
// The returned image is freshly allocated; data is never retained or
// modified, so callers may keep using their buffer.
func Decode(data []byte) (image.Image, error) {
	if f := Classify(data); !f.Supported() {
		return nil, fmt.Errorf("cannot decode %s payload", f)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Dimensions returns the width and height stored in an encoded image header
// without decoding the pixels.
func Dimensions(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// CheckSize reads the header of data and fails with ErrTooLarge when the
// image, enlarged factor times in each axis, would exceed maxPixels.
// A maxPixels of zero or less disables the check.
func CheckSize(data []byte, factor int, maxPixels int64) error {
	if maxPixels <= 0 {
		return nil
	}
	w, h, err := Dimensions(data)
	if err != nil {
		return err
	}
	return checkPixels(w, h, factor, maxPixels)
}

func checkPixels(w, h, factor int, maxPixels int64) error {
	if maxPixels <= 0 {
		return nil
	}
	f := int64(factor)
	if n := int64(w) * int64(h) * f * f; n > maxPixels {
		return fmt.Errorf("%w: %dx%d at %dx is %d pixels, limit %d", ErrTooLarge, w, h, factor, n, maxPixels)
	}
	return nil
}
