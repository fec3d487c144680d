package filters

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/image-filter-server/internal/imaging"
)

// Filter transforms one encoded image into another.
//
// Apply must not modify img and must return a newly allocated buffer.
// Implementations are safe for concurrent use; a Filter holds only its
// construction parameters.
type Filter interface {
	Kind() Kind
	Apply(ctx context.Context, img []byte) ([]byte, error)
}

var (
	// ErrUpscaleProcess reports that the external upscale process could not
	// be started, exited abnormally or was killed.
	ErrUpscaleProcess = errors.New("upscale process failed")

	// ErrUpscaleOutput reports that the upscale process did not leave
	// exactly one output file.
	ErrUpscaleOutput = errors.New("upscale process must produce exactly one output file")

	// ErrStaging reports a failure to stage files for an external process.
	ErrStaging = errors.New("failed to stage image")
)

// PipelineError reports which filter of a pipeline failed.
type PipelineError struct {
	Index int
	Kind  Kind
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("filter %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// colorFilter decodes, transforms pixels and re-encodes as PNG.
type colorFilter struct {
	kind      Kind
	transform func(image.Image) image.Image
}

func (f *colorFilter) Kind() Kind { return f.kind }

func (f *colorFilter) Apply(ctx context.Context, img []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := imaging.Decode(img)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNG(f.transform(src))
}

// NewBright returns a filter multiplying every channel by coefficient.
func NewBright(coefficient float64) Filter {
	return &colorFilter{kind: Bright, transform: func(img image.Image) image.Image {
		return imaging.Brighten(img, coefficient)
	}}
}

// NewNegative returns a filter inverting every channel.
func NewNegative() Filter {
	return &colorFilter{kind: Negative, transform: func(img image.Image) image.Image {
		return imaging.Invert(img)
	}}
}

// NewWhiteBlack returns a two-tone filter; larger coefficients whiten more pixels.
func NewWhiteBlack(coefficient float64) Filter {
	return &colorFilter{kind: WhiteBlack, transform: func(img image.Image) image.Image {
		return imaging.Threshold(img, coefficient)
	}}
}

// NewGrayScale returns a luminance filter.
func NewGrayScale() Filter {
	return &colorFilter{kind: GrayScale, transform: func(img image.Image) image.Image {
		return imaging.Grayscale(img)
	}}
}

// NewSepia returns a sepia tone filter.
func NewSepia() Filter {
	return &colorFilter{kind: Sepia, transform: func(img image.Image) image.Image {
		return imaging.Sepia(img)
	}}
}

// NewContrast returns a filter scaling contrast around the mean luminance.
func NewContrast(coefficient float64) Filter {
	return &colorFilter{kind: Contrast, transform: func(img image.Image) image.Image {
		return imaging.Contrast(img, coefficient)
	}}
}
