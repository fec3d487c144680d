package filters

import (
	"context"
	"fmt"

	"github.com/ironsheep/image-filter-server/internal/imaging"
)

// Factory builds Filters from validated Specs.
type Factory struct {
	upscaler  Upscaler
	maxPixels int64
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithMaxPixels makes every built filter reject an input whose result would
// hold more than n pixels. Zero disables the limit.
func WithMaxPixels(n int64) FactoryOption {
	return func(f *Factory) { f.maxPixels = n }
}

// NewFactory returns a Factory whose upscale filters delegate to u. A nil u
// selects ResampleUpscaler.
func NewFactory(u Upscaler, opts ...FactoryOption) *Factory {
	f := &Factory{upscaler: u}
	for _, opt := range opts {
		opt(f)
	}
	if f.upscaler == nil {
		f.upscaler = ResampleUpscaler{MaxPixels: f.maxPixels}
	}
	return f
}

// Build returns the Filter for spec.
//
// spec must already have passed request validation: parametric kinds read
// their coefficient without checking presence, and an unknown kind panics
// because validation guarantees it cannot occur.
func (f *Factory) Build(spec Spec) Filter {
	filter := f.build(spec)
	if f.maxPixels <= 0 {
		return filter
	}
	factor := 1
	if u, ok := filter.(*upscaleFilter); ok {
		factor = u.factor
	}
	return &limitedFilter{Filter: filter, factor: factor, maxPixels: f.maxPixels}
}

func (f *Factory) build(spec Spec) Filter {
	switch spec.Kind {
	case Bright:
		return NewBright(spec.Coefficient())
	case Negative:
		return NewNegative()
	case WhiteBlack:
		return NewWhiteBlack(spec.Coefficient())
	case GrayScale:
		return NewGrayScale()
	case Sepia:
		return NewSepia()
	case Contrast:
		return NewContrast(spec.Coefficient())
	case UpscaleX2:
		return NewUpscale(UpscaleX2, 2, f.upscaler)
	case UpscaleX4:
		return NewUpscale(UpscaleX4, 4, f.upscaler)
	default:
		panic(fmt.Sprintf("filters: no constructor for kind %q", spec.Kind))
	}
}

// Pipeline builds a Pipeline applying specs left to right.
func (f *Factory) Pipeline(specs []Spec) *Pipeline {
	built := make([]Filter, len(specs))
	for i, s := range specs {
		built[i] = f.Build(s)
	}
	return NewPipeline(built...)
}

// limitedFilter checks the image header before the wrapped filter decodes
// any pixels.
type limitedFilter struct {
	Filter
	factor    int
	maxPixels int64
}

func (f *limitedFilter) Apply(ctx context.Context, img []byte) ([]byte, error) {
	if err := imaging.CheckSize(img, f.factor, f.maxPixels); err != nil {
		return nil, err
	}
	return f.Filter.Apply(ctx, img)
}
