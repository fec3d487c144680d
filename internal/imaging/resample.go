package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Scale enlarges img by an integer factor in each axis using Lanczos
// resampling. The result is exactly factor*width by factor*height and must
// not exceed maxPixels (zero disables the limit).
func Scale(img image.Image, factor int, maxPixels int64) (*image.NRGBA, error) {
	if factor < 1 {
		return nil, fmt.Errorf("invalid scale factor %d", factor)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("cannot scale empty image")
	}
	if err := checkPixels(b.Dx(), b.Dy(), factor, maxPixels); err != nil {
		return nil, err
	}
	return imaging.Resize(img, b.Dx()*factor, b.Dy()*factor, imaging.Lanczos), nil
}
