package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/disintegration/imaging"
)

// Luminance weights. Grayscale uses ITU-R BT.709, contrast measures the mean
// brightness with ITU-R BT.601.
const (
	rec709R, rec709G, rec709B = 0.2126, 0.7152, 0.0722
	rec601R, rec601G, rec601B = 0.299, 0.587, 0.114
)

// Every transform in this file reads the straight (non-premultiplied) RGB
// of each pixel and returns an opaque image of the same size as its input.
// Alpha is dropped, channel values are clamped to 0-255 and the source image
// is left untouched.

// Brighten multiplies every channel by k.
//
// Values of k above 1 brighten, below 1 darken. Out-of-range results are
// clamped rather than rejected, so any finite k is accepted.
func Brighten(img image.Image, k float64) *image.NRGBA {
	return mapRGB(imaging.Clone(img), func(r, g, b uint8) (uint8, uint8, uint8) {
		return clamp(float64(r) * k), clamp(float64(g) * k), clamp(float64(b) * k)
	})
}

// Invert replaces every channel v with 255-v. Applying it twice restores the
// original RGB values.
func Invert(img image.Image) *image.NRGBA {
	return mapRGB(imaging.Clone(img), func(r, g, b uint8) (uint8, uint8, uint8) {
		return 255 - r, 255 - g, 255 - b
	})
}

// Threshold maps every pixel to pure white or pure black.
//
// A pixel is white when R+G+B exceeds 255/k/2*3, so larger k produces a
// brighter result. k == 0 turns every pixel black.
func Threshold(img image.Image, k float64) *image.NRGBA {
	separator := 255 / k / 2 * 3
	return mapRGB(imaging.Clone(img), func(r, g, b uint8) (uint8, uint8, uint8) {
		if float64(int(r)+int(g)+int(b)) > separator {
			return 255, 255, 255
		}
		return 0, 0, 0
	})
}

// Grayscale converts to luminance using BT.709 weights.
func Grayscale(img image.Image) *image.NRGBA {
	return mapRGB(imaging.Clone(img), func(r, g, b uint8) (uint8, uint8, uint8) {
		y := clamp(float64(r)*rec709R + float64(g)*rec709G + float64(b)*rec709B)
		return y, y, y
	})
}

// Sepia applies the classic sepia tone matrix.
func Sepia(img image.Image) *image.NRGBA {
	return mapRGB(imaging.Clone(img), func(r, g, b uint8) (uint8, uint8, uint8) {
		fr, fg, fb := float64(r), float64(g), float64(b)
		return clamp(fr*0.393 + fg*0.769 + fb*0.189),
			clamp(fr*0.349 + fg*0.686 + fb*0.168),
			clamp(fr*0.272 + fg*0.534 + fb*0.131)
	})
}

// Contrast scales every channel's distance from the image's mean luminance
// by k.
//
// The mean is measured once over the whole image (BT.601 weights) and a
// 256-entry lookup table is built from it:
//
//	lut[i] = clamp(mean + k*(i-mean))
//
// k == 1 leaves the image unchanged, k > 1 increases contrast, 0 <= k < 1
// flattens it toward the mean.
func Contrast(img image.Image, k float64) *image.NRGBA {
	dst := imaging.Clone(img)
	bounds := dst.Bounds()

	pixels := bounds.Dx() * bounds.Dy()
	if pixels == 0 {
		return dst
	}

	var sum float64
	for y := 0; y < bounds.Dy(); y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+bounds.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			sum += float64(row[i])*rec601R + float64(row[i+1])*rec601G + float64(row[i+2])*rec601B
		}
	}
	mean := sum / float64(pixels)

	var lut [256]uint8
	for i := range lut {
		lut[i] = clamp(math.Trunc(mean + k*(float64(i)-mean)))
	}

	return mapRGB(dst, func(r, g, b uint8) (uint8, uint8, uint8) {
		return lut[r], lut[g], lut[b]
	})
}

// mapRGB rewrites the color channels of img in place, rows in parallel, and
// makes every pixel opaque. img must start at the origin, as imaging.Clone
// results do.
func mapRGB(img *image.NRGBA, fn func(r, g, b uint8) (uint8, uint8, uint8)) *image.NRGBA {
	w := img.Bounds().Dx()
	parallel.Line(img.Bounds().Dy(), func(start, end int) {
		for y := start; y < end; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+w*4]
			for i := 0; i < len(row); i += 4 {
				row[i], row[i+1], row[i+2] = fn(row[i], row[i+1], row[i+2])
				row[i+3] = 0xff
			}
		}
	})
	return img
}

// clamp truncates v toward zero and saturates it into 0-255.
func clamp(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
