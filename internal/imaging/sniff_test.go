package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
)

// createPatternImage creates an opaque image with a different color in each quadrant
func createPatternImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.RGBA
			switch {
			case x < width/2 && y < height/2:
				c = color.RGBA{200, 40, 30, 255} // Red top-left
			case x >= width/2 && y < height/2:
				c = color.RGBA{30, 180, 60, 255} // Green top-right
			case x < width/2 && y >= height/2:
				c = color.RGBA{20, 50, 210, 255} // Blue bottom-left
			default:
				c = color.RGBA{240, 240, 240, 255} // Near-white bottom-right
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func encodeWith(t *testing.T, img image.Image, encode func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := encode(&buf, img); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, img image.Image) []byte {
	return encodeWith(t, img, func(b *bytes.Buffer, i image.Image) error { return png.Encode(b, i) })
}

func jpegBytes(t *testing.T, img image.Image) []byte {
	return encodeWith(t, img, func(b *bytes.Buffer, i image.Image) error { return jpeg.Encode(b, i, nil) })
}

func TestClassify(t *testing.T) {
	img := createPatternImage(16, 8)
	pngData := pngBytes(t, img)

	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"png", pngData, FormatPNG},
		{"jpeg", jpegBytes(t, img), FormatJPEG},
		{"gif", encodeWith(t, img, func(b *bytes.Buffer, i image.Image) error { return gif.Encode(b, i, nil) }), FormatUnsupported},
		{"bmp", encodeWith(t, img, func(b *bytes.Buffer, i image.Image) error { return bmp.Encode(b, i) }), FormatUnsupported},
		{"ico", []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x10, 0x10, 0x00, 0x00}, FormatUnsupported},
		{"plain text", []byte("not_an_image"), FormatNotImage},
		{"json", []byte(`[{"name":"sepia","params":{}}]`), FormatNotImage},
		{"empty", nil, FormatNotImage},
		{"truncated png header", pngData[:12], FormatNotImage},
		{"png magic only", []byte("\x89PNG\r\n\x1a\n"), FormatNotImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.data); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormat_Supported(t *testing.T) {
	tests := []struct {
		format Format
		want   bool
		ext    string
	}{
		{FormatPNG, true, ".png"},
		{FormatJPEG, true, ".jpg"},
		{FormatUnsupported, false, ""},
		{FormatNotImage, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.Supported(); got != tt.want {
				t.Errorf("Supported() = %v, want %v", got, tt.want)
			}
			if got := tt.format.Extension(); got != tt.ext {
				t.Errorf("Extension() = %q, want %q", got, tt.ext)
			}
		})
	}
}

func TestDecode_RejectsUnsupported(t *testing.T) {
	if _, err := Decode([]byte("not_an_image")); err == nil {
		t.Error("Decode should fail for non-image payload")
	}
}

func TestDecode_DoesNotRetainInput(t *testing.T) {
	data := pngBytes(t, createPatternImage(4, 4))
	orig := append([]byte(nil), data...)

	img, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	for i := range data {
		data[i] = 0
	}
	if _, err := EncodePNG(img); err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	if img.Bounds().Dx() != 4 {
		t.Errorf("decoded width changed after input was cleared")
	}
	if bytes.Equal(orig, data) {
		t.Fatal("fixture was not cleared")
	}
}

func TestDimensions(t *testing.T) {
	w, h, err := Dimensions(pngBytes(t, createPatternImage(21, 13)))
	if err != nil {
		t.Fatalf("Dimensions failed: %v", err)
	}
	if w != 21 || h != 13 {
		t.Errorf("got %dx%d, want 21x13", w, h)
	}
}

// pngHeader returns a PNG holding only a signature and an IHDR chunk that
// claims width x height RGBA pixels.
func pngHeader(width, height uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], width)
	binary.BigEndian.PutUint32(ihdr[4:], height)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestCheckSize(t *testing.T) {
	huge := pngHeader(60000, 60000)
	if Classify(huge) != FormatPNG {
		t.Fatalf("header-only PNG classified as %v", Classify(huge))
	}

	small := pngBytes(t, createPatternImage(10, 10))

	tests := []struct {
		name      string
		data      []byte
		factor    int
		maxPixels int64
		tooLarge  bool
	}{
		{"within limit", small, 1, 100, false},
		{"upscaled past limit", small, 2, 100, true},
		{"upscaled at limit", small, 2, 400, false},
		{"header claims too much", huge, 1, 1 << 26, true},
		{"limit disabled", huge, 4, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSize(tt.data, tt.factor, tt.maxPixels)
			if got := errors.Is(err, ErrTooLarge); got != tt.tooLarge {
				t.Errorf("CheckSize() = %v, want too large %v", err, tt.tooLarge)
			}
		})
	}
}
