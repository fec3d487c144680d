// Package imaging provides the pixel-level building blocks used by filters.
//
// The package covers three concerns:
//
//   - Sniffing: Classify inspects the leading bytes of a payload and tells
//     PNG and JPEG apart from other image containers and from data that is
//     not an image at all.
//   - Codec: Decode accepts PNG or JPEG; every result is encoded with
//     EncodePNG so filter output is lossless. CheckSize reads only the
//     header and refuses images over a pixel limit before anything is
//     decoded.
//   - Transforms: Brighten, Invert, Threshold, Grayscale, Sepia and Contrast
//     are per-pixel color operations; Scale resamples by an integer factor.
//
// # Thread Safety
//
// All functions are stateless and never modify their input, so they may be
// called concurrently on the same or different images.
//
// # Color Representation
//
// Transforms work on the straight (non-premultiplied) 8-bit RGB of each
// pixel, so a translucent pixel keeps its stored color. Alpha is dropped and every output pixel is
// opaque. Intermediate results are truncated toward zero and clamped to
// 0-255, so out-of-range coefficients saturate instead of failing.
package imaging
