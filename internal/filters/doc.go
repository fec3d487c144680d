// Package filters implements the image filters and the pipeline that chains
// them.
//
// A Filter turns one encoded image into another without modifying its
// input. Color filters (bright, negative, white_black, gray_scale, sepia,
// contrast) run in-process and always emit PNG. Upscale filters
// (upscale_x2, upscale_x4) delegate to an Upscaler: either an external
// super-resolution process (ProcessUpscaler) or in-process Lanczos
// resampling (ResampleUpscaler).
//
// Factory maps a validated Spec to its Filter; Pipeline runs filters left to
// right and reports the index of the filter that failed.
//
//	p := filters.NewFactory(upscaler).Pipeline(specs)
//	p.Use(filters.NewLoggingHook(log))
//	out, err := p.Run(ctx, img)
package filters
