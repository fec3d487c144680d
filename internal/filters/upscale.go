package filters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironsheep/image-filter-server/internal/imaging"
)

// Upscaler enlarges an encoded image by an integer factor.
type Upscaler interface {
	Upscale(ctx context.Context, img []byte, factor int) ([]byte, error)
}

type upscaleFilter struct {
	kind     Kind
	factor   int
	upscaler Upscaler
}

// NewUpscale returns a filter delegating to u with a fixed factor.
func NewUpscale(kind Kind, factor int, u Upscaler) Filter {
	return &upscaleFilter{kind: kind, factor: factor, upscaler: u}
}

func (f *upscaleFilter) Kind() Kind { return f.kind }

func (f *upscaleFilter) Apply(ctx context.Context, img []byte) ([]byte, error) {
	return f.upscaler.Upscale(ctx, img, f.factor)
}

// ResampleUpscaler upscales in-process with Lanczos resampling. It is used
// when no external model runner is configured. MaxPixels bounds the result;
// zero means no limit.
type ResampleUpscaler struct {
	MaxPixels int64
}

func (r ResampleUpscaler) Upscale(ctx context.Context, img []byte, factor int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := imaging.CheckSize(img, factor, r.MaxPixels); err != nil {
		return nil, err
	}
	src, err := imaging.Decode(img)
	if err != nil {
		return nil, err
	}
	out, err := imaging.Scale(src, factor, r.MaxPixels)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNG(out)
}

// stagedName is the file name the input is written under; the extension
// follows the sniffed format because model runners pick a decoder by it.
const stagedName = "upscale"

// stderrLimit caps how much of the process's stderr is kept for errors.
const stderrLimit = 4 << 10

// ProcessUpscaler runs an external super-resolution process.
//
// The process is invoked as
//
//	Command[0] Command[1:]... --input <dir> --output <dir> <ModelDir>/<factor>x.pth
//
// and must read the single image in the input directory and write exactly
// one image to the output directory. Staging directories live under WorkDir
// (the OS temp dir when empty) and are removed on every exit path,
// including cancellation of ctx, which also kills the process.
type ProcessUpscaler struct {
	Command  []string
	ModelDir string
	WorkDir  string
	Timeout  time.Duration
}

// ModelPath returns the model file used for factor.
func (p *ProcessUpscaler) ModelPath(factor int) string {
	return filepath.Join(p.ModelDir, strconv.Itoa(factor)+"x.pth")
}

func (p *ProcessUpscaler) Upscale(ctx context.Context, img []byte, factor int) ([]byte, error) {
	if len(p.Command) == 0 {
		return nil, fmt.Errorf("%w: no command configured", ErrUpscaleProcess)
	}
	format := imaging.Classify(img)
	if !format.Supported() {
		return nil, fmt.Errorf("cannot upscale %s payload", format)
	}

	log := zerolog.Ctx(ctx)

	stage, err := os.MkdirTemp(p.WorkDir, "upscale-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaging, err)
	}
	defer func() {
		if err := os.RemoveAll(stage); err != nil {
			log.Warn().Err(err).Str("dir", stage).Msg("Failed to remove staging directory")
		}
	}()

	inDir := filepath.Join(stage, "input")
	outDir := filepath.Join(stage, "output")
	for _, dir := range []string{inDir, outDir} {
		if err := os.Mkdir(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStaging, err)
		}
	}
	if err := os.WriteFile(filepath.Join(inDir, stagedName+format.Extension()), img, 0o600); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaging, err)
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := append(slices.Clone(p.Command[1:]), "--input", inDir, "--output", outDir, p.ModelPath(factor))
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	log.Debug().
		Str("command", p.Command[0]).
		Int("factor", factor).
		Str("stage", stage).
		Msg("Starting upscale process")

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpscaleProcess, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrUpscaleProcess, err, strings.TrimSpace(stderr.String()))
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaging, err)
	}
	var outputs []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			outputs = append(outputs, e.Name())
		}
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrUpscaleOutput, len(outputs))
	}

	result, err := os.ReadFile(filepath.Join(outDir, outputs[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStaging, err)
	}

	log.Debug().
		Int("factor", factor).
		Int("output_size", len(result)).
		Dur("elapsed", time.Since(start)).
		Msg("Upscale process complete")

	return result, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if extra := t.buf.Len() - t.limit; extra > 0 {
		t.buf.Next(extra)
	}
	return n, nil
}

func (t *tailBuffer) String() string { return t.buf.String() }
