package filters

import (
	"context"
	"time"
)

// Hook observes each filter of a pipeline run.
type Hook interface {
	BeforeFilter(ctx context.Context, index int, kind Kind, in []byte)
	AfterFilter(ctx context.Context, index int, kind Kind, out []byte, d time.Duration, err error)
}

// Pipeline applies filters sequentially, each filter's output becoming the
// next filter's input.
type Pipeline struct {
	filters []Filter
	hooks   []Hook
}

// NewPipeline returns a Pipeline over filters in the given order.
func NewPipeline(filters ...Filter) *Pipeline {
	return &Pipeline{filters: filters}
}

// Use registers observers. Returns the same Pipeline for chaining.
func (p *Pipeline) Use(h ...Hook) *Pipeline {
	p.hooks = append(p.hooks, h...)
	return p
}

// Run threads img through every filter and returns the final buffer.
//
// The first failure aborts the run and is returned as a *PipelineError
// naming the failing filter's index. A cancelled ctx is reported the same
// way against the filter that would have run next. An empty pipeline
// returns img unchanged.
func (p *Pipeline) Run(ctx context.Context, img []byte) ([]byte, error) {
	current := img
	for i, f := range p.filters {
		if err := ctx.Err(); err != nil {
			return nil, &PipelineError{Index: i, Kind: f.Kind(), Err: err}
		}

		p.before(ctx, i, f.Kind(), current)
		start := time.Now()
		out, err := f.Apply(ctx, current)
		p.after(ctx, i, f.Kind(), out, time.Since(start), err)

		if err != nil {
			return nil, &PipelineError{Index: i, Kind: f.Kind(), Err: err}
		}
		current = out
	}
	return current, nil
}

func (p *Pipeline) before(ctx context.Context, i int, kind Kind, in []byte) {
	for _, h := range p.hooks {
		h.BeforeFilter(ctx, i, kind, in)
	}
}

func (p *Pipeline) after(ctx context.Context, i int, kind Kind, out []byte, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterFilter(ctx, i, kind, out, d, err)
	}
}
