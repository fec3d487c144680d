package filters

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LoggingHook logs before and after each filter.
type LoggingHook struct {
	log zerolog.Logger
}

// NewLoggingHook creates a LoggingHook writing to l.
func NewLoggingHook(l zerolog.Logger) *LoggingHook { return &LoggingHook{log: l} }

func (h *LoggingHook) BeforeFilter(_ context.Context, index int, kind Kind, in []byte) {
	h.log.Debug().
		Int("index", index).
		Stringer("filter", kind).
		Int("input_size", len(in)).
		Msg("Filter started")
}

func (h *LoggingHook) AfterFilter(_ context.Context, index int, kind Kind, out []byte, d time.Duration, err error) {
	if err != nil {
		h.log.Error().
			Err(err).
			Int("index", index).
			Stringer("filter", kind).
			Dur("elapsed", d).
			Msg("Filter failed")
		return
	}
	h.log.Debug().
		Int("index", index).
		Stringer("filter", kind).
		Int("output_size", len(out)).
		Dur("elapsed", d).
		Msg("Filter complete")
}
