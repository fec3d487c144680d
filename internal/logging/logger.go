// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global level and installs the global logger writing to
// stderr. format is "json" or "console"; level is debug, info, warn or
// error (default: info).
func Init(level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.DurationFieldUnit = time.Millisecond
	log.Logger = New(os.Stderr, format)
}

// New returns a timestamped logger writing to w.
func New(w io.Writer, format string) zerolog.Logger {
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
