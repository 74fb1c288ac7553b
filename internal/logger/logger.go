// Package logger builds the process zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Setup returns a JSON logger on stderr at the given level ("debug", "info", ...).
// pretty switches to the console writer for local development. Unknown levels fall back to info.
func Setup(level string, pretty bool) zerolog.Logger {
	return New(os.Stderr, level, pretty)
}

// New is Setup with an explicit writer.
func New(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}
	}

	return zerolog.New(w).Level(lvl).With().Timestamp().Str("service", "storeguard").Logger()
}
