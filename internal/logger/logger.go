package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. "prod"/"production" emits JSON lines,
// anything else a human-readable console stream.
func New(mode string) zerolog.Logger {
	return newWithWriter(mode, os.Stderr)
}

func newWithWriter(mode string, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		return zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	default:
		console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(console).Level(zerolog.DebugLevel).With().Timestamp().Caller().Logger()
	}
}
