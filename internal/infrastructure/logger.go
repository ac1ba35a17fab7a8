package infrastructure

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/architeacher/svc-device-manager/internal/config"
)

// Logger wraps zerolog so callers depend on one logging type across the
// codebase.
type Logger struct {
	zerolog.Logger
}

// New creates a structured logger from the logging configuration. The
// "console" format is for local development; everything else logs JSON.
func New(cfg config.LoggingConfig) Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	logger = logger.Level(level).With().Timestamp().Logger()

	return Logger{Logger: logger}
}

// NewNop returns a logger that discards everything. Used in tests.
func NewNop() Logger {
	return Logger{Logger: zerolog.Nop()}
}

// Component returns a sub-logger tagged with a component name.
func (l Logger) Component(name string) Logger {
	return Logger{Logger: l.With().Str("component", name).Logger()}
}
