package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewComponentLogger creates a component-scoped logger with consistent
// context fields. Level comes from the configured level string, overridable
// via LOG_LEVEL.
func NewComponentLogger(componentName, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	var logger zerolog.Logger
	if os.Getenv("ENVIRONMENT") != "production" {
		// Console output for development
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	} else {
		logger = zerolog.New(os.Stderr)
	}

	return logger.With().
		Timestamp().
		Str("component", componentName).
		Logger()
}
