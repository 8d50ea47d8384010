package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns the root structured logger. Request-scoped loggers derive from
// this one through the HTTP middleware and travel in context.
func New() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "assessor").Logger()
}
