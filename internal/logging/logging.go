// Package logging configures the global zerolog logger for the CLI.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger based on verbosity level.
// 0 = warnings only, 1 = info, 2 = debug, 3+ = trace.
func Setup(verbosity int) {
	switch verbosity {
	case 0:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case 1:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case 2:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}

	log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
}

// Discard silences the global logger. Used by tests.
func Discard() {
	log.Logger = zerolog.New(io.Discard)
}

// Logger returns a named component logger.
//
// Example:
//
//	log := logging.Logger("engine")
//	log.Debug().Str("feature", id).Msg("staging feature")
func Logger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
