// Package logger provides the single ambient zerolog instance used by the
// calibration core. Every other package receives a scoped sub-logger
// through rctx.Context rather than referencing Log directly; this package
// is the one deliberate exception to that rule (see SPEC_FULL.md 9.1).
package logger

import (
	"os"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

// Log is the process-wide base logger, console-formatted for interactive
// use on the command line. Components derive a named sub-logger from it
// with For.
var Log = logger.With().Caller().Logger().Output(zerolog.ConsoleWriter{Out: os.Stderr})

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// For returns a sub-logger tagged with the owning component, e.g.
// logger.For("endstop") so calibration output can be filtered per strategy.
func For(component string) zerolog.Logger {
	return Log.With().Str("component", component).Logger()
}
