// Package logger provides the process-wide structured logger used by every
// component of the harness.
//
// Logger is safe for concurrent use directly, which matters here: every
// listener and every accepted connection gets its own goroutine and they
// all log through the same sink.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init must be called once before use;
// the zero value writes nothing useful but is still safe to call.
var Logger zerolog.Logger

// Init configures the global Logger. verbose selects debug-level output;
// otherwise info-level. Output is always a human-readable console writer
// on stderr — this is an interactive test harness, not a service whose
// logs are scraped by a log pipeline.
func Init(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).Level(level).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagging every entry with the given
// component name (e.g. "pki", "fleet", "directory").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithEndpoint returns a child logger additionally tagging every entry
// with the MAPI endpoint name it concerns.
func WithEndpoint(base zerolog.Logger, endpoint string) zerolog.Logger {
	return base.With().Str("endpoint", endpoint).Logger()
}
