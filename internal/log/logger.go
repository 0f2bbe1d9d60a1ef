// Package log builds the process-wide console logger.
package log

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console logger writing to stderr at the given level. Every
// line carries a service field so an embedding host can split chatcore
// output from its own.
func New(level string) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(output).Level(ParseLevel(level)).With().
		Timestamp().
		Str("service", "chatcore").
		Logger()
	return &logger
}

// WithLevel returns a copy of the logger at the given level. The startup
// path uses it once the config file resolves a level different from the
// bootstrap flag, instead of rebuilding the writer.
func WithLevel(logger *zerolog.Logger, level string) *zerolog.Logger {
	l := logger.Level(ParseLevel(level))
	return &l
}

// ParseLevel maps a config level string to a zerolog level. Unknown or
// empty strings mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
