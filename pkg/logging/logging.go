// Package logging configures the global zerolog logger for the application.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logWriter io.Writer

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logWriter = zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// ConfigureGlobalLogging configures the global logging settings for the
// application. format is either "text" (console writer) or "json".
func ConfigureGlobalLogging(levelStr, format string) error {
	level := parseLogLevel(levelStr)
	zerolog.SetGlobalLevel(level)

	w := logWriter
	if strings.EqualFold(format, "json") {
		w = os.Stderr
	}

	logContext := zerolog.New(w).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}

	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	return nil
}

// SetLogWriter sets the global log writer. Used by tests to capture output.
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// parseLogLevel converts a string log level to zerolog.Level.
func parseLogLevel(levelString string) zerolog.Level {
	if levelString == "" {
		levelString = "info"
	}

	level, err := zerolog.ParseLevel(strings.ToLower(levelString))
	if err != nil {
		log.Error().Err(err).
			Str("logLevel", levelString).
			Msg("Invalid log level provided. Defaulting to info level.")
		return zerolog.InfoLevel
	}
	return level
}
