package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureGlobalLoggingSetsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogWriter(&buf)

	require.NoError(t, ConfigureGlobalLogging("warn", "text"))
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.Info().Msg("below threshold")
	assert.NotContains(t, buf.String(), "below threshold")

	log.Warn().Msg("at threshold")
	assert.Contains(t, buf.String(), "at threshold")
}

func TestConfigureGlobalLoggingJSONFormat(t *testing.T) {
	// JSON output bypasses the console writer and goes to stderr directly,
	// so just verify configuration succeeds and the level sticks.
	require.NoError(t, ConfigureGlobalLogging("debug", "json"))
	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel(""))
	assert.Equal(t, zerolog.InfoLevel, parseLogLevel("not-a-level"))
	assert.Equal(t, zerolog.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zerolog.ErrorLevel, parseLogLevel("error"))
}
