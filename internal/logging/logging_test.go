package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotlab-io/labwatch/internal/config"
)

func TestNewJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "json", Output: &buf})
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Str("task", "status").Msg("poll failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"task":"status"`)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Output: &buf})
	require.NoError(t, err)

	logger.Debug().Msg("tick")
	assert.Contains(t, buf.String(), "tick")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestSetupFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.HomeEnv, dir)
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	_, closer, err := SetupFile("info")
	require.NoError(t, err)
	log.Info().Msg("dashboard started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, config.LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "dashboard started")
}
