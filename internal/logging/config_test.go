package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
		ok    bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{"DEBUG", zerolog.DebugLevel, true},
		{" info ", zerolog.InfoLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{"error", zerolog.ErrorLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseLevel(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogFile, "/tmp/wordbiz.log")

	opts := DefaultOptions(ProfileRuntime)
	ApplyEnvOverrides(&opts)

	assert.Equal(t, zerolog.ErrorLevel, opts.Level)
	assert.False(t, opts.Timestamp)
	assert.True(t, opts.NoColor)
	assert.Equal(t, "/tmp/wordbiz.log", opts.FilePath)
}

func TestConfigureWritesConsoleAndFile(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "client.log")
	opts := DefaultOptions(ProfileRuntime)
	opts.Console = &console
	opts.NoColor = true
	opts.FilePath = path

	logger, closer := Configure(opts)
	logger.Info().Str("component", "test").Msg("logging.configure ok")
	logger.Debug().Msg("hidden at info")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "logging.configure ok")
	assert.NotContains(t, console.String(), "hidden at info")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"logging.configure ok"`)
	assert.Contains(t, string(data), `"app":"wordbiz"`)
}
