// Package testlog routes test output through the debug console logger.
package testlog

import (
	"testing"

	"github.com/danmuck/wordbiz/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Start configures test logging and returns a logger tagged with the test
// name. The test outcome is logged on cleanup.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	logger := log.With().Str("test", t.Name()).Logger()
	logger.Info().Msg("testlog.Start")
	t.Cleanup(func() {
		if t.Failed() {
			logger.Warn().Msg("testlog.Done failed")
			return
		}
		logger.Debug().Msg("testlog.Done")
	})
	return logger
}
