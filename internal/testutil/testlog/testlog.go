package testlog

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/danmuck/trackerctl/internal/logging"
)

// Start configures process logging for tests and returns a logger routed
// through t.Log, tagged with the test name.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logging.ConfigureTests()
	return zerolog.New(zerolog.NewTestWriter(t)).
		Level(zerolog.DebugLevel).
		With().Str("test", t.Name()).Logger()
}
