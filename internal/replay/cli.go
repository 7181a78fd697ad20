package replay

import (
	"fmt"
	"os"

	"github.com/okian/pickle/pkg/logger"
)

// SetupLogging initializes the global logger for the replay tool.
func SetupLogging(verbose bool) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	os.Stdout.WriteString(`pickle replay
=============

Generates synthetic rally tracks with a known outcome, submits them to a
running pickle service and checks every final score.

Usage:
  go run ./cmd/replay [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8000")
  -matches int
        Number of matches to generate and submit (default 4)
  -rallies int
        Rallies per match (default 5)
  -workers int
        Concurrent uploads (default 2)
  -seed uint
        Generator seed (default 1)
  -timeout duration
        HTTP request timeout (default 30s)
  -poll duration
        Status poll interval (default 250ms)
  -out string
        Directory to save generated tracks (default: not saved)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Replay four matches against a local service
  go run ./cmd/replay

  # Save the tracks and upload them by hand later
  go run ./cmd/replay -matches 1 -out ./tracks
`)
}
