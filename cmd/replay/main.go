package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/pickle/internal/replay"
)

// Default configuration constants.
const (
	defaultMatches   = 4
	defaultRallies   = 5
	defaultWorkers   = 2
	defaultTimeout   = 30 * time.Second
	defaultPoll      = 250 * time.Millisecond
	defaultRunWindow = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:8000", "Base URL of the service")
		matches = flag.Int("matches", defaultMatches, "Number of matches to generate and submit")
		rallies = flag.Int("rallies", defaultRallies, "Rallies per match")
		workers = flag.Int("workers", defaultWorkers, "Concurrent uploads")
		seed    = flag.Uint64("seed", 1, "Generator seed")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		poll    = flag.Duration("poll", defaultPoll, "Status poll interval")
		outDir  = flag.String("out", "", "Directory to save generated tracks")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp()
		return
	}

	if err := replay.SetupLogging(*verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunWindow)
	defer cancel()

	cfg := &replay.Config{
		BaseURL:      *baseURL,
		Matches:      *matches,
		Rallies:      *rallies,
		Workers:      *workers,
		Seed:         *seed,
		Timeout:      *timeout,
		PollInterval: *poll,
		OutputDir:    *outDir,
		Verbose:      *verbose,
	}

	if _, err := replay.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Replay failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
