package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/okian/pickle/internal/domain/model"
	"github.com/okian/pickle/pkg/logger"
)

// ErrMismatch is returned when a job's score differs from the generated one.
var ErrMismatch = errors.New("score mismatch")

type outcome struct {
	match  Match
	jobID  string
	status model.Status
	score  model.Score
	err    error
}

// Run generates matches, submits them, waits for every job and checks each
// final score against the one the generator planned.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Named("replay")
	log.Info(ctx, "starting replay",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("matches", cfg.Matches),
		logger.Int("rallies", cfg.Rallies),
		logger.Int("workers", cfg.Workers))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	matches, err := Generate(cfg.Seed, cfg.Matches, cfg.Rallies)
	if err != nil {
		return stats, fmt.Errorf("match generation failed: %w", err)
	}
	stats.Generated = len(matches)

	if cfg.OutputDir != "" {
		if err := saveTracks(cfg.OutputDir, matches); err != nil {
			log.Warn(ctx, "failed to save tracks", logger.Error(err))
		}
	}

	outcomes := runAll(ctx, cfg, client, matches, stats)

	var errs []error
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			stats.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", o.match.Name, o.err))
		case o.status != model.StatusCompleted:
			stats.Failed++
			errs = append(errs, fmt.Errorf("%s: job %s %s", o.match.Name, o.jobID, o.status))
		case o.score != o.match.Expected:
			stats.Mismatched++
			errs = append(errs, fmt.Errorf("%w: %s: got %d:%d, want %d:%d", ErrMismatch, o.match.Name,
				o.score.Top, o.score.Bottom, o.match.Expected.Top, o.match.Expected.Bottom))
		default:
			stats.Completed++
		}
		if cfg.Verbose {
			log.Info(ctx, "match finished", logger.String("match", o.match.Name), logger.JobID(o.jobID),
				logger.String("status", string(o.status)))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, log, stats)
	return stats, errors.Join(errs...)
}

// runAll drives every match to a terminal state on cfg.Workers goroutines.
func runAll(ctx context.Context, cfg *Config, client *Client, matches []Match, stats *Stats) []outcome {
	workers := max(cfg.Workers, 1)
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollPeriod
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make([]outcome, len(matches))
		ch  = make(chan int)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ch {
				o, rejected := runOne(ctx, client, matches[i], poll)
				mu.Lock()
				stats.Rejected += rejected
				if o.jobID != "" {
					stats.Submitted++
				}
				mu.Unlock()
				out[i] = o
			}
		}()
	}
	for i := range matches {
		ch <- i
	}
	close(ch)
	wg.Wait()
	return out
}

func runOne(ctx context.Context, client *Client, m Match, poll time.Duration) (outcome, int) {
	o := outcome{match: m}
	rejected := 0
	for {
		id, err := client.Upload(ctx, m.Name, m.Track)
		if errors.Is(err, ErrBackpressure) {
			rejected++
			if err := sleep(ctx, retryBackoff); err != nil {
				o.err = err
				return o, rejected
			}
			continue
		}
		if err != nil {
			o.err = err
			return o, rejected
		}
		o.jobID = id
		break
	}

	for {
		st, err := client.Status(ctx, o.jobID)
		if err != nil {
			o.err = err
			return o, rejected
		}
		if st.Status.Terminal() {
			o.status = st.Status
			if st.Status == model.StatusFailed {
				o.err = fmt.Errorf("job %s failed: %s", o.jobID, st.Error)
				return o, rejected
			}
			break
		}
		if err := sleep(ctx, poll); err != nil {
			o.err = err
			return o, rejected
		}
	}

	res, err := client.Results(ctx, o.jobID)
	if err != nil {
		o.err = err
		return o, rejected
	}
	o.score = res.Stats.Score
	return o, rejected
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// saveTracks writes every generated track so a run can be replayed by hand.
func saveTracks(dir string, matches []Match) error {
	if err := os.MkdirAll(dir, directoryPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	for _, m := range matches {
		if err := os.WriteFile(filepath.Join(dir, m.Name), m.Track, filePerm); err != nil {
			return fmt.Errorf("failed to write %s: %w", m.Name, err)
		}
	}
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perMinute float64
	if stats.Duration > 0 {
		perMinute = float64(stats.Completed) / stats.Duration.Minutes()
	}
	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("completed", stats.Completed),
		logger.Int("failed", stats.Failed),
		logger.Int("mismatched", stats.Mismatched),
		logger.Duration("duration", stats.Duration),
		logger.Float64("matchesPerMinute", perMinute))
}
