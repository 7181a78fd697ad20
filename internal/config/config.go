// Package config defines service configuration and its loading.
//
// Values are layered: defaults from New, then an optional YAML file named
// by PICKLE_CONFIG, then PICKLE_* environment variables with flat
// snake_case keys.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// QueueSize bounds the admission queue. Uploads beyond it get 503.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount is the number of jobs processed concurrently.
	WorkerCount int `koanf:"worker_count"`

	// UploadDir receives the uploaded inputs.
	UploadDir string `koanf:"upload_dir"`
	// OutputDir receives one directory of artifacts per job.
	OutputDir string `koanf:"output_dir"`
	// ArchivePath is the SQLite results archive. Empty disables archiving.
	ArchivePath string `koanf:"archive_path"`
	// MaxUploadMB caps the multipart upload size.
	MaxUploadMB int `koanf:"max_upload_mb"`

	// HeatmapInterval is the number of frames between live heatmap exports.
	HeatmapInterval int `koanf:"heatmap_interval"`
	// StreamIntervalMS throttles MJPEG parts per stream client.
	StreamIntervalMS int `koanf:"stream_interval_ms"`

	// Detection heuristics, in frames.
	HistorySize    int `koanf:"history_size"`
	BounceCooldown int `koanf:"bounce_cooldown"`
	BounceDisplay  int `koanf:"bounce_display"`
	PointDisplay   int `koanf:"point_display"`
	RallyGapFrames int `koanf:"rally_gap_frames"`

	// Court geometry in meters.
	CourtWidth  float64 `koanf:"court_width"`
	CourtLength float64 `koanf:"court_length"`
	CourtMargin float64 `koanf:"court_margin"`

	// MetricsEnabled registers Prometheus collectors.
	MetricsEnabled bool `koanf:"metrics_enabled"`
	// MetricsRefreshMS is how often system and service gauges are refreshed.
	MetricsRefreshMS int `koanf:"metrics_refresh_ms"`
	// MetricsBucketsMS overrides the latency histogram buckets. YAML only.
	MetricsBucketsMS []float64 `koanf:"metrics_buckets_ms"`
	// ShutdownTimeoutMS bounds graceful shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":8000",
		QueueSize:         16,
		WorkerCount:       4,
		UploadDir:         "uploads",
		OutputDir:         "outputs",
		ArchivePath:       "pickle.db",
		MaxUploadMB:       512,
		HeatmapInterval:   30,
		StreamIntervalMS:  33,
		HistorySize:       5,
		BounceCooldown:    15,
		BounceDisplay:     3,
		PointDisplay:      18,
		RallyGapFrames:    45,
		CourtWidth:        6.10,
		CourtLength:       13.41,
		CourtMargin:       0,
		MetricsEnabled:    true,
		MetricsRefreshMS:  10_000,
		ShutdownTimeoutMS: 10_000,
	}
}

// StreamInterval returns the per-client frame interval.
func (c *Config) StreamInterval() time.Duration {
	return time.Duration(c.StreamIntervalMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// MetricsRefresh returns the gauge refresh interval.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.UploadDir == "" || c.OutputDir == "":
		return fmt.Errorf("%w: upload_dir and output_dir are required", ErrInvalidConfig)
	case c.MaxUploadMB <= 0:
		return fmt.Errorf("%w: max_upload_mb must be positive", ErrInvalidConfig)
	case c.HeatmapInterval <= 0:
		return fmt.Errorf("%w: heatmap_interval must be positive", ErrInvalidConfig)
	case c.StreamIntervalMS < 0:
		return fmt.Errorf("%w: stream_interval_ms must not be negative", ErrInvalidConfig)
	case c.HistorySize < 3:
		return fmt.Errorf("%w: history_size must be at least 3", ErrInvalidConfig)
	case c.BounceCooldown < 0 || c.BounceDisplay < 0 || c.PointDisplay < 0:
		return fmt.Errorf("%w: frame counts must not be negative", ErrInvalidConfig)
	case c.RallyGapFrames <= 0:
		return fmt.Errorf("%w: rally_gap_frames must be positive", ErrInvalidConfig)
	case c.CourtWidth <= 0 || c.CourtLength <= 0 || c.CourtMargin < 0:
		return fmt.Errorf("%w: court dimensions must be positive", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive, got %d", ErrInvalidConfig, c.MetricsRefreshMS)
	}
	for i, b := range c.MetricsBucketsMS {
		if b <= 0 || (i > 0 && b <= c.MetricsBucketsMS[i-1]) {
			return fmt.Errorf("%w: metrics_buckets_ms must be positive and increasing", ErrInvalidConfig)
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
