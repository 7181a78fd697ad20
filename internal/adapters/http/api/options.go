package api

import "time"

type config struct {
	maxUpload      int64
	streamInterval time.Duration
}

// Option configures a Server.
type Option func(*config)

// WithMaxUpload caps the size of an uploaded file in bytes.
func WithMaxUpload(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxUpload = n
		}
	}
}

// WithStreamInterval sets the minimum gap between two live stream parts.
func WithStreamInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.streamInterval = d
		}
	}
}
