package replay

import (
	"time"

	"github.com/okian/pickle/internal/domain/model"
)

// Config holds configuration for a replay run.
type Config struct {
	BaseURL      string        // Base URL of the service
	Matches      int           // Number of synthetic matches to submit
	Rallies      int           // Rallies per match
	Workers      int           // Concurrent uploads
	Seed         uint64        // Seed for the match generator
	Timeout      time.Duration // HTTP request timeout
	PollInterval time.Duration // Gap between status polls
	OutputDir    string        // Where generated tracks are saved, empty to skip
	Verbose      bool          // Enable verbose logging
}

// Match is one generated track and the score it must produce.
type Match struct {
	Name     string
	Track    []byte
	Frames   int
	Expected model.Score
}

// Stats holds run statistics.
type Stats struct {
	Generated  int
	Submitted  int
	Rejected   int
	Completed  int
	Failed     int
	Mismatched int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

type uploadResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type statusResponse struct {
	Status   model.Status `json:"status"`
	Progress float64      `json:"progress"`
	Error    string       `json:"error"`
}

type resultsResponse struct {
	JobID string      `json:"job_id"`
	Stats model.Stats `json:"stats"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
