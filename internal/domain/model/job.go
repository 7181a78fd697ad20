package model

import "time"

// Status is the lifecycle state of a job.
type Status string

// Job states. A job starts processing and moves exactly once to a terminal state.
const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is the ticket handed from the upload path to a worker.
type Job struct {
	ID          string
	InputPath   string
	Filename    string
	SubmittedAt time.Time
}

// Result points at the artifacts of a completed job.
type Result struct {
	VideoPath string `json:"video_path"`
	StatsPath string `json:"stats_path"`
	OutputDir string `json:"output_dir"`
}

// Record is the externally visible state of one job. Records are treated
// as immutable snapshots once published; writers copy, modify and swap.
type Record struct {
	ID            string    `json:"job_id"`
	Status        Status    `json:"status"`
	Progress      float64   `json:"progress"`
	Error         string    `json:"error,omitempty"`
	LatestFrame   []byte    `json:"-"`
	LatestStats   *Stats    `json:"-"`
	PlayerHeatmap []byte    `json:"-"`
	BallHeatmap   []byte    `json:"-"`
	Result        *Result   `json:"result"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Outcome is what a worker reports after driving a job to its end.
type Outcome struct {
	JobID  string
	Status Status
	Frames int
	Err    error
}

// Failed reports whether the job ended in the failed state.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}
