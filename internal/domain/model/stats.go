package model

// Operational describes where a job is in its frame stream.
type Operational struct {
	CurrentFrame int     `json:"current_frame"`
	TotalFrames  int     `json:"total_frames"`
	Progress     float64 `json:"progress"`
}

// Rally summarises one finished rally.
type Rally struct {
	Start  int         `json:"start_frame"`
	End    int         `json:"end_frame"`
	Frames int         `json:"frames"`
	Point  *PointAward `json:"point,omitempty"`
}

// Stats is the structured snapshot published with every frame and written
// as the final stats document.
type Stats struct {
	Score        Score         `json:"score"`
	Points       []PointAward  `json:"points"`
	BounceCount  int           `json:"bounce_count"`
	Bounces      []BounceEvent `json:"bounces"`
	RallyCount   int           `json:"rally_count"`
	Rallies      []Rally       `json:"rallies"`
	RallyActive  bool          `json:"rally_active"`
	LastSide     Side          `json:"last_side,omitempty"`
	BounceFlash  bool          `json:"bounce_flash"`
	PointFlash   bool          `json:"point_flash"`
	BallDetected int           `json:"ball_detected_frames"`
	Operational  Operational   `json:"operational"`
}
