package model

import "time"

// Checkin is a heritage passport stamp. The JSON layout is the persisted format.
type Checkin struct {
	MonumentID string `json:"monumentId"`
	Timestamp  int64  `json:"timestamp"` // Unix milliseconds
}

// Time returns the stamp time.
func (c Checkin) Time() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// Event is a user-facing activity line written to the event log.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // "checkin", "narration"
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
}
