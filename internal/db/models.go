package db

import (
	"time"
)

// JobEvent is one row of the local job history. A job normally produces a
// printing row when it starts and one terminal row when it ends.
type JobEvent struct {
	ID           int64     `json:"id"`
	JobID        string    `json:"job_id"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Encrypted bool      `json:"encrypted"`
	UpdatedAt time.Time `json:"updated_at"`
}

type HistoryFilter struct {
	JobID  string
	Status string
	Limit  int
	Offset int
}
