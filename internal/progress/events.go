// Package progress fans campaign run events out to SSE subscribers.
// Delivery is fire-and-forget: a slow or absent listener never blocks
// or fails a send.
package progress

import (
	"time"
)

// Event types emitted over the progress channel.
const (
	EventRunStarted     = "run_started"
	EventBatchStarted   = "batch_started"
	EventEmailStarted   = "email_started"
	EventEmailSent      = "email_sent"
	EventEmailFailed    = "email_failed"
	EventBatchCompleted = "batch_completed"
	EventRunCompleted   = "run_completed"
	EventRunFailed      = "run_failed"
)

// Event is one progress update for a campaign session.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	Total   int `json:"total,omitempty"`
	Index   int `json:"index,omitempty"`
	Batch   int `json:"batch,omitempty"`
	Sent    int `json:"sent,omitempty"`
	Failed  int `json:"failed,omitempty"`
	Percent int `json:"percent,omitempty"`

	Email       string  `json:"email,omitempty"`
	Error       string  `json:"error,omitempty"`
	Remaining   int     `json:"remaining,omitempty"`
	SuccessRate float64 `json:"success_rate,omitempty"`
}

// PercentOf computes the rounded progress percentage for index of total.
func PercentOf(index, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(index)/float64(total)*100 + 0.5)
}
