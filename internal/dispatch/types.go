// Package dispatch runs campaign sends: it resolves a contact
// selection, renders each message, pushes it through a transport at a
// bounded rate, and reports progress as it goes.
package dispatch

import (
	"context"
	"fmt"
	"time"
)

// Message is one fully rendered email ready for a transport.
type Message struct {
	From      string // RFC 5322 From header value
	To        string
	Subject   string
	HTML      string
	PlainText string
	Tags      map[string]string
	Reference string // idempotency hint forwarded to the provider
	APIKey    string // per-sender credential, overrides the transport default
}

// Transport delivers one message and returns the provider message id.
// Implementations must not retry; the event log records each failure
// exactly once.
type Transport interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// TransportError is a delivery failure attributable to the provider or
// the network, as opposed to bad input.
type TransportError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ConcurrencyError means a run for the same sender already holds the
// campaign lock.
type ConcurrencyError struct {
	SenderKey string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("a campaign for sender %s is already running", e.SenderKey)
}

// Session states.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
	SessionCancelled = "cancelled"
)

// Session is one campaign run's persistent record.
type Session struct {
	ID           string     `json:"id" db:"id"`
	SenderKey    string     `json:"sender_key" db:"sender_key"`
	Subject      string     `json:"subject" db:"subject"`
	HTML         string     `json:"html" db:"html"`
	Config       []byte     `json:"config,omitempty" db:"config"`
	Total        int        `json:"total" db:"total"`
	Sent         int        `json:"sent" db:"sent"`
	Failed       int        `json:"failed" db:"failed"`
	CurrentIndex int        `json:"current_index" db:"current_index"`
	Status       string     `json:"status" db:"status"`
	Error        string     `json:"error,omitempty" db:"error"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
