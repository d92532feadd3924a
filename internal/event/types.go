// Package event stores the append-only email event log and derives
// per-contact delivery status from it at read time. Nothing here mutates
// contacts; status is always a projection over the latest event.
package event

import (
	"time"
)

// Event types as they arrive on the wire. Unknown types are stored
// verbatim so no history is lost.
const (
	TypeSent           = "email.sent"
	TypeDelivered      = "email.delivered"
	TypeDeliveryDelayed = "email.delivery_delayed"
	TypeOpened         = "email.opened"
	TypeClicked        = "email.clicked"
	TypeBounced        = "email.bounced"
	TypeComplained     = "email.complained"
	TypeFailed         = "email.failed"
	TypeScheduled      = "email.scheduled"
)

var knownTypes = map[string]bool{
	TypeSent: true, TypeDelivered: true, TypeDeliveryDelayed: true,
	TypeOpened: true, TypeClicked: true, TypeBounced: true,
	TypeComplained: true, TypeFailed: true, TypeScheduled: true,
}

// KnownType reports whether t is one of the recognized email.* types.
func KnownType(t string) bool {
	return knownTypes[t]
}

// Event is one row of the email event log.
type Event struct {
	ID                    int64     `json:"id" db:"id"`
	EventID               string    `json:"event_id" db:"event_id"`
	Type                  string    `json:"event_type" db:"event_type"`
	SenderKey             string    `json:"sender_key" db:"sender_key"`
	EmailID               string    `json:"email_id" db:"email_id"`
	FromEmail             string    `json:"from_email" db:"from_email"`
	ToEmail               string    `json:"to_email" db:"to_email"`
	Subject               string    `json:"subject" db:"subject"`
	ClickURL              string    `json:"click_url" db:"click_url"`
	BounceReason          string    `json:"bounce_reason" db:"bounce_reason"`
	ComplaintFeedbackType string    `json:"complaint_feedback_type" db:"complaint_feedback_type"`
	RawData               []byte    `json:"raw_data,omitempty" db:"raw_data"`
	OccurredAt            time.Time `json:"occurred_at" db:"occurred_at"`
	ReceivedAt            time.Time `json:"received_at" db:"received_at"`
}

// ContactStatus is one row of the read-time projection: the latest
// attributed event per recipient address.
type ContactStatus struct {
	ToEmail    string    `json:"to_email"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StatusCounts buckets the projection for the stats endpoint.
type StatusCounts struct {
	Total     int64            `json:"total"`
	NotSent   int64            `json:"not_sent"`
	ByStatus  map[string]int64 `json:"by_status"`
}

// ShortStatus strips the "email." prefix for filter values and display.
func ShortStatus(eventType string) string {
	const prefix = "email."
	if len(eventType) > len(prefix) && eventType[:len(prefix)] == prefix {
		return eventType[len(prefix):]
	}
	return eventType
}
