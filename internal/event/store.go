package event

import (
	"context"
	"database/sql"
)

// Store provides database operations for email events
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const eventColumns = `id, event_id, event_type, sender_key, email_id, from_email, to_email,
	subject, click_url, bounce_reason, complaint_feedback_type, raw_data, occurred_at, received_at`

func scanEvent(row interface{ Scan(...interface{}) error }) (*Event, error) {
	e := &Event{}
	err := row.Scan(&e.ID, &e.EventID, &e.Type, &e.SenderKey, &e.EmailID, &e.FromEmail,
		&e.ToEmail, &e.Subject, &e.ClickURL, &e.BounceReason, &e.ComplaintFeedbackType,
		&e.RawData, &e.OccurredAt, &e.ReceivedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Append inserts one event row. The log is append-only; rows are never
// updated or deleted by the application.
func (s *Store) Append(ctx context.Context, e *Event) error {
	query := `INSERT INTO outreach_email_events (event_id, event_type, sender_key, email_id,
			from_email, to_email, subject, click_url, bounce_reason, complaint_feedback_type,
			raw_data, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, received_at`
	return s.db.QueryRowContext(ctx, query,
		e.EventID, e.Type, e.SenderKey, e.EmailID, e.FromEmail, e.ToEmail,
		e.Subject, e.ClickURL, e.BounceReason, e.ComplaintFeedbackType,
		e.RawData, e.OccurredAt,
	).Scan(&e.ID, &e.ReceivedAt)
}

// Recent lists the newest events, optionally narrowed to one sender.
func (s *Store) Recent(ctx context.Context, senderKey string, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows *sql.Rows
	var err error
	if senderKey != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+eventColumns+` FROM outreach_email_events
			WHERE sender_key = $1 ORDER BY received_at DESC, id DESC LIMIT $2`,
			senderKey, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+eventColumns+` FROM outreach_email_events
			ORDER BY received_at DESC, id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// History returns every event for one recipient attributed to a sender,
// newest first.
func (s *Store) History(ctx context.Context, senderKey, senderEmail, toEmail string) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM outreach_email_events e
		WHERE e.to_email = $3 AND ` + attributionClause + `
		ORDER BY e.occurred_at DESC, e.id DESC`
	rows, err := s.db.QueryContext(ctx, query, senderKey, senderEmail, toEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
