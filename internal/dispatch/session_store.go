package dispatch

import (
	"context"
	"database/sql"
)

// SessionStore persists campaign run records.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, sender_key, subject, html, config, total, sent, failed,
	current_index, status, error, started_at, finished_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	s := &Session{}
	err := row.Scan(&s.ID, &s.SenderKey, &s.Subject, &s.HTML, &s.Config, &s.Total,
		&s.Sent, &s.Failed, &s.CurrentIndex, &s.Status, &s.Error, &s.StartedAt, &s.FinishedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create records the start of a run.
func (st *SessionStore) Create(ctx context.Context, s *Session) error {
	return st.db.QueryRowContext(ctx,
		`INSERT INTO outreach_campaign_sessions (id, sender_key, subject, html, config, total, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING started_at`,
		s.ID, s.SenderKey, s.Subject, s.HTML, s.Config, s.Total, s.Status,
	).Scan(&s.StartedAt)
}

// Get returns one session, (nil, nil) when absent.
func (st *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(st.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM outreach_campaign_sessions WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// UpdateProgress checkpoints the counters mid-run.
func (st *SessionStore) UpdateProgress(ctx context.Context, s *Session) error {
	_, err := st.db.ExecContext(ctx,
		`UPDATE outreach_campaign_sessions
		SET sent = $2, failed = $3, current_index = $4 WHERE id = $1`,
		s.ID, s.Sent, s.Failed, s.CurrentIndex)
	return err
}

// Finish records the terminal state of a run.
func (st *SessionStore) Finish(ctx context.Context, s *Session) error {
	return st.db.QueryRowContext(ctx,
		`UPDATE outreach_campaign_sessions
		SET sent = $2, failed = $3, current_index = $4, status = $5, error = $6, finished_at = NOW()
		WHERE id = $1
		RETURNING finished_at`,
		s.ID, s.Sent, s.Failed, s.CurrentIndex, s.Status, s.Error,
	).Scan(&s.FinishedAt)
}

// Recent lists the newest sessions.
func (st *SessionStore) Recent(ctx context.Context, limit int) ([]*Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := st.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM outreach_campaign_sessions
		ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
