package template

import (
	"context"
	"database/sql"
	"time"
)

// Template is the last-used subject and body for one sender. The UI
// preloads it so a campaign can be re-sent or tweaked.
type Template struct {
	SenderKey string    `json:"sender_key" db:"sender_key"`
	Subject   string    `json:"subject" db:"subject"`
	HTML      string    `json:"html" db:"html"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Store persists one template row per sender.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns the sender's saved template, or (nil, nil) when none is
// saved yet.
func (s *Store) Get(ctx context.Context, senderKey string) (*Template, error) {
	t := &Template{}
	err := s.db.QueryRowContext(ctx,
		`SELECT sender_key, subject, html, updated_at FROM outreach_templates WHERE sender_key = $1`,
		senderKey,
	).Scan(&t.SenderKey, &t.Subject, &t.HTML, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Save upserts the sender's template. Called after each campaign run and
// from the explicit save endpoint.
func (s *Store) Save(ctx context.Context, t *Template) error {
	return s.db.QueryRowContext(ctx,
		`INSERT INTO outreach_templates (sender_key, subject, html, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (sender_key) DO UPDATE SET subject = $2, html = $3, updated_at = NOW()
		RETURNING updated_at`,
		t.SenderKey, t.Subject, t.HTML,
	).Scan(&t.UpdatedAt)
}
