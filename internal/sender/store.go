package sender

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store provides database operations for senders
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const senderColumns = `id, key, name, from_email, transport, api_key, webhook_secret,
	active, emails_sent, last_used_at, created_at, updated_at`

func scanSender(row interface{ Scan(...interface{}) error }) (*Sender, error) {
	s := &Sender{}
	err := row.Scan(&s.ID, &s.Key, &s.Name, &s.FromEmail, &s.Transport, &s.APIKey,
		&s.WebhookSecret, &s.Active, &s.EmailsSent, &s.LastUsedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create registers a new sender. Keys are normalized to lowercase and
// must be unique across the registry.
func (st *Store) Create(ctx context.Context, s *Sender) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.Key = strings.ToLower(strings.TrimSpace(s.Key))
	s.FromEmail = strings.ToLower(strings.TrimSpace(s.FromEmail))
	if s.Transport == "" {
		s.Transport = TransportResend
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}

	query := `INSERT INTO outreach_senders (id, key, name, from_email, transport,
			api_key, webhook_secret, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := st.db.QueryRowContext(ctx, query, s.ID, s.Key, s.Name, s.FromEmail,
		s.Transport, s.APIKey, s.WebhookSecret, s.Active,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return &ConfigurationError{Key: s.Key, Reason: "sender key already registered"}
	}
	return err
}

// Get retrieves a sender by key regardless of active state. Returns
// (nil, nil) when absent.
func (st *Store) Get(ctx context.Context, key string) (*Sender, error) {
	query := `SELECT ` + senderColumns + ` FROM outreach_senders WHERE key = $1`
	s, err := scanSender(st.db.QueryRowContext(ctx, query, strings.ToLower(key)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// GetActive retrieves a sender that must exist and be active. Unknown or
// deactivated keys surface as ConfigurationError so dispatch and webhook
// ingestion fail closed.
func (st *Store) GetActive(ctx context.Context, key string) (*Sender, error) {
	s, err := st.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &ConfigurationError{Key: key, Reason: "unknown sender"}
	}
	if !s.Active {
		return nil, &ConfigurationError{Key: key, Reason: "sender is deactivated"}
	}
	return s, nil
}

// List returns every sender ordered by key.
func (st *Store) List(ctx context.Context) ([]*Sender, error) {
	query := `SELECT ` + senderColumns + ` FROM outreach_senders ORDER BY key`
	rows, err := st.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var senders []*Sender
	for rows.Next() {
		s, err := scanSender(rows)
		if err != nil {
			return nil, err
		}
		senders = append(senders, s)
	}
	return senders, rows.Err()
}

// Update rewrites the mutable fields of a sender.
func (st *Store) Update(ctx context.Context, s *Sender) error {
	if err := s.Validate(); err != nil {
		return err
	}
	query := `UPDATE outreach_senders SET name = $2, from_email = $3, transport = $4,
			api_key = $5, webhook_secret = $6, active = $7, updated_at = NOW()
		WHERE key = $1`
	res, err := st.db.ExecContext(ctx, query, strings.ToLower(s.Key), s.Name,
		strings.ToLower(s.FromEmail), s.Transport, s.APIKey, s.WebhookSecret, s.Active)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ConfigurationError{Key: s.Key, Reason: "unknown sender"}
	}
	return nil
}

// Deactivate flips a sender inactive without deleting its history.
func (st *Store) Deactivate(ctx context.Context, key string) error {
	res, err := st.db.ExecContext(ctx,
		`UPDATE outreach_senders SET active = false, updated_at = NOW() WHERE key = $1`,
		strings.ToLower(key))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ConfigurationError{Key: key, Reason: "unknown sender"}
	}
	return nil
}

// Delete removes a sender. Event history keeps its sender_key stamps.
func (st *Store) Delete(ctx context.Context, key string) error {
	_, err := st.db.ExecContext(ctx,
		`DELETE FROM outreach_senders WHERE key = $1`, strings.ToLower(key))
	return err
}

// RecordUsage bumps the usage counters after a dispatch run.
func (st *Store) RecordUsage(ctx context.Context, key string, sent int) error {
	_, err := st.db.ExecContext(ctx,
		`UPDATE outreach_senders SET emails_sent = emails_sent + $2, last_used_at = NOW(),
			updated_at = NOW() WHERE key = $1`,
		strings.ToLower(key), sent)
	return err
}
