package event

import (
	"context"
	"database/sql"
)

// attributionClause matches events belonging to a sender: the stamped
// key when present, a substring match on from_email for legacy rows.
// Ties at equal occurred_at break toward the highest row id, so the
// later arrival wins.
const attributionClause = `(e.sender_key = $1 OR (e.sender_key = '' AND POSITION($2 IN e.from_email) > 0))`

// LatestStatuses projects the latest attributed event per recipient.
// Contacts with no attributed events do not appear; callers treat
// absence as "not_sent".
func (s *Store) LatestStatuses(ctx context.Context, senderKey, senderEmail string) (map[string]*ContactStatus, error) {
	query := `SELECT DISTINCT ON (e.to_email) e.to_email, e.event_type, e.occurred_at
		FROM outreach_email_events e
		WHERE ` + attributionClause + `
		ORDER BY e.to_email, e.occurred_at DESC, e.id DESC`
	rows, err := s.db.QueryContext(ctx, query, senderKey, senderEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	statuses := make(map[string]*ContactStatus)
	for rows.Next() {
		cs := &ContactStatus{}
		var eventType string
		if err := rows.Scan(&cs.ToEmail, &eventType, &cs.OccurredAt); err != nil {
			return nil, err
		}
		cs.Status = ShortStatus(eventType)
		statuses[cs.ToEmail] = cs
	}
	return statuses, rows.Err()
}

// LatestStatus projects one recipient's current status for a sender.
// Returns "" when no attributed event exists.
func (s *Store) LatestStatus(ctx context.Context, senderKey, senderEmail, toEmail string) (string, error) {
	query := `SELECT e.event_type FROM outreach_email_events e
		WHERE e.to_email = $3 AND ` + attributionClause + `
		ORDER BY e.occurred_at DESC, e.id DESC LIMIT 1`
	var eventType string
	err := s.db.QueryRowContext(ctx, query, senderKey, senderEmail, toEmail).Scan(&eventType)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ShortStatus(eventType), nil
}

// CountByStatus buckets the projection for a sender, optionally within
// one contact category. not_sent is derived as contacts minus projected
// rows so the buckets always sum to the contact total.
func (s *Store) CountByStatus(ctx context.Context, senderKey, senderEmail, categoryID string) (*StatusCounts, error) {
	var args []interface{}
	contactWhere := ``
	catJoin := ``
	args = append(args, senderKey, senderEmail)
	if categoryID != "" {
		contactWhere = ` WHERE c.category_id = $3`
		catJoin = ` AND c.category_id = $3`
		args = append(args, categoryID)
	}

	query := `SELECT
			(SELECT COUNT(*) FROM outreach_contacts c` + contactWhere + `) AS total,
			latest.event_type, COUNT(*) AS n
		FROM (
			SELECT DISTINCT ON (e.to_email) e.to_email, e.event_type
			FROM outreach_email_events e
			WHERE ` + attributionClause + `
			ORDER BY e.to_email, e.occurred_at DESC, e.id DESC
		) latest
		JOIN outreach_contacts c ON c.email = latest.to_email` + catJoin + `
		GROUP BY latest.event_type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := &StatusCounts{ByStatus: make(map[string]int64)}
	var projected int64
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&counts.Total, &eventType, &n); err != nil {
			return nil, err
		}
		counts.ByStatus[ShortStatus(eventType)] += n
		projected += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// No projected rows at all: the total subquery never ran, fetch it.
	if projected == 0 {
		countQuery := `SELECT COUNT(*) FROM outreach_contacts c`
		var cargs []interface{}
		if categoryID != "" {
			countQuery += ` WHERE c.category_id = $1`
			cargs = append(cargs, categoryID)
		}
		if err := s.db.QueryRowContext(ctx, countQuery, cargs...).Scan(&counts.Total); err != nil {
			return nil, err
		}
	}

	counts.NotSent = counts.Total - projected
	if counts.NotSent < 0 {
		counts.NotSent = 0
	}
	return counts, nil
}
