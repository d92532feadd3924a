package contact

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Selection describes which contacts a campaign run targets.
//
// An explicit id list takes precedence over every other filter. Otherwise
// the status filter, category filter and id range narrow from "all
// contacts". The legacy Limit is honored only when no range is supplied.
type Selection struct {
	SenderKey   string  // attribution key stamped on events at ingestion
	SenderEmail string  // fallback substring match against from_email
	Status      string  // one of StatusFilters; "" means "not_sent"
	CategoryID  string  // optional
	RangeStart  int64   // optional, inclusive
	RangeEnd    int64   // optional, inclusive
	Limit       int     // legacy; ignored when a range is set
	IDs         []int64 // explicit selection; overrides everything above
}

// Describe renders the filter combination for error messages.
func (sel Selection) Describe() string {
	if len(sel.IDs) > 0 {
		return fmt.Sprintf("%d selected ids", len(sel.IDs))
	}
	parts := []string{fmt.Sprintf("status %q", sel.Status)}
	if sel.CategoryID != "" {
		parts = append(parts, fmt.Sprintf("category %q", sel.CategoryID))
	}
	switch {
	case sel.RangeStart > 0 && sel.RangeEnd > 0:
		parts = append(parts, fmt.Sprintf("id range %d-%d", sel.RangeStart, sel.RangeEnd))
	case sel.RangeStart > 0:
		parts = append(parts, fmt.Sprintf("from id %d onwards", sel.RangeStart))
	case sel.RangeEnd > 0:
		parts = append(parts, fmt.Sprintf("up to id %d", sel.RangeEnd))
	}
	if sel.Limit > 0 && sel.RangeStart == 0 && sel.RangeEnd == 0 {
		parts = append(parts, fmt.Sprintf("limit %d", sel.Limit))
	}
	return strings.Join(parts, ", ")
}

// SelectionError reports that an explicit id selection resolved to nothing.
type SelectionError struct {
	Description string
}

func (e *SelectionError) Error() string {
	return "no contacts found for " + e.Description
}

// EmptySelectionError reports that a filter combination matched zero rows.
type EmptySelectionError struct {
	Description string
}

func (e *EmptySelectionError) Error() string {
	return "no contacts match " + e.Description
}

// senderAttributionClause matches events attributed to the selection's
// sender: exact key when stamped at ingestion, substring match on the
// free-text from address for legacy rows without a key.
const senderAttributionClause = `(e.sender_key = $1 OR (e.sender_key = '' AND POSITION($2 IN e.from_email) > 0))`

// Select resolves the selection to an ordered, deduplicated contact list.
// Dispatch ordering is always ascending primary id for determinism.
func (s *Store) Select(ctx context.Context, sel Selection) ([]*Contact, error) {
	if len(sel.IDs) > 0 {
		return s.selectByIDs(ctx, sel)
	}
	return s.selectByFilters(ctx, sel)
}

func (s *Store) selectByIDs(ctx context.Context, sel Selection) ([]*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM outreach_contacts WHERE id = ANY($1) ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(sel.IDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts, err := collectContacts(rows)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, &SelectionError{Description: sel.Describe()}
	}
	return contacts, nil
}

func (s *Store) selectByFilters(ctx context.Context, sel Selection) ([]*Contact, error) {
	status := sel.Status
	if status == "" {
		status = StatusNotSent
	}

	var sb strings.Builder
	var args []interface{}
	argNum := 1

	sb.WriteString(`SELECT ` + prefixColumns("c") + ` FROM outreach_contacts c`)

	switch status {
	case "all":
		sb.WriteString(` WHERE 1=1`)
	case StatusNotSent:
		args = append(args, sel.SenderKey, sel.SenderEmail)
		argNum = 3
		sb.WriteString(` WHERE NOT EXISTS (
			SELECT 1 FROM outreach_email_events e
			WHERE e.to_email = c.email AND ` + senderAttributionClause + `)`)
	default:
		// Latest event attributed to this sender must carry the status.
		args = append(args, sel.SenderKey, sel.SenderEmail)
		argNum = 3
		sb.WriteString(` JOIN (
			SELECT DISTINCT ON (e.to_email) e.to_email, e.event_type
			FROM outreach_email_events e
			WHERE ` + senderAttributionClause + `
			ORDER BY e.to_email, e.occurred_at DESC, e.id DESC
		) latest ON latest.to_email = c.email`)
		sb.WriteString(fmt.Sprintf(` WHERE latest.event_type = $%d`, argNum))
		args = append(args, "email."+status)
		argNum++
	}

	if sel.CategoryID != "" {
		sb.WriteString(fmt.Sprintf(` AND c.category_id = $%d`, argNum))
		args = append(args, sel.CategoryID)
		argNum++
	}
	if sel.RangeStart > 0 {
		sb.WriteString(fmt.Sprintf(` AND c.id >= $%d`, argNum))
		args = append(args, sel.RangeStart)
		argNum++
	}
	if sel.RangeEnd > 0 {
		sb.WriteString(fmt.Sprintf(` AND c.id <= $%d`, argNum))
		args = append(args, sel.RangeEnd)
		argNum++
	}

	sb.WriteString(` ORDER BY c.id`)

	if sel.Limit > 0 && sel.RangeStart == 0 && sel.RangeEnd == 0 {
		sb.WriteString(fmt.Sprintf(` LIMIT $%d`, argNum))
		args = append(args, sel.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts, err := collectContacts(rows)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		described := sel
		described.Status = status
		return nil, &EmptySelectionError{Description: described.Describe()}
	}
	return contacts, nil
}

func collectContacts(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*Contact, error) {
	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func prefixColumns(alias string) string {
	cols := strings.Split(contactColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
