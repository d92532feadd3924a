package contact

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// Store provides database operations for contacts
type Store struct {
	db *sql.DB
}

// NewStore creates a new contact store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const contactColumns = `id, category_id, category_name, contact_seq, email, first_name, last_name,
	company_name, company_industry, company_website, company_description, job_title,
	location_city, location_country, linkedin_url, linkedin_headline, phone_number,
	tailored_first_line, tailored_ps_statement, tailored_subject, custom_1, custom_2,
	website_content, csv_data, created_at, updated_at`

func scanContact(row interface{ Scan(...interface{}) error }) (*Contact, error) {
	c := &Contact{}
	err := row.Scan(&c.ID, &c.CategoryID, &c.CategoryName, &c.ContactSeq, &c.Email,
		&c.FirstName, &c.LastName, &c.CompanyName, &c.CompanyIndustry, &c.CompanyWebsite,
		&c.CompanyDescription, &c.JobTitle, &c.LocationCity, &c.LocationCountry,
		&c.LinkedInURL, &c.LinkedInHeadline, &c.PhoneNumber, &c.TailoredFirstLine,
		&c.TailoredPSStatement, &c.TailoredSubject, &c.Custom1, &c.Custom2,
		&c.WebsiteContent, &c.CSVData, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Create inserts a new contact, assigning the next sequence number within
// its category. A duplicate email within the category surfaces as a
// ValidationError.
func (s *Store) Create(ctx context.Context, c *Contact) error {
	if strings.TrimSpace(c.Email) == "" {
		return &ValidationError{Field: "email", Reason: "email is required"}
	}
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.CategoryID == "" {
		c.CategoryID = "1"
	}
	if c.CategoryName == "" {
		c.CategoryName = "Default Category"
	}

	query := `INSERT INTO outreach_contacts (category_id, category_name, contact_seq, email,
		first_name, last_name, company_name, company_industry, company_website,
		company_description, job_title, location_city, location_country, linkedin_url,
		linkedin_headline, phone_number, tailored_first_line, tailored_ps_statement,
		tailored_subject, custom_1, custom_2, website_content, csv_data)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(contact_seq), 0) + 1 FROM outreach_contacts WHERE category_id = $1),
			$3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		RETURNING id, contact_seq, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, c.CategoryID, c.CategoryName, c.Email,
		c.FirstName, c.LastName, c.CompanyName, c.CompanyIndustry, c.CompanyWebsite,
		c.CompanyDescription, c.JobTitle, c.LocationCity, c.LocationCountry, c.LinkedInURL,
		c.LinkedInHeadline, c.PhoneNumber, c.TailoredFirstLine, c.TailoredPSStatement,
		c.TailoredSubject, c.Custom1, c.Custom2, c.WebsiteContent, c.CSVData,
	).Scan(&c.ID, &c.ContactSeq, &c.CreatedAt, &c.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return &ValidationError{Field: "email", Reason: fmt.Sprintf("duplicate email %s in category %s", c.Email, c.CategoryID)}
	}
	return err
}

// Get retrieves a contact by primary id. Returns (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, id int64) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM outreach_contacts WHERE id = $1`
	c, err := scanContact(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetByEmail retrieves the first contact with the given address, lowest id
// first (the address may exist in several categories).
func (s *Store) GetByEmail(ctx context.Context, email string) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM outreach_contacts WHERE email = $1 ORDER BY id LIMIT 1`
	c, err := scanContact(s.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListOptions narrows and orders a contact listing.
type ListOptions struct {
	CategoryID string
	Search     string // matches name, email, company
	OrderBy    string // id | name | email | created
	Limit      int
	Offset     int
}

// List retrieves contacts with pagination, returning the page and the total
// count matching the filter.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]*Contact, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	argNum := 1

	if opts.CategoryID != "" {
		where = append(where, fmt.Sprintf("category_id = $%d", argNum))
		args = append(args, opts.CategoryID)
		argNum++
	}
	if opts.Search != "" {
		where = append(where, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR company_name ILIKE $%d)",
			argNum, argNum, argNum, argNum))
		args = append(args, "%"+opts.Search+"%")
		argNum++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM outreach_contacts WHERE ` + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy := "id"
	switch opts.OrderBy {
	case "name":
		orderBy = "last_name, first_name"
	case "email":
		orderBy = "email"
	case "created":
		orderBy = "created_at DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM outreach_contacts WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		contactColumns, whereClause, orderBy, argNum, argNum+1)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		contacts = append(contacts, c)
	}
	return contacts, total, rows.Err()
}

// Update rewrites a contact's merge fields. The category, sequence number
// and email are immutable here; re-import to move a contact.
func (s *Store) Update(ctx context.Context, c *Contact) error {
	query := `UPDATE outreach_contacts SET first_name = $2, last_name = $3, company_name = $4,
		company_industry = $5, company_website = $6, company_description = $7, job_title = $8,
		location_city = $9, location_country = $10, linkedin_url = $11, linkedin_headline = $12,
		phone_number = $13, tailored_first_line = $14, tailored_ps_statement = $15,
		tailored_subject = $16, custom_1 = $17, custom_2 = $18, website_content = $19,
		updated_at = NOW()
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, c.ID, c.FirstName, c.LastName, c.CompanyName,
		c.CompanyIndustry, c.CompanyWebsite, c.CompanyDescription, c.JobTitle,
		c.LocationCity, c.LocationCountry, c.LinkedInURL, c.LinkedInHeadline, c.PhoneNumber,
		c.TailoredFirstLine, c.TailoredPSStatement, c.TailoredSubject, c.Custom1, c.Custom2,
		c.WebsiteContent)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a single contact. Its email events remain (weak reference).
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outreach_contacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteAll removes every contact, optionally scoped to a category.
// Callers gate this behind explicit confirmation.
func (s *Store) DeleteAll(ctx context.Context, categoryID string) (int64, error) {
	var res sql.Result
	var err error
	if categoryID != "" {
		res, err = s.db.ExecContext(ctx, `DELETE FROM outreach_contacts WHERE category_id = $1`, categoryID)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM outreach_contacts`)
	}
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Categories returns distinct (category_id, category_name, count) triples.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Categories lists every category with its contact count.
func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category_id, MAX(category_name), COUNT(*)
		FROM outreach_contacts GROUP BY category_id ORDER BY category_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Count); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
