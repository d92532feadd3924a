package contact

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Canonical status buckets. A contact's status for a sender is derived from
// its most recent email event attributed to that sender; "not_sent" means no
// such event exists.
const (
	StatusNotSent    = "not_sent"
	StatusSent       = "sent"
	StatusDelivered  = "delivered"
	StatusOpened     = "opened"
	StatusClicked    = "clicked"
	StatusBounced    = "bounced"
	StatusFailed     = "failed"
	StatusComplained = "complained"
)

// StatusFilters lists every value accepted by the selection status filter.
var StatusFilters = []string{
	"all", StatusNotSent, StatusSent, StatusDelivered, StatusOpened,
	StatusClicked, StatusBounced, StatusFailed, StatusComplained,
}

// ValidStatusFilter reports whether s is an accepted status filter value.
func ValidStatusFilter(s string) bool {
	for _, f := range StatusFilters {
		if f == s {
			return true
		}
	}
	return false
}

// JSON helper type for JSONB columns
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, j)
}

// Contact is one prospect record. Merge fields map 1:1 onto template tokens.
// (category_id, contact_seq) and (category_id, email) are unique; the same
// address may exist in different categories.
type Contact struct {
	ID           int64  `json:"id" db:"id"`
	CategoryID   string `json:"category_id" db:"category_id"`
	CategoryName string `json:"category_name" db:"category_name"`
	ContactSeq   int    `json:"contact_seq" db:"contact_seq"`

	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	CompanyName        string `json:"company_name" db:"company_name"`
	CompanyIndustry    string `json:"company_industry" db:"company_industry"`
	CompanyWebsite     string `json:"company_website" db:"company_website"`
	CompanyDescription string `json:"company_description" db:"company_description"`

	JobTitle        string `json:"job_title" db:"job_title"`
	LocationCity    string `json:"location_city" db:"location_city"`
	LocationCountry string `json:"location_country" db:"location_country"`

	LinkedInURL      string `json:"linkedin_url" db:"linkedin_url"`
	LinkedInHeadline string `json:"linkedin_headline" db:"linkedin_headline"`
	PhoneNumber      string `json:"phone_number" db:"phone_number"`

	TailoredFirstLine   string `json:"tailored_first_line" db:"tailored_first_line"`
	TailoredPSStatement string `json:"tailored_ps_statement" db:"tailored_ps_statement"`
	TailoredSubject     string `json:"tailored_subject" db:"tailored_subject"`
	Custom1             string `json:"custom_1" db:"custom_1"`
	Custom2             string `json:"custom_2" db:"custom_2"`
	WebsiteContent      string `json:"website_content" db:"website_content"`

	CSVData   JSON      `json:"csv_data,omitempty" db:"csv_data"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns "First Last" with missing parts dropped.
func (c *Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// Attributes returns the merge-field map used for template rendering.
// Missing values render as empty strings, never as a literal "None"/"null".
func (c *Contact) Attributes() map[string]interface{} {
	return map[string]interface{}{
		"prospect_first_name":       c.FirstName,
		"prospect_last_name":        c.LastName,
		"full_name":                 c.FullName(),
		"company_name":              c.CompanyName,
		"company_industry":          c.CompanyIndustry,
		"company_website":           c.CompanyWebsite,
		"company_description":       c.CompanyDescription,
		"job_title":                 c.JobTitle,
		"prospect_location_city":    c.LocationCity,
		"prospect_location_country": c.LocationCountry,
		"linkedin_url":              c.LinkedInURL,
		"linkedin_headline":         c.LinkedInHeadline,
		"phone_number":              c.PhoneNumber,
		"tailored_tone_first_line":  c.TailoredFirstLine,
		"tailored_tone_ps_statement": c.TailoredPSStatement,
		"tailored_tone_subject":     c.TailoredSubject,
		"custom_ai_1":               c.Custom1,
		"custom_ai_2":               c.Custom2,
		"websitecontent":            c.WebsiteContent,
	}
}

// emailRegex is deliberately permissive: local@domain.tld shaped.
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether addr looks like a deliverable address.
func ValidEmail(addr string) bool {
	return emailRegex.MatchString(addr)
}

// ValidationError reports a malformed or conflicting contact record.
// It is local to one record and never aborts a batch operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid contact %s: %s", e.Field, e.Reason)
}
