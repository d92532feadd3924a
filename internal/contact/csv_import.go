package contact

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/pkg/logger"
)

const (
	importBatchSize      = 500
	importProgressEvery  = 200
	importProgressTTL    = time.Hour
	importMaxSampleErrs  = 10
)

// headerAliases maps contact fields to the CSV header spellings we
// auto-detect. Matching is case-insensitive after trimming.
var headerAliases = map[string][]string{
	"email":               {"email", "email_address", "e-mail", "emailaddress", "mail"},
	"first_name":          {"first_name", "firstname", "first", "fname", "given_name"},
	"last_name":           {"last_name", "lastname", "last", "lname", "surname"},
	"company_name":        {"company_name", "company", "companyname", "organization", "org"},
	"company_industry":    {"company_industry", "industry", "sector", "vertical"},
	"company_website":     {"company_website", "website", "company_url", "url"},
	"company_description": {"company_description", "description", "about"},
	"job_title":           {"job_title", "jobtitle", "title", "position", "role"},
	"location_city":       {"location_city", "city", "town"},
	"location_country":    {"location_country", "country", "nation"},
	"linkedin_url":        {"linkedin_url", "linkedin", "linkedin_profile"},
	"linkedin_headline":   {"linkedin_headline", "headline"},
	"phone_number":        {"phone_number", "phone", "mobile", "telephone", "tel"},
	"custom_1":            {"custom_1", "custom1", "custom_ai_1"},
	"custom_2":            {"custom_2", "custom2", "custom_ai_2"},
	"website_content":     {"website_content", "websitecontent", "site_content"},
}

// ImportResult summarizes one CSV import run.
type ImportResult struct {
	TotalRows    int      `json:"total_rows"`
	Imported     int      `json:"imported"`
	Skipped      int      `json:"skipped"`
	Errors       int      `json:"errors"`
	SampleErrors []string `json:"sample_errors,omitempty"`
	DurationMS   int64    `json:"duration_ms"`
}

// ImportProgress is the snapshot written to Redis while an import runs.
type ImportProgress struct {
	SessionID string    `json:"session_id"`
	Status    string    `json:"status"`
	Processed int       `json:"processed"`
	Imported  int       `json:"imported"`
	Skipped   int       `json:"skipped"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Importer streams CSV files into a category. It never loads the whole
// file into memory and reports progress through Redis on a best-effort
// basis, so imports keep working when Redis is down.
type Importer struct {
	store *Store
	redis *redis.Client
}

func NewImporter(store *Store, rdb *redis.Client) *Importer {
	return &Importer{store: store, redis: rdb}
}

// Import reads CSV rows from r into categoryID. The first row must be a
// header row; columns are auto-mapped by headerAliases and unmapped
// columns are preserved verbatim in the contact's csv_data.
func (im *Importer) Import(ctx context.Context, sessionID, categoryID, categoryName string, r io.Reader) (*ImportResult, error) {
	start := time.Now()

	reader := csv.NewReader(bufio.NewReaderSize(r, 64*1024))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	fieldMap, rawHeaders := mapHeaders(header)
	emailIdx, ok := fieldMap["email"]
	if !ok {
		return nil, &ValidationError{Field: "email", Reason: "no email column detected in header"}
	}

	result := &ImportResult{}
	progress := &ImportProgress{SessionID: sessionID, Status: "processing", StartedAt: start}
	seen := make(map[string]bool)
	var batch []*Contact

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		imported, err := im.insertBatch(ctx, batch)
		if err != nil {
			return err
		}
		result.Imported += imported
		result.Skipped += len(batch) - imported
		batch = batch[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			im.setProgress(ctx, progress, "cancelled", result)
			return result, err
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.Errors++
			if len(result.SampleErrors) < importMaxSampleErrs {
				result.SampleErrors = append(result.SampleErrors, fmt.Sprintf("row %d: %v", result.TotalRows+1, err))
			}
			continue
		}
		result.TotalRows++

		email := ""
		if emailIdx < len(record) {
			email = strings.ToLower(strings.TrimSpace(record[emailIdx]))
		}
		if !ValidEmail(email) {
			result.Skipped++
			if len(result.SampleErrors) < importMaxSampleErrs {
				result.SampleErrors = append(result.SampleErrors, fmt.Sprintf("row %d: invalid email %q", result.TotalRows, email))
			}
			continue
		}
		if seen[email] {
			result.Skipped++
			continue
		}
		seen[email] = true

		batch = append(batch, buildContact(categoryID, categoryName, email, record, fieldMap, rawHeaders))
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				im.setProgress(ctx, progress, "failed", result)
				return result, err
			}
		}

		if result.TotalRows%importProgressEvery == 0 {
			im.setProgress(ctx, progress, "processing", result)
		}
	}

	if err := flush(); err != nil {
		im.setProgress(ctx, progress, "failed", result)
		return result, err
	}

	result.DurationMS = time.Since(start).Milliseconds()
	im.setProgress(ctx, progress, "completed", result)
	logger.Info("csv import finished",
		"session_id", sessionID,
		"category_id", categoryID,
		"total", result.TotalRows,
		"imported", result.Imported,
		"skipped", result.Skipped,
		"errors", result.Errors)
	return result, nil
}

// insertBatch inserts contacts one statement per row inside a single
// transaction. Duplicate emails within the category are skipped rather
// than failing the batch.
func (im *Importer) insertBatch(ctx context.Context, batch []*Contact) (int, error) {
	tx, err := im.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outreach_contacts (
			category_id, category_name, contact_seq, email, first_name, last_name,
			company_name, company_industry, company_website, company_description,
			job_title, location_city, location_country, linkedin_url, linkedin_headline,
			phone_number, tailored_first_line, tailored_ps_statement, tailored_subject,
			custom_1, custom_2, website_content, csv_data, created_at, updated_at
		) VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(contact_seq), 0) + 1 FROM outreach_contacts WHERE category_id = $1),
			$3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, NOW(), NOW()
		)
		ON CONFLICT (category_id, email) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range batch {
		res, err := stmt.ExecContext(ctx,
			c.CategoryID, c.CategoryName, c.Email, c.FirstName, c.LastName,
			c.CompanyName, c.CompanyIndustry, c.CompanyWebsite, c.CompanyDescription,
			c.JobTitle, c.LocationCity, c.LocationCountry, c.LinkedInURL, c.LinkedInHeadline,
			c.PhoneNumber, c.TailoredFirstLine, c.TailoredPSStatement, c.TailoredSubject,
			c.Custom1, c.Custom2, c.WebsiteContent, c.CSVData)
		if err != nil {
			return inserted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

func (im *Importer) setProgress(ctx context.Context, p *ImportProgress, status string, result *ImportResult) {
	if im.redis == nil {
		return
	}
	p.Status = status
	p.Processed = result.TotalRows
	p.Imported = result.Imported
	p.Skipped = result.Skipped
	p.UpdatedAt = time.Now()
	data, _ := json.Marshal(p)
	if err := im.redis.Set(ctx, "import:progress:"+p.SessionID, data, importProgressTTL).Err(); err != nil {
		logger.Warn("import progress update failed", "session_id", p.SessionID, "error", err.Error())
	}
}

// mapHeaders resolves each column to a known contact field where an
// alias matches, and keeps the normalized raw header for csv_data.
func mapHeaders(header []string) (map[string]int, []string) {
	fieldMap := make(map[string]int)
	raw := make([]string, len(header))
	for i, h := range header {
		norm := strings.ToLower(strings.TrimSpace(h))
		raw[i] = norm
		for field, aliases := range headerAliases {
			if _, taken := fieldMap[field]; taken {
				continue
			}
			for _, alias := range aliases {
				if norm == alias {
					fieldMap[field] = i
					break
				}
			}
		}
	}
	return fieldMap, raw
}

func buildContact(categoryID, categoryName, email string, record []string, fieldMap map[string]int, rawHeaders []string) *Contact {
	pick := func(field string) string {
		if idx, ok := fieldMap[field]; ok && idx < len(record) {
			return strings.TrimSpace(record[idx])
		}
		return ""
	}

	c := &Contact{
		CategoryID:         categoryID,
		CategoryName:       categoryName,
		Email:              email,
		FirstName:          pick("first_name"),
		LastName:           pick("last_name"),
		CompanyName:        pick("company_name"),
		CompanyIndustry:    pick("company_industry"),
		CompanyWebsite:     pick("company_website"),
		CompanyDescription: pick("company_description"),
		JobTitle:           pick("job_title"),
		LocationCity:       pick("location_city"),
		LocationCountry:    pick("location_country"),
		LinkedInURL:        pick("linkedin_url"),
		LinkedInHeadline:   pick("linkedin_headline"),
		PhoneNumber:        pick("phone_number"),
		Custom1:            pick("custom_1"),
		Custom2:            pick("custom_2"),
		WebsiteContent:     pick("website_content"),
	}

	mapped := make(map[int]bool, len(fieldMap))
	for _, idx := range fieldMap {
		mapped[idx] = true
	}
	extra := make(JSON)
	for i, val := range record {
		if i >= len(rawHeaders) || mapped[i] || rawHeaders[i] == "" {
			continue
		}
		if v := strings.TrimSpace(val); v != "" {
			extra[rawHeaders[i]] = v
		}
	}
	if len(extra) > 0 {
		c.CSVData = extra
	}
	return c
}
