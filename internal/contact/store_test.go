package contact

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

var contactCols = []string{
	"id", "category_id", "category_name", "contact_seq", "email", "first_name", "last_name",
	"company_name", "company_industry", "company_website", "company_description", "job_title",
	"location_city", "location_country", "linkedin_url", "linkedin_headline", "phone_number",
	"tailored_first_line", "tailored_ps_statement", "tailored_subject", "custom_1", "custom_2",
	"website_content", "csv_data", "created_at", "updated_at",
}

func addContactRow(rows *sqlmock.Rows, id int64, categoryID, email string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, categoryID, "Default Category", id, email,
		"Jane", "Doe", "Acme", "", "", "", "", "", "", "", "", "",
		"", "", "", "", "", "", []byte(`{}`), now, now)
}

func TestCreateAssignsSequence(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO outreach_contacts`).
		WithArgs("1", "Default Category", "jane@example.com",
			"Jane", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "contact_seq", "created_at", "updated_at"}).
			AddRow(int64(7), int64(3), now, now))

	store := NewStore(db)
	c := &Contact{Email: "Jane@Example.com ", FirstName: "Jane"}
	if err := store.Create(context.Background(), c); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if c.ID != 7 || c.ContactSeq != 3 {
		t.Errorf("Create() populated id=%d seq=%d, want 7 and 3", c.ID, c.ContactSeq)
	}
	if c.Email != "jane@example.com" {
		t.Errorf("Create() should normalize email, got %q", c.Email)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO outreach_contacts`).
		WillReturnError(&pq.Error{Code: "23505"})

	store := NewStore(db)
	err := store.Create(context.Background(), &Contact{Email: "dupe@example.com"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create() = %v, want ValidationError", err)
	}
	if verr.Field != "email" {
		t.Errorf("ValidationError field = %q, want email", verr.Field)
	}
}

func TestCreateRequiresEmail(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStore(db)
	err := store.Create(context.Background(), &Contact{Email: "   "})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Create() = %v, want ValidationError", err)
	}
}

func TestGetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT (.+) FROM outreach_contacts WHERE id = \$1`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	store := NewStore(db)
	c, err := store.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if c != nil {
		t.Errorf("Get() on missing row should return nil contact")
	}
}

func TestGetFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	rows := addContactRow(sqlmock.NewRows(contactCols), 5, "1", "jane@example.com")
	mock.ExpectQuery(`SELECT (.+) FROM outreach_contacts WHERE id = \$1`).
		WithArgs(int64(5)).
		WillReturnRows(rows)

	store := NewStore(db)
	c, err := store.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if c == nil || c.Email != "jane@example.com" {
		t.Fatalf("Get() = %+v, want contact with email jane@example.com", c)
	}
}

func TestListWithFilters(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM outreach_contacts`).
		WithArgs("2").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	rows := addContactRow(sqlmock.NewRows(contactCols), 9, "2", "bob@example.com")
	mock.ExpectQuery(`SELECT (.+) FROM outreach_contacts`).
		WithArgs("2", 25, 0).
		WillReturnRows(rows)

	store := NewStore(db)
	contacts, total, err := store.List(context.Background(), ListOptions{CategoryID: "2", Limit: 25})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if total != 1 || len(contacts) != 1 {
		t.Fatalf("List() total=%d len=%d, want 1 and 1", total, len(contacts))
	}
	if contacts[0].Email != "bob@example.com" {
		t.Errorf("List() contact = %q", contacts[0].Email)
	}
}

func TestDeleteAll(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`DELETE FROM outreach_contacts WHERE category_id = \$1`).
		WithArgs("3").
		WillReturnResult(sqlmock.NewResult(0, 12))

	store := NewStore(db)
	n, err := store.DeleteAll(context.Background(), "3")
	if err != nil {
		t.Fatalf("DeleteAll() error: %v", err)
	}
	if n != 12 {
		t.Errorf("DeleteAll() = %d, want 12", n)
	}
}
