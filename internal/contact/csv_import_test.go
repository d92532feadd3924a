package contact

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestImportMapsHeadersAndSkipsBadRows(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	csvData := strings.Join([]string{
		"Email,First Name,Company,Favorite Color",
		"alice@example.com,Alice,Acme,teal",
		"not-an-email,Bob,Globex,red",
		"alice@example.com,Alice Again,Acme,blue",
		"carol@example.com,Carol,Initech,",
	}, "\n")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO outreach_contacts`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	importer := NewImporter(NewStore(db), rdb)
	result, err := importer.Import(context.Background(), "sess-1", "2", "Test Batch", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	if result.TotalRows != 4 {
		t.Errorf("TotalRows = %d, want 4", result.TotalRows)
	}
	if result.Imported != 2 {
		t.Errorf("Imported = %d, want 2 (invalid email and in-file duplicate skipped)", result.Imported)
	}
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", result.Skipped)
	}
	if len(result.SampleErrors) == 0 || !strings.Contains(result.SampleErrors[0], "not-an-email") {
		t.Errorf("SampleErrors should mention the invalid email, got %v", result.SampleErrors)
	}

	// Final progress snapshot lands in Redis.
	if got, err := mr.Get("import:progress:sess-1"); err != nil || !strings.Contains(got, `"completed"`) {
		t.Errorf("progress snapshot = %q (err %v), want completed status", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestImportRequiresEmailColumn(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	importer := NewImporter(NewStore(db), nil)
	_, err := importer.Import(context.Background(), "sess-2", "1", "x", strings.NewReader("name,phone\na,b\n"))

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Import() = %v, want ValidationError for missing email column", err)
	}
}

func TestImportSurvivesRedisOutage(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// Client points at a closed server; progress writes fail silently.
	mr, _ := miniredis.Run()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO outreach_contacts`)
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	importer := NewImporter(NewStore(db), rdb)
	result, err := importer.Import(context.Background(), "sess-3", "1", "x",
		strings.NewReader("email\ndave@example.com\n"))
	if err != nil {
		t.Fatalf("Import() should not fail when Redis is down: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Imported = %d, want 1", result.Imported)
	}
}

func TestMapHeadersAliases(t *testing.T) {
	fieldMap, raw := mapHeaders([]string{"E-Mail", "FIRSTNAME", "Organization", "weird col"})
	if idx, ok := fieldMap["email"]; !ok || idx != 0 {
		t.Errorf("email mapped to %d (%v), want column 0", idx, ok)
	}
	if idx, ok := fieldMap["first_name"]; !ok || idx != 1 {
		t.Errorf("first_name mapped to %d (%v), want column 1", idx, ok)
	}
	if idx, ok := fieldMap["company_name"]; !ok || idx != 2 {
		t.Errorf("company_name mapped to %d (%v), want column 2", idx, ok)
	}
	if raw[3] != "weird col" {
		t.Errorf("raw header = %q, want normalized original", raw[3])
	}
}

func TestBuildContactKeepsUnmappedColumns(t *testing.T) {
	fieldMap, raw := mapHeaders([]string{"email", "first_name", "favorite_color"})
	c := buildContact("1", "Default", "eve@example.com",
		[]string{"eve@example.com", "Eve", "green"}, fieldMap, raw)

	if c.FirstName != "Eve" {
		t.Errorf("FirstName = %q", c.FirstName)
	}
	if c.CSVData["favorite_color"] != "green" {
		t.Errorf("csv_data = %v, want favorite_color preserved", c.CSVData)
	}
	if _, mapped := c.CSVData["email"]; mapped {
		t.Error("mapped columns must not leak into csv_data")
	}
}
