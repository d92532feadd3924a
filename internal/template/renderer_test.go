package template

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRenderTokens(t *testing.T) {
	r := NewRenderer()
	attrs := map[string]interface{}{
		"prospect_first_name": "Jane",
		"company_name":        "Acme",
		"empty":               "",
		"nothing":             nil,
	}

	tests := []struct {
		name string
		tpl  string
		want string
	}{
		{"simple", "Hi {prospect_first_name} at {company_name}", "Hi Jane at Acme"},
		{"unknown token", "Hello {who}", "Hello [who not found]"},
		{"nil renders empty", "x{nothing}y", "xy"},
		{"empty string", "x{empty}y", "xy"},
		{"no tokens is identity", "plain text, no merge", "plain text, no merge"},
		{"multiword token", "Hi {first name}", "Hi [first name not found]"},
		{"hyphenated token", "Bye {foo-bar}!", "Bye [foo-bar not found]!"},
		{"unclosed brace passes through", "a {unclosed", "a {unclosed"},
		{"adjacent tokens", "{prospect_first_name}{company_name}", "JaneAcme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Render(tt.tpl, attrs); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.tpl, got, tt.want)
			}
		})
	}
}

func TestRenderIdempotent(t *testing.T) {
	r := NewRenderer()
	attrs := map[string]interface{}{"prospect_first_name": "Jane"}

	once := r.Render("Hi {prospect_first_name}", attrs)
	twice := r.Render(once, attrs)
	if once != twice {
		t.Errorf("second render changed output: %q -> %q", once, twice)
	}
}

func TestRenderLiquid(t *testing.T) {
	r := NewRenderer()
	attrs := map[string]interface{}{
		"prospect_first_name": "Jane",
		"company_name":        "",
	}

	got := r.Render(`Hello {{ prospect_first_name }}!`, attrs)
	if got != "Hello Jane!" {
		t.Errorf("liquid render = %q", got)
	}

	got = r.Render(`Hi {{ company_name | default: "there" }}`, attrs)
	if got != "Hi there" {
		t.Errorf("default filter = %q", got)
	}

	// Liquid then legacy braces in the same template.
	got = r.Render(`{% if prospect_first_name %}Hey {prospect_first_name}{% endif %}`, attrs)
	if got != "Hey Jane" {
		t.Errorf("mixed render = %q", got)
	}
}

func TestRenderLiquidErrorDegrades(t *testing.T) {
	r := NewRenderer()
	tpl := `broken {% if %} syntax and a {token}`
	got := r.Render(tpl, map[string]interface{}{"token": "value"})
	// Parse failure keeps the raw Liquid but the brace merge still runs.
	if !strings.Contains(got, "{% if %}") || !strings.Contains(got, "value") {
		t.Errorf("degraded render = %q", got)
	}

	// Doubled braces in a degraded template stay intact too.
	tpl = `{{ name }} and {% bogus %}`
	if got := r.Render(tpl, map[string]interface{}{"name": "x"}); got != tpl {
		t.Errorf("degraded render = %q, want raw template", got)
	}
}

func TestPlainText(t *testing.T) {
	html := `<p>Hi Jane,</p><p>We build <b>widgets</b>.<br>Want a demo?</p>


<div>&mdash; Acme &amp; Co</div>`
	got := PlainText(html)

	if strings.Contains(got, "<") {
		t.Errorf("PlainText() left tags behind: %q", got)
	}
	if !strings.Contains(got, "Hi Jane,") || !strings.Contains(got, "We build widgets.") {
		t.Errorf("PlainText() lost content: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("PlainText() should collapse blank-line runs: %q", got)
	}
	if !strings.Contains(got, "Acme & Co") {
		t.Errorf("PlainText() should decode &amp;: %q", got)
	}
}

func TestStoreGetAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT sender_key, subject, html, updated_at FROM outreach_templates`).
		WithArgs("acme").
		WillReturnError(sql.ErrNoRows)

	store := NewStore(db)
	tpl, err := store.Get(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if tpl != nil {
		t.Error("Get() on missing row should return nil")
	}
}

func TestStoreSaveUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO outreach_templates`).
		WithArgs("acme", "Subject", "<p>Body</p>").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	store := NewStore(db)
	tpl := &Template{SenderKey: "acme", Subject: "Subject", HTML: "<p>Body</p>"}
	if err := store.Save(context.Background(), tpl); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if tpl.UpdatedAt.IsZero() {
		t.Error("Save() should populate UpdatedAt")
	}
}
