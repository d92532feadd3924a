package webhook

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/event"
	"github.com/ignite/outreach/internal/sender"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, e *event.Event)
	}{
		{
			"delivered with string to",
			`{"type":"email.delivered","created_at":"2026-08-01T10:00:00Z",
			 "data":{"email_id":"em-1","from":"Acme <hello@acme.io>","to":"Jane@Example.com","subject":"Hi"}}`,
			func(t *testing.T, e *event.Event) {
				if e.Type != event.TypeDelivered || e.EventID != "em-1" {
					t.Errorf("type=%q event_id=%q", e.Type, e.EventID)
				}
				if e.ToEmail != "jane@example.com" {
					t.Errorf("to = %q, want lowercased first recipient", e.ToEmail)
				}
				if e.OccurredAt.IsZero() || e.OccurredAt.Year() != 2026 {
					t.Errorf("occurred_at = %v", e.OccurredAt)
				}
			},
		},
		{
			"to as string array",
			`{"type":"email.sent","data":{"email_id":"em-2","to":["first@example.com","second@example.com"]}}`,
			func(t *testing.T, e *event.Event) {
				if e.ToEmail != "first@example.com" {
					t.Errorf("to = %q, want first element", e.ToEmail)
				}
			},
		},
		{
			"to as object array",
			`{"type":"email.sent","data":{"email_id":"em-3","to":[{"email":"obj@example.com"}]}}`,
			func(t *testing.T, e *event.Event) {
				if e.ToEmail != "obj@example.com" {
					t.Errorf("to = %q, want the object's email", e.ToEmail)
				}
			},
		},
		{
			"clicked extracts link",
			`{"type":"email.clicked","data":{"email_id":"em-4","click":{"link":"https://acme.io/demo"}}}`,
			func(t *testing.T, e *event.Event) {
				if e.ClickURL != "https://acme.io/demo" {
					t.Errorf("click_url = %q", e.ClickURL)
				}
			},
		},
		{
			"bounced formats reason",
			`{"type":"email.bounced","data":{"email_id":"em-5","bounce":{"type":"Permanent","subType":"General","message":"mailbox full"}}}`,
			func(t *testing.T, e *event.Event) {
				want := "Type: Permanent | SubType: General | Message: mailbox full"
				if e.BounceReason != want {
					t.Errorf("bounce_reason = %q, want %q", e.BounceReason, want)
				}
			},
		},
		{
			"bounced omits absent detail parts",
			`{"type":"email.bounced","data":{"email_id":"em-5b","bounce":{"message":"mailbox full"}}}`,
			func(t *testing.T, e *event.Event) {
				if e.BounceReason != "Message: mailbox full" {
					t.Errorf("bounce_reason = %q, want only the present part", e.BounceReason)
				}
			},
		},
		{
			"bounced with no detail leaves reason empty",
			`{"type":"email.bounced","data":{"email_id":"em-5c"}}`,
			func(t *testing.T, e *event.Event) {
				if e.BounceReason != "" {
					t.Errorf("bounce_reason = %q, want empty", e.BounceReason)
				}
			},
		},
		{
			"complained sets feedback",
			`{"type":"email.complained","data":{"email_id":"em-6"}}`,
			func(t *testing.T, e *event.Event) {
				if e.ComplaintFeedbackType != "spam" {
					t.Errorf("complaint_feedback_type = %q", e.ComplaintFeedbackType)
				}
			},
		},
		{
			"failed reason into bounce_reason",
			`{"type":"email.failed","data":{"email_id":"em-7","failed":{"reason":"quota exceeded"}}}`,
			func(t *testing.T, e *event.Event) {
				if e.BounceReason != "quota exceeded" {
					t.Errorf("bounce_reason = %q", e.BounceReason)
				}
			},
		},
		{
			"event id falls back to payload id",
			`{"id":"evt-top","type":"email.opened","data":{"to":"x@example.com"}}`,
			func(t *testing.T, e *event.Event) {
				if e.EventID != "evt-top" {
					t.Errorf("event_id = %q, want payload id fallback", e.EventID)
				}
			},
		},
		{
			"unknown type still normalizes",
			`{"type":"contact.created","data":{"email_id":"em-8"}}`,
			func(t *testing.T, e *event.Event) {
				if e.Type != "contact.created" {
					t.Errorf("type = %q", e.Type)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Normalize([]byte(tt.body), "acme")
			if err != nil {
				t.Fatalf("Normalize() error: %v", err)
			}
			if e.SenderKey != "acme" {
				t.Errorf("sender_key = %q, want stamp from route", e.SenderKey)
			}
			tt.check(t, e)
		})
	}
}

func TestNormalizeRejectsMissingType(t *testing.T) {
	if _, err := Normalize([]byte(`{"data":{}}`), "acme"); err == nil {
		t.Error("Normalize() should reject payloads without a type")
	}
}

func newTestReceiver(t *testing.T) (*Receiver, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return NewReceiver(sender.NewStore(db), event.NewStore(db), DefaultTolerance), mock, db
}

func expectSenderLookup(mock sqlmock.Sqlmock, key, secret string, active bool) {
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "key", "name", "from_email", "transport", "api_key", "webhook_secret",
		"active", "emails_sent", "last_used_at", "created_at", "updated_at",
	}).AddRow("id-1", key, "Acme", "hello@acme.io", "resend", "re_1", secret, active, int64(0), nil, now, now)
	mock.ExpectQuery(`SELECT (.+) FROM outreach_senders WHERE key = \$1`).
		WithArgs(key).
		WillReturnRows(rows)
}

func signedRequest(t *testing.T, url, secret string, body []byte) *http.Request {
	t.Helper()
	v, err := NewVerifier(secret, DefaultTolerance)
	if err != nil {
		t.Fatalf("NewVerifier() error: %v", err)
	}
	ts := fmt.Sprintf("%d", time.Now().Unix())
	req := httptest.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", v.Sign("msg_1", ts, body))
	return req
}

func serveWebhook(rc *Receiver, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/webhooks/{senderKey}", rc.Handle)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleStoresVerifiedEvent(t *testing.T) {
	rc, mock, db := newTestReceiver(t)
	defer db.Close()

	expectSenderLookup(mock, "acme", testSecret, true)
	mock.ExpectQuery(`INSERT INTO outreach_email_events`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "received_at"}).AddRow(int64(3), time.Now()))

	body := []byte(`{"type":"email.delivered","data":{"email_id":"em-1","to":"jane@example.com"}}`)
	w := serveWebhook(rc, signedRequest(t, "/webhooks/acme", testSecret, body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "ok" {
		t.Errorf("response = %v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	rc, mock, db := newTestReceiver(t)
	defer db.Close()

	expectSenderLookup(mock, "acme", testSecret, true)

	body := []byte(`{"type":"email.delivered","data":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/acme", bytes.NewReader(body))
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", fmt.Sprintf("%d", time.Now().Unix()))
	req.Header.Set("svix-signature", "v1,AAAA")
	w := serveWebhook(rc, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401; nothing may be stored on bad signatures", w.Code)
	}
}

func TestHandleRejectsInactiveSender(t *testing.T) {
	rc, mock, db := newTestReceiver(t)
	defer db.Close()

	expectSenderLookup(mock, "sleepy", testSecret, false)

	body := []byte(`{"type":"email.delivered","data":{}}`)
	w := serveWebhook(rc, signedRequest(t, "/webhooks/sleepy", testSecret, body))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for deactivated sender", w.Code)
	}
}

func TestHandleRejectsUnknownSender(t *testing.T) {
	rc, mock, db := newTestReceiver(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM outreach_senders WHERE key = \$1`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	body := []byte(`{"type":"email.delivered","data":{}}`)
	w := serveWebhook(rc, signedRequest(t, "/webhooks/ghost", testSecret, body))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for unknown sender", w.Code)
	}
}
