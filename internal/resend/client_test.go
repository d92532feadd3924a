package resend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ignite/outreach/internal/dispatch"
)

func testMessage() *dispatch.Message {
	return &dispatch.Message{
		From:      "Acme <hello@acme.io>",
		To:        "jane@example.com",
		Subject:   "Hi Jane",
		HTML:      "<p>Hello</p>",
		PlainText: "Hello",
		Tags:      map[string]string{"session_id": "sess-1"},
		Reference: "sess-1-42",
	}
}

func TestSendSuccess(t *testing.T) {
	var gotAuth, gotRef string
	var gotBody sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotRef = r.Header.Get("X-Entity-Ref-ID")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "email-123"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "re_test_key", 5*time.Second)
	id, err := client.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if id != "email-123" {
		t.Errorf("Send() id = %q, want email-123", id)
	}
	if gotAuth != "Bearer re_test_key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotRef != "sess-1-42" {
		t.Errorf("X-Entity-Ref-ID = %q", gotRef)
	}
	if len(gotBody.To) != 1 || gotBody.To[0] != "jane@example.com" {
		t.Errorf("to = %v", gotBody.To)
	}
	if len(gotBody.Tags) != 1 || gotBody.Tags[0].Name != "session_id" {
		t.Errorf("tags = %v", gotBody.Tags)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"name": "validation_error", "message": "invalid to address"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "re_test_key", 5*time.Second)
	_, err := client.Send(context.Background(), testMessage())

	var terr *dispatch.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Send() = %v, want TransportError", err)
	}
	if terr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", terr.StatusCode)
	}
	if terr.Message != "invalid to address" {
		t.Errorf("Message = %q, want the API message", terr.Message)
	}
}

func TestSendMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "re_test_key", 5*time.Second)
	_, err := client.Send(context.Background(), testMessage())

	var terr *dispatch.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Send() = %v, want TransportError for missing id", err)
	}
}

func TestSendNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // immediately closed, connections refused

	client := NewClient(srv.URL, "re_test_key", time.Second)
	_, err := client.Send(context.Background(), testMessage())

	var terr *dispatch.TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Send() = %v, want TransportError on network failure", err)
	}
}

func TestSendPerMessageAPIKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]string{"id": "email-456"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "re_default_key", 5*time.Second)
	msg := testMessage()
	msg.APIKey = "re_sender_key"
	if _, err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if gotAuth != "Bearer re_sender_key" {
		t.Errorf("Authorization = %q, want the per-sender key", gotAuth)
	}
}
