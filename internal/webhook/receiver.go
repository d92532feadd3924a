package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/event"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/sender"
)

const maxBodySize = 1 << 20 // 1MB

// payload is the wire shape of a provider event notification.
type payload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// eventData covers the union of per-type data fields.
type eventData struct {
	EmailID string          `json:"email_id"`
	From    string          `json:"from"`
	To      json.RawMessage `json:"to"`
	Subject string          `json:"subject"`
	Click   struct {
		Link string `json:"link"`
	} `json:"click"`
	Bounce struct {
		Type    string `json:"type"`
		SubType string `json:"subType"`
		Message string `json:"message"`
	} `json:"bounce"`
	Failed struct {
		Reason string `json:"reason"`
	} `json:"failed"`
}

// extractor fills type-specific columns from the decoded data.
type extractor func(e *event.Event, data *eventData)

var extractors = map[string]extractor{
	event.TypeClicked: func(e *event.Event, data *eventData) {
		e.ClickURL = data.Click.Link
	},
	event.TypeBounced: func(e *event.Event, data *eventData) {
		var parts []string
		if data.Bounce.Type != "" {
			parts = append(parts, "Type: "+data.Bounce.Type)
		}
		if data.Bounce.SubType != "" {
			parts = append(parts, "SubType: "+data.Bounce.SubType)
		}
		if data.Bounce.Message != "" {
			parts = append(parts, "Message: "+data.Bounce.Message)
		}
		e.BounceReason = strings.Join(parts, " | ")
	},
	event.TypeComplained: func(e *event.Event, data *eventData) {
		e.ComplaintFeedbackType = "spam"
	},
	event.TypeFailed: func(e *event.Event, data *eventData) {
		e.BounceReason = data.Failed.Reason
	},
}

// Receiver handles POST /webhooks/{senderKey}.
type Receiver struct {
	senders   *sender.Store
	events    *event.Store
	tolerance time.Duration
}

func NewReceiver(senders *sender.Store, events *event.Store, tolerance time.Duration) *Receiver {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Receiver{senders: senders, events: events, tolerance: tolerance}
}

// Handle verifies, normalizes and stores one webhook delivery. Unknown
// event types are stored verbatim so history is never dropped; only
// verification failures reject the delivery.
func (rc *Receiver) Handle(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "senderKey")

	s, err := rc.senders.GetActive(r.Context(), key)
	if err != nil {
		var cerr *sender.ConfigurationError
		if errors.As(err, &cerr) {
			logger.Warn("webhook for unusable sender", "sender_key", key, "reason", cerr.Reason)
			httputil.Unauthorized(w, "unknown webhook endpoint")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httputil.BadRequest(w, "unreadable body")
		return
	}

	verifier, err := NewVerifier(s.WebhookSecret, rc.tolerance)
	if err != nil {
		logger.Error("webhook secret misconfigured", "sender_key", key)
		httputil.Unauthorized(w, "verification failed")
		return
	}
	if err := verifier.Verify(
		r.Header.Get("svix-id"),
		r.Header.Get("svix-timestamp"),
		r.Header.Get("svix-signature"),
		body, time.Now(),
	); err != nil {
		logger.Warn("webhook verification failed", "sender_key", key, "error", err.Error())
		httputil.Unauthorized(w, "verification failed")
		return
	}

	e, err := Normalize(body, key)
	if err != nil {
		httputil.BadRequest(w, "malformed payload")
		return
	}

	if err := rc.events.Append(r.Context(), e); err != nil {
		logger.Error("event append failed", "sender_key", key, "event_type", e.Type, "error", err.Error())
		httputil.InternalError(w, err)
		return
	}

	logger.Info("webhook event stored", "sender_key", key, "event_type", e.Type, "event_row_id", e.ID)
	httputil.OK(w, map[string]interface{}{"status": "ok", "id": e.ID})
}

// Normalize maps a raw webhook body onto an event row. The event id
// prefers data.email_id, then the payload id, and may be empty.
func Normalize(body []byte, senderKey string) (*event.Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	if p.Type == "" {
		return nil, fmt.Errorf("payload missing type")
	}

	var data eventData
	if len(p.Data) > 0 {
		// Tolerate partially unknown data shapes.
		_ = json.Unmarshal(p.Data, &data)
	}

	e := &event.Event{
		Type:       p.Type,
		SenderKey:  senderKey,
		EmailID:    data.EmailID,
		FromEmail:  data.From,
		ToEmail:    firstRecipient(data.To),
		Subject:    data.Subject,
		RawData:    body,
		OccurredAt: parseTimestamp(p.CreatedAt),
	}

	e.EventID = data.EmailID
	if e.EventID == "" {
		e.EventID = p.ID
	}

	if fn, ok := extractors[p.Type]; ok {
		fn(e, &data)
	}
	return e, nil
}

// firstRecipient normalizes the "to" field, which arrives as a plain
// string, a string array, or an array of {email} objects.
func firstRecipient(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.ToLower(strings.TrimSpace(single))
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return ""
	}

	if err := json.Unmarshal(list[0], &single); err == nil {
		return strings.ToLower(strings.TrimSpace(single))
	}
	var obj struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(list[0], &obj); err == nil {
		return strings.ToLower(strings.TrimSpace(obj.Email))
	}
	return ""
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05.999999-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}
