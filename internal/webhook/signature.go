// Package webhook ingests provider event notifications: it verifies
// svix-style signatures, normalizes payload shapes, and appends rows to
// the event log stamped with the receiving sender's key.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance bounds how far a webhook timestamp may drift from
// server time in either direction.
const DefaultTolerance = 5 * time.Minute

// AuthenticationError reports a webhook that failed verification.
// Ingestion fails closed: nothing is stored.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "webhook verification failed: " + e.Reason
}

// Verifier checks svix-style webhook signatures for one secret.
type Verifier struct {
	key       []byte
	tolerance time.Duration
}

// NewVerifier decodes a webhook secret. The conventional "whsec_"
// prefix is stripped before base64 decoding.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	raw := strings.TrimPrefix(secret, "whsec_")
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, &AuthenticationError{Reason: "secret is not valid base64"}
	}
	if len(key) == 0 {
		return nil, &AuthenticationError{Reason: "empty secret"}
	}
	return &Verifier{key: key, tolerance: tolerance}, nil
}

// Verify checks the signature headers against body. msgID, timestamp and
// signatures come from the svix-id, svix-timestamp and svix-signature
// headers. The signed content is "{id}.{timestamp}.{body}"; the
// signature header holds space-separated "{version},{sig}" entries of
// which only v1 is accepted.
func (v *Verifier) Verify(msgID, timestamp, signatures string, body []byte, now time.Time) error {
	if msgID == "" || timestamp == "" || signatures == "" {
		return &AuthenticationError{Reason: "missing signature headers"}
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return &AuthenticationError{Reason: "malformed timestamp"}
	}
	drift := now.Sub(time.Unix(ts, 0))
	if drift > v.tolerance || drift < -v.tolerance {
		return &AuthenticationError{Reason: "timestamp outside tolerance"}
	}

	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, entry := range strings.Fields(signatures) {
		parts := strings.SplitN(entry, ",", 2)
		if len(parts) != 2 || parts[0] != "v1" {
			continue
		}
		sig, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			continue
		}
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return &AuthenticationError{Reason: "no matching signature"}
}

// Sign produces the v1 signature for a message, used by tests and the
// local event emitter.
func (v *Verifier) Sign(msgID, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(msgID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
