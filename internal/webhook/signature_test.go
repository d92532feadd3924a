package webhook

import (
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"
)

const testSecret = "whsec_dGVzdC1zZWNyZXQta2V5LXZhbHVl" // "test-secret-key-value"

func testVerify(t *testing.T, secret string, mutate func(id, ts, sig string, body []byte) (string, string, string, []byte)) error {
	t.Helper()
	v, err := NewVerifier(secret, DefaultTolerance)
	if err != nil {
		t.Fatalf("NewVerifier() error: %v", err)
	}

	now := time.Now()
	body := []byte(`{"type":"email.delivered"}`)
	id := "msg_1"
	ts := fmt.Sprintf("%d", now.Unix())
	sig := v.Sign(id, ts, body)

	if mutate != nil {
		id, ts, sig, body = mutate(id, ts, sig, body)
	}
	return v.Verify(id, ts, sig, body, now)
}

func TestVerifyValidSignature(t *testing.T) {
	if err := testVerify(t, testSecret, nil); err != nil {
		t.Errorf("Verify() = %v, want nil", err)
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	err := testVerify(t, testSecret, func(id, ts, sig string, body []byte) (string, string, string, []byte) {
		return id, ts, sig, []byte(`{"type":"email.bounced"}`)
	})
	var aerr *AuthenticationError
	if !errors.As(err, &aerr) {
		t.Errorf("Verify(tampered) = %v, want AuthenticationError", err)
	}
}

func TestVerifyWrongVersionRejected(t *testing.T) {
	err := testVerify(t, testSecret, func(id, ts, sig string, body []byte) (string, string, string, []byte) {
		// Same valid sig but labeled v2; only v1 entries count.
		return id, ts, "v2," + sig[len("v1,"):], body
	})
	if err == nil {
		t.Error("Verify() should reject non-v1 signature versions")
	}
}

func TestVerifyMultipleSignatureEntries(t *testing.T) {
	err := testVerify(t, testSecret, func(id, ts, sig string, body []byte) (string, string, string, []byte) {
		bogus := "v1," + base64.StdEncoding.EncodeToString([]byte("wrong-signature-bytes"))
		return id, ts, bogus + " " + sig, body
	})
	if err != nil {
		t.Errorf("Verify() should accept when any v1 entry matches, got %v", err)
	}
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v, err := NewVerifier(testSecret, DefaultTolerance)
	if err != nil {
		t.Fatalf("NewVerifier() error: %v", err)
	}
	body := []byte(`{}`)
	old := time.Now().Add(-10 * time.Minute)
	ts := fmt.Sprintf("%d", old.Unix())
	sig := v.Sign("msg_1", ts, body)

	err = v.Verify("msg_1", ts, sig, body, time.Now())
	var aerr *AuthenticationError
	if !errors.As(err, &aerr) {
		t.Errorf("Verify(stale) = %v, want AuthenticationError", err)
	}
}

func TestVerifyFutureTimestamp(t *testing.T) {
	v, _ := NewVerifier(testSecret, DefaultTolerance)
	body := []byte(`{}`)
	future := time.Now().Add(10 * time.Minute)
	ts := fmt.Sprintf("%d", future.Unix())
	sig := v.Sign("msg_1", ts, body)

	if err := v.Verify("msg_1", ts, sig, body, time.Now()); err == nil {
		t.Error("Verify() should reject timestamps too far in the future")
	}
}

func TestVerifyMissingHeaders(t *testing.T) {
	v, _ := NewVerifier(testSecret, DefaultTolerance)
	if err := v.Verify("", "", "", []byte(`{}`), time.Now()); err == nil {
		t.Error("Verify() should reject missing headers")
	}
}

func TestNewVerifierBadSecret(t *testing.T) {
	if _, err := NewVerifier("whsec_!!!not-base64!!!", 0); err == nil {
		t.Error("NewVerifier() should reject non-base64 secrets")
	}
	if _, err := NewVerifier("whsec_", 0); err == nil {
		t.Error("NewVerifier() should reject empty secrets")
	}
}
