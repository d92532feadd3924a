// Package sender holds the registry of configured sending identities.
// Each sender carries its own provider credentials and webhook secret so
// events can be attributed back to it.
package sender

import (
	"strings"
	"time"
)

// Transport names the delivery provider a sender routes through.
const (
	TransportResend = "resend"
	TransportSES    = "ses"
)

// Sender is one configured sending identity.
type Sender struct {
	ID            string    `json:"id" db:"id"`
	Key           string    `json:"key" db:"key"`
	Name          string    `json:"name" db:"name"`
	FromEmail     string    `json:"from_email" db:"from_email"`
	Transport     string    `json:"transport" db:"transport"`
	APIKey        string    `json:"-" db:"api_key"`
	WebhookSecret string    `json:"-" db:"webhook_secret"`
	Active        bool      `json:"active" db:"active"`
	EmailsSent    int64     `json:"emails_sent" db:"emails_sent"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// FromHeader renders the RFC 5322 From value, "Name <addr>" when a
// display name is set.
func (s *Sender) FromHeader() string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return s.FromEmail
	}
	return name + " <" + s.FromEmail + ">"
}

// Validate checks the fields required before a sender can be saved.
func (s *Sender) Validate() error {
	if strings.TrimSpace(s.Key) == "" {
		return &ConfigurationError{Key: s.Key, Reason: "sender key is required"}
	}
	if strings.TrimSpace(s.FromEmail) == "" {
		return &ConfigurationError{Key: s.Key, Reason: "from email is required"}
	}
	switch s.Transport {
	case "", TransportResend, TransportSES:
	default:
		return &ConfigurationError{Key: s.Key, Reason: "unknown transport " + s.Transport}
	}
	return nil
}

// ConfigurationError reports a sender that is missing, inactive, or
// misconfigured. Callers treat it as a 4xx class failure instead of a
// server fault.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key == "" {
		return "sender configuration: " + e.Reason
	}
	return "sender " + e.Key + ": " + e.Reason
}
