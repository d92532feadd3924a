// Package resend is a minimal client for the Resend send API, shaped as
// a dispatch transport.
package resend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/outreach/internal/dispatch"
)

const DefaultBaseURL = "https://api.resend.com"

// Client sends single emails through POST /emails. One HTTP call per
// message, no retries; failures surface as TransportError.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
	Tags    []tag    `json:"tags,omitempty"`
}

type tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type sendResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

// Send delivers one message and returns Resend's email id.
func (c *Client) Send(ctx context.Context, msg *dispatch.Message) (string, error) {
	payload := sendRequest{
		From:    msg.From,
		To:      []string{msg.To},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.PlainText,
	}
	for name, value := range msg.Tags {
		payload.Tags = append(payload.Tags, tag{Name: name, Value: value})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	apiKey := c.apiKey
	if msg.APIKey != "" {
		apiKey = msg.APIKey
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	if msg.Reference != "" {
		req.Header.Set("X-Entity-Ref-ID", msg.Reference)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &dispatch.TransportError{Provider: "resend", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		message := string(respBody)
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return "", &dispatch.TransportError{
			Provider:   "resend",
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	var result sendResponse
	if err := json.Unmarshal(respBody, &result); err != nil || result.ID == "" {
		return "", &dispatch.TransportError{
			Provider: "resend",
			Message:  "response missing email id",
		}
	}
	return result.ID, nil
}
