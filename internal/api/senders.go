package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/sender"
	"github.com/ignite/outreach/internal/template"
)

// ListSenders returns every configured sender. Credentials never leave
// the server; the Sender JSON shape omits them.
func (h *Handlers) ListSenders(w http.ResponseWriter, r *http.Request) {
	senders, err := h.senders.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if senders == nil {
		senders = []*sender.Sender{}
	}
	httputil.OK(w, senders)
}

// CreateSender registers a sending identity.
func (h *Handlers) CreateSender(w http.ResponseWriter, r *http.Request) {
	var s sender.Sender
	var body struct {
		sender.Sender
		APIKey        string `json:"api_key"`
		WebhookSecret string `json:"webhook_secret"`
		Active        *bool  `json:"active"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	s = body.Sender
	s.APIKey = body.APIKey
	s.WebhookSecret = body.WebhookSecret
	s.Active = body.Active == nil || *body.Active

	if err := h.senders.Create(r.Context(), &s); err != nil {
		var cerr *sender.ConfigurationError
		if errors.As(err, &cerr) {
			httputil.BadRequest(w, cerr.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, &s)
}

// GetSender returns one sender by key.
func (h *Handlers) GetSender(w http.ResponseWriter, r *http.Request) {
	s, err := h.senders.Get(r.Context(), chi.URLParam(r, "senderKey"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if s == nil {
		httputil.NotFound(w, "sender not found")
		return
	}
	httputil.OK(w, s)
}

// UpdateSender rewrites a sender's mutable fields.
func (h *Handlers) UpdateSender(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "senderKey")
	existing, err := h.senders.Get(r.Context(), key)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if existing == nil {
		httputil.NotFound(w, "sender not found")
		return
	}

	var body struct {
		Name          *string `json:"name"`
		FromEmail     *string `json:"from_email"`
		Transport     *string `json:"transport"`
		APIKey        *string `json:"api_key"`
		WebhookSecret *string `json:"webhook_secret"`
		Active        *bool   `json:"active"`
	}
	if !httputil.Decode(w, r, &body) {
		return
	}
	if body.Name != nil {
		existing.Name = *body.Name
	}
	if body.FromEmail != nil {
		existing.FromEmail = *body.FromEmail
	}
	if body.Transport != nil {
		existing.Transport = *body.Transport
	}
	if body.APIKey != nil {
		existing.APIKey = *body.APIKey
	}
	if body.WebhookSecret != nil {
		existing.WebhookSecret = *body.WebhookSecret
	}
	if body.Active != nil {
		existing.Active = *body.Active
	}

	if err := h.senders.Update(r.Context(), existing); err != nil {
		var cerr *sender.ConfigurationError
		if errors.As(err, &cerr) {
			httputil.BadRequest(w, cerr.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, existing)
}

// DeactivateSender turns a sender off without losing its history.
func (h *Handlers) DeactivateSender(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "senderKey")
	if err := h.senders.Deactivate(r.Context(), key); err != nil {
		var cerr *sender.ConfigurationError
		if errors.As(err, &cerr) {
			httputil.NotFound(w, cerr.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": "deactivated", "key": key})
}

// DeleteSender removes a sender entirely.
func (h *Handlers) DeleteSender(w http.ResponseWriter, r *http.Request) {
	if err := h.senders.Delete(r.Context(), chi.URLParam(r, "senderKey")); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// GetTemplate returns a sender's saved template, empty when none exists.
func (h *Handlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "senderKey")
	tpl, err := h.templates.Get(r.Context(), key)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if tpl == nil {
		tpl = &template.Template{SenderKey: key}
	}
	httputil.OK(w, tpl)
}

// SaveTemplate upserts a sender's template.
func (h *Handlers) SaveTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl template.Template
	if !httputil.Decode(w, r, &tpl) {
		return
	}
	tpl.SenderKey = chi.URLParam(r, "senderKey")
	if err := h.templates.Save(r.Context(), &tpl); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, &tpl)
}
