package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/contact"
	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/sender"
)

// sendCampaignRequest is the dispatch trigger body. Either an explicit
// id list or the filter fields select the contacts.
type sendCampaignRequest struct {
	Template string `json:"template"`
	Subject  string `json:"subject"`
	Sender   string `json:"sender"`

	SelectedContactIDs []int64 `json:"selected_contact_ids,omitempty"`
	ContactFilter      string  `json:"contact_filter,omitempty"`
	CategoryFilter     string  `json:"category_filter,omitempty"`
	ContactRangeStart  int64   `json:"contact_range_start,omitempty"`
	ContactRangeEnd    int64   `json:"contact_range_end,omitempty"`
	Limit              int     `json:"limit,omitempty"`

	SessionID    string `json:"session_id,omitempty"`
	EmailTimeout int    `json:"email_timeout,omitempty"` // seconds
	BatchSize    int    `json:"batch_size,omitempty"`
	BatchDelay   int    `json:"batch_delay,omitempty"` // seconds
}

// SendCampaign runs a campaign synchronously and returns the summary.
// Progress streams concurrently on /api/progress/{sessionID}.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var req sendCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Sender == "" {
		httputil.BadRequest(w, "sender is required")
		return
	}
	if req.Subject == "" || req.Template == "" {
		httputil.BadRequest(w, "subject and template are required")
		return
	}
	if req.ContactFilter != "" && !contact.ValidStatusFilter(req.ContactFilter) {
		httputil.BadRequest(w, "unknown contact_filter "+req.ContactFilter)
		return
	}

	runReq := &dispatch.Request{
		SessionID: req.SessionID,
		SenderKey: req.Sender,
		Subject:   req.Subject,
		Template:  req.Template,
		Selection: contact.Selection{
			Status:     req.ContactFilter,
			CategoryID: req.CategoryFilter,
			RangeStart: req.ContactRangeStart,
			RangeEnd:   req.ContactRangeEnd,
			Limit:      req.Limit,
			IDs:        req.SelectedContactIDs,
		},
		BatchSize:   req.BatchSize,
		BatchDelay:  time.Duration(req.BatchDelay) * time.Second,
		SendTimeout: time.Duration(req.EmailTimeout) * time.Second,
	}

	result, err := h.engine.Run(r.Context(), runReq)
	if err != nil {
		var cerr *sender.ConfigurationError
		var serr *contact.SelectionError
		var eerr *contact.EmptySelectionError
		var runerr *dispatch.ConcurrencyError
		switch {
		case errors.As(err, &cerr):
			httputil.BadRequest(w, cerr.Error())
		case errors.As(err, &runerr):
			httputil.Error(w, http.StatusConflict, runerr.Error())
		case errors.As(err, &serr):
			httputil.NotFound(w, serr.Error())
		case errors.As(err, &eerr):
			httputil.NotFound(w, eerr.Error())
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.OK(w, result)
}

// ListSessions returns the newest campaign sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessions.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*dispatch.Session{}
	}
	httputil.OK(w, sessions)
}

// GetSession returns one campaign session by id.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if s == nil {
		httputil.NotFound(w, "session not found")
		return
	}
	httputil.OK(w, s)
}
