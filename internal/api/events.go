package api

import (
	"net/http"

	"github.com/ignite/outreach/internal/event"
	"github.com/ignite/outreach/internal/pkg/httputil"
)

// ListEvents returns the most recent event log rows, optionally for one
// sender.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.Recent(r.Context(), r.URL.Query().Get("sender"), queryInt(r, "limit", 100))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if events == nil {
		events = []*event.Event{}
	}
	httputil.OK(w, events)
}
