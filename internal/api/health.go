package api

import (
	"net/http"
	"time"

	"github.com/ignite/outreach/internal/pkg/httputil"
)

// HealthCheck reports service liveness and database reachability.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	if err := h.db.PingContext(r.Context()); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}
	httputil.OK(w, map[string]interface{}{
		"status":   status,
		"database": dbStatus,
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
	})
}
