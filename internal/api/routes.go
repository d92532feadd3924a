package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/outreach/internal/pkg/httputil"
)

// SetupRoutes configures the router: middleware, the /api surface, the
// per-sender webhook endpoint and the SSE progress stream.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	// Webhooks authenticate by signature, not session; keep them outside
	// the /api group.
	r.Post("/webhooks/{senderKey}", h.receiver.Handle)

	r.Route("/api", func(r chi.Router) {
		r.Post("/campaigns/send", h.SendCampaign)
		r.Get("/progress/{sessionID}", h.hub.HandleSSE)
		r.Get("/sessions", h.ListSessions)
		r.Get("/sessions/{sessionID}", h.GetSession)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/", h.ListContacts)
			r.Post("/", h.CreateContact)
			r.Get("/stats", h.ContactStats)
			r.Post("/import", h.ImportContacts)
			r.Delete("/all", h.DeleteAllContacts)
			r.Get("/categories", h.ListCategories)
			r.Get("/{contactID}", h.GetContact)
			r.Put("/{contactID}", h.UpdateContact)
			r.Delete("/{contactID}", h.DeleteContact)
			r.Get("/{contactID}/events", h.ContactEvents)
		})

		r.Route("/senders", func(r chi.Router) {
			r.Get("/", h.ListSenders)
			r.Post("/", h.CreateSender)
			r.Get("/{senderKey}", h.GetSender)
			r.Put("/{senderKey}", h.UpdateSender)
			r.Post("/{senderKey}/deactivate", h.DeactivateSender)
			r.Delete("/{senderKey}", h.DeleteSender)
			r.Get("/{senderKey}/template", h.GetTemplate)
			r.Put("/{senderKey}/template", h.SaveTemplate)
		})

		r.Get("/events", h.ListEvents)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "route not found")
	})

	return r
}
