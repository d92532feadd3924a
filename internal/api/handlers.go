// Package api exposes the HTTP surface: campaign dispatch, contact
// management, sender registry, templates, webhook ingestion and the
// progress stream.
package api

import (
	"database/sql"
	"time"

	"github.com/ignite/outreach/internal/contact"
	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/event"
	"github.com/ignite/outreach/internal/progress"
	"github.com/ignite/outreach/internal/sender"
	"github.com/ignite/outreach/internal/template"
	"github.com/ignite/outreach/internal/webhook"
)

// Handlers bundles the stores and services behind the HTTP routes.
type Handlers struct {
	db        *sql.DB
	contacts  *contact.Store
	importer  *contact.Importer
	senders   *sender.Store
	templates *template.Store
	events    *event.Store
	sessions  *dispatch.SessionStore
	engine    *dispatch.Engine
	hub       *progress.Hub
	receiver  *webhook.Receiver

	startedAt time.Time
}

func NewHandlers(
	db *sql.DB,
	contacts *contact.Store,
	importer *contact.Importer,
	senders *sender.Store,
	templates *template.Store,
	events *event.Store,
	sessions *dispatch.SessionStore,
	engine *dispatch.Engine,
	hub *progress.Hub,
	receiver *webhook.Receiver,
) *Handlers {
	return &Handlers{
		db:        db,
		contacts:  contacts,
		importer:  importer,
		senders:   senders,
		templates: templates,
		events:    events,
		sessions:  sessions,
		engine:    engine,
		hub:       hub,
		receiver:  receiver,
		startedAt: time.Now(),
	}
}
