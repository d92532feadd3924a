package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/contact"
	"github.com/ignite/outreach/internal/pkg/httputil"
)

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// ListContacts returns a page of contacts with a total count.
func (h *Handlers) ListContacts(w http.ResponseWriter, r *http.Request) {
	opts := contact.ListOptions{
		CategoryID: r.URL.Query().Get("category"),
		Search:     r.URL.Query().Get("search"),
		OrderBy:    r.URL.Query().Get("order"),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}
	contacts, total, err := h.contacts.List(r.Context(), opts)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if contacts == nil {
		contacts = []*contact.Contact{}
	}
	httputil.OK(w, map[string]interface{}{
		"contacts": contacts,
		"total":    total,
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})
}

// CreateContact adds one contact.
func (h *Handlers) CreateContact(w http.ResponseWriter, r *http.Request) {
	var c contact.Contact
	if !httputil.Decode(w, r, &c) {
		return
	}
	if err := h.contacts.Create(r.Context(), &c); err != nil {
		var verr *contact.ValidationError
		if errors.As(err, &verr) {
			httputil.BadRequest(w, verr.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, &c)
}

func (h *Handlers) contactFromPath(w http.ResponseWriter, r *http.Request) (*contact.Contact, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "contactID"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "contact id must be numeric")
		return nil, false
	}
	c, err := h.contacts.Get(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return nil, false
	}
	if c == nil {
		httputil.NotFound(w, "contact not found")
		return nil, false
	}
	return c, true
}

// GetContact returns one contact.
func (h *Handlers) GetContact(w http.ResponseWriter, r *http.Request) {
	c, ok := h.contactFromPath(w, r)
	if !ok {
		return
	}
	httputil.OK(w, c)
}

// UpdateContact rewrites a contact's merge fields.
func (h *Handlers) UpdateContact(w http.ResponseWriter, r *http.Request) {
	c, ok := h.contactFromPath(w, r)
	if !ok {
		return
	}
	var update contact.Contact
	if !httputil.Decode(w, r, &update) {
		return
	}
	update.ID = c.ID
	if err := h.contacts.Update(r.Context(), &update); err != nil {
		if err == sql.ErrNoRows {
			httputil.NotFound(w, "contact not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, &update)
}

// DeleteContact removes one contact.
func (h *Handlers) DeleteContact(w http.ResponseWriter, r *http.Request) {
	c, ok := h.contactFromPath(w, r)
	if !ok {
		return
	}
	if err := h.contacts.Delete(r.Context(), c.ID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

// DeleteAllContacts wipes a category. The confirm parameter must equal
// "delete" so a stray call cannot empty a list.
func (h *Handlers) DeleteAllContacts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "delete" {
		httputil.BadRequest(w, `confirmation required: pass confirm=delete`)
		return
	}
	categoryID := r.URL.Query().Get("category")
	if categoryID == "" {
		httputil.BadRequest(w, "category is required")
		return
	}
	n, err := h.contacts.DeleteAll(r.Context(), categoryID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{"deleted": n})
}

// ListCategories returns the distinct contact categories.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.contacts.Categories(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if cats == nil {
		cats = []contact.Category{}
	}
	httputil.OK(w, cats)
}

// ImportContacts streams a CSV upload into a category.
func (h *Handlers) ImportContacts(w http.ResponseWriter, r *http.Request) {
	categoryID := r.URL.Query().Get("category")
	if categoryID == "" {
		httputil.BadRequest(w, "category is required")
		return
	}
	categoryName := r.URL.Query().Get("category_name")

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "multipart file field 'file' is required")
		return
	}
	defer file.Close()

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	result, err := h.importer.Import(r.Context(), sessionID, categoryID, categoryName, file)
	if err != nil {
		var verr *contact.ValidationError
		if errors.As(err, &verr) {
			httputil.BadRequest(w, verr.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"session_id": sessionID,
		"result":     result,
	})
}

// ContactStats returns the status projection buckets for a sender.
func (h *Handlers) ContactStats(w http.ResponseWriter, r *http.Request) {
	senderKey := r.URL.Query().Get("sender")
	if senderKey == "" {
		httputil.BadRequest(w, "sender is required")
		return
	}
	s, err := h.senders.Get(r.Context(), senderKey)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if s == nil {
		httputil.NotFound(w, "unknown sender "+senderKey)
		return
	}

	counts, err := h.events.CountByStatus(r.Context(), s.Key, s.FromEmail, r.URL.Query().Get("category"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, counts)
}

// ContactEvents returns one contact's event history for a sender.
func (h *Handlers) ContactEvents(w http.ResponseWriter, r *http.Request) {
	c, ok := h.contactFromPath(w, r)
	if !ok {
		return
	}
	senderKey := r.URL.Query().Get("sender")
	if senderKey == "" {
		httputil.BadRequest(w, "sender is required")
		return
	}
	s, err := h.senders.Get(r.Context(), senderKey)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if s == nil {
		httputil.NotFound(w, "unknown sender "+senderKey)
		return
	}

	events, err := h.events.History(r.Context(), s.Key, s.FromEmail, c.Email)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"contact": c.Email,
		"events":  events,
	})
}
