package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/notemirror/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Patch("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)

	r.Get("/tags", h.Tags)
	r.Get("/tree", h.Tree)
	r.Get("/search", h.Search)
	r.Get("/status", h.Status)

	r.Get("/calendar", h.Calendar)
	r.Post("/calendar/publish", h.PublishCalendar)
	r.Get("/reminders", h.Reminders)
	r.Post("/reminders/{id}/toggle", h.ToggleReminder)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
