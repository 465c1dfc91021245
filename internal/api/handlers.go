package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/noteservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// noteID parses the {id} URL parameter, writing a 400 when it is not a UUID.
func noteID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body into v and runs its validation rules.
func decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verrs})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List mirrored notes
//	@Tags			notes
//	@Produce		json
//	@Param			tag		query		string	false	"Filter by tag (None for untagged)"
//	@Param			sort	query		string	false	"Sort field"	Enums(updated, title)
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := h.svc.ListNotes(r.Context(), q.Get("tag"), q.Get("sort"))
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: len(items)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	note, err := h.svc.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note on the active backend
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	note, err := h.svc.CreateNote(r.Context(), in)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PATCH /api/notes/{id}.
//
//	@Summary		Partially update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Note id"
//	@Param			If-Match	header		string				false	"Checksum for optimistic concurrency"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200			{object}	NoteDetail
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	var req UpdateNoteRequest
	if !decode(w, r, &req) {
		return
	}
	patch, err := req.patch(id)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)
	note, err := h.svc.UpdateNote(r.Context(), patch, ifMatch)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}. Unknown ids succeed.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteNote(r.Context(), id); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TagsResponse{Tags: h.svc.Tags()})
}

// Tree handles GET /api/tree.
func (h *Handler) Tree(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TreeResponse{Roots: h.svc.Tree()})
}

// Search handles GET /api/search.
//
//	@Summary		Fuzzy search across note titles and bodies
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	SearchResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: h.svc.Search(q)})
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// Calendar handles GET /api/calendar.
func (h *Handler) Calendar(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CalendarResponse{Events: h.svc.Events()})
}

// PublishCalendar handles POST /api/calendar/publish.
func (h *Handler) PublishCalendar(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.PublishCalendar(r.Context())
	if err != nil {
		writeError(w, "publish calendar", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Reminders handles GET /api/reminders.
func (h *Handler) Reminders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, RemindersResponse{Reminders: h.svc.Reminders()})
}

// ToggleReminder handles POST /api/reminders/{id}/toggle.
func (h *Handler) ToggleReminder(w http.ResponseWriter, r *http.Request) {
	id, ok := noteID(w, r)
	if !ok {
		return
	}
	rem, err := h.svc.ToggleReminder(id)
	if err != nil {
		writeError(w, "toggle reminder", err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}
