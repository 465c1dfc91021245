package companion

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const maxBodyBytes = 1 << 20

// Server exposes Store over HTTP.
type Server struct {
	store  *Store
	logger *slog.Logger
}

// NewRouter builds the companion router with the write endpoints and
// health checks mounted.
func NewRouter(store *Store, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{store: store, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := store.db.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/add_note", s.addNote)
	r.Patch("/edit_note", s.editNote)
	r.Delete("/remove_note", s.removeNote)
	return r
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	var req AddNoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.store.Add(r.Context(), req)
	if err != nil {
		s.logger.Error("companion: add note failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: "Note added", NoteID: id.String()})
}

func (s *Server) editNote(w http.ResponseWriter, r *http.Request) {
	var req EditNoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.Edit(r.Context(), req); err != nil {
		s.logger.Error("companion: edit note failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: "Note updated"})
}

func (s *Server) removeNote(w http.ResponseWriter, r *http.Request) {
	var req RemoveNoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.store.Remove(r.Context(), req.NoteID); err != nil {
		s.logger.Error("companion: remove note failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "success", Message: "Note removed"})
}

// decode reads and validates a JSON body, writing a 400 or 422 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v validation.Validatable) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation failed", "fields": verrs})
			return false
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}
