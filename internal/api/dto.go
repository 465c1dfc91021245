package api

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/calendarsync"
	"github.com/starford/notemirror/internal/models"
	"github.com/starford/notemirror/internal/noteservice"
	"github.com/starford/notemirror/internal/repository"
)

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}([0-9A-Fa-f]{2})?$`)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title     string  `json:"title" example:"Groceries"`
	Body      string  `json:"body" example:"Buy milk \\@05-03-2026"`
	Tag       *string `json:"tag,omitempty" example:"home"`
	ParentID  *string `json:"parent_id,omitempty"`
	Color     *string `json:"color,omitempty" example:"#28A745"`
	CreatedBy string  `json:"created_by_user_id,omitempty"`
}

// Validate implements validation.Validatable.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Length(0, 500)),
		validation.Field(&r.ParentID, validation.NilOrNotEmpty, is.UUID),
		validation.Field(&r.Color, validation.NilOrNotEmpty, validation.Match(colorRe)),
	)
}

func (r CreateNoteRequest) input() (noteservice.CreateInput, error) {
	in := noteservice.CreateInput{
		Title:     r.Title,
		Body:      r.Body,
		Tag:       r.Tag,
		Color:     r.Color,
		CreatedBy: r.CreatedBy,
	}
	parent, err := parseOptionalID(r.ParentID)
	if err != nil {
		return in, err
	}
	in.ParentID = parent
	return in, nil
}

// UpdateNoteRequest is the partial-update body. Omitted fields are unchanged.
type UpdateNoteRequest struct {
	Title    *string `json:"title,omitempty"`
	Body     *string `json:"body,omitempty"`
	Tag      *string `json:"tag,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
	Color    *string `json:"color,omitempty"`
}

// Validate implements validation.Validatable.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty.Error("cannot be empty when set"), validation.Length(0, 500)),
		validation.Field(&r.ParentID, validation.NilOrNotEmpty, is.UUID),
		validation.Field(&r.Color, validation.NilOrNotEmpty, validation.Match(colorRe)),
	)
}

func (r UpdateNoteRequest) patch(id uuid.UUID) (models.NotePatch, error) {
	p := models.NotePatch{ID: id, Title: r.Title, Body: r.Body, Tag: r.Tag, Color: r.Color}
	parent, err := parseOptionalID(r.ParentID)
	if err != nil {
		return p, err
	}
	p.ParentID = parent
	return p, nil
}

func parseOptionalID(s *string) (*uuid.UUID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, fmt.Errorf("invalid id %q: %w", *s, err)
	}
	return &id, nil
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// TagsResponse wraps the tag index.
type TagsResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// TreeResponse wraps the note forest.
type TreeResponse struct {
	Roots []models.Note `json:"roots" validate:"required"`
}

// CalendarResponse wraps projected calendar events.
type CalendarResponse struct {
	Events []models.CalendarEvent `json:"events" validate:"required"`
}

// RemindersResponse wraps the reminder list.
type RemindersResponse struct {
	Reminders []models.Reminder `json:"reminders" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.Note `json:"results" validate:"required"`
}

// StatusResponse is the repository summary.
type StatusResponse = repository.Status

// PublishResponse reports a calendar publish.
type PublishResponse = calendarsync.Report
