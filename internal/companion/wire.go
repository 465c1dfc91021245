// Package companion implements the write API that fronts the shared
// PostgreSQL notes table, plus the HTTP client the remote backend uses
// to reach it.
package companion

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

var colorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}([0-9A-Fa-f]{2})?$`)

// AddNoteRequest is the body of POST /add_note.
type AddNoteRequest struct {
	Title     *string `json:"title"`
	Body      *string `json:"body"`
	ParentID  *string `json:"parent_id,omitempty"`
	CreatedBy string  `json:"created_by_user_id"`
	Color     *string `json:"color,omitempty"`
	Tag       *string `json:"tag,omitempty"`
}

// Validate implements validation.Validatable.
func (r AddNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NotNil),
		validation.Field(&r.Body, validation.NotNil),
		validation.Field(&r.CreatedBy, validation.Required),
		validation.Field(&r.ParentID, validation.NilOrNotEmpty, is.UUID),
		validation.Field(&r.Color, validation.NilOrNotEmpty, validation.Match(colorRe)),
	)
}

// EditNoteRequest is the body of PATCH /edit_note. Nil fields are left unchanged.
type EditNoteRequest struct {
	NoteID   string  `json:"note_id"`
	Title    *string `json:"title,omitempty"`
	Body     *string `json:"body,omitempty"`
	Color    *string `json:"color,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`
	Tag      *string `json:"tag,omitempty"`
}

// Validate implements validation.Validatable.
func (r EditNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NoteID, validation.Required, is.UUID),
		validation.Field(&r.ParentID, validation.NilOrNotEmpty, is.UUID),
		validation.Field(&r.Color, validation.NilOrNotEmpty, validation.Match(colorRe)),
	)
}

// RemoveNoteRequest is the body of DELETE /remove_note.
type RemoveNoteRequest struct {
	NoteID string `json:"note_id"`
}

// Validate implements validation.Validatable.
func (r RemoveNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NoteID, validation.Required, is.UUID),
	)
}

// Response is the acknowledgement every write endpoint returns.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	NoteID  string `json:"note_id,omitempty"`
}
