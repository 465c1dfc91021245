// Package models defines the domain types for notemirror.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultColor is stored for notes created without an explicit color.
const DefaultColor = "#28A745"

// Note is a single note as persisted by either backend.
type Note struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	CreatedBy   string     `json:"created_by_user_id"`
	Color       *string    `json:"color,omitempty"`
	Tag         *string    `json:"tag,omitempty"`

	// Children is filled only by tree projection and never persisted.
	Children []Note `json:"children,omitempty"`
}

// NewNote is the payload for inserting a note. The backend assigns the
// persisted identifier; ID is only used to reject duplicates in the mirror.
type NewNote struct {
	ID        uuid.UUID `json:"id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Tag       *string   `json:"tag,omitempty"`
	CreatedBy string    `json:"created_by_user_id"`
}

// NotePatch is a partial update. Nil fields are left unchanged.
type NotePatch struct {
	ID       uuid.UUID  `json:"note_id"`
	Title    *string    `json:"title,omitempty"`
	Body     *string    `json:"body,omitempty"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Color    *string    `json:"color,omitempty"`
	Tag      *string    `json:"tag,omitempty"`
}

// PatchFrom builds a patch carrying every field of n. Title and body are
// always set; parent, color and tag only when present on n.
func PatchFrom(n Note) NotePatch {
	title, body := n.Title, n.Body
	return NotePatch{
		ID:       n.ID,
		Title:    &title,
		Body:     &body,
		ParentID: n.ParentID,
		Color:    n.Color,
		Tag:      n.Tag,
	}
}

// Apply returns a copy of n with the non-nil patch fields applied and
// LastUpdated set to now.
func (p NotePatch) Apply(n Note, now time.Time) Note {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Body != nil {
		n.Body = *p.Body
	}
	if p.ParentID != nil {
		id := *p.ParentID
		n.ParentID = &id
	}
	if p.Color != nil {
		c := *p.Color
		n.Color = &c
	}
	if p.Tag != nil {
		t := *p.Tag
		n.Tag = &t
	}
	n.LastUpdated = now
	n.Children = nil
	return n
}

// TagValue returns the tag or an empty string.
func (n Note) TagValue() string {
	if n.Tag == nil {
		return ""
	}
	return *n.Tag
}

// ColorValue returns the color or an empty string.
func (n Note) ColorValue() string {
	if n.Color == nil {
		return ""
	}
	return *n.Color
}

// CalendarEvent is a note projected onto the calendar. It is never persisted.
type CalendarEvent struct {
	ID     uuid.UUID `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
	Color  string    `json:"color,omitempty"`
}

// Reminder is a note projected onto the reminder list. Completion lives
// only in memory.
type Reminder struct {
	ID        uuid.UUID `json:"id"`
	Body      string    `json:"body"`
	Due       time.Time `json:"due"`
	Completed bool      `json:"completed"`
}
