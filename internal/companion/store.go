package companion

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/models"
)

const remoteSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	body               TEXT NOT NULL,
	parent_id          TEXT,
	last_updated       TIMESTAMP NOT NULL,
	created_by_user_id TEXT NOT NULL,
	color              TEXT,
	tag                TEXT
)`

// EnsureSchema creates the shared notes table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, remoteSchemaSQL); err != nil {
		return fmt.Errorf("companion: ensure schema: %w", err)
	}
	return nil
}

// Store performs the write statements against the shared table.
// Placeholders are numbered in order of appearance.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Add inserts a note under a fresh identifier.
func (s *Store) Add(ctx context.Context, req AddNoteRequest) (uuid.UUID, error) {
	id := uuid.New()
	color := models.DefaultColor
	if req.Color != nil {
		color = *req.Color
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, body, parent_id, last_updated, created_by_user_id, color, tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id.String(), deref(req.Title), deref(req.Body), optional(req.ParentID), s.now().UTC(),
		req.CreatedBy, color, optional(req.Tag))
	if err != nil {
		return uuid.Nil, fmt.Errorf("companion: add note: %w", err)
	}
	return id, nil
}

// Edit applies a partial update; an unknown id changes nothing.
func (s *Store) Edit(ctx context.Context, req EditNoteRequest) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notes SET
			title        = COALESCE($1, title),
			body         = COALESCE($2, body),
			color        = COALESCE($3, color),
			parent_id    = COALESCE($4, parent_id),
			tag          = COALESCE($5, tag),
			last_updated = $6
		WHERE id = $7
	`, optional(req.Title), optional(req.Body), optional(req.Color), optional(req.ParentID),
		optional(req.Tag), s.now().UTC(), req.NoteID)
	if err != nil {
		return fmt.Errorf("companion: edit note: %w", err)
	}
	return nil
}

// Remove deletes a note; an unknown id changes nothing.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("companion: remove note: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
