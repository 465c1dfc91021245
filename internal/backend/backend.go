// Package backend defines the storage contract for notes and its two
// implementations: Local (SQLite file) and Remote (PostgreSQL reads plus
// companion HTTP writes).
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/apperr"
	"github.com/starford/notemirror/internal/models"
)

// Backend is the storage contract both implementations satisfy.
type Backend interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// FetchAll returns every persisted note in no particular order.
	// Rows that cannot be decoded are skipped.
	FetchAll(ctx context.Context) ([]models.Note, error)
	// FetchTags returns the distinct non-empty tag values.
	FetchTags(ctx context.Context) ([]string, error)
	// Insert stores a note under a backend-generated identifier and returns it.
	Insert(ctx context.Context, n models.NewNote) (models.Note, error)
	// Update applies a partial update and refreshes last_updated.
	Update(ctx context.Context, p models.NotePatch) error
	// Delete removes the note; an unknown id is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}

// Verify both implementations at compile time.
var (
	_ Backend = (*Local)(nil)
	_ Backend = (*Remote)(nil)
)

const selectNotesSQL = `SELECT id, title, body, parent_id, last_updated, created_by_user_id, color, tag FROM notes`

const selectTagsSQL = `SELECT DISTINCT tag FROM notes WHERE tag IS NOT NULL AND TRIM(tag) <> '' ORDER BY tag`

// rawNote holds one scanned row before identifiers are parsed.
type rawNote struct {
	id          string
	title       string
	body        string
	parentID    sql.NullString
	lastUpdated time.Time
	createdBy   string
	color       sql.NullString
	tag         sql.NullString
}

// toNote normalises a scanned row. A malformed id is an error; a malformed
// parent id is dropped so the note becomes a root.
func (r rawNote) toNote() (models.Note, error) {
	id, err := uuid.Parse(r.id)
	if err != nil {
		return models.Note{}, fmt.Errorf("%w: id %q: %w", apperr.ErrMalformedRecord, r.id, err)
	}
	n := models.Note{
		ID:          id,
		Title:       r.title,
		Body:        r.body,
		LastUpdated: r.lastUpdated.UTC(),
		CreatedBy:   r.createdBy,
	}
	if r.parentID.Valid {
		if pid, err := uuid.Parse(r.parentID.String); err == nil {
			n.ParentID = &pid
		}
	}
	if r.color.Valid {
		c := r.color.String
		n.Color = &c
	}
	if r.tag.Valid {
		t := r.tag.String
		n.Tag = &t
	}
	return n, nil
}

// collectNotes drains rows through scan, skipping malformed records.
func collectNotes(rows *sql.Rows, logger *slog.Logger, backend string, scan func(*sql.Rows) (rawNote, error)) ([]models.Note, error) {
	defer rows.Close()
	var out []models.Note
	for rows.Next() {
		raw, err := scan(rows)
		if err != nil {
			logger.Warn("backend: skip unreadable row",
				slog.String("backend", backend), slog.String("error", err.Error()))
			continue
		}
		n, err := raw.toNote()
		if err != nil {
			logger.Warn("backend: skip malformed row",
				slog.String("backend", backend), slog.String("error", err.Error()))
			continue
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func collectTags(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// classify maps driver and transport errors onto the apperr vocabulary.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, apperr.ErrTimeout), errors.Is(err, apperr.ErrTransport),
		errors.Is(err, apperr.ErrMalformedRecord):
		return fmt.Errorf("backend: %s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("backend: %s: %w: %w", op, apperr.ErrTimeout, err)
	default:
		return fmt.Errorf("backend: %s: %w: %w", op, apperr.ErrTransport, err)
	}
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
