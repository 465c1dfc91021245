package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/notemirror/internal/models"
)

const localSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id                 TEXT PRIMARY KEY,
	title              TEXT NOT NULL,
	body               TEXT NOT NULL,
	parent_id          TEXT,
	last_updated       REAL NOT NULL,
	created_by_user_id TEXT NOT NULL,
	color              TEXT,
	tag                TEXT
);
`

// Local stores notes in an on-device SQLite file.
type Local struct {
	conn   *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenLocal opens (or creates) the SQLite file at path and applies the schema.
func OpenLocal(path string, logger *slog.Logger) (*Local, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("backend: local open: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("backend: local ping: %w", err)
	}
	if _, err := conn.Exec(localSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("backend: local apply schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{conn: conn, logger: logger, now: time.Now}, nil
}

// Close closes the underlying database.
func (l *Local) Close() error {
	return l.conn.Close()
}

// Name implements Backend.
func (l *Local) Name() string { return "local" }

// FetchAll implements Backend.
func (l *Local) FetchAll(ctx context.Context) ([]models.Note, error) {
	rows, err := l.conn.QueryContext(ctx, selectNotesSQL)
	if err != nil {
		return nil, classify("local fetch", err)
	}
	notes, err := collectNotes(rows, l.logger, l.Name(), scanLocalRow)
	if err != nil {
		return nil, classify("local fetch", err)
	}
	return notes, nil
}

func scanLocalRow(rows *sql.Rows) (rawNote, error) {
	var (
		r     rawNote
		epoch float64
	)
	if err := rows.Scan(&r.id, &r.title, &r.body, &r.parentID, &epoch, &r.createdBy, &r.color, &r.tag); err != nil {
		return rawNote{}, err
	}
	r.lastUpdated = fromEpoch(epoch)
	return r, nil
}

// FetchTags implements Backend.
func (l *Local) FetchTags(ctx context.Context) ([]string, error) {
	rows, err := l.conn.QueryContext(ctx, selectTagsSQL)
	if err != nil {
		return nil, classify("local tags", err)
	}
	tags, err := collectTags(rows)
	if err != nil {
		return nil, classify("local tags", err)
	}
	return tags, nil
}

// Insert implements Backend.
func (l *Local) Insert(ctx context.Context, n models.NewNote) (models.Note, error) {
	color := models.DefaultColor
	note := models.Note{
		ID:          uuid.New(),
		Title:       n.Title,
		Body:        n.Body,
		LastUpdated: l.now().UTC(),
		CreatedBy:   n.CreatedBy,
		Color:       &color,
		Tag:         n.Tag,
	}
	_, err := l.conn.ExecContext(ctx, `
		INSERT INTO notes (id, title, body, parent_id, last_updated, created_by_user_id, color, tag)
		VALUES (?, ?, ?, NULL, ?, ?, ?, ?)
	`, note.ID.String(), note.Title, note.Body, toEpoch(note.LastUpdated), note.CreatedBy, color, nullString(n.Tag))
	if err != nil {
		return models.Note{}, classify("local insert", err)
	}
	return note, nil
}

// Update implements Backend.
func (l *Local) Update(ctx context.Context, p models.NotePatch) error {
	_, err := l.conn.ExecContext(ctx, `
		UPDATE notes SET
			title        = COALESCE(?, title),
			body         = COALESCE(?, body),
			parent_id    = COALESCE(?, parent_id),
			color        = COALESCE(?, color),
			tag          = COALESCE(?, tag),
			last_updated = ?
		WHERE id = ?
	`, nullString(p.Title), nullString(p.Body), nullUUID(p.ParentID), nullString(p.Color), nullString(p.Tag),
		toEpoch(l.now()), p.ID.String())
	if err != nil {
		return classify("local update", err)
	}
	return nil
}

// Delete implements Backend.
func (l *Local) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := l.conn.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id.String()); err != nil {
		return classify("local delete", err)
	}
	return nil
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromEpoch(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
