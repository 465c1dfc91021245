package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/starford/notemirror/internal/companion"
	"github.com/starford/notemirror/internal/models"
)

// DefaultRemoteTimeout bounds each remote call when no timeout is configured.
const DefaultRemoteTimeout = 10 * time.Second

// Remote reads notes directly from PostgreSQL and writes them through the
// companion HTTP service.
type Remote struct {
	db      *sql.DB
	api     *companion.Client
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// RemoteOptions configures OpenRemote.
type RemoteOptions struct {
	DSN        string
	APIBaseURL string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenRemote opens a pgx-backed reader and a companion client. The
// connection is established lazily on the first read.
func OpenRemote(opts RemoteOptions, logger *slog.Logger) (*Remote, error) {
	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("backend: remote open: %w", err)
	}
	return NewRemote(db, companion.NewClient(opts.APIBaseURL, opts.HTTPClient), opts.Timeout, logger), nil
}

// NewRemote assembles a Remote from an existing reader and write client.
func NewRemote(db *sql.DB, api *companion.Client, timeout time.Duration, logger *slog.Logger) *Remote {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{db: db, api: api, timeout: timeout, logger: logger, now: time.Now}
}

// Close closes the reader pool.
func (r *Remote) Close() error {
	return r.db.Close()
}

// Name implements Backend.
func (r *Remote) Name() string { return "remote" }

// FetchAll implements Backend.
func (r *Remote) FetchAll(ctx context.Context) ([]models.Note, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectNotesSQL)
	if err != nil {
		return nil, classify("remote fetch", err)
	}
	notes, err := collectNotes(rows, r.logger, r.Name(), scanRemoteRow)
	if err != nil {
		return nil, classify("remote fetch", err)
	}
	return notes, nil
}

func scanRemoteRow(rows *sql.Rows) (rawNote, error) {
	var r rawNote
	err := rows.Scan(&r.id, &r.title, &r.body, &r.parentID, &r.lastUpdated, &r.createdBy, &r.color, &r.tag)
	return r, err
}

// FetchTags implements Backend.
func (r *Remote) FetchTags(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, selectTagsSQL)
	if err != nil {
		return nil, classify("remote tags", err)
	}
	tags, err := collectTags(rows)
	if err != nil {
		return nil, classify("remote tags", err)
	}
	return tags, nil
}

// Insert implements Backend. The returned note carries the id assigned
// by the companion service.
func (r *Remote) Insert(ctx context.Context, n models.NewNote) (models.Note, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	title, body := n.Title, n.Body
	id, err := r.api.AddNote(ctx, companion.AddNoteRequest{
		Title:     &title,
		Body:      &body,
		CreatedBy: n.CreatedBy,
		Tag:       n.Tag,
	})
	if err != nil {
		return models.Note{}, classify("remote insert", err)
	}
	color := models.DefaultColor
	return models.Note{
		ID:          id,
		Title:       n.Title,
		Body:        n.Body,
		LastUpdated: r.now().UTC(),
		CreatedBy:   n.CreatedBy,
		Color:       &color,
		Tag:         n.Tag,
	}, nil
}

// Update implements Backend.
func (r *Remote) Update(ctx context.Context, p models.NotePatch) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := companion.EditNoteRequest{
		NoteID: p.ID.String(),
		Title:  p.Title,
		Body:   p.Body,
		Color:  p.Color,
		Tag:    p.Tag,
	}
	if p.ParentID != nil {
		pid := p.ParentID.String()
		req.ParentID = &pid
	}
	return classify("remote update", r.api.EditNote(ctx, req))
}

// Delete implements Backend.
func (r *Remote) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return classify("remote delete", r.api.RemoveNote(ctx, id))
}
