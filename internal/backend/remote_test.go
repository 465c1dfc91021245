package backend

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/apperr"
	"github.com/starford/notemirror/internal/companion"
	"github.com/starford/notemirror/internal/models"
)

// testRemote wires a Remote whose reader and companion service share one
// SQLite file standing in for PostgreSQL.
func testRemote(t *testing.T) (*Remote, *sql.DB) {
	t.Helper()
	f, err := os.CreateTemp("", "notemirror-remote-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := sql.Open("sqlite3", f.Name()+"?_busy_timeout=5000")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := companion.EnsureSchema(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(companion.NewRouter(companion.NewStore(db), nil))
	t.Cleanup(srv.Close)

	return NewRemote(db, companion.NewClient(srv.URL, srv.Client()), time.Second, nil), db
}

func TestRemoteInsertFetchUpdateDelete(t *testing.T) {
	ctx := context.Background()
	r, _ := testRemote(t)

	n, err := r.Insert(ctx, models.NewNote{Title: "Call dentist", Body: "\\@05-03-2026", Tag: strp("health"), CreatedBy: "u1"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	notes, err := r.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != n.ID {
		t.Fatalf("fetched %+v, want id %s", notes, n.ID)
	}
	if notes[0].ColorValue() != models.DefaultColor || notes[0].TagValue() != "health" {
		t.Errorf("unexpected note: %+v", notes[0])
	}

	if err := r.Update(ctx, models.NotePatch{ID: n.ID, Body: strp("moved")}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	notes, _ = r.FetchAll(ctx)
	if notes[0].Body != "moved" || notes[0].Title != "Call dentist" {
		t.Errorf("patch not applied with COALESCE semantics: %+v", notes[0])
	}

	tags, err := r.FetchTags(ctx)
	if err != nil || len(tags) != 1 || tags[0] != "health" {
		t.Errorf("FetchTags = %v, %v", tags, err)
	}

	if err := r.Delete(ctx, uuid.New()); err != nil {
		t.Errorf("Delete unknown: %v", err)
	}
	if err := r.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if notes, _ := r.FetchAll(ctx); len(notes) != 0 {
		t.Errorf("expected empty after delete, got %d", len(notes))
	}
}

func TestRemoteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	r := NewRemote(nil, companion.NewClient(srv.URL, srv.Client()), 50*time.Millisecond, nil)
	_, err := r.Insert(context.Background(), models.NewNote{Title: "t", Body: "b", CreatedBy: "u1"})
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRemoteNon2xxIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	r := NewRemote(nil, companion.NewClient(srv.URL, srv.Client()), time.Second, nil)
	err := r.Delete(context.Background(), uuid.New())
	if !errors.Is(err, apperr.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestRemoteMalformedNoteID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","message":"Note added","note_id":"nope"}`))
	}))
	t.Cleanup(srv.Close)

	r := NewRemote(nil, companion.NewClient(srv.URL, srv.Client()), time.Second, nil)
	_, err := r.Insert(context.Background(), models.NewNote{Title: "t", Body: "b", CreatedBy: "u1"})
	if !errors.Is(err, apperr.ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestRemoteSkipsMalformedRows(t *testing.T) {
	ctx := context.Background()
	r, db := testRemote(t)
	_, err := db.Exec(`INSERT INTO notes (id, title, body, parent_id, last_updated, created_by_user_id)
		VALUES ($1, 'good', '', NULL, $2, 'u1'), ('bad-id', 'bad', '', NULL, $3, 'u1')`,
		uuid.NewString(), time.Now().UTC(), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	notes, err := r.FetchAll(ctx)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(notes) != 1 || notes[0].Title != "good" {
		t.Fatalf("expected only the well-formed note, got %+v", notes)
	}
}
