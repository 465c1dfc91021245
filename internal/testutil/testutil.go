// Package testutil provides shared test helpers for backends and databases.
package testutil

import (
	"context"
	"database/sql"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/starford/notemirror/internal/backend"
	"github.com/starford/notemirror/internal/companion"
)

// TempDBPath creates an empty temporary file that is removed on cleanup.
func TempDBPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "notemirror-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

// TestLocal opens a Local backend on a temporary SQLite file.
func TestLocal(t *testing.T) *backend.Local {
	t.Helper()
	l, err := backend.OpenLocal(TempDBPath(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

// TestRemote starts a companion service over a temporary SQLite file and
// returns a Remote backend reading the same file.
func TestRemote(t *testing.T) *backend.Remote {
	t.Helper()
	db, err := sql.Open("sqlite3", TempDBPath(t)+"?_busy_timeout=5000")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := companion.EnsureSchema(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(companion.NewRouter(companion.NewStore(db), nil))
	t.Cleanup(srv.Close)
	return backend.NewRemote(db, companion.NewClient(srv.URL, srv.Client()), 5*time.Second, nil)
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
