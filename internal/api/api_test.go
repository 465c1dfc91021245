package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/annotation"
	"github.com/starford/notemirror/internal/apperr"
	"github.com/starford/notemirror/internal/models"
	"github.com/starford/notemirror/internal/noteservice"
	"github.com/starford/notemirror/internal/projection"
	"github.com/starford/notemirror/internal/repository"
	"github.com/starford/notemirror/internal/testutil"
)

// testEnv builds a service over a temporary local store and mounts the
// router. A non-empty token enables auth.
func testEnv(t *testing.T, authToken string) (*noteservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*noteservice.Service, http.Handler) {
	t.Helper()
	repo := repository.New(testutil.TestLocal(t), testutil.NewFakeBackend("remote"))
	if err := repo.FetchNotes(context.Background()); err != nil {
		t.Fatal(err)
	}
	proj := projection.Projector{Extractor: &annotation.Extractor{Keywords: annotation.NewTagger(), Location: time.UTC}}
	svc := noteservice.NewService(repo, proj, nil, "user-1")
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func create(t *testing.T, router http.Handler, body map[string]any) NoteDetail {
	t.Helper()
	w := do(t, router, http.MethodPost, "/notes", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var note NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatal(err)
	}
	return note
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	created := create(t, router, map[string]any{"title": "Groceries", "body": "Buy milk \\@05-03-2026", "tag": "home"})
	if created.ID == uuid.Nil {
		t.Fatal("expected assigned id")
	}
	if created.CreatedBy != "user-1" {
		t.Errorf("created_by = %q, want configured user", created.CreatedBy)
	}

	w := do(t, router, http.MethodGet, "/notes/"+created.ID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	if etag := w.Header().Get("ETag"); etag != `"`+created.Checksum+`"` {
		t.Errorf("etag = %q", etag)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.Title != "Groceries" || note.TagValue() != "home" {
		t.Errorf("unexpected note %+v", note)
	}
	if note.Event == nil || note.Event.Title != "Buy milk" {
		t.Errorf("expected projected event, got %+v", note.Event)
	}
}

func TestCreateValidation(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodPost, "/notes", `{nope`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/notes", map[string]any{"title": "x", "color": "green"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad color = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodPost, "/notes", map[string]any{"title": "x", "parent_id": uuid.NewString()}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown parent = %d, want 400", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")
	created := create(t, router, map[string]any{"title": "v1", "body": "b"})
	path := "/notes/" + created.ID.String()

	w := do(t, router, http.MethodPatch, path, map[string]any{"title": "v2"}, "If-Match", `"`+created.Checksum+`"`)
	if w.Code != http.StatusOK {
		t.Fatalf("update with correct checksum = %d, body = %s", w.Code, w.Body.String())
	}
	var updated NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &updated)
	if updated.Title != "v2" || updated.Body != "b" {
		t.Errorf("patch semantics broken: %+v", updated)
	}

	w = do(t, router, http.MethodPatch, path, map[string]any{"title": "v3"}, "If-Match", created.Checksum)
	if w.Code != http.StatusConflict {
		t.Errorf("update with stale checksum = %d, want 409", w.Code)
	}

	w = do(t, router, http.MethodPatch, path, map[string]any{"body": "no lock"})
	if w.Code != http.StatusOK {
		t.Errorf("update without If-Match = %d, want 200", w.Code)
	}
}

func TestUpdateNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPatch, "/notes/"+uuid.NewString(), map[string]any{"title": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")
	created := create(t, router, map[string]any{"title": "bye", "body": "gone"})
	path := "/notes/" + created.ID.String()

	if w := do(t, router, http.MethodDelete, path, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", w.Code)
	}
	if w := do(t, router, http.MethodGet, path, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/"+uuid.NewString(), nil); w.Code != http.StatusNoContent {
		t.Errorf("delete unknown = %d, want 204", w.Code)
	}
}

func TestGetNote_BadID(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/notes/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", w.Code)
	}
}

func TestListNotesAndTags(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, map[string]any{"title": "b", "tag": "work"})
	create(t, router, map[string]any{"title": "a", "tag": "work"})
	create(t, router, map[string]any{"title": "c"})

	w := do(t, router, http.MethodGet, "/notes?tag=work&sort=title", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var list NoteListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 2 || list.Notes[0].Title != "a" {
		t.Errorf("unexpected list %+v", list)
	}

	if w := do(t, router, http.MethodGet, "/notes?sort=bogus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad sort = %d, want 400", w.Code)
	}

	w = do(t, router, http.MethodGet, "/tags", nil)
	var tags TagsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tags)
	if len(tags.Tags) != 2 || tags.Tags[0] != repository.NoneTag || tags.Tags[1] != "work" {
		t.Errorf("tags = %v", tags.Tags)
	}
}

func TestTreeEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	parent := create(t, router, map[string]any{"title": "parent"})
	create(t, router, map[string]any{"title": "child", "parent_id": parent.ID.String()})

	w := do(t, router, http.MethodGet, "/tree", nil)
	var tree TreeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tree)
	if len(tree.Roots) != 1 || len(tree.Roots[0].Children) != 1 || tree.Roots[0].Children[0].Title != "child" {
		t.Errorf("unexpected tree %+v", tree.Roots)
	}
}

func TestCalendarAndReminders(t *testing.T) {
	_, router := testEnv(t, "")
	n := create(t, router, map[string]any{"title": "t", "body": "Call dentist \\@01-04-2026"})
	create(t, router, map[string]any{"title": "undated", "body": "nothing"})

	w := do(t, router, http.MethodGet, "/calendar", nil)
	var cal CalendarResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cal)
	if len(cal.Events) != 1 || !cal.Events[0].Start.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected events %+v", cal.Events)
	}

	w = do(t, router, http.MethodPost, "/reminders/"+n.ID.String()+"/toggle", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("toggle = %d", w.Code)
	}
	var rem models.Reminder
	_ = json.Unmarshal(w.Body.Bytes(), &rem)
	if !rem.Completed {
		t.Error("expected completed after toggle")
	}

	w = do(t, router, http.MethodGet, "/reminders", nil)
	var rems RemindersResponse
	_ = json.Unmarshal(w.Body.Bytes(), &rems)
	if len(rems.Reminders) != 1 || !rems.Reminders[0].Completed {
		t.Errorf("unexpected reminders %+v", rems.Reminders)
	}

	if w := do(t, router, http.MethodPost, "/reminders/"+uuid.NewString()+"/toggle", nil); w.Code != http.StatusNotFound {
		t.Errorf("toggle unknown = %d, want 404", w.Code)
	}
}

func TestPublishCalendarDisabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodPost, "/calendar/publish", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("publish without publisher = %d, want 503", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, map[string]any{"title": "find", "body": "uniquetoken here"})
	create(t, router, map[string]any{"title": "other", "body": "nothing"})

	w := do(t, router, http.MethodGet, "/search?q=uniquetoken", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 {
		t.Errorf("search results = %d, want 1", len(resp.Results))
	}

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, map[string]any{"title": "x"})
	w := do(t, router, http.MethodGet, "/status", nil)
	var st StatusResponse
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Mode != "local" || st.Notes != 1 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestWriteErrorStaleBackend(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, "insert", fmt.Errorf("swap: %w", apperr.ErrStaleBackend))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("cancelled stale write = %d, want 503", w.Code)
	}

	w = httptest.NewRecorder()
	writeError(w, "insert", fmt.Errorf("swap: %w: %w", apperr.ErrStaleBackend, apperr.ErrCommitted))
	if w.Code != http.StatusConflict {
		t.Errorf("committed stale write = %d, want 409", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodPost, "/notes", map[string]any{"title": "auth"}, "Authorization", "Bearer secret123")
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/notes", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// stubSSE writes headers and blocks until the request context ends.
var stubSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", stubSSE)
	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", stubSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
