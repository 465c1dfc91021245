package calendarsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/starford/notemirror/internal/models"
)

// fakeCalendar serves the subset of the Calendar v3 REST API the publisher uses.
type fakeCalendar struct {
	mu     sync.Mutex
	events map[string]*calendar.Event
	next   int
	calls  map[string]int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{events: map[string]*calendar.Event{}, calls: map[string]int{}}
}

func (f *fakeCalendar) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		items := make([]*calendar.Event, 0, len(f.events))
		for _, ev := range f.events {
			items = append(items, ev)
		}
		json.NewEncoder(w).Encode(calendar.Events{Items: items})
	})
	mux.HandleFunc("POST /calendars/{cal}/events", func(w http.ResponseWriter, r *http.Request) {
		var ev calendar.Event
		json.NewDecoder(r.Body).Decode(&ev)
		f.mu.Lock()
		f.next++
		ev.Id = fmt.Sprintf("ev%d", f.next)
		f.events[ev.Id] = &ev
		f.calls["insert"]++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(ev)
	})
	mux.HandleFunc("PUT /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		var ev calendar.Event
		json.NewDecoder(r.Body).Decode(&ev)
		ev.Id = r.PathValue("id")
		f.mu.Lock()
		f.events[ev.Id] = &ev
		f.calls["update"]++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(ev)
	})
	mux.HandleFunc("DELETE /calendars/{cal}/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		delete(f.events, r.PathValue("id"))
		f.calls["delete"]++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func testPublisher(t *testing.T) (*Publisher, *fakeCalendar) {
	t.Helper()
	fake := newFakeCalendar()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	svc, err := calendar.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return NewWithService(svc, "primary", "UTC", nil), fake
}

func event(title string, day int) models.CalendarEvent {
	start := time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC)
	return models.CalendarEvent{ID: uuid.New(), Title: title, Start: start, End: start.AddDate(0, 0, 1), AllDay: true}
}

func TestPublishCreatesUpdatesAndDeletes(t *testing.T) {
	p, fake := testPublisher(t)
	ctx := context.Background()

	milk, dentist := event("Buy milk", 5), event("Call dentist", 6)
	rep, err := p.Publish(ctx, []models.CalendarEvent{milk, dentist})
	require.NoError(t, err)
	assert.Equal(t, Report{Created: 2}, rep)

	for _, ev := range fake.events {
		assert.NotEmpty(t, ev.ExtendedProperties.Private[NoteIDProperty])
		assert.NotEmpty(t, ev.Start.Date)
	}

	rep, err = p.Publish(ctx, []models.CalendarEvent{milk, dentist})
	require.NoError(t, err)
	assert.Equal(t, Report{Unchanged: 2}, rep)

	moved := milk
	moved.Start = moved.Start.AddDate(0, 0, 2)
	moved.End = moved.End.AddDate(0, 0, 2)
	rep, err = p.Publish(ctx, []models.CalendarEvent{moved})
	require.NoError(t, err)
	assert.Equal(t, Report{Updated: 1, Deleted: 1}, rep)

	require.Len(t, fake.events, 1)
	for _, ev := range fake.events {
		assert.Equal(t, "2026-03-07", ev.Start.Date)
		assert.Equal(t, "2026-03-08", ev.End.Date)
	}
}

func TestPublishIgnoresUntaggedEvents(t *testing.T) {
	p, fake := testPublisher(t)
	fake.events["manual"] = &calendar.Event{Id: "manual", Summary: "Lunch"}

	rep, err := p.Publish(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{}, rep)
	assert.Contains(t, fake.events, "manual")
}

func TestNewRejectsMissingCredentials(t *testing.T) {
	_, err := New(context.Background(), Options{CredentialsFile: t.TempDir() + "/missing.json"}, nil)
	assert.Error(t, err)
}
