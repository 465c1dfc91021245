// Package calendarsync publishes projected note events to a Google Calendar.
package calendarsync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/starford/notemirror/internal/models"
)

// NoteIDProperty is the private extended property linking an event to its note.
const NoteIDProperty = "notemirror_note_id"

const dateLayout = "2006-01-02"

// Report counts the changes one Publish made.
type Report struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Unchanged int `json:"unchanged"`
}

// Publisher mirrors a set of CalendarEvents onto one calendar.
type Publisher struct {
	srv        *calendar.Service
	calendarID string
	timeZone   string
	logger     *slog.Logger
}

// Options configures New.
type Options struct {
	CredentialsFile string
	CalendarID      string
	TimeZone        string
}

// New authenticates with a service-account JSON file and returns a publisher.
func New(ctx context.Context, opts Options, logger *slog.Logger) (*Publisher, error) {
	data, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("calendarsync: read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("calendarsync: parse credentials: %w", err)
	}
	srv, err := calendar.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("calendarsync: create service: %w", err)
	}
	return NewWithService(srv, opts.CalendarID, opts.TimeZone, logger), nil
}

// NewWithService wraps an existing calendar service.
func NewWithService(srv *calendar.Service, calendarID, timeZone string, logger *slog.Logger) *Publisher {
	if calendarID == "" {
		calendarID = "primary"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{srv: srv, calendarID: calendarID, timeZone: timeZone, logger: logger}
}

// Publish upserts every event and deletes tagged events whose note no
// longer projects.
func (p *Publisher) Publish(ctx context.Context, events []models.CalendarEvent) (Report, error) {
	var rep Report

	existing, err := p.tagged(ctx)
	if err != nil {
		return rep, err
	}

	wanted := make(map[string]bool, len(events))
	for _, ev := range events {
		noteID := ev.ID.String()
		wanted[noteID] = true
		desired := p.toCalendar(ev)

		cur, ok := existing[noteID]
		switch {
		case !ok:
			if _, err := p.srv.Events.Insert(p.calendarID, desired).Context(ctx).Do(); err != nil {
				return rep, fmt.Errorf("calendarsync: insert %s: %w", noteID, err)
			}
			rep.Created++
		case needsUpdate(cur, desired):
			if _, err := p.srv.Events.Update(p.calendarID, cur.Id, desired).Context(ctx).Do(); err != nil {
				return rep, fmt.Errorf("calendarsync: update %s: %w", noteID, err)
			}
			rep.Updated++
		default:
			rep.Unchanged++
		}
	}

	for noteID, cur := range existing {
		if wanted[noteID] {
			continue
		}
		if err := p.srv.Events.Delete(p.calendarID, cur.Id).Context(ctx).Do(); err != nil {
			return rep, fmt.Errorf("calendarsync: delete %s: %w", noteID, err)
		}
		rep.Deleted++
	}

	p.logger.Info("calendarsync: published",
		slog.Int("created", rep.Created), slog.Int("updated", rep.Updated),
		slog.Int("deleted", rep.Deleted), slog.Int("unchanged", rep.Unchanged))
	return rep, nil
}

// Run publishes the result of source every interval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context, interval time.Duration, source func() []models.CalendarEvent) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.Publish(ctx, source()); err != nil && ctx.Err() == nil {
				p.logger.Warn("calendarsync: publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

// tagged lists the calendar's events that carry a note id, keyed by it.
func (p *Publisher) tagged(ctx context.Context) (map[string]*calendar.Event, error) {
	out := make(map[string]*calendar.Event)
	err := p.srv.Events.List(p.calendarID).ShowDeleted(false).Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.ExtendedProperties == nil {
				continue
			}
			if id := item.ExtendedProperties.Private[NoteIDProperty]; id != "" {
				out[id] = item
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("calendarsync: list events: %w", err)
	}
	return out, nil
}

func (p *Publisher) toCalendar(ev models.CalendarEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     ev.Title,
		Description: "Published from notemirror",
		Start:       &calendar.EventDateTime{Date: ev.Start.Format(dateLayout), TimeZone: p.timeZone},
		End:         &calendar.EventDateTime{Date: ev.End.Format(dateLayout), TimeZone: p.timeZone},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{NoteIDProperty: ev.ID.String()},
		},
	}
}

func needsUpdate(cur, desired *calendar.Event) bool {
	if cur.Summary != desired.Summary {
		return true
	}
	if cur.Start == nil || cur.Start.Date != desired.Start.Date {
		return true
	}
	return cur.End == nil || cur.End.Date != desired.End.Date
}
