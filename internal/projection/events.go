package projection

import (
	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/annotation"
	"github.com/starford/notemirror/internal/models"
)

// Projector derives dated views using one extractor.
type Projector struct {
	Extractor *annotation.Extractor
}

var defaultProjector = Projector{Extractor: annotation.Default}

// ProjectEvents appends an all-day event for every dated note not already
// present in existing.
func ProjectEvents(existing []models.CalendarEvent, notes []models.Note) []models.CalendarEvent {
	return defaultProjector.Events(existing, notes)
}

// ProjectReminders appends a reminder for every dated note not already
// present in existing.
func ProjectReminders(existing []models.Reminder, notes []models.Note) []models.Reminder {
	return defaultProjector.Reminders(existing, notes)
}

// Events implements ProjectEvents with p's extractor.
func (p Projector) Events(existing []models.CalendarEvent, notes []models.Note) []models.CalendarEvent {
	ex := p.extractor()
	out := append([]models.CalendarEvent(nil), existing...)
	seen := make(map[uuid.UUID]bool, len(existing))
	for _, e := range existing {
		seen[e.ID] = true
	}
	for _, n := range notes {
		if seen[n.ID] {
			continue
		}
		start, ok := ex.Date(n.Body)
		if !ok {
			continue
		}
		title := ex.Title(n.Body)
		if title == "" {
			title = annotation.UntitledEvent
		}
		out = append(out, models.CalendarEvent{
			ID:     n.ID,
			Title:  title,
			Start:  start,
			End:    start.AddDate(0, 0, 1),
			AllDay: true,
			Color:  n.ColorValue(),
		})
		seen[n.ID] = true
	}
	return out
}

// Reminders implements ProjectReminders with p's extractor.
func (p Projector) Reminders(existing []models.Reminder, notes []models.Note) []models.Reminder {
	ex := p.extractor()
	out := append([]models.Reminder(nil), existing...)
	seen := make(map[uuid.UUID]bool, len(existing))
	for _, r := range existing {
		seen[r.ID] = true
	}
	for _, n := range notes {
		if seen[n.ID] {
			continue
		}
		due, ok := ex.Date(n.Body)
		if !ok {
			continue
		}
		out = append(out, models.Reminder{ID: n.ID, Body: ex.Title(n.Body), Due: due})
		seen[n.ID] = true
	}
	return out
}

func (p Projector) extractor() *annotation.Extractor {
	if p.Extractor == nil {
		return annotation.Default
	}
	return p.Extractor
}
