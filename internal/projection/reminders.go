package projection

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/apperr"
	"github.com/starford/notemirror/internal/models"
)

// ReminderBook holds the derived reminder list and the in-memory
// completion flags, which survive re-derivation for ids still present.
type ReminderBook struct {
	projector Projector

	mu        sync.Mutex
	reminders []models.Reminder
}

// NewReminderBook creates an empty book deriving with p.
func NewReminderBook(p Projector) *ReminderBook {
	return &ReminderBook{projector: p}
}

// Sync re-derives the list from notes.
func (b *ReminderBook) Sync(notes []models.Note) {
	fresh := b.projector.Reminders(nil, notes)
	sort.SliceStable(fresh, func(i, j int) bool {
		if !fresh[i].Due.Equal(fresh[j].Due) {
			return fresh[i].Due.Before(fresh[j].Due)
		}
		return fresh[i].ID.String() < fresh[j].ID.String()
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	done := make(map[uuid.UUID]bool, len(b.reminders))
	for _, r := range b.reminders {
		if r.Completed {
			done[r.ID] = true
		}
	}
	for i := range fresh {
		fresh[i].Completed = done[fresh[i].ID]
	}
	b.reminders = fresh
}

// Toggle flips the completion flag of the reminder with id.
func (b *ReminderBook) Toggle(id uuid.UUID) (models.Reminder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.reminders {
		if b.reminders[i].ID == id {
			b.reminders[i].Completed = !b.reminders[i].Completed
			return b.reminders[i], nil
		}
	}
	return models.Reminder{}, fmt.Errorf("projection: reminder %s: %w", id, apperr.ErrNotFound)
}

// List returns a copy ordered by due date.
func (b *ReminderBook) List() []models.Reminder {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Reminder(nil), b.reminders...)
}
