package noteservice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/apperr"
	"github.com/starford/notemirror/internal/calendarsync"
	"github.com/starford/notemirror/internal/checksum"
	"github.com/starford/notemirror/internal/models"
	"github.com/starford/notemirror/internal/projection"
	"github.com/starford/notemirror/internal/repository"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	models.Note
	Checksum string                `json:"checksum"`
	Event    *models.CalendarEvent `json:"event,omitempty"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Tag         string     `json:"tag"`
	Color       string     `json:"color,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	Checksum    string     `json:"checksum"`
	LastUpdated time.Time  `json:"last_updated"`
}

// CreateInput carries the fields a caller may set on a new note.
type CreateInput struct {
	Title     string
	Body      string
	Tag       *string
	ParentID  *uuid.UUID
	Color     *string
	CreatedBy string
}

// Publisher pushes calendar events to an external calendar.
type Publisher interface {
	Publish(ctx context.Context, events []models.CalendarEvent) (calendarsync.Report, error)
}

// Service coordinates the repository and the projections.
type Service struct {
	repo      *repository.Repository
	projector projection.Projector
	reminders *projection.ReminderBook
	publisher Publisher
	userID    string
}

// NewService creates a note service. publisher may be nil.
func NewService(repo *repository.Repository, projector projection.Projector, publisher Publisher, userID string) *Service {
	s := &Service{
		repo:      repo,
		projector: projector,
		reminders: projection.NewReminderBook(projector),
		publisher: publisher,
		userID:    userID,
	}
	s.reminders.Sync(repo.Notes())
	repo.Subscribe(func(c repository.Change) {
		if c.Kind != repository.ChangeBackend {
			s.reminders.Sync(repo.Notes())
		}
	})
	return s
}

// GetNote returns a mirrored note.
func (s *Service) GetNote(_ context.Context, id uuid.UUID) (*NoteDetail, error) {
	n, err := s.repo.Note(id)
	if err != nil {
		return nil, err
	}
	return s.detail(n), nil
}

// CreateNote inserts a note, then applies parent and color when given.
func (s *Service) CreateNote(ctx context.Context, in CreateInput) (*NoteDetail, error) {
	if in.CreatedBy == "" {
		in.CreatedBy = s.userID
	}
	if in.ParentID != nil {
		if err := s.checkParent(uuid.Nil, *in.ParentID); err != nil {
			return nil, err
		}
	}
	n, err := s.repo.Insert(ctx, models.NewNote{
		Title:     in.Title,
		Body:      in.Body,
		Tag:       in.Tag,
		CreatedBy: in.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	if in.ParentID != nil || in.Color != nil {
		if err := s.repo.Update(ctx, models.NotePatch{ID: n.ID, ParentID: in.ParentID, Color: in.Color}); err != nil {
			return nil, err
		}
		if n, err = s.repo.Note(n.ID); err != nil {
			return nil, err
		}
	}
	return s.detail(n), nil
}

// UpdateNote applies p with optimistic concurrency: a non-empty ifMatch
// must equal the current checksum.
func (s *Service) UpdateNote(ctx context.Context, p models.NotePatch, ifMatch string) (*NoteDetail, error) {
	err := s.repo.UpdateIf(ctx, p, func(cur models.Note) error {
		if ifMatch != "" && ifMatch != checksum.Note(cur) {
			return fmt.Errorf("noteservice: note %s: %w", p.ID, apperr.ErrConflict)
		}
		if p.ParentID != nil {
			return s.checkParent(p.ID, *p.ParentID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	n, err := s.repo.Note(p.ID)
	if err != nil {
		return nil, err
	}
	return s.detail(n), nil
}

// DeleteNote removes a note. An unknown id is not an error.
func (s *Service) DeleteNote(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// ListNotes returns mirrored notes filtered by tag bucket and sorted by
// "updated" (default, newest first) or "title".
func (s *Service) ListNotes(_ context.Context, tag, sortBy string) ([]NoteListItem, error) {
	tag = strings.TrimSpace(tag)
	notes := s.repo.Notes()
	items := make([]NoteListItem, 0, len(notes))
	for _, n := range notes {
		if tag != "" && repository.TagKey(n) != tag {
			continue
		}
		items = append(items, NoteListItem{
			ID:          n.ID,
			Title:       n.Title,
			Tag:         repository.TagKey(n),
			Color:       n.ColorValue(),
			ParentID:    n.ParentID,
			Checksum:    checksum.Note(n),
			LastUpdated: n.LastUpdated,
		})
	}
	switch sortBy {
	case "", "updated":
	case "title":
		sort.SliceStable(items, func(i, j int) bool {
			return strings.ToLower(items[i].Title) < strings.ToLower(items[j].Title)
		})
	default:
		return nil, fmt.Errorf("noteservice: sort %q: %w", sortBy, apperr.ErrValidation)
	}
	return items, nil
}

// Tags returns the tag index.
func (s *Service) Tags() []string {
	return nonNilSlice(s.repo.Tags())
}

// Tree returns the parent/child forest of all notes.
func (s *Service) Tree() []models.Note {
	return nonNilSlice(projection.BuildTree(s.repo.Notes()))
}

// Events returns the calendar projection.
func (s *Service) Events() []models.CalendarEvent {
	return nonNilSlice(s.projector.Events(nil, s.repo.Notes()))
}

// Reminders returns the reminder list with completion flags.
func (s *Service) Reminders() []models.Reminder {
	return nonNilSlice(s.reminders.List())
}

// ToggleReminder flips a reminder's completion flag.
func (s *Service) ToggleReminder(id uuid.UUID) (models.Reminder, error) {
	return s.reminders.Toggle(id)
}

// Search fuzzy-matches notes by title and body.
func (s *Service) Search(query string) []models.Note {
	return nonNilSlice(projection.Search(s.repo.Notes(), query))
}

// Status reports the repository state.
func (s *Service) Status() repository.Status {
	return s.repo.Status()
}

// PublishCalendar pushes the current calendar projection.
func (s *Service) PublishCalendar(ctx context.Context) (calendarsync.Report, error) {
	if s.publisher == nil {
		return calendarsync.Report{}, fmt.Errorf("noteservice: calendar publishing: %w", apperr.ErrUnavailable)
	}
	return s.publisher.Publish(ctx, s.Events())
}

// checkParent rejects self-parenting and unknown parents.
func (s *Service) checkParent(id, parent uuid.UUID) error {
	if id == parent {
		return fmt.Errorf("noteservice: note cannot be its own parent: %w", apperr.ErrValidation)
	}
	if _, err := s.repo.Note(parent); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("noteservice: parent %s: %w", parent, apperr.ErrValidation)
		}
		return err
	}
	return nil
}

func (s *Service) detail(n models.Note) *NoteDetail {
	d := &NoteDetail{Note: n, Checksum: checksum.Note(n)}
	if evs := s.projector.Events(nil, []models.Note{n}); len(evs) == 1 {
		d.Event = &evs[0]
	}
	return d
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
