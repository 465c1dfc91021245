package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/backend"
	"github.com/starford/notemirror/internal/models"
)

var _ backend.Backend = (*FakeBackend)(nil)

// FakeBackend is an in-memory Backend that counts calls and can inject
// errors or block until released.
type FakeBackend struct {
	name string

	mu    sync.Mutex
	notes map[uuid.UUID]models.Note
	calls map[string]int
	errs  map[string]error
	gate  chan struct{}
	Now   func() time.Time
}

// NewFakeBackend creates an empty fake identified by name.
func NewFakeBackend(name string, seed ...models.Note) *FakeBackend {
	f := &FakeBackend{
		name:  name,
		notes: make(map[uuid.UUID]models.Note),
		calls: make(map[string]int),
		errs:  make(map[string]error),
		Now:   time.Now,
	}
	for _, n := range seed {
		f.notes[n.ID] = n
	}
	return f
}

// Name implements backend.Backend.
func (f *FakeBackend) Name() string { return f.name }

// Calls reports how many times op ("FetchAll", "Insert", ...) was invoked.
func (f *FakeBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// FailWith makes every subsequent call to op return err; nil clears it.
func (f *FakeBackend) FailWith(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Block makes calls wait until Release or their context ends.
func (f *FakeBackend) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks calls held by Block.
func (f *FakeBackend) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Put stores n directly, bypassing call accounting.
func (f *FakeBackend) Put(n models.Note) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[n.ID] = n
}

// Snapshot returns the stored notes sorted by id.
func (f *FakeBackend) Snapshot() []models.Note {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Note, 0, len(f.notes))
	for _, n := range f.notes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// enter records the call, waits on the gate, and returns any injected error.
func (f *FakeBackend) enter(ctx context.Context, op string) error {
	f.mu.Lock()
	f.calls[op]++
	gate := f.gate
	err := f.errs[op]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// FetchAll implements backend.Backend.
func (f *FakeBackend) FetchAll(ctx context.Context) ([]models.Note, error) {
	if err := f.enter(ctx, "FetchAll"); err != nil {
		return nil, err
	}
	return f.Snapshot(), nil
}

// FetchTags implements backend.Backend.
func (f *FakeBackend) FetchTags(ctx context.Context) ([]string, error) {
	if err := f.enter(ctx, "FetchTags"); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, n := range f.Snapshot() {
		t := n.TagValue()
		if strings.TrimSpace(t) == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// Insert implements backend.Backend.
func (f *FakeBackend) Insert(ctx context.Context, n models.NewNote) (models.Note, error) {
	if err := f.enter(ctx, "Insert"); err != nil {
		return models.Note{}, err
	}
	color := models.DefaultColor
	note := models.Note{
		ID:          uuid.New(),
		Title:       n.Title,
		Body:        n.Body,
		LastUpdated: f.Now().UTC(),
		CreatedBy:   n.CreatedBy,
		Color:       &color,
		Tag:         n.Tag,
	}
	f.Put(note)
	return note, nil
}

// Update implements backend.Backend.
func (f *FakeBackend) Update(ctx context.Context, p models.NotePatch) error {
	if err := f.enter(ctx, "Update"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.notes[p.ID]; ok {
		f.notes[p.ID] = p.Apply(n, f.Now().UTC())
	}
	return nil
}

// Delete implements backend.Backend.
func (f *FakeBackend) Delete(ctx context.Context, id uuid.UUID) error {
	if err := f.enter(ctx, "Delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.notes, id)
	return nil
}
