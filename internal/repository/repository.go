// Package repository keeps the in-memory mirror of notes in step with
// whichever backend is active and swaps backends on connectivity changes.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/notemirror/internal/apperr"
	"github.com/starford/notemirror/internal/backend"
	"github.com/starford/notemirror/internal/models"
)

// Mode selects the active backend.
type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

// ChangeKind names a mirror mutation.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "note.created"
	ChangeUpdated ChangeKind = "note.updated"
	ChangeDeleted ChangeKind = "note.deleted"
	ChangeSynced  ChangeKind = "mirror.synced"
	ChangeBackend ChangeKind = "backend.changed"
)

// Change describes one mutation delivered to subscribers.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	NoteID uuid.UUID  `json:"note_id,omitempty"`
	Mode   Mode       `json:"-"`
	Count  int        `json:"count,omitempty"`
}

// Status is a point-in-time summary of the repository.
type Status struct {
	Mode     string    `json:"mode"`
	Backend  string    `json:"backend"`
	Notes    int       `json:"notes"`
	Tags     int       `json:"tags"`
	LastSync time.Time `json:"last_sync"`
}

// Repository owns the mirror and the tag index. Writes and swaps are
// serialized by writeMu; mu guards state and is never held across I/O.
type Repository struct {
	local  backend.Backend
	remote backend.Backend
	policy Policy
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex

	mu          sync.RWMutex
	mode        Mode
	mirror      map[uuid.UUID]models.Note
	tags        []string
	lastSync    time.Time
	epoch       uint64
	epochCtx    context.Context
	epochCancel context.CancelFunc
	subs        []func(Change)
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithPolicy sets the reconciliation policy applied on reconnect.
func WithPolicy(p Policy) Option {
	return func(r *Repository) { r.policy = p }
}

// WithClock overrides the time source used for mirror patches.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New creates a repository that starts on the local backend with an empty mirror.
func New(local, remote backend.Backend, opts ...Option) *Repository {
	r := &Repository{
		local:  local,
		remote: remote,
		policy: PolicyReplace,
		logger: slog.Default(),
		now:    time.Now,
		mode:   ModeLocal,
		mirror: make(map[uuid.UUID]models.Note),
	}
	for _, o := range opts {
		o(r)
	}
	r.epochCtx, r.epochCancel = context.WithCancel(context.Background())
	return r
}

// Subscribe registers fn for change notifications. fn runs synchronously
// after the mutation is visible and must not block.
func (r *Repository) Subscribe(fn func(Change)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

func (r *Repository) notify(c Change) {
	r.mu.RLock()
	subs := append([]func(Change){}, r.subs...)
	r.mu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}

// Mode returns the active backend selection.
func (r *Repository) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Status summarises the repository state.
func (r *Repository) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Mode:     r.mode.String(),
		Backend:  r.backendFor(r.mode).Name(),
		Notes:    len(r.mirror),
		Tags:     len(r.tags),
		LastSync: r.lastSync,
	}
}

// Notes returns a snapshot of the mirror, newest first, ties by id.
func (r *Repository) Notes() []models.Note {
	r.mu.RLock()
	out := make([]models.Note, 0, len(r.mirror))
	for _, n := range r.mirror {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Note returns a single mirrored note.
func (r *Repository) Note(id uuid.UUID) (models.Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.mirror[id]
	if !ok {
		return models.Note{}, fmt.Errorf("repository: note %s: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

// Tags returns the current tag index.
func (r *Repository) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.tags...)
}

// FetchTags re-derives the tag index from the mirror and returns it.
func (r *Repository) FetchTags() []string {
	r.mu.Lock()
	r.tags = DeriveTags(mirrorValues(r.mirror))
	out := append([]string(nil), r.tags...)
	r.mu.Unlock()
	return out
}

// FetchNotes replaces the mirror with the active backend's full set.
func (r *Repository) FetchNotes(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.fetchLocked(ctx)
}

func (r *Repository) fetchLocked(ctx context.Context) error {
	be, ep, ectx := r.active()
	cctx, done := bind(ctx, ectx)
	defer done()

	notes, err := be.FetchAll(cctx)
	if err != nil {
		return r.failure("fetch", ep, err)
	}

	r.mu.Lock()
	if r.epoch != ep {
		r.mu.Unlock()
		return fmt.Errorf("repository: fetch: %w", apperr.ErrStaleBackend)
	}
	mirror := make(map[uuid.UUID]models.Note, len(notes))
	for _, n := range notes {
		mirror[n.ID] = n
	}
	r.mirror = mirror
	r.tags = DeriveTags(notes)
	r.lastSync = r.now().UTC()
	mode := r.mode
	r.mu.Unlock()

	r.logger.Info("repository: mirror synced",
		slog.String("backend", be.Name()), slog.Int("notes", len(notes)))
	r.notify(Change{Kind: ChangeSynced, Mode: mode, Count: len(notes)})
	return nil
}

// Insert stores a new note on the active backend and mirrors the result.
// A NewNote whose ID is already mirrored is rejected without a backend call.
func (r *Repository) Insert(ctx context.Context, n models.NewNote) (models.Note, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if n.ID != uuid.Nil {
		r.mu.RLock()
		_, dup := r.mirror[n.ID]
		r.mu.RUnlock()
		if dup {
			return models.Note{}, fmt.Errorf("repository: insert %s: %w", n.ID, apperr.ErrAlreadyExists)
		}
	}

	be, ep, ectx := r.active()
	cctx, done := bind(ctx, ectx)
	defer done()

	note, err := be.Insert(cctx, n)
	if err != nil {
		return models.Note{}, r.failure("insert", ep, err)
	}

	r.mu.Lock()
	if r.epoch != ep {
		r.mu.Unlock()
		return models.Note{}, committedStale("insert", note.ID, be)
	}
	r.mirror[note.ID] = note
	r.tags = DeriveTags(mirrorValues(r.mirror))
	r.mu.Unlock()

	r.logger.Debug("repository: note inserted", slog.String("id", note.ID.String()), slog.String("backend", be.Name()))
	r.notify(Change{Kind: ChangeCreated, NoteID: note.ID})
	return note, nil
}

// Update applies a partial update on the active backend and then to the
// mirrored copy, if any.
func (r *Repository) Update(ctx context.Context, p models.NotePatch) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.updateLocked(ctx, p)
}

// UpdateIf applies p only when check accepts the mirrored note. check runs
// under the writer lock, so no other write can land between it and the
// backend call. A note missing from the mirror yields ErrNotFound.
func (r *Repository) UpdateIf(ctx context.Context, p models.NotePatch, check func(models.Note) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur, err := r.Note(p.ID)
	if err != nil {
		return err
	}
	if err := check(cur); err != nil {
		return err
	}
	return r.updateLocked(ctx, p)
}

func (r *Repository) updateLocked(ctx context.Context, p models.NotePatch) error {
	be, ep, ectx := r.active()
	cctx, done := bind(ctx, ectx)
	defer done()

	if err := be.Update(cctx, p); err != nil {
		return r.failure("update", ep, err)
	}

	r.mu.Lock()
	if r.epoch != ep {
		r.mu.Unlock()
		return committedStale("update", p.ID, be)
	}
	n, ok := r.mirror[p.ID]
	if ok {
		r.mirror[p.ID] = p.Apply(n, r.now().UTC())
		r.tags = DeriveTags(mirrorValues(r.mirror))
	}
	r.mu.Unlock()

	if ok {
		r.notify(Change{Kind: ChangeUpdated, NoteID: p.ID})
	}
	return nil
}

// UpdateNote writes every field of n.
func (r *Repository) UpdateNote(ctx context.Context, n models.Note) error {
	return r.Update(ctx, models.PatchFrom(n))
}

// Delete removes a note from the active backend and the mirror. An
// unknown id is not an error.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	be, ep, ectx := r.active()
	cctx, done := bind(ctx, ectx)
	defer done()

	if err := be.Delete(cctx, id); err != nil {
		return r.failure("delete", ep, err)
	}

	r.mu.Lock()
	if r.epoch != ep {
		r.mu.Unlock()
		return committedStale("delete", id, be)
	}
	_, ok := r.mirror[id]
	if ok {
		delete(r.mirror, id)
		r.tags = DeriveTags(mirrorValues(r.mirror))
	}
	r.mu.Unlock()

	if ok {
		r.notify(Change{Kind: ChangeDeleted, NoteID: id})
	}
	return nil
}

// SetConnected selects the remote backend when connected and the local
// one otherwise, then refetches the mirror. Calls in flight against the
// previous backend are cancelled. A failed reconcile is returned together
// with the refetch result; the refetch still runs.
func (r *Repository) SetConnected(ctx context.Context, connected bool) error {
	target := ModeLocal
	if connected {
		target = ModeRemote
	}

	r.mu.Lock()
	changed := r.mode != target
	if changed {
		r.epochCancel()
		r.epoch++
		r.epochCtx, r.epochCancel = context.WithCancel(context.Background())
		r.mode = target
	}
	r.mu.Unlock()

	if changed {
		r.logger.Info("repository: backend changed", slog.String("mode", target.String()))
		r.notify(Change{Kind: ChangeBackend, Mode: target})
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var reconcileErr error
	if changed && connected && r.policy == PolicyLastWriteWins {
		if reconcileErr = r.reconcileLocked(ctx); reconcileErr != nil {
			r.logger.Warn("repository: reconcile failed", slog.String("error", reconcileErr.Error()))
		}
	}
	return errors.Join(reconcileErr, r.fetchLocked(ctx))
}

// Run applies connectivity transitions one at a time until ctx is
// cancelled or the channel closes.
func (r *Repository) Run(ctx context.Context, transitions <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case connected, ok := <-transitions:
			if !ok {
				return nil
			}
			if err := r.SetConnected(ctx, connected); err != nil && ctx.Err() == nil {
				r.logger.Warn("repository: transition failed",
					slog.Bool("online", connected), slog.String("error", err.Error()))
			}
		}
	}
}

// active snapshots the backend selected by the current epoch.
func (r *Repository) active() (backend.Backend, uint64, context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.backendFor(r.mode), r.epoch, r.epochCtx
}

func (r *Repository) backendFor(m Mode) backend.Backend {
	if m == ModeRemote {
		return r.remote
	}
	return r.local
}

// failure wraps a backend error, reporting ErrStaleBackend when the epoch
// moved while the call was in flight.
func (r *Repository) failure(op string, ep uint64, err error) error {
	r.mu.RLock()
	stale := r.epoch != ep
	r.mu.RUnlock()
	if stale {
		return fmt.Errorf("repository: %s: %w: %w", op, apperr.ErrStaleBackend, err)
	}
	return fmt.Errorf("repository: %s: %w", op, err)
}

// committedStale reports a write that succeeded on be after the epoch it
// started under was superseded. The mirror was not updated.
func committedStale(op string, id uuid.UUID, be backend.Backend) error {
	return fmt.Errorf("repository: %s %s on %s: %w: %w", op, id, be.Name(), apperr.ErrStaleBackend, apperr.ErrCommitted)
}

// bind derives a context cancelled by either the caller or the epoch.
func bind(ctx, epoch context.Context) (context.Context, func()) {
	cctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(epoch, cancel)
	return cctx, func() {
		stop()
		cancel()
	}
}

func mirrorValues(m map[uuid.UUID]models.Note) []models.Note {
	out := make([]models.Note, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	return out
}
