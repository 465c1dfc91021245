package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notemirror/internal/checksum"
	"github.com/starford/notemirror/internal/models"
)

// Policy decides what happens to offline edits when the remote backend
// becomes reachable again.
type Policy string

const (
	// PolicyReplace discards the local view; the remote set wins wholesale.
	PolicyReplace Policy = "replace"
	// PolicyLastWriteWins pushes local-only notes and newer local edits
	// to the remote before the refetch.
	PolicyLastWriteWins Policy = "last-write-wins"
)

// ParsePolicy maps a config value onto a Policy; empty means PolicyReplace.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyReplace:
		return PolicyReplace, nil
	case PolicyLastWriteWins:
		return PolicyLastWriteWins, nil
	}
	return "", fmt.Errorf("repository: unknown reconcile policy %q", s)
}

type reconcileResult struct {
	pushed  int
	patched int
	kept    int
}

// reconcileLocked runs with writeMu held, after the swap to remote. Local
// notes missing remotely are copied there under new ids, relinked, and
// only then removed locally. A note whose copy or relink failed, or whose
// parent stays local, keeps its local row and its remote copy is rolled
// back, so the next reconnect retries it. Notes on both sides whose local
// copy is newer and differs are patched remotely. Every failure is
// collected and returned.
func (r *Repository) reconcileLocked(ctx context.Context) error {
	_, _, ectx := r.active()
	cctx, done := bind(ctx, ectx)
	defer done()

	var localNotes, remoteNotes []models.Note
	g, gctx := errgroup.WithContext(cctx)
	g.Go(func() error {
		var err error
		localNotes, err = r.local.FetchAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		remoteNotes, err = r.remote.FetchAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("repository: reconcile fetch: %w", err)
	}

	remoteByID := make(map[uuid.UUID]models.Note, len(remoteNotes))
	for _, n := range remoteNotes {
		remoteByID[n.ID] = n
	}
	localOnly := make(map[uuid.UUID]models.Note)
	for _, ln := range localNotes {
		if _, ok := remoteByID[ln.ID]; !ok {
			localOnly[ln.ID] = ln
		}
	}

	var (
		res   reconcileResult
		errs  []error
		moved = make(map[uuid.UUID]uuid.UUID)
		stay  = make(map[uuid.UUID]bool)
	)

	for _, ln := range localNotes {
		if _, ok := localOnly[ln.ID]; !ok {
			continue
		}
		created, err := r.remote.Insert(cctx, models.NewNote{
			Title:     ln.Title,
			Body:      ln.Body,
			Tag:       ln.Tag,
			CreatedBy: ln.CreatedBy,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("repository: reconcile push %s: %w", ln.ID, err))
			break
		}
		moved[ln.ID] = created.ID
	}
	for id := range localOnly {
		if _, ok := moved[id]; !ok {
			stay[id] = true
		}
	}

	// Parent links and colors of moved notes refer to the new ids.
	for _, ln := range localNotes {
		to, ok := moved[ln.ID]
		if !ok || !needsRelink(ln) {
			continue
		}
		p := models.PatchFrom(ln)
		p.ID = to
		p.ParentID = remap(ln.ParentID, moved)
		if err := r.remote.Update(cctx, p); err != nil {
			errs = append(errs, fmt.Errorf("repository: reconcile relink %s: %w", ln.ID, err))
			stay[ln.ID] = true
		}
	}

	// A note under a parent that stays local stays with it.
	for changed := true; changed; {
		changed = false
		for id := range moved {
			ln := localOnly[id]
			if !stay[id] && ln.ParentID != nil && stay[*ln.ParentID] {
				stay[id] = true
				changed = true
			}
		}
	}

	for _, ln := range localNotes {
		to, ok := moved[ln.ID]
		if !ok {
			continue
		}
		if stay[ln.ID] {
			if err := r.remote.Delete(cctx, to); err != nil {
				errs = append(errs, fmt.Errorf("repository: reconcile rollback %s: %w", to, err))
			}
			continue
		}
		if err := r.local.Delete(cctx, ln.ID); err != nil {
			errs = append(errs, fmt.Errorf("repository: reconcile local cleanup %s: %w", ln.ID, err))
			continue
		}
		res.pushed++
	}

	// Notes left behind point at their parent's new remote id.
	for id := range stay {
		res.kept++
		ln := localOnly[id]
		if ln.ParentID == nil || stay[*ln.ParentID] {
			continue
		}
		to, ok := moved[*ln.ParentID]
		if !ok {
			continue
		}
		if err := r.local.Update(cctx, models.NotePatch{ID: id, ParentID: &to}); err != nil {
			errs = append(errs, fmt.Errorf("repository: reconcile local relink %s: %w", id, err))
		}
	}

	for _, ln := range localNotes {
		rn, ok := remoteByID[ln.ID]
		if !ok || !ln.LastUpdated.After(rn.LastUpdated) || checksum.Note(ln) == checksum.Note(rn) {
			continue
		}
		p := models.PatchFrom(ln)
		p.ParentID = remap(ln.ParentID, moved)
		if ln.ParentID != nil && stay[*ln.ParentID] {
			p.ParentID = nil
		}
		if err := r.remote.Update(cctx, p); err != nil {
			errs = append(errs, fmt.Errorf("repository: reconcile patch %s: %w", ln.ID, err))
			continue
		}
		res.patched++
	}

	r.logger.Info("repository: reconciled offline edits",
		slog.Int("pushed", res.pushed), slog.Int("patched", res.patched), slog.Int("kept_local", res.kept))
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func needsRelink(n models.Note) bool {
	return n.ParentID != nil || (n.Color != nil && *n.Color != models.DefaultColor)
}

func remap(id *uuid.UUID, moved map[uuid.UUID]uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	if to, ok := moved[*id]; ok {
		return &to
	}
	v := *id
	return &v
}
