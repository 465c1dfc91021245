package noteservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notemirror/internal/annotation"
	"github.com/starford/notemirror/internal/apperr"
	"github.com/starford/notemirror/internal/calendarsync"
	"github.com/starford/notemirror/internal/models"
	"github.com/starford/notemirror/internal/projection"
	"github.com/starford/notemirror/internal/repository"
	"github.com/starford/notemirror/internal/testutil"
)

type stubPublisher struct {
	got []models.CalendarEvent
	err error
}

func (p *stubPublisher) Publish(_ context.Context, events []models.CalendarEvent) (calendarsync.Report, error) {
	p.got = events
	return calendarsync.Report{Created: len(events)}, p.err
}

func strp(s string) *string { return &s }

func testService(t *testing.T, pub Publisher) *Service {
	t.Helper()
	repo := repository.New(testutil.TestLocal(t), testutil.NewFakeBackend("remote"))
	require.NoError(t, repo.FetchNotes(context.Background()))
	proj := projection.Projector{Extractor: &annotation.Extractor{Keywords: annotation.NewTagger(), Location: time.UTC}}
	return NewService(repo, proj, pub, "user-1")
}

func TestCreateAndGetNote(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	d, err := svc.CreateNote(ctx, CreateInput{Title: "Groceries", Body: "Buy milk \\@05-03-2026", Tag: strp("home")})
	require.NoError(t, err)
	assert.Equal(t, "user-1", d.CreatedBy)
	assert.NotEmpty(t, d.Checksum)
	require.NotNil(t, d.Event)
	assert.Equal(t, "Buy milk", d.Event.Title)

	got, err := svc.GetNote(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)

	_, err = svc.GetNote(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreateWithParentAndColor(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()

	parent, err := svc.CreateNote(ctx, CreateInput{Title: "Projects", Body: ""})
	require.NoError(t, err)
	child, err := svc.CreateNote(ctx, CreateInput{Title: "Garden", Body: "", ParentID: &parent.ID, Color: strp("#FF0000")})
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parent.ID, *child.ParentID)
	assert.Equal(t, "#FF0000", child.ColorValue())

	tree := svc.Tree()
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, child.ID, tree[0].Children[0].ID)

	missing := uuid.New()
	_, err = svc.CreateNote(ctx, CreateInput{Title: "orphan", ParentID: &missing})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Len(t, svc.Tree(), 1)
}

func TestUpdateNoteIfMatch(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()
	d, err := svc.CreateNote(ctx, CreateInput{Title: "a", Body: "b"})
	require.NoError(t, err)

	_, err = svc.UpdateNote(ctx, models.NotePatch{ID: d.ID, Title: strp("x")}, "stale")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	up, err := svc.UpdateNote(ctx, models.NotePatch{ID: d.ID, Title: strp("x")}, d.Checksum)
	require.NoError(t, err)
	assert.Equal(t, "x", up.Title)
	assert.NotEqual(t, d.Checksum, up.Checksum)

	_, err = svc.UpdateNote(ctx, models.NotePatch{ID: d.ID, ParentID: &d.ID}, "")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.UpdateNote(ctx, models.NotePatch{ID: uuid.New(), Title: strp("x")}, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateNoteIfMatchConcurrent(t *testing.T) {
	id := uuid.New()
	local := testutil.NewFakeBackend("local", models.Note{ID: id, Title: "a", Body: "b", CreatedBy: "u"})
	repo := repository.New(local, testutil.NewFakeBackend("remote"))
	ctx := context.Background()
	require.NoError(t, repo.FetchNotes(ctx))
	svc := NewService(repo, projection.Projector{}, nil, "user-1")

	cur, err := svc.GetNote(ctx, id)
	require.NoError(t, err)

	local.Block()
	errs := make(chan error, 2)
	for _, title := range []string{"first", "second"} {
		go func() {
			_, err := svc.UpdateNote(ctx, models.NotePatch{ID: id, Title: strp(title)}, cur.Checksum)
			errs <- err
		}()
	}
	testutil.Eventually(t, time.Second, 5*time.Millisecond, func() bool {
		return local.Calls("Update") >= 1
	}, "first update never reached the backend")
	local.Release()

	var conflicts, applied int
	for range 2 {
		err := <-errs
		switch {
		case err == nil:
			applied++
		case errors.Is(err, apperr.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, local.Calls("Update"))
}

func TestListNotesFilterAndSort(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()
	for _, in := range []CreateInput{
		{Title: "beta", Tag: strp("work")},
		{Title: "Alpha", Tag: strp(" work ")},
		{Title: "gamma"},
	} {
		_, err := svc.CreateNote(ctx, in)
		require.NoError(t, err)
	}

	items, err := svc.ListNotes(ctx, "work", "title")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Alpha", items[0].Title)
	assert.Equal(t, "beta", items[1].Title)

	items, err = svc.ListNotes(ctx, repository.NoneTag, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "gamma", items[0].Title)

	items, err = svc.ListNotes(ctx, " work\n", "")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	_, err = svc.ListNotes(ctx, "", "bogus")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, []string{repository.NoneTag, "work"}, svc.Tags())
}

func TestRemindersFollowRepository(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()
	assert.Empty(t, svc.Reminders())

	d, err := svc.CreateNote(ctx, CreateInput{Title: "t", Body: "Call dentist \\@01-04-2026"})
	require.NoError(t, err)
	require.Len(t, svc.Reminders(), 1)

	r, err := svc.ToggleReminder(d.ID)
	require.NoError(t, err)
	assert.True(t, r.Completed)

	_, err = svc.UpdateNote(ctx, models.NotePatch{ID: d.ID, Title: strp("renamed")}, "")
	require.NoError(t, err)
	assert.True(t, svc.Reminders()[0].Completed, "completion survives re-derivation")

	require.NoError(t, svc.DeleteNote(ctx, d.ID))
	assert.Empty(t, svc.Reminders())
	require.NoError(t, svc.DeleteNote(ctx, uuid.New()))
}

func TestSearchAndStatus(t *testing.T) {
	svc := testService(t, nil)
	ctx := context.Background()
	_, err := svc.CreateNote(ctx, CreateInput{Title: "Dentist", Body: "book appointment"})
	require.NoError(t, err)

	assert.Len(t, svc.Search("dentist"), 1)
	assert.Empty(t, svc.Search("zzzz"))

	st := svc.Status()
	assert.Equal(t, "local", st.Mode)
	assert.Equal(t, 1, st.Notes)
}

func TestPublishCalendar(t *testing.T) {
	ctx := context.Background()
	_, err := testService(t, nil).PublishCalendar(ctx)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	pub := &stubPublisher{}
	svc := testService(t, pub)
	_, err = svc.CreateNote(ctx, CreateInput{Title: "t", Body: "Buy milk \\@05-03-2026"})
	require.NoError(t, err)

	rep, err := svc.PublishCalendar(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
	require.Len(t, pub.got, 1)

	pub.err = errors.New("quota")
	_, err = svc.PublishCalendar(ctx)
	assert.Error(t, err)
}
