package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/timely/internal/domain"
)

var base = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func TestWithinTxDiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.InsertProject(ctx, domain.Project{ID: "p1", Name: "Acme", CreatedByID: "a", CreatedAt: base}))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(q domain.Queries) error {
		require.NoError(t, q.InsertActivity(ctx, domain.Activity{ID: "x1", ProjectID: "p1", PerformedByID: "a", HoursWorked: 1, CreatedAt: base}))
		require.NoError(t, q.AppendEvent(ctx, domain.Event{ID: "e1", Type: "activity.logged"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetActivity(ctx, "x1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Empty(t, store.Events())
}

func TestActivitiesRequireExistingProject(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.InsertActivity(ctx, domain.Activity{ID: "x1", ProjectID: "missing", HoursWorked: 1})
	require.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestDeleteProjectRefusesWhileActivitiesRemain(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.InsertProject(ctx, domain.Project{ID: "p1", CreatedAt: base}))
	require.NoError(t, store.InsertActivity(ctx, domain.Activity{ID: "x1", ProjectID: "p1", HoursWorked: 1}))

	require.Error(t, store.DeleteProject(ctx, "p1"))

	removed, err := store.DeleteActivitiesByProject(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.NoError(t, store.DeleteProject(ctx, "p1"))
	require.ErrorIs(t, store.DeleteProject(ctx, "p1"), domain.ErrProjectNotFound)
}

func TestListProjectsFiltersByViewerAndPaginates(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, store.InsertProject(ctx, domain.Project{ID: id, Name: id, CreatedByID: "a", CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	require.NoError(t, store.InsertActivity(ctx, domain.Activity{ID: "x1", ProjectID: "p1", PerformedByID: "a", HoursWorked: 1, CreatedAt: base}))
	require.NoError(t, store.InsertActivity(ctx, domain.Activity{ID: "x2", ProjectID: "p1", PerformedByID: "b", HoursWorked: 2, CreatedAt: base}))

	all, err := store.ListProjects(ctx, "b", domain.Page{})
	require.NoError(t, err)
	require.Equal(t, []string{"p3", "p2", "p1"}, projectIDs(all))
	require.Len(t, all[2].Activities, 1)
	require.Equal(t, "x2", all[2].Activities[0].ID)
	require.NotNil(t, all[0].Activities)
	require.Empty(t, all[0].Activities)

	first, err := store.ListProjects(ctx, "b", domain.Page{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"p3", "p2"}, projectIDs(first))

	last := first[len(first)-1]
	rest, err := store.ListProjects(ctx, "b", domain.Page{Limit: 2, Cursor: &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}})
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, projectIDs(rest))
}

func TestUpdateActivityKeepsImmutableFields(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.InsertProject(ctx, domain.Project{ID: "p1", CreatedAt: base}))
	require.NoError(t, store.InsertActivity(ctx, domain.Activity{ID: "x1", ProjectID: "p1", PerformedByID: "a", HoursWorked: 1, CreatedAt: base}))

	require.NoError(t, store.UpdateActivity(ctx, domain.Activity{ID: "x1", About: "edited", HoursWorked: 3, PerformedByID: "z", ProjectID: "other"}))
	got, err := store.GetActivity(ctx, "x1")
	require.NoError(t, err)
	require.Equal(t, "edited", got.About)
	require.Equal(t, "a", got.PerformedByID)
	require.Equal(t, "p1", got.ProjectID)

	require.ErrorIs(t, store.UpdateActivity(ctx, domain.Activity{ID: "nope"}), domain.ErrActivityNotFound)
}

func projectIDs(projects []domain.Project) []string {
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.ID)
	}
	return out
}
