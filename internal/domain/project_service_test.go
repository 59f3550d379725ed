package domain_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"example.com/timely/internal/domain"
	"example.com/timely/internal/events"
	"example.com/timely/internal/observability"
)

func TestCreateProjectValidatesName(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	created, err := f.projects.Create(ctx, alice, domain.CreateProjectInput{Name: "  Acme  "})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Acme", created.Name)
	require.Equal(t, alice, created.CreatedByID)
	require.Equal(t, created.CreatedAt, created.UpdatedAt)

	for _, name := range []string{"", "   "} {
		_, err = f.projects.Create(ctx, alice, domain.CreateProjectInput{Name: name})
		require.ErrorIs(t, err, domain.ErrValidation)

		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Fields, "name")
	}

	require.Equal(t, []string{events.TypeProjectCreated}, eventTypes(f.store.Events()))
}

func TestListForViewerOnlyIncludesViewersActivities(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	acme := f.project(ctx, alice, "Acme")
	f.activity(ctx, alice, acme.ID, 2.5)
	f.activity(ctx, bob, acme.ID, 4)
	f.activity(ctx, bob, acme.ID, 1)

	for _, viewer := range []string{alice, bob, carol} {
		projects, next, err := f.projects.ListForViewer(ctx, viewer, domain.Page{})
		require.NoError(t, err)
		require.Nil(t, next)
		require.Len(t, projects, 1)
		for _, a := range projects[0].Activities {
			require.Equal(t, viewer, a.PerformedByID)
		}
	}

	projects, _, err := f.projects.ListForViewer(ctx, bob, domain.Page{})
	require.NoError(t, err)
	require.Len(t, projects[0].Activities, 2)
	require.InDelta(t, 5.0, projects[0].TotalHours, 1e-9)
	require.True(t, projects[0].Activities[0].CreatedAt.After(projects[0].Activities[1].CreatedAt), "newest first")
}

func TestListForViewerPaginates(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	for _, name := range []string{"one", "two", "three"} {
		f.project(ctx, alice, name)
	}

	page1, next, err := f.projects.ListForViewer(ctx, alice, domain.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.Equal(t, "three", page1[0].Name)
	require.NotNil(t, next)

	page2, next, err := f.projects.ListForViewer(ctx, alice, domain.Page{Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Len(t, page2, 1)
	require.Equal(t, "one", page2[0].Name)
	require.Nil(t, next)

	_, _, err = f.projects.ListForViewer(ctx, alice, domain.Page{Limit: -1})
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetWithAllActivitiesIsUnfiltered(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	acme := f.project(ctx, alice, "Acme")
	f.activity(ctx, alice, acme.ID, 2)
	f.activity(ctx, bob, acme.ID, 3)

	got, err := f.projects.GetWithAllActivities(ctx, carol, acme.ID)
	require.NoError(t, err)
	require.Len(t, got.Activities, 2)
	require.InDelta(t, 5.0, got.TotalHours, 1e-9)

	_, err = f.projects.GetWithAllActivities(ctx, alice, "missing")
	require.ErrorIs(t, err, domain.ErrProjectNotFound)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRenameRequiresOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	acme := f.project(ctx, alice, "Acme")

	_, err := f.projects.Rename(ctx, bob, acme.ID, "Hijacked")
	require.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.projects.GetWithAllActivities(ctx, alice, acme.ID)
	require.NoError(t, err)
	require.Equal(t, "Acme", got.Name)

	renamed, err := f.projects.Rename(ctx, alice, acme.ID, "Acme Corp")
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", renamed.Name)
	require.True(t, renamed.UpdatedAt.After(renamed.CreatedAt))

	_, err = f.projects.Rename(ctx, alice, acme.ID, "")
	require.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.projects.Rename(ctx, alice, "missing", "x")
	require.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestDeleteRemovesProjectAndActivities(t *testing.T) {
	ctx := context.Background()
	cache := newCountingCache()
	f := newFixture(domain.WithOwnerCache(cache))

	acme := f.project(ctx, alice, "Acme")
	f.activity(ctx, alice, acme.ID, 1)
	f.activity(ctx, bob, acme.ID, 2)

	_, err := f.projects.Delete(ctx, bob, acme.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.projects.GetWithAllActivities(ctx, alice, acme.ID)
	require.NoError(t, err)

	deleted, err := f.projects.Delete(ctx, alice, acme.ID)
	require.NoError(t, err)
	require.Equal(t, acme.ID, deleted.ID)
	require.Equal(t, 1, cache.deletes)

	_, err = f.activities.ListByProject(ctx, alice, acme.ID)
	require.ErrorIs(t, err, domain.ErrProjectNotFound)

	remaining, err := f.store.ListActivitiesByProject(ctx, acme.ID)
	require.NoError(t, err)
	require.Empty(t, remaining)

	evts := f.store.Events()
	last := evts[len(evts)-1]
	require.Equal(t, events.TypeProjectDeleted, last.Type)
	require.Equal(t, 2, last.Payload.(events.ProjectDeleted).ActivitiesRemoved)

	_, err = f.projects.Delete(ctx, alice, acme.ID)
	require.ErrorIs(t, err, domain.ErrProjectNotFound)
}

func TestStorageFailuresAreOpaque(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	broken := domain.NewProjectService(failingStore{Store: f.store, err: errDiskOnFire})

	before := testutil.ToFloat64(observability.OperationCount("project.list", observability.OutcomeError))
	_, _, err := broken.ListForViewer(ctx, alice, domain.Page{})
	require.ErrorIs(t, err, domain.ErrStorage)
	require.NotContains(t, err.Error(), "disk on fire")
	require.InDelta(t, before+1, testutil.ToFloat64(observability.OperationCount("project.list", observability.OutcomeError)), 1e-9)

	_, err = broken.Create(ctx, alice, domain.CreateProjectInput{Name: "Acme"})
	require.ErrorIs(t, err, domain.ErrStorage)

	_, err = broken.Create(ctx, alice, domain.CreateProjectInput{Name: ""})
	require.ErrorIs(t, err, domain.ErrValidation, "validation runs before storage access")
}

func TestSummarizeOwnActivities(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	acme := f.project(ctx, alice, "Acme")
	globex := f.project(ctx, bob, "Globex")
	f.activity(ctx, alice, acme.ID, 3)
	f.activity(ctx, alice, globex.ID, 1)
	f.activity(ctx, bob, globex.ID, 8)

	summary, err := f.projects.Summarize(ctx, alice, domain.RangeAll)
	require.NoError(t, err)
	require.Equal(t, 2, summary.TotalProjects)
	require.Equal(t, 2, summary.TotalActivities)
	require.InDelta(t, 4.0, summary.TotalHours, 1e-9)
	require.InDelta(t, 2.0, summary.AverageHoursPerActivity, 1e-9)
	require.Equal(t, "Acme", summary.Projects[0].Name)
	require.InDelta(t, 75.0, summary.Projects[0].Percentage, 1e-9)

	_, err = f.projects.Summarize(ctx, alice, domain.TimeRange("decade"))
	require.ErrorIs(t, err, domain.ErrValidation)
}
