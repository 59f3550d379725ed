package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/timely/internal/domain"
	"example.com/timely/internal/persistence/memory"
)

var (
	_ domain.OwnerCache = Noop{}
	_ domain.OwnerCache = (*RedisOwnerCache)(nil)
)

func TestNoopAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c Noop

	require.NoError(t, c.Set(ctx, "p1", "alice"))
	owner, ok, err := c.Get(ctx, "p1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, owner)
	require.NoError(t, c.Invalidate(ctx, "p1"))
}

func TestServicesResolveOwnersThroughNoop(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	projects := domain.NewProjectService(store, domain.WithOwnerCache(Noop{}))
	activities := domain.NewActivityService(store, domain.WithOwnerCache(Noop{}))

	project, err := projects.Create(ctx, "alice", domain.CreateProjectInput{Name: "Acme"})
	require.NoError(t, err)

	logged, err := activities.Create(ctx, "bob", domain.CreateActivityInput{ProjectID: project.ID, About: "wiring", HoursWorked: 1.5})
	require.NoError(t, err)

	// the owner lookup falls through to the store on every call
	_, err = activities.Get(ctx, "alice", logged.ID)
	require.NoError(t, err)
	_, err = activities.Get(ctx, "bob", logged.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDialRejectsMalformedURL(t *testing.T) {
	_, err := Dial(context.Background(), "not-a-redis-url", 0)
	require.ErrorContains(t, err, "parse redis url")
}
