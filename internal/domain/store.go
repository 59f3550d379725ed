package domain

import (
	"context"
	"time"
)

// Event is a change record appended to the outbox in the same transaction as the mutation.
type Event struct {
	ID            string
	Type          string
	AggregateType string
	AggregateID   string
	PartitionKey  string
	ActorID       string
	OccurredAt    time.Time
	Payload       any
}

// Queries captures the persistence operations available inside and outside a transaction.
//
// Get methods return (nil, nil) when the row does not exist. Update and delete
// methods return ErrProjectNotFound or ErrActivityNotFound when nothing matched.
type Queries interface {
	InsertProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, projectID string) (*Project, error)
	// ListProjects returns projects newest first, each carrying only the
	// activities performed by viewerID.
	ListProjects(ctx context.Context, viewerID string, page Page) ([]Project, error)
	UpdateProjectName(ctx context.Context, projectID, name string, updatedAt time.Time) error
	DeleteProject(ctx context.Context, projectID string) error

	InsertActivity(ctx context.Context, activity Activity) error
	GetActivity(ctx context.Context, activityID string) (*Activity, error)
	ListActivitiesByProject(ctx context.Context, projectID string) ([]Activity, error)
	HasActivityBy(ctx context.Context, projectID, userID string) (bool, error)
	UpdateActivity(ctx context.Context, activity Activity) error
	DeleteActivity(ctx context.Context, activityID string) error
	DeleteActivitiesByProject(ctx context.Context, projectID string) (int, error)

	AppendEvent(ctx context.Context, event Event) error
}

// Store is a Queries implementation that can run a function atomically.
type Store interface {
	Queries
	WithinTx(ctx context.Context, fn func(q Queries) error) error
}

// OwnerCache remembers which user owns a project so authorization checks can
// skip a store round trip.
type OwnerCache interface {
	Get(ctx context.Context, projectID string) (string, bool, error)
	Set(ctx context.Context, projectID, ownerID string) error
	Invalidate(ctx context.Context, projectID string) error
}

type noopOwnerCache struct{}

func (noopOwnerCache) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (noopOwnerCache) Set(context.Context, string, string) error { return nil }
func (noopOwnerCache) Invalidate(context.Context, string) error { return nil }
