package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"example.com/timely/internal/domain"
	"example.com/timely/internal/logging"
	"example.com/timely/internal/persistence/memory"
)

const (
	alice = "user-alice"
	bob   = "user-bob"
	carol = "user-carol"
)

// stepClock advances one second per call so ordering by CreatedAt is deterministic.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store      *memory.Store
	projects   *domain.ProjectService
	activities *domain.ActivityService
	clock      *stepClock
}

func newFixture(opts ...domain.Option) fixture {
	store := memory.NewStore()
	clock := newStepClock()
	base := []domain.Option{domain.WithClock(clock.Now), domain.WithLogger(logging.Discard())}
	opts = append(base, opts...)
	return fixture{
		store:      store,
		projects:   domain.NewProjectService(store, opts...),
		activities: domain.NewActivityService(store, opts...),
		clock:      clock,
	}
}

func (f fixture) project(ctx context.Context, owner, name string) *domain.Project {
	p, err := f.projects.Create(ctx, owner, domain.CreateProjectInput{Name: name})
	if err != nil {
		panic(fmt.Sprintf("create project: %v", err))
	}
	return p
}

func (f fixture) activity(ctx context.Context, performer, projectID string, hours float64) *domain.Activity {
	a, err := f.activities.Create(ctx, performer, domain.CreateActivityInput{ProjectID: projectID, About: "work", HoursWorked: hours})
	if err != nil {
		panic(fmt.Sprintf("create activity: %v", err))
	}
	return a
}

func eventTypes(events []domain.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

// failingStore wraps a Store and fails every call once armed.
type failingStore struct {
	domain.Store
	err error
}

func (f failingStore) ListProjects(ctx context.Context, viewerID string, page domain.Page) ([]domain.Project, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.Store.ListProjects(ctx, viewerID, page)
}

func (f failingStore) WithinTx(ctx context.Context, fn func(q domain.Queries) error) error {
	if f.err != nil {
		return f.err
	}
	return f.Store.WithinTx(ctx, fn)
}

var errDiskOnFire = errors.New("pq: disk on fire")

// countingCache is an in-memory OwnerCache that records lookups.
type countingCache struct {
	mu      sync.Mutex
	owners  map[string]string
	hits    int
	deletes int
}

func newCountingCache() *countingCache {
	return &countingCache{owners: map[string]string{}}
}

func (c *countingCache) Get(_ context.Context, projectID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	owner, ok := c.owners[projectID]
	if ok {
		c.hits++
	}
	return owner, ok, nil
}

func (c *countingCache) Set(_ context.Context, projectID, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners[projectID] = ownerID
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.owners, projectID)
	c.deletes++
	return nil
}
