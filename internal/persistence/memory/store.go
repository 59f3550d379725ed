// Package memory provides an in-process domain.Store for local development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/timely/internal/domain"
)

// Store keeps projects, activities and recorded events in maps. Transactions
// run against a private copy that replaces the live state on commit.
type Store struct {
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   *state
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// WithinTx runs fn against a snapshot and publishes it only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(q domain.Queries) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	if err := fn(snapshot); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = snapshot
	s.mu.Unlock()
	return nil
}

// Events returns a copy of every event appended so far, oldest first.
func (s *Store) Events() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Event, len(s.state.events))
	copy(out, s.state.events)
	return out
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

func (s *Store) write(ctx context.Context, fn func(q domain.Queries) error) error {
	return s.WithinTx(ctx, fn)
}

// InsertProject implements domain.Queries.
func (s *Store) InsertProject(ctx context.Context, project domain.Project) error {
	return s.write(ctx, func(q domain.Queries) error { return q.InsertProject(ctx, project) })
}

// GetProject implements domain.Queries.
func (s *Store) GetProject(ctx context.Context, projectID string) (out *domain.Project, err error) {
	err = s.read(func(st *state) error {
		out, err = st.GetProject(ctx, projectID)
		return err
	})
	return out, err
}

// ListProjects implements domain.Queries.
func (s *Store) ListProjects(ctx context.Context, viewerID string, page domain.Page) (out []domain.Project, err error) {
	err = s.read(func(st *state) error {
		out, err = st.ListProjects(ctx, viewerID, page)
		return err
	})
	return out, err
}

// UpdateProjectName implements domain.Queries.
func (s *Store) UpdateProjectName(ctx context.Context, projectID, name string, updatedAt time.Time) error {
	return s.write(ctx, func(q domain.Queries) error { return q.UpdateProjectName(ctx, projectID, name, updatedAt) })
}

// DeleteProject implements domain.Queries.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	return s.write(ctx, func(q domain.Queries) error { return q.DeleteProject(ctx, projectID) })
}

// InsertActivity implements domain.Queries.
func (s *Store) InsertActivity(ctx context.Context, activity domain.Activity) error {
	return s.write(ctx, func(q domain.Queries) error { return q.InsertActivity(ctx, activity) })
}

// GetActivity implements domain.Queries.
func (s *Store) GetActivity(ctx context.Context, activityID string) (out *domain.Activity, err error) {
	err = s.read(func(st *state) error {
		out, err = st.GetActivity(ctx, activityID)
		return err
	})
	return out, err
}

// ListActivitiesByProject implements domain.Queries.
func (s *Store) ListActivitiesByProject(ctx context.Context, projectID string) (out []domain.Activity, err error) {
	err = s.read(func(st *state) error {
		out, err = st.ListActivitiesByProject(ctx, projectID)
		return err
	})
	return out, err
}

// HasActivityBy implements domain.Queries.
func (s *Store) HasActivityBy(ctx context.Context, projectID, userID string) (found bool, err error) {
	err = s.read(func(st *state) error {
		found, err = st.HasActivityBy(ctx, projectID, userID)
		return err
	})
	return found, err
}

// UpdateActivity implements domain.Queries.
func (s *Store) UpdateActivity(ctx context.Context, activity domain.Activity) error {
	return s.write(ctx, func(q domain.Queries) error { return q.UpdateActivity(ctx, activity) })
}

// DeleteActivity implements domain.Queries.
func (s *Store) DeleteActivity(ctx context.Context, activityID string) error {
	return s.write(ctx, func(q domain.Queries) error { return q.DeleteActivity(ctx, activityID) })
}

// DeleteActivitiesByProject implements domain.Queries.
func (s *Store) DeleteActivitiesByProject(ctx context.Context, projectID string) (removed int, err error) {
	err = s.write(ctx, func(q domain.Queries) error {
		removed, err = q.DeleteActivitiesByProject(ctx, projectID)
		return err
	})
	return removed, err
}

// AppendEvent implements domain.Queries.
func (s *Store) AppendEvent(ctx context.Context, event domain.Event) error {
	return s.write(ctx, func(q domain.Queries) error { return q.AppendEvent(ctx, event) })
}

// state is the unlocked data set. It implements domain.Queries for use inside WithinTx.
type state struct {
	projects   map[string]domain.Project
	activities map[string]domain.Activity
	events     []domain.Event
}

func newState() *state {
	return &state{
		projects:   make(map[string]domain.Project),
		activities: make(map[string]domain.Activity),
	}
}

func (st *state) clone() *state {
	out := &state{
		projects:   make(map[string]domain.Project, len(st.projects)),
		activities: make(map[string]domain.Activity, len(st.activities)),
		events:     append([]domain.Event(nil), st.events...),
	}
	for id, p := range st.projects {
		out.projects[id] = p
	}
	for id, a := range st.activities {
		out.activities[id] = a
	}
	return out
}

func (st *state) InsertProject(_ context.Context, project domain.Project) error {
	if _, exists := st.projects[project.ID]; exists {
		return fmt.Errorf("duplicate project id %s", project.ID)
	}
	project.Activities = nil
	project.TotalHours = 0
	st.projects[project.ID] = project
	return nil
}

func (st *state) GetProject(_ context.Context, projectID string) (*domain.Project, error) {
	p, ok := st.projects[projectID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (st *state) ListProjects(_ context.Context, viewerID string, page domain.Page) ([]domain.Project, error) {
	projects := make([]domain.Project, 0, len(st.projects))
	for _, p := range st.projects {
		if page.Cursor != nil && !older(p.CreatedAt, p.ID, page.Cursor.CreatedAt, page.Cursor.ID) {
			continue
		}
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return older(projects[j].CreatedAt, projects[j].ID, projects[i].CreatedAt, projects[i].ID)
	})
	if page.Limit > 0 && len(projects) > page.Limit {
		projects = projects[:page.Limit]
	}

	byProject := make(map[string][]domain.Activity, len(projects))
	for _, a := range st.activities {
		if a.PerformedByID == viewerID {
			byProject[a.ProjectID] = append(byProject[a.ProjectID], a)
		}
	}
	for i := range projects {
		activities := byProject[projects[i].ID]
		sortActivities(activities)
		if activities == nil {
			activities = []domain.Activity{}
		}
		projects[i].Activities = activities
	}
	return projects, nil
}

func (st *state) UpdateProjectName(_ context.Context, projectID, name string, updatedAt time.Time) error {
	p, ok := st.projects[projectID]
	if !ok {
		return domain.ErrProjectNotFound
	}
	p.Name = name
	p.UpdatedAt = updatedAt
	st.projects[projectID] = p
	return nil
}

func (st *state) DeleteProject(_ context.Context, projectID string) error {
	if _, ok := st.projects[projectID]; !ok {
		return domain.ErrProjectNotFound
	}
	for _, a := range st.activities {
		if a.ProjectID == projectID {
			return fmt.Errorf("project %s is still referenced by activity %s", projectID, a.ID)
		}
	}
	delete(st.projects, projectID)
	return nil
}

func (st *state) InsertActivity(_ context.Context, activity domain.Activity) error {
	if _, ok := st.projects[activity.ProjectID]; !ok {
		return domain.ErrProjectNotFound
	}
	if _, exists := st.activities[activity.ID]; exists {
		return fmt.Errorf("duplicate activity id %s", activity.ID)
	}
	st.activities[activity.ID] = activity
	return nil
}

func (st *state) GetActivity(_ context.Context, activityID string) (*domain.Activity, error) {
	a, ok := st.activities[activityID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (st *state) ListActivitiesByProject(_ context.Context, projectID string) ([]domain.Activity, error) {
	out := []domain.Activity{}
	for _, a := range st.activities {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	sortActivities(out)
	return out, nil
}

func (st *state) HasActivityBy(_ context.Context, projectID, userID string) (bool, error) {
	for _, a := range st.activities {
		if a.ProjectID == projectID && a.PerformedByID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (st *state) UpdateActivity(_ context.Context, activity domain.Activity) error {
	current, ok := st.activities[activity.ID]
	if !ok {
		return domain.ErrActivityNotFound
	}
	activity.PerformedByID = current.PerformedByID
	activity.ProjectID = current.ProjectID
	activity.CreatedAt = current.CreatedAt
	st.activities[activity.ID] = activity
	return nil
}

func (st *state) DeleteActivity(_ context.Context, activityID string) error {
	if _, ok := st.activities[activityID]; !ok {
		return domain.ErrActivityNotFound
	}
	delete(st.activities, activityID)
	return nil
}

func (st *state) DeleteActivitiesByProject(_ context.Context, projectID string) (int, error) {
	removed := 0
	for id, a := range st.activities {
		if a.ProjectID == projectID {
			delete(st.activities, id)
			removed++
		}
	}
	return removed, nil
}

func (st *state) AppendEvent(_ context.Context, event domain.Event) error {
	st.events = append(st.events, event)
	return nil
}

// older reports whether (t1, id1) precedes (t2, id2) in (created_at, id) order.
func older(t1 time.Time, id1 string, t2 time.Time, id2 string) bool {
	if !t1.Equal(t2) {
		return t1.Before(t2)
	}
	return id1 < id2
}

func sortActivities(activities []domain.Activity) {
	sort.Slice(activities, func(i, j int) bool {
		return older(activities[j].CreatedAt, activities[j].ID, activities[i].CreatedAt, activities[i].ID)
	})
}
