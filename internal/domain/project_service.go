package domain

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"example.com/timely/internal/events"
)

// ProjectService orchestrates project workflows.
type ProjectService struct {
	core
}

// NewProjectService constructs a ProjectService.
func NewProjectService(store Store, opts ...Option) *ProjectService {
	return &ProjectService{core: newCore(store, opts)}
}

// Create validates the name and stores a project owned by callerID.
func (s *ProjectService) Create(ctx context.Context, callerID string, input CreateProjectInput) (*Project, error) {
	var created *Project
	err := s.observe(ctx, "project.create", callerID, nil, func(ctx context.Context) error {
		input = input.normalize()
		if err := validateStruct(input); err != nil {
			return err
		}

		now := s.clock()
		project := Project{
			ID:          s.newID(),
			Name:        input.Name,
			CreatedByID: callerID,
			CreatedAt:   now,
			UpdatedAt:   now,
			Activities:  []Activity{},
		}

		err := s.store.WithinTx(ctx, func(q Queries) error {
			if err := q.InsertProject(ctx, project); err != nil {
				return storeErr("insert project", err)
			}
			return s.appendProjectEvent(ctx, q, callerID, project.ID, events.TypeProjectCreated, events.ProjectCreated{
				ProjectID:   project.ID,
				Name:        project.Name,
				CreatedByID: project.CreatedByID,
				CreatedAt:   project.CreatedAt,
			})
		})
		if err != nil {
			return storeErr("create project", err)
		}
		if err := s.owners.Set(ctx, project.ID, project.CreatedByID); err != nil {
			s.logger.WarnContext(ctx, "owner cache write failed", slog.String("project_id", project.ID), slog.String("error", err.Error()))
		}
		created = &project
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListForViewer returns projects newest first, each annotated with only the
// viewer's own activities. A zero Page returns every project; with a positive
// limit the returned cursor points at the next page.
func (s *ProjectService) ListForViewer(ctx context.Context, callerID string, page Page) ([]Project, *Cursor, error) {
	var (
		projects []Project
		next     *Cursor
	)
	err := s.observe(ctx, "project.list", callerID, nil, func(ctx context.Context) error {
		if page.Limit < 0 {
			verr := &ValidationError{}
			verr.add("limit", "limit must not be negative")
			return verr
		}

		out, err := s.store.ListProjects(ctx, callerID, page)
		if err != nil {
			return storeErr("list projects", err)
		}
		for i := range out {
			out[i].TotalHours = sumHours(out[i].Activities)
		}
		projects = out

		if page.Limit > 0 && len(out) == page.Limit {
			last := out[len(out)-1]
			next = &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return projects, next, nil
}

// GetWithAllActivities returns one project with every activity logged against
// it, regardless of who performed them.
func (s *ProjectService) GetWithAllActivities(ctx context.Context, callerID, projectID string) (*Project, error) {
	var found *Project
	err := s.observe(ctx, "project.get", callerID, projectAttrs(projectID), func(ctx context.Context) error {
		project, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			return storeErr("get project", err)
		}
		if project == nil {
			return ErrProjectNotFound
		}

		activities, err := s.store.ListActivitiesByProject(ctx, projectID)
		if err != nil {
			return storeErr("list activities", err)
		}
		project.Activities = activities
		project.TotalHours = sumHours(activities)
		found = project
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Rename changes a project's name. Only the owner may rename.
func (s *ProjectService) Rename(ctx context.Context, callerID, projectID, name string) (*Project, error) {
	var renamed *Project
	err := s.observe(ctx, "project.rename", callerID, projectAttrs(projectID), func(ctx context.Context) error {
		input := CreateProjectInput{Name: name}.normalize()
		if err := validateProjectName(input.Name); err != nil {
			return err
		}

		return storeErr("rename project", s.store.WithinTx(ctx, func(q Queries) error {
			project, err := q.GetProject(ctx, projectID)
			if err != nil {
				return storeErr("get project", err)
			}
			if project == nil {
				return ErrProjectNotFound
			}
			if err := requireProjectOwner(callerID, project.CreatedByID); err != nil {
				return err
			}

			previous := project.Name
			project.Name = input.Name
			project.UpdatedAt = s.clock()
			if err := q.UpdateProjectName(ctx, project.ID, project.Name, project.UpdatedAt); err != nil {
				return storeErr("update project", err)
			}
			if err := s.appendProjectEvent(ctx, q, callerID, project.ID, events.TypeProjectRenamed, events.ProjectRenamed{
				ProjectID:    project.ID,
				Name:         project.Name,
				PreviousName: previous,
				RenamedByID:  callerID,
				OccurredAt:   project.UpdatedAt,
			}); err != nil {
				return err
			}
			renamed = project
			return nil
		}))
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// Delete removes a project and all of its activities in one transaction.
// Only the owner may delete.
func (s *ProjectService) Delete(ctx context.Context, callerID, projectID string) (*Project, error) {
	var deleted *Project
	err := s.observe(ctx, "project.delete", callerID, projectAttrs(projectID), func(ctx context.Context) error {
		err := s.store.WithinTx(ctx, func(q Queries) error {
			project, err := q.GetProject(ctx, projectID)
			if err != nil {
				return storeErr("get project", err)
			}
			if project == nil {
				return ErrProjectNotFound
			}
			if err := requireProjectOwner(callerID, project.CreatedByID); err != nil {
				return err
			}

			removed, err := q.DeleteActivitiesByProject(ctx, projectID)
			if err != nil {
				return storeErr("delete project activities", err)
			}
			if err := q.DeleteProject(ctx, projectID); err != nil {
				return storeErr("delete project", err)
			}
			if err := s.appendProjectEvent(ctx, q, callerID, projectID, events.TypeProjectDeleted, events.ProjectDeleted{
				ProjectID:         projectID,
				DeletedByID:       callerID,
				ActivitiesRemoved: removed,
				OccurredAt:        s.clock(),
			}); err != nil {
				return err
			}
			project.Activities = []Activity{}
			deleted = project
			return nil
		})
		if err != nil {
			return storeErr("delete project", err)
		}
		if err := s.owners.Invalidate(ctx, projectID); err != nil {
			s.logger.WarnContext(ctx, "owner cache invalidation failed", slog.String("project_id", projectID), slog.String("error", err.Error()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Summarize aggregates the caller's own activities over the given range.
func (s *ProjectService) Summarize(ctx context.Context, callerID string, rng TimeRange) (*Summary, error) {
	var summary *Summary
	err := s.observe(ctx, "project.summary", callerID, []attribute.KeyValue{attribute.String("range", string(rng))}, func(ctx context.Context) error {
		parsed, err := ParseTimeRange(string(rng))
		if err != nil {
			return err
		}
		projects, err := s.store.ListProjects(ctx, callerID, Page{})
		if err != nil {
			return storeErr("list projects", err)
		}
		result := Summarize(projects, parsed, s.clock())
		summary = &result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *ProjectService) appendProjectEvent(ctx context.Context, q Queries, actorID, projectID, eventType string, payload any) error {
	err := q.AppendEvent(ctx, Event{
		ID:            s.newID(),
		Type:          eventType,
		AggregateType: events.AggregateProject,
		AggregateID:   projectID,
		PartitionKey:  projectID,
		ActorID:       actorID,
		OccurredAt:    s.clock(),
		Payload:       payload,
	})
	return storeErr("append event", err)
}

func projectAttrs(projectID string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("project.id", projectID)}
}
