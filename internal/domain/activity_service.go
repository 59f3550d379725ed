package domain

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"example.com/timely/internal/events"
	"example.com/timely/internal/observability"
)

// ActivityService orchestrates activity workflows.
type ActivityService struct {
	core
}

// NewActivityService constructs an ActivityService.
func NewActivityService(store Store, opts ...Option) *ActivityService {
	return &ActivityService{core: newCore(store, opts)}
}

// Create logs hours for callerID against an existing project. Any
// authenticated user may log their own hours; a verifier supplied up front is
// subject to the verification policy.
func (s *ActivityService) Create(ctx context.Context, callerID string, input CreateActivityInput) (*Activity, error) {
	var created *Activity
	err := s.observe(ctx, "activity.create", callerID, projectAttrs(input.ProjectID), func(ctx context.Context) error {
		input = input.normalize()
		if err := validateStruct(input); err != nil {
			return err
		}

		now := s.clock()
		activity := Activity{
			ID:            s.newID(),
			About:         input.About,
			HoursWorked:   input.HoursWorked,
			Remark:        input.Remark,
			VerifiedBy:    input.VerifiedBy,
			PerformedByID: callerID,
			ProjectID:     input.ProjectID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err := s.store.WithinTx(ctx, func(q Queries) error {
			ownerID, err := s.projectOwner(ctx, q, activity.ProjectID)
			if err != nil {
				return err
			}
			if activity.Verified() {
				if err := authorizeVerification(ctx, q, s.policy, callerID, ownerID, activity); err != nil {
					return err
				}
			}

			if err := q.InsertActivity(ctx, activity); err != nil {
				return storeErr("insert activity", err)
			}
			if err := s.appendActivityEvent(ctx, q, callerID, activity, events.TypeActivityLogged, events.ActivityLogged{
				ActivityID:    activity.ID,
				ProjectID:     activity.ProjectID,
				PerformedByID: activity.PerformedByID,
				About:         activity.About,
				HoursWorked:   activity.HoursWorked,
				Remark:        activity.Remark,
				VerifiedBy:    activity.VerifiedBy,
				CreatedAt:     activity.CreatedAt,
			}); err != nil {
				return err
			}
			if activity.Verified() {
				return s.appendVerified(ctx, q, callerID, activity)
			}
			return nil
		})
		if err != nil {
			return storeErr("create activity", err)
		}

		observability.RecordHoursLogged(activity.HoursWorked)
		observability.RecordActivityPersisted(activity.UpdatedAt)
		created = &activity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListByProject returns every activity of a project, newest first. Only the
// project owner may list them.
func (s *ActivityService) ListByProject(ctx context.Context, callerID, projectID string) ([]Activity, error) {
	var activities []Activity
	err := s.observe(ctx, "activity.list", callerID, projectAttrs(projectID), func(ctx context.Context) error {
		ownerID, err := s.projectOwner(ctx, s.store, projectID)
		if err != nil {
			return err
		}
		if err := requireProjectOwner(callerID, ownerID); err != nil {
			return err
		}

		out, err := s.store.ListActivitiesByProject(ctx, projectID)
		if err != nil {
			return storeErr("list activities", err)
		}
		activities = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activities, nil
}

// Get returns one activity. Only the owner of its project may read it.
func (s *ActivityService) Get(ctx context.Context, callerID, activityID string) (*Activity, error) {
	var found *Activity
	err := s.observe(ctx, "activity.get", callerID, activityAttrs(activityID), func(ctx context.Context) error {
		activity, ownerID, err := s.load(ctx, s.store, activityID)
		if err != nil {
			return err
		}
		if err := requireProjectOwner(callerID, ownerID); err != nil {
			return err
		}
		found = activity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Update applies a partial update. Editing about, hoursWorked or remark
// requires project ownership; setting verifiedBy is governed by the
// verification policy and is terminal once set.
func (s *ActivityService) Update(ctx context.Context, callerID, activityID string, input UpdateActivityInput) (*Activity, error) {
	var updated *Activity
	err := s.observe(ctx, "activity.update", callerID, activityAttrs(activityID), func(ctx context.Context) error {
		input = input.normalize()
		if err := validateUpdate(input); err != nil {
			return err
		}

		return storeErr("update activity", s.store.WithinTx(ctx, func(q Queries) error {
			activity, ownerID, err := s.load(ctx, q, activityID)
			if err != nil {
				return err
			}

			isOwner := requireProjectOwner(callerID, ownerID) == nil
			if !isOwner {
				if input.editsFields() || !input.VerifiedBy.Set {
					return ErrForbidden
				}
				if err := authorizeVerification(ctx, q, s.policy, callerID, ownerID, *activity); err != nil {
					return err
				}
			}

			verifying, err := verificationChange(activity.VerifiedBy, input.VerifiedBy)
			if err != nil {
				return err
			}
			editing := applyEdits(activity, input)
			if verifying {
				activity.VerifiedBy = input.VerifiedBy.Value
			}
			if !editing && !verifying {
				updated = activity
				return nil
			}

			activity.UpdatedAt = s.clock()
			if err := q.UpdateActivity(ctx, *activity); err != nil {
				return storeErr("update activity", err)
			}
			if editing {
				if err := s.appendActivityEvent(ctx, q, callerID, *activity, events.TypeActivityUpdated, events.ActivityUpdated{
					ActivityID:  activity.ID,
					ProjectID:   activity.ProjectID,
					UpdatedByID: callerID,
					About:       activity.About,
					HoursWorked: activity.HoursWorked,
					Remark:      activity.Remark,
					OccurredAt:  activity.UpdatedAt,
				}); err != nil {
					return err
				}
			}
			if verifying {
				if err := s.appendVerified(ctx, q, callerID, *activity); err != nil {
					return err
				}
			}
			observability.RecordActivityPersisted(activity.UpdatedAt)
			updated = activity
			return nil
		}))
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes one activity. Only the owner of its project may delete it.
func (s *ActivityService) Delete(ctx context.Context, callerID, activityID string) (*Activity, error) {
	var deleted *Activity
	err := s.observe(ctx, "activity.delete", callerID, activityAttrs(activityID), func(ctx context.Context) error {
		return storeErr("delete activity", s.store.WithinTx(ctx, func(q Queries) error {
			activity, ownerID, err := s.load(ctx, q, activityID)
			if err != nil {
				return err
			}
			if err := requireProjectOwner(callerID, ownerID); err != nil {
				return err
			}
			if err := q.DeleteActivity(ctx, activityID); err != nil {
				return storeErr("delete activity", err)
			}
			if err := s.appendActivityEvent(ctx, q, callerID, *activity, events.TypeActivityDeleted, events.ActivityDeleted{
				ActivityID:  activity.ID,
				ProjectID:   activity.ProjectID,
				DeletedByID: callerID,
				HoursWorked: activity.HoursWorked,
				OccurredAt:  s.clock(),
			}); err != nil {
				return err
			}
			deleted = activity
			return nil
		}))
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// load fetches an activity together with the owner of its project.
func (s *ActivityService) load(ctx context.Context, q Queries, activityID string) (*Activity, string, error) {
	activity, err := q.GetActivity(ctx, activityID)
	if err != nil {
		return nil, "", storeErr("get activity", err)
	}
	if activity == nil {
		return nil, "", ErrActivityNotFound
	}
	ownerID, err := s.projectOwner(ctx, q, activity.ProjectID)
	if err != nil {
		return nil, "", err
	}
	return activity, ownerID, nil
}

// applyEdits copies the owner-editable fields onto activity and reports whether anything changed.
func applyEdits(activity *Activity, input UpdateActivityInput) bool {
	changed := false
	if input.About != nil && *input.About != activity.About {
		activity.About = *input.About
		changed = true
	}
	if input.HoursWorked != nil && *input.HoursWorked != activity.HoursWorked {
		activity.HoursWorked = *input.HoursWorked
		changed = true
	}
	if input.Remark.Set && !equalPtr(activity.Remark, input.Remark.Value) {
		activity.Remark = input.Remark.Value
		changed = true
	}
	return changed
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *ActivityService) appendVerified(ctx context.Context, q Queries, callerID string, activity Activity) error {
	return s.appendActivityEvent(ctx, q, callerID, activity, events.TypeActivityVerified, events.ActivityVerified{
		ActivityID:       activity.ID,
		ProjectID:        activity.ProjectID,
		VerifiedBy:       *activity.VerifiedBy,
		VerifiedByUserID: callerID,
		OccurredAt:       activity.UpdatedAt,
	})
}

func (s *ActivityService) appendActivityEvent(ctx context.Context, q Queries, actorID string, activity Activity, eventType string, payload any) error {
	err := q.AppendEvent(ctx, Event{
		ID:            s.newID(),
		Type:          eventType,
		AggregateType: events.AggregateActivity,
		AggregateID:   activity.ID,
		PartitionKey:  activity.ProjectID,
		ActorID:       actorID,
		OccurredAt:    s.clock(),
		Payload:       payload,
	})
	return storeErr("append event", err)
}

func activityAttrs(activityID string) []attribute.KeyValue {
	return []attribute.KeyValue{attribute.String("activity.id", activityID)}
}
