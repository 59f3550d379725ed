// Package events defines the payloads published for project and activity changes.
package events

import "time"

// Event types recorded in the outbox.
const (
	TypeProjectCreated   = "project.created"
	TypeProjectRenamed   = "project.renamed"
	TypeProjectDeleted   = "project.deleted"
	TypeActivityLogged   = "activity.logged"
	TypeActivityUpdated  = "activity.updated"
	TypeActivityVerified = "activity.verified"
	TypeActivityDeleted  = "activity.deleted"
)

// Aggregate types stored alongside outbox rows.
const (
	AggregateProject  = "project"
	AggregateActivity = "activity"
)

// ProjectCreated is emitted when a user creates a project.
type ProjectCreated struct {
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	CreatedByID string    `json:"created_by_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProjectRenamed is emitted when the owner changes a project's name.
type ProjectRenamed struct {
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	PreviousName string    `json:"previous_name"`
	RenamedByID  string    `json:"renamed_by_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ProjectDeleted is emitted after a project and its activities are removed.
type ProjectDeleted struct {
	ProjectID         string    `json:"project_id"`
	DeletedByID       string    `json:"deleted_by_id"`
	ActivitiesRemoved int       `json:"activities_removed"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// ActivityLogged is emitted when hours are logged against a project.
type ActivityLogged struct {
	ActivityID    string    `json:"activity_id"`
	ProjectID     string    `json:"project_id"`
	PerformedByID string    `json:"performed_by_id"`
	About         string    `json:"about"`
	HoursWorked   float64   `json:"hours_worked"`
	Remark        *string   `json:"remark,omitempty"`
	VerifiedBy    *string   `json:"verified_by,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ActivityUpdated carries the editable fields after an owner edit.
type ActivityUpdated struct {
	ActivityID  string    `json:"activity_id"`
	ProjectID   string    `json:"project_id"`
	UpdatedByID string    `json:"updated_by_id"`
	About       string    `json:"about"`
	HoursWorked float64   `json:"hours_worked"`
	Remark      *string   `json:"remark,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ActivityVerified is emitted once per activity, when a verifier signs off.
type ActivityVerified struct {
	ActivityID       string    `json:"activity_id"`
	ProjectID        string    `json:"project_id"`
	VerifiedBy       string    `json:"verified_by"`
	VerifiedByUserID string    `json:"verified_by_user_id"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// ActivityDeleted is emitted when a single activity is removed.
type ActivityDeleted struct {
	ActivityID  string    `json:"activity_id"`
	ProjectID   string    `json:"project_id"`
	DeletedByID string    `json:"deleted_by_id"`
	HoursWorked float64   `json:"hours_worked"`
	OccurredAt  time.Time `json:"occurred_at"`
}
