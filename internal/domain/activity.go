package domain

import "time"

// Activity is a block of hours a user logged against a project.
type Activity struct {
	ID            string
	About         string
	HoursWorked   float64
	Remark        *string
	VerifiedBy    *string
	PerformedByID string
	ProjectID     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Verified reports whether a verifier has signed off on the entry.
func (a Activity) Verified() bool {
	return a.VerifiedBy != nil
}

// Patch describes a partial update to a nullable field. The zero value leaves
// the field untouched; Set with a nil Value clears it.
type Patch[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns a Patch assigning v.
func SetTo[T any](v T) Patch[T] {
	return Patch[T]{Set: true, Value: &v}
}

// Clear returns a Patch that nulls the field.
func Clear[T any]() Patch[T] {
	return Patch[T]{Set: true}
}
