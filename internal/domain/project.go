// Package domain defines the business logic for the timesheet service.
package domain

import "time"

// Project groups activities under a single owner.
type Project struct {
	ID          string
	Name        string
	CreatedByID string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Activities is populated by read operations only. ListForViewer restricts
	// it to the viewer's own entries; GetWithAllActivities does not.
	Activities []Activity
	TotalHours float64
}

// Cursor models the project list pagination token.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Page bounds a project listing. The zero value returns every project.
type Page struct {
	Limit  int
	Cursor *Cursor
}

func sumHours(activities []Activity) float64 {
	var total float64
	for _, a := range activities {
		total += a.HoursWorked
	}
	return total
}
