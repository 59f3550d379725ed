package api

import (
	"time"

	"example.com/timely/internal/domain"
)

// ProjectView is the wire representation of a project.
type ProjectView struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	CreatedByID string         `json:"createdById"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	TotalHours  float64        `json:"totalHours"`
	Activities  []ActivityView `json:"activities"`
}

// ActivityView is the wire representation of an activity.
type ActivityView struct {
	ID            string    `json:"id"`
	About         string    `json:"about"`
	HoursWorked   float64   `json:"hoursWorked"`
	Remark        *string   `json:"remark"`
	VerifiedBy    *string   `json:"verifiedBy"`
	PerformedByID string    `json:"performedById"`
	ProjectID     string    `json:"projectId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SummaryView is the dashboard aggregate returned by GET /v1/summary.
type SummaryView struct {
	Range                   string             `json:"range"`
	TotalProjects           int                `json:"totalProjects"`
	TotalActivities         int                `json:"totalActivities"`
	TotalHours              float64            `json:"totalHours"`
	AverageHoursPerActivity float64            `json:"averageHoursPerActivity"`
	Projects                []ProjectHoursView `json:"projects"`
}

// ProjectHoursView is one row of the summary breakdown.
type ProjectHoursView struct {
	ProjectID  string  `json:"projectId"`
	Name       string  `json:"name"`
	Hours      float64 `json:"hours"`
	Activities int     `json:"activities"`
	Percentage float64 `json:"percentage"`
}

func toProjectView(p domain.Project) ProjectView {
	return ProjectView{
		ID:          p.ID,
		Name:        p.Name,
		CreatedByID: p.CreatedByID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		TotalHours:  p.TotalHours,
		Activities:  toActivityViews(p.Activities),
	}
}

func toActivityViews(activities []domain.Activity) []ActivityView {
	out := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		out = append(out, toActivityView(a))
	}
	return out
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ID:            a.ID,
		About:         a.About,
		HoursWorked:   a.HoursWorked,
		Remark:        a.Remark,
		VerifiedBy:    a.VerifiedBy,
		PerformedByID: a.PerformedByID,
		ProjectID:     a.ProjectID,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toSummaryView(s domain.Summary) SummaryView {
	rows := make([]ProjectHoursView, 0, len(s.Projects))
	for _, p := range s.Projects {
		rows = append(rows, ProjectHoursView{
			ProjectID:  p.ProjectID,
			Name:       p.Name,
			Hours:      p.Hours,
			Activities: p.Activities,
			Percentage: p.Percentage,
		})
	}
	return SummaryView{
		Range:                   string(s.Range),
		TotalProjects:           s.TotalProjects,
		TotalActivities:         s.TotalActivities,
		TotalHours:              s.TotalHours,
		AverageHoursPerActivity: s.AverageHoursPerActivity,
		Projects:                rows,
	}
}
