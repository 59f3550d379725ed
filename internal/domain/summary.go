package domain

import (
	"sort"
	"strings"
	"time"
)

// TimeRange limits a summary to recently logged activities.
type TimeRange string

const (
	RangeAll   TimeRange = "all"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
)

// ParseTimeRange accepts all, week or month; empty means all.
func ParseTimeRange(raw string) (TimeRange, error) {
	switch r := TimeRange(strings.ToLower(strings.TrimSpace(raw))); r {
	case "":
		return RangeAll, nil
	case RangeAll, RangeWeek, RangeMonth:
		return r, nil
	default:
		verr := &ValidationError{}
		verr.add("range", "range must be one of: all, week, month")
		return "", verr
	}
}

// Since returns the earliest CreatedAt included by the range, or the zero time for all.
func (r TimeRange) Since(now time.Time) time.Time {
	switch r {
	case RangeWeek:
		return now.AddDate(0, 0, -7)
	case RangeMonth:
		return now.AddDate(0, 0, -30)
	default:
		return time.Time{}
	}
}

// Summary is the dashboard aggregate over one user's activities.
type Summary struct {
	Range                   TimeRange
	TotalProjects           int
	TotalActivities         int
	TotalHours              float64
	AverageHoursPerActivity float64
	Projects                []ProjectHours
}

// ProjectHours is one row of the per-project breakdown.
type ProjectHours struct {
	ProjectID  string
	Name       string
	Hours      float64
	Activities int
	Percentage float64
}

// Summarize aggregates the activities attached to projects. TotalProjects
// counts every project, filtered or not; the breakdown is sorted by hours
// descending with ties broken by name.
func Summarize(projects []Project, rng TimeRange, now time.Time) Summary {
	since := rng.Since(now)
	summary := Summary{
		Range:         rng,
		TotalProjects: len(projects),
		Projects:      make([]ProjectHours, 0, len(projects)),
	}

	for _, p := range projects {
		row := ProjectHours{ProjectID: p.ID, Name: p.Name}
		for _, a := range p.Activities {
			if !since.IsZero() && a.CreatedAt.Before(since) {
				continue
			}
			row.Hours += a.HoursWorked
			row.Activities++
		}
		summary.TotalHours += row.Hours
		summary.TotalActivities += row.Activities
		summary.Projects = append(summary.Projects, row)
	}

	if summary.TotalActivities > 0 {
		summary.AverageHoursPerActivity = summary.TotalHours / float64(summary.TotalActivities)
	}
	for i := range summary.Projects {
		if summary.TotalHours > 0 {
			summary.Projects[i].Percentage = summary.Projects[i].Hours / summary.TotalHours * 100
		}
	}

	sort.SliceStable(summary.Projects, func(i, j int) bool {
		a, b := summary.Projects[i], summary.Projects[j]
		if a.Hours != b.Hours {
			return a.Hours > b.Hours
		}
		return a.Name < b.Name
	})
	return summary
}
