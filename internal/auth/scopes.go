package auth

// OAuth scopes understood by the timesheet API.
const (
	ScopeTimesheetWrite = "timesheet:write"
	ScopeTimesheetRead  = "timesheet:read"
)
