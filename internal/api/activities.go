package api

import (
	"encoding/json"
	"net/http"

	"example.com/timely/internal/auth"
	"example.com/timely/internal/domain"
)

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	ProjectID   string  `json:"projectId"`
	About       string  `json:"about"`
	HoursWorked float64 `json:"hoursWorked"`
	Remark      *string `json:"remark"`
	VerifiedBy  *string `json:"verifiedBy"`
}

// UpdateActivityRequest is the payload for PATCH /v1/activities/{id}.
// remark and verifiedBy distinguish an explicit null from an absent key.
type UpdateActivityRequest struct {
	About       *string          `json:"about"`
	HoursWorked *float64         `json:"hoursWorked"`
	Remark      nullable[string] `json:"remark"`
	VerifiedBy  nullable[string] `json:"verifiedBy"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items []ActivityView `json:"items"`
}

// nullable records whether a key was present in the JSON body.
type nullable[T any] struct {
	domain.Patch[T]
}

func (n *nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	activity, err := h.activities.Create(r.Context(), callerID, domain.CreateActivityInput{
		ProjectID:   req.ProjectID,
		About:       req.About,
		HoursWorked: req.HoursWorked,
		Remark:      req.Remark,
		VerifiedBy:  req.VerifiedBy,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) listProjectActivities(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetRead)
	if !ok {
		return
	}

	activities, err := h.activities.ListByProject(r.Context(), callerID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: toActivityViews(activities)})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetRead)
	if !ok {
		return
	}

	activity, err := h.activities.Get(r.Context(), callerID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) updateActivity(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetWrite)
	if !ok {
		return
	}

	var req UpdateActivityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	activity, err := h.activities.Update(r.Context(), callerID, r.PathValue("id"), domain.UpdateActivityInput{
		About:       req.About,
		HoursWorked: req.HoursWorked,
		Remark:      req.Remark.Patch,
		VerifiedBy:  req.VerifiedBy.Patch,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetWrite)
	if !ok {
		return
	}

	activity, err := h.activities.Delete(r.Context(), callerID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}
