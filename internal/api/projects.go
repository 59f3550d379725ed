package api

import (
	"net/http"
	"strconv"

	"example.com/timely/internal/auth"
	"example.com/timely/internal/domain"
	"example.com/timely/internal/persistence"
)

const maxPageSize = 100

// ProjectRequest is the payload for creating or renaming a project.
type ProjectRequest struct {
	Name string `json:"name"`
}

// ListProjectsResponse packages list results.
type ListProjectsResponse struct {
	Items      []ProjectView `json:"items"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

func (h *Handler) createProject(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetWrite)
	if !ok {
		return
	}

	var req ProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	project, err := h.projects.Create(r.Context(), callerID, domain.CreateProjectInput{Name: req.Name})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectView(*project))
}

func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetRead)
	if !ok {
		return
	}

	page := domain.Page{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		page.Limit = min(limit, maxPageSize)
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}
	page.Cursor = cursor

	projects, next, err := h.projects.ListForViewer(r.Context(), callerID, page)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	items := make([]ProjectView, 0, len(projects))
	for _, p := range projects {
		items = append(items, toProjectView(p))
	}
	writeJSON(w, http.StatusOK, ListProjectsResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetRead)
	if !ok {
		return
	}

	project, err := h.projects.GetWithAllActivities(r.Context(), callerID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(*project))
}

func (h *Handler) renameProject(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetWrite)
	if !ok {
		return
	}

	var req ProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	project, err := h.projects.Rename(r.Context(), callerID, r.PathValue("id"), req.Name)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(*project))
}

func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetWrite)
	if !ok {
		return
	}

	project, err := h.projects.Delete(r.Context(), callerID, r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectView(*project))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r, auth.ScopeTimesheetRead)
	if !ok {
		return
	}

	rng, err := domain.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	summary, err := h.projects.Summarize(r.Context(), callerID, rng)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryView(*summary))
}
