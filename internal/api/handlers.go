// Package api exposes HTTP handlers for the timesheet service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"example.com/timely/internal/auth"
	"example.com/timely/internal/domain"
)

const maxBodyBytes = 1 << 20

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	projects   *domain.ProjectService
	activities *domain.ActivityService
	logger     *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(projects *domain.ProjectService, activities *domain.ActivityService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{projects: projects, activities: activities, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", healthz)

	mux.HandleFunc("POST /v1/projects", h.createProject)
	mux.HandleFunc("GET /v1/projects", h.listProjects)
	mux.HandleFunc("GET /v1/projects/{id}", h.getProject)
	mux.HandleFunc("PATCH /v1/projects/{id}", h.renameProject)
	mux.HandleFunc("PUT /v1/projects/{id}", h.renameProject)
	mux.HandleFunc("DELETE /v1/projects/{id}", h.deleteProject)
	mux.HandleFunc("GET /v1/projects/{id}/activities", h.listProjectActivities)

	mux.HandleFunc("POST /v1/activities", h.createActivity)
	mux.HandleFunc("GET /v1/activities/{id}", h.getActivity)
	mux.HandleFunc("PATCH /v1/activities/{id}", h.updateActivity)
	mux.HandleFunc("DELETE /v1/activities/{id}", h.deleteActivity)

	mux.HandleFunc("GET /v1/summary", h.summary)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// caller returns the authenticated user when the token carries scope.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request, scope string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return "", false
	}
	return claims.Subject, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		detail := "unable to parse body"
		if errors.Is(err, io.EOF) {
			detail = "request body is required"
		}
		writeError(w, http.StatusBadRequest, "invalid_request", detail)
		return false
	}
	return true
}

// writeDomainError maps service errors onto distinct status codes. Storage
// failures never leak their cause.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Type: "validation_failed", Detail: verr.Error(), Fields: verr.Fields})
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "you are not allowed to perform this operation")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "activity is already verified")
	default:
		if !errors.Is(err, domain.ErrStorage) {
			h.logger.ErrorContext(r.Context(), "unmapped service error", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

type errorBody struct {
	Type   string            `json:"type"`
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorBody{Type: code, Detail: detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
