package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// handleListTemplates implements GET /api/jobs/templates: every template
// visible to the caller, global plus privately owned.
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	c, _ := claimsFromContext(r.Context())
	out, err := s.templates.List(r.Context(), c.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// createTemplateRequest is the POST /api/jobs/templates body.
type createTemplateRequest struct {
	Name                     string              `json:"name" validate:"required"`
	JobType                  models.JobType      `json:"job_type" validate:"required"`
	InventorySource          models.InventorySource `json:"inventory_source" validate:"required"`
	InventoryName            string              `json:"inventory_name"`
	Config                   json.RawMessage     `json:"config"`
	IsGlobal                 bool                `json:"is_global"`
	TimestampCustomField     string              `json:"timestamp_custom_field"`
	ActivateChangesAfterSync bool                `json:"activate_changes_after_sync"`
	NonOverlapping           bool                `json:"non_overlapping"`
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeAndValidate(s, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, _ := claimsFromContext(r.Context())

	tmpl := &models.JobTemplate{
		Name:                     req.Name,
		JobType:                  req.JobType,
		InventorySource:          req.InventorySource,
		InventoryName:            req.InventoryName,
		Config:                   req.Config,
		IsGlobal:                 req.IsGlobal,
		CreatedBy:                c.Username,
		TimestampCustomField:     req.TimestampCustomField,
		ActivateChangesAfterSync: req.ActivateChangesAfterSync,
		NonOverlapping:           req.NonOverlapping,
	}
	out, err := s.templates.Create(r.Context(), tmpl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// handleStartRun implements POST /api/jobs/templates/{templateID}/start:
// resolves the template's device set and fans the run out over the
// dispatcher, returning the created JobRun immediately.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	templateID, err := strconv.ParseInt(chi.URLParam(r, "templateID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "invalid template id"))
		return
	}
	c, _ := claimsFromContext(r.Context())

	run, err := s.dispatch.StartRun(r.Context(), templateID, c.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, run)
}

// handleListRuns implements GET /api/jobs/runs, optionally filtered by
// ?template_id= and ?limit=.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var templateID *int64
	if raw := r.URL.Query().Get("template_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, apperrors.New(apperrors.Validation, "invalid template_id"))
			return
		}
		templateID = &id
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	out, err := s.dispatch.ListRuns(r.Context(), templateID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.dispatch.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleGetRunResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.dispatch.RunResults(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleCancelRun implements POST /api/jobs/runs/{runID}/cancel: sets the
// cooperative cancellation flag checked between device tasks, so an
// already-dispatched device still completes before the run closes out.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatch.Cancel(r.Context(), chi.URLParam(r, "runID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
