package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/audit"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// logsResponse wraps the page of audit entries with the total count the
// frontend needs for pagination controls.
type logsResponse struct {
	Entries []models.AuditLog `json:"entries"`
	Total   int               `json:"total"`
	Page    int               `json:"page"`
}

// handleQueryLogs implements GET /api/logs, accepting the same filter set
// as audit.Filter via query parameters.
func (s *Server) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{
		Severity:  models.Severity(q.Get("severity")),
		EventType: q.Get("event_type"),
		Username:  q.Get("username"),
		Search:    q.Get("search"),
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		f.PageSize = v
	}
	if v := q.Get("start_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.StartDate = &t
		}
	}
	if v := q.Get("end_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.EndDate = &t
		}
	}

	entries, total, err := s.audit.Query(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if f.Page < 1 {
		f.Page = 1
	}
	writeJSON(w, http.StatusOK, logsResponse{Entries: entries, Total: total, Page: f.Page})
}
