package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/jobs"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/repository"
)

func newTestServerWithJobs(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")

	templates := repository.NewTemplateRepository(db)
	inventories := repository.NewInventoryRepository(db)
	runs := repository.NewRunRepository(db)
	results := repository.NewDeviceResultRepository(db)
	dispatch := jobs.NewDispatcher(templates, inventories, runs, results, nil, nil, nil)

	return &Server{
		templates: templates,
		dispatch:  dispatch,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}, mock
}

func withRunIDParam(req *http.Request, runID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("runID", runID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleListTemplatesUsesCallerUsername(t *testing.T) {
	s, mock := newTestServerWithJobs(t)
	mock.ExpectQuery("SELECT \\* FROM job_templates WHERE is_global = true OR created_by = \\$1").
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "sync-all"))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/templates", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKeyClaims, &claims{Username: "alice"}))
	rr := httptest.NewRecorder()

	s.handleListTemplates(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sync-all")
}

func TestHandleCreateTemplateStampsCreatedBy(t *testing.T) {
	s, mock := newTestServerWithJobs(t)
	created := time.Date(2026, 7, 31, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO job_templates").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), created))

	body := bytes.NewBufferString(`{"name":"sync-all","job_type":"sync_devices","inventory_source":"all"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/templates", body)
	req = req.WithContext(context.WithValue(req.Context(), ctxKeyClaims, &claims{Username: "alice"}))
	rr := httptest.NewRecorder()

	s.handleCreateTemplate(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"created_by":"alice"`)
}

func TestHandleGetRunReturnsNotFound(t *testing.T) {
	s, mock := newTestServerWithJobs(t)
	mock.ExpectQuery("SELECT \\* FROM job_runs WHERE id=\\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := withRunIDParam(httptest.NewRequest(http.MethodGet, "/api/jobs/runs/missing", nil), "missing")
	rr := httptest.NewRecorder()

	s.handleGetRun(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleCancelRunSucceeds(t *testing.T) {
	s, mock := newTestServerWithJobs(t)
	mock.ExpectExec("UPDATE job_runs SET cancelled = true WHERE id=\\$1").
		WithArgs("run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := withRunIDParam(httptest.NewRequest(http.MethodPost, "/api/jobs/runs/run-1/cancel", nil), "run-1")
	rr := httptest.NewRecorder()

	s.handleCancelRun(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHandleListRunsParsesQueryParams(t *testing.T) {
	s, mock := newTestServerWithJobs(t)
	mock.ExpectQuery("SELECT \\* FROM job_runs WHERE template_id=\\$1 ORDER BY started_at DESC LIMIT \\$2").
		WithArgs(int64(3), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id"}).AddRow("run-1", int64(3)))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/runs?template_id=3&limit=10", nil)
	rr := httptest.NewRecorder()

	s.handleListRuns(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
