package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/repository"
)

func newTestServerWithGitRepos(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	return &Server{
		gitRepos: repository.NewGitRepositoryRepository(db),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, mock
}

func TestHandleCreateGitRepositoryDefaultsBranchAndAuthType(t *testing.T) {
	s, mock := newTestServerWithGitRepos(t)
	mock.ExpectQuery("INSERT INTO git_repositories").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	body := bytes.NewBufferString(`{"name":"configs","url":"https://git.example.com/configs.git"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/git-repositories", body)
	rr := httptest.NewRecorder()

	s.handleCreateGitRepository(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"branch":"main"`)
	assert.Contains(t, rr.Body.String(), `"auth_type":"none"`)
}

func TestHandleCreateGitRepositoryRejectsMissingFields(t *testing.T) {
	s, _ := newTestServerWithGitRepos(t)

	body := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest(http.MethodPost, "/api/git-repositories", body)
	rr := httptest.NewRecorder()

	s.handleCreateGitRepository(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleDeleteGitRepositoryRejectsNonNumericID(t *testing.T) {
	s, _ := newTestServerWithGitRepos(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/git-repositories/abc", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("repoID", "abc")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	s.handleDeleteGitRepository(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleDeleteGitRepositorySucceeds(t *testing.T) {
	s, mock := newTestServerWithGitRepos(t)
	mock.ExpectExec("DELETE FROM git_repositories WHERE id=\\$1").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/api/git-repositories/5", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("repoID", "5")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rr := httptest.NewRecorder()

	s.handleDeleteGitRepository(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}
