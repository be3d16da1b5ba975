package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// handleListGitRepositories implements GET /api/git-repositories: the
// saved remotes the backup job type's templates pick a repository_url
// and credential_name from.
func (s *Server) handleListGitRepositories(w http.ResponseWriter, r *http.Request) {
	out, err := s.gitRepos.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createGitRepositoryRequest struct {
	Name           string             `json:"name" validate:"required"`
	URL            string             `json:"url" validate:"required"`
	Branch         string             `json:"branch"`
	Category       string             `json:"category"`
	CredentialName string             `json:"credential_name"`
	AuthType       models.GitAuthType `json:"auth_type"`
	VerifySSL      bool               `json:"verify_ssl"`
	Path           string             `json:"path"`
	Active         bool               `json:"active"`
}

func (s *Server) handleCreateGitRepository(w http.ResponseWriter, r *http.Request) {
	var req createGitRepositoryRequest
	if err := decodeAndValidate(s, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Branch == "" {
		req.Branch = "main"
	}
	if req.AuthType == "" {
		req.AuthType = models.GitAuthNone
	}

	repo := &models.GitRepository{
		Name:           req.Name,
		URL:            req.URL,
		Branch:         req.Branch,
		Category:       req.Category,
		CredentialName: req.CredentialName,
		AuthType:       req.AuthType,
		VerifySSL:      req.VerifySSL,
		Path:           req.Path,
		Active:         req.Active,
	}
	out, err := s.gitRepos.Create(r.Context(), repo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleDeleteGitRepository(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "repoID"), 10, 64)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Validation, "invalid repository id"))
		return
	}
	if err := s.gitRepos.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
