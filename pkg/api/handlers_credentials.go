package api

import (
	"net/http"
	"time"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/vault"
)

// createCredentialRequest is the POST /api/credentials body. Exactly one
// of Password/SSHKey is expected to be set depending on Kind; the store
// encrypts whichever fields are non-empty.
type createCredentialRequest struct {
	Name       string                `json:"name" validate:"required"`
	Source     string                `json:"source" validate:"required"`
	Username   string                `json:"username"`
	Kind       models.CredentialKind `json:"kind" validate:"required"`
	Password   string                `json:"password"`
	SSHKey     string                `json:"ssh_key"`
	Passphrase string                `json:"passphrase"`
	ValidUntil *time.Time            `json:"valid_until"`
}

func (s *Server) handleCreateCredential(w http.ResponseWriter, r *http.Request) {
	var req createCredentialRequest
	if err := decodeAndValidate(s, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, _ := claimsFromContext(r.Context())

	cred, err := s.credentials.Create(r.Context(), req.Name, req.Source, req.Username, req.Kind, vault.PlainSecrets{
		Password:   req.Password,
		SSHKey:     req.SSHKey,
		Passphrase: req.Passphrase,
	}, req.ValidUntil, c.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

// handleRotateCredentials implements POST /api/credentials/rotate. This
// deployment keeps a single active vault key and configures no successor
// key, so the handler rotates nothing and always answers with a Validation
// error.
func (s *Server) handleRotateCredentials(w http.ResponseWriter, r *http.Request) {
	writeError(w, apperrors.New(apperrors.Validation, "credential rotation requires configuring a successor vault key; not configured for this deployment"))
}
