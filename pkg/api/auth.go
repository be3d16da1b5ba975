package api

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/config"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/rbac"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/repository"
)

// claims embeds the registered JWT fields plus the resolved permission set,
// so the hot request path never re-queries the grant graph per request.
type claims struct {
	jwt.RegisteredClaims
	UserID   int64        `json:"user_id"`
	Username string       `json:"username"`
	Grants   []rbac.Grant `json:"permissions"`
}

// tokenPair is the response body for login/refresh.
type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// tokenIssuer mints and verifies access/refresh tokens. A refresh token is
// simply an access-shaped token with a longer expiry and a distinct
// subject claim ("refresh") checked at /auth/refresh, avoiding a second
// token store.
type tokenIssuer struct {
	cfg *config.AuthConfig
}

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

func newTokenIssuer(cfg *config.AuthConfig) *tokenIssuer {
	return &tokenIssuer{cfg: cfg}
}

func (t *tokenIssuer) issuePair(u *models.User, grants []rbac.Grant) (tokenPair, error) {
	now := time.Now()

	access, err := t.sign(u, grants, tokenTypeAccess, now.Add(t.cfg.AccessTTL))
	if err != nil {
		return tokenPair{}, err
	}
	refresh, err := t.sign(u, grants, tokenTypeRefresh, now.Add(t.cfg.RefreshWindow))
	if err != nil {
		return tokenPair{}, err
	}

	return tokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(t.cfg.AccessTTL.Seconds()),
	}, nil
}

func (t *tokenIssuer) sign(u *models.User, grants []rbac.Grant, subject string, expiresAt time.Time) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "cockpit",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:   u.ID,
		Username: u.Username,
		Grants:   grants,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(t.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("api: sign token: %w", err)
	}
	return signed, nil
}

// parse verifies signature and expiry and returns the claims. Expired
// tokens are rejected here; /auth/refresh uses parseAllowExpired instead,
// since a refresh token's whole purpose is to be usable after the access
// token it accompanies has expired.
func (t *tokenIssuer) parse(raw string) (*claims, error) {
	return t.doParse(raw, false)
}

func (t *tokenIssuer) parseAllowExpired(raw string) (*claims, error) {
	return t.doParse(raw, true)
}

func (t *tokenIssuer) doParse(raw string, allowExpired bool) (*claims, error) {
	c := &claims{}
	parserOpts := []jwt.ParserOption{}
	if allowExpired {
		parserOpts = append(parserOpts, jwt.WithoutClaimsValidation())
	}
	token, err := jwt.ParseWithClaims(raw, c, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return []byte(t.cfg.SecretKey), nil
	}, parserOpts...)
	if err != nil || !token.Valid {
		return nil, apperrors.New(apperrors.Authentication, "invalid or expired token")
	}
	return c, nil
}

// generateAPIKey returns a fresh high-entropy API key; the caller is
// responsible for surfacing it to the user exactly once and persisting
// only its hash (repository.HashAPIKey).
func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("api: generate api key: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// resolveGrants loads and flattens a user's effective permission set via
// pkg/rbac, shared by password login, api-key login, and refresh.
func resolveGrants(ctx context.Context, checker *rbac.Checker, userID int64) ([]rbac.Grant, error) {
	grants, err := checker.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return grants, nil
}

func hashAPIKeyForLookup(key string) string { return repository.HashAPIKey(key) }

// loginRequest is the POST /auth/login body.
type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// handleLogin implements POST /auth/login: username/password against the
// PBKDF2 hash, returning an access/refresh token pair on success.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(s, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		writeError(w, apperrors.New(apperrors.Authentication, "invalid username or password"))
		return
	}
	if !user.Active {
		writeError(w, apperrors.New(apperrors.Authentication, "account is disabled"))
		return
	}

	ok, err := repository.VerifyPassword(req.Password, user.PasswordHash, user.PasswordSalt)
	if err != nil || !ok {
		s.audit.Record(req.Username, nil, "login_failed", "invalid credentials", models.SeverityWarning)
		writeError(w, apperrors.New(apperrors.Authentication, "invalid username or password"))
		return
	}

	grants, err := resolveGrants(ctx, s.rbac, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	pair, err := s.tokens.issuePair(user, grants)
	if err != nil {
		writeError(w, err)
		return
	}

	_ = s.users.TouchLastLogin(ctx, user.ID)
	s.audit.Record(user.Username, &user.ID, "login", "password login succeeded", models.SeverityInfo)
	writeJSON(w, http.StatusOK, pair)
}

// handleAPIKeyLogin implements POST /auth/api-key-login: the same response
// shape as password login, keyed off X-Api-Key instead of a body.
func (s *Server) handleAPIKeyLogin(w http.ResponseWriter, r *http.Request) {
	rawKey := r.Header.Get("X-Api-Key")
	if rawKey == "" {
		writeError(w, apperrors.New(apperrors.Authentication, "missing X-Api-Key header"))
		return
	}

	ctx := r.Context()
	user, err := s.users.GetByAPIKeyHash(ctx, hashAPIKeyForLookup(rawKey))
	if err != nil {
		writeError(w, err)
		return
	}
	grants, err := resolveGrants(ctx, s.rbac, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	pair, err := s.tokens.issuePair(user, grants)
	if err != nil {
		writeError(w, err)
		return
	}

	s.audit.Record(user.Username, &user.ID, "login", "api key login succeeded", models.SeverityInfo)
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh implements POST /auth/refresh: a still-valid-signature
// refresh token (expired or not) mints a fresh access/refresh pair with
// re-resolved permissions, so a role change takes effect on next refresh
// without forcing a full re-login.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		writeError(w, apperrors.New(apperrors.Authentication, "missing bearer refresh token"))
		return
	}

	c, err := s.tokens.parseAllowExpired(strings.TrimPrefix(authz, "Bearer "))
	if err != nil {
		writeError(w, err)
		return
	}
	if c.Subject != tokenTypeRefresh {
		writeError(w, apperrors.New(apperrors.Authentication, "not a refresh token"))
		return
	}

	ctx := r.Context()
	user, err := s.users.GetByUsername(ctx, c.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	grants, err := resolveGrants(ctx, s.rbac, user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	pair, err := s.tokens.issuePair(user, grants)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}
