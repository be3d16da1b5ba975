package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/config"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/rbac"
)

func newTestIssuer() *tokenIssuer {
	return newTokenIssuer(&config.AuthConfig{SecretKey: "test-secret", AccessTTL: time.Minute, RefreshWindow: time.Hour})
}

func TestIssuePairRoundTrips(t *testing.T) {
	issuer := newTestIssuer()
	user := &models.User{ID: 1, Username: "alice"}
	grants := []rbac.Grant{{Resource: "jobs", Action: "read"}}

	pair, err := issuer.issuePair(user, grants)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)

	access, err := issuer.parse(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, tokenTypeAccess, access.Subject)
	assert.Equal(t, int64(1), access.UserID)
	assert.Equal(t, "alice", access.Username)

	refresh, err := issuer.parse(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, tokenTypeRefresh, refresh.Subject)
}

func TestParseRejectsTamperedToken(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.issuePair(&models.User{ID: 1, Username: "alice"}, nil)
	require.NoError(t, err)

	_, err = issuer.parse(pair.AccessToken + "x")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Authentication))
}

func TestParseRejectsExpiredAccessToken(t *testing.T) {
	issuer := newTokenIssuer(&config.AuthConfig{SecretKey: "test-secret", AccessTTL: -time.Minute, RefreshWindow: time.Hour})
	pair, err := issuer.issuePair(&models.User{ID: 1, Username: "alice"}, nil)
	require.NoError(t, err)

	_, err = issuer.parse(pair.AccessToken)
	require.Error(t, err)
}

func TestParseAllowExpiredAcceptsExpiredRefreshToken(t *testing.T) {
	issuer := newTokenIssuer(&config.AuthConfig{SecretKey: "test-secret", AccessTTL: time.Minute, RefreshWindow: -time.Hour})
	pair, err := issuer.issuePair(&models.User{ID: 1, Username: "alice"}, nil)
	require.NoError(t, err)

	c, err := issuer.parseAllowExpired(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, tokenTypeRefresh, c.Subject)
}

func TestGenerateAPIKeyIsRandomAndNonEmpty(t *testing.T) {
	a, err := generateAPIKey()
	require.NoError(t, err)
	b, err := generateAPIKey()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestHashAPIKeyForLookupIsDeterministic(t *testing.T) {
	assert.Equal(t, hashAPIKeyForLookup("k"), hashAPIKeyForLookup("k"))
}
