package rbac_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/rbac"
)

type fakeSource struct {
	perms []models.Permission
	err   error
}

func (f fakeSource) EffectivePermissions(ctx context.Context, userID int64) ([]models.Permission, error) {
	return f.perms, f.err
}

func TestResolveFlattensPermissions(t *testing.T) {
	source := fakeSource{perms: []models.Permission{
		{Resource: "jobs", Action: "read"},
		{Resource: "jobs", Action: "write"},
	}}
	checker := rbac.NewChecker(source)

	grants, err := checker.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, rbac.Has(grants, "jobs", "read"))
	assert.True(t, rbac.Has(grants, "jobs", "write"))
	assert.False(t, rbac.Has(grants, "jobs", "delete"))
}

func TestRequireSucceedsWhenGranted(t *testing.T) {
	grants := []rbac.Grant{{Resource: "credentials", Action: "write"}}
	assert.NoError(t, rbac.Require(grants, "credentials", "write"))
}

func TestRequireFailsWhenMissing(t *testing.T) {
	grants := []rbac.Grant{{Resource: "credentials", Action: "read"}}
	err := rbac.Require(grants, "credentials", "write")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Authorization))
}

func TestRequireFailsOnEmptyGrants(t *testing.T) {
	err := rbac.Require(nil, "jobs", "read")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Authorization))
}
