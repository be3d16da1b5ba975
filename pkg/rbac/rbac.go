// Package rbac enforces the permission-grant-graph check
// (require_permission(resource, action)) over the effective permission set
// a user accumulates from their assigned roles, grounded on
// original_source/backend/core/auth.py and routers/user_management.py.
// The "admin grants everything, viewer grants read only" invariant is
// enforced at seed time (pkg/migrations/versions), not hard-coded here:
// this package only ever answers "does this set contain that grant".
package rbac

import (
	"context"
	"fmt"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// PermissionSource loads a user's effective permission set. Satisfied by
// *repository.UserRepository; declared here as an interface so rbac has no
// import-cycle dependency on the repository package — the pure check is
// split from its data source instead of relying on deferred/lazy imports.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, userID int64) ([]models.Permission, error)
}

// Checker evaluates (resource, action) grants for a user.
type Checker struct {
	source PermissionSource
}

func NewChecker(source PermissionSource) *Checker {
	return &Checker{source: source}
}

// Grant is a lightweight (resource, action) pair used by JWT claims, which
// embed the bitset/list of an already-resolved permission set so the hot
// request path does not re-query the grant graph per request.
type Grant struct {
	Resource string
	Action   string
}

func (g Grant) String() string { return g.Resource + ":" + g.Action }

// Resolve loads and flattens userID's effective grants: a user has
// (resource, action) iff some assigned role links to that permission.
func (c *Checker) Resolve(ctx context.Context, userID int64) ([]Grant, error) {
	perms, err := c.source.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: resolve permissions for user %d: %w", userID, err)
	}
	grants := make([]Grant, 0, len(perms))
	for _, p := range perms {
		grants = append(grants, Grant{Resource: p.Resource, Action: p.Action})
	}
	return grants, nil
}

// Has reports whether grants contains (resource, action).
func Has(grants []Grant, resource, action string) bool {
	for _, g := range grants {
		if g.Resource == resource && g.Action == action {
			return true
		}
	}
	return false
}

// Require returns an Authorization apperrors.Error if grants lacks
// (resource, action); this is the function the API middleware's
// require_permission dependency calls per request.
func Require(grants []Grant, resource, action string) error {
	if Has(grants, resource, action) {
		return nil
	}
	return apperrors.New(apperrors.Authorization, fmt.Sprintf("missing permission %s:%s", resource, action))
}
