// Package versions holds the ordered, checksummed migrations that the
// automatic schema synchroniser cannot express. File naming
// (NNN_description) follows original_source/backend/migrations/versions/.
package versions

import (
	"context"
	"database/sql"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/dbschema"
)

// All returns the full ordered set of versioned migrations wired into the
// Runner at boot.
func All() []dbschema.VersionedMigration {
	return []dbschema.VersionedMigration{
		seedRolesAndPermissions,
		updateCredentialsUniqueConstraint,
	}
}

// 001_seed_roles_and_permissions grounded on
// original_source/backend/migrations/versions/017_seed_general_logs_permission.py:
// data-only migrations (seeding, not DDL) are expressed as versioned
// migrations rather than the automatic synchroniser, which only ever adds
// columns/tables.
var seedRolesAndPermissions = dbschema.VersionedMigration{
	Name:        "001_seed_roles_and_permissions",
	Description: "seed the admin and viewer roles with their baseline permission grants",
	Up: func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO roles (name) VALUES ('admin'), ('viewer') ON CONFLICT (name) DO NOTHING`); err != nil {
			return err
		}

		resources := []string{"jobs", "credentials", "inventory", "logs", "users", "settings", "devices"}
		for _, resource := range resources {
			for _, action := range []string{"read", "write"} {
				if _, err := tx.ExecContext(ctx, `INSERT INTO permissions (resource, action) VALUES ($1, $2) ON CONFLICT (resource, action) DO NOTHING`, resource, action); err != nil {
					return err
				}
			}
		}

		// admin grants every permission.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT r.id, p.id FROM roles r, permissions p WHERE r.name = 'admin'
			ON CONFLICT DO NOTHING`); err != nil {
			return err
		}

		// viewer grants read only.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT r.id, p.id FROM roles r, permissions p WHERE r.name = 'viewer' AND p.action = 'read'
			ON CONFLICT DO NOTHING`); err != nil {
			return err
		}

		return nil
	},
}

// 002_update_credentials_unique_constraint grounded on
// original_source/backend/migrations/versions/015_migrate_credential_encryption.py
// (a real example of a destructive-shaped change expressed only as a
// versioned migration, never automatic DDL).
var updateCredentialsUniqueConstraint = dbschema.VersionedMigration{
	Name:        "002_update_credentials_unique_constraint",
	Description: "ensure (name, source) uniqueness constraint exists on credentials",
	Up: func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM pg_constraint WHERE conname = 'credentials_name_source_key'
				) THEN
					ALTER TABLE credentials ADD CONSTRAINT credentials_name_source_key UNIQUE (name, source);
				END IF;
			END $$;`)
		return err
	},
}
