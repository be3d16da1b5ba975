// Package dbschema implements the declarative schema synchroniser and
// migration tracking table, grounded on
// original_source/backend/core/schema_manager.py and
// original_source/backend/migrations/runner.py.
package dbschema

// Column declares one column of a Table in the application's declared
// model. The synchroniser never tightens nullability or drops anything —
// only CREATE TABLE / ADD COLUMN are automatic.
type Column struct {
	Name     string
	Type     string // Postgres type, e.g. "TEXT", "BIGINT", "TIMESTAMPTZ"
	Nullable bool
	Default  string // raw SQL default expression, empty for none
}

// Table declares one table of the application's declared model.
type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  string // column name, or composite expression
	UniqueIndex []string
}

// Model is the full declared schema reconciled on every boot.
var Model = []Table{
	{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "username", Type: "TEXT", Default: "''"},
			{Name: "display_name", Type: "TEXT", Nullable: true},
			{Name: "email", Type: "TEXT", Nullable: true},
			{Name: "active", Type: "BOOLEAN", Default: "true"},
			{Name: "password_hash", Type: "TEXT", Default: "''"},
			{Name: "password_salt", Type: "TEXT", Default: "''"},
			{Name: "api_key_hash", Type: "TEXT", Nullable: true},
			{Name: "last_login_at", Type: "TIMESTAMPTZ", Nullable: true},
			{Name: "created_at", Type: "TIMESTAMPTZ", Default: "now()"},
		},
		PrimaryKey:  "id",
		UniqueIndex: []string{"username"},
	},
	{
		Name: "roles",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "name", Type: "TEXT", Default: "''"},
			{Name: "created_at", Type: "TIMESTAMPTZ", Default: "now()"},
		},
		PrimaryKey:  "id",
		UniqueIndex: []string{"name"},
	},
	{
		Name: "permissions",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "resource", Type: "TEXT", Default: "''"},
			{Name: "action", Type: "TEXT", Default: "''"},
		},
		PrimaryKey:  "id",
		UniqueIndex: []string{"resource", "action"},
	},
	{
		Name: "role_permissions",
		Columns: []Column{
			{Name: "role_id", Type: "BIGINT"},
			{Name: "permission_id", Type: "BIGINT"},
		},
		PrimaryKey:  "role_id, permission_id",
	},
	{
		Name: "user_roles",
		Columns: []Column{
			{Name: "user_id", Type: "BIGINT"},
			{Name: "role_id", Type: "BIGINT"},
		},
		PrimaryKey:  "user_id, role_id",
	},
	{
		Name: "credentials",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "name", Type: "TEXT", Default: "''"},
			{Name: "source", Type: "TEXT", Default: "''"},
			{Name: "kind", Type: "TEXT", Default: "''"},
			{Name: "username", Type: "TEXT", Nullable: true},
			{Name: "password_cipher", Type: "BYTEA", Nullable: true},
			{Name: "ssh_key_cipher", Type: "BYTEA", Nullable: true},
			{Name: "passphrase_cipher", Type: "BYTEA", Nullable: true},
			{Name: "valid_until", Type: "TIMESTAMPTZ", Nullable: true},
			{Name: "owner", Type: "TEXT", Nullable: true},
			{Name: "created_at", Type: "TIMESTAMPTZ", Default: "now()"},
		},
		PrimaryKey:  "id",
		UniqueIndex: []string{"name", "source"},
	},
	{
		Name: "git_repositories",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "name", Type: "TEXT", Default: "''"},
			{Name: "url", Type: "TEXT", Default: "''"},
			{Name: "branch", Type: "TEXT", Default: "'main'"},
			{Name: "category", Type: "TEXT", Nullable: true},
			{Name: "credential_name", Type: "TEXT", Nullable: true},
			{Name: "auth_type", Type: "TEXT", Default: "'none'"},
			{Name: "verify_ssl", Type: "BOOLEAN", Default: "true"},
			{Name: "path", Type: "TEXT", Default: "''"},
			{Name: "active", Type: "BOOLEAN", Default: "true"},
		},
		PrimaryKey: "id",
	},
	{
		Name: "job_templates",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "name", Type: "TEXT", Default: "''"},
			{Name: "job_type", Type: "TEXT", Default: "''"},
			{Name: "inventory_source", Type: "TEXT", Default: "'all'"},
			{Name: "inventory_name", Type: "TEXT", Nullable: true},
			{Name: "config", Type: "JSONB", Default: "'{}'::jsonb"},
			{Name: "is_global", Type: "BOOLEAN", Default: "false"},
			{Name: "created_by", Type: "TEXT", Nullable: true},
			{Name: "timestamp_custom_field", Type: "TEXT", Nullable: true},
			{Name: "activate_changes_after_sync", Type: "BOOLEAN", Default: "false"},
			{Name: "non_overlapping", Type: "BOOLEAN", Default: "false"},
			{Name: "created_at", Type: "TIMESTAMPTZ", Default: "now()"},
		},
		PrimaryKey: "id",
	},
	{
		Name: "job_schedules",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "template_id", Type: "BIGINT"},
			{Name: "cron_expr", Type: "TEXT", Default: "''"},
			{Name: "enabled", Type: "BOOLEAN", Default: "true"},
			{Name: "credential_id", Type: "BIGINT", Nullable: true},
			{Name: "last_fired_at", Type: "TIMESTAMPTZ", Nullable: true},
		},
		PrimaryKey: "id",
	},
	{
		Name: "job_runs",
		Columns: []Column{
			{Name: "id", Type: "UUID"},
			{Name: "template_id", Type: "BIGINT"},
			{Name: "type", Type: "TEXT", Default: "''"},
			{Name: "status", Type: "TEXT", Default: "'pending'"},
			{Name: "started_by", Type: "TEXT", Nullable: true},
			{Name: "started_at", Type: "TIMESTAMPTZ", Default: "now()"},
			{Name: "completed_at", Type: "TIMESTAMPTZ", Nullable: true},
			{Name: "processed", Type: "INTEGER", Default: "0"},
			{Name: "total", Type: "INTEGER", Default: "0"},
			{Name: "result_summary", Type: "TEXT", Nullable: true},
			{Name: "error", Type: "TEXT", Nullable: true},
			{Name: "metadata", Type: "JSONB", Nullable: true},
			{Name: "cancelled", Type: "BOOLEAN", Default: "false"},
		},
		PrimaryKey: "id",
	},
	{
		Name: "device_results",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "run_id", Type: "UUID"},
			{Name: "device_name", Type: "TEXT", Default: "''"},
			{Name: "device_id", Type: "TEXT", Nullable: true},
			{Name: "status", Type: "TEXT", Default: "''"},
			{Name: "result_blob", Type: "JSONB", Nullable: true},
			{Name: "error_message", Type: "TEXT", Nullable: true},
			{Name: "processed_at", Type: "TIMESTAMPTZ", Default: "now()"},
		},
		PrimaryKey:  "id",
		UniqueIndex: []string{"run_id", "device_name"},
	},
	{
		Name: "inventories",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "name", Type: "TEXT", Default: "''"},
			{Name: "scope", Type: "TEXT", Default: "'private'"},
			{Name: "created_by", Type: "TEXT", Nullable: true},
			{Name: "conditions", Type: "JSONB", Default: "'{}'::jsonb"},
		},
		PrimaryKey: "id",
	},
	{
		Name: "nb2cmk_jobs",
		Columns: []Column{
			{Name: "id", Type: "UUID"},
			{Name: "started_at", Type: "TIMESTAMPTZ", Default: "now()"},
			{Name: "completed_at", Type: "TIMESTAMPTZ", Nullable: true},
			{Name: "total", Type: "INTEGER", Default: "0"},
			{Name: "processed", Type: "INTEGER", Default: "0"},
		},
		PrimaryKey: "id",
	},
	{
		Name: "nb2cmk_job_results",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "job_id", Type: "UUID"},
			{Name: "device_name", Type: "TEXT", Default: "''"},
			{Name: "outcome", Type: "TEXT", Default: "''"},
			{Name: "detail", Type: "TEXT", Nullable: true},
		},
		PrimaryKey: "id",
	},
	{
		Name: "audit_log",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "username", Type: "TEXT", Default: "''"},
			{Name: "user_id", Type: "BIGINT", Nullable: true},
			{Name: "event_type", Type: "TEXT", Default: "''"},
			{Name: "message", Type: "TEXT", Default: "''"},
			{Name: "ip", Type: "TEXT", Nullable: true},
			{Name: "resource_type", Type: "TEXT", Nullable: true},
			{Name: "resource_id", Type: "TEXT", Nullable: true},
			{Name: "resource_name", Type: "TEXT", Nullable: true},
			{Name: "severity", Type: "TEXT", Default: "'info'"},
			{Name: "extra_data", Type: "JSONB", Nullable: true},
			{Name: "created_at", Type: "TIMESTAMPTZ", Default: "now()"},
		},
		PrimaryKey: "id",
	},
	{
		Name: "cockpit_agent_commands",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "agent_id", Type: "TEXT", Default: "''"},
			{Name: "command_id", Type: "UUID"},
			{Name: "command", Type: "TEXT", Default: "''"},
			{Name: "params", Type: "JSONB", Nullable: true},
			{Name: "status", Type: "TEXT", Default: "'pending'"},
			{Name: "output", Type: "TEXT", Nullable: true},
			{Name: "error", Type: "TEXT", Nullable: true},
			{Name: "execution_time_ms", Type: "BIGINT", Nullable: true},
			{Name: "sent_at", Type: "TIMESTAMPTZ", Default: "now()"},
			{Name: "completed_at", Type: "TIMESTAMPTZ", Nullable: true},
			{Name: "sent_by", Type: "TEXT", Nullable: true},
		},
		PrimaryKey:  "id",
		UniqueIndex: []string{"command_id"},
	},
	{
		Name: "settings",
		Columns: []Column{
			{Name: "id", Type: "BIGSERIAL"},
			{Name: "group_name", Type: "TEXT", Default: "''"},
			{Name: "data", Type: "JSONB", Default: "'{}'::jsonb"},
			{Name: "updated_at", Type: "TIMESTAMPTZ", Default: "now()"},
		},
		PrimaryKey:  "id",
		UniqueIndex: []string{"group_name"},
	},
}
