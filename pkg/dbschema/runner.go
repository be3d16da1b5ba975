package dbschema

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
)

// VersionedMigration is an ordered, checksummed migration that the automatic
// synchroniser cannot express safely (column drops, nullability tightening,
// data backfills).
type VersionedMigration struct {
	Name        string
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// Result reports what a RunMigrations call actually changed.
type Result struct {
	TablesCreated    []string
	ColumnsAdded     map[string][]string
	MigrationsApplied []string
}

func (r *Result) changed() bool {
	return len(r.TablesCreated) > 0 || len(r.ColumnsAdded) > 0 || len(r.MigrationsApplied) > 0
}

// Runner owns the declarative-model reconciliation and the ordered
// versioned-migration pipeline, grounded on
// original_source/backend/core/schema_manager.py (auto sync) and
// original_source/backend/migrations/runner.py (versioned migrations,
// checksum + applied_at tracking).
type Runner struct {
	db         *sql.DB
	migrations []VersionedMigration
	logger     *logrus.Entry
}

func NewRunner(db *sql.DB, migrations []VersionedMigration) *Runner {
	return &Runner{db: db, migrations: migrations, logger: cockpitlog.WithComponent("dbschema")}
}

// Run executes the full reconciliation algorithm. It is idempotent: a
// second call against an already-migrated database reports zero changes.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.ensureTrackingTable(ctx); err != nil {
		return nil, fmt.Errorf("dbschema: ensure tracking table: %w", err)
	}

	result := &Result{ColumnsAdded: map[string][]string{}}

	if err := r.syncDeclaredModel(ctx, result); err != nil {
		return nil, fmt.Errorf("dbschema: sync declared model: %w", err)
	}

	if err := r.applyVersionedMigrations(ctx, result); err != nil {
		return nil, fmt.Errorf("dbschema: apply versioned migrations: %w", err)
	}

	if result.changed() {
		r.logger.WithFields(logrus.Fields{
			"tables_created":     len(result.TablesCreated),
			"columns_added":      len(result.ColumnsAdded),
			"migrations_applied": len(result.MigrationsApplied),
		}).Info("schema reconciled")
	} else {
		r.logger.Debug("schema already up to date")
	}

	return result, nil
}

func (r *Runner) ensureTrackingTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id BIGSERIAL PRIMARY KEY,
			migration_name TEXT UNIQUE NOT NULL,
			description TEXT,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return err
}

// syncDeclaredModel creates missing tables and adds missing columns. It
// never drops a table or column and never tightens nullability — only
// additive DDL is automatic.
func (r *Runner) syncDeclaredModel(ctx context.Context, result *Result) error {
	existingTables, err := r.existingTables(ctx)
	if err != nil {
		return err
	}

	for _, table := range Model {
		if !existingTables[table.Name] {
			if err := r.createTable(ctx, table); err != nil {
				return fmt.Errorf("create table %s: %w", table.Name, err)
			}
			result.TablesCreated = append(result.TablesCreated, table.Name)
			continue
		}

		existingColumns, err := r.existingColumns(ctx, table.Name)
		if err != nil {
			return err
		}

		for _, col := range table.Columns {
			if existingColumns[col.Name] {
				continue
			}
			if err := r.addColumn(ctx, table.Name, col); err != nil {
				return fmt.Errorf("add column %s.%s: %w", table.Name, col.Name, err)
			}
			result.ColumnsAdded[table.Name] = append(result.ColumnsAdded[table.Name], col.Name)
		}
	}

	return nil
}

func (r *Runner) existingTables(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (r *Runner) existingColumns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (r *Runner) createTable(ctx context.Context, table Table) error {
	stmt := fmt.Sprintf("CREATE TABLE %s (\n", table.Name)
	for i, col := range table.Columns {
		stmt += "  " + columnDDL(col)
		if i < len(table.Columns)-1 {
			stmt += ","
		}
		stmt += "\n"
	}
	stmt += fmt.Sprintf(", PRIMARY KEY (%s)", table.PrimaryKey)
	stmt += ")"

	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return err
	}

	if len(table.UniqueIndex) > 0 {
		idxName := fmt.Sprintf("uq_%s_%s", table.Name, joinUnderscore(table.UniqueIndex))
		idxStmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)", idxName, table.Name, joinComma(table.UniqueIndex))
		if _, err := r.db.ExecContext(ctx, idxStmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) addColumn(ctx context.Context, table string, col Column) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, columnDDL(col))
	_, err := r.db.ExecContext(ctx, stmt)
	return err
}

func columnDDL(col Column) string {
	ddl := fmt.Sprintf("%s %s", col.Name, col.Type)
	if col.Default != "" {
		ddl += " DEFAULT " + col.Default
	}
	if !col.Nullable {
		ddl += " NOT NULL"
	}
	return ddl
}

func joinComma(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func joinUnderscore(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += "_"
		}
		out += c
	}
	return out
}

// applyVersionedMigrations runs each migration exactly once, recording its
// name, checksum, and applied_at on success. Already-applied migrations
// are skipped.
func (r *Runner) applyVersionedMigrations(ctx context.Context, result *Result) error {
	sorted := make([]VersionedMigration, len(r.migrations))
	copy(sorted, r.migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	applied, err := r.appliedMigrationNames(ctx)
	if err != nil {
		return err
	}

	for _, m := range sorted {
		if applied[m.Name] {
			continue
		}

		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %s: %w", m.Name, err)
		}

		if err := m.Up(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}

		checksum := checksumOf(m.Name, m.Description)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schema_migrations (migration_name, description, checksum, applied_at)
			VALUES ($1, $2, $3, now())`, m.Name, m.Description, checksum); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.Name, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.Name, err)
		}

		result.MigrationsApplied = append(result.MigrationsApplied, m.Name)
	}

	return nil
}

func (r *Runner) appliedMigrationNames(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT migration_name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func checksumOf(name, description string) string {
	sum := sha256.Sum256([]byte(name + "|" + description))
	return hex.EncodeToString(sum[:])
}
