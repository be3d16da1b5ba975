// Command cockpit-migrate applies the declarative schema sync and ordered
// versioned migrations against the configured database, outside of the
// normal boot path other cmd/ entrypoints take implicitly. --dry-run
// mirrors cuemby-warren's warren-migrate convention of reporting what a
// migration would do before committing to it.
package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/config"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/dbschema"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/migrations/versions"
)

var dryRun bool

func main() {
	root := &cobra.Command{
		Use:   "cockpit-migrate",
		Short: "Reconcile the Cockpit database schema",
		RunE:  run,
	}
	root.Flags().BoolVar(&dryRun, "dry-run", false, "report planned schema changes without applying them")

	if err := root.Execute(); err != nil {
		cockpitlog.WithComponent("cockpit-migrate").WithError(err).Fatal("migration failed")
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := cockpitlog.WithComponent("cockpit-migrate")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if dryRun {
		return plan(ctx, db)
	}

	result, err := dbschema.NewRunner(db, versions.All()).Run(ctx)
	if err != nil {
		return fmt.Errorf("reconcile schema: %w", err)
	}

	logger.WithFields(map[string]any{
		"tables_created":     result.TablesCreated,
		"columns_added":      result.ColumnsAdded,
		"migrations_applied": result.MigrationsApplied,
	}).Info("schema reconciled")
	return nil
}

// plan reports which tables and columns dbschema.Model declares that the
// live database does not yet have, without issuing any DDL. It duplicates
// the Runner's existing-table/column introspection rather than reusing its
// unexported helpers, since the Runner's contract is "apply", not "plan".
func plan(ctx context.Context, db *sql.DB) error {
	existingTables, err := queryNames(ctx, db, `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()`)
	if err != nil {
		return fmt.Errorf("list existing tables: %w", err)
	}

	for _, table := range dbschema.Model {
		if !existingTables[table.Name] {
			fmt.Printf("would create table: %s\n", table.Name)
			continue
		}
		existingCols, err := queryNames(ctx, db, `SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = $1`, table.Name)
		if err != nil {
			return fmt.Errorf("list existing columns for %s: %w", table.Name, err)
		}
		for _, col := range table.Columns {
			if !existingCols[col.Name] {
				fmt.Printf("would add column: %s.%s\n", table.Name, col.Name)
			}
		}
	}
	return nil
}

func queryNames(ctx context.Context, db *sql.DB, query string, args ...any) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, query, args...)
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
