package dbschema_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/dbschema"
)

func TestDbschema(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dbschema Runner Suite")
}

type sqlMockDB struct {
	db   *sql.DB
	mock sqlmock.Sqlmock
}

func newSQLMockDB() *sqlMockDB {
	db, mock, err := sqlmock.New()
	Expect(err).ToNot(HaveOccurred())
	return &sqlMockDB{db: db, mock: mock}
}

func (m *sqlMockDB) Close() { m.db.Close() }

// expectEmptyModelSync stubs the information_schema introspection queries
// so that every declared table appears to already exist with every column
// present, i.e. a no-op sync pass.
func (m *sqlMockDB) expectEmptyModelSync() {
	names := make([]string, 0, len(dbschema.Model))
	for _, t := range dbschema.Model {
		names = append(names, t.Name)
	}
	tableRows := sqlmock.NewRows([]string{"table_name"})
	for _, n := range names {
		tableRows.AddRow(n)
	}
	m.mock.ExpectQuery("SELECT table_name FROM information_schema.tables").WillReturnRows(tableRows)

	for _, t := range dbschema.Model {
		colRows := sqlmock.NewRows([]string{"column_name"})
		for _, c := range t.Columns {
			colRows.AddRow(c.Name)
		}
		m.mock.ExpectQuery("SELECT column_name FROM information_schema.columns").WillReturnRows(colRows)
	}
}

var _ = Describe("Runner", func() {
	var mockDB *sqlMockDB

	BeforeEach(func() {
		mockDB = newSQLMockDB()
	})

	AfterEach(func() {
		mockDB.Close()
	})

	Describe("Run", func() {
		It("reconciles an already up-to-date schema with zero changes", func() {
			mockDB.mock.MatchExpectationsInOrder(false)
			mockDB.mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
			mockDB.expectEmptyModelSync()
			mockDB.mock.ExpectQuery("SELECT migration_name FROM schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"migration_name"}))

			runner := dbschema.NewRunner(mockDB.db, nil)
			result, err := runner.Run(context.Background())

			Expect(err).ToNot(HaveOccurred())
			Expect(result.TablesCreated).To(BeEmpty())
			Expect(result.ColumnsAdded).To(BeEmpty())
			Expect(result.MigrationsApplied).To(BeEmpty())
		})

		It("skips already-applied versioned migrations", func() {
			mockDB.mock.MatchExpectationsInOrder(false)
			mockDB.mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
			mockDB.expectEmptyModelSync()
			mockDB.mock.ExpectQuery("SELECT migration_name FROM schema_migrations").
				WillReturnRows(sqlmock.NewRows([]string{"migration_name"}).AddRow("001_already_applied"))

			ranAgain := false
			migrations := []dbschema.VersionedMigration{
				{
					Name:        "001_already_applied",
					Description: "already applied, must not run again",
					Up: func(ctx context.Context, tx *sql.Tx) error {
						ranAgain = true
						return nil
					},
				},
			}

			runner := dbschema.NewRunner(mockDB.db, migrations)
			result, err := runner.Run(context.Background())

			Expect(err).ToNot(HaveOccurred())
			Expect(result.MigrationsApplied).To(BeEmpty())
			Expect(ranAgain).To(BeFalse())
		})
	})
})
