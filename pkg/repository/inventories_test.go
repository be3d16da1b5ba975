package repository

import (
	"context"
	"encoding/json"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

var _ = Describe("InventoryRepository", func() {
	var (
		repo *InventoryRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewInventoryRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Create", func() {
		It("inserts and scans the generated id", func() {
			conditions := json.RawMessage(`{"field":"platform","operator":"equals","value":"ios"}`)
			mock.ExpectQuery("INSERT INTO inventories").
				WithArgs("ios-devices", models.InventoryGlobal, "alice", conditions).
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))

			inv := &models.Inventory{Name: "ios-devices", Scope: models.InventoryGlobal, CreatedBy: "alice", Conditions: conditions}
			out, err := repo.Create(ctx, inv)

			Expect(err).ToNot(HaveOccurred())
			Expect(out.ID).To(Equal(int64(5)))
		})
	})

	Describe("GetByName", func() {
		It("returns NotFound when no inventory matches", func() {
			mock.ExpectQuery("SELECT \\* FROM inventories WHERE name=\\$1").
				WithArgs("missing", "alice").
				WillReturnRows(sqlmock.NewRows([]string{"id", "name", "scope", "created_by", "conditions"}))

			_, err := repo.GetByName(ctx, "missing", "alice")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("errors when the inventory does not exist", func() {
			mock.ExpectExec("DELETE FROM inventories WHERE id=\\$1").
				WithArgs(int64(9)).
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := repo.Delete(ctx, 9)
			Expect(err).To(HaveOccurred())
		})

		It("succeeds when a row is removed", func() {
			mock.ExpectExec("DELETE FROM inventories WHERE id=\\$1").
				WithArgs(int64(9)).
				WillReturnResult(sqlmock.NewResult(0, 1))

			Expect(repo.Delete(ctx, 9)).To(Succeed())
		})
	})
})
