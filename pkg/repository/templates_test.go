package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

var _ = Describe("TemplateRepository", func() {
	var (
		repo *TemplateRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewTemplateRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Create", func() {
		It("inserts and scans the generated id and created_at", func() {
			created := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
			mock.ExpectQuery("INSERT INTO job_templates").
				WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(3), created))

			t := &models.JobTemplate{
				Name: "sync-all", JobType: models.JobSyncDevices,
				InventorySource: models.InventorySourceAll, Config: json.RawMessage(`{}`),
				IsGlobal: true, CreatedBy: "alice",
			}
			out, err := repo.Create(ctx, t)

			Expect(err).ToNot(HaveOccurred())
			Expect(out.ID).To(Equal(int64(3)))
			Expect(out.CreatedAt).To(Equal(created))
		})
	})

	Describe("Get", func() {
		It("returns NotFound for a missing template", func() {
			mock.ExpectQuery("SELECT \\* FROM job_templates WHERE id=\\$1").
				WithArgs(int64(404)).
				WillReturnRows(sqlmock.NewRows([]string{"id"}))

			_, err := repo.Get(ctx, 404)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Update", func() {
		It("errors when no row is touched", func() {
			mock.ExpectExec("UPDATE job_templates SET").
				WillReturnResult(sqlmock.NewResult(0, 0))

			t := &models.JobTemplate{ID: 1, Name: "x", JobType: models.JobSyncDevices, InventorySource: models.InventorySourceAll, Config: json.RawMessage(`{}`)}
			err := repo.Update(ctx, t)
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("ScheduleRepository", func() {
	var (
		repo *ScheduleRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewScheduleRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("DueSchedules", func() {
		It("returns only enabled schedules", func() {
			rows := sqlmock.NewRows([]string{"id", "template_id", "cron_expr", "enabled", "credential_id"}).
				AddRow(int64(1), int64(3), "*/5 * * * *", true, int64(2))
			mock.ExpectQuery("SELECT \\* FROM job_schedules WHERE enabled = true").
				WillReturnRows(rows)

			out, err := repo.DueSchedules(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(HaveLen(1))
			Expect(out[0].Enabled).To(BeTrue())
		})
	})

	Describe("Delete", func() {
		It("errors when no schedule is removed", func() {
			mock.ExpectExec("DELETE FROM job_schedules WHERE id=\\$1").
				WithArgs(int64(8)).
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := repo.Delete(ctx, 8)
			Expect(err).To(HaveOccurred())
		})
	})
})
