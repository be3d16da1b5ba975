package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

var _ = Describe("NB2CMKJobRepository", func() {
	var (
		repo *NB2CMKJobRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewNB2CMKJobRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Create", func() {
		It("rejects a job with no pre-assigned id", func() {
			job := &models.NB2CMKJob{Total: 3}
			_, err := repo.Create(ctx, job)
			Expect(err).To(HaveOccurred())
		})

		It("inserts the job and scans started_at", func() {
			started := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
			mock.ExpectQuery("INSERT INTO nb2cmk_jobs").
				WithArgs("job-1", 3).
				WillReturnRows(sqlmock.NewRows([]string{"started_at"}).AddRow(started))

			job := &models.NB2CMKJob{ID: "job-1", Total: 3}
			out, err := repo.Create(ctx, job)

			Expect(err).ToNot(HaveOccurred())
			Expect(out.StartedAt).To(Equal(started))
		})
	})

	Describe("AddResult", func() {
		It("inserts the result and advances processed in one transaction", func() {
			mock.ExpectBegin()
			mock.ExpectQuery("INSERT INTO nb2cmk_job_results").
				WithArgs("job-1", "rtr1", models.CmpEqual, "").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
			mock.ExpectExec("UPDATE nb2cmk_jobs SET processed = processed \\+ 1 WHERE id=\\$1").
				WithArgs("job-1").
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			res := &models.NB2CMKJobResult{JobID: "job-1", DeviceName: "rtr1", Outcome: models.CmpEqual}
			err := repo.AddResult(ctx, res)

			Expect(err).ToNot(HaveOccurred())
			Expect(res.ID).To(Equal(int64(42)))
		})

		It("rolls back when the progress update fails", func() {
			mock.ExpectBegin()
			mock.ExpectQuery("INSERT INTO nb2cmk_job_results").
				WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
			mock.ExpectExec("UPDATE nb2cmk_jobs SET processed = processed \\+ 1 WHERE id=\\$1").
				WillReturnError(sql.ErrConnDone)
			mock.ExpectRollback()

			res := &models.NB2CMKJobResult{JobID: "job-1", DeviceName: "rtr1", Outcome: models.CmpDiff}
			err := repo.AddResult(ctx, res)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Complete", func() {
		It("errors when the job is already completed or missing", func() {
			mock.ExpectExec("UPDATE nb2cmk_jobs SET completed_at = now\\(\\) WHERE id=\\$1 AND completed_at IS NULL").
				WithArgs("job-1").
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := repo.Complete(ctx, "job-1")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Results", func() {
		It("lists results ordered by id", func() {
			rows := sqlmock.NewRows([]string{"id", "job_id", "device_name", "outcome", "detail"}).
				AddRow(int64(1), "job-1", "rtr1", models.CmpEqual, "").
				AddRow(int64(2), "job-1", "rtr2", models.CmpDiff, "folder mismatch")
			mock.ExpectQuery("SELECT \\* FROM nb2cmk_job_results WHERE job_id=\\$1 ORDER BY id").
				WithArgs("job-1").
				WillReturnRows(rows)

			out, err := repo.Results(ctx, "job-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(HaveLen(2))
			Expect(out[1].Outcome).To(Equal(models.CmpDiff))
		})
	})
})
