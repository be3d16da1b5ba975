package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

var _ = Describe("RunRepository", func() {
	var (
		repo *RunRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewRunRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Create", func() {
		It("rejects a run with no pre-assigned id", func() {
			_, err := repo.Create(ctx, &models.JobRun{Total: 1})
			Expect(err).To(HaveOccurred())
		})

		It("inserts as pending and scans started_at", func() {
			started := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
			mock.ExpectQuery("INSERT INTO job_runs").
				WillReturnRows(sqlmock.NewRows([]string{"started_at"}).AddRow(started))

			run := &models.JobRun{ID: "run-1", TemplateID: 1, Type: models.JobSyncDevices, StartedBy: "alice", Total: 2}
			out, err := repo.Create(ctx, run)

			Expect(err).ToNot(HaveOccurred())
			Expect(out.Status).To(Equal(models.RunPending))
			Expect(out.StartedAt).To(Equal(started))
		})
	})

	Describe("Finalize", func() {
		It("refuses a non-terminal status", func() {
			err := repo.Finalize(ctx, "run-1", models.RunPending, "", "")
			Expect(err).To(HaveOccurred())
		})

		It("updates a run to a terminal status", func() {
			mock.ExpectExec("UPDATE job_runs SET status=\\$1").
				WithArgs(models.RunSuccess, "2/2 device(s) ok", "", "run-1").
				WillReturnResult(sqlmock.NewResult(0, 1))

			err := repo.Finalize(ctx, "run-1", models.RunSuccess, "2/2 device(s) ok", "")
			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("Cancel", func() {
		It("errors when the run is not pending or running", func() {
			mock.ExpectExec("UPDATE job_runs SET cancelled = true WHERE id=\\$1").
				WithArgs("run-1").
				WillReturnResult(sqlmock.NewResult(0, 0))

			err := repo.Cancel(ctx, "run-1")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("IsCancelled", func() {
		It("returns the cancelled flag", func() {
			mock.ExpectQuery("SELECT cancelled FROM job_runs WHERE id=\\$1").
				WithArgs("run-1").
				WillReturnRows(sqlmock.NewRows([]string{"cancelled"}).AddRow(true))

			cancelled, err := repo.IsCancelled(ctx, "run-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(cancelled).To(BeTrue())
		})
	})
})

var _ = Describe("DeviceResultRepository", func() {
	var (
		repo *DeviceResultRepository
		mock sqlmock.Sqlmock
		ctx  context.Context
	)

	BeforeEach(func() {
		mockDB, m, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		mock = m
		db := sqlx.NewDb(mockDB, "sqlmock")
		repo = NewDeviceResultRepository(db)
		ctx = context.Background()
	})

	AfterEach(func() {
		Expect(mock.ExpectationsWereMet()).To(Succeed())
	})

	Describe("Upsert", func() {
		It("stamps processed_at when unset", func() {
			mock.ExpectExec("INSERT INTO device_results").
				WillReturnResult(sqlmock.NewResult(1, 1))

			dr := &models.DeviceResult{RunID: "run-1", DeviceName: "rtr1", Status: models.DeviceResultOK}
			err := repo.Upsert(ctx, dr)

			Expect(err).ToNot(HaveOccurred())
			Expect(dr.ProcessedAt.IsZero()).To(BeFalse())
		})
	})

	Describe("ListForRun", func() {
		It("returns every device result for a run", func() {
			rows := sqlmock.NewRows([]string{"run_id", "device_name", "device_id", "status", "result_blob", "error_message", "processed_at"}).
				AddRow("run-1", "rtr1", "1", models.DeviceResultOK, nil, "", time.Now())
			mock.ExpectQuery("SELECT \\* FROM device_results WHERE run_id=\\$1 ORDER BY device_name").
				WithArgs("run-1").
				WillReturnRows(rows)

			out, err := repo.ListForRun(ctx, "run-1")
			Expect(err).ToNot(HaveOccurred())
			Expect(out).To(HaveLen(1))
		})
	})
})

func TestTerminalStatus(t *testing.T) {
	assert.Equal(t, models.RunSuccess, TerminalStatus([]models.DeviceResult{{Status: models.DeviceResultOK}}))
	assert.Equal(t, models.RunPartial, TerminalStatus([]models.DeviceResult{{Status: models.DeviceResultOK}, {Status: models.DeviceResultError}}))
	assert.Equal(t, models.RunFailed, TerminalStatus([]models.DeviceResult{{Status: models.DeviceResultError}}))
}
