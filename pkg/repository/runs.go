package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// RunRepository owns JobRun and DeviceResult persistence, enforcing that
// processed is non-decreasing and <= total, and that terminal states are
// write-once, at the SQL layer rather than trusting callers.
type RunRepository struct {
	db     *sqlx.DB
	logger *logrus.Entry
}

func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db, logger: cockpitlog.WithComponent("repository.runs")}
}

// Create inserts a pending JobRun with total = |devices|.
func (r *RunRepository) Create(ctx context.Context, run *models.JobRun) (*models.JobRun, error) {
	if run.ID == "" {
		return nil, fmt.Errorf("repository: run id must be pre-assigned (uuid)")
	}
	run.Status = models.RunPending
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO job_runs (id, template_id, type, status, started_by, started_at, processed, total, metadata)
		VALUES ($1,$2,$3,$4,$5, now(), 0, $6, $7)
		RETURNING started_at`,
		run.ID, run.TemplateID, run.Type, run.Status, run.StartedBy, run.Total, run.Metadata)
	if err := row.Scan(&run.StartedAt); err != nil {
		return nil, fmt.Errorf("repository: create run: %w", err)
	}
	return run, nil
}

func (r *RunRepository) Get(ctx context.Context, id string) (*models.JobRun, error) {
	var run models.JobRun
	if err := r.db.GetContext(ctx, &run, `SELECT * FROM job_runs WHERE id=$1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("job run %s not found", id))
		}
		return nil, fmt.Errorf("repository: get run %s: %w", id, err)
	}
	return &run, nil
}

// MarkRunning transitions pending -> running on first worker
// acknowledgement. A no-op (not an error) if already running or terminal.
func (r *RunRepository) MarkRunning(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE job_runs SET status='running' WHERE id=$1 AND status='pending'`, id)
	if err != nil {
		return fmt.Errorf("repository: mark run %s running: %w", id, err)
	}
	return nil
}

// IncrementProcessed bumps processed by one, guarded so it can never
// exceed total.
func (r *RunRepository) IncrementProcessed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE job_runs SET processed = processed + 1 WHERE id=$1 AND processed < total`, id)
	if err != nil {
		return fmt.Errorf("repository: increment run %s progress: %w", id, err)
	}
	return nil
}

// Finalize closes a run with a terminal status. This only applies
// while the run is non-terminal; an already-terminal run is left
// untouched and callers get NotFound-shaped silence rather than a second
// write, which would otherwise let a duplicate finaliser corrupt history.
func (r *RunRepository) Finalize(ctx context.Context, id string, status models.RunStatus, resultSummary, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("repository: finalize requires a terminal status, got %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE job_runs SET status=$1, completed_at=now(), result_summary=$2, error=$3
		WHERE id=$4 AND status NOT IN ('success','failed','partial','cancelled')`,
		status, resultSummary, errMsg, id)
	if err != nil {
		return fmt.Errorf("repository: finalize run %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		r.logger.WithField("run_id", id).Debug("run already terminal, finalize skipped")
	}
	return nil
}

// Cancel sets the cooperative cancellation flag. The run itself
// transitions to Cancelled only once a worker observes the flag and the
// finaliser runs.
func (r *RunRepository) Cancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE job_runs SET cancelled = true WHERE id=$1 AND status IN ('pending','running')`, id)
	if err != nil {
		return fmt.Errorf("repository: cancel run %s: %w", id, err)
	}
	return requireRowAffected(res, "job run", id)
}

func (r *RunRepository) IsCancelled(ctx context.Context, id string) (bool, error) {
	var cancelled bool
	if err := r.db.GetContext(ctx, &cancelled, `SELECT cancelled FROM job_runs WHERE id=$1`, id); err != nil {
		return false, fmt.Errorf("repository: check run %s cancelled: %w", id, err)
	}
	return cancelled, nil
}

// List supports GET /jobs: newest first, optionally filtered by template id.
func (r *RunRepository) List(ctx context.Context, templateID *int64, limit int) ([]models.JobRun, error) {
	var out []models.JobRun
	var err error
	if templateID != nil {
		err = r.db.SelectContext(ctx, &out, `SELECT * FROM job_runs WHERE template_id=$1 ORDER BY started_at DESC LIMIT $2`, *templateID, limit)
	} else {
		err = r.db.SelectContext(ctx, &out, `SELECT * FROM job_runs ORDER BY started_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: list runs: %w", err)
	}
	return out, nil
}

// DeviceResultRepository owns the per-run per-device outcome rows.
type DeviceResultRepository struct {
	db *sqlx.DB
}

func NewDeviceResultRepository(db *sqlx.DB) *DeviceResultRepository {
	return &DeviceResultRepository{db: db}
}

// Upsert writes one DeviceResult per device per run, used by every
// per-device executor task.
func (r *DeviceResultRepository) Upsert(ctx context.Context, dr *models.DeviceResult) error {
	if dr.ProcessedAt.IsZero() {
		dr.ProcessedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_results (run_id, device_name, device_id, status, result_blob, error_message, processed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (run_id, device_name) DO UPDATE SET
			status=EXCLUDED.status, result_blob=EXCLUDED.result_blob,
			error_message=EXCLUDED.error_message, processed_at=EXCLUDED.processed_at`,
		dr.RunID, dr.DeviceName, dr.DeviceID, dr.Status, dr.ResultBlob, dr.ErrorMessage, dr.ProcessedAt)
	if err != nil {
		return fmt.Errorf("repository: upsert device result %s/%s: %w", dr.RunID, dr.DeviceName, err)
	}
	return nil
}

func (r *DeviceResultRepository) ListForRun(ctx context.Context, runID string) ([]models.DeviceResult, error) {
	var out []models.DeviceResult
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM device_results WHERE run_id=$1 ORDER BY device_name`, runID); err != nil {
		return nil, fmt.Errorf("repository: list device results for %s: %w", runID, err)
	}
	return out, nil
}

// TerminalStatus computes the run-level aggregate: success if every
// result is ok, partial if mixed, failed if none ok.
func TerminalStatus(results []models.DeviceResult) models.RunStatus {
	var ok, bad int
	for _, r := range results {
		if r.Status == models.DeviceResultOK {
			ok++
		} else if r.Status == models.DeviceResultError {
			bad++
		}
	}
	switch {
	case ok > 0 && bad == 0:
		return models.RunSuccess
	case ok > 0 && bad > 0:
		return models.RunPartial
	default:
		return models.RunFailed
	}
}
