package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// NB2CMKJobRepository tracks the async device-comparison jobs the
// Nautobot-to-CheckMK reconcile view runs, plus their per-device
// outcomes. Progress is reconstructed from these rows the same way
// JobRun progress is in RunRepository: a job's device comparisons may be
// processed concurrently across workers.
type NB2CMKJobRepository struct {
	db *sqlx.DB
}

func NewNB2CMKJobRepository(db *sqlx.DB) *NB2CMKJobRepository {
	return &NB2CMKJobRepository{db: db}
}

// Create inserts a pending job; id must be pre-assigned (uuid), matching
// RunRepository.Create's convention.
func (r *NB2CMKJobRepository) Create(ctx context.Context, job *models.NB2CMKJob) (*models.NB2CMKJob, error) {
	if job.ID == "" {
		return nil, fmt.Errorf("repository: nb2cmk job id must be pre-assigned (uuid)")
	}
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO nb2cmk_jobs (id, total, processed, started_at)
		VALUES ($1,$2,0, now()) RETURNING started_at`,
		job.ID, job.Total)
	if err := row.Scan(&job.StartedAt); err != nil {
		return nil, fmt.Errorf("repository: create nb2cmk job: %w", err)
	}
	return job, nil
}

func (r *NB2CMKJobRepository) Get(ctx context.Context, id string) (*models.NB2CMKJob, error) {
	var job models.NB2CMKJob
	if err := r.db.GetContext(ctx, &job, `SELECT * FROM nb2cmk_jobs WHERE id=$1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("nb2cmk job %q not found", id))
		}
		return nil, fmt.Errorf("repository: get nb2cmk job %q: %w", id, err)
	}
	return &job, nil
}

// AddResult records one device's comparison outcome and advances the
// job's processed counter atomically, the way RunRepository.IncrementProcessed
// advances a JobRun's progress.
func (r *NB2CMKJobRepository) AddResult(ctx context.Context, res *models.NB2CMKJobResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin nb2cmk result tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowxContext(ctx, `
		INSERT INTO nb2cmk_job_results (job_id, device_name, outcome, detail)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		res.JobID, res.DeviceName, res.Outcome, res.Detail)
	if err := row.Scan(&res.ID); err != nil {
		return fmt.Errorf("repository: insert nb2cmk result: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE nb2cmk_jobs SET processed = processed + 1 WHERE id=$1`, res.JobID); err != nil {
		return fmt.Errorf("repository: advance nb2cmk job %q: %w", res.JobID, err)
	}
	return tx.Commit()
}

// Complete stamps completed_at once every device has been processed; the
// finalizer calls this rather than trusting in-memory counts.
func (r *NB2CMKJobRepository) Complete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE nb2cmk_jobs SET completed_at = now() WHERE id=$1 AND completed_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("repository: complete nb2cmk job %q: %w", id, err)
	}
	return requireRowAffected(res, "nb2cmk job", id)
}

func (r *NB2CMKJobRepository) Results(ctx context.Context, jobID string) ([]models.NB2CMKJobResult, error) {
	var out []models.NB2CMKJobResult
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM nb2cmk_job_results WHERE job_id=$1 ORDER BY id`, jobID); err != nil {
		return nil, fmt.Errorf("repository: list nb2cmk results for %q: %w", jobID, err)
	}
	return out, nil
}
