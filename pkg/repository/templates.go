// Package repository implements CRUD and lifecycle operations over the
// domain entities, grounded on kubernaut's repository shape
// (NewXRepository(db, logger), context-first methods, sqlx struct
// scanning) enriched with cuemby-warren's bucket/table repository
// conventions for entities the retrieval pack's kubernaut tests don't
// cover directly.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// TemplateRepository is the Job Registry's CRUD surface over JobTemplate.
type TemplateRepository struct {
	db     *sqlx.DB
	logger *logrus.Entry
}

func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db, logger: cockpitlog.WithComponent("repository.templates")}
}

func (r *TemplateRepository) Create(ctx context.Context, t *models.JobTemplate) (*models.JobTemplate, error) {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO job_templates (name, job_type, inventory_source, inventory_name, config, is_global, created_by, timestamp_custom_field, activate_changes_after_sync, non_overlapping, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
		RETURNING id, created_at`,
		t.Name, t.JobType, t.InventorySource, t.InventoryName, t.Config, t.IsGlobal, t.CreatedBy, t.TimestampCustomField, t.ActivateChangesAfterSync, t.NonOverlapping)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return nil, fmt.Errorf("repository: create template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepository) Get(ctx context.Context, id int64) (*models.JobTemplate, error) {
	var t models.JobTemplate
	if err := r.db.GetContext(ctx, &t, `SELECT * FROM job_templates WHERE id=$1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("job template %d not found", id))
		}
		return nil, fmt.Errorf("repository: get template %d: %w", id, err)
	}
	return &t, nil
}

// List returns every template visible to username: globally scoped ones
// plus any owned privately by that user.
func (r *TemplateRepository) List(ctx context.Context, username string) ([]models.JobTemplate, error) {
	var out []models.JobTemplate
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM job_templates WHERE is_global = true OR created_by = $1 ORDER BY id`, username)
	if err != nil {
		return nil, fmt.Errorf("repository: list templates: %w", err)
	}
	return out, nil
}

func (r *TemplateRepository) Update(ctx context.Context, t *models.JobTemplate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE job_templates SET name=$1, job_type=$2, inventory_source=$3, inventory_name=$4, config=$5,
			is_global=$6, timestamp_custom_field=$7, activate_changes_after_sync=$8, non_overlapping=$9
		WHERE id=$10`,
		t.Name, t.JobType, t.InventorySource, t.InventoryName, t.Config, t.IsGlobal, t.TimestampCustomField, t.ActivateChangesAfterSync, t.NonOverlapping, t.ID)
	if err != nil {
		return fmt.Errorf("repository: update template %d: %w", t.ID, err)
	}
	return requireRowAffected(res, "job template", t.ID)
}

func (r *TemplateRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM job_templates WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("repository: delete template %d: %w", id, err)
	}
	return requireRowAffected(res, "job template", id)
}

// ScheduleRepository is the Job Registry's CRUD surface over JobSchedule.
type ScheduleRepository struct {
	db     *sqlx.DB
	logger *logrus.Entry
}

func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: cockpitlog.WithComponent("repository.schedules")}
}

func (r *ScheduleRepository) Create(ctx context.Context, s *models.JobSchedule) (*models.JobSchedule, error) {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO job_schedules (template_id, cron_expr, enabled, credential_id)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		s.TemplateID, s.CronExpr, s.Enabled, s.CredentialID)
	if err := row.Scan(&s.ID); err != nil {
		return nil, fmt.Errorf("repository: create schedule: %w", err)
	}
	return s, nil
}

// DueSchedules returns every enabled schedule, for the Scheduler's tick
// evaluation; cron-expression matching happens in pkg/jobscheduler.
func (r *ScheduleRepository) DueSchedules(ctx context.Context) ([]models.JobSchedule, error) {
	var out []models.JobSchedule
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM job_schedules WHERE enabled = true`); err != nil {
		return nil, fmt.Errorf("repository: list due schedules: %w", err)
	}
	return out, nil
}

func (r *ScheduleRepository) MarkFired(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE job_schedules SET last_fired_at = now() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("repository: mark schedule %d fired: %w", id, err)
	}
	return nil
}

func (r *ScheduleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM job_schedules WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("repository: delete schedule %d: %w", id, err)
	}
	return requireRowAffected(res, "job schedule", id)
}

// requireRowAffected is the shared "exactly one row must have been touched"
// guard used by every Update/Delete in this package.
func requireRowAffected(res sql.Result, kind string, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.NotFound, fmt.Sprintf("%s %v not found", kind, id))
	}
	return nil
}

func marshalConfig(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("repository: marshal config: %w", err)
	}
	return b, nil
}
