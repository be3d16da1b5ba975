package executors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/reconcile"
)

type compareDevicesResultBlob struct {
	Outcome models.NB2CMKComparison `json:"outcome"`
	Detail  string                  `json:"detail,omitempty"`
}

// NewCompareDevicesHandler implements compare_devices: a read-only run of
// the reconciliation engine's NAUTOBOT_FETCH -> NORMALISE -> CHECKMK_GET ->
// COMPARE state machine, without the sync_devices handler's write-back
// step. Used to preview drift before committing to a sync.
func NewCompareDevicesHandler(engine *reconcile.Engine) Handler {
	return func(ctx context.Context, dc DeviceContext) DeviceOutcome {
		outcome, _, err := engine.CompareDevice(ctx, dc.Device)
		if err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: err.Error()}
		}

		blob, _ := json.Marshal(compareDevicesResultBlob{Outcome: outcome})
		status := models.DeviceResultOK
		if outcome == models.CmpError {
			status = models.DeviceResultError
		}
		return DeviceOutcome{Status: status, ResultBlob: blob}
	}
}

// NB2CMKJobs is the subset of NB2CMKJobRepository the compare_devices
// finalizer needs, kept as an interface so executors doesn't import
// repository's sqlx dependency directly.
type NB2CMKJobs interface {
	Create(ctx context.Context, job *models.NB2CMKJob) (*models.NB2CMKJob, error)
	AddResult(ctx context.Context, res *models.NB2CMKJobResult) error
	Complete(ctx context.Context, id string) error
}

// DeviceResults is the subset of DeviceResultRepository the compare_devices
// finalizer needs to recover per-device outcomes, since Finalizer's
// outcomes slice carries status/blob but not device identity.
type DeviceResults interface {
	ListForRun(ctx context.Context, runID string) ([]models.DeviceResult, error)
}

// NewCompareDevicesFinalizer projects the run's DeviceResult rows into the
// NB2CMKJob/NB2CMKJobResult aggregate the reconciliation view reads,
// reusing the run's own id as the job id so the two ledgers stay linked.
func NewCompareDevicesFinalizer(jobs NB2CMKJobs, results DeviceResults) Finalizer {
	return func(ctx context.Context, run *models.JobRun, template *models.JobTemplate, outcomes []DeviceOutcome) error {
		job := &models.NB2CMKJob{ID: run.ID, Total: run.Total}
		if _, err := jobs.Create(ctx, job); err != nil {
			return fmt.Errorf("executors: compare_devices finalizer: create nb2cmk job: %w", err)
		}

		rows, err := results.ListForRun(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("executors: compare_devices finalizer: list results: %w", err)
		}

		for _, row := range rows {
			var blob compareDevicesResultBlob
			outcome := models.CmpError
			detail := row.ErrorMessage
			if row.ResultBlob != nil {
				if err := json.Unmarshal(row.ResultBlob, &blob); err == nil {
					outcome = blob.Outcome
					detail = blob.Detail
				}
			}
			res := &models.NB2CMKJobResult{JobID: job.ID, DeviceName: row.DeviceName, Outcome: outcome, Detail: detail}
			if err := jobs.AddResult(ctx, res); err != nil {
				return fmt.Errorf("executors: compare_devices finalizer: record result for %q: %w", row.DeviceName, err)
			}
		}

		if err := jobs.Complete(ctx, job.ID); err != nil {
			return fmt.Errorf("executors: compare_devices finalizer: complete job: %w", err)
		}
		return nil
	}
}
