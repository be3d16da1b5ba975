// Package jobs owns the run lifecycle: resolving a template's device set,
// creating the JobRun row, fanning per-device work out over the broker, and
// closing the run once every device task lands. It is the glue between
// pkg/executors (what a device task does) and pkg/broker/pkg/workerpool
// (how it gets run), generalizing kubernaut's ActionRegistry-backed
// reconcile loop from a single resource to a per-device fan-out.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/broker"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/executors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/inventory"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/repository"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/workerpool"
)

// DeviceTaskName is the broker/workerpool task name every per-device
// execution is published and consumed under, regardless of job_type.
const DeviceTaskName = "cockpit.device_task"

// DeviceSource resolves the full device inventory the dispatcher filters
// down per template. Satisfied by *nautobot.Resolvers.
type DeviceSource interface {
	Devices(ctx context.Context) ([]nautobot.Device, error)
}

// Dispatcher implements pkg/jobscheduler.Dispatcher and is the API layer's
// entrypoint for starting, cancelling, and inspecting runs.
type Dispatcher struct {
	templates   *repository.TemplateRepository
	inventories *repository.InventoryRepository
	runs        *repository.RunRepository
	results     *repository.DeviceResultRepository
	devices     DeviceSource
	registry    *executors.Registry
	brk         *broker.Client
	logger      *logrus.Entry
}

func NewDispatcher(
	templates *repository.TemplateRepository,
	inventories *repository.InventoryRepository,
	runs *repository.RunRepository,
	results *repository.DeviceResultRepository,
	devices DeviceSource,
	registry *executors.Registry,
	brk *broker.Client,
) *Dispatcher {
	return &Dispatcher{
		templates:   templates,
		inventories: inventories,
		runs:        runs,
		results:     results,
		devices:     devices,
		registry:    registry,
		brk:         brk,
		logger:      cockpitlog.WithComponent("jobs"),
	}
}

// deviceTaskPayload is the broker kwargs for one per-device task.
type deviceTaskPayload struct {
	RunID      string          `json:"run_id"`
	TemplateID int64           `json:"template_id"`
	Device     nautobot.Device `json:"device"`
}

// StartRun resolves templateID's device set, creates a pending JobRun with
// total = |devices|, and publishes one task per device. It returns as soon
// as the run is created and tasks are queued; execution happens
// asynchronously on the worker pool. A template whose resolved device set
// is empty is finalized immediately rather than left pending forever. A
// scan_prefixes template whose config leaves set_active_on_reachable unset
// is rejected with a Validation error before any run is created.
func (d *Dispatcher) StartRun(ctx context.Context, templateID int64, startedBy string) (*models.JobRun, error) {
	tmpl, err := d.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.JobType == models.JobScanPrefixes {
		var cfg executors.ScanPrefixesConfig
		if err := json.Unmarshal(tmpl.Config, &cfg); err != nil || cfg.SetActiveOnReachable == nil {
			return nil, apperrors.New(apperrors.Validation, "scan_prefixes template must set set_active_on_reachable explicitly")
		}
	}

	devices, err := d.resolveDevices(ctx, tmpl, startedBy)
	if err != nil {
		return nil, fmt.Errorf("jobs: resolve device set: %w", err)
	}

	run := &models.JobRun{
		ID:         uuid.New().String(),
		TemplateID: tmpl.ID,
		Type:       tmpl.JobType,
		StartedBy:  startedBy,
		Total:      len(devices),
	}
	if _, err := d.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("jobs: create run: %w", err)
	}

	if len(devices) == 0 {
		if ferr := d.finalize(ctx, run, tmpl); ferr != nil {
			d.logger.WithError(ferr).WithField("run_id", run.ID).Error("finalize empty run failed")
		}
		return run, nil
	}

	for _, device := range devices {
		payload := deviceTaskPayload{RunID: run.ID, TemplateID: tmpl.ID, Device: device}
		if _, err := d.brk.Publish(ctx, DeviceTaskName, payload, ""); err != nil {
			return run, fmt.Errorf("jobs: publish device task for %s: %w", device.Name, err)
		}
	}

	return run, nil
}

// StartFromSchedule implements pkg/jobscheduler.Dispatcher: a fired
// schedule starts a run the same way a manual trigger does.
func (d *Dispatcher) StartFromSchedule(ctx context.Context, schedule models.JobSchedule) error {
	_, err := d.StartRun(ctx, schedule.TemplateID, "scheduler")
	return err
}

// resolveDevices returns every device a template targets: the full
// Nautobot inventory when inventory_source is "all", or the subset
// matching a named inventory's condition tree otherwise. An ip_addresses
// template resolves to one placeholder device, so its run has total=1.
func (d *Dispatcher) resolveDevices(ctx context.Context, tmpl *models.JobTemplate, username string) ([]nautobot.Device, error) {
	if tmpl.JobType == models.JobIPAddresses {
		return []nautobot.Device{{Name: string(models.JobIPAddresses)}}, nil
	}
	all, err := d.devices.Devices(ctx)
	if err != nil {
		return nil, err
	}
	if tmpl.InventorySource != models.InventorySourceInventory || tmpl.InventoryName == "" {
		return all, nil
	}

	inv, err := d.inventories.GetByName(ctx, tmpl.InventoryName, username)
	if err != nil {
		return nil, err
	}
	tree, err := inventory.Parse(inv.Conditions)
	if err != nil {
		return nil, err
	}

	matched := make([]nautobot.Device, 0, len(all))
	for _, device := range all {
		ok, err := inventory.Evaluate(tree, device)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, device)
		}
	}
	return matched, nil
}

// RegisterWorker binds the per-device execution handler to pool under
// DeviceTaskName. Call once per worker process after constructing both.
func (d *Dispatcher) RegisterWorker(pool *workerpool.Pool) {
	pool.Register(DeviceTaskName, d.executeDeviceTask)
}

// executeDeviceTask is the workerpool.Handler for one device task: mark the
// run running on first arrival, honor cooperative cancellation, run the
// job_type's registered executor, persist the outcome, bump progress, and
// finalize once every device has landed.
func (d *Dispatcher) executeDeviceTask(ctx context.Context, kwargs []byte) (any, error) {
	var payload deviceTaskPayload
	if err := json.Unmarshal(kwargs, &payload); err != nil {
		return nil, fmt.Errorf("jobs: unmarshal device task: %w", err)
	}

	if err := d.runs.MarkRunning(ctx, payload.RunID); err != nil {
		return nil, err
	}

	cancelled, err := d.runs.IsCancelled(ctx, payload.RunID)
	if err != nil {
		return nil, err
	}
	if cancelled {
		if err := d.runs.IncrementProcessed(ctx, payload.RunID); err != nil {
			d.logger.WithError(err).WithField("run_id", payload.RunID).Warn("increment processed failed")
		}
		if run, gerr := d.runs.Get(ctx, payload.RunID); gerr == nil && run.Processed >= run.Total {
			if tmpl, terr := d.templates.Get(ctx, payload.TemplateID); terr == nil {
				if ferr := d.finalize(ctx, run, tmpl); ferr != nil {
					d.logger.WithError(ferr).WithField("run_id", run.ID).Error("finalize run failed")
				}
			}
		}
		return map[string]string{"status": "skipped_cancelled"}, nil
	}

	tmpl, err := d.templates.Get(ctx, payload.TemplateID)
	if err != nil {
		return nil, err
	}

	dc := executors.DeviceContext{RunID: payload.RunID, Template: tmpl, Device: payload.Device}
	outcome, err := d.registry.Execute(ctx, tmpl.JobType, dc)
	if err != nil {
		outcome = executors.DeviceOutcome{Status: models.DeviceResultError, Error: err.Error()}
	}

	dr := &models.DeviceResult{
		RunID:        payload.RunID,
		DeviceName:   payload.Device.Name,
		DeviceID:     payload.Device.ID,
		Status:       outcome.Status,
		ResultBlob:   json.RawMessage(outcome.ResultBlob),
		ErrorMessage: outcome.Error,
	}
	if err := d.results.Upsert(ctx, dr); err != nil {
		return nil, err
	}

	if err := d.runs.IncrementProcessed(ctx, payload.RunID); err != nil {
		d.logger.WithError(err).WithField("run_id", payload.RunID).Warn("increment processed failed")
	}

	run, err := d.runs.Get(ctx, payload.RunID)
	if err == nil && run.Processed >= run.Total {
		if ferr := d.finalize(ctx, run, tmpl); ferr != nil {
			d.logger.WithError(ferr).WithField("run_id", run.ID).Error("finalize run failed")
		}
	}

	return map[string]string{"status": string(outcome.Status)}, nil
}

// finalize runs the job_type's aggregate Finalizer (if any) and closes the
// run with its terminal status. Outcomes are reconstructed from every
// persisted DeviceResult rather than kept in memory, since per-device tasks
// for the same run may execute on different worker processes.
func (d *Dispatcher) finalize(ctx context.Context, run *models.JobRun, tmpl *models.JobTemplate) error {
	results, err := d.results.ListForRun(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("jobs: finalize: list device results: %w", err)
	}

	outcomes := make([]executors.DeviceOutcome, 0, len(results))
	for _, r := range results {
		outcomes = append(outcomes, executors.DeviceOutcome{Status: r.Status, ResultBlob: r.ResultBlob, Error: r.ErrorMessage})
	}

	status := repository.TerminalStatus(results)
	if cancelled, err := d.runs.IsCancelled(ctx, run.ID); err == nil && cancelled {
		status = models.RunCancelled
	}

	errMsg := ""
	if ferr := d.registry.Finalize(ctx, tmpl.JobType, run, tmpl, outcomes); ferr != nil {
		errMsg = ferr.Error()
		d.logger.WithError(ferr).WithField("run_id", run.ID).Error("job_type finalizer failed")
	}

	summary := fmt.Sprintf("%d/%d device(s) ok", countOK(results), len(results))
	return d.runs.Finalize(ctx, run.ID, status, summary, errMsg)
}

func countOK(results []models.DeviceResult) int {
	n := 0
	for _, r := range results {
		if r.Status == models.DeviceResultOK {
			n++
		}
	}
	return n
}

// Cancel sets the cooperative cancellation flag checked by
// executeDeviceTask between devices. The run itself transitions to
// Cancelled only once the last in-flight device task finalizes.
func (d *Dispatcher) Cancel(ctx context.Context, runID string) error {
	return d.runs.Cancel(ctx, runID)
}

// GetRun, ListRuns and RunResults back the API's job inspection endpoints.
func (d *Dispatcher) GetRun(ctx context.Context, runID string) (*models.JobRun, error) {
	return d.runs.Get(ctx, runID)
}

func (d *Dispatcher) ListRuns(ctx context.Context, templateID *int64, limit int) ([]models.JobRun, error) {
	return d.runs.List(ctx, templateID, limit)
}

func (d *Dispatcher) RunResults(ctx context.Context, runID string) ([]models.DeviceResult, error) {
	return d.results.ListForRun(ctx, runID)
}
