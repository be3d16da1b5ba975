package executors

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/reconcile"
)

type syncDevicesResultBlob struct {
	Outcome models.NB2CMKComparison `json:"outcome"`
}

// NewSyncDevicesHandler implements sync_devices by running the
// reconciliation engine's compare+sync state machine against one device.
func NewSyncDevicesHandler(engine *reconcile.Engine) Handler {
	return func(ctx context.Context, dc DeviceContext) DeviceOutcome {
		outcome, desired, err := engine.CompareDevice(ctx, dc.Device)
		if err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: err.Error()}
		}

		if err := engine.Sync(ctx, dc.Device.Name, outcome, desired); err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: err.Error()}
		}

		blob, _ := json.Marshal(syncDevicesResultBlob{Outcome: outcome})
		return DeviceOutcome{Status: models.DeviceResultOK, ResultBlob: blob}
	}
}

// NewSyncDevicesFinalizer invokes CheckMK activate_changes once per run
// when the template sets ActivateChangesAfterSync.
func NewSyncDevicesFinalizer(engine *reconcile.Engine, sites []string) Finalizer {
	return func(ctx context.Context, run *models.JobRun, template *models.JobTemplate, outcomes []DeviceOutcome) error {
		if !template.ActivateChangesAfterSync {
			return nil
		}
		if err := engine.ActivateChanges(ctx, sites); err != nil {
			return fmt.Errorf("executors: sync_devices finalizer: activate changes: %w", err)
		}
		return nil
	}
}
