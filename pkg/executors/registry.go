package executors

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
)

// DeviceContext is everything a per-device executor invocation needs:
// the run it belongs to, the template configuration (already
// JSON-decoded by the caller into the executor-specific shape), and the
// device the task targets.
type DeviceContext struct {
	RunID    string
	Template *models.JobTemplate
	Device   nautobot.Device
}

// DeviceOutcome is what a per-device executor invocation produces; the
// dispatcher turns it directly into a DeviceResult row.
type DeviceOutcome struct {
	Status     models.DeviceResultStatus
	ResultBlob []byte
	Error      string
}

// Handler executes one job_type against one device.
type Handler func(ctx context.Context, dc DeviceContext) DeviceOutcome

// Finalizer runs once per run after every device task completes, for
// job types with an aggregate side-effect (git push, activate_changes).
// Implementations that don't need one leave it nil.
type Finalizer func(ctx context.Context, run *models.JobRun, template *models.JobTemplate, outcomes []DeviceOutcome) error

// Registry maps job_type to its Handler/Finalizer pair, mirroring
// kubernaut's ActionRegistry (Register/Unregister/IsRegistered/Execute).
type Registry struct {
	mu         sync.RWMutex
	handlers   map[models.JobType]Handler
	finalizers map[models.JobType]Finalizer
}

func NewRegistry() *Registry {
	return &Registry{
		handlers:   make(map[models.JobType]Handler),
		finalizers: make(map[models.JobType]Finalizer),
	}
}

// Register adds a handler for jobType, rejecting a duplicate registration.
func (r *Registry) Register(jobType models.JobType, handler Handler, finalizer Finalizer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[jobType]; exists {
		return fmt.Errorf("executors: job type %q already registered", jobType)
	}
	r.handlers[jobType] = handler
	if finalizer != nil {
		r.finalizers[jobType] = finalizer
	}
	return nil
}

func (r *Registry) Unregister(jobType models.JobType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, jobType)
	delete(r.finalizers, jobType)
}

func (r *Registry) IsRegistered(jobType models.JobType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[jobType]
	return ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Execute runs the handler registered for dc.Template.JobType.
func (r *Registry) Execute(ctx context.Context, jobType models.JobType, dc DeviceContext) (DeviceOutcome, error) {
	r.mu.RLock()
	handler, ok := r.handlers[jobType]
	r.mu.RUnlock()
	if !ok {
		return DeviceOutcome{}, fmt.Errorf("executors: unknown job type %q", jobType)
	}
	return handler(ctx, dc), nil
}

// Finalize runs the finalizer registered for jobType, if any.
func (r *Registry) Finalize(ctx context.Context, jobType models.JobType, run *models.JobRun, template *models.JobTemplate, outcomes []DeviceOutcome) error {
	r.mu.RLock()
	finalizer, ok := r.finalizers[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return finalizer(ctx, run, template, outcomes)
}
