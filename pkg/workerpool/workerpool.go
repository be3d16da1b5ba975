// Package workerpool implements the per-queue worker goroutine pool:
// prefetch=1, max tasks per child=100 (recycle to bound memory),
// per-task time limit. Adapted from cuemby-warren's pkg/worker/worker.go
// (handler map + mutex-guarded state, ticker-driven loops, stopCh
// shutdown) generalised from a single gRPC container worker to a generic
// per-queue goroutine pool consuming from pkg/broker.
package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/broker"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
)

const (
	defaultMaxTasksPerChild = 100
	defaultTaskTimeLimit    = time.Hour
	consumeTimeout          = 2 * time.Second
)

// Handler executes one task envelope's kwargs and returns a JSON-encodable
// result or an error. Registered per task name by Pool.Register, mirroring
// kubernaut's pkg/executor Register/Unregister/IsRegistered registry shape.
type Handler func(ctx context.Context, kwargs []byte) (any, error)

// Pool runs one goroutine ("child") per queue, each pulling tasks with
// prefetch=1 (at most one in flight at a time) and recycling itself after
// processing maxTasksPerChild tasks.
type Pool struct {
	broker           *broker.Client
	logger           *logrus.Entry
	maxTasksPerChild int
	taskTimeLimit    time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler

	wg     sync.WaitGroup
	stopCh chan struct{}

	tasksProcessed *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
}

// Option configures a Pool at construction.
type Option func(*Pool)

func WithMaxTasksPerChild(n int) Option { return func(p *Pool) { p.maxTasksPerChild = n } }
func WithTaskTimeLimit(d time.Duration) Option { return func(p *Pool) { p.taskTimeLimit = d } }

func New(b *broker.Client, opts ...Option) *Pool {
	p := &Pool{
		broker:           b,
		logger:           cockpitlog.WithComponent("workerpool"),
		maxTasksPerChild: defaultMaxTasksPerChild,
		taskTimeLimit:    defaultTaskTimeLimit,
		handlers:         map[string]Handler{},
		stopCh:           make(chan struct{}),
		tasksProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cockpit_worker_tasks_processed_total",
			Help: "Total tasks processed by the worker pool, by task name and outcome.",
		}, []string{"task_name", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "cockpit_worker_task_duration_seconds",
			Help: "Task execution duration in seconds.",
		}, []string{"task_name"}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Register binds a task name to its handler. Re-registering the same name
// overwrites the previous handler.
func (p *Pool) Register(taskName string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskName] = h
}

func (p *Pool) IsRegistered(taskName string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.handlers[taskName]
	return ok
}

func (p *Pool) handlerFor(taskName string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[taskName]
	return h, ok
}

// Collector exposes the pool's prometheus metrics for registration with a
// process-wide registry.
func (p *Pool) Collector() []prometheus.Collector {
	return []prometheus.Collector{p.tasksProcessed, p.taskDuration}
}

// Start spawns one child goroutine per queue in queues. Each child recycles
// (returns and is respawned) after maxTasksPerChild tasks, bounding memory
// growth from any per-task leak.
func (p *Pool) Start(ctx context.Context, queues []string) {
	for _, queue := range queues {
		p.wg.Add(1)
		go p.runChild(ctx, queue)
	}
}

// Stop signals every child to exit after its current task and waits for
// them to drain.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) runChild(ctx context.Context, queue string) {
	defer p.wg.Done()
	log := p.logger.WithField("queue", queue)
	log.Info("worker child started")

	for {
		processed := 0
		for processed < p.maxTasksPerChild {
			select {
			case <-p.stopCh:
				log.Info("worker child stopping")
				return
			case <-ctx.Done():
				return
			default:
			}

			envelope, err := p.broker.Consume(ctx, queue, consumeTimeout)
			if err != nil {
				log.WithError(err).Warn("consume failed, retrying")
				continue
			}
			if envelope == nil {
				continue // consume timeout, no task available
			}

			p.execute(ctx, envelope)
			processed++
		}
		log.WithField("tasks_processed", processed).Info("worker child recycling")
		p.wg.Add(1)
		go p.runChild(ctx, queue)
		return
	}
}

func (p *Pool) execute(parent context.Context, envelope *broker.TaskEnvelope) {
	log := p.logger.WithFields(logrus.Fields{"task_id": envelope.TaskID, "task_name": envelope.TaskName})

	handler, ok := p.handlerFor(envelope.TaskName)
	if !ok {
		log.Error("no handler registered for task")
		_ = p.broker.SetResult(parent, envelope.TaskID, broker.Result{State: broker.StateFailure})
		p.tasksProcessed.WithLabelValues(envelope.TaskName, "unregistered").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(parent, p.taskTimeLimit)
	defer cancel()

	start := time.Now()
	result, err := handler(ctx, envelope.Kwargs)
	duration := time.Since(start)
	p.taskDuration.WithLabelValues(envelope.TaskName).Observe(duration.Seconds())

	if err != nil {
		log.WithError(err).WithField("duration", duration).Error("task failed")
		_ = p.broker.SetResult(parent, envelope.TaskID, broker.Result{State: broker.StateFailure, Payload: errorPayload(err)})
		p.tasksProcessed.WithLabelValues(envelope.TaskName, "failure").Inc()
		return
	}

	payload, merr := broker.MarshalPayload(result)
	if merr != nil {
		log.WithError(merr).Error("failed to marshal task result")
		_ = p.broker.SetResult(parent, envelope.TaskID, broker.Result{State: broker.StateFailure, Payload: errorPayload(merr)})
		p.tasksProcessed.WithLabelValues(envelope.TaskName, "failure").Inc()
		return
	}

	_ = p.broker.SetResult(parent, envelope.TaskID, broker.Result{State: broker.StateSuccess, Payload: payload})
	log.WithField("duration", duration).Debug("task completed")
	p.tasksProcessed.WithLabelValues(envelope.TaskName, "success").Inc()
}

func errorPayload(err error) []byte {
	payload, _ := broker.MarshalPayload(map[string]string{"error": err.Error()})
	return payload
}
