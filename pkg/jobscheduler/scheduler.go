// Package jobscheduler implements the scheduler process: a cooperative
// event loop over JobSchedule entries, gated by a short-TTL
// exclusive lock in the result store so exactly one replica ticks at a
// time. Loop shape grounded on cuemby-warren's pkg/scheduler/scheduler.go
// (ticker + stopCh); the lock uses the Redis "SET NX PX" pattern observed
// in kubernaut's redis integration tests.
package jobscheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

const (
	lockKey      = "cockpit:scheduler:lock"
	tickInterval = 10 * time.Second
	lockTTL      = 15 * time.Second
)

// CronMatcher decides whether a schedule is due at tick time t. Extracted
// as an interface so the scheduler loop does not depend on a specific cron
// expression dialect.
type CronMatcher interface {
	IsDue(cronExpr string, last *time.Time, t time.Time) bool
}

// ScheduleSource loads enabled schedules and their owning templates, and
// publishes a Run when one fires. Interface-shaped so jobscheduler has no
// direct dependency on the repository or dispatch packages.
type ScheduleSource interface {
	DueSchedules(ctx context.Context) ([]models.JobSchedule, error)
	MarkFired(ctx context.Context, id int64) error
}

// Dispatcher starts a Run from a fired schedule.
type Dispatcher interface {
	StartFromSchedule(ctx context.Context, schedule models.JobSchedule) error
}

// Scheduler runs the single-instance tick loop. Instance election is by
// holding lockKey in Redis; on crash, another replica acquires the lock on
// its next tick.
type Scheduler struct {
	rdb     *redis.Client
	source  ScheduleSource
	cron    CronMatcher
	dispatch Dispatcher
	logger  *logrus.Entry
	stopCh  chan struct{}
}

func New(rdb *redis.Client, source ScheduleSource, cron CronMatcher, dispatch Dispatcher) *Scheduler {
	return &Scheduler{
		rdb:      rdb,
		source:   source,
		cron:     cron,
		dispatch: dispatch,
		logger:   cockpitlog.WithComponent("scheduler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the tick loop in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick acquires the exclusive lock (skipping the cycle entirely if another
// replica already holds it) and evaluates due schedules. Missed ticks are
// not retroactively executed — fire-and-skip.
func (s *Scheduler) tick(ctx context.Context) {
	acquired, err := s.acquireLock(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("lock acquisition failed")
		return
	}
	if !acquired {
		return // another replica holds the lock this cycle
	}
	defer s.releaseLock(ctx)

	now := time.Now()
	schedules, err := s.source.DueSchedules(ctx)
	if err != nil {
		s.logger.WithError(err).Error("failed to list schedules")
		return
	}

	for _, sched := range schedules {
		if !s.cron.IsDue(sched.CronExpr, sched.LastFiredAt, now) {
			continue
		}
		if err := s.dispatch.StartFromSchedule(ctx, sched); err != nil {
			s.logger.WithError(err).WithField("schedule_id", sched.ID).Error("failed to start run from schedule")
			continue
		}
		if err := s.source.MarkFired(ctx, sched.ID); err != nil {
			s.logger.WithError(err).WithField("schedule_id", sched.ID).Error("failed to mark schedule fired")
		}
	}
}

func (s *Scheduler) acquireLock(ctx context.Context) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("jobscheduler: acquire lock: %w", err)
	}
	return ok, nil
}

func (s *Scheduler) releaseLock(ctx context.Context) {
	if err := s.rdb.Del(ctx, lockKey).Err(); err != nil {
		s.logger.WithError(err).Warn("failed to release scheduler lock")
	}
}
