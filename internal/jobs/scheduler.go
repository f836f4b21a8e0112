package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/kbsearch/internal/logging"
	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSyncInterval runs a sync at the top of every hour
const DefaultSyncInterval = "0 * * * *"

// SyncRunner performs one scheduled sync
type SyncRunner interface {
	ScheduledSync(ctx context.Context)
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseSchedule validates a five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return schedule, nil
}

// Scheduler runs the sync job on a cron expression
type Scheduler struct {
	runner    SyncRunner
	expr      string
	schedule  cron.Schedule
	scheduler gocron.Scheduler
	job       gocron.Job
	ctx       context.Context
	now       func() time.Time
	log       *logrus.Entry
}

// NewScheduler creates a Scheduler for expr. The job is registered but does
// not fire until Start.
func NewScheduler(runner SyncRunner, expr string) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSyncInterval
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.Local))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		runner:    runner,
		expr:      expr,
		schedule:  schedule,
		scheduler: scheduler,
		ctx:       context.Background(),
		now:       time.Now,
		log:       logging.Component("scheduler").WithField("cron", expr),
	}

	// A sync still running when the next tick arrives skips that tick.
	job, err := scheduler.NewJob(
		gocron.CronJob(expr, false),
		gocron.NewTask(s.run),
		gocron.WithName("knowledge_sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	s.job = job

	return s, nil
}

// Expression returns the cron expression
func (s *Scheduler) Expression() string {
	return s.expr
}

// Start begins firing the sync job. Scheduled syncs run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.scheduler.Start()
	if next, ok := s.NextRun(); ok {
		s.log.WithField("next_run", next).Info("scheduler started")
	}
}

// Stop waits for a running sync to return and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.log.Info("scheduler stopped")
	return nil
}

// NextRun reports when the sync job fires next. Before Start it is computed
// from the expression.
func (s *Scheduler) NextRun() (time.Time, bool) {
	if s.job != nil {
		if next, err := s.job.NextRun(); err == nil && !next.IsZero() {
			return next, true
		}
	}
	next := s.schedule.Next(s.now())
	return next, !next.IsZero()
}

func (s *Scheduler) run() {
	s.log.Debug("scheduled sync firing")
	s.runner.ScheduledSync(s.ctx)
}
