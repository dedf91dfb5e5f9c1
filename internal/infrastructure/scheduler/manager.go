// Package scheduler runs the entitlement maintenance jobs on gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/orris-inc/entitlements/internal/shared/biztime"
	"github.com/orris-inc/entitlements/internal/shared/goroutine"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// LifecycleInterval is how often due plan changes, lapsed trials and expiries
// are processed.
const LifecycleInterval = 5 * time.Minute

// TrialReminderSchedule runs the trial reminder every morning.
const TrialReminderSchedule = "0 8 * * *"

type step struct {
	name string
	job  BatchJob
}

// SchedulerManager owns one gocron scheduler for all jobs. Every job runs in
// singleton mode, so a slow run delays the next one instead of overlapping.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface

	mu      sync.Mutex
	started bool
}

// NewSchedulerManager evaluates cron expressions in the business timezone.
func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(biztime.Location()))
	if err != nil {
		return nil, err
	}
	return &SchedulerManager{scheduler: s, logger: log}, nil
}

// RegisterUsageResetJob opens fresh usage windows on the configured cron.
func (m *SchedulerManager) RegisterUsageResetJob(schedule string, job BatchJob) error {
	return m.register("usage-reset", gocron.CronJob(schedule, false), 30*time.Minute, false,
		[]string{"usage"}, step{"usage-reset", job})
}

// RegisterLifecycleJobs applies due plan changes, ends lapsed trials and
// expires subscriptions, in that order, starting immediately.
func (m *SchedulerManager) RegisterLifecycleJobs(applyChanges, endTrials, expire BatchJob) error {
	return m.register("subscription-lifecycle", gocron.DurationJob(LifecycleInterval), LifecycleInterval, true,
		[]string{"subscription"},
		step{"plan-changes", applyChanges},
		step{"trial-end", endTrials},
		step{"subscription-expire", expire},
	)
}

func (m *SchedulerManager) RegisterTrialReminderJob(job BatchJob) error {
	return m.register("trial-reminder", gocron.CronJob(TrialReminderSchedule, false), 5*time.Minute, false,
		[]string{"subscription", "trial"}, step{"trial-reminder", job})
}

func (m *SchedulerManager) register(name string, def gocron.JobDefinition, timeout time.Duration, immediate bool, tags []string, steps ...step) error {
	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithTags(tags...),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediate {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}

	task := gocron.NewTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		for _, s := range steps {
			m.run(ctx, s.name, s.job)
		}
	})

	if _, err := m.scheduler.NewJob(def, task, opts...); err != nil {
		return err
	}
	m.logger.Infow("registered job", "job", name, "steps", len(steps))
	return nil
}

// run executes one step and logs the outcome. A nil job is skipped and a
// panic is logged as a failure.
func (m *SchedulerManager) run(ctx context.Context, name string, job BatchJob) {
	if job == nil {
		return
	}
	start := time.Now()

	var processed int
	err := goroutine.Protect(m.logger, name, func() error {
		var err error
		processed, err = job.Execute(ctx)
		return err
	})

	fields := []any{"job", name, "processed", processed, "duration", time.Since(start)}
	switch {
	case err != nil:
		m.logger.Errorw("scheduled job failed", append(fields, "error", err)...)
	case processed > 0:
		m.logger.Infow("scheduled job completed", fields...)
	default:
		m.logger.Debugw("scheduled job found nothing to do", fields...)
	}
}

func (m *SchedulerManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler started", "job_count", len(m.scheduler.Jobs()))
}

// Stop waits for running jobs, then shuts the scheduler down. A stopped
// manager cannot be started again.
func (m *SchedulerManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false

	if err := m.scheduler.Shutdown(); err != nil {
		m.logger.Errorw("scheduler shutdown failed", "error", err)
		return err
	}
	m.logger.Infow("scheduler stopped")
	return nil
}

func (m *SchedulerManager) IsStarted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Jobs lists the registered jobs.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
