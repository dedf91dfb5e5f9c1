package scheduler

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// BatchJob processes one batch and returns how many items it handled.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// BatchJobFunc adapts a function to BatchJob.
type BatchJobFunc func(ctx context.Context) (int, error)

func (f BatchJobFunc) Execute(ctx context.Context) (int, error) {
	return f(ctx)
}

// PeriodResetter opens fresh usage windows for lapsed periodic features.
type PeriodResetter interface {
	ResetUsageByPeriod(ctx context.Context, sub *subscription.Subscription) (int, error)
}

// UsageResetJob runs the period reset over every usable subscription. A
// failing subscription is logged and skipped; the errors are joined.
type UsageResetJob struct {
	subscriptions subscription.Repository
	resetter      PeriodResetter
	logger        logger.Interface
}

func NewUsageResetJob(subscriptions subscription.Repository, resetter PeriodResetter, logger logger.Interface) *UsageResetJob {
	return &UsageResetJob{
		subscriptions: subscriptions,
		resetter:      resetter,
		logger:        logger,
	}
}

func (j *UsageResetJob) Execute(ctx context.Context) (int, error) {
	subs, err := j.subscriptions.ListUsable(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list usable subscriptions: %w", err)
	}

	opened := 0
	var errs []error
	for _, sub := range subs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := j.resetter.ResetUsageByPeriod(ctx, sub)
		opened += n
		if err != nil {
			j.logger.Warnw("failed to reset usage", "subscription_id", sub.ID(), "error", err)
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID(), err))
		}
	}
	return opened, stderrors.Join(errs...)
}

// TrialLister finds trials that end soon.
type TrialLister interface {
	TrialsEndingSoon(ctx context.Context) ([]*subscription.Subscription, error)
}

// TrialReminderJob logs every trial that ends within the notice period so
// that an operator or log-based alert can follow up.
type TrialReminderJob struct {
	trials TrialLister
	logger logger.Interface
}

func NewTrialReminderJob(trials TrialLister, logger logger.Interface) *TrialReminderJob {
	return &TrialReminderJob{trials: trials, logger: logger}
}

func (j *TrialReminderJob) Execute(ctx context.Context) (int, error) {
	ending, err := j.trials.TrialsEndingSoon(ctx)
	if err != nil {
		return 0, err
	}
	for _, sub := range ending {
		j.logger.Infow("trial ending soon",
			"subscription_id", sub.ID(),
			"subscriber", sub.Subscriber().String(),
			"trial_ends_at", sub.TrialEndsAt(),
		)
	}
	return len(ending), nil
}
