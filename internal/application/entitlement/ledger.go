package entitlement

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/biztime"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

const maxLockRetries = 3

// UsageLedger owns usage windows: finding the open one, creating it on first
// use and moving its counter.
type UsageLedger struct {
	usage    entitlement.UsageRepository
	resolver *LimitResolver
	creates  singleflight.Group
	now      func() time.Time
	logger   logger.Interface
}

func NewUsageLedger(usage entitlement.UsageRepository, resolver *LimitResolver, logger logger.Interface) *UsageLedger {
	return &UsageLedger{
		usage:    usage,
		resolver: resolver,
		now:      biztime.NowUTC,
		logger:   logger,
	}
}

// SetClock replaces the time source.
func (l *UsageLedger) SetClock(now func() time.Time) {
	l.now = now
}

// CurrentWindow returns the open window, or nil when there is none.
func (l *UsageLedger) CurrentWindow(ctx context.Context, subscriptionID, featureID uint) (*entitlement.Usage, error) {
	var window *entitlement.Usage
	err := l.withRetry(ctx, func() error {
		var err error
		window, err = l.usage.GetOpenWindow(ctx, subscriptionID, featureID, l.now())
		return err
	})
	return window, err
}

// GetOrCreateWindow returns the open window, creating it when missing. When
// two callers race, the unique window index picks the winner and the loser
// reads the winner's row.
func (l *UsageLedger) GetOrCreateWindow(ctx context.Context, sub *subscription.Subscription, feature *catalog.Feature) (*entitlement.Usage, error) {
	window, err := l.CurrentWindow(ctx, sub.ID(), feature.ID())
	if err != nil {
		return nil, err
	}
	if window != nil {
		return window, nil
	}

	// Inside a transaction the window must be created on that transaction's
	// connection, so the in-process collapse is skipped.
	if db.InTransaction(ctx) {
		return l.createWindow(ctx, sub, feature, nil)
	}

	key := fmt.Sprintf("%d:%d", sub.ID(), feature.ID())
	v, err, _ := l.creates.Do(key, func() (interface{}, error) {
		return l.createWindow(ctx, sub, feature, nil)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entitlement.Usage), nil
}

func (l *UsageLedger) createWindow(ctx context.Context, sub *subscription.Subscription, feature *catalog.Feature, resetAt *time.Time) (*entitlement.Usage, error) {
	limit, err := l.resolver.EffectiveLimit(ctx, sub, feature)
	if err != nil {
		return nil, err
	}

	now := l.now()
	validUntil := feature.ResetPeriod().WindowEnd(now)
	if validUntil != nil && !validUntil.After(now) {
		// now is inside the last second of the period
		validUntil = feature.ResetPeriod().WindowEnd(now.Add(time.Second))
	}

	window, err := entitlement.NewUsage(sub.ID(), feature.ID(), limit, validUntil, resetAt, now)
	if err != nil {
		return nil, errors.NewValidationError("invalid usage window", err.Error())
	}

	err = l.withRetry(ctx, func() error {
		return l.usage.Create(ctx, window)
	})
	if stderrors.Is(err, entitlement.ErrWindowExists) {
		winner, readErr := l.CurrentWindow(ctx, sub.ID(), feature.ID())
		if readErr != nil {
			return nil, readErr
		}
		if winner == nil {
			return nil, fmt.Errorf("usage window for subscription %d feature %d disappeared after conflict", sub.ID(), feature.ID())
		}
		l.logger.Debugw("usage window created concurrently, using existing",
			"subscription_id", sub.ID(),
			"feature_id", feature.ID(),
			"usage_id", winner.ID(),
		)
		return winner, nil
	}
	if err != nil {
		return nil, err
	}

	l.logger.Infow("usage window opened",
		"subscription_id", sub.ID(),
		"feature", feature.Slug(),
		"limit", limit,
		"window", window.WindowKey(),
	)
	return window, nil
}

// Increment adds amount to the window if the result stays within its limit.
// It returns the counter before and after the change. On
// ErrUsageLimitExceeded both values are the current, unchanged counter.
func (l *UsageLedger) Increment(ctx context.Context, window *entitlement.Usage, amount int64) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, invalidAmount(amount)
	}

	var applied bool
	err = l.withRetry(ctx, func() error {
		var err error
		applied, err = l.usage.IncrementWithinLimit(ctx, window.ID(), amount)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	current, err := l.reload(ctx, window.ID())
	if err != nil {
		return 0, 0, err
	}
	if !applied {
		return current.Used(), current.Used(), fmt.Errorf("%w: window=%d used=%d requested=%d limit=%d",
			entitlement.ErrUsageLimitExceeded, window.ID(), current.Used(), amount, current.Limit())
	}
	return current.Used() - amount, current.Used(), nil
}

// IncrementUnchecked adds amount without looking at the limit. Used when
// overage is permitted.
func (l *UsageLedger) IncrementUnchecked(ctx context.Context, window *entitlement.Usage, amount int64) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, invalidAmount(amount)
	}
	err = l.withRetry(ctx, func() error {
		return l.usage.Increment(ctx, window.ID(), amount)
	})
	if err != nil {
		return 0, 0, err
	}
	current, err := l.reload(ctx, window.ID())
	if err != nil {
		return 0, 0, err
	}
	return current.Used() - amount, current.Used(), nil
}

func (l *UsageLedger) reload(ctx context.Context, usageID uint) (*entitlement.Usage, error) {
	current, err := l.usage.GetByID(ctx, usageID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NewNotFoundError("usage window not found", fmt.Sprintf("id=%d", usageID))
	}
	return current, nil
}

// Remaining reports what is left of the feature. Boolean features report 1
// when the subscription is usable and its plan includes them, 0 otherwise.
func (l *UsageLedger) Remaining(ctx context.Context, sub *subscription.Subscription, feature *catalog.Feature) (int64, error) {
	if feature.IsBoolean() {
		if !sub.IsUsable() {
			return 0, nil
		}
		link, err := l.resolver.PlanFeature(ctx, sub, feature)
		if err != nil {
			return 0, err
		}
		if link == nil {
			return 0, nil
		}
		return 1, nil
	}

	window, err := l.CurrentWindow(ctx, sub.ID(), feature.ID())
	if err != nil {
		return 0, err
	}
	if window != nil {
		return window.Remaining(), nil
	}

	limit, err := l.resolver.EffectiveLimit(ctx, sub, feature)
	if err != nil {
		return 0, err
	}
	return max(0, limit), nil
}

// Reset zeroes the open window of one feature, or of every feature when
// featureID is nil. Windows keep their bounds and no window is created.
func (l *UsageLedger) Reset(ctx context.Context, subscriptionID uint, featureID *uint) (int64, error) {
	var touched int64
	err := l.withRetry(ctx, func() error {
		var err error
		touched, err = l.usage.ResetOpen(ctx, subscriptionID, featureID, l.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	l.logger.Infow("usage reset", "subscription_id", subscriptionID, "feature_id", featureID, "windows", touched)
	return touched, nil
}

// ResetByPeriod opens the window of the current period when the previous one
// has lapsed. It reports whether a window was opened.
func (l *UsageLedger) ResetByPeriod(ctx context.Context, sub *subscription.Subscription, feature *catalog.Feature) (bool, error) {
	window, err := l.CurrentWindow(ctx, sub.ID(), feature.ID())
	if err != nil {
		return false, err
	}
	if window != nil {
		return false, nil
	}
	now := l.now()
	if _, err := l.createWindow(ctx, sub, feature, &now); err != nil {
		return false, err
	}
	return true, nil
}

// SyncLimit copies a newly resolved limit into the open window.
func (l *UsageLedger) SyncLimit(ctx context.Context, sub *subscription.Subscription, feature *catalog.Feature) error {
	limit, err := l.resolver.EffectiveLimit(ctx, sub, feature)
	if err != nil {
		return err
	}
	return l.withRetry(ctx, func() error {
		_, err := l.usage.SetOpenLimit(ctx, sub.ID(), feature.ID(), limit, l.now())
		return err
	})
}

// History lists every window of the feature, newest first.
func (l *UsageLedger) History(ctx context.Context, subscriptionID, featureID uint) ([]*entitlement.Usage, error) {
	return l.usage.ListHistory(ctx, subscriptionID, featureID)
}

// withRetry retries lock contention reported by the driver. Anything else is
// returned as is; exhausted retries become a concurrency conflict. Inside a
// transaction op runs once: a deadlock has already rolled the transaction
// back, so only its owner can retry.
func (l *UsageLedger) withRetry(ctx context.Context, op func() error) error {
	if db.InTransaction(ctx) {
		return op()
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !errors.IsTransientLockError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(maxLockRetries))

	if err != nil && errors.IsTransientLockError(err) {
		l.logger.Warnw("usage write kept conflicting, giving up", "attempts", maxLockRetries, "error", err)
		return errors.NewConcurrencyConflictError("usage update conflicted with a concurrent writer").WithCause(err)
	}
	return err
}

func invalidAmount(amount int64) error {
	return errors.NewValidationError("amount must be positive", fmt.Sprintf("amount=%d", amount)).
		WithCause(entitlement.ErrInvalidAmount)
}
