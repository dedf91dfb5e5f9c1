package subscription

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	vo "github.com/orris-inc/entitlements/internal/domain/subscription/valueobjects"
	"github.com/orris-inc/entitlements/internal/shared/biztime"
	"github.com/orris-inc/entitlements/internal/shared/config"
	"github.com/orris-inc/entitlements/internal/shared/constants"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// ModuleReconciler keeps module activations in line with the plan.
type ModuleReconciler interface {
	ActivatePlanModules(ctx context.Context, sub *subscription.Subscription) (int, error)
	DeactivateAll(ctx context.Context, sub *subscription.Subscription) (int, error)
	DeactivateNotInPlan(ctx context.Context, sub *subscription.Subscription) (int, error)
}

// LimitSyncer refreshes the limit snapshots of open usage windows.
type LimitSyncer interface {
	SyncPlanLimits(ctx context.Context, sub *subscription.Subscription) error
}

// CreateOptions tunes a new subscription. Zero values fall back to the plan
// and configuration.
type CreateOptions struct {
	Name      string
	TrialDays *int
	StartsAt  *time.Time
	EndsAt    *time.Time
	Metadata  map[string]interface{}
}

// LifecycleManager drives subscriptions through their states and plan
// changes. Every transition is saved with an optimistic version check.
type LifecycleManager struct {
	subscriptions subscription.Repository
	changes       subscription.ChangeRepository
	plans         catalog.PlanRepository
	usage         entitlement.UsageRepository
	modules       ModuleReconciler
	limits        LimitSyncer
	txManager     db.Transactor
	publisher     events.EventPublisher
	config        config.SubscriptionConfig
	now           func() time.Time
	logger        logger.Interface
}

func NewLifecycleManager(
	subscriptions subscription.Repository,
	changes subscription.ChangeRepository,
	plans catalog.PlanRepository,
	usage entitlement.UsageRepository,
	modules ModuleReconciler,
	limits LimitSyncer,
	txManager db.Transactor,
	publisher events.EventPublisher,
	cfg config.SubscriptionConfig,
	logger logger.Interface,
) *LifecycleManager {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &LifecycleManager{
		subscriptions: subscriptions,
		changes:       changes,
		plans:         plans,
		usage:         usage,
		modules:       modules,
		limits:        limits,
		txManager:     txManager,
		publisher:     publisher,
		config:        cfg,
		now:           biztime.NowUTC,
		logger:        logger,
	}
}

// SetClock replaces the time source.
func (m *LifecycleManager) SetClock(now func() time.Time) {
	m.now = now
}

// Create subscribes the subscriber to the plan.
func (m *LifecycleManager) Create(ctx context.Context, subscriber subscription.SubscriberRef, planSlug string, opts CreateOptions) (*subscription.Subscription, error) {
	if err := subscriber.Validate(); err != nil {
		return nil, errors.NewValidationError("invalid subscriber", err.Error())
	}
	plan, err := m.planBySlug(ctx, planSlug)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive() {
		return nil, errors.NewValidationError("plan is not active", planSlug)
	}

	trialDays := plan.TrialDays()
	if opts.TrialDays != nil {
		trialDays = *opts.TrialDays
	}

	now := m.now()
	startsAt := now
	if opts.StartsAt != nil {
		startsAt = opts.StartsAt.UTC()
	}
	var endsAt *time.Time
	if opts.EndsAt != nil {
		end := opts.EndsAt.UTC()
		endsAt = &end
	}

	sub, err := subscription.NewSubscription(subscriber, plan.ID(), opts.Name, trialDays, startsAt, endsAt, now)
	if err != nil {
		return nil, errors.NewValidationError("invalid subscription", err.Error())
	}
	sub.SetMetadata(opts.Metadata)

	if err := m.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		return m.subscriptions.Create(txCtx, sub)
	}); err != nil {
		m.logger.Errorw("failed to create subscription", "subscriber", subscriber.String(), "plan", planSlug, "error", err)
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	m.publish(subscription.NewSubscriptionCreatedEvent(sub.Snapshot(), plan.Snapshot()))
	m.logger.Infow("subscription created",
		"subscription_id", sub.ID(),
		"subscriber", subscriber.String(),
		"plan", plan.Slug(),
		"status", sub.Status(),
	)

	if m.config.AutoActivatesModules() {
		if _, err := m.modules.ActivatePlanModules(ctx, sub); err != nil {
			m.logger.Warnw("failed to activate plan modules", "subscription_id", sub.ID(), "error", err)
		}
	}
	return sub, nil
}

// Cancel ends the subscription now, or at the end of its current period.
func (m *LifecycleManager) Cancel(ctx context.Context, subscriptionID uint, immediate bool) (*subscription.Subscription, error) {
	sub, err := m.transition(ctx, subscriptionID, "cancel", func(_ context.Context, sub *subscription.Subscription, now time.Time) error {
		sub.Cancel(immediate, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(subscription.NewSubscriptionCancelledEvent(sub.Snapshot(), immediate))
	return sub, nil
}

func (m *LifecycleManager) Resume(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	sub, err := m.transition(ctx, subscriptionID, "resume", func(_ context.Context, sub *subscription.Subscription, now time.Time) error {
		return sub.Resume(now)
	})
	if err != nil {
		return nil, err
	}
	m.publish(subscription.NewSubscriptionResumedEvent(sub.Snapshot()))
	return sub, nil
}

// Pause suspends an active or trialing subscription. No event is emitted.
func (m *LifecycleManager) Pause(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	return m.transition(ctx, subscriptionID, "pause", func(_ context.Context, sub *subscription.Subscription, now time.Time) error {
		return sub.Pause(now)
	})
}

func (m *LifecycleManager) Unpause(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	sub, err := m.transition(ctx, subscriptionID, "unpause", func(_ context.Context, sub *subscription.Subscription, now time.Time) error {
		return sub.Unpause(now)
	})
	if err != nil {
		return nil, err
	}
	m.publish(subscription.NewSubscriptionResumedEvent(sub.Snapshot()))
	return sub, nil
}

// Renew starts a new billing period of the plan's length from now.
func (m *LifecycleManager) Renew(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	sub, err := m.transition(ctx, subscriptionID, "renew", func(txCtx context.Context, sub *subscription.Subscription, now time.Time) error {
		plan, err := m.planByID(txCtx, sub.PlanID())
		if err != nil {
			return err
		}
		return sub.Renew(plan.PeriodEnd(now), now)
	})
	if err != nil {
		return nil, err
	}
	m.publish(subscription.NewSubscriptionRenewedEvent(sub.Snapshot()))
	return sub, nil
}

func (m *LifecycleManager) Expire(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	sub, err := m.transition(ctx, subscriptionID, "expire", func(_ context.Context, sub *subscription.Subscription, now time.Time) error {
		sub.Expire(now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.publish(subscription.NewSubscriptionExpiredEvent(sub.Snapshot()))
	return sub, nil
}

// ConvertTrialToPaid ends the trial and starts the first paid period.
func (m *LifecycleManager) ConvertTrialToPaid(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	sub, err := m.transition(ctx, subscriptionID, "convert_trial", func(txCtx context.Context, sub *subscription.Subscription, now time.Time) error {
		plan, err := m.planByID(txCtx, sub.PlanID())
		if err != nil {
			return err
		}
		return sub.ConvertTrialToPaid(plan.PeriodEnd(now), now)
	})
	if err != nil {
		return nil, err
	}
	snap := sub.Snapshot()
	m.publish(subscription.NewTrialEndedEvent(snap), subscription.NewSubscriptionRenewedEvent(snap))
	return sub, nil
}

// MarkPastDue flags an active subscription whose payment is outstanding.
func (m *LifecycleManager) MarkPastDue(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	return m.transition(ctx, subscriptionID, "mark_past_due", func(_ context.Context, sub *subscription.Subscription, now time.Time) error {
		return sub.MarkPastDue(now)
	})
}

// ChangePlan records a move to another plan. An immediate change is applied
// now and priced by the configured proration behavior; a scheduled change
// waits for ApplyScheduledChange and carries no proration.
func (m *LifecycleManager) ChangePlan(
	ctx context.Context,
	subscriptionID uint,
	newPlanSlug string,
	immediate bool,
	scheduledFor *time.Time,
) (*subscription.Change, error) {
	if !immediate && scheduledFor == nil {
		return nil, errors.NewValidationError("scheduled plan change requires a date")
	}

	var (
		sub              *subscription.Subscription
		change           *subscription.Change
		oldPlan, newPlan *catalog.Plan
	)
	err := m.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		sub, err = m.load(txCtx, subscriptionID)
		if err != nil {
			return err
		}
		oldPlan, err = m.planByID(txCtx, sub.PlanID())
		if err != nil {
			return err
		}
		newPlan, err = m.planBySlug(txCtx, newPlanSlug)
		if err != nil {
			return err
		}
		if !newPlan.IsActive() {
			return errors.NewValidationError("plan is not active", newPlanSlug)
		}

		now := m.now()
		var proration *decimal.Decimal
		if immediate {
			amount := subscription.CalculateProration(
				vo.ProrationMode(m.config.ProrationBehavior),
				oldPlan.Price(), newPlan.Price(),
				sub.StartsAt(), sub.EndsAt(), now,
			)
			proration = &amount
		}

		var when *time.Time
		if scheduledFor != nil {
			t := scheduledFor.UTC()
			when = &t
		}
		fromPlanID := oldPlan.ID()
		change, err = subscription.NewChange(
			sub.ID(), &fromPlanID, newPlan.ID(),
			vo.DetermineChangeType(oldPlan.Price(), newPlan.Price()),
			immediate, when, proration, now,
		)
		if err != nil {
			return errors.NewValidationError("invalid plan change", err.Error())
		}
		if err := m.changes.Create(txCtx, change); err != nil {
			return fmt.Errorf("failed to record plan change: %w", err)
		}

		if immediate {
			return m.applyChange(txCtx, sub, change, now)
		}
		return nil
	})
	if err != nil {
		m.logger.Errorw("failed to change plan", "subscription_id", subscriptionID, "plan", newPlanSlug, "error", err)
		return nil, m.mapError(err)
	}

	if immediate {
		m.reconcileModules(ctx, sub)
	}
	m.publish(subscription.NewPlanChangedEvent(sub.Snapshot(), oldPlan.Snapshot(), newPlan.Snapshot(), change.Snapshot()))

	m.logger.Infow("plan change recorded",
		"subscription_id", sub.ID(),
		"from_plan", oldPlan.Slug(),
		"to_plan", newPlan.Slug(),
		"change_type", change.ChangeType(),
		"immediate", immediate,
	)
	return change, nil
}

// ApplyScheduledChange applies a pending change. It is what the scheduler
// calls once the change is due; it does not check the due date itself.
func (m *LifecycleManager) ApplyScheduledChange(ctx context.Context, changeID uint) (*subscription.Subscription, error) {
	var (
		sub              *subscription.Subscription
		change           *subscription.Change
		oldPlan, newPlan *catalog.Plan
	)
	err := m.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		change, err = m.changes.GetByID(txCtx, changeID)
		if err != nil {
			return fmt.Errorf("failed to get plan change: %w", err)
		}
		if change == nil {
			return errors.NewNotFoundError("plan change not found", fmt.Sprintf("id=%d", changeID)).
				WithCause(subscription.ErrChangeNotFound)
		}
		if change.IsApplied() {
			return errors.NewInvalidStateError("plan change already applied", fmt.Sprintf("id=%d", changeID)).
				WithCause(subscription.ErrChangeAlreadyApplied)
		}

		sub, err = m.load(txCtx, change.SubscriptionID())
		if err != nil {
			return err
		}
		oldPlan, err = m.planByID(txCtx, sub.PlanID())
		if err != nil {
			return err
		}
		newPlan, err = m.planByID(txCtx, change.ToPlanID())
		if err != nil {
			return err
		}
		return m.applyChange(txCtx, sub, change, m.now())
	})
	if err != nil {
		m.logger.Errorw("failed to apply scheduled plan change", "change_id", changeID, "error", err)
		return nil, m.mapError(err)
	}

	m.reconcileModules(ctx, sub)
	m.publish(subscription.NewPlanChangedEvent(sub.Snapshot(), oldPlan.Snapshot(), newPlan.Snapshot(), change.Snapshot()))
	m.logger.Infow("scheduled plan change applied", "change_id", changeID, "subscription_id", sub.ID(), "plan", newPlan.Slug())
	return sub, nil
}

// applyChange swaps the plan and carries usage over according to the
// inheritance option. Must run inside a transaction.
func (m *LifecycleManager) applyChange(ctx context.Context, sub *subscription.Subscription, change *subscription.Change, now time.Time) error {
	if err := sub.SwitchPlan(change.ToPlanID(), now); err != nil {
		return errors.NewValidationError("invalid plan change", err.Error())
	}
	if err := m.subscriptions.Update(ctx, sub); err != nil {
		return err
	}
	if err := change.MarkApplied(now); err != nil {
		return err
	}
	if err := m.changes.MarkApplied(ctx, change); err != nil {
		return fmt.Errorf("failed to mark plan change applied: %w", err)
	}

	if !m.config.FeatureInheritanceOnPlanChange {
		closed, err := m.usage.CloseOpen(ctx, sub.ID(), now)
		if err != nil {
			return fmt.Errorf("failed to close usage windows: %w", err)
		}
		m.logger.Debugw("usage windows closed on plan change", "subscription_id", sub.ID(), "windows", closed)
		return nil
	}
	return m.limits.SyncPlanLimits(ctx, sub)
}

func (m *LifecycleManager) reconcileModules(ctx context.Context, sub *subscription.Subscription) {
	var err error
	if m.config.ModuleInheritanceOnPlanChange {
		_, err = m.modules.DeactivateNotInPlan(ctx, sub)
	} else {
		_, err = m.modules.DeactivateAll(ctx, sub)
		if err == nil && m.config.AutoActivatesModules() {
			_, err = m.modules.ActivatePlanModules(ctx, sub)
		}
	}
	if err != nil {
		m.logger.Warnw("failed to reconcile modules after plan change", "subscription_id", sub.ID(), "error", err)
	}
}

// ApplyDueChanges applies every scheduled change that is due. Failures are
// logged and the remaining changes still run.
func (m *LifecycleManager) ApplyDueChanges(ctx context.Context) (int, error) {
	due, err := m.changes.ListDue(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list due plan changes: %w", err)
	}

	applied := 0
	var errs []error
	for _, change := range due {
		if _, err := m.ApplyScheduledChange(ctx, change.ID()); err != nil {
			errs = append(errs, fmt.Errorf("change %d: %w", change.ID(), err))
			continue
		}
		applied++
	}
	return applied, stderrors.Join(errs...)
}

// ExpireDue expires usable subscriptions whose period ended more than the
// plan's grace days ago.
func (m *LifecycleManager) ExpireDue(ctx context.Context) (int, error) {
	now := m.now()
	ending, err := m.subscriptions.ListEndingBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to find ended subscriptions: %w", err)
	}
	if len(ending) == 0 {
		return 0, nil
	}
	m.logger.Infow("found ended subscriptions to process", "count", len(ending))

	expired := 0
	for _, sub := range ending {
		plan, err := m.planByID(ctx, sub.PlanID())
		if err != nil {
			m.logger.Warnw("failed to get plan for expiry", "subscription_id", sub.ID(), "error", err)
			continue
		}
		if sub.EndsAt().AddDate(0, 0, plan.GraceDays()).After(now) {
			continue
		}
		if _, err := m.Expire(ctx, sub.ID()); err != nil {
			m.logger.Warnw("failed to expire subscription", "subscription_id", sub.ID(), "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// EndTrials expires trials that lapsed without being converted.
func (m *LifecycleManager) EndTrials(ctx context.Context) (int, error) {
	lapsed, err := m.subscriptions.ListTrialsEndingBefore(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("failed to find lapsed trials: %w", err)
	}

	ended := 0
	for _, sub := range lapsed {
		expired, err := m.Expire(ctx, sub.ID())
		if err != nil {
			m.logger.Warnw("failed to end trial", "subscription_id", sub.ID(), "error", err)
			continue
		}
		m.publish(subscription.NewTrialEndedEvent(expired.Snapshot()))
		ended++
	}
	return ended, nil
}

// TrialsEndingSoon lists trials that end within the configured notice period.
func (m *LifecycleManager) TrialsEndingSoon(ctx context.Context) ([]*subscription.Subscription, error) {
	now := m.now()
	horizon := now.AddDate(0, 0, m.config.TrialEndingNotificationDays)
	trials, err := m.subscriptions.ListTrialsEndingBefore(ctx, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to list ending trials: %w", err)
	}
	result := make([]*subscription.Subscription, 0, len(trials))
	for _, sub := range trials {
		if sub.OnTrial(now) {
			result = append(result, sub)
		}
	}
	return result, nil
}

// Delete removes the subscription together with its usage, limits, module
// activations and change history.
func (m *LifecycleManager) Delete(ctx context.Context, subscriptionID uint) error {
	var snap subscription.Snapshot
	err := m.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		sub, err := m.load(txCtx, subscriptionID)
		if err != nil {
			return err
		}
		snap = sub.Snapshot()
		return m.subscriptions.Delete(txCtx, sub.ID())
	})
	if err != nil {
		m.logger.Errorw("failed to delete subscription", "subscription_id", subscriptionID, "error", err)
		return m.mapError(err)
	}
	m.publish(subscription.NewSubscriptionDeletedEvent(snap))
	m.logger.Infow("subscription deleted", "subscription_id", subscriptionID)
	return nil
}

// Get returns the subscription or a NotFound error.
func (m *LifecycleManager) Get(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	return m.load(ctx, subscriptionID)
}

// Current returns the latest subscription in the subscriber's named slot, or
// nil when there is none.
func (m *LifecycleManager) Current(ctx context.Context, subscriber subscription.SubscriberRef, name string) (*subscription.Subscription, error) {
	if name == "" {
		name = constants.DefaultSubscriptionName
	}
	sub, err := m.subscriptions.GetCurrent(ctx, subscriber, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get current subscription: %w", err)
	}
	return sub, nil
}

func (m *LifecycleManager) List(ctx context.Context, subscriber subscription.SubscriberRef) ([]*subscription.Subscription, error) {
	subs, err := m.subscriptions.ListBySubscriber(ctx, subscriber)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// SubscribedTo reports whether any usable subscription in the slot is on the
// plan.
func (m *LifecycleManager) SubscribedTo(ctx context.Context, subscriber subscription.SubscriberRef, planSlug, name string) (bool, error) {
	if name == "" {
		name = constants.DefaultSubscriptionName
	}
	plan, err := m.planBySlug(ctx, planSlug)
	if err != nil {
		return false, err
	}
	subs, err := m.List(ctx, subscriber)
	if err != nil {
		return false, err
	}
	for _, sub := range subs {
		if sub.Name() == name && sub.PlanID() == plan.ID() && sub.IsUsable() {
			return true, nil
		}
	}
	return false, nil
}

// Changes lists the plan changes of a subscription, oldest first.
func (m *LifecycleManager) Changes(ctx context.Context, subscriptionID uint) ([]*subscription.Change, error) {
	return m.changes.ListBySubscription(ctx, subscriptionID)
}

// transition loads the subscription, applies mutate and saves it, all in one
// transaction.
func (m *LifecycleManager) transition(
	ctx context.Context,
	subscriptionID uint,
	op string,
	mutate func(ctx context.Context, sub *subscription.Subscription, now time.Time) error,
) (*subscription.Subscription, error) {
	var sub *subscription.Subscription
	err := m.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		sub, err = m.load(txCtx, subscriptionID)
		if err != nil {
			return err
		}
		from := sub.Status()
		if err := mutate(txCtx, sub, m.now()); err != nil {
			return err
		}
		if err := m.subscriptions.Update(txCtx, sub); err != nil {
			return err
		}
		m.logger.Infow("subscription transitioned",
			"subscription_id", sub.ID(),
			"op", op,
			"from", from,
			"to", sub.Status(),
		)
		return nil
	})
	if err != nil {
		m.logger.Warnw("subscription transition failed", "subscription_id", subscriptionID, "op", op, "error", err)
		return nil, m.mapError(err)
	}
	return sub, nil
}

// mapError turns domain failures into application errors.
func (m *LifecycleManager) mapError(err error) error {
	switch {
	case errors.IsAppError(err):
		return err
	case stderrors.Is(err, subscription.ErrInvalidStatusTransition):
		return errors.NewInvalidStateError("invalid subscription state", err.Error()).WithCause(err)
	case stderrors.Is(err, subscription.ErrStaleSubscription):
		return errors.NewConcurrencyConflictError("subscription was modified concurrently, reload and retry").WithCause(err)
	}
	return err
}

func (m *LifecycleManager) load(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error) {
	sub, err := m.subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub == nil {
		return nil, errors.NewNotFoundError("subscription not found", fmt.Sprintf("id=%d", subscriptionID)).
			WithCause(subscription.ErrSubscriptionNotFound)
	}
	return sub, nil
}

func (m *LifecycleManager) planBySlug(ctx context.Context, slug string) (*catalog.Plan, error) {
	plan, err := m.plans.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil {
		return nil, errors.NewNotFoundError("plan not found", slug).WithCause(catalog.ErrPlanSlugNotFound(slug))
	}
	return plan, nil
}

func (m *LifecycleManager) planByID(ctx context.Context, id uint) (*catalog.Plan, error) {
	plan, err := m.plans.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil {
		return nil, errors.NewNotFoundError("plan not found", fmt.Sprintf("id=%d", id)).WithCause(catalog.ErrPlanNotFound)
	}
	return plan, nil
}

func (m *LifecycleManager) publish(pending ...events.DomainEvent) {
	if err := m.publisher.PublishAll(pending); err != nil {
		m.logger.Warnw("failed to publish subscription events", "count", len(pending), "error", err)
	}
}
