package entitlement

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	catalogvo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/config"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// Engine answers feature access questions and records consumption.
type Engine struct {
	plans     catalog.PlanRepository
	features  catalog.FeatureRepository
	limits    entitlement.LimitRepository
	resolver  *LimitResolver
	ledger    *UsageLedger
	txManager db.Transactor
	publisher events.EventPublisher
	config    config.SubscriptionConfig
	logger    logger.Interface
}

func NewEngine(
	plans catalog.PlanRepository,
	features catalog.FeatureRepository,
	limits entitlement.LimitRepository,
	resolver *LimitResolver,
	ledger *UsageLedger,
	txManager db.Transactor,
	publisher events.EventPublisher,
	cfg config.SubscriptionConfig,
	logger logger.Interface,
) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Engine{
		plans:     plans,
		features:  features,
		limits:    limits,
		resolver:  resolver,
		ledger:    ledger,
		txManager: txManager,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
	}
}

// SetClock replaces the time source used for usage windows.
func (e *Engine) SetClock(now func() time.Time) {
	e.ledger.SetClock(now)
}

func (e *Engine) Ledger() *UsageLedger {
	return e.ledger
}

// grant is the resolved view of one feature for one subscription.
type grant struct {
	feature *catalog.Feature
	link    *catalog.PlanFeature
	custom  *entitlement.Limit
}

func (g grant) included() bool {
	return g.link != nil && g.feature.IsActive()
}

func (e *Engine) resolve(ctx context.Context, sub *subscription.Subscription, featureSlug string) (grant, error) {
	feature, err := e.resolver.Feature(ctx, featureSlug)
	if err != nil {
		return grant{}, err
	}
	link, err := e.resolver.PlanFeature(ctx, sub, feature)
	if err != nil {
		return grant{}, err
	}
	custom, err := e.resolver.CustomLimit(ctx, sub, feature)
	if err != nil {
		return grant{}, err
	}
	return grant{feature: feature, link: link, custom: custom}, nil
}

// allowsOverage reports whether consumption may pass the limit, either by a
// soft subscription limit or by the configured policy.
func (e *Engine) allowsOverage(g grant) bool {
	if g.custom != nil && g.custom.IsSoft() {
		return true
	}
	return e.config.AllowsOverage()
}

// HasAccess reports whether sub may use the feature right now. Lookup
// failures are logged and reported as no access.
func (e *Engine) HasAccess(ctx context.Context, sub *subscription.Subscription, featureSlug string) bool {
	if sub == nil || !sub.IsUsable() {
		return false
	}
	g, err := e.resolve(ctx, sub, featureSlug)
	if err != nil {
		e.logDenied(sub, featureSlug, err)
		return false
	}
	return e.hasAccess(ctx, sub, g)
}

func (e *Engine) hasAccess(ctx context.Context, sub *subscription.Subscription, g grant) bool {
	if !g.included() {
		return false
	}
	if g.feature.IsBoolean() || e.allowsOverage(g) {
		return true
	}
	remaining, err := e.ledger.Remaining(ctx, sub, g.feature)
	if err != nil {
		e.logDenied(sub, g.feature.Slug(), err)
		return false
	}
	return remaining > 0
}

// CanConsume reports whether amount units could be consumed now.
func (e *Engine) CanConsume(ctx context.Context, sub *subscription.Subscription, featureSlug string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, invalidAmount(amount)
	}
	if sub == nil || !sub.IsUsable() {
		return false, nil
	}
	g, err := e.resolve(ctx, sub, featureSlug)
	if err != nil {
		e.logDenied(sub, featureSlug, err)
		return false, nil
	}
	return e.canConsume(ctx, sub, g, amount), nil
}

func (e *Engine) canConsume(ctx context.Context, sub *subscription.Subscription, g grant, amount int64) bool {
	if !e.hasAccess(ctx, sub, g) {
		return false
	}
	if g.feature.IsBoolean() || e.allowsOverage(g) {
		return true
	}
	remaining, err := e.ledger.Remaining(ctx, sub, g.feature)
	if err != nil {
		e.logDenied(sub, g.feature.Slug(), err)
		return false
	}
	return remaining >= amount
}

// Consume records amount units of usage. It returns false, without changing
// anything, when the subscription may not consume that much. The counter is
// checked and moved by a single conditional update, so concurrent callers can
// never push a hard limit past its value.
func (e *Engine) Consume(ctx context.Context, sub *subscription.Subscription, featureSlug string, amount int64) (bool, error) {
	if amount <= 0 {
		return false, invalidAmount(amount)
	}
	if sub == nil {
		return false, errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	g, err := e.resolve(ctx, sub, featureSlug)
	if err != nil {
		return false, err
	}
	if !sub.IsUsable() || !g.included() {
		e.logger.Infow("consume rejected, feature not available",
			"subscription_id", sub.ID(),
			"status", sub.Status(),
			"feature", featureSlug,
			"in_plan", g.included(),
		)
		e.publishRejected(ctx, sub, g, amount)
		return false, nil
	}
	if g.feature.IsBoolean() {
		return true, nil
	}

	// Open the window outside the transaction so a concurrent first use is
	// arbitrated against committed rows.
	if _, err := e.ledger.GetOrCreateWindow(ctx, sub, g.feature); err != nil {
		return false, err
	}

	overage := e.allowsOverage(g)
	var (
		before, after, limit int64
		rejected, overLimit  bool
	)
	// A deadlock aborts the whole transaction, so the retry wraps all of it.
	err = e.ledger.withRetry(ctx, func() error {
		return e.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
			rejected, overLimit = false, false
			window, err := e.ledger.GetOrCreateWindow(txCtx, sub, g.feature)
			if err != nil {
				return err
			}
			limit = window.Limit()

			before, after, err = e.ledger.Increment(txCtx, window, amount)
			if !stderrors.Is(err, entitlement.ErrUsageLimitExceeded) {
				return err
			}
			if !overage {
				rejected = true
				return nil
			}
			overLimit = true
			before, after, err = e.ledger.IncrementUnchecked(txCtx, window, amount)
			return err
		})
	})
	if err != nil {
		e.logger.Errorw("failed to consume feature",
			"subscription_id", sub.ID(),
			"feature", featureSlug,
			"amount", amount,
			"error", err,
		)
		return false, err
	}

	subSnap := sub.Snapshot()
	featureSnap := g.feature.Snapshot()

	if rejected {
		e.logger.Infow("feature limit exceeded",
			"subscription_id", sub.ID(),
			"feature", featureSlug,
			"used", before,
			"requested", amount,
			"limit", limit,
		)
		e.publish(entitlement.NewFeatureLimitExceededEvent(subSnap, featureSnap, amount, before, limit, false))
		return false, nil
	}

	recorded := entitlement.NewUsageRecordedEvent(subSnap, featureSnap, amount, before, after, limit)
	pending := []events.DomainEvent{}
	if overLimit {
		recorded.Overage = max(0, after-max(limit, before))
		if e.config.OveragePolicy == config.OveragePolicyAllowWithFee {
			recorded.OverageFeeMultiplier = e.config.OverageFeeMultiplier
		}
		pending = append(pending, entitlement.NewFeatureLimitExceededEvent(subSnap, featureSnap, amount, before, limit, true))
	}
	pending = append(pending, recorded)
	if limit > 0 && after >= limit {
		pending = append(pending, entitlement.NewFeatureLimitReachedEvent(subSnap, featureSnap, after, limit))
	}
	e.publish(pending...)

	e.logger.Debugw("feature consumed",
		"subscription_id", sub.ID(),
		"feature", featureSlug,
		"before", before,
		"after", after,
		"limit", limit,
	)
	return true, nil
}

// publishRejected reports a consumption that was refused before reaching the
// counter. Used and limit come from the open window when the plan grants the
// feature, and are zero when it does not.
func (e *Engine) publishRejected(ctx context.Context, sub *subscription.Subscription, g grant, amount int64) {
	var used, limit int64
	if g.included() && g.feature.Type().IsMetered() {
		window, err := e.ledger.CurrentWindow(ctx, sub.ID(), g.feature.ID())
		switch {
		case err != nil:
			e.logDenied(sub, g.feature.Slug(), err)
		case window != nil:
			used, limit = window.Used(), window.Limit()
		default:
			if value, err := e.resolver.EffectiveLimit(ctx, sub, g.feature); err == nil {
				limit = value
			}
		}
	}
	e.publish(entitlement.NewFeatureLimitExceededEvent(sub.Snapshot(), g.feature.Snapshot(), amount, used, limit, false))
}

// Remaining returns the units left of a feature.
func (e *Engine) Remaining(ctx context.Context, sub *subscription.Subscription, featureSlug string) (int64, error) {
	if sub == nil {
		return 0, errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	g, err := e.resolve(ctx, sub, featureSlug)
	if err != nil {
		return 0, err
	}
	if !g.included() {
		return 0, nil
	}
	return e.ledger.Remaining(ctx, sub, g.feature)
}

// FeatureValue returns the effective limit of the feature.
func (e *Engine) FeatureValue(ctx context.Context, sub *subscription.Subscription, featureSlug string) (int64, error) {
	return e.resolver.EffectiveLimitBySlug(ctx, sub, featureSlug)
}

// SetCustomLimit overrides the feature limit for one subscription. The open
// window adopts the new limit immediately.
func (e *Engine) SetCustomLimit(
	ctx context.Context,
	sub *subscription.Subscription,
	featureSlug string,
	customLimit *int64,
	limitType entitlement.LimitType,
	warningThreshold *int64,
) (*entitlement.Limit, error) {
	if sub == nil {
		return nil, errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	feature, err := e.resolver.Feature(ctx, featureSlug)
	if err != nil {
		return nil, err
	}

	limit, err := entitlement.NewLimit(sub.ID(), feature.ID(), customLimit, limitType, warningThreshold)
	if err != nil {
		return nil, errors.NewValidationError("invalid custom limit", err.Error()).WithCause(err)
	}

	err = e.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := e.limits.Upsert(txCtx, limit); err != nil {
			return err
		}
		return e.ledger.SyncLimit(txCtx, sub, feature)
	})
	if err != nil {
		e.logger.Errorw("failed to set custom limit", "subscription_id", sub.ID(), "feature", featureSlug, "error", err)
		return nil, err
	}

	e.logger.Infow("custom limit set",
		"subscription_id", sub.ID(),
		"feature", featureSlug,
		"limit", customLimit,
		"type", limit.LimitType(),
	)
	return limit, nil
}

// RemoveCustomLimit drops the override so the plan value or feature default
// applies again.
func (e *Engine) RemoveCustomLimit(ctx context.Context, sub *subscription.Subscription, featureSlug string) error {
	if sub == nil {
		return errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	feature, err := e.resolver.Feature(ctx, featureSlug)
	if err != nil {
		return err
	}
	return e.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := e.limits.Delete(txCtx, sub.ID(), feature.ID()); err != nil {
			return err
		}
		return e.ledger.SyncLimit(txCtx, sub, feature)
	})
}

// ResetUsage zeroes one feature, or all features when featureSlug is nil.
func (e *Engine) ResetUsage(ctx context.Context, sub *subscription.Subscription, featureSlug *string) (int64, error) {
	if sub == nil {
		return 0, errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	var featureID *uint
	if featureSlug != nil {
		feature, err := e.resolver.Feature(ctx, *featureSlug)
		if err != nil {
			return 0, err
		}
		id := feature.ID()
		featureID = &id
	}
	return e.ledger.Reset(ctx, sub.ID(), featureID)
}

// ResetUsageByPeriod opens fresh windows for every periodic feature of the
// subscription's plan whose window has lapsed. It returns how many opened.
func (e *Engine) ResetUsageByPeriod(ctx context.Context, sub *subscription.Subscription) (int, error) {
	features, err := e.planFeatures(ctx, sub)
	if err != nil {
		return 0, err
	}

	opened := 0
	for _, feature := range features {
		if !feature.Type().IsMetered() || feature.ResetPeriod() == catalogvo.ResetNever {
			continue
		}
		created, err := e.ledger.ResetByPeriod(ctx, sub, feature)
		if err != nil {
			return opened, fmt.Errorf("failed to reset %s: %w", feature.Slug(), err)
		}
		if created {
			opened++
		}
	}
	return opened, nil
}

// SyncPlanLimits copies the current effective limits of the subscription's
// plan features into their open windows. Called after a plan change that
// keeps accumulated usage.
func (e *Engine) SyncPlanLimits(ctx context.Context, sub *subscription.Subscription) error {
	features, err := e.planFeatures(ctx, sub)
	if err != nil {
		return err
	}
	for _, feature := range features {
		if !feature.Type().IsMetered() {
			continue
		}
		if err := e.ledger.SyncLimit(ctx, sub, feature); err != nil {
			return fmt.Errorf("failed to sync limit of %s: %w", feature.Slug(), err)
		}
	}
	return nil
}

// WarningReached reports whether usage has crossed the subscription's
// warning threshold for the feature.
func (e *Engine) WarningReached(ctx context.Context, sub *subscription.Subscription, featureSlug string) bool {
	if sub == nil {
		return false
	}
	g, err := e.resolve(ctx, sub, featureSlug)
	if err != nil || g.custom == nil {
		return false
	}
	window, err := e.ledger.CurrentWindow(ctx, sub.ID(), g.feature.ID())
	if err != nil || window == nil {
		return false
	}
	return g.custom.WarningReached(window.Used())
}

// History lists the usage windows of a feature, newest first.
func (e *Engine) History(ctx context.Context, sub *subscription.Subscription, featureSlug string) ([]*entitlement.Usage, error) {
	if sub == nil {
		return nil, errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	feature, err := e.resolver.Feature(ctx, featureSlug)
	if err != nil {
		return nil, err
	}
	return e.ledger.History(ctx, sub.ID(), feature.ID())
}

// FeatureSummary is the entitlement of one plan feature.
type FeatureSummary struct {
	Slug        string     `json:"slug"`
	Type        string     `json:"type"`
	ResetPeriod string     `json:"reset_period"`
	HasAccess   bool       `json:"has_access"`
	Limit       int64      `json:"limit"`
	Used        int64      `json:"used"`
	Remaining   int64      `json:"remaining"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
}

// Summary lists every feature of the subscription's plan with its usage.
func (e *Engine) Summary(ctx context.Context, sub *subscription.Subscription) ([]FeatureSummary, error) {
	if sub == nil {
		return nil, errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	features, err := e.planFeatures(ctx, sub)
	if err != nil {
		return nil, err
	}

	result := make([]FeatureSummary, 0, len(features))
	for _, feature := range features {
		limit, err := e.resolver.EffectiveLimit(ctx, sub, feature)
		if err != nil {
			return nil, err
		}
		summary := FeatureSummary{
			Slug:        feature.Slug(),
			Type:        feature.Type().String(),
			ResetPeriod: feature.ResetPeriod().String(),
			HasAccess:   e.HasAccess(ctx, sub, feature.Slug()),
			Limit:       limit,
			Remaining:   max(0, limit),
		}
		if feature.Type().IsMetered() {
			window, err := e.ledger.CurrentWindow(ctx, sub.ID(), feature.ID())
			if err != nil {
				return nil, err
			}
			if window != nil {
				summary.Limit = window.Limit()
				summary.Used = window.Used()
				summary.Remaining = window.Remaining()
				summary.ValidUntil = window.ValidUntil()
			}
		} else {
			summary.Remaining, err = e.ledger.Remaining(ctx, sub, feature)
			if err != nil {
				return nil, err
			}
		}
		result = append(result, summary)
	}
	return result, nil
}

func (e *Engine) planFeatures(ctx context.Context, sub *subscription.Subscription) ([]*catalog.Feature, error) {
	links, err := e.plans.ListFeatures(ctx, sub.PlanID())
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.FeatureID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return e.features.GetByIDs(ctx, ids)
}

func (e *Engine) publish(pending ...events.DomainEvent) {
	if err := e.publisher.PublishAll(pending); err != nil {
		e.logger.Warnw("failed to publish entitlement events", "count", len(pending), "error", err)
	}
}

func (e *Engine) logDenied(sub *subscription.Subscription, featureSlug string, err error) {
	if errors.IsNotFoundError(err) {
		e.logger.Debugw("feature lookup missed", "subscription_id", sub.ID(), "feature", featureSlug)
		return
	}
	e.logger.Warnw("feature access check failed", "subscription_id", sub.ID(), "feature", featureSlug, "error", err)
}
