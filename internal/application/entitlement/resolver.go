package entitlement

import (
	"context"
	"fmt"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// LimitResolver computes the effective limit of a feature for a subscription:
// the subscription's custom limit, else the plan's value, else the feature
// default. It never writes.
type LimitResolver struct {
	plans    catalog.PlanRepository
	features catalog.FeatureRepository
	limits   entitlement.LimitRepository
	logger   logger.Interface
}

func NewLimitResolver(
	plans catalog.PlanRepository,
	features catalog.FeatureRepository,
	limits entitlement.LimitRepository,
	logger logger.Interface,
) *LimitResolver {
	return &LimitResolver{
		plans:    plans,
		features: features,
		limits:   limits,
		logger:   logger,
	}
}

func (r *LimitResolver) EffectiveLimit(ctx context.Context, sub *subscription.Subscription, feature *catalog.Feature) (int64, error) {
	if feature == nil {
		return 0, errors.NewNotFoundError("feature not found").WithCause(catalog.ErrFeatureNotFound)
	}
	if sub == nil {
		return feature.DefaultValue(), nil
	}

	custom, err := r.limits.Get(ctx, sub.ID(), feature.ID())
	if err != nil {
		r.logger.Errorw("failed to get custom limit", "subscription_id", sub.ID(), "feature_id", feature.ID(), "error", err)
		return 0, fmt.Errorf("failed to get custom limit: %w", err)
	}
	if custom != nil && custom.CustomLimit() != nil {
		return *custom.CustomLimit(), nil
	}

	link, err := r.plans.GetFeature(ctx, sub.PlanID(), feature.ID())
	if err != nil {
		r.logger.Errorw("failed to get plan feature", "plan_id", sub.PlanID(), "feature_id", feature.ID(), "error", err)
		return 0, fmt.Errorf("failed to get plan feature: %w", err)
	}
	if link != nil && link.Value != nil {
		return *link.Value, nil
	}

	return feature.DefaultValue(), nil
}

func (r *LimitResolver) EffectiveLimitBySlug(ctx context.Context, sub *subscription.Subscription, featureSlug string) (int64, error) {
	feature, err := r.Feature(ctx, featureSlug)
	if err != nil {
		return 0, err
	}
	return r.EffectiveLimit(ctx, sub, feature)
}

// Feature looks a feature up by slug and maps a miss to a NotFound error.
func (r *LimitResolver) Feature(ctx context.Context, slug string) (*catalog.Feature, error) {
	feature, err := r.features.GetBySlug(ctx, slug)
	if err != nil {
		r.logger.Errorw("failed to get feature", "slug", slug, "error", err)
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}
	if feature == nil {
		return nil, errors.NewNotFoundError("feature not found", slug).WithCause(catalog.ErrFeatureSlugNotFound(slug))
	}
	return feature, nil
}

// PlanFeature returns the plan link of feature, or nil when the subscription's
// plan does not include it.
func (r *LimitResolver) PlanFeature(ctx context.Context, sub *subscription.Subscription, feature *catalog.Feature) (*catalog.PlanFeature, error) {
	link, err := r.plans.GetFeature(ctx, sub.PlanID(), feature.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to get plan feature: %w", err)
	}
	return link, nil
}

// CustomLimit returns the subscription's override row, if any.
func (r *LimitResolver) CustomLimit(ctx context.Context, sub *subscription.Subscription, feature *catalog.Feature) (*entitlement.Limit, error) {
	limit, err := r.limits.Get(ctx, sub.ID(), feature.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to get custom limit: %w", err)
	}
	return limit, nil
}
