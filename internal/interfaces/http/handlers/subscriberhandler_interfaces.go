package handlers

import (
	"context"
	"time"

	appentitlement "github.com/orris-inc/entitlements/internal/application/entitlement"
	appsubscription "github.com/orris-inc/entitlements/internal/application/subscription"
	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
)

// Collaborators of SubscriberHandler

type subscriptionLifecycle interface {
	Create(ctx context.Context, subscriber subscription.SubscriberRef, planSlug string, opts appsubscription.CreateOptions) (*subscription.Subscription, error)
	Current(ctx context.Context, subscriber subscription.SubscriberRef, name string) (*subscription.Subscription, error)
	List(ctx context.Context, subscriber subscription.SubscriberRef) ([]*subscription.Subscription, error)
	Cancel(ctx context.Context, subscriptionID uint, immediate bool) (*subscription.Subscription, error)
	Resume(ctx context.Context, subscriptionID uint) (*subscription.Subscription, error)
	ChangePlan(ctx context.Context, subscriptionID uint, newPlanSlug string, immediate bool, scheduledFor *time.Time) (*subscription.Change, error)
	Changes(ctx context.Context, subscriptionID uint) ([]*subscription.Change, error)
}

type featureEntitlements interface {
	HasAccess(ctx context.Context, sub *subscription.Subscription, featureSlug string) bool
	Remaining(ctx context.Context, sub *subscription.Subscription, featureSlug string) (int64, error)
	FeatureValue(ctx context.Context, sub *subscription.Subscription, featureSlug string) (int64, error)
	Consume(ctx context.Context, sub *subscription.Subscription, featureSlug string, amount int64) (bool, error)
	Summary(ctx context.Context, sub *subscription.Subscription) ([]appentitlement.FeatureSummary, error)
	History(ctx context.Context, sub *subscription.Subscription, featureSlug string) ([]*entitlement.Usage, error)
}

type moduleEntitlements interface {
	HasAccess(ctx context.Context, sub *subscription.Subscription, moduleSlug string) bool
	ActiveModules(ctx context.Context, sub *subscription.Subscription) ([]*catalog.Module, error)
}

// Collaborators of PlanHandler

type planLister interface {
	List(ctx context.Context, activeOnly bool) ([]*catalog.Plan, error)
	GetBySlug(ctx context.Context, slug string) (*catalog.Plan, error)
	ListFeatures(ctx context.Context, planID uint) ([]*catalog.PlanFeature, error)
	ListModules(ctx context.Context, planID uint) ([]*catalog.PlanModule, error)
}

type featureLookup interface {
	GetByIDs(ctx context.Context, ids []uint) ([]*catalog.Feature, error)
}

type moduleLookup interface {
	GetByIDs(ctx context.Context, ids []uint) ([]*catalog.Module, error)
}
