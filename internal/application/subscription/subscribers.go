package subscription

import (
	"context"

	"github.com/orris-inc/entitlements/internal/domain/subscription"
	vo "github.com/orris-inc/entitlements/internal/domain/subscription/valueobjects"
)

// FeatureGate answers feature questions for a resolved subscription.
type FeatureGate interface {
	HasAccess(ctx context.Context, sub *subscription.Subscription, featureSlug string) bool
	CanConsume(ctx context.Context, sub *subscription.Subscription, featureSlug string, amount int64) (bool, error)
	Consume(ctx context.Context, sub *subscription.Subscription, featureSlug string, amount int64) (bool, error)
	Remaining(ctx context.Context, sub *subscription.Subscription, featureSlug string) (int64, error)
}

// ModuleGate answers module questions for a resolved subscription.
type ModuleGate interface {
	HasAccess(ctx context.Context, sub *subscription.Subscription, moduleSlug string) bool
}

// Subscribers gives any subscriber the subscription capability: each call
// resolves the current subscription of a named slot and delegates to the
// lifecycle manager or the gates. An empty name means "default".
type Subscribers struct {
	lifecycle *LifecycleManager
	features  FeatureGate
	modules   ModuleGate
}

func NewSubscribers(lifecycle *LifecycleManager, features FeatureGate, modules ModuleGate) *Subscribers {
	return &Subscribers{
		lifecycle: lifecycle,
		features:  features,
		modules:   modules,
	}
}

func (s *Subscribers) Subscribe(ctx context.Context, owner subscription.Subscriber, planSlug string, opts CreateOptions) (*subscription.Subscription, error) {
	return s.lifecycle.Create(ctx, owner.SubscriberRef(), planSlug, opts)
}

// Subscription returns the current subscription in the slot, or nil.
func (s *Subscribers) Subscription(ctx context.Context, owner subscription.Subscriber, name string) (*subscription.Subscription, error) {
	return s.lifecycle.Current(ctx, owner.SubscriberRef(), name)
}

func (s *Subscribers) Subscriptions(ctx context.Context, owner subscription.Subscriber) ([]*subscription.Subscription, error) {
	return s.lifecycle.List(ctx, owner.SubscriberRef())
}

func (s *Subscribers) SubscribedTo(ctx context.Context, owner subscription.Subscriber, planSlug, name string) (bool, error) {
	return s.lifecycle.SubscribedTo(ctx, owner.SubscriberRef(), planSlug, name)
}

func (s *Subscribers) OnTrial(ctx context.Context, owner subscription.Subscriber, name string) bool {
	sub := s.current(ctx, owner, name)
	return sub != nil && sub.OnTrial(s.lifecycle.now())
}

func (s *Subscribers) Cancelled(ctx context.Context, owner subscription.Subscriber, name string) bool {
	sub := s.current(ctx, owner, name)
	return sub != nil && sub.Status().IsCancelled()
}

func (s *Subscribers) Active(ctx context.Context, owner subscription.Subscriber, name string) bool {
	sub := s.current(ctx, owner, name)
	return sub != nil && sub.Status() == vo.StatusActive
}

// Expired reports whether the slot holds a subscription that has expired or
// whose end date has passed.
func (s *Subscribers) Expired(ctx context.Context, owner subscription.Subscriber, name string) bool {
	sub := s.current(ctx, owner, name)
	return sub != nil && (sub.Status().IsExpired() || sub.Ended(s.lifecycle.now()))
}

func (s *Subscribers) HasFeature(ctx context.Context, owner subscription.Subscriber, featureSlug, name string) bool {
	return s.features.HasAccess(ctx, s.current(ctx, owner, name), featureSlug)
}

func (s *Subscribers) CanUseFeature(ctx context.Context, owner subscription.Subscriber, featureSlug string, amount int64, name string) (bool, error) {
	return s.features.CanConsume(ctx, s.current(ctx, owner, name), featureSlug, amount)
}

// ConsumeFeature reports false without error when the subscriber has no
// subscription in the slot.
func (s *Subscribers) ConsumeFeature(ctx context.Context, owner subscription.Subscriber, featureSlug string, amount int64, name string) (bool, error) {
	sub, err := s.Subscription(ctx, owner, name)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}
	return s.features.Consume(ctx, sub, featureSlug, amount)
}

func (s *Subscribers) RemainingFeatureUsage(ctx context.Context, owner subscription.Subscriber, featureSlug, name string) (int64, error) {
	sub, err := s.Subscription(ctx, owner, name)
	if err != nil || sub == nil {
		return 0, err
	}
	return s.features.Remaining(ctx, sub, featureSlug)
}

func (s *Subscribers) HasModule(ctx context.Context, owner subscription.Subscriber, moduleSlug, name string) bool {
	return s.modules.HasAccess(ctx, s.current(ctx, owner, name), moduleSlug)
}

func (s *Subscribers) current(ctx context.Context, owner subscription.Subscriber, name string) *subscription.Subscription {
	sub, err := s.Subscription(ctx, owner, name)
	if err != nil {
		s.lifecycle.logger.Warnw("failed to resolve subscription", "subscriber", owner.SubscriberRef().String(), "name", name, "error", err)
		return nil
	}
	return sub
}
