package subscription

import (
	"context"
	"time"
)

// Repository persists subscriptions. Lookups return (nil, nil) when the
// record does not exist.
type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	// Update saves the aggregate if its version still matches the stored one
	// and returns ErrStaleSubscription otherwise.
	Update(ctx context.Context, subscription *Subscription) error
	GetByID(ctx context.Context, id uint) (*Subscription, error)
	GetByUUID(ctx context.Context, uuid string) (*Subscription, error)
	// GetCurrent returns the most recently created subscription in the
	// subscriber's named slot.
	GetCurrent(ctx context.Context, subscriber SubscriberRef, name string) (*Subscription, error)
	ListBySubscriber(ctx context.Context, subscriber SubscriberRef) ([]*Subscription, error)
	// ListEndingBefore returns usable subscriptions whose ends_at is before t.
	ListEndingBefore(ctx context.Context, t time.Time) ([]*Subscription, error)
	// ListTrialsEndingBefore returns trials whose trial_ends_at is before t.
	ListTrialsEndingBefore(ctx context.Context, t time.Time) ([]*Subscription, error)
	ListUsable(ctx context.Context) ([]*Subscription, error)
	CountByPlan(ctx context.Context, planID uint) (int64, error)
	// Delete removes the subscription and every row it owns.
	Delete(ctx context.Context, id uint) error
}

type ChangeRepository interface {
	Create(ctx context.Context, change *Change) error
	MarkApplied(ctx context.Context, change *Change) error
	GetByID(ctx context.Context, id uint) (*Change, error)
	ListBySubscription(ctx context.Context, subscriptionID uint) ([]*Change, error)
	// ListDue returns unapplied changes scheduled at or before t.
	ListDue(ctx context.Context, t time.Time) ([]*Change, error)
}
