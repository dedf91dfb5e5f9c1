package entitlement

import (
	"time"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
)

const (
	EventTypeUsageRecorded        = "usage.recorded"
	EventTypeFeatureLimitReached  = "feature.limit_reached"
	EventTypeFeatureLimitExceeded = "feature.limit_exceeded"
	EventTypeModuleActivated      = "module.activated"
	EventTypeModuleDeactivated    = "module.deactivated"
)

func newBase(eventType string, sub subscription.Snapshot) events.BaseEvent {
	return events.BaseEvent{
		AggregateID: sub.UUID,
		EventType:   eventType,
		OccurredAt:  time.Now().UTC(),
		Version:     1,
	}
}

// UsageRecordedEvent is emitted after a successful consumption. Overage is
// non-zero only when consumption was allowed past the limit.
type UsageRecordedEvent struct {
	events.BaseEvent
	Subscription         subscription.Snapshot   `json:"subscription"`
	Feature              catalog.FeatureSnapshot `json:"feature"`
	Amount               int64                   `json:"amount"`
	Before               int64                   `json:"before"`
	After                int64                   `json:"after"`
	Limit                int64                   `json:"limit"`
	Overage              int64                   `json:"overage,omitempty"`
	OverageFeeMultiplier float64                 `json:"overage_fee_multiplier,omitempty"`
}

func NewUsageRecordedEvent(sub subscription.Snapshot, feature catalog.FeatureSnapshot, amount, before, after, limit int64) *UsageRecordedEvent {
	return &UsageRecordedEvent{
		BaseEvent:    newBase(EventTypeUsageRecorded, sub),
		Subscription: sub,
		Feature:      feature,
		Amount:       amount,
		Before:       before,
		After:        after,
		Limit:        limit,
	}
}

type FeatureLimitReachedEvent struct {
	events.BaseEvent
	Subscription subscription.Snapshot   `json:"subscription"`
	Feature      catalog.FeatureSnapshot `json:"feature"`
	Used         int64                   `json:"used"`
	Limit        int64                   `json:"limit"`
}

func NewFeatureLimitReachedEvent(sub subscription.Snapshot, feature catalog.FeatureSnapshot, used, limit int64) *FeatureLimitReachedEvent {
	return &FeatureLimitReachedEvent{
		BaseEvent:    newBase(EventTypeFeatureLimitReached, sub),
		Subscription: sub,
		Feature:      feature,
		Used:         used,
		Limit:        limit,
	}
}

// FeatureLimitExceededEvent reports a request past the limit. Allowed is true
// when overage was permitted and the usage was recorded anyway.
type FeatureLimitExceededEvent struct {
	events.BaseEvent
	Subscription subscription.Snapshot   `json:"subscription"`
	Feature      catalog.FeatureSnapshot `json:"feature"`
	Requested    int64                   `json:"requested"`
	Used         int64                   `json:"used"`
	Limit        int64                   `json:"limit"`
	Allowed      bool                    `json:"allowed"`
}

func NewFeatureLimitExceededEvent(sub subscription.Snapshot, feature catalog.FeatureSnapshot, requested, used, limit int64, allowed bool) *FeatureLimitExceededEvent {
	return &FeatureLimitExceededEvent{
		BaseEvent:    newBase(EventTypeFeatureLimitExceeded, sub),
		Subscription: sub,
		Feature:      feature,
		Requested:    requested,
		Used:         used,
		Limit:        limit,
		Allowed:      allowed,
	}
}

type ModuleActivatedEvent struct {
	events.BaseEvent
	Subscription subscription.Snapshot  `json:"subscription"`
	Module       catalog.ModuleSnapshot `json:"module"`
	ActivatedAt  time.Time              `json:"activated_at"`
}

func NewModuleActivatedEvent(sub subscription.Snapshot, module catalog.ModuleSnapshot, at time.Time) *ModuleActivatedEvent {
	return &ModuleActivatedEvent{
		BaseEvent:    newBase(EventTypeModuleActivated, sub),
		Subscription: sub,
		Module:       module,
		ActivatedAt:  at,
	}
}

type ModuleDeactivatedEvent struct {
	events.BaseEvent
	Subscription  subscription.Snapshot  `json:"subscription"`
	Module        catalog.ModuleSnapshot `json:"module"`
	DeactivatedAt time.Time              `json:"deactivated_at"`
}

func NewModuleDeactivatedEvent(sub subscription.Snapshot, module catalog.ModuleSnapshot, at time.Time) *ModuleDeactivatedEvent {
	return &ModuleDeactivatedEvent{
		BaseEvent:     newBase(EventTypeModuleDeactivated, sub),
		Subscription:  sub,
		Module:        module,
		DeactivatedAt: at,
	}
}
