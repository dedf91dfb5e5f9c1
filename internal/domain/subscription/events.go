package subscription

import (
	"time"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
)

const (
	EventTypeCreated     = "subscription.created"
	EventTypeCancelled   = "subscription.cancelled"
	EventTypeResumed     = "subscription.resumed"
	EventTypeRenewed     = "subscription.renewed"
	EventTypeExpired     = "subscription.expired"
	EventTypeDeleted     = "subscription.deleted"
	EventTypeTrialEnded  = "subscription.trial_ended"
	EventTypePlanChanged = "subscription.plan_changed"
)

func newBase(eventType string, snap Snapshot) events.BaseEvent {
	return events.BaseEvent{
		AggregateID: snap.UUID,
		EventType:   eventType,
		OccurredAt:  time.Now().UTC(),
		Version:     1,
	}
}

// SubscriptionCreatedEvent represents subscription creation
type SubscriptionCreatedEvent struct {
	events.BaseEvent
	Subscription Snapshot             `json:"subscription"`
	Plan         catalog.PlanSnapshot `json:"plan"`
}

func NewSubscriptionCreatedEvent(snap Snapshot, plan catalog.PlanSnapshot) *SubscriptionCreatedEvent {
	return &SubscriptionCreatedEvent{
		BaseEvent:    newBase(EventTypeCreated, snap),
		Subscription: snap,
		Plan:         plan,
	}
}

// SubscriptionCancelledEvent represents subscription cancellation
type SubscriptionCancelledEvent struct {
	events.BaseEvent
	Subscription Snapshot `json:"subscription"`
	Immediate    bool     `json:"immediate"`
}

func NewSubscriptionCancelledEvent(snap Snapshot, immediate bool) *SubscriptionCancelledEvent {
	return &SubscriptionCancelledEvent{
		BaseEvent:    newBase(EventTypeCancelled, snap),
		Subscription: snap,
		Immediate:    immediate,
	}
}

// SubscriptionResumedEvent is emitted by both resume and unpause.
type SubscriptionResumedEvent struct {
	events.BaseEvent
	Subscription Snapshot `json:"subscription"`
}

func NewSubscriptionResumedEvent(snap Snapshot) *SubscriptionResumedEvent {
	return &SubscriptionResumedEvent{
		BaseEvent:    newBase(EventTypeResumed, snap),
		Subscription: snap,
	}
}

type SubscriptionRenewedEvent struct {
	events.BaseEvent
	Subscription Snapshot `json:"subscription"`
}

func NewSubscriptionRenewedEvent(snap Snapshot) *SubscriptionRenewedEvent {
	return &SubscriptionRenewedEvent{
		BaseEvent:    newBase(EventTypeRenewed, snap),
		Subscription: snap,
	}
}

type SubscriptionExpiredEvent struct {
	events.BaseEvent
	Subscription Snapshot `json:"subscription"`
}

func NewSubscriptionExpiredEvent(snap Snapshot) *SubscriptionExpiredEvent {
	return &SubscriptionExpiredEvent{
		BaseEvent:    newBase(EventTypeExpired, snap),
		Subscription: snap,
	}
}

type SubscriptionDeletedEvent struct {
	events.BaseEvent
	Subscription Snapshot `json:"subscription"`
}

func NewSubscriptionDeletedEvent(snap Snapshot) *SubscriptionDeletedEvent {
	return &SubscriptionDeletedEvent{
		BaseEvent:    newBase(EventTypeDeleted, snap),
		Subscription: snap,
	}
}

type TrialEndedEvent struct {
	events.BaseEvent
	Subscription Snapshot `json:"subscription"`
}

func NewTrialEndedEvent(snap Snapshot) *TrialEndedEvent {
	return &TrialEndedEvent{
		BaseEvent:    newBase(EventTypeTrialEnded, snap),
		Subscription: snap,
	}
}

// PlanChangedEvent is emitted when a change is recorded. Change.AppliedAt is
// nil for scheduled changes.
type PlanChangedEvent struct {
	events.BaseEvent
	Subscription Snapshot             `json:"subscription"`
	FromPlan     catalog.PlanSnapshot `json:"from_plan"`
	ToPlan       catalog.PlanSnapshot `json:"to_plan"`
	Change       ChangeSnapshot       `json:"change"`
}

func NewPlanChangedEvent(snap Snapshot, from, to catalog.PlanSnapshot, change ChangeSnapshot) *PlanChangedEvent {
	return &PlanChangedEvent{
		BaseEvent:    newBase(EventTypePlanChanged, snap),
		Subscription: snap,
		FromPlan:     from,
		ToPlan:       to,
		Change:       change,
	}
}
