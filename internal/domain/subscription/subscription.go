package subscription

import (
	"fmt"
	"strings"
	"time"

	vo "github.com/orris-inc/entitlements/internal/domain/subscription/valueobjects"
	"github.com/orris-inc/entitlements/internal/shared/constants"
	"github.com/orris-inc/entitlements/internal/shared/id"
)

// Subscription represents the subscription aggregate root
type Subscription struct {
	id          uint
	uuid        string
	subscriber  SubscriberRef
	planID      uint
	name        string
	status      vo.SubscriptionStatus
	trialEndsAt *time.Time
	startsAt    time.Time
	endsAt      *time.Time
	cancelledAt *time.Time
	pausedAt    *time.Time
	resumedAt   *time.Time
	metadata    map[string]interface{}
	version     int
	createdAt   time.Time
	updatedAt   time.Time
}

// NewSubscription creates a subscription. A positive trialDays starts it on
// trial with trial_ends_at = now + trialDays.
func NewSubscription(
	subscriber SubscriberRef,
	planID uint,
	name string,
	trialDays int,
	startsAt time.Time,
	endsAt *time.Time,
	now time.Time,
) (*Subscription, error) {
	if err := subscriber.Validate(); err != nil {
		return nil, err
	}
	if planID == 0 {
		return nil, fmt.Errorf("plan ID is required")
	}
	if trialDays < 0 {
		return nil, fmt.Errorf("trial days cannot be negative")
	}
	if strings.TrimSpace(name) == "" {
		name = constants.DefaultSubscriptionName
	}
	if endsAt != nil && endsAt.Before(startsAt) {
		return nil, fmt.Errorf("end date must be after start date")
	}

	s := &Subscription{
		uuid:       id.New(),
		subscriber: subscriber,
		planID:     planID,
		name:       name,
		status:     vo.StatusActive,
		startsAt:   startsAt,
		endsAt:     endsAt,
		metadata:   make(map[string]interface{}),
		version:    1,
		createdAt:  now,
		updatedAt:  now,
	}
	if trialDays > 0 {
		trialEnds := now.AddDate(0, 0, trialDays)
		s.status = vo.StatusOnTrial
		s.trialEndsAt = &trialEnds
	}
	return s, nil
}

// SubscriptionState carries the persisted attributes of a subscription.
type SubscriptionState struct {
	ID          uint
	UUID        string
	Subscriber  SubscriberRef
	PlanID      uint
	Name        string
	Status      vo.SubscriptionStatus
	TrialEndsAt *time.Time
	StartsAt    time.Time
	EndsAt      *time.Time
	CancelledAt *time.Time
	PausedAt    *time.Time
	ResumedAt   *time.Time
	Metadata    map[string]interface{}
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReconstructSubscription reconstructs a subscription from persistence
func ReconstructSubscription(state SubscriptionState) (*Subscription, error) {
	if state.ID == 0 {
		return nil, fmt.Errorf("subscription ID cannot be zero")
	}
	if state.PlanID == 0 {
		return nil, fmt.Errorf("plan ID is required")
	}
	if !vo.ValidStatuses[state.Status] {
		return nil, fmt.Errorf("invalid subscription status: %s", state.Status)
	}
	if state.Metadata == nil {
		state.Metadata = make(map[string]interface{})
	}

	return &Subscription{
		id:          state.ID,
		uuid:        state.UUID,
		subscriber:  state.Subscriber,
		planID:      state.PlanID,
		name:        state.Name,
		status:      state.Status,
		trialEndsAt: state.TrialEndsAt,
		startsAt:    state.StartsAt,
		endsAt:      state.EndsAt,
		cancelledAt: state.CancelledAt,
		pausedAt:    state.PausedAt,
		resumedAt:   state.ResumedAt,
		metadata:    state.Metadata,
		version:     state.Version,
		createdAt:   state.CreatedAt,
		updatedAt:   state.UpdatedAt,
	}, nil
}

func (s *Subscription) ID() uint {
	return s.id
}

func (s *Subscription) UUID() string {
	return s.uuid
}

func (s *Subscription) Subscriber() SubscriberRef {
	return s.subscriber
}

func (s *Subscription) PlanID() uint {
	return s.planID
}

// Name returns the subscription slot, "default" unless the subscriber holds several.
func (s *Subscription) Name() string {
	return s.name
}

func (s *Subscription) Status() vo.SubscriptionStatus {
	return s.status
}

func (s *Subscription) TrialEndsAt() *time.Time {
	return s.trialEndsAt
}

func (s *Subscription) StartsAt() time.Time {
	return s.startsAt
}

func (s *Subscription) EndsAt() *time.Time {
	return s.endsAt
}

func (s *Subscription) CancelledAt() *time.Time {
	return s.cancelledAt
}

func (s *Subscription) PausedAt() *time.Time {
	return s.pausedAt
}

func (s *Subscription) ResumedAt() *time.Time {
	return s.resumedAt
}

func (s *Subscription) Metadata() map[string]interface{} {
	return s.metadata
}

// Version returns the aggregate version for optimistic locking
func (s *Subscription) Version() int {
	return s.version
}

func (s *Subscription) CreatedAt() time.Time {
	return s.createdAt
}

func (s *Subscription) UpdatedAt() time.Time {
	return s.updatedAt
}

// SetID sets the subscription ID (only for persistence layer use)
func (s *Subscription) SetID(id uint) error {
	if s.id != 0 {
		return fmt.Errorf("subscription ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("subscription ID cannot be zero")
	}
	s.id = id
	return nil
}

// SetVersion records the version written by the persistence layer.
func (s *Subscription) SetVersion(version int) {
	s.version = version
}

func (s *Subscription) SetMetadata(metadata map[string]interface{}) {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	s.metadata = metadata
}

// IsUsable reports whether the subscription currently grants entitlements.
func (s *Subscription) IsUsable() bool {
	return s.status.CanUseService()
}

// OnTrial reports whether the trial is still running at now.
func (s *Subscription) OnTrial(now time.Time) bool {
	if s.status != vo.StatusOnTrial {
		return false
	}
	return s.trialEndsAt == nil || s.trialEndsAt.After(now)
}

// Ended reports whether ends_at has passed.
func (s *Subscription) Ended(now time.Time) bool {
	return s.endsAt != nil && !s.endsAt.After(now)
}

// Cancel moves the subscription to cancelled. An immediate cancel ends it now;
// otherwise it runs until its current end, or the end of the trial when no end
// is set.
func (s *Subscription) Cancel(immediate bool, now time.Time) {
	s.status = vo.StatusCancelled
	s.cancelledAt = &now
	if immediate {
		s.endsAt = &now
	} else if s.endsAt == nil && s.trialEndsAt != nil {
		trialEnds := *s.trialEndsAt
		s.endsAt = &trialEnds
	}
	s.updatedAt = now
}

// Resume reactivates a cancelled subscription.
func (s *Subscription) Resume(now time.Time) error {
	if s.status != vo.StatusCancelled {
		return ErrInvalidTransition(s.status.String(), vo.StatusActive.String())
	}
	s.status = vo.StatusActive
	s.cancelledAt = nil
	s.resumedAt = &now
	s.updatedAt = now
	return nil
}

func (s *Subscription) Pause(now time.Time) error {
	if !s.status.CanPause() {
		return ErrInvalidTransition(s.status.String(), vo.StatusPaused.String())
	}
	s.status = vo.StatusPaused
	s.pausedAt = &now
	s.updatedAt = now
	return nil
}

func (s *Subscription) Unpause(now time.Time) error {
	if s.status != vo.StatusPaused {
		return ErrInvalidTransition(s.status.String(), vo.StatusActive.String())
	}
	s.status = vo.StatusActive
	s.pausedAt = nil
	s.resumedAt = &now
	s.updatedAt = now
	return nil
}

// Renew starts a new billing period ending at periodEnd.
func (s *Subscription) Renew(periodEnd, now time.Time) error {
	if periodEnd.Before(now) {
		return fmt.Errorf("renewal period end %s is before %s", periodEnd, now)
	}
	s.status = vo.StatusActive
	s.startsAt = now
	s.endsAt = &periodEnd
	s.updatedAt = now
	return nil
}

func (s *Subscription) Expire(now time.Time) {
	s.status = vo.StatusExpired
	s.endsAt = &now
	s.updatedAt = now
}

// ConvertTrialToPaid ends the trial and starts the first paid period.
func (s *Subscription) ConvertTrialToPaid(periodEnd, now time.Time) error {
	if s.status != vo.StatusOnTrial {
		return ErrInvalidTransition(s.status.String(), vo.StatusActive.String())
	}
	s.status = vo.StatusActive
	s.trialEndsAt = nil
	s.startsAt = now
	s.endsAt = &periodEnd
	s.updatedAt = now
	return nil
}

// MarkPastDue flags a subscription whose payment is outstanding.
func (s *Subscription) MarkPastDue(now time.Time) error {
	if s.status != vo.StatusActive {
		return ErrInvalidTransition(s.status.String(), vo.StatusPastDue.String())
	}
	s.status = vo.StatusPastDue
	s.updatedAt = now
	return nil
}

// SwitchPlan points the subscription at another plan.
func (s *Subscription) SwitchPlan(planID uint, now time.Time) error {
	if planID == 0 {
		return fmt.Errorf("plan ID is required")
	}
	s.planID = planID
	s.updatedAt = now
	return nil
}

// Snapshot captures the subscription for event payloads.
func (s *Subscription) Snapshot() Snapshot {
	return Snapshot{
		ID:          s.id,
		UUID:        s.uuid,
		Subscriber:  s.subscriber,
		PlanID:      s.planID,
		Name:        s.name,
		Status:      s.status.String(),
		TrialEndsAt: copyTime(s.trialEndsAt),
		StartsAt:    s.startsAt,
		EndsAt:      copyTime(s.endsAt),
		CancelledAt: copyTime(s.cancelledAt),
		PausedAt:    copyTime(s.pausedAt),
		ResumedAt:   copyTime(s.resumedAt),
	}
}

// Snapshot is an immutable copy of a subscription.
type Snapshot struct {
	ID          uint          `json:"id"`
	UUID        string        `json:"uuid"`
	Subscriber  SubscriberRef `json:"subscriber"`
	PlanID      uint          `json:"plan_id"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	TrialEndsAt *time.Time    `json:"trial_ends_at,omitempty"`
	StartsAt    time.Time     `json:"starts_at"`
	EndsAt      *time.Time    `json:"ends_at,omitempty"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
	PausedAt    *time.Time    `json:"paused_at,omitempty"`
	ResumedAt   *time.Time    `json:"resumed_at,omitempty"`
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
