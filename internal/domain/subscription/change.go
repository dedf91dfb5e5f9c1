package subscription

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	vo "github.com/orris-inc/entitlements/internal/domain/subscription/valueobjects"
	"github.com/orris-inc/entitlements/internal/shared/biztime"
	"github.com/orris-inc/entitlements/internal/shared/id"
)

// Change is the audit record of a plan transition. Immediate changes are
// applied when recorded; scheduled ones wait for ScheduledFor.
type Change struct {
	id              uint
	uuid            string
	subscriptionID  uint
	fromPlanID      *uint
	toPlanID        uint
	changeType      vo.ChangeType
	isImmediate     bool
	scheduledFor    *time.Time
	appliedAt       *time.Time
	prorationAmount *decimal.Decimal
	metadata        map[string]interface{}
	createdAt       time.Time
}

func NewChange(
	subscriptionID uint,
	fromPlanID *uint,
	toPlanID uint,
	changeType vo.ChangeType,
	immediate bool,
	scheduledFor *time.Time,
	prorationAmount *decimal.Decimal,
	now time.Time,
) (*Change, error) {
	if subscriptionID == 0 {
		return nil, fmt.Errorf("subscription ID is required")
	}
	if toPlanID == 0 {
		return nil, fmt.Errorf("target plan ID is required")
	}
	if !changeType.IsValid() {
		return nil, fmt.Errorf("invalid change type: %s", changeType)
	}
	if !immediate && scheduledFor == nil {
		return nil, fmt.Errorf("scheduled change requires a scheduled time")
	}
	return &Change{
		uuid:            id.New(),
		subscriptionID:  subscriptionID,
		fromPlanID:      fromPlanID,
		toPlanID:        toPlanID,
		changeType:      changeType,
		isImmediate:     immediate,
		scheduledFor:    scheduledFor,
		prorationAmount: prorationAmount,
		metadata:        make(map[string]interface{}),
		createdAt:       now,
	}, nil
}

type ChangeState struct {
	ID              uint
	UUID            string
	SubscriptionID  uint
	FromPlanID      *uint
	ToPlanID        uint
	ChangeType      vo.ChangeType
	IsImmediate     bool
	ScheduledFor    *time.Time
	AppliedAt       *time.Time
	ProrationAmount *decimal.Decimal
	Metadata        map[string]interface{}
	CreatedAt       time.Time
}

func ReconstructChange(state ChangeState) (*Change, error) {
	if state.ID == 0 {
		return nil, fmt.Errorf("change ID cannot be zero")
	}
	if !state.ChangeType.IsValid() {
		return nil, fmt.Errorf("invalid change type: %s", state.ChangeType)
	}
	if state.Metadata == nil {
		state.Metadata = make(map[string]interface{})
	}
	return &Change{
		id:              state.ID,
		uuid:            state.UUID,
		subscriptionID:  state.SubscriptionID,
		fromPlanID:      state.FromPlanID,
		toPlanID:        state.ToPlanID,
		changeType:      state.ChangeType,
		isImmediate:     state.IsImmediate,
		scheduledFor:    state.ScheduledFor,
		appliedAt:       state.AppliedAt,
		prorationAmount: state.ProrationAmount,
		metadata:        state.Metadata,
		createdAt:       state.CreatedAt,
	}, nil
}

func (c *Change) ID() uint { return c.id }
func (c *Change) UUID() string { return c.uuid }
func (c *Change) SubscriptionID() uint { return c.subscriptionID }
func (c *Change) FromPlanID() *uint { return c.fromPlanID }
func (c *Change) ToPlanID() uint { return c.toPlanID }
func (c *Change) ChangeType() vo.ChangeType { return c.changeType }
func (c *Change) IsImmediate() bool { return c.isImmediate }
func (c *Change) ScheduledFor() *time.Time { return c.scheduledFor }
func (c *Change) AppliedAt() *time.Time { return c.appliedAt }
func (c *Change) ProrationAmount() *decimal.Decimal { return c.prorationAmount }
func (c *Change) Metadata() map[string]interface{} { return c.metadata }
func (c *Change) CreatedAt() time.Time { return c.createdAt }

func (c *Change) SetID(id uint) error {
	if c.id != 0 {
		return fmt.Errorf("change ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("change ID cannot be zero")
	}
	c.id = id
	return nil
}

func (c *Change) IsApplied() bool {
	return c.appliedAt != nil
}

// IsDue reports whether a scheduled change should be applied at now.
func (c *Change) IsDue(now time.Time) bool {
	if c.IsApplied() {
		return false
	}
	return c.scheduledFor == nil || !c.scheduledFor.After(now)
}

func (c *Change) MarkApplied(now time.Time) error {
	if c.IsApplied() {
		return ErrChangeAlreadyApplied
	}
	c.appliedAt = &now
	return nil
}

func (c *Change) Snapshot() ChangeSnapshot {
	snap := ChangeSnapshot{
		ID:          c.id,
		UUID:        c.uuid,
		FromPlanID:  c.fromPlanID,
		ToPlanID:    c.toPlanID,
		ChangeType:  c.changeType.String(),
		IsImmediate: c.isImmediate,
	}
	if c.scheduledFor != nil {
		t := *c.scheduledFor
		snap.ScheduledFor = &t
	}
	if c.appliedAt != nil {
		t := *c.appliedAt
		snap.AppliedAt = &t
	}
	if c.prorationAmount != nil {
		s := c.prorationAmount.StringFixed(2)
		snap.ProrationAmount = &s
	}
	return snap
}

type ChangeSnapshot struct {
	ID              uint       `json:"id"`
	UUID            string     `json:"uuid"`
	FromPlanID      *uint      `json:"from_plan_id,omitempty"`
	ToPlanID        uint       `json:"to_plan_id"`
	ChangeType      string     `json:"change_type"`
	IsImmediate     bool       `json:"is_immediate"`
	ScheduledFor    *time.Time `json:"scheduled_for,omitempty"`
	AppliedAt       *time.Time `json:"applied_at,omitempty"`
	ProrationAmount *string    `json:"proration_amount,omitempty"`
}

// CalculateProration returns the amount owed for switching from oldPrice to
// newPrice at now. In time-based mode it is the linear day-rate difference
// over the days left in the current period; credits are never produced.
func CalculateProration(
	mode vo.ProrationMode,
	oldPrice, newPrice decimal.Decimal,
	startsAt time.Time,
	endsAt *time.Time,
	now time.Time,
) decimal.Decimal {
	switch mode {
	case vo.ProrationNone:
		return decimal.Zero
	case vo.ProrationImmediate:
		return decimal.Max(decimal.Zero, newPrice.Sub(oldPrice)).Round(2)
	}

	if endsAt == nil {
		return decimal.Zero
	}
	totalDays := biztime.DaysBetween(startsAt, *endsAt)
	remainingDays := biztime.DaysBetween(now, *endsAt)
	if totalDays <= 0 || remainingDays <= 0 {
		return decimal.Zero
	}

	total := decimal.NewFromInt(totalDays)
	oldRate := oldPrice.Div(total)
	newRate := newPrice.Div(total)
	amount := newRate.Sub(oldRate).Mul(decimal.NewFromInt(remainingDays))
	return decimal.Max(decimal.Zero, amount).Round(2)
}
