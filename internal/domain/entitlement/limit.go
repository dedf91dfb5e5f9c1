package entitlement

import (
	"fmt"
	"time"

	"github.com/orris-inc/entitlements/internal/shared/id"
)

// LimitType tells the engine whether a custom limit blocks consumption.
type LimitType string

const (
	LimitTypeHard LimitType = "hard"
	LimitTypeSoft LimitType = "soft"
)

func (t LimitType) IsValid() bool {
	return t == LimitTypeHard || t == LimitTypeSoft
}

func (t LimitType) String() string {
	return string(t)
}

// Limit overrides the plan value of one feature for one subscription.
// A nil custom limit defers to the plan.
type Limit struct {
	id               uint
	uuid             string
	subscriptionID   uint
	featureID        uint
	customLimit      *int64
	limitType        LimitType
	warningThreshold *int64
	metadata         map[string]interface{}
	createdAt        time.Time
	updatedAt        time.Time
}

func NewLimit(subscriptionID, featureID uint, customLimit *int64, limitType LimitType, warningThreshold *int64) (*Limit, error) {
	if subscriptionID == 0 || featureID == 0 {
		return nil, fmt.Errorf("subscription and feature IDs are required")
	}
	if limitType == "" {
		limitType = LimitTypeHard
	}
	if err := validateLimit(customLimit, limitType, warningThreshold); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Limit{
		uuid:             id.New(),
		subscriptionID:   subscriptionID,
		featureID:        featureID,
		customLimit:      customLimit,
		limitType:        limitType,
		warningThreshold: warningThreshold,
		metadata:         make(map[string]interface{}),
		createdAt:        now,
		updatedAt:        now,
	}, nil
}

func validateLimit(customLimit *int64, limitType LimitType, warningThreshold *int64) error {
	if customLimit != nil && *customLimit < 0 {
		return fmt.Errorf("%w: custom limit %d", ErrInvalidLimit, *customLimit)
	}
	if !limitType.IsValid() {
		return fmt.Errorf("%w: limit type %q", ErrInvalidLimit, limitType)
	}
	if warningThreshold != nil && *warningThreshold < 0 {
		return fmt.Errorf("%w: warning threshold %d", ErrInvalidLimit, *warningThreshold)
	}
	return nil
}

type LimitState struct {
	ID               uint
	UUID             string
	SubscriptionID   uint
	FeatureID        uint
	CustomLimit      *int64
	LimitType        LimitType
	WarningThreshold *int64
	Metadata         map[string]interface{}
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func ReconstructLimit(state LimitState) (*Limit, error) {
	if state.ID == 0 {
		return nil, fmt.Errorf("limit ID cannot be zero")
	}
	if err := validateLimit(state.CustomLimit, state.LimitType, state.WarningThreshold); err != nil {
		return nil, err
	}
	if state.Metadata == nil {
		state.Metadata = make(map[string]interface{})
	}
	return &Limit{
		id:               state.ID,
		uuid:             state.UUID,
		subscriptionID:   state.SubscriptionID,
		featureID:        state.FeatureID,
		customLimit:      state.CustomLimit,
		limitType:        state.LimitType,
		warningThreshold: state.WarningThreshold,
		metadata:         state.Metadata,
		createdAt:        state.CreatedAt,
		updatedAt:        state.UpdatedAt,
	}, nil
}

func (l *Limit) ID() uint {
	return l.id
}

func (l *Limit) UUID() string {
	return l.uuid
}

func (l *Limit) SubscriptionID() uint {
	return l.subscriptionID
}

func (l *Limit) FeatureID() uint {
	return l.featureID
}

func (l *Limit) CustomLimit() *int64 {
	return l.customLimit
}

func (l *Limit) LimitType() LimitType {
	return l.limitType
}

func (l *Limit) WarningThreshold() *int64 {
	return l.warningThreshold
}

func (l *Limit) Metadata() map[string]interface{} {
	return l.metadata
}

func (l *Limit) CreatedAt() time.Time {
	return l.createdAt
}

func (l *Limit) UpdatedAt() time.Time {
	return l.updatedAt
}

func (l *Limit) IsSoft() bool {
	return l.limitType == LimitTypeSoft
}

func (l *Limit) SetID(id uint) error {
	if l.id != 0 {
		return fmt.Errorf("limit ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("limit ID cannot be zero")
	}
	l.id = id
	return nil
}

// WarningReached reports whether used has crossed the warning threshold.
func (l *Limit) WarningReached(used int64) bool {
	return l.warningThreshold != nil && used >= *l.warningThreshold
}
