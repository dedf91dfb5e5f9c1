package entitlement

import (
	"fmt"
	"time"

	"github.com/orris-inc/entitlements/internal/shared/id"
)

// NeverExpiresKey is the window key of windows without valid_until.
const NeverExpiresKey = "never"

// WindowKey returns the uniqueness key of a usage window. SQL unique indexes
// treat NULLs as distinct, so never-expiring windows use a fixed key instead of
// relying on valid_until alone.
func WindowKey(validUntil *time.Time) string {
	if validUntil == nil {
		return NeverExpiresKey
	}
	return validUntil.UTC().Format(time.RFC3339)
}

// Usage is one usage window of a metered feature. The limit is a snapshot
// taken when the window opened.
type Usage struct {
	id             uint
	uuid           string
	subscriptionID uint
	featureID      uint
	used           int64
	limit          int64
	validUntil     *time.Time
	resetAt        *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewUsage opens a window with used = 0.
func NewUsage(subscriptionID, featureID uint, limit int64, validUntil, resetAt *time.Time, now time.Time) (*Usage, error) {
	if subscriptionID == 0 || featureID == 0 {
		return nil, fmt.Errorf("subscription and feature IDs are required")
	}
	if validUntil != nil && !validUntil.After(now) {
		return nil, fmt.Errorf("window must end after %s", now)
	}
	return &Usage{
		uuid:           id.New(),
		subscriptionID: subscriptionID,
		featureID:      featureID,
		limit:          limit,
		validUntil:     validUntil,
		resetAt:        resetAt,
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

type UsageState struct {
	ID             uint
	UUID           string
	SubscriptionID uint
	FeatureID      uint
	Used           int64
	Limit          int64
	ValidUntil     *time.Time
	ResetAt        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func ReconstructUsage(state UsageState) (*Usage, error) {
	if state.ID == 0 {
		return nil, fmt.Errorf("usage ID cannot be zero")
	}
	if state.Used < 0 {
		return nil, fmt.Errorf("usage counter cannot be negative: %d", state.Used)
	}
	return &Usage{
		id:             state.ID,
		uuid:           state.UUID,
		subscriptionID: state.SubscriptionID,
		featureID:      state.FeatureID,
		used:           state.Used,
		limit:          state.Limit,
		validUntil:     state.ValidUntil,
		resetAt:        state.ResetAt,
		createdAt:      state.CreatedAt,
		updatedAt:      state.UpdatedAt,
	}, nil
}

func (u *Usage) ID() uint {
	return u.id
}

func (u *Usage) UUID() string {
	return u.uuid
}

func (u *Usage) SubscriptionID() uint {
	return u.subscriptionID
}

func (u *Usage) FeatureID() uint {
	return u.featureID
}

func (u *Usage) Used() int64 {
	return u.used
}

func (u *Usage) Limit() int64 {
	return u.limit
}

func (u *Usage) ValidUntil() *time.Time {
	return u.validUntil
}

func (u *Usage) ResetAt() *time.Time {
	return u.resetAt
}

func (u *Usage) CreatedAt() time.Time {
	return u.createdAt
}

func (u *Usage) UpdatedAt() time.Time {
	return u.updatedAt
}

func (u *Usage) WindowKey() string {
	return WindowKey(u.validUntil)
}

func (u *Usage) SetID(id uint) error {
	if u.id != 0 {
		return fmt.Errorf("usage ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("usage ID cannot be zero")
	}
	u.id = id
	return nil
}

// IsOpen reports whether the window accepts consumption at now.
func (u *Usage) IsOpen(now time.Time) bool {
	return u.validUntil == nil || u.validUntil.After(now)
}

// Remaining is max(0, limit - used).
func (u *Usage) Remaining() int64 {
	if u.used >= u.limit {
		return 0
	}
	return u.limit - u.used
}

// Overage is how far used exceeds the limit, for soft-enforced windows.
func (u *Usage) Overage() int64 {
	if u.used <= u.limit {
		return 0
	}
	return u.used - u.limit
}
