package entitlement

import (
	"fmt"
	"time"

	"github.com/orris-inc/entitlements/internal/shared/id"
)

// ModuleActivation records whether a subscription has switched a module on.
// There is at most one per (subscription, module); re-activation mutates it.
type ModuleActivation struct {
	id             uint
	uuid           string
	subscriptionID uint
	moduleID       uint
	isActive       bool
	activatedAt    *time.Time
	deactivatedAt  *time.Time
	metadata       map[string]interface{}
	createdAt      time.Time
	updatedAt      time.Time
}

// NewModuleActivation creates an active record.
func NewModuleActivation(subscriptionID, moduleID uint, now time.Time) (*ModuleActivation, error) {
	if subscriptionID == 0 || moduleID == 0 {
		return nil, fmt.Errorf("subscription and module IDs are required")
	}
	return &ModuleActivation{
		uuid:           id.New(),
		subscriptionID: subscriptionID,
		moduleID:       moduleID,
		isActive:       true,
		activatedAt:    &now,
		metadata:       make(map[string]interface{}),
		createdAt:      now,
		updatedAt:      now,
	}, nil
}

type ModuleActivationState struct {
	ID             uint
	UUID           string
	SubscriptionID uint
	ModuleID       uint
	IsActive       bool
	ActivatedAt    *time.Time
	DeactivatedAt  *time.Time
	Metadata       map[string]interface{}
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func ReconstructModuleActivation(state ModuleActivationState) (*ModuleActivation, error) {
	if state.ID == 0 {
		return nil, fmt.Errorf("module activation ID cannot be zero")
	}
	if state.Metadata == nil {
		state.Metadata = make(map[string]interface{})
	}
	return &ModuleActivation{
		id:             state.ID,
		uuid:           state.UUID,
		subscriptionID: state.SubscriptionID,
		moduleID:       state.ModuleID,
		isActive:       state.IsActive,
		activatedAt:    state.ActivatedAt,
		deactivatedAt:  state.DeactivatedAt,
		metadata:       state.Metadata,
		createdAt:      state.CreatedAt,
		updatedAt:      state.UpdatedAt,
	}, nil
}

func (a *ModuleActivation) ID() uint {
	return a.id
}

func (a *ModuleActivation) UUID() string {
	return a.uuid
}

func (a *ModuleActivation) SubscriptionID() uint {
	return a.subscriptionID
}

func (a *ModuleActivation) ModuleID() uint {
	return a.moduleID
}

func (a *ModuleActivation) IsActive() bool {
	return a.isActive
}

func (a *ModuleActivation) ActivatedAt() *time.Time {
	return a.activatedAt
}

func (a *ModuleActivation) DeactivatedAt() *time.Time {
	return a.deactivatedAt
}

func (a *ModuleActivation) Metadata() map[string]interface{} {
	return a.metadata
}

func (a *ModuleActivation) CreatedAt() time.Time {
	return a.createdAt
}

func (a *ModuleActivation) UpdatedAt() time.Time {
	return a.updatedAt
}

func (a *ModuleActivation) SetID(id uint) error {
	if a.id != 0 {
		return fmt.Errorf("module activation ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("module activation ID cannot be zero")
	}
	a.id = id
	return nil
}

func (a *ModuleActivation) Activate(now time.Time) {
	a.isActive = true
	a.activatedAt = &now
	a.deactivatedAt = nil
	a.updatedAt = now
}

func (a *ModuleActivation) Deactivate(now time.Time) {
	a.isActive = false
	a.deactivatedAt = &now
	a.updatedAt = now
}
