package entitlement

import (
	"context"
	"time"
)

// UsageRepository persists usage windows. Lookups return (nil, nil) when no
// row matches.
type UsageRepository interface {
	// Create inserts a window. Returns ErrWindowExists when a window with the
	// same (subscription, feature, window key) is already stored.
	Create(ctx context.Context, usage *Usage) error
	GetByID(ctx context.Context, id uint) (*Usage, error)
	// GetOpenWindow returns the window with valid_until null or after now.
	GetOpenWindow(ctx context.Context, subscriptionID, featureID uint, now time.Time) (*Usage, error)
	// IncrementWithinLimit adds amount only if the result stays within the
	// window limit, as one statement. Reports false when nothing changed.
	IncrementWithinLimit(ctx context.Context, usageID uint, amount int64) (bool, error)
	// Increment adds amount without checking the limit.
	Increment(ctx context.Context, usageID uint, amount int64) error
	// ResetOpen zeroes the open windows of one feature, or all features when
	// featureID is nil, and returns the number of windows touched.
	ResetOpen(ctx context.Context, subscriptionID uint, featureID *uint, now time.Time) (int64, error)
	// SetOpenLimit rewrites the limit snapshot of the feature's open window.
	SetOpenLimit(ctx context.Context, subscriptionID, featureID uint, limit int64, now time.Time) (int64, error)
	// CloseOpen ends every open window of a subscription at now.
	CloseOpen(ctx context.Context, subscriptionID uint, now time.Time) (int64, error)
	ListHistory(ctx context.Context, subscriptionID, featureID uint) ([]*Usage, error)
}

type LimitRepository interface {
	Get(ctx context.Context, subscriptionID, featureID uint) (*Limit, error)
	Upsert(ctx context.Context, limit *Limit) error
	Delete(ctx context.Context, subscriptionID, featureID uint) error
	ListBySubscription(ctx context.Context, subscriptionID uint) ([]*Limit, error)
}

type ModuleActivationRepository interface {
	Get(ctx context.Context, subscriptionID, moduleID uint) (*ModuleActivation, error)
	// Upsert creates the activation or overwrites the existing row for the
	// same (subscription, module).
	Upsert(ctx context.Context, activation *ModuleActivation) error
	ListActive(ctx context.Context, subscriptionID uint) ([]*ModuleActivation, error)
	ListBySubscription(ctx context.Context, subscriptionID uint) ([]*ModuleActivation, error)
}
