package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/shared/constants"
)

// SubscriptionModel represents the database persistence model for subscriptions
// This is the anti-corruption layer between domain and database
type SubscriptionModel struct {
	ID             uint       `gorm:"primarykey"`
	UUID           string     `gorm:"uniqueIndex;not null;size:36"`
	SubscriberType string     `gorm:"not null;size:50;index:idx_subscriber_slot,priority:1"`
	SubscriberID   string     `gorm:"not null;size:64;index:idx_subscriber_slot,priority:2"`
	Name           string     `gorm:"not null;size:50;default:default;index:idx_subscriber_slot,priority:3"`
	PlanID         uint       `gorm:"not null;index"`
	Status         string     `gorm:"not null;size:20;index"`
	TrialEndsAt    *time.Time `gorm:"index"`
	StartsAt       time.Time  `gorm:"not null"`
	EndsAt         *time.Time `gorm:"index"`
	CancelledAt    *time.Time
	PausedAt       *time.Time
	ResumedAt      *time.Time
	Metadata       datatypes.JSON
	Version        int `gorm:"not null;default:1"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for GORM
func (SubscriptionModel) TableName() string {
	return constants.TableSubscriptions
}

// BeforeCreate hook for GORM
func (s *SubscriptionModel) BeforeCreate(tx *gorm.DB) error {
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}

// SubscriptionUsageModel is one usage window. WindowKey mirrors ValidUntil so
// the unique index also covers windows that never expire.
type SubscriptionUsageModel struct {
	ID             uint       `gorm:"primarykey"`
	UUID           string     `gorm:"uniqueIndex;not null;size:36"`
	SubscriptionID uint       `gorm:"not null;uniqueIndex:idx_usage_window,priority:1"`
	FeatureID      uint       `gorm:"not null;uniqueIndex:idx_usage_window,priority:2;index"`
	WindowKey      string     `gorm:"not null;size:32;uniqueIndex:idx_usage_window,priority:3"`
	Used           int64      `gorm:"not null;default:0"`
	Limit          int64      `gorm:"column:usage_limit;not null;default:0"`
	ValidUntil     *time.Time `gorm:"index"`
	ResetAt        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (SubscriptionUsageModel) TableName() string {
	return constants.TableSubscriptionUsage
}

type SubscriptionLimitModel struct {
	ID               uint   `gorm:"primarykey"`
	UUID             string `gorm:"uniqueIndex;not null;size:36"`
	SubscriptionID   uint   `gorm:"not null;uniqueIndex:idx_subscription_limit,priority:1"`
	FeatureID        uint   `gorm:"not null;uniqueIndex:idx_subscription_limit,priority:2;index"`
	CustomLimit      *int64
	LimitType        string `gorm:"not null;size:10;default:hard"`
	WarningThreshold *int64
	Metadata         datatypes.JSON
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (SubscriptionLimitModel) TableName() string {
	return constants.TableSubscriptionLimits
}

type ModuleActivationModel struct {
	ID             uint   `gorm:"primarykey"`
	UUID           string `gorm:"uniqueIndex;not null;size:36"`
	SubscriptionID uint   `gorm:"not null;uniqueIndex:idx_module_activation,priority:1"`
	ModuleID       uint   `gorm:"not null;uniqueIndex:idx_module_activation,priority:2;index"`
	IsActive       bool   `gorm:"not null"`
	ActivatedAt    *time.Time
	DeactivatedAt  *time.Time
	Metadata       datatypes.JSON
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (ModuleActivationModel) TableName() string {
	return constants.TableModuleActivations
}

type SubscriptionChangeModel struct {
	ID              uint       `gorm:"primarykey"`
	UUID            string     `gorm:"uniqueIndex;not null;size:36"`
	SubscriptionID  uint       `gorm:"not null;index"`
	FromPlanID      *uint      `gorm:"index"`
	ToPlanID        uint       `gorm:"not null;index"`
	ChangeType      string     `gorm:"not null;size:20"`
	IsImmediate     bool       `gorm:"not null;default:false"`
	ScheduledFor    *time.Time `gorm:"index"`
	AppliedAt       *time.Time
	ProrationAmount decimal.NullDecimal `gorm:"type:decimal(10,2)"`
	Metadata        datatypes.JSON
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       gorm.DeletedAt `gorm:"index"`
}

func (SubscriptionChangeModel) TableName() string {
	return constants.TableSubscriptionChanges
}
