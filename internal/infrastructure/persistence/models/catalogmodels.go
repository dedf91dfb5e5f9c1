package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/shared/constants"
)

// PlanModel represents the database persistence model for plans
// This is the anti-corruption layer between domain and database
type PlanModel struct {
	ID            uint            `gorm:"primarykey"`
	UUID          string          `gorm:"uniqueIndex;not null;size:36"`
	Name          string          `gorm:"not null;size:100"`
	Slug          string          `gorm:"uniqueIndex;not null;size:100"`
	Description   string          `gorm:"size:500"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0"`
	Currency      string          `gorm:"not null;size:3"`
	Interval      string          `gorm:"column:billing_interval;not null;size:20"`
	IntervalCount int             `gorm:"not null;default:1"`
	TrialDays     int             `gorm:"not null;default:0"`
	GraceDays     int             `gorm:"not null;default:0"`
	IsActive      bool            `gorm:"not null;index"`
	Tier          *string         `gorm:"size:50"`
	Metadata      datatypes.JSON
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for GORM
func (PlanModel) TableName() string {
	return constants.TablePlans
}

type FeatureModel struct {
	ID           uint   `gorm:"primarykey"`
	UUID         string `gorm:"uniqueIndex;not null;size:36"`
	ModuleID     *uint  `gorm:"index"`
	Name         string `gorm:"not null;size:100"`
	Slug         string `gorm:"uniqueIndex;not null;size:100"`
	Description  string `gorm:"size:500"`
	Type         string `gorm:"column:feature_type;not null;size:20"`
	DefaultValue int64  `gorm:"not null;default:0"`
	ResetPeriod  string `gorm:"not null;size:20;default:never"`
	IsActive     bool   `gorm:"not null"`
	Metadata     datatypes.JSON
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (FeatureModel) TableName() string {
	return constants.TableFeatures
}

type ModuleModel struct {
	ID          uint   `gorm:"primarykey"`
	UUID        string `gorm:"uniqueIndex;not null;size:36"`
	ParentID    *uint  `gorm:"index"`
	Name        string `gorm:"not null;size:100"`
	Slug        string `gorm:"uniqueIndex;not null;size:100"`
	Description string `gorm:"size:500"`
	IsActive    bool   `gorm:"not null"`
	SortOrder   int    `gorm:"not null;default:0"`
	Metadata    datatypes.JSON
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   gorm.DeletedAt `gorm:"index"`
}

func (ModuleModel) TableName() string {
	return constants.TableModules
}

// PlanFeatureModel is the plan/feature junction. A NULL value defers to the
// feature default.
type PlanFeatureModel struct {
	ID        uint   `gorm:"primarykey"`
	UUID      string `gorm:"uniqueIndex;not null;size:36"`
	PlanID    uint   `gorm:"not null;uniqueIndex:idx_plan_feature,priority:1"`
	FeatureID uint   `gorm:"not null;uniqueIndex:idx_plan_feature,priority:2;index"`
	Value     *int64
	Metadata  datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (PlanFeatureModel) TableName() string {
	return constants.TablePlanFeatures
}

type PlanModuleModel struct {
	ID        uint   `gorm:"primarykey"`
	UUID      string `gorm:"uniqueIndex;not null;size:36"`
	PlanID    uint   `gorm:"not null;uniqueIndex:idx_plan_module,priority:1"`
	ModuleID  uint   `gorm:"not null;uniqueIndex:idx_plan_module,priority:2;index"`
	IsEnabled bool   `gorm:"not null"`
	Metadata  datatypes.JSON
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (PlanModuleModel) TableName() string {
	return constants.TablePlanModules
}
