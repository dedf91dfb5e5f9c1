package catalog

import (
	"fmt"
	"strings"
	"time"

	vo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/shared/id"
)

// Feature is a gated capability. Boolean features are plain gates; limit and
// consumable features carry a usage ceiling.
type Feature struct {
	id           uint
	uuid         string
	moduleID     *uint
	name         string
	slug         string
	description  string
	featureType  vo.FeatureType
	defaultValue int64
	resetPeriod  vo.ResetPeriod
	isActive     bool
	metadata     map[string]interface{}
	createdAt    time.Time
	updatedAt    time.Time
}

type FeatureParams struct {
	ModuleID     *uint
	Name         string
	Slug         string
	Description  string
	Type         vo.FeatureType
	DefaultValue int64
	ResetPeriod  vo.ResetPeriod
	Metadata     map[string]interface{}
}

func (p FeatureParams) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("feature name is required")
	}
	if strings.TrimSpace(p.Slug) == "" {
		return fmt.Errorf("feature slug is required")
	}
	if !p.Type.IsValid() {
		return fmt.Errorf("invalid feature type: %s", p.Type)
	}
	if !p.ResetPeriod.IsValid() {
		return fmt.Errorf("invalid reset period: %s", p.ResetPeriod)
	}
	if p.DefaultValue < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidFeatureValue, p.DefaultValue)
	}
	if p.Type.IsBoolean() && p.DefaultValue > 1 {
		return fmt.Errorf("%w: boolean default must be 0 or 1", ErrInvalidFeatureValue)
	}
	return nil
}

func NewFeature(params FeatureParams) (*Feature, error) {
	if params.ResetPeriod == "" {
		params.ResetPeriod = vo.ResetNever
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	f := &Feature{
		uuid:      id.New(),
		isActive:  true,
		createdAt: now,
		updatedAt: now,
	}
	f.apply(params)
	return f, nil
}

func ReconstructFeature(
	id uint,
	uuid string,
	params FeatureParams,
	isActive bool,
	createdAt, updatedAt time.Time,
) (*Feature, error) {
	if id == 0 {
		return nil, fmt.Errorf("feature ID cannot be zero")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	f := &Feature{
		id:        id,
		uuid:      uuid,
		isActive:  isActive,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
	f.apply(params)
	return f, nil
}

func (f *Feature) apply(params FeatureParams) {
	f.moduleID = params.ModuleID
	f.name = params.Name
	f.slug = params.Slug
	f.description = params.Description
	f.featureType = params.Type
	f.defaultValue = params.DefaultValue
	f.resetPeriod = params.ResetPeriod
	f.metadata = params.Metadata
	if f.metadata == nil {
		f.metadata = make(map[string]interface{})
	}
}

func (f *Feature) ID() uint { return f.id }
func (f *Feature) UUID() string { return f.uuid }
func (f *Feature) ModuleID() *uint { return f.moduleID }
func (f *Feature) Name() string { return f.name }
func (f *Feature) Slug() string { return f.slug }
func (f *Feature) Description() string { return f.description }
func (f *Feature) Type() vo.FeatureType { return f.featureType }
func (f *Feature) DefaultValue() int64 { return f.defaultValue }
func (f *Feature) ResetPeriod() vo.ResetPeriod { return f.resetPeriod }
func (f *Feature) IsActive() bool { return f.isActive }
func (f *Feature) Metadata() map[string]interface{} { return f.metadata }
func (f *Feature) CreatedAt() time.Time { return f.createdAt }
func (f *Feature) UpdatedAt() time.Time { return f.updatedAt }

// IsBoolean reports whether the feature ignores usage counters.
func (f *Feature) IsBoolean() bool {
	return f.featureType.IsBoolean()
}

func (f *Feature) SetID(id uint) error {
	if f.id != 0 {
		return fmt.Errorf("feature ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("feature ID cannot be zero")
	}
	f.id = id
	return nil
}

func (f *Feature) Update(params FeatureParams) error {
	if params.Slug != "" && params.Slug != f.slug {
		return ErrSlugImmutable
	}
	params.Slug = f.slug
	if params.ResetPeriod == "" {
		params.ResetPeriod = f.resetPeriod
	}
	if err := params.validate(); err != nil {
		return err
	}
	f.apply(params)
	f.updatedAt = time.Now().UTC()
	return nil
}

func (f *Feature) Activate() {
	f.isActive = true
	f.updatedAt = time.Now().UTC()
}

func (f *Feature) Deactivate() {
	f.isActive = false
	f.updatedAt = time.Now().UTC()
}

// Snapshot captures the feature for event payloads.
func (f *Feature) Snapshot() FeatureSnapshot {
	return FeatureSnapshot{
		ID:           f.id,
		UUID:         f.uuid,
		Slug:         f.slug,
		Type:         f.featureType.String(),
		DefaultValue: f.defaultValue,
		ResetPeriod:  f.resetPeriod.String(),
	}
}

// FeatureSnapshot is an immutable copy of a feature.
type FeatureSnapshot struct {
	ID           uint   `json:"id"`
	UUID         string `json:"uuid"`
	Slug         string `json:"slug"`
	Type         string `json:"type"`
	DefaultValue int64  `json:"default_value"`
	ResetPeriod  string `json:"reset_period"`
}
