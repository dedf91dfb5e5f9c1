package mappers

import (
	"fmt"
	"time"

	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
)

type EntitlementMapper interface {
	UsageToEntity(model *models.SubscriptionUsageModel) (*entitlement.Usage, error)
	UsageToModel(entity *entitlement.Usage) *models.SubscriptionUsageModel
	UsagesToEntities(models []*models.SubscriptionUsageModel) ([]*entitlement.Usage, error)

	LimitToEntity(model *models.SubscriptionLimitModel) (*entitlement.Limit, error)
	LimitToModel(entity *entitlement.Limit) (*models.SubscriptionLimitModel, error)
	LimitsToEntities(models []*models.SubscriptionLimitModel) ([]*entitlement.Limit, error)

	ActivationToEntity(model *models.ModuleActivationModel) (*entitlement.ModuleActivation, error)
	ActivationToModel(entity *entitlement.ModuleActivation) (*models.ModuleActivationModel, error)
	ActivationsToEntities(models []*models.ModuleActivationModel) ([]*entitlement.ModuleActivation, error)
}

type EntitlementMapperImpl struct{}

func NewEntitlementMapper() EntitlementMapper {
	return &EntitlementMapperImpl{}
}

func (m *EntitlementMapperImpl) UsageToEntity(model *models.SubscriptionUsageModel) (*entitlement.Usage, error) {
	if model == nil {
		return nil, nil
	}
	entity, err := entitlement.ReconstructUsage(entitlement.UsageState{
		ID:             model.ID,
		UUID:           model.UUID,
		SubscriptionID: model.SubscriptionID,
		FeatureID:      model.FeatureID,
		Used:           model.Used,
		Limit:          model.Limit,
		ValidUntil:     model.ValidUntil,
		ResetAt:        model.ResetAt,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct usage window: %w", err)
	}
	return entity, nil
}

func (m *EntitlementMapperImpl) UsageToModel(entity *entitlement.Usage) *models.SubscriptionUsageModel {
	if entity == nil {
		return nil
	}
	return &models.SubscriptionUsageModel{
		ID:             entity.ID(),
		UUID:           entity.UUID(),
		SubscriptionID: entity.SubscriptionID(),
		FeatureID:      entity.FeatureID(),
		WindowKey:      entity.WindowKey(),
		Used:           entity.Used(),
		Limit:          entity.Limit(),
		ValidUntil:     utcPtr(entity.ValidUntil()),
		ResetAt:        utcPtr(entity.ResetAt()),
		CreatedAt:      entity.CreatedAt(),
		UpdatedAt:      entity.UpdatedAt(),
	}
}

func (m *EntitlementMapperImpl) UsagesToEntities(list []*models.SubscriptionUsageModel) ([]*entitlement.Usage, error) {
	return mapSlice(list, m.UsageToEntity, func(model *models.SubscriptionUsageModel) uint { return model.ID })
}

func (m *EntitlementMapperImpl) LimitToEntity(model *models.SubscriptionLimitModel) (*entitlement.Limit, error) {
	if model == nil {
		return nil, nil
	}
	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}
	entity, err := entitlement.ReconstructLimit(entitlement.LimitState{
		ID:               model.ID,
		UUID:             model.UUID,
		SubscriptionID:   model.SubscriptionID,
		FeatureID:        model.FeatureID,
		CustomLimit:      model.CustomLimit,
		LimitType:        entitlement.LimitType(model.LimitType),
		WarningThreshold: model.WarningThreshold,
		Metadata:         metadata,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct subscription limit: %w", err)
	}
	return entity, nil
}

func (m *EntitlementMapperImpl) LimitToModel(entity *entitlement.Limit) (*models.SubscriptionLimitModel, error) {
	if entity == nil {
		return nil, nil
	}
	metadata, err := MarshalMetadata(entity.Metadata())
	if err != nil {
		return nil, err
	}
	return &models.SubscriptionLimitModel{
		ID:               entity.ID(),
		UUID:             entity.UUID(),
		SubscriptionID:   entity.SubscriptionID(),
		FeatureID:        entity.FeatureID(),
		CustomLimit:      entity.CustomLimit(),
		LimitType:        entity.LimitType().String(),
		WarningThreshold: entity.WarningThreshold(),
		Metadata:         metadata,
		CreatedAt:        entity.CreatedAt(),
		UpdatedAt:        entity.UpdatedAt(),
	}, nil
}

func (m *EntitlementMapperImpl) LimitsToEntities(list []*models.SubscriptionLimitModel) ([]*entitlement.Limit, error) {
	return mapSlice(list, m.LimitToEntity, func(model *models.SubscriptionLimitModel) uint { return model.ID })
}

func (m *EntitlementMapperImpl) ActivationToEntity(model *models.ModuleActivationModel) (*entitlement.ModuleActivation, error) {
	if model == nil {
		return nil, nil
	}
	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}
	entity, err := entitlement.ReconstructModuleActivation(entitlement.ModuleActivationState{
		ID:             model.ID,
		UUID:           model.UUID,
		SubscriptionID: model.SubscriptionID,
		ModuleID:       model.ModuleID,
		IsActive:       model.IsActive,
		ActivatedAt:    model.ActivatedAt,
		DeactivatedAt:  model.DeactivatedAt,
		Metadata:       metadata,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct module activation: %w", err)
	}
	return entity, nil
}

func (m *EntitlementMapperImpl) ActivationToModel(entity *entitlement.ModuleActivation) (*models.ModuleActivationModel, error) {
	if entity == nil {
		return nil, nil
	}
	metadata, err := MarshalMetadata(entity.Metadata())
	if err != nil {
		return nil, err
	}
	return &models.ModuleActivationModel{
		ID:             entity.ID(),
		UUID:           entity.UUID(),
		SubscriptionID: entity.SubscriptionID(),
		ModuleID:       entity.ModuleID(),
		IsActive:       entity.IsActive(),
		ActivatedAt:    utcPtr(entity.ActivatedAt()),
		DeactivatedAt:  utcPtr(entity.DeactivatedAt()),
		Metadata:       metadata,
		CreatedAt:      entity.CreatedAt(),
		UpdatedAt:      entity.UpdatedAt(),
	}, nil
}

func (m *EntitlementMapperImpl) ActivationsToEntities(list []*models.ModuleActivationModel) ([]*entitlement.ModuleActivation, error) {
	return mapSlice(list, m.ActivationToEntity, func(model *models.ModuleActivationModel) uint { return model.ID })
}

// utcPtr returns a UTC copy of t.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
