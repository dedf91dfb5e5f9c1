package mappers

import (
	"fmt"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	vo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
)

// CatalogMapper converts plans, features, modules and their plan links.
type CatalogMapper interface {
	PlanToEntity(model *models.PlanModel) (*catalog.Plan, error)
	PlanToModel(entity *catalog.Plan) (*models.PlanModel, error)
	PlansToEntities(models []*models.PlanModel) ([]*catalog.Plan, error)

	FeatureToEntity(model *models.FeatureModel) (*catalog.Feature, error)
	FeatureToModel(entity *catalog.Feature) (*models.FeatureModel, error)
	FeaturesToEntities(models []*models.FeatureModel) ([]*catalog.Feature, error)

	ModuleToEntity(model *models.ModuleModel) (*catalog.Module, error)
	ModuleToModel(entity *catalog.Module) (*models.ModuleModel, error)
	ModulesToEntities(models []*models.ModuleModel) ([]*catalog.Module, error)

	PlanFeatureToEntity(model *models.PlanFeatureModel) (*catalog.PlanFeature, error)
	PlanModuleToEntity(model *models.PlanModuleModel) (*catalog.PlanModule, error)
}

type CatalogMapperImpl struct{}

func NewCatalogMapper() CatalogMapper {
	return &CatalogMapperImpl{}
}

func (m *CatalogMapperImpl) PlanToEntity(model *models.PlanModel) (*catalog.Plan, error) {
	if model == nil {
		return nil, nil
	}

	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}

	interval, err := vo.ParseBillingInterval(model.Interval)
	if err != nil {
		return nil, err
	}

	entity, err := catalog.ReconstructPlan(
		model.ID,
		model.UUID,
		catalog.PlanParams{
			Name:          model.Name,
			Slug:          model.Slug,
			Description:   model.Description,
			Price:         model.Price,
			Currency:      model.Currency,
			Interval:      interval,
			IntervalCount: model.IntervalCount,
			TrialDays:     model.TrialDays,
			GraceDays:     model.GraceDays,
			Tier:          model.Tier,
			Metadata:      metadata,
		},
		model.IsActive,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct plan entity: %w", err)
	}
	return entity, nil
}

func (m *CatalogMapperImpl) PlanToModel(entity *catalog.Plan) (*models.PlanModel, error) {
	if entity == nil {
		return nil, nil
	}

	metadata, err := MarshalMetadata(entity.Metadata())
	if err != nil {
		return nil, err
	}

	return &models.PlanModel{
		ID:            entity.ID(),
		UUID:          entity.UUID(),
		Name:          entity.Name(),
		Slug:          entity.Slug(),
		Description:   entity.Description(),
		Price:         entity.Price(),
		Currency:      entity.Currency(),
		Interval:      entity.Interval().String(),
		IntervalCount: entity.IntervalCount(),
		TrialDays:     entity.TrialDays(),
		GraceDays:     entity.GraceDays(),
		IsActive:      entity.IsActive(),
		Tier:          entity.Tier(),
		Metadata:      metadata,
		CreatedAt:     entity.CreatedAt(),
		UpdatedAt:     entity.UpdatedAt(),
	}, nil
}

func (m *CatalogMapperImpl) PlansToEntities(list []*models.PlanModel) ([]*catalog.Plan, error) {
	return mapSlice(list, m.PlanToEntity, func(model *models.PlanModel) uint { return model.ID })
}

func (m *CatalogMapperImpl) FeatureToEntity(model *models.FeatureModel) (*catalog.Feature, error) {
	if model == nil {
		return nil, nil
	}

	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}

	featureType, err := vo.ParseFeatureType(model.Type)
	if err != nil {
		return nil, err
	}

	resetPeriod, err := vo.ParseResetPeriod(model.ResetPeriod)
	if err != nil {
		return nil, err
	}

	entity, err := catalog.ReconstructFeature(
		model.ID,
		model.UUID,
		catalog.FeatureParams{
			ModuleID:     model.ModuleID,
			Name:         model.Name,
			Slug:         model.Slug,
			Description:  model.Description,
			Type:         featureType,
			DefaultValue: model.DefaultValue,
			ResetPeriod:  resetPeriod,
			Metadata:     metadata,
		},
		model.IsActive,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct feature entity: %w", err)
	}
	return entity, nil
}

func (m *CatalogMapperImpl) FeatureToModel(entity *catalog.Feature) (*models.FeatureModel, error) {
	if entity == nil {
		return nil, nil
	}

	metadata, err := MarshalMetadata(entity.Metadata())
	if err != nil {
		return nil, err
	}

	return &models.FeatureModel{
		ID:           entity.ID(),
		UUID:         entity.UUID(),
		ModuleID:     entity.ModuleID(),
		Name:         entity.Name(),
		Slug:         entity.Slug(),
		Description:  entity.Description(),
		Type:         entity.Type().String(),
		DefaultValue: entity.DefaultValue(),
		ResetPeriod:  entity.ResetPeriod().String(),
		IsActive:     entity.IsActive(),
		Metadata:     metadata,
		CreatedAt:    entity.CreatedAt(),
		UpdatedAt:    entity.UpdatedAt(),
	}, nil
}

func (m *CatalogMapperImpl) FeaturesToEntities(list []*models.FeatureModel) ([]*catalog.Feature, error) {
	return mapSlice(list, m.FeatureToEntity, func(model *models.FeatureModel) uint { return model.ID })
}

func (m *CatalogMapperImpl) ModuleToEntity(model *models.ModuleModel) (*catalog.Module, error) {
	if model == nil {
		return nil, nil
	}

	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}

	entity, err := catalog.ReconstructModule(
		model.ID,
		model.UUID,
		catalog.ModuleParams{
			ParentID:    model.ParentID,
			Name:        model.Name,
			Slug:        model.Slug,
			Description: model.Description,
			SortOrder:   model.SortOrder,
			Metadata:    metadata,
		},
		model.IsActive,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct module entity: %w", err)
	}
	return entity, nil
}

func (m *CatalogMapperImpl) ModuleToModel(entity *catalog.Module) (*models.ModuleModel, error) {
	if entity == nil {
		return nil, nil
	}

	metadata, err := MarshalMetadata(entity.Metadata())
	if err != nil {
		return nil, err
	}

	return &models.ModuleModel{
		ID:          entity.ID(),
		UUID:        entity.UUID(),
		ParentID:    entity.ParentID(),
		Name:        entity.Name(),
		Slug:        entity.Slug(),
		Description: entity.Description(),
		IsActive:    entity.IsActive(),
		SortOrder:   entity.SortOrder(),
		Metadata:    metadata,
		CreatedAt:   entity.CreatedAt(),
		UpdatedAt:   entity.UpdatedAt(),
	}, nil
}

func (m *CatalogMapperImpl) ModulesToEntities(list []*models.ModuleModel) ([]*catalog.Module, error) {
	return mapSlice(list, m.ModuleToEntity, func(model *models.ModuleModel) uint { return model.ID })
}

func (m *CatalogMapperImpl) PlanFeatureToEntity(model *models.PlanFeatureModel) (*catalog.PlanFeature, error) {
	if model == nil {
		return nil, nil
	}
	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}
	return &catalog.PlanFeature{
		ID:        model.ID,
		UUID:      model.UUID,
		PlanID:    model.PlanID,
		FeatureID: model.FeatureID,
		Value:     model.Value,
		Metadata:  metadata,
	}, nil
}

func (m *CatalogMapperImpl) PlanModuleToEntity(model *models.PlanModuleModel) (*catalog.PlanModule, error) {
	if model == nil {
		return nil, nil
	}
	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}
	return &catalog.PlanModule{
		ID:        model.ID,
		UUID:      model.UUID,
		PlanID:    model.PlanID,
		ModuleID:  model.ModuleID,
		IsEnabled: model.IsEnabled,
		Metadata:  metadata,
	}, nil
}
