package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/id"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

type PlanRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.CatalogMapper
	logger logger.Interface
}

func NewPlanRepository(db *gorm.DB, logger logger.Interface) catalog.PlanRepository {
	return &PlanRepositoryImpl{
		db:     db,
		mapper: mappers.NewCatalogMapper(),
		logger: logger,
	}
}

func (r *PlanRepositoryImpl) Create(ctx context.Context, plan *catalog.Plan) error {
	model, err := r.mapper.PlanToModel(plan)
	if err != nil {
		r.logger.Errorw("failed to map plan entity to model", "error", err)
		return fmt.Errorf("failed to map plan entity: %w", err)
	}

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return fmt.Errorf("%w: %s", catalog.ErrSlugExists, plan.Slug())
		}
		r.logger.Errorw("failed to create plan in database", "slug", plan.Slug(), "error", err)
		return fmt.Errorf("failed to create plan: %w", err)
	}

	if err := plan.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set plan ID: %w", err)
	}

	r.logger.Infow("plan created successfully", "id", model.ID, "slug", model.Slug)
	return nil
}

func (r *PlanRepositoryImpl) Update(ctx context.Context, plan *catalog.Plan) error {
	model, err := r.mapper.PlanToModel(plan)
	if err != nil {
		return fmt.Errorf("failed to map plan entity: %w", err)
	}

	result := db.GetTxFromContext(ctx, r.db).Model(&models.PlanModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"name":             model.Name,
			"description":      model.Description,
			"price":            model.Price,
			"currency":         model.Currency,
			"billing_interval": model.Interval,
			"interval_count":   model.IntervalCount,
			"trial_days":       model.TrialDays,
			"grace_days":       model.GraceDays,
			"is_active":        model.IsActive,
			"tier":             model.Tier,
			"metadata":         model.Metadata,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update plan", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalog.ErrPlanNotFound
	}
	return nil
}

func (r *PlanRepositoryImpl) GetByID(ctx context.Context, id uint) (*catalog.Plan, error) {
	var model models.PlanModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get plan by ID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return r.mapper.PlanToEntity(&model)
}

func (r *PlanRepositoryImpl) GetBySlug(ctx context.Context, slug string) (*catalog.Plan, error) {
	var model models.PlanModel
	if err := db.GetTxFromContext(ctx, r.db).Where("slug = ?", slug).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get plan by slug", "slug", slug, "error", err)
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return r.mapper.PlanToEntity(&model)
}

func (r *PlanRepositoryImpl) List(ctx context.Context, activeOnly bool) ([]*catalog.Plan, error) {
	var list []*models.PlanModel
	query := db.GetTxFromContext(ctx, r.db).Order("price ASC, id ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&list).Error; err != nil {
		r.logger.Errorw("failed to list plans", "error", err)
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return r.mapper.PlansToEntities(list)
}

// Delete soft-deletes the plan together with its feature and module links.
func (r *PlanRepositoryImpl) Delete(ctx context.Context, id uint) error {
	tx := db.GetTxFromContext(ctx, r.db)

	var count int64
	if err := tx.Model(&models.SubscriptionModel{}).Where("plan_id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count plan subscriptions: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: plan %d has %d subscriptions", catalog.ErrPlanInUse, id, count)
	}

	if err := tx.Where("plan_id = ?", id).Delete(&models.PlanFeatureModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete plan features: %w", err)
	}
	if err := tx.Where("plan_id = ?", id).Delete(&models.PlanModuleModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete plan modules: %w", err)
	}

	result := tx.Delete(&models.PlanModel{}, id)
	if result.Error != nil {
		r.logger.Errorw("failed to delete plan", "id", id, "error", result.Error)
		return fmt.Errorf("failed to delete plan: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalog.ErrPlanNotFound
	}

	r.logger.Infow("plan deleted successfully", "id", id)
	return nil
}

// UpsertFeature creates the link or overwrites the existing one, restoring it
// if it was soft-deleted.
func (r *PlanRepositoryImpl) UpsertFeature(ctx context.Context, link *catalog.PlanFeature) error {
	tx := db.GetTxFromContext(ctx, r.db)
	metadata, err := mappers.MarshalMetadata(link.Metadata)
	if err != nil {
		return err
	}

	var existing models.PlanFeatureModel
	err = tx.Unscoped().Where("plan_id = ? AND feature_id = ?", link.PlanID, link.FeatureID).First(&existing).Error
	switch {
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		model := &models.PlanFeatureModel{
			UUID:      id.New(),
			PlanID:    link.PlanID,
			FeatureID: link.FeatureID,
			Value:     link.Value,
			Metadata:  metadata,
		}
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create plan feature: %w", err)
		}
		link.ID = model.ID
		link.UUID = model.UUID
		return nil
	case err != nil:
		return fmt.Errorf("failed to get plan feature: %w", err)
	}

	if err := tx.Unscoped().Model(&existing).Updates(map[string]interface{}{
		"value":      link.Value,
		"metadata":   metadata,
		"deleted_at": nil,
		"updated_at": time.Now().UTC(),
	}).Error; err != nil {
		return fmt.Errorf("failed to update plan feature: %w", err)
	}
	link.ID = existing.ID
	link.UUID = existing.UUID
	return nil
}

func (r *PlanRepositoryImpl) RemoveFeature(ctx context.Context, planID, featureID uint) error {
	if err := db.GetTxFromContext(ctx, r.db).
		Where("plan_id = ? AND feature_id = ?", planID, featureID).
		Delete(&models.PlanFeatureModel{}).Error; err != nil {
		return fmt.Errorf("failed to remove plan feature: %w", err)
	}
	return nil
}

func (r *PlanRepositoryImpl) GetFeature(ctx context.Context, planID, featureID uint) (*catalog.PlanFeature, error) {
	var model models.PlanFeatureModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("plan_id = ? AND feature_id = ?", planID, featureID).
		First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get plan feature: %w", err)
	}
	return r.mapper.PlanFeatureToEntity(&model)
}

func (r *PlanRepositoryImpl) ListFeatures(ctx context.Context, planID uint) ([]*catalog.PlanFeature, error) {
	var list []*models.PlanFeatureModel
	if err := db.GetTxFromContext(ctx, r.db).Where("plan_id = ?", planID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list plan features: %w", err)
	}
	result := make([]*catalog.PlanFeature, 0, len(list))
	for _, model := range list {
		link, err := r.mapper.PlanFeatureToEntity(model)
		if err != nil {
			return nil, err
		}
		result = append(result, link)
	}
	return result, nil
}

func (r *PlanRepositoryImpl) UpsertModule(ctx context.Context, link *catalog.PlanModule) error {
	tx := db.GetTxFromContext(ctx, r.db)
	metadata, err := mappers.MarshalMetadata(link.Metadata)
	if err != nil {
		return err
	}

	var existing models.PlanModuleModel
	err = tx.Unscoped().Where("plan_id = ? AND module_id = ?", link.PlanID, link.ModuleID).First(&existing).Error
	switch {
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		model := &models.PlanModuleModel{
			UUID:      id.New(),
			PlanID:    link.PlanID,
			ModuleID:  link.ModuleID,
			IsEnabled: link.IsEnabled,
			Metadata:  metadata,
		}
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to create plan module: %w", err)
		}
		link.ID = model.ID
		link.UUID = model.UUID
		return nil
	case err != nil:
		return fmt.Errorf("failed to get plan module: %w", err)
	}

	if err := tx.Unscoped().Model(&existing).Updates(map[string]interface{}{
		"is_enabled": link.IsEnabled,
		"metadata":   metadata,
		"deleted_at": nil,
		"updated_at": time.Now().UTC(),
	}).Error; err != nil {
		return fmt.Errorf("failed to update plan module: %w", err)
	}
	link.ID = existing.ID
	link.UUID = existing.UUID
	return nil
}

func (r *PlanRepositoryImpl) GetModule(ctx context.Context, planID, moduleID uint) (*catalog.PlanModule, error) {
	var model models.PlanModuleModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("plan_id = ? AND module_id = ?", planID, moduleID).
		First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get plan module: %w", err)
	}
	return r.mapper.PlanModuleToEntity(&model)
}

func (r *PlanRepositoryImpl) ListModules(ctx context.Context, planID uint) ([]*catalog.PlanModule, error) {
	var list []*models.PlanModuleModel
	if err := db.GetTxFromContext(ctx, r.db).Where("plan_id = ?", planID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list plan modules: %w", err)
	}
	result := make([]*catalog.PlanModule, 0, len(list))
	for _, model := range list {
		link, err := r.mapper.PlanModuleToEntity(model)
		if err != nil {
			return nil, err
		}
		result = append(result, link)
	}
	return result, nil
}
