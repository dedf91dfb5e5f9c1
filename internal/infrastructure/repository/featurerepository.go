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
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

type FeatureRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.CatalogMapper
	logger logger.Interface
}

func NewFeatureRepository(db *gorm.DB, logger logger.Interface) catalog.FeatureRepository {
	return &FeatureRepositoryImpl{
		db:     db,
		mapper: mappers.NewCatalogMapper(),
		logger: logger,
	}
}

func (r *FeatureRepositoryImpl) Create(ctx context.Context, feature *catalog.Feature) error {
	model, err := r.mapper.FeatureToModel(feature)
	if err != nil {
		return fmt.Errorf("failed to map feature entity: %w", err)
	}

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return fmt.Errorf("%w: %s", catalog.ErrSlugExists, feature.Slug())
		}
		r.logger.Errorw("failed to create feature in database", "slug", feature.Slug(), "error", err)
		return fmt.Errorf("failed to create feature: %w", err)
	}

	if err := feature.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set feature ID: %w", err)
	}

	r.logger.Infow("feature created successfully", "id", model.ID, "slug", model.Slug)
	return nil
}

func (r *FeatureRepositoryImpl) Update(ctx context.Context, feature *catalog.Feature) error {
	model, err := r.mapper.FeatureToModel(feature)
	if err != nil {
		return fmt.Errorf("failed to map feature entity: %w", err)
	}

	result := db.GetTxFromContext(ctx, r.db).Model(&models.FeatureModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"module_id":     model.ModuleID,
			"name":          model.Name,
			"slug":          model.Slug,
			"description":   model.Description,
			"feature_type":  model.Type,
			"default_value": model.DefaultValue,
			"reset_period":  model.ResetPeriod,
			"is_active":     model.IsActive,
			"metadata":      model.Metadata,
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		if errors.IsDuplicateError(result.Error) {
			return fmt.Errorf("%w: %s", catalog.ErrSlugExists, feature.Slug())
		}
		r.logger.Errorw("failed to update feature", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update feature: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalog.ErrFeatureNotFound
	}
	return nil
}

func (r *FeatureRepositoryImpl) GetByID(ctx context.Context, id uint) (*catalog.Feature, error) {
	var model models.FeatureModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get feature by ID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}
	return r.mapper.FeatureToEntity(&model)
}

func (r *FeatureRepositoryImpl) GetBySlug(ctx context.Context, slug string) (*catalog.Feature, error) {
	var model models.FeatureModel
	if err := db.GetTxFromContext(ctx, r.db).Where("slug = ?", slug).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get feature by slug", "slug", slug, "error", err)
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}
	return r.mapper.FeatureToEntity(&model)
}

func (r *FeatureRepositoryImpl) GetByIDs(ctx context.Context, ids []uint) ([]*catalog.Feature, error) {
	if len(ids) == 0 {
		return []*catalog.Feature{}, nil
	}
	var list []*models.FeatureModel
	if err := db.GetTxFromContext(ctx, r.db).Where("id IN ?", ids).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to get features: %w", err)
	}
	return r.mapper.FeaturesToEntities(list)
}

func (r *FeatureRepositoryImpl) ListByModule(ctx context.Context, moduleID uint) ([]*catalog.Feature, error) {
	var list []*models.FeatureModel
	if err := db.GetTxFromContext(ctx, r.db).Where("module_id = ?", moduleID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list module features: %w", err)
	}
	return r.mapper.FeaturesToEntities(list)
}

func (r *FeatureRepositoryImpl) List(ctx context.Context) ([]*catalog.Feature, error) {
	var list []*models.FeatureModel
	if err := db.GetTxFromContext(ctx, r.db).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	return r.mapper.FeaturesToEntities(list)
}

// Delete soft-deletes the feature and its plan links.
func (r *FeatureRepositoryImpl) Delete(ctx context.Context, id uint) error {
	tx := db.GetTxFromContext(ctx, r.db)
	if err := tx.Where("feature_id = ?", id).Delete(&models.PlanFeatureModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete plan links: %w", err)
	}
	result := tx.Delete(&models.FeatureModel{}, id)
	if result.Error != nil {
		r.logger.Errorw("failed to delete feature", "id", id, "error", result.Error)
		return fmt.Errorf("failed to delete feature: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalog.ErrFeatureNotFound
	}
	return nil
}
