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

type ModuleRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.CatalogMapper
	logger logger.Interface
}

func NewModuleRepository(db *gorm.DB, logger logger.Interface) catalog.ModuleRepository {
	return &ModuleRepositoryImpl{
		db:     db,
		mapper: mappers.NewCatalogMapper(),
		logger: logger,
	}
}

func (r *ModuleRepositoryImpl) Create(ctx context.Context, module *catalog.Module) error {
	model, err := r.mapper.ModuleToModel(module)
	if err != nil {
		return fmt.Errorf("failed to map module entity: %w", err)
	}

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return fmt.Errorf("%w: %s", catalog.ErrSlugExists, module.Slug())
		}
		r.logger.Errorw("failed to create module in database", "slug", module.Slug(), "error", err)
		return fmt.Errorf("failed to create module: %w", err)
	}

	if err := module.SetID(model.ID); err != nil {
		return fmt.Errorf("failed to set module ID: %w", err)
	}

	r.logger.Infow("module created successfully", "id", model.ID, "slug", model.Slug)
	return nil
}

func (r *ModuleRepositoryImpl) Update(ctx context.Context, module *catalog.Module) error {
	model, err := r.mapper.ModuleToModel(module)
	if err != nil {
		return fmt.Errorf("failed to map module entity: %w", err)
	}

	result := db.GetTxFromContext(ctx, r.db).Model(&models.ModuleModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]interface{}{
			"parent_id":   model.ParentID,
			"name":        model.Name,
			"slug":        model.Slug,
			"description": model.Description,
			"is_active":   model.IsActive,
			"sort_order":  model.SortOrder,
			"metadata":    model.Metadata,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		r.logger.Errorw("failed to update module", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update module: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalog.ErrModuleNotFound
	}
	return nil
}

func (r *ModuleRepositoryImpl) GetByID(ctx context.Context, id uint) (*catalog.Module, error) {
	var model models.ModuleModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get module by ID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return r.mapper.ModuleToEntity(&model)
}

func (r *ModuleRepositoryImpl) GetBySlug(ctx context.Context, slug string) (*catalog.Module, error) {
	var model models.ModuleModel
	if err := db.GetTxFromContext(ctx, r.db).Where("slug = ?", slug).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get module by slug", "slug", slug, "error", err)
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return r.mapper.ModuleToEntity(&model)
}

func (r *ModuleRepositoryImpl) GetByIDs(ctx context.Context, ids []uint) ([]*catalog.Module, error) {
	if len(ids) == 0 {
		return []*catalog.Module{}, nil
	}
	var list []*models.ModuleModel
	if err := db.GetTxFromContext(ctx, r.db).Where("id IN ?", ids).Order("sort_order ASC, id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to get modules: %w", err)
	}
	return r.mapper.ModulesToEntities(list)
}

func (r *ModuleRepositoryImpl) List(ctx context.Context) ([]*catalog.Module, error) {
	var list []*models.ModuleModel
	if err := db.GetTxFromContext(ctx, r.db).Order("sort_order ASC, id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	return r.mapper.ModulesToEntities(list)
}

// Delete removes the module subtree. Features that belonged to a removed
// module are detached.
func (r *ModuleRepositoryImpl) Delete(ctx context.Context, id uint) error {
	tx := db.GetTxFromContext(ctx, r.db)

	subtree, err := r.collectSubtree(tx, id)
	if err != nil {
		return err
	}

	if err := tx.Model(&models.FeatureModel{}).
		Where("module_id IN ?", subtree).
		Update("module_id", nil).Error; err != nil {
		return fmt.Errorf("failed to detach module features: %w", err)
	}
	if err := tx.Where("module_id IN ?", subtree).Delete(&models.PlanModuleModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete plan links: %w", err)
	}
	result := tx.Where("id IN ?", subtree).Delete(&models.ModuleModel{})
	if result.Error != nil {
		r.logger.Errorw("failed to delete module", "id", id, "error", result.Error)
		return fmt.Errorf("failed to delete module: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return catalog.ErrModuleNotFound
	}

	r.logger.Infow("module deleted successfully", "id", id, "removed", len(subtree))
	return nil
}

func (r *ModuleRepositoryImpl) collectSubtree(tx *gorm.DB, rootID uint) ([]uint, error) {
	ids := []uint{rootID}
	frontier := []uint{rootID}
	for len(frontier) > 0 {
		var children []uint
		if err := tx.Model(&models.ModuleModel{}).
			Where("parent_id IN ?", frontier).
			Pluck("id", &children).Error; err != nil {
			return nil, fmt.Errorf("failed to load child modules: %w", err)
		}
		ids = append(ids, children...)
		frontier = children
	}
	return ids, nil
}
