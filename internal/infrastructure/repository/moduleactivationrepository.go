package repository

import (
	"context"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

type ModuleActivationRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.EntitlementMapper
	logger logger.Interface
}

func NewModuleActivationRepository(db *gorm.DB, logger logger.Interface) entitlement.ModuleActivationRepository {
	return &ModuleActivationRepositoryImpl{
		db:     db,
		mapper: mappers.NewEntitlementMapper(),
		logger: logger,
	}
}

func (r *ModuleActivationRepositoryImpl) Get(ctx context.Context, subscriptionID, moduleID uint) (*entitlement.ModuleActivation, error) {
	var model models.ModuleActivationModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ? AND module_id = ?", subscriptionID, moduleID).
		First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get module activation: %w", err)
	}
	return r.mapper.ActivationToEntity(&model)
}

func (r *ModuleActivationRepositoryImpl) Upsert(ctx context.Context, activation *entitlement.ModuleActivation) error {
	model, err := r.mapper.ActivationToModel(activation)
	if err != nil {
		return fmt.Errorf("failed to map module activation: %w", err)
	}
	tx := db.GetTxFromContext(ctx, r.db)

	var existing models.ModuleActivationModel
	err = tx.Unscoped().
		Where("subscription_id = ? AND module_id = ?", model.SubscriptionID, model.ModuleID).
		First(&existing).Error
	switch {
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		model.ID = 0
		if err := tx.Create(model).Error; err != nil {
			r.logger.Errorw("failed to create module activation", "subscription_id", model.SubscriptionID, "module_id", model.ModuleID, "error", err)
			return fmt.Errorf("failed to create module activation: %w", err)
		}
		if activation.ID() == 0 {
			return activation.SetID(model.ID)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to get module activation: %w", err)
	}

	if err := tx.Unscoped().Model(&existing).Updates(map[string]interface{}{
		"is_active":      model.IsActive,
		"activated_at":   model.ActivatedAt,
		"deactivated_at": model.DeactivatedAt,
		"metadata":       model.Metadata,
		"deleted_at":     nil,
		"updated_at":     model.UpdatedAt,
	}).Error; err != nil {
		return fmt.Errorf("failed to update module activation: %w", err)
	}
	if activation.ID() == 0 {
		return activation.SetID(existing.ID)
	}
	return nil
}

func (r *ModuleActivationRepositoryImpl) ListActive(ctx context.Context, subscriptionID uint) ([]*entitlement.ModuleActivation, error) {
	var list []*models.ModuleActivationModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ? AND is_active = ?", subscriptionID, true).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list active modules: %w", err)
	}
	return r.mapper.ActivationsToEntities(list)
}

func (r *ModuleActivationRepositoryImpl) ListBySubscription(ctx context.Context, subscriptionID uint) ([]*entitlement.ModuleActivation, error) {
	var list []*models.ModuleActivationModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ?", subscriptionID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list module activations: %w", err)
	}
	return r.mapper.ActivationsToEntities(list)
}
