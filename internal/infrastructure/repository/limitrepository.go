package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

type LimitRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.EntitlementMapper
	logger logger.Interface
}

func NewLimitRepository(db *gorm.DB, logger logger.Interface) entitlement.LimitRepository {
	return &LimitRepositoryImpl{
		db:     db,
		mapper: mappers.NewEntitlementMapper(),
		logger: logger,
	}
}

func (r *LimitRepositoryImpl) Get(ctx context.Context, subscriptionID, featureID uint) (*entitlement.Limit, error) {
	var model models.SubscriptionLimitModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ? AND feature_id = ?", subscriptionID, featureID).
		First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription limit: %w", err)
	}
	return r.mapper.LimitToEntity(&model)
}

// Upsert overwrites the existing override for the pair, restoring it if it
// was removed earlier.
func (r *LimitRepositoryImpl) Upsert(ctx context.Context, limit *entitlement.Limit) error {
	model, err := r.mapper.LimitToModel(limit)
	if err != nil {
		return fmt.Errorf("failed to map subscription limit: %w", err)
	}
	tx := db.GetTxFromContext(ctx, r.db)

	var existing models.SubscriptionLimitModel
	err = tx.Unscoped().
		Where("subscription_id = ? AND feature_id = ?", model.SubscriptionID, model.FeatureID).
		First(&existing).Error
	switch {
	case stderrors.Is(err, gorm.ErrRecordNotFound):
		model.ID = 0
		if err := tx.Create(model).Error; err != nil {
			r.logger.Errorw("failed to create subscription limit", "subscription_id", model.SubscriptionID, "feature_id", model.FeatureID, "error", err)
			return fmt.Errorf("failed to create subscription limit: %w", err)
		}
		if limit.ID() == 0 {
			return limit.SetID(model.ID)
		}
		return nil
	case err != nil:
		return fmt.Errorf("failed to get subscription limit: %w", err)
	}

	if err := tx.Unscoped().Model(&existing).Updates(map[string]interface{}{
		"custom_limit":      model.CustomLimit,
		"limit_type":        model.LimitType,
		"warning_threshold": model.WarningThreshold,
		"metadata":          model.Metadata,
		"deleted_at":        nil,
		"updated_at":        time.Now().UTC(),
	}).Error; err != nil {
		return fmt.Errorf("failed to update subscription limit: %w", err)
	}
	if limit.ID() == 0 {
		return limit.SetID(existing.ID)
	}
	return nil
}

func (r *LimitRepositoryImpl) Delete(ctx context.Context, subscriptionID, featureID uint) error {
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ? AND feature_id = ?", subscriptionID, featureID).
		Delete(&models.SubscriptionLimitModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription limit: %w", err)
	}
	return nil
}

func (r *LimitRepositoryImpl) ListBySubscription(ctx context.Context, subscriptionID uint) ([]*entitlement.Limit, error) {
	var list []*models.SubscriptionLimitModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ?", subscriptionID).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscription limits: %w", err)
	}
	return r.mapper.LimitsToEntities(list)
}
