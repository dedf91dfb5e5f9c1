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
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

type UsageRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.EntitlementMapper
	logger logger.Interface
}

func NewUsageRepository(db *gorm.DB, logger logger.Interface) entitlement.UsageRepository {
	return &UsageRepositoryImpl{
		db:     db,
		mapper: mappers.NewEntitlementMapper(),
		logger: logger,
	}
}

func (r *UsageRepositoryImpl) Create(ctx context.Context, usage *entitlement.Usage) error {
	model := r.mapper.UsageToModel(usage)
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		if errors.IsDuplicateError(err) {
			return fmt.Errorf("%w: subscription=%d feature=%d window=%s",
				entitlement.ErrWindowExists, model.SubscriptionID, model.FeatureID, model.WindowKey)
		}
		r.logger.Errorw("failed to create usage window", "subscription_id", model.SubscriptionID, "feature_id", model.FeatureID, "error", err)
		return fmt.Errorf("failed to create usage window: %w", err)
	}
	return usage.SetID(model.ID)
}

func (r *UsageRepositoryImpl) GetByID(ctx context.Context, id uint) (*entitlement.Usage, error) {
	var model models.SubscriptionUsageModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get usage window: %w", err)
	}
	return r.mapper.UsageToEntity(&model)
}

func (r *UsageRepositoryImpl) GetOpenWindow(ctx context.Context, subscriptionID, featureID uint, now time.Time) (*entitlement.Usage, error) {
	var model models.SubscriptionUsageModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ? AND feature_id = ?", subscriptionID, featureID).
		Scopes(openAt(now)).
		Order("id DESC").
		First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open usage window: %w", err)
	}
	return r.mapper.UsageToEntity(&model)
}

// IncrementWithinLimit is a single conditional UPDATE, so the limit check and
// the increment cannot interleave with another writer.
func (r *UsageRepositoryImpl) IncrementWithinLimit(ctx context.Context, usageID uint, amount int64) (bool, error) {
	result := db.GetTxFromContext(ctx, r.db).Model(&models.SubscriptionUsageModel{}).
		Where("id = ? AND used + ? <= usage_limit", usageID, amount).
		Updates(map[string]interface{}{
			"used":       gorm.Expr("used + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to increment usage: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *UsageRepositoryImpl) Increment(ctx context.Context, usageID uint, amount int64) error {
	result := db.GetTxFromContext(ctx, r.db).Model(&models.SubscriptionUsageModel{}).
		Where("id = ?", usageID).
		Updates(map[string]interface{}{
			"used":       gorm.Expr("used + ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("usage window %d not found", usageID)
	}
	return nil
}

func (r *UsageRepositoryImpl) ResetOpen(ctx context.Context, subscriptionID uint, featureID *uint, now time.Time) (int64, error) {
	query := db.GetTxFromContext(ctx, r.db).Model(&models.SubscriptionUsageModel{}).
		Where("subscription_id = ?", subscriptionID).
		Scopes(openAt(now))
	if featureID != nil {
		query = query.Where("feature_id = ?", *featureID)
	}

	result := query.Updates(map[string]interface{}{
		"used":       0,
		"reset_at":   now.UTC(),
		"updated_at": now.UTC(),
	})
	if result.Error != nil {
		r.logger.Errorw("failed to reset usage", "subscription_id", subscriptionID, "error", result.Error)
		return 0, fmt.Errorf("failed to reset usage: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *UsageRepositoryImpl) SetOpenLimit(ctx context.Context, subscriptionID, featureID uint, limit int64, now time.Time) (int64, error) {
	result := db.GetTxFromContext(ctx, r.db).Model(&models.SubscriptionUsageModel{}).
		Where("subscription_id = ? AND feature_id = ?", subscriptionID, featureID).
		Scopes(openAt(now)).
		Updates(map[string]interface{}{
			"usage_limit": limit,
			"updated_at":  now.UTC(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update usage limit: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CloseOpen ends the open windows at now. Closed windows get a key derived
// from their ID so they never collide with a window opened afterwards.
func (r *UsageRepositoryImpl) CloseOpen(ctx context.Context, subscriptionID uint, now time.Time) (int64, error) {
	tx := db.GetTxFromContext(ctx, r.db)

	var ids []uint
	if err := tx.Model(&models.SubscriptionUsageModel{}).
		Where("subscription_id = ?", subscriptionID).
		Scopes(openAt(now)).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("failed to load open usage windows: %w", err)
	}

	for _, usageID := range ids {
		if err := tx.Model(&models.SubscriptionUsageModel{}).
			Where("id = ?", usageID).
			Updates(map[string]interface{}{
				"valid_until": now.UTC(),
				"window_key":  fmt.Sprintf("closed:%d", usageID),
				"updated_at":  now.UTC(),
			}).Error; err != nil {
			return 0, fmt.Errorf("failed to close usage window %d: %w", usageID, err)
		}
	}
	return int64(len(ids)), nil
}

func (r *UsageRepositoryImpl) ListHistory(ctx context.Context, subscriptionID, featureID uint) ([]*entitlement.Usage, error) {
	var list []*models.SubscriptionUsageModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ? AND feature_id = ?", subscriptionID, featureID).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage history: %w", err)
	}
	return r.mapper.UsagesToEntities(list)
}

func openAt(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("(valid_until IS NULL OR valid_until > ?)", now.UTC())
	}
}
