package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

type SubscriptionChangeRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.SubscriptionMapper
	logger logger.Interface
}

func NewSubscriptionChangeRepository(db *gorm.DB, logger logger.Interface) subscription.ChangeRepository {
	return &SubscriptionChangeRepositoryImpl{
		db:     db,
		mapper: mappers.NewSubscriptionMapper(),
		logger: logger,
	}
}

func (r *SubscriptionChangeRepositoryImpl) Create(ctx context.Context, change *subscription.Change) error {
	model, err := r.mapper.ChangeToModel(change)
	if err != nil {
		return fmt.Errorf("failed to map subscription change: %w", err)
	}
	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create subscription change", "subscription_id", change.SubscriptionID(), "error", err)
		return fmt.Errorf("failed to create subscription change: %w", err)
	}
	return change.SetID(model.ID)
}

func (r *SubscriptionChangeRepositoryImpl) MarkApplied(ctx context.Context, change *subscription.Change) error {
	if change.AppliedAt() == nil {
		return fmt.Errorf("change %d has not been applied", change.ID())
	}
	result := db.GetTxFromContext(ctx, r.db).Model(&models.SubscriptionChangeModel{}).
		Where("id = ? AND applied_at IS NULL", change.ID()).
		Updates(map[string]interface{}{
			"applied_at": change.AppliedAt().UTC(),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark change applied: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return subscription.ErrChangeAlreadyApplied
	}
	return nil
}

func (r *SubscriptionChangeRepositoryImpl) GetByID(ctx context.Context, id uint) (*subscription.Change, error) {
	var model models.SubscriptionChangeModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription change: %w", err)
	}
	return r.mapper.ChangeToEntity(&model)
}

func (r *SubscriptionChangeRepositoryImpl) ListBySubscription(ctx context.Context, subscriptionID uint) ([]*subscription.Change, error) {
	var list []*models.SubscriptionChangeModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscription_id = ?", subscriptionID).
		Order("id DESC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscription changes: %w", err)
	}
	return r.mapper.ChangesToEntities(list)
}

func (r *SubscriptionChangeRepositoryImpl) ListDue(ctx context.Context, t time.Time) ([]*subscription.Change, error) {
	var list []*models.SubscriptionChangeModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("applied_at IS NULL AND scheduled_for IS NOT NULL AND scheduled_for <= ?", t.UTC()).
		Order("scheduled_for ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list due changes: %w", err)
	}
	return r.mapper.ChangesToEntities(list)
}
