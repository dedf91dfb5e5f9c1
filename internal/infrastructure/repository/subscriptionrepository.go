package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/domain/subscription"
	vo "github.com/orris-inc/entitlements/internal/domain/subscription/valueobjects"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/mappers"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

var usableStatuses = []string{string(vo.StatusActive), string(vo.StatusOnTrial)}

type SubscriptionRepositoryImpl struct {
	db     *gorm.DB
	mapper mappers.SubscriptionMapper
	logger logger.Interface
}

func NewSubscriptionRepository(db *gorm.DB, logger logger.Interface) subscription.Repository {
	return &SubscriptionRepositoryImpl{
		db:     db,
		mapper: mappers.NewSubscriptionMapper(),
		logger: logger,
	}
}

func (r *SubscriptionRepositoryImpl) Create(ctx context.Context, subscriptionEntity *subscription.Subscription) error {
	model, err := r.mapper.ToModel(subscriptionEntity)
	if err != nil {
		r.logger.Errorw("failed to map subscription entity to model", "error", err)
		return fmt.Errorf("failed to map subscription entity: %w", err)
	}

	if err := db.GetTxFromContext(ctx, r.db).Create(model).Error; err != nil {
		r.logger.Errorw("failed to create subscription in database", "error", err)
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	if err := subscriptionEntity.SetID(model.ID); err != nil {
		r.logger.Errorw("failed to set subscription ID", "error", err)
		return fmt.Errorf("failed to set subscription ID: %w", err)
	}

	r.logger.Infow("subscription created successfully",
		"id", model.ID,
		"subscriber", subscriptionEntity.Subscriber().String(),
		"plan_id", model.PlanID,
	)
	return nil
}

// Update writes the aggregate only if the stored version still matches the
// one it was loaded with.
func (r *SubscriptionRepositoryImpl) Update(ctx context.Context, subscriptionEntity *subscription.Subscription) error {
	model, err := r.mapper.ToModel(subscriptionEntity)
	if err != nil {
		r.logger.Errorw("failed to map subscription entity to model", "id", subscriptionEntity.ID(), "error", err)
		return fmt.Errorf("failed to map subscription entity: %w", err)
	}

	nextVersion := model.Version + 1
	result := db.GetTxFromContext(ctx, r.db).Model(&models.SubscriptionModel{}).
		Where("id = ? AND version = ?", model.ID, model.Version).
		Updates(map[string]interface{}{
			"plan_id":       model.PlanID,
			"name":          model.Name,
			"status":        model.Status,
			"trial_ends_at": model.TrialEndsAt,
			"starts_at":     model.StartsAt,
			"ends_at":       model.EndsAt,
			"cancelled_at":  model.CancelledAt,
			"paused_at":     model.PausedAt,
			"resumed_at":    model.ResumedAt,
			"metadata":      model.Metadata,
			"version":       nextVersion,
			"updated_at":    model.UpdatedAt,
		})

	if result.Error != nil {
		r.logger.Errorw("failed to update subscription", "id", model.ID, "error", result.Error)
		return fmt.Errorf("failed to update subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		r.logger.Warnw("stale subscription update rejected", "id", model.ID, "version", model.Version)
		return fmt.Errorf("%w: id=%d version=%d", subscription.ErrStaleSubscription, model.ID, model.Version)
	}

	subscriptionEntity.SetVersion(nextVersion)
	r.logger.Infow("subscription updated successfully", "id", model.ID, "status", model.Status)
	return nil
}

func (r *SubscriptionRepositoryImpl) GetByID(ctx context.Context, id uint) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := db.GetTxFromContext(ctx, r.db).First(&model, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get subscription by ID", "id", id, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	entity, err := r.mapper.ToEntity(&model)
	if err != nil {
		r.logger.Errorw("failed to map subscription model to entity", "id", id, "error", err)
		return nil, fmt.Errorf("failed to map subscription: %w", err)
	}
	return entity, nil
}

func (r *SubscriptionRepositoryImpl) GetByUUID(ctx context.Context, uuid string) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := db.GetTxFromContext(ctx, r.db).Where("uuid = ?", uuid).First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get subscription by UUID", "uuid", uuid, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

func (r *SubscriptionRepositoryImpl) GetCurrent(ctx context.Context, subscriber subscription.SubscriberRef, name string) (*subscription.Subscription, error) {
	var model models.SubscriptionModel
	if err := db.GetTxFromContext(ctx, r.db).
		Where("subscriber_type = ? AND subscriber_id = ? AND name = ?", subscriber.Type, subscriber.ID, name).
		Order("id DESC").
		First(&model).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Errorw("failed to get current subscription", "subscriber", subscriber.String(), "name", name, "error", err)
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return r.mapper.ToEntity(&model)
}

func (r *SubscriptionRepositoryImpl) ListBySubscriber(ctx context.Context, subscriber subscription.SubscriberRef) ([]*subscription.Subscription, error) {
	return r.find(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("subscriber_type = ? AND subscriber_id = ?", subscriber.Type, subscriber.ID).Order("id DESC")
	})
}

func (r *SubscriptionRepositoryImpl) ListEndingBefore(ctx context.Context, t time.Time) ([]*subscription.Subscription, error) {
	return r.find(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("status IN ? AND ends_at IS NOT NULL AND ends_at < ?", usableStatuses, t.UTC()).Order("id ASC")
	})
}

func (r *SubscriptionRepositoryImpl) ListTrialsEndingBefore(ctx context.Context, t time.Time) ([]*subscription.Subscription, error) {
	return r.find(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ? AND trial_ends_at IS NOT NULL AND trial_ends_at < ?", string(vo.StatusOnTrial), t.UTC()).Order("id ASC")
	})
}

func (r *SubscriptionRepositoryImpl) ListUsable(ctx context.Context) ([]*subscription.Subscription, error) {
	return r.find(ctx, func(q *gorm.DB) *gorm.DB {
		return q.Where("status IN ?", usableStatuses).Order("id ASC")
	})
}

func (r *SubscriptionRepositoryImpl) CountByPlan(ctx context.Context, planID uint) (int64, error) {
	var count int64
	if err := db.GetTxFromContext(ctx, r.db).Model(&models.SubscriptionModel{}).
		Where("plan_id = ?", planID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}
	return count, nil
}

// Delete permanently removes the subscription and the rows it owns.
func (r *SubscriptionRepositoryImpl) Delete(ctx context.Context, id uint) error {
	tx := db.GetTxFromContext(ctx, r.db).Unscoped()

	owned := []interface{}{
		&models.SubscriptionUsageModel{},
		&models.SubscriptionLimitModel{},
		&models.ModuleActivationModel{},
		&models.SubscriptionChangeModel{},
	}
	for _, model := range owned {
		if err := tx.Where("subscription_id = ?", id).Delete(model).Error; err != nil {
			r.logger.Errorw("failed to delete subscription rows", "id", id, "error", err)
			return fmt.Errorf("failed to delete subscription rows: %w", err)
		}
	}

	result := tx.Delete(&models.SubscriptionModel{}, id)
	if result.Error != nil {
		r.logger.Errorw("failed to delete subscription", "id", id, "error", result.Error)
		return fmt.Errorf("failed to delete subscription: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return subscription.ErrSubscriptionNotFound
	}

	r.logger.Infow("subscription deleted successfully", "id", id)
	return nil
}

func (r *SubscriptionRepositoryImpl) find(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]*subscription.Subscription, error) {
	var list []*models.SubscriptionModel
	if err := scope(db.GetTxFromContext(ctx, r.db)).Find(&list).Error; err != nil {
		r.logger.Errorw("failed to list subscriptions", "error", err)
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return r.mapper.ToEntities(list)
}
