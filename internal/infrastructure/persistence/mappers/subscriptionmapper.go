package mappers

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/orris-inc/entitlements/internal/domain/subscription"
	vo "github.com/orris-inc/entitlements/internal/domain/subscription/valueobjects"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
)

type SubscriptionMapper interface {
	ToEntity(model *models.SubscriptionModel) (*subscription.Subscription, error)
	ToModel(entity *subscription.Subscription) (*models.SubscriptionModel, error)
	ToEntities(models []*models.SubscriptionModel) ([]*subscription.Subscription, error)
	ChangeToEntity(model *models.SubscriptionChangeModel) (*subscription.Change, error)
	ChangeToModel(entity *subscription.Change) (*models.SubscriptionChangeModel, error)
	ChangesToEntities(models []*models.SubscriptionChangeModel) ([]*subscription.Change, error)
}

type SubscriptionMapperImpl struct{}

func NewSubscriptionMapper() SubscriptionMapper {
	return &SubscriptionMapperImpl{}
}

func (m *SubscriptionMapperImpl) ToEntity(model *models.SubscriptionModel) (*subscription.Subscription, error) {
	if model == nil {
		return nil, nil
	}

	status := vo.SubscriptionStatus(model.Status)
	if !vo.ValidStatuses[status] {
		return nil, fmt.Errorf("invalid subscription status: %s", model.Status)
	}

	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}

	entity, err := subscription.ReconstructSubscription(subscription.SubscriptionState{
		ID:          model.ID,
		UUID:        model.UUID,
		Subscriber:  subscription.SubscriberRef{Type: model.SubscriberType, ID: model.SubscriberID},
		PlanID:      model.PlanID,
		Name:        model.Name,
		Status:      status,
		TrialEndsAt: model.TrialEndsAt,
		StartsAt:    model.StartsAt,
		EndsAt:      model.EndsAt,
		CancelledAt: model.CancelledAt,
		PausedAt:    model.PausedAt,
		ResumedAt:   model.ResumedAt,
		Metadata:    metadata,
		Version:     model.Version,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct subscription entity: %w", err)
	}

	return entity, nil
}

func (m *SubscriptionMapperImpl) ToModel(entity *subscription.Subscription) (*models.SubscriptionModel, error) {
	if entity == nil {
		return nil, nil
	}

	metadata, err := MarshalMetadata(entity.Metadata())
	if err != nil {
		return nil, err
	}

	return &models.SubscriptionModel{
		ID:             entity.ID(),
		UUID:           entity.UUID(),
		SubscriberType: entity.Subscriber().Type,
		SubscriberID:   entity.Subscriber().ID,
		Name:           entity.Name(),
		PlanID:         entity.PlanID(),
		Status:         entity.Status().String(),
		TrialEndsAt:    utcPtr(entity.TrialEndsAt()),
		StartsAt:       entity.StartsAt().UTC(),
		EndsAt:         utcPtr(entity.EndsAt()),
		CancelledAt:    utcPtr(entity.CancelledAt()),
		PausedAt:       utcPtr(entity.PausedAt()),
		ResumedAt:      utcPtr(entity.ResumedAt()),
		Metadata:       metadata,
		Version:        entity.Version(),
		CreatedAt:      entity.CreatedAt(),
		UpdatedAt:      entity.UpdatedAt(),
	}, nil
}

func (m *SubscriptionMapperImpl) ToEntities(list []*models.SubscriptionModel) ([]*subscription.Subscription, error) {
	return mapSlice(list, m.ToEntity, func(model *models.SubscriptionModel) uint { return model.ID })
}

func (m *SubscriptionMapperImpl) ChangeToEntity(model *models.SubscriptionChangeModel) (*subscription.Change, error) {
	if model == nil {
		return nil, nil
	}

	metadata, err := unmarshalMetadata(model.Metadata)
	if err != nil {
		return nil, err
	}

	var proration *decimal.Decimal
	if model.ProrationAmount.Valid {
		amount := model.ProrationAmount.Decimal
		proration = &amount
	}

	entity, err := subscription.ReconstructChange(subscription.ChangeState{
		ID:              model.ID,
		UUID:            model.UUID,
		SubscriptionID:  model.SubscriptionID,
		FromPlanID:      model.FromPlanID,
		ToPlanID:        model.ToPlanID,
		ChangeType:      vo.ChangeType(model.ChangeType),
		IsImmediate:     model.IsImmediate,
		ScheduledFor:    model.ScheduledFor,
		AppliedAt:       model.AppliedAt,
		ProrationAmount: proration,
		Metadata:        metadata,
		CreatedAt:       model.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reconstruct subscription change: %w", err)
	}
	return entity, nil
}

func (m *SubscriptionMapperImpl) ChangeToModel(entity *subscription.Change) (*models.SubscriptionChangeModel, error) {
	if entity == nil {
		return nil, nil
	}

	metadata, err := MarshalMetadata(entity.Metadata())
	if err != nil {
		return nil, err
	}

	model := &models.SubscriptionChangeModel{
		ID:             entity.ID(),
		UUID:           entity.UUID(),
		SubscriptionID: entity.SubscriptionID(),
		FromPlanID:     entity.FromPlanID(),
		ToPlanID:       entity.ToPlanID(),
		ChangeType:     entity.ChangeType().String(),
		IsImmediate:    entity.IsImmediate(),
		ScheduledFor:   utcPtr(entity.ScheduledFor()),
		AppliedAt:      utcPtr(entity.AppliedAt()),
		Metadata:       metadata,
		CreatedAt:      entity.CreatedAt(),
	}
	if amount := entity.ProrationAmount(); amount != nil {
		model.ProrationAmount = decimal.NewNullDecimal(*amount)
	}
	return model, nil
}

func (m *SubscriptionMapperImpl) ChangesToEntities(list []*models.SubscriptionChangeModel) ([]*subscription.Change, error) {
	return mapSlice(list, m.ChangeToEntity, func(model *models.SubscriptionChangeModel) uint { return model.ID })
}
