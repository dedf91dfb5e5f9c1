package module

import (
	"context"
	"fmt"
	"time"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/biztime"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/errors"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// ActivationManager switches plan modules on and off for a subscription.
// A module is usable only when the plan enables it and the subscription has
// activated it.
type ActivationManager struct {
	plans       catalog.PlanRepository
	modules     catalog.ModuleRepository
	features    catalog.FeatureRepository
	activations entitlement.ModuleActivationRepository
	txManager   db.Transactor
	publisher   events.EventPublisher
	now         func() time.Time
	logger      logger.Interface
}

func NewActivationManager(
	plans catalog.PlanRepository,
	modules catalog.ModuleRepository,
	features catalog.FeatureRepository,
	activations entitlement.ModuleActivationRepository,
	txManager db.Transactor,
	publisher events.EventPublisher,
	logger logger.Interface,
) *ActivationManager {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ActivationManager{
		plans:       plans,
		modules:     modules,
		features:    features,
		activations: activations,
		txManager:   txManager,
		publisher:   publisher,
		now:         biztime.NowUTC,
		logger:      logger,
	}
}

// SetClock replaces the time source.
func (m *ActivationManager) SetClock(now func() time.Time) {
	m.now = now
}

// HasAccess reports whether sub can use the module now. Lookup failures are
// logged and reported as no access.
func (m *ActivationManager) HasAccess(ctx context.Context, sub *subscription.Subscription, moduleSlug string) bool {
	if sub == nil || !sub.IsUsable() {
		return false
	}
	module, err := m.module(ctx, moduleSlug)
	if err != nil {
		m.logger.Debugw("module access check failed", "subscription_id", sub.ID(), "module", moduleSlug, "error", err)
		return false
	}
	enabled, err := m.enabledByPlan(ctx, sub.PlanID(), module.ID())
	if err != nil || !enabled {
		return false
	}
	activation, err := m.activations.Get(ctx, sub.ID(), module.ID())
	if err != nil {
		m.logger.Warnw("failed to get module activation", "subscription_id", sub.ID(), "module", moduleSlug, "error", err)
		return false
	}
	return activation != nil && activation.IsActive()
}

// Activate switches the module on, reusing the existing activation row.
func (m *ActivationManager) Activate(ctx context.Context, sub *subscription.Subscription, moduleSlug string) (*entitlement.ModuleActivation, error) {
	if sub == nil {
		return nil, errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	module, err := m.module(ctx, moduleSlug)
	if err != nil {
		return nil, err
	}

	var activation *entitlement.ModuleActivation
	err = m.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		activation, err = m.activate(txCtx, sub, module)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.publish(entitlement.NewModuleActivatedEvent(sub.Snapshot(), module.Snapshot(), *activation.ActivatedAt()))
	m.logger.Infow("module activated", "subscription_id", sub.ID(), "module", module.Slug())
	return activation, nil
}

func (m *ActivationManager) activate(ctx context.Context, sub *subscription.Subscription, module *catalog.Module) (*entitlement.ModuleActivation, error) {
	enabled, err := m.enabledByPlan(ctx, sub.PlanID(), module.ID())
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, errors.NewNotEntitledError("module is not available in the current plan",
			fmt.Sprintf("module=%s plan_id=%d", module.Slug(), sub.PlanID())).
			WithCause(entitlement.ErrModuleNotInPlan)
	}

	now := m.now()
	activation, err := m.activations.Get(ctx, sub.ID(), module.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to get module activation: %w", err)
	}
	if activation != nil {
		activation.Activate(now)
	} else {
		activation, err = entitlement.NewModuleActivation(sub.ID(), module.ID(), now)
		if err != nil {
			return nil, errors.NewValidationError("invalid module activation", err.Error())
		}
	}
	if err := m.activations.Upsert(ctx, activation); err != nil {
		return nil, fmt.Errorf("failed to save module activation: %w", err)
	}
	return activation, nil
}

// Deactivate switches the module off. The activation row is kept.
func (m *ActivationManager) Deactivate(ctx context.Context, sub *subscription.Subscription, moduleSlug string) (*entitlement.ModuleActivation, error) {
	if sub == nil {
		return nil, errors.NewNotFoundError("subscription not found").WithCause(subscription.ErrSubscriptionNotFound)
	}
	module, err := m.module(ctx, moduleSlug)
	if err != nil {
		return nil, err
	}

	var activation *entitlement.ModuleActivation
	err = m.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		var err error
		activation, err = m.activations.Get(txCtx, sub.ID(), module.ID())
		if err != nil {
			return fmt.Errorf("failed to get module activation: %w", err)
		}
		if activation == nil {
			return errors.NewNotEntitledError("module is not activated for this subscription",
				fmt.Sprintf("module=%s subscription_id=%d", module.Slug(), sub.ID())).
				WithCause(entitlement.ErrModuleNotActivated)
		}
		activation.Deactivate(m.now())
		return m.activations.Upsert(txCtx, activation)
	})
	if err != nil {
		return nil, err
	}

	m.publish(entitlement.NewModuleDeactivatedEvent(sub.Snapshot(), module.Snapshot(), *activation.DeactivatedAt()))
	m.logger.Infow("module deactivated", "subscription_id", sub.ID(), "module", module.Slug())
	return activation, nil
}

// ActivatePlanModules activates every module the plan enables and returns
// how many were switched on.
func (m *ActivationManager) ActivatePlanModules(ctx context.Context, sub *subscription.Subscription) (int, error) {
	links, err := m.plans.ListModules(ctx, sub.PlanID())
	if err != nil {
		return 0, fmt.Errorf("failed to list plan modules: %w", err)
	}

	count := 0
	for _, link := range links {
		if !link.IsEnabled {
			continue
		}
		module, err := m.modules.GetByID(ctx, link.ModuleID)
		if err != nil {
			return count, fmt.Errorf("failed to get module: %w", err)
		}
		if module == nil {
			continue
		}
		if _, err := m.Activate(ctx, sub, module.Slug()); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// DeactivateAll switches off every active module of the subscription.
func (m *ActivationManager) DeactivateAll(ctx context.Context, sub *subscription.Subscription) (int, error) {
	return m.deactivateWhere(ctx, sub, func(*entitlement.ModuleActivation) (bool, error) {
		return true, nil
	})
}

// DeactivateNotInPlan switches off active modules the current plan no longer
// enables.
func (m *ActivationManager) DeactivateNotInPlan(ctx context.Context, sub *subscription.Subscription) (int, error) {
	return m.deactivateWhere(ctx, sub, func(a *entitlement.ModuleActivation) (bool, error) {
		enabled, err := m.enabledByPlan(ctx, sub.PlanID(), a.ModuleID())
		return !enabled, err
	})
}

func (m *ActivationManager) deactivateWhere(
	ctx context.Context,
	sub *subscription.Subscription,
	match func(*entitlement.ModuleActivation) (bool, error),
) (int, error) {
	active, err := m.activations.ListActive(ctx, sub.ID())
	if err != nil {
		return 0, fmt.Errorf("failed to list active modules: %w", err)
	}

	count := 0
	for _, activation := range active {
		ok, err := match(activation)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		module, err := m.modules.GetByID(ctx, activation.ModuleID())
		if err != nil {
			return count, fmt.Errorf("failed to get module: %w", err)
		}
		if module == nil {
			continue
		}
		if _, err := m.Deactivate(ctx, sub, module.Slug()); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ActiveModules lists the modules the subscription has switched on.
func (m *ActivationManager) ActiveModules(ctx context.Context, sub *subscription.Subscription) ([]*catalog.Module, error) {
	if sub == nil {
		return nil, nil
	}
	active, err := m.activations.ListActive(ctx, sub.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to list active modules: %w", err)
	}
	ids := make([]uint, 0, len(active))
	for _, a := range active {
		ids = append(ids, a.ModuleID())
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return m.modules.GetByIDs(ctx, ids)
}

// ModuleFeatures returns the active features of the module, or nothing when
// the subscription has no access to it.
func (m *ActivationManager) ModuleFeatures(ctx context.Context, sub *subscription.Subscription, moduleSlug string) ([]*catalog.Feature, error) {
	if !m.HasAccess(ctx, sub, moduleSlug) {
		return nil, nil
	}
	module, err := m.module(ctx, moduleSlug)
	if err != nil {
		return nil, err
	}
	features, err := m.features.ListByModule(ctx, module.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to list module features: %w", err)
	}
	result := make([]*catalog.Feature, 0, len(features))
	for _, f := range features {
		if f.IsActive() {
			result = append(result, f)
		}
	}
	return result, nil
}

func (m *ActivationManager) module(ctx context.Context, slug string) (*catalog.Module, error) {
	module, err := m.modules.GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	if module == nil {
		return nil, errors.NewNotFoundError("module not found", slug).WithCause(catalog.ErrModuleSlugNotFound(slug))
	}
	return module, nil
}

func (m *ActivationManager) enabledByPlan(ctx context.Context, planID, moduleID uint) (bool, error) {
	link, err := m.plans.GetModule(ctx, planID, moduleID)
	if err != nil {
		return false, fmt.Errorf("failed to get plan module: %w", err)
	}
	return link != nil && link.IsEnabled, nil
}

func (m *ActivationManager) publish(event events.DomainEvent) {
	if err := m.publisher.Publish(event); err != nil {
		m.logger.Warnw("failed to publish module event", "type", event.GetEventType(), "error", err)
	}
}
