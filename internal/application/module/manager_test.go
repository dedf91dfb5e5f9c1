package module

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	catalogvo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/infrastructure/repository/repotest"
	"github.com/orris-inc/entitlements/internal/shared/errors"
)

func newManager(t *testing.T) (*ActivationManager, *repotest.Store, *events.Recorder) {
	t.Helper()
	store := repotest.New(t)
	recorder := events.NewRecorder()
	manager := NewActivationManager(store.Plans, store.Modules, store.Features, store.Activations, store.Tx, recorder, store.Logger)
	return manager, store, recorder
}

func TestActivationManager_ActivateAndDeactivate(t *testing.T) {
	manager, store, recorder := newManager(t)
	ctx := context.Background()

	plan := store.Plan(t, "team", "49.00", 0)
	analytics := store.Module(t, "analytics", nil)
	store.Enable(t, plan, analytics)
	sub := store.Subscribe(t, "7", plan, 0, time.Now().UTC())

	assert.False(t, manager.HasAccess(ctx, sub, "analytics"), "enabled but not activated")

	activation, err := manager.Activate(ctx, sub, "analytics")
	require.NoError(t, err)
	assert.True(t, activation.IsActive())
	assert.True(t, manager.HasAccess(ctx, sub, "analytics"))

	deactivated, err := manager.Deactivate(ctx, sub, "analytics")
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive())
	assert.NotNil(t, deactivated.DeactivatedAt())
	assert.False(t, manager.HasAccess(ctx, sub, "analytics"))

	reactivated, err := manager.Activate(ctx, sub, "analytics")
	require.NoError(t, err)
	assert.Equal(t, activation.ID(), reactivated.ID(), "activation row is reused")
	assert.Nil(t, reactivated.DeactivatedAt())

	all, err := store.Activations.ListBySubscription(ctx, sub.ID())
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Equal(t, []string{
		entitlement.EventTypeModuleActivated,
		entitlement.EventTypeModuleDeactivated,
		entitlement.EventTypeModuleActivated,
	}, recorder.Types())
}

func TestActivationManager_Errors(t *testing.T) {
	manager, store, recorder := newManager(t)
	ctx := context.Background()

	plan := store.Plan(t, "starter", "9.00", 0)
	store.Module(t, "billing", nil)
	sub := store.Subscribe(t, "8", plan, 0, time.Now().UTC())

	_, err := manager.Activate(ctx, sub, "billing")
	assert.True(t, errors.IsNotEntitledError(err))
	assert.ErrorIs(t, err, entitlement.ErrModuleNotInPlan)

	_, err = manager.Deactivate(ctx, sub, "billing")
	assert.True(t, errors.IsNotEntitledError(err))
	assert.ErrorIs(t, err, entitlement.ErrModuleNotActivated)

	_, err = manager.Activate(ctx, sub, "nope")
	assert.True(t, errors.IsNotFoundError(err))
	assert.ErrorIs(t, err, catalog.ErrModuleNotFound)

	_, err = manager.Activate(ctx, nil, "billing")
	assert.True(t, errors.IsNotFoundError(err))

	assert.Empty(t, recorder.Events())
}

func TestActivationManager_RequiresUsableSubscription(t *testing.T) {
	manager, store, _ := newManager(t)
	ctx := context.Background()

	plan := store.Plan(t, "team", "49.00", 0)
	reports := store.Module(t, "reports", nil)
	store.Enable(t, plan, reports)
	sub := store.Subscribe(t, "9", plan, 0, time.Now().UTC())

	_, err := manager.Activate(ctx, sub, "reports")
	require.NoError(t, err)

	sub.Cancel(true, time.Now().UTC())
	require.NoError(t, store.Subscriptions.Update(ctx, sub))
	assert.False(t, manager.HasAccess(ctx, sub, "reports"))
}

func TestActivationManager_PlanModules(t *testing.T) {
	manager, store, _ := newManager(t)
	ctx := context.Background()

	basic := store.Plan(t, "basic", "10.00", 0)
	premium := store.Plan(t, "premium", "30.00", 0)
	crm := store.Module(t, "crm", nil)
	inventory := store.Module(t, "inventory", nil)
	hidden := store.Module(t, "hidden", nil)

	store.Enable(t, basic, crm)
	store.Enable(t, basic, inventory)
	require.NoError(t, store.Plans.UpsertModule(ctx, &catalog.PlanModule{PlanID: basic.ID(), ModuleID: hidden.ID(), IsEnabled: false}))
	store.Enable(t, premium, crm)

	sub := store.Subscribe(t, "10", basic, 0, time.Now().UTC())

	count, err := manager.ActivatePlanModules(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	active, err := manager.ActiveModules(ctx, sub)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"crm", "inventory"}, slugs(active))

	require.NoError(t, sub.SwitchPlan(premium.ID(), time.Now().UTC()))
	require.NoError(t, store.Subscriptions.Update(ctx, sub))

	dropped, err := manager.DeactivateNotInPlan(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)
	assert.True(t, manager.HasAccess(ctx, sub, "crm"))
	assert.False(t, manager.HasAccess(ctx, sub, "inventory"))

	dropped, err = manager.DeactivateAll(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	active, err = manager.ActiveModules(ctx, sub)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestActivationManager_ModuleFeatures(t *testing.T) {
	manager, store, _ := newManager(t)
	ctx := context.Background()

	plan := store.Plan(t, "team", "49.00", 0)
	crm := store.Module(t, "crm", nil)
	store.Enable(t, plan, crm)
	sub := store.Subscribe(t, "11", plan, 0, time.Now().UTC())

	moduleID := crm.ID()
	contacts, err := catalog.NewFeature(catalog.FeatureParams{
		ModuleID: &moduleID, Name: "Contacts", Slug: "contacts",
		Type: catalogvo.FeatureTypeLimit, DefaultValue: 500,
	})
	require.NoError(t, err)
	require.NoError(t, store.Features.Create(ctx, contacts))

	retired, err := catalog.NewFeature(catalog.FeatureParams{
		ModuleID: &moduleID, Name: "Fax", Slug: "fax", Type: catalogvo.FeatureTypeBoolean,
	})
	require.NoError(t, err)
	retired.Deactivate()
	require.NoError(t, store.Features.Create(ctx, retired))

	features, err := manager.ModuleFeatures(ctx, sub, "crm")
	require.NoError(t, err)
	assert.Empty(t, features, "not activated yet")

	_, err = manager.Activate(ctx, sub, "crm")
	require.NoError(t, err)

	features, err = manager.ModuleFeatures(ctx, sub, "crm")
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "contacts", features[0].Slug())
}

func slugs(modules []*catalog.Module) []string {
	out := make([]string, 0, len(modules))
	for _, m := range modules {
		out = append(out, m.Slug())
	}
	return out
}
