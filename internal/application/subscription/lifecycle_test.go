package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appentitlement "github.com/orris-inc/entitlements/internal/application/entitlement"
	"github.com/orris-inc/entitlements/internal/application/module"
	"github.com/orris-inc/entitlements/internal/domain/catalog"
	catalogvo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	vo "github.com/orris-inc/entitlements/internal/domain/subscription/valueobjects"
	"github.com/orris-inc/entitlements/internal/infrastructure/repository/repotest"
	"github.com/orris-inc/entitlements/internal/shared/config"
	"github.com/orris-inc/entitlements/internal/shared/errors"
)

type lifecycleFixture struct {
	store      *repotest.Store
	lifecycle  *LifecycleManager
	engine     *appentitlement.Engine
	modules    *module.ActivationManager
	recorder   *events.Recorder
	subscriber subscription.SubscriberRef
	clock      time.Time
}

func newLifecycleFixture(t *testing.T, cfg config.SubscriptionConfig) *lifecycleFixture {
	t.Helper()
	store := repotest.New(t)
	recorder := events.NewRecorder()

	resolver := appentitlement.NewLimitResolver(store.Plans, store.Features, store.Limits, store.Logger)
	ledger := appentitlement.NewUsageLedger(store.Usage, resolver, store.Logger)
	engine := appentitlement.NewEngine(store.Plans, store.Features, store.Limits, resolver, ledger, store.Tx, recorder, cfg, store.Logger)
	modules := module.NewActivationManager(store.Plans, store.Modules, store.Features, store.Activations, store.Tx, recorder, store.Logger)
	lifecycle := NewLifecycleManager(store.Subscriptions, store.Changes, store.Plans, store.Usage, modules, engine, store.Tx, recorder, cfg, store.Logger)

	f := &lifecycleFixture{
		store:      store,
		lifecycle:  lifecycle,
		engine:     engine,
		modules:    modules,
		recorder:   recorder,
		subscriber: subscription.SubscriberRef{Type: "user", ID: "1"},
		clock:      time.Now().UTC().Truncate(time.Second),
	}
	lifecycle.SetClock(func() time.Time { return f.clock })
	return f
}

func (f *lifecycleFixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *lifecycleFixture) create(t *testing.T, planSlug string, opts CreateOptions) *subscription.Subscription {
	t.Helper()
	sub, err := f.lifecycle.Create(context.Background(), f.subscriber, planSlug, opts)
	require.NoError(t, err)
	return sub
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func TestLifecycle_TrialConversion(t *testing.T) {
	f := newLifecycleFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.store.Plan(t, "pro", "29.00", 7)

	sub := f.create(t, "pro", CreateOptions{})
	assert.Equal(t, vo.StatusOnTrial, sub.Status())
	require.NotNil(t, sub.TrialEndsAt())
	assert.WithinDuration(t, f.clock.Add(days(7)), *sub.TrialEndsAt(), time.Second)
	assert.Nil(t, sub.EndsAt())
	assert.Equal(t, "default", sub.Name())

	f.advance(days(3))
	converted, err := f.lifecycle.ConvertTrialToPaid(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, converted.Status())
	assert.Nil(t, converted.TrialEndsAt())
	require.NotNil(t, converted.EndsAt())
	assert.Equal(t, f.clock.AddDate(0, 1, 0), converted.EndsAt().UTC())

	_, err = f.lifecycle.ConvertTrialToPaid(ctx, sub.ID())
	assert.True(t, errors.IsInvalidStateError(err))
	assert.ErrorIs(t, err, subscription.ErrInvalidStatusTransition)

	assert.Equal(t, []string{
		subscription.EventTypeCreated,
		subscription.EventTypeTrialEnded,
		subscription.EventTypeRenewed,
	}, f.recorder.Types())
}

func TestLifecycle_CreateTrialDaysResolution(t *testing.T) {
	cfg := config.DefaultSubscriptionConfig()
	cfg.DefaultTrialDays = 14
	f := newLifecycleFixture(t, cfg)
	ctx := context.Background()
	f.store.Plan(t, "no-trial", "0.00", 0)
	f.store.Plan(t, "pro", "29.00", 7)

	withoutTrial := f.create(t, "no-trial", CreateOptions{Name: "a"})
	assert.Equal(t, vo.StatusActive, withoutTrial.Status(), "a plan without trial days is never replaced by the configured default")
	assert.Nil(t, withoutTrial.TrialEndsAt())

	fromPlan := f.create(t, "pro", CreateOptions{Name: "b"})
	assert.Equal(t, vo.StatusOnTrial, fromPlan.Status())
	require.NotNil(t, fromPlan.TrialEndsAt())
	assert.WithinDuration(t, f.clock.Add(days(7)), *fromPlan.TrialEndsAt(), time.Second)

	noTrial := 0
	explicit := f.create(t, "pro", CreateOptions{Name: "c", TrialDays: &noTrial})
	assert.Equal(t, vo.StatusActive, explicit.Status())
	assert.Nil(t, explicit.TrialEndsAt())

	_, err := f.lifecycle.Create(ctx, f.subscriber, "missing", CreateOptions{})
	assert.True(t, errors.IsNotFoundError(err))

	_, err = f.lifecycle.Create(ctx, subscription.SubscriberRef{Type: "user"}, "pro", CreateOptions{})
	assert.True(t, errors.IsValidationError(err))
}

func TestLifecycle_InactivePlanIsRejected(t *testing.T) {
	f := newLifecycleFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	plan := f.store.Plan(t, "legacy", "5.00", 0)
	plan.Deactivate()
	require.NoError(t, f.store.Plans.Update(ctx, plan))

	_, err := f.lifecycle.Create(ctx, f.subscriber, "legacy", CreateOptions{})
	assert.True(t, errors.IsValidationError(err))
}

func TestLifecycle_ChangePlanTypesAndProration(t *testing.T) {
	f := newLifecycleFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.store.Plan(t, "basic", "10.00", 0)
	f.store.Plan(t, "premium", "40.00", 0)
	f.store.Plan(t, "premium-alt", "40.00", 0)

	f.clock = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	sub := f.create(t, "basic", CreateOptions{EndsAt: &end})

	f.clock = time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC)
	upgrade, err := f.lifecycle.ChangePlan(ctx, sub.ID(), "premium", true, nil)
	require.NoError(t, err)
	assert.Equal(t, vo.ChangeUpgrade, upgrade.ChangeType())
	require.NotNil(t, upgrade.ProrationAmount())
	// (40/30 - 10/30) * 15 remaining days
	assert.True(t, decimal.RequireFromString("15.00").Equal(*upgrade.ProrationAmount()), upgrade.ProrationAmount().String())
	assert.True(t, upgrade.IsApplied())

	sideways, err := f.lifecycle.ChangePlan(ctx, sub.ID(), "premium-alt", true, nil)
	require.NoError(t, err)
	assert.Equal(t, vo.ChangeSwitch, sideways.ChangeType())
	assert.True(t, sideways.ProrationAmount().IsZero())

	downgrade, err := f.lifecycle.ChangePlan(ctx, sub.ID(), "basic", true, nil)
	require.NoError(t, err)
	assert.Equal(t, vo.ChangeDowngrade, downgrade.ChangeType())
	assert.True(t, downgrade.ProrationAmount().IsZero(), "downgrades never refund")

	reloaded, err := f.lifecycle.Get(ctx, sub.ID())
	require.NoError(t, err)
	basic, err := f.store.Plans.GetBySlug(ctx, "basic")
	require.NoError(t, err)
	assert.Equal(t, basic.ID(), reloaded.PlanID())

	history, err := f.lifecycle.Changes(ctx, sub.ID())
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Len(t, f.recorder.OfType(subscription.EventTypePlanChanged), 3)
}

func TestLifecycle_ProrationBehaviors(t *testing.T) {
	tests := []struct {
		name     string
		behavior string
		want     string
	}{
		{name: "immediate charges the full difference", behavior: string(vo.ProrationImmediate), want: "30.00"},
		{name: "none charges nothing", behavior: string(vo.ProrationNone), want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultSubscriptionConfig()
			cfg.ProrationBehavior = tt.behavior
			f := newLifecycleFixture(t, cfg)
			f.store.Plan(t, "basic", "10.00", 0)
			f.store.Plan(t, "premium", "40.00", 0)

			end := f.clock.Add(days(30))
			sub := f.create(t, "basic", CreateOptions{EndsAt: &end})
			change, err := f.lifecycle.ChangePlan(context.Background(), sub.ID(), "premium", true, nil)
			require.NoError(t, err)
			require.NotNil(t, change.ProrationAmount())
			assert.True(t, decimal.RequireFromString(tt.want).Equal(*change.ProrationAmount()))
		})
	}
}

func TestLifecycle_ScheduledChange(t *testing.T) {
	f := newLifecycleFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	basic := f.store.Plan(t, "basic", "10.00", 0)
	premium := f.store.Plan(t, "premium", "40.00", 0)
	sub := f.create(t, "basic", CreateOptions{})

	_, err := f.lifecycle.ChangePlan(ctx, sub.ID(), "premium", false, nil)
	assert.True(t, errors.IsValidationError(err))

	when := f.clock.Add(days(10))
	change, err := f.lifecycle.ChangePlan(ctx, sub.ID(), "premium", false, &when)
	require.NoError(t, err)
	assert.False(t, change.IsApplied())
	assert.Nil(t, change.ProrationAmount())

	current, err := f.lifecycle.Get(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, basic.ID(), current.PlanID(), "scheduled change waits")

	applied, err := f.lifecycle.ApplyDueChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)

	f.advance(days(11))
	applied, err = f.lifecycle.ApplyDueChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	current, err = f.lifecycle.Get(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, premium.ID(), current.PlanID())

	_, err = f.lifecycle.ApplyScheduledChange(ctx, change.ID())
	assert.True(t, errors.IsInvalidStateError(err))
	assert.ErrorIs(t, err, subscription.ErrChangeAlreadyApplied)

	_, err = f.lifecycle.ApplyScheduledChange(ctx, 9999)
	assert.True(t, errors.IsNotFoundError(err))

	// one event when recorded, one when applied
	assert.Len(t, f.recorder.OfType(subscription.EventTypePlanChanged), 2)
}

func TestLifecycle_StateGuards(t *testing.T) {
	f := newLifecycleFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.store.Plan(t, "pro", "29.00", 0)
	sub := f.create(t, "pro", CreateOptions{})
	id := sub.ID()

	_, err := f.lifecycle.Resume(ctx, id)
	assert.True(t, errors.IsInvalidStateError(err), "resume needs cancelled")
	_, err = f.lifecycle.Unpause(ctx, id)
	assert.True(t, errors.IsInvalidStateError(err), "unpause needs paused")

	paused, err := f.lifecycle.Pause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vo.StatusPaused, paused.Status())
	assert.NotNil(t, paused.PausedAt())
	assert.False(t, paused.IsUsable())

	_, err = f.lifecycle.Pause(ctx, id)
	assert.True(t, errors.IsInvalidStateError(err))
	_, err = f.lifecycle.MarkPastDue(ctx, id)
	assert.True(t, errors.IsInvalidStateError(err))

	unpaused, err := f.lifecycle.Unpause(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, unpaused.Status())
	assert.Nil(t, unpaused.PausedAt())
	assert.NotNil(t, unpaused.ResumedAt())

	pastDue, err := f.lifecycle.MarkPastDue(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vo.StatusPastDue, pastDue.Status())

	renewed, err := f.lifecycle.Renew(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, renewed.Status())
	require.NotNil(t, renewed.EndsAt())
	assert.Equal(t, f.clock.AddDate(0, 1, 0), renewed.EndsAt().UTC())

	cancelled, err := f.lifecycle.Cancel(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, vo.StatusCancelled, cancelled.Status())
	assert.Equal(t, renewed.EndsAt().UTC(), cancelled.EndsAt().UTC(), "deferred cancel keeps the period end")

	resumed, err := f.lifecycle.Resume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, resumed.Status())
	assert.Nil(t, resumed.CancelledAt())

	f.advance(time.Hour)
	cancelled, err = f.lifecycle.Cancel(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, f.clock, cancelled.EndsAt().UTC())

	expired, err := f.lifecycle.Expire(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, vo.StatusExpired, expired.Status())

	_, err = f.lifecycle.Cancel(ctx, 9999, true)
	assert.True(t, errors.IsNotFoundError(err))

	assert.Equal(t, []string{
		subscription.EventTypeCreated,
		subscription.EventTypeResumed,
		subscription.EventTypeRenewed,
		subscription.EventTypeCancelled,
		subscription.EventTypeResumed,
		subscription.EventTypeCancelled,
		subscription.EventTypeExpired,
	}, f.recorder.Types())
}

func TestLifecycle_StaleWriteIsConcurrencyConflict(t *testing.T) {
	f := newLifecycleFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.store.Plan(t, "pro", "29.00", 0)
	sub := f.create(t, "pro", CreateOptions{})

	first, err := f.store.Subscriptions.GetByID(ctx, sub.ID())
	require.NoError(t, err)
	second, err := f.store.Subscriptions.GetByID(ctx, sub.ID())
	require.NoError(t, err)

	require.NoError(t, first.Pause(f.clock))
	require.NoError(t, f.store.Subscriptions.Update(ctx, first))

	second.Cancel(true, f.clock)
	err = f.store.Subscriptions.Update(ctx, second)
	require.ErrorIs(t, err, subscription.ErrStaleSubscription)

	mapped := f.lifecycle.mapError(err)
	assert.True(t, errors.IsConcurrencyConflictError(mapped))
	assert.ErrorIs(t, mapped, subscription.ErrStaleSubscription)

	current, err := f.lifecycle.Get(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusPaused, current.Status(), "losing write is discarded")
}

func TestLifecycle_ExpireDueHonorsGraceDays(t *testing.T) {
	cfg := config.DefaultSubscriptionConfig()
	cfg.DefaultGraceDays = 10
	f := newLifecycleFixture(t, cfg)
	ctx := context.Background()
	f.store.PlanWith(t, catalog.PlanParams{
		Name:      "pro",
		Slug:      "pro",
		Price:     decimal.RequireFromString("29.00"),
		Currency:  "USD",
		Interval:  catalogvo.IntervalMonthly,
		GraceDays: 3,
	})

	end := f.clock.Add(days(30))
	sub := f.create(t, "pro", CreateOptions{EndsAt: &end})
	openEnded := f.create(t, "pro", CreateOptions{Name: "secondary"})

	f.clock = end.Add(days(1))
	expired, err := f.lifecycle.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired, "still inside the grace period")

	f.clock = end.Add(days(3))
	expired, err = f.lifecycle.ExpireDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	current, err := f.lifecycle.Get(ctx, sub.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusExpired, current.Status())

	untouched, err := f.lifecycle.Get(ctx, openEnded.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusActive, untouched.Status())
}

func TestLifecycle_TrialsEndingAndLapsing(t *testing.T) {
	f := newLifecycleFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.store.Plan(t, "pro", "29.00", 7)
	f.store.Plan(t, "team", "99.00", 30)

	short := f.create(t, "pro", CreateOptions{})
	f.create(t, "team", CreateOptions{Name: "team"})

	f.advance(days(2))
	soon, err := f.lifecycle.TrialsEndingSoon(ctx)
	require.NoError(t, err)
	require.Len(t, soon, 1)
	assert.Equal(t, short.ID(), soon[0].ID())

	ended, err := f.lifecycle.EndTrials(ctx)
	require.NoError(t, err)
	assert.Zero(t, ended)

	f.advance(days(6))
	f.recorder.Reset()
	ended, err = f.lifecycle.EndTrials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	current, err := f.lifecycle.Get(ctx, short.ID())
	require.NoError(t, err)
	assert.Equal(t, vo.StatusExpired, current.Status())
	assert.Equal(t, []string{subscription.EventTypeExpired, subscription.EventTypeTrialEnded}, f.recorder.Types())
}

func TestLifecycle_DeleteRemovesOwnedRows(t *testing.T) {
	f := newLifecycleFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	basic := f.store.Plan(t, "basic", "10.00", 0)
	f.store.Plan(t, "premium", "40.00", 0)
	crm := f.store.Module(t, "crm", nil)
	f.store.Enable(t, basic, crm)
	calls := f.store.Feature(t, "api-calls", catalogvo.FeatureTypeConsumable, 100, catalogvo.ResetNever)
	f.store.Include(t, basic, calls, nil)

	sub := f.create(t, "basic", CreateOptions{})
	ok, err := f.engine.Consume(ctx, sub, "api-calls", 5)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.engine.SetCustomLimit(ctx, sub, "api-calls", repotest.Int64(500), entitlement.LimitTypeHard, nil)
	require.NoError(t, err)
	when := f.clock.Add(days(5))
	_, err = f.lifecycle.ChangePlan(ctx, sub.ID(), "premium", false, &when)
	require.NoError(t, err)

	require.NoError(t, f.lifecycle.Delete(ctx, sub.ID()))

	_, err = f.lifecycle.Get(ctx, sub.ID())
	assert.True(t, errors.IsNotFoundError(err))

	history, err := f.store.Usage.ListHistory(ctx, sub.ID(), calls.ID())
	require.NoError(t, err)
	assert.Empty(t, history)
	limits, err := f.store.Limits.ListBySubscription(ctx, sub.ID())
	require.NoError(t, err)
	assert.Empty(t, limits)
	activations, err := f.store.Activations.ListBySubscription(ctx, sub.ID())
	require.NoError(t, err)
	assert.Empty(t, activations)
	changes, err := f.store.Changes.ListBySubscription(ctx, sub.ID())
	require.NoError(t, err)
	assert.Empty(t, changes)

	assert.Len(t, f.recorder.OfType(subscription.EventTypeDeleted), 1)

	err = f.lifecycle.Delete(ctx, sub.ID())
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLifecycle_PlanChangeInheritance(t *testing.T) {
	tests := []struct {
		name            string
		inheritFeatures bool
		inheritModules  bool
		wantRemaining   int64
		wantCRM         bool
	}{
		{
			name:            "usage and modules carry over",
			inheritFeatures: true,
			inheritModules:  true,
			wantRemaining:   500 - 40,
			wantCRM:         true,
		},
		{
			name:            "fresh start on the new plan",
			inheritFeatures: false,
			inheritModules:  false,
			wantRemaining:   500,
			wantCRM:         true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultSubscriptionConfig()
			cfg.FeatureInheritanceOnPlanChange = tt.inheritFeatures
			cfg.ModuleInheritanceOnPlanChange = tt.inheritModules
			f := newLifecycleFixture(t, cfg)
			ctx := context.Background()

			basic := f.store.Plan(t, "basic", "10.00", 0)
			premium := f.store.Plan(t, "premium", "40.00", 0)
			calls := f.store.Feature(t, "api-calls", catalogvo.FeatureTypeConsumable, 0, catalogvo.ResetNever)
			f.store.Include(t, basic, calls, repotest.Int64(100))
			f.store.Include(t, premium, calls, repotest.Int64(500))
			crm := f.store.Module(t, "crm", nil)
			inventory := f.store.Module(t, "inventory", nil)
			f.store.Enable(t, basic, crm)
			f.store.Enable(t, basic, inventory)
			f.store.Enable(t, premium, crm)

			sub := f.create(t, "basic", CreateOptions{})
			assert.True(t, f.modules.HasAccess(ctx, sub, "crm"), "plan modules activate on create")
			assert.True(t, f.modules.HasAccess(ctx, sub, "inventory"))

			ok, err := f.engine.Consume(ctx, sub, "api-calls", 40)
			require.NoError(t, err)
			require.True(t, ok)

			_, err = f.lifecycle.ChangePlan(ctx, sub.ID(), "premium", true, nil)
			require.NoError(t, err)

			sub, err = f.lifecycle.Get(ctx, sub.ID())
			require.NoError(t, err)

			remaining, err := f.engine.Remaining(ctx, sub, "api-calls")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemaining, remaining)

			assert.Equal(t, tt.wantCRM, f.modules.HasAccess(ctx, sub, "crm"))
			assert.False(t, f.modules.HasAccess(ctx, sub, "inventory"), "inventory is not on premium")
		})
	}
}
