package entitlement

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	catalogvo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/infrastructure/repository/repotest"
	"github.com/orris-inc/entitlements/internal/shared/config"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/errors"
)

type engineFixture struct {
	store    *repotest.Store
	engine   *Engine
	recorder *events.Recorder
	plan     *catalog.Plan
	sub      *subscription.Subscription
}

func newEngineFixture(t *testing.T, cfg config.SubscriptionConfig) *engineFixture {
	t.Helper()
	store := repotest.New(t)
	recorder := events.NewRecorder()
	resolver := NewLimitResolver(store.Plans, store.Features, store.Limits, store.Logger)
	ledger := NewUsageLedger(store.Usage, resolver, store.Logger)
	engine := NewEngine(store.Plans, store.Features, store.Limits, resolver, ledger, store.Tx, recorder, cfg, store.Logger)

	plan := store.Plan(t, "pro", "20.00", 0)
	sub := store.Subscribe(t, "42", plan, 0, time.Now().UTC())
	return &engineFixture{store: store, engine: engine, recorder: recorder, plan: plan, sub: sub}
}

func (f *engineFixture) metered(t *testing.T, slug string, defaultValue int64, planValue *int64) *catalog.Feature {
	t.Helper()
	feature := f.store.Feature(t, slug, catalogvo.FeatureTypeConsumable, defaultValue, catalogvo.ResetNever)
	f.store.Include(t, f.plan, feature, planValue)
	return feature
}

func TestLimitResolver_Precedence(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()

	feature := f.metered(t, "seats", 50, repotest.Int64(200))
	unlinked := f.store.Feature(t, "exports", catalogvo.FeatureTypeLimit, 7, catalogvo.ResetNever)

	value, err := f.engine.FeatureValue(ctx, f.sub, "seats")
	require.NoError(t, err)
	assert.EqualValues(t, 200, value, "plan value overrides feature default")

	_, err = f.engine.SetCustomLimit(ctx, f.sub, "seats", repotest.Int64(300), entitlement.LimitTypeHard, nil)
	require.NoError(t, err)
	value, err = f.engine.FeatureValue(ctx, f.sub, "seats")
	require.NoError(t, err)
	assert.EqualValues(t, 300, value, "custom limit overrides plan value")

	// an override row without a value defers to the plan
	_, err = f.engine.SetCustomLimit(ctx, f.sub, "seats", nil, entitlement.LimitTypeHard, repotest.Int64(150))
	require.NoError(t, err)
	value, err = f.engine.FeatureValue(ctx, f.sub, "seats")
	require.NoError(t, err)
	assert.EqualValues(t, 200, value)

	require.NoError(t, f.engine.RemoveCustomLimit(ctx, f.sub, "seats"))
	value, err = f.engine.resolver.EffectiveLimit(ctx, f.sub, feature)
	require.NoError(t, err)
	assert.EqualValues(t, 200, value)

	value, err = f.engine.resolver.EffectiveLimit(ctx, f.sub, unlinked)
	require.NoError(t, err)
	assert.EqualValues(t, 7, value, "feature default applies without plan value")

	_, err = f.engine.resolver.EffectiveLimit(ctx, f.sub, nil)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = f.engine.FeatureValue(ctx, f.sub, "missing")
	assert.True(t, errors.IsNotFoundError(err))
	assert.ErrorIs(t, err, catalog.ErrFeatureNotFound)
}

func TestEngine_ConsumeWithinDefaultLimit(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.metered(t, "api-calls", 100, nil)

	ok, err := f.engine.Consume(ctx, f.sub, "api-calls", 30)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := f.engine.Remaining(ctx, f.sub, "api-calls")
	require.NoError(t, err)
	assert.EqualValues(t, 70, remaining)

	can, err := f.engine.CanConsume(ctx, f.sub, "api-calls", 80)
	require.NoError(t, err)
	assert.False(t, can)

	ok, err = f.engine.Consume(ctx, f.sub, "api-calls", 80)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err = f.engine.Remaining(ctx, f.sub, "api-calls")
	require.NoError(t, err)
	assert.EqualValues(t, 70, remaining, "rejected consume leaves usage unchanged")

	assert.Equal(t, []string{
		entitlement.EventTypeUsageRecorded,
		entitlement.EventTypeFeatureLimitExceeded,
	}, f.recorder.Types())

	recorded := f.recorder.OfType(entitlement.EventTypeUsageRecorded)[0].(*entitlement.UsageRecordedEvent)
	assert.EqualValues(t, 0, recorded.Before)
	assert.EqualValues(t, 30, recorded.After)
	assert.EqualValues(t, 100, recorded.Limit)

	exceeded := f.recorder.OfType(entitlement.EventTypeFeatureLimitExceeded)[0].(*entitlement.FeatureLimitExceededEvent)
	assert.EqualValues(t, 80, exceeded.Requested)
	assert.False(t, exceeded.Allowed)
}

func TestEngine_ConsumeReachingLimit(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.metered(t, "builds", 10, nil)

	ok, err := f.engine.Consume(ctx, f.sub, "builds", 10)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, f.recorder.OfType(entitlement.EventTypeFeatureLimitReached), 1)
	assert.False(t, f.engine.HasAccess(ctx, f.sub, "builds"))
}

func TestEngine_ConcurrentConsumeNeverExceedsLimit(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.metered(t, "credits", 100, nil)

	var succeeded atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			ok, err := f.engine.Consume(gctx, f.sub, "credits", 60)
			if ok {
				succeeded.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, succeeded.Load())

	feature, err := f.store.Features.GetBySlug(ctx, "credits")
	require.NoError(t, err)
	history, err := f.engine.Ledger().History(ctx, f.sub.ID(), feature.ID())
	require.NoError(t, err)
	require.Len(t, history, 1, "exactly one window is created")
	assert.EqualValues(t, 60, history[0].Used())
}

func TestUsageLedger_WindowRoundTrip(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	feature := f.metered(t, "storage", 5, repotest.Int64(25))

	first, err := f.engine.Ledger().GetOrCreateWindow(ctx, f.sub, feature)
	require.NoError(t, err)
	second, err := f.engine.Ledger().GetOrCreateWindow(ctx, f.sub, feature)
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	assert.EqualValues(t, 25, second.Limit())
	assert.EqualValues(t, 0, second.Used())
	assert.Nil(t, second.ValidUntil())
}

func TestUsageLedger_IncrementRejectsNonPositive(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	feature := f.metered(t, "jobs", 5, nil)

	window, err := f.engine.Ledger().GetOrCreateWindow(ctx, f.sub, feature)
	require.NoError(t, err)

	_, _, err = f.engine.Ledger().Increment(ctx, window, 0)
	assert.True(t, errors.IsValidationError(err))
	assert.ErrorIs(t, err, entitlement.ErrInvalidAmount)

	before, after, err := f.engine.Ledger().Increment(ctx, window, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 0, before)
	assert.EqualValues(t, 5, after)

	before, after, err = f.engine.Ledger().Increment(ctx, window, 1)
	assert.ErrorIs(t, err, entitlement.ErrUsageLimitExceeded)
	assert.EqualValues(t, 5, before)
	assert.EqualValues(t, 5, after)
}

func TestUsageLedger_RetryStaysOutsideTransactions(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	deadlock := stderrors.New("Error 1213: Deadlock found when trying to get lock")

	var calls int
	err := f.engine.Ledger().withRetry(ctx, func() error {
		calls++
		return deadlock
	})
	assert.True(t, errors.IsConcurrencyConflictError(err))
	assert.Equal(t, maxLockRetries, calls)

	calls = 0
	err = f.store.Tx.RunInTransaction(ctx, func(txCtx context.Context) error {
		return f.engine.Ledger().withRetry(txCtx, func() error {
			calls++
			return deadlock
		})
	})
	assert.ErrorIs(t, err, deadlock)
	assert.Equal(t, 1, calls, "a statement inside a transaction runs once")
}

// flakyTx fails the first transactions it is asked to run with a deadlock,
// as MySQL does when it picks the transaction as the victim.
type flakyTx struct {
	db.Transactor
	failures int
	runs     int
}

func (f *flakyTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.runs++
	return f.Transactor.RunInTransaction(ctx, func(txCtx context.Context) error {
		if err := fn(txCtx); err != nil {
			return err
		}
		if f.failures > 0 {
			f.failures--
			return stderrors.New("Error 1213: Deadlock found when trying to get lock")
		}
		return nil
	})
}

func TestEngine_ConsumeRetriesWholeTransaction(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.metered(t, "api-calls", 100, nil)

	tx := &flakyTx{Transactor: f.store.Tx, failures: 1}
	engine := NewEngine(f.store.Plans, f.store.Features, f.store.Limits, f.engine.resolver, f.engine.ledger, tx, f.recorder, config.DefaultSubscriptionConfig(), f.store.Logger)

	ok, err := engine.Consume(ctx, f.sub, "api-calls", 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, tx.runs)

	remaining, err := engine.Remaining(ctx, f.sub, "api-calls")
	require.NoError(t, err)
	assert.EqualValues(t, 90, remaining, "the rolled back attempt leaves no usage behind")
	assert.Len(t, f.recorder.OfType(entitlement.EventTypeUsageRecorded), 1)
}

func TestEngine_ResetIsIdempotent(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	feature := f.metered(t, "emails", 100, nil)
	f.metered(t, "sms", 10, nil)

	_, err := f.engine.Consume(ctx, f.sub, "emails", 40)
	require.NoError(t, err)
	_, err = f.engine.Consume(ctx, f.sub, "sms", 3)
	require.NoError(t, err)

	slug := "emails"
	touched, err := f.engine.ResetUsage(ctx, f.sub, &slug)
	require.NoError(t, err)
	assert.EqualValues(t, 1, touched)

	window, err := f.engine.Ledger().CurrentWindow(ctx, f.sub.ID(), feature.ID())
	require.NoError(t, err)
	firstReset := *window.ResetAt()

	touched, err = f.engine.ResetUsage(ctx, f.sub, &slug)
	require.NoError(t, err)
	assert.EqualValues(t, 1, touched)

	window, err = f.engine.Ledger().CurrentWindow(ctx, f.sub.ID(), feature.ID())
	require.NoError(t, err)
	assert.EqualValues(t, 0, window.Used())
	assert.Nil(t, window.ValidUntil())
	assert.False(t, window.ResetAt().Before(firstReset))

	remaining, err := f.engine.Remaining(ctx, f.sub, "sms")
	require.NoError(t, err)
	assert.EqualValues(t, 7, remaining, "resetting one feature leaves the others")

	touched, err = f.engine.ResetUsage(ctx, f.sub, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, touched)

	history, err := f.engine.History(ctx, f.sub, "emails")
	require.NoError(t, err)
	assert.Len(t, history, 1, "reset never opens a new window")
}

func TestEngine_DailyWindowRollsOver(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()

	feature := f.store.Feature(t, "reports", catalogvo.FeatureTypeConsumable, 5, catalogvo.ResetDaily)
	f.store.Include(t, f.plan, feature, nil)
	// never-resetting features are left to the manual reset
	f.metered(t, "projects", 3, nil)

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f.engine.SetClock(func() time.Time { return now })

	ok, err := f.engine.Consume(ctx, f.sub, "reports", 4)
	require.NoError(t, err)
	require.True(t, ok)

	window, err := f.engine.Ledger().CurrentWindow(ctx, f.sub.ID(), feature.ID())
	require.NoError(t, err)
	require.NotNil(t, window.ValidUntil())
	assert.True(t, window.ValidUntil().Equal(time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)))

	opened, err := f.engine.ResetUsageByPeriod(ctx, f.sub)
	require.NoError(t, err)
	assert.Zero(t, opened, "open window is kept")

	now = time.Date(2026, 3, 11, 0, 0, 30, 0, time.UTC)
	window, err = f.engine.Ledger().CurrentWindow(ctx, f.sub.ID(), feature.ID())
	require.NoError(t, err)
	assert.Nil(t, window)

	opened, err = f.engine.ResetUsageByPeriod(ctx, f.sub)
	require.NoError(t, err)
	assert.Equal(t, 1, opened)

	opened, err = f.engine.ResetUsageByPeriod(ctx, f.sub)
	require.NoError(t, err)
	assert.Zero(t, opened)

	window, err = f.engine.Ledger().CurrentWindow(ctx, f.sub.ID(), feature.ID())
	require.NoError(t, err)
	require.NotNil(t, window.ResetAt())
	assert.True(t, window.ResetAt().Equal(now))

	remaining, err := f.engine.Remaining(ctx, f.sub, "reports")
	require.NoError(t, err)
	assert.EqualValues(t, 5, remaining)

	history, err := f.engine.History(ctx, f.sub, "reports")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.EqualValues(t, 0, history[0].Used())
	assert.EqualValues(t, 4, history[1].Used())
}

func TestEngine_OverageWithFee(t *testing.T) {
	cfg := config.DefaultSubscriptionConfig()
	cfg.OveragePolicy = config.OveragePolicyAllowWithFee
	f := newEngineFixture(t, cfg)
	ctx := context.Background()
	f.metered(t, "minutes", 10, nil)

	ok, err := f.engine.Consume(ctx, f.sub, "minutes", 8)
	require.NoError(t, err)
	require.True(t, ok)
	f.recorder.Reset()

	can, err := f.engine.CanConsume(ctx, f.sub, "minutes", 5)
	require.NoError(t, err)
	assert.True(t, can)

	ok, err = f.engine.Consume(ctx, f.sub, "minutes", 5)
	require.NoError(t, err)
	assert.True(t, ok)

	exceeded := f.recorder.OfType(entitlement.EventTypeFeatureLimitExceeded)
	require.Len(t, exceeded, 1)
	assert.True(t, exceeded[0].(*entitlement.FeatureLimitExceededEvent).Allowed)

	recorded := f.recorder.OfType(entitlement.EventTypeUsageRecorded)
	require.Len(t, recorded, 1)
	usage := recorded[0].(*entitlement.UsageRecordedEvent)
	assert.EqualValues(t, 13, usage.After)
	assert.EqualValues(t, 3, usage.Overage)
	assert.InDelta(t, 1.5, usage.OverageFeeMultiplier, 0.0001)

	remaining, err := f.engine.Remaining(ctx, f.sub, "minutes")
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestEngine_SoftCustomLimit(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	feature := f.metered(t, "uploads", 100, nil)

	ok, err := f.engine.Consume(ctx, f.sub, "uploads", 2)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.engine.SetCustomLimit(ctx, f.sub, "uploads", repotest.Int64(5), entitlement.LimitTypeSoft, repotest.Int64(4))
	require.NoError(t, err)

	window, err := f.engine.Ledger().CurrentWindow(ctx, f.sub.ID(), feature.ID())
	require.NoError(t, err)
	assert.EqualValues(t, 5, window.Limit(), "open window adopts the new limit")
	assert.False(t, f.engine.WarningReached(ctx, f.sub, "uploads"))

	ok, err = f.engine.Consume(ctx, f.sub, "uploads", 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, f.engine.WarningReached(ctx, f.sub, "uploads"))

	window, err = f.engine.Ledger().CurrentWindow(ctx, f.sub.ID(), feature.ID())
	require.NoError(t, err)
	assert.EqualValues(t, 7, window.Used())
	assert.EqualValues(t, 2, window.Overage())

	_, err = f.engine.SetCustomLimit(ctx, f.sub, "uploads", repotest.Int64(-1), entitlement.LimitTypeHard, nil)
	assert.True(t, errors.IsValidationError(err))
}

func TestEngine_BooleanFeature(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()

	sso := f.store.Feature(t, "sso", catalogvo.FeatureTypeBoolean, 1, catalogvo.ResetNever)
	f.store.Include(t, f.plan, sso, nil)
	f.store.Feature(t, "audit-log", catalogvo.FeatureTypeBoolean, 1, catalogvo.ResetNever)

	assert.True(t, f.engine.HasAccess(ctx, f.sub, "sso"))
	assert.False(t, f.engine.HasAccess(ctx, f.sub, "audit-log"))
	assert.False(t, f.engine.HasAccess(ctx, f.sub, "unknown"))

	remaining, err := f.engine.Remaining(ctx, f.sub, "sso")
	require.NoError(t, err)
	assert.EqualValues(t, 1, remaining)
	remaining, err = f.engine.Remaining(ctx, f.sub, "audit-log")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	ok, err := f.engine.Consume(ctx, f.sub, "sso", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := f.engine.History(ctx, f.sub, "sso")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.recorder.Events(), "boolean consumption is not recorded")

	f.sub.Cancel(true, time.Now().UTC())
	require.NoError(t, f.store.Subscriptions.Update(ctx, f.sub))

	assert.False(t, f.engine.HasAccess(ctx, f.sub, "sso"))
	remaining, err = f.engine.Remaining(ctx, f.sub, "sso")
	require.NoError(t, err)
	assert.Zero(t, remaining, "cancelled subscriptions keep no boolean access")
}

func TestEngine_ConsumeFeatureNotInPlan(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.store.Feature(t, "audit-log", catalogvo.FeatureTypeBoolean, 1, catalogvo.ResetNever)
	f.store.Feature(t, "exports", catalogvo.FeatureTypeConsumable, 10, catalogvo.ResetNever)

	for _, slug := range []string{"audit-log", "exports"} {
		ok, err := f.engine.Consume(ctx, f.sub, slug, 2)
		require.NoError(t, err)
		assert.False(t, ok, slug)
	}

	exceeded := f.recorder.OfType(entitlement.EventTypeFeatureLimitExceeded)
	require.Len(t, exceeded, 2)
	event := exceeded[1].(*entitlement.FeatureLimitExceededEvent)
	assert.Equal(t, "exports", event.Feature.Slug)
	assert.EqualValues(t, 2, event.Requested)
	assert.Zero(t, event.Limit, "a feature outside the plan grants nothing")
	assert.False(t, event.Allowed)

	history, err := f.engine.History(ctx, f.sub, "exports")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEngine_InvalidInput(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.metered(t, "api-calls", 100, nil)

	_, err := f.engine.Consume(ctx, f.sub, "api-calls", 0)
	assert.True(t, errors.IsValidationError(err))
	assert.ErrorIs(t, err, entitlement.ErrInvalidAmount)

	_, err = f.engine.CanConsume(ctx, f.sub, "api-calls", -3)
	assert.True(t, errors.IsValidationError(err))

	_, err = f.engine.Consume(ctx, nil, "api-calls", 1)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = f.engine.Consume(ctx, f.sub, "missing", 1)
	assert.True(t, errors.IsNotFoundError(err))

	assert.False(t, f.engine.HasAccess(ctx, nil, "api-calls"))
}

func TestEngine_UnusableSubscriptionIsDenied(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.metered(t, "api-calls", 100, nil)

	require.NoError(t, f.sub.Pause(time.Now().UTC()))
	require.NoError(t, f.store.Subscriptions.Update(ctx, f.sub))

	assert.False(t, f.engine.HasAccess(ctx, f.sub, "api-calls"))
	can, err := f.engine.CanConsume(ctx, f.sub, "api-calls", 1)
	require.NoError(t, err)
	assert.False(t, can)

	ok, err := f.engine.Consume(ctx, f.sub, "api-calls", 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{entitlement.EventTypeFeatureLimitExceeded}, f.recorder.Types())

	event := f.recorder.Events()[0].(*entitlement.FeatureLimitExceededEvent)
	assert.Equal(t, "api-calls", event.Feature.Slug)
	assert.EqualValues(t, 1, event.Requested)
	assert.EqualValues(t, 100, event.Limit)

	history, err := f.engine.History(ctx, f.sub, "api-calls")
	require.NoError(t, err)
	assert.Empty(t, history, "a refused consume opens no window")
}

func TestEngine_ConsumeOnCancelledSubscription(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.metered(t, "api-calls", 100, nil)

	ok, err := f.engine.Consume(ctx, f.sub, "api-calls", 10)
	require.NoError(t, err)
	require.True(t, ok)
	f.recorder.Reset()

	f.sub.Cancel(true, time.Now().UTC())
	require.NoError(t, f.store.Subscriptions.Update(ctx, f.sub))

	ok, err = f.engine.Consume(ctx, f.sub, "api-calls", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.Equal(t, []string{entitlement.EventTypeFeatureLimitExceeded}, f.recorder.Types())
	event := f.recorder.Events()[0].(*entitlement.FeatureLimitExceededEvent)
	assert.EqualValues(t, 10, event.Used)
	assert.EqualValues(t, 100, event.Limit)

	remaining, err := f.engine.Remaining(ctx, f.sub, "api-calls")
	require.NoError(t, err)
	assert.EqualValues(t, 90, remaining)
}

func TestEngine_Summary(t *testing.T) {
	f := newEngineFixture(t, config.DefaultSubscriptionConfig())
	ctx := context.Background()
	f.metered(t, "api-calls", 100, repotest.Int64(50))
	sso := f.store.Feature(t, "sso", catalogvo.FeatureTypeBoolean, 1, catalogvo.ResetNever)
	f.store.Include(t, f.plan, sso, nil)

	_, err := f.engine.Consume(ctx, f.sub, "api-calls", 20)
	require.NoError(t, err)

	summary, err := f.engine.Summary(ctx, f.sub)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	bySlug := map[string]FeatureSummary{}
	for _, s := range summary {
		bySlug[s.Slug] = s
	}
	assert.EqualValues(t, 50, bySlug["api-calls"].Limit)
	assert.EqualValues(t, 20, bySlug["api-calls"].Used)
	assert.EqualValues(t, 30, bySlug["api-calls"].Remaining)
	assert.True(t, bySlug["sso"].HasAccess)
	assert.EqualValues(t, 1, bySlug["sso"].Remaining)
}
