// Package repotest wires every repository against a private SQLite database
// and offers catalog builders for tests of the application layer.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	catalogvo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/testdb"
	"github.com/orris-inc/entitlements/internal/infrastructure/repository"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

type Store struct {
	DB            *gorm.DB
	Tx            *db.TransactionManager
	Plans         catalog.PlanRepository
	Features      catalog.FeatureRepository
	Modules       catalog.ModuleRepository
	Subscriptions subscription.Repository
	Changes       subscription.ChangeRepository
	Usage         entitlement.UsageRepository
	Limits        entitlement.LimitRepository
	Activations   entitlement.ModuleActivationRepository
	Logger        logger.Interface
}

func New(t testing.TB) *Store {
	gdb := testdb.New(t)
	log := logger.NewNop()
	return &Store{
		DB:            gdb,
		Tx:            db.NewTransactionManager(gdb),
		Plans:         repository.NewPlanRepository(gdb, log),
		Features:      repository.NewFeatureRepository(gdb, log),
		Modules:       repository.NewModuleRepository(gdb, log),
		Subscriptions: repository.NewSubscriptionRepository(gdb, log),
		Changes:       repository.NewSubscriptionChangeRepository(gdb, log),
		Usage:         repository.NewUsageRepository(gdb, log),
		Limits:        repository.NewLimitRepository(gdb, log),
		Activations:   repository.NewModuleActivationRepository(gdb, log),
		Logger:        log,
	}
}

// Plan creates a monthly plan.
func (s *Store) Plan(t testing.TB, slug, price string, trialDays int) *catalog.Plan {
	t.Helper()
	return s.PlanWith(t, catalog.PlanParams{
		Name:      slug,
		Slug:      slug,
		Price:     decimal.RequireFromString(price),
		Currency:  "USD",
		Interval:  catalogvo.IntervalMonthly,
		TrialDays: trialDays,
	})
}

// PlanWith stores a plan built from params.
func (s *Store) PlanWith(t testing.TB, params catalog.PlanParams) *catalog.Plan {
	t.Helper()
	plan, err := catalog.NewPlan(params)
	require.NoError(t, err)
	require.NoError(t, s.Plans.Create(context.Background(), plan))
	return plan
}

func (s *Store) Feature(t testing.TB, slug string, featureType catalogvo.FeatureType, defaultValue int64, reset catalogvo.ResetPeriod) *catalog.Feature {
	t.Helper()
	feature, err := catalog.NewFeature(catalog.FeatureParams{
		Name:         slug,
		Slug:         slug,
		Type:         featureType,
		DefaultValue: defaultValue,
		ResetPeriod:  reset,
	})
	require.NoError(t, err)
	require.NoError(t, s.Features.Create(context.Background(), feature))
	return feature
}

func (s *Store) Module(t testing.TB, slug string, parentID *uint) *catalog.Module {
	t.Helper()
	module, err := catalog.NewModule(catalog.ModuleParams{Name: slug, Slug: slug, ParentID: parentID})
	require.NoError(t, err)
	require.NoError(t, s.Modules.Create(context.Background(), module))
	return module
}

// Include links a feature to a plan. A nil value defers to the feature default.
func (s *Store) Include(t testing.TB, plan *catalog.Plan, feature *catalog.Feature, value *int64) {
	t.Helper()
	require.NoError(t, s.Plans.UpsertFeature(context.Background(), &catalog.PlanFeature{
		PlanID:    plan.ID(),
		FeatureID: feature.ID(),
		Value:     value,
	}))
}

// Enable makes a module available on a plan.
func (s *Store) Enable(t testing.TB, plan *catalog.Plan, module *catalog.Module) {
	t.Helper()
	require.NoError(t, s.Plans.UpsertModule(context.Background(), &catalog.PlanModule{
		PlanID:    plan.ID(),
		ModuleID:  module.ID(),
		IsEnabled: true,
	}))
}

// Subscribe stores a subscription for user:<id> on plan, starting at now.
func (s *Store) Subscribe(t testing.TB, subscriberID string, plan *catalog.Plan, trialDays int, now time.Time) *subscription.Subscription {
	t.Helper()
	end := plan.PeriodEnd(now)
	sub, err := subscription.NewSubscription(
		subscription.SubscriberRef{Type: "user", ID: subscriberID},
		plan.ID(), "", trialDays, now, &end, now,
	)
	require.NoError(t, err)
	require.NoError(t, s.Subscriptions.Create(context.Background(), sub))
	return sub
}

func Int64(v int64) *int64 {
	return &v
}
