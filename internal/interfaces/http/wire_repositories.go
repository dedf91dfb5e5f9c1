package http

import (
	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/domain/catalog"
	"github.com/orris-inc/entitlements/internal/domain/entitlement"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/infrastructure/repository"
	"github.com/orris-inc/entitlements/internal/shared/db"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// repositories holds all repository instances used by the container.
type repositories struct {
	planRepo             catalog.PlanRepository
	featureRepo          catalog.FeatureRepository
	moduleRepo           catalog.ModuleRepository
	subscriptionRepo     subscription.Repository
	changeRepo           subscription.ChangeRepository
	usageRepo            entitlement.UsageRepository
	limitRepo            entitlement.LimitRepository
	moduleActivationRepo entitlement.ModuleActivationRepository

	txManager *db.TransactionManager
}

// newRepositories creates all repository instances from the database connection.
func newRepositories(gdb *gorm.DB, log logger.Interface) *repositories {
	return &repositories{
		planRepo:             repository.NewPlanRepository(gdb, log),
		featureRepo:          repository.NewFeatureRepository(gdb, log),
		moduleRepo:           repository.NewModuleRepository(gdb, log),
		subscriptionRepo:     repository.NewSubscriptionRepository(gdb, log),
		changeRepo:           repository.NewSubscriptionChangeRepository(gdb, log),
		usageRepo:            repository.NewUsageRepository(gdb, log),
		limitRepo:            repository.NewLimitRepository(gdb, log),
		moduleActivationRepo: repository.NewModuleActivationRepository(gdb, log),
		txManager:            db.NewTransactionManager(gdb),
	}
}
