package http

import (
	"context"

	"github.com/redis/go-redis/v9"

	appcatalog "github.com/orris-inc/entitlements/internal/application/catalog"
	appentitlement "github.com/orris-inc/entitlements/internal/application/entitlement"
	"github.com/orris-inc/entitlements/internal/application/module"
	appsubscription "github.com/orris-inc/entitlements/internal/application/subscription"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/infrastructure/config"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// services holds the application services built on top of the repositories.
type services struct {
	resolver    *appentitlement.LimitResolver
	ledger      *appentitlement.UsageLedger
	engine      *appentitlement.Engine
	modules     *module.ActivationManager
	lifecycle   *appsubscription.LifecycleManager
	subscribers *appsubscription.Subscribers
	importer    *appcatalog.Importer
}

func newServices(repos *repositories, publisher events.EventPublisher, cfg *config.Config, log logger.Interface) *services {
	resolver := appentitlement.NewLimitResolver(repos.planRepo, repos.featureRepo, repos.limitRepo, log.Named("resolver"))
	ledger := appentitlement.NewUsageLedger(repos.usageRepo, resolver, log.Named("ledger"))
	engine := appentitlement.NewEngine(
		repos.planRepo,
		repos.featureRepo,
		repos.limitRepo,
		resolver,
		ledger,
		repos.txManager,
		publisher,
		cfg.Subscription,
		log.Named("entitlement"),
	)
	modules := module.NewActivationManager(
		repos.planRepo,
		repos.moduleRepo,
		repos.featureRepo,
		repos.moduleActivationRepo,
		repos.txManager,
		publisher,
		log.Named("module"),
	)
	lifecycle := appsubscription.NewLifecycleManager(
		repos.subscriptionRepo,
		repos.changeRepo,
		repos.planRepo,
		repos.usageRepo,
		modules,
		engine,
		repos.txManager,
		publisher,
		cfg.Subscription,
		log.Named("subscription"),
	)

	return &services{
		resolver:    resolver,
		ledger:      ledger,
		engine:      engine,
		modules:     modules,
		lifecycle:   lifecycle,
		subscribers: appsubscription.NewSubscribers(lifecycle, engine, modules),
		importer: appcatalog.NewImporter(
			repos.planRepo,
			repos.featureRepo,
			repos.moduleRepo,
			repos.txManager,
			appcatalog.DefaultsFromConfig(cfg.Subscription),
			log.Named("catalog"),
		),
	}
}

// ConnectRedis creates the Redis client and checks the connection.
func ConnectRedis(cfg *config.Config, log logger.Interface) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	log.Infow("redis connection established", "address", cfg.Redis.GetAddr())

	return redisClient, nil
}
