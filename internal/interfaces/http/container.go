package http

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	appcatalog "github.com/orris-inc/entitlements/internal/application/catalog"
	appentitlement "github.com/orris-inc/entitlements/internal/application/entitlement"
	appsubscription "github.com/orris-inc/entitlements/internal/application/subscription"
	"github.com/orris-inc/entitlements/internal/domain/shared/events"
	"github.com/orris-inc/entitlements/internal/infrastructure/config"
	"github.com/orris-inc/entitlements/internal/infrastructure/pubsub"
	"github.com/orris-inc/entitlements/internal/infrastructure/scheduler"
	"github.com/orris-inc/entitlements/internal/interfaces/http/handlers"
	"github.com/orris-inc/entitlements/internal/interfaces/http/middleware"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

const eventBufferSize = 256

// Container holds the infrastructure components, repositories, services,
// handlers and background jobs, and wires them together. Shutdown releases
// them in reverse order.
type Container struct {
	// Core infrastructure
	engine *gin.Engine
	db     *gorm.DB
	cfg    *config.Config
	log    logger.Interface
	redis  *redis.Client

	// Events
	dispatcher *events.InMemoryEventDispatcher
	eventBus   *pubsub.RedisEventBus

	repos *repositories
	svcs  *services

	// Handlers and middleware
	subscriberHandler     *handlers.SubscriberHandler
	planHandler           *handlers.PlanHandler
	entitlementMiddleware *middleware.EntitlementMiddleware

	scheduler *scheduler.SchedulerManager
}

// NewContainer wires the application. redisClient may be nil, in which case
// domain events stay in-process.
func NewContainer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, log logger.Interface) (*Container, error) {
	c := &Container{
		db:    db,
		cfg:   cfg,
		log:   log,
		redis: redisClient,
	}

	// Section 1: Events - dispatcher, optional Redis fan-out
	c.initEvents()

	// Section 2: Repositories and services
	c.repos = newRepositories(db, log)
	c.svcs = newServices(c.repos, c.dispatcher, cfg, log)

	// Section 3: Handlers and middleware
	c.subscriberHandler = handlers.NewSubscriberHandler(c.svcs.lifecycle, c.svcs.engine, c.svcs.modules, log.Named("http"))
	c.planHandler = handlers.NewPlanHandler(c.repos.planRepo, c.repos.featureRepo, c.repos.moduleRepo, log.Named("http"))
	c.entitlementMiddleware = middleware.NewEntitlementMiddleware(c.svcs.subscribers, nil, log.Named("http"))

	// Section 4: Scheduled jobs
	if err := c.initScheduler(); err != nil {
		return nil, err
	}

	c.engine = c.newEngine()
	return c, nil
}

func (c *Container) initEvents() {
	c.dispatcher = events.NewInMemoryEventDispatcher(eventBufferSize, c.log.Named("events"))
	if c.redis == nil {
		return
	}
	c.eventBus = pubsub.NewRedisEventBus(c.redis, c.cfg.Redis.Channel, c.log.Named("eventbus"))
	if err := c.dispatcher.Subscribe(events.AllEvents, c.eventBus); err != nil {
		c.log.Warnw("failed to register redis event bus", "error", err)
		c.eventBus = nil
	}
}

func (c *Container) initScheduler() error {
	manager, err := scheduler.NewSchedulerManager(c.log.Named("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	resetJob := scheduler.NewUsageResetJob(c.repos.subscriptionRepo, c.svcs.engine, c.log.Named("usage-reset"))
	if err := manager.RegisterUsageResetJob(c.cfg.Subscription.UsageResetSchedule, resetJob); err != nil {
		return fmt.Errorf("failed to register usage reset job: %w", err)
	}

	lifecycle := c.svcs.lifecycle
	if err := manager.RegisterLifecycleJobs(
		scheduler.BatchJobFunc(lifecycle.ApplyDueChanges),
		scheduler.BatchJobFunc(lifecycle.EndTrials),
		scheduler.BatchJobFunc(lifecycle.ExpireDue),
	); err != nil {
		return fmt.Errorf("failed to register lifecycle jobs: %w", err)
	}

	if c.cfg.Subscription.TrialEndingNotificationDays > 0 {
		reminder := scheduler.NewTrialReminderJob(lifecycle, c.log.Named("trial-reminder"))
		if err := manager.RegisterTrialReminderJob(reminder); err != nil {
			return fmt.Errorf("failed to register trial reminder job: %w", err)
		}
	}

	c.scheduler = manager
	return nil
}

// Start begins event delivery. Scheduled jobs start only when withJobs is set,
// so several API replicas can share one worker.
func (c *Container) Start(withJobs bool) error {
	if err := c.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start event dispatcher: %w", err)
	}
	if withJobs {
		c.scheduler.Start()
	}
	return nil
}

// Shutdown stops the scheduler first so no job runs against a closing
// dispatcher, then drains the dispatcher.
func (c *Container) Shutdown(ctx context.Context) {
	if err := c.scheduler.Stop(); err != nil {
		c.log.Errorw("failed to stop scheduler", "error", err)
	}
	if err := c.dispatcher.Stop(); err != nil {
		c.log.Warnw("failed to stop event dispatcher", "error", err)
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Warnw("failed to close redis client", "error", err)
		}
	}
	if ctx.Err() != nil {
		c.log.Warnw("shutdown deadline exceeded", "error", ctx.Err())
	}
}

// RunMaintenance runs every maintenance job once, in scheduler order, and
// returns how many items each one processed.
func (c *Container) RunMaintenance(ctx context.Context) (map[string]int, error) {
	lifecycle := c.svcs.lifecycle
	jobs := []struct {
		name string
		job  scheduler.BatchJob
	}{
		{"plan-changes", scheduler.BatchJobFunc(lifecycle.ApplyDueChanges)},
		{"trial-end", scheduler.BatchJobFunc(lifecycle.EndTrials)},
		{"subscription-expire", scheduler.BatchJobFunc(lifecycle.ExpireDue)},
		{"usage-reset", scheduler.NewUsageResetJob(c.repos.subscriptionRepo, c.svcs.engine, c.log.Named("usage-reset"))},
	}

	processed := make(map[string]int, len(jobs))
	for _, j := range jobs {
		n, err := j.job.Execute(ctx)
		processed[j.name] = n
		if err != nil {
			return processed, fmt.Errorf("%s: %w", j.name, err)
		}
	}
	return processed, nil
}

func (c *Container) Router() *gin.Engine {
	return c.engine
}

func (c *Container) Lifecycle() *appsubscription.LifecycleManager {
	return c.svcs.lifecycle
}

func (c *Container) Engine() *appentitlement.Engine {
	return c.svcs.engine
}

func (c *Container) Subscribers() *appsubscription.Subscribers {
	return c.svcs.subscribers
}

func (c *Container) Importer() *appcatalog.Importer {
	return c.svcs.importer
}

func (c *Container) Dispatcher() *events.InMemoryEventDispatcher {
	return c.dispatcher
}

func (c *Container) Scheduler() *scheduler.SchedulerManager {
	return c.scheduler
}
