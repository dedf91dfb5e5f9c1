// Package routes provides HTTP route configurations.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/orris-inc/entitlements/internal/interfaces/http/handlers"
	"github.com/orris-inc/entitlements/internal/interfaces/http/middleware"
)

// SubscriberRouteConfig contains dependencies for subscriber-scoped routes.
type SubscriberRouteConfig struct {
	SubscriberHandler     *handlers.SubscriberHandler
	EntitlementMiddleware *middleware.EntitlementMiddleware
}

// SetupSubscriberRoutes configures /subscribers/:type/:id/*.
// :type is the subscriber kind ("user", "team", ...), :id its key and :name a
// subscription slot.
func SetupSubscriberRoutes(api *gin.RouterGroup, cfg *SubscriberRouteConfig) {
	subscriber := api.Group("/subscribers/:type/:id")
	{
		subscriptions := subscriber.Group("/subscriptions")
		{
			subscriptions.GET("", cfg.SubscriberHandler.ListSubscriptions)
			subscriptions.POST("", cfg.SubscriberHandler.CreateSubscription)

			slot := subscriptions.Group("/:name")
			slot.GET("", cfg.SubscriberHandler.GetSubscription)
			slot.GET("/changes", cfg.SubscriberHandler.ListChanges)
			slot.POST("/cancel", cfg.SubscriberHandler.CancelSubscription)
			slot.POST("/resume", cfg.SubscriberHandler.ResumeSubscription)
			slot.POST("/change-plan",
				cfg.EntitlementMiddleware.RequireNotExpired(),
				cfg.SubscriberHandler.ChangePlan,
			)
		}

		features := subscriber.Group("/features")
		{
			features.GET("", cfg.SubscriberHandler.ListFeatures)
			features.GET("/:feature", cfg.SubscriberHandler.GetFeature)
			features.GET("/:feature/history", cfg.SubscriberHandler.FeatureHistory)
			features.POST("/:feature/consume",
				cfg.EntitlementMiddleware.RequireNotExpired(),
				cfg.SubscriberHandler.ConsumeFeature,
			)
		}

		modules := subscriber.Group("/modules")
		{
			modules.GET("", cfg.SubscriberHandler.ListModules)
			modules.GET("/:module", cfg.SubscriberHandler.GetModule)
		}
	}
}

// PlanRouteConfig contains dependencies for catalog routes.
type PlanRouteConfig struct {
	PlanHandler *handlers.PlanHandler
}

// SetupPlanRoutes configures /plans.
func SetupPlanRoutes(api *gin.RouterGroup, cfg *PlanRouteConfig) {
	plans := api.Group("/plans")
	{
		plans.GET("", cfg.PlanHandler.ListPlans)
		plans.GET("/:slug", cfg.PlanHandler.GetPlan)
	}
}
