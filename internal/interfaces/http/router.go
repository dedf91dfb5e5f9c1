// Package http wires the entitlement services behind a gin router.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/entitlements/internal/interfaces/http/middleware"
	"github.com/orris-inc/entitlements/internal/interfaces/http/routes"
	"github.com/orris-inc/entitlements/internal/shared/biztime"
	"github.com/orris-inc/entitlements/internal/shared/utils"
)

func (c *Container) newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(middleware.Recovery(c.log))
	engine.Use(middleware.RequestLogger(c.log.Named("http")))
	engine.Use(middleware.CORS(c.cfg.Server.AllowedOrigins))
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.ErrorHandler(c.log))

	engine.GET("/health", c.health)

	api := engine.Group("/api/v1")
	routes.SetupSubscriberRoutes(api, &routes.SubscriberRouteConfig{
		SubscriberHandler:     c.subscriberHandler,
		EntitlementMiddleware: c.entitlementMiddleware,
	})
	routes.SetupPlanRoutes(api, &routes.PlanRouteConfig{
		PlanHandler: c.planHandler,
	})

	return engine
}

// health reports whether the database answers.
func (c *Container) health(ctx *gin.Context) {
	sqlDB, err := c.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx.Request.Context())
	}
	if err != nil {
		c.log.Errorw("health check failed", "error", err)
		utils.ErrorResponse(ctx, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	utils.SuccessResponse(ctx, http.StatusOK, "", gin.H{
		"status": "ok",
		"time":   biztime.NowUTC(),
	})
}
