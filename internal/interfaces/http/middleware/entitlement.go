package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	appsubscription "github.com/orris-inc/entitlements/internal/application/subscription"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/constants"
	"github.com/orris-inc/entitlements/internal/shared/logger"
	"github.com/orris-inc/entitlements/internal/shared/utils"
)

// SubscriberResolver finds the subscriber a request acts for.
type SubscriberResolver func(c *gin.Context) (subscription.SubscriberRef, bool)

// SubscriberFromContext reads the reference an authentication middleware
// stored under constants.ContextKeySubscriber, falling back to the :type and
// :id route parameters.
func SubscriberFromContext(c *gin.Context) (subscription.SubscriberRef, bool) {
	if value, exists := c.Get(constants.ContextKeySubscriber); exists {
		ref, ok := value.(subscription.SubscriberRef)
		return ref, ok && ref.Validate() == nil
	}
	ref, err := subscription.NewSubscriberRef(c.Param("type"), c.Param("id"))
	return ref, err == nil
}

// EntitlementMiddleware gates routes on the subscriber's current subscription.
// Every guard takes an optional slot name. Without one the slot comes from the
// :name route parameter, then the "subscription" query parameter, then the
// default slot.
type EntitlementMiddleware struct {
	subscribers *appsubscription.Subscribers
	resolve     SubscriberResolver
	logger      logger.Interface
}

func NewEntitlementMiddleware(
	subscribers *appsubscription.Subscribers,
	resolve SubscriberResolver,
	logger logger.Interface,
) *EntitlementMiddleware {
	if resolve == nil {
		resolve = SubscriberFromContext
	}
	return &EntitlementMiddleware{
		subscribers: subscribers,
		resolve:     resolve,
		logger:      logger,
	}
}

func slotName(c *gin.Context, name []string) string {
	if len(name) > 0 && name[0] != "" {
		return name[0]
	}
	if slot := c.Param("name"); slot != "" {
		return slot
	}
	if slot := c.Query("subscription"); slot != "" {
		return slot
	}
	return constants.DefaultSubscriptionName
}

// guard runs check for the resolved subscriber and aborts with 403 and
// message when it fails.
func (m *EntitlementMiddleware) guard(message string, check func(c *gin.Context, owner subscription.SubscriberRef, slot string) bool, name []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := m.resolve(c)
		if !ok {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Unauthenticated.")
			c.Abort()
			return
		}

		slot := slotName(c, name)
		if !check(c, owner, slot) {
			m.logger.Warnw("entitlement check denied request",
				"subscriber", owner.String(),
				"subscription", slot,
				"path", c.Request.URL.Path,
				"reason", message,
			)
			utils.ErrorResponse(c, http.StatusForbidden, message)
			c.Abort()
			return
		}

		c.Set(constants.ContextKeySubscriber, owner)
		c.Next()
	}
}

func (m *EntitlementMiddleware) RequireFeature(feature string, name ...string) gin.HandlerFunc {
	return m.guard("You do not have access to this feature.", func(c *gin.Context, owner subscription.SubscriberRef, slot string) bool {
		return m.subscribers.HasFeature(c.Request.Context(), owner, feature, slot)
	}, name)
}

func (m *EntitlementMiddleware) RequireModule(module string, name ...string) gin.HandlerFunc {
	return m.guard("You do not have access to this module.", func(c *gin.Context, owner subscription.SubscriberRef, slot string) bool {
		return m.subscribers.HasModule(c.Request.Context(), owner, module, slot)
	}, name)
}

func (m *EntitlementMiddleware) RequireActiveSubscription(name ...string) gin.HandlerFunc {
	return m.guard("Active subscription required.", func(c *gin.Context, owner subscription.SubscriberRef, slot string) bool {
		return m.subscribers.Active(c.Request.Context(), owner, slot)
	}, name)
}

func (m *EntitlementMiddleware) RequireNotCancelled(name ...string) gin.HandlerFunc {
	return m.guard("Subscription has been cancelled.", func(c *gin.Context, owner subscription.SubscriberRef, slot string) bool {
		return !m.subscribers.Cancelled(c.Request.Context(), owner, slot)
	}, name)
}

// RequireNotExpired lets subscribers without a subscription through; it only
// rejects a subscription that has expired.
func (m *EntitlementMiddleware) RequireNotExpired(name ...string) gin.HandlerFunc {
	return m.guard("Subscription has expired.", func(c *gin.Context, owner subscription.SubscriberRef, slot string) bool {
		return !m.subscribers.Expired(c.Request.Context(), owner, slot)
	}, name)
}

// ConsumeFeature meters the route: each request consumes amount of the
// feature and is rejected with 429 once the limit is reached.
func (m *EntitlementMiddleware) ConsumeFeature(feature string, amount int64, name ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := m.resolve(c)
		if !ok {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Unauthenticated.")
			c.Abort()
			return
		}

		consumed, err := m.subscribers.ConsumeFeature(c.Request.Context(), owner, feature, amount, slotName(c, name))
		if err != nil {
			m.logger.Errorw("failed to consume feature",
				"subscriber", owner.String(),
				"feature", feature,
				"error", err,
			)
			utils.ErrorResponseWithError(c, err)
			c.Abort()
			return
		}
		if !consumed {
			utils.ErrorResponse(c, http.StatusTooManyRequests, fmt.Sprintf("usage limit reached for feature: %s", feature))
			c.Abort()
			return
		}

		c.Set(constants.ContextKeySubscriber, owner)
		c.Next()
	}
}
