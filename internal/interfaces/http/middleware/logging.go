package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/shared/constants"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

// RequestLogger tags each request with an X-Request-ID (kept when the client
// sent one) and logs it once finished. 5xx log as errors, 4xx as warnings.
func RequestLogger(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(constants.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(constants.HeaderXRequestID, requestID)

		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if v, ok := c.Get(constants.ContextKeySubscriber); ok {
			if ref, ok := v.(subscription.SubscriberRef); ok {
				fields = append(fields, "subscriber_type", ref.Type, "subscriber_id", ref.ID)
			}
		}

		switch {
		case status >= 500:
			log.Errorw("request completed", fields...)
		case status >= 400:
			log.Warnw("request completed", fields...)
		default:
			log.Debugw("request completed", fields...)
		}
	}
}
