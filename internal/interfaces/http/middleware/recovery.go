package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/orris-inc/entitlements/internal/shared/constants"
	"github.com/orris-inc/entitlements/internal/shared/logger"
	"github.com/orris-inc/entitlements/internal/shared/utils"
)

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
}

// Recovery turns a handler panic into a 500 response. A panic caused by the
// client hanging up is logged and the request is dropped.
func Recovery(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			if err, ok := recovered.(error); ok && isClientGone(err) {
				log.Warnw("client disconnected during request",
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
					"error", err)
				c.Abort()
				return
			}

			log.Errorw("panic recovered",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"headers", safeHeaders(c.Request.Header),
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()))

			if c.Writer.Written() {
				c.Abort()
				return
			}
			utils.ErrorResponse(c, http.StatusInternalServerError, constants.ErrMsgInternalServerError)
			c.Abort()
		}()
		c.Next()
	}
}

func isClientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}

func safeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if redactedHeaders[k] {
			out[k] = "*"
			continue
		}
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// ErrorHandler writes the last error a handler attached with c.Error when
// the handler did not write a response itself.
func ErrorHandler(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		log.Errorw("request failed",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", last.Err)

		if !c.Writer.Written() {
			utils.ErrorResponseWithError(c, last.Err)
		}
	}
}
