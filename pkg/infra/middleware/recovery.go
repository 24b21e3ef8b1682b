// Package middleware provides the gin middleware chain of CyPlan HTTP servers.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	mwopts "github.com/kart-io/cyplan/pkg/options/middleware"
	"github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/response"
)

// Recovery converts panics into ErrPanic envelopes and logs the stack.
func Recovery(opts mwopts.RecoveryOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			logger.Errorw("panic recovered",
				"panic", r,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"request_id", c.GetString(ContextKeyRequestID),
				"stack", string(stack),
			)

			msg := fmt.Sprintf("panic: %v", r)
			if opts.EnableStackTrace {
				msg += "\n" + string(stack)
			}
			if c.Writer.Written() {
				c.Abort()
				return
			}
			resp := response.Err(errors.ErrPanic.WithMessage(msg)).WithRequestID(c.GetString(ContextKeyRequestID))
			c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
		}()
		c.Next()
	}
}
