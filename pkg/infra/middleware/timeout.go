package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/cyplan/pkg/options/middleware"
)

// Timeout puts a deadline on the request context. Handlers observe it
// through ctx; nothing is written on their behalf. Paths under a skipped
// prefix keep the unbounded context.
func Timeout(opts mwopts.TimeoutOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Timeout <= 0 || hasPrefix(c.Request.URL.Path, opts.SkipPrefixes) {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.Timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
