package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/cyplan/pkg/options/middleware"
)

// CORS adds CORS headers for allowed origins and answers preflight requests
// with 204. Options must have passed Validate.
func CORS(opts mwopts.CORSOptions) gin.HandlerFunc {
	def := mwopts.NewCORSOptions()
	if len(opts.AllowMethods) == 0 {
		opts.AllowMethods = def.AllowMethods
	}
	if len(opts.AllowHeaders) == 0 {
		opts.AllowHeaders = def.AllowHeaders
	}
	if opts.MaxAge == 0 {
		opts.MaxAge = def.MaxAge
	}

	allowMethods := strings.Join(opts.AllowMethods, ", ")
	allowHeaders := strings.Join(opts.AllowHeaders, ", ")
	exposeHeaders := strings.Join(opts.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(opts.MaxAge)

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := ""
		for _, o := range opts.AllowOrigins {
			if o == "*" || o == origin {
				allowed = o
				break
			}
		}
		if origin == "" || allowed == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowed)
		if allowed != "*" {
			c.Header("Vary", "Origin")
		}
		if opts.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if exposeHeaders != "" {
			c.Header("Access-Control-Expose-Headers", exposeHeaders)
		}

		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", allowMethods)
			c.Header("Access-Control-Allow-Headers", allowHeaders)
			c.Header("Access-Control-Max-Age", maxAge)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
