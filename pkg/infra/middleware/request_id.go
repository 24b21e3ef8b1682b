package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	mwopts "github.com/kart-io/cyplan/pkg/options/middleware"
	"github.com/kart-io/cyplan/pkg/utils/id"
)

// ContextKeyRequestID is the gin context key holding the request id.
const ContextKeyRequestID = "request_id"

type requestIDKey struct{}

// RequestID propagates the request id header, generating one when absent.
// The id is stored in the gin context, the request context and the response
// header.
func RequestID(opts mwopts.RequestIDOptions) gin.HandlerFunc {
	header := opts.Header
	if header == "" {
		header = "X-Request-ID"
	}
	generate := func() string { return id.NewHex(16) }
	if opts.GeneratorType == "ulid" {
		generate = id.NewULID
	}

	return func(c *gin.Context) {
		rid := c.GetHeader(header)
		if rid == "" {
			rid = generate()
		}
		c.Header(header, rid)
		c.Set(ContextKeyRequestID, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), requestIDKey{}, rid))
		c.Next()
	}
}

// RequestIDFromContext returns the request id stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey{}).(string)
	return rid
}
