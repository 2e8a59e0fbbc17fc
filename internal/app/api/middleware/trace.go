package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fatflowers/billsync/pkg/logctx"
	"github.com/fatflowers/billsync/pkg/tool"
)

// HeaderRequestID carries the trace id in both directions.
const HeaderRequestID = "X-Request-ID"

// TraceMiddleware adds a trace ID to the request context.
// It reads X-Request-ID if provided by the client; otherwise generates a UUID.
// The trace ID is stored in both gin.Context and the request's context.Context.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(HeaderRequestID)
		if traceID == "" || len(traceID) > 128 {
			traceID = tool.NewTraceID()
		}

		c.Set(logctx.GinKeyTraceID, traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Writer.Header().Set(HeaderRequestID, traceID)
		c.Next()
	}
}
