package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestIDMiddleware propagates an inbound request ID or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// loggerMiddleware logs one line per request.
func loggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString("request_id"),
		}
		if len(c.Errors) > 0 {
			logger.Warn("http request with errors", append(attrs, "errors", c.Errors.String())...)
			return
		}
		logger.Debug("http request", attrs...)
	}
}

// recoveryMiddleware turns handler panics into a 500 reply.
func recoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic in handler", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
