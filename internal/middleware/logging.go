package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Logger logs each completed request.
func Logger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		event := logger.Info()
		if c.Writer.Status() >= 500 {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Str("author_name", c.GetString(AuthorKey)).
			Str("remote_addr", c.ClientIP()).
			Msg("request completed")
	}
}
