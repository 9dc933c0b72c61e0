package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"llm-crypto-trader/internal/logger"
)

const (
	RequestIDHeader     = "X-Request-ID"
	requestIDContextKey = "request_id"
)

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)
		c.Set(requestIDContextKey, requestID)
		c.Next()
	}
}

// loggerMiddleware writes one access log line per request through the
// structured logger.
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		ctx := c.Request.Context()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(requestIDContextKey),
		}
		switch {
		case c.Writer.Status() >= 500:
			logger.Error(ctx, "HTTP request", attrs...)
		case c.Writer.Status() >= 400:
			logger.Warn(ctx, "HTTP request", attrs...)
		default:
			logger.Debug(ctx, "HTTP request", attrs...)
		}
	}
}
