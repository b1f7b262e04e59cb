package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

type TimeoutConfig struct {
	Duration time.Duration
}

// DefaultTimeoutConfig leaves room for the two-minute history generation.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Duration: 150 * time.Second,
	}
}

// Timeout puts a deadline on the request context. Upstream calls observe
// it and fail with a service-unavailable error when it passes.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	if config.Duration <= 0 {
		config = DefaultTimeoutConfig()
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Duration)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
