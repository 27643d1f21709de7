package ratelimit

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opsboard/sopmatch/internal/errors"
)

// IPRateLimitMiddleware enforces the global per-IP quota. Limiter failures
// never block the request.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		result, err := rl.AllowIP(ctx, ip)
		if err != nil {
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}
			retryAfter := strconv.Itoa(int(result.RetryAfter.Seconds()))
			c.Header("Retry-After", retryAfter)
			errors.Respond(c, errors.NewRateLimitError(retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}

// EndpointRateLimitMiddleware enforces a per-endpoint, per-IP quota. Used
// on the compute-heavy generation endpoints.
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		result, err := rl.AllowEndpoint(ctx, endpoint, ip, limit)
		if err != nil {
			slog.Error("Endpoint rate limit check failed", "endpoint", endpoint, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Endpoint-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Endpoint-Remaining", strconv.Itoa(result.Remaining))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitEndpoint(endpoint)
			}
			retryAfter := strconv.Itoa(int(result.RetryAfter.Seconds()))
			c.Header("Retry-After", retryAfter)
			slog.Warn("Endpoint rate limit exceeded",
				"endpoint", endpoint, "ip", ip, "limit", fmt.Sprintf("%d/min", limit))
			errors.Respond(c, errors.NewRateLimitError(retryAfter))
			c.Abort()
			return
		}

		c.Next()
	}
}
