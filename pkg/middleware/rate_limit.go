package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/common"
	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/eugene-kirzhanov/vkcup21/pkg/ratelimit"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimit throttles requests with the Redis token bucket. Requests on a
// session route are keyed by the session ID, everything else by client IP.
// Limiter failures let the request through.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		endpointKey := c.Request.Method + ":" + route

		identityType := ratelimit.IdentityAnonymous
		identityKey := c.ClientIP()
		if id := c.Param("id"); id != "" {
			identityType = ratelimit.IdentitySession
			identityKey = id
		}
		if identityKey == "" {
			identityKey = "unknown"
		}

		rule := limiter.RuleFor(endpointKey, identityType)
		if rule.Limit <= 0 {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), endpointKey, identityKey, rule, identityType)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limiter unavailable, allowing request",
				zap.String("endpoint", endpointKey),
				zap.Error(err),
			)
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(ceilSeconds(result.RetryAfter)))
			common.AppErrorResponse(c, common.NewTooManyRequestsError("rate limit exceeded"))
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result ratelimit.Result) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(max(result.Remaining, 0)))
	c.Header("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(result.ResetAfter)))
	c.Header("X-RateLimit-Resource", result.EndpointKey)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
