package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ride-dispatch/pkg/common"
	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/ratelimit"
	"go.uber.org/zap"
)

// RateLimit applies per-identity token buckets. Authenticated callers are
// keyed by user id, anonymous ones by client IP. Redis failures fail open.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		endpoint := fmt.Sprintf("%s:%s", c.Request.Method, path)

		identity := ratelimit.Identity{Key: c.ClientIP()}
		if actor, err := GetActor(c); err == nil {
			identity = ratelimit.Identity{Key: actor.ID.String(), Authenticated: true}
		}

		decision, err := limiter.Allow(c.Request.Context(), endpoint, identity)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "rate limit evaluation failed",
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(ceilSeconds(decision.ResetAfter)))

		if decision.Allowed {
			c.Next()
			return
		}

		retry := ceilSeconds(decision.RetryAfter)
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		logger.WarnContext(c.Request.Context(), "rate limit exceeded",
			zap.String("endpoint", endpoint),
			zap.String("identity", identity.Key),
			zap.Int("retry_after_seconds", retry),
		)

		common.ErrorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
		c.Abort()
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
