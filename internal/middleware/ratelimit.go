package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/campuskit/qrattend/pkg/errors"
	"github.com/campuskit/qrattend/pkg/logger"
	"github.com/campuskit/qrattend/pkg/response"
)

// RateLimit limits requests per (clientIP, path) within a fixed window using
// the supplied store. A nil store or store failure lets the request through;
// an unavailable counter must not take down every endpoint behind it.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", c.ClientIP(), c.FullPath())

		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("http").Warn("rate limit store unavailable",
				zap.String("path", c.FullPath()),
				zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(ttl.Seconds())))

		if count > maxRequests {
			c.Header("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			response.Error(c, errors.ErrRateLimited)
			c.Abort()
			return
		}

		c.Next()
	}
}
