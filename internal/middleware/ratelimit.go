package middleware

import (
	"context"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimit rejects clients that exceed their per-IP token bucket with 429
func RateLimit(limiter *utils.RateLimiter, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := utils.GetClientIP(c)
		if !limiter.Allow(key) {
			if log != nil {
				log.WithFields(logrus.Fields{
					"client_ip":  key,
					"path":       c.Request.URL.Path,
					"request_id": utils.GetRequestID(c),
				}).Warn("Rate limit exceeded")
			}
			c.Header("Retry-After", "1")
			utils.TooManyRequests(c, utils.ErrRateLimitExceeded.Error())
			return
		}
		c.Next()
	}
}

// StartLimiterCleanup evicts idle client buckets every interval until ctx is done
func StartLimiterCleanup(ctx context.Context, limiter *utils.RateLimiter, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.CleanupLimiters(maxAge)
			}
		}
	}()
}
