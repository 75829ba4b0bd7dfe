package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type clientInfo struct {
	last  time.Time
	count int
}

// SimpleRateLimit blocks clients that send more than maxRequests per window.
// It keeps counters in process memory and is used when Redis is absent.
func SimpleRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return SimpleRateLimitBy(maxRequests, window, func(c *gin.Context) string { return c.ClientIP() })
}

// SimpleRateLimitBy is SimpleRateLimit keyed by keyFn.
func SimpleRateLimitBy(maxRequests int, window time.Duration, keyFn func(*gin.Context) string) gin.HandlerFunc {
	var mu sync.Mutex
	clients := make(map[string]*clientInfo)

	return func(c *gin.Context) {
		key := keyFn(c)
		now := time.Now()

		mu.Lock()
		ci, ok := clients[key]
		if !ok || now.Sub(ci.last) > window {
			clients[key] = &clientInfo{last: now, count: 1}
			mu.Unlock()
			RLRequests.WithLabelValues(c.FullPath()).Inc()
			c.Next()
			return
		}
		ci.count++
		count := ci.count
		mu.Unlock()

		if count > maxRequests {
			RLBlocked.WithLabelValues(c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "code": "rate_limited"})
			return
		}

		RLRequests.WithLabelValues(c.FullPath()).Inc()
		c.Next()
	}
}
