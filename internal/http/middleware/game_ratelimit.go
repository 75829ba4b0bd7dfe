package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"confidential_rps/internal/http/handlers"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// GameRateLimit limits game actions per principal (not per IP) using Redis.
// Requires JWT middleware to run before this.
func GameRateLimit(maxActions int, window time.Duration) gin.HandlerFunc {
	fallback := SimpleRateLimitBy(maxActions, window, principalKey)

	return func(c *gin.Context) {
		v, exists := c.Get(handlers.PrincipalKey)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "code": "unauthorized"})
			return
		}
		principal, ok := v.(common.Address)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid principal", "code": "unauthorized"})
			return
		}

		if redisClient == nil {
			fallback(c)
			return
		}

		key := "game_rl:" + principal.Hex() + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		ctx := context.Background()

		val, err := redisClient.Incr(ctx, key).Result()
		if err != nil {
			// fail-open
			c.Header("X-GameRateLimit-Error", "redis-error")
			c.Next()
			return
		}

		if val == 1 {
			redisClient.Expire(ctx, key, window)
		}

		c.Header("X-GameRateLimit-Limit", strconv.Itoa(maxActions))
		c.Header("X-GameRateLimit-Remaining", strconv.FormatInt(max(0, int64(maxActions)-val), 10))

		if val > int64(maxActions) {
			RLBlocked.WithLabelValues("game:" + c.FullPath()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "game rate limit exceeded",
				"code":        "rate_limited",
				"retry_after": int(window.Seconds()),
			})
			return
		}

		RLRequests.WithLabelValues("game:" + c.FullPath()).Inc()
		c.Next()
	}
}

func principalKey(c *gin.Context) string {
	if v, ok := c.Get(handlers.PrincipalKey); ok {
		if a, ok := v.(common.Address); ok {
			return a.Hex()
		}
	}
	return c.ClientIP()
}
