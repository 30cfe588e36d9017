package middleware

import (
	"fmt"
	"time"

	"github.com/formdeck/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const rateLimitWindow = time.Second

// RateLimit enforces a fixed one-second window of max requests per client IP
// for anonymous callers. Redis errors let the request through.
func RateLimit(rdb *redis.Client, max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rdb == nil || max <= 0 || IsAuthenticated(c) {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := fmt.Sprintf("formdeck:rate_limit:%s:%d", ip, time.Now().Unix())
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			rdb.PExpire(ctx, key, rateLimitWindow+time.Second)
		}
		if count > max {
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
