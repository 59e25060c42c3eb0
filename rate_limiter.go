package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window per-client limiter kept in Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// rateLimiterFromEnv reads RATE_LIMIT_ENABLED, RATE_LIMIT_MAX_REQUESTS and
// RATE_LIMIT_WINDOW_SECONDS. It returns nil when limiting is off.
func rateLimiterFromEnv(client *redis.Client) *RateLimiter {
	if client == nil || !strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		return nil
	}
	limit := int64(600)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	windowSec := int64(60)
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			windowSec = n
		}
	}
	return NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
}

func (rl *RateLimiter) key(c *gin.Context) string {
	return "ratelimit:" + c.ClientIP()
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	ctx := c.Request.Context()
	key := rl.key(c)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		// Redis trouble must not take the API down.
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, rl.window)
	}
	if count > rl.limit {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		c.Abort()
		return
	}
	c.Next()
}
