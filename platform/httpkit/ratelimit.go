package httpkit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"growth_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter decides whether one more request for key fits the budget.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisRateLimiter is a fixed-window counter shared by every process that
// talks to the same Redis.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisRateLimiter allows limit requests per key per window.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:",
	}
}

// Allow increments the window counter and reports whether it is within limit.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := r.prefix + key

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}

	// First hit of a window, or a key that lost its expiry.
	if incr.Val() == 1 || ttl.Val() < 0 {
		if err := r.client.PExpire(ctx, redisKey, r.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}

	return incr.Val() <= r.limit, nil
}

// LocalRateLimiter keeps token buckets in process memory. It is the fallback
// when no Redis is configured and only holds for a single replica.
type LocalRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
}

// NewLocalRateLimiter allows limit requests per window with a burst of limit.
func NewLocalRateLimiter(limit int, window time.Duration) *LocalRateLimiter {
	return &LocalRateLimiter{
		rate:  rate.Limit(float64(limit) / window.Seconds()),
		burst: limit,
	}
}

func (l *LocalRateLimiter) getLimiter(key string) *rate.Limiter {
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter)
}

// Allow never fails.
func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.getLimiter(key).Allow(), nil
}

// RateLimitByTenantIP limits requests per tenant path parameter and client IP.
// Limiter failures let the request through and are logged.
func RateLimitByTenantIP(limiter RateLimiter, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Param("tenantId") + ":" + c.ClientIP()

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("rate limiter unavailable", "error", err, "key", key)
			c.Next()
			return
		}

		if !allowed {
			log.RateLimitExceeded(key, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
