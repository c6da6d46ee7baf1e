package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"consultline/pkg/errors"
	"consultline/pkg/logger"
	"consultline/pkg/response"
)

// WindowCounter counts hits for a key within a fixed window and reports the
// count including this hit
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisWindowCounter counts with INCR and starts the window on the first hit
type RedisWindowCounter struct {
	client redis.Cmdable
}

// NewRedisWindowCounter creates a Redis-backed counter
func NewRedisWindowCounter(client redis.Cmdable) *RedisWindowCounter {
	return &RedisWindowCounter{client: client}
}

func (r *RedisWindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	return incr.Val(), nil
}

// MemoryWindowCounter is the in-process counter used without Redis
type MemoryWindowCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryWindowCounter creates an in-memory counter
func NewMemoryWindowCounter() *MemoryWindowCounter {
	return &MemoryWindowCounter{windows: make(map[string]*memoryWindow), now: time.Now}
}

func (m *MemoryWindowCounter) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// RateLimiter limits requests per authenticated user, or per IP otherwise
type RateLimiter struct {
	counter  WindowCounter
	requests int
	window   time.Duration
	prefix   string
}

// NewRateLimiter creates a limiter allowing requests per window. prefix
// separates the counters of independently limited routes.
func NewRateLimiter(counter WindowCounter, prefix string, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counter:  counter,
		requests: requests,
		window:   window,
		prefix:   prefix,
	}
}

// Middleware returns a Gin middleware for rate limiting
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := "ip:" + c.ClientIP()
		if userID := UserID(c); userID != "" {
			identifier = "user:" + userID
		}
		key := fmt.Sprintf("ratelimit:%s:%s", rl.prefix, identifier)

		count, err := rl.counter.Hit(c.Request.Context(), key, rl.window)
		if err != nil {
			// Fail open when the counter store is unavailable
			logger.Warn("Rate limit check failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		remaining := rl.requests - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if int(count) > rl.requests {
			response.Error(c, http.StatusTooManyRequests, string(errors.ErrCodeRateLimitExceeded), "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}
