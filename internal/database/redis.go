package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"consultline/pkg/logger"
	"consultline/pkg/metrics"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// RedisClient wraps a Redis client with degraded mode tracking
type RedisClient struct {
	Client *redis.Client

	mu            sync.RWMutex
	degraded      bool
	healthCheckMu sync.Mutex
}

// NewRedisDB creates a Redis client from config and pings it once
func NewRedisDB(ctx context.Context, cfg *RedisConfig) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		DialTimeout:  cfg.Timeout,
	})

	r := &RedisClient{Client: client}
	if err := r.HealthCheck(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the Redis client connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}

// RunHealthCheck pings Redis every interval until ctx is done
func (r *RedisClient) RunHealthCheck(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.HealthCheck(ctx); err != nil {
				logger.Warn("Redis health check failed", zap.Error(err))
			}
		}
	}
}

// IsDegraded returns true if the last health check failed
func (r *RedisClient) IsDegraded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.degraded
}

func (r *RedisClient) setDegraded(degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.degraded == degraded {
		return
	}
	r.degraded = degraded
	if degraded {
		metrics.RedisDegraded.Set(1)
		logger.Warn("Redis entered degraded mode")
	} else {
		metrics.RedisDegraded.Set(0)
		logger.Info("Redis recovered")
	}
}

// HealthCheck pings Redis and updates degraded mode. Concurrent checks are serialized.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	r.healthCheckMu.Lock()
	defer r.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.Client.Ping(healthCtx).Err(); err != nil {
		r.setDegraded(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	r.setDegraded(false)
	return nil
}
