package devstore

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// UIDAllocator hands out signaling participant ids. Ids are never reused,
// so a client rejoining a room always gets a fresh one.
type UIDAllocator interface {
	Next(ctx context.Context) (uint32, error)
}

// MemoryUIDAllocator counts up from 1
type MemoryUIDAllocator struct {
	n atomic.Uint32
}

func (a *MemoryUIDAllocator) Next(context.Context) (uint32, error) {
	return a.n.Add(1), nil
}

const uidSequenceKey = "rtc:uid:seq"

// RedisUIDAllocator shares one sequence across backend instances
type RedisUIDAllocator struct {
	client redis.Cmdable
}

// NewRedisUIDAllocator creates a Redis-backed allocator
func NewRedisUIDAllocator(client redis.Cmdable) *RedisUIDAllocator {
	return &RedisUIDAllocator{client: client}
}

func (a *RedisUIDAllocator) Next(ctx context.Context) (uint32, error) {
	n, err := a.client.Incr(ctx, uidSequenceKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate uid: %w", err)
	}
	// Skip 0 on wraparound; it means "no participant" on the wire
	uid := uint32(n)
	if uid == 0 {
		return a.Next(ctx)
	}
	return uid, nil
}
