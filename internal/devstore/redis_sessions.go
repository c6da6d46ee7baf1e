package devstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"consultline/pkg/errors"
	"consultline/pkg/metrics"
)

// RedisSessionStore keeps sessions in Redis with a TTL and indexes them per caller
type RedisSessionStore struct {
	client  redis.Cmdable
	metrics *metrics.Metrics
}

// NewRedisSessionStore creates a new RedisSessionStore. m may be nil.
func NewRedisSessionStore(client redis.Cmdable, m *metrics.Metrics) *RedisSessionStore {
	return &RedisSessionStore{client: client, metrics: m}
}

func sessionKey(id string) string {
	return fmt.Sprintf("callsession:%s", id)
}

func callerSessionsKey(callerID string) string {
	return fmt.Sprintf("user:callsessions:%s", callerID)
}

// Save stores a session and adds it to the caller's index
func (r *RedisSessionStore) Save(ctx context.Context, rec *SessionRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	start := time.Now()
	err = r.client.Set(ctx, sessionKey(rec.ID), data, ttl).Err()
	r.record("set", start, err)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	start = time.Now()
	err = r.client.SAdd(ctx, callerSessionsKey(rec.CallerID), rec.ID).Err()
	r.record("sadd", start, err)
	if err != nil {
		return fmt.Errorf("failed to index session: %w", err)
	}
	return nil
}

// Get retrieves a session by ID
func (r *RedisSessionStore) Get(ctx context.Context, sessionID string) (*SessionRecord, error) {
	start := time.Now()
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err == redis.Nil {
		r.record("get", start, nil)
		return nil, errors.SessionNotFoundError()
	}
	r.record("get", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var rec SessionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &rec, nil
}

// Delete removes a session and its index entry
func (r *RedisSessionStore) Delete(ctx context.Context, rec *SessionRecord) error {
	start := time.Now()
	err := r.client.Del(ctx, sessionKey(rec.ID)).Err()
	r.record("del", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	// Index cleanup is best-effort
	r.client.SRem(ctx, callerSessionsKey(rec.CallerID), rec.ID)
	return nil
}

func (r *RedisSessionStore) record(cmd string, start time.Time, err error) {
	if r.metrics != nil {
		r.metrics.RecordRedisCommand(cmd, time.Since(start), err)
	}
}
