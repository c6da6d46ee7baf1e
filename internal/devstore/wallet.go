package devstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"consultline/pkg/errors"
	"consultline/pkg/metrics"
)

// Wallet charges callers for sessions
type Wallet interface {
	// Charge deducts amount or fails with INSUFFICIENT_BALANCE
	Charge(ctx context.Context, userID string, amount int) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
	TopUp(ctx context.Context, userID string, amount int) (int, error)
}

func insufficient(balance, amount int) error {
	return errors.InsufficientBalanceError(fmt.Sprintf("Insufficient balance: %d available, %d required", balance, amount))
}

// MemoryWallet credits every new user with a start balance
type MemoryWallet struct {
	mu       sync.Mutex
	start    int
	balances map[string]int
}

// NewMemoryWallet creates a wallet store
func NewMemoryWallet(startBalance int) *MemoryWallet {
	return &MemoryWallet{start: startBalance, balances: make(map[string]int)}
}

func (w *MemoryWallet) balance(userID string) int {
	b, ok := w.balances[userID]
	if !ok {
		b = w.start
		w.balances[userID] = b
	}
	return b
}

func (w *MemoryWallet) Charge(_ context.Context, userID string, amount int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.balance(userID)
	if b < amount {
		return b, insufficient(b, amount)
	}
	w.balances[userID] = b - amount
	return b - amount, nil
}

func (w *MemoryWallet) Balance(_ context.Context, userID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance(userID), nil
}

func (w *MemoryWallet) TopUp(_ context.Context, userID string, amount int) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.balance(userID) + amount
	w.balances[userID] = b
	return b, nil
}

// RedisWallet keeps balances in Redis counters
type RedisWallet struct {
	client  redis.Cmdable
	start   int
	metrics *metrics.Metrics
}

// NewRedisWallet creates a Redis-backed wallet. m may be nil.
func NewRedisWallet(client redis.Cmdable, startBalance int, m *metrics.Metrics) *RedisWallet {
	return &RedisWallet{client: client, start: startBalance, metrics: m}
}

func walletKey(userID string) string {
	return fmt.Sprintf("wallet:%s", userID)
}

func (w *RedisWallet) ensure(ctx context.Context, userID string) error {
	start := time.Now()
	err := w.client.SetNX(ctx, walletKey(userID), w.start, 0).Err()
	w.record("setnx", start, err)
	if err != nil {
		return fmt.Errorf("failed to open wallet: %w", err)
	}
	return nil
}

// Charge decrements the balance and rolls back when it went negative
func (w *RedisWallet) Charge(ctx context.Context, userID string, amount int) (int, error) {
	if err := w.ensure(ctx, userID); err != nil {
		return 0, err
	}

	start := time.Now()
	left, err := w.client.DecrBy(ctx, walletKey(userID), int64(amount)).Result()
	w.record("decrby", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to charge wallet: %w", err)
	}
	if left < 0 {
		start = time.Now()
		restored, err := w.client.IncrBy(ctx, walletKey(userID), int64(amount)).Result()
		w.record("incrby", start, err)
		if err != nil {
			return 0, fmt.Errorf("failed to restore wallet: %w", err)
		}
		return int(restored), insufficient(int(restored), amount)
	}
	return int(left), nil
}

func (w *RedisWallet) Balance(ctx context.Context, userID string) (int, error) {
	if err := w.ensure(ctx, userID); err != nil {
		return 0, err
	}
	start := time.Now()
	b, err := w.client.Get(ctx, walletKey(userID)).Int()
	w.record("get", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to read wallet: %w", err)
	}
	return b, nil
}

func (w *RedisWallet) TopUp(ctx context.Context, userID string, amount int) (int, error) {
	if err := w.ensure(ctx, userID); err != nil {
		return 0, err
	}
	start := time.Now()
	b, err := w.client.IncrBy(ctx, walletKey(userID), int64(amount)).Result()
	w.record("incrby", start, err)
	if err != nil {
		return 0, fmt.Errorf("failed to top up wallet: %w", err)
	}
	return int(b), nil
}

func (w *RedisWallet) record(cmd string, start time.Time, err error) {
	if w.metrics != nil {
		w.metrics.RecordRedisCommand(cmd, time.Since(start), err)
	}
}
