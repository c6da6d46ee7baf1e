package call

import (
	"sync"
	"time"
)

// Lease is a single-holder token with a TTL. It expires on its own; nothing
// has to reset it.
type Lease struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	expires time.Time
}

// NewLease creates a lease. now defaults to time.Now, whose readings carry
// the monotonic clock.
func NewLease(ttl time.Duration, now func() time.Time) *Lease {
	if now == nil {
		now = time.Now
	}
	return &Lease{ttl: ttl, now: now}
}

// TryAcquire takes the lease if it is free or expired
func (l *Lease) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.expires.IsZero() && now.Before(l.expires) {
		return false
	}
	l.expires = now.Add(l.ttl)
	return true
}

// Revoke frees the lease early, used when the guarded action never happened
func (l *Lease) Revoke() {
	l.mu.Lock()
	l.expires = time.Time{}
	l.mu.Unlock()
}

// Held reports whether the lease is currently taken
func (l *Lease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.expires.IsZero() && l.now().Before(l.expires)
}
