package call

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLease_ExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	l := NewLease(2*time.Second, clock.Now)

	assert.True(t, l.TryAcquire())
	assert.True(t, l.Held())
	assert.False(t, l.TryAcquire())

	clock.Advance(1999 * time.Millisecond)
	assert.False(t, l.TryAcquire())

	clock.Advance(time.Millisecond)
	assert.False(t, l.Held())
	assert.True(t, l.TryAcquire())
}

func TestLease_Revoke(t *testing.T) {
	l := NewLease(time.Hour, nil)
	assert.True(t, l.TryAcquire())
	l.Revoke()
	assert.True(t, l.TryAcquire())
}

func TestLease_SingleHolderUnderContention(t *testing.T) {
	l := NewLease(time.Minute, newFakeClock().Now)

	var won atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire() {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
}
