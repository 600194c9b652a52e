package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

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

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestFixedWindow_AdmitsExactlyLimit(t *testing.T) {
	clock := newClock()
	l := NewFixedWindow(Options{Limit: 5, Window: time.Minute, Now: clock.Now})

	for i := 0; i < 5; i++ {
		require.True(t, l.Admit("ws_1"), "admission %d", i+1)
	}
	assert.False(t, l.Admit("ws_1"), "limit+1 must be rejected")
	assert.False(t, l.Admit("ws_1"), "rejections do not consume or reset")
}

func TestFixedWindow_ResetsAfterWindow(t *testing.T) {
	clock := newClock()
	l := NewFixedWindow(Options{Limit: 3, Window: time.Minute, Now: clock.Now})

	for i := 0; i < 3; i++ {
		l.Admit("ws_1")
	}
	require.False(t, l.Admit("ws_1"))

	clock.Advance(time.Minute)
	assert.False(t, l.Admit("ws_1"), "still inside window at exactly resetAt")

	clock.Advance(time.Millisecond)
	assert.True(t, l.Admit("ws_1"), "fresh window starts at count 1")
	assert.True(t, l.Admit("ws_1"))
	assert.True(t, l.Admit("ws_1"))
	assert.False(t, l.Admit("ws_1"))
}

func TestFixedWindow_TenantsAreIndependent(t *testing.T) {
	clock := newClock()
	l := NewFixedWindow(Options{Limit: 1, Window: time.Minute, Now: clock.Now})

	assert.True(t, l.Admit("ws_a"))
	assert.False(t, l.Admit("ws_a"))
	assert.True(t, l.Admit("ws_b"))
}

func TestFixedWindow_InstancesAreIsolated(t *testing.T) {
	clock := newClock()
	first := NewFixedWindow(Options{Limit: 1, Now: clock.Now})
	second := NewFixedWindow(Options{Limit: 1, Now: clock.Now})

	assert.True(t, first.Admit("ws_1"))
	assert.False(t, first.Admit("ws_1"))
	assert.True(t, second.Admit("ws_1"))
}

func TestFixedWindow_RetryAfter(t *testing.T) {
	clock := newClock()
	l := NewFixedWindow(Options{Limit: 2, Window: time.Minute, Now: clock.Now})

	assert.Zero(t, l.RetryAfter("ws_1"))
	l.Admit("ws_1")
	assert.Zero(t, l.RetryAfter("ws_1"), "not throttled yet")
	l.Admit("ws_1")

	clock.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, l.RetryAfter("ws_1"))

	clock.Advance(41 * time.Second)
	assert.Zero(t, l.RetryAfter("ws_1"))
}

func TestFixedWindow_Defaults(t *testing.T) {
	l := NewFixedWindow(Options{})

	assert.Equal(t, DefaultLimit, l.limit)
	assert.Equal(t, DefaultWindow, l.window)
}

func TestFixedWindow_ConcurrentAdmissions(t *testing.T) {
	clock := newClock()
	l := NewFixedWindow(Options{Limit: 50, Window: time.Minute, Now: clock.Now})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("ws_1") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), admitted.Load())
}

func TestExceededError(t *testing.T) {
	var err error = &ExceededError{WorkspaceID: "ws_1", RetryAfter: 30 * time.Second}

	assert.True(t, errors.Is(err, ErrRateLimited))
	var exceeded *ExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 30*time.Second, exceeded.RetryAfter)
	assert.Contains(t, err.Error(), "ws_1")
}
