package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultLimit  = 100
	DefaultWindow = time.Minute
)

var ErrRateLimited = errors.New("rate limit exceeded")

// ExceededError is returned to callers that were refused admission.
type ExceededError struct {
	WorkspaceID string
	RetryAfter  time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("workspace %q: %s, retry after %s", e.WorkspaceID, ErrRateLimited, e.RetryAfter)
}

func (e *ExceededError) Unwrap() error { return ErrRateLimited }

// Limiter decides whether a tenant may start another unit of work.
type Limiter interface {
	Admit(workspaceID string) bool
	RetryAfter(workspaceID string) time.Duration
}

type Options struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

type counter struct {
	count   int
	resetAt time.Time
}

// FixedWindow admits up to Limit events per tenant per window. Bursts are
// allowed up to the ceiling; nothing refills until the window resets.
// Counters live in process memory only.
type FixedWindow struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters *cache.Cache
}

func NewFixedWindow(opts Options) *FixedWindow {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &FixedWindow{
		limit:  limit,
		window: window,
		now:    now,
		// idle tenants are dropped once their window is long gone
		counters: cache.New(2*window, 2*window),
	}
}

func (l *FixedWindow) Admit(workspaceID string) bool {
	key := strings.TrimSpace(workspaceID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.get(key)
	if !ok || now.After(c.resetAt) {
		l.counters.Set(key, &counter{count: 1, resetAt: now.Add(l.window)}, cache.DefaultExpiration)
		return true
	}
	if c.count >= l.limit {
		return false
	}
	c.count++
	return true
}

// RetryAfter returns how long until the tenant's window resets, or zero
// when it is not currently throttled.
func (l *FixedWindow) RetryAfter(workspaceID string) time.Duration {
	key := strings.TrimSpace(workspaceID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.get(key)
	if !ok || c.count < l.limit || now.After(c.resetAt) {
		return 0
	}
	return c.resetAt.Sub(now)
}

func (l *FixedWindow) get(key string) (*counter, bool) {
	v, ok := l.counters.Get(key)
	if !ok {
		return nil, false
	}
	c, ok := v.(*counter)
	return c, ok
}

var _ Limiter = (*FixedWindow)(nil)
