package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	// Allow reports whether key may proceed and, when refused, how long until the window resets.
	Allow(key string) (bool, time.Duration)
}

// windowLimiter counts attempts per key inside a fixed window.
type windowLimiter struct {
	limit   int
	window  time.Duration
	clock   func() time.Time
	mu      sync.Mutex
	windows map[string]attemptWindow
}

type attemptWindow struct {
	attempts int
	resetAt  time.Time
}

func newWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]attemptWindow),
	}
}

func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || !now.Before(current.resetAt) {
		l.windows[key] = attemptWindow{attempts: 1, resetAt: now.Add(l.window)}
		l.sweepLocked(now)
		return true, 0
	}
	if current.attempts >= l.limit {
		return false, current.resetAt.Sub(now)
	}
	current.attempts++
	l.windows[key] = current
	return true, 0
}

func (l *windowLimiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
		}
	}
}
