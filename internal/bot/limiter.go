package bot

import (
	"sync"
	"time"
)

// rateLimiter caps how many messages one user may send per window.
type rateLimiter struct {
	mu       sync.Mutex
	counters map[string]*rateBucket
	window   time.Duration
	max      int
}

type rateBucket struct {
	count  int
	window time.Time
}

func newRateLimiter(window time.Duration, max int) *rateLimiter {
	return &rateLimiter{
		counters: make(map[string]*rateBucket),
		window:   window,
		max:      max,
	}
}

func (l *rateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.counters[key]
	if !ok || now.Sub(b.window) > l.window {
		l.counters[key] = &rateBucket{count: 1, window: now}
		return true
	}
	if b.count >= l.max {
		return false
	}
	b.count++
	return true
}
