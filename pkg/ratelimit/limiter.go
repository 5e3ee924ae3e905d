// Package ratelimit provides fixed-window request limiting with a Redis
// backend and an in-process fallback.
package ratelimit

import (
	"sync"
	"time"
)

type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(key string, limit int) Decision
}

type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	windows map[string]window
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemory(windowSize time.Duration) *MemoryLimiter {
	if windowSize <= 0 {
		windowSize = time.Minute
	}
	return &MemoryLimiter{
		window:  windowSize,
		windows: make(map[string]window),
	}
}

func (l *MemoryLimiter) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expire(now)
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = window{resetAt: now.Add(l.window)}
	}
	w.count++
	l.windows[key] = w
	return decide(w.count, limit, w.resetAt)
}

func (l *MemoryLimiter) expire(now time.Time) {
	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

func decide(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
