package memory

import (
	"context"
	"sync"
	"time"
)

const (
	loginRateLimitWindow = 600 * time.Second
	loginRateLimitMax    = 10
)

// Limiter is the in-memory LoginLimiter for -mem mode and tests.
type Limiter struct {
	mu    sync.Mutex
	times map[string][]time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{times: make(map[string][]time.Time)}
}

func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	cut := now.Add(-loginRateLimitWindow)
	var kept []time.Time
	for _, t := range l.times[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= loginRateLimitMax {
		l.times[key] = kept
		return false, nil
	}
	l.times[key] = append(kept, now)
	return true, nil
}

func (l *Limiter) Close() error { return nil }
