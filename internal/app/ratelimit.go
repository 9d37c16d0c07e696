package app

import (
	"sync"
	"time"
)

// EventRateLimiter bounds ephemeral events (chat, reactions, gestures)
// per client token with a sliding window. Negotiation and lifecycle
// events are never limited.
type EventRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewEventRateLimiter(limit int, interval time.Duration) *EventRateLimiter {
	return &EventRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *EventRateLimiter) Allow(token string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[token]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[token] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[token] = fresh
	return true
}

// Forget drops a token's history once its connection is gone.
func (rl *EventRateLimiter) Forget(token string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, token)
}
