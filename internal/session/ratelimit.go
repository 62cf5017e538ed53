package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-player command limiter. Check never
// blocks; a janitor sweeps stale windows every 10 seconds.
type RateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	budget  int
	entries map[string]*rateWindow
	now     func() time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

// NewRateLimiter creates a limiter with the given window and budget
func NewRateLimiter(window time.Duration, budget int) *RateLimiter {
	return &RateLimiter{
		window:  window,
		budget:  budget,
		entries: make(map[string]*rateWindow),
		now:     time.Now,
	}
}

// Check records one command attempt for the player. When the budget is
// exhausted it returns false and the seconds to wait before retrying
// (minimum 1).
func (rl *RateLimiter) Check(playerID string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.entries[playerID]
	if !ok || !now.Before(w.start.Add(rl.window)) {
		rl.entries[playerID] = &rateWindow{start: now, count: 1}
		return true, 0
	}

	if w.count >= rl.budget {
		retryAfter := int(w.start.Add(rl.window).Sub(now) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		return false, retryAfter
	}

	w.count++
	return true, 0
}

// Reset forgets the player's current window
func (rl *RateLimiter) Reset(playerID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.entries, playerID)
}

// StartJanitor sweeps windows that ended more than two windows ago
func (rl *RateLimiter) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := rl.sweep()
				if removed > 0 {
					log.Printf("[RATELIMIT] Janitor removed %d stale windows", removed)
				}
			}
		}
	}()
}

func (rl *RateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-2 * rl.window)
	removed := 0
	for pid, w := range rl.entries {
		if w.start.Add(rl.window).Before(cutoff) {
			delete(rl.entries, pid)
			removed++
		}
	}
	return removed
}
