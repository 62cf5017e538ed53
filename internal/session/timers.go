package session

import (
	"log"
	"sync"
	"time"
)

// TimerService keeps one logical timer slot per game id, used for both the
// action timeout and the inter-round display pause. Starting a timeout
// replaces any armed timer for that game; onFire runs on a background
// goroutine and its failures never propagate.
type TimerService struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	gen    map[string]uint64
	closed bool
}

// NewTimerService creates an empty timer service
func NewTimerService() *TimerService {
	return &TimerService{
		timers: make(map[string]*time.Timer),
		gen:    make(map[string]uint64),
	}
}

// StartTimeout arms the game's timer slot, replacing any prior timer
func (ts *TimerService) StartTimeout(gameID string, d time.Duration, onFire func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return
	}

	if prior, ok := ts.timers[gameID]; ok {
		prior.Stop()
	}
	ts.gen[gameID]++
	gen := ts.gen[gameID]

	ts.timers[gameID] = time.AfterFunc(d, func() {
		// A replaced or cancelled timer may still fire; the generation
		// check drops it.
		ts.mu.Lock()
		live := !ts.closed && ts.gen[gameID] == gen
		if live {
			delete(ts.timers, gameID)
		}
		ts.mu.Unlock()
		if !live {
			return
		}

		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[TIMER] Timeout callback panic for game %s: %v", gameID, rec)
			}
		}()
		onFire()
	})
}

// CancelTimeout stops the game's timer slot. Idempotent.
func (ts *TimerService) CancelTimeout(gameID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[gameID]; ok {
		t.Stop()
		delete(ts.timers, gameID)
	}
	ts.gen[gameID]++
}

// Stop cancels every timer and rejects further arming
func (ts *TimerService) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.closed = true
	for id, t := range ts.timers {
		t.Stop()
		delete(ts.timers, id)
	}
}
