package matchmaking

import (
	"log"
	"sync"
	"time"
)

// Registry arms the per-entry countdown timers: the low-availability
// transition at 10s and the bot fallback at 15s. Timer callbacks look up
// state under the lock, release it, then invoke the service callbacks.
type Registry struct {
	mu     sync.Mutex
	timers map[string]*entryTimers // entry id -> timers
	closed bool

	lowAvailabilityAfter time.Duration
	botFallbackAfter     time.Duration

	onLowAvailability func(entryID string)
	onBotFallback     func(entryID string)
}

type entryTimers struct {
	lowAvailability *time.Timer
	botFallback     *time.Timer
}

// NewRegistry creates a registry with the given countdown durations
func NewRegistry(lowAvailabilityAfter, botFallbackAfter time.Duration) *Registry {
	return &Registry{
		timers:               make(map[string]*entryTimers),
		lowAvailabilityAfter: lowAvailabilityAfter,
		botFallbackAfter:     botFallbackAfter,
	}
}

// OnLowAvailability sets the callback fired when an entry waited too long
// for the first transition.
func (r *Registry) OnLowAvailability(fn func(entryID string)) {
	r.onLowAvailability = fn
}

// OnBotFallback sets the callback fired when an entry falls back to a bot
func (r *Registry) OnBotFallback(fn func(entryID string)) {
	r.onBotFallback = fn
}

// Register arms both timers for an entry. Re-registering the same entry id
// clears the prior timers first.
func (r *Registry) Register(entryID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if prior, ok := r.timers[entryID]; ok {
		prior.stop()
	}
	t := &entryTimers{}
	t.lowAvailability = time.AfterFunc(r.lowAvailabilityAfter, func() {
		r.fire(entryID, r.onLowAvailability)
	})
	t.botFallback = time.AfterFunc(r.botFallbackAfter, func() {
		r.fire(entryID, r.onBotFallback)
	})
	r.timers[entryID] = t
	r.mu.Unlock()

	log.Printf("[MATCHMAKING] Registered entry %s (low availability in %v, bot fallback in %v)",
		entryID, r.lowAvailabilityAfter, r.botFallbackAfter)
}

// fire re-checks registration under the lock, then invokes the callback
// outside of it.
func (r *Registry) fire(entryID string, fn func(string)) {
	r.mu.Lock()
	_, registered := r.timers[entryID]
	closed := r.closed
	r.mu.Unlock()

	if !registered || closed || fn == nil {
		return
	}
	fn(entryID)
}

// Clear cancels both timers for an entry. Idempotent.
func (r *Registry) Clear(entryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[entryID]; ok {
		t.stop()
		delete(r.timers, entryID)
	}
}

// Stop cancels every timer and rejects further registrations
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.timers {
		t.stop()
		delete(r.timers, id)
	}
}

func (t *entryTimers) stop() {
	if t.lowAvailability != nil {
		t.lowAvailability.Stop()
	}
	if t.botFallback != nil {
		t.botFallback.Stop()
	}
}
