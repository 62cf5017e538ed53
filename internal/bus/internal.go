// Package bus carries the in-process events that tie the runtime together:
// typed cross-component topics and the per-player outbound stream.
package bus

import (
	"log"
	"sync"
	"time"

	"github.com/hanakoi/backend/internal/hanafuda"
)

// MatchType distinguishes a human pairing from a bot fallback
type MatchType string

const (
	MatchHuman MatchType = "HUMAN"
	MatchBot   MatchType = "BOT"
)

// MatchFound is published when two entries (or an entry and the bot) pair up
type MatchFound struct {
	Player1ID   string
	Player1Name string
	Player2ID   string
	Player2Name string
	RoomType    hanafuda.RoomType
	MatchType   MatchType
	MatchedAt   time.Time
}

// GameFinished is published when a game reaches FINISHED for any reason
type GameFinished struct {
	GameID      string
	WinnerID    string // empty on a tie
	FinalScores map[string]int
	Players     []string
	FinishedAt  time.Time
}

// Unsubscribe removes a subscription; calling it twice is harmless.
type Unsubscribe func()

// InternalBus is the synchronous cross-component topic bus. Publish fires
// every handler in registration order on the caller's goroutine; handlers
// must not block. A panicking handler is logged and does not stop delivery
// to the others.
type InternalBus struct {
	mu           sync.RWMutex
	nextID       int
	matchFound   []subscription[MatchFound]
	gameFinished []subscription[GameFinished]
}

type subscription[T any] struct {
	id int
	fn func(T)
}

// NewInternalBus creates an empty internal bus
func NewInternalBus() *InternalBus {
	return &InternalBus{}
}

// SubscribeMatchFound registers a MATCH_FOUND handler
func (b *InternalBus) SubscribeMatchFound(fn func(MatchFound)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.matchFound = append(b.matchFound, subscription[MatchFound]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.matchFound = dropSubscription(b.matchFound, id)
	}
}

// SubscribeGameFinished registers a GAME_FINISHED handler
func (b *InternalBus) SubscribeGameFinished(fn func(GameFinished)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.gameFinished = append(b.gameFinished, subscription[GameFinished]{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.gameFinished = dropSubscription(b.gameFinished, id)
	}
}

// PublishMatchFound delivers a MATCH_FOUND event to all subscribers
func (b *InternalBus) PublishMatchFound(ev MatchFound) {
	b.mu.RLock()
	subs := append([]subscription[MatchFound](nil), b.matchFound...)
	b.mu.RUnlock()
	for _, s := range subs {
		invoke(s.fn, ev, "MATCH_FOUND")
	}
}

// PublishGameFinished delivers a GAME_FINISHED event to all subscribers
func (b *InternalBus) PublishGameFinished(ev GameFinished) {
	b.mu.RLock()
	subs := append([]subscription[GameFinished](nil), b.gameFinished...)
	b.mu.RUnlock()
	for _, s := range subs {
		invoke(s.fn, ev, "GAME_FINISHED")
	}
}

func invoke[T any](fn func(T), ev T, topic string) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[BUS] %s handler panic: %v", topic, rec)
		}
	}()
	fn(ev)
}

func dropSubscription[T any](subs []subscription[T], id int) []subscription[T] {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}
