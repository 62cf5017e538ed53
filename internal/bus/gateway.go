package bus

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// EventDomain tags the envelope with the subsystem that produced it
type EventDomain string

const (
	DomainMatchmaking EventDomain = "matchmaking"
	DomainGame        EventDomain = "game"
)

// EventType enumerates every outbound gateway event
type EventType string

const (
	// Matchmaking events
	EventMatchmakingStatus    EventType = "MATCHMAKING_STATUS"
	EventMatchFound           EventType = "MATCH_FOUND"
	EventMatchmakingCancelled EventType = "MATCHMAKING_CANCELLED"

	// Game events
	EventRoundDealt                  EventType = "ROUND_DEALT"
	EventTurnCompleted               EventType = "TURN_COMPLETED"
	EventSelectionRequired           EventType = "SELECTION_REQUIRED"
	EventTurnProgressAfterSelection  EventType = "TURN_PROGRESS_AFTER_SELECTION"
	EventDecisionRequired            EventType = "DECISION_REQUIRED"
	EventDecisionMade                EventType = "DECISION_MADE"
	EventRoundScored                 EventType = "ROUND_SCORED"
	EventRoundDrawn                  EventType = "ROUND_DRAWN"
	EventRoundEndedInstantly         EventType = "ROUND_ENDED_INSTANTLY"
	EventGameFinished                EventType = "GAME_FINISHED"
	EventTurnError                   EventType = "TURN_ERROR"
	EventGameError                   EventType = "GAME_ERROR"
	EventGameSnapshotRestore         EventType = "GAME_SNAPSHOT_RESTORE"
)

// GatewayEvent is the envelope written to a player's transport. EventID is
// monotonically increasing across the process; Timestamp is ISO-8601.
type GatewayEvent struct {
	Domain    EventDomain `json:"domain"`
	Type      EventType   `json:"type"`
	EventID   uint64      `json:"event_id"`
	Timestamp string      `json:"timestamp"`
	GameID    string      `json:"game_id,omitempty"`
	Payload   interface{} `json:"payload"`
}

// PlayerBus delivers gateway events to per-player subscribers. Delivery is
// best-effort: with no subscriber the event is dropped. From the publisher's
// perspective delivery is FIFO per player.
type PlayerBus struct {
	mu      sync.RWMutex
	nextSub int
	subs    map[string]map[int]func(GatewayEvent)
	eventID atomic.Uint64
}

// NewPlayerBus creates an empty player outbound bus
func NewPlayerBus() *PlayerBus {
	return &PlayerBus{subs: make(map[string]map[int]func(GatewayEvent))}
}

// Subscribe registers a delivery function for one player's stream
func (b *PlayerBus) Subscribe(playerID string, fn func(GatewayEvent)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	if b.subs[playerID] == nil {
		b.subs[playerID] = make(map[int]func(GatewayEvent))
	}
	b.subs[playerID][id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[playerID]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, playerID)
			}
		}
	}
}

// HasSubscriber reports whether anyone is listening for the player
func (b *PlayerBus) HasSubscriber(playerID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[playerID]) > 0
}

// Publish stamps the event with an id and timestamp and delivers it to every
// subscriber of the player.
func (b *PlayerBus) Publish(playerID string, ev GatewayEvent) {
	ev.EventID = b.eventID.Add(1)
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	b.mu.RLock()
	fns := make([]func(GatewayEvent), 0, len(b.subs[playerID]))
	for _, fn := range b.subs[playerID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		deliver(fn, ev)
	}
}

func deliver(fn func(GatewayEvent), ev GatewayEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[BUS] outbound handler panic for event %s: %v", ev.Type, rec)
		}
	}()
	fn(ev)
}
