// Package matchmaking holds the in-memory pool of players waiting for an
// opponent, the per-entry countdown timers, and the enter/cancel flows.
package matchmaking

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/hanakoi/backend/internal/hanafuda"
)

// EntryStatus is the lifecycle state of a matchmaking entry
type EntryStatus string

const (
	StatusSearching       EntryStatus = "SEARCHING"
	StatusLowAvailability EntryStatus = "LOW_AVAILABILITY"
	StatusMatched         EntryStatus = "MATCHED"
	StatusCancelled       EntryStatus = "CANCELLED"
	StatusExpired         EntryStatus = "EXPIRED"
)

// Matchable reports whether an entry in this status may still be paired
func (s EntryStatus) Matchable() bool {
	return s == StatusSearching || s == StatusLowAvailability
}

// Errors
var (
	ErrAlreadyInQueue = errors.New("player already has a matchmaking entry")
	ErrAlreadyInGame  = errors.New("player has an active game")
	ErrNotInQueue     = errors.New("player has no matchmaking entry")
)

// Entry represents one player waiting in the pool
type Entry struct {
	ID          string            `json:"id"`
	PlayerID    string            `json:"player_id"`
	DisplayName string            `json:"display_name"`
	RoomType    hanafuda.RoomType `json:"room_type"`
	EnteredAt   time.Time         `json:"entered_at"`
	Status      EntryStatus       `json:"status"`
}

// NewEntry allocates a SEARCHING entry with a fresh id
func NewEntry(playerID, displayName string, roomType hanafuda.RoomType) Entry {
	return Entry{
		ID:          "mm_" + randomHex(8),
		PlayerID:    playerID,
		DisplayName: displayName,
		RoomType:    roomType,
		EnteredAt:   time.Now().UTC(),
		Status:      StatusSearching,
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Pool is the in-memory matchmaking queue, partitioned by room type with
// FIFO ordering inside each partition and a secondary index by player id.
// All operations are atomic with respect to each other.
type Pool struct {
	mu       sync.Mutex
	byRoom   map[hanafuda.RoomType][]*Entry
	byPlayer map[string]*Entry
	byID     map[string]*Entry
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{
		byRoom:   make(map[hanafuda.RoomType][]*Entry),
		byPlayer: make(map[string]*Entry),
		byID:     make(map[string]*Entry),
	}
}

// Add inserts an entry, rejecting a player that is already queued
func (p *Pool) Add(e Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byPlayer[e.PlayerID]; exists {
		return ErrAlreadyInQueue
	}
	stored := e
	p.byRoom[e.RoomType] = append(p.byRoom[e.RoomType], &stored)
	p.byPlayer[e.PlayerID] = &stored
	p.byID[e.ID] = &stored
	return nil
}

// Remove deletes an entry by id. Idempotent; returns the removed entry.
func (p *Pool) Remove(entryID string) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removeLocked(entryID)
}

func (p *Pool) removeLocked(entryID string) (Entry, bool) {
	e, ok := p.byID[entryID]
	if !ok {
		return Entry{}, false
	}
	delete(p.byID, entryID)
	delete(p.byPlayer, e.PlayerID)
	queue := p.byRoom[e.RoomType]
	for i, qe := range queue {
		if qe.ID == entryID {
			p.byRoom[e.RoomType] = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	return *e, true
}

// FindMatch scans the entry's room-type partition in FIFO order and returns
// the first other matchable entry.
func (p *Pool) FindMatch(forEntry Entry) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range p.byRoom[forEntry.RoomType] {
		if e.PlayerID == forEntry.PlayerID {
			continue
		}
		if e.Status.Matchable() {
			return *e, true
		}
	}
	return Entry{}, false
}

// RemovePair atomically claims two entries. The claim is all-or-nothing:
// when either entry is already gone nothing is removed and ok is false, so
// concurrent claimants of the same pair see exactly one winner.
func (p *Pool) RemovePair(entryID1, entryID2 string) (Entry, Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e1, ok1 := p.byID[entryID1]
	e2, ok2 := p.byID[entryID2]
	if !ok1 || !ok2 {
		return Entry{}, Entry{}, false
	}
	out1, out2 := *e1, *e2
	p.removeLocked(entryID1)
	p.removeLocked(entryID2)
	return out1, out2, true
}

// UpdateStatus changes an entry's status in place
func (p *Pool) UpdateStatus(entryID string, status EntryStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.byID[entryID]
	if !ok {
		return false
	}
	e.Status = status
	return true
}

// FindByPlayerID returns the entry for a player, if any
func (p *Pool) FindByPlayerID(playerID string) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byPlayer[playerID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// FindByID returns an entry by id
func (p *Pool) FindByID(entryID string) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byID[entryID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// HasPlayer reports whether the player currently has an entry
func (p *Pool) HasPlayer(playerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byPlayer[playerID]
	return ok
}

// Waiting returns the number of entries per room type
func (p *Pool) Waiting() map[hanafuda.RoomType]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[hanafuda.RoomType]int, len(p.byRoom))
	for rt, queue := range p.byRoom {
		out[rt] = len(queue)
	}
	return out
}
