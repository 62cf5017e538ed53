package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanakoi/backend/internal/hanafuda"
)

// GameStore holds the authoritative in-memory game snapshots and the per-game
// locks that serialize the command path. Every Set also mirrors the snapshot
// to redis so other processes (and crash recovery) can read it.
type GameStore struct {
	mu           sync.RWMutex
	games        map[string]*hanafuda.Game
	playerToGame map[string]string
	locks        map[string]*sync.Mutex
	rdb          *redis.Client
}

// NewGameStore creates a game store. rdb may be nil.
func NewGameStore(rdb *redis.Client) *GameStore {
	return &GameStore{
		games:        make(map[string]*hanafuda.Game),
		playerToGame: make(map[string]string),
		locks:        make(map[string]*sync.Mutex),
		rdb:          rdb,
	}
}

// LockGame returns the mutex serializing commands for one game. The mutex
// survives until the game is deleted.
func (s *GameStore) LockGame(gameID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[gameID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[gameID] = l
	}
	return l
}

// Get returns the latest snapshot of a game
func (s *GameStore) Get(gameID string) (*hanafuda.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[gameID]
	return g, ok
}

// Set swaps in a new snapshot and refreshes the player index. Bot seats are
// never indexed; the bot plays any number of games at once.
func (s *GameStore) Set(g *hanafuda.Game) {
	s.mu.Lock()
	s.games[g.ID] = g
	for _, seat := range g.Players {
		if seat.IsBot {
			continue
		}
		if g.Active() {
			s.playerToGame[seat.ID] = g.ID
		} else if s.playerToGame[seat.ID] == g.ID {
			delete(s.playerToGame, seat.ID)
		}
	}
	s.mu.Unlock()

	s.mirrorToRedis(g)
}

// Delete removes a game, its lock and its player index entries
func (s *GameStore) Delete(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[gameID]
	if !ok {
		return
	}
	for _, seat := range g.Players {
		if s.playerToGame[seat.ID] == gameID {
			delete(s.playerToGame, seat.ID)
		}
	}
	delete(s.games, gameID)
	delete(s.locks, gameID)
}

// GameFor returns the id of the player's active game
func (s *GameStore) GameFor(playerID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.playerToGame[playerID]
	return id, ok
}

// HasActiveGame reports whether the player is bound to a live game. This is
// the check matchmaking runs before accepting a queue entry.
func (s *GameStore) HasActiveGame(playerID string) bool {
	_, ok := s.GameFor(playerID)
	return ok
}

// ActiveCount returns the number of games in the store
func (s *GameStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games)
}

func (s *GameStore) mirrorToRedis(g *hanafuda.Game) {
	if s.rdb == nil {
		return
	}
	data, err := json.Marshal(g)
	if err != nil {
		log.Printf("[STORE] Failed to marshal game %s for redis: %v", g.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.Set(ctx, "game:"+g.ID, data, 24*time.Hour).Err(); err != nil {
		log.Printf("[STORE] Failed to mirror game %s to redis: %v", g.ID, err)
	}
}
