package matchmaking

import (
	"errors"
	"log"
	"time"

	"github.com/hanakoi/backend/internal/bus"
	"github.com/hanakoi/backend/internal/hanafuda"
	"github.com/hanakoi/backend/internal/identity"
)

// ErrInvalidRoomType rejects an unrecognized room_type value
var ErrInvalidRoomType = errors.New("unknown room type")

// Enter results returned to the command path
const (
	ResultMatchedHuman = "MATCHED_HUMAN"
	ResultSearching    = "SEARCHING"
)

// ActiveGames is the slice of the game store matchmaking needs: whether a
// player is already bound to a live game.
type ActiveGames interface {
	HasActiveGame(playerID string) bool
}

// StatusPayload is the outbound MatchmakingStatus event body
type StatusPayload struct {
	EntryID  string            `json:"entry_id"`
	RoomType hanafuda.RoomType `json:"room_type"`
	Status   EntryStatus       `json:"status"`
}

// FoundPayload is the outbound MatchFound event body
type FoundPayload struct {
	OpponentID   string            `json:"opponent_id"`
	OpponentName string            `json:"opponent_name"`
	RoomType     hanafuda.RoomType `json:"room_type"`
	MatchType    bus.MatchType     `json:"match_type"`
}

// CancelledPayload is the outbound MatchmakingCancelled event body
type CancelledPayload struct {
	EntryID  string            `json:"entry_id"`
	RoomType hanafuda.RoomType `json:"room_type"`
}

// Service drives the enter/cancel matchmaking flows and the timer-driven
// transitions of pool entries.
type Service struct {
	pool     *Pool
	registry *Registry
	internal *bus.InternalBus
	players  *bus.PlayerBus
	games    ActiveGames
}

// NewService wires the pool, registry and buses together. The registry's
// timer callbacks and the MATCH_FOUND cleanup subscription are installed
// here.
func NewService(pool *Pool, registry *Registry, internalBus *bus.InternalBus, playerBus *bus.PlayerBus, games ActiveGames) *Service {
	s := &Service{
		pool:     pool,
		registry: registry,
		internal: internalBus,
		players:  playerBus,
		games:    games,
	}
	registry.OnLowAvailability(s.handleLowAvailability)
	registry.OnBotFallback(s.handleBotFallback)

	// Either player of a match may still hold an entry (e.g. matched by the
	// other side's join); clean up both.
	internalBus.SubscribeMatchFound(func(ev bus.MatchFound) {
		for _, pid := range []string{ev.Player1ID, ev.Player2ID} {
			if entry, ok := s.pool.FindByPlayerID(pid); ok {
				s.registry.Clear(entry.ID)
				s.pool.Remove(entry.ID)
				log.Printf("[MATCHMAKING] Cleaned up stale entry %s for matched player %s", entry.ID, pid)
			}
		}
	})
	return s
}

// Enter places a player into the pool, pairing immediately when a partner is
// waiting. Returns ResultMatchedHuman or ResultSearching.
func (s *Service) Enter(playerID, displayName, roomTypeRaw string) (string, error) {
	roomType, ok := hanafuda.ParseRoomType(roomTypeRaw)
	if !ok {
		return "", ErrInvalidRoomType
	}
	if s.pool.HasPlayer(playerID) {
		return "", ErrAlreadyInQueue
	}
	if s.games.HasActiveGame(playerID) {
		return "", ErrAlreadyInGame
	}

	entry := NewEntry(playerID, displayName, roomType)
	if err := s.pool.Add(entry); err != nil {
		return "", err
	}

	if partner, found := s.pool.FindMatch(entry); found {
		// RemovePair claims both entries atomically; only the claimant may
		// publish. Losing the claim means a concurrent Enter or a bot
		// fallback took the partner first.
		if _, _, ok := s.pool.RemovePair(partner.ID, entry.ID); ok {
			s.registry.Clear(partner.ID)

			matched := bus.MatchFound{
				Player1ID:   partner.PlayerID,
				Player1Name: partner.DisplayName,
				Player2ID:   entry.PlayerID,
				Player2Name: entry.DisplayName,
				RoomType:    roomType,
				MatchType:   bus.MatchHuman,
				MatchedAt:   time.Now().UTC(),
			}
			log.Printf("[MATCHMAKING] Matched %s with %s in %s", partner.PlayerID, entry.PlayerID, roomType)
			s.internal.PublishMatchFound(matched)

			s.publishFound(partner.PlayerID, entry, bus.MatchHuman)
			s.publishFound(entry.PlayerID, partner, bus.MatchHuman)
			return ResultMatchedHuman, nil
		}
		if _, still := s.pool.FindByID(entry.ID); !still {
			// The winning side claimed this entry too and published the
			// match for both players.
			log.Printf("[MATCHMAKING] Entry %s claimed by concurrent match for %s", entry.ID, playerID)
			return ResultMatchedHuman, nil
		}
		// Partner vanished (cancelled or fell back to a bot); keep waiting.
	}

	s.registry.Register(entry.ID)
	s.players.Publish(playerID, bus.GatewayEvent{
		Domain:  bus.DomainMatchmaking,
		Type:    bus.EventMatchmakingStatus,
		Payload: StatusPayload{EntryID: entry.ID, RoomType: roomType, Status: StatusSearching},
	})
	return ResultSearching, nil
}

// Cancel removes a player's entry and clears its timers
func (s *Service) Cancel(playerID string) error {
	entry, ok := s.pool.FindByPlayerID(playerID)
	if !ok {
		return ErrNotInQueue
	}
	s.registry.Clear(entry.ID)
	s.pool.Remove(entry.ID)
	log.Printf("[MATCHMAKING] Entry %s cancelled by player %s", entry.ID, playerID)
	s.players.Publish(playerID, bus.GatewayEvent{
		Domain:  bus.DomainMatchmaking,
		Type:    bus.EventMatchmakingCancelled,
		Payload: CancelledPayload{EntryID: entry.ID, RoomType: entry.RoomType},
	})
	return nil
}

// handleLowAvailability transitions SEARCHING to LOW_AVAILABILITY and tells
// the player.
func (s *Service) handleLowAvailability(entryID string) {
	entry, ok := s.pool.FindByID(entryID)
	if !ok || entry.Status != StatusSearching {
		return
	}
	s.pool.UpdateStatus(entryID, StatusLowAvailability)
	log.Printf("[MATCHMAKING] Entry %s now LOW_AVAILABILITY", entryID)
	s.players.Publish(entry.PlayerID, bus.GatewayEvent{
		Domain:  bus.DomainMatchmaking,
		Type:    bus.EventMatchmakingStatus,
		Payload: StatusPayload{EntryID: entry.ID, RoomType: entry.RoomType, Status: StatusLowAvailability},
	})
}

// handleBotFallback substitutes the AI opponent after the bounded wait
func (s *Service) handleBotFallback(entryID string) {
	entry, ok := s.pool.Remove(entryID)
	if !ok || !entry.Status.Matchable() {
		return
	}
	s.registry.Clear(entryID)

	matched := bus.MatchFound{
		Player1ID:   entry.PlayerID,
		Player1Name: entry.DisplayName,
		Player2ID:   identity.BotPlayerID,
		Player2Name: identity.BotDisplayName,
		RoomType:    entry.RoomType,
		MatchType:   bus.MatchBot,
		MatchedAt:   time.Now().UTC(),
	}
	log.Printf("[MATCHMAKING] Bot fallback for entry %s (player %s)", entryID, entry.PlayerID)
	s.internal.PublishMatchFound(matched)

	s.players.Publish(entry.PlayerID, bus.GatewayEvent{
		Domain: bus.DomainMatchmaking,
		Type:   bus.EventMatchFound,
		Payload: FoundPayload{
			OpponentID:   identity.BotPlayerID,
			OpponentName: identity.BotDisplayName,
			RoomType:     entry.RoomType,
			MatchType:    bus.MatchBot,
		},
	})
}

func (s *Service) publishFound(playerID string, opponent Entry, matchType bus.MatchType) {
	s.players.Publish(playerID, bus.GatewayEvent{
		Domain: bus.DomainMatchmaking,
		Type:   bus.EventMatchFound,
		Payload: FoundPayload{
			OpponentID:   opponent.PlayerID,
			OpponentName: opponent.DisplayName,
			RoomType:     opponent.RoomType,
			MatchType:    matchType,
		},
	})
}
