package session

import (
	"log"

	"github.com/hanakoi/backend/internal/bus"
	"github.com/hanakoi/backend/internal/hanafuda"
)

// A player whose action timer fires this many times in a row is treated as
// gone and forfeits the game.
const maxConsecutiveAutoActions = 3

// autoAct fires when the active player's action timer elapses. It resolves
// the pending flow state with the least surprising legal action: the first
// hand card, the first capture candidate, or END_ROUND.
func (s *Service) autoAct(gameID string) {
	lock := s.store.LockGame(gameID)
	lock.Lock()
	defer lock.Unlock()

	g, ok := s.store.Get(gameID)
	if !ok || g.Status != hanafuda.StatusInProgress || g.CurrentRound == nil {
		return
	}
	r := g.CurrentRound
	if r.FlowState == hanafuda.FlowRoundEnded {
		return
	}
	pid := r.ActivePlayerID

	if s.bumpIdle(gameID, pid) >= maxConsecutiveAutoActions {
		log.Printf("[SESSION] Player %s timed out %d turns in a row in game %s, forfeiting",
			pid, maxConsecutiveAutoActions, gameID)
		s.forceFinishLocked(g, pid, "ABANDONED")
		return
	}
	log.Printf("[SESSION] Auto action for player %s in game %s (%s)", pid, gameID, r.FlowState)

	var err error
	switch r.FlowState {
	case hanafuda.FlowAwaitingHandPlay:
		hand := r.Players[pid].Hand
		if len(hand) == 0 {
			return
		}
		card := hand[0]
		target := ""
		// Resolve a would-be selection immediately so the turn completes
		if m := hanafuda.MatchableCards(card, r.Field); len(m) == 2 {
			target = m[0]
		}
		err = s.playCardLocked(g, pid, card, target, true)

	case hanafuda.FlowAwaitingSelection:
		sel := r.Selection
		err = s.selectTargetLocked(g, pid, sel.SourceCard, sel.PossibleTargets[0], true)

	case hanafuda.FlowAwaitingDecision:
		err = s.makeDecisionLocked(g, pid, hanafuda.DecisionEndRound, true)
	}

	if err != nil {
		log.Printf("[SESSION] Auto action failed for player %s in game %s: %v", pid, gameID, err)
		s.players.Publish(pid, bus.GatewayEvent{
			Domain:  bus.DomainGame,
			Type:    bus.EventTurnError,
			GameID:  gameID,
			Payload: map[string]string{"code": errorCode(err), "message": err.Error()},
		})
	}
}

// bumpIdle increments a player's consecutive auto-action counter
func (s *Service) bumpIdle(gameID, playerID string) int {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	m := s.idle[gameID]
	if m == nil {
		m = make(map[string]int)
		s.idle[gameID] = m
	}
	m[playerID]++
	return m[playerID]
}

// noteManualAction resets the caller's idle counter for their current game
func (s *Service) noteManualAction(playerID string) {
	gameID, ok := s.store.GameFor(playerID)
	if !ok {
		return
	}
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	if m := s.idle[gameID]; m != nil {
		m[playerID] = 0
	}
}

func (s *Service) clearIdle(gameID string) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	delete(s.idle, gameID)
}
