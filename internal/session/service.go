package session

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanakoi/backend/internal/bus"
	"github.com/hanakoi/backend/internal/config"
	"github.com/hanakoi/backend/internal/hanafuda"
	"github.com/hanakoi/backend/internal/identity"
	"github.com/hanakoi/backend/internal/matchmaking"
)

// Service is the game session runtime. It owns the command path, creates
// games from MATCH_FOUND events, and drives round progression through its
// per-game timer slot.
type Service struct {
	cfg      *config.Config
	store    *GameStore
	repo     *Repository
	internal *bus.InternalBus
	players  *bus.PlayerBus
	timers   *TimerService
	limiter  *RateLimiter
	match    *matchmaking.Service
	ids      *identity.PlayerStore
	rdb      *redis.Client

	rngMu sync.Mutex
	rng   *rand.Rand

	idleMu sync.Mutex
	idle   map[string]map[string]int // game id -> player id -> consecutive auto actions
}

// NewService wires the session runtime together and subscribes it to the
// MATCH_FOUND topic. rdb may be nil.
func NewService(
	cfg *config.Config,
	store *GameStore,
	repo *Repository,
	internalBus *bus.InternalBus,
	playerBus *bus.PlayerBus,
	timers *TimerService,
	limiter *RateLimiter,
	match *matchmaking.Service,
	ids *identity.PlayerStore,
	rdb *redis.Client,
) *Service {
	s := &Service{
		cfg:      cfg,
		store:    store,
		repo:     repo,
		internal: internalBus,
		players:  playerBus,
		timers:   timers,
		limiter:  limiter,
		match:    match,
		ids:      ids,
		rdb:      rdb,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		idle:     make(map[string]map[string]int),
	}
	internalBus.SubscribeMatchFound(s.handleMatchFound)
	return s
}

func newGameID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return "g_" + hex.EncodeToString(b)
}

// HandleCommand runs one inbound command for a player and returns the
// response frame. PING bypasses the rate limiter; everything else spends
// budget before it is even parsed.
func (s *Service) HandleCommand(playerID string, frame CommandFrame) CommandResponse {
	if frame.Type == CmdPing {
		return ackResult(frame.CommandID, "PONG")
	}

	if ok, retryAfter := s.limiter.Check(playerID); !ok {
		resp := reject(frame.CommandID, CodeRateLimitExceeded, "too many commands")
		resp.RetryAfter = retryAfter
		return resp
	}

	s.noteManualAction(playerID)
	return s.dispatch(playerID, frame)
}

// DispatchInternal runs a command without spending rate-limit budget. The AI
// opponent is not a remote client; its moves never count against a window.
func (s *Service) DispatchInternal(playerID string, frame CommandFrame) CommandResponse {
	return s.dispatch(playerID, frame)
}

func (s *Service) dispatch(playerID string, frame CommandFrame) CommandResponse {
	switch frame.Type {
	case CmdJoinMatchmaking:
		var p JoinMatchmakingPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return reject(frame.CommandID, CodeUnknownError, "malformed payload")
		}
		player, err := s.ids.Get(playerID)
		if err != nil {
			return reject(frame.CommandID, CodePlayerNotFound, "player not found")
		}
		result, err := s.match.Enter(playerID, player.DisplayName, p.RoomType)
		if err != nil {
			return reject(frame.CommandID, errorCode(err), err.Error())
		}
		return ackResult(frame.CommandID, result)

	case CmdCancelMatchmaking:
		if err := s.match.Cancel(playerID); err != nil {
			return reject(frame.CommandID, errorCode(err), err.Error())
		}
		return ack(frame.CommandID)

	case CmdPlayCard:
		var p PlayCardPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return reject(frame.CommandID, CodeUnknownError, "malformed payload")
		}
		err := s.withGame(p.GameID, playerID, func(g *hanafuda.Game) error {
			return s.playCardLocked(g, playerID, p.CardID, p.TargetCardID, false)
		})
		if err != nil {
			return reject(frame.CommandID, errorCode(err), err.Error())
		}
		return ack(frame.CommandID)

	case CmdSelectTarget:
		var p SelectTargetPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return reject(frame.CommandID, CodeUnknownError, "malformed payload")
		}
		err := s.withGame(p.GameID, playerID, func(g *hanafuda.Game) error {
			return s.selectTargetLocked(g, playerID, p.SourceCardID, p.TargetCardID, false)
		})
		if err != nil {
			return reject(frame.CommandID, errorCode(err), err.Error())
		}
		return ack(frame.CommandID)

	case CmdMakeDecision:
		var p MakeDecisionPayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return reject(frame.CommandID, CodeUnknownError, "malformed payload")
		}
		err := s.withGame(p.GameID, playerID, func(g *hanafuda.Game) error {
			return s.makeDecisionLocked(g, playerID, hanafuda.Decision(p.Decision), false)
		})
		if err != nil {
			return reject(frame.CommandID, errorCode(err), err.Error())
		}
		return ack(frame.CommandID)

	case CmdConfirmContinue:
		var p ConfirmContinuePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return reject(frame.CommandID, CodeUnknownError, "malformed payload")
		}
		err := s.withGame(p.GameID, playerID, func(g *hanafuda.Game) error {
			return s.confirmContinueLocked(g, playerID, p.Decision)
		})
		if err != nil {
			return reject(frame.CommandID, errorCode(err), err.Error())
		}
		return ack(frame.CommandID)

	case CmdLeaveGame:
		var p LeaveGamePayload
		if err := json.Unmarshal(frame.Payload, &p); err != nil {
			return reject(frame.CommandID, CodeUnknownError, "malformed payload")
		}
		err := s.withGame(p.GameID, playerID, func(g *hanafuda.Game) error {
			s.forceFinishLocked(g, playerID, "PLAYER_LEFT")
			return nil
		})
		if err != nil {
			return reject(frame.CommandID, errorCode(err), err.Error())
		}
		return ack(frame.CommandID)
	}

	return reject(frame.CommandID, CodeUnknownCommand, "unknown command type "+frame.Type)
}

// withGame resolves the game, takes its lock, and re-reads the latest
// snapshot before running fn. An unknown game and a game the caller does not
// belong to are indistinguishable on the wire.
func (s *Service) withGame(gameID, playerID string, fn func(*hanafuda.Game) error) error {
	if gameID == "" {
		return ErrGameNotFound
	}
	lock := s.store.LockGame(gameID)
	lock.Lock()
	defer lock.Unlock()

	g, ok := s.store.Get(gameID)
	if !ok || !g.HasPlayer(playerID) {
		return ErrGameNotFound
	}
	return fn(g)
}

// handleMatchFound creates the game for a fresh pairing and schedules the
// first deal after the starting grace period.
func (s *Service) handleMatchFound(ev bus.MatchFound) {
	gameID := newGameID()

	g := hanafuda.NewGame(gameID, ev.RoomType, hanafuda.PlayerSeat{
		ID:          ev.Player1ID,
		DisplayName: ev.Player1Name,
		IsBot:       ev.Player1ID == identity.BotPlayerID,
		Connected:   true,
	})
	g, err := g.AddPlayer(hanafuda.PlayerSeat{
		ID:          ev.Player2ID,
		DisplayName: ev.Player2Name,
		IsBot:       ev.Player2ID == identity.BotPlayerID,
		Connected:   true,
	})
	if err != nil {
		log.Printf("[SESSION] Failed to seat players for game %s: %v", gameID, err)
		return
	}

	s.store.Set(g)
	s.repo.SaveGame(g)
	s.repo.AppendLog(gameID, "GAME_CREATED", map[string]interface{}{
		"players":   []string{ev.Player1ID, ev.Player2ID},
		"room_type": ev.RoomType,
		"match":     ev.MatchType,
	})
	log.Printf("[SESSION] Created game %s (%s, %s vs %s)", gameID, ev.RoomType, ev.Player1ID, ev.Player2ID)

	grace := time.Duration(s.cfg.StartingGraceMillis) * time.Millisecond
	s.timers.StartTimeout(gameID, grace, func() { s.dealNext(gameID) })
}

// dealNext is the timer entry point for dealing a round
func (s *Service) dealNext(gameID string) {
	lock := s.store.LockGame(gameID)
	lock.Lock()
	defer lock.Unlock()

	g, ok := s.store.Get(gameID)
	if !ok || !g.Active() {
		return
	}
	s.dealNextLocked(g)
}

func (s *Service) dealNextLocked(g *hanafuda.Game) {
	s.rngMu.Lock()
	ng, err := g.StartRound(s.rng)
	s.rngMu.Unlock()
	if err != nil {
		log.Printf("[SESSION] Failed to deal round for game %s: %v", g.ID, err)
		return
	}
	s.store.Set(ng)
	s.repo.SaveGame(ng)

	roundNumber := ng.RoundsPlayed + 1
	s.publishGameEvent(ng, bus.EventRoundDealt, func(viewer string) interface{} {
		return RoundDealtPayload{RoundNumber: roundNumber, Game: buildGameView(ng, viewer)}
	})
	s.repo.AppendLog(ng.ID, "ROUND_DEALT", map[string]interface{}{
		"round_number": roundNumber,
		"dealer_id":    ng.CurrentRound.DealerID,
	})
	s.mirrorEvent(ng.ID, "ROUND_DEALT", map[string]interface{}{"round_number": roundNumber})
	log.Printf("[SESSION] Dealt round %d for game %s, dealer %s", roundNumber, ng.ID, ng.CurrentRound.DealerID)

	if ng.CurrentRound.FlowState == hanafuda.FlowRoundEnded {
		// Instant yaku settled the round at deal time
		s.settleRoundLocked(ng)
		return
	}
	s.armActionTimeout(ng.ID)
}

// playCardLocked runs a hand play under the game lock
func (s *Service) playCardLocked(g *hanafuda.Game, playerID, cardID, targetID string, auto bool) error {
	if g.CurrentRound == nil {
		return hanafuda.ErrNoCurrentRound
	}
	nr, outcome, err := g.CurrentRound.PlayHandCard(playerID, cardID, targetID)
	if err != nil {
		return err
	}
	s.applyTurnLocked(g, nr, outcome, auto, false)
	return nil
}

// selectTargetLocked resolves a pending selection under the game lock
func (s *Service) selectTargetLocked(g *hanafuda.Game, playerID, sourceID, targetID string, auto bool) error {
	if g.CurrentRound == nil {
		return hanafuda.ErrNoCurrentRound
	}
	nr, outcome, err := g.CurrentRound.SelectTarget(playerID, sourceID, targetID)
	if err != nil {
		return err
	}
	s.applyTurnLocked(g, nr, outcome, auto, true)
	return nil
}

// makeDecisionLocked answers a pending koi-koi decision under the game lock
func (s *Service) makeDecisionLocked(g *hanafuda.Game, playerID string, decision hanafuda.Decision, auto bool) error {
	if g.CurrentRound == nil {
		return hanafuda.ErrNoCurrentRound
	}
	nr, outcome, err := g.CurrentRound.MakeDecision(playerID, decision)
	if err != nil {
		return err
	}

	ng := g.WithRound(nr)
	s.store.Set(ng)
	s.repo.SaveGame(ng)

	s.publishGameEvent(ng, bus.EventDecisionMade, func(viewer string) interface{} {
		return DecisionMadePayload{
			PlayerID:   playerID,
			Decision:   decision,
			Multiplier: nr.KoiKoi[playerID].Multiplier,
			Game:       buildGameView(ng, viewer),
		}
	})
	s.repo.AppendLog(ng.ID, "DECISION_MADE", map[string]interface{}{
		"player_id": playerID,
		"decision":  decision,
		"auto":      auto,
	})

	if outcome.RoundEnded {
		s.settleRoundLocked(ng)
		return nil
	}
	s.armActionTimeout(ng.ID)
	return nil
}

// confirmContinueLocked records a continue confirmation; CONTINUE from both
// players cuts the display pause short, LEAVE force-finishes.
func (s *Service) confirmContinueLocked(g *hanafuda.Game, playerID, decision string) error {
	switch decision {
	case "LEAVE":
		s.forceFinishLocked(g, playerID, "PLAYER_LEFT")
		return nil
	case "CONTINUE", "":
	default:
		return hanafuda.ErrInvalidFlowState
	}

	ng, allConfirmed, err := g.ConfirmContinue(playerID)
	if err != nil {
		return err
	}
	s.store.Set(ng)

	if allConfirmed {
		s.timers.CancelTimeout(ng.ID)
		s.dealNextLocked(ng)
	}
	return nil
}

// applyTurnLocked stores the new round snapshot and fans out the matching
// events. Must run under the game lock.
func (s *Service) applyTurnLocked(g *hanafuda.Game, nr *hanafuda.Round, outcome *hanafuda.TurnOutcome, auto, afterSelection bool) {
	ng := g.WithRound(nr)
	s.store.Set(ng)
	s.repo.SaveGame(ng)
	move := buildMoveView(outcome, auto)

	switch {
	case outcome.SelectionRequired:
		sel := nr.Selection
		s.publishGameEvent(ng, bus.EventSelectionRequired, func(viewer string) interface{} {
			return SelectionRequiredPayload{
				PlayerID:        outcome.PlayerID,
				SourceCard:      sel.SourceCard,
				PossibleTargets: sel.PossibleTargets,
				FromDraw:        sel.FromDraw,
				Game:            buildGameView(ng, viewer),
			}
		})
		s.repo.AppendLog(ng.ID, "SELECTION_REQUIRED", move)
		s.armActionTimeout(ng.ID)

	case outcome.DecisionRequired:
		s.publishGameEvent(ng, bus.EventDecisionRequired, func(viewer string) interface{} {
			return DecisionRequiredPayload{
				PlayerID:   outcome.PlayerID,
				ActiveYaku: nr.Decision.ActiveYaku,
				Move:       move,
				Game:       buildGameView(ng, viewer),
			}
		})
		s.repo.AppendLog(ng.ID, "DECISION_REQUIRED", move)
		s.armActionTimeout(ng.ID)

	case outcome.RoundEnded:
		s.repo.AppendLog(ng.ID, "TURN_COMPLETED", move)
		s.settleRoundLocked(ng)

	default:
		typ := bus.EventTurnCompleted
		if afterSelection {
			typ = bus.EventTurnProgressAfterSelection
		}
		s.publishGameEvent(ng, typ, func(viewer string) interface{} {
			return TurnCompletedPayload{Move: move, Game: buildGameView(ng, viewer)}
		})
		s.repo.AppendLog(ng.ID, string(typ), move)
		s.mirrorEvent(ng.ID, string(typ), move)
		s.armActionTimeout(ng.ID)
	}
}

// settleRoundLocked folds the ended round into the game, announces the
// result, and either finishes the game or starts the display pause.
func (s *Service) settleRoundLocked(g *hanafuda.Game) {
	ng, err := g.SettleRound()
	if err != nil {
		log.Printf("[SESSION] Failed to settle round for game %s: %v", g.ID, err)
		return
	}
	s.store.Set(ng)
	s.repo.SaveGame(ng)

	settlement := ng.CurrentRound.Settlement
	typ := bus.EventRoundScored
	switch settlement.Reason {
	case hanafuda.EndHandsEmpty:
		typ = bus.EventRoundDrawn
	case hanafuda.EndTeshi, hanafuda.EndKuttsuki, hanafuda.EndFieldKuttsuki:
		typ = bus.EventRoundEndedInstantly
	}

	countdown := 0
	if ng.Status != hanafuda.StatusFinished {
		countdown = s.cfg.DisplayTimeoutSeconds
	}
	s.publishGameEvent(ng, typ, func(viewer string) interface{} {
		return RoundScoredPayload{
			Settlement:       settlement,
			Scores:           ng.Scores,
			RoundsPlayed:     ng.RoundsPlayed,
			TotalRounds:      ng.Rules.TotalRounds,
			CountdownSeconds: countdown,
			Game:             buildGameView(ng, viewer),
		}
	})
	s.repo.AppendLog(ng.ID, string(typ), settlement)
	s.mirrorEvent(ng.ID, string(typ), settlement)
	log.Printf("[SESSION] Round ended for game %s: %s, winner %q, %d points",
		ng.ID, settlement.Reason, settlement.WinnerID, settlement.AwardedPoints)

	if ng.Status == hanafuda.StatusFinished {
		s.finishGameLocked(ng, "ROUNDS_COMPLETE")
		return
	}

	// The display pause doubles as the continue-confirmation window; silence
	// counts as CONTINUE for both players.
	pause := time.Duration(s.cfg.DisplayTimeoutSeconds) * time.Second
	s.timers.StartTimeout(ng.ID, pause, func() { s.advanceAfterRound(ng.ID) })
}

// advanceAfterRound fires when the display pause elapses: outstanding
// continue confirmations are treated as CONTINUE and the next round is dealt.
func (s *Service) advanceAfterRound(gameID string) {
	lock := s.store.LockGame(gameID)
	lock.Lock()
	defer lock.Unlock()

	g, ok := s.store.Get(gameID)
	if !ok || g.Status != hanafuda.StatusInProgress {
		return
	}

	for _, pid := range append([]string(nil), g.PendingContinue...) {
		ng, _, err := g.ConfirmContinue(pid)
		if err != nil {
			continue
		}
		g = ng
	}
	s.store.Set(g)
	s.dealNextLocked(g)
}

// forceFinishLocked ends the game against the leaver. Must run under the
// game lock.
func (s *Service) forceFinishLocked(g *hanafuda.Game, leaverID, reason string) {
	ng := g.ForceFinish(leaverID)
	s.store.Set(ng)
	log.Printf("[SESSION] Game %s force-finished, player %s left (%s)", ng.ID, leaverID, reason)
	s.finishGameLocked(ng, reason)
}

// finishGameLocked publishes the terminal events, records results, and
// releases the game's runtime resources.
func (s *Service) finishGameLocked(g *hanafuda.Game, reason string) {
	s.timers.CancelTimeout(g.ID)

	winner, _ := g.Winner()
	s.publishGameEvent(g, bus.EventGameFinished, func(viewer string) interface{} {
		return GameFinishedPayload{
			WinnerID:    winner,
			FinalScores: g.Scores,
			Reason:      reason,
			Game:        buildGameView(g, viewer),
		}
	})

	playerIDs := make([]string, 0, len(g.Players))
	for _, seat := range g.Players {
		playerIDs = append(playerIDs, seat.ID)
	}
	s.internal.PublishGameFinished(bus.GameFinished{
		GameID:      g.ID,
		WinnerID:    winner,
		FinalScores: g.Scores,
		Players:     playerIDs,
		FinishedAt:  time.Now().UTC(),
	})

	for _, seat := range g.Players {
		if seat.IsBot {
			continue
		}
		// Leaving a game hands the player a fresh command window
		s.limiter.Reset(seat.ID)
		outcome := "draw"
		switch {
		case winner == seat.ID:
			outcome = "win"
		case winner != "":
			outcome = "loss"
		}
		s.repo.RecordResult(seat.ID, outcome, g.Scores[seat.ID])
	}

	s.repo.SaveGame(g)
	s.repo.AppendLog(g.ID, "GAME_FINISHED", map[string]interface{}{
		"winner_id": winner,
		"scores":    g.Scores,
		"reason":    reason,
	})
	s.mirrorEvent(g.ID, "GAME_FINISHED", map[string]interface{}{"winner_id": winner, "scores": g.Scores})
	log.Printf("[SESSION] Game %s finished, winner %q (%s)", g.ID, winner, reason)

	s.store.Delete(g.ID)
	s.clearIdle(g.ID)
}

// HandleConnect re-binds a connected player to their running game: the seat
// flag flips and the full snapshot is replayed to them.
func (s *Service) HandleConnect(playerID string) {
	gameID, ok := s.store.GameFor(playerID)
	if !ok {
		return
	}
	lock := s.store.LockGame(gameID)
	lock.Lock()
	defer lock.Unlock()

	g, ok := s.store.Get(gameID)
	if !ok {
		return
	}
	ng := g.SetConnected(playerID, true)
	s.store.Set(ng)

	s.players.Publish(playerID, bus.GatewayEvent{
		Domain:  bus.DomainGame,
		Type:    bus.EventGameSnapshotRestore,
		GameID:  gameID,
		Payload: SnapshotRestorePayload{Game: buildGameView(ng, playerID)},
	})
	log.Printf("[SESSION] Restored game %s snapshot for player %s", gameID, playerID)
}

// HandleDisconnect marks the seat disconnected. The game keeps running; the
// action timer plays for the absent player until they return or time out of
// the game entirely.
func (s *Service) HandleDisconnect(playerID string) {
	gameID, ok := s.store.GameFor(playerID)
	if !ok {
		return
	}
	lock := s.store.LockGame(gameID)
	lock.Lock()
	defer lock.Unlock()

	g, ok := s.store.Get(gameID)
	if !ok {
		return
	}
	s.store.Set(g.SetConnected(playerID, false))
	log.Printf("[SESSION] Player %s disconnected from game %s", playerID, gameID)
}

func (s *Service) armActionTimeout(gameID string) {
	d := time.Duration(s.cfg.ActionTimeoutSeconds) * time.Second
	s.timers.StartTimeout(gameID, d, func() { s.autoAct(gameID) })
}

func (s *Service) publishGameEvent(g *hanafuda.Game, typ bus.EventType, payloadFor func(viewerID string) interface{}) {
	for _, seat := range g.Players {
		s.players.Publish(seat.ID, bus.GatewayEvent{
			Domain:  bus.DomainGame,
			Type:    typ,
			GameID:  g.ID,
			Payload: payloadFor(seat.ID),
		})
	}
}

// mirrorEvent publishes a copy of the event on the redis game_events channel
// for external consumers. Best-effort.
func (s *Service) mirrorEvent(gameID, eventType string, payload interface{}) {
	if s.rdb == nil {
		return
	}
	msg, err := json.Marshal(map[string]interface{}{
		"game_id": gameID,
		"type":    eventType,
		"payload": payload,
		"ts":      time.Now().UTC(),
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.rdb.Publish(ctx, "game_events", msg).Err(); err != nil {
		log.Printf("[SESSION] Failed to mirror event %s for game %s: %v", eventType, gameID, err)
	}
}
