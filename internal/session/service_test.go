package session

import (
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanakoi/backend/internal/bus"
	"github.com/hanakoi/backend/internal/config"
	"github.com/hanakoi/backend/internal/hanafuda"
	"github.com/hanakoi/backend/internal/identity"
	"github.com/hanakoi/backend/internal/matchmaking"
)

type runtimeFixture struct {
	svc     *Service
	store   *GameStore
	players *bus.PlayerBus
	ids     *identity.PlayerStore

	mu     sync.Mutex
	events map[string][]bus.GatewayEvent
}

func newRuntimeFixture(t *testing.T) *runtimeFixture {
	return newRuntimeFixtureWithBudget(t, 100)
}

func newRuntimeFixtureWithBudget(t *testing.T, budget int) *runtimeFixture {
	t.Helper()
	cfg := &config.Config{
		ActionTimeoutSeconds:  30,
		DisplayTimeoutSeconds: 5,
		StartingGraceMillis:   10,
	}
	internal := bus.NewInternalBus()
	players := bus.NewPlayerBus()
	store := NewGameStore(nil)
	timers := NewTimerService()
	t.Cleanup(timers.Stop)
	registry := matchmaking.NewRegistry(time.Minute, time.Minute)
	t.Cleanup(registry.Stop)
	match := matchmaking.NewService(matchmaking.NewPool(), registry, internal, players, store)
	ids := identity.NewPlayerStore(nil)

	f := &runtimeFixture{
		store:   store,
		players: players,
		ids:     ids,
		events:  make(map[string][]bus.GatewayEvent),
	}
	limiter := NewRateLimiter(time.Second, budget)
	f.svc = NewService(cfg, store, NewRepository(nil), internal, players, timers, limiter, match, ids, nil)
	return f
}

func (f *runtimeFixture) watch(playerID string) {
	f.players.Subscribe(playerID, func(ev bus.GatewayEvent) {
		f.mu.Lock()
		f.events[playerID] = append(f.events[playerID], ev)
		f.mu.Unlock()
	})
}

func (f *runtimeFixture) eventsOf(playerID string, typ bus.EventType) []bus.GatewayEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bus.GatewayEvent
	for _, ev := range f.events[playerID] {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func cmd(id, typ string, payload interface{}) CommandFrame {
	raw, _ := json.Marshal(payload)
	return CommandFrame{CommandID: id, Type: typ, Payload: raw}
}

// fixtureRound builds a deterministic in-progress round with Alice to act
func fixtureRound(hand1, hand2, field, deck []string) *hanafuda.Round {
	return &hanafuda.Round{
		DealerID:       "p_alice",
		PlayerIDs:      [2]string{"p_alice", "p_bob"},
		Field:          append([]string{}, field...),
		Deck:           append([]string{}, deck...),
		FlowState:      hanafuda.FlowAwaitingHandPlay,
		ActivePlayerID: "p_alice",
		Players: map[string]hanafuda.PlayerArea{
			"p_alice": {Hand: hand1, Depository: []string{}},
			"p_bob":   {Hand: hand2, Depository: []string{}},
		},
		KoiKoi: map[string]hanafuda.KoiKoiStatus{
			"p_alice": {Multiplier: 1},
			"p_bob":   {Multiplier: 1},
		},
	}
}

// injectGame stores an in-progress game holding the given round
func (f *runtimeFixture) injectGame(t *testing.T, gameID string, r *hanafuda.Round) *hanafuda.Game {
	t.Helper()
	g := hanafuda.NewGame(gameID, hanafuda.RoomQuick, hanafuda.PlayerSeat{ID: "p_alice", DisplayName: "Alice", Connected: true})
	g, err := g.AddPlayer(hanafuda.PlayerSeat{ID: "p_bob", DisplayName: "Bob", Connected: true})
	require.NoError(t, err)
	g, err = g.StartRound(rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	g = g.WithRound(r)
	f.store.Set(g)
	return g
}

func TestMatchFoundCreatesGameAndDeals(t *testing.T) {
	f := newRuntimeFixture(t)

	alice, err := f.ids.Register("Alice", "password123")
	require.NoError(t, err)
	bob, err := f.ids.Register("Bob", "password123")
	require.NoError(t, err)
	f.watch(alice.ID)
	f.watch(bob.ID)

	resp := f.svc.HandleCommand(alice.ID, cmd("c1", CmdJoinMatchmaking, JoinMatchmakingPayload{RoomType: "QUICK"}))
	require.True(t, resp.Success)
	assert.Equal(t, matchmaking.ResultSearching, resp.Result)

	resp = f.svc.HandleCommand(bob.ID, cmd("c2", CmdJoinMatchmaking, JoinMatchmakingPayload{RoomType: "QUICK"}))
	require.True(t, resp.Success)
	assert.Equal(t, matchmaking.ResultMatchedHuman, resp.Result)

	gameID, ok := f.store.GameFor(alice.ID)
	require.True(t, ok)
	otherID, ok := f.store.GameFor(bob.ID)
	require.True(t, ok)
	assert.Equal(t, gameID, otherID)

	// The first deal lands after the starting grace period
	require.Eventually(t, func() bool {
		return len(f.eventsOf(alice.ID, bus.EventRoundDealt)) == 1 &&
			len(f.eventsOf(bob.ID, bus.EventRoundDealt)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	dealt := f.eventsOf(alice.ID, bus.EventRoundDealt)[0].Payload.(RoundDealtPayload)
	assert.Equal(t, 1, dealt.RoundNumber)
	assert.Len(t, dealt.Game.Round.Hand, 8, "viewer sees their own hand")
	assert.Equal(t, 8, dealt.Game.Round.OpponentHandCount, "opponent hand is a count")
}

func TestPlayCardCompletesTurn(t *testing.T) {
	f := newRuntimeFixture(t)
	f.watch("p_alice")
	f.watch("p_bob")
	f.injectGame(t, "g_1", fixtureRound(
		[]string{"0101"}, []string{"0501"}, []string{"0103"}, []string{"0301"},
	))

	resp := f.svc.HandleCommand("p_alice", cmd("c1", CmdPlayCard, PlayCardPayload{GameID: "g_1", CardID: "0101"}))
	require.True(t, resp.Success, "%s: %s", resp.Code, resp.Message)

	g, ok := f.store.Get("g_1")
	require.True(t, ok)
	assert.Equal(t, "p_bob", g.CurrentRound.ActivePlayerID)
	assert.ElementsMatch(t, []string{"0101", "0103"}, g.CurrentRound.Players["p_alice"].Depository)

	completed := f.eventsOf("p_bob", bus.EventTurnCompleted)
	require.Len(t, completed, 1)
	payload := completed[0].Payload.(TurnCompletedPayload)
	assert.Equal(t, "0101", payload.Move.HandCard)
	assert.True(t, payload.Move.DrawPlaced)
	assert.False(t, payload.Move.AutoPlayed)
}

func TestCommandValidation(t *testing.T) {
	f := newRuntimeFixture(t)
	f.injectGame(t, "g_1", fixtureRound(
		[]string{"0101"}, []string{"0501"}, []string{"0103"}, []string{"0301"},
	))

	// PING never touches game state
	resp := f.svc.HandleCommand("p_alice", CommandFrame{CommandID: "c0", Type: CmdPing})
	assert.True(t, resp.Success)
	assert.Equal(t, "PONG", resp.Result)

	// Out-of-turn play
	resp = f.svc.HandleCommand("p_bob", cmd("c1", CmdPlayCard, PlayCardPayload{GameID: "g_1", CardID: "0501"}))
	assert.False(t, resp.Success)
	assert.Equal(t, CodeWrongPlayer, resp.Code)

	// Unknown game, and a game the caller does not belong to, are the same code
	resp = f.svc.HandleCommand("p_alice", cmd("c2", CmdPlayCard, PlayCardPayload{GameID: "g_nope", CardID: "0101"}))
	assert.Equal(t, CodeGameNotFound, resp.Code)
	resp = f.svc.HandleCommand("p_eve", cmd("c3", CmdPlayCard, PlayCardPayload{GameID: "g_1", CardID: "0101"}))
	assert.Equal(t, CodeGameNotFound, resp.Code)

	resp = f.svc.HandleCommand("p_alice", cmd("c4", CmdPlayCard, PlayCardPayload{GameID: "g_1", CardID: "1201"}))
	assert.Equal(t, CodeInvalidCard, resp.Code)

	resp = f.svc.HandleCommand("p_alice", CommandFrame{CommandID: "c5", Type: "SHUFFLE_DECK"})
	assert.Equal(t, CodeUnknownCommand, resp.Code)

	resp = f.svc.HandleCommand("p_alice", CommandFrame{CommandID: "c6", Type: CmdPlayCard, Payload: []byte("{broken")})
	assert.Equal(t, CodeUnknownError, resp.Code)
}

func TestSelectionRoundTrip(t *testing.T) {
	f := newRuntimeFixture(t)
	f.watch("p_alice")
	f.watch("p_bob")
	f.injectGame(t, "g_1", fixtureRound(
		[]string{"0103"}, []string{"0501"}, []string{"0104", "0102"}, []string{"0201"},
	))

	resp := f.svc.HandleCommand("p_alice", cmd("c1", CmdPlayCard, PlayCardPayload{GameID: "g_1", CardID: "0103"}))
	require.True(t, resp.Success)

	required := f.eventsOf("p_alice", bus.EventSelectionRequired)
	require.Len(t, required, 1)
	sel := required[0].Payload.(SelectionRequiredPayload)
	assert.Equal(t, "0103", sel.SourceCard)
	assert.ElementsMatch(t, []string{"0104", "0102"}, sel.PossibleTargets)
	assert.False(t, sel.FromDraw)

	resp = f.svc.HandleCommand("p_alice", cmd("c2", CmdSelectTarget, SelectTargetPayload{
		GameID: "g_1", SourceCardID: "0103", TargetCardID: "0104",
	}))
	require.True(t, resp.Success, "%s: %s", resp.Code, resp.Message)

	g, _ := f.store.Get("g_1")
	assert.Equal(t, "p_bob", g.CurrentRound.ActivePlayerID)
	assert.ElementsMatch(t, []string{"0103", "0104"}, g.CurrentRound.Players["p_alice"].Depository)
	assert.Len(t, f.eventsOf("p_bob", bus.EventTurnProgressAfterSelection), 1)
}

func TestDecisionEndRoundScoresAndContinues(t *testing.T) {
	f := newRuntimeFixture(t)
	f.watch("p_alice")
	f.watch("p_bob")
	r := fixtureRound([]string{"0801"}, []string{"0503"}, []string{"0803"}, []string{"0203"})
	r.Players["p_alice"] = hanafuda.PlayerArea{Hand: []string{"0801"}, Depository: []string{"0101", "0301"}}
	f.injectGame(t, "g_1", r)

	// Capturing the third bright forms sanko and stops for a decision
	resp := f.svc.HandleCommand("p_alice", cmd("c1", CmdPlayCard, PlayCardPayload{GameID: "g_1", CardID: "0801"}))
	require.True(t, resp.Success, "%s: %s", resp.Code, resp.Message)

	required := f.eventsOf("p_alice", bus.EventDecisionRequired)
	require.Len(t, required, 1)
	dec := required[0].Payload.(DecisionRequiredPayload)
	require.Len(t, dec.Move.NewYaku, 1)
	assert.Equal(t, hanafuda.YakuSanko, dec.Move.NewYaku[0].Type)

	resp = f.svc.HandleCommand("p_alice", cmd("c2", CmdMakeDecision, MakeDecisionPayload{GameID: "g_1", Decision: "END_ROUND"}))
	require.True(t, resp.Success, "%s: %s", resp.Code, resp.Message)

	require.Len(t, f.eventsOf("p_bob", bus.EventDecisionMade), 1)
	scored := f.eventsOf("p_bob", bus.EventRoundScored)
	require.Len(t, scored, 1)
	payload := scored[0].Payload.(RoundScoredPayload)
	assert.Equal(t, "p_alice", payload.Settlement.WinnerID)
	assert.Equal(t, 5, payload.Settlement.AwardedPoints)
	assert.Equal(t, 1, payload.RoundsPlayed)

	g, _ := f.store.Get("g_1")
	assert.Equal(t, 5, g.Scores["p_alice"])
	assert.ElementsMatch(t, []string{"p_alice", "p_bob"}, g.PendingContinue)

	// Both confirmations cut the display pause short
	resp = f.svc.HandleCommand("p_alice", cmd("c3", CmdConfirmContinue, ConfirmContinuePayload{GameID: "g_1", Decision: "CONTINUE"}))
	require.True(t, resp.Success)
	resp = f.svc.HandleCommand("p_bob", cmd("c4", CmdConfirmContinue, ConfirmContinuePayload{GameID: "g_1", Decision: "CONTINUE"}))
	require.True(t, resp.Success)

	dealt := f.eventsOf("p_alice", bus.EventRoundDealt)
	require.Len(t, dealt, 1)
	assert.Equal(t, 2, dealt[0].Payload.(RoundDealtPayload).RoundNumber)
}

func TestLeaveGameForfeits(t *testing.T) {
	f := newRuntimeFixture(t)
	f.watch("p_alice")
	f.watch("p_bob")
	f.injectGame(t, "g_1", fixtureRound(
		[]string{"0101"}, []string{"0501"}, []string{"0103"}, []string{"0301"},
	))

	resp := f.svc.HandleCommand("p_alice", cmd("c1", CmdLeaveGame, LeaveGamePayload{GameID: "g_1"}))
	require.True(t, resp.Success)

	finished := f.eventsOf("p_bob", bus.EventGameFinished)
	require.Len(t, finished, 1)
	payload := finished[0].Payload.(GameFinishedPayload)
	assert.Equal(t, "p_bob", payload.WinnerID)
	assert.Equal(t, "PLAYER_LEFT", payload.Reason)

	_, ok := f.store.Get("g_1")
	assert.False(t, ok, "finished games leave the store")
	assert.False(t, f.store.HasActiveGame("p_alice"))
}

func TestRateLimiterGuardsCommands(t *testing.T) {
	f := newRuntimeFixtureWithBudget(t, 2)

	for i := 0; i < 2; i++ {
		resp := f.svc.HandleCommand("p_alice", CommandFrame{CommandID: "c", Type: CmdCancelMatchmaking})
		assert.NotEqual(t, CodeRateLimitExceeded, resp.Code)
	}

	resp := f.svc.HandleCommand("p_alice", CommandFrame{CommandID: "c3", Type: CmdCancelMatchmaking})
	require.False(t, resp.Success)
	assert.Equal(t, CodeRateLimitExceeded, resp.Code)
	assert.GreaterOrEqual(t, resp.RetryAfter, 1)

	// PING bypasses the limiter
	resp = f.svc.HandleCommand("p_alice", CommandFrame{CommandID: "c4", Type: CmdPing})
	assert.True(t, resp.Success)
}

func TestLeavingGameResetsCommandBudget(t *testing.T) {
	f := newRuntimeFixtureWithBudget(t, 2)
	f.injectGame(t, "g_1", fixtureRound(
		[]string{"0101"}, []string{"0501"}, []string{"0103"}, []string{"0301"},
	))

	resp := f.svc.HandleCommand("p_alice", CommandFrame{CommandID: "c1", Type: CmdCancelMatchmaking})
	assert.NotEqual(t, CodeRateLimitExceeded, resp.Code)
	resp = f.svc.HandleCommand("p_alice", cmd("c2", CmdLeaveGame, LeaveGamePayload{GameID: "g_1"}))
	require.True(t, resp.Success)

	// The window was spent, but finishing the game reset it for both seats
	resp = f.svc.HandleCommand("p_alice", CommandFrame{CommandID: "c3", Type: CmdCancelMatchmaking})
	assert.NotEqual(t, CodeRateLimitExceeded, resp.Code)
	resp = f.svc.HandleCommand("p_bob", CommandFrame{CommandID: "c4", Type: CmdCancelMatchmaking})
	assert.NotEqual(t, CodeRateLimitExceeded, resp.Code)
}

func TestAutoActionPlaysForIdlePlayer(t *testing.T) {
	f := newRuntimeFixture(t)
	f.watch("p_bob")
	f.injectGame(t, "g_1", fixtureRound(
		[]string{"0101"}, []string{"0501"}, []string{"0103"}, []string{"0301"},
	))

	f.svc.autoAct("g_1")

	g, _ := f.store.Get("g_1")
	assert.Equal(t, "p_bob", g.CurrentRound.ActivePlayerID)

	completed := f.eventsOf("p_bob", bus.EventTurnCompleted)
	require.Len(t, completed, 1)
	assert.True(t, completed[0].Payload.(TurnCompletedPayload).Move.AutoPlayed)
}

func TestRepeatedTimeoutsForfeit(t *testing.T) {
	f := newRuntimeFixture(t)
	f.watch("p_alice")
	f.watch("p_bob")
	f.injectGame(t, "g_1", fixtureRound(
		[]string{"0103", "0303", "0503"},
		[]string{"0203", "0403", "0603"},
		nil,
		[]string{"0703", "0903", "1003", "0704", "0904", "1004"},
	))

	// Timers alternate between the players; the third consecutive timeout for
	// the same player forfeits the game.
	for i := 0; i < 5; i++ {
		f.svc.autoAct("g_1")
	}

	finished := f.eventsOf("p_alice", bus.EventGameFinished)
	require.Len(t, finished, 1)
	payload := finished[0].Payload.(GameFinishedPayload)
	assert.Equal(t, "ABANDONED", payload.Reason)
	assert.Equal(t, "p_bob", payload.WinnerID)

	_, ok := f.store.Get("g_1")
	assert.False(t, ok)
}

func TestConnectReplaysSnapshot(t *testing.T) {
	f := newRuntimeFixture(t)
	f.watch("p_alice")
	f.injectGame(t, "g_1", fixtureRound(
		[]string{"0101"}, []string{"0501"}, []string{"0103"}, []string{"0301"},
	))

	f.svc.HandleDisconnect("p_alice")
	g, _ := f.store.Get("g_1")
	seat, _ := g.Seat("p_alice")
	assert.False(t, seat.Connected)

	f.svc.HandleConnect("p_alice")
	g, _ = f.store.Get("g_1")
	seat, _ = g.Seat("p_alice")
	assert.True(t, seat.Connected)

	restored := f.eventsOf("p_alice", bus.EventGameSnapshotRestore)
	require.Len(t, restored, 1)
	payload := restored[0].Payload.(SnapshotRestorePayload)
	assert.Equal(t, "g_1", payload.Game.ID)
	assert.Len(t, payload.Game.Round.Hand, 1)
}
