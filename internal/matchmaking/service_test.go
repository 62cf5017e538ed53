package matchmaking

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanakoi/backend/internal/bus"
	"github.com/hanakoi/backend/internal/identity"
)

type fakeGames struct {
	mu     sync.Mutex
	active map[string]bool
}

func (f *fakeGames) HasActiveGame(playerID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[playerID]
}

type serviceFixture struct {
	svc      *Service
	pool     *Pool
	internal *bus.InternalBus
	players  *bus.PlayerBus
	games    *fakeGames

	mu      sync.Mutex
	matches []bus.MatchFound
}

func newServiceFixture(t *testing.T, lowAvail, botFallback time.Duration) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		pool:     NewPool(),
		internal: bus.NewInternalBus(),
		players:  bus.NewPlayerBus(),
		games:    &fakeGames{active: make(map[string]bool)},
	}
	registry := NewRegistry(lowAvail, botFallback)
	t.Cleanup(registry.Stop)

	f.internal.SubscribeMatchFound(func(ev bus.MatchFound) {
		f.mu.Lock()
		f.matches = append(f.matches, ev)
		f.mu.Unlock()
	})
	f.svc = NewService(f.pool, registry, f.internal, f.players, f.games)
	return f
}

func (f *serviceFixture) matchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.matches)
}

func TestEnterPairsTwoPlayers(t *testing.T) {
	f := newServiceFixture(t, time.Minute, time.Minute)

	result, err := f.svc.Enter("p_1", "Alice", "QUICK")
	require.NoError(t, err)
	assert.Equal(t, ResultSearching, result)

	result, err = f.svc.Enter("p_2", "Bob", "QUICK")
	require.NoError(t, err)
	assert.Equal(t, ResultMatchedHuman, result)

	require.Equal(t, 1, f.matchCount())
	match := f.matches[0]
	assert.Equal(t, "p_1", match.Player1ID)
	assert.Equal(t, "p_2", match.Player2ID)
	assert.Equal(t, bus.MatchHuman, match.MatchType)

	// Both entries are gone; either player may queue again
	assert.False(t, f.pool.HasPlayer("p_1"))
	assert.False(t, f.pool.HasPlayer("p_2"))
}

func TestEnterValidation(t *testing.T) {
	f := newServiceFixture(t, time.Minute, time.Minute)

	_, err := f.svc.Enter("p_1", "Alice", "BLITZ")
	assert.ErrorIs(t, err, ErrInvalidRoomType)

	_, err = f.svc.Enter("p_1", "Alice", "QUICK")
	require.NoError(t, err)
	_, err = f.svc.Enter("p_1", "Alice", "QUICK")
	assert.ErrorIs(t, err, ErrAlreadyInQueue)

	f.games.mu.Lock()
	f.games.active["p_9"] = true
	f.games.mu.Unlock()
	_, err = f.svc.Enter("p_9", "Iris", "QUICK")
	assert.ErrorIs(t, err, ErrAlreadyInGame)
}

func TestRoomTypesArePartitioned(t *testing.T) {
	f := newServiceFixture(t, time.Minute, time.Minute)

	result, err := f.svc.Enter("p_1", "Alice", "QUICK")
	require.NoError(t, err)
	assert.Equal(t, ResultSearching, result)

	result, err = f.svc.Enter("p_2", "Bob", "MARATHON")
	require.NoError(t, err)
	assert.Equal(t, ResultSearching, result)

	assert.Equal(t, 0, f.matchCount())
}

func TestCancelRemovesEntry(t *testing.T) {
	f := newServiceFixture(t, time.Minute, time.Minute)

	var cancelled []bus.GatewayEvent
	f.players.Subscribe("p_1", func(ev bus.GatewayEvent) {
		if ev.Type == bus.EventMatchmakingCancelled {
			cancelled = append(cancelled, ev)
		}
	})

	_, err := f.svc.Enter("p_1", "Alice", "QUICK")
	require.NoError(t, err)
	require.NoError(t, f.svc.Cancel("p_1"))

	assert.False(t, f.pool.HasPlayer("p_1"))
	assert.Len(t, cancelled, 1)

	assert.ErrorIs(t, f.svc.Cancel("p_1"), ErrNotInQueue)
}

func TestLowAvailabilityTransition(t *testing.T) {
	f := newServiceFixture(t, 10*time.Millisecond, time.Minute)

	var mu sync.Mutex
	var statuses []EntryStatus
	f.players.Subscribe("p_1", func(ev bus.GatewayEvent) {
		if ev.Type == bus.EventMatchmakingStatus {
			mu.Lock()
			statuses = append(statuses, ev.Payload.(StatusPayload).Status)
			mu.Unlock()
		}
	})

	_, err := f.svc.Enter("p_1", "Alice", "QUICK")
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, statuses, 2)
	assert.Equal(t, StatusSearching, statuses[0])
	assert.Equal(t, StatusLowAvailability, statuses[1])

	entry, ok := f.pool.FindByPlayerID("p_1")
	require.True(t, ok)
	assert.Equal(t, StatusLowAvailability, entry.Status)
}

func TestBotFallbackAfterBoundedWait(t *testing.T) {
	f := newServiceFixture(t, 5*time.Millisecond, 15*time.Millisecond)

	_, err := f.svc.Enter("p_1", "Alice", "STANDARD")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, 1, f.matchCount())
	match := f.matches[0]
	assert.Equal(t, bus.MatchBot, match.MatchType)
	assert.Equal(t, "p_1", match.Player1ID)
	assert.Equal(t, identity.BotPlayerID, match.Player2ID)

	assert.False(t, f.pool.HasPlayer("p_1"), "entry removed on fallback")
}

func TestBotFallbackAfterMatchPublishesNothing(t *testing.T) {
	f := newServiceFixture(t, time.Minute, time.Minute)

	_, err := f.svc.Enter("p_1", "Alice", "QUICK")
	require.NoError(t, err)
	entry, ok := f.pool.FindByPlayerID("p_1")
	require.True(t, ok)

	result, err := f.svc.Enter("p_2", "Bob", "QUICK")
	require.NoError(t, err)
	require.Equal(t, ResultMatchedHuman, result)
	require.Equal(t, 1, f.matchCount())

	// The fallback timer firing right at the match boundary finds the entry
	// already claimed and must not produce a second match.
	f.svc.handleBotFallback(entry.ID)
	assert.Equal(t, 1, f.matchCount())
}

func TestMatchBeatsBotFallback(t *testing.T) {
	f := newServiceFixture(t, 5*time.Millisecond, 25*time.Millisecond)

	_, err := f.svc.Enter("p_1", "Alice", "QUICK")
	require.NoError(t, err)
	_, err = f.svc.Enter("p_2", "Bob", "QUICK")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	require.Equal(t, 1, f.matchCount(), "no bot fallback after a human match")
	assert.Equal(t, bus.MatchHuman, f.matches[0].MatchType)
}
