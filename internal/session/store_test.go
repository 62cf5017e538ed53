package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanakoi/backend/internal/hanafuda"
	"github.com/hanakoi/backend/internal/identity"
)

func storedGame(id string) *hanafuda.Game {
	g := hanafuda.NewGame(id, hanafuda.RoomQuick, hanafuda.PlayerSeat{ID: "p_alice", DisplayName: "Alice", Connected: true})
	g, _ = g.AddPlayer(hanafuda.PlayerSeat{ID: "p_bob", DisplayName: "Bob", Connected: true})
	return g
}

func TestStoreSetGetDelete(t *testing.T) {
	s := NewGameStore(nil)

	g := storedGame("g_1")
	s.Set(g)

	got, ok := s.Get("g_1")
	require.True(t, ok)
	assert.Equal(t, "g_1", got.ID)
	assert.Equal(t, 1, s.ActiveCount())

	s.Delete("g_1")
	_, ok = s.Get("g_1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.ActiveCount())
}

func TestStoreIndexesActivePlayers(t *testing.T) {
	s := NewGameStore(nil)
	s.Set(storedGame("g_1"))

	id, ok := s.GameFor("p_alice")
	require.True(t, ok)
	assert.Equal(t, "g_1", id)
	assert.True(t, s.HasActiveGame("p_bob"))

	// A finished snapshot releases the binding
	g, _ := s.Get("g_1")
	s.Set(g.ForceFinish("p_bob"))
	assert.False(t, s.HasActiveGame("p_alice"))
	assert.False(t, s.HasActiveGame("p_bob"))
}

func TestStoreNeverIndexesBotSeat(t *testing.T) {
	s := NewGameStore(nil)

	g := hanafuda.NewGame("g_1", hanafuda.RoomQuick, hanafuda.PlayerSeat{ID: "p_alice", DisplayName: "Alice", Connected: true})
	g, _ = g.AddPlayer(hanafuda.PlayerSeat{ID: identity.BotPlayerID, DisplayName: identity.BotDisplayName, IsBot: true, Connected: true})
	s.Set(g)

	assert.True(t, s.HasActiveGame("p_alice"))
	assert.False(t, s.HasActiveGame(identity.BotPlayerID), "the bot plays any number of games at once")
}

func TestStoreLockIsStableUntilDelete(t *testing.T) {
	s := NewGameStore(nil)
	s.Set(storedGame("g_1"))

	first := s.LockGame("g_1")
	assert.Same(t, first, s.LockGame("g_1"))

	s.Delete("g_1")
	assert.NotSame(t, first, s.LockGame("g_1"))
}
