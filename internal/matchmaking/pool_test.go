package matchmaking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanakoi/backend/internal/hanafuda"
)

func TestPoolAddRejectsDuplicatePlayer(t *testing.T) {
	p := NewPool()

	require.NoError(t, p.Add(NewEntry("p_1", "Alice", hanafuda.RoomQuick)))
	err := p.Add(NewEntry("p_1", "Alice", hanafuda.RoomStandard))
	assert.ErrorIs(t, err, ErrAlreadyInQueue)
}

func TestPoolFindMatchIsFIFOWithinRoom(t *testing.T) {
	p := NewPool()
	first := NewEntry("p_1", "Alice", hanafuda.RoomQuick)
	second := NewEntry("p_2", "Bob", hanafuda.RoomQuick)
	other := NewEntry("p_3", "Carol", hanafuda.RoomMarathon)
	require.NoError(t, p.Add(first))
	require.NoError(t, p.Add(second))
	require.NoError(t, p.Add(other))

	joiner := NewEntry("p_4", "Dave", hanafuda.RoomQuick)
	require.NoError(t, p.Add(joiner))

	match, ok := p.FindMatch(joiner)
	require.True(t, ok)
	assert.Equal(t, first.ID, match.ID, "oldest entry in the room matches first")

	// A different room type never matches
	marathonJoiner := NewEntry("p_5", "Eve", hanafuda.RoomStandard)
	require.NoError(t, p.Add(marathonJoiner))
	_, ok = p.FindMatch(marathonJoiner)
	assert.False(t, ok)
}

func TestPoolFindMatchSkipsUnmatchable(t *testing.T) {
	p := NewPool()
	stale := NewEntry("p_1", "Alice", hanafuda.RoomQuick)
	fresh := NewEntry("p_2", "Bob", hanafuda.RoomQuick)
	require.NoError(t, p.Add(stale))
	require.NoError(t, p.Add(fresh))
	require.True(t, p.UpdateStatus(stale.ID, StatusMatched))

	joiner := NewEntry("p_3", "Carol", hanafuda.RoomQuick)
	require.NoError(t, p.Add(joiner))

	match, ok := p.FindMatch(joiner)
	require.True(t, ok)
	assert.Equal(t, fresh.ID, match.ID)
}

func TestPoolRemovePairIsAtomic(t *testing.T) {
	p := NewPool()
	a := NewEntry("p_1", "Alice", hanafuda.RoomQuick)
	b := NewEntry("p_2", "Bob", hanafuda.RoomQuick)
	require.NoError(t, p.Add(a))
	require.NoError(t, p.Add(b))

	_, _, ok := p.RemovePair(a.ID, b.ID)
	require.True(t, ok)
	assert.False(t, p.HasPlayer("p_1"))
	assert.False(t, p.HasPlayer("p_2"))
	assert.Equal(t, 0, p.Waiting()[hanafuda.RoomQuick])

	// Second removal reports the miss
	_, _, ok = p.RemovePair(a.ID, b.ID)
	assert.False(t, ok)
}

func TestPoolRemovePairArbitratesCrossedClaims(t *testing.T) {
	p := NewPool()
	a := NewEntry("p_a", "Alice", hanafuda.RoomQuick)
	b := NewEntry("p_b", "Bob", hanafuda.RoomQuick)
	require.NoError(t, p.Add(a))
	require.NoError(t, p.Add(b))

	// Two joins that found each other simultaneously each claim the pair;
	// exactly one claim may win.
	matchForA, okA := p.FindMatch(a)
	matchForB, okB := p.FindMatch(b)
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, b.ID, matchForA.ID)
	assert.Equal(t, a.ID, matchForB.ID)

	_, _, won := p.RemovePair(matchForA.ID, a.ID)
	require.True(t, won)
	_, _, won = p.RemovePair(matchForB.ID, b.ID)
	assert.False(t, won, "the losing claim must not win a second match")

	assert.False(t, p.HasPlayer("p_a"))
	assert.False(t, p.HasPlayer("p_b"))
}

func TestPoolRemovePairLeavesSurvivorWhenPartnerGone(t *testing.T) {
	p := NewPool()
	a := NewEntry("p_a", "Alice", hanafuda.RoomQuick)
	b := NewEntry("p_b", "Bob", hanafuda.RoomQuick)
	require.NoError(t, p.Add(a))
	require.NoError(t, p.Add(b))

	// The partner fell out of the pool (cancel or bot fallback) between
	// FindMatch and the claim: nothing is removed.
	_, removed := p.Remove(a.ID)
	require.True(t, removed)

	_, _, ok := p.RemovePair(a.ID, b.ID)
	assert.False(t, ok)
	assert.True(t, p.HasPlayer("p_b"), "failed claim must not evict the surviving entry")
}

func TestPoolLowAvailabilityEntriesStillMatch(t *testing.T) {
	p := NewPool()
	waiting := NewEntry("p_1", "Alice", hanafuda.RoomQuick)
	require.NoError(t, p.Add(waiting))
	require.True(t, p.UpdateStatus(waiting.ID, StatusLowAvailability))

	joiner := NewEntry("p_2", "Bob", hanafuda.RoomQuick)
	require.NoError(t, p.Add(joiner))

	_, ok := p.FindMatch(joiner)
	assert.True(t, ok)
}
