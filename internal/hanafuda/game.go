package hanafuda

import (
	"errors"
	"math/rand"
	"time"
)

// GameStatus represents the lifecycle state of a game
type GameStatus string

const (
	StatusWaiting    GameStatus = "WAITING"
	StatusStarting   GameStatus = "STARTING"
	StatusInProgress GameStatus = "IN_PROGRESS"
	StatusFinished   GameStatus = "FINISHED"
)

// RoomType partitions matchmaking and selects a ruleset
type RoomType string

const (
	RoomQuick    RoomType = "QUICK"
	RoomStandard RoomType = "STANDARD"
	RoomMarathon RoomType = "MARATHON"
)

// ParseRoomType validates a wire room_type value
func ParseRoomType(s string) (RoomType, bool) {
	switch RoomType(s) {
	case RoomQuick, RoomStandard, RoomMarathon:
		return RoomType(s), true
	}
	return "", false
}

// Ruleset holds the per-room game parameters
type Ruleset struct {
	TotalRounds       int  `json:"total_rounds"`
	DeckSize          int  `json:"deck_size"`
	KoiKoiEnabled     bool `json:"koikoi_enabled"`
	InstantEndEnabled bool `json:"instant_end_enabled"`
}

// RulesetFor returns the ruleset played in a room type
func RulesetFor(rt RoomType) Ruleset {
	base := Ruleset{DeckSize: DeckSize, KoiKoiEnabled: true, InstantEndEnabled: true}
	switch rt {
	case RoomQuick:
		base.TotalRounds = 3
	case RoomMarathon:
		base.TotalRounds = 12
	default:
		base.TotalRounds = 6
	}
	return base
}

// Game aggregate errors
var (
	ErrGameFull          = errors.New("game already has two players")
	ErrInvalidTransition = errors.New("invalid game status transition")
	ErrNoCurrentRound    = errors.New("game has no round in progress")
	ErrRoundNotEnded     = errors.New("current round has not ended")
	ErrNotPendingConfirm = errors.New("player has no pending continue confirmation")
)

// PlayerSeat is one of the two participants of a game
type PlayerSeat struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot"`
	Connected   bool   `json:"connected"`
}

// Game is an immutable snapshot of a whole game. Operations return a new
// snapshot; the store swaps the latest one atomically.
type Game struct {
	ID              string         `json:"id"`
	RoomType        RoomType       `json:"room_type"`
	Rules           Ruleset        `json:"rules"`
	Players         []PlayerSeat   `json:"players"`
	Scores          map[string]int `json:"scores"`
	RoundsPlayed    int            `json:"rounds_played"`
	NextDealerID    string         `json:"next_dealer_id"`
	CurrentRound    *Round         `json:"current_round,omitempty"`
	Status          GameStatus     `json:"status"`
	PendingContinue []string       `json:"pending_continue,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewGame creates a WAITING game holding its first player
func NewGame(id string, roomType RoomType, first PlayerSeat) *Game {
	now := time.Now().UTC()
	return &Game{
		ID:           id,
		RoomType:     roomType,
		Rules:        RulesetFor(roomType),
		Players:      []PlayerSeat{first},
		Scores:       map[string]int{first.ID: 0},
		NextDealerID: first.ID,
		Status:       StatusWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (g *Game) clone() *Game {
	cp := *g
	cp.Players = append([]PlayerSeat(nil), g.Players...)
	cp.Scores = make(map[string]int, len(g.Scores))
	for pid, s := range g.Scores {
		cp.Scores[pid] = s
	}
	cp.PendingContinue = append([]string(nil), g.PendingContinue...)
	if g.CurrentRound != nil {
		cp.CurrentRound = g.CurrentRound.clone()
	}
	cp.UpdatedAt = time.Now().UTC()
	return &cp
}

// HasPlayer reports whether the player has a seat in this game
func (g *Game) HasPlayer(playerID string) bool {
	for _, p := range g.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// Opponent returns the other seat's player id
func (g *Game) Opponent(playerID string) string {
	for _, p := range g.Players {
		if p.ID != playerID {
			return p.ID
		}
	}
	return ""
}

// Seat returns the seat of the given player
func (g *Game) Seat(playerID string) (PlayerSeat, bool) {
	for _, p := range g.Players {
		if p.ID == playerID {
			return p, true
		}
	}
	return PlayerSeat{}, false
}

// Active reports whether the game still binds its players
func (g *Game) Active() bool {
	return g.Status == StatusWaiting || g.Status == StatusStarting || g.Status == StatusInProgress
}

// AddPlayer seats the second player and moves WAITING to STARTING
func (g *Game) AddPlayer(seat PlayerSeat) (*Game, error) {
	if g.Status != StatusWaiting {
		return nil, ErrInvalidTransition
	}
	if len(g.Players) >= 2 {
		return nil, ErrGameFull
	}
	cp := g.clone()
	cp.Players = append(cp.Players, seat)
	cp.Scores[seat.ID] = 0
	cp.Status = StatusStarting
	return cp, nil
}

// StartRound deals the next round and moves the game to IN_PROGRESS
func (g *Game) StartRound(rng *rand.Rand) (*Game, error) {
	if g.Status != StatusStarting && g.Status != StatusInProgress {
		return nil, ErrInvalidTransition
	}
	if len(g.Players) != 2 {
		return nil, ErrInvalidTransition
	}
	cp := g.clone()
	dealer := cp.NextDealerID
	opponent := cp.Opponent(dealer)
	cp.CurrentRound = DealRound(rng, dealer, opponent)
	cp.PendingContinue = nil
	if cp.Status == StatusStarting {
		now := time.Now().UTC()
		cp.Status = StatusInProgress
		cp.StartedAt = &now
	}
	return cp, nil
}

// WithRound swaps in a new round snapshot
func (g *Game) WithRound(r *Round) *Game {
	cp := g.clone()
	cp.CurrentRound = r
	return cp
}

// SettleRound applies the ended round's settlement to cumulative scores and
// round progression. If the total rounds are reached the game finishes;
// otherwise both players enter the continue-confirmation list.
func (g *Game) SettleRound() (*Game, error) {
	if g.CurrentRound == nil {
		return nil, ErrNoCurrentRound
	}
	s := g.CurrentRound.Settlement
	if g.CurrentRound.FlowState != FlowRoundEnded || s == nil {
		return nil, ErrRoundNotEnded
	}

	cp := g.clone()
	cp.RoundsPlayed++
	if s.WinnerID != "" {
		cp.Scores[s.WinnerID] += s.AwardedPoints
		// Loser deals the next round
		cp.NextDealerID = cp.Opponent(s.WinnerID)
	}

	if cp.RoundsPlayed >= cp.Rules.TotalRounds {
		now := time.Now().UTC()
		cp.Status = StatusFinished
		cp.FinishedAt = &now
		cp.PendingContinue = nil
	} else {
		cp.PendingContinue = []string{cp.Players[0].ID, cp.Players[1].ID}
	}
	return cp, nil
}

// ConfirmContinue removes the player from the continue-confirmation list.
// The second return value reports whether all confirmations are now in.
func (g *Game) ConfirmContinue(playerID string) (*Game, bool, error) {
	found := false
	for _, pid := range g.PendingContinue {
		if pid == playerID {
			found = true
		}
	}
	if !found {
		return nil, false, ErrNotPendingConfirm
	}
	cp := g.clone()
	remaining := cp.PendingContinue[:0]
	for _, pid := range cp.PendingContinue {
		if pid != playerID {
			remaining = append(remaining, pid)
		}
	}
	cp.PendingContinue = remaining
	return cp, len(remaining) == 0, nil
}

// ForceFinish ends the game because a player left or disconnected for good.
// The remaining player wins.
func (g *Game) ForceFinish(leaverID string) *Game {
	cp := g.clone()
	now := time.Now().UTC()
	cp.Status = StatusFinished
	cp.FinishedAt = &now
	cp.PendingContinue = nil
	if cp.CurrentRound != nil && cp.CurrentRound.FlowState != FlowRoundEnded {
		cp.CurrentRound = cp.CurrentRound.settle(EndOpponentLeft, cp.Opponent(leaverID), nil, 0)
	}
	// Guarantee the remaining player ends ahead
	winner := cp.Opponent(leaverID)
	if winner != "" && cp.Scores[winner] <= cp.Scores[leaverID] {
		cp.Scores[winner] = cp.Scores[leaverID] + 1
	}
	return cp
}

// SetConnected flips a seat's connection flag
func (g *Game) SetConnected(playerID string, connected bool) *Game {
	cp := g.clone()
	for i := range cp.Players {
		if cp.Players[i].ID == playerID {
			cp.Players[i].Connected = connected
		}
	}
	return cp
}

// Winner returns the leading player at game end; ok is false on a tie
func (g *Game) Winner() (string, bool) {
	if len(g.Players) != 2 {
		return "", false
	}
	a, b := g.Players[0].ID, g.Players[1].ID
	switch {
	case g.Scores[a] > g.Scores[b]:
		return a, true
	case g.Scores[b] > g.Scores[a]:
		return b, true
	}
	return "", false
}
