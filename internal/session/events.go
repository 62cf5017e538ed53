package session

import (
	"github.com/hanakoi/backend/internal/hanafuda"
)

// Player-scoped views. A viewer sees their own hand; the opponent's hand and
// the deck are reduced to counts. Depositories and the field are public.

// RoundView is the per-viewer projection of the current round
type RoundView struct {
	DealerID           string                           `json:"dealer_id"`
	ActivePlayerID     string                           `json:"active_player_id"`
	FlowState          hanafuda.FlowState               `json:"flow_state"`
	Field              []string                         `json:"field"`
	DeckCount          int                              `json:"deck_count"`
	Hand               []string                         `json:"hand"`
	OpponentHandCount  int                              `json:"opponent_hand_count"`
	Depository         []string                         `json:"depository"`
	OpponentDepository []string                         `json:"opponent_depository"`
	KoiKoi             map[string]hanafuda.KoiKoiStatus `json:"koikoi"`
	Selection          *hanafuda.PendingSelection       `json:"pending_selection,omitempty"`
	ActiveYaku         []hanafuda.Yaku                  `json:"active_yaku,omitempty"`
	Settlement         *hanafuda.SettlementInfo         `json:"settlement,omitempty"`
}

// GameView is the per-viewer projection of a whole game
type GameView struct {
	ID              string                `json:"id"`
	RoomType        hanafuda.RoomType     `json:"room_type"`
	Rules           hanafuda.Ruleset      `json:"rules"`
	Players         []hanafuda.PlayerSeat `json:"players"`
	Scores          map[string]int        `json:"scores"`
	RoundsPlayed    int                   `json:"rounds_played"`
	Status          hanafuda.GameStatus   `json:"status"`
	PendingContinue []string              `json:"pending_continue,omitempty"`
	Round           *RoundView            `json:"round,omitempty"`
}

// MoveView is the public record of one completed turn step
type MoveView struct {
	PlayerID     string          `json:"player_id"`
	HandCard     string          `json:"hand_card,omitempty"`
	HandCaptured []string        `json:"hand_captured,omitempty"`
	HandPlaced   bool            `json:"hand_placed,omitempty"`
	DrawnCard    string          `json:"drawn_card,omitempty"`
	DrawCaptured []string        `json:"draw_captured,omitempty"`
	DrawPlaced   bool            `json:"draw_placed,omitempty"`
	NewYaku      []hanafuda.Yaku `json:"new_yaku,omitempty"`
	NextPlayerID string          `json:"next_player_id,omitempty"`
	AutoPlayed   bool            `json:"auto_played,omitempty"`
}

// buildRoundView projects a round for one viewer
func buildRoundView(r *hanafuda.Round, viewerID string) *RoundView {
	if r == nil {
		return nil
	}
	opponent := r.Opponent(viewerID)
	view := &RoundView{
		DealerID:           r.DealerID,
		ActivePlayerID:     r.ActivePlayerID,
		FlowState:          r.FlowState,
		Field:              append([]string(nil), r.Field...),
		DeckCount:          len(r.Deck),
		Hand:               append([]string(nil), r.Players[viewerID].Hand...),
		OpponentHandCount:  len(r.Players[opponent].Hand),
		Depository:         append([]string(nil), r.Players[viewerID].Depository...),
		OpponentDepository: append([]string(nil), r.Players[opponent].Depository...),
		KoiKoi:             r.KoiKoi,
		Settlement:         r.Settlement,
	}
	// The pending selection is public: its source card has already been
	// revealed by the play or the draw.
	if r.Selection != nil {
		view.Selection = r.Selection
	}
	if r.Decision != nil {
		view.ActiveYaku = r.Decision.ActiveYaku
	}
	return view
}

// buildGameView projects a game for one viewer
func buildGameView(g *hanafuda.Game, viewerID string) GameView {
	return GameView{
		ID:              g.ID,
		RoomType:        g.RoomType,
		Rules:           g.Rules,
		Players:         append([]hanafuda.PlayerSeat(nil), g.Players...),
		Scores:          g.Scores,
		RoundsPlayed:    g.RoundsPlayed,
		Status:          g.Status,
		PendingContinue: g.PendingContinue,
		Round:           buildRoundView(g.CurrentRound, viewerID),
	}
}

// buildMoveView converts a turn outcome to its public record
func buildMoveView(o *hanafuda.TurnOutcome, autoPlayed bool) MoveView {
	return MoveView{
		PlayerID:     o.PlayerID,
		HandCard:     o.HandCard,
		HandCaptured: o.HandCaptured,
		HandPlaced:   o.HandPlaced,
		DrawnCard:    o.DrawnCard,
		DrawCaptured: o.DrawCaptured,
		DrawPlaced:   o.DrawPlaced,
		NewYaku:      o.NewYaku,
		NextPlayerID: o.NextPlayerID,
		AutoPlayed:   autoPlayed,
	}
}

// Outbound game event payloads

type RoundDealtPayload struct {
	RoundNumber int      `json:"round_number"`
	Game        GameView `json:"game"`
}

type TurnCompletedPayload struct {
	Move MoveView `json:"move"`
	Game GameView `json:"game"`
}

type SelectionRequiredPayload struct {
	PlayerID        string   `json:"player_id"`
	SourceCard      string   `json:"source_card"`
	PossibleTargets []string `json:"possible_targets"`
	FromDraw        bool     `json:"from_draw"`
	Game            GameView `json:"game"`
}

type DecisionRequiredPayload struct {
	PlayerID   string          `json:"player_id"`
	ActiveYaku []hanafuda.Yaku `json:"active_yaku"`
	Move       MoveView        `json:"move"`
	Game       GameView        `json:"game"`
}

type DecisionMadePayload struct {
	PlayerID   string            `json:"player_id"`
	Decision   hanafuda.Decision `json:"decision"`
	Multiplier int               `json:"multiplier"`
	Game       GameView          `json:"game"`
}

type RoundScoredPayload struct {
	Settlement       *hanafuda.SettlementInfo `json:"settlement"`
	Scores           map[string]int           `json:"scores"`
	RoundsPlayed     int                      `json:"rounds_played"`
	TotalRounds      int                      `json:"total_rounds"`
	CountdownSeconds int                      `json:"countdown_seconds,omitempty"`
	Game             GameView                 `json:"game"`
}

type GameFinishedPayload struct {
	WinnerID    string         `json:"winner_id,omitempty"`
	FinalScores map[string]int `json:"final_scores"`
	Reason      string         `json:"reason"`
	Game        GameView       `json:"game"`
}

type SnapshotRestorePayload struct {
	Game GameView `json:"game"`
}
