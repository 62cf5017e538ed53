package hanafuda

import (
	"errors"
	"math/rand"
	"time"
)

// FlowState is the point within a single turn
type FlowState string

const (
	FlowAwaitingHandPlay  FlowState = "AWAITING_HAND_PLAY"
	FlowAwaitingSelection FlowState = "AWAITING_SELECTION"
	FlowAwaitingDecision  FlowState = "AWAITING_DECISION"
	FlowRoundEnded        FlowState = "ROUND_ENDED"
)

// Decision is the player's answer after forming a yaku
type Decision string

const (
	DecisionKoiKoi   Decision = "KOI_KOI"
	DecisionEndRound Decision = "END_ROUND"
)

// EndReason explains why a round ended
type EndReason string

const (
	EndStopDecision  EndReason = "STOP_DECISION"
	EndHandsEmpty    EndReason = "ALL_HANDS_EMPTY"
	EndTeshi         EndReason = "INSTANT_TESHI"
	EndKuttsuki      EndReason = "INSTANT_KUTTSUKI"
	EndFieldKuttsuki EndReason = "FIELD_KUTTSUKI"
	EndOpponentLeft  EndReason = "OPPONENT_LEFT"
)

// Domain errors mapped to wire codes by the session service
var (
	ErrNotActivePlayer  = errors.New("caller is not the active player")
	ErrPlayerNotInRound = errors.New("player is not part of this round")
	ErrInvalidFlowState = errors.New("operation not valid in current flow state")
	ErrCardNotInHand    = errors.New("card is not in the player's hand")
	ErrInvalidTarget    = errors.New("target is not a valid capture candidate")
)

// PlayerArea is a player's private round state
type PlayerArea struct {
	Hand       []string `json:"hand"`
	Depository []string `json:"depository"`
}

// KoiKoiStatus tracks a player's continue decisions within a round
type KoiKoiStatus struct {
	Multiplier     int `json:"multiplier"`
	TimesContinued int `json:"times_continued"`
}

// HandPlayRecord remembers the hand step that preceded a draw-step selection
type HandPlayRecord struct {
	Card     string   `json:"card"`
	Captured []string `json:"captured,omitempty"`
	Placed   bool     `json:"placed"`
}

// PendingSelection is set while the active player must choose a capture target
type PendingSelection struct {
	SourceCard      string          `json:"source_card"`
	PossibleTargets []string        `json:"possible_targets"`
	FromDraw        bool            `json:"from_draw"`
	HandPlay        *HandPlayRecord `json:"hand_play,omitempty"`
}

// PendingDecision is set while the active player must choose koi-koi or stop
type PendingDecision struct {
	ActiveYaku []Yaku `json:"active_yaku"`
}

// SettlementInfo is set once the round has ended
type SettlementInfo struct {
	Reason           EndReason `json:"reason"`
	WinnerID         string    `json:"winner_id,omitempty"`
	WinningYaku      []Yaku    `json:"winning_yaku,omitempty"`
	AwardedPoints    int       `json:"awarded_points"`
	EndedAt          time.Time `json:"ended_at"`
	CountdownSeconds int       `json:"countdown_seconds"`
}

// Round is an immutable snapshot of a single Koi-Koi round. All operations
// return a new snapshot; the receiver is never mutated.
type Round struct {
	DealerID       string                  `json:"dealer_id"`
	PlayerIDs      [2]string               `json:"player_ids"`
	Field          []string                `json:"field"`
	Deck           []string                `json:"deck"`
	Players        map[string]PlayerArea   `json:"players"`
	FlowState      FlowState               `json:"flow_state"`
	ActivePlayerID string                  `json:"active_player_id"`
	KoiKoi         map[string]KoiKoiStatus `json:"koikoi"`
	Selection      *PendingSelection       `json:"pending_selection,omitempty"`
	Decision       *PendingDecision        `json:"pending_decision,omitempty"`
	Settlement     *SettlementInfo         `json:"settlement_info,omitempty"`
}

// TurnOutcome describes what a single operation did, for event mapping.
type TurnOutcome struct {
	PlayerID          string
	HandCard          string
	HandCaptured      []string
	HandPlaced        bool
	DrawnCard         string
	DrawCaptured      []string
	DrawPlaced        bool
	SelectionRequired bool
	NewYaku           []Yaku
	DecisionRequired  bool
	Decision          Decision
	RoundEnded        bool
	NextPlayerID      string
}

// DealRound deals a fresh round: 8 cards to each hand, 8 to the field, the
// rest face down. The dealer plays first. Instant yaku (teshi, kuttsuki,
// field-kuttsuki) are detected here and settle the round immediately.
func DealRound(rng *rand.Rand, dealerID, opponentID string) *Round {
	cards := NewShuffledDeck(rng)

	r := &Round{
		DealerID:       dealerID,
		PlayerIDs:      [2]string{dealerID, opponentID},
		FlowState:      FlowAwaitingHandPlay,
		ActivePlayerID: dealerID,
		Players: map[string]PlayerArea{
			dealerID:   {Hand: cards[0:8], Depository: []string{}},
			opponentID: {Hand: cards[8:16], Depository: []string{}},
		},
		Field: cards[16:24],
		Deck:  cards[24:],
		KoiKoi: map[string]KoiKoiStatus{
			dealerID:   {Multiplier: 1},
			opponentID: {Multiplier: 1},
		},
	}

	// Instant end checks, dealer's hand first
	for _, pid := range r.PlayerIDs {
		hand := r.Players[pid].Hand
		if y, ok := CheckTeshi(hand); ok {
			return r.settle(EndTeshi, pid, []Yaku{y}, y.Points)
		}
		if y, ok := CheckKuttsuki(hand); ok {
			return r.settle(EndKuttsuki, pid, []Yaku{y}, y.Points)
		}
	}
	if CheckFieldKuttsuki(r.Field) {
		return r.settle(EndFieldKuttsuki, "", nil, 0)
	}

	return r
}

// InstantEnded reports whether the round ended at deal time
func (r *Round) InstantEnded() bool {
	if r.Settlement == nil {
		return false
	}
	switch r.Settlement.Reason {
	case EndTeshi, EndKuttsuki, EndFieldKuttsuki:
		return true
	}
	return false
}

// Opponent returns the other player's id
func (r *Round) Opponent(playerID string) string {
	if r.PlayerIDs[0] == playerID {
		return r.PlayerIDs[1]
	}
	return r.PlayerIDs[0]
}

// HasPlayer reports whether the player belongs to this round
func (r *Round) HasPlayer(playerID string) bool {
	return r.PlayerIDs[0] == playerID || r.PlayerIDs[1] == playerID
}

// TotalCards counts every card in the round. Always DeckSize for a legal
// snapshot; used by invariant tests.
func (r *Round) TotalCards() int {
	n := len(r.Field) + len(r.Deck)
	for _, area := range r.Players {
		n += len(area.Hand) + len(area.Depository)
	}
	if r.Selection != nil {
		n++ // the source card is held outside hand/field while pending
	}
	return n
}

// clone produces a deep copy for copy-on-write operations
func (r *Round) clone() *Round {
	cp := *r
	cp.Field = append([]string(nil), r.Field...)
	cp.Deck = append([]string(nil), r.Deck...)
	cp.Players = make(map[string]PlayerArea, len(r.Players))
	for pid, area := range r.Players {
		cp.Players[pid] = PlayerArea{
			Hand:       append([]string(nil), area.Hand...),
			Depository: append([]string(nil), area.Depository...),
		}
	}
	cp.KoiKoi = make(map[string]KoiKoiStatus, len(r.KoiKoi))
	for pid, st := range r.KoiKoi {
		cp.KoiKoi[pid] = st
	}
	if r.Selection != nil {
		sel := *r.Selection
		sel.PossibleTargets = append([]string(nil), r.Selection.PossibleTargets...)
		if r.Selection.HandPlay != nil {
			hp := *r.Selection.HandPlay
			hp.Captured = append([]string(nil), r.Selection.HandPlay.Captured...)
			sel.HandPlay = &hp
		}
		cp.Selection = &sel
	}
	if r.Decision != nil {
		dec := *r.Decision
		dec.ActiveYaku = append([]Yaku(nil), r.Decision.ActiveYaku...)
		cp.Decision = &dec
	}
	if r.Settlement != nil {
		s := *r.Settlement
		cp.Settlement = &s
	}
	return &cp
}

func (r *Round) settle(reason EndReason, winnerID string, yaku []Yaku, points int) *Round {
	cp := r.clone()
	cp.FlowState = FlowRoundEnded
	cp.Selection = nil
	cp.Decision = nil
	cp.Settlement = &SettlementInfo{
		Reason:        reason,
		WinnerID:      winnerID,
		WinningYaku:   yaku,
		AwardedPoints: points,
		EndedAt:       time.Now().UTC(),
	}
	return cp
}

// PlayHandCard plays a card from the active player's hand. With zero field
// matches the card is placed on the field; with one it captures; with three it
// captures all three; with exactly two the round stops in AWAITING_SELECTION
// unless targetID names one of the candidates.
func (r *Round) PlayHandCard(playerID, cardID, targetID string) (*Round, *TurnOutcome, error) {
	if !r.HasPlayer(playerID) {
		return nil, nil, ErrPlayerNotInRound
	}
	if r.FlowState != FlowAwaitingHandPlay {
		return nil, nil, ErrInvalidFlowState
	}
	if r.ActivePlayerID != playerID {
		return nil, nil, ErrNotActivePlayer
	}
	if !containsCard(r.Players[playerID].Hand, cardID) {
		return nil, nil, ErrCardNotInHand
	}

	cp := r.clone()
	outcome := &TurnOutcome{PlayerID: playerID, HandCard: cardID}
	yakuBefore := ActiveYaku(cp.Players[playerID].Depository)

	area := cp.Players[playerID]
	area.Hand, _ = removeCard(area.Hand, cardID)
	cp.Players[playerID] = area

	matches := MatchableCards(cardID, cp.Field)
	switch {
	case len(matches) == 0:
		cp.Field = append(cp.Field, cardID)
		outcome.HandPlaced = true
	case len(matches) == 1 || len(matches) == 3:
		cp.captureCards(playerID, cardID, matches)
		outcome.HandCaptured = append([]string{cardID}, matches...)
	default: // exactly two candidates
		if targetID != "" {
			if !containsCard(matches, targetID) {
				return nil, nil, ErrInvalidTarget
			}
			cp.captureCards(playerID, cardID, []string{targetID})
			outcome.HandCaptured = []string{cardID, targetID}
		} else {
			cp.FlowState = FlowAwaitingSelection
			cp.Selection = &PendingSelection{
				SourceCard:      cardID,
				PossibleTargets: matches,
				FromDraw:        false,
			}
			outcome.SelectionRequired = true
			return cp, outcome, nil
		}
	}

	return cp.drawStep(playerID, yakuBefore, outcome)
}

// SelectTarget resolves a pending capture selection. A hand-step selection is
// followed by the draw step; a draw-step selection completes the turn.
func (r *Round) SelectTarget(playerID, sourceID, targetID string) (*Round, *TurnOutcome, error) {
	if !r.HasPlayer(playerID) {
		return nil, nil, ErrPlayerNotInRound
	}
	if r.FlowState != FlowAwaitingSelection || r.Selection == nil {
		return nil, nil, ErrInvalidFlowState
	}
	if r.ActivePlayerID != playerID {
		return nil, nil, ErrNotActivePlayer
	}
	if r.Selection.SourceCard != sourceID {
		return nil, nil, ErrCardNotInHand
	}
	if !containsCard(r.Selection.PossibleTargets, targetID) {
		return nil, nil, ErrInvalidTarget
	}

	cp := r.clone()
	outcome := &TurnOutcome{PlayerID: playerID}
	yakuBefore := ActiveYaku(cp.Players[playerID].Depository)

	sel := cp.Selection
	cp.Selection = nil
	cp.FlowState = FlowAwaitingHandPlay
	cp.captureCards(playerID, sel.SourceCard, []string{targetID})

	if sel.FromDraw {
		outcome.DrawnCard = sel.SourceCard
		outcome.DrawCaptured = []string{sel.SourceCard, targetID}
		if sel.HandPlay != nil {
			outcome.HandCard = sel.HandPlay.Card
			outcome.HandCaptured = sel.HandPlay.Captured
			outcome.HandPlaced = sel.HandPlay.Placed
		}
		return cp.finishTurn(playerID, yakuBefore, outcome)
	}

	outcome.HandCard = sel.SourceCard
	outcome.HandCaptured = []string{sel.SourceCard, targetID}
	return cp.drawStep(playerID, yakuBefore, outcome)
}

// MakeDecision answers a pending koi-koi decision. KOI_KOI raises the
// player's multiplier and hands them the next hand play; END_ROUND settles
// the round in their favor.
func (r *Round) MakeDecision(playerID string, decision Decision) (*Round, *TurnOutcome, error) {
	if !r.HasPlayer(playerID) {
		return nil, nil, ErrPlayerNotInRound
	}
	if r.FlowState != FlowAwaitingDecision || r.Decision == nil {
		return nil, nil, ErrInvalidFlowState
	}
	if r.ActivePlayerID != playerID {
		return nil, nil, ErrNotActivePlayer
	}

	outcome := &TurnOutcome{PlayerID: playerID, Decision: decision}

	switch decision {
	case DecisionEndRound:
		yaku := r.Decision.ActiveYaku
		points := r.scorePoints(playerID, yaku)
		cp := r.settle(EndStopDecision, playerID, yaku, points)
		outcome.RoundEnded = true
		return cp, outcome, nil

	case DecisionKoiKoi:
		cp := r.clone()
		st := cp.KoiKoi[playerID]
		st.Multiplier++
		st.TimesContinued++
		cp.KoiKoi[playerID] = st
		cp.Decision = nil
		cp.FlowState = FlowAwaitingHandPlay
		// The continuing player keeps the turn. If their hand is already
		// empty the round cannot continue and ends drawn.
		if len(cp.Players[playerID].Hand) == 0 {
			cp = cp.settle(EndHandsEmpty, "", nil, 0)
			outcome.RoundEnded = true
			return cp, outcome, nil
		}
		outcome.NextPlayerID = playerID
		return cp, outcome, nil

	default:
		return nil, nil, ErrInvalidFlowState
	}
}

// captureCards moves the source card and the matched field cards into the
// player's depository.
func (r *Round) captureCards(playerID, source string, targets []string) {
	area := r.Players[playerID]
	area.Depository = append(area.Depository, source)
	for _, t := range targets {
		r.Field, _ = removeCard(r.Field, t)
		area.Depository = append(area.Depository, t)
	}
	r.Players[playerID] = area
}

// drawStep pops the top deck card and applies the same 0/1/2/3 branching as
// the hand step. Receiver must already be a private clone.
func (r *Round) drawStep(playerID string, yakuBefore []Yaku, outcome *TurnOutcome) (*Round, *TurnOutcome, error) {
	if len(r.Deck) == 0 {
		return r.finishTurn(playerID, yakuBefore, outcome)
	}

	drawn := r.Deck[0]
	r.Deck = r.Deck[1:]
	outcome.DrawnCard = drawn

	matches := MatchableCards(drawn, r.Field)
	switch {
	case len(matches) == 0:
		r.Field = append(r.Field, drawn)
		outcome.DrawPlaced = true
	case len(matches) == 1 || len(matches) == 3:
		r.captureCards(playerID, drawn, matches)
		outcome.DrawCaptured = append([]string{drawn}, matches...)
	default:
		// Draw-step selection: the hand step is recorded so the turn can be
		// reconstructed when the selection resolves.
		r.FlowState = FlowAwaitingSelection
		r.Selection = &PendingSelection{
			SourceCard:      drawn,
			PossibleTargets: matches,
			FromDraw:        true,
			HandPlay: &HandPlayRecord{
				Card:     outcome.HandCard,
				Captured: outcome.HandCaptured,
				Placed:   outcome.HandPlaced,
			},
		}
		outcome.SelectionRequired = true
		return r, outcome, nil
	}

	return r.finishTurn(playerID, yakuBefore, outcome)
}

// finishTurn checks for newly formed yaku, then either stops for a decision,
// ends the round, or passes the turn. Receiver must be a private clone.
func (r *Round) finishTurn(playerID string, yakuBefore []Yaku, outcome *TurnOutcome) (*Round, *TurnOutcome, error) {
	yakuAfter := ActiveYaku(r.Players[playerID].Depository)
	newYaku := NewlyFormed(yakuBefore, yakuAfter)

	if len(newYaku) > 0 {
		r.FlowState = FlowAwaitingDecision
		r.Decision = &PendingDecision{ActiveYaku: yakuAfter}
		outcome.NewYaku = newYaku
		outcome.DecisionRequired = true
		return r, outcome, nil
	}

	if r.handsEmpty() {
		*r = *r.settle(EndHandsEmpty, "", nil, 0)
		outcome.RoundEnded = true
		return r, outcome, nil
	}

	next := r.Opponent(playerID)
	r.ActivePlayerID = next
	r.FlowState = FlowAwaitingHandPlay
	outcome.NextPlayerID = next
	return r, outcome, nil
}

func (r *Round) handsEmpty() bool {
	for _, area := range r.Players {
		if len(area.Hand) > 0 {
			return false
		}
	}
	return true
}

// scorePoints computes the awarded points for a stopping player: base yaku
// points times their koi-koi multiplier, doubled when the opponent had
// declared koi-koi at least once.
func (r *Round) scorePoints(winnerID string, yaku []Yaku) int {
	points := BasePoints(yaku) * r.KoiKoi[winnerID].Multiplier
	if r.KoiKoi[r.Opponent(winnerID)].TimesContinued > 0 {
		points *= 2
	}
	return points
}
