package hanafuda

import (
	"errors"
	"math/rand"
	"testing"
)

const (
	p1 = "p_alice"
	p2 = "p_bob"
)

// testRound builds a minimal in-progress round with fixed zones
func testRound(hand1, hand2, field, deckCards []string) *Round {
	return &Round{
		DealerID:       p1,
		PlayerIDs:      [2]string{p1, p2},
		FlowState:      FlowAwaitingHandPlay,
		ActivePlayerID: p1,
		Players: map[string]PlayerArea{
			p1: {Hand: hand1, Depository: []string{}},
			p2: {Hand: hand2, Depository: []string{}},
		},
		Field: field,
		Deck:  deckCards,
		KoiKoi: map[string]KoiKoiStatus{
			p1: {Multiplier: 1},
			p2: {Multiplier: 1},
		},
	}
}

func TestDealRoundConservesCards(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		r := DealRound(rng, p1, p2)

		if got := r.TotalCards(); got != DeckSize {
			t.Fatalf("seed %d: total cards = %d, want %d", seed, got, DeckSize)
		}
		if r.InstantEnded() {
			continue
		}
		if len(r.Players[p1].Hand) != 8 || len(r.Players[p2].Hand) != 8 {
			t.Fatalf("seed %d: hands %d/%d, want 8/8", seed, len(r.Players[p1].Hand), len(r.Players[p2].Hand))
		}
		if len(r.Field) != 8 || len(r.Deck) != 24 {
			t.Fatalf("seed %d: field %d deck %d, want 8/24", seed, len(r.Field), len(r.Deck))
		}
		if r.ActivePlayerID != p1 {
			t.Fatalf("seed %d: dealer does not play first", seed)
		}
	}
}

func TestPlayHandCardPlacesUnmatchedCard(t *testing.T) {
	r := testRound(
		[]string{"0103", "0203"},
		[]string{"0503", "0603"},
		[]string{"0303", "0403"},
		[]string{"0703"}, // no field match either
	)

	nr, outcome, err := r.PlayHandCard(p1, "0103", "")
	if err != nil {
		t.Fatalf("PlayHandCard: %v", err)
	}
	if !outcome.HandPlaced {
		t.Error("card with no match should be placed")
	}
	if !outcome.DrawPlaced || outcome.DrawnCard != "0703" {
		t.Errorf("drawn card should be placed, outcome = %+v", outcome)
	}
	if !containsCard(nr.Field, "0103") || !containsCard(nr.Field, "0703") {
		t.Errorf("field missing placed cards: %v", nr.Field)
	}
	if nr.ActivePlayerID != p2 || nr.FlowState != FlowAwaitingHandPlay {
		t.Errorf("turn did not pass: active=%s state=%s", nr.ActivePlayerID, nr.FlowState)
	}

	// Original snapshot untouched
	if len(r.Players[p1].Hand) != 2 || len(r.Field) != 2 {
		t.Error("operation mutated the input snapshot")
	}
}

func TestPlayHandCardCapturesSingleMatch(t *testing.T) {
	r := testRound(
		[]string{"0103", "0203"},
		[]string{"0503", "0603"},
		[]string{"0104", "0403"},
		[]string{"0703"},
	)

	nr, outcome, err := r.PlayHandCard(p1, "0103", "")
	if err != nil {
		t.Fatalf("PlayHandCard: %v", err)
	}
	if len(outcome.HandCaptured) != 2 {
		t.Fatalf("hand capture = %v, want the pair", outcome.HandCaptured)
	}
	dep := nr.Players[p1].Depository
	if !containsCard(dep, "0103") || !containsCard(dep, "0104") {
		t.Errorf("depository missing captured pair: %v", dep)
	}
	if containsCard(nr.Field, "0104") {
		t.Error("captured card still on field")
	}
}

func TestPlayHandCardThreeMatchesCapturesAll(t *testing.T) {
	r := testRound(
		[]string{"0101", "0203"},
		[]string{"0503", "0603"},
		[]string{"0102", "0103", "0104", "0403"},
		[]string{"0703"},
	)

	nr, outcome, err := r.PlayHandCard(p1, "0101", "")
	if err != nil {
		t.Fatalf("PlayHandCard: %v", err)
	}
	if len(outcome.HandCaptured) != 4 {
		t.Fatalf("capture = %v, want all four pine cards", outcome.HandCaptured)
	}
	if len(nr.Players[p1].Depository) != 4 {
		t.Errorf("depository = %v", nr.Players[p1].Depository)
	}
}

func TestPlayHandCardTwoMatchesRequiresSelection(t *testing.T) {
	r := testRound(
		[]string{"0101", "0203"},
		[]string{"0503", "0603"},
		[]string{"0103", "0104", "0403"},
		[]string{"0703"},
	)

	nr, outcome, err := r.PlayHandCard(p1, "0101", "")
	if err != nil {
		t.Fatalf("PlayHandCard: %v", err)
	}
	if !outcome.SelectionRequired {
		t.Fatal("expected a selection")
	}
	if nr.FlowState != FlowAwaitingSelection || nr.Selection == nil {
		t.Fatalf("state = %s, selection = %v", nr.FlowState, nr.Selection)
	}
	if len(nr.Selection.PossibleTargets) != 2 || nr.Selection.FromDraw {
		t.Fatalf("selection = %+v", nr.Selection)
	}

	// Resolving the selection runs the draw step and completes the turn
	fr, out2, err := nr.SelectTarget(p1, "0101", "0104")
	if err != nil {
		t.Fatalf("SelectTarget: %v", err)
	}
	if out2.HandCaptured[0] != "0101" || out2.HandCaptured[1] != "0104" {
		t.Errorf("selection capture = %v", out2.HandCaptured)
	}
	if fr.ActivePlayerID != p2 {
		t.Errorf("turn did not pass after selection, active=%s", fr.ActivePlayerID)
	}
	if containsCard(fr.Field, "0104") || !containsCard(fr.Field, "0103") {
		t.Errorf("field after selection = %v", fr.Field)
	}
}

func TestPlayHandCardTargetShortCircuitsSelection(t *testing.T) {
	r := testRound(
		[]string{"0101", "0203"},
		[]string{"0503", "0603"},
		[]string{"0103", "0104", "0403"},
		[]string{"0703"},
	)

	nr, outcome, err := r.PlayHandCard(p1, "0101", "0103")
	if err != nil {
		t.Fatalf("PlayHandCard with target: %v", err)
	}
	if outcome.SelectionRequired {
		t.Fatal("target should resolve the selection inline")
	}
	if !containsCard(nr.Players[p1].Depository, "0103") {
		t.Errorf("depository = %v", nr.Players[p1].Depository)
	}

	// A target outside the candidates is rejected
	if _, _, err := r.PlayHandCard(p1, "0101", "0403"); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("err = %v, want ErrInvalidTarget", err)
	}
}

func TestDrawStepSelectionRecordsHandPlay(t *testing.T) {
	r := testRound(
		[]string{"0103", "0203"},
		[]string{"0503", "0603"},
		[]string{"0803", "0804", "0403"},
		[]string{"0801"}, // moon matches both pampas chaff on the field
	)

	nr, outcome, err := r.PlayHandCard(p1, "0103", "")
	if err != nil {
		t.Fatalf("PlayHandCard: %v", err)
	}
	if !outcome.SelectionRequired || nr.Selection == nil || !nr.Selection.FromDraw {
		t.Fatalf("expected a draw-step selection, got %+v", nr.Selection)
	}
	if nr.Selection.HandPlay == nil || nr.Selection.HandPlay.Card != "0103" || !nr.Selection.HandPlay.Placed {
		t.Fatalf("hand play record = %+v", nr.Selection.HandPlay)
	}

	fr, out2, err := nr.SelectTarget(p1, "0801", "0803")
	if err != nil {
		t.Fatalf("SelectTarget: %v", err)
	}
	// The completed turn reports both steps
	if out2.HandCard != "0103" || !out2.HandPlaced {
		t.Errorf("outcome lost the hand step: %+v", out2)
	}
	if out2.DrawnCard != "0801" || len(out2.DrawCaptured) != 2 {
		t.Errorf("outcome draw step = %+v", out2)
	}
	if fr.ActivePlayerID != p2 {
		t.Errorf("turn did not pass, active = %s", fr.ActivePlayerID)
	}
}

func TestTurnValidation(t *testing.T) {
	r := testRound(
		[]string{"0103"},
		[]string{"0503"},
		[]string{"0403"},
		[]string{"0703"},
	)

	if _, _, err := r.PlayHandCard(p2, "0503", ""); !errors.Is(err, ErrNotActivePlayer) {
		t.Errorf("opponent play err = %v, want ErrNotActivePlayer", err)
	}
	if _, _, err := r.PlayHandCard("p_nobody", "0103", ""); !errors.Is(err, ErrPlayerNotInRound) {
		t.Errorf("stranger play err = %v, want ErrPlayerNotInRound", err)
	}
	if _, _, err := r.PlayHandCard(p1, "0999", ""); !errors.Is(err, ErrCardNotInHand) {
		t.Errorf("unknown card err = %v, want ErrCardNotInHand", err)
	}
	if _, _, err := r.SelectTarget(p1, "0103", "0403"); !errors.Is(err, ErrInvalidFlowState) {
		t.Errorf("selection without pending err = %v, want ErrInvalidFlowState", err)
	}
	if _, _, err := r.MakeDecision(p1, DecisionEndRound); !errors.Is(err, ErrInvalidFlowState) {
		t.Errorf("decision without pending err = %v, want ErrInvalidFlowState", err)
	}
}

func TestDecisionKoiKoiKeepsTurn(t *testing.T) {
	r := testRound(
		[]string{"0103", "0203"},
		[]string{"0503"},
		[]string{"0403"},
		[]string{"0703"},
	)
	r.FlowState = FlowAwaitingDecision
	r.Decision = &PendingDecision{ActiveYaku: []Yaku{{Type: YakuSanko, Points: 5}}}

	nr, outcome, err := r.MakeDecision(p1, DecisionKoiKoi)
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	if outcome.RoundEnded {
		t.Fatal("koi-koi should not end the round")
	}
	if nr.FlowState != FlowAwaitingHandPlay || nr.ActivePlayerID != p1 {
		t.Errorf("state=%s active=%s, want hand play for the same player", nr.FlowState, nr.ActivePlayerID)
	}
	st := nr.KoiKoi[p1]
	if st.Multiplier != 2 || st.TimesContinued != 1 {
		t.Errorf("koikoi status = %+v", st)
	}
}

func TestDecisionKoiKoiWithEmptyHandEndsDrawn(t *testing.T) {
	r := testRound(
		[]string{},
		[]string{"0503"},
		[]string{"0403"},
		[]string{"0703"},
	)
	r.FlowState = FlowAwaitingDecision
	r.Decision = &PendingDecision{ActiveYaku: []Yaku{{Type: YakuSanko, Points: 5}}}

	nr, outcome, err := r.MakeDecision(p1, DecisionKoiKoi)
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	if !outcome.RoundEnded || nr.Settlement == nil || nr.Settlement.Reason != EndHandsEmpty {
		t.Fatalf("round should end drawn, settlement = %+v", nr.Settlement)
	}
	if nr.Settlement.WinnerID != "" {
		t.Error("a drawn round has no winner")
	}
}

func TestDecisionEndRoundScoring(t *testing.T) {
	r := testRound(
		[]string{"0103"},
		[]string{"0503"},
		[]string{"0403"},
		[]string{"0703"},
	)
	r.FlowState = FlowAwaitingDecision
	r.Decision = &PendingDecision{ActiveYaku: []Yaku{{Type: YakuSanko, Points: 5}}}
	r.KoiKoi[p1] = KoiKoiStatus{Multiplier: 2, TimesContinued: 1}
	r.KoiKoi[p2] = KoiKoiStatus{Multiplier: 2, TimesContinued: 1}

	nr, outcome, err := r.MakeDecision(p1, DecisionEndRound)
	if err != nil {
		t.Fatalf("MakeDecision: %v", err)
	}
	if !outcome.RoundEnded || nr.FlowState != FlowRoundEnded {
		t.Fatal("round should have ended")
	}
	s := nr.Settlement
	if s == nil || s.Reason != EndStopDecision || s.WinnerID != p1 {
		t.Fatalf("settlement = %+v", s)
	}
	// 5 base, x2 own multiplier, x2 because the opponent continued
	if s.AwardedPoints != 20 {
		t.Errorf("awarded = %d, want 20", s.AwardedPoints)
	}
}

func TestHandsEmptyEndsRoundDrawn(t *testing.T) {
	r := testRound(
		[]string{"0103"},
		[]string{},
		[]string{"0403"},
		[]string{}, // deck exhausted too
	)

	nr, outcome, err := r.PlayHandCard(p1, "0103", "")
	if err != nil {
		t.Fatalf("PlayHandCard: %v", err)
	}
	if !outcome.RoundEnded || nr.Settlement == nil || nr.Settlement.Reason != EndHandsEmpty {
		t.Fatalf("settlement = %+v", nr.Settlement)
	}
}
