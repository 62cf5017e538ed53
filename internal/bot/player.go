// Package bot is the in-process AI opponent. It plays as a normal
// participant: it subscribes to the bot identity's outbound event stream and
// answers with commands, after a short think delay so games read naturally.
package bot

import (
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/hanakoi/backend/internal/bus"
	"github.com/hanakoi/backend/internal/hanafuda"
	"github.com/hanakoi/backend/internal/identity"
	"github.com/hanakoi/backend/internal/session"
)

// Capture preference by card kind
var kindWeight = map[hanafuda.CardKind]int{
	hanafuda.KindBright:       8,
	hanafuda.KindAnimal:       4,
	hanafuda.KindPoetryRibbon: 3,
	hanafuda.KindBlueRibbon:   3,
	hanafuda.KindPlainRibbon:  2,
	hanafuda.KindChaff:        1,
}

// Player drives the bot seat across every bot game at once; events carry the
// game id, so one subscription serves them all.
type Player struct {
	sessions *session.Service
	players  *bus.PlayerBus

	mu  sync.Mutex
	rng *rand.Rand

	unsubscribe bus.Unsubscribe
}

// New creates the bot player
func New(sessions *session.Service, players *bus.PlayerBus) *Player {
	return &Player{
		sessions: sessions,
		players:  players,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Start subscribes the bot to its event stream
func (b *Player) Start() {
	b.unsubscribe = b.players.Subscribe(identity.BotPlayerID, b.onEvent)
	log.Printf("[BOT] AI opponent online as %s", identity.BotPlayerID)
}

// Stop detaches the bot from the event stream
func (b *Player) Stop() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
}

func (b *Player) onEvent(ev bus.GatewayEvent) {
	switch ev.Type {
	case bus.EventRoundDealt:
		p, ok := ev.Payload.(session.RoundDealtPayload)
		if ok {
			b.maybeAct(ev.GameID, p.Game)
		}
	case bus.EventTurnCompleted, bus.EventTurnProgressAfterSelection:
		p, ok := ev.Payload.(session.TurnCompletedPayload)
		if ok {
			b.maybeAct(ev.GameID, p.Game)
		}
	case bus.EventDecisionMade:
		p, ok := ev.Payload.(session.DecisionMadePayload)
		if ok {
			b.maybeAct(ev.GameID, p.Game)
		}
	case bus.EventSelectionRequired:
		p, ok := ev.Payload.(session.SelectionRequiredPayload)
		if ok && p.PlayerID == identity.BotPlayerID {
			b.after(func() { b.selectTarget(ev.GameID, p) })
		}
	case bus.EventDecisionRequired:
		p, ok := ev.Payload.(session.DecisionRequiredPayload)
		if ok && p.PlayerID == identity.BotPlayerID {
			b.after(func() { b.decide(ev.GameID, p) })
		}
	case bus.EventRoundScored, bus.EventRoundDrawn, bus.EventRoundEndedInstantly:
		p, ok := ev.Payload.(session.RoundScoredPayload)
		if ok && p.Game.Status == hanafuda.StatusInProgress {
			b.after(func() { b.confirmContinue(ev.GameID) })
		}
	}
}

// maybeAct plays a hand card when the bot holds the turn
func (b *Player) maybeAct(gameID string, view session.GameView) {
	r := view.Round
	if r == nil || r.FlowState != hanafuda.FlowAwaitingHandPlay || r.ActivePlayerID != identity.BotPlayerID {
		return
	}
	if len(r.Hand) == 0 {
		return
	}
	card, target := chooseHandCard(r.Hand, r.Field)
	b.after(func() {
		b.send(identity.BotPlayerID, session.CmdPlayCard, session.PlayCardPayload{
			GameID:       gameID,
			CardID:       card,
			TargetCardID: target,
		})
	})
}

func (b *Player) selectTarget(gameID string, p session.SelectionRequiredPayload) {
	target := bestTarget(p.PossibleTargets)
	b.send(identity.BotPlayerID, session.CmdSelectTarget, session.SelectTargetPayload{
		GameID:       gameID,
		SourceCardID: p.SourceCard,
		TargetCardID: target,
	})
}

// decide answers koi-koi or stop. The bot presses on only when it still has
// cards to work with and has not raised the stakes yet.
func (b *Player) decide(gameID string, p session.DecisionRequiredPayload) {
	decision := hanafuda.DecisionEndRound
	r := p.Game.Round
	if r != nil && len(r.Hand) >= 3 && r.KoiKoi[identity.BotPlayerID].Multiplier == 1 && r.OpponentHandCount >= 2 {
		decision = hanafuda.DecisionKoiKoi
	}
	b.send(identity.BotPlayerID, session.CmdMakeDecision, session.MakeDecisionPayload{
		GameID:   gameID,
		Decision: string(decision),
	})
}

func (b *Player) confirmContinue(gameID string) {
	b.send(identity.BotPlayerID, session.CmdConfirmContinue, session.ConfirmContinuePayload{
		GameID:   gameID,
		Decision: "CONTINUE",
	})
}

// after schedules fn on a fresh goroutine with a think delay
func (b *Player) after(fn func()) {
	b.mu.Lock()
	delay := 500*time.Millisecond + time.Duration(b.rng.Intn(1000))*time.Millisecond
	b.mu.Unlock()
	time.AfterFunc(delay, fn)
}

func (b *Player) send(playerID, cmdType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[BOT] Failed to marshal %s payload: %v", cmdType, err)
		return
	}
	resp := b.sessions.DispatchInternal(playerID, session.CommandFrame{
		CommandID: "bot_" + cmdType,
		Type:      cmdType,
		Payload:   data,
	})
	if !resp.Success {
		log.Printf("[BOT] Command %s rejected: %s %s", cmdType, resp.Code, resp.Message)
	}
}

// chooseHandCard ranks hand cards by the best capture they can make right
// now. With nothing to capture the least valuable card is discarded.
func chooseHandCard(hand, field []string) (card, target string) {
	bestCard := ""
	bestTargetCard := ""
	bestScore := -1

	worstCard := hand[0]
	worstWeight := 1 << 30
	for _, c := range hand {
		if w := kindWeight[hanafuda.KindOf(c)]; w < worstWeight {
			worstWeight = w
			worstCard = c
		}

		matches := hanafuda.MatchableCards(c, field)
		if len(matches) == 0 {
			continue
		}
		t := bestTarget(matches)
		score := kindWeight[hanafuda.KindOf(c)] + kindWeight[hanafuda.KindOf(t)]
		if len(matches) == 3 {
			// Captures the whole month
			score = kindWeight[hanafuda.KindOf(c)]
			for _, m := range matches {
				score += kindWeight[hanafuda.KindOf(m)]
			}
			t = ""
		}
		if len(matches) == 1 {
			t = ""
		}
		if score > bestScore {
			bestScore = score
			bestCard = c
			bestTargetCard = t
		}
	}

	if bestCard != "" {
		return bestCard, bestTargetCard
	}
	return worstCard, ""
}

func bestTarget(candidates []string) string {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if kindWeight[hanafuda.KindOf(c)] > kindWeight[hanafuda.KindOf(best)] {
			best = c
		}
	}
	return best
}
