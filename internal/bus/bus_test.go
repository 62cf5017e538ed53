package bus

import (
	"testing"
	"time"

	"github.com/hanakoi/backend/internal/hanafuda"
)

func TestInternalBusDeliversInOrder(t *testing.T) {
	b := NewInternalBus()
	var order []int

	b.SubscribeMatchFound(func(MatchFound) { order = append(order, 1) })
	b.SubscribeMatchFound(func(MatchFound) { order = append(order, 2) })
	b.SubscribeMatchFound(func(MatchFound) { order = append(order, 3) })

	b.PublishMatchFound(MatchFound{RoomType: hanafuda.RoomQuick})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("delivery order = %v", order)
	}
}

func TestInternalBusSurvivesPanickingHandler(t *testing.T) {
	b := NewInternalBus()
	delivered := false

	b.SubscribeGameFinished(func(GameFinished) { panic("boom") })
	b.SubscribeGameFinished(func(GameFinished) { delivered = true })

	b.PublishGameFinished(GameFinished{GameID: "g_1", FinishedAt: time.Now()})

	if !delivered {
		t.Fatal("panicking handler stopped delivery")
	}
}

func TestInternalBusUnsubscribe(t *testing.T) {
	b := NewInternalBus()
	count := 0

	unsub := b.SubscribeMatchFound(func(MatchFound) { count++ })
	b.PublishMatchFound(MatchFound{})
	unsub()
	unsub() // second call is harmless
	b.PublishMatchFound(MatchFound{})

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestPlayerBusScopesDeliveryToPlayer(t *testing.T) {
	b := NewPlayerBus()
	var alice, bob []GatewayEvent

	b.Subscribe("p_alice", func(ev GatewayEvent) { alice = append(alice, ev) })
	b.Subscribe("p_bob", func(ev GatewayEvent) { bob = append(bob, ev) })

	b.Publish("p_alice", GatewayEvent{Domain: DomainGame, Type: EventRoundDealt})
	b.Publish("p_alice", GatewayEvent{Domain: DomainGame, Type: EventTurnCompleted})

	if len(alice) != 2 || len(bob) != 0 {
		t.Fatalf("alice=%d bob=%d", len(alice), len(bob))
	}
	if alice[0].EventID >= alice[1].EventID {
		t.Errorf("event ids not increasing: %d then %d", alice[0].EventID, alice[1].EventID)
	}
	if alice[0].Timestamp == "" {
		t.Error("timestamp not stamped")
	}
}

func TestPlayerBusDropsWithoutSubscriber(t *testing.T) {
	b := NewPlayerBus()
	// Nothing to assert beyond not blocking or panicking
	b.Publish("p_ghost", GatewayEvent{Domain: DomainMatchmaking, Type: EventMatchmakingStatus})

	if b.HasSubscriber("p_ghost") {
		t.Fatal("phantom subscriber")
	}
}

func TestPlayerBusUnsubscribeRemovesDelivery(t *testing.T) {
	b := NewPlayerBus()
	count := 0
	unsub := b.Subscribe("p_alice", func(GatewayEvent) { count++ })

	b.Publish("p_alice", GatewayEvent{Type: EventRoundDealt})
	unsub()
	b.Publish("p_alice", GatewayEvent{Type: EventRoundDealt})

	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	if b.HasSubscriber("p_alice") {
		t.Error("subscriber map not cleaned up")
	}
}
