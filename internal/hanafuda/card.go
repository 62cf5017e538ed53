package hanafuda

import (
	"math/rand"
)

// CardKind classifies a hanafuda card for scoring
type CardKind string

const (
	KindBright       CardKind = "bright"
	KindAnimal       CardKind = "animal"
	KindPoetryRibbon CardKind = "poetry_ribbon"
	KindBlueRibbon   CardKind = "blue_ribbon"
	KindPlainRibbon  CardKind = "plain_ribbon"
	KindChaff        CardKind = "chaff"
)

// Card represents a single hanafuda card. Cards are referred to by their
// four-digit id "MMNN" (month 01-12, index 01-04) everywhere on the wire.
type Card struct {
	ID    string   `json:"id"`
	Month int      `json:"month"`
	Kind  CardKind `json:"kind"`
	Name  string   `json:"name"`
}

// Named cards that individual yaku check for
const (
	CardCrane    = "0101" // pine bright
	CardCurtain  = "0301" // cherry blossom bright
	CardMoon     = "0801" // pampas bright
	CardRainMan  = "1101" // willow bright
	CardPhoenix  = "1201" // paulownia bright
	CardBoar     = "0701"
	CardDeer     = "1001"
	CardButterfl = "0601"
	CardSakeCup  = "0901"
)

// deck lists all 48 cards of the standard hanafuda deck.
var deck = []Card{
	{ID: "0101", Month: 1, Kind: KindBright, Name: "Crane"},
	{ID: "0102", Month: 1, Kind: KindPoetryRibbon, Name: "Pine Poetry Ribbon"},
	{ID: "0103", Month: 1, Kind: KindChaff, Name: "Pine Chaff"},
	{ID: "0104", Month: 1, Kind: KindChaff, Name: "Pine Chaff"},

	{ID: "0201", Month: 2, Kind: KindAnimal, Name: "Bush Warbler"},
	{ID: "0202", Month: 2, Kind: KindPoetryRibbon, Name: "Plum Poetry Ribbon"},
	{ID: "0203", Month: 2, Kind: KindChaff, Name: "Plum Chaff"},
	{ID: "0204", Month: 2, Kind: KindChaff, Name: "Plum Chaff"},

	{ID: "0301", Month: 3, Kind: KindBright, Name: "Camp Curtain"},
	{ID: "0302", Month: 3, Kind: KindPoetryRibbon, Name: "Cherry Poetry Ribbon"},
	{ID: "0303", Month: 3, Kind: KindChaff, Name: "Cherry Chaff"},
	{ID: "0304", Month: 3, Kind: KindChaff, Name: "Cherry Chaff"},

	{ID: "0401", Month: 4, Kind: KindAnimal, Name: "Lesser Cuckoo"},
	{ID: "0402", Month: 4, Kind: KindPlainRibbon, Name: "Wisteria Ribbon"},
	{ID: "0403", Month: 4, Kind: KindChaff, Name: "Wisteria Chaff"},
	{ID: "0404", Month: 4, Kind: KindChaff, Name: "Wisteria Chaff"},

	{ID: "0501", Month: 5, Kind: KindAnimal, Name: "Eight-Plank Bridge"},
	{ID: "0502", Month: 5, Kind: KindPlainRibbon, Name: "Iris Ribbon"},
	{ID: "0503", Month: 5, Kind: KindChaff, Name: "Iris Chaff"},
	{ID: "0504", Month: 5, Kind: KindChaff, Name: "Iris Chaff"},

	{ID: "0601", Month: 6, Kind: KindAnimal, Name: "Butterflies"},
	{ID: "0602", Month: 6, Kind: KindBlueRibbon, Name: "Peony Blue Ribbon"},
	{ID: "0603", Month: 6, Kind: KindChaff, Name: "Peony Chaff"},
	{ID: "0604", Month: 6, Kind: KindChaff, Name: "Peony Chaff"},

	{ID: "0701", Month: 7, Kind: KindAnimal, Name: "Wild Boar"},
	{ID: "0702", Month: 7, Kind: KindPlainRibbon, Name: "Bush Clover Ribbon"},
	{ID: "0703", Month: 7, Kind: KindChaff, Name: "Bush Clover Chaff"},
	{ID: "0704", Month: 7, Kind: KindChaff, Name: "Bush Clover Chaff"},

	{ID: "0801", Month: 8, Kind: KindBright, Name: "Full Moon"},
	{ID: "0802", Month: 8, Kind: KindAnimal, Name: "Geese"},
	{ID: "0803", Month: 8, Kind: KindChaff, Name: "Pampas Chaff"},
	{ID: "0804", Month: 8, Kind: KindChaff, Name: "Pampas Chaff"},

	{ID: "0901", Month: 9, Kind: KindAnimal, Name: "Sake Cup"},
	{ID: "0902", Month: 9, Kind: KindBlueRibbon, Name: "Chrysanthemum Blue Ribbon"},
	{ID: "0903", Month: 9, Kind: KindChaff, Name: "Chrysanthemum Chaff"},
	{ID: "0904", Month: 9, Kind: KindChaff, Name: "Chrysanthemum Chaff"},

	{ID: "1001", Month: 10, Kind: KindAnimal, Name: "Deer"},
	{ID: "1002", Month: 10, Kind: KindBlueRibbon, Name: "Maple Blue Ribbon"},
	{ID: "1003", Month: 10, Kind: KindChaff, Name: "Maple Chaff"},
	{ID: "1004", Month: 10, Kind: KindChaff, Name: "Maple Chaff"},

	{ID: "1101", Month: 11, Kind: KindBright, Name: "Rain Man"},
	{ID: "1102", Month: 11, Kind: KindAnimal, Name: "Swallow"},
	{ID: "1103", Month: 11, Kind: KindPlainRibbon, Name: "Willow Ribbon"},
	{ID: "1104", Month: 11, Kind: KindChaff, Name: "Lightning"},

	{ID: "1201", Month: 12, Kind: KindBright, Name: "Phoenix"},
	{ID: "1202", Month: 12, Kind: KindChaff, Name: "Paulownia Chaff"},
	{ID: "1203", Month: 12, Kind: KindChaff, Name: "Paulownia Chaff"},
	{ID: "1204", Month: 12, Kind: KindChaff, Name: "Paulownia Chaff"},
}

// DeckSize is the number of cards in a full hanafuda deck
const DeckSize = 48

var cardByID = func() map[string]Card {
	m := make(map[string]Card, len(deck))
	for _, c := range deck {
		m[c.ID] = c
	}
	return m
}()

// CardByID looks up a card by its wire id
func CardByID(id string) (Card, bool) {
	c, ok := cardByID[id]
	return c, ok
}

// MonthOf returns the month (1-12) of a card id, or 0 for an unknown id
func MonthOf(id string) int {
	c, ok := cardByID[id]
	if !ok {
		return 0
	}
	return c.Month
}

// KindOf returns the scoring kind of a card id
func KindOf(id string) CardKind {
	return cardByID[id].Kind
}

// SameMonth reports whether two card ids belong to the same month
func SameMonth(a, b string) bool {
	ma, mb := MonthOf(a), MonthOf(b)
	return ma != 0 && ma == mb
}

// MatchableCards returns the field cards sharing a month with the given card,
// preserving field order.
func MatchableCards(cardID string, field []string) []string {
	var matches []string
	for _, f := range field {
		if SameMonth(cardID, f) {
			matches = append(matches, f)
		}
	}
	return matches
}

// NewShuffledDeck returns all 48 card ids in a random order drawn from rng.
func NewShuffledDeck(rng *rand.Rand) []string {
	ids := make([]string, len(deck))
	for i, c := range deck {
		ids[i] = c.ID
	}
	rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
	return ids
}

// removeCard removes the first occurrence of id from cards, returning the new
// slice and whether the id was present.
func removeCard(cards []string, id string) ([]string, bool) {
	for i, c := range cards {
		if c == id {
			out := make([]string, 0, len(cards)-1)
			out = append(out, cards[:i]...)
			out = append(out, cards[i+1:]...)
			return out, true
		}
	}
	return cards, false
}

func containsCard(cards []string, id string) bool {
	for _, c := range cards {
		if c == id {
			return true
		}
	}
	return false
}
