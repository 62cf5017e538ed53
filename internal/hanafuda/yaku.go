package hanafuda

// YakuType identifies a scoring pattern
type YakuType string

const (
	YakuGoko        YakuType = "GOKO"         // five brights
	YakuShiko       YakuType = "SHIKO"        // four brights, no rain man
	YakuAmeShiko    YakuType = "AME_SHIKO"    // four brights including rain man
	YakuSanko       YakuType = "SANKO"        // three brights, no rain man
	YakuInoShikaCho YakuType = "INOSHIKACHO"  // boar, deer, butterflies
	YakuTsukimiZake YakuType = "TSUKIMI_ZAKE" // moon + sake cup
	YakuHanamiZake  YakuType = "HANAMI_ZAKE"  // curtain + sake cup
	YakuAkatan      YakuType = "AKATAN"       // three poetry ribbons
	YakuAotan       YakuType = "AOTAN"        // three blue ribbons
	YakuTane        YakuType = "TANE"         // five or more animals
	YakuTanzaku     YakuType = "TANZAKU"      // five or more ribbons
	YakuKasu        YakuType = "KASU"         // ten or more chaff

	// Instant yaku, only possible at deal time
	YakuTeshi    YakuType = "TESHI"    // four cards of one month in hand
	YakuKuttsuki YakuType = "KUTTSUKI" // four pairs in hand
)

// Yaku is a scoring pattern active in a player's depository
type Yaku struct {
	Type   YakuType `json:"type"`
	Name   string   `json:"name"`
	Points int      `json:"points"`
	Cards  []string `json:"cards"`
}

var yakuNames = map[YakuType]string{
	YakuGoko:        "Five Brights",
	YakuShiko:       "Four Brights",
	YakuAmeShiko:    "Rainy Four Brights",
	YakuSanko:       "Three Brights",
	YakuInoShikaCho: "Boar, Deer, Butterflies",
	YakuTsukimiZake: "Moon Viewing",
	YakuHanamiZake:  "Cherry Blossom Viewing",
	YakuAkatan:      "Poetry Ribbons",
	YakuAotan:       "Blue Ribbons",
	YakuTane:        "Animals",
	YakuTanzaku:     "Ribbons",
	YakuKasu:        "Chaff",
	YakuTeshi:       "Teshi",
	YakuKuttsuki:    "Kuttsuki",
}

// ActiveYaku recognizes every yaku currently formed by the given depository.
// It is a pure function of the card set; callers diff successive results to
// find newly formed yaku.
func ActiveYaku(depository []string) []Yaku {
	var brights, animals, ribbons, poetry, blue, chaff []string
	hasRain := false
	for _, id := range depository {
		switch KindOf(id) {
		case KindBright:
			brights = append(brights, id)
			if id == CardRainMan {
				hasRain = true
			}
		case KindAnimal:
			animals = append(animals, id)
		case KindPoetryRibbon:
			ribbons = append(ribbons, id)
			poetry = append(poetry, id)
		case KindBlueRibbon:
			ribbons = append(ribbons, id)
			blue = append(blue, id)
		case KindPlainRibbon:
			ribbons = append(ribbons, id)
		case KindChaff:
			chaff = append(chaff, id)
		}
	}

	var out []Yaku

	// Bright yaku are exclusive of one another; only the best applies.
	switch {
	case len(brights) == 5:
		out = append(out, newYaku(YakuGoko, 10, brights))
	case len(brights) == 4 && !hasRain:
		out = append(out, newYaku(YakuShiko, 8, brights))
	case len(brights) == 4:
		out = append(out, newYaku(YakuAmeShiko, 7, brights))
	case len(brights) == 3 && !hasRain:
		out = append(out, newYaku(YakuSanko, 5, brights))
	}

	if containsCard(depository, CardBoar) && containsCard(depository, CardDeer) && containsCard(depository, CardButterfl) {
		out = append(out, newYaku(YakuInoShikaCho, 5, []string{CardBoar, CardDeer, CardButterfl}))
	}
	if containsCard(depository, CardMoon) && containsCard(depository, CardSakeCup) {
		out = append(out, newYaku(YakuTsukimiZake, 5, []string{CardMoon, CardSakeCup}))
	}
	if containsCard(depository, CardCurtain) && containsCard(depository, CardSakeCup) {
		out = append(out, newYaku(YakuHanamiZake, 5, []string{CardCurtain, CardSakeCup}))
	}
	if len(poetry) == 3 {
		out = append(out, newYaku(YakuAkatan, 5, poetry))
	}
	if len(blue) == 3 {
		out = append(out, newYaku(YakuAotan, 5, blue))
	}
	if len(animals) >= 5 {
		out = append(out, newYaku(YakuTane, 1+len(animals)-5, animals))
	}
	if len(ribbons) >= 5 {
		out = append(out, newYaku(YakuTanzaku, 1+len(ribbons)-5, ribbons))
	}
	if len(chaff) >= 10 {
		out = append(out, newYaku(YakuKasu, 1+len(chaff)-10, chaff))
	}

	return out
}

func newYaku(t YakuType, points int, cards []string) Yaku {
	cp := make([]string, len(cards))
	copy(cp, cards)
	return Yaku{Type: t, Name: yakuNames[t], Points: points, Cards: cp}
}

// BasePoints sums the point values of a yaku list
func BasePoints(yaku []Yaku) int {
	total := 0
	for _, y := range yaku {
		total += y.Points
	}
	return total
}

// NewlyFormed returns the yaku in after that were not active in before.
// A yaku that upgraded (e.g. SANKO to SHIKO, or KASU gaining a card) counts
// as newly formed.
func NewlyFormed(before, after []Yaku) []Yaku {
	prev := make(map[YakuType]int, len(before))
	for _, y := range before {
		prev[y.Type] = y.Points
	}
	var out []Yaku
	for _, y := range after {
		if pts, ok := prev[y.Type]; !ok || pts != y.Points {
			out = append(out, y)
		}
	}
	return out
}

// CheckTeshi reports a teshi yaku (four cards of one month) in a dealt hand
func CheckTeshi(hand []string) (Yaku, bool) {
	counts := make(map[int][]string)
	for _, id := range hand {
		m := MonthOf(id)
		counts[m] = append(counts[m], id)
	}
	for _, cards := range counts {
		if len(cards) == 4 {
			return newYaku(YakuTeshi, 6, cards), true
		}
	}
	return Yaku{}, false
}

// CheckKuttsuki reports a kuttsuki yaku (four pairs) in a dealt hand
func CheckKuttsuki(hand []string) (Yaku, bool) {
	if len(hand) != 8 {
		return Yaku{}, false
	}
	counts := make(map[int]int)
	for _, id := range hand {
		counts[MonthOf(id)]++
	}
	if len(counts) != 4 {
		return Yaku{}, false
	}
	for _, n := range counts {
		if n != 2 {
			return Yaku{}, false
		}
	}
	return newYaku(YakuKuttsuki, 6, hand), true
}

// CheckFieldKuttsuki reports whether the dealt field consists of four pairs,
// which voids the round.
func CheckFieldKuttsuki(field []string) bool {
	if len(field) != 8 {
		return false
	}
	counts := make(map[int]int)
	for _, id := range field {
		counts[MonthOf(id)]++
	}
	if len(counts) != 4 {
		return false
	}
	for _, n := range counts {
		if n != 2 {
			return false
		}
	}
	return true
}
