package engine

import (
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// DisplayName normalizes catalog and operator supplied names for display and logs.
func DisplayName(name string) string {
	return titleCaser.String(strings.TrimSpace(name))
}

func NewGameState() GameState {
	state := GameState{}
	state.Reset()

	return state
}

// Reset clears everything back to the state of a battle that has not started yet
func (g *GameState) Reset() {
	g.Hand = []HandCard{}
	g.Bench = [BenchSize]*PokemonInstance{}
	g.Active = nil
	g.NumberOfCards = nil
	g.PendingDelta = 0
	g.IsFirstTurn = true
	g.FirstTurnDone = false
	g.GoFirst = false
	g.PlayedTrainerCards = 0
	g.PlacedActive = false
	g.PlacedBench = [BenchSize]bool{}
	g.FailedCards = []string{}
}

// Clone creates a deep copy that can be handed to other goroutines (the console)
func (g GameState) Clone() GameState {
	newState := g
	newState.Hand = slices.Clone(g.Hand)
	newState.FailedCards = slices.Clone(g.FailedCards)

	if g.NumberOfCards != nil {
		n := *g.NumberOfCards
		newState.NumberOfCards = &n
	}

	if g.Active != nil {
		active := *g.Active
		newState.Active = &active
	}

	for i, pokemon := range g.Bench {
		if pokemon != nil {
			benched := *pokemon
			newState.Bench[i] = &benched
		}
	}

	return newState
}

func (g *GameState) BenchCount() int {
	return lo.CountBy(g.Bench[:], func(p *PokemonInstance) bool {
		return p != nil
	})
}

// FreeBenchSlot returns the first empty bench index, or -1 when the bench is full
func (g *GameState) FreeBenchSlot() int {
	for i, pokemon := range g.Bench {
		if pokemon == nil {
			return i
		}
	}

	return -1
}

func (g *GameState) IsFailed(cardID string) bool {
	return lo.Contains(g.FailedCards, cardID)
}

func (g *GameState) MarkFailed(cardID string) {
	if cardID == "" || g.IsFailed(cardID) {
		return
	}

	g.FailedCards = append(g.FailedCards, cardID)
}

// BeginTurn resets the per-turn bookkeeping. It is called once per turn, right
// before the hand is processed.
func (g *GameState) BeginTurn() {
	g.PlayedTrainerCards = 0
	g.PlacedActive = false
	g.PlacedBench = [BenchSize]bool{}
	g.FailedCards = []string{}
}

// SetHand replaces the hand with a fresh scan. Positions are taken from the
// slice order and the hand-size counter is reconciled to the scan.
func (g *GameState) SetHand(cards []HandCard) {
	g.Hand = make([]HandCard, len(cards))
	for i, card := range cards {
		card.Position = i
		g.Hand[i] = card
	}

	n := len(g.Hand)
	g.NumberOfCards = &n
	g.PendingDelta = 0
}

// ClearHand is used when the hand size is unknown. The counter is dropped with it.
func (g *GameState) ClearHand() {
	g.Hand = []HandCard{}
	g.NumberOfCards = nil
	g.PendingDelta = 0
}

// RemoveFromHand removes the card at position and shifts the cards to its right
func (g *GameState) RemoveFromHand(position int) bool {
	index := slices.IndexFunc(g.Hand, func(c HandCard) bool {
		return c.Position == position
	})
	if index == -1 {
		return false
	}

	g.Hand = slices.Delete(g.Hand, index, index+1)
	for i := range g.Hand {
		g.Hand[i].Position = i
	}

	if g.NumberOfCards != nil && *g.NumberOfCards > 0 {
		*g.NumberOfCards--
	}

	return true
}

// HandStale reports whether the hand contents no longer match what the
// counters say is in hand.
func (g *GameState) HandStale() bool {
	if g.PendingDelta != 0 {
		return true
	}

	return g.NumberOfCards != nil && *g.NumberOfCards != len(g.Hand)
}

// ExpectedHandSize is the counter plus anything a trainer effect added
func (g *GameState) ExpectedHandSize() (int, bool) {
	if g.NumberOfCards == nil {
		return 0, false
	}

	return max(*g.NumberOfCards+g.PendingDelta, 0), true
}

// SetActive records the pokemon in the active spot. Energy is kept when the
// same pokemon is seen again.
func (g *GameState) SetActive(attrs CardAttrs) {
	pokemon := NewPokemonInstance(attrs)
	if g.Active != nil && strings.EqualFold(g.Active.Name, pokemon.Name) {
		pokemon.EnergyCount = g.Active.EnergyCount
	}

	g.Active = pokemon
}

// SetBenchSlot records what a bench scan found. nil attrs empties the slot.
func (g *GameState) SetBenchSlot(slot int, attrs *CardAttrs) {
	if slot < 0 || slot >= BenchSize {
		return
	}

	if attrs == nil {
		g.Bench[slot] = nil
		g.PlacedBench[slot] = false
		return
	}

	pokemon := NewPokemonInstance(*attrs)
	if current := g.Bench[slot]; current != nil {
		pokemon.EnergyCount = current.EnergyCount
	}

	g.Bench[slot] = pokemon
}

// ApplyOutcome commits a verified play. A failed outcome only marks the card
// so the planner skips it until the next full refresh.
func (g *GameState) ApplyOutcome(outcome Outcome) bool {
	candidate := outcome.Candidate
	card := candidate.Card

	if !outcome.Success {
		g.MarkFailed(card.CardID)
		return false
	}

	switch candidate.Kind {
	case PLAY_TRAINER:
		g.PlayedTrainerCards++
		g.PendingDelta += outcome.HandDelta
	case PLAY_SET_ACTIVE:
		if g.Active != nil {
			internalLogger.Info("active spot already taken, not applying play", "card", card.String())
			g.MarkFailed(card.CardID)
			return false
		}
		g.Active = NewPokemonInstance(card.Attrs)
		g.PlacedActive = true
	case PLAY_BENCH:
		if candidate.Slot < 0 || candidate.Slot >= BenchSize || g.Bench[candidate.Slot] != nil {
			internalLogger.Info("bench slot not free, not applying play", "card", card.String(), "slot", candidate.Slot)
			g.MarkFailed(card.CardID)
			return false
		}
		g.Bench[candidate.Slot] = NewPokemonInstance(card.Attrs)
		g.PlacedBench[candidate.Slot] = true
	case PLAY_EVOLVE_BENCH:
		if candidate.Slot < 0 || candidate.Slot >= BenchSize || g.Bench[candidate.Slot] == nil {
			g.MarkFailed(card.CardID)
			return false
		}
		evolved := NewPokemonInstance(card.Attrs)
		evolved.EnergyCount = g.Bench[candidate.Slot].EnergyCount
		g.Bench[candidate.Slot] = evolved
		g.PlacedBench[candidate.Slot] = true
	case PLAY_EVOLVE_ACTIVE:
		if g.Active == nil {
			g.MarkFailed(card.CardID)
			return false
		}
		evolved := NewPokemonInstance(card.Attrs)
		evolved.EnergyCount = g.Active.EnergyCount
		g.Active = evolved
		g.PlacedActive = true
	default:
		return false
	}

	g.RemoveFromHand(card.Position)
	return true
}

// AttachEnergy bumps the active pokemon's energy after the end-of-turn drag
func (g *GameState) AttachEnergy() {
	if g.Active != nil {
		g.Active.EnergyCount++
	}
}
