package engine

import "strings"

func CanPlayTrainer(state *GameState, card HandCard) bool {
	return card.Attrs.IsItemCard &&
		!state.IsFirstTurn &&
		state.PlayedTrainerCards < MaxTrainerCardsPerTurn
}

func CanSetActive(state *GameState, card HandCard) bool {
	return state.Active == nil && isBasicPokemon(card)
}

func CanPlaceOnBench(state *GameState, card HandCard) bool {
	return state.BenchCount() < BenchSize && isBasicPokemon(card)
}

// CanEvolve finds the pokemon card evolves from. Bench slots are preferred over
// the active spot. Evolving is never legal before the first turn is done, on
// a turn the bot went first, or onto a pokemon placed or evolved this turn.
func CanEvolve(state *GameState, card HandCard) (PlayKind, int, bool) {
	if !state.FirstTurnDone || state.GoFirst {
		return 0, -1, false
	}
	if card.Attrs.IsItemCard || !card.Attrs.HasEvolvesFrom() {
		return 0, -1, false
	}

	for slot, pokemon := range state.Bench {
		if pokemon != nil && !state.PlacedBench[slot] && strings.EqualFold(pokemon.Name, card.Attrs.EvolvesFrom) {
			return PLAY_EVOLVE_BENCH, slot, true
		}
	}

	if state.Active != nil && !state.PlacedActive && strings.EqualFold(state.Active.Name, card.Attrs.EvolvesFrom) {
		return PLAY_EVOLVE_ACTIVE, -1, true
	}

	return 0, -1, false
}

func isBasicPokemon(card HandCard) bool {
	return card.Attrs.Stage == STAGE_BASIC && !card.Attrs.IsItemCard && card.Attrs.Name != ""
}

// Plan lists the plays that are legal right now, in hand order. The state is
// never modified; plays earlier in the list are assumed to succeed when
// deciding the later ones, so two basics never target the same slot and the
// trainer allowance is never exceeded by one pass.
func Plan(state *GameState) []Candidate {
	projected := state.Clone()
	candidates := []Candidate{}

	for _, card := range state.Hand {
		if !card.Known() || projected.IsFailed(card.CardID) {
			continue
		}

		candidate, ok := classify(&projected, card)
		if !ok {
			continue
		}

		switch candidate.Kind {
		case PLAY_TRAINER:
			projected.PlayedTrainerCards++
		case PLAY_SET_ACTIVE:
			projected.Active = NewPokemonInstance(card.Attrs)
			projected.PlacedActive = true
		case PLAY_BENCH:
			projected.Bench[candidate.Slot] = NewPokemonInstance(card.Attrs)
			projected.PlacedBench[candidate.Slot] = true
		case PLAY_EVOLVE_BENCH:
			projected.PlacedBench[candidate.Slot] = true
		case PLAY_EVOLVE_ACTIVE:
			projected.PlacedActive = true
		}

		candidates = append(candidates, candidate)
	}

	return candidates
}

// classify applies the rules in precedence order: trainer, set active, bench,
// evolve. state is the projected board, so a pokemon placed earlier in the pass
// counts as placed this turn.
func classify(state *GameState, card HandCard) (Candidate, bool) {
	if card.Attrs.IsItemCard {
		if CanPlayTrainer(state, card) {
			return Candidate{Kind: PLAY_TRAINER, Card: card, Slot: -1}, true
		}
		return Candidate{}, false
	}

	if CanSetActive(state, card) {
		return Candidate{Kind: PLAY_SET_ACTIVE, Card: card, Slot: -1}, true
	}

	if CanPlaceOnBench(state, card) {
		return Candidate{Kind: PLAY_BENCH, Card: card, Slot: state.FreeBenchSlot()}, true
	}

	if kind, slot, ok := CanEvolve(state, card); ok {
		return Candidate{Kind: kind, Card: card, Slot: slot}, true
	}

	return Candidate{}, false
}
