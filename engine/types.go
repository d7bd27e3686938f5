package engine

import (
	"fmt"
	"strings"
)

const (
	BenchSize = 3

	// Trainer and item cards share one per-turn allowance.
	MaxTrainerCardsPerTurn = 2
)

// Card stages as printed on the card
const (
	STAGE_BASIC = iota
	STAGE_1
	STAGE_2
)

// CardAttrs is the normalized, catalog-validated description of a card.
// The planner only ever sees values that passed Validate.
type CardAttrs struct {
	ID   string
	Name string
	// 0 = basic, 1 = stage 1, 2 = stage 2
	Stage int
	// Name of the card this one evolves from, empty for basics and trainers
	EvolvesFrom string
	IsItemCard  bool
	// Cheapest attack cost, informational only
	Energies int

	SetCode string
	SetName string
	Rarity  string
	Color   string
	Type    string
	Slug    string
}

func (a CardAttrs) HasEvolvesFrom() bool {
	return a.EvolvesFrom != ""
}

func (a CardAttrs) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("card attrs: missing id")
	}
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("card attrs %s: missing name", a.ID)
	}
	if a.Stage < STAGE_BASIC || a.Stage > STAGE_2 {
		return fmt.Errorf("card attrs %s: stage %d out of range", a.ID, a.Stage)
	}
	if a.IsItemCard && a.HasEvolvesFrom() {
		return fmt.Errorf("card attrs %s: item card cannot evolve from %q", a.ID, a.EvolvesFrom)
	}

	return nil
}

// HandCard is one card in hand. Position is the left-to-right screen index and
// is recomputed every time a card leaves the hand.
//
// A card that could not be recognized keeps its slot (so positions still match
// the screen) but has an empty CardID and is never planned.
type HandCard struct {
	CardID   string
	Position int
	Attrs    CardAttrs
}

func (c HandCard) Known() bool {
	return c.CardID != ""
}

func (c HandCard) String() string {
	if !c.Known() {
		return fmt.Sprintf("<unknown #%d>", c.Position)
	}

	return fmt.Sprintf("%s #%d", c.Attrs.Name, c.Position)
}

type PokemonInstance struct {
	Name        string
	Attrs       CardAttrs
	EnergyCount int
}

func NewPokemonInstance(attrs CardAttrs) *PokemonInstance {
	return &PokemonInstance{
		Name:  DisplayName(attrs.Name),
		Attrs: attrs,
	}
}

// GameState is the bot's view of one battle. It is owned by the Orchestrator;
// every other component reads it or returns values that the Orchestrator applies.
type GameState struct {
	Hand   []HandCard
	Bench  [BenchSize]*PokemonInstance
	Active *PokemonInstance

	// Authoritative hand size when known. Reconciled against OCR on refresh and
	// moved by deltas in between.
	NumberOfCards *int
	// Cards a trainer effect is known to have added since the last refresh
	PendingDelta int

	IsFirstTurn        bool
	FirstTurnDone      bool
	GoFirst            bool
	PlayedTrainerCards int
	// Board spots filled or evolved this turn. They cannot evolve until the next turn.
	PlacedActive bool
	PlacedBench  [BenchSize]bool

	// Card ids that failed verification since the last full refresh
	FailedCards []string
}

type DeviceInfo struct {
	ID      string
	State   string
	Type    string
	Details string
}

// A device in this state is online and accepting commands
const DEVICE_STATE_ONLINE = "device"
