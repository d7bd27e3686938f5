package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var stageLevels = map[string]int{
	"Basic":   engine.STAGE_BASIC,
	"Stage 1": engine.STAGE_1,
	"Stage 2": engine.STAGE_2,
}

// deckEntry is one card in deck.json
type deckEntry struct {
	Level       int    `json:"level"`
	Energies    int    `json:"energies"`
	EvolvesFrom string `json:"evolves_from,omitempty"`
	ItemCard    bool   `json:"item_card"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	SetCode     string `json:"set_code,omitempty"`
	SetName     string `json:"set_name,omitempty"`
	Rarity      string `json:"rarity,omitempty"`
	Color       string `json:"color,omitempty"`
	Type        string `json:"type,omitempty"`
	Slug        string `json:"slug,omitempty"`
}

func entryFromAttrs(a engine.CardAttrs) deckEntry {
	return deckEntry{
		Level:       a.Stage,
		Energies:    a.Energies,
		EvolvesFrom: a.EvolvesFrom,
		ItemCard:    a.IsItemCard,
		ID:          a.ID,
		Name:        a.Name,
		SetCode:     a.SetCode,
		SetName:     a.SetName,
		Rarity:      a.Rarity,
		Color:       a.Color,
		Type:        a.Type,
		Slug:        a.Slug,
	}
}

func (e deckEntry) attrs() engine.CardAttrs {
	return engine.CardAttrs{
		ID:          e.ID,
		Name:        e.Name,
		Stage:       e.Level,
		EvolvesFrom: e.EvolvesFrom,
		IsItemCard:  e.ItemCard,
		Energies:    e.Energies,
		SetCode:     e.SetCode,
		SetName:     e.SetName,
		Rarity:      e.Rarity,
		Color:       e.Color,
		Type:        e.Type,
		Slug:        e.Slug,
	}
}

// Normalize converts a remote record into the attributes the bot plans with.
// Energies is the cost of the cheapest attack.
func Normalize(record Record) engine.CardAttrs {
	stage := stringField(record, "stage")
	cardType := stringField(record, "type")

	attrs := engine.CardAttrs{
		ID:          stringField(record, "id"),
		Name:        stringField(record, "name"),
		Stage:       stageLevels[stage],
		EvolvesFrom: stringField(record, "prew_stage_name"),
		IsItemCard:  isTrainer(cardType) || isTrainer(stage),
		Energies:    cheapestAttack(record["attack"]),
		SetCode:     stringField(record, "set_code"),
		SetName:     stringField(record, "set_name"),
		Rarity:      stringField(record, "rarity"),
		Color:       stringField(record, "color"),
		Type:        cardType,
		Slug:        stringField(record, "slug"),
	}

	// trainers never evolve, whatever the record says
	if attrs.IsItemCard {
		attrs.EvolvesFrom = ""
		attrs.Stage = engine.STAGE_BASIC
	}

	return attrs
}

func isTrainer(s string) bool {
	s = strings.ToLower(s)
	return s == "item" || s == "supporter"
}

func cheapestAttack(value any) int {
	attacks, ok := value.([]any)
	if !ok || len(attacks) == 0 {
		return 0
	}

	return lo.Min(lo.Map(attacks, func(attack any, _ int) int {
		fields, ok := attack.(map[string]any)
		if !ok {
			return 0
		}
		cost, _ := fields["cost"].([]any)
		return len(cost)
	}))
}

func stringField(record Record, key string) string {
	switch v := record[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (c *Catalog) loadDeck() error {
	if c.opts.DeckPath == "" {
		return nil
	}

	contents, err := os.ReadFile(c.opts.DeckPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading deck: %w", err)
	}

	var entries []deckEntry
	if err := json.Unmarshal(contents, &entries); err != nil {
		return fmt.Errorf("parsing deck %s: %w", c.opts.DeckPath, err)
	}

	deck := map[string]engine.CardAttrs{}
	for _, entry := range entries {
		attrs := entry.attrs()
		if err := attrs.Validate(); err != nil {
			log.Warn().Err(err).Msg("skipping deck entry")
			continue
		}
		deck[attrs.ID] = attrs
	}

	c.mu.Lock()
	c.deck = deck
	c.mu.Unlock()

	log.Info().Int("cards", len(deck)).Msg("deck loaded")
	return nil
}

// saveDeck must be called with mu held
func (c *Catalog) saveDeck() error {
	if c.opts.DeckPath == "" {
		return nil
	}

	entries := lo.Map(slices.Sorted(maps.Keys(c.deck)), func(id string, _ int) deckEntry {
		return entryFromAttrs(c.deck[id])
	})

	contents, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return err
	}
	if err := writeFile(c.opts.DeckPath, contents); err != nil {
		return fmt.Errorf("writing deck: %w", err)
	}

	return nil
}
