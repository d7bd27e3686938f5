package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultAPIURL   = "https://api.dotgg.gg/cgfw/getcards?game=pokepocket&mode=indexed"
	DefaultImageURL = "https://static.dotgg.gg/pokepocket/card/%s.webp"

	maxResponseSize = 64 << 20
)

// Record is one card as the remote catalog describes it
type Record map[string]any

// indexed is the wire format of the catalog: column names once, then rows
type indexed struct {
	Names []string `json:"names"`
	Data  [][]any  `json:"data"`
}

type Options struct {
	APIURL string
	// ImageURL is a format string taking the card id
	ImageURL string

	CachePath string
	DeckPath  string
	ArtDir    string

	Client *http.Client
	// Decode turns downloaded art into an image. Defaults to image.Decode.
	Decode Decoder
}

// Catalog serves card attributes from the deck file first and the cached
// remote catalog second, and keeps a disk cache of card art.
type Catalog struct {
	opts Options

	mu    sync.RWMutex
	cards map[string]Record
	deck  map[string]engine.CardAttrs

	art singleflight.Group
}

func New(opts Options) *Catalog {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.ImageURL == "" {
		opts.ImageURL = DefaultImageURL
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Decode == nil {
		opts.Decode = decodeStd
	}

	return &Catalog{
		opts:  opts,
		cards: map[string]Record{},
		deck:  map[string]engine.CardAttrs{},
	}
}

// Load reads the deck file and the catalog cache, fetching the catalog when
// there is no cache yet. Either source may be missing.
func (c *Catalog) Load(ctx context.Context) error {
	if err := c.loadDeck(); err != nil {
		return err
	}

	contents, err := os.ReadFile(c.opts.CachePath)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", c.opts.CachePath).Msg("no catalog cache, fetching")
		return c.Refresh(ctx)
	}
	if err != nil {
		return fmt.Errorf("reading catalog cache: %w", err)
	}

	cards := map[string]Record{}
	if err := json.Unmarshal(contents, &cards); err != nil {
		return fmt.Errorf("parsing catalog cache %s: %w", c.opts.CachePath, err)
	}

	c.mu.Lock()
	c.cards = cards
	c.mu.Unlock()

	log.Info().Int("cards", len(cards)).Msg("catalog loaded from cache")
	return nil
}

// Refresh downloads the whole catalog and rewrites the cache
func (c *Catalog) Refresh(ctx context.Context) error {
	body, err := c.get(ctx, c.opts.APIURL, "application/json")
	if err != nil {
		return fmt.Errorf("fetching catalog: %w", err)
	}

	var response indexed
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("parsing catalog: %w", err)
	}

	cards := zipRecords(response)
	log.Info().Int("received", len(response.Data)).Int("cards", len(cards)).Msg("catalog fetched")

	if c.opts.CachePath != "" {
		contents, err := json.Marshal(cards)
		if err != nil {
			return err
		}
		if err := writeFile(c.opts.CachePath, contents); err != nil {
			return fmt.Errorf("writing catalog cache: %w", err)
		}
	}

	c.mu.Lock()
	c.cards = cards
	c.mu.Unlock()

	return nil
}

func zipRecords(response indexed) map[string]Record {
	cards := map[string]Record{}

	for _, row := range response.Data {
		record := Record{}
		for i, name := range response.Names {
			if i < len(row) {
				record[name] = row[i]
			}
		}

		id := stringField(record, "id")
		if id == "" {
			continue
		}
		cards[id] = record
	}

	return cards
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.cards)
}

// ByID looks in the deck first, then the remote catalog
func (c *Catalog) ByID(id string) (engine.CardAttrs, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if attrs, ok := c.deck[id]; ok {
		return attrs, true
	}

	record, ok := c.cards[id]
	if !ok {
		return engine.CardAttrs{}, false
	}

	attrs := Normalize(record)
	if err := attrs.Validate(); err != nil {
		log.Debug().Err(err).Msg("catalog record rejected")
		return engine.CardAttrs{}, false
	}
	return attrs, true
}

// ByNameSubstring returns every valid card whose name contains text, ignoring
// case, ordered by id
func (c *Catalog) ByNameSubstring(text string) []engine.CardAttrs {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := slices.Sorted(maps.Keys(c.cards))
	return lo.FilterMap(ids, func(id string, _ int) (engine.CardAttrs, bool) {
		record := c.cards[id]
		if !strings.Contains(strings.ToLower(stringField(record, "name")), needle) {
			return engine.CardAttrs{}, false
		}

		attrs := Normalize(record)
		return attrs, attrs.Validate() == nil
	})
}

// Remember adds attrs to the deck and rewrites the deck file
func (c *Catalog) Remember(attrs engine.CardAttrs) error {
	if err := attrs.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.deck[attrs.ID] = attrs
	return c.saveDeck()
}

// Deck returns the remembered cards ordered by id
func (c *Catalog) Deck() []engine.CardAttrs {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return lo.Map(slices.Sorted(maps.Keys(c.deck)), func(id string, _ int) engine.CardAttrs {
		return c.deck[id]
	})
}

func (c *Catalog) get(ctx context.Context, url string, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

func writeFile(path string, contents []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}

	return os.WriteFile(path, contents, 0644)
}
