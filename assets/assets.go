package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	CardsDir  = "cards"
	DigitsDir = "digits"

	decodeWorkers = 8
)

// Assets is everything the bot reads from the assets directory
type Assets struct {
	Cues      engine.Cues
	Digits    map[string]image.Image
	Templates *CardTemplates
}

// Load reads cue templates from dir, card templates from dir/cards and digit
// glyphs from dir/digits
func Load(ctx context.Context, dir string) (*Assets, error) {
	assets := &Assets{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cues, err := LoadCues(dir)
		assets.Cues = cues
		return err
	})
	g.Go(func() error {
		digits, err := LoadDigits(filepath.Join(dir, DigitsDir))
		assets.Digits = digits
		return err
	})
	g.Go(func() error {
		templates, err := LoadCardTemplates(gctx, filepath.Join(dir, CardsDir))
		assets.Templates = templates
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info().
		Int("cues", len(assets.Cues)).
		Int("digits", len(assets.Digits)).
		Int("cards", len(assets.Templates.Templates())).
		Msg("assets loaded")
	return assets, nil
}

// pngFiles maps the stem of every png in dir to its path. Extensions are
// matched without regard to case.
func pngFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	return lo.SliceToMap(
		lo.Filter(entries, func(entry fs.DirEntry, _ int) bool {
			return !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".png")
		}),
		func(entry fs.DirEntry) (string, string) {
			name := entry.Name()
			return strings.TrimSuffix(name, filepath.Ext(name)), filepath.Join(dir, name)
		},
	), nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// LoadCues requires a template for every cue the engine knows
func LoadCues(dir string) (engine.Cues, error) {
	files, err := pngFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("reading cue templates: %w", err)
	}

	cues := engine.Cues{}
	errs := []error{}
	for _, cue := range engine.AllCues {
		path, ok := files[string(cue)]
		if !ok {
			errs = append(errs, fmt.Errorf("missing cue template %s", cue))
			continue
		}

		img, err := decodeFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cues[cue] = img
	}

	return cues, errors.Join(errs...)
}

// LoadDigits reads the glyphs 0-9. Without a digits directory the bot cannot
// read the hand size and relies on counting instead.
func LoadDigits(dir string) (map[string]image.Image, error) {
	files, err := pngFiles(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("dir", dir).Msg("no digit glyphs, hand size will not be read from screen")
		return map[string]image.Image{}, nil
	}
	if err != nil {
		return nil, err
	}

	digits := map[string]image.Image{}
	for digit := range 10 {
		name := fmt.Sprint(digit)
		path, ok := files[name]
		if !ok {
			log.Warn().Str("digit", name).Msg("missing digit glyph")
			continue
		}

		img, err := decodeFile(path)
		if err != nil {
			return nil, err
		}
		digits[name] = img
	}

	return digits, nil
}

// CardTemplates is the on-disk set of known card images, one PNG per card id
type CardTemplates struct {
	dir string

	mu   sync.RWMutex
	list []engine.CardTemplate
}

// LoadCardTemplates reads every card template in dir ordered by id. A missing
// directory is created.
func LoadCardTemplates(ctx context.Context, dir string) (*CardTemplates, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, err
	}

	files, err := pngFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("reading card templates: %w", err)
	}
	ids := slices.Sorted(maps.Keys(files))

	list := make([]engine.CardTemplate, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(decodeWorkers)
	for i, id := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := decodeFile(files[id])
			if err != nil {
				return err
			}
			list[i] = engine.CardTemplate{ID: id, Image: img}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &CardTemplates{dir: dir, list: list}, nil
}

func (t *CardTemplates) Templates() []engine.CardTemplate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return slices.Clone(t.list)
}

// Add saves img as the template for id, replacing any earlier one in place
func (t *CardTemplates) Add(id string, img image.Image) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid card id %q", id)
	}

	f, err := os.Create(filepath.Join(t.dir, id+".png"))
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding template %s: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	template := engine.CardTemplate{ID: id, Image: img}
	if i := slices.IndexFunc(t.list, func(c engine.CardTemplate) bool { return c.ID == id }); i >= 0 {
		t.list[i] = template
	} else {
		t.list = append(t.list, template)
	}

	log.Info().Str("id", id).Msg("card template saved")
	return nil
}
