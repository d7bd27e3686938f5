package main

import (
	"context"
	"fmt"

	"github.com/nathanieltooley/pocketbot/adb"
	"github.com/nathanieltooley/pocketbot/assets"
	"github.com/nathanieltooley/pocketbot/catalog"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/nathanieltooley/pocketbot/global"
	"github.com/nathanieltooley/pocketbot/vision"
	"github.com/rs/zerolog/log"
)

// bot holds everything the orchestrator needs, built from global.Opt
type bot struct {
	session *adb.Session
	vision  *vision.Vision
	catalog *catalog.Catalog
	assets  *assets.Assets
	layout  *global.LayoutWatcher
}

func newSession() *adb.Session {
	return adb.NewSession(global.Opt.AdbPath, global.Opt.DeviceSerial, nil)
}

func newCatalog() *catalog.Catalog {
	return catalog.New(catalog.Options{
		CachePath: global.Opt.CatalogCachePath,
		DeckPath:  global.Opt.DeckCachePath,
		ArtDir:    global.Opt.ArtCacheDir,
		Decode:    vision.Decode,
	})
}

func newBot(ctx context.Context) (*bot, error) {
	loaded, err := assets.Load(ctx, global.Opt.AssetsDir)
	if err != nil {
		return nil, fmt.Errorf("loading assets from %s: %w", global.Opt.AssetsDir, err)
	}

	v, err := vision.New(loaded.Digits)
	if err != nil {
		return nil, err
	}

	cards := newCatalog()
	// the deck alone is enough to play known cards
	if err := cards.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("card catalog unavailable, unknown cards cannot be resolved")
	}

	layout, err := global.NewLayoutWatcher(global.Opt.LayoutPath)
	if err != nil {
		v.Close()
		return nil, err
	}
	if err := layout.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("layout profile will not be reloaded on change")
	}

	return &bot{
		session: newSession(),
		vision:  v,
		catalog: cards,
		assets:  loaded,
		layout:  layout,
	}, nil
}

// currentLayout applies the configured prompt timeout over the layout profile
func (b *bot) currentLayout() *engine.Layout {
	layout := b.layout.Current().Clone()
	layout.Timings.PromptTimeout = global.Opt.PromptTimeout()
	return layout
}

func (b *bot) orchestrator(operator engine.Operator, observer engine.Observer) *engine.BattleOrchestrator {
	return engine.NewBattleOrchestrator(engine.OrchestratorConfig{
		Device:    b.session,
		Vision:    b.vision,
		Cues:      b.assets.Cues,
		Templates: b.assets.Templates,
		Catalog:   b.catalog,
		Operator:  operator,
		Layout:    b.currentLayout,
		Observer:  observer,
		RunEvent:  global.Opt.RunEvent,
	})
}

func (b *bot) Close() {
	b.layout.Stop()
	b.vision.Close()
}
