package global

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const layoutDebounce = 300 * time.Millisecond

// LoadLayout overlays the YAML profile at path onto the default layout. Any
// field the profile leaves out keeps its default. An empty path gives the
// defaults.
func LoadLayout(path string) (*engine.Layout, error) {
	layout := engine.DefaultLayout()
	if path == "" {
		return layout, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout %s: %w", path, err)
	}
	if err := yaml.Unmarshal(contents, layout); err != nil {
		return nil, fmt.Errorf("parsing layout %s: %w", path, err)
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layout %s: %w", path, err)
	}

	return layout, nil
}

func MarshalLayout(layout *engine.Layout) ([]byte, error) {
	return yaml.Marshal(layout)
}

// LayoutWatcher keeps the current layout profile and swaps in a new one every
// time the file changes on disk. A profile that fails to load is logged and
// the previous one stays in effect.
type LayoutWatcher struct {
	path    string
	current atomic.Pointer[engine.Layout]
	// quiet period after the last change before the file is read
	debounce time.Duration
	reloads  atomic.Int64

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewLayoutWatcher(path string) (*LayoutWatcher, error) {
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		path = abs
	}

	layout, err := LoadLayout(path)
	if err != nil {
		return nil, err
	}

	w := &LayoutWatcher{path: path, debounce: layoutDebounce}
	w.current.Store(layout)

	return w, nil
}

// Current returns the layout in effect. Callers must not modify it.
func (w *LayoutWatcher) Current() *engine.Layout {
	return w.current.Load()
}

// Start watches the profile's directory so editors that replace the file on
// save are picked up too. Without a profile it does nothing.
func (w *LayoutWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running || w.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", w.path, err)
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.run(ctx, watcher, w.stopCh, w.doneCh)

	log.Info().Str("path", w.path).Msg("watching layout profile")
	return nil
}

func (w *LayoutWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh, doneCh, watcher := w.stopCh, w.doneCh, w.watcher
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	if err := watcher.Close(); err != nil {
		log.Err(err).Msg("error closing layout watcher")
	}
}

// run reloads the profile once the file has been quiet for w.debounce, so a
// save that produces several events reloads once.
func (w *LayoutWatcher) run(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Err(err).Msg("layout watcher error")
		}
	}
}

func (w *LayoutWatcher) reload() {
	w.reloads.Add(1)

	layout, err := LoadLayout(w.path)
	if err != nil {
		log.Warn().Err(err).Msg("layout profile not reloaded, keeping the previous one")
		return
	}

	w.current.Store(layout)
	log.Info().Str("path", w.path).Msg("layout profile reloaded")
}
