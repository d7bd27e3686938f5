package engine

import (
	"context"
	"errors"
	"image"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// fakeFrame is a screenshot or template whose content is described by tags
// instead of pixels. Cropping keeps the tags.
type fakeFrame struct {
	image.Image

	// cues visible on a screenshot
	cues map[Cue]bool
	// card shown in the zoom area
	card string
	// latest battle log phrase
	logLine Cue

	// set on cue templates
	cue Cue
	// set on catalog art
	art string
}

func newFrame() *fakeFrame {
	return &fakeFrame{Image: image.NewRGBA(image.Rect(0, 0, 1, 1)), cues: map[Cue]bool{}}
}

func screenWith(cues ...Cue) *fakeFrame {
	f := newFrame()
	for _, cue := range cues {
		f.cues[cue] = true
	}
	return f
}

func cardFrame(id string) *fakeFrame {
	f := newFrame()
	f.card = id
	return f
}

func (f *fakeFrame) SubImage(r image.Rectangle) image.Image {
	c := *f
	c.Image = f.Image.(*image.RGBA).SubImage(r)
	return &c
}

func testCues() Cues {
	cues := Cues{}
	for _, cue := range AllCues {
		f := &fakeFrame{Image: image.NewRGBA(image.Rect(0, 0, 1, 1)), cue: cue}
		cues[cue] = f
	}
	return cues
}

type fakeDevice struct {
	mu sync.Mutex

	serial string
	// screenshots are served in order, the last one repeats
	screens []*fakeFrame
	// frame returned by a long press at a point, defaults to the current screen
	pressed func(p Point) *fakeFrame
	onDrag  func(from, to Point)
	shotErr error

	devices      []DeviceInfo
	connect      []bool
	connectCalls int
	listCalls    int

	taps    []Point
	drags   [][2]Point
	presses []Point
}

func (d *fakeDevice) current() *fakeFrame {
	if len(d.screens) == 0 {
		return newFrame()
	}
	screen := d.screens[0]
	if len(d.screens) > 1 {
		d.screens = d.screens[1:]
	}
	return screen
}

func (d *fakeDevice) Screenshot(ctx context.Context) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shotErr != nil {
		return nil, d.shotErr
	}
	return d.current(), nil
}

func (d *fakeDevice) Tap(ctx context.Context, p Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.taps = append(d.taps, p)
	return ctx.Err()
}

func (d *fakeDevice) Drag(ctx context.Context, from, to Point, duration time.Duration) error {
	d.mu.Lock()
	d.drags = append(d.drags, [2]Point{from, to})
	onDrag := d.onDrag
	d.mu.Unlock()

	if onDrag != nil {
		onDrag(from, to)
	}
	return ctx.Err()
}

func (d *fakeDevice) LongPress(ctx context.Context, p Point, duration time.Duration) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.presses = append(d.presses, p)
	if d.pressed != nil {
		if frame := d.pressed(p); frame != nil {
			return frame, nil
		}
	}
	return d.current(), nil
}

func (d *fakeDevice) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.listCalls++
	return d.devices, nil
}

func (d *fakeDevice) ConnectAndEnsureReady(ctx context.Context) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.connectCalls++
	if len(d.connect) == 0 {
		return true
	}
	ok := d.connect[0]
	if len(d.connect) > 1 {
		d.connect = d.connect[1:]
	}
	return ok
}

func (d *fakeDevice) Serial() string {
	return d.serial
}

func (d *fakeDevice) dragCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.drags)
}

type fakeVision struct {
	// consecutive turn region similarities, 1.0 once exhausted
	turnSims []float64
	// card template scores, capture card -> template card
	cardScores map[string]map[string]float64
	artScores  map[string]float64
	// cue scores override the default 0.9 / 0.1
	cueScores map[Cue]float64

	digits   string
	digitsOK bool
}

func (v *fakeVision) MatchTemplate(screenshot, template image.Image) (Point, float64, error) {
	s, ok1 := screenshot.(*fakeFrame)
	t, ok2 := template.(*fakeFrame)
	if !ok1 || !ok2 {
		return Point{}, 0, errors.New("not a fake frame")
	}

	if t.cue != "" {
		if !s.cues[t.cue] {
			return Point{}, 0.1, nil
		}
		if score, ok := v.cueScores[t.cue]; ok {
			return Point{X: 10, Y: 20}, score, nil
		}
		return Point{X: 10, Y: 20}, 0.9, nil
	}

	if scores, ok := v.cardScores[s.card]; ok {
		if score, ok := scores[t.card]; ok {
			return Point{}, score, nil
		}
	}
	if s.card != "" && s.card == t.card {
		return Point{}, 0.95, nil
	}
	return Point{}, 0.1, nil
}

func (v *fakeVision) Similarity(a, b image.Image) float64 {
	fa, _ := a.(*fakeFrame)
	fb, _ := b.(*fakeFrame)

	if fb != nil && fb.cue != "" {
		if fa != nil && fa.logLine == fb.cue {
			return 0.9
		}
		return 0.2
	}
	if fa != nil && fa.art != "" {
		return v.artScores[fa.art]
	}

	if len(v.turnSims) == 0 {
		return 1
	}
	sim := v.turnSims[0]
	v.turnSims = v.turnSims[1:]
	return sim
}

func (v *fakeVision) ExtractDigits(img image.Image) (string, bool) {
	return v.digits, v.digitsOK
}

func (v *fakeVision) Resize(img image.Image, size image.Point) image.Image {
	return img
}

type fakeCatalog struct {
	cards      map[string]CardAttrs
	remembered []CardAttrs
	artErr     map[string]bool
}

func newCatalog(cards ...CardAttrs) *fakeCatalog {
	c := &fakeCatalog{cards: map[string]CardAttrs{}, artErr: map[string]bool{}}
	for _, card := range cards {
		c.cards[card.ID] = card
	}
	return c
}

func (c *fakeCatalog) ByID(id string) (CardAttrs, bool) {
	attrs, ok := c.cards[id]
	return attrs, ok
}

func (c *fakeCatalog) ByNameSubstring(text string) []CardAttrs {
	matches := []CardAttrs{}
	for _, id := range slices.Sorted(maps.Keys(c.cards)) {
		if strings.Contains(strings.ToLower(c.cards[id].Name), strings.ToLower(text)) {
			matches = append(matches, c.cards[id])
		}
	}
	return matches
}

func (c *fakeCatalog) Remember(attrs CardAttrs) error {
	c.remembered = append(c.remembered, attrs)
	return nil
}

func (c *fakeCatalog) CardArt(ctx context.Context, id string) (image.Image, error) {
	if c.artErr[id] {
		return nil, errors.New("no art")
	}
	f := newFrame()
	f.art = id
	return f, nil
}

type fakeTemplates struct {
	list []CardTemplate
}

func templatesFor(ids ...string) *fakeTemplates {
	t := &fakeTemplates{}
	for _, id := range ids {
		t.list = append(t.list, CardTemplate{ID: id, Image: cardFrame(id)})
	}
	return t
}

func (t *fakeTemplates) Templates() []CardTemplate {
	return t.list
}

func (t *fakeTemplates) Add(id string, img image.Image) error {
	t.list = append(t.list, CardTemplate{ID: id, Image: img})
	return nil
}

type fakeOperator struct {
	name    string
	nameErr error
	// blocks until the prompt ctx is done when set
	hang bool

	choose    func(options []CardOption) (CardOption, error)
	presented []CardOption
	asked     int
}

func (o *fakeOperator) RequestCardName(ctx context.Context, img image.Image) (string, error) {
	o.asked++
	if o.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return o.name, o.nameErr
}

func (o *fakeOperator) PresentCardOptions(ctx context.Context, options []CardOption, img image.Image) (CardOption, error) {
	o.presented = options
	if o.choose == nil {
		return CardOption{}, ErrOperatorCancelled
	}
	return o.choose(options)
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func basic(id, name string) CardAttrs {
	return CardAttrs{ID: id, Name: name, Stage: STAGE_BASIC}
}

func evolution(id, name, from string, stage int) CardAttrs {
	return CardAttrs{ID: id, Name: name, Stage: stage, EvolvesFrom: from}
}

func trainer(id, name string) CardAttrs {
	return CardAttrs{ID: id, Name: name, IsItemCard: true, Type: "Item"}
}

func testPerception(device *fakeDevice, vision *fakeVision) *Perception {
	return &Perception{
		Device: device,
		Vision: vision,
		Cues:   testCues(),
		Layout: DefaultLayout(),
		Sleep:  noSleep,
	}
}
