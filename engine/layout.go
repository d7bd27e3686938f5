package engine

import (
	"errors"
	"fmt"
	"image"
	"maps"
	"slices"
	"time"
)

type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

type Region struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

func (r Region) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

type Thresholds struct {
	// Default score a cue has to beat to count as found
	Cue float64 `yaml:"cue"`
	// Going first / going second banners
	FirstTurnCue float64 `yaml:"first_turn_cue"`
	// START_BATTLE poll at the end of the first turn
	StartBattle float64 `yaml:"start_battle"`
	// Best card template must score strictly above this
	CardMatch float64 `yaml:"card_match"`
	// Two turn-region captures below this similarity mean the banner stopped animating
	TurnChange float64 `yaml:"turn_change"`
	BattleLog  float64 `yaml:"battle_log"`
}

type Polling struct {
	Attempts           int           `yaml:"attempts"`
	IndefiniteAttempts int           `yaml:"indefinite_attempts"`
	Interval           time.Duration `yaml:"interval"`
	DismissAttempts    int           `yaml:"dismiss_attempts"`
	MaxCardsPerTurn    int           `yaml:"max_cards_per_turn"`
}

// Timings are the fixed animation settle delays
type Timings struct {
	TurnCheckGap   time.Duration `yaml:"turn_check_gap"`
	NavigateSettle time.Duration `yaml:"navigate_settle"`
	BattleStart    time.Duration `yaml:"battle_start"`
	DrawSettle     time.Duration `yaml:"draw_settle"`
	PlaySettle     time.Duration `yaml:"play_settle"`
	LogSettle      time.Duration `yaml:"log_settle"`
	AfterPlay      time.Duration `yaml:"after_play"`
	BoardZoomPress time.Duration `yaml:"board_zoom_press"`
	HandZoomPress  time.Duration `yaml:"hand_zoom_press"`
	CountPress     time.Duration `yaml:"count_press"`
	DragDuration   time.Duration `yaml:"drag_duration"`
	EnergyDrag     time.Duration `yaml:"energy_drag"`
	ErrorCooldown  time.Duration `yaml:"error_cooldown"`
	PromptTimeout  time.Duration `yaml:"prompt_timeout"`
	OptionsTimeout time.Duration `yaml:"options_timeout"`
}

type BattleLogLayout struct {
	Button     Point  `yaml:"button"`
	Close      Point  `yaml:"close"`
	Card       Point  `yaml:"card"`
	TextRegion Region `yaml:"text_region"`
}

type AttackLayout struct {
	Reveal Point `yaml:"reveal"`
	// Attack menu rows tapped top to bottom, whichever exists is used
	Rows    []Point `yaml:"rows"`
	Confirm Point   `yaml:"confirm"`
}

// Layout holds every screen coordinate, threshold and delay the engine uses.
// The defaults match a 900x1600 portrait screen.
type Layout struct {
	Center       Point       `yaml:"center"`
	ActiveDrop   Point       `yaml:"active_drop"`
	ActiveReveal Point       `yaml:"active_reveal"`
	BenchSlots   []Point     `yaml:"bench_slots"`
	EnergyZone   Point       `yaml:"energy_zone"`
	ResetTap     Point       `yaml:"reset_tap"`
	CountProbe   Point       `yaml:"count_probe"`
	HandY        int         `yaml:"hand_y"`
	HandStartX   int         `yaml:"hand_start_x"`
	HandOffsets  map[int]int `yaml:"hand_offsets"`
	HandOffset   int         `yaml:"hand_offset"`

	TurnRegion  Region `yaml:"turn_region"`
	ZoomRegion  Region `yaml:"zoom_region"`
	CountRegion Region `yaml:"count_region"`

	BattleLog BattleLogLayout `yaml:"battle_log"`
	Attack    AttackLayout    `yaml:"attack"`

	ArtW int `yaml:"art_width"`
	ArtH int `yaml:"art_height"`

	Thresholds Thresholds `yaml:"thresholds"`
	Polling    Polling    `yaml:"polling"`
	Timings    Timings    `yaml:"timings"`
}

func DefaultLayout() *Layout {
	return &Layout{
		Center:       Point{400, 900},
		ActiveDrop:   Point{400, 850},
		ActiveReveal: Point{500, 1100},
		BenchSlots:   []Point{{200, 1250}, {500, 1250}, {700, 1250}},
		EnergyZone:   Point{750, 1450},
		ResetTap:     Point{0, 1350},
		CountProbe:   Point{500, 1500},
		HandY:        1470,
		HandStartX:   525,
		HandOffsets: map[int]int{
			2: 90,
			3: 80,
			4: 70,
			5: 65,
			6: 50,
			7: 45,
			8: 40,
		},
		HandOffset: 20,

		TurnRegion:  Region{50, 1560, 200, 20},
		ZoomRegion:  Region{80, 255, 740, 1020},
		CountRegion: Region{790, 1325, 60, 50},

		BattleLog: BattleLogLayout{
			Button:     Point{90, 1330},
			Close:      Point{9, 1577},
			Card:       Point{133, 1181},
			TextRegion: Region{225, 1153, 441, 58},
		},
		Attack: AttackLayout{
			Reveal:  Point{500, 1250},
			Rows:    []Point{{540, 1250}, {540, 1150}, {540, 1050}},
			Confirm: Point{570, 1070},
		},

		ArtW: 200,
		ArtH: 300,

		Thresholds: Thresholds{
			Cue:          0.8,
			FirstTurnCue: 0.7,
			StartBattle:  0.5,
			CardMatch:    0.7,
			TurnChange:   0.95,
			BattleLog:    0.8,
		},
		Polling: Polling{
			Attempts:           10,
			IndefiniteAttempts: 50,
			Interval:           500 * time.Millisecond,
			DismissAttempts:    5,
			MaxCardsPerTurn:    5,
		},
		Timings: Timings{
			TurnCheckGap:   1100 * time.Millisecond,
			NavigateSettle: 4 * time.Second,
			BattleStart:    3 * time.Second,
			DrawSettle:     3 * time.Second,
			PlaySettle:     2 * time.Second,
			LogSettle:      2 * time.Second,
			AfterPlay:      1 * time.Second,
			BoardZoomPress: 700 * time.Millisecond,
			HandZoomPress:  1500 * time.Millisecond,
			CountPress:     1500 * time.Millisecond,
			DragDuration:   500 * time.Millisecond,
			EnergyDrag:     300 * time.Millisecond,
			ErrorCooldown:  5 * time.Second,
			PromptTimeout:  12 * time.Second,
			OptionsTimeout: 30 * time.Second,
		},
	}
}

// HandCardPoint is where the card at position sits when handSize cards are held
func (l *Layout) HandCardPoint(position int, handSize int) Point {
	offset, ok := l.HandOffsets[handSize]
	if !ok {
		offset = l.HandOffset
	}

	return Point{X: l.HandStartX - position*offset, Y: l.HandY}
}

func (l *Layout) ArtDimensions() image.Point {
	return image.Pt(l.ArtW, l.ArtH)
}

func (l *Layout) Validate() error {
	var errs []error

	if len(l.BenchSlots) != BenchSize {
		errs = append(errs, fmt.Errorf("bench_slots: need %d points, got %d", BenchSize, len(l.BenchSlots)))
	}

	for name, r := range map[string]Region{
		"turn_region":            l.TurnRegion,
		"zoom_region":            l.ZoomRegion,
		"count_region":           l.CountRegion,
		"battle_log.text_region": l.BattleLog.TextRegion,
	} {
		if r.W <= 0 || r.H <= 0 {
			errs = append(errs, fmt.Errorf("%s: empty region", name))
		}
	}

	for name, t := range map[string]float64{
		"cue":            l.Thresholds.Cue,
		"first_turn_cue": l.Thresholds.FirstTurnCue,
		"start_battle":   l.Thresholds.StartBattle,
		"card_match":     l.Thresholds.CardMatch,
		"turn_change":    l.Thresholds.TurnChange,
		"battle_log":     l.Thresholds.BattleLog,
	} {
		if t <= 0 || t > 1 {
			errs = append(errs, fmt.Errorf("thresholds.%s: %v not in (0,1]", name, t))
		}
	}

	if l.Polling.Attempts <= 0 || l.Polling.IndefiniteAttempts <= 0 || l.Polling.DismissAttempts <= 0 {
		errs = append(errs, errors.New("polling: attempt budgets must be positive"))
	}
	if l.Polling.MaxCardsPerTurn <= 0 {
		errs = append(errs, errors.New("polling.max_cards_per_turn must be positive"))
	}
	if l.Polling.Interval < 0 {
		errs = append(errs, errors.New("polling.interval is negative"))
	}
	if l.ArtW <= 0 || l.ArtH <= 0 {
		errs = append(errs, errors.New("art size must be positive"))
	}
	if l.Timings.PromptTimeout <= 0 || l.Timings.OptionsTimeout <= 0 {
		errs = append(errs, errors.New("prompt timeouts must be positive"))
	}

	return errors.Join(errs...)
}

// Clone copies the layout so a battle keeps its snapshot while the file is reloaded
func (l *Layout) Clone() *Layout {
	c := *l
	c.BenchSlots = slices.Clone(l.BenchSlots)
	c.Attack.Rows = slices.Clone(l.Attack.Rows)
	c.HandOffsets = maps.Clone(l.HandOffsets)

	return &c
}
