package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"time"
)

type Phase int

const (
	PHASE_IDLE Phase = iota
	PHASE_CONNECTING
	PHASE_NAVIGATING
	PHASE_AWAITING_BATTLE_START
	PHASE_IN_TURN_LOOP
	PHASE_BATTLE_ENDING
)

func (p Phase) String() string {
	switch p {
	case PHASE_IDLE:
		return "Idle"
	case PHASE_CONNECTING:
		return "Connecting"
	case PHASE_NAVIGATING:
		return "Navigating"
	case PHASE_AWAITING_BATTLE_START:
		return "Awaiting battle start"
	case PHASE_IN_TURN_LOOP:
		return "In turn loop"
	case PHASE_BATTLE_ENDING:
		return "Battle ending"
	}

	return fmt.Sprintf("Phase(%d)", int(p))
}

// Observer receives status updates from the orchestrator goroutine. States are
// clones and may be kept.
type Observer interface {
	PhaseChanged(phase Phase)
	StateChanged(state GameState)
}

type OrchestratorConfig struct {
	Device    Device
	Vision    Vision
	Cues      Cues
	Templates CardTemplates
	Catalog   Catalog
	Operator  Operator
	// Layout returns the layout currently in effect. Each battle takes a snapshot.
	Layout func() *Layout
	// Defaults to Sleep
	Sleep    Sleeper
	Observer Observer
	// Prefer the event match over a random match while navigating
	RunEvent bool
}

// BattleOrchestrator drives battles one after another. It is the only writer
// of its GameState; the components it calls return values that it applies.
type BattleOrchestrator struct {
	cfg OrchestratorConfig

	state   GameState
	phase   Phase
	newTurn bool

	p           *Perception
	controller  *BattleController
	recognition *CardRecognitionService
	executor    *ActionExecutor
}

func NewBattleOrchestrator(cfg OrchestratorConfig) *BattleOrchestrator {
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Layout == nil {
		defaults := DefaultLayout()
		cfg.Layout = func() *Layout { return defaults }
	}

	o := &BattleOrchestrator{
		cfg:   cfg,
		state: NewGameState(),
	}
	o.prepare(cfg.Layout().Clone())

	return o
}

// prepare wires the per-battle components against one layout snapshot
func (o *BattleOrchestrator) prepare(layout *Layout) {
	o.p = &Perception{
		Device: o.cfg.Device,
		Vision: o.cfg.Vision,
		Cues:   o.cfg.Cues,
		Layout: layout,
		Sleep:  o.cfg.Sleep,
	}
	o.controller = NewBattleController(o.p)
	o.recognition = NewCardRecognitionService(o.p, o.cfg.Templates, o.cfg.Catalog, o.cfg.Operator)
	o.executor = NewActionExecutor(o.p, o.recognition, NewBattleLogVerifier(o.p, o.recognition), o.controller)
}

func (o *BattleOrchestrator) State() GameState {
	return o.state.Clone()
}

func (o *BattleOrchestrator) Phase() Phase {
	return o.phase
}

func (o *BattleOrchestrator) setPhase(phase Phase) {
	if o.phase == phase {
		return
	}

	internalLogger.Info("phase changed", "from", o.phase.String(), "to", phase.String())
	o.phase = phase
	if o.cfg.Observer != nil {
		o.cfg.Observer.PhaseChanged(phase)
	}
}

func (o *BattleOrchestrator) publish() {
	if o.cfg.Observer != nil {
		o.cfg.Observer.StateChanged(o.state.Clone())
	}
}

// Run plays battles until ctx is cancelled or the device is lost. A cancelled
// run returns nil; a lost device returns ErrDeviceUnavailable. Any other
// failure only ends the current battle.
func (o *BattleOrchestrator) Run(ctx context.Context) error {
	defer o.setPhase(PHASE_IDLE)

	o.setPhase(PHASE_CONNECTING)
	if !o.cfg.Device.ConnectAndEnsureReady(ctx) {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("connecting to %q: %w", o.cfg.Device.Serial(), ErrDeviceUnavailable)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := o.checkConnection(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			internalLogger.Error(err, "device lost, stopping")
			return err
		}

		err := o.runBattleSafely(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrDeviceUnavailable) {
			internalLogger.Error(err, "device lost, stopping")
			return err
		}
		if err != nil {
			internalLogger.Error(err, "battle failed, retrying after cooldown", "cooldown", o.p.Layout.Timings.ErrorCooldown.String())
			if err := o.cfg.Sleep(ctx, o.p.Layout.Timings.ErrorCooldown); err != nil {
				return nil
			}
		}
	}
}

// checkConnection makes sure the device is still listed as online before a
// battle starts, reconnecting through the session if it is not.
func (o *BattleOrchestrator) checkConnection(ctx context.Context) error {
	devices, err := o.cfg.Device.ListDevices(ctx)
	if err != nil {
		internalLogger.Info("listing devices failed", "err", err.Error())
	}

	serial := o.cfg.Device.Serial()
	for _, device := range devices {
		if device.State == DEVICE_STATE_ONLINE && (serial == "" || device.ID == serial) {
			return nil
		}
	}

	internalLogger.Info("device not connected, reconnecting", "serial", serial)
	o.setPhase(PHASE_CONNECTING)
	if !o.cfg.Device.ConnectAndEnsureReady(ctx) {
		return fmt.Errorf("reconnecting to %q: %w", serial, ErrDeviceUnavailable)
	}

	return nil
}

func (o *BattleOrchestrator) runBattleSafely(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			internalLogger.Error(fmt.Errorf("%v", r), "panic during battle", "stack", string(debug.Stack()))
			err = fmt.Errorf("battle panicked: %v", r)
		}
	}()

	return o.battle(ctx)
}

// battle runs one full battle sequence: navigate, wait for the board, play
// turns until the match ends, then dismiss the result screens.
func (o *BattleOrchestrator) battle(ctx context.Context) error {
	o.prepare(o.cfg.Layout().Clone())
	o.state.Reset()
	o.newTurn = true
	o.publish()

	o.setPhase(PHASE_NAVIGATING)
	navigated, err := o.navigate(ctx)
	if err != nil {
		return err
	}
	if !navigated {
		internalLogger.Info("could not navigate to a match, checking the board anyway")
	}

	o.setPhase(PHASE_AWAITING_BATTLE_START)
	if err := o.awaitBattleStart(ctx); err != nil {
		return err
	}

	o.setPhase(PHASE_IN_TURN_LOOP)
	if err := o.turnLoop(ctx); err != nil {
		return err
	}

	o.setPhase(PHASE_BATTLE_ENDING)
	return o.endBattle(ctx)
}

func (o *BattleOrchestrator) navigate(ctx context.Context) (bool, error) {
	layout := o.p.Layout

	screenshot, err := o.p.Screenshot(ctx)
	if err != nil {
		return false, err
	}
	tapped, err := o.p.CheckAndTap(ctx, screenshot, CUE_BATTLE_ALREADY_SCREEN, layout.Thresholds.Cue)
	if err != nil {
		return false, err
	}
	if !tapped {
		if _, err := o.p.CheckAndTap(ctx, screenshot, CUE_BATTLE_SCREEN, layout.Thresholds.Cue); err != nil {
			return false, err
		}
	}

	if err := o.p.wait(ctx, layout.Timings.NavigateSettle); err != nil {
		return false, err
	}

	steps := [][]Cue{{CUE_VERSUS_SCREEN}}
	if o.cfg.RunEvent {
		steps = append(steps, []Cue{CUE_EVENT_MATCH_SCREEN, CUE_RANDOM_MATCH_SCREEN})
	} else {
		steps = append(steps, []Cue{CUE_RANDOM_MATCH_SCREEN})
	}
	steps = append(steps, []Cue{CUE_BATTLE_BUTTON})

	for _, alternatives := range steps {
		if err := o.pollAny(ctx, alternatives); err != nil {
			if errors.Is(err, ErrCueNotFound) {
				internalLogger.Info("navigation stopped", "reason", err.Error())
				return false, nil
			}
			return false, err
		}
	}

	return true, nil
}

// pollAny polls each alternative in turn and stops at the first one found.
// ErrCueNotFound is returned when none of them shows up.
func (o *BattleOrchestrator) pollAny(ctx context.Context, cues []Cue) error {
	layout := o.p.Layout

	for _, cue := range cues {
		found, err := o.p.PollUntilFound(ctx, cue, layout.Polling.Attempts, layout.Thresholds.Cue)
		if err != nil {
			return err
		}
		if found {
			return nil
		}
	}

	return fmt.Errorf("%w: %v", ErrCueNotFound, cues)
}

func (o *BattleOrchestrator) awaitBattleStart(ctx context.Context) error {
	layout := o.p.Layout

	found, err := o.p.PollUntilFound(ctx, CUE_TIME_LIMIT_INDICATOR, layout.Polling.IndefiniteAttempts, layout.Thresholds.Cue)
	if err != nil {
		return err
	}
	if !found {
		internalLogger.Info("time limit indicator never showed up")
	}

	return o.p.wait(ctx, layout.Timings.BattleStart)
}

// battleFinished reports whether the screen shows the end of the match or any
// of the screens that follow it.
func (o *BattleOrchestrator) battleFinished(screenshot image.Image) bool {
	threshold := o.p.Layout.Thresholds.Cue

	for _, cue := range []Cue{
		CUE_TAP_TO_PROCEED_BUTTON,
		CUE_NEXT_BUTTON,
		CUE_THANKS_BUTTON,
		CUE_BATTLE_BUTTON,
		CUE_CROSS_BUTTON,
		CUE_BATTLE_ALREADY_SCREEN,
		CUE_BATTLE_SCREEN,
	} {
		if _, found := o.p.Check(screenshot, cue, threshold); found {
			internalLogger.Info("battle is over", "cue", cue)
			return true
		}
	}

	return false
}

func (o *BattleOrchestrator) turnLoop(ctx context.Context) error {
	layout := o.p.Layout

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		screenshot, err := o.p.Screenshot(ctx)
		if err != nil {
			return err
		}
		if o.battleFinished(screenshot) {
			return nil
		}

		o.controller.CheckRivalAfk(screenshot)
		conceded, err := o.controller.CheckRivalConcede(ctx, screenshot)
		if err != nil {
			return err
		}
		if conceded {
			return nil
		}

		turn, err := o.controller.CheckTurn(ctx, &o.state)
		if err != nil {
			return err
		}
		o.state.IsFirstTurn = turn.FirstTurn
		o.state.GoFirst = turn.WentFirst

		if err := o.refreshActive(ctx); err != nil {
			return err
		}
		if err := o.p.ResetView(ctx); err != nil {
			return err
		}
		if err := o.p.wait(ctx, layout.Timings.DrawSettle); err != nil {
			return err
		}

		if turn.MyTurn {
			if err := o.playTurn(ctx); err != nil {
				return err
			}
		} else {
			internalLogger.V(1).Info("waiting for opponent's turn")
			if err := o.idle(ctx); err != nil {
				return err
			}
			o.newTurn = true
			if err := o.p.wait(ctx, time.Second); err != nil {
				return err
			}
		}

		o.publish()
	}
}

func (o *BattleOrchestrator) playTurn(ctx context.Context) error {
	layout := o.p.Layout

	if o.newTurn {
		internalLogger.Info("starting turn", "first_turn", o.state.IsFirstTurn, "go_first", o.state.GoFirst)
		if err := o.refreshHand(ctx); err != nil {
			return err
		}
		o.state.BeginTurn()
		o.newTurn = false
	}

	if o.state.Active != nil {
		if err := o.refreshBench(ctx); err != nil {
			return err
		}
	}

	if err := o.playHand(ctx); err != nil {
		return err
	}

	if o.state.IsFirstTurn && !o.state.FirstTurnDone {
		found, err := o.p.PollUntilFound(ctx, CUE_START_BATTLE_BUTTON, layout.Polling.Attempts, layout.Thresholds.StartBattle)
		if err != nil {
			return err
		}
		if found {
			internalLogger.Info("first turn done")
			o.state.FirstTurnDone = true
			o.newTurn = true
		}
	}

	if o.state.Active == nil {
		return nil
	}

	return o.endTurn(ctx)
}

func (o *BattleOrchestrator) endTurn(ctx context.Context) error {
	if err := o.executor.AttachEnergy(ctx); err != nil {
		return err
	}
	if !o.state.IsFirstTurn {
		o.state.AttachEnergy()
	}

	ended, err := o.executor.EndTurn(ctx)
	if err != nil {
		return err
	}
	if !ended {
		return nil
	}

	if o.state.GoFirst {
		internalLogger.Info("played first")
	}
	o.state.IsFirstTurn = false
	o.state.GoFirst = false
	o.newTurn = true
	o.publish()

	return nil
}

// playHand plays cards until a pass produces no successful play or the per
// turn limit is reached. The plan is rebuilt after every successful play.
func (o *BattleOrchestrator) playHand(ctx context.Context) error {
	layout := o.p.Layout

	if o.state.NumberOfCards == nil || (len(o.state.Hand) == 0 && *o.state.NumberOfCards > 0) {
		if err := o.refreshHand(ctx); err != nil {
			return err
		}
		if o.state.NumberOfCards == nil {
			internalLogger.Info("could not determine number of cards in hand")
			return nil
		}
	}

	for played := 0; played < layout.Polling.MaxCardsPerTurn; {
		if err := ctx.Err(); err != nil {
			return err
		}

		if o.state.HandStale() {
			if err := o.rescanHand(ctx); err != nil {
				return err
			}
		}

		candidates := Plan(&o.state)
		if len(candidates) == 0 {
			return nil
		}

		succeeded := false
		for _, candidate := range candidates {
			// an earlier candidate for the same card may have failed this pass
			if o.state.IsFailed(candidate.Card.CardID) {
				continue
			}

			outcome, err := o.executor.Execute(ctx, &o.state, candidate)
			if err != nil {
				return err
			}

			o.state.ApplyOutcome(outcome)
			o.publish()

			if outcome.Success {
				succeeded = true
				played++
				break
			}
		}

		if !succeeded {
			return nil
		}

		if err := o.p.ResetView(ctx); err != nil {
			return err
		}
		if err := o.p.wait(ctx, layout.Timings.AfterPlay); err != nil {
			return err
		}
	}

	internalLogger.Info("card limit reached for this turn", "limit", layout.Polling.MaxCardsPerTurn)
	return nil
}

// refreshHand is the full refresh at the start of a turn: the hand size is
// read from the counter and every card is scanned again.
func (o *BattleOrchestrator) refreshHand(ctx context.Context) error {
	if err := o.p.ResetView(ctx); err != nil {
		return err
	}
	n, ok, err := o.controller.CheckNumberOfCards(ctx, o.p.Layout.CountProbe)
	if err != nil {
		return err
	}
	if err := o.p.ResetView(ctx); err != nil {
		return err
	}

	if !ok {
		o.state.ClearHand()
		o.publish()
		return nil
	}

	return o.scanHand(ctx, n)
}

// rescanHand reads the hand again mid-turn. The expected size from delta
// accounting is used when known so the counter does not need to be read.
func (o *BattleOrchestrator) rescanHand(ctx context.Context) error {
	n, ok := o.state.ExpectedHandSize()
	if !ok {
		return o.refreshHand(ctx)
	}

	internalLogger.Info("rescanning hand", "expected", n)
	return o.scanHand(ctx, n)
}

func (o *BattleOrchestrator) scanHand(ctx context.Context, n int) error {
	hand, err := o.recognition.ScanHand(ctx, n)
	if err != nil {
		return err
	}

	o.state.SetHand(hand)
	o.publish()
	return nil
}

func (o *BattleOrchestrator) refreshActive(ctx context.Context) error {
	layout := o.p.Layout

	if err := o.p.Device.Drag(ctx, layout.ActiveReveal, layout.Center, layout.Timings.DragDuration); err != nil {
		return err
	}

	attrs, ok, err := o.recognition.ZoomAndRecognize(ctx, layout.Center, layout.Timings.BoardZoomPress)
	if err != nil {
		return err
	}
	if ok {
		o.state.SetActive(attrs)
		internalLogger.V(1).Info("active pokemon", "name", o.state.Active.Name)
	}

	return nil
}

func (o *BattleOrchestrator) refreshBench(ctx context.Context) error {
	layout := o.p.Layout

	for slot, at := range layout.BenchSlots {
		if err := o.p.ResetView(ctx); err != nil {
			return err
		}
		if err := o.p.wait(ctx, 500*time.Millisecond); err != nil {
			return err
		}
		if err := o.p.Device.Tap(ctx, at); err != nil {
			return err
		}

		attrs, ok, err := o.recognition.ZoomAndRecognize(ctx, at, layout.Timings.BoardZoomPress)
		if err != nil {
			return err
		}
		if ok {
			o.state.SetBenchSlot(slot, &attrs)
		} else {
			o.state.SetBenchSlot(slot, nil)
		}
	}

	o.publish()
	return o.p.ResetView(ctx)
}

// idle taps the bench so the board stays awake while the opponent plays
func (o *BattleOrchestrator) idle(ctx context.Context) error {
	for _, at := range o.p.Layout.BenchSlots {
		if err := o.p.Device.Tap(ctx, at); err != nil {
			return err
		}
		if err := o.p.ResetView(ctx); err != nil {
			return err
		}
	}

	return o.p.ResetView(ctx)
}

// endBattle dismisses the result screens. Each one gets a few attempts and is
// skipped when it does not show up.
func (o *BattleOrchestrator) endBattle(ctx context.Context) error {
	layout := o.p.Layout

	if err := o.p.wait(ctx, layout.Timings.NavigateSettle); err != nil {
		return err
	}

	screenshot, err := o.p.Screenshot(ctx)
	if err != nil {
		return err
	}
	proceeded, err := o.p.CheckAndTap(ctx, screenshot, CUE_TAP_TO_PROCEED_BUTTON, layout.Thresholds.Cue)
	if err != nil {
		return err
	}
	if proceeded {
		if err := o.p.wait(ctx, 2*time.Second); err != nil {
			return err
		}
	}

	if err := o.dismiss(ctx, CUE_NEXT_BUTTON, 2*time.Second); err != nil {
		return err
	}
	if err := o.dismiss(ctx, CUE_THANKS_BUTTON, 3*time.Second); err != nil {
		return err
	}

	screenshot, err = o.p.Screenshot(ctx)
	if err != nil {
		return err
	}
	if _, err := o.p.CheckAndTap(ctx, screenshot, CUE_CROSS_BUTTON, layout.Thresholds.Cue); err != nil {
		return err
	}

	return o.p.wait(ctx, 3*time.Second)
}

func (o *BattleOrchestrator) dismiss(ctx context.Context, cue Cue, settle time.Duration) error {
	layout := o.p.Layout

	for range layout.Polling.DismissAttempts {
		screenshot, err := o.p.Screenshot(ctx)
		if err != nil {
			return err
		}
		tapped, err := o.p.CheckAndTap(ctx, screenshot, cue, layout.Thresholds.Cue)
		if err != nil {
			return err
		}
		if tapped {
			return o.p.wait(ctx, settle)
		}
		if err := o.p.wait(ctx, time.Second); err != nil {
			return err
		}
	}

	internalLogger.Info("result screen not shown, moving on", "cue", cue)
	return nil
}
