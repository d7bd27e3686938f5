package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Trainer cards whose effect changes the hand size, keyed by lower case name
var cardEffects = map[string]int{
	"professor's research": 2,
	"poké ball":            1,
}

func HandDeltaFor(attrs CardAttrs) int {
	return cardEffects[strings.ToLower(strings.TrimSpace(attrs.Name))]
}

type handCounter interface {
	CheckNumberOfCards(ctx context.Context, at Point) (int, bool, error)
}

// ActionExecutor performs one candidate as device input and reports whether the
// game registered it. It reads GameState but never writes to it.
type ActionExecutor struct {
	p           *Perception
	recognition *CardRecognitionService
	battleLog   *BattleLogVerifier
	counter     handCounter
}

func NewActionExecutor(p *Perception, recognition *CardRecognitionService, battleLog *BattleLogVerifier, counter handCounter) *ActionExecutor {
	return &ActionExecutor{
		p:           p,
		recognition: recognition,
		battleLog:   battleLog,
		counter:     counter,
	}
}

func (e *ActionExecutor) target(c Candidate) (Point, error) {
	layout := e.p.Layout

	switch c.Kind {
	case PLAY_TRAINER, PLAY_EVOLVE_ACTIVE:
		return layout.Center, nil
	case PLAY_SET_ACTIVE:
		return layout.ActiveDrop, nil
	case PLAY_BENCH, PLAY_EVOLVE_BENCH:
		if c.Slot < 0 || c.Slot >= len(layout.BenchSlots) {
			return Point{}, fmt.Errorf("bench slot %d out of range", c.Slot)
		}
		return layout.BenchSlots[c.Slot], nil
	}

	return Point{}, fmt.Errorf("unknown play kind %d", c.Kind)
}

// Execute drags the candidate's card to its target and verifies the play.
// The battle log is used once it can be trusted; before that, and for
// evolutions which the log phrases do not cover, the hand position is read
// before and after the drag. A returned error means the run is cancelled or the
// device failed; an unconfirmed play is a failed Outcome.
func (e *ActionExecutor) Execute(ctx context.Context, state *GameState, c Candidate) (Outcome, error) {
	layout := e.p.Layout
	outcome := Outcome{Candidate: c}

	to, err := e.target(c)
	if err != nil {
		outcome.Reason = err
		return outcome, nil
	}

	handSize := len(state.Hand)
	from := layout.HandCardPoint(c.Card.Position, handSize)
	useLog := state.FirstTurnDone && !c.Kind.IsEvolve()

	if !useLog {
		before, err := e.recognition.ReadHandCard(ctx, c.Card.Position, handSize)
		if err != nil {
			return outcome, err
		}
		if before.CardID != c.Card.CardID {
			outcome.Reason = fmt.Errorf("%w: expected %s at position %d, found %s", ErrVerificationFailed, c.Card.Attrs.Name, c.Card.Position, before)
			return outcome, nil
		}
	}

	internalLogger.Info("playing card", "play", c.String(), "from", from.String(), "to", to.String())

	if err := e.p.ResetView(ctx); err != nil {
		return outcome, err
	}
	if err := e.p.Device.Drag(ctx, from, to, layout.Timings.DragDuration); err != nil {
		return outcome, err
	}
	if err := e.p.wait(ctx, layout.Timings.PlaySettle); err != nil {
		return outcome, err
	}

	if useLog {
		outcome.Reason, err = e.verifyByLog(ctx, c)
	} else {
		outcome.Reason, err = e.verifyByRescan(ctx, state.Hand, c)
	}
	if err != nil {
		return outcome, err
	}
	outcome.Success = outcome.Reason == nil

	if outcome.Success && c.Kind == PLAY_TRAINER {
		outcome.HandDelta = HandDeltaFor(c.Card.Attrs)
	}

	if outcome.Success {
		internalLogger.Info("play verified", "play", c.String(), "hand_delta", outcome.HandDelta)
	} else {
		internalLogger.Info("play not verified", "play", c.String(), "reason", outcome.Reason.Error())
	}

	return outcome, nil
}

// verifyByLog returns a non-nil reason when the log does not show the play
func (e *ActionExecutor) verifyByLog(ctx context.Context, c Candidate) (reason error, err error) {
	if err := e.p.wait(ctx, e.p.Layout.Timings.LogSettle); err != nil {
		return nil, err
	}
	if err := e.p.ResetView(ctx); err != nil {
		return nil, err
	}

	entry, err := e.battleLog.Check(ctx)
	if err != nil {
		return nil, err
	}

	if want := expectedLogAction(c.Kind); entry.Action != want {
		return fmt.Errorf("%w: battle log shows %q, want %q", ErrVerificationFailed, entry.Action, want), nil
	}
	if entry.CardID != c.Card.CardID {
		return fmt.Errorf("%w: battle log card %q, want %q", ErrVerificationFailed, entry.CardID, c.Card.CardID), nil
	}

	return nil, nil
}

// verifyByRescan reads the hand after the drag. Every later card moves down one
// position, so the position read is the first one that receives a card other
// than a copy of the played one. When only copies follow, the hand counter
// decides instead.
func (e *ActionExecutor) verifyByRescan(ctx context.Context, hand []HandCard, c Candidate) (reason error, err error) {
	handSize := len(hand)
	position := c.Card.Position
	for position+1 < handSize && hand[position+1].CardID == c.Card.CardID {
		position++
	}

	if position > c.Card.Position && position+1 >= handSize {
		return e.verifyByCount(ctx, c, handSize-1)
	}

	// the last card is read where the first card of a one card hand sits
	after, err := e.recognition.ReadHandCard(ctx, position, max(handSize-1, 1))
	if err != nil {
		return nil, err
	}

	if after.CardID == c.Card.CardID {
		return fmt.Errorf("%w: %s still in hand", ErrVerificationFailed, c.Card.Attrs.Name), nil
	}

	return nil, nil
}

func (e *ActionExecutor) verifyByCount(ctx context.Context, c Candidate, want int) (reason error, err error) {
	if err := e.p.ResetView(ctx); err != nil {
		return nil, err
	}
	n, ok, err := e.counter.CheckNumberOfCards(ctx, e.p.Layout.CountProbe)
	if err != nil {
		return nil, err
	}
	if err := e.p.ResetView(ctx); err != nil {
		return nil, err
	}

	if !ok {
		return fmt.Errorf("%w: hand counter unreadable after playing %s", ErrVerificationFailed, c.Card.Attrs.Name), nil
	}
	if n != want {
		return fmt.Errorf("%w: hand holds %d cards, want %d", ErrVerificationFailed, n, want), nil
	}

	return nil, nil
}

// AttachEnergy drags the turn's energy onto the active pokemon
func (e *ActionExecutor) AttachEnergy(ctx context.Context) error {
	layout := e.p.Layout
	return e.p.Device.Drag(ctx, layout.EnergyZone, layout.Center, layout.Timings.EnergyDrag)
}

// Attack opens the active pokemon's attack menu and taps every row so whichever
// attack is affordable gets used.
func (e *ActionExecutor) Attack(ctx context.Context) error {
	layout := e.p.Layout

	if err := e.p.Device.Drag(ctx, layout.Attack.Reveal, layout.Center, layout.Timings.DragDuration); err != nil {
		return err
	}
	if err := e.p.wait(ctx, 250*time.Millisecond); err != nil {
		return err
	}
	if err := e.p.ResetView(ctx); err != nil {
		return err
	}
	if err := e.p.Device.Tap(ctx, layout.Center); err != nil {
		return err
	}
	if err := e.p.wait(ctx, time.Second); err != nil {
		return err
	}
	if err := e.p.TapAll(ctx, layout.Attack.Rows...); err != nil {
		return err
	}
	if err := e.p.wait(ctx, time.Second); err != nil {
		return err
	}
	if err := e.p.Device.Tap(ctx, layout.Attack.Confirm); err != nil {
		return err
	}

	return e.p.ResetView(ctx)
}

// EndTurn attacks, then taps end turn and confirms. ended is false when the end
// turn button was not on screen.
func (e *ActionExecutor) EndTurn(ctx context.Context) (bool, error) {
	thresholds := e.p.Layout.Thresholds

	if err := e.Attack(ctx); err != nil {
		return false, err
	}
	if err := e.p.ResetView(ctx); err != nil {
		return false, err
	}
	if err := e.p.wait(ctx, 350*time.Millisecond); err != nil {
		return false, err
	}

	screenshot, err := e.p.Screenshot(ctx)
	if err != nil {
		return false, err
	}
	ended, err := e.p.CheckAndTap(ctx, screenshot, CUE_END_TURN, thresholds.Cue)
	if err != nil {
		return false, err
	}
	if !ended {
		internalLogger.Info("end turn button not found")
		return false, nil
	}

	if err := e.p.wait(ctx, time.Second); err != nil {
		return true, err
	}
	screenshot, err = e.p.Screenshot(ctx)
	if err != nil {
		return true, err
	}
	if _, err := e.p.CheckAndTap(ctx, screenshot, CUE_OK, thresholds.Cue); err != nil {
		return true, err
	}

	return true, nil
}
