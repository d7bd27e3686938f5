package engine

import (
	"context"
	"image"
	"strconv"
	"strings"
	"time"
)

// TurnCheck is the result of one turn detection. FirstTurn and WentFirst carry
// the state's current values forward unless a first-turn cue overrode them.
type TurnCheck struct {
	MyTurn    bool
	FirstTurn bool
	WentFirst bool
	// Similarity of the two turn-region captures
	Similarity float64
}

// BattleController runs the perceptual checks the turn loop relies on. It never
// writes to GameState.
type BattleController struct {
	p *Perception
}

func NewBattleController(p *Perception) *BattleController {
	return &BattleController{p: p}
}

// CheckTurn captures the turn banner twice and calls it my turn when the two
// frames differ. Before the first turn is done the going first/second and start
// battle cues also count as my (first) turn.
func (c *BattleController) CheckTurn(ctx context.Context, state *GameState) (TurnCheck, error) {
	layout := c.p.Layout
	result := TurnCheck{
		FirstTurn: state.IsFirstTurn,
		WentFirst: state.GoFirst,
	}

	first, err := c.p.CaptureRegion(ctx, layout.TurnRegion)
	if err != nil {
		return result, err
	}
	if err := c.p.wait(ctx, layout.Timings.TurnCheckGap); err != nil {
		return result, err
	}
	second, err := c.p.CaptureRegion(ctx, layout.TurnRegion)
	if err != nil {
		return result, err
	}

	result.Similarity = c.p.Vision.Similarity(first, second)
	result.MyTurn = result.Similarity < layout.Thresholds.TurnChange
	internalLogger.V(1).Info("turn region compared", "similarity", result.Similarity, "my_turn", result.MyTurn)

	if state.FirstTurnDone {
		return result, nil
	}

	screenshot, err := c.p.Screenshot(ctx)
	if err != nil {
		return result, err
	}

	startBattle, err := c.p.CheckAndTap(ctx, screenshot, CUE_START_BATTLE_BUTTON, layout.Thresholds.Cue)
	if err != nil {
		return result, err
	}
	_, goingFirst := c.p.Check(screenshot, CUE_GOING_FIRST_INDICATOR, layout.Thresholds.FirstTurnCue)
	_, goingSecond := c.p.Check(screenshot, CUE_GOING_SECOND_INDICATOR, layout.Thresholds.FirstTurnCue)

	if startBattle || goingFirst || goingSecond {
		internalLogger.Info("first turn detected", "start_battle", startBattle, "going_first", goingFirst, "going_second", goingSecond)
		result.MyTurn = true
		result.FirstTurn = true
	}
	if goingFirst || goingSecond {
		result.WentFirst = goingFirst
	}

	return result, nil
}

// CheckRivalConcede looks for the end-of-match prompt in the middle of a turn
// loop. When found the result screens are dismissed.
func (c *BattleController) CheckRivalConcede(ctx context.Context, screenshot image.Image) (bool, error) {
	layout := c.p.Layout
	if _, found := c.p.Check(screenshot, CUE_TAP_TO_PROCEED_BUTTON, layout.Thresholds.Cue); !found {
		return false, nil
	}

	internalLogger.Info("rival conceded")

	for _, cue := range []Cue{CUE_NEXT_BUTTON, CUE_THANKS_BUTTON} {
		found, err := c.p.PollUntilFound(ctx, cue, layout.Polling.Attempts, layout.Thresholds.Cue)
		if err != nil {
			return true, err
		}
		if !found {
			break
		}
	}

	if err := c.p.wait(ctx, 2*time.Second); err != nil {
		return true, err
	}
	if _, err := c.p.PollUntilFound(ctx, CUE_CROSS_BUTTON, layout.Polling.Attempts, layout.Thresholds.Cue); err != nil {
		return true, err
	}

	return true, c.p.wait(ctx, 4*time.Second)
}

// CheckRivalAfk only reports; an idle rival is handled by the game's own timer
func (c *BattleController) CheckRivalAfk(screenshot image.Image) bool {
	_, found := c.p.Check(screenshot, CUE_RIVAL_AFK, c.p.Layout.Thresholds.FirstTurnCue)
	if found {
		internalLogger.Info("rival looks afk")
	}

	return found
}

// CheckNumberOfCards long-presses the deck to show the hand counter and reads
// it. ok is false when the counter could not be read.
func (c *BattleController) CheckNumberOfCards(ctx context.Context, at Point) (int, bool, error) {
	layout := c.p.Layout

	frame, err := c.p.Device.LongPress(ctx, at, layout.Timings.CountPress)
	if err != nil {
		return 0, false, err
	}

	digits, ok := c.p.Vision.ExtractDigits(Crop(frame, layout.CountRegion.Rect()))
	if !ok {
		internalLogger.Info("could not read number of cards")
		return 0, false, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(digits))
	if err != nil || n < 0 {
		internalLogger.Info("could not parse number of cards", "digits", digits)
		return 0, false, nil
	}

	internalLogger.V(1).Info("number of cards", "n", n)
	return n, true, nil
}
