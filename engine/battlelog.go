package engine

import (
	"context"
	"time"
)

type LogAction int

const (
	LOG_NONE LogAction = iota
	LOG_PUT_ON_BENCH
	LOG_DISCARDED
	LOG_PUT_ON_ACTIVE
)

func (a LogAction) String() string {
	switch a {
	case LOG_PUT_ON_BENCH:
		return "put on bench"
	case LOG_DISCARDED:
		return "discarded"
	case LOG_PUT_ON_ACTIVE:
		return "put on active"
	}

	return "none"
}

// Phrases are checked in this order, the first one above threshold wins
var logPhrases = []struct {
	cue    Cue
	action LogAction
}{
	{CUE_LOG_PUT_ON_BENCH, LOG_PUT_ON_BENCH},
	{CUE_LOG_DISCARDED, LOG_DISCARDED},
	{CUE_LOG_PUT_ON_ACTIVE, LOG_PUT_ON_ACTIVE},
}

// LogEntry is the most recent battle log line. CardID is empty when the card
// thumbnail could not be recognized.
type LogEntry struct {
	Action LogAction
	CardID string
}

// BattleLogVerifier opens the in-game battle log and reads its latest line
type BattleLogVerifier struct {
	p           *Perception
	recognition *CardRecognitionService
}

func NewBattleLogVerifier(p *Perception, recognition *CardRecognitionService) *BattleLogVerifier {
	return &BattleLogVerifier{p: p, recognition: recognition}
}

// Check reads the latest log line. The log is closed again on every path,
// including a cancelled ctx.
func (v *BattleLogVerifier) Check(ctx context.Context) (entry LogEntry, err error) {
	layout := v.p.Layout.BattleLog

	if err := v.doubleTap(ctx, layout.Button, 200*time.Millisecond, 800*time.Millisecond); err != nil {
		return LogEntry{}, err
	}
	defer func() {
		closeErr := v.doubleTap(context.WithoutCancel(ctx), layout.Close, 200*time.Millisecond, 300*time.Millisecond)
		if err == nil {
			err = closeErr
		}
	}()

	text, err := v.p.CaptureRegion(ctx, layout.TextRegion)
	if err != nil {
		return LogEntry{}, err
	}

	for _, phrase := range logPhrases {
		template, ok := v.p.Cues[phrase.cue]
		if !ok {
			continue
		}

		score := v.p.Vision.Similarity(text, template)
		internalLogger.V(1).Info("battle log phrase", "cue", phrase.cue, "score", score)
		if score > v.p.Layout.Thresholds.BattleLog {
			entry.Action = phrase.action
			break
		}
	}

	if entry.Action == LOG_NONE {
		return entry, nil
	}

	if err := v.p.Device.Tap(ctx, layout.Card); err != nil {
		return entry, err
	}
	if err := v.p.wait(ctx, 400*time.Millisecond); err != nil {
		return entry, err
	}

	zoomed, err := v.p.CaptureRegion(ctx, v.p.Layout.ZoomRegion)
	if err != nil {
		return entry, err
	}
	if err := v.p.ResetView(ctx); err != nil {
		return entry, err
	}

	if id, ok := v.recognition.Identify(zoomed); ok {
		entry.CardID = id
	}

	internalLogger.Info("battle log read", "action", entry.Action.String(), "card", entry.CardID)
	return entry, nil
}

func (v *BattleLogVerifier) doubleTap(ctx context.Context, at Point, between, after time.Duration) error {
	if err := v.p.Device.Tap(ctx, at); err != nil {
		return err
	}
	if err := v.p.wait(ctx, between); err != nil {
		return err
	}
	if err := v.p.Device.Tap(ctx, at); err != nil {
		return err
	}

	return v.p.wait(ctx, after)
}

// expectedLogAction is the phrase the game writes for a successful play of kind
func expectedLogAction(kind PlayKind) LogAction {
	switch kind {
	case PLAY_TRAINER:
		return LOG_DISCARDED
	case PLAY_SET_ACTIVE:
		return LOG_PUT_ON_ACTIVE
	case PLAY_BENCH:
		return LOG_PUT_ON_BENCH
	}

	return LOG_NONE
}
