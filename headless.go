package main

import (
	"context"
	"fmt"
	"image"

	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// headlessOperator answers every question with a cancel, so unknown cards are
// left unplayed
type headlessOperator struct{}

func (headlessOperator) RequestCardName(context.Context, image.Image) (string, error) {
	return "", fmt.Errorf("%w: running headless", engine.ErrOperatorCancelled)
}

func (headlessOperator) PresentCardOptions(context.Context, []engine.CardOption, image.Image) (engine.CardOption, error) {
	return engine.CardOption{}, fmt.Errorf("%w: running headless", engine.ErrOperatorCancelled)
}

// logObserver reports status changes to the log
type logObserver struct{}

func (logObserver) PhaseChanged(phase engine.Phase) {
	log.Info().Str("phase", phase.String()).Msg("phase changed")
}

func (logObserver) StateChanged(state engine.GameState) {
	event := log.Debug().
		Strs("hand", lo.Map(state.Hand, func(c engine.HandCard, _ int) string { return c.String() })).
		Int("trainers", state.PlayedTrainerCards)
	if state.Active != nil {
		event = event.Str("active", state.Active.Name).Int("energy", state.Active.EnergyCount)
	}
	event.Int("bench", state.BenchCount()).Msg("state changed")
}
