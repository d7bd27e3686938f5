package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorFixture struct {
	device   *fakeDevice
	vision   *fakeVision
	catalog  *fakeCatalog
	executor *ActionExecutor
	layout   *Layout
}

func newExecutorFixture(cards ...CardAttrs) *executorFixture {
	device := &fakeDevice{}
	vision := &fakeVision{}
	p := testPerception(device, vision)
	catalog := newCatalog(cards...)
	ids := make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.ID
	}
	recognition := NewCardRecognitionService(p, templatesFor(ids...), catalog, &fakeOperator{})

	return &executorFixture{
		device:   device,
		vision:   vision,
		catalog:  catalog,
		executor: NewActionExecutor(p, recognition, NewBattleLogVerifier(p, recognition), NewBattleController(p)),
		layout:   p.Layout,
	}
}

// hand simulates the hand on screen: a long press on a hand position shows the
// card there and a drag from a hand position removes it.
func (f *executorFixture) hand(ids ...string) {
	cards := append([]string(nil), ids...)
	f.device.pressed = func(p Point) *fakeFrame {
		for i, id := range cards {
			if p == f.layout.HandCardPoint(i, len(cards)) {
				return cardFrame(id)
			}
		}
		return nil
	}
	f.device.onDrag = func(from, to Point) {
		for i := range cards {
			if from == f.layout.HandCardPoint(i, len(cards)) {
				cards = append(cards[:i], cards[i+1:]...)
				return
			}
		}
	}
}

func TestExecuteSetActiveByRescan(t *testing.T) {
	a := basic("A", "Pikachu")
	f := newExecutorFixture(a, basic("B", "Eevee"))
	f.hand("A", "B")

	state := NewGameState()
	state.SetHand(handOf(a, basic("B", "Eevee")))
	candidates := Plan(&state)
	require.NotEmpty(t, candidates)
	require.Equal(t, PLAY_SET_ACTIVE, candidates[0].Kind)

	outcome, err := f.executor.Execute(context.Background(), &state, candidates[0])

	require.NoError(t, err)
	assert.True(t, outcome.Success, "reason: %v", outcome.Reason)
	assert.Equal(t, [][2]Point{{f.layout.HandCardPoint(0, 2), f.layout.ActiveDrop}}, f.device.drags)

	require.True(t, state.ApplyOutcome(outcome))
	require.NotNil(t, state.Active)
	assert.Equal(t, "Pikachu", state.Active.Name)
	assert.Len(t, state.Hand, 1)
}

func TestExecuteSetActiveLastCard(t *testing.T) {
	a := basic("A", "Pikachu")

	t.Run("drag taken", func(t *testing.T) {
		f := newExecutorFixture(a)
		f.hand("A")

		state := NewGameState()
		state.SetHand(handOf(a))
		candidates := Plan(&state)
		require.Len(t, candidates, 1)
		require.Equal(t, PLAY_SET_ACTIVE, candidates[0].Kind)

		outcome, err := f.executor.Execute(context.Background(), &state, candidates[0])
		require.NoError(t, err)
		require.True(t, state.ApplyOutcome(outcome))

		assert.Equal(t, "Pikachu", state.Active.Name)
		assert.Empty(t, state.Hand)
	})

	t.Run("drag ignored", func(t *testing.T) {
		f := newExecutorFixture(a)
		f.hand("A")
		f.device.onDrag = nil

		state := NewGameState()
		state.SetHand(handOf(a))

		outcome, err := f.executor.Execute(context.Background(), &state, Candidate{Kind: PLAY_SET_ACTIVE, Card: state.Hand[0], Slot: -1})

		require.NoError(t, err)
		assert.False(t, outcome.Success)
		assert.ErrorIs(t, outcome.Reason, ErrVerificationFailed)
		assert.Equal(t, f.layout.HandCardPoint(0, 1), f.device.presses[len(f.device.presses)-1])

		assert.False(t, state.ApplyOutcome(outcome))
		assert.Nil(t, state.Active)
		assert.Len(t, state.Hand, 1)
	})
}

func TestExecuteWithDuplicateCopies(t *testing.T) {
	a := basic("A", "Pikachu")
	b := basic("B", "Eevee")

	t.Run("next card differs further along", func(t *testing.T) {
		f := newExecutorFixture(a, b)
		f.hand("A", "A", "B")

		state := NewGameState()
		state.SetHand(handOf(a, a, b))

		outcome, err := f.executor.Execute(context.Background(), &state, Candidate{Kind: PLAY_SET_ACTIVE, Card: state.Hand[0], Slot: -1})

		require.NoError(t, err)
		assert.True(t, outcome.Success, "reason: %v", outcome.Reason)
		assert.Equal(t, f.layout.HandCardPoint(1, 2), f.device.presses[len(f.device.presses)-1])
	})

	tests := []struct {
		name    string
		removed bool
		digits  string
		success bool
	}{
		{"counter shows one less", true, "1", true},
		{"counter unchanged", false, "2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(a)
			f.hand("A", "A")
			if !tt.removed {
				f.device.onDrag = nil
			}
			f.vision.digits = tt.digits
			f.vision.digitsOK = true

			state := NewGameState()
			state.SetHand(handOf(a, a))

			outcome, err := f.executor.Execute(context.Background(), &state, Candidate{Kind: PLAY_SET_ACTIVE, Card: state.Hand[0], Slot: -1})

			require.NoError(t, err)
			assert.Equal(t, tt.success, outcome.Success, "reason: %v", outcome.Reason)
			assert.Contains(t, f.device.presses, f.layout.CountProbe)

			state.ApplyOutcome(outcome)
			if tt.success {
				assert.Len(t, state.Hand, 1)
				assert.False(t, state.IsFailed("A"))
			} else {
				assert.Len(t, state.Hand, 2)
			}
		})
	}
}

func TestExecuteRescanDetectsCardStillInHand(t *testing.T) {
	a := basic("A", "Pikachu")
	f := newExecutorFixture(a, basic("B", "Eevee"))
	f.hand("A", "B")
	f.device.onDrag = nil

	state := NewGameState()
	state.SetHand(handOf(a, basic("B", "Eevee")))
	// the second card is also a Pikachu so the slot still reads A
	f.device.pressed = func(p Point) *fakeFrame { return cardFrame("A") }

	outcome, err := f.executor.Execute(context.Background(), &state, Candidate{Kind: PLAY_SET_ACTIVE, Card: state.Hand[0], Slot: -1})

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.ErrorIs(t, outcome.Reason, ErrVerificationFailed)

	before := state.Clone()
	state.ApplyOutcome(outcome)
	assert.Nil(t, state.Active)
	assert.Equal(t, before.Hand, state.Hand)
	assert.True(t, state.IsFailed("A"))
}

func TestExecuteRefusesWhenHandOutOfSync(t *testing.T) {
	a := basic("A", "Pikachu")
	f := newExecutorFixture(a, basic("B", "Eevee"))
	f.hand("B", "A")

	state := NewGameState()
	state.SetHand(handOf(a, basic("B", "Eevee")))

	outcome, err := f.executor.Execute(context.Background(), &state, Candidate{Kind: PLAY_SET_ACTIVE, Card: state.Hand[0], Slot: -1})

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Zero(t, f.device.dragCount())
}

func TestExecuteBenchVerifiedByBattleLog(t *testing.T) {
	a := basic("A", "Pikachu")
	f := newExecutorFixture(a)
	logScreen := newFrame()
	logScreen.logLine = CUE_LOG_PUT_ON_BENCH
	logScreen.card = "A"
	f.device.screens = []*fakeFrame{logScreen}

	state := stateWithHand(a)
	state.Active = NewPokemonInstance(basic("X", "Ditto"))

	outcome, err := f.executor.Execute(context.Background(), &state, Candidate{Kind: PLAY_BENCH, Card: state.Hand[0], Slot: 1})

	require.NoError(t, err)
	assert.True(t, outcome.Success, "reason: %v", outcome.Reason)
	assert.Equal(t, f.layout.BenchSlots[1], f.device.drags[0][1])
	assert.Contains(t, f.device.taps, f.layout.BattleLog.Button)
	assert.Equal(t, f.layout.BattleLog.Close, f.device.taps[len(f.device.taps)-1], "log closed last")
}

func TestExecuteBattleLogMismatch(t *testing.T) {
	a := basic("A", "Pikachu")
	tests := []struct {
		name    string
		logLine Cue
		card    string
	}{
		{"no phrase", "", "A"},
		{"wrong phrase", CUE_LOG_DISCARDED, "A"},
		{"wrong card", CUE_LOG_PUT_ON_BENCH, "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture(a, basic("B", "Eevee"))
			logScreen := newFrame()
			logScreen.logLine = tt.logLine
			logScreen.card = tt.card
			f.device.screens = []*fakeFrame{logScreen}

			state := stateWithHand(a)
			state.Active = NewPokemonInstance(basic("X", "Ditto"))

			outcome, err := f.executor.Execute(context.Background(), &state, Candidate{Kind: PLAY_BENCH, Card: state.Hand[0], Slot: 0})

			require.NoError(t, err)
			assert.False(t, outcome.Success)
			assert.ErrorIs(t, outcome.Reason, ErrVerificationFailed)
			assert.Equal(t, f.layout.BattleLog.Close, f.device.taps[len(f.device.taps)-1])
		})
	}
}

func TestExecuteTrainerReturnsHandDelta(t *testing.T) {
	research := trainer("T", "Professor's Research")
	f := newExecutorFixture(research)
	logScreen := newFrame()
	logScreen.logLine = CUE_LOG_DISCARDED
	logScreen.card = "T"
	f.device.screens = []*fakeFrame{logScreen}

	state := stateWithHand(research)

	outcome, err := f.executor.Execute(context.Background(), &state, Candidate{Kind: PLAY_TRAINER, Card: state.Hand[0], Slot: -1})

	require.NoError(t, err)
	require.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.HandDelta)

	state.ApplyOutcome(outcome)
	assert.Equal(t, 1, state.PlayedTrainerCards)
	assert.True(t, state.HandStale())
	n, ok := state.ExpectedHandSize()
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestEndTurn(t *testing.T) {
	f := newExecutorFixture()
	f.device.screens = []*fakeFrame{screenWith(CUE_END_TURN, CUE_OK)}

	ended, err := f.executor.EndTurn(context.Background())

	require.NoError(t, err)
	assert.True(t, ended)
	assert.Contains(t, f.device.taps, f.layout.Attack.Confirm)

	f = newExecutorFixture()
	ended, err = f.executor.EndTurn(context.Background())
	require.NoError(t, err)
	assert.False(t, ended)
}
