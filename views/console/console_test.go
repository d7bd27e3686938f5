package console

import (
	"context"
	"image"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeControls struct {
	starts, stops int
	running       bool
}

func (c *fakeControls) Start(context.Context) bool {
	c.starts++
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *fakeControls) Stop() {
	c.stops++
	c.running = false
}

func (c *fakeControls) Running() bool { return c.running }

func newTestModel() (Model, *fakeControls) {
	controls := &fakeControls{}
	return NewModel(context.Background(), controls, nil), controls
}

func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()

	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestBridgeRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	msgs := make(chan tea.Msg, 4)
	dir := t.TempDir()
	bridge := NewBridge(func(msg tea.Msg) { msgs <- msg }, dir)

	go func() {
		request := (<-msgs).(CardNameRequestMsg)
		assert.FileExists(t, request.CapturePath)
		assert.False(t, request.Deadline.IsZero())
		request.reply <- nameReply{name: "Pikachu"}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name, err := bridge.RequestCardName(ctx, image.NewRGBA(image.Rect(0, 0, 10, 14)))
	require.NoError(t, err)
	assert.Equal(t, "Pikachu", name)
}

func TestBridgeRequestExpires(t *testing.T) {
	defer goleak.VerifyNone(t)

	msgs := make(chan tea.Msg, 4)
	bridge := NewBridge(func(msg tea.Msg) { msgs <- msg }, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	options := []engine.CardOption{{Attrs: engine.CardAttrs{ID: "A1-001", Name: "Bulbasaur"}}}
	_, err := bridge.PresentCardOptions(ctx, options, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	request := (<-msgs).(CardOptionsRequestMsg)
	assert.Empty(t, request.CapturePath)
	assert.Equal(t, RequestExpiredMsg{ID: request.ID}, <-msgs)
}

func TestBridgeForwardsStatus(t *testing.T) {
	msgs := []tea.Msg{}
	bridge := NewBridge(func(msg tea.Msg) { msgs = append(msgs, msg) }, "")

	state := engine.NewGameState()
	state.PlayedTrainerCards = 1
	bridge.PhaseChanged(engine.PHASE_NAVIGATING)
	bridge.StateChanged(state)

	require.Len(t, msgs, 2)
	assert.Equal(t, PhaseMsg(engine.PHASE_NAVIGATING), msgs[0])
	assert.Equal(t, 1, engine.GameState(msgs[1].(StateMsg)).PlayedTrainerCards)

	m, _ := newTestModel()
	m = update(t, m, msgs...)
	assert.Equal(t, engine.PHASE_NAVIGATING, m.phase)
	assert.Equal(t, 1, m.state.PlayedTrainerCards)
}

func TestPromptSubmit(t *testing.T) {
	reply := make(chan nameReply, 1)
	m, controls := newTestModel()

	m = update(t, m,
		CardNameRequestMsg{ID: "r1", Deadline: time.Now().Add(time.Minute), reply: reply},
		runes("Pikachu ex"),
		// start key goes to the prompt while it is open
		runes("s"),
		tea.KeyMsg{Type: tea.KeyEnter},
	)

	assert.Nil(t, m.prompt)
	assert.Equal(t, 0, controls.starts)
	assert.Equal(t, nameReply{name: "Pikachu exs"}, <-reply)
}

func TestPromptCancel(t *testing.T) {
	reply := make(chan nameReply, 1)
	m, _ := newTestModel()

	m = update(t, m,
		CardNameRequestMsg{ID: "r1", reply: reply},
		tea.KeyMsg{Type: tea.KeyEsc},
	)

	assert.Nil(t, m.prompt)
	assert.ErrorIs(t, (<-reply).err, engine.ErrOperatorCancelled)
}

func TestPromptCountdownExpires(t *testing.T) {
	reply := make(chan nameReply, 1)
	deadline := time.Now().Add(3 * time.Second)
	m, _ := newTestModel()

	m = update(t, m,
		CardNameRequestMsg{ID: "r1", Deadline: deadline, reply: reply},
		countdownMsg{id: "other", t: deadline.Add(time.Second)},
		countdownMsg{id: "r1", t: deadline.Add(-time.Second)},
	)
	require.NotNil(t, m.prompt)
	assert.Contains(t, m.View(), "1s left")

	m = update(t, m, countdownMsg{id: "r1", t: deadline})
	assert.Nil(t, m.prompt)
	assert.ErrorIs(t, (<-reply).err, engine.ErrOperatorCancelled)
}

func TestExpiredRequestClosesPrompt(t *testing.T) {
	reply := make(chan nameReply, 1)
	m, _ := newTestModel()

	m = update(t, m, CardNameRequestMsg{ID: "r1", reply: reply}, RequestExpiredMsg{ID: "r2"})
	require.NotNil(t, m.prompt)

	m = update(t, m, RequestExpiredMsg{ID: "r1"})
	assert.Nil(t, m.prompt)
	assert.Empty(t, reply)
}

func TestOptionsPick(t *testing.T) {
	reply := make(chan optionReply, 1)
	options := []engine.CardOption{
		{Attrs: engine.CardAttrs{ID: "A1-094", Name: "Pikachu"}, Score: 0.9, Art: image.NewRGBA(image.Rect(0, 0, 1, 1))},
		{Attrs: engine.CardAttrs{ID: "A1-096", Name: "Pikachu ex"}, Score: 0.4},
	}
	m, _ := newTestModel()

	m = update(t, m, CardOptionsRequestMsg{ID: "r1", Options: options, reply: reply})
	require.NotNil(t, m.options)
	view := m.View()
	assert.Contains(t, view, "Pikachu (A1-094)")
	assert.Contains(t, view, "similarity 0.90")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, m.options)

	picked := <-reply
	require.NoError(t, picked.err)
	assert.Equal(t, "A1-096", picked.option.Attrs.ID)
}

func TestControlsKeys(t *testing.T) {
	m, controls := newTestModel()

	m = update(t, m, runes("s"), runes("s"))
	assert.Equal(t, 2, controls.starts)
	assert.True(t, controls.running)
	assert.Contains(t, m.View(), "running")

	m = update(t, m, runes("x"))
	assert.Equal(t, 1, controls.stops)
	assert.Contains(t, m.View(), "stopped")

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 2, controls.stops)
}

func TestRunExitShowsError(t *testing.T) {
	m, _ := newTestModel()

	m = update(t, m, PhaseMsg(engine.PHASE_IN_TURN_LOOP), RunExitedMsg{Err: engine.ErrDeviceUnavailable})
	assert.Equal(t, engine.PHASE_IDLE, m.phase)
	assert.Contains(t, m.View(), engine.ErrDeviceUnavailable.Error())

	m = update(t, m, RunExitedMsg{Err: context.Canceled})
	assert.NotContains(t, m.View(), "canceled")
}

func TestLogLinesAreCapped(t *testing.T) {
	m, _ := newTestModel()

	for i := range maxLogLines + 10 {
		m = update(t, m, logLineMsg(time.Duration(i).String()))
	}

	assert.Len(t, m.logLines, maxLogLines)
	assert.Equal(t, "10ns", m.logLines[0])
}

func TestBoardView(t *testing.T) {
	state := engine.NewGameState()
	state.SetActive(engine.CardAttrs{ID: "A1-094", Name: "Pikachu"})
	state.SetHand([]engine.HandCard{
		{CardID: "A1-001", Position: 0, Attrs: engine.CardAttrs{ID: "A1-001", Name: "Bulbasaur"}},
		{Position: 1},
	})
	state.MarkFailed("A1-001")

	view := boardView(state)
	assert.Contains(t, view, "Pikachu")
	assert.Contains(t, view, "Bulbasaur #0")
	assert.Contains(t, view, "<unknown #1>")
	assert.Contains(t, view, "Failed: A1-001")
}
