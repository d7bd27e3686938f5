package console

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog/log"
)

// Messages the bridge sends into the console program
type (
	PhaseMsg engine.Phase
	StateMsg engine.GameState
	// RunExitedMsg is sent when the bot stops on its own or after a stop request
	RunExitedMsg struct{ Err error }

	CardNameRequestMsg struct {
		ID          string
		CapturePath string
		Deadline    time.Time
		reply       chan<- nameReply
	}
	CardOptionsRequestMsg struct {
		ID          string
		CapturePath string
		Options     []engine.CardOption
		Deadline    time.Time
		reply       chan<- optionReply
	}
	// RequestExpiredMsg closes a prompt the bot stopped waiting for
	RequestExpiredMsg struct{ ID string }
)

type nameReply struct {
	name string
	err  error
}

type optionReply struct {
	option engine.CardOption
	err    error
}

// Bridge carries operator requests and status updates from the bot goroutine
// to the console program. It implements engine.Operator and engine.Observer.
type Bridge struct {
	send        func(tea.Msg)
	capturesDir string
}

// NewBridge sends through send, usually (*tea.Program).Send. Card captures
// shown to the operator are written to capturesDir.
func NewBridge(send func(tea.Msg), capturesDir string) *Bridge {
	return &Bridge{send: send, capturesDir: capturesDir}
}

func (b *Bridge) PhaseChanged(phase engine.Phase) {
	b.send(PhaseMsg(phase))
}

func (b *Bridge) StateChanged(state engine.GameState) {
	b.send(StateMsg(state))
}

func (b *Bridge) RequestCardName(ctx context.Context, img image.Image) (string, error) {
	id := uuid.NewString()
	reply := make(chan nameReply, 1)
	deadline, _ := ctx.Deadline()

	b.send(CardNameRequestMsg{
		ID:          id,
		CapturePath: b.saveCapture(id, img),
		Deadline:    deadline,
		reply:       reply,
	})

	select {
	case <-ctx.Done():
		b.send(RequestExpiredMsg{ID: id})
		return "", ctx.Err()
	case r := <-reply:
		return r.name, r.err
	}
}

func (b *Bridge) PresentCardOptions(ctx context.Context, options []engine.CardOption, img image.Image) (engine.CardOption, error) {
	id := uuid.NewString()
	reply := make(chan optionReply, 1)
	deadline, _ := ctx.Deadline()

	b.send(CardOptionsRequestMsg{
		ID:          id,
		CapturePath: b.saveCapture(id, img),
		Options:     options,
		Deadline:    deadline,
		reply:       reply,
	})

	select {
	case <-ctx.Done():
		b.send(RequestExpiredMsg{ID: id})
		return engine.CardOption{}, ctx.Err()
	case r := <-reply:
		return r.option, r.err
	}
}

// saveCapture writes the card image as <id>.png and returns its path, or an
// empty path when it could not be written
func (b *Bridge) saveCapture(id string, img image.Image) string {
	if b.capturesDir == "" || img == nil {
		return ""
	}

	if err := os.MkdirAll(b.capturesDir, 0750); err != nil {
		log.Err(err).Msg("could not create captures dir")
		return ""
	}

	path := filepath.Join(b.capturesDir, id+".png")
	f, err := os.Create(path)
	if err != nil {
		log.Err(err).Msg("could not save card capture")
		return ""
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		log.Err(err).Msg("could not encode card capture")
		return ""
	}

	return path
}
