package console

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/nathanieltooley/pocketbot/global"
	"github.com/nathanieltooley/pocketbot/rendering"
)

type countdownMsg struct {
	id string
	t  time.Time
}

func countdown(id string) tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return countdownMsg{id: id, t: t}
	})
}

// remaining formats the time left before deadline, or nothing without one
func remaining(deadline time.Time, now time.Time) string {
	if deadline.IsZero() {
		return ""
	}

	left := max(deadline.Sub(now).Round(time.Second), 0)
	return fmt.Sprintf("%ds left", int(left.Seconds()))
}

func expired(deadline time.Time, now time.Time) bool {
	return !deadline.IsZero() && !now.Before(deadline)
}

// promptModel asks the operator for the name of an unrecognized card
type promptModel struct {
	request CardNameRequestMsg
	input   textinput.Model
	now     time.Time

	done bool
}

func newPrompt(request CardNameRequestMsg) (promptModel, tea.Cmd) {
	input := textinput.New()
	input.Placeholder = "card name"
	input.CharLimit = 64
	input.Width = 40
	focusCmd := input.Focus()

	return promptModel{
		request: request,
		input:   input,
		now:     time.Now(),
	}, tea.Batch(focusCmd, textinput.Blink, countdown(request.ID))
}

func (p promptModel) answer(reply nameReply) promptModel {
	if !p.done {
		p.request.reply <- reply
		p.done = true
	}
	return p
}

func (p promptModel) Update(msg tea.Msg) (promptModel, tea.Cmd) {
	switch msg := msg.(type) {
	case countdownMsg:
		if msg.id != p.request.ID {
			return p, nil
		}
		p.now = msg.t
		if expired(p.request.Deadline, p.now) {
			return p.answer(nameReply{err: engine.ErrOperatorCancelled}), nil
		}
		return p, countdown(p.request.ID)
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, global.SelectKey):
			return p.answer(nameReply{name: p.input.Value()}), nil
		case key.Matches(msg, global.BackKey):
			return p.answer(nameReply{err: engine.ErrOperatorCancelled}), nil
		}
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p promptModel) View() string {
	lines := []string{
		rendering.TitleStyle.Render("Unknown card"),
		"Type the card name, enter to submit, esc to skip.",
	}
	if p.request.CapturePath != "" {
		lines = append(lines, rendering.MutedStyle.Render("capture: "+p.request.CapturePath))
	}
	lines = append(lines, "", p.input.View())
	if left := remaining(p.request.Deadline, p.now); left != "" {
		lines = append(lines, "", rendering.MutedStyle.Render(left))
	}

	return rendering.PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
