package console

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/nathanieltooley/pocketbot/global"
	"github.com/nathanieltooley/pocketbot/rendering"
	"github.com/samber/lo"
)

const maxLogLines = 500

// Controls starts and stops the bot
type Controls interface {
	Start(ctx context.Context) bool
	Stop()
	Running() bool
}

type logLineMsg string

// waitForLog delivers the next line from the log sink
func waitForLog(lines <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-lines
		if !ok {
			return nil
		}
		return logLineMsg(line)
	}
}

type keyMap struct{}

func (keyMap) ShortHelp() []key.Binding {
	return []key.Binding{global.StartKey, global.StopKey, global.QuitKey}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// Model is the operator console: bot status, the board as the bot sees it,
// the live log and any prompt the bot is waiting on
type Model struct {
	ctx      context.Context
	controls Controls
	logs     <-chan string

	phase   engine.Phase
	state   engine.GameState
	lastErr error

	logLines []string
	logView  viewport.Model
	help     help.Model

	prompt  *promptModel
	options *optionsModel

	width, height int
}

func NewModel(ctx context.Context, controls Controls, logs <-chan string) Model {
	width := max(global.TERM_WIDTH, 80)
	height := max(global.TERM_HEIGHT, 24)

	m := Model{
		ctx:      ctx,
		controls: controls,
		logs:     logs,
		state:    engine.NewGameState(),
		help:     help.New(),
		width:    width,
		height:   height,
	}
	m.logView = viewport.New(width-4, m.logHeight())

	return m
}

func (m Model) logHeight() int {
	return max(m.height/2-4, 5)
}

func (m Model) Init() tea.Cmd {
	if m.logs == nil {
		return nil
	}
	return waitForLog(m.logs)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logView.Width = msg.Width - 4
		m.logView.Height = m.logHeight()
		return m, nil
	case logLineMsg:
		m.appendLog(string(msg))
		return m, waitForLog(m.logs)
	case PhaseMsg:
		m.phase = engine.Phase(msg)
		return m, nil
	case StateMsg:
		m.state = engine.GameState(msg)
		return m, nil
	case RunExitedMsg:
		m.lastErr = msg.Err
		m.phase = engine.PHASE_IDLE
		return m, nil
	case CardNameRequestMsg:
		prompt, cmd := newPrompt(msg)
		m.prompt = &prompt
		return m, cmd
	case CardOptionsRequestMsg:
		options, cmd := newOptions(msg)
		m.options = &options
		return m, cmd
	case RequestExpiredMsg:
		if m.prompt != nil && m.prompt.request.ID == msg.ID {
			m.prompt = nil
		}
		if m.options != nil && m.options.request.ID == msg.ID {
			m.options = nil
		}
		return m, nil
	}

	// an open prompt takes the keyboard
	if m.prompt != nil {
		prompt, cmd := m.prompt.Update(msg)
		m.prompt = &prompt
		if prompt.done {
			m.prompt = nil
		}
		return m, cmd
	}
	if m.options != nil {
		options, cmd := m.options.Update(msg)
		m.options = &options
		if options.done {
			m.options = nil
		}
		return m, cmd
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, global.QuitKey):
			m.controls.Stop()
			return m, tea.Quit
		case key.Matches(msg, global.StartKey):
			if m.controls.Start(m.ctx) {
				m.lastErr = nil
			}
		case key.Matches(msg, global.StopKey):
			m.controls.Stop()
		default:
			var cmd tea.Cmd
			m.logView, cmd = m.logView.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m *Model) appendLog(line string) {
	m.logLines = append(m.logLines, line)
	if len(m.logLines) > maxLogLines {
		m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
	}

	m.logView.SetContent(strings.Join(m.logLines, "\n"))
	m.logView.GotoBottom()
}

func (m Model) View() string {
	sections := []string{m.statusView()}

	switch {
	case m.prompt != nil:
		sections = append(sections, m.prompt.View())
	case m.options != nil:
		sections = append(sections, m.options.View())
	default:
		sections = append(sections, boardView(m.state))
	}

	sections = append(sections,
		rendering.PanelStyle.Width(m.width-2).Render(m.logView.View()),
		m.help.View(keyMap{}),
	)

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) statusView() string {
	running := rendering.MutedStyle.Render("stopped")
	if m.controls.Running() {
		running = lipgloss.NewStyle().Foreground(rendering.RunningColor).Render("running")
	}

	status := fmt.Sprintf("%s  %s  %s",
		rendering.TitleStyle.Render("PocketBot"),
		running,
		rendering.PhaseStyle(m.phase).Render(m.phase.String()),
	)

	if m.lastErr != nil && !errors.Is(m.lastErr, context.Canceled) {
		status += "  " + rendering.ErrorStyle.Render(m.lastErr.Error())
	}

	return status
}

func pokemonLine(p *engine.PokemonInstance) string {
	if p == nil {
		return rendering.MutedStyle.Render("empty")
	}
	return fmt.Sprintf("%s  energy %d", p.Name, p.EnergyCount)
}

// boardView renders the hand and board as the bot last saw them
func boardView(state engine.GameState) string {
	handSize := "?"
	if size, ok := state.ExpectedHandSize(); ok {
		handSize = fmt.Sprint(size)
	}

	hand := lo.Map(state.Hand, func(card engine.HandCard, _ int) string {
		return card.String()
	})
	if len(hand) == 0 {
		hand = []string{rendering.MutedStyle.Render("unknown")}
	}

	bench := make([]string, len(state.Bench))
	for i, p := range state.Bench {
		bench[i] = fmt.Sprintf("%d. %s", i+1, pokemonLine(p))
	}

	turn := "opponent or waiting"
	if state.IsFirstTurn {
		turn = "first turn"
	}
	if state.GoFirst {
		turn += ", went first"
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		rendering.TitleStyle.Render("Active"),
		pokemonLine(state.Active),
		"",
		rendering.TitleStyle.Render("Bench"),
		lipgloss.JoinVertical(lipgloss.Left, bench...),
	)

	right := lipgloss.JoinVertical(lipgloss.Left,
		rendering.TitleStyle.Render(fmt.Sprintf("Hand (%s)", handSize)),
		lipgloss.JoinVertical(lipgloss.Left, hand...),
		"",
		fmt.Sprintf("Trainers played: %d/%d", state.PlayedTrainerCards, engine.MaxTrainerCardsPerTurn),
		fmt.Sprintf("Turn: %s", turn),
	)
	if len(state.FailedCards) > 0 {
		right = lipgloss.JoinVertical(lipgloss.Left, right,
			rendering.ErrorStyle.Render("Failed: "+strings.Join(state.FailedCards, ", ")))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		rendering.PanelStyle.Width(36).Render(left),
		rendering.PanelStyle.Width(44).Render(right),
	)
}
