package rendering

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/nathanieltooley/pocketbot/global"
)

var (
	HighlightedColor = lipgloss.Color("33")
	MutedColor       = lipgloss.Color("245")
	ErrorColor       = lipgloss.Color("196")
	RunningColor     = lipgloss.Color("42")
	WarningColor     = lipgloss.Color("214")

	PanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder(), true).Padding(0, 1)
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(HighlightedColor)
	MutedStyle = lipgloss.NewStyle().Foreground(MutedColor)
	ErrorStyle = lipgloss.NewStyle().Foreground(ErrorColor)

	HighlightedItemStyle = lipgloss.NewStyle().PaddingLeft(2).Foreground(HighlightedColor)
	ItemStyle            = lipgloss.NewStyle().PaddingLeft(4)
)

func Center(width int, height int, text string) string {
	return lipgloss.PlaceVertical(height, lipgloss.Center, lipgloss.PlaceHorizontal(width, lipgloss.Center, text))
}

func GlobalCenter(text string) string {
	return Center(global.TERM_WIDTH, global.TERM_HEIGHT, text)
}

// PhaseStyle colors the orchestrator phase in the status bar
func PhaseStyle(phase engine.Phase) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)

	switch phase {
	case engine.PHASE_IDLE:
		return style.Foreground(MutedColor)
	case engine.PHASE_CONNECTING:
		return style.Foreground(WarningColor)
	case engine.PHASE_IN_TURN_LOOP:
		return style.Foreground(RunningColor)
	default:
		return style.Foreground(HighlightedColor)
	}
}
