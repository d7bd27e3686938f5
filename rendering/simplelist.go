package rendering

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type simpleDelegate struct {
	HighlightedItemStyle lipgloss.Style
	ItemStyle            lipgloss.Style
	DescriptionStyle     lipgloss.Style

	spacing          int
	showDescriptions bool
}

func (d simpleDelegate) Height() int {
	if d.showDescriptions {
		return 2
	}
	return 1
}
func (d simpleDelegate) Spacing() int                            { return d.spacing }
func (d simpleDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws the item's title, or its filter value for plain items, with a
// muted description line under it when enabled
func (d simpleDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	title := listItem.FilterValue()
	description := ""
	if item, ok := listItem.(list.DefaultItem); ok {
		title = item.Title()
		description = item.Description()
	}

	if index == m.Index() {
		title = d.HighlightedItemStyle.Render("> " + title)
	} else {
		title = d.ItemStyle.Render(title)
	}

	if !d.showDescriptions {
		fmt.Fprint(w, title)
		return
	}
	fmt.Fprint(w, lipgloss.JoinVertical(lipgloss.Left, title, d.DescriptionStyle.Render(description)))
}

func (d *simpleDelegate) SetSpacing(spacing int) {
	d.spacing = spacing
}

func (d *simpleDelegate) ShowDescriptions(show bool) {
	d.showDescriptions = show
}

func NewSimpleListDelegate() simpleDelegate {
	return simpleDelegate{
		HighlightedItemStyle: HighlightedItemStyle,
		ItemStyle:            ItemStyle,
		DescriptionStyle:     MutedStyle.PaddingLeft(4),
	}
}
