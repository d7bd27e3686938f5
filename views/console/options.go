package console

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/nathanieltooley/pocketbot/global"
	"github.com/nathanieltooley/pocketbot/rendering"
	"github.com/samber/lo"
)

type optionItem struct {
	option engine.CardOption
}

func (i optionItem) Title() string {
	return fmt.Sprintf("%s (%s)", i.option.Attrs.Name, i.option.Attrs.ID)
}

func (i optionItem) Description() string {
	attrs := i.option.Attrs
	art := "no art"
	if i.option.Art != nil {
		art = fmt.Sprintf("similarity %.2f", i.option.Score)
	}
	return fmt.Sprintf("%s %s, %s", attrs.SetName, attrs.Rarity, art)
}

func (i optionItem) FilterValue() string { return i.option.Attrs.Name }

// optionsModel lets the operator pick between catalog cards sharing a name,
// best art match first
type optionsModel struct {
	request CardOptionsRequestMsg
	list    list.Model
	now     time.Time

	done bool
}

func newOptions(request CardOptionsRequestMsg) (optionsModel, tea.Cmd) {
	items := lo.Map(request.Options, func(option engine.CardOption, _ int) list.Item {
		return optionItem{option: option}
	})

	delegate := rendering.NewSimpleListDelegate()
	delegate.ShowDescriptions(true)

	l := list.New(items, delegate, 60, min(len(items)*2+4, 20))
	l.Title = "Which card is this?"
	l.Styles.Title = rendering.TitleStyle
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)

	return optionsModel{
		request: request,
		list:    l,
		now:     time.Now(),
	}, countdown(request.ID)
}

func (o optionsModel) answer(reply optionReply) optionsModel {
	if !o.done {
		o.request.reply <- reply
		o.done = true
	}
	return o
}

func (o optionsModel) Update(msg tea.Msg) (optionsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case countdownMsg:
		if msg.id != o.request.ID {
			return o, nil
		}
		o.now = msg.t
		if expired(o.request.Deadline, o.now) {
			return o.answer(optionReply{err: engine.ErrOperatorCancelled}), nil
		}
		return o, countdown(o.request.ID)
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, global.SelectKey):
			item, ok := o.list.SelectedItem().(optionItem)
			if !ok {
				return o.answer(optionReply{err: engine.ErrOperatorCancelled}), nil
			}
			return o.answer(optionReply{option: item.option}), nil
		case key.Matches(msg, global.BackKey):
			return o.answer(optionReply{err: engine.ErrOperatorCancelled}), nil
		}
	}

	var cmd tea.Cmd
	o.list, cmd = o.list.Update(msg)
	return o, cmd
}

func (o optionsModel) View() string {
	lines := []string{o.list.View()}
	if o.request.CapturePath != "" {
		lines = append(lines, rendering.MutedStyle.Render("capture: "+o.request.CapturePath))
	}
	if left := remaining(o.request.Deadline, o.now); left != "" {
		lines = append(lines, rendering.MutedStyle.Render(left))
	}

	return rendering.PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
