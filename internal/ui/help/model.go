package help

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crm-notify/internal/keys"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/theme"
)

var sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)

// Model is the help overlay: every binding plus a legend of status colors.
type Model struct {
	keys          *keys.KeyMap
	bindings      help.Model
	width, height int
}

func New(keys *keys.KeyMap, width, height int) Model {
	b := help.New()
	b.ShowAll = true
	m := Model{keys: keys, bindings: b}
	m.SetSize(width, height)
	return m
}

func (m Model) View() string {
	statuses := make([]string, len(model.AllStatuses))
	for i, s := range model.AllStatuses {
		statuses[i] = theme.StatusStyle(s).Render(string(s))
	}

	body := strings.Join([]string{
		sectionStyle.Render("Keyboard Shortcuts"),
		m.bindings.View(m.keys),
		"",
		sectionStyle.Render("Status"),
		strings.Join(statuses, " "),
	}, "\n")

	return theme.PanelStyle.
		Width(max(m.width-4, 0)).
		Height(max(m.height-4, 0)).
		Render(body)
}

func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	m.bindings.Width = max(width-4, 0)
}
