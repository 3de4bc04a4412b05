package inbox

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crm-notify/internal/inbox"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/theme"
)

// footerHeight covers the detail line and the paging line under the list.
const footerHeight = 3

// Model is the notification list view. It renders whatever inbox.State
// it was last given and never mutates the store itself.
type Model struct {
	list    list.Model
	spinner spinner.Model
	state   inbox.State
	width   int
	height  int
}

// New creates a new inbox list model.
func New(width, height int) Model {
	l := list.New([]list.Item{}, NewItemDelegate(nil), width, max(height-footerHeight, 1))
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ForceQuit.SetEnabled(false)
	l.KeyMap.ShowFullHelp.SetEnabled(false)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	return Model{
		list:    l,
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// SpinnerTick starts the loading spinner animation.
func (m Model) SpinnerTick() tea.Cmd {
	return m.spinner.Tick
}

// SetState replaces the rendered state. The cursor stays on the same
// notification when it is still loaded.
func (m *Model) SetState(st inbox.State) tea.Cmd {
	cursorID := ""
	if n, ok := m.Current(); ok {
		cursorID = n.ID
	}

	m.state = st
	m.list.SetDelegate(NewItemDelegate(st.Selected))

	items := make([]list.Item, len(st.Notifications))
	cursor := 0
	for i, n := range st.Notifications {
		items[i] = Item{Notification: n}
		if n.ID == cursorID {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(cursor)
	}
	return cmd
}

// State returns the state last passed to SetState.
func (m Model) State() inbox.State {
	return m.state
}

// Current returns the notification under the cursor.
func (m Model) Current() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// AtEnd reports whether the cursor sits on the last loaded notification.
func (m Model) AtEnd() bool {
	n := len(m.list.Items())
	return n > 0 && m.list.Index() == n-1
}

// Update forwards navigation keys to the list and ticks the spinner.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !m.state.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the list, the focused notification's message and the
// paging line.
func (m Model) View() string {
	if len(m.state.Notifications) == 0 {
		return m.renderEmpty()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.list.View(),
		m.renderDetail(),
		m.renderFooter(),
	)
}

func (m Model) renderEmpty() string {
	var msg string
	switch {
	case m.state.Loading:
		msg = m.spinner.View() + " Loading notifications..."
	case !m.state.Filters.IsZero():
		msg = "No notifications match the active filters. Press F to reset."
	default:
		msg = "You're all caught up."
	}
	return lipgloss.NewStyle().
		Width(m.width).
		Height(max(m.height, 1)).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray).
		Render(msg)
}

func (m Model) renderDetail() string {
	n, ok := m.Current()
	if !ok {
		return ""
	}
	var parts []string
	if n.Sender != nil && n.Sender.Name != "" {
		parts = append(parts, "from "+n.Sender.Name)
	}
	if n.Message != "" {
		parts = append(parts, n.Message)
	}
	if n.Metadata.ActionURL != "" {
		parts = append(parts, n.Metadata.ActionURL)
	}
	return theme.HelpStyle.
		Width(m.width).
		MaxHeight(2).
		PaddingLeft(2).
		Render(strings.Join(parts, " · "))
}

func (m Model) renderFooter() string {
	p := m.state.Page
	line := fmt.Sprintf("%d loaded · page %d/%d", len(m.state.Notifications), p.CurrentPage, max(p.TotalPages, 1))
	if len(m.state.Selected) > 0 {
		line += fmt.Sprintf(" · %d selected", len(m.state.Selected))
	}
	switch {
	case m.state.Loading:
		line += " · " + m.spinner.View()
	case p.HasMore:
		line += " · n for more"
	}
	return lipgloss.NewStyle().Foreground(theme.ColorGray).PaddingLeft(2).Render(line)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, max(height-footerHeight, 1))
}
