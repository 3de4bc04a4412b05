package detail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crm-notify/internal/inbox"
	"github.com/nhle/crm-notify/internal/keys"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// ActionMsg asks the parent to run a bulk action on the shown notification.
type ActionMsg struct {
	Action inbox.Action
	ID     string
}

// Model shows a single notification in a scrollable viewport.
type Model struct {
	notification *model.Notification
	viewport     viewport.Model
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, max(height-2, 1))
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// SetNotification replaces the shown notification and scrolls to the top.
func (m *Model) SetNotification(n model.Notification) {
	m.notification = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Refresh re-renders from the latest copy of the shown notification in
// items. It reports false when the notification is no longer loaded.
func (m *Model) Refresh(items []model.Notification) bool {
	if m.notification == nil {
		return false
	}
	for _, n := range items {
		if n.ID == m.notification.ID {
			m.notification = &n
			m.viewport.SetContent(m.renderContent())
			return true
		}
	}
	return false
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return BackMsg{} }
		case key.Matches(msg, m.keys.MarkRead):
			return m, m.action(inbox.ActionMarkRead)
		case key.Matches(msg, m.keys.Archive):
			return m, m.action(inbox.ActionArchive)
		case key.Matches(msg, m.keys.Delete):
			return m, m.action(inbox.ActionDelete)
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) action(a inbox.Action) tea.Cmd {
	if m.notification == nil {
		return nil
	}
	id := m.notification.ID
	return func() tea.Msg { return ActionMsg{Action: a, ID: id} }
}

// View renders the detail view.
func (m Model) View() string {
	if m.notification == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

// renderContent builds the full detail content string for the viewport.
func (m Model) renderContent() string {
	n := m.notification
	if n == nil {
		return ""
	}

	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(n.Title))

	badgeLine := lipgloss.JoinHorizontal(lipgloss.Top,
		theme.StatusStyle(n.Lifecycle.Status).Render(string(n.Lifecycle.Status)),
		"  ",
		theme.PriorityStyle(n.Metadata.Priority).Render(string(n.Metadata.Priority)),
		"  ",
		lipgloss.NewStyle().Foreground(theme.ColorMagenta).Render(strings.ReplaceAll(string(n.Type), "_", " ")),
	)
	sections = append(sections, badgeLine, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Width(12)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		if value == "" {
			return
		}
		sections = append(sections, metaStyle.Render(label+":")+valStyle.Render(value))
	}

	if n.Sender != nil {
		sender := n.Sender.Name
		if n.Sender.Email != "" {
			sender = fmt.Sprintf("%s <%s>", sender, n.Sender.Email)
		}
		row("From", strings.TrimSpace(sender))
	}
	if !n.CreatedAt.IsZero() {
		row("Created", n.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if n.Lifecycle.ReadAt != nil {
		read := n.Lifecycle.ReadAt.Local().Format("2006-01-02 15:04")
		if n.Lifecycle.ReadFromDevice != "" {
			read += " on " + n.Lifecycle.ReadFromDevice
		}
		row("Read", read)
	}
	row("Link", n.Metadata.ActionURL)

	refs := make([]string, 0, len(n.Metadata.Refs))
	for k := range n.Metadata.Refs {
		refs = append(refs, k)
	}
	sort.Strings(refs)
	for _, k := range refs {
		row(k, n.Metadata.Refs[k])
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	sections = append(sections, "", sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1))), "")

	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("No message")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-4, 20)).Render(body))

	return strings.Join(sections, "\n")
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = max(height-2, 1)
	if m.notification != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
