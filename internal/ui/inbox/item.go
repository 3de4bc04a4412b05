package inbox

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/theme"
)

// Item adapts a notification to list.Item.
type Item struct {
	model.Notification
}

// FilterValue implements list.Item.
func (i Item) FilterValue() string {
	return i.Title
}

// ItemDelegate renders one notification per line. selected holds the ids
// of the current multi-selection.
type ItemDelegate struct {
	selected map[string]bool
	now      func() time.Time
}

// NewItemDelegate returns a delegate that marks the ids in selected.
func NewItemDelegate(selected []string) ItemDelegate {
	set := make(map[string]bool, len(selected))
	for _, id := range selected {
		set[id] = true
	}
	return ItemDelegate{selected: set, now: time.Now}
}

// Height returns the height of each item in lines.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles item-level messages. No-op for this delegate.
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single notification row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, d.renderLine(it.Notification, index == m.Index(), m.Width()))
}

func (d ItemDelegate) renderLine(n model.Notification, atCursor bool, width int) string {
	mark := "[ ]"
	if d.selected[n.ID] {
		mark = theme.SelectedMarkStyle.Render("[x]")
	}

	dot := " "
	if n.Lifecycle.Status.IsUnread() {
		dot = lipgloss.NewStyle().Foreground(theme.ColorBlue).Render("●")
	}

	status := theme.StatusStyle(n.Lifecycle.Status).Render(string(n.Lifecycle.Status))
	pri := theme.PriorityStyle(n.Metadata.Priority).Render(theme.PriorityLabel(n.Metadata.Priority))
	kind := lipgloss.NewStyle().Foreground(theme.ColorMagenta).Render(typeLabel(n.Type))
	when := lipgloss.NewStyle().Foreground(theme.ColorGray).Render(relativeTime(n.CreatedAt, d.now()))

	title := n.Title
	if width > 0 {
		budget := width - 50
		if budget < 10 {
			budget = 10
		}
		title = truncate(title, budget)
	}

	line := fmt.Sprintf("%s %s %s %s %s %s  %s", mark, dot, pri, status, kind, title, when)

	if !n.Lifecycle.Status.IsUnread() {
		line = theme.DimmedStyle.Render(line)
	}
	if atCursor {
		return theme.CursorItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// typeLabel turns "lead_status_changed" into "lead status changed".
func typeLabel(t model.Type) string {
	return strings.ReplaceAll(string(t), "_", " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}
