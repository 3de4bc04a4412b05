package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crm-notify/internal/theme"
)

// Layout splits the terminal into a one-line header, the content area
// and a one-line status bar.
type Layout struct {
	Width  int
	Height int
}

const chromeHeight = 2

// NewLayout creates a Layout for a terminal of the given size.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentHeight is the number of rows left between header and status bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-chromeHeight, 0)
}

// RenderHeader puts the title and counters on the left and the sync
// status on the right.
func (l Layout) RenderHeader(left, right string) string {
	return l.bar(theme.HeaderStyle, left, right)
}

// RenderStatusBar puts key hints on the left and the latest notice on
// the right.
func (l Layout) RenderStatusBar(hints, message string) string {
	return l.bar(theme.StatusBarStyle, hints, message)
}

// bar spreads left and right across the full width, painting the gap
// with the style's background.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	lhs := style.Render(left)
	rhs := ""
	if right != "" {
		rhs = style.Render(right)
	}
	gap := max(l.Width-lipgloss.Width(lhs)-lipgloss.Width(rhs), 0)
	pad := lipgloss.NewStyle().Background(style.GetBackground()).Width(gap).Render("")
	return lhs + pad + rhs
}

// RenderWithFrame stacks header, content and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
