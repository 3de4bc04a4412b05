package signin

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crm-notify/internal/theme"
)

// SubmittedMsg carries the token the user entered.
type SubmittedMsg struct {
	Token    string
	Remember bool
}

// CancelMsg is dispatched when the user aborts sign-in.
type CancelMsg struct{}

type formBindings struct {
	token    string
	remember bool
}

// Model prompts for an API token while the session has none.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	reason string
	width  int
	height int
}

// New creates a new sign-in model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{remember: true},
		width:  width,
		height: height,
	}
}

// Start opens the prompt. reason is shown above the form, e.g. after the
// server rejected the previous token.
func (m *Model) Start(reason string) tea.Cmd {
	m.reason = reason
	m.fb.token = ""
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API token").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("token is required")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Remember in system keyring?").
				Value(&m.fb.remember),
		),
	).WithWidth(60)
	return m.form.Init()
}

// Update handles messages for the sign-in form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.form = nil
		out := SubmittedMsg{Token: strings.TrimSpace(m.fb.token), Remember: m.fb.remember}
		return m, func() tea.Msg { return out }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// View renders the prompt centered in the content area.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render("Sign in")
	parts := []string{title}
	if m.reason != "" {
		parts = append(parts, theme.ErrorStyle.Render(m.reason))
	}
	parts = append(parts, "", m.form.View())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		theme.PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...)))
}

// SetSize updates the prompt dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}
