package filter

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crm-notify/internal/inbox"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/theme"
)

// SubmittedMsg is dispatched when the user confirms the filter form.
type SubmittedMsg struct {
	Patch inbox.FilterPatch
}

// CancelMsg is dispatched when the user leaves the form without applying.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	status   model.Status
	kind     model.Type
	priority model.Priority
}

// Model is the Bubble Tea model for the filter form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates a new filter form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// Start opens the form pre-filled with the active filters.
func (m *Model) Start(active model.Filters) tea.Cmd {
	m.fb.status = active.Status
	m.fb.kind = active.Type
	m.fb.priority = active.Priority
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the filter form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.form = nil
		return m, m.submit()
	}
	if m.form.State == huh.StateAborted {
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// View renders the filter form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Filter Notifications") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[model.Status]().
				Title("Status").
				Options(options(model.AllStatuses)...).
				Value(&m.fb.status),
			huh.NewSelect[model.Type]().
				Title("Type").
				Options(options(model.AllTypes)...).
				Value(&m.fb.kind),
			huh.NewSelect[model.Priority]().
				Title("Priority").
				Options(options(model.AllPriorities)...).
				Value(&m.fb.priority),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

// options builds a select list with a leading "Any" entry that clears
// the constraint.
func options[T ~string](values []T) []huh.Option[T] {
	opts := make([]huh.Option[T], 0, len(values)+1)
	opts = append(opts, huh.NewOption[T]("Any", ""))
	for _, v := range values {
		opts = append(opts, huh.NewOption(label(string(v)), v))
	}
	return opts
}

func label(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (m Model) submit() tea.Cmd {
	patch := inbox.FilterPatch{
		Status:   inbox.Ptr(m.fb.status),
		Type:     inbox.Ptr(m.fb.kind),
		Priority: inbox.Ptr(m.fb.priority),
	}
	return func() tea.Msg { return SubmittedMsg{Patch: patch} }
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}
