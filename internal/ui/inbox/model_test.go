package inbox

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crm-notify/internal/inbox"
	"github.com/nhle/crm-notify/internal/model"
)

func note(id string, status model.Status) model.Notification {
	return model.Notification{
		ID:        id,
		Type:      model.TypeBookingCreated,
		Title:     "Booking " + id,
		Lifecycle: model.Lifecycle{Status: status},
		Metadata:  model.Metadata{Priority: model.PriorityHigh},
	}
}

func TestSetStateKeepsCursorOnSameNotification(t *testing.T) {
	m := New(100, 20)
	m.SetState(inbox.State{Notifications: []model.Notification{
		note("a", model.StatusDelivered),
		note("b", model.StatusDelivered),
		note("c", model.StatusDelivered),
	}})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})

	cur, ok := m.Current()
	require.True(t, ok)
	require.Equal(t, "c", cur.ID)
	assert.True(t, m.AtEnd())

	// A new record arrives at the top; the cursor follows "c".
	m.SetState(inbox.State{Notifications: []model.Notification{
		note("z", model.StatusDelivered),
		note("a", model.StatusDelivered),
		note("b", model.StatusDelivered),
		note("c", model.StatusDelivered),
	}})
	cur, _ = m.Current()
	assert.Equal(t, "c", cur.ID)
}

func TestEmptyStateMessages(t *testing.T) {
	m := New(80, 10)

	m.SetState(inbox.State{})
	assert.Contains(t, m.View(), "all caught up")

	m.SetState(inbox.State{Filters: model.Filters{Status: model.StatusArchived}})
	assert.Contains(t, m.View(), "No notifications match")

	m.SetState(inbox.State{Loading: true})
	assert.Contains(t, m.View(), "Loading notifications")
}

func TestFooterShowsPagingAndSelection(t *testing.T) {
	m := New(100, 20)
	m.SetState(inbox.State{
		Notifications: []model.Notification{note("a", model.StatusDelivered), note("b", model.StatusRead)},
		Selected:      []string{"a"},
		Page:          inbox.PageState{CurrentPage: 1, TotalPages: 3, HasMore: true},
	})

	view := m.View()
	assert.Contains(t, view, "2 loaded · page 1/3")
	assert.Contains(t, view, "1 selected")
	assert.Contains(t, view, "n for more")
}

func TestRenderLineMarksSelectionAndUnread(t *testing.T) {
	d := NewItemDelegate([]string{"a"})
	d.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	n := note("a", model.StatusDelivered)
	n.CreatedAt = time.Date(2026, 3, 1, 11, 15, 0, 0, time.UTC)
	line := d.renderLine(n, false, 120)

	assert.Contains(t, line, "[x]")
	assert.Contains(t, line, "●")
	assert.Contains(t, line, "P2")
	assert.Contains(t, line, "booking created")
	assert.Contains(t, line, "45m ago")

	other := d.renderLine(note("b", model.StatusRead), false, 120)
	assert.Contains(t, other, "[ ]")
	assert.False(t, strings.Contains(other, "●"))
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{2 * 24 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "Feb 08"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, relativeTime(now.Add(-tt.ago), now))
	}
	assert.Empty(t, relativeTime(time.Time{}, now))
}
