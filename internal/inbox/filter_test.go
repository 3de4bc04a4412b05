package inbox

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crm-notify/internal/model"
)

func TestSetFiltersClearsListBeforeFetching(t *testing.T) {
	data := append(notifs("d", 30, model.StatusDelivered), notifs("a", 4, model.StatusArchived)...)
	gw := &fakeGateway{data: data}
	s := newTestStore(gw, 10)
	f := NewFilterController(s)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	require.NoError(t, s.LoadMore(ctx))
	require.Len(t, s.Snapshot().Notifications, 20)

	started := make(chan struct{})
	release := make(chan struct{})
	gw.mu.Lock()
	gw.listHook = func(page, limit int, filters model.Filters) (*model.Page, error) {
		close(started)
		<-release
		gw.mu.Lock()
		defer gw.mu.Unlock()
		var out []model.Notification
		for _, n := range gw.data {
			if n.Lifecycle.Status == filters.Status {
				out = append(out, n)
			}
		}
		return paginate(out, page, limit), nil
	}
	gw.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- f.SetFilters(ctx, FilterPatch{Status: Ptr(model.StatusArchived)}) }()
	<-started

	st := s.Snapshot()
	assert.Empty(t, st.Notifications, "list cleared while the new page loads")
	assert.True(t, st.Loading)
	assert.Equal(t, PageState{}, st.Page)

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("filter resync never completed")
	}

	st = s.Snapshot()
	require.Len(t, st.Notifications, 4)
	for _, n := range st.Notifications {
		assert.Equal(t, model.StatusArchived, n.Lifecycle.Status)
	}
	assert.Equal(t, 1, st.Page.CurrentPage)
	assert.False(t, st.Loading)
}

func TestSetFiltersMergesPatch(t *testing.T) {
	gw := &fakeGateway{}
	s := newTestStore(gw, 10)
	f := NewFilterController(s)
	ctx := context.Background()

	require.NoError(t, f.SetFilters(ctx, FilterPatch{Status: Ptr(model.StatusRead)}))
	require.NoError(t, f.SetFilters(ctx, FilterPatch{Type: Ptr(model.TypeFollowUpDue)}))
	assert.Equal(t, model.Filters{Status: model.StatusRead, Type: model.TypeFollowUpDue}, f.Active())

	require.NoError(t, f.SetFilters(ctx, FilterPatch{Status: Ptr(model.Status(""))}))
	assert.Equal(t, model.Filters{Type: model.TypeFollowUpDue}, f.Active())
	assert.Equal(t, f.Active(), s.Filters())
}

func TestFilterChangeClearsSelection(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 3, model.StatusDelivered)}
	s := newTestStore(gw, 10)
	f := NewFilterController(s)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	s.Selection().SelectAll([]string{"n0", "n1"})

	require.NoError(t, f.SetFilters(ctx, FilterPatch{Priority: Ptr(model.PriorityUrgent)}))
	assert.Zero(t, s.Selection().Len())
}

func TestResetRemovesEveryConstraint(t *testing.T) {
	gw := &fakeGateway{data: []model.Notification{
		notif("a", model.StatusRead),
		notif("b", model.StatusDelivered),
	}}
	s := newTestStore(gw, 10)
	f := NewFilterController(s)
	ctx := context.Background()

	require.NoError(t, f.SetFilters(ctx, FilterPatch{Status: Ptr(model.StatusRead)}))
	assert.Equal(t, []string{"a"}, s.LoadedIDs())

	require.NoError(t, f.Reset(ctx))
	assert.True(t, f.Active().IsZero())
	assert.Equal(t, []string{"a", "b"}, s.LoadedIDs())
}

func TestSameFiltersRefreshKeepsListOnFailure(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 2, model.StatusDelivered)}
	s := newTestStore(gw, 10)
	f := NewFilterController(s)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))

	gw.mu.Lock()
	gw.listHook = func(int, int, model.Filters) (*model.Page, error) { return nil, errBackendDown }
	gw.mu.Unlock()

	require.Error(t, f.SetFilters(ctx, FilterPatch{}))
	assert.Len(t, s.Snapshot().Notifications, 2)
}

func byStatus(gw *fakeGateway, page, limit int, filters model.Filters) *model.Page {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	var out []model.Notification
	for _, n := range gw.data {
		if filters.Status == "" || n.Lifecycle.Status == filters.Status {
			out = append(out, n)
		}
	}
	return paginate(out, page, limit)
}

func TestRefreshKeepsFilterScope(t *testing.T) {
	gw := &fakeGateway{data: append(notifs("d", 3, model.StatusDelivered), notifs("r", 2, model.StatusRead)...)}
	s := newTestStore(gw, 10)
	f := NewFilterController(s)
	ctx := context.Background()

	require.NoError(t, f.SetFilters(ctx, FilterPatch{Status: Ptr(model.StatusRead)}))
	require.NoError(t, s.Refresh(ctx))

	assert.Equal(t, model.Filters{Status: model.StatusRead}, s.Filters())
	assert.Equal(t, f.Active(), s.Filters())
	assert.Equal(t, []string{"r0", "r1"}, s.LoadedIDs())
}

func TestRefreshInFlightAcrossFilterChangeIsDiscarded(t *testing.T) {
	gw := &fakeGateway{data: append(notifs("d", 3, model.StatusDelivered), notifs("r", 2, model.StatusRead)...)}
	s := newTestStore(gw, 10)
	f := NewFilterController(s)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	gw.mu.Lock()
	gw.listHook = func(page, limit int, filters model.Filters) (*model.Page, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return byStatus(gw, page, limit, filters), nil
	}
	gw.mu.Unlock()

	refreshed := make(chan error, 1)
	go func() { refreshed <- s.Refresh(ctx) }()
	<-started

	require.NoError(t, f.SetFilters(ctx, FilterPatch{Status: Ptr(model.StatusRead)}))
	close(release)
	assert.ErrorIs(t, <-refreshed, ErrStaleResponse)

	assert.Equal(t, model.Filters{Status: model.StatusRead}, s.Filters())
	assert.Equal(t, f.Active(), s.Filters())
	assert.Equal(t, []string{"r0", "r1"}, s.LoadedIDs())
}
