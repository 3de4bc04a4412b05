package inbox

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crm-notify/internal/model"
)

func newTestStore(gw *fakeGateway, pageSize int) *Store {
	return NewStore(gw, NewSelection(), StoreOptions{PageSize: pageSize})
}

func TestAdjustUnreadCountNeverNegative(t *testing.T) {
	s := newTestStore(&fakeGateway{}, 10)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		got := s.AdjustUnreadCount(rng.Intn(11) - 6)
		require.GreaterOrEqual(t, got, 0)
		require.Equal(t, got, s.UnreadCount())
	}

	s.AdjustUnreadCount(-1000)
	assert.Equal(t, 0, s.UnreadCount())
}

func TestResyncAppendsNextPageAndReplacesOnPageOne(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 5, model.StatusDelivered)}
	s := newTestStore(gw, 3)
	ctx := context.Background()

	require.NoError(t, s.Resync(ctx, 1, model.Filters{}))
	require.NoError(t, s.Resync(ctx, 2, model.Filters{}))

	st := s.Snapshot()
	assert.Equal(t, []string{"n0", "n1", "n2", "n3", "n4"}, ids(st.Notifications))
	assert.Equal(t, PageState{CurrentPage: 2, TotalPages: 2, HasMore: false}, st.Page)

	gw.mu.Lock()
	gw.data = notifs("m", 2, model.StatusDelivered)
	gw.mu.Unlock()

	require.NoError(t, s.Resync(ctx, 1, model.Filters{}))
	st = s.Snapshot()
	assert.Equal(t, []string{"m0", "m1"}, ids(st.Notifications))
	assert.Equal(t, 1, st.Page.CurrentPage)
}

func TestResyncRefusesOutOfSequencePages(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 10, model.StatusDelivered)}
	s := newTestStore(gw, 2)
	ctx := context.Background()

	assert.ErrorIs(t, s.Resync(ctx, 2, model.Filters{}), ErrOutOfSequence)

	require.NoError(t, s.Resync(ctx, 1, model.Filters{}))
	assert.ErrorIs(t, s.Resync(ctx, 3, model.Filters{}), ErrOutOfSequence)
	assert.ErrorIs(t, s.Resync(ctx, 0, model.Filters{}), ErrOutOfSequence)
	assert.Equal(t, []int{1}, gw.listCalls, "refused pages never reach the network")
}

func TestLoadMoreStopsAtLastPage(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 3, model.StatusDelivered)}
	s := newTestStore(gw, 2)
	ctx := context.Background()

	assert.ErrorIs(t, s.LoadMore(ctx), ErrOutOfSequence)
	require.NoError(t, s.Refresh(ctx))
	require.NoError(t, s.LoadMore(ctx))
	assert.ErrorIs(t, s.LoadMore(ctx), ErrNoMorePages)
	assert.Len(t, s.Snapshot().Notifications, 3)
}

func TestAppendSkipsAlreadyLoadedRecords(t *testing.T) {
	gw := &fakeGateway{}
	gw.listHook = func(page, limit int, f model.Filters) (*model.Page, error) {
		if page == 1 {
			return &model.Page{Items: []model.Notification{notif("a", model.StatusRead), notif("b", model.StatusRead)}, Page: 1, TotalPages: 2}, nil
		}
		// A new record on the server shifted "b" onto page 2.
		return &model.Page{Items: []model.Notification{notif("b", model.StatusRead), notif("c", model.StatusRead)}, Page: 2, TotalPages: 2}, nil
	}
	s := newTestStore(gw, 2)

	require.NoError(t, s.Refresh(context.Background()))
	require.NoError(t, s.LoadMore(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, s.LoadedIDs())
}

func TestResyncFailureKeepsPriorState(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 2, model.StatusDelivered)}
	s := newTestStore(gw, 10)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))
	before := s.Snapshot()

	gw.listHook = func(int, int, model.Filters) (*model.Page, error) {
		return nil, errBackendDown
	}
	err := s.Refresh(ctx)
	require.ErrorIs(t, err, errBackendDown)

	after := s.Snapshot()
	assert.Equal(t, before.Notifications, after.Notifications)
	assert.Equal(t, before.Page, after.Page)
	assert.False(t, after.Loading)
	assert.Contains(t, after.Error, "connection refused")

	gw.listHook = nil
	require.NoError(t, s.Refresh(ctx))
	assert.Empty(t, s.Snapshot().Error, "a successful resync clears the error")
}

func TestResyncDiscardsResponseOlderThanLastApplied(t *testing.T) {
	releaseFirst := make(chan struct{})
	firstStarted := make(chan struct{})
	calls := 0

	gw := &fakeGateway{}
	gw.listHook = func(page, limit int, f model.Filters) (*model.Page, error) {
		gw.mu.Lock()
		calls++
		n := calls
		gw.mu.Unlock()

		if n == 1 {
			close(firstStarted)
			<-releaseFirst
			return &model.Page{Items: []model.Notification{notif("old", model.StatusDelivered)}, Page: 1, TotalPages: 1}, nil
		}
		return &model.Page{Items: []model.Notification{notif("new", model.StatusDelivered)}, Page: 1, TotalPages: 1}, nil
	}
	s := newTestStore(gw, 10)
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Refresh(ctx) }()
	<-firstStarted

	require.NoError(t, s.Refresh(ctx))
	assert.True(t, s.Snapshot().Loading, "first request still outstanding")

	close(releaseFirst)
	assert.ErrorIs(t, <-firstErr, ErrStaleResponse)

	st := s.Snapshot()
	assert.Equal(t, []string{"new"}, ids(st.Notifications))
	assert.False(t, st.Loading)
}

func TestFilterChangeDiscardsPreviousFilterPage(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})

	gw := &fakeGateway{}
	gw.listHook = func(page, limit int, f model.Filters) (*model.Page, error) {
		if f.Status == "" && page == 2 {
			close(started)
			<-release
			return &model.Page{Items: []model.Notification{notif("p2", model.StatusDelivered)}, Page: 2, TotalPages: 2}, nil
		}
		if f.Status == model.StatusArchived {
			return &model.Page{Items: []model.Notification{notif("arch", model.StatusArchived)}, Page: 1, TotalPages: 1}, nil
		}
		return &model.Page{Items: []model.Notification{notif("p1", model.StatusDelivered)}, Page: 1, TotalPages: 2}, nil
	}
	s := newTestStore(gw, 1)
	filters := NewFilterController(s)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))

	pageTwo := make(chan error, 1)
	go func() { pageTwo <- s.LoadMore(ctx) }()
	<-started

	require.NoError(t, filters.SetFilters(ctx, FilterPatch{Status: Ptr(model.StatusArchived)}))
	close(release)
	assert.ErrorIs(t, <-pageTwo, ErrStaleResponse)

	st := s.Snapshot()
	assert.Equal(t, []string{"arch"}, ids(st.Notifications))
	assert.Equal(t, model.StatusArchived, st.Filters.Status)
}

func TestResyncWithNewFiltersOnLaterPageIsRefused(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 4, model.StatusDelivered)}
	s := newTestStore(gw, 2)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))

	err := s.Resync(ctx, 2, model.Filters{Status: model.StatusRead})
	assert.ErrorIs(t, err, ErrOutOfSequence)
	assert.Len(t, s.Snapshot().Notifications, 2)
}

func TestApplyLocalTransitionIsMonotonic(t *testing.T) {
	gw := &fakeGateway{data: []model.Notification{
		notif("a", model.StatusDelivered),
		notif("b", model.StatusArchived),
		notif("c", model.StatusPending),
	}}
	s := newTestStore(gw, 10)
	require.NoError(t, s.Refresh(context.Background()))

	changed := s.ApplyLocalTransition([]string{"a", "b"}, model.StatusRead)
	assert.Equal(t, 1, changed)

	st := s.Snapshot()
	assert.Equal(t, model.StatusRead, st.Notifications[0].Lifecycle.Status)
	assert.NotNil(t, st.Notifications[0].Lifecycle.ReadAt)
	assert.Equal(t, model.StatusArchived, st.Notifications[1].Lifecycle.Status, "archived never moves back to read")
	assert.Nil(t, st.Notifications[1].Lifecycle.ReadAt)
	assert.Equal(t, model.StatusPending, st.Notifications[2].Lifecycle.Status)
}

func TestRemoveLocalPrunesSelection(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 4, model.StatusDelivered)}
	s := newTestStore(gw, 10)
	require.NoError(t, s.Refresh(context.Background()))

	s.Selection().SelectAll([]string{"n0", "n1", "n2"})
	removed := s.RemoveLocal([]string{"n1", "n2", "missing"})

	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"n0", "n3"}, s.LoadedIDs())
	assert.Equal(t, []string{"n0"}, s.Selection().IDs())
}

func TestReplacePrunesSelectionToLoadedRecords(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 3, model.StatusDelivered)}
	s := newTestStore(gw, 10)
	ctx := context.Background()
	require.NoError(t, s.Refresh(ctx))
	s.Selection().SelectAll([]string{"n0", "n2"})

	gw.mu.Lock()
	gw.data = gw.data[:2]
	gw.mu.Unlock()
	require.NoError(t, s.Refresh(ctx))

	assert.Equal(t, []string{"n0"}, s.Selection().IDs())
}

func TestRefreshUnreadCountAndStats(t *testing.T) {
	gw := &fakeGateway{unread: 9, stats: &model.Stats{UnreadCount: 9, TotalCount: 20}}
	s := newTestStore(gw, 10)
	ctx := context.Background()

	n, err := s.RefreshUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	_, err = s.RefreshStats(ctx)
	require.NoError(t, err)

	st := s.Snapshot()
	assert.Equal(t, 9, st.UnreadCount)
	require.NotNil(t, st.Stats)
	assert.Equal(t, 20, st.Stats.TotalCount)

	gw.unreadErr = errBackendDown
	_, err = s.RefreshUnreadCount(ctx)
	assert.Error(t, err)
	assert.Equal(t, 9, s.UnreadCount(), "failed refresh keeps the last value")
}

func TestChangesSignalsAfterMutation(t *testing.T) {
	s := newTestStore(&fakeGateway{}, 10)
	s.AdjustUnreadCount(3)

	select {
	case <-s.Changes():
	case <-time.After(time.Second):
		t.Fatal("expected a change signal")
	}
}

func TestSnapshotIsIsolatedFromStore(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 1, model.StatusDelivered)}
	s := newTestStore(gw, 10)
	require.NoError(t, s.Refresh(context.Background()))

	st := s.Snapshot()
	st.Notifications[0].Lifecycle.Status = model.StatusArchived

	assert.Equal(t, model.StatusDelivered, s.Snapshot().Notifications[0].Lifecycle.Status)
}

func TestClearDropsEverythingLoadedForIdentity(t *testing.T) {
	gw := &fakeGateway{data: notifs("n", 3, model.StatusDelivered), unread: 3, stats: &model.Stats{TotalCount: 3}}
	s := newTestStore(gw, 10)
	f := NewFilterController(s)
	ctx := context.Background()

	require.NoError(t, f.SetFilters(ctx, FilterPatch{Status: Ptr(model.StatusDelivered)}))
	_, err := s.RefreshUnreadCount(ctx)
	require.NoError(t, err)
	_, err = s.RefreshStats(ctx)
	require.NoError(t, err)
	s.Selection().Toggle("n0")

	started := make(chan struct{})
	release := make(chan struct{})
	gw.mu.Lock()
	gw.listHook = func(page, limit int, _ model.Filters) (*model.Page, error) {
		close(started)
		<-release
		return paginate(notifs("n", 3, model.StatusDelivered), page, limit), nil
	}
	gw.mu.Unlock()

	refreshed := make(chan error, 1)
	go func() { refreshed <- s.Refresh(ctx) }()
	<-started

	s.Clear()
	close(release)
	assert.ErrorIs(t, <-refreshed, ErrStaleResponse)

	st := s.Snapshot()
	assert.Empty(t, st.Notifications)
	assert.Zero(t, st.UnreadCount)
	assert.Nil(t, st.Stats)
	assert.Empty(t, st.Selected)
	assert.Equal(t, PageState{}, st.Page)
	assert.Equal(t, model.Filters{Status: model.StatusDelivered}, st.Filters, "filter scope survives")
}
