package app

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crm-notify/internal/inbox"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/session"
	appsync "github.com/nhle/crm-notify/internal/sync"
	"github.com/nhle/crm-notify/internal/ui/detail"
	filterview "github.com/nhle/crm-notify/internal/ui/filter"
	"github.com/nhle/crm-notify/internal/ui/signin"
	"github.com/nhle/crm-notify/tests/testutil"
)

type harness struct {
	model   Model
	store   *inbox.Store
	notices *Notices
	backend *testutil.Backend
	sess    *session.Session
}

func newHarness(t *testing.T, token string, ns ...model.Notification) *harness {
	t.Helper()

	b := testutil.NewBackend(t, ns...)

	sess := session.New()
	if token != "" {
		sess.SetToken(token)
		sess.SetUser(&model.User{ID: token})
	}
	gw := b.GatewayWithToken(sess.Token)

	store := inbox.NewStore(gw, inbox.NewSelection(), inbox.StoreOptions{PageSize: 10})
	filters := inbox.NewFilterController(store)
	notices := NewNotices()
	exec := inbox.NewExecutor(store, filters, gw, notices.ExecutorOptions(inbox.ExecutorOptions{Device: "test"}))
	sched := appsync.New(store, appsync.Options{Gate: sess})

	m := New(context.Background(), Deps{
		Session:   sess,
		Store:     store,
		Filters:   filters,
		Executor:  exec,
		Scheduler: sched,
		Notices:   notices,
	})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})

	return &harness{model: next.(Model), store: store, notices: notices, backend: b, sess: sess}
}

func (h *harness) send(t *testing.T, msg tea.Msg) tea.Cmd {
	t.Helper()
	next, cmd := h.model.Update(msg)
	h.model = next.(Model)
	return cmd
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.Refresh(ctx))
	_, err := h.store.RefreshUnreadCount(ctx)
	require.NoError(t, err)
	h.send(t, storeChangedMsg{})
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestToggleAndMarkSelectedAsRead(t *testing.T) {
	h := newHarness(t, "u1",
		testutil.Notification("a", "u1", 1),
		testutil.Notification("b", "u1", 2),
	)
	h.load(t)

	// Newest first: the cursor starts on "b".
	h.send(t, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	assert.Equal(t, []string{"b"}, h.store.Selection().IDs())

	cmd := h.send(t, runes("m"))
	require.NotNil(t, cmd)
	msg := cmd()
	done, ok := msg.(bulkDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	st := h.store.Snapshot()
	assert.Equal(t, 1, st.UnreadCount)
	assert.Empty(t, st.Selected)
	assert.Equal(t, model.StatusRead, st.Notifications[0].Lifecycle.Status)

	notice := <-h.notices.ch
	assert.Equal(t, "Marked 1 notification as read", notice.text)
	assert.False(t, notice.isErr)
}

func TestMarkReadWithoutSelectionTargetsCursor(t *testing.T) {
	h := newHarness(t, "u1",
		testutil.Notification("a", "u1", 1),
		testutil.Notification("b", "u1", 2),
	)
	h.load(t)

	h.send(t, runes("j"))
	cmd := h.send(t, runes("e"))
	require.NotNil(t, cmd)
	require.NoError(t, cmd().(bulkDoneMsg).err)

	assert.Equal(t, []string{"b"}, h.store.LoadedIDs())
}

func TestEmptyInboxBulkActionShowsNoop(t *testing.T) {
	h := newHarness(t, "u1")
	h.load(t)

	cmd := h.send(t, runes("D"))
	require.NotNil(t, cmd)
	h.send(t, cmd())

	assert.Equal(t, "no notifications selected", h.model.notice.text)
	assert.False(t, h.model.notice.isErr)
}

func TestSelectAllAndClear(t *testing.T) {
	h := newHarness(t, "u1",
		testutil.Notification("a", "u1", 1),
		testutil.Notification("b", "u1", 2),
		testutil.Notification("c", "u1", 3),
	)
	h.load(t)

	h.send(t, runes("a"))
	assert.Equal(t, 3, h.store.Selection().Len())
	assert.Len(t, h.model.inbox.State().Selected, 3)

	h.send(t, runes("x"))
	assert.Equal(t, 0, h.store.Selection().Len())
}

func TestFilterSubmissionResyncsWithPatch(t *testing.T) {
	read := testutil.Notification("r", "u1", 1)
	read.Lifecycle.Status = model.StatusRead
	h := newHarness(t, "u1", read, testutil.Notification("d", "u1", 2))
	h.load(t)

	cmd := h.send(t, runes("f"))
	require.NotNil(t, cmd)
	assert.Equal(t, ViewFilter, h.model.currentView)

	cmd = h.send(t, filterview.SubmittedMsg{Patch: inbox.FilterPatch{Status: inbox.Ptr(model.StatusRead)}})
	assert.Equal(t, ViewInbox, h.model.currentView)
	require.NotNil(t, cmd)
	done := cmd().(fetchDoneMsg)
	require.NoError(t, done.err)

	st := h.store.Snapshot()
	assert.Equal(t, model.StatusRead, st.Filters.Status)
	assert.Equal(t, []string{"r"}, h.store.LoadedIDs())
}

func TestFocusMessageNotifiesScheduler(t *testing.T) {
	h := newHarness(t, "u1")
	cmd := h.send(t, tea.FocusMsg{})
	assert.Nil(t, cmd)
}

func TestPendingSessionStartsOnSignIn(t *testing.T) {
	h := newHarness(t, "")
	assert.True(t, h.sess.IsAuthenticationPending())

	h.send(t, startSignInMsg{})
	assert.Equal(t, ViewSignIn, h.model.currentView)
	assert.Equal(t, "signed out", h.model.syncStatus())
}

func TestSignInOpensGate(t *testing.T) {
	h := newHarness(t, "")
	h.send(t, startSignInMsg{})

	var saved string
	h.model.saveToken = func(token string) error {
		saved = token
		return nil
	}

	cmd := h.send(t, signin.SubmittedMsg{Token: "u1", Remember: true})
	require.NotNil(t, cmd)
	assert.Equal(t, ViewInbox, h.model.currentView)
	assert.False(t, h.sess.IsAuthenticationPending())
	assert.Equal(t, "u1", h.sess.CurrentUser().ID)

	msg := h.model.signInCmd("u1", true)()
	h.send(t, msg)
	assert.Equal(t, "u1", saved)
	assert.Equal(t, "Signed in", h.model.notice.text)
}

func TestUnauthorizedSyncResultReturnsToSignIn(t *testing.T) {
	h := newHarness(t, "bad-token")
	h.load(t)

	_, err := testutil.NewBackend(t).Gateway("").UnreadCount(context.Background())
	require.Error(t, err)

	h.send(t, syncResultMsg{result: appsync.Result{Trigger: appsync.TriggerTick, Err: err}})
	assert.Equal(t, ViewSignIn, h.model.currentView)
	assert.True(t, h.sess.IsAuthenticationPending())
}

func TestUnauthorizedBulkActionReturnsToSignIn(t *testing.T) {
	h := newHarness(t, "u1", testutil.Notification("a", "u1", 1))
	h.load(t)

	// the server no longer accepts the session
	h.sess.SetToken("")

	cmd := h.send(t, runes("m"))
	require.NotNil(t, cmd)
	done, ok := cmd().(bulkDoneMsg)
	require.True(t, ok)
	require.Error(t, done.err)

	h.send(t, done)
	assert.Equal(t, ViewSignIn, h.model.currentView)
	assert.True(t, h.sess.IsAuthenticationPending())
	assert.Equal(t, 1, h.store.UnreadCount(), "rejected action changes nothing locally")
}

func TestSignInAsAnotherUserReplacesInbox(t *testing.T) {
	h := newHarness(t, "u1",
		testutil.Notification("a1", "u1", 1),
		testutil.Notification("b1", "u2", 2),
		testutil.Notification("b2", "u2", 3),
	)
	h.load(t)
	require.Equal(t, []string{"a1"}, h.store.LoadedIDs())
	h.store.Selection().Toggle("a1")

	h.send(t, startSignInMsg{reason: "The server rejected your token."})
	require.Equal(t, ViewSignIn, h.model.currentView)

	cmd := h.send(t, signin.SubmittedMsg{Token: "u2"})
	require.NotNil(t, cmd)
	assert.Equal(t, "u2", h.sess.CurrentUser().ID)

	done, ok := h.model.reloadCmd()().(fetchDoneMsg)
	require.True(t, ok)
	require.NoError(t, done.err)

	st := h.store.Snapshot()
	assert.Equal(t, []string{"b2", "b1"}, h.store.LoadedIDs())
	assert.Equal(t, 2, st.UnreadCount)
	assert.Empty(t, st.Selected)
}

func TestNewNotificationsProduceNotice(t *testing.T) {
	h := newHarness(t, "u1")
	h.send(t, syncResultMsg{result: appsync.Result{Trigger: appsync.TriggerTick, Unread: 3, NewCount: 2, Resynced: true}})

	assert.Equal(t, "2 new notifications", h.model.notice.text)
	assert.Contains(t, h.model.syncStatus(), "synced")
}

func TestDetailViewArchivesShownNotification(t *testing.T) {
	h := newHarness(t, "u1",
		testutil.Notification("a", "u1", 1),
		testutil.Notification("b", "u1", 2),
	)
	h.load(t)

	h.send(t, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, ViewDetail, h.model.currentView)
	assert.Contains(t, h.model.detailView.View(), "Lead b")

	cmd := h.send(t, runes("e"))
	require.NotNil(t, cmd)
	action, ok := cmd().(detail.ActionMsg)
	require.True(t, ok)
	assert.Equal(t, inbox.ActionArchive, action.Action)
	assert.Equal(t, "b", action.ID)

	cmd = h.send(t, action)
	assert.Equal(t, ViewInbox, h.model.currentView)
	require.NoError(t, cmd().(bulkDoneMsg).err)
	assert.Equal(t, []string{"a"}, h.store.LoadedIDs())
}

func TestDetailViewEscGoesBack(t *testing.T) {
	h := newHarness(t, "u1", testutil.Notification("a", "u1", 1))
	h.load(t)

	h.send(t, tea.KeyMsg{Type: tea.KeyEnter})
	cmd := h.send(t, tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	h.send(t, cmd())
	assert.Equal(t, ViewInbox, h.model.currentView)
}
