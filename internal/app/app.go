package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/crm-notify/internal/gateway"
	"github.com/nhle/crm-notify/internal/inbox"
	"github.com/nhle/crm-notify/internal/keys"
	"github.com/nhle/crm-notify/internal/logger"
	"github.com/nhle/crm-notify/internal/model"
	"github.com/nhle/crm-notify/internal/session"
	appsync "github.com/nhle/crm-notify/internal/sync"
	"github.com/nhle/crm-notify/internal/theme"
	"github.com/nhle/crm-notify/internal/ui"
	"github.com/nhle/crm-notify/internal/ui/detail"
	filterview "github.com/nhle/crm-notify/internal/ui/filter"
	helpview "github.com/nhle/crm-notify/internal/ui/help"
	inboxview "github.com/nhle/crm-notify/internal/ui/inbox"
	"github.com/nhle/crm-notify/internal/ui/signin"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewDetail
	ViewFilter
	ViewHelp
	ViewSignIn
)

// Deps are the engine components the UI drives. All of them are shared
// with the scheduler goroutine; the model only reads snapshots.
type Deps struct {
	Session   *session.Session
	Store     *inbox.Store
	Filters   *inbox.FilterController
	Executor  *inbox.Executor
	Scheduler *appsync.Scheduler
	Notices   *Notices

	// UserID is assigned to the session after an interactive sign-in.
	// The token doubles as the id when empty.
	UserID string

	// SaveToken persists a token entered at sign-in. Nil disables
	// the "remember" option.
	SaveToken func(token string) error

	Logger *zap.Logger
}

// Model is the root Bubble Tea model that manages view routing and
// layout and forwards user intent to the engine.
type Model struct {
	ctx       context.Context
	sess      *session.Session
	store     *inbox.Store
	filters   *inbox.FilterController
	exec      *inbox.Executor
	sched     *appsync.Scheduler
	notices   *Notices
	userID    string
	saveToken func(string) error
	log       *zap.Logger

	currentView ViewState
	layout      ui.Layout
	keys        *keys.KeyMap
	inbox       inboxview.Model
	detailView  detail.Model
	filterView  filterview.Model
	helpView    helpview.Model
	signInView  signin.Model
	ready       bool

	lastSync time.Time
	syncErr  string
	notice   noticeMsg
}

// New creates the root model. ctx bounds every request the UI starts.
func New(ctx context.Context, d Deps) Model {
	k := keys.DefaultKeyMap()
	if d.Notices == nil {
		d.Notices = NewNotices()
	}
	return Model{
		ctx:        ctx,
		sess:       d.Session,
		store:      d.Store,
		filters:    d.Filters,
		exec:       d.Executor,
		sched:      d.Scheduler,
		notices:    d.Notices,
		userID:     d.UserID,
		saveToken:  d.SaveToken,
		log:        logger.OrNop(d.Logger),
		keys:       k,
		inbox:      inboxview.New(80, 24),
		detailView: detail.New(k, 80, 24),
		filterView: filterview.New(80, 24),
		helpView:   helpview.New(k, 80, 24),
		signInView: signin.New(80, 24),
	}
}

// Init subscribes to store changes, scheduler results and notices. A
// session without credentials starts on the sign-in prompt.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForChange(m.store),
		waitForResult(m.sched),
		m.notices.wait(),
		m.inbox.SpinnerTick(),
	}
	if m.sess.IsAuthenticationPending() {
		cmds = append(cmds, func() tea.Msg { return startSignInMsg{} })
	}
	return tea.Batch(cmds...)
}

// startSignInMsg switches to the sign-in prompt from Init, where the
// model cannot be mutated.
type startSignInMsg struct {
	reason string
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		h := m.layout.ContentHeight()
		m.inbox.SetSize(msg.Width, h)
		m.detailView.SetSize(msg.Width, h)
		m.filterView.SetSize(msg.Width, h)
		m.helpView.SetSize(msg.Width, h)
		m.signInView.SetSize(msg.Width, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case tea.FocusMsg:
		m.sched.NotifyFocus()
		return m, nil

	case tea.BlurMsg:
		return m, nil

	case storeChangedMsg:
		st := m.store.Snapshot()
		cmd := m.inbox.SetState(st)
		if m.currentView == ViewDetail && !m.detailView.Refresh(st.Notifications) {
			m.currentView = ViewInbox
		}
		return m, tea.Batch(cmd, m.inbox.SpinnerTick(), waitForChange(m.store))

	case detail.BackMsg:
		m.currentView = ViewInbox
		return m, nil

	case detail.ActionMsg:
		if msg.Action != inbox.ActionMarkRead {
			m.currentView = ViewInbox
		}
		return m, m.bulkCmd(msg.Action, []string{msg.ID})

	case syncResultMsg:
		return m.handleSyncResult(msg.result)

	case noticeMsg:
		m.notice = msg
		return m, m.notices.wait()

	case bulkDoneMsg:
		switch {
		case inbox.IsValidationNoop(msg.err):
			m.notice = noticeMsg{text: strings.TrimPrefix(msg.err.Error(), "no-op: ")}
		case gateway.IsUnauthorized(msg.err):
			return m.startSignIn("The server rejected your token.")
		}
		// Any other outcome arrives through Notices.
		return m, nil

	case fetchDoneMsg:
		if !quiet(msg.err) {
			m.log.Warn("fetch failed", zap.String("op", msg.op), zap.Error(msg.err))
			m.notice = noticeMsg{text: msg.op + ": " + gateway.Message(msg.err), isErr: true}
			if gateway.IsUnauthorized(msg.err) {
				return m.startSignIn("The server rejected your token.")
			}
		}
		return m, nil

	case filterview.SubmittedMsg:
		m.currentView = ViewInbox
		return m, m.setFiltersCmd(msg.Patch)

	case filterview.CancelMsg:
		m.currentView = ViewInbox
		return m, nil

	case startSignInMsg:
		return m.startSignIn(msg.reason)

	case signin.SubmittedMsg:
		m.sess.SetToken(msg.Token)
		id := m.userID
		if id == "" {
			id = msg.Token
		}
		m.sess.SetUser(&model.User{ID: id})
		m.currentView = ViewInbox
		return m, tea.Batch(m.signInCmd(msg.Token, msg.Remember), m.reloadCmd())

	case signin.CancelMsg:
		return m, tea.Quit

	case signedInMsg:
		if msg.err != nil {
			m.notice = noticeMsg{text: "could not save token: " + msg.err.Error(), isErr: true}
		} else {
			m.notice = noticeMsg{text: "Signed in"}
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveView(msg)
}

func (m Model) handleSyncResult(r appsync.Result) (tea.Model, tea.Cmd) {
	wait := waitForResult(m.sched)
	if r.Err != nil {
		m.syncErr = gateway.Message(r.Err)
		if gateway.IsUnauthorized(r.Err) {
			next, cmd := m.startSignIn("The server rejected your token.")
			return next, tea.Batch(cmd, wait)
		}
		return m, wait
	}

	m.syncErr = ""
	m.lastSync = time.Now()
	if r.NewCount > 0 {
		noun := "notifications"
		if r.NewCount == 1 {
			noun = "notification"
		}
		m.notice = noticeMsg{text: fmt.Sprintf("%d new %s", r.NewCount, noun)}
	}
	return m, wait
}

// startSignIn clears the session so the scheduler stops issuing
// requests, then shows the token prompt.
func (m Model) startSignIn(reason string) (tea.Model, tea.Cmd) {
	if m.currentView == ViewSignIn {
		return m, nil
	}
	m.sess.Clear()
	m.currentView = ViewSignIn
	return m, m.signInView.Start(reason)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Forms own every key while open.
	if m.currentView == ViewFilter && key.Matches(msg, m.keys.Back) {
		m.currentView = ViewInbox
		return m, nil
	}
	if m.currentView == ViewFilter || m.currentView == ViewSignIn {
		return m.updateActiveView(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case m.currentView == ViewDetail && !key.Matches(msg, m.keys.Help):
		return m.updateActiveView(msg)

	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = ViewInbox
		} else {
			m.currentView = ViewHelp
		}
		return m, nil

	case key.Matches(msg, m.keys.Back):
		if m.currentView == ViewHelp {
			m.currentView = ViewInbox
			return m, nil
		}
		m.store.Selection().Clear()
		return m, m.inbox.SetState(m.store.Snapshot())
	}

	if m.currentView != ViewInbox {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Open):
		if n, ok := m.inbox.Current(); ok {
			m.detailView.SetNotification(n)
			m.currentView = ViewDetail
		}
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		if n, ok := m.inbox.Current(); ok {
			m.store.Selection().Toggle(n.ID)
		}
		return m, m.inbox.SetState(m.store.Snapshot())

	case key.Matches(msg, m.keys.SelectAll):
		m.store.Selection().SelectAll(m.store.LoadedIDs())
		return m, m.inbox.SetState(m.store.Snapshot())

	case key.Matches(msg, m.keys.Clear):
		m.store.Selection().Clear()
		return m, m.inbox.SetState(m.store.Snapshot())

	case key.Matches(msg, m.keys.MarkRead):
		return m, m.bulkCmd(inbox.ActionMarkRead, m.targets())

	case key.Matches(msg, m.keys.MarkAllRead):
		return m, m.bulkCmd(inbox.ActionMarkAllRead, nil)

	case key.Matches(msg, m.keys.Archive):
		return m, m.bulkCmd(inbox.ActionArchive, m.targets())

	case key.Matches(msg, m.keys.Delete):
		return m, m.bulkCmd(inbox.ActionDelete, m.targets())

	case key.Matches(msg, m.keys.Filter):
		m.currentView = ViewFilter
		return m, m.filterView.Start(m.filters.Active())

	case key.Matches(msg, m.keys.ResetFilters):
		return m, m.resetFiltersCmd()

	case key.Matches(msg, m.keys.LoadMore):
		return m, m.loadMoreCmd()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()

	case key.Matches(msg, m.keys.Down) && m.inbox.AtEnd():
		st := m.inbox.State()
		if st.Page.HasMore && !st.Loading {
			return m, m.loadMoreCmd()
		}
	}

	return m.updateActiveView(msg)
}

// targets returns the selection, or the notification under the cursor
// when nothing is selected.
func (m Model) targets() []string {
	if ids := m.store.Selection().IDs(); len(ids) > 0 {
		return ids
	}
	if n, ok := m.inbox.Current(); ok {
		return []string{n.ID}
	}
	return nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox, ViewHelp:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	case ViewFilter:
		m.filterView, cmd = m.filterView.Update(msg)
	case ViewSignIn:
		m.signInView, cmd = m.signInView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.syncStatus())
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.statusMessage())
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewDetail:
		return m.detailView.View()
	case ViewFilter:
		return m.filterView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewSignIn:
		return m.signInView.View()
	default:
		return m.inbox.View()
	}
}

func (m Model) headerTitle() string {
	st := m.inbox.State()
	title := "Notifications"
	if st.UnreadCount > 0 {
		title += " " + theme.UnreadBadgeStyle.Render(fmt.Sprintf("%d unread", st.UnreadCount))
	}
	if st.Stats != nil {
		title += fmt.Sprintf(" · %d total · %d today", st.Stats.TotalCount, st.Stats.RecentCount)
	}
	if summary := filterSummary(st.Filters); summary != "" {
		title += " · " + summary
	}
	return title
}

func filterSummary(f model.Filters) string {
	var parts []string
	if f.Status != "" {
		parts = append(parts, "status="+string(f.Status))
	}
	if f.Type != "" {
		parts = append(parts, "type="+string(f.Type))
	}
	if f.Priority != "" {
		parts = append(parts, "priority="+string(f.Priority))
	}
	return strings.Join(parts, " ")
}

// syncStatus returns a short string describing the scheduler state.
func (m Model) syncStatus() string {
	if m.sess.IsAuthenticationPending() {
		return "signed out"
	}
	if m.sched.Status().Running || m.inbox.State().Loading {
		return "syncing"
	}
	if m.syncErr != "" {
		return "⚠ offline"
	}
	if m.lastSync.IsZero() {
		return "waiting"
	}
	return "synced " + m.lastSync.Format("15:04")
}

func (m Model) statusMessage() string {
	if m.notice.text != "" {
		if m.notice.isErr {
			return theme.ErrorStyle.Render(m.notice.text)
		}
		return theme.NoticeStyle.Render(m.notice.text)
	}
	if errMsg := m.inbox.State().Error; errMsg != "" {
		return theme.ErrorStyle.Render(errMsg)
	}
	if m.syncErr != "" {
		return theme.ErrorStyle.Render(m.syncErr)
	}
	return ""
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewDetail:
		return "esc back | m read | e archive | D delete | j/k scroll"
	case ViewFilter:
		return "enter apply | esc cancel"
	case ViewSignIn:
		return "enter submit | ctrl+c quit"
	default:
		if n := m.store.Selection().Len(); n > 0 {
			return fmt.Sprintf("%d selected | m read | e archive | D delete | x clear", n)
		}
		return "q quit | ? help | space select | m read | M all read | f filter | r refresh"
	}
}
