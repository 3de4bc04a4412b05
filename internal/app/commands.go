package app

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/crm-notify/internal/inbox"
	appsync "github.com/nhle/crm-notify/internal/sync"
)

// storeChangedMsg signals that the store state moved on.
type storeChangedMsg struct{}

// syncResultMsg wraps a scheduler refresh outcome.
type syncResultMsg struct {
	result appsync.Result
}

// bulkDoneMsg is returned by a bulk action command.
type bulkDoneMsg struct {
	action inbox.Action
	err    error
}

// fetchDoneMsg is returned by refresh, load-more and filter commands.
type fetchDoneMsg struct {
	op  string
	err error
}

// signedInMsg is returned once a new token was stored in the session.
type signedInMsg struct {
	err error
}

func waitForChange(s *inbox.Store) tea.Cmd {
	return func() tea.Msg {
		<-s.Changes()
		return storeChangedMsg{}
	}
}

func waitForResult(s *appsync.Scheduler) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-s.Results()
		if !ok {
			return nil
		}
		return syncResultMsg{result: r}
	}
}

func (m Model) bulkCmd(action inbox.Action, ids []string) tea.Cmd {
	exec, ctx := m.exec, m.ctx
	return func() tea.Msg {
		return bulkDoneMsg{action: action, err: exec.Execute(ctx, action, ids)}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		err := store.Refresh(ctx)
		if _, cerr := store.RefreshUnreadCount(ctx); err == nil {
			err = cerr
		}
		if _, serr := store.RefreshStats(ctx); err == nil {
			err = serr
		}
		return fetchDoneMsg{op: "refresh", err: err}
	}
}

func (m Model) loadMoreCmd() tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		return fetchDoneMsg{op: "load more", err: store.LoadMore(ctx)}
	}
}

func (m Model) setFiltersCmd(patch inbox.FilterPatch) tea.Cmd {
	filters, ctx := m.filters, m.ctx
	return func() tea.Msg {
		return fetchDoneMsg{op: "filter", err: filters.SetFilters(ctx, patch)}
	}
}

func (m Model) resetFiltersCmd() tea.Cmd {
	filters, ctx := m.filters, m.ctx
	return func() tea.Msg {
		return fetchDoneMsg{op: "filter", err: filters.Reset(ctx)}
	}
}

// reloadCmd drops whatever was loaded for the previous identity and runs
// the initial load for the one that just signed in.
func (m Model) reloadCmd() tea.Cmd {
	sched, ctx := m.sched, m.ctx
	return func() tea.Msg {
		return fetchDoneMsg{op: "reload", err: sched.Reload(ctx)}
	}
}

func (m Model) signInCmd(token string, remember bool) tea.Cmd {
	save := m.saveToken
	return func() tea.Msg {
		if remember && save != nil {
			if err := save(token); err != nil {
				return signedInMsg{err: err}
			}
		}
		return signedInMsg{}
	}
}

// quiet reports whether err needs no user-facing message.
func quiet(err error) bool {
	return err == nil ||
		errors.Is(err, inbox.ErrStaleResponse) ||
		errors.Is(err, inbox.ErrNoMorePages) ||
		errors.Is(err, context.Canceled)
}
