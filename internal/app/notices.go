package app

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/crm-notify/internal/gateway"
	"github.com/nhle/crm-notify/internal/inbox"
)

// noticeMsg is a one-line outcome shown in the status bar.
type noticeMsg struct {
	text  string
	isErr bool
}

// Notices turns executor callbacks, which run on the command goroutine,
// into messages for the UI loop.
type Notices struct {
	ch chan noticeMsg
}

// NewNotices creates an empty notice queue.
func NewNotices() *Notices {
	return &Notices{ch: make(chan noticeMsg, 8)}
}

// ExecutorOptions returns executor callbacks that report into n.
func (n *Notices) ExecutorOptions(opts inbox.ExecutorOptions) inbox.ExecutorOptions {
	opts.OnSuccess = n.OnSuccess
	opts.OnError = n.OnError
	return opts
}

// OnSuccess reports a completed bulk action.
func (n *Notices) OnSuccess(action inbox.Action, affected int) {
	n.push(noticeMsg{text: successText(action, affected)})
}

// OnError reports a rejected or unreachable bulk action.
func (n *Notices) OnError(action inbox.Action, err error) {
	n.push(noticeMsg{
		text:  fmt.Sprintf("%s failed: %s", actionLabel(action), gateway.Message(err)),
		isErr: true,
	})
}

func (n *Notices) push(msg noticeMsg) {
	select {
	case n.ch <- msg:
	default:
	}
}

func (n *Notices) wait() tea.Cmd {
	return func() tea.Msg {
		return <-n.ch
	}
}

func successText(action inbox.Action, affected int) string {
	noun := "notifications"
	if affected == 1 {
		noun = "notification"
	}
	switch action {
	case inbox.ActionMarkRead:
		return fmt.Sprintf("Marked %d %s as read", affected, noun)
	case inbox.ActionMarkAllRead:
		return "Marked all as read"
	case inbox.ActionArchive:
		return fmt.Sprintf("Archived %d %s", affected, noun)
	case inbox.ActionDelete:
		return fmt.Sprintf("Deleted %d %s", affected, noun)
	}
	return string(action)
}

func actionLabel(action inbox.Action) string {
	switch action {
	case inbox.ActionMarkRead:
		return "Mark as read"
	case inbox.ActionMarkAllRead:
		return "Mark all as read"
	case inbox.ActionArchive:
		return "Archive"
	case inbox.ActionDelete:
		return "Delete"
	}
	return string(action)
}
