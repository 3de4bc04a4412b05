package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nhle/crm-notify/internal/gateway"
	"github.com/nhle/crm-notify/internal/model"
)

type bulkCall struct {
	ids    []string
	action model.BulkAction
	actx   map[string]string
}

// fakeGateway serves an in-memory listing and records every call.
// listHook and bulkHook, when set, replace the default behavior and may
// block to simulate requests in flight.
type fakeGateway struct {
	mu sync.Mutex

	data      []model.Notification
	unread    int
	unreadErr error
	stats     *model.Stats
	bulkErr   error

	listHook func(page, limit int, f model.Filters) (*model.Page, error)
	bulkHook func(ids []string, action model.BulkAction) error

	listCalls    []int
	unreadCalls  int
	bulkCalls    []bulkCall
	markAllCalls []model.Filters
}

var errBackendDown = &gateway.NetworkError{Op: "test", Err: errors.New("connection refused")}

func (g *fakeGateway) ListPage(_ context.Context, page, limit int, f model.Filters) (*model.Page, error) {
	g.mu.Lock()
	g.listCalls = append(g.listCalls, page)
	hook := g.listHook
	g.mu.Unlock()

	if hook != nil {
		return hook(page, limit, f)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var matched []model.Notification
	for _, n := range g.data {
		if f.Status != "" && n.Lifecycle.Status != f.Status {
			continue
		}
		if f.Type != "" && n.Type != f.Type {
			continue
		}
		matched = append(matched, n)
	}
	return paginate(matched, page, limit), nil
}

func paginate(items []model.Notification, page, limit int) *model.Page {
	pages := (len(items) + limit - 1) / limit
	start := (page - 1) * limit
	end := start + limit
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	out := make([]model.Notification, end-start)
	copy(out, items[start:end])
	return &model.Page{Items: out, Page: page, TotalPages: pages, Total: len(items)}
}

func (g *fakeGateway) UnreadCount(context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unreadCalls++
	return g.unread, g.unreadErr
}

func (g *fakeGateway) Stats(context.Context) (*model.Stats, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stats == nil {
		return &model.Stats{}, nil
	}
	return g.stats, nil
}

func (g *fakeGateway) BulkAction(_ context.Context, ids []string, action model.BulkAction, actx map[string]string) error {
	g.mu.Lock()
	g.bulkCalls = append(g.bulkCalls, bulkCall{ids: append([]string(nil), ids...), action: action, actx: actx})
	hook := g.bulkHook
	err := g.bulkErr
	g.mu.Unlock()

	if hook != nil {
		return hook(ids, action)
	}
	return err
}

func (g *fakeGateway) MarkAllRead(_ context.Context, f model.Filters) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.markAllCalls = append(g.markAllCalls, f)
	return g.bulkErr
}

func (g *fakeGateway) bulkCallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.bulkCalls)
}

func (g *fakeGateway) setUnread(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unread = n
}

func notif(id string, status model.Status) model.Notification {
	return model.Notification{
		ID:        id,
		Recipient: "u1",
		Type:      model.TypeLeadAssigned,
		Title:     "Notification " + id,
		Lifecycle: model.Lifecycle{Status: status},
		Metadata:  model.Metadata{Priority: model.PriorityMedium},
		Channels:  model.Channels{InApp: true},
	}
}

func notifs(prefix string, n int, status model.Status) []model.Notification {
	out := make([]model.Notification, n)
	for i := range out {
		out[i] = notif(fmt.Sprintf("%s%d", prefix, i), status)
	}
	return out
}

func ids(items []model.Notification) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}
