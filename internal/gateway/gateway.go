package gateway

import (
	"context"
	"net/url"
	"strconv"

	"github.com/nhle/crm-notify/internal/model"
)

// Gateway translates each logical request of the sync engine into exactly
// one HTTP call. It owns no state and caches nothing.
type Gateway struct {
	client *Client
}

// New wraps client in a Gateway.
func New(client *Client) *Gateway {
	return &Gateway{client: client}
}

// ListPage fetches one page of the filtered notification listing.
func (g *Gateway) ListPage(
	ctx context.Context,
	page int,
	limit int,
	filters model.Filters,
) (*model.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if filters.Status != "" {
		q.Set("status", string(filters.Status))
	}
	if filters.Type != "" {
		q.Set("type", string(filters.Type))
	}
	if filters.Priority != "" {
		q.Set("priority", string(filters.Priority))
	}

	var data ListData
	if err := g.client.Get(ctx, "list_page", "/notifications", q, &data); err != nil {
		return nil, err
	}

	resp := &model.Page{
		Items:      data.Notifications,
		Page:       data.Pagination.Page,
		TotalPages: data.Pagination.Pages,
		Total:      data.Pagination.Total,
	}
	if resp.Items == nil {
		resp.Items = []model.Notification{}
	}
	if resp.Page == 0 {
		resp.Page = page
	}
	return resp, nil
}

// UnreadCount fetches the server-authoritative unread counter.
func (g *Gateway) UnreadCount(ctx context.Context) (int, error) {
	var data UnreadCountData
	if err := g.client.Get(ctx, "unread_count", "/notifications/unread-count", nil, &data); err != nil {
		return 0, err
	}
	return data.UnreadCount, nil
}

// Stats fetches aggregate notification statistics.
func (g *Gateway) Stats(ctx context.Context) (*model.Stats, error) {
	var stats model.Stats
	if err := g.client.Get(ctx, "stats", "/notifications/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// BulkAction applies action to ids on the server.
func (g *Gateway) BulkAction(
	ctx context.Context,
	ids []string,
	action model.BulkAction,
	actx map[string]string,
) error {
	return g.client.Post(ctx, "bulk_"+string(action), "/notifications/bulk", BulkRequest{
		NotificationIDs: ids,
		Action:          action,
		Context:         actx,
	}, nil)
}

// MarkAllRead marks every notification in the filter scope as read.
func (g *Gateway) MarkAllRead(ctx context.Context, filters model.Filters) error {
	return g.client.Post(ctx, "mark_all_read", "/notifications/mark-all-read", MarkAllReadRequest{
		Filters: filters,
	}, nil)
}
