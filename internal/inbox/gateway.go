package inbox

import (
	"context"

	"github.com/nhle/crm-notify/internal/model"
)

// Gateway is the remote source of truth the store synchronizes with.
// *gateway.Gateway satisfies it.
type Gateway interface {
	ListPage(ctx context.Context, page, limit int, filters model.Filters) (*model.Page, error)
	UnreadCount(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*model.Stats, error)
	BulkAction(ctx context.Context, ids []string, action model.BulkAction, actx map[string]string) error
	MarkAllRead(ctx context.Context, filters model.Filters) error
}
