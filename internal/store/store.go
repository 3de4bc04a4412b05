package store

import (
	"context"
	"time"

	"github.com/nhle/crm-notify/internal/model"
)

// ListFilter controls filtering and pagination for notification queries.
// Every query is scoped to a single recipient.
type ListFilter struct {
	Recipient string
	Status    model.Status
	Type      model.Type
	Priority  model.Priority
	Limit     int
	Offset    int
}

// Store defines the persistence interface behind the development backend.
type Store interface {
	InsertNotifications(ctx context.Context, ns []model.Notification) error
	ListNotifications(ctx context.Context, f ListFilter) ([]model.Notification, int, error)
	UnreadCount(ctx context.Context, recipient string) (int, error)
	Stats(ctx context.Context, recipient string, since time.Time) (*model.Stats, error)

	// Transition moves the recipient's notifications in ids forward to
	// status and returns how many rows changed. Rows already at or past
	// status are left alone.
	Transition(ctx context.Context, recipient string, ids []string, status model.Status, device string) (int, error)
	MarkAllRead(ctx context.Context, recipient string, f model.Filters, device string) (int, error)
	DeleteNotifications(ctx context.Context, recipient string, ids []string) (int, error)

	Close() error
}
