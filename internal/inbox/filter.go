package inbox

import (
	"context"
	"sync"

	"github.com/nhle/crm-notify/internal/model"
)

// FilterPatch is a partial filter update. A nil field keeps the current
// value; a pointer to the empty value removes the constraint.
type FilterPatch struct {
	Status   *model.Status
	Type     *model.Type
	Priority *model.Priority
}

// Ptr returns a pointer to v, for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// FilterController changes the store's filter scope. Filtering happens on
// the server only: a change resets paging, clears the loaded list and
// re-fetches page 1. It is the only component that switches the scope;
// every other resync reuses whatever filters the store holds.
type FilterController struct {
	store *Store

	// serializes read-merge-switch so concurrent patches do not lose updates
	mu sync.Mutex
}

// NewFilterController returns a controller over store.
func NewFilterController(store *Store) *FilterController {
	return &FilterController{store: store}
}

// Active returns the current filters.
func (f *FilterController) Active() model.Filters {
	return f.store.Filters()
}

// SetFilters merges patch into the active filters and resyncs page 1.
func (f *FilterController) SetFilters(ctx context.Context, patch FilterPatch) error {
	return f.switchTo(ctx, func(cur model.Filters) model.Filters {
		if patch.Status != nil {
			cur.Status = *patch.Status
		}
		if patch.Type != nil {
			cur.Type = *patch.Type
		}
		if patch.Priority != nil {
			cur.Priority = *patch.Priority
		}
		return cur
	})
}

// Reset removes every constraint and resyncs page 1.
func (f *FilterController) Reset(ctx context.Context) error {
	return f.switchTo(ctx, func(model.Filters) model.Filters {
		return model.Filters{}
	})
}

func (f *FilterController) switchTo(ctx context.Context, next func(model.Filters) model.Filters) error {
	f.mu.Lock()
	filters := next(f.store.Filters())
	req, err := f.store.beginResync(1, &filters)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.store.finishResync(ctx, req)
}
