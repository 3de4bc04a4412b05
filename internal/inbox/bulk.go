package inbox

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/nhle/crm-notify/internal/logger"
	"github.com/nhle/crm-notify/internal/metrics"
	"github.com/nhle/crm-notify/internal/model"
)

// Action names a bulk operation the executor can run.
type Action string

const (
	ActionMarkRead    Action = "mark_read"
	ActionMarkAllRead Action = "mark_all_read"
	ActionArchive     Action = "archive"
	ActionDelete      Action = "delete"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Device is sent as bulk request context and recorded by the server
	// as the device the notifications were read from.
	Device string

	// OnSuccess is called after the local state reflects the action.
	OnSuccess func(action Action, affected int)

	// OnError is called when the server rejects the action or cannot be
	// reached. Local state and selection are unchanged at that point.
	OnError func(action Action, err error)

	Logger *zap.Logger
}

// Executor runs bulk actions against the server and applies them to the
// store only after the server acknowledged them. At most one invocation
// of each action may be in flight.
type Executor struct {
	store   *Store
	sel     *Selection
	filters *FilterController
	gw      Gateway
	opts    ExecutorOptions
	log     *zap.Logger

	mu       sync.Mutex
	inFlight map[Action]bool
}

// NewExecutor wires an executor to the store, its selection and the
// filter controller that scopes "mark all as read".
func NewExecutor(store *Store, filters *FilterController, gw Gateway, opts ExecutorOptions) *Executor {
	return &Executor{
		store:    store,
		sel:      store.Selection(),
		filters:  filters,
		gw:       gw,
		opts:     opts,
		log:      logger.OrNop(opts.Logger),
		inFlight: make(map[Action]bool),
	}
}

// InFlight reports whether action is currently running.
func (e *Executor) InFlight(action Action) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inFlight[action]
}

func (e *Executor) begin(action Action) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inFlight[action] {
		return false
	}
	e.inFlight[action] = true
	return true
}

func (e *Executor) end(action Action) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, action)
}

// MarkAsRead marks ids as read.
func (e *Executor) MarkAsRead(ctx context.Context, ids []string) error {
	return e.Execute(ctx, ActionMarkRead, ids)
}

// MarkSelectedAsRead marks the current selection as read.
func (e *Executor) MarkSelectedAsRead(ctx context.Context) error {
	return e.Execute(ctx, ActionMarkRead, e.sel.IDs())
}

// MarkAllAsRead marks everything in the active filter scope as read.
func (e *Executor) MarkAllAsRead(ctx context.Context) error {
	return e.Execute(ctx, ActionMarkAllRead, nil)
}

// Archive archives ids.
func (e *Executor) Archive(ctx context.Context, ids []string) error {
	return e.Execute(ctx, ActionArchive, ids)
}

// ArchiveSelected archives the current selection.
func (e *Executor) ArchiveSelected(ctx context.Context) error {
	return e.Execute(ctx, ActionArchive, e.sel.IDs())
}

// Delete deletes ids.
func (e *Executor) Delete(ctx context.Context, ids []string) error {
	return e.Execute(ctx, ActionDelete, ids)
}

// DeleteSelected deletes the current selection.
func (e *Executor) DeleteSelected(ctx context.Context) error {
	return e.Execute(ctx, ActionDelete, e.sel.IDs())
}

// Execute runs action against ids. An empty id set is a no-op for every
// action except ActionMarkAllRead, and a second invocation of an action
// that is still running is rejected. The store is only mutated after the
// server acknowledged the action; on failure nothing local changes and
// the selection is kept for a retry. After success the unread counter is
// re-read from the server. A server value above the locally adjusted one
// means notifications arrived meanwhile, so page 1 and the statistics are
// refreshed as a tick would.
func (e *Executor) Execute(ctx context.Context, action Action, ids []string) error {
	if err := e.run(ctx, action, ids); err != nil {
		return err
	}

	local := e.store.UnreadCount()
	server, err := e.store.RefreshUnreadCount(ctx)
	if err != nil {
		e.log.Warn("unread count refresh after bulk action failed",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return nil
	}
	if server <= local {
		return nil
	}

	e.log.Info("unread count rose during bulk action, resyncing",
		zap.String("action", string(action)),
		zap.Int("local", local),
		zap.Int("server", server),
	)
	if err := e.store.Refresh(ctx); err != nil && !errors.Is(err, ErrStaleResponse) {
		e.log.Warn("resync after bulk action failed", zap.Error(err))
		return nil
	}
	_, _ = e.store.RefreshStats(ctx)
	return nil
}

func (e *Executor) run(ctx context.Context, action Action, ids []string) error {
	ids = uniqueIDs(ids)
	if len(ids) == 0 && action != ActionMarkAllRead {
		return ErrEmptySelection
	}

	if !e.begin(action) {
		metrics.BulkActionsTotal.WithLabelValues(string(action), "rejected").Inc()
		e.log.Debug("bulk action already in flight", zap.String("action", string(action)))
		return ErrActionInFlight
	}
	defer e.end(action)

	var filters model.Filters
	if e.filters != nil {
		filters = e.filters.Active()
	}

	var err error
	switch action {
	case ActionMarkRead:
		err = e.gw.BulkAction(ctx, ids, model.BulkRead, e.requestContext())
	case ActionMarkAllRead:
		err = e.gw.MarkAllRead(ctx, filters)
	case ActionArchive:
		err = e.gw.BulkAction(ctx, ids, model.BulkArchive, e.requestContext())
	case ActionDelete:
		err = e.gw.BulkAction(ctx, ids, model.BulkDelete, e.requestContext())
	default:
		return &ValidationNoop{Reason: "unknown action " + string(action)}
	}

	if err != nil {
		metrics.BulkActionsTotal.WithLabelValues(string(action), "failure").Inc()
		e.log.Warn("bulk action failed",
			zap.String("action", string(action)),
			zap.Int("count", len(ids)),
			zap.Error(err),
		)
		if e.opts.OnError != nil {
			e.opts.OnError(action, err)
		}
		return err
	}

	affected := len(ids)
	var delta int
	switch action {
	case ActionMarkRead:
		delta = e.store.commitTransition(ids, model.StatusRead)
	case ActionMarkAllRead:
		loaded := e.store.LoadedIDs()
		affected = len(loaded)
		delta = e.store.commitTransition(loaded, model.StatusRead)
	case ActionArchive, ActionDelete:
		delta = e.store.commitRemoval(ids)
	}

	e.sel.Clear()
	metrics.BulkActionsTotal.WithLabelValues(string(action), "success").Inc()
	e.log.Info("bulk action applied",
		zap.String("action", string(action)),
		zap.Int("count", affected),
		zap.Int("unread_delta", -delta),
	)

	if e.opts.OnSuccess != nil {
		e.opts.OnSuccess(action, affected)
	}
	return nil
}

func (e *Executor) requestContext() map[string]string {
	if e.opts.Device == "" {
		return nil
	}
	return map[string]string{"device": e.opts.Device}
}

func uniqueIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
