package inbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/crm-notify/internal/gateway"
	"github.com/nhle/crm-notify/internal/logger"
	"github.com/nhle/crm-notify/internal/metrics"
	"github.com/nhle/crm-notify/internal/model"
)

// DefaultPageSize is used when StoreOptions.PageSize is not positive.
const DefaultPageSize = 20

// State is a point-in-time copy of everything the store holds.
type State struct {
	Notifications []model.Notification
	UnreadCount   int
	Stats         *model.Stats
	Loading       bool
	Error         string
	Page          PageState
	Filters       model.Filters
	Selected      []string
}

// StoreOptions configures a Store.
type StoreOptions struct {
	PageSize int
	Logger   *zap.Logger
}

// Store is the single in-memory copy of the recipient's notifications,
// the unread counter and the server statistics. Every mutation goes
// through its methods; network calls are made outside the lock and only
// their results are applied under it.
//
// Each list request carries a sequence number and the filter epoch it was
// issued in. A response older than the last applied one, or from an
// earlier epoch, is dropped with ErrStaleResponse.
type Store struct {
	gw       Gateway
	sel      *Selection
	pageSize int
	log      *zap.Logger

	mu            sync.Mutex
	notifications []model.Notification
	unread        int
	stats         *model.Stats
	inflight      int
	errMsg        string
	pager         *Pagination
	filters       model.Filters
	epoch         uint64
	generation    uint64 // bumped by Clear
	lastSeq       uint64
	appliedSeq    uint64

	changes chan struct{}
}

// NewStore creates an empty store backed by gw. sel is pruned whenever
// records leave the loaded list.
func NewStore(gw Gateway, sel *Selection, opts StoreOptions) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if sel == nil {
		sel = NewSelection()
	}
	return &Store{
		gw:       gw,
		sel:      sel,
		pageSize: opts.PageSize,
		log:      logger.OrNop(opts.Logger),
		pager:    NewPagination(),
		changes:  make(chan struct{}, 1),
	}
}

// Selection returns the selection the store keeps consistent.
func (s *Store) Selection() *Selection {
	return s.sel
}

// Changes returns a channel that receives a value after state changed.
// Signals coalesce: a reader sees at least one signal after the most
// recent change.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]model.Notification, len(s.notifications))
	for i, n := range s.notifications {
		items[i] = n.Clone()
	}

	var stats *model.Stats
	if s.stats != nil {
		st := *s.stats
		st.TypeBreakdown = append([]model.TypeCount(nil), s.stats.TypeBreakdown...)
		stats = &st
	}

	return State{
		Notifications: items,
		UnreadCount:   s.unread,
		Stats:         stats,
		Loading:       s.inflight > 0,
		Error:         s.errMsg,
		Page:          s.pager.State(),
		Filters:       s.filters,
		Selected:      s.sel.IDs(),
	}
}

func (s *Store) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// UnreadCount returns the last known unread counter.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Filters returns the filters the loaded list was fetched with.
func (s *Store) Filters() model.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// LoadedIDs returns the ids of the loaded list in order.
func (s *Store) LoadedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadedIDsLocked()
}

func (s *Store) loadedIDsLocked() []string {
	ids := make([]string, len(s.notifications))
	for i, n := range s.notifications {
		ids[i] = n.ID
	}
	return ids
}

// IsLoaded reports whether id is in the loaded list.
func (s *Store) IsLoaded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

func (s *Store) indexLocked(id string) int {
	for i, n := range s.notifications {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Resync fetches page under filters and merges it: page 1 replaces the
// loaded list, page currentPage+1 is appended, anything else is refused
// with ErrOutOfSequence. A change of filters clears the list and the
// selection before the request is sent. On failure the error message is
// recorded and the loaded list is left untouched.
func (s *Store) Resync(ctx context.Context, page int, filters model.Filters) error {
	req, err := s.beginResync(page, &filters)
	if err != nil {
		return err
	}
	return s.finishResync(ctx, req)
}

// listRequest is a page fetch that was admitted by beginResync.
type listRequest struct {
	page    int
	filters model.Filters
	mode    mergeMode
	seq     uint64
	epoch   uint64
}

// beginResync admits a request for page. A nil filters keeps the current
// scope; otherwise the scope switches to *filters, which only page 1 may do.
func (s *Store) beginResync(page int, filters *model.Filters) (listRequest, error) {
	s.mu.Lock()
	if filters != nil && *filters != s.filters {
		if page != 1 {
			s.mu.Unlock()
			return listRequest{}, ErrOutOfSequence
		}
		s.resetLocked(*filters)
	}

	mode, err := s.pager.plan(page)
	if err != nil {
		s.mu.Unlock()
		return listRequest{}, err
	}

	s.lastSeq++
	req := listRequest{page: page, filters: s.filters, mode: mode, seq: s.lastSeq, epoch: s.epoch}
	s.inflight++
	s.mu.Unlock()

	s.notify()
	return req, nil
}

func (s *Store) finishResync(ctx context.Context, req listRequest) error {
	resp, err := s.gw.ListPage(ctx, req.page, s.pageSize, req.filters)

	s.mu.Lock()
	defer s.notify()
	defer s.mu.Unlock()

	s.inflight--

	if req.epoch != s.epoch || req.seq < s.appliedSeq || !s.pager.accepts(req.page, req.mode) {
		s.log.Debug("discarding stale page",
			zap.Int("page", req.page),
			zap.Uint64("seq", req.seq),
			zap.Uint64("applied_seq", s.appliedSeq),
			zap.Uint64("epoch", req.epoch),
		)
		return ErrStaleResponse
	}

	if err != nil {
		s.errMsg = gateway.Message(err)
		s.log.Warn("resync failed", zap.Int("page", req.page), zap.Error(err))
		return err
	}

	s.appliedSeq = req.seq
	s.errMsg = ""

	switch req.mode {
	case mergeReplace:
		s.notifications = dedupe(nil, resp.Items)
		loaded := make(map[string]struct{}, len(s.notifications))
		for _, n := range s.notifications {
			loaded[n.ID] = struct{}{}
		}
		s.sel.Retain(func(id string) bool {
			_, ok := loaded[id]
			return ok
		})
	case mergeAppend:
		s.notifications = dedupe(s.notifications, resp.Items)
	}
	s.pager.commit(req.page, resp.TotalPages)

	s.log.Debug("resync applied",
		zap.Int("page", req.page),
		zap.Int("count", len(resp.Items)),
		zap.Int("loaded", len(s.notifications)),
		zap.Uint64("seq", req.seq),
	)
	return nil
}

// dedupe appends the items not already present in list.
func dedupe(list []model.Notification, items []model.Notification) []model.Notification {
	seen := make(map[string]struct{}, len(list)+len(items))
	for _, n := range list {
		seen[n.ID] = struct{}{}
	}
	for _, n := range items {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		list = append(list, n.Clone())
	}
	return list
}

// resetLocked switches to filters, clearing everything loaded under the
// previous ones and invalidating their outstanding requests.
func (s *Store) resetLocked(filters model.Filters) {
	s.epoch++
	s.filters = filters
	s.notifications = nil
	s.errMsg = ""
	s.pager.Reset()
	s.sel.Clear()
}

// Clear forgets everything fetched for the current identity: the list,
// the selection, the counter and the statistics. Outstanding requests are
// discarded when they return. The filter scope is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	s.resetLocked(s.filters)
	s.generation++
	s.unread = 0
	s.stats = nil
	s.mu.Unlock()

	metrics.UnreadCount.Set(0)
	s.notify()
}

// Refresh re-fetches page 1 under the filters the store currently holds.
// It never changes the filter scope.
func (s *Store) Refresh(ctx context.Context) error {
	req, err := s.beginResync(1, nil)
	if err != nil {
		return err
	}
	return s.finishResync(ctx, req)
}

// LoadMore appends the next page under the current filters.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	st := s.pager.State()
	s.mu.Unlock()

	if st.CurrentPage == 0 {
		return ErrOutOfSequence
	}
	if !st.HasMore {
		return ErrNoMorePages
	}
	req, err := s.beginResync(st.CurrentPage+1, nil)
	if err != nil {
		return err
	}
	return s.finishResync(ctx, req)
}

// RefreshUnreadCount replaces the local counter with the server value.
// A value fetched before Clear is dropped with ErrStaleResponse.
func (s *Store) RefreshUnreadCount(ctx context.Context) (int, error) {
	gen := s.currentGeneration()
	n, err := s.gw.UnreadCount(ctx)
	if err != nil {
		s.log.Warn("refreshing unread count", zap.Error(err))
		return 0, err
	}
	if n < 0 {
		n = 0
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return 0, ErrStaleResponse
	}
	s.unread = n
	s.mu.Unlock()

	metrics.UnreadCount.Set(float64(n))
	s.notify()
	return n, nil
}

// RefreshStats replaces the stored statistics with the server value.
func (s *Store) RefreshStats(ctx context.Context) (*model.Stats, error) {
	gen := s.currentGeneration()
	stats, err := s.gw.Stats(ctx)
	if err != nil {
		s.log.Warn("refreshing stats", zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil, ErrStaleResponse
	}
	s.stats = stats
	s.mu.Unlock()

	s.notify()
	return stats, nil
}

// ApplyLocalTransition moves the matching records forward to status
// without contacting the server and returns how many changed. Records
// already at or past status are left alone.
func (s *Store) ApplyLocalTransition(ids []string, status model.Status) int {
	s.mu.Lock()
	n := s.applyTransitionLocked(ids, status, time.Now())
	s.mu.Unlock()

	if n > 0 {
		s.notify()
	}
	return n
}

func (s *Store) applyTransitionLocked(ids []string, status model.Status, now time.Time) int {
	want := idSet(ids)
	changed := 0
	for i := range s.notifications {
		n := &s.notifications[i]
		if _, ok := want[n.ID]; !ok {
			continue
		}
		if !n.Lifecycle.Status.CanTransitionTo(status) {
			continue
		}
		n.Lifecycle.Status = status
		if status == model.StatusRead && n.Lifecycle.ReadAt == nil {
			t := now
			n.Lifecycle.ReadAt = &t
		}
		changed++
	}
	return changed
}

// RemoveLocal drops the matching records from the list and from the
// selection, returning how many records were removed.
func (s *Store) RemoveLocal(ids []string) int {
	s.mu.Lock()
	n := s.removeLocked(ids)
	s.mu.Unlock()

	s.notify()
	return n
}

func (s *Store) removeLocked(ids []string) int {
	drop := idSet(ids)
	kept := s.notifications[:0]
	removed := 0
	for _, n := range s.notifications {
		if _, ok := drop[n.ID]; ok {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	s.notifications = kept
	s.sel.Prune(ids)
	return removed
}

// AdjustUnreadCount adds delta to the counter, clamping at zero, and
// returns the new value.
func (s *Store) AdjustUnreadCount(delta int) int {
	s.mu.Lock()
	n := s.adjustLocked(delta)
	s.mu.Unlock()

	s.notify()
	return n
}

func (s *Store) adjustLocked(delta int) int {
	s.unread += delta
	if s.unread < 0 {
		s.unread = 0
	}
	metrics.UnreadCount.Set(float64(s.unread))
	return s.unread
}

// UnreadAmong counts the loaded records in ids that are still unread.
func (s *Store) UnreadAmong(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unreadAmongLocked(ids)
}

func (s *Store) unreadAmongLocked(ids []string) int {
	want := idSet(ids)
	count := 0
	for _, n := range s.notifications {
		if _, ok := want[n.ID]; ok && n.Lifecycle.Status.IsUnread() {
			count++
		}
	}
	return count
}

// commitTransition applies an acknowledged read transition: the unread
// delta is counted before the records change, then the counter is
// lowered by it. It returns the delta.
func (s *Store) commitTransition(ids []string, status model.Status) int {
	s.mu.Lock()
	delta := s.unreadAmongLocked(ids)
	s.applyTransitionLocked(ids, status, time.Now())
	s.adjustLocked(-delta)
	s.mu.Unlock()

	s.notify()
	return delta
}

// commitRemoval applies an acknowledged archive or delete. Only unread
// records among those removed lower the counter.
func (s *Store) commitRemoval(ids []string) int {
	s.mu.Lock()
	delta := s.unreadAmongLocked(ids)
	s.removeLocked(ids)
	s.adjustLocked(-delta)
	s.mu.Unlock()

	s.notify()
	return delta
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
