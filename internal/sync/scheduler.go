package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nhle/crm-notify/internal/inbox"
	"github.com/nhle/crm-notify/internal/logger"
	"github.com/nhle/crm-notify/internal/metrics"
)

// fetchTimeout is the maximum time allowed for a single tick or focus
// refresh, all of its requests included.
const fetchTimeout = 30 * time.Second

// DefaultInterval is the tick period used when Options.Interval is not set.
const DefaultInterval = 30 * time.Second

// Gate reports whether identity is still being determined. While it is,
// neither ticks nor focus refreshes issue requests.
type Gate interface {
	IsAuthenticationPending() bool
}

// Trigger says what started a refresh.
type Trigger int

const (
	TriggerInitial Trigger = iota
	TriggerTick
	TriggerFocus
)

func (t Trigger) String() string {
	switch t {
	case TriggerInitial:
		return "initial"
	case TriggerTick:
		return "tick"
	case TriggerFocus:
		return "focus"
	}
	return "unknown"
}

// Result is published after every refresh that issued requests.
type Result struct {
	Trigger Trigger
	Unread  int
	// NewCount is how much the unread counter rose since the previous
	// tick. Zero for initial and focus refreshes.
	NewCount int
	Resynced bool
	Err      error
}

// Status holds the scheduler's last observed activity.
type Status struct {
	Running   bool
	LastTick  time.Time
	LastFocus time.Time
	LastError error
}

// Options configures a Scheduler.
type Options struct {
	Interval time.Duration
	// FocusMinInterval is the minimum spacing between focus refreshes.
	// Zero disables the limit.
	FocusMinInterval time.Duration
	Gate             Gate
	Logger           *zap.Logger
}

// Scheduler keeps the store fresh without user action. A tick fetches only
// the unread counter and resyncs page 1 when it rose; a regained focus
// fetches both unconditionally.
type Scheduler struct {
	store    *inbox.Store
	gate     Gate
	interval time.Duration
	log      *zap.Logger
	limiter  *rate.Limiter

	focusCh  chan struct{}
	resultCh chan Result

	// tickSlot is held by the running tick, initial load or reload.
	tickSlot chan struct{}
	focusing atomic.Bool
	loaded   atomic.Bool

	mu      gosync.Mutex
	running bool
	stopCh  chan struct{}
	status  Status
}

// New creates a scheduler for store. Resyncs reuse the filters the store
// holds; only the filter controller changes them.
func New(store *inbox.Store, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	limit := rate.Inf
	if opts.FocusMinInterval > 0 {
		limit = rate.Every(opts.FocusMinInterval)
	}
	return &Scheduler{
		store:    store,
		gate:     opts.Gate,
		interval: opts.Interval,
		log:      logger.OrNop(opts.Logger),
		limiter:  rate.NewLimiter(limit, 1),
		tickSlot: make(chan struct{}, 1),
		focusCh:  make(chan struct{}, 1),
		resultCh: make(chan Result, 16),
	}
}

// Start runs the initial load and then the tick loop in the background
// until Stop is called or ctx is done. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.status.Running = true
	s.mu.Unlock()

	go s.loop(ctx, stop)
}

// Stop halts the tick loop. Refreshes already in flight finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
	s.status.Running = false
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// the first Tick performs the initial load
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			go s.Tick(ctx)
		case <-s.focusCh:
			go s.Focus(ctx)
		}
	}
}

// NotifyFocus requests a focus refresh from the running loop without
// blocking. Repeated notifications before the loop picks one up collapse.
func (s *Scheduler) NotifyFocus() {
	select {
	case s.focusCh <- struct{}{}:
	default:
	}
}

// Results returns the channel refresh outcomes are published on. Results
// are dropped when nobody reads them.
func (s *Scheduler) Results() <-chan Result {
	return s.resultCh
}

// Status returns a copy of the scheduler status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Scheduler) gated() bool {
	return s.gate != nil && s.gate.IsAuthenticationPending()
}

// load fetches the counter, the statistics and page 1. It is retried by
// the first tick that finds the gate open if the identity was pending at
// start.
func (s *Scheduler) load(ctx context.Context) {
	if s.gated() {
		s.log.Debug("initial load deferred, authentication pending")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var unread int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.RefreshUnreadCount(gctx)
		unread = n
		return err
	})
	g.Go(func() error {
		_, err := s.store.RefreshStats(gctx)
		return err
	})
	g.Go(func() error {
		return s.store.Refresh(gctx)
	})
	err := ignoreStale(g.Wait())
	if err == nil {
		s.loaded.Store(true)
	}

	s.record(func(st *Status) { st.LastTick = time.Now() }, err)
	s.publish(Result{Trigger: TriggerInitial, Unread: unread, Resynced: err == nil, Err: err})
}

// Tick fetches the unread counter and, when it rose above the last known
// value, resyncs page 1 under the active filters and refreshes the
// statistics. A tick that starts while another is in flight, or while
// authentication is pending, does nothing.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.gated() {
		metrics.SyncTicksTotal.WithLabelValues("skipped_auth").Inc()
		return
	}
	select {
	case s.tickSlot <- struct{}{}:
	default:
		metrics.SyncTicksTotal.WithLabelValues("skipped_busy").Inc()
		s.log.Debug("tick skipped, previous tick still in flight")
		return
	}
	defer func() { <-s.tickSlot }()

	if !s.loaded.Load() {
		s.load(ctx)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	previous := s.store.UnreadCount()
	current, err := s.store.RefreshUnreadCount(ctx)
	if errors.Is(err, inbox.ErrStaleResponse) {
		return
	}
	if err != nil {
		metrics.SyncTicksTotal.WithLabelValues("error").Inc()
		s.record(func(st *Status) { st.LastTick = time.Now() }, err)
		s.publish(Result{Trigger: TriggerTick, Unread: previous, Err: err})
		return
	}

	if current <= previous {
		metrics.SyncTicksTotal.WithLabelValues("unchanged").Inc()
		s.record(func(st *Status) { st.LastTick = time.Now() }, nil)
		return
	}

	s.log.Info("unread count rose, resyncing",
		zap.Int("previous", previous),
		zap.Int("current", current),
	)
	err = ignoreStale(s.store.Refresh(ctx))
	if err == nil {
		_, _ = s.store.RefreshStats(ctx)
		metrics.SyncTicksTotal.WithLabelValues("resynced").Inc()
	} else {
		metrics.SyncTicksTotal.WithLabelValues("error").Inc()
	}

	s.record(func(st *Status) { st.LastTick = time.Now() }, err)
	s.publish(Result{
		Trigger:  TriggerTick,
		Unread:   current,
		NewCount: current - previous,
		Resynced: err == nil,
		Err:      err,
	})
}

// Reload discards everything loaded for the previous identity and runs
// the initial load again. It waits for a running tick or load to finish
// first, so nothing fetched under the old identity lands afterwards.
func (s *Scheduler) Reload(ctx context.Context) error {
	select {
	case s.tickSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.tickSlot }()

	s.store.Clear()
	s.loaded.Store(false)
	s.log.Info("reloading inbox for new identity")
	s.load(ctx)
	return nil
}

// Focus fetches the unread counter and page 1 concurrently, then the
// statistics. Focus refreshes never overlap and are spaced at least
// FocusMinInterval apart; extra ones are dropped.
func (s *Scheduler) Focus(ctx context.Context) {
	if s.gated() {
		metrics.SyncFocusRefreshTotal.WithLabelValues("skipped_auth").Inc()
		return
	}
	if !s.focusing.CompareAndSwap(false, true) {
		metrics.SyncFocusRefreshTotal.WithLabelValues("skipped_busy").Inc()
		return
	}
	defer s.focusing.Store(false)

	if !s.limiter.Allow() {
		metrics.SyncFocusRefreshTotal.WithLabelValues("limited").Inc()
		s.log.Debug("focus refresh dropped by rate limit")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	var unread int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.store.RefreshUnreadCount(gctx)
		unread = n
		return err
	})
	g.Go(func() error {
		return s.store.Refresh(gctx)
	})
	err := ignoreStale(g.Wait())
	if err == nil {
		s.loaded.Store(true)
		_, _ = s.store.RefreshStats(ctx)
		metrics.SyncFocusRefreshTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.SyncFocusRefreshTotal.WithLabelValues("error").Inc()
		s.log.Warn("focus refresh failed", zap.Error(err))
	}

	s.record(func(st *Status) { st.LastFocus = time.Now() }, err)
	s.publish(Result{Trigger: TriggerFocus, Unread: unread, Resynced: err == nil, Err: err})
}

func (s *Scheduler) record(update func(*Status), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.status)
	s.status.LastError = err
}

// publish sends r without blocking.
func (s *Scheduler) publish(r Result) {
	select {
	case s.resultCh <- r:
	default:
	}
}

// ignoreStale treats a response dropped in favor of a newer one as done.
func ignoreStale(err error) error {
	if errors.Is(err, inbox.ErrStaleResponse) {
		return nil
	}
	return err
}
