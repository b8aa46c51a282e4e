// Package engine wires the refresh cycle, poll scheduler, state store, log
// streams and lifecycle actions into the single surface the CLI consumes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"berth/internal/check"
	"berth/internal/grouping"
	"berth/internal/logstream"
	"berth/internal/notify"
	"berth/internal/observed"
	"berth/internal/poll"
	"berth/internal/refresh"
	"berth/internal/state"
	"berth/internal/watch"
)

var (
	ErrAlreadyRunning = errors.New("engine already running")
	ErrUnknownGroup   = errors.New("unknown compose group")
	ErrAmbiguous      = errors.New("ambiguous container reference")
)

// Status is the engine state shown by the degraded indicator.
type Status struct {
	Phase   Phase
	LastErr error
	Seq     uint64
	Polls   poll.Counters
}

type Engine struct {
	runtime   observed.Runtime
	store     *state.Store
	broker    *watch.Broker
	refresher *refresh.Refresher
	scheduler *poll.Scheduler
	logs      *logstream.Manager
	collapsed *grouping.CollapseSet
	prefs     Preferences

	started atomic.Bool

	mu      sync.Mutex
	phase   Phase
	lastErr error

	log *slog.Logger
}

type settings struct {
	interval    time.Duration
	ticker      poll.TickerFunc
	concurrency int
	evictAfter  int
	pendingTTL  time.Duration
	clock       observed.Clock
	tracer      trace.Tracer
	notifier    notify.Notifier
	prefs       Preferences
	logOpts     []logstream.Option
}

type EngineOption func(*settings)

func WithPollInterval(d time.Duration) EngineOption {
	return func(s *settings) { s.interval = d }
}

// WithTicker replaces the wall-clock poll ticker.
func WithTicker(f poll.TickerFunc) EngineOption {
	return func(s *settings) { s.ticker = f }
}

func WithConcurrency(n int) EngineOption {
	return func(s *settings) { s.concurrency = n }
}

func WithStaleEviction(cycles int) EngineOption {
	return func(s *settings) { s.evictAfter = cycles }
}

func WithPendingTTL(d time.Duration) EngineOption {
	return func(s *settings) { s.pendingTTL = d }
}

func WithClock(c observed.Clock) EngineOption {
	return func(s *settings) { s.clock = c }
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(s *settings) { s.tracer = t }
}

// WithNotifier enables alerts for transitions this process did not cause.
func WithNotifier(n notify.Notifier) EngineOption {
	return func(s *settings) { s.notifier = n }
}

// WithPreferences persists collapsed groups across restarts.
func WithPreferences(p Preferences) EngineOption {
	return func(s *settings) { s.prefs = p }
}

func WithLogOptions(opts ...logstream.Option) EngineOption {
	return func(s *settings) { s.logOpts = append(s.logOpts, opts...) }
}

func New(rt observed.Runtime, opts ...EngineOption) *Engine {
	check.Assert(rt != nil, "engine.New: runtime must not be nil")
	s := settings{clock: observed.RealClock{}}
	for _, opt := range opts {
		opt(&s)
	}

	storeOpts := []state.Option{state.WithClock(s.clock)}
	if s.pendingTTL > 0 {
		storeOpts = append(storeOpts, state.WithPendingTTL(s.pendingTTL))
	}
	store := state.New(storeOpts...)
	broker := watch.NewBroker()

	refreshOpts := []refresh.Option{
		refresh.WithBroker(broker),
		refresh.WithClock(s.clock),
		refresh.WithConcurrency(s.concurrency),
		refresh.WithStaleEviction(s.evictAfter),
		refresh.WithTracer(s.tracer),
	}
	if s.notifier != nil {
		refreshOpts = append(refreshOpts, refresh.WithDispatcher(notify.NewDispatcher(s.notifier)))
	}

	e := &Engine{
		runtime:   rt,
		store:     store,
		broker:    broker,
		refresher: refresh.New(rt, store, refreshOpts...),
		logs:      logstream.NewManager(rt, s.logOpts...),
		collapsed: grouping.NewCollapseSet(),
		prefs:     s.prefs,
		phase:     PhaseAbsent,
		log:       slog.With("component", "engine"),
	}

	pollOpts := []poll.Option{poll.WithInterval(s.interval)}
	if s.ticker != nil {
		pollOpts = append(pollOpts, poll.WithTicker(s.ticker))
	}
	e.scheduler = poll.New(e.cycle, pollOpts...)
	return e
}

// Run polls until ctx is cancelled. An unreachable daemon degrades the
// engine instead of failing it. Run may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.setPhase(PhaseStarting)
	if err := e.LoadPreferences(ctx); err != nil {
		e.log.Warn("preferences unavailable", "err", err)
	}
	e.log.Info("engine starting", "interval", e.scheduler.Interval())

	e.scheduler.Run(ctx)

	e.setPhase(PhaseStopping)
	e.broker.Close()
	e.setPhase(PhaseAbsent)
	e.log.Info("engine stopped")
	return nil
}

// RefreshOnce runs a single cycle outside the scheduler. Cycles are
// serialized, so this is safe while Run is active.
func (e *Engine) RefreshOnce(ctx context.Context) (refresh.Outcome, error) {
	out, err := e.refresher.Cycle(ctx)
	if ctx.Err() == nil {
		e.recordCycle(err)
	}
	return out, err
}

// Refresh asks the running scheduler for an immediate cycle.
func (e *Engine) Refresh() { e.scheduler.Trigger() }

func (e *Engine) cycle(ctx context.Context) {
	_, err := e.refresher.Cycle(ctx)
	if ctx.Err() != nil {
		return
	}
	e.recordCycle(err)
}

func (e *Engine) recordCycle(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastErr = err
	switch {
	case err != nil && (e.phase == PhaseRunning || e.phase == PhaseStarting):
		e.phase = e.phase.Transition(PhaseDegraded)
		e.log.Warn("engine degraded", "err", err)
	case err == nil && (e.phase == PhaseDegraded || e.phase == PhaseStarting):
		if e.phase == PhaseDegraded {
			e.log.Info("engine recovered")
		}
		e.phase = e.phase.Transition(PhaseRunning)
	}
}

func (e *Engine) setPhase(to Phase) {
	e.mu.Lock()
	e.phase = e.phase.Transition(to)
	e.mu.Unlock()
}

// LoadPreferences restores persisted collapsed groups. Run calls it; one-shot
// callers that never Run call it themselves.
func (e *Engine) LoadPreferences(ctx context.Context) error {
	if e.prefs == nil {
		return nil
	}
	projects, err := e.prefs.CollapsedGroups(ctx)
	if err != nil {
		return fmt.Errorf("load collapsed groups: %w", err)
	}
	for _, p := range projects {
		e.collapsed.Set(p, true)
	}
	return nil
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	st := Status{Phase: e.phase, LastErr: e.lastErr}
	e.mu.Unlock()
	if snap := e.store.Current(); snap != nil {
		st.Seq = snap.Seq
	}
	st.Polls = e.scheduler.Counters()
	return st
}

// Snapshot returns the last committed snapshot, or nil before the first cycle.
func (e *Engine) Snapshot() *observed.Snapshot { return e.store.Current() }

// Subscribe returns the current state and a channel of later updates. The
// channel closes when ctx is done or the engine stops.
func (e *Engine) Subscribe(ctx context.Context) (watch.Update, <-chan watch.Update) {
	return e.broker.Subscribe(ctx)
}

// Pending reports the live pending action for a container, if any.
func (e *Engine) Pending(id string) (observed.PendingAction, bool) {
	return e.store.PendingAction(id)
}

// Groups returns the current grouping, filtered by query.
func (e *Engine) Groups(query string) grouping.View {
	return grouping.Filter(grouping.Build(e.store.Current(), e.collapsed), query)
}

// ToggleGroup flips a group's collapsed flag and persists it. On a persist
// failure the flag is reverted.
func (e *Engine) ToggleGroup(ctx context.Context, project string) (bool, error) {
	if project == "" {
		return false, fmt.Errorf("toggle group: %w", ErrUnknownGroup)
	}
	collapsed := e.collapsed.Toggle(project)
	if e.prefs == nil {
		return collapsed, nil
	}
	if err := e.prefs.SetGroupCollapsed(ctx, project, collapsed); err != nil {
		e.collapsed.Set(project, !collapsed)
		return !collapsed, fmt.Errorf("persist group %q: %w", project, err)
	}
	return collapsed, nil
}

// Resolve finds a container in the current snapshot by id, name or unique
// id prefix.
func (e *Engine) Resolve(ref string) (observed.Container, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "/")
	snap := e.store.Current()
	if ref == "" || snap == nil {
		return observed.Container{}, fmt.Errorf("resolve %q: %w", ref, observed.ErrNotFound)
	}
	if c, ok := snap.Get(ref); ok {
		return c, nil
	}
	var matches []observed.Container
	for c := range snap.All() {
		if c.Name == ref {
			return c, nil
		}
		if strings.HasPrefix(c.ID, ref) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return observed.Container{}, fmt.Errorf("resolve %q: %w", ref, observed.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return observed.Container{}, fmt.Errorf("resolve %q matches %d containers: %w", ref, len(matches), ErrAmbiguous)
	}
}

// Details inspects a container for the details pane.
func (e *Engine) Details(ctx context.Context, id string) (observed.Details, error) {
	return e.runtime.Details(ctx, id)
}

// SubscribeLogs opens an independent log stream for a container.
func (e *Engine) SubscribeLogs(id string) (*logstream.Handle, error) {
	return e.logs.Subscribe(id)
}

func (e *Engine) UnsubscribeLogs(h *logstream.Handle) { e.logs.Unsubscribe(h) }

// Close releases every log stream. The runtime is owned by the caller.
func (e *Engine) Close() {
	e.logs.Close()
}
