// Package refresh runs one synchronization cycle: list, fetch, aggregate,
// diff, commit and publish.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"berth/internal/check"
	"berth/internal/diff"
	"berth/internal/notify"
	"berth/internal/observed"
	"berth/internal/state"
	"berth/internal/stats"
	"berth/internal/watch"
)

const (
	DefaultConcurrency      = 8
	DefaultStaleEvictCycles = 5

	tracerName = "berth/refresh"
)

// Outcome summarises a committed cycle.
type Outcome struct {
	Seq     uint64
	Events  []observed.Event
	Stale   int
	Evicted int
	Elapsed time.Duration
}

// Refresher owns the write side of the state store. Cycles must not run
// concurrently; the poll scheduler guarantees that.
type Refresher struct {
	runtime    observed.Runtime
	store      *state.Store
	broker     *watch.Broker
	dispatcher *notify.Dispatcher
	tracer     trace.Tracer
	clock      observed.Clock

	concurrency int
	evictAfter  int

	mu  sync.Mutex
	seq uint64
	// evicted holds ids dropped for repeated failed fetches that the daemon
	// still lists. They stay out of the snapshot until a fetch succeeds.
	evicted map[string]struct{}

	log *slog.Logger
}

type Option func(*Refresher)

// WithConcurrency bounds the per-container fetch fan-out.
func WithConcurrency(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithStaleEviction drops a container after n consecutive failed fetches.
func WithStaleEviction(n int) Option {
	return func(r *Refresher) {
		if n > 0 {
			r.evictAfter = n
		}
	}
}

func WithBroker(b *watch.Broker) Option {
	return func(r *Refresher) { r.broker = b }
}

func WithDispatcher(d *notify.Dispatcher) Option {
	return func(r *Refresher) { r.dispatcher = d }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Refresher) {
		if t != nil {
			r.tracer = t
		}
	}
}

func WithClock(c observed.Clock) Option {
	return func(r *Refresher) { r.clock = c }
}

func New(rt observed.Runtime, store *state.Store, opts ...Option) *Refresher {
	check.Assert(rt != nil, "refresh.New: runtime must not be nil")
	check.Assert(store != nil, "refresh.New: store must not be nil")
	r := &Refresher{
		runtime:     rt,
		store:       store,
		tracer:      otel.Tracer(tracerName),
		clock:       observed.RealClock{},
		concurrency: DefaultConcurrency,
		evictAfter:  DefaultStaleEvictCycles,
		evicted:     make(map[string]struct{}),
		log:         slog.With("component", "refresh"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if cur := store.Current(); cur != nil {
		r.seq = cur.Seq
	}
	return r
}

// Cycle runs one refresh. When the container list cannot be fetched nothing
// is committed, subscribers receive the last good snapshot with the error,
// and the error is returned.
func (r *Refresher) Cycle(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	started := r.clock.Now()
	ctx, span := r.tracer.Start(ctx, "refresh.cycle")
	defer span.End()

	prev := r.store.Current()

	listCtx, listSpan := r.tracer.Start(ctx, "refresh.list")
	summaries, err := r.runtime.ListContainers(listCtx)
	if err != nil {
		listSpan.RecordError(err)
		listSpan.SetStatus(codes.Error, err.Error())
	}
	listSpan.SetAttributes(attribute.Int("containers", len(summaries)))
	listSpan.End()
	if err != nil {
		err = fmt.Errorf("list containers: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() == nil {
			r.log.Warn("refresh cycle degraded", "err", err)
			r.publish(watch.Update{Snapshot: prev, Err: err})
		}
		return Outcome{}, err
	}

	fetched := r.fetchAll(ctx, prev, summaries)
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	containers := make([]observed.Container, 0, len(fetched))
	evicted := make(map[string]struct{}, len(r.evicted))
	evictedNow := make(map[string]struct{})
	var out Outcome
	for _, f := range fetched {
		id := f.container.ID
		switch {
		case f.gone:
			continue
		case f.failed():
			if _, held := r.evicted[id]; held {
				evicted[id] = struct{}{}
				continue
			}
			if f.container.StaleCycles >= r.evictAfter {
				out.Evicted++
				evicted[id] = struct{}{}
				evictedNow[id] = struct{}{}
				r.log.Debug("evicting stale container", "container", f.container.ShortID(), "cycles", f.container.StaleCycles)
				continue
			}
		}
		if f.container.Stale {
			out.Stale++
		}
		containers = append(containers, f.container)
	}

	r.seq++
	next, err := observed.NewSnapshot(r.seq, r.clock.Now(), containers)
	if err != nil {
		// The daemon listed the same id twice; keep the previous snapshot.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.publish(watch.Update{Snapshot: prev, Err: err})
		return Outcome{}, err
	}

	res := diff.Compute(prev, next, r.store.PendingActions())
	for i, ev := range res.Events {
		if _, ok := evictedNow[ev.ContainerID]; ok && ev.Kind == observed.EventDisappeared {
			res.Events[i].Evicted = true
		}
	}
	r.store.Commit(next, res.Resolved)
	r.evicted = evicted

	out.Seq = next.Seq
	out.Events = res.Events
	out.Elapsed = r.clock.Now().Sub(started)
	span.SetAttributes(
		attribute.Int64("seq", int64(next.Seq)),
		attribute.Int("containers", next.Len()),
		attribute.Int("events", len(res.Events)),
		attribute.Int("stale", out.Stale),
		attribute.Int("evicted", out.Evicted),
	)

	r.publish(watch.Update{Snapshot: next, Events: res.Events})
	if sent := r.dispatcher.Dispatch(ctx, res.Events); sent > 0 {
		r.log.Debug("notifications sent", "count", sent)
	}
	r.log.Debug("refresh cycle committed", "seq", next.Seq, "containers", next.Len(), "events", len(res.Events), "elapsed", out.Elapsed)
	return out, nil
}

func (r *Refresher) publish(u watch.Update) {
	if r.broker != nil {
		r.broker.Publish(u)
	}
}

type fetchResult struct {
	container observed.Container
	gone      bool
}

// failed reports an inspect failure; a stats miss alone leaves StaleCycles at 0.
func (f fetchResult) failed() bool {
	return f.container.StaleCycles > 0
}

// fetchAll inspects every listed container and samples stats for running
// ones. Results keep the list order.
func (r *Refresher) fetchAll(ctx context.Context, prev *observed.Snapshot, summaries []observed.ContainerSummary) []fetchResult {
	ctx, span := r.tracer.Start(ctx, "refresh.fetch", trace.WithAttributes(
		attribute.Int("containers", len(summaries)),
		attribute.Int("concurrency", r.concurrency),
	))
	defer span.End()

	results := make([]fetchResult, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, sum := range summaries {
		g.Go(func() error {
			old, hadOld := prev.Get(sum.ID)
			results[i] = r.fetchOne(gctx, sum, old, hadOld)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Refresher) fetchOne(ctx context.Context, sum observed.ContainerSummary, old observed.Container, hadOld bool) fetchResult {
	c, err := r.runtime.Inspect(ctx, sum.ID)
	if err != nil {
		return r.carryOver(sum, old, hadOld, &observed.FetchError{ContainerID: sum.ID, Op: "inspect", Err: err})
	}
	if c.Name == "" {
		c.Name = sum.Name
	}
	if len(c.Ports) == 0 {
		c.Ports = sum.Ports
	}
	if c.Status == "" {
		c.Status = sum.Status
	}

	if !c.Running() {
		return fetchResult{container: c}
	}

	raw, err := r.runtime.FetchStats(ctx, sum.ID)
	if err != nil {
		if observed.IsNotFound(err) {
			return fetchResult{gone: true}
		}
		r.log.Debug("stats fetch failed, keeping previous sample", "container", c.ShortID(), "err", err)
		if hadOld && old.Running() {
			c.Stats, c.Raw = old.Stats, old.Raw
		}
		c.Stale = true
		return fetchResult{container: c}
	}

	var prevRaw *observed.RawStats
	if hadOld && old.Running() && !restarted(old, c) {
		prevRaw = old.Raw
	}
	c.Stats = stats.Aggregate(prevRaw, raw)
	c.Raw = &raw
	return fetchResult{container: c}
}

// carryOver handles a failed inspect. A vanished container is dropped; any
// other failure keeps the previous entry, marked stale.
func (r *Refresher) carryOver(sum observed.ContainerSummary, old observed.Container, hadOld bool, err error) fetchResult {
	if observed.IsNotFound(err) {
		r.log.Debug("container vanished during refresh", "container", observed.ShortID(sum.ID))
		return fetchResult{gone: true}
	}
	level := slog.LevelDebug
	if !errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	r.log.Log(context.Background(), level, "container fetch failed", "err", err)

	c := sum.Container()
	if hadOld {
		c = old
		// The list is authoritative for state even when inspect fails.
		c.State = sum.State
		c.Status = sum.Status
	}
	c.Stale = true
	c.StaleCycles = old.StaleCycles + 1
	if !c.Running() {
		c.Stats, c.Raw = observed.Stats{}, nil
	}
	return fetchResult{container: c}
}

// restarted reports whether cur is a new run of the container, in which case
// the previous cumulative counters do not apply.
func restarted(old, cur observed.Container) bool {
	return !cur.StartedAt.IsZero() && cur.StartedAt.After(old.StartedAt) && !old.StartedAt.IsZero()
}
