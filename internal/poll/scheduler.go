// Package poll drives refresh cycles at a fixed interval.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"berth/internal/check"
)

const DefaultInterval = 3 * time.Second

// CycleFunc performs one refresh cycle. It must return promptly once ctx is
// cancelled.
type CycleFunc func(ctx context.Context)

// TickerFunc returns a tick channel and its stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Counters are the scheduler's lifetime totals.
type Counters struct {
	Ticks   uint64
	Cycles  uint64
	Dropped uint64
}

// Scheduler runs at most one cycle at a time. A tick that lands while a cycle
// is in flight is dropped, never queued.
type Scheduler struct {
	interval  time.Duration
	cycle     CycleFunc
	newTicker TickerFunc

	trigger  chan struct{}
	inFlight atomic.Bool

	ticks   atomic.Uint64
	cycles  atomic.Uint64
	dropped atomic.Uint64
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTicker replaces the wall-clock ticker.
func WithTicker(f TickerFunc) Option {
	return func(s *Scheduler) { s.newTicker = f }
}

func New(cycle CycleFunc, opts ...Option) *Scheduler {
	check.Assert(cycle != nil, "poll.New: cycle must not be nil")
	s := &Scheduler{
		interval:  DefaultInterval,
		cycle:     cycle,
		newTicker: realTicker,
		trigger:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the configured tick interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Trigger requests an out-of-band cycle. Requests coalesce with each other
// and with ticks.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Counters returns a snapshot of the lifetime totals.
func (s *Scheduler) Counters() Counters {
	return Counters{
		Ticks:   s.ticks.Load(),
		Cycles:  s.cycles.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Run fires one cycle immediately and then one per tick until ctx is
// cancelled. It returns after the in-flight cycle, if any, has finished.
func (s *Scheduler) Run(ctx context.Context) {
	log := slog.With("component", "poll")
	ticks, stop := s.newTicker(s.interval)
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	fire := func(source string) {
		if !s.inFlight.CompareAndSwap(false, true) {
			s.dropped.Add(1)
			log.Debug("cycle still running, dropping tick", "source", source)
			return
		}
		wg.Go(func() {
			defer s.inFlight.Store(false)
			s.cycles.Add(1)
			s.cycle(ctx)
		})
	}

	log.Debug("scheduler started", "interval", s.interval)
	fire("start")
	for {
		select {
		case <-ctx.Done():
			log.Debug("scheduler stopping")
			return
		case <-ticks:
			s.ticks.Add(1)
			fire("tick")
		case <-s.trigger:
			fire("trigger")
		}
	}
}
