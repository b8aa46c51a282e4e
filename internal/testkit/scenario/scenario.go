// Package scenario drives a fully wired engine over the in-memory runtime so
// tests can script container churn and check the synchronization invariants
// after every refresh.
package scenario

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	compose "github.com/compose-spec/compose-go/v2/types"

	"berth/internal/adapter/fake"
	"berth/internal/check"
	"berth/internal/engine"
	"berth/internal/notify"
	"berth/internal/observed"
)

const (
	defaultStaleEvictCycles = 3
	defaultPendingTTL       = 30 * time.Second
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Config defines how a Scenario is composed.
type Config struct {
	// Containers seeds this many containers, alternating running and exited.
	Containers int
	// Projects assigns seeded containers to compose projects round robin.
	// An empty name leaves the container ungrouped.
	Projects         []string
	StaleEvictCycles int
	PendingTTL       time.Duration
}

// Scenario is one engine plus the fakes behind it.
type Scenario struct {
	Runtime  *fake.Runtime
	Clock    *fake.Clock
	Notifier *fake.Notifier
	Engine   *engine.Engine

	projects []string

	mu     sync.Mutex
	nextID int
	faults map[string]bool
	// user holds ids acted on by this process since the last cycle.
	user   map[string]observed.ActionKind
	cycles []Cycle
}

// Cycle is the observable result of one refresh.
type Cycle struct {
	Seq    uint64
	Prev   []string
	Next   []string
	Events []observed.Event
	// User is the set of ids acted on before this cycle ran.
	User map[string]observed.ActionKind
	Err  error
}

func New(cfg Config) (*Scenario, error) {
	if cfg.Containers < 0 {
		return nil, fmt.Errorf("containers must not be negative, got %d", cfg.Containers)
	}
	if cfg.StaleEvictCycles <= 0 {
		cfg.StaleEvictCycles = defaultStaleEvictCycles
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}

	clock := fake.NewClock(epoch)
	rt := fake.NewRuntime()
	rt.Now = clock.Now
	s := &Scenario{
		Runtime:  rt,
		Clock:    clock,
		Notifier: &fake.Notifier{},
		projects: slices.Clone(cfg.Projects),
		faults:   make(map[string]bool),
		user:     make(map[string]observed.ActionKind),
	}
	rt.InspectErr = s.inspectFault

	s.Engine = engine.New(rt,
		engine.WithClock(clock),
		engine.WithNotifier(s.Notifier),
		engine.WithStaleEviction(cfg.StaleEvictCycles),
		engine.WithPendingTTL(cfg.PendingTTL),
		engine.WithConcurrency(4),
	)
	for i := range cfg.Containers {
		st := observed.StateRunning
		if i%2 == 1 {
			st = observed.StateExited
		}
		s.AddContainer(st)
	}
	return s, nil
}

// MustNew is New but fails the test immediately on error.
func MustNew(t testing.TB, cfg Config) *Scenario {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}
	t.Cleanup(s.Engine.Close)
	return s
}

func (s *Scenario) inspectFault(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults[id] {
		return fmt.Errorf("inspect %s: %w", id, observed.ErrDaemon)
	}
	return nil
}

// AddContainer creates a container behind the engine's back and returns its id.
func (s *Scenario) AddContainer(st observed.State) string {
	s.mu.Lock()
	n := s.nextID
	s.nextID++
	s.mu.Unlock()

	id := fmt.Sprintf("c%03d", n)
	c := observed.Container{
		ID:        id,
		Name:      "svc-" + id,
		Image:     "busybox",
		State:     st,
		CreatedAt: s.Clock.Now(),
	}
	if st == observed.StateRunning {
		c.StartedAt = s.Clock.Now()
	}
	if len(s.projects) > 0 {
		if p := s.projects[n%len(s.projects)]; p != "" {
			c.Labels = compose.Labels{observed.ProjectLabel: p}
		}
	}
	s.Runtime.AddContainer(c)
	return id
}

// IDs returns the containers the runtime currently knows, in list order.
func (s *Scenario) IDs(ctx context.Context) []string {
	list, err := s.Runtime.ListContainers(ctx)
	check.Assertf(err == nil, "scenario list: %v", err)
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.ID)
	}
	return out
}

// States maps every runtime container to its current state.
func (s *Scenario) States(ctx context.Context) map[string]observed.State {
	list, _ := s.Runtime.ListContainers(ctx)
	out := make(map[string]observed.State, len(list))
	for _, c := range list {
		out[c.ID] = c.State
	}
	return out
}

// SetFault makes per-container inspection of id fail until cleared.
func (s *Scenario) SetFault(id string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.faults[id] = true
	} else {
		delete(s.faults, id)
	}
}

func (s *Scenario) Faulted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faults[id]
}

// Act issues a lifecycle action through the engine and remembers it for the
// next cycle's attribution check.
func (s *Scenario) Act(ctx context.Context, id string, kind observed.ActionKind) error {
	var err error
	switch kind {
	case observed.ActionStart:
		err = s.Engine.Start(ctx, id)
	case observed.ActionStop:
		err = s.Engine.Stop(ctx, id)
	case observed.ActionRestart:
		err = s.Engine.Restart(ctx, id)
	case observed.ActionDelete:
		err = s.Engine.Remove(ctx, id)
	default:
		return fmt.Errorf("unsupported action %s", kind)
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.user[id] = kind
	s.mu.Unlock()
	return nil
}

// Refresh runs one engine cycle and records what it observed.
func (s *Scenario) Refresh(ctx context.Context) Cycle {
	var prev []string
	if snap := s.Engine.Snapshot(); snap != nil {
		prev = snap.IDs()
	}
	s.mu.Lock()
	user := s.user
	s.user = make(map[string]observed.ActionKind)
	s.mu.Unlock()

	out, err := s.Engine.RefreshOnce(ctx)
	c := Cycle{Seq: out.Seq, Prev: prev, Events: out.Events, User: user, Err: err}
	if snap := s.Engine.Snapshot(); snap != nil {
		c.Next = snap.IDs()
	}

	s.mu.Lock()
	s.cycles = append(s.cycles, c)
	s.mu.Unlock()
	return c
}

// Cycles returns every recorded cycle, oldest first.
func (s *Scenario) Cycles() []Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cycles)
}

// LastCycle returns the most recent cycle, if any.
func (s *Scenario) LastCycle() (Cycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cycles) == 0 {
		return Cycle{}, false
	}
	return s.cycles[len(s.cycles)-1], true
}

// ExpectedNotifications counts events the notification policy accepts
// across every cycle.
func (s *Scenario) ExpectedNotifications() int {
	n := 0
	for _, c := range s.Cycles() {
		for _, ev := range c.Events {
			if _, ok := notify.For(ev); ok {
				n++
			}
		}
	}
	return n
}
