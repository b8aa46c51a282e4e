package scenario

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"berth/internal/check"
	"berth/internal/observed"
)

const (
	defaultChaosMaxEvents     = 4096
	defaultChaosOpWeight      = 1
	defaultChaosMaxContainers = 24
	chaosStepDuration         = time.Second
)

// ChaosOperation mutates runtime or engine state for one chaos step.
type ChaosOperation struct {
	Name   string
	Weight int
	Run    func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error)
}

// ChaosInvariant verifies a post-cycle invariant.
type ChaosInvariant struct {
	Name  string
	Check func(ctx context.Context, s *Scenario) error
}

// ChaosEvent records one executed step for replay.
type ChaosEvent struct {
	Step              int
	Seed              int64
	Timestamp         time.Time
	Operation         string
	Detail            string
	OperationError    string
	InvariantFailures []string
}

type ChaosRunnerConfig struct {
	Seed       int64
	MaxEvents  int
	Operations []ChaosOperation
	Invariants []ChaosInvariant
}

// ChaosRunner executes reproducible steps. Each step runs one operation,
// advances the clock, refreshes once and checks every invariant.
type ChaosRunner struct {
	mu         sync.Mutex
	scenario   *Scenario
	rng        *rand.Rand
	seed       int64
	step       int
	maxEvents  int
	operations []ChaosOperation
	invariants []ChaosInvariant
	events     []ChaosEvent
}

func NewChaosRunner(s *Scenario, cfg ChaosRunnerConfig) (*ChaosRunner, error) {
	check.Assert(s != nil, "NewChaosRunner: scenario must not be nil")
	if s == nil {
		return nil, fmt.Errorf("scenario is required")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = defaultChaosMaxEvents
	}

	ops := cfg.Operations
	if len(ops) == 0 {
		ops = DefaultChaosOperations()
	}
	for _, op := range ops {
		if strings.TrimSpace(op.Name) == "" {
			return nil, fmt.Errorf("chaos operation name is required")
		}
		if op.Run == nil {
			return nil, fmt.Errorf("chaos operation %q run func is required", op.Name)
		}
	}

	invariants := cfg.Invariants
	if len(invariants) == 0 {
		invariants = DefaultChaosInvariants()
	}
	for _, inv := range invariants {
		if strings.TrimSpace(inv.Name) == "" {
			return nil, fmt.Errorf("chaos invariant name is required")
		}
		if inv.Check == nil {
			return nil, fmt.Errorf("chaos invariant %q check func is required", inv.Name)
		}
	}

	return &ChaosRunner{
		scenario:   s,
		rng:        rand.New(rand.NewSource(seed)),
		seed:       seed,
		maxEvents:  maxEvents,
		operations: slices.Clone(ops),
		invariants: slices.Clone(invariants),
		events:     make([]ChaosEvent, 0, min(maxEvents, 128)),
	}, nil
}

func (r *ChaosRunner) Seed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seed
}

func (r *ChaosRunner) ReplayLog() []ChaosEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChaosEvent, len(r.events))
	for i, ev := range r.events {
		out[i] = ev
		out[i].InvariantFailures = slices.Clone(ev.InvariantFailures)
	}
	return out
}

func (r *ChaosRunner) Step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	op, err := chooseChaosOperation(r.rng, r.operations)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.step++
	step := r.step
	seed := r.seed
	r.mu.Unlock()

	detail, opErr := op.Run(ctx, r.scenario, r.rng)
	r.scenario.Clock.Advance(chaosStepDuration)
	r.scenario.Refresh(ctx)
	invFailures := r.checkInvariants(ctx)

	event := ChaosEvent{
		Step:              step,
		Seed:              seed,
		Timestamp:         r.scenario.Clock.Now(),
		Operation:         op.Name,
		Detail:            detail,
		InvariantFailures: invFailures,
	}
	if opErr != nil {
		event.OperationError = opErr.Error()
	}
	r.appendEvent(event)

	if opErr != nil {
		return fmt.Errorf("chaos step %d op %q: %w", step, op.Name, opErr)
	}
	if len(invFailures) > 0 {
		return fmt.Errorf("chaos step %d (seed %d, op %s: %s) invariant failures: %s",
			step, seed, op.Name, detail, strings.Join(invFailures, "; "))
	}
	return nil
}

func (r *ChaosRunner) Run(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("steps must be > 0")
	}
	for range steps {
		if err := r.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChaosRunner) checkInvariants(ctx context.Context) []string {
	r.mu.Lock()
	invariants := slices.Clone(r.invariants)
	r.mu.Unlock()

	var failures []string
	for _, inv := range invariants {
		if err := inv.Check(ctx, r.scenario); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", inv.Name, err))
		}
	}
	sort.Strings(failures)
	return failures
}

func (r *ChaosRunner) appendEvent(event ChaosEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if len(r.events) > r.maxEvents {
		r.events = r.events[len(r.events)-r.maxEvents:]
	}
}

func chooseChaosOperation(rng *rand.Rand, ops []ChaosOperation) (ChaosOperation, error) {
	total := 0
	for _, op := range ops {
		total += max(op.Weight, defaultChaosOpWeight)
	}
	if total <= 0 {
		return ChaosOperation{}, fmt.Errorf("no chaos operations registered")
	}
	pick := rng.Intn(total)
	for _, op := range ops {
		w := max(op.Weight, defaultChaosOpWeight)
		if pick < w {
			return op, nil
		}
		pick -= w
	}
	return ChaosOperation{}, fmt.Errorf("failed to choose chaos operation")
}

func pickID(ctx context.Context, s *Scenario, rng *rand.Rand) (string, bool) {
	ids := s.IDs(ctx)
	if len(ids) == 0 {
		return "", false
	}
	return ids[rng.Intn(len(ids))], true
}

func userAction(kind observed.ActionKind) func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
	return func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
		id, ok := pickID(ctx, s, rng)
		if !ok {
			return "skip: no containers", nil
		}
		if _, err := s.Engine.Resolve(id); err != nil {
			return fmt.Sprintf("skip: %s not observed yet", id), nil
		}
		if err := s.Act(ctx, id, kind); err != nil {
			return "", err
		}
		return fmt.Sprintf("user %s %s", kind, id), nil
	}
}

func DefaultChaosOperations() []ChaosOperation {
	return []ChaosOperation{
		{
			Name:   "external_stop",
			Weight: 3,
			Run: func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				id, ok := pickID(ctx, s, rng)
				if !ok {
					return "skip: no containers", nil
				}
				s.Runtime.SetState(id, observed.StateExited)
				return "external stop " + id, nil
			},
		},
		{
			Name:   "external_start",
			Weight: 3,
			Run: func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				id, ok := pickID(ctx, s, rng)
				if !ok {
					return "skip: no containers", nil
				}
				now := s.Clock.Now()
				s.Runtime.Update(id, func(c *observed.Container) {
					c.State = observed.StateRunning
					c.StartedAt = now
				})
				return "external start " + id, nil
			},
		},
		{
			Name:   "external_remove",
			Weight: 1,
			Run: func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				id, ok := pickID(ctx, s, rng)
				if !ok {
					return "skip: no containers", nil
				}
				s.Runtime.Drop(id)
				s.SetFault(id, false)
				return "external remove " + id, nil
			},
		},
		{
			Name:   "add_container",
			Weight: 2,
			Run: func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				if len(s.IDs(ctx)) >= defaultChaosMaxContainers {
					return fmt.Sprintf("skip: max containers (%d)", defaultChaosMaxContainers), nil
				}
				st := observed.StateCreated
				if rng.Intn(2) == 0 {
					st = observed.StateRunning
				}
				return "added " + s.AddContainer(st), nil
			},
		},
		{
			Name:   "flip_health",
			Weight: 2,
			Run: func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				id, ok := pickID(ctx, s, rng)
				if !ok {
					return "skip: no containers", nil
				}
				h := []observed.Health{observed.HealthNone, observed.HealthStarting, observed.HealthHealthy, observed.HealthUnhealthy}[rng.Intn(4)]
				s.Runtime.SetHealth(id, h)
				return fmt.Sprintf("health %s %s", id, h), nil
			},
		},
		{
			Name:   "inspect_fault",
			Weight: 1,
			Run: func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				id, ok := pickID(ctx, s, rng)
				if !ok {
					return "skip: no containers", nil
				}
				on := !s.Faulted(id)
				s.SetFault(id, on)
				return fmt.Sprintf("fault %s=%t", id, on), nil
			},
		},
		{Name: "user_start", Weight: 2, Run: userAction(observed.ActionStart)},
		{Name: "user_stop", Weight: 2, Run: userAction(observed.ActionStop)},
		{Name: "user_restart", Weight: 1, Run: userAction(observed.ActionRestart)},
		{Name: "user_remove", Weight: 1, Run: userAction(observed.ActionDelete)},
		{
			Name:   "idle",
			Weight: 2,
			Run: func(ctx context.Context, s *Scenario, rng *rand.Rand) (string, error) {
				return "idle", nil
			},
		},
	}
}

func DefaultChaosInvariants() []ChaosInvariant {
	return []ChaosInvariant{
		{
			Name: "cycle_committed",
			Check: func(ctx context.Context, s *Scenario) error {
				c, ok := s.LastCycle()
				if !ok {
					return fmt.Errorf("no cycle recorded")
				}
				if c.Err != nil {
					return fmt.Errorf("refresh failed: %w", c.Err)
				}
				if want := uint64(len(s.Cycles())); c.Seq != want {
					return fmt.Errorf("seq %d after %d cycles", c.Seq, want)
				}
				return nil
			},
		},
		{
			Name: "snapshot_matches_runtime",
			Check: func(ctx context.Context, s *Scenario) error {
				snap := s.Engine.Snapshot()
				states := s.States(ctx)
				for c := range snap.All() {
					want, ok := states[c.ID]
					if !ok {
						return fmt.Errorf("%s observed but gone from the runtime", c.ID)
					}
					if c.State != want {
						return fmt.Errorf("%s observed %s, runtime %s", c.ID, c.State, want)
					}
					if c.Stale != s.Faulted(c.ID) {
						return fmt.Errorf("%s stale=%t with fault=%t", c.ID, c.Stale, s.Faulted(c.ID))
					}
				}
				for id := range states {
					if !snap.Has(id) && !s.Faulted(id) {
						return fmt.Errorf("%s exists but is not observed", id)
					}
				}
				return nil
			},
		},
		{
			Name: "events_replay_membership",
			Check: func(ctx context.Context, s *Scenario) error {
				c, _ := s.LastCycle()
				members := make(map[string]bool, len(c.Prev))
				for _, id := range c.Prev {
					members[id] = true
				}
				for _, ev := range c.Events {
					switch ev.Kind {
					case observed.EventAppeared:
						if members[ev.ContainerID] {
							return fmt.Errorf("%s appeared twice", ev.ContainerID)
						}
						members[ev.ContainerID] = true
					case observed.EventDisappeared:
						if !members[ev.ContainerID] {
							return fmt.Errorf("%s disappeared without being present", ev.ContainerID)
						}
						delete(members, ev.ContainerID)
					}
				}
				if len(members) != len(c.Next) {
					return fmt.Errorf("replayed %d members, snapshot has %d", len(members), len(c.Next))
				}
				for _, id := range c.Next {
					if !members[id] {
						return fmt.Errorf("%s in snapshot but not in replay", id)
					}
				}
				return nil
			},
		},
		{
			Name: "user_actions_attributed",
			Check: func(ctx context.Context, s *Scenario) error {
				c, _ := s.LastCycle()
				for _, ev := range c.Events {
					if _, acted := c.User[ev.ContainerID]; !acted {
						continue
					}
					if ev.Kind == observed.EventHealthChanged || ev.Kind == observed.EventAppeared {
						continue
					}
					if !ev.UserInitiated {
						return fmt.Errorf("%v follows a user action but is not attributed", ev)
					}
				}
				return nil
			},
		},
		{
			Name: "notifications_follow_policy",
			Check: func(ctx context.Context, s *Scenario) error {
				if got, want := len(s.Notifier.Sent()), s.ExpectedNotifications(); got != want {
					return fmt.Errorf("sent %d notifications, policy expects %d", got, want)
				}
				return nil
			},
		},
	}
}
