// Package state holds the committed snapshot and the pending action ledger.
//
// Readers never block on a commit: the current snapshot is swapped
// atomically and a reader always sees either the previous or the next one,
// never a mix.
package state

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"berth/internal/check"
	"berth/internal/observed"
)

const DefaultPendingTTL = 30 * time.Second

// Store is safe for concurrent use by one writer and any number of readers.
type Store struct {
	clock observed.Clock
	ttl   time.Duration

	current atomic.Pointer[observed.Snapshot]

	mu      sync.Mutex
	pending map[string]observed.PendingAction
}

type Option func(*Store)

// WithClock injects the time source used to stamp and expire pending actions.
func WithClock(c observed.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithPendingTTL sets how long a pending action stays eligible for matching.
func WithPendingTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		clock:   observed.RealClock{},
		ttl:     DefaultPendingTTL,
		pending: make(map[string]observed.PendingAction),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the last committed snapshot, or nil before the first commit.
func (s *Store) Current() *observed.Snapshot {
	return s.current.Load()
}

// Commit publishes snap as the current snapshot, clears the resolved pending
// actions and sweeps expired ones. A resolved action is cleared only while it
// is still the ledger entry for its container; an action recorded after the
// diff read the ledger survives. Sequence numbers must increase.
func (s *Store) Commit(snap *observed.Snapshot, resolved []observed.PendingAction) {
	check.Assert(snap != nil, "state.Commit: snapshot must not be nil")
	if prev := s.current.Load(); prev != nil {
		check.Assertf(snap.Seq > prev.Seq, "state.Commit: seq %d does not follow %d", snap.Seq, prev.Seq)
	}
	s.current.Store(snap)

	now := s.clock.Now()
	s.mu.Lock()
	for _, r := range resolved {
		if p, ok := s.pending[r.ContainerID]; ok && p.Kind == r.Kind && p.IssuedAt.Equal(r.IssuedAt) {
			delete(s.pending, r.ContainerID)
		}
	}
	swept := 0
	for id, p := range s.pending {
		if p.Expired(now) {
			delete(s.pending, id)
			swept++
		}
	}
	s.mu.Unlock()

	if swept > 0 {
		slog.Debug("pending actions expired", "component", "state", "count", swept)
	}
}

// RecordPendingAction stamps a new action for containerID. At most one action
// is pending per container; a newer action replaces the previous one.
func (s *Store) RecordPendingAction(containerID string, kind observed.ActionKind) observed.PendingAction {
	p := observed.PendingAction{
		ContainerID: containerID,
		Kind:        kind,
		IssuedAt:    s.clock.Now(),
		TTL:         s.ttl,
	}
	s.mu.Lock()
	s.pending[containerID] = p
	s.mu.Unlock()
	return p
}

// ClearPendingAction drops the pending action for containerID, if any.
func (s *Store) ClearPendingAction(containerID string) {
	s.mu.Lock()
	delete(s.pending, containerID)
	s.mu.Unlock()
}

// PendingAction returns the unexpired action for containerID.
func (s *Store) PendingAction(containerID string) (observed.PendingAction, bool) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[containerID]
	if !ok || p.Expired(now) {
		return observed.PendingAction{}, false
	}
	return p, true
}

// PendingActions returns unexpired actions sorted by container id.
func (s *Store) PendingActions() []observed.PendingAction {
	now := s.clock.Now()
	s.mu.Lock()
	out := make([]observed.PendingAction, 0, len(s.pending))
	for _, p := range s.pending {
		if !p.Expired(now) {
			out = append(out, p)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b observed.PendingAction) int {
		return strings.Compare(a.ContainerID, b.ContainerID)
	})
	return out
}
