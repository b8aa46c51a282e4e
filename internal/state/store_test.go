package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berth/internal/adapter/fake"
	"berth/internal/observed"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func snapshot(t *testing.T, seq uint64, ids ...string) *observed.Snapshot {
	t.Helper()
	cs := make([]observed.Container, 0, len(ids))
	for _, id := range ids {
		cs = append(cs, observed.Container{ID: id, State: observed.StateRunning})
	}
	s, err := observed.NewSnapshot(seq, start, cs)
	require.NoError(t, err)
	return s
}

func TestStore_CurrentBeforeCommit(t *testing.T) {
	s := New()
	assert.Nil(t, s.Current())
}

func TestStore_CommitReplacesSnapshot(t *testing.T) {
	s := New()
	a := snapshot(t, 1, "a")
	b := snapshot(t, 2, "b")

	s.Commit(a, nil)
	assert.Same(t, a, s.Current())

	s.Commit(b, nil)
	assert.Same(t, b, s.Current())
	assert.False(t, s.Current().Has("a"))
}

func TestStore_PendingActionReplacesPrevious(t *testing.T) {
	clock := fake.NewClock(start)
	s := New(WithClock(clock))

	s.RecordPendingAction("a", observed.ActionStop)
	clock.Advance(time.Second)
	s.RecordPendingAction("a", observed.ActionStart)

	got := s.PendingActions()
	require.Len(t, got, 1)
	assert.Equal(t, observed.ActionStart, got[0].Kind)
	assert.Equal(t, start.Add(time.Second), got[0].IssuedAt)
}

func TestStore_PendingActionExpires(t *testing.T) {
	clock := fake.NewClock(start)
	s := New(WithClock(clock), WithPendingTTL(10*time.Second))

	s.RecordPendingAction("a", observed.ActionStop)

	clock.Advance(10*time.Second - time.Millisecond)
	_, ok := s.PendingAction("a")
	assert.True(t, ok, "action must be live before its window closes")

	clock.Advance(2 * time.Millisecond)
	_, ok = s.PendingAction("a")
	assert.False(t, ok)
	assert.Empty(t, s.PendingActions())

	s.Commit(snapshot(t, 1, "a"), nil)
	s.mu.Lock()
	assert.Empty(t, s.pending, "commit sweeps expired actions")
	s.mu.Unlock()
}

func TestStore_CommitClearsResolved(t *testing.T) {
	clock := fake.NewClock(start)
	s := New(WithClock(clock))

	stop := s.RecordPendingAction("a", observed.ActionStop)
	s.RecordPendingAction("b", observed.ActionRestart)

	s.Commit(snapshot(t, 1, "a", "b"), []observed.PendingAction{stop})

	got := s.PendingActions()
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ContainerID)
}

func TestStore_CommitKeepsActionRecordedAfterRead(t *testing.T) {
	clock := fake.NewClock(start)
	s := New(WithClock(clock))

	s.RecordPendingAction("c1", observed.ActionStart)
	read := s.PendingActions()
	require.Len(t, read, 1)

	clock.Advance(time.Millisecond)
	stop := s.RecordPendingAction("c1", observed.ActionStop)

	s.Commit(snapshot(t, 1, "c1"), read)

	got, ok := s.PendingAction("c1")
	require.True(t, ok, "stop issued after the ledger was read must survive the commit")
	assert.Equal(t, stop, got)
}

func TestStore_PendingActionsSorted(t *testing.T) {
	s := New()
	for _, id := range []string{"c", "a", "b"} {
		s.RecordPendingAction(id, observed.ActionStart)
	}

	var ids []string
	for _, p := range s.PendingActions() {
		ids = append(ids, p.ContainerID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestStore_ClearPendingAction(t *testing.T) {
	s := New()
	s.RecordPendingAction("a", observed.ActionDelete)
	s.ClearPendingAction("a")
	s.ClearPendingAction("missing")

	_, ok := s.PendingAction("a")
	assert.False(t, ok)
}

func TestStore_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	s := New()
	s.Commit(snapshot(t, 1, "a", "b"), nil)

	snaps := make([]*observed.Snapshot, 0, 50)
	for seq := uint64(2); seq < 52; seq++ {
		snaps = append(snaps, snapshot(t, seq, "a", "b"))
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for range 4 {
		wg.Go(func() {
			for {
				select {
				case <-stop:
					return
				default:
				}
				cur := s.Current()
				if cur.Len() != 2 {
					t.Errorf("reader saw partial snapshot with %d containers", cur.Len())
					return
				}
			}
		})
	}

	for _, snap := range snaps {
		s.Commit(snap, nil)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, uint64(51), s.Current().Seq)
}
