package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	compose "github.com/compose-spec/compose-go/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berth/internal/adapter/fake"
	"berth/internal/observed"
)

type manualTicker chan time.Time

func (m manualTicker) ticker(time.Duration) (<-chan time.Time, func()) {
	return m, func() {}
}

func member(id, project string, st observed.State) observed.Container {
	c := observed.Container{ID: id, Name: "svc-" + id, Image: "nginx", State: st}
	if project != "" {
		c.Labels = compose.Labels{observed.ProjectLabel: project}
	}
	return c
}

func newTestEngine(t *testing.T, rt *fake.Runtime, opts ...EngineOption) *Engine {
	t.Helper()
	e := New(rt, opts...)
	t.Cleanup(e.Close)
	return e
}

func refreshOnce(t *testing.T, e *Engine) {
	t.Helper()
	_, err := e.RefreshOnce(t.Context())
	require.NoError(t, err)
}

func TestStopRecordsPendingActionBeforeCall(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("c1", "", observed.StateRunning))
	notifier := &fake.Notifier{}
	e := newTestEngine(t, rt, WithNotifier(notifier))
	refreshOnce(t, e)

	var sawPending bool
	rt.StopErr = func(_ context.Context, id string) error {
		_, sawPending = e.Pending(id)
		return nil
	}
	require.NoError(t, e.Stop(t.Context(), "c1"))
	assert.True(t, sawPending, "pending action must exist when the daemon call is issued")

	out, err := e.RefreshOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, out.Events, 1)
	assert.True(t, out.Events[0].UserInitiated)
	assert.Empty(t, notifier.Sent())
	_, pending := e.Pending("c1")
	assert.False(t, pending, "resolved by the observed transition")
}

func TestRejectedActionClearsPending(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("c1", "", observed.StateExited))
	e := newTestEngine(t, rt)
	refreshOnce(t, e)

	rt.StartErr = func(context.Context, string) error {
		return fmt.Errorf("port already allocated: %w", observed.ErrDaemon)
	}
	err := e.Start(t.Context(), "c1")

	var actionErr *observed.ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, observed.ActionStart, actionErr.Kind)
	assert.Equal(t, "c1", actionErr.ContainerID)
	assert.ErrorIs(t, err, observed.ErrDaemon)
	_, pending := e.Pending("c1")
	assert.False(t, pending)
}

func TestRemoveUnknownContainer(t *testing.T) {
	rt := fake.NewRuntime()
	e := newTestEngine(t, rt)

	err := e.Remove(t.Context(), "ghost")
	assert.True(t, observed.IsNotFound(err))
	_, pending := e.Pending("ghost")
	assert.False(t, pending)
}

func TestStopGroupStopsAtFirstFailure(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("a", "web", observed.StateRunning))
	rt.AddContainer(member("b", "web", observed.StateRunning))
	rt.AddContainer(member("c", "web", observed.StateRunning))
	rt.AddContainer(member("d", "db", observed.StateRunning))
	e := newTestEngine(t, rt)
	refreshOnce(t, e)

	rt.StopErr = func(_ context.Context, id string) error {
		if id == "b" {
			return fmt.Errorf("timeout: %w", observed.ErrDaemon)
		}
		return nil
	}
	done, err := e.StopGroup(t.Context(), "web")

	require.Error(t, err)
	assert.Equal(t, []string{"a"}, done)
	assert.Equal(t, []string{"a", "b"}, rt.IDs("Stop"), "c is never attempted")
	_, pending := e.Pending("a")
	assert.True(t, pending, "accepted actions stay pending")
	_, pending = e.Pending("b")
	assert.False(t, pending, "failed action is cleared")
}

func TestStartAllSkipsRunning(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("a", "", observed.StateRunning))
	rt.AddContainer(member("b", "", observed.StateExited))
	rt.AddContainer(member("c", "x", observed.StateCreated))
	e := newTestEngine(t, rt)
	refreshOnce(t, e)

	done, err := e.StartAll(t.Context())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, done)
	assert.ElementsMatch(t, []string{"b", "c"}, rt.IDs("Start"))
}

func TestUnknownGroup(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("a", "web", observed.StateRunning))
	e := newTestEngine(t, rt)
	refreshOnce(t, e)

	_, err := e.StartGroup(t.Context(), "api")
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestToggleGroupPersists(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("a", "web", observed.StateRunning))
	prefs := fake.NewPreferences()
	e := newTestEngine(t, rt, WithPreferences(prefs))
	refreshOnce(t, e)

	collapsed, err := e.ToggleGroup(t.Context(), "web")
	require.NoError(t, err)
	assert.True(t, collapsed)

	g, ok := e.Groups("").Group("web")
	require.True(t, ok)
	assert.True(t, g.Collapsed)

	stored, err := prefs.CollapsedGroups(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, stored)

	refreshOnce(t, e)
	g, _ = e.Groups("").Group("web")
	assert.True(t, g.Collapsed, "collapsed flag survives refreshes")
}

func TestToggleGroupRevertsOnPersistFailure(t *testing.T) {
	rt := fake.NewRuntime()
	prefs := fake.NewPreferences()
	prefs.SetGroupCollapsedErr = func(context.Context, string) error { return errors.New("disk full") }
	e := newTestEngine(t, rt, WithPreferences(prefs))

	collapsed, err := e.ToggleGroup(t.Context(), "web")
	require.Error(t, err)
	assert.False(t, collapsed)
	assert.False(t, e.collapsed.Collapsed("web"))
}

func TestResolve(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("abc123", "", observed.StateRunning))
	rt.AddContainer(member("abd456", "", observed.StateRunning))
	e := newTestEngine(t, rt)
	refreshOnce(t, e)

	tests := []struct {
		ref    string
		wantID string
		err    error
	}{
		{ref: "abc123", wantID: "abc123"},
		{ref: "svc-abd456", wantID: "abd456"},
		{ref: "/svc-abd456", wantID: "abd456"},
		{ref: "abc", wantID: "abc123"},
		{ref: "ab", err: ErrAmbiguous},
		{ref: "zz", err: observed.ErrNotFound},
		{ref: "", err: observed.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			c, err := e.Resolve(tt.ref)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, c.ID)
		})
	}
}

func TestRunPhasesAndPreferences(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("a", "web", observed.StateRunning))
	ticks := make(manualTicker)
	prefs := fake.NewPreferences("web")
	e := newTestEngine(t, rt, WithTicker(ticks.ticker), WithPreferences(prefs))
	assert.Equal(t, PhaseAbsent, e.Status().Phase)

	ctx, cancel := context.WithCancel(t.Context())
	_, updates := e.Subscribe(ctx)
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool {
		st := e.Status()
		return st.Phase == PhaseRunning && st.Seq == 1
	}, time.Second, 5*time.Millisecond)
	g, ok := e.Groups("").Group("web")
	require.True(t, ok)
	assert.True(t, g.Collapsed, "collapsed groups are loaded on start")

	u := <-updates
	require.NotNil(t, u.Snapshot)
	assert.Equal(t, uint64(1), u.Snapshot.Seq)

	assert.ErrorIs(t, e.Run(ctx), ErrAlreadyRunning)

	rt.ListErr = func(context.Context) error {
		return fmt.Errorf("dial: %w", observed.ErrDaemonUnreachable)
	}
	ticks <- time.Now()
	require.Eventually(t, func() bool { return e.Status().Phase == PhaseDegraded }, time.Second, 5*time.Millisecond)
	st := e.Status()
	assert.True(t, observed.IsUnreachable(st.LastErr))
	assert.Equal(t, uint64(1), st.Seq, "last good snapshot is kept")
	assert.NotNil(t, e.Snapshot())

	rt.ListErr = nil
	require.Eventually(t, func() bool {
		select {
		case ticks <- time.Now():
		default:
		}
		return e.Status().Phase == PhaseRunning
	}, time.Second, 5*time.Millisecond)
	assert.NoError(t, e.Status().LastErr)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, PhaseAbsent, e.Status().Phase)
	for range updates {
	}
}

func TestActionTriggersRefresh(t *testing.T) {
	rt := fake.NewRuntime()
	rt.AddContainer(member("a", "", observed.StateRunning))
	ticks := make(manualTicker)
	e := newTestEngine(t, rt, WithTicker(ticks.ticker))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = e.Run(ctx) }()
	require.Eventually(t, func() bool { return e.Status().Seq == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Stop(t.Context(), "a"))
	require.Eventually(t, func() bool {
		c, ok := e.Snapshot().Get("a")
		return ok && c.State == observed.StateExited
	}, time.Second, 5*time.Millisecond, "stop is observed without waiting for a tick")
}

func TestPhaseTransitions(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     Phase
	}{
		{PhaseAbsent, PhaseStarting, PhaseStarting},
		{PhaseStarting, PhaseDegraded, PhaseDegraded},
		{PhaseRunning, PhaseDegraded, PhaseDegraded},
		{PhaseDegraded, PhaseRunning, PhaseRunning},
		{PhaseRunning, PhaseStopping, PhaseStopping},
		{PhaseStopping, PhaseAbsent, PhaseAbsent},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.Transition(tt.to))
		})
	}
}
