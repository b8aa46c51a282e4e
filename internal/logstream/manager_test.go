package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"berth/internal/adapter/fake"
	"berth/internal/observed"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func lines(from, to int) []observed.LogLine {
	out := make([]observed.LogLine, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, observed.LogLine{
			Stream:    "stdout",
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
			Text:      fmt.Sprintf("line %d", i),
		})
	}
	return out
}

func texts(ls []observed.LogLine) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.Text)
	}
	return out
}

func newManager(t *testing.T, rt observed.Runtime, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}, opts...)
	m := NewManager(rt, opts...)
	t.Cleanup(m.Close)
	return m
}

func newRuntime() *fake.Runtime {
	rt := fake.NewRuntime()
	rt.AddContainer(observed.Container{ID: "web", State: observed.StateRunning})
	return rt
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

func TestManager_BufferKeepsLastLines(t *testing.T) {
	rt := newRuntime()
	rt.ScriptLogs("web", fake.LogSession{Lines: lines(0, 150)})
	m := newManager(t, rt)

	h, err := m.Subscribe("web")
	require.NoError(t, err)

	eventually(t, func() bool {
		st := h.Status()
		return st.State == Streaming && st.Lines == DefaultBufferLines
	}, "buffer did not fill")

	got := h.Lines()
	require.Len(t, got, DefaultBufferLines)
	assert.Equal(t, "line 50", got[0].Text)
	assert.Equal(t, "line 149", got[len(got)-1].Text)
	assert.Equal(t, "web", got[0].ContainerID)

	calls := rt.Calls("StreamLogs")
	require.Len(t, calls, 1)
	opts := calls[0].Args[1].(observed.LogOptions)
	assert.Equal(t, observed.LogOptions{Tail: DefaultBufferLines, Follow: true}, opts)
}

func TestManager_FollowsNewOutput(t *testing.T) {
	rt := newRuntime()
	m := newManager(t, rt)

	h, err := m.Subscribe("web")
	require.NoError(t, err)
	eventually(t, func() bool { return rt.OpenStreams("web") == 1 }, "stream not opened")

	rt.PushLog("web", observed.LogLine{Text: "hello"})
	eventually(t, func() bool { return len(h.Lines()) == 1 }, "line not delivered")
	assert.Equal(t, "hello", h.Lines()[0].Text)
}

func TestManager_UnsubscribeReleases(t *testing.T) {
	rt := newRuntime()
	rt.ScriptLogs("web", fake.LogSession{Lines: lines(0, 3)})
	m := newManager(t, rt)

	h, err := m.Subscribe("web")
	require.NoError(t, err)
	eventually(t, func() bool { return len(h.Lines()) == 3 }, "lines not delivered")

	m.Unsubscribe(h)

	assert.Equal(t, 0, rt.OpenStreams("web"), "reader must be closed")
	assert.Zero(t, m.Active())
	assert.Nil(t, h.Lines())
	select {
	case <-h.Done():
	default:
		t.Fatal("stream goroutine still running")
	}
	m.Unsubscribe(h)
}

func TestManager_SubscriptionsAreIndependent(t *testing.T) {
	rt := newRuntime()
	rt.AddContainer(observed.Container{ID: "db", State: observed.StateRunning})
	m := newManager(t, rt)

	web, err := m.Subscribe("web")
	require.NoError(t, err)
	db, err := m.Subscribe("db")
	require.NoError(t, err)
	eventually(t, func() bool { return rt.OpenStreams("web") == 1 && rt.OpenStreams("db") == 1 }, "streams not opened")

	m.Unsubscribe(web)
	assert.Equal(t, 0, rt.OpenStreams("web"))
	assert.Equal(t, 1, rt.OpenStreams("db"))
	assert.Equal(t, Streaming, db.Status().State)
}

func TestManager_NotFoundIsTerminal(t *testing.T) {
	rt := newRuntime()
	m := newManager(t, rt)

	h, err := m.Subscribe("missing")
	require.NoError(t, err)

	<-h.Done()
	st := h.Status()
	assert.Equal(t, Failed, st.State)
	assert.True(t, observed.IsNotFound(st.Err))
	assert.Equal(t, 1, rt.Count("StreamLogs"), "not found is not retried")
	assert.Zero(t, st.Retries)
}

func TestManager_RetriesAreBounded(t *testing.T) {
	rt := newRuntime()
	rt.StreamLogsErr = func(context.Context, string, observed.LogOptions) error {
		return fmt.Errorf("dial: %w", observed.ErrDaemonUnreachable)
	}
	m := newManager(t, rt, WithMaxRetries(3))

	h, err := m.Subscribe("web")
	require.NoError(t, err)

	<-h.Done()
	st := h.Status()
	assert.Equal(t, Failed, st.State)
	assert.True(t, observed.IsUnreachable(st.Err))
	assert.Equal(t, 3, st.Retries)
	assert.Equal(t, 4, rt.Count("StreamLogs"))

	_, open := <-h.Updates()
	for open {
		_, open = <-h.Updates()
	}
}

func TestManager_ReconnectResumesWithoutDuplicates(t *testing.T) {
	rt := newRuntime()
	all := lines(0, 5)
	rt.ScriptLogs("web",
		fake.LogSession{Lines: all[:3], End: errors.New("connection reset")},
		fake.LogSession{Lines: all},
	)
	m := newManager(t, rt)

	h, err := m.Subscribe("web")
	require.NoError(t, err)

	eventually(t, func() bool { return len(h.Lines()) == 5 }, "lines not delivered after reconnect")
	assert.Equal(t, texts(all), texts(h.Lines()))

	calls := rt.Calls("StreamLogs")
	require.Len(t, calls, 2)
	second := calls[1].Args[1].(observed.LogOptions)
	assert.Equal(t, all[2].Timestamp, second.Since)
	assert.Equal(t, 1, h.Status().Retries)
}

func TestManager_EndOfStreamDisconnects(t *testing.T) {
	rt := newRuntime()
	rt.ScriptLogs("web",
		fake.LogSession{Lines: lines(0, 2), End: io.EOF},
		fake.LogSession{End: io.EOF},
		fake.LogSession{End: io.EOF},
	)
	m := newManager(t, rt, WithMaxRetries(2))

	h, err := m.Subscribe("web")
	require.NoError(t, err)

	<-h.Done()
	st := h.Status()
	assert.Equal(t, Disconnected, st.State)
	assert.NoError(t, st.Err)
	assert.Len(t, h.Lines(), 2, "buffer survives until unsubscribe")
}

func TestManager_CloseStopsEverything(t *testing.T) {
	rt := newRuntime()
	m := NewManager(rt)

	h, err := m.Subscribe("web")
	require.NoError(t, err)
	eventually(t, func() bool { return rt.OpenStreams("web") == 1 }, "stream not opened")

	m.Close()
	<-h.Done()
	assert.Equal(t, 0, rt.OpenStreams("web"))

	_, err = m.Subscribe("web")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_SubscribeRequiresID(t *testing.T) {
	m := newManager(t, newRuntime())
	_, err := m.Subscribe("")
	assert.Error(t, err)
}
