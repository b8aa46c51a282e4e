package fake

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"berth/internal/observed"
)

func TestRuntime_Lifecycle(t *testing.T) {
	ctx := t.Context()
	r := NewRuntime()
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Now = func() time.Time { return started }
	r.AddContainer(observed.Container{ID: "a", Name: "web", State: observed.StateExited})

	if err := r.Start(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	c, err := r.Inspect(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if c.State != observed.StateRunning || !c.StartedAt.Equal(started) {
		t.Errorf("after Start: state=%v started=%v", c.State, c.StartedAt)
	}

	if err := r.Stop(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := r.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	list, err := r.ListContainers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("ListContainers() after Remove = %v", list)
	}
	if err := r.Start(ctx, "a"); !observed.IsNotFound(err) {
		t.Errorf("Start(removed) err = %v, want not found", err)
	}
}

func TestRuntime_ErrHooks(t *testing.T) {
	r := NewRuntime()
	r.AddContainer(observed.Container{ID: "a"})
	boom := errors.New("boom")
	r.StatsErr = func(context.Context, string) error { return boom }

	if _, err := r.FetchStats(t.Context(), "a"); !errors.Is(err, boom) {
		t.Errorf("FetchStats err = %v, want boom", err)
	}
	if got := r.Count("FetchStats"); got != 1 {
		t.Errorf("FetchStats calls = %d, want 1", got)
	}
}

func TestRuntime_ScriptedLogs(t *testing.T) {
	r := NewRuntime()
	r.AddContainer(observed.Container{ID: "a"})
	r.ScriptLogs("a", LogSession{
		Lines: []observed.LogLine{{Text: "one"}, {Text: "two"}},
		End:   io.EOF,
	})

	lr, err := r.StreamLogs(t.Context(), "a", observed.LogOptions{Follow: true})
	if err != nil {
		t.Fatal(err)
	}
	defer lr.Close()

	for _, want := range []string{"one", "two"} {
		line, err := lr.Next()
		if err != nil || line.Text != want {
			t.Fatalf("Next() = %q, %v; want %q", line.Text, err, want)
		}
	}
	if _, err := lr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end = %v, want EOF", err)
	}
}

func TestRuntime_HeldLogsReceivePushes(t *testing.T) {
	r := NewRuntime()
	r.AddContainer(observed.Container{ID: "a"})

	lr, err := r.StreamLogs(t.Context(), "a", observed.LogOptions{Follow: true})
	if err != nil {
		t.Fatal(err)
	}
	if got := r.OpenStreams("a"); got != 1 {
		t.Fatalf("OpenStreams = %d, want 1", got)
	}
	r.PushLog("a", observed.LogLine{Text: "live"})
	line, err := lr.Next()
	if err != nil || line.Text != "live" {
		t.Fatalf("Next() = %q, %v", line.Text, err)
	}

	lr.Close()
	if got := r.OpenStreams("a"); got != 0 {
		t.Errorf("OpenStreams after Close = %d, want 0", got)
	}
	if _, err := lr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() after Close = %v, want EOF", err)
	}
}
