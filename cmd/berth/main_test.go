package main

import (
	"testing"
	"time"

	"berth/internal/observed"
)

func TestUnseen(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	line := func(i int, text string) observed.LogLine {
		return observed.LogLine{Stream: "stdout", Timestamp: at.Add(time.Duration(i) * time.Second), Text: text}
	}
	lines := []observed.LogLine{line(0, "a"), line(1, "b"), line(2, "c")}

	if got := unseen(lines, nil); len(got) != 3 {
		t.Fatalf("first read should return every line, got %d", len(got))
	}
	last := line(1, "b")
	got := unseen(lines, &last)
	if len(got) != 1 || got[0].Text != "c" {
		t.Fatalf("unseen after b = %+v", got)
	}
	last = line(2, "c")
	if got := unseen(lines, &last); len(got) != 0 {
		t.Fatalf("nothing new expected, got %+v", got)
	}
	evicted := line(-5, "old")
	if got := unseen(lines, &evicted); len(got) != 3 {
		t.Fatalf("evicted marker should replay the buffer, got %d", len(got))
	}
}

func TestActionKindPast(t *testing.T) {
	for kind, want := range map[actionKind]string{
		actionStart:   "started",
		actionStop:    "stopped",
		actionRestart: "restarted",
		actionRemove:  "removed",
	} {
		if got := kind.past(); got != want {
			t.Errorf("%d.past() = %q, want %q", kind, got, want)
		}
	}
}
