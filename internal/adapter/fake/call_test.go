package fake

import (
	"reflect"
	"testing"
)

func TestCallRecorder(t *testing.T) {
	var r CallRecorder
	r.record("Stop", "a")
	r.record("Start", "b")
	r.record("Stop", "c", true)
	r.record("Ping")

	if got := len(r.Calls("")); got != 4 {
		t.Fatalf("Calls(\"\") = %d calls, want 4", got)
	}
	if got := r.Count("Stop"); got != 2 {
		t.Errorf("Count(Stop) = %d, want 2", got)
	}
	if got := r.IDs("Stop"); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("IDs(Stop) = %v", got)
	}
	if got := r.IDs("Ping"); got != nil {
		t.Errorf("IDs(Ping) = %v, want nil", got)
	}
}
