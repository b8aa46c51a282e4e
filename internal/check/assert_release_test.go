//go:build !debug

package check

import "testing"

func TestAssertIsNoOpInReleaseBuilds(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("release assertion panicked: %v", r)
		}
	}()
	Assert(false, "ignored")
	Assertf(false, "ignored %d", 1)
}
