package scenario

import "testing"

func FuzzChaosRunner(f *testing.F) {
	f.Add(int64(1), uint8(4))
	f.Add(int64(99), uint8(0))
	f.Add(int64(-5), uint8(12))

	f.Fuzz(func(t *testing.T, seed int64, containers uint8) {
		if seed == 0 {
			seed = 1
		}
		s := MustNew(t, Config{Containers: int(containers % 16), Projects: []string{"a", "b", ""}})
		r, err := NewChaosRunner(s, ChaosRunnerConfig{Seed: seed, MaxEvents: 64})
		if err != nil {
			t.Fatalf("NewChaosRunner: %v", err)
		}
		if err := r.Run(t.Context(), 60); err != nil {
			t.Fatal(err)
		}
		if n := len(r.ReplayLog()); n != 60 {
			t.Fatalf("replay log holds %d events, want 60", n)
		}
	})
}
