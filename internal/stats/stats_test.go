package stats

import (
	"math"
	"math/rand/v2"
	"testing"

	"berth/internal/observed"
)

func TestCPUPercent(t *testing.T) {
	tests := []struct {
		name string
		prev *observed.RawStats
		next observed.RawStats
		want float64
	}{
		{
			name: "first sample is zero",
			prev: nil,
			next: observed.RawStats{CPUTotal: 500, SystemTotal: 1000, OnlineCPUs: 2},
			want: 0,
		},
		{
			name: "half a core on two cpus",
			prev: &observed.RawStats{CPUTotal: 1000, SystemTotal: 10000, OnlineCPUs: 2},
			next: observed.RawStats{CPUTotal: 1500, SystemTotal: 11000, OnlineCPUs: 2},
			want: 100,
		},
		{
			name: "quarter usage on four cpus",
			prev: &observed.RawStats{CPUTotal: 0, SystemTotal: 0, OnlineCPUs: 4},
			next: observed.RawStats{CPUTotal: 250, SystemTotal: 1000, OnlineCPUs: 4},
			want: 100,
		},
		{
			name: "no system progress is zero",
			prev: &observed.RawStats{CPUTotal: 100, SystemTotal: 1000, OnlineCPUs: 1},
			next: observed.RawStats{CPUTotal: 200, SystemTotal: 1000, OnlineCPUs: 1},
			want: 0,
		},
		{
			name: "counter reset is zero",
			prev: &observed.RawStats{CPUTotal: 5000, SystemTotal: 1000, OnlineCPUs: 1},
			next: observed.RawStats{CPUTotal: 10, SystemTotal: 2000, OnlineCPUs: 1},
			want: 0,
		},
		{
			name: "clamped to cpu count",
			prev: &observed.RawStats{CPUTotal: 0, SystemTotal: 0, OnlineCPUs: 2},
			next: observed.RawStats{CPUTotal: 5000, SystemTotal: 1000, OnlineCPUs: 2},
			want: 200,
		},
		{
			name: "unknown cpu count counts as one",
			prev: &observed.RawStats{CPUTotal: 0, SystemTotal: 0},
			next: observed.RawStats{CPUTotal: 300, SystemTotal: 1000},
			want: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CPUPercent(tt.prev, tt.next)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CPUPercent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCPUPercent_AlwaysWithinBounds(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := range 5000 {
		cpus := uint32(r.IntN(64) + 1)
		prev := observed.RawStats{
			CPUTotal:    r.Uint64N(1 << 40),
			SystemTotal: r.Uint64N(1 << 40),
			OnlineCPUs:  cpus,
		}
		next := observed.RawStats{
			CPUTotal:    prev.CPUTotal + r.Uint64N(1<<32),
			SystemTotal: prev.SystemTotal + r.Uint64N(1<<32) + 1,
			OnlineCPUs:  cpus,
		}
		got := CPUPercent(&prev, next)
		if got < 0 || got > float64(cpus)*100 {
			t.Fatalf("iteration %d: CPUPercent = %v outside [0, %d]", i, got, cpus*100)
		}
	}
}

func TestMemory(t *testing.T) {
	tests := []struct {
		name      string
		in        observed.RawStats
		wantUsage uint64
		wantLimit uint64
		wantPct   float64
	}{
		{
			name:      "cache subtracted",
			in:        observed.RawStats{MemUsage: 600, MemCache: 100, MemLimit: 1000},
			wantUsage: 500,
			wantLimit: 1000,
			wantPct:   50,
		},
		{
			name:      "cache larger than usage clamps to zero",
			in:        observed.RawStats{MemUsage: 100, MemCache: 400, MemLimit: 1000},
			wantUsage: 0,
			wantLimit: 1000,
			wantPct:   0,
		},
		{
			name:      "no limit",
			in:        observed.RawStats{MemUsage: 100},
			wantUsage: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage, limit, pct := Memory(tt.in)
			if usage != tt.wantUsage || limit != tt.wantLimit || math.Abs(pct-tt.wantPct) > 1e-9 {
				t.Errorf("Memory() = (%d, %d, %v), want (%d, %d, %v)", usage, limit, pct, tt.wantUsage, tt.wantLimit, tt.wantPct)
			}
		})
	}
}

func TestAggregate_FirstSample(t *testing.T) {
	got := Aggregate(nil, observed.RawStats{CPUTotal: 10, SystemTotal: 20, MemUsage: 256, MemLimit: 1024, OnlineCPUs: 1})
	if got.CPUPercent != 0 {
		t.Errorf("first sample CPUPercent = %v, want 0", got.CPUPercent)
	}
	if got.MemUsageBytes != 256 || got.MemLimitBytes != 1024 || got.MemPercent != 25 {
		t.Errorf("unexpected memory figures: %+v", got)
	}
}
