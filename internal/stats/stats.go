// Package stats turns consecutive raw daemon samples into usage figures.
package stats

import "berth/internal/observed"

// Aggregate derives Stats from the previous and the current raw sample of one
// container. prev is nil for the first sample ever seen.
func Aggregate(prev *observed.RawStats, next observed.RawStats) observed.Stats {
	usage, limit, pct := Memory(next)
	return observed.Stats{
		CPUPercent:    CPUPercent(prev, next),
		MemUsageBytes: usage,
		MemLimitBytes: limit,
		MemPercent:    pct,
	}
}

// CPUPercent is (cpuDelta / systemDelta) * numCPUs * 100, clamped to
// [0, numCPUs*100]. Without a previous sample, or when a counter did not
// advance (container restarted, clock stall), it is 0.
func CPUPercent(prev *observed.RawStats, next observed.RawStats) float64 {
	if prev == nil {
		return 0
	}
	if next.CPUTotal < prev.CPUTotal || next.SystemTotal <= prev.SystemTotal {
		return 0
	}
	numCPUs := float64(next.OnlineCPUs)
	if numCPUs <= 0 {
		numCPUs = 1
	}
	cpuDelta := float64(next.CPUTotal - prev.CPUTotal)
	systemDelta := float64(next.SystemTotal - prev.SystemTotal)

	pct := (cpuDelta / systemDelta) * numCPUs * 100
	return clamp(pct, 0, numCPUs*100)
}

// Memory returns usage without page cache, the limit, and usage as a
// percentage of the limit.
func Memory(s observed.RawStats) (usage, limit uint64, percent float64) {
	usage = s.MemUsage
	if s.MemCache <= usage {
		usage -= s.MemCache
	} else {
		usage = 0
	}
	limit = s.MemLimit
	if limit == 0 {
		return usage, 0, 0
	}
	return usage, limit, float64(usage) / float64(limit) * 100
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
