package engine

import "berth/internal/check"

// Phase is the engine's lifecycle state. Degraded means the last refresh
// cycle failed; the previous snapshot is still served.
type Phase uint8

const (
	PhaseAbsent Phase = iota + 1
	PhaseStarting
	PhaseRunning
	PhaseDegraded
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseAbsent:
		return "absent"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseDegraded:
		return "degraded"
	case PhaseStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case PhaseAbsent:
		ok = to == PhaseStarting
	case PhaseStarting:
		ok = to == PhaseRunning || to == PhaseDegraded || to == PhaseStopping
	case PhaseRunning:
		ok = to == PhaseDegraded || to == PhaseStopping
	case PhaseDegraded:
		ok = to == PhaseRunning || to == PhaseStopping
	case PhaseStopping:
		ok = to == PhaseAbsent
	}
	check.Assertf(ok, "engine phase transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}
