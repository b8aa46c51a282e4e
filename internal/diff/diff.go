// Package diff classifies the transitions between two consecutive snapshots.
package diff

import "berth/internal/observed"

// Result is the output of Compute.
type Result struct {
	// Events in deterministic order: for each container of the new
	// snapshot (discovery order) its Appeared, StateChanged and
	// HealthChanged events, followed by Disappeared events in the previous
	// snapshot's order.
	Events []observed.Event
	// Resolved holds the pending actions that matched the observed state.
	// The ledger clears each one unless a newer action replaced it.
	Resolved []observed.PendingAction
}

// Compute diffs prev against next. prev is nil on the first cycle, in which
// case every container appears. pending must hold only unexpired actions.
// Identical inputs always produce an identical Result.
func Compute(prev, next *observed.Snapshot, pending []observed.PendingAction) Result {
	actions := latestByID(pending)
	var res Result

	for cur := range next.All() {
		old, ok := prev.Get(cur.ID)
		if !ok {
			res.Events = append(res.Events, observed.Event{
				Kind:        observed.EventAppeared,
				ContainerID: cur.ID,
				Name:        cur.Name,
				To:          cur.State,
				ToHealth:    cur.Health,
			})
			continue
		}

		action, hasAction := actions[cur.ID]
		m := matchNone
		if hasAction {
			m = match(action, old, cur, true)
			if m == matchResolve {
				res.Resolved = append(res.Resolved, action)
			}
		}

		if old.State != cur.State {
			res.Events = append(res.Events, observed.Event{
				Kind:          observed.EventStateChanged,
				ContainerID:   cur.ID,
				Name:          cur.Name,
				From:          old.State,
				To:            cur.State,
				UserInitiated: m != matchNone,
			})
		}
		if old.Health != cur.Health {
			res.Events = append(res.Events, observed.Event{
				Kind:        observed.EventHealthChanged,
				ContainerID: cur.ID,
				Name:        cur.Name,
				FromHealth:  old.Health,
				ToHealth:    cur.Health,
			})
		}
	}

	for old := range prev.All() {
		if next.Has(old.ID) {
			continue
		}
		userInitiated := false
		if action, ok := actions[old.ID]; ok && match(action, old, observed.Container{}, false) != matchNone {
			userInitiated = true
			res.Resolved = append(res.Resolved, action)
		}
		res.Events = append(res.Events, observed.Event{
			Kind:          observed.EventDisappeared,
			ContainerID:   old.ID,
			Name:          old.Name,
			From:          old.State,
			FromHealth:    old.Health,
			UserInitiated: userInitiated,
		})
	}

	return res
}

type matchResult uint8

const (
	matchNone matchResult = iota
	// matchSuppress: an intermediate state the action passes through.
	matchSuppress
	// matchResolve: the state the action was expected to produce.
	matchResolve
)

// match decides whether action explains the transition from old to cur.
// present is false when the container is absent from the new snapshot.
func match(action observed.PendingAction, old, cur observed.Container, present bool) matchResult {
	switch action.Kind {
	case observed.ActionStop:
		if !present || cur.State == observed.StateExited {
			return matchResolve
		}
	case observed.ActionDelete:
		if !present {
			return matchResolve
		}
		if cur.State == observed.StateExited || cur.State == observed.StateRemoving {
			return matchSuppress
		}
	case observed.ActionStart:
		if present && cur.State == observed.StateRunning {
			return matchResolve
		}
	case observed.ActionRestart:
		if !present {
			return matchNone
		}
		switch cur.State {
		case observed.StateRunning:
			if old.State != observed.StateRunning || restartedSince(old, cur, action) {
				return matchResolve
			}
		case observed.StateExited, observed.StateRestarting:
			return matchSuppress
		}
	}
	return matchNone
}

// restartedSince reports a restart that completed between two polls: the
// container stayed running but its start time moved past the action.
func restartedSince(old, cur observed.Container, action observed.PendingAction) bool {
	if cur.StartedAt.IsZero() || !cur.StartedAt.After(old.StartedAt) {
		return false
	}
	return !cur.StartedAt.Before(action.IssuedAt)
}

func latestByID(pending []observed.PendingAction) map[string]observed.PendingAction {
	out := make(map[string]observed.PendingAction, len(pending))
	for _, p := range pending {
		if cur, ok := out[p.ContainerID]; ok && cur.IssuedAt.After(p.IssuedAt) {
			continue
		}
		out[p.ContainerID] = p
	}
	return out
}
