package observed

import "fmt"

// EventKind tags the variant carried by an Event.
type EventKind uint8

const (
	EventAppeared EventKind = iota + 1
	EventDisappeared
	EventStateChanged
	EventHealthChanged
)

func (k EventKind) String() string {
	switch k {
	case EventAppeared:
		return "appeared"
	case EventDisappeared:
		return "disappeared"
	case EventStateChanged:
		return "state_changed"
	case EventHealthChanged:
		return "health_changed"
	default:
		return "unknown"
	}
}

// Event is one classified difference between two consecutive snapshots.
//
// From/To are set for StateChanged; Disappeared carries the last known
// state in From. FromHealth/ToHealth are set for HealthChanged.
type Event struct {
	Kind        EventKind
	ContainerID string
	Name        string

	From State
	To   State

	FromHealth Health
	ToHealth   Health

	// UserInitiated is true when a pending action issued by this process
	// explains the transition.
	UserInitiated bool
	// Evicted marks a Disappeared event for a container dropped after
	// repeated failed fetches while the daemon still listed it.
	Evicted bool
}

func (e Event) String() string {
	id := ShortID(e.ContainerID)
	switch e.Kind {
	case EventAppeared:
		return fmt.Sprintf("appeared(%s)", id)
	case EventDisappeared:
		if e.Evicted {
			return fmt.Sprintf("disappeared(%s, evicted)", id)
		}
		return fmt.Sprintf("disappeared(%s, user=%t)", id, e.UserInitiated)
	case EventStateChanged:
		return fmt.Sprintf("state(%s, %s->%s, user=%t)", id, e.From, e.To, e.UserInitiated)
	case EventHealthChanged:
		return fmt.Sprintf("health(%s, %s->%s)", id, e.FromHealth, e.ToHealth)
	default:
		return fmt.Sprintf("event(%d, %s)", e.Kind, id)
	}
}
