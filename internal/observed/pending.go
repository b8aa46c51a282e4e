package observed

import "time"

// ActionKind is a lifecycle action issued by this process.
type ActionKind uint8

const (
	ActionStart ActionKind = iota + 1
	ActionStop
	ActionRestart
	ActionDelete
)

func (k ActionKind) String() string {
	switch k {
	case ActionStart:
		return "start"
	case ActionStop:
		return "stop"
	case ActionRestart:
		return "restart"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// PendingAction records a self-issued lifecycle action so the resulting
// transition is not reported as external.
type PendingAction struct {
	ContainerID string
	Kind        ActionKind
	IssuedAt    time.Time
	TTL         time.Duration
}

// ExpiresAt is the instant after which the action no longer applies.
func (p PendingAction) ExpiresAt() time.Time {
	return p.IssuedAt.Add(p.TTL)
}

// Expired reports whether the action's window has closed at now.
func (p PendingAction) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt())
}
