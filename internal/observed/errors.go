package observed

import (
	"errors"
	"fmt"
)

var (
	// ErrDaemonUnreachable marks socket or connection level failures.
	ErrDaemonUnreachable = errors.New("container daemon unreachable")
	// ErrNotFound marks a container id the daemon no longer knows.
	ErrNotFound = errors.New("container not found")
	// ErrDaemon marks a non-2xx response from the daemon.
	ErrDaemon = errors.New("container daemon error")
)

// FetchError is a per-container fetch failure inside a refresh cycle.
type FetchError struct {
	ContainerID string
	Op          string
	Err         error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s container %q: %v", e.Op, ShortID(e.ContainerID), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ActionError is a rejected lifecycle action.
type ActionError struct {
	ContainerID string
	Kind        ActionKind
	Err         error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s container %q: %v", e.Kind, ShortID(e.ContainerID), e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err is a connection level failure.
func IsUnreachable(err error) bool { return errors.Is(err, ErrDaemonUnreachable) }

// IsNotFound reports whether err means the container is gone.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
