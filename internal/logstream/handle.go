package logstream

import (
	"context"
	"sync"

	"berth/internal/observed"
)

// Handle is one log subscription. Its buffer always holds the most recent
// lines seen, oldest first.
type Handle struct {
	id          uint64
	containerID string
	cancel      context.CancelFunc
	done        chan struct{}
	updates     chan struct{}

	mu      sync.Mutex
	ring    *Ring[observed.LogLine]
	state   ConnState
	retries int
	err     error
}

func (h *Handle) ContainerID() string { return h.containerID }

// Updates signals that lines or status changed. Signals coalesce; read Lines
// and Status after each one. The channel closes when the stream stops for
// good.
func (h *Handle) Updates() <-chan struct{} { return h.updates }

// Done is closed once the stream goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Lines returns a copy of the buffered lines. It is empty after Unsubscribe.
func (h *Handle) Lines() []observed.LogLine {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ring == nil {
		return nil
	}
	return h.ring.Slice()
}

func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	if h.ring != nil {
		n = h.ring.Len()
	}
	return Status{
		ContainerID: h.containerID,
		State:       h.state,
		Retries:     h.retries,
		Lines:       n,
		Err:         h.err,
	}
}

func (h *Handle) push(line observed.LogLine) {
	h.mu.Lock()
	if h.ring != nil {
		h.ring.Push(line)
	}
	h.mu.Unlock()
	h.signal()
}

func (h *Handle) setState(s ConnState, err error) {
	h.mu.Lock()
	h.state, h.err = s, err
	h.mu.Unlock()
	h.signal()
}

func (h *Handle) setRetries(n int) {
	h.mu.Lock()
	h.retries = n
	h.mu.Unlock()
}

func (h *Handle) release() {
	h.mu.Lock()
	if h.ring != nil {
		h.ring.Reset()
		h.ring = nil
	}
	h.mu.Unlock()
}

// signal must only be called from the stream goroutine, before updates is
// closed.
func (h *Handle) signal() {
	select {
	case h.updates <- struct{}{}:
	default:
	}
}
