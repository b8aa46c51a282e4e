// Package logstream multiplexes follow-mode container log subscriptions.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"berth/internal/check"
	"berth/internal/observed"
)

const (
	DefaultBufferLines = 100
	DefaultMaxRetries  = 5
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("log stream manager closed")

type ConnState uint8

const (
	Connecting ConnState = iota + 1
	Streaming
	Disconnected
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Disconnected:
		return "disconnected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of one subscription.
type Status struct {
	ContainerID string
	State       ConnState
	Retries     int
	Lines       int
	Err         error
}

// Manager owns every active log subscription. Each subscription runs its
// own connection and is independent of the refresh cycle.
type Manager struct {
	runtime    observed.Runtime
	tail       int
	maxRetries uint64
	newBackOff func() backoff.BackOff

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   map[uint64]*Handle
	nextID uint64
	closed bool

	log *slog.Logger
}

type Option func(*Manager)

// WithTail sets both the replayed line count and the buffer capacity.
func WithTail(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.tail = n
		}
	}
}

// WithMaxRetries bounds consecutive reconnect attempts.
func WithMaxRetries(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.maxRetries = uint64(n)
		}
	}
}

// WithBackOff replaces the reconnect delay policy.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(m *Manager) { m.newBackOff = f }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func NewManager(rt observed.Runtime, opts ...Option) *Manager {
	check.Assert(rt != nil, "logstream.NewManager: runtime must not be nil")
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		runtime:    rt,
		tail:       DefaultBufferLines,
		maxRetries: DefaultMaxRetries,
		newBackOff: defaultBackOff,
		ctx:        ctx,
		cancel:     cancel,
		subs:       make(map[uint64]*Handle),
		log:        slog.With("component", "logstream"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe opens a new stream for containerID, seeded with the most recent
// lines and following new output.
func (m *Manager) Subscribe(containerID string) (*Handle, error) {
	if containerID == "" {
		return nil, fmt.Errorf("subscribe logs: container id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(m.ctx)
	h := &Handle{
		id:          m.nextID,
		containerID: containerID,
		cancel:      cancel,
		done:        make(chan struct{}),
		updates:     make(chan struct{}, 1),
		ring:        NewRing[observed.LogLine](m.tail),
		state:       Connecting,
	}
	m.nextID++
	m.subs[h.id] = h

	go func() {
		defer close(h.done)
		defer close(h.updates)
		m.run(ctx, h)
	}()
	m.log.Debug("log subscription opened", "container", observed.ShortID(containerID), "subscription", h.id)
	return h, nil
}

// Unsubscribe cancels the stream, waits for it to stop and releases its
// buffer. It is safe to call more than once.
func (m *Manager) Unsubscribe(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	delete(m.subs, h.id)
	m.mu.Unlock()

	h.cancel()
	<-h.done
	h.release()
}

// Active returns the number of open subscriptions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close cancels every subscription and rejects new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	handles := make([]*Handle, 0, len(m.subs))
	for id, h := range m.subs {
		handles = append(handles, h)
		delete(m.subs, id)
	}
	m.mu.Unlock()

	m.cancel()
	for _, h := range handles {
		<-h.done
		h.release()
	}
}

func (m *Manager) run(ctx context.Context, h *Handle) {
	log := m.log.With("container", observed.ShortID(h.containerID), "subscription", h.id)
	bo := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), m.maxRetries), ctx)

	var since time.Time
	for {
		h.setState(Connecting, nil)
		opts := observed.LogOptions{Tail: m.tail, Follow: true, Since: since}
		delivered, err := m.stream(ctx, h, opts, &since)
		if ctx.Err() != nil {
			return
		}
		if observed.IsNotFound(err) {
			log.Debug("log stream target gone", "err", err)
			h.setState(Failed, err)
			return
		}
		if delivered {
			bo.Reset()
			h.setRetries(0)
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			if err == nil {
				h.setState(Disconnected, nil)
			} else {
				log.Warn("log stream failed", "retries", h.Status().Retries, "err", err)
				h.setState(Failed, err)
			}
			return
		}

		if err == nil {
			h.setState(Disconnected, nil)
		} else {
			h.setState(Failed, err)
		}
		h.setRetries(h.Status().Retries + 1)
		log.Debug("log stream interrupted, reconnecting", "wait", wait, "err", err)
		if !sleepWithContext(ctx, wait) {
			return
		}
	}
}

// stream consumes one connection until it ends. It reports whether any new
// line was delivered. A clean end of stream returns a nil error.
func (m *Manager) stream(ctx context.Context, h *Handle, opts observed.LogOptions, since *time.Time) (bool, error) {
	reader, err := m.runtime.StreamLogs(ctx, h.containerID, opts)
	if err != nil {
		return false, err
	}
	stop := context.AfterFunc(ctx, func() { _ = reader.Close() })
	defer func() {
		stop()
		_ = reader.Close()
	}()

	h.setState(Streaming, nil)
	resumeAfter := opts.Since
	delivered := false
	for {
		line, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return delivered, nil
			}
			return delivered, err
		}
		// A reconnect replays from the last seen timestamp inclusive.
		if !resumeAfter.IsZero() && !line.Timestamp.IsZero() && !line.Timestamp.After(resumeAfter) {
			continue
		}
		if !line.Timestamp.IsZero() {
			*since = line.Timestamp
		}
		if line.ContainerID == "" {
			line.ContainerID = h.containerID
		}
		h.push(line)
		delivered = true
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
