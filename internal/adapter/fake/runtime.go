package fake

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"berth/internal/observed"
)

var _ observed.Runtime = (*Runtime)(nil)

// LogSession scripts one StreamLogs connection. Lines are delivered in order,
// then the reader returns End. A nil End keeps the connection open until it
// is closed or its context ends; lines sent with PushLog arrive meanwhile.
type LogSession struct {
	Lines []observed.LogLine
	End   error
}

// Runtime is an in-memory implementation of observed.Runtime.
type Runtime struct {
	CallRecorder

	mu       sync.Mutex
	order    []string
	byID     map[string]*observed.Container
	details  map[string]observed.Details
	stats    map[string]observed.RawStats
	sessions map[string][]LogSession
	readers  map[string]map[*logReader]struct{}
	closed   bool

	// Now stamps StartedAt on Start and Restart. Defaults to time.Now.
	Now func() time.Time

	PingErr       func(ctx context.Context) error
	ListErr       func(ctx context.Context) error
	InspectErr    func(ctx context.Context, id string) error
	StatsErr      func(ctx context.Context, id string) error
	StreamLogsErr func(ctx context.Context, id string, opts observed.LogOptions) error
	StartErr      func(ctx context.Context, id string) error
	StopErr       func(ctx context.Context, id string) error
	RestartErr    func(ctx context.Context, id string) error
	RemoveErr     func(ctx context.Context, id string) error
}

func NewRuntime() *Runtime {
	return &Runtime{
		byID:     make(map[string]*observed.Container),
		details:  make(map[string]observed.Details),
		stats:    make(map[string]observed.RawStats),
		sessions: make(map[string][]LogSession),
		readers:  make(map[string]map[*logReader]struct{}),
		Now:      time.Now,
	}
}

// AddContainer adds or replaces a container. New ids are listed last.
func (r *Runtime) AddContainer(c observed.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; !ok {
		r.order = append(r.order, c.ID)
	}
	r.byID[c.ID] = &c
}

// Update mutates a stored container in place.
func (r *Runtime) Update(id string, fn func(*observed.Container)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok {
		fn(c)
	}
}

// SetState is shorthand for Update setting the state.
func (r *Runtime) SetState(id string, st observed.State) {
	r.Update(id, func(c *observed.Container) { c.State = st })
}

// SetHealth is shorthand for Update setting the health.
func (r *Runtime) SetHealth(id string, h observed.Health) {
	r.Update(id, func(c *observed.Container) { c.Health = h })
}

// Drop removes a container as if it was deleted behind our back.
func (r *Runtime) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropLocked(id)
}

func (r *Runtime) SetStats(id string, s observed.RawStats) {
	r.mu.Lock()
	r.stats[id] = s
	r.mu.Unlock()
}

func (r *Runtime) SetDetails(id string, d observed.Details) {
	r.mu.Lock()
	r.details[id] = d
	r.mu.Unlock()
}

// ScriptLogs queues sessions returned by successive StreamLogs calls for id.
// Calls beyond the script get an empty open session.
func (r *Runtime) ScriptLogs(id string, sessions ...LogSession) {
	r.mu.Lock()
	r.sessions[id] = append(r.sessions[id], sessions...)
	r.mu.Unlock()
}

// PushLog delivers a line to every open connection for id.
func (r *Runtime) PushLog(id string, line observed.LogLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for lr := range r.readers[id] {
		select {
		case lr.live <- line:
		default:
		}
	}
}

// OpenStreams returns the number of unclosed log readers for id.
func (r *Runtime) OpenStreams(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.readers[id])
}

func (r *Runtime) Ping(ctx context.Context) error {
	r.record("Ping")
	return hook(r.PingErr, ctx)
}

func (r *Runtime) ListContainers(ctx context.Context) ([]observed.ContainerSummary, error) {
	r.record("ListContainers")
	if err := hook(r.ListErr, ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]observed.ContainerSummary, 0, len(r.order))
	for _, id := range r.order {
		c := r.byID[id]
		out = append(out, observed.ContainerSummary{
			ID:        c.ID,
			Name:      c.Name,
			Image:     c.Image,
			State:     c.State,
			Status:    c.Status,
			Labels:    c.Labels,
			Ports:     c.Ports,
			CreatedAt: c.CreatedAt,
		})
	}
	return out, nil
}

func (r *Runtime) Inspect(ctx context.Context, id string) (observed.Container, error) {
	r.record("Inspect", id)
	if err := hookID(r.InspectErr, ctx, id); err != nil {
		return observed.Container{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return observed.Container{}, notFound(id)
	}
	out := *c
	out.Project = out.Labels[observed.ProjectLabel]
	out.Service = out.Labels[observed.ServiceLabel]
	return out, nil
}

func (r *Runtime) Details(ctx context.Context, id string) (observed.Details, error) {
	r.record("Details", id)
	if err := hookID(r.InspectErr, ctx, id); err != nil {
		return observed.Details{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return observed.Details{}, notFound(id)
	}
	d := r.details[id]
	d.ID, d.Name = c.ID, c.Name
	return d, nil
}

func (r *Runtime) FetchStats(ctx context.Context, id string) (observed.RawStats, error) {
	r.record("FetchStats", id)
	if err := hookID(r.StatsErr, ctx, id); err != nil {
		return observed.RawStats{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return observed.RawStats{}, notFound(id)
	}
	return r.stats[id], nil
}

func (r *Runtime) StreamLogs(ctx context.Context, id string, opts observed.LogOptions) (observed.LogReader, error) {
	r.record("StreamLogs", id, opts)
	if r.StreamLogsErr != nil {
		if err := r.StreamLogsErr(ctx, id, opts); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return nil, notFound(id)
	}

	var sess LogSession
	if queue := r.sessions[id]; len(queue) > 0 {
		sess, r.sessions[id] = queue[0], queue[1:]
	}
	lr := &logReader{
		ctx:    ctx,
		lines:  append([]observed.LogLine(nil), sess.Lines...),
		end:    sess.End,
		live:   make(chan observed.LogLine, 256),
		closed: make(chan struct{}),
	}
	lr.release = func() {
		r.mu.Lock()
		delete(r.readers[id], lr)
		r.mu.Unlock()
	}
	if r.readers[id] == nil {
		r.readers[id] = make(map[*logReader]struct{})
	}
	r.readers[id][lr] = struct{}{}
	return lr, nil
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	r.record("Start", id)
	return r.lifecycle(ctx, r.StartErr, id, func(c *observed.Container) {
		c.State = observed.StateRunning
		c.StartedAt = r.Now()
	})
}

func (r *Runtime) Stop(ctx context.Context, id string) error {
	r.record("Stop", id)
	return r.lifecycle(ctx, r.StopErr, id, func(c *observed.Container) {
		c.State = observed.StateExited
	})
}

func (r *Runtime) Restart(ctx context.Context, id string) error {
	r.record("Restart", id)
	return r.lifecycle(ctx, r.RestartErr, id, func(c *observed.Container) {
		c.State = observed.StateRunning
		c.StartedAt = r.Now()
	})
}

func (r *Runtime) Remove(ctx context.Context, id string) error {
	r.record("Remove", id)
	if err := hookID(r.RemoveErr, ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return notFound(id)
	}
	r.dropLocked(id)
	return nil
}

func (r *Runtime) Close() error {
	r.record("Close")
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (r *Runtime) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Runtime) lifecycle(ctx context.Context, errHook func(context.Context, string) error, id string, apply func(*observed.Container)) error {
	if err := hookID(errHook, ctx, id); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return notFound(id)
	}
	apply(c)
	return nil
}

func (r *Runtime) dropLocked(id string) {
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func hook(f func(context.Context) error, ctx context.Context) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}

func hookID(f func(context.Context, string) error, ctx context.Context, id string) error {
	if f == nil {
		return nil
	}
	return f(ctx, id)
}

func notFound(id string) error {
	return fmt.Errorf("container %q: %w", id, observed.ErrNotFound)
}

type logReader struct {
	ctx     context.Context
	lines   []observed.LogLine
	end     error
	live    chan observed.LogLine
	closed  chan struct{}
	once    sync.Once
	release func()
}

func (l *logReader) Next() (observed.LogLine, error) {
	if len(l.lines) > 0 {
		line := l.lines[0]
		l.lines = l.lines[1:]
		return line, nil
	}
	if l.end != nil {
		return observed.LogLine{}, l.end
	}
	select {
	case line := <-l.live:
		return line, nil
	case <-l.closed:
		return observed.LogLine{}, io.EOF
	case <-l.ctx.Done():
		return observed.LogLine{}, l.ctx.Err()
	}
}

func (l *logReader) Close() error {
	l.once.Do(func() {
		close(l.closed)
		l.release()
	})
	return nil
}
