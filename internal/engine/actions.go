package engine

import (
	"context"
	"fmt"

	"berth/internal/observed"
)

// Start, Stop, Restart and Remove record a pending action before calling the
// daemon so the next diff attributes the transition to this process. A
// rejected call clears the pending action and returns an *observed.ActionError.

func (e *Engine) Start(ctx context.Context, id string) error {
	return e.act(ctx, id, observed.ActionStart)
}

func (e *Engine) Stop(ctx context.Context, id string) error {
	return e.act(ctx, id, observed.ActionStop)
}

func (e *Engine) Restart(ctx context.Context, id string) error {
	return e.act(ctx, id, observed.ActionRestart)
}

func (e *Engine) Remove(ctx context.Context, id string) error {
	return e.act(ctx, id, observed.ActionDelete)
}

func (e *Engine) act(ctx context.Context, id string, kind observed.ActionKind) error {
	if err := e.call(ctx, id, kind); err != nil {
		return err
	}
	e.scheduler.Trigger()
	return nil
}

func (e *Engine) call(ctx context.Context, id string, kind observed.ActionKind) error {
	if id == "" {
		return &observed.ActionError{Kind: kind, Err: observed.ErrNotFound}
	}
	e.store.RecordPendingAction(id, kind)

	var err error
	switch kind {
	case observed.ActionStart:
		err = e.runtime.Start(ctx, id)
	case observed.ActionStop:
		err = e.runtime.Stop(ctx, id)
	case observed.ActionRestart:
		err = e.runtime.Restart(ctx, id)
	case observed.ActionDelete:
		err = e.runtime.Remove(ctx, id)
	default:
		err = fmt.Errorf("unsupported action %s", kind)
	}
	if err != nil {
		e.store.ClearPendingAction(id)
		e.log.Debug("action rejected", "action", kind, "container", observed.ShortID(id), "err", err)
		return &observed.ActionError{ContainerID: id, Kind: kind, Err: err}
	}
	e.log.Debug("action accepted", "action", kind, "container", observed.ShortID(id))
	return nil
}

// StartAll starts every container that is not running.
func (e *Engine) StartAll(ctx context.Context) ([]string, error) {
	return e.bulk(ctx, e.allContainers(), observed.ActionStart)
}

// StopAll stops every running container.
func (e *Engine) StopAll(ctx context.Context) ([]string, error) {
	return e.bulk(ctx, e.allContainers(), observed.ActionStop)
}

// StartGroup starts the non-running members of a compose project. The
// empty project addresses the ungrouped bucket.
func (e *Engine) StartGroup(ctx context.Context, project string) ([]string, error) {
	members, err := e.groupMembers(project)
	if err != nil {
		return nil, err
	}
	return e.bulk(ctx, members, observed.ActionStart)
}

// StopGroup stops the running members of a compose project.
func (e *Engine) StopGroup(ctx context.Context, project string) ([]string, error) {
	members, err := e.groupMembers(project)
	if err != nil {
		return nil, err
	}
	return e.bulk(ctx, members, observed.ActionStop)
}

// bulk acts on targets sequentially and stops at the first failure. It
// returns the ids that were accepted.
func (e *Engine) bulk(ctx context.Context, targets []observed.Container, kind observed.ActionKind) ([]string, error) {
	var done []string
	defer func() {
		if len(done) > 0 {
			e.scheduler.Trigger()
		}
	}()
	for _, c := range targets {
		if (kind == observed.ActionStart) == c.Running() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := e.call(ctx, c.ID, kind); err != nil {
			return done, err
		}
		done = append(done, c.ID)
	}
	return done, nil
}

func (e *Engine) allContainers() []observed.Container {
	snap := e.store.Current()
	if snap == nil {
		return nil
	}
	return snap.Containers()
}

func (e *Engine) groupMembers(project string) ([]observed.Container, error) {
	g, ok := e.Groups("").Group(project)
	if !ok {
		return nil, fmt.Errorf("group %q: %w", project, ErrUnknownGroup)
	}
	return g.Members, nil
}
