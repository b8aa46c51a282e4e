package docker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/client"

	"berth/internal/observed"
)

// classify maps an SDK error onto the observed error taxonomy, keeping the
// original error in the chain. Cancellation is not a daemon failure and is
// only annotated.
func classify(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		if id == "" {
			return fmt.Errorf("%s: %w", op, err)
		}
		return fmt.Errorf("%s container %q: %w", op, observed.ShortID(id), err)
	}
	kind := observed.ErrDaemon
	switch {
	case errdefs.IsNotFound(err):
		kind = observed.ErrNotFound
	case unreachable(err):
		kind = observed.ErrDaemonUnreachable
	}
	if id == "" {
		return fmt.Errorf("%s: %w: %w", op, kind, err)
	}
	return fmt.Errorf("%s container %q: %w: %w", op, observed.ShortID(id), kind, err)
}

func unreachable(err error) bool {
	if client.IsErrConnectionFailed(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
