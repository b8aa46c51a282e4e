package docker

import (
	"context"
	"log/slog"
	"time"

	"berth/internal/observed"
)

// WaitReady pings the daemon every interval until it answers. It gives up
// early on errors other than an unreachable daemon.
func (r *Runtime) WaitReady(ctx context.Context, interval time.Duration) error {
	log := slog.With("component", "docker", "host", r.Host())
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	waiting := false
	for {
		err := r.Ping(ctx)
		if err == nil {
			if waiting {
				log.Info("daemon reachable")
			}
			return nil
		}
		if !observed.IsUnreachable(err) {
			return err
		}
		if !waiting {
			waiting = true
			log.Info("waiting for container daemon", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
