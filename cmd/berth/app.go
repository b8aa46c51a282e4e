package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"berth/config"
	"berth/internal/adapter/docker"
	"berth/internal/adapter/sqlite"
	"berth/internal/engine"
	"berth/internal/logstream"
	"berth/internal/notify"
	"berth/internal/telemetry"
)

type globalFlags struct {
	debug      bool
	configPath string
	dockerHost string
	noColor    bool

	cfg     *config.Config
	cfgPath string
}

// app is one wired engine plus the resources it borrows.
type app struct {
	cfg     *config.Config
	runtime *docker.Runtime
	prefs   *sqlite.Store
	tel     *telemetry.Provider
	engine  *engine.Engine
}

type appOptions struct {
	notifications bool
	preferences   bool
}

func openApp(flags *globalFlags, opts appOptions) (*app, error) {
	cfg := flags.cfg
	host := flags.dockerHost
	if host == "" {
		host = cfg.DockerHostOverride()
	}
	rt, err := docker.NewRuntime(docker.Options{Host: host, RequestTimeout: cfg.RequestTimeout})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, runtime: rt, tel: telemetry.Setup(cfg.Tracing, slog.Default())}

	engineOpts := []engine.EngineOption{
		engine.WithPollInterval(cfg.PollInterval),
		engine.WithConcurrency(cfg.FetchConcurrency),
		engine.WithStaleEviction(cfg.StaleEvictCycles),
		engine.WithPendingTTL(cfg.PendingActionTTL),
		engine.WithTracer(a.tel.Tracer("berth")),
		engine.WithLogOptions(logstream.WithTail(cfg.LogTail), logstream.WithMaxRetries(*cfg.LogMaxRetries)),
	}
	if opts.notifications && cfg.NotificationsEnabled() {
		n, err := newNotifier(cfg)
		if err != nil {
			a.close()
			return nil, err
		}
		engineOpts = append(engineOpts, engine.WithNotifier(n))
	}
	if opts.preferences {
		prefs, err := sqlite.Open(cfg.StatePath)
		if err != nil {
			slog.Warn("preferences unavailable, collapsed groups will not persist", "path", cfg.StatePath, "err", err)
		} else {
			a.prefs = prefs
			engineOpts = append(engineOpts, engine.WithPreferences(prefs))
		}
	}
	a.engine = engine.New(rt, engineOpts...)
	return a, nil
}

func newNotifier(cfg *config.Config) (notify.Notifier, error) {
	if cfg.Notifications.Command == "" {
		return notify.LogNotifier{Logger: slog.Default()}, nil
	}
	n, err := notify.NewCommandNotifier(cfg.Notifications.Command)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	return n, nil
}

// refresh runs one cycle so one-shot commands can resolve containers.
func (a *app) refresh(ctx context.Context) error {
	if _, err := a.engine.RefreshOnce(ctx); err != nil {
		return fmt.Errorf("refresh from %s: %w", a.runtime.Host(), err)
	}
	return nil
}

func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	var errs []error
	if err := a.tel.Shutdown(context.Background()); err != nil {
		errs = append(errs, err)
	}
	if err := a.prefs.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.runtime.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		slog.Debug("close resources", "err", err)
	}
}
