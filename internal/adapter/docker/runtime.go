// Package docker implements observed.Runtime over the Docker Engine API.
package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"berth/internal/observed"
)

var _ observed.Runtime = (*Runtime)(nil)

const (
	DefaultHost           = "unix:///var/run/docker.sock"
	DefaultRequestTimeout = 5 * time.Second

	// stopGrace is how long the daemon waits before killing on stop/restart.
	stopGrace = 10 * time.Second
)

// Options configures a Runtime. Zero values select defaults.
type Options struct {
	// Host overrides DOCKER_HOST when set.
	Host string
	// RequestTimeout bounds every non-streaming call.
	RequestTimeout time.Duration
}

// Runtime talks to the daemon through the official SDK client. Every
// non-streaming call carries its own deadline so one unresponsive container
// cannot stall a refresh.
type Runtime struct {
	cli     *client.Client
	timeout time.Duration
}

// NewRuntime creates a client from the environment, letting opts.Host win.
func NewRuntime(opts Options) (*Runtime, error) {
	clientOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if opts.Host != "" {
		clientOpts = append(clientOpts, client.WithHost(opts.Host))
	}
	cli, err := client.NewClientWithOpts(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return NewRuntimeFromClient(cli, opts.RequestTimeout), nil
}

// NewRuntimeFromClient wraps an existing client.
func NewRuntimeFromClient(cli *client.Client, timeout time.Duration) *Runtime {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Runtime{cli: cli, timeout: timeout}
}

// Host returns the daemon address in use.
func (r *Runtime) Host() string { return r.cli.DaemonHost() }

func (r *Runtime) withTimeout(ctx context.Context, extra time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout+extra)
}

func (r *Runtime) Ping(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx, 0)
	defer cancel()
	if _, err := r.cli.Ping(ctx); err != nil {
		return classify("ping", "", err)
	}
	return nil
}

func (r *Runtime) ListContainers(ctx context.Context) ([]observed.ContainerSummary, error) {
	ctx, cancel := r.withTimeout(ctx, 0)
	defer cancel()
	list, err := r.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, classify("list", "", err)
	}
	out := make([]observed.ContainerSummary, 0, len(list))
	for _, s := range list {
		out = append(out, summaryFromAPI(s))
	}
	return out, nil
}

func (r *Runtime) Inspect(ctx context.Context, id string) (observed.Container, error) {
	info, err := r.inspect(ctx, id)
	if err != nil {
		return observed.Container{}, err
	}
	return containerFromInspect(info), nil
}

func (r *Runtime) Details(ctx context.Context, id string) (observed.Details, error) {
	info, err := r.inspect(ctx, id)
	if err != nil {
		return observed.Details{}, err
	}
	return detailsFromInspect(info), nil
}

func (r *Runtime) inspect(ctx context.Context, id string) (container.InspectResponse, error) {
	ctx, cancel := r.withTimeout(ctx, 0)
	defer cancel()
	info, err := r.cli.ContainerInspect(ctx, id)
	if err != nil {
		return container.InspectResponse{}, classify("inspect", id, err)
	}
	if info.ContainerJSONBase == nil {
		return container.InspectResponse{}, classify("inspect", id, fmt.Errorf("empty inspect response"))
	}
	return info, nil
}

func (r *Runtime) FetchStats(ctx context.Context, id string) (observed.RawStats, error) {
	ctx, cancel := r.withTimeout(ctx, 0)
	defer cancel()
	resp, err := r.cli.ContainerStats(ctx, id, false)
	if err != nil {
		return observed.RawStats{}, classify("stats", id, err)
	}
	defer resp.Body.Close()

	var s container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return observed.RawStats{}, classify("stats", id, fmt.Errorf("decode stats: %w", err))
	}
	return rawStatsFromAPI(s), nil
}

func (r *Runtime) StreamLogs(ctx context.Context, id string, opts observed.LogOptions) (observed.LogReader, error) {
	info, err := r.inspect(ctx, id)
	if err != nil {
		return nil, err
	}
	tty := info.Config != nil && info.Config.Tty

	streamCtx, cancel := context.WithCancel(ctx)
	body, err := r.cli.ContainerLogs(streamCtx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Timestamps: true,
		Tail:       tailArg(opts.Tail),
		Since:      sinceArg(opts.Since),
	})
	if err != nil {
		cancel()
		return nil, classify("logs", id, err)
	}
	return newLogReader(streamCtx, cancel, id, body, tty), nil
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, 0)
	defer cancel()
	return classify("start", id, r.cli.ContainerStart(ctx, id, container.StartOptions{}))
}

func (r *Runtime) Stop(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, stopGrace)
	defer cancel()
	return classify("stop", id, r.cli.ContainerStop(ctx, id, stopOptions()))
}

func (r *Runtime) Restart(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, stopGrace)
	defer cancel()
	return classify("restart", id, r.cli.ContainerRestart(ctx, id, stopOptions()))
}

// Remove deletes a stopped container. The daemon rejects running ones.
func (r *Runtime) Remove(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, 0)
	defer cancel()
	return classify("remove", id, r.cli.ContainerRemove(ctx, id, container.RemoveOptions{}))
}

func (r *Runtime) Close() error {
	return r.cli.Close()
}

func stopOptions() container.StopOptions {
	secs := int(stopGrace / time.Second)
	return container.StopOptions{Timeout: &secs}
}

func tailArg(n int) string {
	if n < 0 {
		return "all"
	}
	return strconv.Itoa(n)
}

// sinceArg renders t the way the daemon parses it: unix seconds with a
// nanosecond fraction.
func sinceArg(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}
