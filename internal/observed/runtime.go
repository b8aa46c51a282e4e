package observed

import (
	"context"
	"time"
)

// Runtime is the subset of the container daemon API used for monitoring and
// basic lifecycle actions. Every method returns errors wrapping one of
// ErrDaemonUnreachable, ErrNotFound or ErrDaemon.
//
// Production: adapter/docker.Runtime
// Testing: adapter/fake.Runtime
type Runtime interface {
	Ping(ctx context.Context) error
	ListContainers(ctx context.Context) ([]ContainerSummary, error)
	Inspect(ctx context.Context, id string) (Container, error)
	Details(ctx context.Context, id string) (Details, error)
	FetchStats(ctx context.Context, id string) (RawStats, error)
	StreamLogs(ctx context.Context, id string, opts LogOptions) (LogReader, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Close() error
}

// LogOptions selects the portion of a container log to stream.
type LogOptions struct {
	// Tail is the number of existing lines to replay; 0 replays none.
	Tail int
	// Since skips lines at or before this instant when non-zero.
	Since time.Time
	// Follow keeps the stream open for new output.
	Follow bool
}

// LogLine is one line of container output.
type LogLine struct {
	ContainerID string
	Stream      string
	Timestamp   time.Time
	Text        string
}

// LogReader is a lazy sequence of log lines. Next blocks until a line is
// available, the stream ends (io.EOF), or the stream fails.
type LogReader interface {
	Next() (LogLine, error)
	Close() error
}
