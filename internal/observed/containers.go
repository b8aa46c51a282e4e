package observed

import (
	"fmt"
	"strings"
	"time"

	compose "github.com/compose-spec/compose-go/v2/types"
)

// Compose label keys used to group containers into projects.
const (
	ProjectLabel = "com.docker.compose.project"
	ServiceLabel = "com.docker.compose.service"
)

const shortIDLength = 12

// State is the lifecycle state of a container as reported by the daemon.
type State uint8

const (
	StateUnknown State = iota
	StateCreated
	StateRunning
	StatePaused
	StateRestarting
	StateExited
	StateRemoving
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateRestarting:
		return "restarting"
	case StateExited:
		return "exited"
	case StateRemoving:
		return "removing"
	default:
		return "unknown"
	}
}

// ParseState maps a daemon state string onto State. "dead" folds into exited.
func ParseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "created":
		return StateCreated
	case "running":
		return StateRunning
	case "paused":
		return StatePaused
	case "restarting":
		return StateRestarting
	case "exited", "dead":
		return StateExited
	case "removing":
		return StateRemoving
	default:
		return StateUnknown
	}
}

// Health is the healthcheck status of a container.
type Health uint8

const (
	HealthNone Health = iota
	HealthStarting
	HealthHealthy
	HealthUnhealthy
)

func (h Health) String() string {
	switch h {
	case HealthStarting:
		return "starting"
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "none"
	}
}

// ParseHealth maps a daemon health status string onto Health.
func ParseHealth(s string) Health {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "starting":
		return HealthStarting
	case "healthy":
		return HealthHealthy
	case "unhealthy":
		return HealthUnhealthy
	default:
		return HealthNone
	}
}

// Port is one container port, optionally published on the host.
type Port struct {
	ContainerPort uint16
	HostPort      uint16
	HostIP        string
	Protocol      string
}

// Published reports whether the port is bound on the host.
func (p Port) Published() bool {
	return p.HostPort != 0
}

// FormatPorts renders published ports as "host:container/proto", comma separated.
func FormatPorts(ports []Port) string {
	var parts []string
	for _, p := range ports {
		if !p.Published() {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, p.Protocol))
	}
	return strings.Join(parts, ", ")
}

// Stats is the derived resource usage of a container.
type Stats struct {
	CPUPercent    float64
	MemUsageBytes uint64
	MemLimitBytes uint64
	MemPercent    float64
}

// RawStats holds the cumulative counters of a single stats sample.
type RawStats struct {
	CPUTotal    uint64
	SystemTotal uint64
	OnlineCPUs  uint32
	MemUsage    uint64
	MemCache    uint64
	MemLimit    uint64
	ReadAt      time.Time
}

// Container is one entry of a Snapshot. Values are replaced wholesale on each
// refresh; slices, maps and Raw are shared between snapshots and must be treated
// as read-only.
type Container struct {
	ID        string
	Name      string
	Image     string
	State     State
	Status    string
	Health    Health
	Project   string
	Service   string
	Labels    compose.Labels
	Ports     []Port
	CreatedAt time.Time
	StartedAt time.Time

	Stats Stats
	Raw   *RawStats

	// Stale is set when this cycle's fetch failed and the entry was carried
	// over from the previous snapshot. StaleCycles counts consecutive misses.
	Stale       bool
	StaleCycles int
}

// Running reports whether the container is in the running state.
func (c Container) Running() bool {
	return c.State == StateRunning
}

// ShortID returns the abbreviated container id.
func (c Container) ShortID() string {
	return ShortID(c.ID)
}

// ShortID abbreviates a container id to the conventional 12 characters.
func ShortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

// ContainerSummary is one row of the daemon's container list.
type ContainerSummary struct {
	ID        string
	Name      string
	Image     string
	State     State
	Status    string
	Labels    compose.Labels
	Ports     []Port
	CreatedAt time.Time
}

// Container converts a list row into a Container without inspect data.
func (s ContainerSummary) Container() Container {
	return Container{
		ID:        s.ID,
		Name:      s.Name,
		Image:     s.Image,
		State:     s.State,
		Status:    s.Status,
		Project:   s.Labels[ProjectLabel],
		Service:   s.Labels[ServiceLabel],
		Labels:    s.Labels,
		Ports:     s.Ports,
		CreatedAt: s.CreatedAt,
	}
}

// Mount is a volume or bind mount attached to a container.
type Mount struct {
	Source      string
	Destination string
}

// NetworkAttachment is a network a container is connected to.
type NetworkAttachment struct {
	Name      string
	IPAddress string
}

// Details is the extended inspect view of a container.
type Details struct {
	ID       string
	Name     string
	Env      []string
	Mounts   []Mount
	Networks []NetworkAttachment
}
