package docker

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	compose "github.com/compose-spec/compose-go/v2/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	"berth/internal/observed"
)

func summaryFromAPI(s container.Summary) observed.ContainerSummary {
	name := ""
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	ports := make([]observed.Port, 0, len(s.Ports))
	for _, p := range s.Ports {
		ports = append(ports, observed.Port{
			ContainerPort: p.PrivatePort,
			HostPort:      p.PublicPort,
			HostIP:        p.IP,
			Protocol:      p.Type,
		})
	}
	sortPorts(ports)
	return observed.ContainerSummary{
		ID:        s.ID,
		Name:      name,
		Image:     s.Image,
		State:     observed.ParseState(string(s.State)),
		Status:    s.Status,
		Labels:    compose.Labels(s.Labels),
		Ports:     ports,
		CreatedAt: time.Unix(s.Created, 0).UTC(),
	}
}

func containerFromInspect(info container.InspectResponse) observed.Container {
	c := observed.Container{
		ID:        info.ID,
		Name:      strings.TrimPrefix(info.Name, "/"),
		CreatedAt: parseTime(info.Created),
	}
	if st := info.State; st != nil {
		c.State = observed.ParseState(string(st.Status))
		c.StartedAt = parseTime(st.StartedAt)
		if st.Health != nil {
			c.Health = observed.ParseHealth(string(st.Health.Status))
		}
	}
	if cfg := info.Config; cfg != nil {
		c.Image = cfg.Image
		c.Labels = compose.Labels(cfg.Labels)
		c.Project = cfg.Labels[observed.ProjectLabel]
		c.Service = cfg.Labels[observed.ServiceLabel]
	}
	if c.Image == "" {
		c.Image = info.Image
	}
	if ns := info.NetworkSettings; ns != nil {
		c.Ports = portsFromMap(ns.Ports)
	}
	return c
}

func detailsFromInspect(info container.InspectResponse) observed.Details {
	d := observed.Details{
		ID:   info.ID,
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.Config != nil {
		d.Env = append([]string(nil), info.Config.Env...)
	}
	for _, m := range info.Mounts {
		d.Mounts = append(d.Mounts, observed.Mount{Source: m.Source, Destination: m.Destination})
	}
	if info.NetworkSettings != nil {
		for name, ep := range info.NetworkSettings.Networks {
			ip := ""
			if ep != nil {
				ip = ep.IPAddress
			}
			d.Networks = append(d.Networks, observed.NetworkAttachment{Name: name, IPAddress: ip})
		}
	}
	slices.SortFunc(d.Networks, func(a, b observed.NetworkAttachment) int {
		return strings.Compare(a.Name, b.Name)
	})
	return d
}

// portsFromMap flattens a port map into one Port per host binding. Exposed
// but unpublished ports appear once with HostPort 0.
func portsFromMap(pm nat.PortMap) []observed.Port {
	var out []observed.Port
	for port, bindings := range pm {
		base := observed.Port{ContainerPort: uint16(port.Int()), Protocol: port.Proto()}
		if len(bindings) == 0 {
			out = append(out, base)
			continue
		}
		for _, b := range bindings {
			p := base
			p.HostIP = b.HostIP
			if hp, err := strconv.ParseUint(b.HostPort, 10, 16); err == nil {
				p.HostPort = uint16(hp)
			}
			out = append(out, p)
		}
	}
	sortPorts(out)
	return out
}

func sortPorts(ports []observed.Port) {
	slices.SortFunc(ports, func(a, b observed.Port) int {
		return cmp.Or(
			cmp.Compare(a.ContainerPort, b.ContainerPort),
			strings.Compare(a.Protocol, b.Protocol),
			cmp.Compare(a.HostPort, b.HostPort),
			strings.Compare(a.HostIP, b.HostIP),
		)
	})
}

func rawStatsFromAPI(s container.StatsResponse) observed.RawStats {
	cpus := s.CPUStats.OnlineCPUs
	if cpus == 0 {
		cpus = uint32(len(s.CPUStats.CPUUsage.PercpuUsage))
	}
	cache := s.MemoryStats.Stats["inactive_file"]
	if cache == 0 {
		cache = s.MemoryStats.Stats["cache"]
	}
	return observed.RawStats{
		CPUTotal:    s.CPUStats.CPUUsage.TotalUsage,
		SystemTotal: s.CPUStats.SystemUsage,
		OnlineCPUs:  cpus,
		MemUsage:    s.MemoryStats.Usage,
		MemCache:    cache,
		MemLimit:    s.MemoryStats.Limit,
		ReadAt:      s.Read,
	}
}

// parseTime treats the daemon's zero timestamp as unset.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil || t.Year() <= 1 {
		return time.Time{}
	}
	return t
}
