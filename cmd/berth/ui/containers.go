package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"berth/internal/grouping"
	"berth/internal/observed"
)

var ContainerHeaders = []string{"NAME", "ID", "IMAGE", "STATE", "HEALTH", "CPU", "MEMORY", "PORTS"}

const ungroupedTitle = "(ungrouped)"

// GroupTitle names a group for display.
func GroupTitle(g grouping.Group) string {
	if g.Ungrouped() {
		return ungroupedTitle
	}
	return g.Project
}

// ContainerTable renders one table per group. Collapsed groups show only
// their header line.
func ContainerTable(view grouping.View) string {
	var sb strings.Builder
	for i, g := range view.Groups {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(groupHeader(g) + "\n")
		if g.Collapsed {
			continue
		}
		rows := make([][]string, 0, len(g.Members))
		for _, c := range g.Members {
			rows = append(rows, ContainerRow(c))
		}
		members := g.Members
		sb.WriteString(Table(ContainerHeaders, rows, func(row int) *lipgloss.Style {
			if row < 0 || row >= len(members) {
				return nil
			}
			if members[row].Stale || !members[row].Running() {
				return &MutedStyle
			}
			return nil
		}))
		sb.WriteString("\n")
	}
	return sb.String()
}

func groupHeader(g grouping.Group) string {
	marker := "▾"
	if g.Collapsed {
		marker = "▸"
	}
	return fmt.Sprintf("%s %s %s", marker, Bold(GroupTitle(g)),
		Muted(fmt.Sprintf("%d/%d running", g.Running, len(g.Members))))
}

// ContainerRow is the plain-text row for c.
func ContainerRow(c observed.Container) []string {
	cpu, mem := "-", "-"
	if c.Running() {
		cpu = FormatCPU(c.Stats.CPUPercent)
		mem = FormatMemory(c.Stats)
	}
	state := c.State.String()
	if c.Stale {
		state += "?"
	}
	health := "-"
	if c.Health != observed.HealthNone {
		health = c.Health.String()
	}
	ports := observed.FormatPorts(c.Ports)
	if ports == "" {
		ports = "-"
	}
	return []string{c.Name, c.ShortID(), c.Image, state, health, cpu, mem, ports}
}

func FormatCPU(pct float64) string {
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatMemory renders "usage / limit (pct)", or usage alone without a limit.
func FormatMemory(s observed.Stats) string {
	if s.MemLimitBytes == 0 {
		return humanize.IBytes(s.MemUsageBytes)
	}
	return fmt.Sprintf("%s / %s (%.1f%%)", humanize.IBytes(s.MemUsageBytes), humanize.IBytes(s.MemLimitBytes), s.MemPercent)
}

// StateBadge colours a state.
func StateBadge(st observed.State) string {
	switch st {
	case observed.StateRunning:
		return Success(st.String())
	case observed.StateExited:
		return Error(st.String())
	case observed.StateRestarting, observed.StatePaused, observed.StateRemoving:
		return Warn(st.String())
	default:
		return Muted(st.String())
	}
}

func healthBadge(h observed.Health) string {
	switch h {
	case observed.HealthHealthy:
		return Success(h.String())
	case observed.HealthUnhealthy:
		return Error(h.String())
	default:
		return Warn(h.String())
	}
}

// EventLine renders one diff event for the watch stream.
func EventLine(ev observed.Event) string {
	name := ev.Name
	if name == "" {
		name = observed.ShortID(ev.ContainerID)
	}
	by := ""
	if ev.UserInitiated {
		by = " " + Muted("(by you)")
	}
	switch ev.Kind {
	case observed.EventAppeared:
		return InfoMsg("%s appeared", Bold(name))
	case observed.EventDisappeared:
		if ev.Evicted {
			return WarnMsg("%s not responding, hidden until it answers", Bold(name))
		}
		return WarnMsg("%s disappeared%s", Bold(name), by)
	case observed.EventStateChanged:
		msg := fmt.Sprintf("%s %s → %s%s", Bold(name), StateBadge(ev.From), StateBadge(ev.To), by)
		if ev.To == observed.StateExited {
			if ev.UserInitiated {
				return InfoMsg("%s", msg)
			}
			return ErrorMsg("%s", msg)
		}
		return InfoMsg("%s", msg)
	case observed.EventHealthChanged:
		msg := fmt.Sprintf("%s health %s → %s", Bold(name), healthBadge(ev.FromHealth), healthBadge(ev.ToHealth))
		if ev.ToHealth == observed.HealthUnhealthy {
			return ErrorMsg("%s", msg)
		}
		return InfoMsg("%s", msg)
	default:
		return InfoMsg("%s", ev.String())
	}
}

// DetailsView renders the inspect pane for a container.
func DetailsView(c observed.Container, d observed.Details) string {
	pairs := []Pair{
		KV("Name", c.Name),
		KV("ID", c.ID),
		KV("Image", c.Image),
		KV("State", StateBadge(c.State)+" "+Muted(c.Status)),
	}
	if c.Project != "" {
		pairs = append(pairs, KV("Project", c.Project), KV("Service", c.Service))
	}
	if !c.StartedAt.IsZero() {
		pairs = append(pairs, KV("Started", humanize.Time(c.StartedAt)))
	}
	if ports := observed.FormatPorts(c.Ports); ports != "" {
		pairs = append(pairs, KV("Ports", ports))
	}
	if c.Running() {
		pairs = append(pairs, KV("CPU", FormatCPU(c.Stats.CPUPercent)), KV("Memory", FormatMemory(c.Stats)))
	}

	var mounts []string
	for _, m := range d.Mounts {
		mounts = append(mounts, m.Source+" → "+m.Destination)
	}
	var networks []string
	for _, n := range d.Networks {
		networks = append(networks, fmt.Sprintf("%s %s", n.Name, Muted(n.IPAddress)))
	}
	pairs = append(pairs,
		KV("Env", listOrNone(d.Env)),
		KV("Mounts", listOrNone(mounts)),
		KV("Networks", listOrNone(networks)),
	)
	return KeyValues("", pairs...)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return Muted("none")
	}
	return strings.Join(items, "\n")
}

// LogLine renders one log line, prefixed with its timestamp when set.
func LogLine(l observed.LogLine, timestamps bool) string {
	text := l.Text
	if l.Stream == "stderr" {
		text = Warn(text)
	}
	if timestamps && !l.Timestamp.IsZero() {
		return Muted(l.Timestamp.Format("15:04:05.000")) + " " + text
	}
	return text
}
