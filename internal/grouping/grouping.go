// Package grouping partitions a snapshot into compose project groups.
//
// Grouping is derived: it is recomputed from container labels on every call
// and owns no state beyond the caller-supplied collapsed flags.
package grouping

import (
	"slices"
	"strings"

	"berth/internal/observed"
)

// CollapsedLookup reports the UI-owned collapsed flag of a project group.
type CollapsedLookup interface {
	Collapsed(project string) bool
}

// Group is the set of containers sharing a compose project label. The
// ungrouped bucket has an empty Project.
type Group struct {
	Project   string
	Members   []observed.Container
	Running   int
	Collapsed bool
}

// Ungrouped reports whether g is the bucket of unlabelled containers.
func (g Group) Ungrouped() bool { return g.Project == "" }

// HasRunning reports whether any member is running.
func (g Group) HasRunning() bool { return g.Running > 0 }

// IDs returns member ids in display order.
func (g Group) IDs() []string {
	out := make([]string, 0, len(g.Members))
	for _, c := range g.Members {
		out = append(out, c.ID)
	}
	return out
}

// View is the ordered grouping of one snapshot.
type View struct {
	Seq    uint64
	Groups []Group
}

// Containers flattens the view in display order.
func (v View) Containers() []observed.Container {
	var out []observed.Container
	for _, g := range v.Groups {
		out = append(out, g.Members...)
	}
	return out
}

// Group returns the group for project, if present.
func (v View) Group(project string) (Group, bool) {
	for _, g := range v.Groups {
		if g.Project == project {
			return g, true
		}
	}
	return Group{}, false
}

// Build groups snap by compose project. Groups with a running member come
// first, and within a group running members come first; every other order is
// discovery order. collapsed may be nil.
func Build(snap *observed.Snapshot, collapsed CollapsedLookup) View {
	view := View{}
	if snap == nil {
		return view
	}
	view.Seq = snap.Seq

	index := make(map[string]int)
	var groups []Group
	for c := range snap.All() {
		i, ok := index[c.Project]
		if !ok {
			i = len(groups)
			index[c.Project] = i
			groups = append(groups, Group{Project: c.Project})
		}
		groups[i].Members = append(groups[i].Members, c)
		if c.Running() {
			groups[i].Running++
		}
	}

	for i := range groups {
		groups[i].Members = runningFirst(groups[i].Members, observed.Container.Running)
		if collapsed != nil && !groups[i].Ungrouped() {
			groups[i].Collapsed = collapsed.Collapsed(groups[i].Project)
		}
	}
	view.Groups = runningFirst(groups, Group.HasRunning)
	return view
}

// Filter keeps containers whose name or image contains query, ignoring case.
// Groups left empty are dropped. An empty query returns v unchanged.
func Filter(v View, query string) View {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return v
	}
	out := View{Seq: v.Seq}
	for _, g := range v.Groups {
		kept := Group{Project: g.Project, Collapsed: g.Collapsed}
		for _, c := range g.Members {
			if strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Image), q) {
				kept.Members = append(kept.Members, c)
				if c.Running() {
					kept.Running++
				}
			}
		}
		if len(kept.Members) > 0 {
			out.Groups = append(out.Groups, kept)
		}
	}
	return out
}

func runningFirst[T any](items []T, running func(T) bool) []T {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b T) int {
		ra, rb := running(a), running(b)
		switch {
		case ra == rb:
			return 0
		case ra:
			return -1
		default:
			return 1
		}
	})
	return out
}
