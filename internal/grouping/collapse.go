package grouping

import (
	"slices"
	"sync"
)

// CollapseSet is an in-memory CollapsedLookup keyed by project name. It
// survives refreshes because it is not part of any snapshot.
type CollapseSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewCollapseSet returns a set with the given projects collapsed.
func NewCollapseSet(projects ...string) *CollapseSet {
	s := &CollapseSet{set: make(map[string]struct{}, len(projects))}
	for _, p := range projects {
		if p != "" {
			s.set[p] = struct{}{}
		}
	}
	return s
}

func (s *CollapseSet) Collapsed(project string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[project]
	return ok
}

// Set marks project collapsed or expanded.
func (s *CollapseSet) Set(project string, collapsed bool) {
	if project == "" {
		return
	}
	s.mu.Lock()
	if collapsed {
		s.set[project] = struct{}{}
	} else {
		delete(s.set, project)
	}
	s.mu.Unlock()
}

// Toggle flips the flag for project and returns the new value.
func (s *CollapseSet) Toggle(project string) bool {
	if project == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[project]; ok {
		delete(s.set, project)
		return false
	}
	s.set[project] = struct{}{}
	return true
}

// Projects returns the collapsed projects in sorted order.
func (s *CollapseSet) Projects() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.set))
	for p := range s.set {
		out = append(out, p)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out
}
