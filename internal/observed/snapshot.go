package observed

import (
	"fmt"
	"iter"
	"time"
)

// Snapshot is an immutable view of all tracked containers at one point in time.
// Containers keep the order in which the daemon listed them.
type Snapshot struct {
	Seq uint64
	At  time.Time

	order []string
	byID  map[string]Container
}

// NewSnapshot builds a Snapshot. Duplicate ids are rejected.
func NewSnapshot(seq uint64, at time.Time, containers []Container) (*Snapshot, error) {
	s := &Snapshot{
		Seq:   seq,
		At:    at,
		order: make([]string, 0, len(containers)),
		byID:  make(map[string]Container, len(containers)),
	}
	for _, c := range containers {
		if _, dup := s.byID[c.ID]; dup {
			return nil, fmt.Errorf("snapshot %d: duplicate container id %q", seq, c.ID)
		}
		s.order = append(s.order, c.ID)
		s.byID[c.ID] = c
	}
	return s, nil
}

// Len returns the number of containers. A nil snapshot is empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Get looks up a container by id.
func (s *Snapshot) Get(id string) (Container, bool) {
	if s == nil {
		return Container{}, false
	}
	c, ok := s.byID[id]
	return c, ok
}

// Has reports whether id is present.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// IDs returns container ids in discovery order.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Containers returns a copy of the containers in discovery order.
func (s *Snapshot) Containers() []Container {
	if s == nil {
		return nil
	}
	out := make([]Container, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// All iterates containers in discovery order.
func (s *Snapshot) All() iter.Seq[Container] {
	return func(yield func(Container) bool) {
		if s == nil {
			return
		}
		for _, id := range s.order {
			if !yield(s.byID[id]) {
				return
			}
		}
	}
}
