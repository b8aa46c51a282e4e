package fake

import (
	"context"
	"slices"
	"sync"
)

// Preferences is an in-memory collapsed-group store.
type Preferences struct {
	CallRecorder

	mu        sync.Mutex
	collapsed map[string]bool

	CollapsedGroupsErr   func(ctx context.Context) error
	SetGroupCollapsedErr func(ctx context.Context, project string) error
}

func NewPreferences(collapsed ...string) *Preferences {
	p := &Preferences{collapsed: make(map[string]bool)}
	for _, project := range collapsed {
		p.collapsed[project] = true
	}
	return p
}

func (p *Preferences) CollapsedGroups(ctx context.Context) ([]string, error) {
	p.record("CollapsedGroups")
	if err := hook(p.CollapsedGroupsErr, ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for project, collapsed := range p.collapsed {
		if collapsed {
			out = append(out, project)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (p *Preferences) SetGroupCollapsed(ctx context.Context, project string, collapsed bool) error {
	p.record("SetGroupCollapsed", project, collapsed)
	if err := hookID(p.SetGroupCollapsedErr, ctx, project); err != nil {
		return err
	}
	p.mu.Lock()
	p.collapsed[project] = collapsed
	p.mu.Unlock()
	return nil
}
