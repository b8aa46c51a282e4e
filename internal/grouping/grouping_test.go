package grouping

import (
	"reflect"
	"testing"
	"time"

	"berth/internal/observed"
)

func ctr(id, project string, state observed.State) observed.Container {
	return observed.Container{ID: id, Name: "name-" + id, Image: "img/" + id, Project: project, State: state}
}

func mustSnapshot(t *testing.T, cs ...observed.Container) *observed.Snapshot {
	t.Helper()
	snap, err := observed.NewSnapshot(1, time.Unix(0, 0), cs)
	if err != nil {
		t.Fatal(err)
	}
	return snap
}

func groupIDs(v View) [][]string {
	var out [][]string
	for _, g := range v.Groups {
		out = append(out, append([]string{"[" + g.Project + "]"}, g.IDs()...))
	}
	return out
}

func TestBuild_Ordering(t *testing.T) {
	snap := mustSnapshot(t,
		ctr("a1", "alpha", observed.StateExited),
		ctr("u1", "", observed.StateExited),
		ctr("b1", "beta", observed.StateExited),
		ctr("a2", "alpha", observed.StateRunning),
		ctr("b2", "beta", observed.StateExited),
		ctr("u2", "", observed.StateRunning),
		ctr("a3", "alpha", observed.StateRunning),
	)

	got := groupIDs(Build(snap, nil))
	want := [][]string{
		{"[alpha]", "a2", "a3", "a1"},
		{"[]", "u2", "u1"},
		{"[beta]", "b1", "b2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Build() groups =\n%v\nwant\n%v", got, want)
	}
}

func TestBuild_RunningPrecedesNonRunning(t *testing.T) {
	snap := mustSnapshot(t,
		ctr("c1", "p", observed.StatePaused),
		ctr("c2", "q", observed.StateRunning),
		ctr("c3", "p", observed.StateRunning),
		ctr("c4", "", observed.StateCreated),
	)
	v := Build(snap, nil)

	seenIdle := false
	for _, g := range v.Groups {
		if !g.HasRunning() {
			seenIdle = true
			continue
		}
		if seenIdle {
			t.Fatalf("running group %q after idle group", g.Project)
		}
	}
	for _, g := range v.Groups {
		idle := false
		for _, c := range g.Members {
			if !c.Running() {
				idle = true
			} else if idle {
				t.Fatalf("group %q: running %s after non-running member", g.Project, c.ID)
			}
		}
	}
}

func TestBuild_Idempotent(t *testing.T) {
	snap := mustSnapshot(t,
		ctr("a", "x", observed.StateExited),
		ctr("b", "y", observed.StateRunning),
		ctr("c", "", observed.StateRunning),
		ctr("d", "x", observed.StateRunning),
	)
	collapsed := NewCollapseSet("x")
	first := Build(snap, collapsed)
	second := Build(snap, collapsed)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Build not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestBuild_CollapsedLookup(t *testing.T) {
	snap := mustSnapshot(t,
		ctr("a", "web", observed.StateRunning),
		ctr("b", "", observed.StateRunning),
		ctr("c", "db", observed.StateRunning),
	)
	v := Build(snap, NewCollapseSet("web", ""))

	web, ok := v.Group("web")
	if !ok || !web.Collapsed {
		t.Errorf("web group should be collapsed: %+v", web)
	}
	db, _ := v.Group("db")
	if db.Collapsed {
		t.Error("db group should not be collapsed")
	}
	ungrouped, _ := v.Group("")
	if ungrouped.Collapsed {
		t.Error("ungrouped bucket is never collapsed")
	}
}

func TestBuild_NilSnapshot(t *testing.T) {
	v := Build(nil, nil)
	if len(v.Groups) != 0 {
		t.Errorf("expected empty view, got %+v", v)
	}
}

func TestFilter(t *testing.T) {
	snap := mustSnapshot(t,
		observed.Container{ID: "1", Name: "web-frontend", Image: "nginx", Project: "shop", State: observed.StateRunning},
		observed.Container{ID: "2", Name: "db", Image: "postgres:16", Project: "shop", State: observed.StateRunning},
		observed.Container{ID: "3", Name: "cache", Image: "redis", State: observed.StateExited},
	)
	v := Build(snap, nil)

	got := Filter(v, "  POST ")
	if len(got.Groups) != 1 || got.Groups[0].Project != "shop" || len(got.Groups[0].Members) != 1 {
		t.Fatalf("Filter by image = %+v", groupIDs(got))
	}
	if got.Groups[0].Running != 1 {
		t.Errorf("Running = %d, want 1", got.Groups[0].Running)
	}

	if all := Filter(v, ""); !reflect.DeepEqual(all, v) {
		t.Error("empty query should return the view unchanged")
	}
	if none := Filter(v, "mysql"); len(none.Groups) != 0 {
		t.Errorf("expected no groups, got %v", groupIDs(none))
	}
}

func TestCollapseSet(t *testing.T) {
	s := NewCollapseSet()
	if s.Toggle("a") != true {
		t.Fatal("first toggle collapses")
	}
	if !s.Collapsed("a") {
		t.Fatal("a should be collapsed")
	}
	s.Set("b", true)
	if got := s.Projects(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Projects() = %v", got)
	}
	if s.Toggle("a") != false {
		t.Fatal("second toggle expands")
	}
	s.Set("b", false)
	if len(s.Projects()) != 0 {
		t.Errorf("expected empty set, got %v", s.Projects())
	}
}
