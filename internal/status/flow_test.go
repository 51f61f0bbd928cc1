package status

import "testing"

func TestFlowSelectDefault(t *testing.T) {
	flows := BuiltinFlows()

	f := flows.Select(ContainerTask, nil)
	if f == nil || f.Name != "task-default" {
		t.Fatalf("expected task-default flow, got %+v", f)
	}
	if f.First() != "pending" {
		t.Errorf("task flow entry status = %q, want pending", f.First())
	}

	f = flows.Select(ContainerFeature, []string{"backend", "urgent"})
	if f == nil || f.Name != "feature-default" {
		t.Fatalf("unmatched tags must fall back to the default flow, got %+v", f)
	}
}

func TestFlowSelectByTag(t *testing.T) {
	flows := BuiltinFlows()

	f := flows.Select(ContainerTask, []string{"review"})
	if f == nil || f.Name != "task-review" {
		t.Fatalf("expected task-review flow, got %+v", f)
	}
	if f.IndexOf("in-review") != 2 {
		t.Errorf("in-review should be at index 2 of the review flow")
	}
}

func TestFlowSelectLexicographicTieBreak(t *testing.T) {
	flows := NewFlowSet(
		Flow{Name: "task-b", ContainerType: ContainerTask, Tags: []string{"x"}, Sequence: []string{"pending"}},
		Flow{Name: "task-a", ContainerType: ContainerTask, Tags: []string{"x"}, Sequence: []string{"pending"}},
	)
	f := flows.Select(ContainerTask, []string{"x"})
	if f == nil || f.Name != "task-a" {
		t.Fatalf("tie break must pick the lexicographically first name, got %+v", f)
	}
}

func TestFlowSelectNoMatch(t *testing.T) {
	flows := NewFlowSet(
		Flow{Name: "task-only", ContainerType: ContainerTask, Sequence: []string{"pending"}},
	)
	if f := flows.Select(ContainerProject, nil); f != nil {
		t.Errorf("expected nil for a container type with no flows, got %+v", f)
	}
}

func TestFlowNextAndTerminal(t *testing.T) {
	f := BuiltinFlows().Select(ContainerTask, nil)

	next, ok := f.Next("pending")
	if !ok || next != "in-progress" {
		t.Errorf("Next(pending) = %q, %v; want in-progress", next, ok)
	}
	next, ok = f.Next("IN_PROGRESS")
	if !ok || next != "completed" {
		t.Errorf("Next(IN_PROGRESS) = %q, %v; want completed", next, ok)
	}
	if _, ok := f.Next("completed"); ok {
		t.Error("completed has no successor")
	}
	if _, ok := f.Next("cancelled"); ok {
		t.Error("off-sequence statuses have no successor")
	}

	for _, s := range []string{"completed", "cancelled", "deferred", "COMPLETED"} {
		if !f.IsTerminal(s) {
			t.Errorf("%s should be terminal in the default task flow", s)
		}
	}
	if f.IsTerminal("in-progress") {
		t.Error("in-progress is not terminal")
	}
}

func TestFlowRoleSequenceMonotone(t *testing.T) {
	for _, f := range BuiltinFlows().Flows() {
		prev := -1
		for _, s := range f.Sequence {
			o := f.RoleFor(s).Order()
			if o < prev {
				t.Errorf("flow %s: role order decreases at %s", f.Name, s)
			}
			prev = o
		}
	}
}

func TestFlowRoleOverride(t *testing.T) {
	f := Flow{
		Name:          "task-custom",
		ContainerType: ContainerTask,
		Sequence:      []string{"pending", "in-progress", "completed"},
		StatusRoles:   map[string]Role{"in-progress": Role("triage")},
	}
	if got := f.RoleFor("in-progress"); got != Role("triage") {
		t.Errorf("override not applied, got %s", got)
	}
	if got := f.RoleFor("completed"); got != RoleTerminal {
		t.Errorf("default mapping should back the override, got %s", got)
	}
}
