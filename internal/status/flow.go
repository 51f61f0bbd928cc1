package status

import "sort"

// Flow is an ordered status sequence plus a terminal set for one container
// type under one tag selection. The first element of Sequence is the entry
// status for new containers.
type Flow struct {
	Name             string
	ContainerType    ContainerType
	Tags             []string // selecting tags; empty marks the default flow
	Sequence         []string // canonical status strings, in progression order
	TerminalStatuses []string
	StatusRoles      map[string]Role // per-status overrides of the default role mapping
}

// First returns the entry status of the flow.
func (f *Flow) First() string {
	if len(f.Sequence) == 0 {
		return ""
	}
	return f.Sequence[0]
}

// IndexOf returns the position of a status in the sequence, or -1 when the
// status is not part of the main path.
func (f *Flow) IndexOf(status string) int {
	n := Normalize(status)
	for i, s := range f.Sequence {
		if s == n {
			return i
		}
	}
	return -1
}

// Next returns the successor of a status in the sequence.
func (f *Flow) Next(status string) (string, bool) {
	i := f.IndexOf(status)
	if i < 0 || i+1 >= len(f.Sequence) {
		return "", false
	}
	return f.Sequence[i+1], true
}

// IsTerminal reports whether the status belongs to the flow's terminal set.
func (f *Flow) IsTerminal(status string) bool {
	n := Normalize(status)
	for _, s := range f.TerminalStatuses {
		if s == n {
			return true
		}
	}
	return false
}

// RoleFor returns the role of a status under this flow, falling back to the
// default mapping when the flow declares no override.
func (f *Flow) RoleFor(status string) Role {
	if r, ok := f.StatusRoles[Normalize(status)]; ok {
		return r
	}
	return DefaultRoleForStatus(status)
}

// hasTag reports whether the flow is selected by any of the given tags.
func (f *Flow) hasTag(tags []string) bool {
	for _, ft := range f.Tags {
		for _, t := range tags {
			if ft == t {
				return true
			}
		}
	}
	return false
}

// FlowSet is the registry of known flows. Selection picks the flow for a
// container type given the container's tags: tagged flows win over the
// default, ties break lexicographically on flow name.
type FlowSet struct {
	flows []Flow
}

// NewFlowSet builds a registry from the given flows.
func NewFlowSet(flows ...Flow) *FlowSet {
	s := &FlowSet{flows: make([]Flow, len(flows))}
	copy(s.flows, flows)
	return s
}

// Add registers additional flows, typically loaded from configuration.
func (s *FlowSet) Add(flows ...Flow) {
	s.flows = append(s.flows, flows...)
}

// Select returns the active flow for a container type and tag set, or nil
// when no flow matches.
func (s *FlowSet) Select(ct ContainerType, tags []string) *Flow {
	var tagged []*Flow
	var def *Flow
	for i := range s.flows {
		f := &s.flows[i]
		if f.ContainerType != ct {
			continue
		}
		if len(f.Tags) == 0 {
			if def == nil || f.Name < def.Name {
				def = f
			}
			continue
		}
		if f.hasTag(tags) {
			tagged = append(tagged, f)
		}
	}
	if len(tagged) > 0 {
		sort.Slice(tagged, func(i, j int) bool { return tagged[i].Name < tagged[j].Name })
		return tagged[0]
	}
	return def
}

// Flows returns a copy of all registered flows.
func (s *FlowSet) Flows() []Flow {
	out := make([]Flow, len(s.flows))
	copy(out, s.flows)
	return out
}

// ReviewTag selects the built-in review flows, which insert an in-review
// stage before completion.
const ReviewTag = "review"

// BuiltinFlows returns the default flow registry: a default flow per
// container type plus review-tagged variants for features and tasks.
func BuiltinFlows() *FlowSet {
	return NewFlowSet(
		Flow{
			Name:             "project-default",
			ContainerType:    ContainerProject,
			Sequence:         []string{"planning", "in-development", "completed"},
			TerminalStatuses: []string{"completed", "archived"},
		},
		Flow{
			Name:             "feature-default",
			ContainerType:    ContainerFeature,
			Sequence:         []string{"planning", "in-development", "completed"},
			TerminalStatuses: []string{"completed", "archived"},
		},
		Flow{
			Name:             "feature-review",
			ContainerType:    ContainerFeature,
			Tags:             []string{ReviewTag},
			Sequence:         []string{"planning", "in-development", "in-review", "completed"},
			TerminalStatuses: []string{"completed", "archived"},
		},
		Flow{
			Name:             "task-default",
			ContainerType:    ContainerTask,
			Sequence:         []string{"pending", "in-progress", "completed"},
			TerminalStatuses: []string{"completed", "cancelled", "deferred"},
		},
		Flow{
			Name:             "task-review",
			ContainerType:    ContainerTask,
			Tags:             []string{ReviewTag},
			Sequence:         []string{"pending", "in-progress", "in-review", "completed"},
			TerminalStatuses: []string{"completed", "cancelled", "deferred"},
		},
	)
}
