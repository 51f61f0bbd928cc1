// Package status defines the container kinds, their status enumerations,
// the role lattice, and the tag-selected workflow flows that drive
// status progression.
package status

import "strings"

// ContainerType identifies one of the three entity kinds that carry a
// workflow status.
type ContainerType string

const (
	ContainerProject ContainerType = "project"
	ContainerFeature ContainerType = "feature"
	ContainerTask    ContainerType = "task"
)

// ValidContainerTypes returns all container types.
func ValidContainerTypes() []ContainerType {
	return []ContainerType{ContainerProject, ContainerFeature, ContainerTask}
}

// ParseContainerType parses a container type string, accepting any case.
func ParseContainerType(s string) (ContainerType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "project":
		return ContainerProject, true
	case "feature":
		return ContainerFeature, true
	case "task":
		return ContainerTask, true
	default:
		return "", false
	}
}

func (c ContainerType) String() string {
	return string(c)
}

// EntityType returns the section-addressable entity type for the container.
func (c ContainerType) EntityType() EntityType {
	return EntityType(c)
}

// Normalize converts a status string to canonical external form:
// lower-case with hyphens (e.g. "IN_PROGRESS" -> "in-progress").
func Normalize(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
}

// Denormalize converts a status string to the legacy internal form:
// upper-case with underscores (e.g. "in-progress" -> "IN_PROGRESS").
func Denormalize(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
}

// ProjectStatus is a project lifecycle status in canonical form.
type ProjectStatus string

const (
	ProjectPlanning      ProjectStatus = "planning"
	ProjectInDevelopment ProjectStatus = "in-development"
	ProjectCompleted     ProjectStatus = "completed"
	ProjectArchived      ProjectStatus = "archived"
)

// ValidProjectStatuses returns all valid project statuses.
func ValidProjectStatuses() []ProjectStatus {
	return []ProjectStatus{ProjectPlanning, ProjectInDevelopment, ProjectCompleted, ProjectArchived}
}

// ParseProjectStatus parses a project status, accepting both the canonical
// kebab-case form and the upper-snake form.
func ParseProjectStatus(s string) (ProjectStatus, bool) {
	n := ProjectStatus(Normalize(s))
	for _, v := range ValidProjectStatuses() {
		if n == v {
			return v, true
		}
	}
	return "", false
}

func (s ProjectStatus) String() string { return string(s) }

// FeatureStatus is a feature lifecycle status in canonical form.
type FeatureStatus string

const (
	FeaturePlanning      FeatureStatus = "planning"
	FeatureInDevelopment FeatureStatus = "in-development"
	FeatureInReview      FeatureStatus = "in-review"
	FeatureCompleted     FeatureStatus = "completed"
	FeatureArchived      FeatureStatus = "archived"
)

// ValidFeatureStatuses returns all valid feature statuses.
func ValidFeatureStatuses() []FeatureStatus {
	return []FeatureStatus{FeaturePlanning, FeatureInDevelopment, FeatureInReview, FeatureCompleted, FeatureArchived}
}

// ParseFeatureStatus parses a feature status, accepting both forms.
func ParseFeatureStatus(s string) (FeatureStatus, bool) {
	n := FeatureStatus(Normalize(s))
	for _, v := range ValidFeatureStatuses() {
		if n == v {
			return v, true
		}
	}
	return "", false
}

func (s FeatureStatus) String() string { return string(s) }

// TaskStatus is a task lifecycle status in canonical form.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskInReview   TaskStatus = "in-review"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskDeferred   TaskStatus = "deferred"
)

// ValidTaskStatuses returns all valid task statuses.
func ValidTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskPending, TaskInProgress, TaskInReview, TaskCompleted, TaskCancelled, TaskDeferred}
}

// ParseTaskStatus parses a task status, accepting both forms.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	n := TaskStatus(Normalize(s))
	for _, v := range ValidTaskStatuses() {
		if n == v {
			return v, true
		}
	}
	return "", false
}

func (s TaskStatus) String() string { return string(s) }

// ValidStatuses returns the canonical status strings for a container type.
func ValidStatuses(ct ContainerType) []string {
	switch ct {
	case ContainerProject:
		out := make([]string, 0, 4)
		for _, v := range ValidProjectStatuses() {
			out = append(out, string(v))
		}
		return out
	case ContainerFeature:
		out := make([]string, 0, 5)
		for _, v := range ValidFeatureStatuses() {
			out = append(out, string(v))
		}
		return out
	case ContainerTask:
		out := make([]string, 0, 6)
		for _, v := range ValidTaskStatuses() {
			out = append(out, string(v))
		}
		return out
	default:
		return nil
	}
}

// IsValidStatus reports whether s parses into the container's enumeration.
func IsValidStatus(s string, ct ContainerType) bool {
	switch ct {
	case ContainerProject:
		_, ok := ParseProjectStatus(s)
		return ok
	case ContainerFeature:
		_, ok := ParseFeatureStatus(s)
		return ok
	case ContainerTask:
		_, ok := ParseTaskStatus(s)
		return ok
	default:
		return false
	}
}

// Priority is the importance level shared by features and tasks.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ValidPriorities returns all valid priorities.
func ValidPriorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh}
}

// ParsePriority parses a priority, accepting both forms.
func ParsePriority(s string) (Priority, bool) {
	switch Normalize(s) {
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	default:
		return "", false
	}
}

// Rank returns the ordering weight of the priority. Higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) String() string { return string(p) }

// DependencyType classifies an edge between two tasks.
type DependencyType string

const (
	DependencyBlocks      DependencyType = "BLOCKS"
	DependencyIsBlockedBy DependencyType = "IS_BLOCKED_BY"
	DependencyRelatesTo   DependencyType = "RELATES_TO"
)

// ValidDependencyTypes returns all dependency types.
func ValidDependencyTypes() []DependencyType {
	return []DependencyType{DependencyBlocks, DependencyIsBlockedBy, DependencyRelatesTo}
}

// ParseDependencyType parses a dependency type, accepting any case and
// either separator.
func ParseDependencyType(s string) (DependencyType, bool) {
	switch Denormalize(s) {
	case "BLOCKS":
		return DependencyBlocks, true
	case "IS_BLOCKED_BY":
		return DependencyIsBlockedBy, true
	case "RELATES_TO":
		return DependencyRelatesTo, true
	default:
		return "", false
	}
}

func (d DependencyType) String() string { return string(d) }

// EntityType identifies what a section is attached to. It is a superset of
// ContainerType: templates also carry section definitions.
type EntityType string

const (
	EntityProject  EntityType = "project"
	EntityFeature  EntityType = "feature"
	EntityTask     EntityType = "task"
	EntityTemplate EntityType = "template"
)

// ParseEntityType parses an entity type, accepting any case.
func ParseEntityType(s string) (EntityType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "project":
		return EntityProject, true
	case "feature":
		return EntityFeature, true
	case "task":
		return EntityTask, true
	case "template":
		return EntityTemplate, true
	default:
		return "", false
	}
}

func (e EntityType) String() string { return string(e) }

// ContentFormat describes how section content should be interpreted.
type ContentFormat string

const (
	FormatMarkdown  ContentFormat = "markdown"
	FormatPlainText ContentFormat = "plain-text"
	FormatJSON      ContentFormat = "json"
	FormatCode      ContentFormat = "code"
)

// ParseContentFormat parses a content format, accepting both forms.
func ParseContentFormat(s string) (ContentFormat, bool) {
	switch Normalize(s) {
	case "markdown":
		return FormatMarkdown, true
	case "plain-text", "plaintext":
		return FormatPlainText, true
	case "json":
		return FormatJSON, true
	case "code":
		return FormatCode, true
	default:
		return "", false
	}
}

func (f ContentFormat) String() string { return string(f) }
