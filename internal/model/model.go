// Package model defines the persisted entities of the orchestrator: the
// three container kinds plus their supporting records (dependencies,
// sections, templates).
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

// Project is the top level of the container hierarchy.
type Project struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Summary     string               `json:"summary"`
	Status      status.ProjectStatus `json:"status"`
	Tags        []string             `json:"tags,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	ModifiedAt  time.Time            `json:"modified_at"`
}

// Feature groups tasks under an optional project.
type Feature struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Summary     string               `json:"summary"`
	Status      status.FeatureStatus `json:"status"`
	Priority    status.Priority      `json:"priority"`

	// ProjectID is nil for standalone features.
	ProjectID *string `json:"project_id,omitempty"`

	// RequiresVerification exempts the feature's tasks from completion
	// cleanup.
	RequiresVerification bool      `json:"requires_verification,omitempty"`
	Tags                 []string  `json:"tags,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	ModifiedAt           time.Time `json:"modified_at"`
}

// Task is the unit of work at the bottom of the hierarchy.
type Task struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Summary     string            `json:"summary"`
	Status      status.TaskStatus `json:"status"`
	Priority    status.Priority   `json:"priority"`

	// Complexity is an estimate on a 1..10 scale.
	Complexity int `json:"complexity"`

	// ProjectID and FeatureID are nil for orphan tasks.
	ProjectID *string `json:"project_id,omitempty"`
	FeatureID *string `json:"feature_id,omitempty"`

	// RequiresVerification retains the task during completion cleanup.
	RequiresVerification bool      `json:"requires_verification,omitempty"`
	Tags                 []string  `json:"tags,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	ModifiedAt           time.Time `json:"modified_at"`
}

// Dependency is a directed edge between two tasks.
type Dependency struct {
	ID         string                `json:"id"`
	FromTaskID string                `json:"from_task_id"`
	ToTaskID   string                `json:"to_task_id"`
	Type       status.DependencyType `json:"type"`

	// UnblockAt overrides the role the blocker must reach before the edge
	// is considered satisfied. Nil means the terminal role.
	UnblockAt *status.Role `json:"unblock_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// EffectiveUnblockRole returns the role threshold of the edge, defaulting
// to terminal when no override is set.
func (d *Dependency) EffectiveUnblockRole() status.Role {
	if d.UnblockAt != nil && *d.UnblockAt != "" {
		return *d.UnblockAt
	}
	return status.RoleTerminal
}

// Blocking resolves the edge into blocking semantics: which task gates
// which. BLOCKS reads forward, IS_BLOCKED_BY is the stored inverse.
// RELATES_TO carries no blocking meaning and returns ok=false.
func (d *Dependency) Blocking() (blocker, blocked string, ok bool) {
	switch d.Type {
	case status.DependencyBlocks:
		return d.FromTaskID, d.ToTaskID, true
	case status.DependencyIsBlockedBy:
		return d.ToTaskID, d.FromTaskID, true
	default:
		return "", "", false
	}
}

// Section is a titled content block attached to a project, feature, task,
// or template.
type Section struct {
	ID               string               `json:"id"`
	EntityType       status.EntityType    `json:"entity_type"`
	EntityID         string               `json:"entity_id"`
	Title            string               `json:"title"`
	UsageDescription string               `json:"usage_description,omitempty"`
	Content          string               `json:"content"`
	ContentFormat    status.ContentFormat `json:"content_format"`
	Ordinal          int                  `json:"ordinal"`
	Tags             []string             `json:"tags,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	ModifiedAt       time.Time            `json:"modified_at"`
}

// Template is a reusable set of section definitions for one entity type.
type Template struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	TargetEntityType status.EntityType `json:"target_entity_type"`
	IsBuiltIn        bool              `json:"is_built_in"`
	IsProtected      bool              `json:"is_protected"`
	IsEnabled        bool              `json:"is_enabled"`
	Tags             []string          `json:"tags,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	ModifiedAt       time.Time         `json:"modified_at"`
}

// TemplateSection is a section definition inside a template. Applying the
// template clones it into a Section with Content = ContentSample.
type TemplateSection struct {
	ID               string               `json:"id"`
	TemplateID       string               `json:"template_id"`
	Title            string               `json:"title"`
	UsageDescription string               `json:"usage_description,omitempty"`
	ContentSample    string               `json:"content_sample"`
	ContentFormat    status.ContentFormat `json:"content_format"`
	Ordinal          int                  `json:"ordinal"`
	IsRequired       bool                 `json:"is_required"`
	Tags             []string             `json:"tags,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	ModifiedAt       time.Time            `json:"modified_at"`
}

// TaskCounts is the per-feature status rollup used by cascade detection.
type TaskCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	InReview   int `json:"in_review"`
	Completed  int `json:"completed"`
	Cancelled  int `json:"cancelled"`
	Deferred   int `json:"deferred"`
}

// Done returns the number of tasks that count toward completion.
func (c TaskCounts) Done() int {
	return c.Completed + c.Cancelled
}

// FeatureCounts is the per-project status rollup.
type FeatureCounts struct {
	Total         int `json:"total"`
	Planning      int `json:"planning"`
	InDevelopment int `json:"in_development"`
	InReview      int `json:"in_review"`
	Completed     int `json:"completed"`
	Archived      int `json:"archived"`
}

// BlockerInfo describes a blocking task for display purposes.
type BlockerInfo struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Status status.TaskStatus `json:"status"`
}

// UnblockedTask identifies a downstream task whose blockers all became
// satisfied.
type UnblockedTask struct {
	TaskID string `json:"task_id"`
	Title  string `json:"title"`
}

// ValidComplexity reports whether c is on the 1..10 scale.
func ValidComplexity(c int) bool {
	return c >= 1 && c <= 10
}

// NewProject creates a project in the planning state.
func NewProject(name string) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     status.ProjectPlanning,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// NewFeature creates a feature in the planning state with medium priority.
func NewFeature(name string) *Feature {
	now := time.Now().UTC()
	return &Feature{
		ID:         uuid.NewString(),
		Name:       name,
		Status:     status.FeaturePlanning,
		Priority:   status.PriorityMedium,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// NewTask creates a pending task with medium priority and complexity 5.
func NewTask(title string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:         uuid.NewString(),
		Title:      title,
		Status:     status.TaskPending,
		Priority:   status.PriorityMedium,
		Complexity: 5,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// NewDependency creates an edge between two tasks.
func NewDependency(fromTaskID, toTaskID string, typ status.DependencyType) *Dependency {
	return &Dependency{
		ID:         uuid.NewString(),
		FromTaskID: fromTaskID,
		ToTaskID:   toTaskID,
		Type:       typ,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewSection creates a section attached to an entity.
func NewSection(entityType status.EntityType, entityID, title string) *Section {
	now := time.Now().UTC()
	return &Section{
		ID:            uuid.NewString(),
		EntityType:    entityType,
		EntityID:      entityID,
		Title:         title,
		ContentFormat: status.FormatMarkdown,
		CreatedAt:     now,
		ModifiedAt:    now,
	}
}
