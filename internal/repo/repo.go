// Package repo declares the repository contracts the engine services
// depend on. The store package provides the SQL-backed implementation;
// services and tools accept these interfaces so tests can substitute
// narrower fixtures.
//
// Conventions: single-row Get methods return (nil, nil) when no row
// matches. Mutations of missing rows return a RESOURCE_NOT_FOUND error.
// Storage failures are wrapped; the tool layer maps them to DATABASE_ERROR.
package repo

import (
	"context"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

// Projects is the project repository contract.
type Projects interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	CreateProject(ctx context.Context, p *model.Project) error
	UpdateProject(ctx context.Context, p *model.Project) error
	DeleteProject(ctx context.Context, id string) error

	// ListProjects returns projects newest first. limit <= 0 means all.
	ListProjects(ctx context.Context, limit int) ([]*model.Project, error)

	// GetFeatureCounts returns the per-status feature rollup for a project.
	GetFeatureCounts(ctx context.Context, projectID string) (model.FeatureCounts, error)
}

// Features is the feature repository contract.
type Features interface {
	GetFeature(ctx context.Context, id string) (*model.Feature, error)
	CreateFeature(ctx context.Context, f *model.Feature) error
	UpdateFeature(ctx context.Context, f *model.Feature) error
	DeleteFeature(ctx context.Context, id string) error
	ListFeatures(ctx context.Context, limit int) ([]*model.Feature, error)
	FindFeaturesByProject(ctx context.Context, projectID string) ([]*model.Feature, error)

	// GetTaskCounts returns the per-status task rollup for a feature.
	GetTaskCounts(ctx context.Context, featureID string) (model.TaskCounts, error)
}

// Tasks is the task repository contract.
type Tasks interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	CreateTask(ctx context.Context, t *model.Task) error
	UpdateTask(ctx context.Context, t *model.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, limit int) ([]*model.Task, error)
	FindTasksByFeature(ctx context.Context, featureID string) ([]*model.Task, error)
	FindTasksByProject(ctx context.Context, projectID string) ([]*model.Task, error)
	FindTasksByStatus(ctx context.Context, st status.TaskStatus) ([]*model.Task, error)
}

// Dependencies is the dependency repository contract.
type Dependencies interface {
	CreateDependency(ctx context.Context, d *model.Dependency) error
	GetDependency(ctx context.Context, id string) (*model.Dependency, error)
	DeleteDependency(ctx context.Context, id string) error
	ListDependencies(ctx context.Context) ([]*model.Dependency, error)
	FindDependenciesFrom(ctx context.Context, fromTaskID string) ([]*model.Dependency, error)
	FindDependenciesTo(ctx context.Context, toTaskID string) ([]*model.Dependency, error)

	// FindDependenciesForTask returns edges touching the task on either end.
	FindDependenciesForTask(ctx context.Context, taskID string) ([]*model.Dependency, error)

	// DeleteDependenciesForTask removes all edges touching the task and
	// returns how many were removed.
	DeleteDependenciesForTask(ctx context.Context, taskID string) (int, error)
}

// Sections is the section repository contract.
type Sections interface {
	GetSection(ctx context.Context, id string) (*model.Section, error)
	GetSectionsForEntity(ctx context.Context, entityType status.EntityType, entityID string) ([]*model.Section, error)
	AddSection(ctx context.Context, s *model.Section) error
	UpdateSection(ctx context.Context, s *model.Section) error
	DeleteSection(ctx context.Context, id string) error

	// DeleteSectionsForEntity removes every section attached to the entity
	// and returns how many were removed.
	DeleteSectionsForEntity(ctx context.Context, entityType status.EntityType, entityID string) (int, error)
}

// Templates is the template repository contract.
type Templates interface {
	GetTemplate(ctx context.Context, id string) (*model.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*model.Template, error)
	ListTemplates(ctx context.Context, target status.EntityType, includeDisabled bool) ([]*model.Template, error)
	CreateTemplate(ctx context.Context, t *model.Template) error
	UpdateTemplate(ctx context.Context, t *model.Template) error
	DeleteTemplate(ctx context.Context, id string) error
	GetTemplateSections(ctx context.Context, templateID string) ([]*model.TemplateSection, error)
	CreateTemplateSection(ctx context.Context, s *model.TemplateSection) error
}

// Set bundles every repository. The SQL store satisfies it with one value.
type Set interface {
	Projects
	Features
	Tasks
	Dependencies
	Sections
	Templates
}
