// Package template applies reusable section templates to projects,
// features, and tasks: every section definition of the template is
// cloned onto the entity with the sample content as the starting text.
package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/repo"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

// Engine clones template sections onto entities.
type Engine struct {
	repos repo.Set
}

// NewEngine builds a template engine over the repositories.
func NewEngine(repos repo.Set) *Engine {
	return &Engine{repos: repos}
}

// Apply clones the template's section definitions into new sections on
// the entity, appended after any sections the entity already has, in
// the template's ordinal order.
func (e *Engine) Apply(ctx context.Context, templateID string, entityType status.EntityType, entityID string) ([]*model.Section, error) {
	tpl, err := e.repos.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, taskerr.NewDatabase("load template", err)
	}
	if tpl == nil {
		return nil, taskerr.NewNotFound("template", templateID)
	}
	if !tpl.IsEnabled {
		return nil, taskerr.NewValidation(
			fmt.Sprintf("template %q is disabled", tpl.Name),
			"enable the template before applying it")
	}
	if tpl.TargetEntityType != entityType {
		return nil, taskerr.NewValidation(
			fmt.Sprintf("template %q targets %s entities", tpl.Name, tpl.TargetEntityType),
			fmt.Sprintf("cannot apply it to a %s", entityType))
	}

	if err := e.ensureEntityExists(ctx, entityType, entityID); err != nil {
		return nil, err
	}

	existing, err := e.repos.GetSectionsForEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, taskerr.NewDatabase("load existing sections", err)
	}
	nextOrdinal := 0
	for _, s := range existing {
		if s.Ordinal >= nextOrdinal {
			nextOrdinal = s.Ordinal + 1
		}
	}

	defs, err := e.repos.GetTemplateSections(ctx, templateID)
	if err != nil {
		return nil, taskerr.NewDatabase("load template sections", err)
	}

	created := make([]*model.Section, 0, len(defs))
	now := time.Now().UTC()
	for i, def := range defs {
		section := &model.Section{
			ID:               uuid.NewString(),
			EntityType:       entityType,
			EntityID:         entityID,
			Title:            def.Title,
			UsageDescription: def.UsageDescription,
			Content:          def.ContentSample,
			ContentFormat:    def.ContentFormat,
			Ordinal:          nextOrdinal + i,
			Tags:             append([]string(nil), def.Tags...),
			CreatedAt:        now,
			ModifiedAt:       now,
		}
		if err := e.repos.AddSection(ctx, section); err != nil {
			return created, taskerr.NewDatabase("create section", err)
		}
		created = append(created, section)
	}
	return created, nil
}

// ApplyMany applies several templates to one entity. Templates that
// fail do not stop the rest; the returned map holds the sections of the
// ones that succeeded and the error joins every failure.
func (e *Engine) ApplyMany(ctx context.Context, templateIDs []string, entityType status.EntityType, entityID string) (map[string][]*model.Section, error) {
	results := make(map[string][]*model.Section, len(templateIDs))
	var errs []error
	for _, id := range templateIDs {
		sections, err := e.Apply(ctx, id, entityType, entityID)
		if err != nil {
			errs = append(errs, fmt.Errorf("template %s: %w", id, err))
			continue
		}
		results[id] = sections
	}
	return results, errors.Join(errs...)
}

func (e *Engine) ensureEntityExists(ctx context.Context, entityType status.EntityType, entityID string) error {
	var (
		found bool
		err   error
	)
	switch entityType {
	case status.EntityProject:
		var p *model.Project
		p, err = e.repos.GetProject(ctx, entityID)
		found = p != nil
	case status.EntityFeature:
		var f *model.Feature
		f, err = e.repos.GetFeature(ctx, entityID)
		found = f != nil
	case status.EntityTask:
		var t *model.Task
		t, err = e.repos.GetTask(ctx, entityID)
		found = t != nil
	default:
		return taskerr.NewValidation(
			fmt.Sprintf("templates cannot be applied to %s entities", entityType), "")
	}
	if err != nil {
		return taskerr.NewDatabase("load entity", err)
	}
	if !found {
		return taskerr.NewNotFound(string(entityType), entityID)
	}
	return nil
}
