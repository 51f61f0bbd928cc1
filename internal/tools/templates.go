package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

const manageTemplateSchema = `{
  "type": "object",
  "properties": {
    "operation": {
      "type": "string",
      "enum": ["list", "get", "create", "update", "delete", "apply"],
      "description": "Template operation to perform"
    },
    "templateId": {
      "type": "string",
      "description": "Template UUID (get/update/delete; apply accepts templateIds instead)"
    },
    "templateIds": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Templates to apply in order"
    },
    "name": {
      "type": "string",
      "description": "Template name (create/update; get accepts it instead of templateId)"
    },
    "description": {
      "type": "string",
      "description": "Template description (create/update)"
    },
    "targetEntityType": {
      "type": "string",
      "enum": ["project", "feature", "task"],
      "description": "Entity type the template attaches to (create; filters list)"
    },
    "isEnabled": {
      "type": "boolean",
      "description": "Enable or disable the template (update)"
    },
    "includeDisabled": {
      "type": "boolean",
      "description": "Include disabled templates in list results"
    },
    "tags": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Template tags (create/update)"
    },
    "sections": {
      "type": "array",
      "description": "Section definitions (create): {title, usageDescription, contentSample, contentFormat, isRequired, tags}",
      "items": {"type": "object"}
    },
    "entityType": {
      "type": "string",
      "enum": ["project", "feature", "task"],
      "description": "Entity type to apply onto (apply)"
    },
    "entityId": {
      "type": "string",
      "description": "Entity UUID to apply onto (apply)"
    }
  },
  "required": ["operation"]
}`

type manageTemplateParams struct {
	Operation        string              `json:"operation"`
	TemplateID       string              `json:"templateId,omitempty"`
	TemplateIDs      []string            `json:"templateIds,omitempty"`
	Name             string              `json:"name,omitempty"`
	Description      string              `json:"description,omitempty"`
	TargetEntityType string              `json:"targetEntityType,omitempty"`
	IsEnabled        bool                `json:"isEnabled,omitempty"`
	IncludeDisabled  bool                `json:"includeDisabled,omitempty"`
	Tags             []string            `json:"tags,omitempty"`
	Sections         []templateSectionIn `json:"sections,omitempty"`
	EntityType       string              `json:"entityType,omitempty"`
	EntityID         string              `json:"entityId,omitempty"`
}

type templateSectionIn struct {
	Title            string   `json:"title"`
	UsageDescription string   `json:"usageDescription,omitempty"`
	ContentSample    string   `json:"contentSample,omitempty"`
	ContentFormat    string   `json:"contentFormat,omitempty"`
	IsRequired       bool     `json:"isRequired,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// ManageTemplate is the catalog surface: list, inspect, author, and apply
// section templates. Built-in templates are protected and reject update
// and delete.
type ManageTemplate struct {
	deps Deps
}

func NewManageTemplate(deps Deps) *ManageTemplate {
	return &ManageTemplate{deps: deps}
}

func (t *ManageTemplate) Name() string { return "manage_template" }

func (t *ManageTemplate) Description() string {
	return "List, inspect, create, update, delete, or apply section templates. Applying a template clones " +
		"its section definitions onto a project, feature, or task. Built-in templates cannot be modified or deleted."
}

func (t *ManageTemplate) InputSchema() json.RawMessage {
	return json.RawMessage(manageTemplateSchema)
}

func (t *ManageTemplate) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p manageTemplateParams
	if err := json.Unmarshal(args, &p); err != nil {
		return failValidation("invalid manage_template parameters", err.Error())
	}

	switch p.Operation {
	case "list":
		return t.list(ctx, p)
	case "get":
		return t.get(ctx, p)
	case "create":
		return t.create(ctx, p)
	case "update":
		return t.update(ctx, p, args)
	case "delete":
		return t.delete(ctx, p)
	case "apply":
		return t.apply(ctx, p)
	default:
		return failValidation(fmt.Sprintf("unknown operation %q", p.Operation),
			"expected list, get, create, update, delete, or apply")
	}
}

func (t *ManageTemplate) list(ctx context.Context, p manageTemplateParams) (*mcp.ToolsCallResult, error) {
	var target status.EntityType
	if p.TargetEntityType != "" {
		ct, known := status.ParseContainerType(p.TargetEntityType)
		if !known {
			return failValidation(fmt.Sprintf("unknown targetEntityType %q", p.TargetEntityType),
				"expected project, feature, or task")
		}
		target = ct.EntityType()
	}
	templates, err := t.deps.Repos.ListTemplates(ctx, target, p.IncludeDisabled)
	if err != nil {
		return fail(taskerr.NewDatabase("list templates", err))
	}
	if templates == nil {
		templates = []*model.Template{}
	}
	return ok(fmt.Sprintf("%d template(s)", len(templates)), map[string]any{
		"templates": templates,
		"count":     len(templates),
	})
}

func (t *ManageTemplate) get(ctx context.Context, p manageTemplateParams) (*mcp.ToolsCallResult, error) {
	tpl, err := t.lookup(ctx, p.TemplateID, p.Name)
	if err != nil {
		return fail(err)
	}
	sections, err := t.deps.Repos.GetTemplateSections(ctx, tpl.ID)
	if err != nil {
		return fail(taskerr.NewDatabase("load template sections", err))
	}
	if sections == nil {
		sections = []*model.TemplateSection{}
	}
	return ok(fmt.Sprintf("Template %q", tpl.Name), map[string]any{
		"template": tpl,
		"sections": sections,
	})
}

// lookup resolves a template by id first, then by name.
func (t *ManageTemplate) lookup(ctx context.Context, id, name string) (*model.Template, error) {
	if id != "" {
		if !validUUID(id) {
			return nil, taskerr.NewValidation("templateId must be a UUID", id)
		}
		tpl, err := t.deps.Repos.GetTemplate(ctx, id)
		if err != nil {
			return nil, taskerr.NewDatabase("load template", err)
		}
		if tpl == nil {
			return nil, taskerr.NewNotFound("template", id)
		}
		return tpl, nil
	}
	if name == "" {
		return nil, taskerr.NewValidation("templateId or name is required", "")
	}
	tpl, err := t.deps.Repos.GetTemplateByName(ctx, name)
	if err != nil {
		return nil, taskerr.NewDatabase("load template", err)
	}
	if tpl == nil {
		return nil, taskerr.NewNotFound("template", name)
	}
	return tpl, nil
}

func (t *ManageTemplate) create(ctx context.Context, p manageTemplateParams) (*mcp.ToolsCallResult, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return failValidation("template name is required", "")
	}
	targetCT, known := status.ParseContainerType(p.TargetEntityType)
	if !known {
		return failValidation(fmt.Sprintf("unknown targetEntityType %q", p.TargetEntityType),
			"expected project, feature, or task")
	}
	target := targetCT.EntityType()
	if len(p.Sections) == 0 {
		return failValidation("a template needs at least one section definition", "")
	}

	existing, err := t.deps.Repos.GetTemplateByName(ctx, name)
	if err != nil {
		return fail(taskerr.NewDatabase("check template name", err))
	}
	if existing != nil {
		return fail(taskerr.NewDuplicate("template", name))
	}

	now := time.Now().UTC()
	tpl := &model.Template{
		ID:               uuid.NewString(),
		Name:             name,
		Description:      p.Description,
		TargetEntityType: target,
		IsEnabled:        true,
		Tags:             p.Tags,
		CreatedAt:        now,
		ModifiedAt:       now,
	}
	if err := t.deps.Repos.CreateTemplate(ctx, tpl); err != nil {
		return fail(taskerr.NewDatabase("create template", err))
	}

	created := 0
	for i, in := range p.Sections {
		title := strings.TrimSpace(in.Title)
		if title == "" {
			return fail(taskerr.NewValidation(fmt.Sprintf("section %d has no title", i), ""))
		}
		format := status.FormatMarkdown
		if in.ContentFormat != "" {
			f, known := status.ParseContentFormat(in.ContentFormat)
			if !known {
				return fail(taskerr.NewValidation(fmt.Sprintf("section %d: unknown contentFormat %q", i, in.ContentFormat), ""))
			}
			format = f
		}
		sec := &model.TemplateSection{
			ID:               uuid.NewString(),
			TemplateID:       tpl.ID,
			Title:            title,
			UsageDescription: in.UsageDescription,
			ContentSample:    in.ContentSample,
			ContentFormat:    format,
			Ordinal:          i,
			IsRequired:       in.IsRequired,
			Tags:             in.Tags,
			CreatedAt:        now,
			ModifiedAt:       now,
		}
		if err := t.deps.Repos.CreateTemplateSection(ctx, sec); err != nil {
			return fail(taskerr.NewDatabase("create template section", err))
		}
		created++
	}

	return ok(fmt.Sprintf("Created template %q with %d section(s)", tpl.Name, created), map[string]any{
		"template":        tpl,
		"sectionsCreated": created,
	})
}

func (t *ManageTemplate) update(ctx context.Context, p manageTemplateParams, raw json.RawMessage) (*mcp.ToolsCallResult, error) {
	tpl, err := t.lookup(ctx, p.TemplateID, "")
	if err != nil {
		return fail(err)
	}
	if tpl.IsBuiltIn || tpl.IsProtected {
		return fail(taskerr.NewConflict(fmt.Sprintf("template %q is protected", tpl.Name),
			"built-in templates cannot be modified; create a copy instead"))
	}

	has := func(field string) bool { return gjson.GetBytes(raw, field).Exists() }
	if has("name") {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fail(taskerr.NewValidation("template name cannot be empty", ""))
		}
		if name != tpl.Name {
			existing, err := t.deps.Repos.GetTemplateByName(ctx, name)
			if err != nil {
				return fail(taskerr.NewDatabase("check template name", err))
			}
			if existing != nil {
				return fail(taskerr.NewDuplicate("template", name))
			}
		}
		tpl.Name = name
	}
	if has("description") {
		tpl.Description = p.Description
	}
	if has("isEnabled") {
		tpl.IsEnabled = p.IsEnabled
	}
	if has("tags") {
		tpl.Tags = p.Tags
	}

	tpl.ModifiedAt = time.Now().UTC()
	if err := t.deps.Repos.UpdateTemplate(ctx, tpl); err != nil {
		return fail(taskerr.NewDatabase("update template", err))
	}
	return ok(fmt.Sprintf("Updated template %q", tpl.Name), map[string]any{"template": tpl})
}

func (t *ManageTemplate) delete(ctx context.Context, p manageTemplateParams) (*mcp.ToolsCallResult, error) {
	tpl, err := t.lookup(ctx, p.TemplateID, "")
	if err != nil {
		return fail(err)
	}
	if tpl.IsBuiltIn || tpl.IsProtected {
		return fail(taskerr.NewConflict(fmt.Sprintf("template %q is protected", tpl.Name),
			"built-in templates cannot be deleted"))
	}
	if err := t.deps.Repos.DeleteTemplate(ctx, tpl.ID); err != nil {
		return fail(taskerr.NewDatabase("delete template", err))
	}
	return ok(fmt.Sprintf("Deleted template %q", tpl.Name), map[string]any{"id": tpl.ID})
}

func (t *ManageTemplate) apply(ctx context.Context, p manageTemplateParams) (*mcp.ToolsCallResult, error) {
	ct, known := status.ParseContainerType(p.EntityType)
	if !known {
		return failValidation(fmt.Sprintf("unknown entityType %q", p.EntityType),
			"expected project, feature, or task")
	}
	et := ct.EntityType()
	if !validUUID(p.EntityID) {
		return failValidation("entityId must be a UUID", p.EntityID)
	}
	ids := p.TemplateIDs
	if len(ids) == 0 && p.TemplateID != "" {
		ids = []string{p.TemplateID}
	}
	if len(ids) == 0 {
		return failValidation("templateIds is required", "")
	}

	results, err := t.deps.Templates.ApplyMany(ctx, ids, et, p.EntityID)
	applied := make([]map[string]any, 0, len(ids))
	total := 0
	for _, id := range ids {
		sections, found := results[id]
		if !found {
			continue
		}
		applied = append(applied, map[string]any{"templateId": id, "sectionsCreated": len(sections)})
		total += len(sections)
	}

	data := map[string]any{
		"appliedTemplates": applied,
		"sectionsCreated":  total,
	}
	if err != nil {
		if len(applied) == 0 {
			return fail(taskerr.NewOperationFailed("no template could be applied", err))
		}
		data["warnings"] = err.Error()
	}
	return ok(fmt.Sprintf("Applied %d of %d template(s), %d section(s) created", len(applied), len(ids), total), data)
}
