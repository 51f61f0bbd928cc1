package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taskorchestrator/taskorchestrator/internal/cascade"
	"github.com/taskorchestrator/taskorchestrator/internal/lock"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/repo"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

// manageParams is the request body of manage_container.
type manageParams struct {
	Operation      string            `json:"operation"`
	ContainerType  string            `json:"containerType"`
	Containers     []json.RawMessage `json:"containers,omitempty"`
	IDs            []string          `json:"ids,omitempty"`
	Defaults       json.RawMessage   `json:"defaults,omitempty"`
	Force          bool              `json:"force,omitempty"`
	DeleteSections *bool             `json:"deleteSections,omitempty"`
}

// containerItem is one element of the containers array. The same shape
// serves create and update; update only applies fields present in the
// raw JSON.
type containerItem struct {
	ID                   string   `json:"id,omitempty"`
	Name                 string   `json:"name,omitempty"`
	Title                string   `json:"title,omitempty"`
	Description          string   `json:"description,omitempty"`
	Summary              string   `json:"summary,omitempty"`
	Status               string   `json:"status,omitempty"`
	Priority             string   `json:"priority,omitempty"`
	Complexity           int      `json:"complexity,omitempty"`
	ProjectID            string   `json:"projectId,omitempty"`
	FeatureID            string   `json:"featureId,omitempty"`
	RequiresVerification bool     `json:"requiresVerification,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	TemplateIDs          []string `json:"templateIds,omitempty"`
}

const manageContainerSchema = `{
  "type": "object",
  "properties": {
    "operation": {
      "type": "string",
      "enum": ["create", "update", "delete"],
      "description": "Write operation to perform"
    },
    "containerType": {
      "type": "string",
      "enum": ["project", "feature", "task"],
      "description": "Kind of container the operation targets"
    },
    "containers": {
      "type": "array",
      "maxItems": 100,
      "description": "Batch of container objects (create/update). Projects and features use name, tasks use title. Update items must carry id.",
      "items": {"type": "object"}
    },
    "ids": {
      "type": "array",
      "maxItems": 100,
      "description": "Container IDs to delete",
      "items": {"type": "string"}
    },
    "defaults": {
      "type": "object",
      "description": "Shared field defaults inherited by create items that omit the field"
    },
    "force": {
      "type": "boolean",
      "description": "Cascade-delete children and dependency edges instead of rejecting"
    },
    "deleteSections": {
      "type": "boolean",
      "description": "Remove the entity's own sections on delete (default true)"
    }
  },
  "required": ["operation", "containerType"]
}`

// ManageContainer consolidates create, update, and delete for projects,
// features, and tasks into one batch tool.
type ManageContainer struct {
	deps Deps
}

func NewManageContainer(deps Deps) *ManageContainer {
	return &ManageContainer{deps: deps}
}

func (t *ManageContainer) Name() string { return "manage_container" }

func (t *ManageContainer) Description() string {
	return "Create, update, or delete projects, features, and tasks in batches of up to 100. " +
		"Create supports shared defaults and template application; update changes only the fields provided " +
		"and validates status transitions; delete rejects when children or dependencies exist unless force=true."
}

func (t *ManageContainer) InputSchema() json.RawMessage {
	return json.RawMessage(manageContainerSchema)
}

func (t *ManageContainer) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p manageParams
	if err := json.Unmarshal(args, &p); err != nil {
		return failValidation("invalid manage_container parameters", err.Error())
	}
	ct, known := status.ParseContainerType(p.ContainerType)
	if !known {
		return failValidation(fmt.Sprintf("unknown containerType %q", p.ContainerType),
			"expected project, feature, or task")
	}
	ctx = lock.EnsureToken(ctx)

	switch p.Operation {
	case "create":
		return t.create(ctx, ct, p)
	case "update":
		return t.update(ctx, ct, p)
	case "delete":
		return t.delete(ctx, ct, p)
	default:
		return failValidation(fmt.Sprintf("unknown operation %q", p.Operation),
			"expected create, update, or delete")
	}
}

func checkBatch(n int, param string) error {
	if n == 0 {
		return taskerr.NewValidation(fmt.Sprintf("%s must contain at least one item", param), "")
	}
	if n > maxBatchSize {
		return taskerr.NewValidation(fmt.Sprintf("%s exceeds the batch limit", param),
			fmt.Sprintf("got %d items, maximum is %d", n, maxBatchSize))
	}
	return nil
}

// --- create ---

func (t *ManageContainer) create(ctx context.Context, ct status.ContainerType, p manageParams) (*mcp.ToolsCallResult, error) {
	if err := checkBatch(len(p.Containers), "containers"); err != nil {
		return fail(err)
	}

	var defaults containerItem
	if len(p.Defaults) > 0 {
		if err := json.Unmarshal(p.Defaults, &defaults); err != nil {
			return failValidation("invalid defaults object", err.Error())
		}
	}

	cache := newParentCache(t.deps.Repos)
	items := make([]map[string]any, 0, len(p.Containers))
	failures := []itemFailure{}
	untemplated := 0

	for i, raw := range p.Containers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := decodeItem(raw, defaults)
		if err != nil {
			failures = append(failures, failureAt(i, "", taskerr.NewValidation("invalid container object", err.Error())))
			continue
		}
		entry, err := t.createOne(ctx, ct, item, cache)
		if err != nil {
			failures = append(failures, failureAt(i, "", err))
			continue
		}
		if ct != status.ContainerProject && len(item.TemplateIDs) == 0 {
			untemplated++
		}
		items = append(items, entry)
	}

	data := map[string]any{
		"created":  len(items),
		"failed":   len(failures),
		"items":    items,
		"failures": failures,
	}
	if untemplated > 0 {
		data["warning"] = fmt.Sprintf("%d %s(s) created without templates; pass templateIds to seed structured sections", untemplated, ct)
	}
	return ok(fmt.Sprintf("Created %d of %d %s(s)", len(items), len(p.Containers), ct), data)
}

// decodeItem unmarshals one container object and fills in the shared
// defaults for every field the item's JSON omits.
func decodeItem(raw json.RawMessage, defaults containerItem) (containerItem, error) {
	var item containerItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return item, err
	}
	omitted := func(field string) bool { return !gjson.GetBytes(raw, field).Exists() }

	if omitted("description") && defaults.Description != "" {
		item.Description = defaults.Description
	}
	if omitted("summary") && defaults.Summary != "" {
		item.Summary = defaults.Summary
	}
	if omitted("status") && defaults.Status != "" {
		item.Status = defaults.Status
	}
	if omitted("priority") && defaults.Priority != "" {
		item.Priority = defaults.Priority
	}
	if omitted("complexity") && defaults.Complexity != 0 {
		item.Complexity = defaults.Complexity
	}
	if omitted("projectId") && defaults.ProjectID != "" {
		item.ProjectID = defaults.ProjectID
	}
	if omitted("featureId") && defaults.FeatureID != "" {
		item.FeatureID = defaults.FeatureID
	}
	if omitted("requiresVerification") {
		item.RequiresVerification = defaults.RequiresVerification
	}
	if omitted("tags") && len(defaults.Tags) > 0 {
		item.Tags = defaults.Tags
	}
	if omitted("templateIds") && len(defaults.TemplateIDs) > 0 {
		item.TemplateIDs = defaults.TemplateIDs
	}
	return item, nil
}

func (t *ManageContainer) createOne(ctx context.Context, ct status.ContainerType, item containerItem, cache *parentCache) (map[string]any, error) {
	switch ct {
	case status.ContainerProject:
		return t.createProject(ctx, item)
	case status.ContainerFeature:
		return t.createFeature(ctx, item, cache)
	default:
		return t.createTask(ctx, item, cache)
	}
}

func (t *ManageContainer) createProject(ctx context.Context, item containerItem) (map[string]any, error) {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return nil, taskerr.NewValidation("project name is required", "")
	}
	proj := model.NewProject(name)
	proj.Description = item.Description
	proj.Summary = item.Summary
	proj.Tags = item.Tags
	if item.Status != "" {
		st := status.Normalize(item.Status)
		if err := t.deps.Validate.ValidateStatus(st, status.ContainerProject); err != nil {
			return nil, err
		}
		parsed, _ := status.ParseProjectStatus(st)
		proj.Status = parsed
	}
	if err := t.deps.Repos.CreateProject(ctx, proj); err != nil {
		return nil, taskerr.NewDatabase("create project", err)
	}
	entry := map[string]any{"id": proj.ID, "name": proj.Name, "status": proj.Status}
	t.applyTemplates(ctx, item.TemplateIDs, status.EntityProject, proj.ID, entry)
	return entry, nil
}

func (t *ManageContainer) createFeature(ctx context.Context, item containerItem, cache *parentCache) (map[string]any, error) {
	name := strings.TrimSpace(item.Name)
	if name == "" {
		return nil, taskerr.NewValidation("feature name is required", "")
	}
	feat := model.NewFeature(name)
	feat.Description = item.Description
	feat.Summary = item.Summary
	feat.Tags = item.Tags
	feat.RequiresVerification = item.RequiresVerification
	if item.Priority != "" {
		pr, known := status.ParsePriority(item.Priority)
		if !known {
			return nil, taskerr.NewValidation(fmt.Sprintf("unknown priority %q", item.Priority),
				"expected low, medium, or high")
		}
		feat.Priority = pr
	}
	if item.ProjectID != "" {
		pid, err := t.resolveProject(ctx, item.ProjectID, cache)
		if err != nil {
			return nil, err
		}
		feat.ProjectID = pid
	}
	if item.Status != "" {
		st := status.Normalize(item.Status)
		if err := t.deps.Validate.ValidateStatus(st, status.ContainerFeature); err != nil {
			return nil, err
		}
		parsed, _ := status.ParseFeatureStatus(st)
		feat.Status = parsed
	}
	if err := t.deps.Repos.CreateFeature(ctx, feat); err != nil {
		return nil, taskerr.NewDatabase("create feature", err)
	}
	entry := map[string]any{"id": feat.ID, "name": feat.Name, "status": feat.Status}
	t.applyTemplates(ctx, item.TemplateIDs, status.EntityFeature, feat.ID, entry)
	return entry, nil
}

func (t *ManageContainer) createTask(ctx context.Context, item containerItem, cache *parentCache) (map[string]any, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, taskerr.NewValidation("task title is required", "")
	}
	task := model.NewTask(title)
	task.Description = item.Description
	task.Summary = item.Summary
	task.Tags = item.Tags
	task.RequiresVerification = item.RequiresVerification
	if item.Priority != "" {
		pr, known := status.ParsePriority(item.Priority)
		if !known {
			return nil, taskerr.NewValidation(fmt.Sprintf("unknown priority %q", item.Priority),
				"expected low, medium, or high")
		}
		task.Priority = pr
	}
	if item.Complexity != 0 {
		if !model.ValidComplexity(item.Complexity) {
			return nil, taskerr.NewValidation("complexity must be between 1 and 10",
				fmt.Sprintf("got %d", item.Complexity))
		}
		task.Complexity = item.Complexity
	}
	if item.ProjectID != "" {
		pid, err := t.resolveProject(ctx, item.ProjectID, cache)
		if err != nil {
			return nil, err
		}
		task.ProjectID = pid
	}
	if item.FeatureID != "" {
		fid, err := t.resolveFeature(ctx, item.FeatureID, cache)
		if err != nil {
			return nil, err
		}
		task.FeatureID = fid
	}
	if item.Status != "" {
		st := status.Normalize(item.Status)
		if err := t.deps.Validate.ValidateStatus(st, status.ContainerTask); err != nil {
			return nil, err
		}
		parsed, _ := status.ParseTaskStatus(st)
		task.Status = parsed
	}
	if err := t.deps.Repos.CreateTask(ctx, task); err != nil {
		return nil, taskerr.NewDatabase("create task", err)
	}
	entry := map[string]any{"id": task.ID, "title": task.Title, "status": task.Status}
	t.applyTemplates(ctx, item.TemplateIDs, status.EntityTask, task.ID, entry)
	return entry, nil
}

func (t *ManageContainer) resolveProject(ctx context.Context, id string, cache *parentCache) (*string, error) {
	if !validUUID(id) {
		return nil, taskerr.NewValidation("projectId must be a UUID", id)
	}
	exists, err := cache.projectExists(ctx, id)
	if err != nil {
		return nil, taskerr.NewDatabase("look up project", err)
	}
	if !exists {
		return nil, taskerr.NewNotFound("project", id)
	}
	pid := id
	return &pid, nil
}

func (t *ManageContainer) resolveFeature(ctx context.Context, id string, cache *parentCache) (*string, error) {
	if !validUUID(id) {
		return nil, taskerr.NewValidation("featureId must be a UUID", id)
	}
	exists, err := cache.featureExists(ctx, id)
	if err != nil {
		return nil, taskerr.NewDatabase("look up feature", err)
	}
	if !exists {
		return nil, taskerr.NewNotFound("feature", id)
	}
	fid := id
	return &fid, nil
}

// applyTemplates clones the named templates onto a freshly created
// entity. Template failures never fail the item; the entity already
// exists, so they surface as a warning on the entry.
func (t *ManageContainer) applyTemplates(ctx context.Context, ids []string, et status.EntityType, entityID string, entry map[string]any) {
	if len(ids) == 0 {
		return
	}
	results, err := t.deps.Templates.ApplyMany(ctx, ids, et, entityID)
	applied := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		sections, found := results[id]
		if !found {
			continue
		}
		applied = append(applied, map[string]any{"templateId": id, "sectionsCreated": len(sections)})
	}
	entry["appliedTemplates"] = applied
	if err != nil {
		entry["templateWarnings"] = err.Error()
		t.deps.logger().Warn("template application incomplete", "entity_id", entityID, "error", err)
	}
}

// parentCache remembers parent existence checks for the duration of one
// batch so a hundred tasks under the same feature cost one lookup.
type parentCache struct {
	repos    repo.Set
	projects map[string]bool
	features map[string]bool
}

func newParentCache(repos repo.Set) *parentCache {
	return &parentCache{
		repos:    repos,
		projects: make(map[string]bool),
		features: make(map[string]bool),
	}
}

func (c *parentCache) projectExists(ctx context.Context, id string) (bool, error) {
	if hit, seen := c.projects[id]; seen {
		return hit, nil
	}
	proj, err := c.repos.GetProject(ctx, id)
	if err != nil {
		return false, err
	}
	c.projects[id] = proj != nil
	return proj != nil, nil
}

func (c *parentCache) featureExists(ctx context.Context, id string) (bool, error) {
	if hit, seen := c.features[id]; seen {
		return hit, nil
	}
	feat, err := c.repos.GetFeature(ctx, id)
	if err != nil {
		return false, err
	}
	c.features[id] = feat != nil
	return feat != nil, nil
}

// --- update ---

// statusChange records a successful status write for the post-batch
// cascade and unblock scans.
type statusChange struct {
	id       string
	terminal bool
}

func (t *ManageContainer) update(ctx context.Context, ct status.ContainerType, p manageParams) (*mcp.ToolsCallResult, error) {
	if err := checkBatch(len(p.Containers), "containers"); err != nil {
		return fail(err)
	}

	items := make([]map[string]any, 0, len(p.Containers))
	failures := []itemFailure{}
	var changed []statusChange

	for i, raw := range p.Containers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var item containerItem
		if err := json.Unmarshal(raw, &item); err != nil {
			failures = append(failures, failureAt(i, "", taskerr.NewValidation("invalid container object", err.Error())))
			continue
		}
		if !validUUID(item.ID) {
			failures = append(failures, failureAt(i, item.ID, taskerr.NewValidation("id must be a UUID", item.ID)))
			continue
		}
		entry, change, err := t.updateOne(ctx, ct, raw, item)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures = append(failures, failureAt(i, item.ID, err))
			continue
		}
		items = append(items, entry)
		if change != nil {
			changed = append(changed, *change)
		}
	}

	events := []cascade.Event{}
	unblocked := []model.UnblockedTask{}
	for _, ch := range changed {
		evs, err := t.deps.Cascades.DetectEvents(ctx, ch.id, ct)
		if err != nil {
			t.deps.logger().Warn("cascade detection failed", "container_id", ch.id, "error", err)
		}
		events = append(events, evs...)
		if ct == status.ContainerTask && ch.terminal {
			unblocked = append(unblocked, t.deps.Cascades.FindNewlyUnblockedTasks(ctx, ch.id)...)
		}
	}

	data := map[string]any{
		"updated":        len(items),
		"failed":         len(failures),
		"items":          items,
		"failures":       failures,
		"cascadeEvents":  events,
		"unblockedTasks": unblocked,
	}
	return ok(fmt.Sprintf("Updated %d of %d %s(s)", len(items), len(p.Containers), ct), data)
}

func (t *ManageContainer) updateOne(ctx context.Context, ct status.ContainerType, raw json.RawMessage, item containerItem) (map[string]any, *statusChange, error) {
	release, err := t.deps.Locks.Acquire(ctx, lock.ContainerKey(ct, item.ID))
	if err != nil {
		return nil, nil, err
	}
	defer release()

	switch ct {
	case status.ContainerProject:
		return t.updateProject(ctx, raw, item)
	case status.ContainerFeature:
		return t.updateFeature(ctx, raw, item)
	default:
		return t.updateTask(ctx, raw, item)
	}
}

func (t *ManageContainer) updateProject(ctx context.Context, raw json.RawMessage, item containerItem) (map[string]any, *statusChange, error) {
	proj, err := t.deps.Repos.GetProject(ctx, item.ID)
	if err != nil {
		return nil, nil, taskerr.NewDatabase("load project", err)
	}
	if proj == nil {
		return nil, nil, taskerr.NewNotFound("project", item.ID)
	}
	has := func(field string) bool { return gjson.GetBytes(raw, field).Exists() }

	if has("name") {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return nil, nil, taskerr.NewValidation("project name cannot be empty", "")
		}
		proj.Name = name
	}
	if has("description") {
		proj.Description = item.Description
	}
	if has("summary") {
		proj.Summary = item.Summary
	}
	if has("tags") {
		proj.Tags = item.Tags
	}

	var change *statusChange
	if has("status") {
		next := status.Normalize(item.Status)
		noop, err := t.deps.Validate.ValidateTransition(ctx, string(proj.Status), next, status.ContainerProject, proj.ID, proj.Tags)
		if err != nil {
			return nil, nil, err
		}
		if !noop {
			parsed, known := status.ParseProjectStatus(next)
			if !known {
				return nil, nil, taskerr.NewValidation(fmt.Sprintf("unknown project status %q", item.Status), "")
			}
			proj.Status = parsed
			change = &statusChange{id: proj.ID}
		}
	}

	proj.ModifiedAt = time.Now().UTC()
	if err := t.deps.Repos.UpdateProject(ctx, proj); err != nil {
		return nil, nil, taskerr.NewDatabase("update project", err)
	}
	return map[string]any{"id": proj.ID, "modifiedAt": proj.ModifiedAt}, change, nil
}

func (t *ManageContainer) updateFeature(ctx context.Context, raw json.RawMessage, item containerItem) (map[string]any, *statusChange, error) {
	feat, err := t.deps.Repos.GetFeature(ctx, item.ID)
	if err != nil {
		return nil, nil, taskerr.NewDatabase("load feature", err)
	}
	if feat == nil {
		return nil, nil, taskerr.NewNotFound("feature", item.ID)
	}
	has := func(field string) bool { return gjson.GetBytes(raw, field).Exists() }

	if has("name") {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return nil, nil, taskerr.NewValidation("feature name cannot be empty", "")
		}
		feat.Name = name
	}
	if has("description") {
		feat.Description = item.Description
	}
	if has("summary") {
		feat.Summary = item.Summary
	}
	if has("priority") {
		pr, known := status.ParsePriority(item.Priority)
		if !known {
			return nil, nil, taskerr.NewValidation(fmt.Sprintf("unknown priority %q", item.Priority),
				"expected low, medium, or high")
		}
		feat.Priority = pr
	}
	if has("tags") {
		feat.Tags = item.Tags
	}
	if has("requiresVerification") {
		feat.RequiresVerification = item.RequiresVerification
	}
	if has("projectId") {
		if item.ProjectID == "" {
			feat.ProjectID = nil
		} else {
			pid, err := t.resolveProject(ctx, item.ProjectID, newParentCache(t.deps.Repos))
			if err != nil {
				return nil, nil, err
			}
			feat.ProjectID = pid
		}
	}

	var change *statusChange
	if has("status") {
		next := status.Normalize(item.Status)
		noop, err := t.deps.Validate.ValidateTransition(ctx, string(feat.Status), next, status.ContainerFeature, feat.ID, feat.Tags)
		if err != nil {
			return nil, nil, err
		}
		if !noop {
			parsed, known := status.ParseFeatureStatus(next)
			if !known {
				return nil, nil, taskerr.NewValidation(fmt.Sprintf("unknown feature status %q", item.Status), "")
			}
			feat.Status = parsed
			change = &statusChange{id: feat.ID}
		}
	}

	feat.ModifiedAt = time.Now().UTC()
	if err := t.deps.Repos.UpdateFeature(ctx, feat); err != nil {
		return nil, nil, taskerr.NewDatabase("update feature", err)
	}
	return map[string]any{"id": feat.ID, "modifiedAt": feat.ModifiedAt}, change, nil
}

func (t *ManageContainer) updateTask(ctx context.Context, raw json.RawMessage, item containerItem) (map[string]any, *statusChange, error) {
	task, err := t.deps.Repos.GetTask(ctx, item.ID)
	if err != nil {
		return nil, nil, taskerr.NewDatabase("load task", err)
	}
	if task == nil {
		return nil, nil, taskerr.NewNotFound("task", item.ID)
	}
	has := func(field string) bool { return gjson.GetBytes(raw, field).Exists() }

	if has("title") {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			return nil, nil, taskerr.NewValidation("task title cannot be empty", "")
		}
		task.Title = title
	}
	if has("description") {
		task.Description = item.Description
	}
	if has("summary") {
		task.Summary = item.Summary
	}
	if has("priority") {
		pr, known := status.ParsePriority(item.Priority)
		if !known {
			return nil, nil, taskerr.NewValidation(fmt.Sprintf("unknown priority %q", item.Priority),
				"expected low, medium, or high")
		}
		task.Priority = pr
	}
	if has("complexity") {
		if !model.ValidComplexity(item.Complexity) {
			return nil, nil, taskerr.NewValidation("complexity must be between 1 and 10",
				fmt.Sprintf("got %d", item.Complexity))
		}
		task.Complexity = item.Complexity
	}
	if has("tags") {
		task.Tags = item.Tags
	}
	if has("requiresVerification") {
		task.RequiresVerification = item.RequiresVerification
	}
	if has("projectId") {
		if item.ProjectID == "" {
			task.ProjectID = nil
		} else {
			pid, err := t.resolveProject(ctx, item.ProjectID, newParentCache(t.deps.Repos))
			if err != nil {
				return nil, nil, err
			}
			task.ProjectID = pid
		}
	}
	if has("featureId") {
		if item.FeatureID == "" {
			task.FeatureID = nil
		} else {
			fid, err := t.resolveFeature(ctx, item.FeatureID, newParentCache(t.deps.Repos))
			if err != nil {
				return nil, nil, err
			}
			task.FeatureID = fid
		}
	}

	var change *statusChange
	if has("status") {
		next := status.Normalize(item.Status)
		noop, err := t.deps.Validate.ValidateTransition(ctx, string(task.Status), next, status.ContainerTask, task.ID, task.Tags)
		if err != nil {
			return nil, nil, err
		}
		if !noop {
			parsed, known := status.ParseTaskStatus(next)
			if !known {
				return nil, nil, taskerr.NewValidation(fmt.Sprintf("unknown task status %q", item.Status), "")
			}
			task.Status = parsed
			role := t.deps.Progress.RoleForStatus(next, status.ContainerTask, task.Tags)
			change = &statusChange{id: task.ID, terminal: role.IsTerminal()}
		}
	}

	task.ModifiedAt = time.Now().UTC()
	if err := t.deps.Repos.UpdateTask(ctx, task); err != nil {
		return nil, nil, taskerr.NewDatabase("update task", err)
	}
	return map[string]any{"id": task.ID, "modifiedAt": task.ModifiedAt}, change, nil
}

// --- delete ---

func (t *ManageContainer) delete(ctx context.Context, ct status.ContainerType, p manageParams) (*mcp.ToolsCallResult, error) {
	if err := checkBatch(len(p.IDs), "ids"); err != nil {
		return fail(err)
	}
	deleteSections := true
	if p.DeleteSections != nil {
		deleteSections = *p.DeleteSections
	}

	items := make([]map[string]any, 0, len(p.IDs))
	failures := []itemFailure{}

	for i, id := range p.IDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !validUUID(id) {
			failures = append(failures, failureAt(i, id, taskerr.NewValidation("id must be a UUID", id)))
			continue
		}
		entry, err := t.deleteOne(ctx, ct, id, p.Force, deleteSections)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures = append(failures, failureAt(i, id, err))
			continue
		}
		items = append(items, entry)
	}

	data := map[string]any{
		"deleted":  len(items),
		"failed":   len(failures),
		"items":    items,
		"failures": failures,
	}
	return ok(fmt.Sprintf("Deleted %d of %d %s(s)", len(items), len(p.IDs), ct), data)
}

func (t *ManageContainer) deleteOne(ctx context.Context, ct status.ContainerType, id string, force, deleteSections bool) (map[string]any, error) {
	release, err := t.deps.Locks.Acquire(ctx, lock.ContainerKey(ct, id))
	if err != nil {
		return nil, err
	}
	defer release()

	switch ct {
	case status.ContainerProject:
		return t.deleteProject(ctx, id, force, deleteSections)
	case status.ContainerFeature:
		return t.deleteFeature(ctx, id, force, deleteSections)
	default:
		return t.deleteTask(ctx, id, force, deleteSections)
	}
}

func (t *ManageContainer) deleteProject(ctx context.Context, id string, force, deleteSections bool) (map[string]any, error) {
	proj, err := t.deps.Repos.GetProject(ctx, id)
	if err != nil {
		return nil, taskerr.NewDatabase("load project", err)
	}
	if proj == nil {
		return nil, taskerr.NewNotFound("project", id)
	}

	features, err := t.deps.Repos.FindFeaturesByProject(ctx, id)
	if err != nil {
		return nil, taskerr.NewDatabase("list project features", err)
	}
	tasks, err := unionProjectTasks(ctx, t.deps.Repos, id, features)
	if err != nil {
		return nil, err
	}

	if !force && (len(features) > 0 || len(tasks) > 0) {
		return nil, taskerr.NewConflict("project has children",
			fmt.Sprintf("%d feature(s) and %d task(s) would be orphaned; pass force=true to cascade-delete", len(features), len(tasks)))
	}

	depsDeleted, sectionsDeleted := 0, 0
	for _, task := range tasks {
		n, m, err := t.removeTaskRow(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		depsDeleted += n
		sectionsDeleted += m
	}
	for _, feat := range features {
		n, err := t.deps.Repos.DeleteSectionsForEntity(ctx, status.EntityFeature, feat.ID)
		if err != nil {
			return nil, taskerr.NewDatabase("delete feature sections", err)
		}
		sectionsDeleted += n
		if err := t.deps.Repos.DeleteFeature(ctx, feat.ID); err != nil {
			return nil, taskerr.NewDatabase("delete feature", err)
		}
	}
	if deleteSections {
		n, err := t.deps.Repos.DeleteSectionsForEntity(ctx, status.EntityProject, id)
		if err != nil {
			return nil, taskerr.NewDatabase("delete project sections", err)
		}
		sectionsDeleted += n
	}
	if err := t.deps.Repos.DeleteProject(ctx, id); err != nil {
		return nil, taskerr.NewDatabase("delete project", err)
	}

	return map[string]any{
		"id":                  id,
		"featuresDeleted":     len(features),
		"tasksDeleted":        len(tasks),
		"sectionsDeleted":     sectionsDeleted,
		"dependenciesDeleted": depsDeleted,
	}, nil
}

// unionProjectTasks joins direct project tasks with the tasks of its
// features: tasks created under a feature do not always carry the
// project id.
func unionProjectTasks(ctx context.Context, repos repo.Set, projectID string, features []*model.Feature) ([]*model.Task, error) {
	tasks, err := repos.FindTasksByProject(ctx, projectID)
	if err != nil {
		return nil, taskerr.NewDatabase("list project tasks", err)
	}
	seen := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		seen[task.ID] = true
	}
	for _, feat := range features {
		more, err := repos.FindTasksByFeature(ctx, feat.ID)
		if err != nil {
			return nil, taskerr.NewDatabase("list feature tasks", err)
		}
		for _, task := range more {
			if !seen[task.ID] {
				seen[task.ID] = true
				tasks = append(tasks, task)
			}
		}
	}
	return tasks, nil
}

func (t *ManageContainer) deleteFeature(ctx context.Context, id string, force, deleteSections bool) (map[string]any, error) {
	feat, err := t.deps.Repos.GetFeature(ctx, id)
	if err != nil {
		return nil, taskerr.NewDatabase("load feature", err)
	}
	if feat == nil {
		return nil, taskerr.NewNotFound("feature", id)
	}

	tasks, err := t.deps.Repos.FindTasksByFeature(ctx, id)
	if err != nil {
		return nil, taskerr.NewDatabase("list feature tasks", err)
	}
	if !force && len(tasks) > 0 {
		return nil, taskerr.NewConflict("feature has tasks",
			fmt.Sprintf("%d task(s) would be orphaned; pass force=true to cascade-delete", len(tasks)))
	}

	depsDeleted, sectionsDeleted := 0, 0
	for _, task := range tasks {
		n, m, err := t.removeTaskRow(ctx, task.ID)
		if err != nil {
			return nil, err
		}
		depsDeleted += n
		sectionsDeleted += m
	}
	if deleteSections {
		n, err := t.deps.Repos.DeleteSectionsForEntity(ctx, status.EntityFeature, id)
		if err != nil {
			return nil, taskerr.NewDatabase("delete feature sections", err)
		}
		sectionsDeleted += n
	}
	if err := t.deps.Repos.DeleteFeature(ctx, id); err != nil {
		return nil, taskerr.NewDatabase("delete feature", err)
	}

	return map[string]any{
		"id":                  id,
		"tasksDeleted":        len(tasks),
		"sectionsDeleted":     sectionsDeleted,
		"dependenciesDeleted": depsDeleted,
	}, nil
}

func (t *ManageContainer) deleteTask(ctx context.Context, id string, force, deleteSections bool) (map[string]any, error) {
	task, err := t.deps.Repos.GetTask(ctx, id)
	if err != nil {
		return nil, taskerr.NewDatabase("load task", err)
	}
	if task == nil {
		return nil, taskerr.NewNotFound("task", id)
	}

	edges, err := t.deps.Repos.FindDependenciesForTask(ctx, id)
	if err != nil {
		return nil, taskerr.NewDatabase("list task dependencies", err)
	}

	incoming, outgoing := 0, 0
	affected := make([]string, 0, len(edges))
	seen := make(map[string]bool, len(edges))
	for _, edge := range edges {
		other := edge.FromTaskID
		if edge.FromTaskID == id {
			outgoing++
			other = edge.ToTaskID
		} else {
			incoming++
		}
		if other != id && !seen[other] {
			seen[other] = true
			affected = append(affected, other)
		}
	}

	if !force && len(edges) > 0 {
		return nil, taskerr.NewConflict("task has dependencies",
			fmt.Sprintf("%d incoming and %d outgoing edge(s) touching %d task(s); pass force=true to sever them",
				incoming, outgoing, len(affected)))
	}

	depsDeleted, sectionsDeleted, err := t.removeTaskRowSections(ctx, id, deleteSections)
	if err != nil {
		return nil, err
	}

	entry := map[string]any{
		"id":                  id,
		"sectionsDeleted":     sectionsDeleted,
		"dependenciesDeleted": depsDeleted,
	}
	if depsDeleted > 0 {
		entry["affectedTasks"] = affected
	}
	return entry, nil
}

// removeTaskRow deletes one task in FK-safe order with its sections,
// returning (dependenciesDeleted, sectionsDeleted).
func (t *ManageContainer) removeTaskRow(ctx context.Context, taskID string) (int, int, error) {
	return t.removeTaskRowSections(ctx, taskID, true)
}

func (t *ManageContainer) removeTaskRowSections(ctx context.Context, taskID string, deleteSections bool) (int, int, error) {
	depsDeleted, err := t.deps.Repos.DeleteDependenciesForTask(ctx, taskID)
	if err != nil {
		return 0, 0, taskerr.NewDatabase("delete task dependencies", err)
	}
	sectionsDeleted := 0
	if deleteSections {
		sectionsDeleted, err = t.deps.Repos.DeleteSectionsForEntity(ctx, status.EntityTask, taskID)
		if err != nil {
			return 0, 0, taskerr.NewDatabase("delete task sections", err)
		}
	}
	if err := t.deps.Repos.DeleteTask(ctx, taskID); err != nil {
		return 0, 0, taskerr.NewDatabase("delete task", err)
	}
	return depsDeleted, sectionsDeleted, nil
}
