package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

const queryContainerSchema = `{
  "type": "object",
  "properties": {
    "containerType": {
      "type": "string",
      "enum": ["project", "feature", "task"],
      "description": "Kind of container to fetch"
    },
    "id": {
      "type": "string",
      "description": "UUID of the container"
    }
  },
  "required": ["containerType", "id"]
}`

type queryContainerParams struct {
	ContainerType string `json:"containerType"`
	ID            string `json:"id"`
}

// QueryContainer fetches one container with its sections and the rollup
// appropriate to its kind: feature counts for projects, task counts for
// features, a dependency summary for tasks.
type QueryContainer struct {
	deps Deps
}

func NewQueryContainer(deps Deps) *QueryContainer {
	return &QueryContainer{deps: deps}
}

func (t *QueryContainer) Name() string { return "query_container" }

func (t *QueryContainer) Description() string {
	return "Fetch a project, feature, or task by id, including its sections and a rollup: " +
		"feature counts for projects, task counts for features, and the dependency summary for tasks."
}

func (t *QueryContainer) InputSchema() json.RawMessage {
	return json.RawMessage(queryContainerSchema)
}

func (t *QueryContainer) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p queryContainerParams
	if err := json.Unmarshal(args, &p); err != nil {
		return failValidation("invalid query_container parameters", err.Error())
	}
	ct, known := status.ParseContainerType(p.ContainerType)
	if !known {
		return failValidation(fmt.Sprintf("unknown containerType %q", p.ContainerType),
			"expected project, feature, or task")
	}
	if !validUUID(p.ID) {
		return failValidation("id must be a UUID", p.ID)
	}

	data := map[string]any{}
	var label string
	switch ct {
	case status.ContainerProject:
		proj, err := t.deps.Repos.GetProject(ctx, p.ID)
		if err != nil {
			return fail(taskerr.NewDatabase("load project", err))
		}
		if proj == nil {
			return fail(taskerr.NewNotFound("project", p.ID))
		}
		counts, err := t.deps.Repos.GetFeatureCounts(ctx, p.ID)
		if err != nil {
			return fail(taskerr.NewDatabase("count features", err))
		}
		label = proj.Name
		data["container"] = proj
		data["featureCounts"] = counts
	case status.ContainerFeature:
		feat, err := t.deps.Repos.GetFeature(ctx, p.ID)
		if err != nil {
			return fail(taskerr.NewDatabase("load feature", err))
		}
		if feat == nil {
			return fail(taskerr.NewNotFound("feature", p.ID))
		}
		counts, err := t.deps.Repos.GetTaskCounts(ctx, p.ID)
		if err != nil {
			return fail(taskerr.NewDatabase("count tasks", err))
		}
		label = feat.Name
		data["container"] = feat
		data["taskCounts"] = counts
	default:
		task, err := t.deps.Repos.GetTask(ctx, p.ID)
		if err != nil {
			return fail(taskerr.NewDatabase("load task", err))
		}
		if task == nil {
			return fail(taskerr.NewNotFound("task", p.ID))
		}
		summary, err := t.dependencySummary(ctx, p.ID)
		if err != nil {
			return fail(err)
		}
		label = task.Title
		data["container"] = task
		data["dependencies"] = summary
	}

	sections, err := t.deps.Repos.GetSectionsForEntity(ctx, ct.EntityType(), p.ID)
	if err != nil {
		return fail(taskerr.NewDatabase("load sections", err))
	}
	if sections == nil {
		sections = []*model.Section{}
	}
	data["sections"] = sections

	return ok(fmt.Sprintf("%s %q", ct, label), data)
}

// dependencySummary resolves the task's edges into blocking semantics
// with titles for display.
func (t *QueryContainer) dependencySummary(ctx context.Context, taskID string) (map[string]any, error) {
	edges, err := t.deps.Repos.FindDependenciesForTask(ctx, taskID)
	if err != nil {
		return nil, taskerr.NewDatabase("list task dependencies", err)
	}

	blockedBy := []model.BlockerInfo{}
	blocks := []model.BlockerInfo{}
	related := []string{}
	for _, edge := range edges {
		blocker, blocked, blocking := edge.Blocking()
		if !blocking {
			other := edge.FromTaskID
			if other == taskID {
				other = edge.ToTaskID
			}
			related = append(related, other)
			continue
		}
		switch taskID {
		case blocked:
			info, err := t.blockerInfo(ctx, blocker)
			if err != nil {
				return nil, err
			}
			blockedBy = append(blockedBy, info)
		case blocker:
			info, err := t.blockerInfo(ctx, blocked)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, info)
		}
	}

	unmet, err := t.deps.Progress.UnmetBlockers(ctx, taskID)
	if err != nil {
		return nil, taskerr.NewDatabase("check blockers", err)
	}
	if unmet == nil {
		unmet = []model.BlockerInfo{}
	}

	return map[string]any{
		"blockedBy":     blockedBy,
		"blocks":        blocks,
		"relatesTo":     related,
		"unmetBlockers": unmet,
	}, nil
}

func (t *QueryContainer) blockerInfo(ctx context.Context, taskID string) (model.BlockerInfo, error) {
	task, err := t.deps.Repos.GetTask(ctx, taskID)
	if err != nil {
		return model.BlockerInfo{}, taskerr.NewDatabase("load task", err)
	}
	if task == nil {
		// Edge survived its endpoint; report the id alone.
		return model.BlockerInfo{ID: taskID}, nil
	}
	return model.BlockerInfo{ID: task.ID, Title: task.Title, Status: task.Status}, nil
}

// taskScope is the shared projectId/featureId narrowing of the task read
// tools.
type taskScope struct {
	ProjectID string `json:"projectId,omitempty"`
	FeatureID string `json:"featureId,omitempty"`
}

// pendingTasks returns the pending tasks in scope. Without a scope the
// status index serves directly; a project scope unions direct tasks with
// feature tasks.
func pendingTasks(ctx context.Context, deps Deps, scope taskScope) ([]*model.Task, error) {
	switch {
	case scope.FeatureID != "":
		if !validUUID(scope.FeatureID) {
			return nil, taskerr.NewValidation("featureId must be a UUID", scope.FeatureID)
		}
		tasks, err := deps.Repos.FindTasksByFeature(ctx, scope.FeatureID)
		if err != nil {
			return nil, taskerr.NewDatabase("list feature tasks", err)
		}
		return filterPending(tasks), nil
	case scope.ProjectID != "":
		if !validUUID(scope.ProjectID) {
			return nil, taskerr.NewValidation("projectId must be a UUID", scope.ProjectID)
		}
		features, err := deps.Repos.FindFeaturesByProject(ctx, scope.ProjectID)
		if err != nil {
			return nil, taskerr.NewDatabase("list project features", err)
		}
		tasks, err := unionProjectTasks(ctx, deps.Repos, scope.ProjectID, features)
		if err != nil {
			return nil, err
		}
		return filterPending(tasks), nil
	default:
		tasks, err := deps.Repos.FindTasksByStatus(ctx, status.TaskPending)
		if err != nil {
			return nil, taskerr.NewDatabase("list pending tasks", err)
		}
		return tasks, nil
	}
}

func filterPending(tasks []*model.Task) []*model.Task {
	pending := make([]*model.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == status.TaskPending {
			pending = append(pending, task)
		}
	}
	return pending
}

const getNextTaskSchema = `{
  "type": "object",
  "properties": {
    "projectId": {
      "type": "string",
      "description": "Limit the search to one project"
    },
    "featureId": {
      "type": "string",
      "description": "Limit the search to one feature"
    }
  }
}`

// GetNextTask picks the most urgent pending task whose blockers are all
// satisfied: priority desc, then complexity asc, then age.
type GetNextTask struct {
	deps Deps
}

func NewGetNextTask(deps Deps) *GetNextTask {
	return &GetNextTask{deps: deps}
}

func (t *GetNextTask) Name() string { return "get_next_task" }

func (t *GetNextTask) Description() string {
	return "Recommend the next task to work on: the highest-priority pending task with no unmet blockers. " +
		"Ties break toward lower complexity, then older tasks. Optionally scoped to a project or feature."
}

func (t *GetNextTask) InputSchema() json.RawMessage {
	return json.RawMessage(getNextTaskSchema)
}

func (t *GetNextTask) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var scope taskScope
	if err := json.Unmarshal(args, &scope); err != nil {
		return failValidation("invalid get_next_task parameters", err.Error())
	}

	candidates, err := pendingTasks(ctx, t.deps, scope)
	if err != nil {
		return fail(err)
	}

	eligible := make([]*model.Task, 0, len(candidates))
	for _, task := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		unmet, err := t.deps.Progress.UnmetBlockers(ctx, task.ID)
		if err != nil {
			return fail(taskerr.NewDatabase("check blockers", err))
		}
		if len(unmet) == 0 {
			eligible = append(eligible, task)
		}
	}

	if len(eligible) == 0 {
		return ok("No eligible pending task", map[string]any{
			"task":     nil,
			"pending":  len(candidates),
			"eligible": 0,
		})
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if a.Complexity != b.Complexity {
			return a.Complexity < b.Complexity
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	next := eligible[0]
	return ok(fmt.Sprintf("Next task: %q", next.Title), map[string]any{
		"task":     next,
		"pending":  len(candidates),
		"eligible": len(eligible),
	})
}

const getBlockedTasksSchema = `{
  "type": "object",
  "properties": {
    "projectId": {
      "type": "string",
      "description": "Limit the scan to one project"
    },
    "featureId": {
      "type": "string",
      "description": "Limit the scan to one feature"
    }
  }
}`

// GetBlockedTasks lists pending tasks held back by unmet blockers.
type GetBlockedTasks struct {
	deps Deps
}

func NewGetBlockedTasks(deps Deps) *GetBlockedTasks {
	return &GetBlockedTasks{deps: deps}
}

func (t *GetBlockedTasks) Name() string { return "get_blocked_tasks" }

func (t *GetBlockedTasks) Description() string {
	return "List pending tasks with at least one unmet blocker, each with the blocking tasks' " +
		"id, title, and status. Optionally scoped to a project or feature."
}

func (t *GetBlockedTasks) InputSchema() json.RawMessage {
	return json.RawMessage(getBlockedTasksSchema)
}

func (t *GetBlockedTasks) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var scope taskScope
	if err := json.Unmarshal(args, &scope); err != nil {
		return failValidation("invalid get_blocked_tasks parameters", err.Error())
	}

	candidates, err := pendingTasks(ctx, t.deps, scope)
	if err != nil {
		return fail(err)
	}

	blocked := []map[string]any{}
	for _, task := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		unmet, err := t.deps.Progress.UnmetBlockers(ctx, task.ID)
		if err != nil {
			return fail(taskerr.NewDatabase("check blockers", err))
		}
		if len(unmet) == 0 {
			continue
		}
		blocked = append(blocked, map[string]any{
			"id":       task.ID,
			"title":    task.Title,
			"status":   task.Status,
			"priority": task.Priority,
			"blockers": unmet,
		})
	}

	return ok(fmt.Sprintf("%d blocked task(s)", len(blocked)), map[string]any{
		"blockedTasks": blocked,
		"count":        len(blocked),
	})
}

const getOverviewSchema = `{
  "type": "object",
  "properties": {
    "projectId": {
      "type": "string",
      "description": "Project to expand. Omit for the portfolio view of all projects."
    }
  }
}`

type getOverviewParams struct {
	ProjectID string `json:"projectId,omitempty"`
}

// GetOverview renders the container tree: one project expanded into its
// features and direct tasks, or the portfolio of all projects.
type GetOverview struct {
	deps Deps
}

func NewGetOverview(deps Deps) *GetOverview {
	return &GetOverview{deps: deps}
}

func (t *GetOverview) Name() string { return "get_overview" }

func (t *GetOverview) Description() string {
	return "Summarize the hierarchy. With projectId: the project, its features with task counts, and its " +
		"tasks without a feature. Without: every project with feature counts."
}

func (t *GetOverview) InputSchema() json.RawMessage {
	return json.RawMessage(getOverviewSchema)
}

func (t *GetOverview) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p getOverviewParams
	if err := json.Unmarshal(args, &p); err != nil {
		return failValidation("invalid get_overview parameters", err.Error())
	}
	if p.ProjectID == "" {
		return t.portfolio(ctx)
	}
	if !validUUID(p.ProjectID) {
		return failValidation("projectId must be a UUID", p.ProjectID)
	}
	return t.projectTree(ctx, p.ProjectID)
}

func (t *GetOverview) portfolio(ctx context.Context) (*mcp.ToolsCallResult, error) {
	projects, err := t.deps.Repos.ListProjects(ctx, 0)
	if err != nil {
		return fail(taskerr.NewDatabase("list projects", err))
	}

	entries := make([]map[string]any, len(projects))
	g, gctx := errgroup.WithContext(ctx)
	for i, proj := range projects {
		g.Go(func() error {
			counts, err := t.deps.Repos.GetFeatureCounts(gctx, proj.ID)
			if err != nil {
				return err
			}
			entries[i] = map[string]any{"project": proj, "featureCounts": counts}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(taskerr.NewDatabase("count features", err))
	}

	return ok(fmt.Sprintf("%d project(s)", len(projects)), map[string]any{
		"projects": entries,
		"count":    len(projects),
	})
}

func (t *GetOverview) projectTree(ctx context.Context, projectID string) (*mcp.ToolsCallResult, error) {
	proj, err := t.deps.Repos.GetProject(ctx, projectID)
	if err != nil {
		return fail(taskerr.NewDatabase("load project", err))
	}
	if proj == nil {
		return fail(taskerr.NewNotFound("project", projectID))
	}

	features, err := t.deps.Repos.FindFeaturesByProject(ctx, projectID)
	if err != nil {
		return fail(taskerr.NewDatabase("list project features", err))
	}

	featureEntries := make([]map[string]any, len(features))
	var directTasks []*model.Task

	g, gctx := errgroup.WithContext(ctx)
	for i, feat := range features {
		g.Go(func() error {
			counts, err := t.deps.Repos.GetTaskCounts(gctx, feat.ID)
			if err != nil {
				return err
			}
			featureEntries[i] = map[string]any{"feature": feat, "taskCounts": counts}
			return nil
		})
	}
	g.Go(func() error {
		tasks, err := t.deps.Repos.FindTasksByProject(gctx, projectID)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if task.FeatureID == nil {
				directTasks = append(directTasks, task)
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fail(taskerr.NewDatabase("load project tree", err))
	}

	if directTasks == nil {
		directTasks = []*model.Task{}
	}
	return ok(fmt.Sprintf("Project %q: %d feature(s), %d direct task(s)", proj.Name, len(features), len(directTasks)), map[string]any{
		"project":             proj,
		"features":            featureEntries,
		"tasksWithoutFeature": directTasks,
	})
}
