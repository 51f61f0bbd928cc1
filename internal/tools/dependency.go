package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/taskorchestrator/taskorchestrator/internal/lock"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

const manageDependencySchema = `{
  "type": "object",
  "properties": {
    "operation": {
      "type": "string",
      "enum": ["create", "delete", "list"],
      "description": "Dependency operation to perform"
    },
    "fromTaskId": {
      "type": "string",
      "description": "Source task UUID (create)"
    },
    "toTaskId": {
      "type": "string",
      "description": "Target task UUID (create)"
    },
    "type": {
      "type": "string",
      "enum": ["BLOCKS", "IS_BLOCKED_BY", "RELATES_TO"],
      "description": "Edge type; defaults to BLOCKS"
    },
    "unblockAt": {
      "type": "string",
      "description": "Role the blocker must reach before the edge is satisfied; defaults to terminal"
    },
    "dependencyId": {
      "type": "string",
      "description": "Edge UUID (delete)"
    },
    "taskId": {
      "type": "string",
      "description": "Scope list to edges touching this task; omitted lists the whole graph"
    }
  },
  "required": ["operation"]
}`

type manageDependencyParams struct {
	Operation    string `json:"operation"`
	FromTaskID   string `json:"fromTaskId,omitempty"`
	ToTaskID     string `json:"toTaskId,omitempty"`
	Type         string `json:"type,omitempty"`
	UnblockAt    string `json:"unblockAt,omitempty"`
	DependencyID string `json:"dependencyId,omitempty"`
	TaskID       string `json:"taskId,omitempty"`
}

// ManageDependency maintains the edges between tasks. BLOCKS and
// IS_BLOCKED_BY edges gate status progression; RELATES_TO is annotation
// only.
type ManageDependency struct {
	deps Deps
}

func NewManageDependency(deps Deps) *ManageDependency {
	return &ManageDependency{deps: deps}
}

func (t *ManageDependency) Name() string { return "manage_dependency" }

func (t *ManageDependency) Description() string {
	return "Create, delete, or list dependency edges between tasks. A BLOCKS edge holds the dependent task " +
		"back until the blocker reaches its unblock role (terminal unless overridden via unblockAt)."
}

func (t *ManageDependency) InputSchema() json.RawMessage {
	return json.RawMessage(manageDependencySchema)
}

func (t *ManageDependency) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p manageDependencyParams
	if err := json.Unmarshal(args, &p); err != nil {
		return failValidation("invalid manage_dependency parameters", err.Error())
	}

	switch p.Operation {
	case "create":
		return t.create(ctx, p)
	case "delete":
		return t.delete(ctx, p)
	case "list":
		return t.list(ctx, p)
	default:
		return failValidation(fmt.Sprintf("unknown operation %q", p.Operation),
			"expected create, delete, or list")
	}
}

func (t *ManageDependency) create(ctx context.Context, p manageDependencyParams) (*mcp.ToolsCallResult, error) {
	if !validUUID(p.FromTaskID) {
		return failValidation("fromTaskId must be a UUID", p.FromTaskID)
	}
	if !validUUID(p.ToTaskID) {
		return failValidation("toTaskId must be a UUID", p.ToTaskID)
	}

	typ := status.DependencyBlocks
	if p.Type != "" {
		parsed, known := status.ParseDependencyType(p.Type)
		if !known {
			return failValidation(fmt.Sprintf("unknown dependency type %q", p.Type),
				"expected BLOCKS, IS_BLOCKED_BY, or RELATES_TO")
		}
		typ = parsed
	}
	if p.UnblockAt != "" && typ == status.DependencyRelatesTo {
		return failValidation("unblockAt applies only to blocking edge types",
			"RELATES_TO edges never gate progression")
	}

	for _, id := range []string{p.FromTaskID, p.ToTaskID} {
		task, err := t.deps.Repos.GetTask(ctx, id)
		if err != nil {
			return fail(taskerr.NewDatabase("load task", err))
		}
		if task == nil {
			return fail(taskerr.NewNotFound("task", id))
		}
	}

	d := model.NewDependency(p.FromTaskID, p.ToTaskID, typ)
	if p.UnblockAt != "" {
		role := status.ParseRole(p.UnblockAt)
		d.UnblockAt = &role
	}

	ctx = lock.EnsureToken(ctx)
	release, err := t.deps.Locks.Acquire(ctx, lock.ContainerKey(status.ContainerTask, dependencyLockKey(d)))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := t.deps.Repos.CreateDependency(ctx, d); err != nil {
		if taskerr.AsError(err) == nil {
			err = taskerr.NewDatabase("create dependency", err)
		}
		return fail(err)
	}

	data := map[string]any{"dependency": d}
	if _, blocked, gates := d.Blocking(); gates {
		unmet, err := t.deps.Progress.UnmetBlockers(ctx, blocked)
		if err != nil {
			return fail(taskerr.NewDatabase("check blockers", err))
		}
		if unmet == nil {
			unmet = []model.BlockerInfo{}
		}
		data["blockedTask"] = map[string]any{
			"id":            blocked,
			"unmetBlockers": unmet,
			"isBlocked":     len(unmet) > 0,
		}
	}
	return ok(fmt.Sprintf("Created %s edge from %s to %s", d.Type, d.FromTaskID, d.ToTaskID), data)
}

func (t *ManageDependency) delete(ctx context.Context, p manageDependencyParams) (*mcp.ToolsCallResult, error) {
	if !validUUID(p.DependencyID) {
		return failValidation("dependencyId must be a UUID", p.DependencyID)
	}
	d, err := t.deps.Repos.GetDependency(ctx, p.DependencyID)
	if err != nil {
		return fail(taskerr.NewDatabase("load dependency", err))
	}
	if d == nil {
		return fail(taskerr.NewNotFound("dependency", p.DependencyID))
	}

	ctx = lock.EnsureToken(ctx)
	release, err := t.deps.Locks.Acquire(ctx, lock.ContainerKey(status.ContainerTask, dependencyLockKey(d)))
	if err != nil {
		return nil, err
	}
	defer release()

	if err := t.deps.Repos.DeleteDependency(ctx, d.ID); err != nil {
		if taskerr.AsError(err) == nil {
			err = taskerr.NewDatabase("delete dependency", err)
		}
		return fail(err)
	}

	data := map[string]any{"id": d.ID}
	if _, blocked, gates := d.Blocking(); gates {
		unmet, err := t.deps.Progress.UnmetBlockers(ctx, blocked)
		if err != nil {
			return fail(taskerr.NewDatabase("check blockers", err))
		}
		if len(unmet) == 0 {
			data["nowUnblocked"] = blocked
		}
	}
	return ok(fmt.Sprintf("Deleted %s edge from %s to %s", d.Type, d.FromTaskID, d.ToTaskID), data)
}

func (t *ManageDependency) list(ctx context.Context, p manageDependencyParams) (*mcp.ToolsCallResult, error) {
	var (
		edges []*model.Dependency
		err   error
	)
	if p.TaskID != "" {
		if !validUUID(p.TaskID) {
			return failValidation("taskId must be a UUID", p.TaskID)
		}
		task, gErr := t.deps.Repos.GetTask(ctx, p.TaskID)
		if gErr != nil {
			return fail(taskerr.NewDatabase("load task", gErr))
		}
		if task == nil {
			return fail(taskerr.NewNotFound("task", p.TaskID))
		}
		edges, err = t.deps.Repos.FindDependenciesForTask(ctx, p.TaskID)
	} else {
		edges, err = t.deps.Repos.ListDependencies(ctx)
	}
	if err != nil {
		return fail(taskerr.NewDatabase("list dependencies", err))
	}
	if edges == nil {
		edges = []*model.Dependency{}
	}
	return ok(fmt.Sprintf("%d dependency edge(s)", len(edges)), map[string]any{
		"dependencies": edges,
		"count":        len(edges),
	})
}

// dependencyLockKey picks the task whose effective state the edge changes:
// the blocked side for gating edges, the source for annotations.
func dependencyLockKey(d *model.Dependency) string {
	if _, blocked, gates := d.Blocking(); gates {
		return blocked
	}
	return d.FromTaskID
}
