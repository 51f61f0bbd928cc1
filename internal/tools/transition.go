package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/taskorchestrator/taskorchestrator/internal/cascade"
	"github.com/taskorchestrator/taskorchestrator/internal/lock"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/progression"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

// containerRef abstracts the three container kinds behind one status
// read/write surface for the transition tools.
type containerRef struct {
	ct      status.ContainerType
	id      string
	label   string
	current string
	tags    []string
	write   func(ctx context.Context, next string) error
}

func loadContainer(ctx context.Context, deps Deps, ct status.ContainerType, id string) (*containerRef, error) {
	switch ct {
	case status.ContainerProject:
		proj, err := deps.Repos.GetProject(ctx, id)
		if err != nil {
			return nil, taskerr.NewDatabase("load project", err)
		}
		if proj == nil {
			return nil, taskerr.NewNotFound("project", id)
		}
		return &containerRef{
			ct: ct, id: id, label: proj.Name,
			current: string(proj.Status), tags: proj.Tags,
			write: func(ctx context.Context, next string) error {
				parsed, known := status.ParseProjectStatus(next)
				if !known {
					return taskerr.NewValidation(fmt.Sprintf("unknown project status %q", next), "")
				}
				proj.Status = parsed
				proj.ModifiedAt = time.Now().UTC()
				if err := deps.Repos.UpdateProject(ctx, proj); err != nil {
					return taskerr.NewDatabase("update project", err)
				}
				return nil
			},
		}, nil
	case status.ContainerFeature:
		feat, err := deps.Repos.GetFeature(ctx, id)
		if err != nil {
			return nil, taskerr.NewDatabase("load feature", err)
		}
		if feat == nil {
			return nil, taskerr.NewNotFound("feature", id)
		}
		return &containerRef{
			ct: ct, id: id, label: feat.Name,
			current: string(feat.Status), tags: feat.Tags,
			write: func(ctx context.Context, next string) error {
				parsed, known := status.ParseFeatureStatus(next)
				if !known {
					return taskerr.NewValidation(fmt.Sprintf("unknown feature status %q", next), "")
				}
				feat.Status = parsed
				feat.ModifiedAt = time.Now().UTC()
				if err := deps.Repos.UpdateFeature(ctx, feat); err != nil {
					return taskerr.NewDatabase("update feature", err)
				}
				return nil
			},
		}, nil
	default:
		task, err := deps.Repos.GetTask(ctx, id)
		if err != nil {
			return nil, taskerr.NewDatabase("load task", err)
		}
		if task == nil {
			return nil, taskerr.NewNotFound("task", id)
		}
		return &containerRef{
			ct: ct, id: id, label: task.Title,
			current: string(task.Status), tags: task.Tags,
			write: func(ctx context.Context, next string) error {
				parsed, known := status.ParseTaskStatus(next)
				if !known {
					return taskerr.NewValidation(fmt.Sprintf("unknown task status %q", next), "")
				}
				task.Status = parsed
				task.ModifiedAt = time.Now().UTC()
				if err := deps.Repos.UpdateTask(ctx, task); err != nil {
					return taskerr.NewDatabase("update task", err)
				}
				return nil
			},
		}, nil
	}
}

const requestTransitionSchema = `{
  "type": "object",
  "properties": {
    "containerType": {
      "type": "string",
      "enum": ["project", "feature", "task"],
      "description": "Kind of container to transition"
    },
    "id": {
      "type": "string",
      "description": "UUID of the container"
    },
    "status": {
      "type": "string",
      "description": "Explicit target status. Omit to advance to the flow's recommended next status."
    }
  },
  "required": ["containerType", "id"]
}`

type requestTransitionParams struct {
	ContainerType string `json:"containerType"`
	ID            string `json:"id"`
	Status        string `json:"status,omitempty"`
}

// RequestTransition moves one container along its status flow and, when
// auto-cascade is enabled, applies the resulting cascade chain.
type RequestTransition struct {
	deps Deps
}

func NewRequestTransition(deps Deps) *RequestTransition {
	return &RequestTransition{deps: deps}
}

func (t *RequestTransition) Name() string { return "request_transition" }

func (t *RequestTransition) Description() string {
	return "Transition a project, feature, or task to a new status. Without an explicit status the tool " +
		"advances to the next status of the container's active flow. Transitions are validated against the " +
		"flow and task prerequisites; successful writes trigger automatic cascades when enabled."
}

func (t *RequestTransition) InputSchema() json.RawMessage {
	return json.RawMessage(requestTransitionSchema)
}

func (t *RequestTransition) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p requestTransitionParams
	if err := json.Unmarshal(args, &p); err != nil {
		return failValidation("invalid request_transition parameters", err.Error())
	}
	ct, known := status.ParseContainerType(p.ContainerType)
	if !known {
		return failValidation(fmt.Sprintf("unknown containerType %q", p.ContainerType),
			"expected project, feature, or task")
	}
	if !validUUID(p.ID) {
		return failValidation("id must be a UUID", p.ID)
	}

	ctx = lock.EnsureToken(ctx)
	release, err := t.deps.Locks.Acquire(ctx, lock.ContainerKey(ct, p.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	ref, err := loadContainer(ctx, t.deps, ct, p.ID)
	if err != nil {
		return fail(err)
	}

	next := status.Normalize(p.Status)
	if next == "" {
		rec, err := t.deps.Progress.NextStatus(ctx, ref.current, ct, ref.tags, ref.id)
		if err != nil {
			if taskerr.AsError(err) == nil {
				err = taskerr.NewDatabase("recommend next status", err)
			}
			return fail(err)
		}
		switch rec.State {
		case progression.Ready:
			next = rec.RecommendedStatus
		case progression.Blocked:
			return fail(&taskerr.Error{
				Code:    taskerr.CodeOperationFailed,
				Message: fmt.Sprintf("%s %q cannot advance: %s", ct, ref.label, rec.Reason),
				Details: describeBlockers(rec.Blockers),
			})
		case progression.AtTerminal:
			return fail(taskerr.NewValidation(
				fmt.Sprintf("%s %q is already at terminal status %q", ct, ref.label, ref.current), rec.Reason))
		default:
			return fail(taskerr.NewValidation(
				fmt.Sprintf("no status flow covers %s %q", ct, ref.label), rec.Reason))
		}
	}

	noop, err := t.deps.Validate.ValidateTransition(ctx, ref.current, next, ct, ref.id, ref.tags)
	if err != nil {
		return fail(err)
	}
	if noop {
		return ok(fmt.Sprintf("%s %q is already %s", ct, ref.label, next), map[string]any{
			"id": ref.id, "containerType": ct, "status": ref.current, "noop": true,
		})
	}
	if err := ref.write(ctx, next); err != nil {
		return fail(err)
	}

	applied := []cascade.Applied{}
	if t.deps.Cascades.Enabled() {
		applied, err = t.deps.Cascades.ApplyCascades(ctx, ref.id, ct, 0, t.deps.Cascades.MaxDepth())
		if err != nil {
			t.deps.logger().Warn("cascade application incomplete",
				"container_id", ref.id, "error", err)
		}
		if applied == nil {
			applied = []cascade.Applied{}
		}
	}

	unblocked := []model.UnblockedTask{}
	if ct == status.ContainerTask && t.deps.Progress.RoleForStatus(next, ct, ref.tags).IsTerminal() {
		unblocked = t.deps.Cascades.FindNewlyUnblockedTasks(ctx, ref.id)
	}

	data := map[string]any{
		"id":             ref.id,
		"containerType":  ct,
		"from":           ref.current,
		"to":             next,
		"cascades":       applied,
		"unblockedTasks": unblocked,
	}
	return ok(fmt.Sprintf("%s %q moved from %s to %s", ct, ref.label, ref.current, next), data)
}

func describeBlockers(blockers []model.BlockerInfo) string {
	if len(blockers) == 0 {
		return ""
	}
	parts := make([]string, 0, len(blockers))
	for _, b := range blockers {
		parts = append(parts, fmt.Sprintf("%s (%s, %s)", b.Title, b.ID, b.Status))
	}
	return "blocked by " + strings.Join(parts, ", ")
}

const setStatusSchema = `{
  "type": "object",
  "properties": {
    "id": {
      "type": "string",
      "description": "UUID of the task, feature, or project"
    },
    "status": {
      "type": "string",
      "description": "Target status (kebab-case or SCREAMING_SNAKE)"
    }
  },
  "required": ["id", "status"]
}`

type setStatusParams struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SetStatus is a thin convenience over update for a single container. It
// probes tasks, then features, then projects to detect the entity type,
// validates the transition, and reports cascade suggestions without
// applying them.
type SetStatus struct {
	deps Deps
}

func NewSetStatus(deps Deps) *SetStatus {
	return &SetStatus{deps: deps}
}

func (t *SetStatus) Name() string { return "set_status" }

func (t *SetStatus) Description() string {
	return "Set the status of a single container by id. The entity type is auto-detected. " +
		"Cascade events are reported as suggestions; use request_transition to apply them."
}

func (t *SetStatus) InputSchema() json.RawMessage {
	return json.RawMessage(setStatusSchema)
}

func (t *SetStatus) Execute(ctx context.Context, args json.RawMessage) (*mcp.ToolsCallResult, error) {
	var p setStatusParams
	if err := json.Unmarshal(args, &p); err != nil {
		return failValidation("invalid set_status parameters", err.Error())
	}
	if !validUUID(p.ID) {
		return failValidation("id must be a UUID", p.ID)
	}
	if strings.TrimSpace(p.Status) == "" {
		return failValidation("status is required", "")
	}

	ct, ref, err := t.detect(ctx, p.ID)
	if err != nil {
		return fail(err)
	}

	ctx = lock.EnsureToken(ctx)
	release, err := t.deps.Locks.Acquire(ctx, lock.ContainerKey(ct, p.ID))
	if err != nil {
		return nil, err
	}
	defer release()

	next := status.Normalize(p.Status)
	noop, err := t.deps.Validate.ValidateTransition(ctx, ref.current, next, ct, ref.id, ref.tags)
	if err != nil {
		return fail(err)
	}
	if noop {
		return ok(fmt.Sprintf("%s %q is already %s", ct, ref.label, next), map[string]any{
			"id": ref.id, "containerType": ct, "status": ref.current, "noop": true,
		})
	}
	if err := ref.write(ctx, next); err != nil {
		return fail(err)
	}

	events, err := t.deps.Cascades.DetectEvents(ctx, ref.id, ct)
	if err != nil {
		t.deps.logger().Warn("cascade detection failed", "container_id", ref.id, "error", err)
	}
	if events == nil {
		events = []cascade.Event{}
	}

	unblocked := []model.UnblockedTask{}
	if ct == status.ContainerTask && t.deps.Progress.RoleForStatus(next, ct, ref.tags).IsTerminal() {
		unblocked = t.deps.Cascades.FindNewlyUnblockedTasks(ctx, ref.id)
	}

	data := map[string]any{
		"id":             ref.id,
		"containerType":  ct,
		"from":           ref.current,
		"to":             next,
		"cascadeEvents":  events,
		"unblockedTasks": unblocked,
	}
	return ok(fmt.Sprintf("%s %q moved from %s to %s", ct, ref.label, ref.current, next), data)
}

// detect probes tasks first, then features, then projects. Tasks are the
// overwhelmingly common case for status nudges.
func (t *SetStatus) detect(ctx context.Context, id string) (status.ContainerType, *containerRef, error) {
	for _, ct := range []status.ContainerType{status.ContainerTask, status.ContainerFeature, status.ContainerProject} {
		ref, err := loadContainer(ctx, t.deps, ct, id)
		if err != nil {
			if taskerr.IsNotFound(err) {
				continue
			}
			return ct, nil, err
		}
		return ct, ref, nil
	}
	return "", nil, taskerr.NewNotFound("container", id)
}
