package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

func TestRequestTransitionExplicitStatus(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewRequestTransition(deps)
	ctx := context.Background()

	feature := seedFeature(t, s, "search", status.FeaturePlanning, nil)
	task := seedTask(t, s, "index documents", status.TaskPending, &feature.ID)

	reply := callTool(t, tool, fmt.Sprintf(`{
		"containerType": "task",
		"id": %q,
		"status": "in-progress"
	}`, task.ID))

	assert.True(t, reply.env.Success)
	assert.Equal(t, "pending", reply.get("data.from").String())
	assert.Equal(t, "in-progress", reply.get("data.to").String())

	// First active task cascades the feature out of planning.
	assert.True(t, reply.get("data.cascades.0.applied").Bool())
	assert.Equal(t, "first_task_started", reply.get("data.cascades.0.event.event").String())
	assert.Equal(t, "in-development", reply.get("data.cascades.0.new_status").String())

	stored, err := s.GetFeature(ctx, feature.ID)
	require.NoError(t, err)
	assert.Equal(t, status.FeatureInDevelopment, stored.Status)
}

func TestRequestTransitionRecommendsNext(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewRequestTransition(deps)

	task := seedTask(t, s, "draft outline", status.TaskPending, nil)

	reply := callTool(t, tool, fmt.Sprintf(`{"containerType": "task", "id": %q}`, task.ID))
	assert.True(t, reply.env.Success)
	assert.Equal(t, "in-progress", reply.get("data.to").String())
}

func TestRequestTransitionBlocked(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewRequestTransition(deps)

	blocker := seedTask(t, s, "provision database", status.TaskPending, nil)
	blocked := seedTask(t, s, "run migration", status.TaskPending, nil)
	seedBlocks(t, s, blocker.ID, blocked.ID)

	// Recommendation path refuses to advance.
	recommended := callTool(t, tool, fmt.Sprintf(`{"containerType": "task", "id": %q}`, blocked.ID))
	requireToolError(t, recommended, taskerr.CodeOperationFailed)
	assert.Contains(t, recommended.env.Error.Details, blocker.Title)

	// So does an explicit target.
	explicit := callTool(t, tool, fmt.Sprintf(`{
		"containerType": "task", "id": %q, "status": "in-progress"
	}`, blocked.ID))
	requireToolError(t, explicit, taskerr.CodeOperationFailed)
}

func TestRequestTransitionAtTerminal(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewRequestTransition(deps)

	task := seedTask(t, s, "done already", status.TaskCompleted, nil)

	reply := callTool(t, tool, fmt.Sprintf(`{"containerType": "task", "id": %q}`, task.ID))
	requireToolError(t, reply, taskerr.CodeValidation)
	assert.Contains(t, reply.env.Message, "terminal")
}

func TestRequestTransitionNoop(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewRequestTransition(deps)

	task := seedTask(t, s, "steady state", status.TaskInProgress, nil)

	reply := callTool(t, tool, fmt.Sprintf(`{
		"containerType": "task", "id": %q, "status": "IN_PROGRESS"
	}`, task.ID))
	assert.True(t, reply.env.Success)
	assert.True(t, reply.get("data.noop").Bool())
}

func TestRequestTransitionMissingContainer(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewRequestTransition(deps)

	reply := callTool(t, tool, fmt.Sprintf(`{"containerType": "project", "id": %q}`, uuid.NewString()))
	requireToolError(t, reply, taskerr.CodeNotFound)
}

func TestSetStatusDetectsContainerKind(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewSetStatus(deps)
	ctx := context.Background()

	feature := seedFeature(t, s, "billing", status.FeaturePlanning, nil)

	reply := callTool(t, tool, fmt.Sprintf(`{"id": %q, "status": "in-development"}`, feature.ID))
	assert.True(t, reply.env.Success)
	assert.Equal(t, "feature", reply.get("data.containerType").String())
	assert.Equal(t, "in-development", reply.get("data.to").String())

	stored, err := s.GetFeature(ctx, feature.ID)
	require.NoError(t, err)
	assert.Equal(t, status.FeatureInDevelopment, stored.Status)
}

func TestSetStatusSuggestsWithoutApplying(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewSetStatus(deps)
	ctx := context.Background()

	feature := seedFeature(t, s, "ingest", status.FeatureInDevelopment, nil)
	seedTask(t, s, "parse", status.TaskCompleted, &feature.ID)
	last := seedTask(t, s, "load", status.TaskInProgress, &feature.ID)

	reply := callTool(t, tool, fmt.Sprintf(`{"id": %q, "status": "completed"}`, last.ID))
	assert.True(t, reply.env.Success)
	assert.Equal(t, "task", reply.get("data.containerType").String())
	assert.Equal(t, "all_tasks_complete", reply.get("data.cascadeEvents.0.event").String())

	stored, err := s.GetFeature(ctx, feature.ID)
	require.NoError(t, err)
	assert.Equal(t, status.FeatureInDevelopment, stored.Status, "set_status reports suggestions only")
}

func TestSetStatusUnknownID(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewSetStatus(deps)

	reply := callTool(t, tool, fmt.Sprintf(`{"id": %q, "status": "completed"}`, uuid.NewString()))
	requireToolError(t, reply, taskerr.CodeNotFound)
}
