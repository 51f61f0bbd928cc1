package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/store"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

func seedRankedTask(t *testing.T, s *store.Store, title string, pri status.Priority, complexity int) *model.Task {
	t.Helper()
	task := model.NewTask(title)
	task.Priority = pri
	task.Complexity = complexity
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task
}

func TestQueryContainerProject(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewQueryContainer(deps)
	ctx := context.Background()

	project := seedProject(t, s, "atlas")
	seedFeature(t, s, "maps", status.FeaturePlanning, &project.ID)
	seedFeature(t, s, "routing", status.FeatureCompleted, &project.ID)
	require.NoError(t, s.AddSection(ctx, model.NewSection(status.EntityProject, project.ID, "Charter")))

	reply := callTool(t, tool, fmt.Sprintf(`{"containerType": "project", "id": %q}`, project.ID))
	assert.True(t, reply.env.Success)
	assert.Equal(t, "atlas", reply.get("data.container.name").String())
	assert.EqualValues(t, 2, reply.get("data.featureCounts.total").Int())
	assert.EqualValues(t, 1, reply.get("data.featureCounts.completed").Int())
	assert.Equal(t, "Charter", reply.get("data.sections.0.title").String())
}

func TestQueryContainerTaskDependencySummary(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewQueryContainer(deps)
	ctx := context.Background()

	task := seedTask(t, s, "ship release", status.TaskPending, nil)
	blocker := seedTask(t, s, "sign binaries", status.TaskPending, nil)
	downstream := seedTask(t, s, "announce", status.TaskPending, nil)
	related := seedTask(t, s, "retro notes", status.TaskPending, nil)
	seedBlocks(t, s, blocker.ID, task.ID)
	seedBlocks(t, s, task.ID, downstream.ID)
	require.NoError(t, s.CreateDependency(ctx, model.NewDependency(task.ID, related.ID, status.DependencyRelatesTo)))

	reply := callTool(t, tool, fmt.Sprintf(`{"containerType": "task", "id": %q}`, task.ID))
	assert.True(t, reply.env.Success)
	assert.Equal(t, blocker.ID, reply.get("data.dependencies.blockedBy.0.id").String())
	assert.Equal(t, "sign binaries", reply.get("data.dependencies.blockedBy.0.title").String())
	assert.Equal(t, downstream.ID, reply.get("data.dependencies.blocks.0.id").String())
	assert.Equal(t, related.ID, reply.get("data.dependencies.relatesTo.0").String())
	assert.Equal(t, blocker.ID, reply.get("data.dependencies.unmetBlockers.0.id").String())
}

func TestQueryContainerNotFound(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewQueryContainer(deps)

	reply := callTool(t, tool, fmt.Sprintf(`{"containerType": "feature", "id": %q}`, uuid.NewString()))
	requireToolError(t, reply, taskerr.CodeNotFound)
}

func TestGetNextTaskOrdering(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewGetNextTask(deps)

	seedRankedTask(t, s, "sweep logs", status.PriorityLow, 3)
	seedRankedTask(t, s, "big refactor", status.PriorityHigh, 7)
	winner := seedRankedTask(t, s, "hotfix", status.PriorityHigh, 2)

	reply := callTool(t, tool, `{}`)
	assert.True(t, reply.env.Success)
	assert.Equal(t, winner.ID, reply.get("data.task.id").String())
	assert.EqualValues(t, 3, reply.get("data.pending").Int())
	assert.EqualValues(t, 3, reply.get("data.eligible").Int())
}

func TestGetNextTaskSkipsBlocked(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewGetNextTask(deps)

	free := seedRankedTask(t, s, "write docs", status.PriorityLow, 5)
	urgent := seedRankedTask(t, s, "deploy", status.PriorityHigh, 1)
	gate := seedTask(t, s, "pass CI", status.TaskInProgress, nil)
	seedBlocks(t, s, gate.ID, urgent.ID)

	reply := callTool(t, tool, `{}`)
	assert.Equal(t, free.ID, reply.get("data.task.id").String(),
		"a blocked task cannot win on priority")
	assert.EqualValues(t, 2, reply.get("data.pending").Int())
	assert.EqualValues(t, 1, reply.get("data.eligible").Int())
}

func TestGetNextTaskScopes(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewGetNextTask(deps)
	ctx := context.Background()

	project := seedProject(t, s, "mobile")
	feature := seedFeature(t, s, "onboarding", status.FeatureInDevelopment, &project.ID)
	inFeature := seedTask(t, s, "welcome screen", status.TaskPending, &feature.ID)
	direct := model.NewTask("release checklist")
	direct.ProjectID = &project.ID
	direct.Priority = status.PriorityHigh
	require.NoError(t, s.CreateTask(ctx, direct))
	seedTask(t, s, "unrelated chore", status.TaskPending, nil)

	scoped := callTool(t, tool, fmt.Sprintf(`{"featureId": %q}`, feature.ID))
	assert.Equal(t, inFeature.ID, scoped.get("data.task.id").String())

	byProject := callTool(t, tool, fmt.Sprintf(`{"projectId": %q}`, project.ID))
	assert.Equal(t, direct.ID, byProject.get("data.task.id").String(),
		"project scope includes direct and feature tasks")
	assert.EqualValues(t, 2, byProject.get("data.pending").Int())
}

func TestGetNextTaskNoneEligible(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewGetNextTask(deps)

	seedTask(t, s, "already moving", status.TaskInProgress, nil)

	reply := callTool(t, tool, `{}`)
	assert.True(t, reply.env.Success)
	assert.Equal(t, "No eligible pending task", reply.env.Message)
	assert.EqualValues(t, 0, reply.get("data.eligible").Int())
}

func TestGetBlockedTasks(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewGetBlockedTasks(deps)

	gate := seedTask(t, s, "approve budget", status.TaskPending, nil)
	held := seedTask(t, s, "order hardware", status.TaskPending, nil)
	seedTask(t, s, "write memo", status.TaskPending, nil)
	seedBlocks(t, s, gate.ID, held.ID)

	reply := callTool(t, tool, `{}`)
	assert.True(t, reply.env.Success)
	assert.EqualValues(t, 1, reply.get("data.count").Int())
	assert.Equal(t, held.ID, reply.get("data.blockedTasks.0.id").String())
	assert.Equal(t, gate.ID, reply.get("data.blockedTasks.0.blockers.0.id").String())
	assert.Equal(t, "approve budget", reply.get("data.blockedTasks.0.blockers.0.title").String())
}

func TestGetOverviewPortfolio(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewGetOverview(deps)

	withFeatures := seedProject(t, s, "platform")
	seedFeature(t, s, "sso", status.FeaturePlanning, &withFeatures.ID)
	seedFeature(t, s, "audit log", status.FeatureInDevelopment, &withFeatures.ID)
	seedProject(t, s, "empty shell")

	reply := callTool(t, tool, `{}`)
	assert.True(t, reply.env.Success)
	assert.EqualValues(t, 2, reply.get("data.count").Int())

	query := fmt.Sprintf(`data.projects.#(project.id=="%s").featureCounts.total`, withFeatures.ID)
	assert.EqualValues(t, 2, reply.get(query).Int())
}

func TestGetOverviewProjectTree(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewGetOverview(deps)
	ctx := context.Background()

	project := seedProject(t, s, "warehouse")
	feature := seedFeature(t, s, "inbound", status.FeatureInDevelopment, &project.ID)
	seedTask(t, s, "scan pallets", status.TaskPending, &feature.ID)
	seedTask(t, s, "restock", status.TaskCompleted, &feature.ID)
	direct := model.NewTask("site survey")
	direct.ProjectID = &project.ID
	require.NoError(t, s.CreateTask(ctx, direct))

	reply := callTool(t, tool, fmt.Sprintf(`{"projectId": %q}`, project.ID))
	assert.True(t, reply.env.Success)
	assert.Equal(t, "warehouse", reply.get("data.project.name").String())
	assert.Equal(t, feature.ID, reply.get("data.features.0.feature.id").String())
	assert.EqualValues(t, 2, reply.get("data.features.0.taskCounts.total").Int())
	assert.EqualValues(t, 1, reply.get("data.features.0.taskCounts.completed").Int())
	assert.Equal(t, direct.ID, reply.get("data.tasksWithoutFeature.0.id").String())

	missing := callTool(t, tool, fmt.Sprintf(`{"projectId": %q}`, uuid.NewString()))
	requireToolError(t, missing, taskerr.CodeNotFound)
}
