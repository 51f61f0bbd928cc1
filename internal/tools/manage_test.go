package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

func TestCreateProjectsInheritDefaults(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageContainer(deps)

	reply := callTool(t, tool, `{
		"operation": "create",
		"containerType": "project",
		"defaults": {"description": "shared notes", "tags": ["q3"]},
		"containers": [
			{"name": "billing"},
			{"name": "auth", "description": "own notes"}
		]
	}`)

	assert.False(t, reply.isErr)
	assert.True(t, reply.env.Success)
	assert.EqualValues(t, 2, reply.get("data.created").Int())
	assert.EqualValues(t, 0, reply.get("data.failed").Int())

	ctx := context.Background()
	first, err := s.GetProject(ctx, reply.get("data.items.0.id").String())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "shared notes", first.Description)
	assert.Equal(t, []string{"q3"}, first.Tags)

	second, err := s.GetProject(ctx, reply.get("data.items.1.id").String())
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "own notes", second.Description)
}

func TestCreateRecordsPerItemFailures(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageContainer(deps)

	reply := callTool(t, tool, `{
		"operation": "create",
		"containerType": "feature",
		"containers": [
			{"name": "good feature"},
			{"description": "no name here"},
			{"name": "bad status", "status": "warp-speed"}
		]
	}`)

	assert.True(t, reply.env.Success, "batch envelopes stay success:true")
	assert.EqualValues(t, 1, reply.get("data.created").Int())
	assert.EqualValues(t, 2, reply.get("data.failed").Int())
	assert.Equal(t, string(taskerr.CodeValidation), reply.get("data.failures.0.code").String())
	assert.EqualValues(t, 1, reply.get("data.failures.0.index").Int())
	assert.EqualValues(t, 2, reply.get("data.failures.1.index").Int())
}

func TestCreateTaskAppliesTemplates(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageContainer(deps)
	ctx := context.Background()

	feature := seedFeature(t, s, "reports", status.FeaturePlanning, nil)
	tpl, err := s.GetTemplateByName(ctx, "Task Implementation")
	require.NoError(t, err)
	require.NotNil(t, tpl, "built-in catalog should be seeded")

	reply := callTool(t, tool, fmt.Sprintf(`{
		"operation": "create",
		"containerType": "task",
		"containers": [{
			"title": "render pdf",
			"featureId": %q,
			"templateIds": [%q]
		}]
	}`, feature.ID, tpl.ID))

	assert.EqualValues(t, 1, reply.get("data.created").Int())
	assert.Equal(t, tpl.ID, reply.get("data.items.0.appliedTemplates.0.templateId").String())
	assert.EqualValues(t, 3, reply.get("data.items.0.appliedTemplates.0.sectionsCreated").Int())
	assert.False(t, reply.get("data.warning").Exists())

	sections, err := s.GetSectionsForEntity(ctx, status.EntityTask, reply.get("data.items.0.id").String())
	require.NoError(t, err)
	assert.Len(t, sections, 3)
}

func TestCreateWithoutTemplatesWarns(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageContainer(deps)

	reply := callTool(t, tool, `{
		"operation": "create",
		"containerType": "task",
		"containers": [{"title": "quick fix"}]
	}`)

	assert.EqualValues(t, 1, reply.get("data.created").Int())
	assert.Contains(t, reply.get("data.warning").String(), "without templates")
}

func TestCreateUnknownParentFails(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageContainer(deps)

	reply := callTool(t, tool, fmt.Sprintf(`{
		"operation": "create",
		"containerType": "task",
		"containers": [{"title": "orphan-to-be", "featureId": %q}]
	}`, uuid.NewString()))

	assert.EqualValues(t, 0, reply.get("data.created").Int())
	assert.Equal(t, string(taskerr.CodeNotFound), reply.get("data.failures.0.code").String())
}

func TestCreateBatchLimits(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageContainer(deps)

	empty := callTool(t, tool, `{"operation": "create", "containerType": "project", "containers": []}`)
	requireToolError(t, empty, taskerr.CodeValidation)

	items := make([]map[string]any, maxBatchSize+1)
	for i := range items {
		items[i] = map[string]any{"name": fmt.Sprintf("p%d", i)}
	}
	args, err := json.Marshal(map[string]any{
		"operation":     "create",
		"containerType": "project",
		"containers":    items,
	})
	require.NoError(t, err)

	over := callTool(t, tool, string(args))
	requireToolError(t, over, taskerr.CodeValidation)
}

func TestUpdateTouchesOnlyProvidedFields(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageContainer(deps)
	ctx := context.Background()

	task := seedTask(t, s, "tune cache", status.TaskPending, nil)
	task.Description = "keep me"
	task.Summary = "old summary"
	require.NoError(t, s.UpdateTask(ctx, task))

	reply := callTool(t, tool, fmt.Sprintf(`{
		"operation": "update",
		"containerType": "task",
		"containers": [{"id": %q, "summary": "new summary", "priority": "high"}]
	}`, task.ID))
	assert.EqualValues(t, 1, reply.get("data.updated").Int())

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep me", stored.Description, "omitted fields stay put")
	assert.Equal(t, "new summary", stored.Summary)
	assert.Equal(t, status.PriorityHigh, stored.Priority)

	// An explicit empty string clears, unlike omission.
	callTool(t, tool, fmt.Sprintf(`{
		"operation": "update",
		"containerType": "task",
		"containers": [{"id": %q, "description": ""}]
	}`, task.ID))
	stored, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Description)
}

func TestUpdateRejectsSkippedTransition(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageContainer(deps)
	ctx := context.Background()

	task := seedTask(t, s, "guarded work", status.TaskPending, nil)
	task.Tags = []string{status.ReviewTag}
	require.NoError(t, s.UpdateTask(ctx, task))

	reply := callTool(t, tool, fmt.Sprintf(`{
		"operation": "update",
		"containerType": "task",
		"containers": [{"id": %q, "status": "in-review"}]
	}`, task.ID))

	assert.EqualValues(t, 0, reply.get("data.updated").Int())
	assert.EqualValues(t, 1, reply.get("data.failed").Int())
	assert.Equal(t, string(taskerr.CodeValidation), reply.get("data.failures.0.code").String())
	assert.Contains(t, reply.get("data.failures.0.message").String(), "skip")

	stored, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, status.TaskPending, stored.Status, "failed transition must not write")
}

func TestUpdateReportsCascadesAndUnblocked(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageContainer(deps)

	feature := seedFeature(t, s, "exports", status.FeatureInDevelopment, nil)
	seedTask(t, s, "emit header", status.TaskCompleted, &feature.ID)
	last := seedTask(t, s, "emit rows", status.TaskInProgress, &feature.ID)
	downstream := seedTask(t, s, "publish", status.TaskPending, nil)
	seedBlocks(t, s, last.ID, downstream.ID)

	reply := callTool(t, tool, fmt.Sprintf(`{
		"operation": "update",
		"containerType": "task",
		"containers": [{"id": %q, "status": "completed"}]
	}`, last.ID))

	assert.EqualValues(t, 1, reply.get("data.updated").Int())
	assert.Equal(t, "all_tasks_complete", reply.get("data.cascadeEvents.0.event").String())
	assert.Equal(t, feature.ID, reply.get("data.cascadeEvents.0.target_id").String())
	assert.Equal(t, downstream.ID, reply.get("data.unblockedTasks.0.task_id").String())
}

func TestUpdateMissingContainer(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageContainer(deps)

	reply := callTool(t, tool, fmt.Sprintf(`{
		"operation": "update",
		"containerType": "feature",
		"containers": [{"id": %q, "name": "ghost"}]
	}`, uuid.NewString()))

	assert.EqualValues(t, 0, reply.get("data.updated").Int())
	assert.Equal(t, string(taskerr.CodeNotFound), reply.get("data.failures.0.code").String())
}

func TestDeleteProjectRequiresForce(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageContainer(deps)
	ctx := context.Background()

	project := seedProject(t, s, "sunset")
	feature := seedFeature(t, s, "legacy sync", status.FeaturePlanning, &project.ID)
	inFeature := seedTask(t, s, "drain queue", status.TaskPending, &feature.ID)
	direct := model.NewTask("remove flag")
	direct.ProjectID = &project.ID
	require.NoError(t, s.CreateTask(ctx, direct))
	require.NoError(t, s.AddSection(ctx, model.NewSection(status.EntityTask, inFeature.ID, "Notes")))

	blocked := callTool(t, tool, fmt.Sprintf(`{
		"operation": "delete",
		"containerType": "project",
		"ids": [%q]
	}`, project.ID))
	assert.EqualValues(t, 0, blocked.get("data.deleted").Int())
	assert.Equal(t, string(taskerr.CodeConflict), blocked.get("data.failures.0.code").String())

	forced := callTool(t, tool, fmt.Sprintf(`{
		"operation": "delete",
		"containerType": "project",
		"ids": [%q],
		"force": true
	}`, project.ID))
	assert.EqualValues(t, 1, forced.get("data.deleted").Int())
	assert.EqualValues(t, 1, forced.get("data.items.0.featuresDeleted").Int())
	assert.EqualValues(t, 2, forced.get("data.items.0.tasksDeleted").Int())
	assert.EqualValues(t, 1, forced.get("data.items.0.sectionsDeleted").Int())

	gone, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	goneTask, err := s.GetTask(ctx, inFeature.ID)
	require.NoError(t, err)
	assert.Nil(t, goneTask)
}

func TestDeleteTaskDependenciesNeedForce(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageContainer(deps)
	ctx := context.Background()

	blocker := seedTask(t, s, "schema migration", status.TaskPending, nil)
	dependent := seedTask(t, s, "backfill", status.TaskPending, nil)
	seedBlocks(t, s, blocker.ID, dependent.ID)

	refused := callTool(t, tool, fmt.Sprintf(`{
		"operation": "delete",
		"containerType": "task",
		"ids": [%q]
	}`, blocker.ID))
	assert.Equal(t, string(taskerr.CodeConflict), refused.get("data.failures.0.code").String())
	assert.Contains(t, refused.get("data.failures.0.details").String(), "outgoing")

	forced := callTool(t, tool, fmt.Sprintf(`{
		"operation": "delete",
		"containerType": "task",
		"ids": [%q],
		"force": true
	}`, blocker.ID))
	assert.EqualValues(t, 1, forced.get("data.deleted").Int())
	assert.EqualValues(t, 1, forced.get("data.items.0.dependenciesDeleted").Int())
	assert.Equal(t, dependent.ID, forced.get("data.items.0.affectedTasks.0").String())

	edges, err := s.FindDependenciesForTask(ctx, dependent.ID)
	require.NoError(t, err)
	assert.Empty(t, edges, "severed edges must not survive")
}

func TestDeleteKeepsSectionsWhenAsked(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageContainer(deps)
	ctx := context.Background()

	task := seedTask(t, s, "spike", status.TaskCompleted, nil)
	require.NoError(t, s.AddSection(ctx, model.NewSection(status.EntityTask, task.ID, "Findings")))

	reply := callTool(t, tool, fmt.Sprintf(`{
		"operation": "delete",
		"containerType": "task",
		"ids": [%q],
		"deleteSections": false
	}`, task.ID))
	assert.EqualValues(t, 1, reply.get("data.deleted").Int())
	assert.EqualValues(t, 0, reply.get("data.items.0.sectionsDeleted").Int())

	sections, err := s.GetSectionsForEntity(ctx, status.EntityTask, task.ID)
	require.NoError(t, err)
	assert.Len(t, sections, 1, "sections outlive the task when deleteSections=false")
}

func TestManageRejectsUnknownShape(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageContainer(deps)

	badOp := callTool(t, tool, `{"operation": "upsert", "containerType": "task", "containers": [{}]}`)
	requireToolError(t, badOp, taskerr.CodeValidation)

	badType := callTool(t, tool, `{"operation": "create", "containerType": "epic", "containers": [{}]}`)
	requireToolError(t, badType, taskerr.CodeValidation)
}
