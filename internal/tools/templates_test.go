package tools

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

func TestTemplateListBuiltins(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageTemplate(deps)

	reply := callTool(t, tool, `{"operation": "list"}`)
	assert.True(t, reply.env.Success)
	assert.EqualValues(t, 3, reply.get("data.count").Int())

	tasksOnly := callTool(t, tool, `{"operation": "list", "targetEntityType": "task"}`)
	assert.EqualValues(t, 2, tasksOnly.get("data.count").Int())
}

func TestTemplateGetByName(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageTemplate(deps)

	reply := callTool(t, tool, `{"operation": "get", "name": "Bug Report"}`)
	assert.True(t, reply.env.Success)
	assert.True(t, reply.get("data.template.is_built_in").Bool())
	assert.EqualValues(t, 4, reply.get("data.sections.#").Int())
	assert.Equal(t, "Observed Behavior", reply.get("data.sections.0.title").String())
}

func TestTemplateCreateAndApply(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageTemplate(deps)
	ctx := context.Background()

	created := callTool(t, tool, `{
		"operation": "create",
		"name": "Incident Review",
		"targetEntityType": "task",
		"description": "Postmortem scaffold",
		"sections": [
			{"title": "Timeline", "isRequired": true},
			{"title": "Root Cause", "contentFormat": "markdown"}
		]
	}`)
	assert.True(t, created.env.Success)
	assert.EqualValues(t, 2, created.get("data.sectionsCreated").Int())
	templateID := created.get("data.template.id").String()
	require.NotEmpty(t, templateID)

	task := seedTask(t, s, "pager audit", status.TaskPending, nil)
	applied := callTool(t, tool, fmt.Sprintf(`{
		"operation": "apply",
		"templateIds": [%q],
		"entityType": "task",
		"entityId": %q
	}`, templateID, task.ID))
	assert.True(t, applied.env.Success)
	assert.EqualValues(t, 2, applied.get("data.sectionsCreated").Int())

	sections, err := s.GetSectionsForEntity(ctx, status.EntityTask, task.ID)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "Timeline", sections[0].Title)
}

func TestTemplateCreateDuplicateName(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t, nil)
	tool := NewManageTemplate(deps)

	reply := callTool(t, tool, `{
		"operation": "create",
		"name": "Bug Report",
		"targetEntityType": "task",
		"sections": [{"title": "Anything"}]
	}`)
	requireToolError(t, reply, taskerr.CodeDuplicateResource)
}

func TestTemplateBuiltinsAreProtected(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageTemplate(deps)
	ctx := context.Background()

	builtin, err := s.GetTemplateByName(ctx, "Feature Specification")
	require.NoError(t, err)
	require.NotNil(t, builtin)

	update := callTool(t, tool, fmt.Sprintf(`{
		"operation": "update", "templateId": %q, "description": "vandalized"
	}`, builtin.ID))
	requireToolError(t, update, taskerr.CodeConflict)

	del := callTool(t, tool, fmt.Sprintf(`{"operation": "delete", "templateId": %q}`, builtin.ID))
	requireToolError(t, del, taskerr.CodeConflict)

	still, err := s.GetTemplate(ctx, builtin.ID)
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, builtin.Description, still.Description)
}

func TestTemplateUpdateAndDeleteCustom(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageTemplate(deps)
	ctx := context.Background()

	created := callTool(t, tool, `{
		"operation": "create",
		"name": "Spike Notes",
		"targetEntityType": "task",
		"sections": [{"title": "Findings"}]
	}`)
	id := created.get("data.template.id").String()

	updated := callTool(t, tool, fmt.Sprintf(`{
		"operation": "update", "templateId": %q, "isEnabled": false, "description": "parked"
	}`, id))
	assert.True(t, updated.env.Success)

	stored, err := s.GetTemplate(ctx, id)
	require.NoError(t, err)
	assert.False(t, stored.IsEnabled)
	assert.Equal(t, "parked", stored.Description)

	// Disabled templates refuse to apply.
	task := seedTask(t, s, "research", status.TaskPending, nil)
	refused := callTool(t, tool, fmt.Sprintf(`{
		"operation": "apply", "templateIds": [%q], "entityType": "task", "entityId": %q
	}`, id, task.ID))
	requireToolError(t, refused, taskerr.CodeOperationFailed)

	deleted := callTool(t, tool, fmt.Sprintf(`{"operation": "delete", "templateId": %q}`, id))
	assert.True(t, deleted.env.Success)
	gone, err := s.GetTemplate(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTemplateApplyMixedOutcome(t *testing.T) {
	t.Parallel()
	deps, s := newDeps(t, nil)
	tool := NewManageTemplate(deps)
	ctx := context.Background()

	good, err := s.GetTemplateByName(ctx, "Task Implementation")
	require.NoError(t, err)
	wrongTarget, err := s.GetTemplateByName(ctx, "Feature Specification")
	require.NoError(t, err)

	task := seedTask(t, s, "mixed apply", status.TaskPending, nil)
	reply := callTool(t, tool, fmt.Sprintf(`{
		"operation": "apply",
		"templateIds": [%q, %q],
		"entityType": "task",
		"entityId": %q
	}`, good.ID, wrongTarget.ID, task.ID))

	assert.True(t, reply.env.Success, "partial application still succeeds")
	assert.EqualValues(t, 1, reply.get("data.appliedTemplates.#").Int())
	assert.Contains(t, reply.get("data.warnings").String(), "targets feature")
}
