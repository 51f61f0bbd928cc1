package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/taskorchestrator/taskorchestrator/internal/cascade"
	"github.com/taskorchestrator/taskorchestrator/internal/config"
	"github.com/taskorchestrator/taskorchestrator/internal/lock"
	"github.com/taskorchestrator/taskorchestrator/internal/mcp"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/progression"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/store"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
	"github.com/taskorchestrator/taskorchestrator/internal/template"
	"github.com/taskorchestrator/taskorchestrator/internal/validation"
)

func newDeps(t *testing.T, cfg *config.Config) (Deps, *store.Store) {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	s, err := store.Open(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	prog := progression.NewService(status.BuiltinFlows(), s, s, s, s)
	valid := validation.NewValidator(prog)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := Deps{
		Repos:     s,
		Progress:  prog,
		Validate:  valid,
		Cascades:  cascade.NewService(s, prog, valid, cfg, logger),
		Templates: template.NewEngine(s),
		Locks:     lock.NewKeyedLock(),
		Logger:    logger,
	}
	return deps, s
}

// toolReply is one executed tool call: the decoded envelope plus the raw
// JSON for path assertions.
type toolReply struct {
	env   Envelope
	raw   string
	isErr bool
}

func (r toolReply) get(path string) gjson.Result {
	return gjson.Get(r.raw, path)
}

func callTool(t *testing.T, tool mcp.Tool, args string) toolReply {
	t.Helper()
	res, err := tool.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)

	raw := res.Content[0].Text
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env), "tool returned invalid envelope JSON: %s", raw)
	return toolReply{env: env, raw: raw, isErr: res.IsError}
}

// requireToolError asserts the reply is a user-facing failure with the
// given code.
func requireToolError(t *testing.T, r toolReply, code taskerr.Code) {
	t.Helper()
	assert.True(t, r.isErr, "expected isError result, got: %s", r.raw)
	assert.False(t, r.env.Success)
	require.NotNil(t, r.env.Error, "failure envelope missing error body: %s", r.raw)
	assert.Equal(t, code, r.env.Error.Code)
}

func seedProject(t *testing.T, s *store.Store, name string) *model.Project {
	t.Helper()
	p := model.NewProject(name)
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func seedFeature(t *testing.T, s *store.Store, name string, st status.FeatureStatus, projectID *string) *model.Feature {
	t.Helper()
	f := model.NewFeature(name)
	f.Status = st
	f.ProjectID = projectID
	require.NoError(t, s.CreateFeature(context.Background(), f))
	return f
}

func seedTask(t *testing.T, s *store.Store, title string, st status.TaskStatus, featureID *string) *model.Task {
	t.Helper()
	task := model.NewTask(title)
	task.Status = st
	task.FeatureID = featureID
	require.NoError(t, s.CreateTask(context.Background(), task))
	return task
}

func seedBlocks(t *testing.T, s *store.Store, blocker, blocked string) *model.Dependency {
	t.Helper()
	d := model.NewDependency(blocker, blocked, status.DependencyBlocks)
	require.NoError(t, s.CreateDependency(context.Background(), d))
	return d
}
