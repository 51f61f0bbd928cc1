package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, Dir)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if !cfg.AutoCascade.Enabled {
		t.Error("auto cascade should default on")
	}
	if cfg.AutoCascade.MaxDepth != 3 {
		t.Errorf("max depth = %d, want 3", cfg.AutoCascade.MaxDepth)
	}
	if cfg.AutoCascade.RoleAggregation.Enabled {
		t.Error("role aggregation should default off")
	}
	if !cfg.CompletionCleanup.Enabled {
		t.Error("completion cleanup should default on")
	}
	if len(cfg.Flows) != 0 {
		t.Errorf("default flows = %v, want none", cfg.Flows)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvConfigDir, t.TempDir())

	cfg := Load(quietLogger())
	if !cfg.AutoCascade.Enabled || cfg.AutoCascade.MaxDepth != 3 {
		t.Errorf("expected defaults, got %+v", cfg.AutoCascade)
	}
}

func TestLoadPartialOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
auto_cascade:
  max_depth: 5
completion_cleanup:
  keep_tags:
    - keep
    - audit/**
`)
	t.Setenv(EnvConfigDir, dir)

	cfg := Load(quietLogger())
	if cfg.AutoCascade.MaxDepth != 5 {
		t.Errorf("max depth = %d, want 5", cfg.AutoCascade.MaxDepth)
	}
	if !cfg.AutoCascade.Enabled {
		t.Error("auto cascade enabled should survive a partial override")
	}
	if !cfg.CompletionCleanup.Enabled {
		t.Error("cleanup enabled should survive a partial override")
	}
	if len(cfg.CompletionCleanup.KeepTags) != 2 {
		t.Errorf("keep tags = %v", cfg.CompletionCleanup.KeepTags)
	}
}

func TestLoadExplicitDisable(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
auto_cascade:
  enabled: false
completion_cleanup:
  enabled: false
`)
	t.Setenv(EnvConfigDir, dir)

	cfg := Load(quietLogger())
	if cfg.AutoCascade.Enabled {
		t.Error("auto cascade should be disabled")
	}
	if cfg.CompletionCleanup.Enabled {
		t.Error("cleanup should be disabled")
	}
}

func TestLoadMalformedFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "auto_cascade: [not: a: mapping")
	t.Setenv(EnvConfigDir, dir)

	cfg := Load(quietLogger())
	if !cfg.AutoCascade.Enabled || cfg.AutoCascade.MaxDepth != 3 {
		t.Errorf("malformed config should fall back to defaults, got %+v", cfg.AutoCascade)
	}
}

func TestLoadFileExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("auto_cascade:\n  max_depth: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path, quietLogger())
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.AutoCascade.MaxDepth != 9 {
		t.Errorf("max depth = %d, want 9", cfg.AutoCascade.MaxDepth)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), quietLogger()); err == nil {
		t.Error("missing explicit file should be an error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("flows: [broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad, quietLogger()); err == nil {
		t.Error("malformed explicit file should be an error")
	}
}

func TestSanitizeDropsBadRules(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
auto_cascade:
  role_aggregation:
    enabled: true
    rules:
      - role_threshold: review
        percentage: 0.5
        target_feature_status: in-review
      - role_threshold: review
        percentage: 1.5
        target_feature_status: in-review
      - role_threshold: review
        percentage: 0.5
        target_feature_status: not-a-status
`)
	t.Setenv(EnvConfigDir, dir)

	cfg := Load(quietLogger())
	rules := cfg.AutoCascade.RoleAggregation.Rules
	if len(rules) != 1 {
		t.Fatalf("rules = %v, want exactly the valid one", rules)
	}
	if rules[0].Percentage != 0.5 {
		t.Errorf("kept the wrong rule: %+v", rules[0])
	}
}

func TestSanitizeRepairsNegativeDepth(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "auto_cascade:\n  max_depth: -1\n")
	t.Setenv(EnvConfigDir, dir)

	cfg := Load(quietLogger())
	if cfg.AutoCascade.MaxDepth != 3 {
		t.Errorf("max depth = %d, want repaired default 3", cfg.AutoCascade.MaxDepth)
	}
}

func TestFlowSetIncludesCustomFlows(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
flows:
  - name: task-qa
    container_type: task
    tags: [qa]
    sequence: [pending, in_progress, in_review, completed]
    terminal: [completed, cancelled]
    status_roles:
      in-review: qa-check
`)
	t.Setenv(EnvConfigDir, dir)

	cfg := Load(quietLogger())
	set := cfg.FlowSet(quietLogger())

	flow := set.Select(status.ContainerTask, []string{"qa"})
	if flow == nil || flow.Name != "task-qa" {
		t.Fatalf("Select(task, qa) = %v, want task-qa", flow)
	}
	if got := flow.Sequence[1]; got != "in-progress" {
		t.Errorf("sequence should be normalized, got %q", got)
	}
	if role := flow.RoleFor("in-review"); role != status.Role("qa-check") {
		t.Errorf("RoleFor(in-review) = %q, want qa-check", role)
	}
	if role := flow.RoleFor("in-review"); role.AtOrBeyond(status.RoleTerminal) {
		t.Error("custom role must stay below terminal")
	}

	// Untagged tasks still get the builtin default.
	def := set.Select(status.ContainerTask, nil)
	if def == nil || def.Name != "task-default" {
		t.Fatalf("Select(task) = %v, want task-default", def)
	}
}

func TestFlowSetSkipsInvalidFlows(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
flows:
  - name: bad-container
    container_type: epic
    sequence: [planning]
  - name: bad-status
    container_type: task
    sequence: [pending, shipping]
  - name: ""
    container_type: task
    sequence: [pending]
`)
	t.Setenv(EnvConfigDir, dir)

	cfg := Load(quietLogger())
	set := cfg.FlowSet(quietLogger())
	if n := len(set.Flows()); n != len(status.BuiltinFlows().Flows()) {
		t.Errorf("flow count = %d, want builtins only", n)
	}
}

func TestFlowTerminalDefaultsToLastStatus(t *testing.T) {
	fc := Flow{
		Name:          "project-short",
		ContainerType: "project",
		Sequence:      []string{"planning", "completed"},
	}
	flow, err := fc.toFlow()
	if err != nil {
		t.Fatal(err)
	}
	if !flow.IsTerminal("completed") {
		t.Error("last sequence status should become terminal when none declared")
	}
}

func TestPathUsesEnvRoot(t *testing.T) {
	t.Setenv(EnvConfigDir, "/srv/agent")
	want := filepath.Join("/srv/agent", Dir, FileName)
	if got := Path(); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestEmbeddedDefaultsParse(t *testing.T) {
	// The embedded file is all comments today, but it must stay parseable
	// so uncommenting an example is a valid config.
	t.Setenv(EnvConfigDir, t.TempDir())
	cfg := Load(quietLogger())
	if cfg == nil {
		t.Fatal("Load returned nil")
	}
}
