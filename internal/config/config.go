// Package config loads the engine configuration: cascade behavior,
// role aggregation rules, completion cleanup policy, and custom flows.
//
// Configuration is resolved from $AGENT_CONFIG_DIR/.taskorchestrator/config.yaml,
// then ./.taskorchestrator/config.yaml, then the embedded defaults. Loading
// never fails: unreadable files, malformed YAML, and invalid entries are
// logged and replaced with defaults so the server always starts.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/taskorchestrator/taskorchestrator/configuration"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

const (
	// Dir is the directory the config file lives in, relative to the
	// config root ($AGENT_CONFIG_DIR or the working directory).
	Dir = ".taskorchestrator"

	// FileName is the config file name inside Dir.
	FileName = "config.yaml"

	// EnvConfigDir overrides the config root when set.
	EnvConfigDir = "AGENT_CONFIG_DIR"

	defaultMaxDepth = 3
)

// RoleAggregationRule promotes a feature when enough of its tasks have
// reached a role. Percentage is a fraction in [0, 1].
type RoleAggregationRule struct {
	RoleThreshold       string  `yaml:"role_threshold"`
	Percentage          float64 `yaml:"percentage"`
	TargetFeatureStatus string  `yaml:"target_feature_status"`
}

// RoleAggregation configures partial-progress promotion of features.
// Disabled by default.
type RoleAggregation struct {
	Enabled bool                  `yaml:"enabled"`
	Rules   []RoleAggregationRule `yaml:"rules"`
}

// AutoCascade configures automatic propagation of status changes
// between hierarchy levels.
type AutoCascade struct {
	Enabled         bool            `yaml:"enabled"`
	MaxDepth        int             `yaml:"max_depth"`
	RoleAggregation RoleAggregation `yaml:"role_aggregation"`
}

// CompletionCleanup configures deletion of verified work when a
// feature completes. KeepTags are glob patterns matched against
// task tags; a match retains the task.
type CompletionCleanup struct {
	Enabled  bool     `yaml:"enabled"`
	KeepTags []string `yaml:"keep_tags"`
}

// Flow declares a custom status flow. Statuses accept kebab-case or
// SCREAMING_SNAKE; roles are planning, work, review, or terminal.
type Flow struct {
	Name          string            `yaml:"name"`
	ContainerType string            `yaml:"container_type"`
	Tags          []string          `yaml:"tags"`
	Sequence      []string          `yaml:"sequence"`
	Terminal      []string          `yaml:"terminal"`
	StatusRoles   map[string]string `yaml:"status_roles"`
}

// Config is the engine configuration.
type Config struct {
	AutoCascade       AutoCascade       `yaml:"auto_cascade"`
	CompletionCleanup CompletionCleanup `yaml:"completion_cleanup"`
	Flows             []Flow            `yaml:"flows"`
}

// Default returns the built-in configuration: cascades on with depth 3,
// role aggregation off, completion cleanup on with no retention tags.
func Default() *Config {
	return &Config{
		AutoCascade: AutoCascade{
			Enabled:  true,
			MaxDepth: defaultMaxDepth,
		},
		CompletionCleanup: CompletionCleanup{
			Enabled: true,
		},
	}
}

// Path returns the config file path Load would read first, whether or
// not the file exists.
func Path() string {
	root := os.Getenv(EnvConfigDir)
	if root == "" {
		root = "."
	}
	return filepath.Join(root, Dir, FileName)
}

// Load resolves and parses the configuration. It never returns an
// error: problems are logged through logger and defaults take over.
func Load(logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}

	path, data := readFirst(logger)
	cfg := Default()
	if len(data) == 0 {
		return cfg
	}

	overlay := fileConfig{}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		logger.Warn("ignoring malformed config file", "path", path, "error", err)
		return cfg
	}
	overlay.apply(cfg)
	cfg.sanitize(logger)
	return cfg
}

// LoadFile parses one specific config file over the defaults. Unlike
// Load it returns an error for a missing or malformed file, since the
// caller asked for that path explicitly.
func LoadFile(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	overlay := fileConfig{}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg := Default()
	overlay.apply(cfg)
	cfg.sanitize(logger)
	return cfg, nil
}

// readFirst returns the contents of the first config file found, or
// the embedded defaults when none exists.
func readFirst(logger *slog.Logger) (string, []byte) {
	var roots []string
	if env := os.Getenv(EnvConfigDir); env != "" {
		roots = append(roots, env)
	}
	roots = append(roots, ".")

	for _, root := range roots {
		path := filepath.Join(root, Dir, FileName)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data
		}
		if !os.IsNotExist(err) {
			logger.Warn("cannot read config file", "path", path, "error", err)
		}
	}
	return "embedded defaults", configuration.DefaultConfig
}

// fileConfig mirrors Config with pointer fields so a file can override
// part of a section without resetting the rest to zero values.
type fileConfig struct {
	AutoCascade *struct {
		Enabled         *bool `yaml:"enabled"`
		MaxDepth        *int  `yaml:"max_depth"`
		RoleAggregation *struct {
			Enabled *bool                 `yaml:"enabled"`
			Rules   []RoleAggregationRule `yaml:"rules"`
		} `yaml:"role_aggregation"`
	} `yaml:"auto_cascade"`
	CompletionCleanup *struct {
		Enabled  *bool    `yaml:"enabled"`
		KeepTags []string `yaml:"keep_tags"`
	} `yaml:"completion_cleanup"`
	Flows []Flow `yaml:"flows"`
}

func (f fileConfig) apply(cfg *Config) {
	if ac := f.AutoCascade; ac != nil {
		if ac.Enabled != nil {
			cfg.AutoCascade.Enabled = *ac.Enabled
		}
		if ac.MaxDepth != nil {
			cfg.AutoCascade.MaxDepth = *ac.MaxDepth
		}
		if ra := ac.RoleAggregation; ra != nil {
			if ra.Enabled != nil {
				cfg.AutoCascade.RoleAggregation.Enabled = *ra.Enabled
			}
			if ra.Rules != nil {
				cfg.AutoCascade.RoleAggregation.Rules = ra.Rules
			}
		}
	}
	if cc := f.CompletionCleanup; cc != nil {
		if cc.Enabled != nil {
			cfg.CompletionCleanup.Enabled = *cc.Enabled
		}
		if cc.KeepTags != nil {
			cfg.CompletionCleanup.KeepTags = cc.KeepTags
		}
	}
	if f.Flows != nil {
		cfg.Flows = f.Flows
	}
}

// sanitize drops invalid aggregation rules and repairs out-of-range
// values, warning for each. Flows are validated later, in FlowSet.
func (c *Config) sanitize(logger *slog.Logger) {
	if c.AutoCascade.MaxDepth < 0 {
		logger.Warn("auto_cascade.max_depth cannot be negative, using default",
			"value", c.AutoCascade.MaxDepth, "default", defaultMaxDepth)
		c.AutoCascade.MaxDepth = defaultMaxDepth
	}

	rules := c.AutoCascade.RoleAggregation.Rules
	kept := rules[:0]
	for _, rule := range rules {
		if err := rule.validate(); err != nil {
			logger.Warn("skipping role aggregation rule", "rule", rule.RoleThreshold, "error", err)
			continue
		}
		kept = append(kept, rule)
	}
	c.AutoCascade.RoleAggregation.Rules = kept
}

func (r RoleAggregationRule) validate() error {
	if r.RoleThreshold == "" {
		return fmt.Errorf("rule has no role_threshold")
	}
	if r.Percentage < 0 || r.Percentage > 1 {
		return fmt.Errorf("percentage %v outside [0, 1]", r.Percentage)
	}
	if _, ok := status.ParseFeatureStatus(r.TargetFeatureStatus); !ok {
		return fmt.Errorf("unknown target feature status %q", r.TargetFeatureStatus)
	}
	return nil
}

// FlowSet builds the effective flow registry: the built-in flows plus
// every valid custom flow from the config. Invalid flows are skipped
// with a warning; they never block startup.
func (c *Config) FlowSet(logger *slog.Logger) *status.FlowSet {
	if logger == nil {
		logger = slog.Default()
	}
	set := status.BuiltinFlows()
	for _, fc := range c.Flows {
		flow, err := fc.toFlow()
		if err != nil {
			logger.Warn("skipping custom flow", "flow", fc.Name, "error", err)
			continue
		}
		set.Add(flow)
	}
	return set
}

func (f Flow) toFlow() (status.Flow, error) {
	if f.Name == "" {
		return status.Flow{}, fmt.Errorf("flow has no name")
	}
	ct, ok := status.ParseContainerType(f.ContainerType)
	if !ok {
		return status.Flow{}, fmt.Errorf("flow %q: unknown container type %q", f.Name, f.ContainerType)
	}
	if len(f.Sequence) == 0 {
		return status.Flow{}, fmt.Errorf("flow %q has an empty sequence", f.Name)
	}

	flow := status.Flow{
		Name:          f.Name,
		ContainerType: ct,
	}
	for _, tag := range f.Tags {
		flow.Tags = append(flow.Tags, status.Normalize(tag))
	}
	for _, s := range f.Sequence {
		norm := status.Normalize(s)
		if !status.IsValidStatus(norm, ct) {
			return status.Flow{}, fmt.Errorf("flow %q: %q is not a %s status", f.Name, s, ct)
		}
		flow.Sequence = append(flow.Sequence, norm)
	}
	for _, s := range f.Terminal {
		norm := status.Normalize(s)
		if !status.IsValidStatus(norm, ct) {
			return status.Flow{}, fmt.Errorf("flow %q: %q is not a %s status", f.Name, s, ct)
		}
		flow.TerminalStatuses = append(flow.TerminalStatuses, norm)
	}
	if len(flow.TerminalStatuses) == 0 {
		flow.TerminalStatuses = []string{flow.Sequence[len(flow.Sequence)-1]}
	}
	for st, roleName := range f.StatusRoles {
		if roleName == "" {
			return status.Flow{}, fmt.Errorf("flow %q: empty role for status %q", f.Name, st)
		}
		if flow.StatusRoles == nil {
			flow.StatusRoles = map[string]status.Role{}
		}
		flow.StatusRoles[status.Normalize(st)] = status.ParseRole(roleName)
	}
	return flow, nil
}
