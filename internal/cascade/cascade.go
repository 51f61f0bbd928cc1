// Package cascade propagates status changes through the container
// hierarchy: task activity nudges features, finished features nudge
// projects. Detection only suggests; application writes through the
// validator, fans out depth-bounded, and reports everything it did.
package cascade

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/taskorchestrator/taskorchestrator/internal/config"
	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/progression"
	"github.com/taskorchestrator/taskorchestrator/internal/repo"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/validation"
)

// EventType names a cascade trigger.
type EventType string

const (
	EventFirstTaskStarted    EventType = "first_task_started"
	EventAllTasksComplete    EventType = "all_tasks_complete"
	EventAllFeaturesComplete EventType = "all_features_complete"
	EventRoleAggregation     EventType = "role_aggregation_threshold"
)

// Event is a detected cascade suggestion. Detection never writes.
type Event struct {
	Event           EventType            `json:"event"`
	TargetType      status.ContainerType `json:"target_type"`
	TargetID        string               `json:"target_id"`
	TargetName      string               `json:"target_name,omitempty"`
	CurrentStatus   string               `json:"current_status"`
	SuggestedStatus string               `json:"suggested_status"`
	Flow            string               `json:"flow,omitempty"`
	Automatic       bool                 `json:"automatic"`
	Reason          string               `json:"reason"`
}

// Applied records the outcome of one cascade event during application.
type Applied struct {
	Event          Event                 `json:"event"`
	Applied        bool                  `json:"applied"`
	Skipped        bool                  `json:"skipped,omitempty"`
	NewStatus      string                `json:"new_status,omitempty"`
	Error          string                `json:"error,omitempty"`
	UnblockedTasks []model.UnblockedTask `json:"unblocked_tasks,omitempty"`
	Cleanup        *CleanupResult        `json:"cleanup,omitempty"`
	ChildCascades  []Applied             `json:"child_cascades,omitempty"`
}

// Service detects and applies cascades.
type Service struct {
	repos  repo.Set
	prog   *progression.Service
	valid  *validation.Validator
	cfg    *config.Config
	logger *slog.Logger
}

// NewService builds a cascade service. A nil logger falls back to the
// default logger.
func NewService(repos repo.Set, prog *progression.Service, valid *validation.Validator, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repos:  repos,
		prog:   prog,
		valid:  valid,
		cfg:    cfg,
		logger: logger.With("component", "cascade"),
	}
}

// MaxDepth returns the configured recursion bound for application.
func (s *Service) MaxDepth() int {
	return s.cfg.AutoCascade.MaxDepth
}

// Enabled reports whether cascades should be applied automatically.
func (s *Service) Enabled() bool {
	return s.cfg.AutoCascade.Enabled
}

// DetectEvents computes the cascade suggestions triggered by a change
// to the given container. Missing containers yield no events.
func (s *Service) DetectEvents(ctx context.Context, containerID string, ct status.ContainerType) ([]Event, error) {
	switch ct {
	case status.ContainerTask:
		return s.detectFromTask(ctx, containerID)
	case status.ContainerFeature:
		return s.detectFromFeature(ctx, containerID)
	default:
		// Projects sit at the top; nothing cascades upward from them.
		return nil, nil
	}
}

func (s *Service) detectFromTask(ctx context.Context, taskID string) ([]Event, error) {
	task, err := s.repos.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil || task.FeatureID == nil {
		return nil, nil
	}
	feature, err := s.repos.GetFeature(ctx, *task.FeatureID)
	if err != nil {
		return nil, fmt.Errorf("load feature %s: %w", *task.FeatureID, err)
	}
	if feature == nil {
		return nil, nil
	}
	counts, err := s.repos.GetTaskCounts(ctx, feature.ID)
	if err != nil {
		return nil, fmt.Errorf("task counts for feature %s: %w", feature.ID, err)
	}

	var events []Event

	flow := s.prog.ActiveFlow(status.ContainerFeature, feature.Tags)
	taskStatus := status.Normalize(string(task.Status))
	taskRole := s.prog.RoleForStatus(taskStatus, status.ContainerTask, task.Tags)

	// First task picking up work moves the feature off its entry status.
	if taskStatus == string(status.TaskInProgress) &&
		counts.InProgress == 1 &&
		flow != nil && string(feature.Status) == flow.First() {
		if next := s.suggestNext(ctx, feature.Status.String(), status.ContainerFeature, feature.Tags, feature.ID); next != "" {
			events = append(events, s.featureEvent(EventFirstTaskStarted, feature, next,
				fmt.Sprintf("first task started in feature %q", feature.Name)))
		}
	}

	// Every task finished (or cancelled) completes the feature.
	if taskRole.IsTerminal() && counts.Total > 0 && counts.Done() == counts.Total {
		if next := s.suggestNext(ctx, feature.Status.String(), status.ContainerFeature, feature.Tags, feature.ID); next != "" {
			events = append(events, s.featureEvent(EventAllTasksComplete, feature, next,
				fmt.Sprintf("all %d tasks in feature %q are finished", counts.Total, feature.Name)))
		}
	}

	if s.cfg.AutoCascade.RoleAggregation.Enabled && counts.Total > 0 {
		aggEvents, err := s.detectRoleAggregation(ctx, feature, counts.Total)
		if err != nil {
			return nil, err
		}
		events = append(events, aggEvents...)
	}

	return events, nil
}

// detectRoleAggregation evaluates the configured partial-progress rules
// against the feature's tasks, in rule order.
func (s *Service) detectRoleAggregation(ctx context.Context, feature *model.Feature, total int) ([]Event, error) {
	tasks, err := s.repos.FindTasksByFeature(ctx, feature.ID)
	if err != nil {
		return nil, fmt.Errorf("tasks for feature %s: %w", feature.ID, err)
	}

	var events []Event
	for _, rule := range s.cfg.AutoCascade.RoleAggregation.Rules {
		threshold := status.ParseRole(rule.RoleThreshold)
		target := status.Normalize(rule.TargetFeatureStatus)
		if string(feature.Status) == target {
			continue
		}
		reached := 0
		for _, t := range tasks {
			role := s.prog.RoleForStatus(string(t.Status), status.ContainerTask, t.Tags)
			if role.AtOrBeyond(threshold) {
				reached++
			}
		}
		ratio := float64(reached) / float64(total)
		if ratio < rule.Percentage {
			continue
		}
		reason := fmt.Sprintf("%d%% of tasks at role '%s' or beyond (threshold: %d%%)",
			int(math.Round(ratio*100)), threshold, int(math.Round(rule.Percentage*100)))
		events = append(events, s.featureEvent(EventRoleAggregation, feature, target, reason))
	}
	return events, nil
}

func (s *Service) detectFromFeature(ctx context.Context, featureID string) ([]Event, error) {
	feature, err := s.repos.GetFeature(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("load feature %s: %w", featureID, err)
	}
	if feature == nil || feature.ProjectID == nil {
		return nil, nil
	}

	flow := s.prog.ActiveFlow(status.ContainerFeature, feature.Tags)
	if flow == nil || !flow.IsTerminal(string(feature.Status)) {
		return nil, nil
	}

	project, err := s.repos.GetProject(ctx, *feature.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", *feature.ProjectID, err)
	}
	if project == nil || project.Status == status.ProjectCompleted {
		return nil, nil
	}
	counts, err := s.repos.GetFeatureCounts(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("feature counts for project %s: %w", project.ID, err)
	}
	if counts.Total == 0 || counts.Completed != counts.Total {
		return nil, nil
	}

	next := s.suggestNext(ctx, project.Status.String(), status.ContainerProject, project.Tags, project.ID)
	if next == "" {
		return nil, nil
	}
	projectFlow := s.prog.ActiveFlow(status.ContainerProject, project.Tags)
	flowName := ""
	if projectFlow != nil {
		flowName = projectFlow.Name
	}
	return []Event{{
		Event:           EventAllFeaturesComplete,
		TargetType:      status.ContainerProject,
		TargetID:        project.ID,
		TargetName:      project.Name,
		CurrentStatus:   string(project.Status),
		SuggestedStatus: next,
		Flow:            flowName,
		Automatic:       s.cfg.AutoCascade.Enabled,
		Reason:          fmt.Sprintf("all %d features in project %q are completed", counts.Total, project.Name),
	}}, nil
}

// suggestNext asks the progression service for the container's next
// status and returns it when it is ready and actually different.
func (s *Service) suggestNext(ctx context.Context, current string, ct status.ContainerType, tags []string, id string) string {
	rec, err := s.prog.NextStatus(ctx, current, ct, tags, id)
	if err != nil {
		s.logger.Warn("next-status lookup failed during detection",
			"container", id, "type", ct, "error", err)
		return ""
	}
	if rec.State != progression.Ready || rec.RecommendedStatus == status.Normalize(current) {
		return ""
	}
	return rec.RecommendedStatus
}

func (s *Service) featureEvent(event EventType, feature *model.Feature, suggested, reason string) Event {
	flowName := ""
	if flow := s.prog.ActiveFlow(status.ContainerFeature, feature.Tags); flow != nil {
		flowName = flow.Name
	}
	return Event{
		Event:           event,
		TargetType:      status.ContainerFeature,
		TargetID:        feature.ID,
		TargetName:      feature.Name,
		CurrentStatus:   string(feature.Status),
		SuggestedStatus: suggested,
		Flow:            flowName,
		Automatic:       s.cfg.AutoCascade.Enabled,
		Reason:          reason,
	}
}

// ApplyCascades detects and applies cascades for a container, recursing
// into each applied target. Failures inside one event never abort the
// others. Reaching maxDepth returns an empty result.
func (s *Service) ApplyCascades(ctx context.Context, containerID string, ct status.ContainerType, depth, maxDepth int) ([]Applied, error) {
	if depth >= maxDepth {
		s.logger.Warn("cascade depth limit reached",
			"container", containerID, "type", ct, "depth", depth, "max_depth", maxDepth)
		return nil, nil
	}

	events, err := s.DetectEvents(ctx, containerID, ct)
	if err != nil {
		return nil, err
	}

	applied := make([]Applied, 0, len(events))
	for _, event := range events {
		applied = append(applied, s.applyEvent(ctx, event, depth, maxDepth))
	}
	return applied, nil
}

// applyEvent runs one event through the re-read / validate / write /
// post-action sequence.
func (s *Service) applyEvent(ctx context.Context, event Event, depth, maxDepth int) Applied {
	out := Applied{Event: event}

	target, err := s.loadTarget(ctx, event.TargetType, event.TargetID)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if target == nil {
		out.Error = fmt.Sprintf("%s %s no longer exists", event.TargetType, event.TargetID)
		return out
	}

	current := status.Normalize(target.current())
	suggested := status.Normalize(event.SuggestedStatus)
	if current == suggested {
		out.Skipped = true
		out.Error = ""
		return out
	}

	noop, err := s.valid.ValidateTransition(ctx, current, suggested, event.TargetType, event.TargetID, target.tags())
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if noop {
		out.Skipped = true
		return out
	}

	if err := target.setStatus(suggested); err != nil {
		out.Error = err.Error()
		return out
	}
	if err := target.save(ctx, s.repos); err != nil {
		out.Error = fmt.Sprintf("write %s %s: %v", event.TargetType, event.TargetID, err)
		return out
	}
	out.Applied = true
	out.NewStatus = suggested
	s.logger.Info("cascade applied",
		"event", event.Event, "target", event.TargetID, "type", event.TargetType,
		"from", current, "to", suggested, "depth", depth)

	switch event.TargetType {
	case status.ContainerTask:
		if s.prog.RoleForStatus(suggested, status.ContainerTask, target.tags()).IsTerminal() {
			out.UnblockedTasks = s.FindNewlyUnblockedTasks(ctx, event.TargetID)
		}
	case status.ContainerFeature:
		cleanup, err := s.CleanupFeatureTasks(ctx, event.TargetID, suggested)
		if err != nil {
			s.logger.Warn("completion cleanup failed", "feature", event.TargetID, "error", err)
			out.Error = fmt.Sprintf("cleanup: %v", err)
		}
		out.Cleanup = cleanup
	}

	children, err := s.ApplyCascades(ctx, event.TargetID, event.TargetType, depth+1, maxDepth)
	if err != nil {
		s.logger.Warn("child cascade failed", "target", event.TargetID, "error", err)
	}
	out.ChildCascades = children
	return out
}

// FindNewlyUnblockedTasks lists downstream tasks whose whole blocker set
// became satisfied once the given task reached its threshold. Storage
// hiccups are logged and treated as "not unblocked".
func (s *Service) FindNewlyUnblockedTasks(ctx context.Context, completedTaskID string) []model.UnblockedTask {
	edges, err := s.repos.FindDependenciesForTask(ctx, completedTaskID)
	if err != nil {
		s.logger.Warn("unblock scan failed", "task", completedTaskID, "error", err)
		return nil
	}

	var out []model.UnblockedTask
	seen := map[string]bool{}
	for _, edge := range edges {
		blocker, blocked, ok := edge.Blocking()
		if !ok || blocker != completedTaskID || seen[blocked] {
			continue
		}
		seen[blocked] = true

		downstream, err := s.repos.GetTask(ctx, blocked)
		if err != nil {
			s.logger.Warn("unblock scan failed", "task", blocked, "error", err)
			continue
		}
		if downstream == nil {
			continue
		}
		if s.prog.RoleForStatus(string(downstream.Status), status.ContainerTask, downstream.Tags).IsTerminal() {
			continue
		}
		unmet, err := s.prog.UnmetBlockers(ctx, blocked)
		if err != nil {
			s.logger.Warn("unblock scan failed", "task", blocked, "error", err)
			continue
		}
		if len(unmet) == 0 {
			out = append(out, model.UnblockedTask{TaskID: downstream.ID, Title: downstream.Title})
		}
	}
	return out
}

// target wraps the re-read entity during one apply step.
type target struct {
	project *model.Project
	feature *model.Feature
	task    *model.Task
}

func (s *Service) loadTarget(ctx context.Context, ct status.ContainerType, id string) (*target, error) {
	switch ct {
	case status.ContainerProject:
		p, err := s.repos.GetProject(ctx, id)
		if err != nil || p == nil {
			return nil, err
		}
		return &target{project: p}, nil
	case status.ContainerFeature:
		f, err := s.repos.GetFeature(ctx, id)
		if err != nil || f == nil {
			return nil, err
		}
		return &target{feature: f}, nil
	case status.ContainerTask:
		t, err := s.repos.GetTask(ctx, id)
		if err != nil || t == nil {
			return nil, err
		}
		return &target{task: t}, nil
	default:
		return nil, fmt.Errorf("unknown container type %q", ct)
	}
}

func (t *target) current() string {
	switch {
	case t.project != nil:
		return string(t.project.Status)
	case t.feature != nil:
		return string(t.feature.Status)
	default:
		return string(t.task.Status)
	}
}

func (t *target) tags() []string {
	switch {
	case t.project != nil:
		return t.project.Tags
	case t.feature != nil:
		return t.feature.Tags
	default:
		return t.task.Tags
	}
}

func (t *target) setStatus(st string) error {
	switch {
	case t.project != nil:
		parsed, ok := status.ParseProjectStatus(st)
		if !ok {
			return fmt.Errorf("%q is not a project status", st)
		}
		t.project.Status = parsed
	case t.feature != nil:
		parsed, ok := status.ParseFeatureStatus(st)
		if !ok {
			return fmt.Errorf("%q is not a feature status", st)
		}
		t.feature.Status = parsed
	default:
		parsed, ok := status.ParseTaskStatus(st)
		if !ok {
			return fmt.Errorf("%q is not a task status", st)
		}
		t.task.Status = parsed
	}
	return nil
}

func (t *target) save(ctx context.Context, repos repo.Set) error {
	now := time.Now().UTC()
	switch {
	case t.project != nil:
		t.project.ModifiedAt = now
		return repos.UpdateProject(ctx, t.project)
	case t.feature != nil:
		t.feature.ModifiedAt = now
		return repos.UpdateFeature(ctx, t.feature)
	default:
		t.task.ModifiedAt = now
		return repos.UpdateTask(ctx, t.task)
	}
}
