package cascade

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

// CleanupResult reports what completion cleanup did for one feature.
type CleanupResult struct {
	Performed           bool     `json:"performed"`
	TasksDeleted        int      `json:"tasks_deleted"`
	TasksRetained       int      `json:"tasks_retained"`
	RetainedTaskIDs     []string `json:"retained_task_ids,omitempty"`
	SectionsDeleted     int      `json:"sections_deleted"`
	DependenciesDeleted int      `json:"dependencies_deleted"`
	Reason              string   `json:"reason,omitempty"`
}

// CleanupFeatureTasks deletes the verified work under a feature once it
// reaches a terminal status. Tasks flagged requires_verification or
// tagged per the configured keep patterns are retained. Returns nil
// when cleanup is disabled or the target status is not terminal.
func (s *Service) CleanupFeatureTasks(ctx context.Context, featureID, targetStatus string) (*CleanupResult, error) {
	if !s.cfg.CompletionCleanup.Enabled {
		return nil, nil
	}

	feature, err := s.repos.GetFeature(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("load feature %s: %w", featureID, err)
	}
	if feature == nil {
		return nil, nil
	}

	flow := s.prog.ActiveFlow(status.ContainerFeature, feature.Tags)
	if flow == nil || !flow.IsTerminal(status.Normalize(targetStatus)) {
		return nil, nil
	}

	tasks, err := s.repos.FindTasksByFeature(ctx, featureID)
	if err != nil {
		return nil, fmt.Errorf("tasks for feature %s: %w", featureID, err)
	}

	result := &CleanupResult{
		Performed: true,
		Reason:    fmt.Sprintf("feature %q reached %s", feature.Name, status.Normalize(targetStatus)),
	}

	// A feature that requires verification keeps all of its work.
	if feature.RequiresVerification {
		result.TasksRetained = len(tasks)
		for _, t := range tasks {
			result.RetainedTaskIDs = append(result.RetainedTaskIDs, t.ID)
		}
		result.Reason = fmt.Sprintf("feature %q requires verification; tasks retained", feature.Name)
		return result, nil
	}

	for _, t := range tasks {
		if t.RequiresVerification || s.matchesKeepTags(t.Tags) {
			result.TasksRetained++
			result.RetainedTaskIDs = append(result.RetainedTaskIDs, t.ID)
			continue
		}

		// Foreign keys require edges and sections to go before the task.
		deps, err := s.repos.DeleteDependenciesForTask(ctx, t.ID)
		if err != nil {
			return result, fmt.Errorf("delete dependencies of task %s: %w", t.ID, err)
		}
		result.DependenciesDeleted += deps

		sections, err := s.repos.DeleteSectionsForEntity(ctx, status.EntityTask, t.ID)
		if err != nil {
			return result, fmt.Errorf("delete sections of task %s: %w", t.ID, err)
		}
		result.SectionsDeleted += sections

		if err := s.repos.DeleteTask(ctx, t.ID); err != nil {
			return result, fmt.Errorf("delete task %s: %w", t.ID, err)
		}
		result.TasksDeleted++
	}

	s.logger.Info("completion cleanup finished",
		"feature", featureID, "deleted", result.TasksDeleted, "retained", result.TasksRetained)
	return result, nil
}

// matchesKeepTags reports whether any task tag matches any configured
// keep pattern. Patterns use doublestar globs.
func (s *Service) matchesKeepTags(tags []string) bool {
	for _, pattern := range s.cfg.CompletionCleanup.KeepTags {
		for _, tag := range tags {
			ok, err := doublestar.Match(pattern, tag)
			if err != nil {
				s.logger.Warn("invalid keep_tags pattern", "pattern", pattern, "error", err)
				break
			}
			if ok {
				return true
			}
		}
	}
	return false
}
