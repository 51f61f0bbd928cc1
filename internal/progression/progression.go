// Package progression resolves the active flow for a container and
// recommends the next status along it. It also owns the role-based
// prerequisite checks (unmet blockers, child rollups) that transition
// validation and cascade detection share.
package progression

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/repo"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

// Service answers flow and role questions for containers.
type Service struct {
	flows    *status.FlowSet
	projects repo.Projects
	features repo.Features
	tasks    repo.Tasks
	deps     repo.Dependencies
}

// NewService builds a progression service over the given flow registry
// and repositories.
func NewService(flows *status.FlowSet, projects repo.Projects, features repo.Features, tasks repo.Tasks, deps repo.Dependencies) *Service {
	return &Service{
		flows:    flows,
		projects: projects,
		features: features,
		tasks:    tasks,
		deps:     deps,
	}
}

// FlowPath describes the path a container progresses through.
type FlowPath struct {
	FlowSequence     []string `json:"flow_sequence"`
	TerminalStatuses []string `json:"terminal_statuses"`
	ActiveFlow       string   `json:"active_flow"`
}

// FlowPath returns the flow selected by the container's tags. ok is
// false when no flow is registered for the container type.
func (s *Service) FlowPath(ct status.ContainerType, tags []string) (FlowPath, bool) {
	flow := s.flows.Select(ct, tags)
	if flow == nil {
		return FlowPath{}, false
	}
	return FlowPath{
		FlowSequence:     append([]string(nil), flow.Sequence...),
		TerminalStatuses: append([]string(nil), flow.TerminalStatuses...),
		ActiveFlow:       flow.Name,
	}, true
}

// ActiveFlow returns the flow selected by the container's tags, or nil.
func (s *Service) ActiveFlow(ct status.ContainerType, tags []string) *status.Flow {
	return s.flows.Select(ct, tags)
}

// RecommendationState classifies a next-status recommendation.
type RecommendationState string

const (
	Ready      RecommendationState = "ready"
	Blocked    RecommendationState = "blocked"
	AtTerminal RecommendationState = "at-terminal"
	NoFlow     RecommendationState = "no-flow"
)

// Recommendation is the answer to "what should this container do next".
type Recommendation struct {
	State             RecommendationState `json:"state"`
	RecommendedStatus string              `json:"recommended_status,omitempty"`
	ActiveFlow        string              `json:"active_flow,omitempty"`
	Role              status.Role         `json:"role,omitempty"`
	Reason            string              `json:"reason,omitempty"`
	Blockers          []model.BlockerInfo `json:"blockers,omitempty"`
}

// NextStatus recommends the successor of current in the container's
// active flow. The returned error covers storage failures only; flow
// and prerequisite outcomes are expressed through the recommendation.
func (s *Service) NextStatus(ctx context.Context, current string, ct status.ContainerType, tags []string, containerID string) (Recommendation, error) {
	flow := s.flows.Select(ct, tags)
	if flow == nil {
		return Recommendation{
			State:  NoFlow,
			Reason: fmt.Sprintf("no flow registered for container type %q", ct),
		}, nil
	}

	cur := status.Normalize(current)
	if flow.IsTerminal(cur) {
		return Recommendation{
			State:      AtTerminal,
			ActiveFlow: flow.Name,
			Reason:     fmt.Sprintf("status %q is terminal in flow %q", cur, flow.Name),
		}, nil
	}

	next, ok := flow.Next(cur)
	if !ok {
		if flow.IndexOf(cur) < 0 {
			return Recommendation{
				State:      NoFlow,
				ActiveFlow: flow.Name,
				Reason:     fmt.Sprintf("status %q is not part of flow %q", cur, flow.Name),
			}, nil
		}
		return Recommendation{
			State:      AtTerminal,
			ActiveFlow: flow.Name,
			Reason:     fmt.Sprintf("status %q is the end of flow %q", cur, flow.Name),
		}, nil
	}

	// Prerequisites gate only moves that raise the role.
	if flow.RoleFor(next).Order() > flow.RoleFor(cur).Order() {
		blocked, err := s.AdvanceGate(ctx, flow, next, ct, containerID)
		if err != nil {
			return Recommendation{}, err
		}
		if blocked != nil {
			blocked.ActiveFlow = flow.Name
			return *blocked, nil
		}
	}

	return Recommendation{
		State:             Ready,
		RecommendedStatus: next,
		ActiveFlow:        flow.Name,
		Role:              flow.RoleFor(next),
	}, nil
}

// AdvanceGate evaluates the prerequisite gates for moving a container to
// next: unmet blockers for tasks, open children for features and
// projects headed to a terminal status. A nil recommendation means the
// move is clear; the error covers storage failures only.
func (s *Service) AdvanceGate(ctx context.Context, flow *status.Flow, next string, ct status.ContainerType, containerID string) (*Recommendation, error) {
	switch ct {
	case status.ContainerTask:
		blockers, err := s.UnmetBlockers(ctx, containerID)
		if err != nil {
			return nil, err
		}
		if len(blockers) > 0 {
			return &Recommendation{
				State:    Blocked,
				Reason:   blockedByReason(containerID, blockers),
				Blockers: blockers,
			}, nil
		}

	case status.ContainerFeature:
		if !flow.RoleFor(next).IsTerminal() {
			return nil, nil
		}
		counts, err := s.features.GetTaskCounts(ctx, containerID)
		if err != nil {
			return nil, fmt.Errorf("task counts for feature %s: %w", containerID, err)
		}
		if open := counts.Total - counts.Done(); open > 0 {
			return &Recommendation{
				State:  Blocked,
				Reason: fmt.Sprintf("feature %s has %d of %d tasks not finished", containerID, open, counts.Total),
			}, nil
		}

	case status.ContainerProject:
		if !flow.RoleFor(next).IsTerminal() {
			return nil, nil
		}
		counts, err := s.projects.GetFeatureCounts(ctx, containerID)
		if err != nil {
			return nil, fmt.Errorf("feature counts for project %s: %w", containerID, err)
		}
		if open := counts.Total - counts.Completed - counts.Archived; open > 0 {
			return &Recommendation{
				State:  Blocked,
				Reason: fmt.Sprintf("project %s has %d of %d features not finished", containerID, open, counts.Total),
			}, nil
		}
	}
	return nil, nil
}

func blockedByReason(taskID string, blockers []model.BlockerInfo) string {
	parts := make([]string, len(blockers))
	for i, b := range blockers {
		parts[i] = fmt.Sprintf("%s (%s)", b.ID, b.Status)
	}
	return fmt.Sprintf("task %s is blocked by %d unfinished dependencies: %s",
		taskID, len(blockers), strings.Join(parts, ", "))
}

// RoleForStatus returns the role of a status under the container's
// active flow, falling back to the default mapping when no flow matches.
func (s *Service) RoleForStatus(st string, ct status.ContainerType, tags []string) status.Role {
	if flow := s.flows.Select(ct, tags); flow != nil {
		return flow.RoleFor(st)
	}
	return status.DefaultRoleForStatus(st)
}

// RoleAtOrBeyond reports whether role has progressed at least as far as
// threshold in the lattice.
func (s *Service) RoleAtOrBeyond(role, threshold status.Role) bool {
	return role.AtOrBeyond(threshold)
}

// UnmetBlockers returns the blocking tasks that still gate the given
// task. An edge is satisfied once its blocker's role reaches the edge's
// unblock threshold; blockers that no longer exist are ignored.
func (s *Service) UnmetBlockers(ctx context.Context, taskID string) ([]model.BlockerInfo, error) {
	edges, err := s.deps.FindDependenciesForTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("dependencies for task %s: %w", taskID, err)
	}

	var unmet []model.BlockerInfo
	seen := map[string]bool{}
	for _, edge := range edges {
		blockerID, blockedID, ok := edge.Blocking()
		if !ok || blockedID != taskID || seen[blockerID] {
			continue
		}
		blocker, err := s.tasks.GetTask(ctx, blockerID)
		if err != nil {
			return nil, fmt.Errorf("blocker task %s: %w", blockerID, err)
		}
		if blocker == nil {
			continue
		}
		role := s.RoleForStatus(string(blocker.Status), status.ContainerTask, blocker.Tags)
		if role.AtOrBeyond(edge.EffectiveUnblockRole()) {
			continue
		}
		seen[blockerID] = true
		unmet = append(unmet, model.BlockerInfo{
			ID:     blocker.ID,
			Title:  blocker.Title,
			Status: blocker.Status,
		})
	}
	return unmet, nil
}
