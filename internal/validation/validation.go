// Package validation enforces status legality and transition rules for
// the container hierarchy: values must parse, moves must follow the
// active flow, and role prerequisites must hold before an advance.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/taskorchestrator/taskorchestrator/internal/progression"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

// Sentinel errors. Reasons wrap these so callers can classify failures
// while the tool layer surfaces the message text verbatim.
var (
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrBlocked           = errors.New("prerequisites not met")
)

// Validator answers whether status values and transitions are legal.
type Validator struct {
	prog *progression.Service
}

// NewValidator builds a validator over the progression service, which
// supplies flow resolution and the role prerequisite gates.
func NewValidator(prog *progression.Service) *Validator {
	return &Validator{prog: prog}
}

// ValidateStatus checks that the status parses into the container's
// enumeration after normalization.
func (v *Validator) ValidateStatus(st string, ct status.ContainerType) error {
	if status.IsValidStatus(st, ct) {
		return nil
	}
	return fmt.Errorf("%w: %q is not a valid %s status; allowed: %s",
		ErrInvalidStatus, st, ct, strings.Join(v.AllowedStatuses(ct), ", "))
}

// AllowedStatuses returns the canonical status values for a container type.
func (v *Validator) AllowedStatuses(ct status.ContainerType) []string {
	return status.ValidStatuses(ct)
}

// ValidateTransition checks a move from current to next for one
// container. noop reports a same-status transition, which is valid but
// needs no write. A nil error with noop=false means the move may proceed.
func (v *Validator) ValidateTransition(ctx context.Context, current, next string, ct status.ContainerType, containerID string, tags []string) (noop bool, err error) {
	if err := v.ValidateStatus(next, ct); err != nil {
		return false, err
	}

	cur := status.Normalize(current)
	dst := status.Normalize(next)
	if cur == dst {
		return true, nil
	}

	flow := v.prog.ActiveFlow(ct, tags)
	if flow == nil {
		return false, fmt.Errorf("%w: no flow registered for container type %q", ErrInvalidTransition, ct)
	}

	if err := checkPath(flow, cur, dst, ct, containerID); err != nil {
		return false, err
	}

	// Prerequisites gate only moves that raise the role: parking or
	// reopening work is never held up by blockers.
	if flow.RoleFor(dst).Order() <= flow.RoleFor(cur).Order() {
		return false, nil
	}
	gate, err := v.prog.AdvanceGate(ctx, flow, dst, ct, containerID)
	if err != nil {
		return false, err
	}
	if gate != nil {
		return false, fmt.Errorf("%w: %s", ErrBlocked, gate.Reason)
	}
	return false, nil
}

// checkPath enforces the structural rules: forward moves go step by
// step, terminal statuses are reachable from anywhere, and backward
// moves stop at the immediate predecessor.
func checkPath(flow *status.Flow, cur, dst string, ct status.ContainerType, containerID string) error {
	if flow.IsTerminal(dst) {
		return nil
	}
	ci := flow.IndexOf(cur)
	di := flow.IndexOf(dst)
	switch {
	case di < 0:
		return fmt.Errorf("%w: %s %s cannot move to %q, which is not part of flow %q",
			ErrInvalidTransition, ct, containerID, dst, flow.Name)
	case ci < 0:
		return fmt.Errorf("%w: %s %s cannot move from %q back into flow %q; only terminal statuses are reachable",
			ErrInvalidTransition, ct, containerID, cur, flow.Name)
	case di == ci+1 || di == ci-1:
		return nil
	case di > ci:
		next, _ := flow.Next(cur)
		return fmt.Errorf("%w: %s %s cannot skip from %q to %q in flow %q; the next status is %q",
			ErrInvalidTransition, ct, containerID, cur, dst, flow.Name, next)
	default:
		return fmt.Errorf("%w: %s %s cannot move backward from %q to %q; only the immediate predecessor %q is allowed",
			ErrInvalidTransition, ct, containerID, cur, dst, flow.Sequence[ci-1])
	}
}
