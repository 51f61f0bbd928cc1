package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskorchestrator/taskorchestrator/internal/model"
	"github.com/taskorchestrator/taskorchestrator/internal/status"
	"github.com/taskorchestrator/taskorchestrator/internal/taskerr"
)

const dependencyColumns = "id, from_task_id, to_task_id, type, unblock_at, created_at"

func scanDependency(sc rowScanner) (*model.Dependency, error) {
	var d model.Dependency
	var unblockAt sql.NullString
	var createdAt string
	if err := sc.Scan(&d.ID, &d.FromTaskID, &d.ToTaskID, &d.Type, &unblockAt, &createdAt); err != nil {
		return nil, err
	}
	if unblockAt.Valid && unblockAt.String != "" {
		r := status.Role(unblockAt.String)
		d.UnblockAt = &r
	}
	d.CreatedAt = parseTime(createdAt)
	return &d, nil
}

// CreateDependency inserts a new edge. Self-edges are rejected, and an
// edge with the same (from, to, type) triple as an existing one is a
// DUPLICATE_RESOURCE.
func (s *Store) CreateDependency(ctx context.Context, d *model.Dependency) error {
	if d.FromTaskID == d.ToTaskID {
		return taskerr.NewValidation("invalid dependency", "a task cannot depend on itself")
	}

	var n int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM dependencies
		WHERE from_task_id = ? AND to_task_id = ? AND type = ?`,
		d.FromTaskID, d.ToTaskID, string(d.Type)).Scan(&n)
	if err != nil {
		return fmt.Errorf("check dependency: %w", err)
	}
	if n > 0 {
		return taskerr.NewDuplicate("dependency",
			fmt.Sprintf("%s edge from %s to %s already exists", d.Type, d.FromTaskID, d.ToTaskID))
	}

	var unblockAt any
	if d.UnblockAt != nil && *d.UnblockAt != "" {
		unblockAt = string(*d.UnblockAt)
	}
	_, err = s.exec(ctx, `
		INSERT INTO dependencies (`+dependencyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.FromTaskID, d.ToTaskID, string(d.Type), unblockAt, formatTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("create dependency %s: %w", d.ID, err)
	}
	return nil
}

// GetDependency returns the edge with the given id, or (nil, nil) when it
// does not exist.
func (s *Store) GetDependency(ctx context.Context, id string) (*model.Dependency, error) {
	row := s.queryRow(ctx, "SELECT "+dependencyColumns+" FROM dependencies WHERE id = ?", id)
	d, err := scanDependency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dependency %s: %w", id, err)
	}
	return d, nil
}

// ListDependencies returns every edge, oldest first.
func (s *Store) ListDependencies(ctx context.Context) ([]*model.Dependency, error) {
	return s.collectDependencies(ctx,
		"SELECT "+dependencyColumns+" FROM dependencies ORDER BY created_at, id")
}

// FindDependenciesFrom returns edges originating at a task.
func (s *Store) FindDependenciesFrom(ctx context.Context, fromTaskID string) ([]*model.Dependency, error) {
	return s.collectDependencies(ctx,
		"SELECT "+dependencyColumns+" FROM dependencies WHERE from_task_id = ? ORDER BY created_at, id", fromTaskID)
}

// FindDependenciesTo returns edges pointing at a task.
func (s *Store) FindDependenciesTo(ctx context.Context, toTaskID string) ([]*model.Dependency, error) {
	return s.collectDependencies(ctx,
		"SELECT "+dependencyColumns+" FROM dependencies WHERE to_task_id = ? ORDER BY created_at, id", toTaskID)
}

// FindDependenciesForTask returns edges touching the task on either end.
func (s *Store) FindDependenciesForTask(ctx context.Context, taskID string) ([]*model.Dependency, error) {
	return s.collectDependencies(ctx, `
		SELECT `+dependencyColumns+` FROM dependencies
		WHERE from_task_id = ? OR to_task_id = ?
		ORDER BY created_at, id`, taskID, taskID)
}

// DeleteDependency removes a single edge.
func (s *Store) DeleteDependency(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM dependencies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete dependency %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("dependency", id)
	}
	return nil
}

// DeleteDependenciesForTask removes all edges touching the task.
func (s *Store) DeleteDependenciesForTask(ctx context.Context, taskID string) (int, error) {
	res, err := s.exec(ctx,
		"DELETE FROM dependencies WHERE from_task_id = ? OR to_task_id = ?", taskID, taskID)
	if err != nil {
		return 0, fmt.Errorf("delete dependencies for task %s: %w", taskID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) collectDependencies(ctx context.Context, q string, args ...any) ([]*model.Dependency, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []*model.Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
