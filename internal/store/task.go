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

const taskColumns = "id, title, description, summary, status, priority, complexity, project_id, feature_id, requires_verification, tags, created_at, modified_at"

func scanTask(sc rowScanner) (*model.Task, error) {
	var t model.Task
	var projectID, featureID sql.NullString
	var verification int
	var tags, createdAt, modifiedAt string
	if err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.Summary, &t.Status, &t.Priority,
		&t.Complexity, &projectID, &featureID, &verification, &tags, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	t.ProjectID = strPtr(projectID)
	t.FeatureID = strPtr(featureID)
	t.RequiresVerification = verification != 0
	t.Tags = decodeTags(tags)
	t.CreatedAt = parseTime(createdAt)
	t.ModifiedAt = parseTime(modifiedAt)
	return &t, nil
}

// GetTask returns the task with the given id, or (nil, nil) when it does
// not exist.
func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.queryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// CreateTask inserts a new task.
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	_, err := s.exec(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, t.Summary, string(t.Status), string(t.Priority),
		t.Complexity, nullableStr(t.ProjectID), nullableStr(t.FeatureID),
		boolToInt(t.RequiresVerification), encodeTags(t.Tags),
		formatTime(t.CreatedAt), formatTime(t.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTask rewrites all mutable columns of an existing task.
func (s *Store) UpdateTask(ctx context.Context, t *model.Task) error {
	res, err := s.exec(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, summary = ?, status = ?, priority = ?,
		    complexity = ?, project_id = ?, feature_id = ?, requires_verification = ?,
		    tags = ?, modified_at = ?
		WHERE id = ?`,
		t.Title, t.Description, t.Summary, string(t.Status), string(t.Priority),
		t.Complexity, nullableStr(t.ProjectID), nullableStr(t.FeatureID),
		boolToInt(t.RequiresVerification), encodeTags(t.Tags),
		formatTime(t.ModifiedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("task", t.ID)
	}
	return nil
}

// DeleteTask removes a task row. Dependencies touching the task must be
// removed first.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("task", id)
	}
	return nil
}

// ListTasks returns tasks newest first. limit <= 0 returns all.
func (s *Store) ListTasks(ctx context.Context, limit int) ([]*model.Task, error) {
	q := "SELECT " + taskColumns + " FROM tasks ORDER BY created_at DESC, id"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return s.collectTasks(ctx, q, args...)
}

// FindTasksByFeature returns the feature's tasks oldest first.
func (s *Store) FindTasksByFeature(ctx context.Context, featureID string) ([]*model.Task, error) {
	return s.collectTasks(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE feature_id = ? ORDER BY created_at, id", featureID)
}

// FindTasksByProject returns the project's tasks oldest first, including
// tasks attached through a feature.
func (s *Store) FindTasksByProject(ctx context.Context, projectID string) ([]*model.Task, error) {
	return s.collectTasks(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE project_id = ?
		   OR feature_id IN (SELECT id FROM features WHERE project_id = ?)
		ORDER BY created_at, id`, projectID, projectID)
}

// FindTasksByStatus returns every task at the given status, oldest first.
func (s *Store) FindTasksByStatus(ctx context.Context, st status.TaskStatus) ([]*model.Task, error) {
	return s.collectTasks(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE status = ? ORDER BY created_at, id", string(st))
}

func (s *Store) collectTasks(ctx context.Context, q string, args ...any) ([]*model.Task, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
