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

const featureColumns = "id, name, description, summary, status, priority, project_id, requires_verification, tags, created_at, modified_at"

func scanFeature(sc rowScanner) (*model.Feature, error) {
	var f model.Feature
	var projectID sql.NullString
	var verification int
	var tags, createdAt, modifiedAt string
	if err := sc.Scan(&f.ID, &f.Name, &f.Description, &f.Summary, &f.Status, &f.Priority,
		&projectID, &verification, &tags, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	f.ProjectID = strPtr(projectID)
	f.RequiresVerification = verification != 0
	f.Tags = decodeTags(tags)
	f.CreatedAt = parseTime(createdAt)
	f.ModifiedAt = parseTime(modifiedAt)
	return &f, nil
}

// GetFeature returns the feature with the given id, or (nil, nil) when it
// does not exist.
func (s *Store) GetFeature(ctx context.Context, id string) (*model.Feature, error) {
	row := s.queryRow(ctx, "SELECT "+featureColumns+" FROM features WHERE id = ?", id)
	f, err := scanFeature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feature %s: %w", id, err)
	}
	return f, nil
}

// CreateFeature inserts a new feature.
func (s *Store) CreateFeature(ctx context.Context, f *model.Feature) error {
	_, err := s.exec(ctx, `
		INSERT INTO features (`+featureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.Description, f.Summary, string(f.Status), string(f.Priority),
		nullableStr(f.ProjectID), boolToInt(f.RequiresVerification), encodeTags(f.Tags),
		formatTime(f.CreatedAt), formatTime(f.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create feature %s: %w", f.ID, err)
	}
	return nil
}

// UpdateFeature rewrites all mutable columns of an existing feature.
func (s *Store) UpdateFeature(ctx context.Context, f *model.Feature) error {
	res, err := s.exec(ctx, `
		UPDATE features
		SET name = ?, description = ?, summary = ?, status = ?, priority = ?,
		    project_id = ?, requires_verification = ?, tags = ?, modified_at = ?
		WHERE id = ?`,
		f.Name, f.Description, f.Summary, string(f.Status), string(f.Priority),
		nullableStr(f.ProjectID), boolToInt(f.RequiresVerification), encodeTags(f.Tags),
		formatTime(f.ModifiedAt), f.ID)
	if err != nil {
		return fmt.Errorf("update feature %s: %w", f.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("feature", f.ID)
	}
	return nil
}

// DeleteFeature removes a feature row.
func (s *Store) DeleteFeature(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM features WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete feature %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("feature", id)
	}
	return nil
}

// ListFeatures returns features newest first. limit <= 0 returns all.
func (s *Store) ListFeatures(ctx context.Context, limit int) ([]*model.Feature, error) {
	q := "SELECT " + featureColumns + " FROM features ORDER BY created_at DESC, id"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	return s.collectFeatures(ctx, q, args...)
}

// FindFeaturesByProject returns the project's features oldest first.
func (s *Store) FindFeaturesByProject(ctx context.Context, projectID string) ([]*model.Feature, error) {
	return s.collectFeatures(ctx,
		"SELECT "+featureColumns+" FROM features WHERE project_id = ? ORDER BY created_at, id", projectID)
}

func (s *Store) collectFeatures(ctx context.Context, q string, args ...any) ([]*model.Feature, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var features []*model.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// GetTaskCounts returns the per-status task rollup for a feature.
func (s *Store) GetTaskCounts(ctx context.Context, featureID string) (model.TaskCounts, error) {
	var counts model.TaskCounts

	rows, err := s.query(ctx, `
		SELECT status, COUNT(*) FROM tasks WHERE feature_id = ? GROUP BY status`, featureID)
	if err != nil {
		return counts, fmt.Errorf("count tasks for feature %s: %w", featureID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return counts, fmt.Errorf("scan task count: %w", err)
		}
		counts.Total += n
		switch status.TaskStatus(st) {
		case status.TaskPending:
			counts.Pending = n
		case status.TaskInProgress:
			counts.InProgress = n
		case status.TaskInReview:
			counts.InReview = n
		case status.TaskCompleted:
			counts.Completed = n
		case status.TaskCancelled:
			counts.Cancelled = n
		case status.TaskDeferred:
			counts.Deferred = n
		}
	}
	return counts, rows.Err()
}
