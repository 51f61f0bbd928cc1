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

const projectColumns = "id, name, description, summary, status, tags, created_at, modified_at"

func scanProject(sc rowScanner) (*model.Project, error) {
	var p model.Project
	var tags, createdAt, modifiedAt string
	if err := sc.Scan(&p.ID, &p.Name, &p.Description, &p.Summary, &p.Status, &tags, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	p.Tags = decodeTags(tags)
	p.CreatedAt = parseTime(createdAt)
	p.ModifiedAt = parseTime(modifiedAt)
	return &p, nil
}

// GetProject returns the project with the given id, or (nil, nil) when it
// does not exist.
func (s *Store) GetProject(ctx context.Context, id string) (*model.Project, error) {
	row := s.queryRow(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// CreateProject inserts a new project.
func (s *Store) CreateProject(ctx context.Context, p *model.Project) error {
	_, err := s.exec(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Summary, string(p.Status), encodeTags(p.Tags),
		formatTime(p.CreatedAt), formatTime(p.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.ID, err)
	}
	return nil
}

// UpdateProject rewrites all mutable columns of an existing project.
func (s *Store) UpdateProject(ctx context.Context, p *model.Project) error {
	res, err := s.exec(ctx, `
		UPDATE projects
		SET name = ?, description = ?, summary = ?, status = ?, tags = ?, modified_at = ?
		WHERE id = ?`,
		p.Name, p.Description, p.Summary, string(p.Status), encodeTags(p.Tags),
		formatTime(p.ModifiedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("project", p.ID)
	}
	return nil
}

// DeleteProject removes a project row. Children must be removed first;
// foreign keys reject orphaning.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("project", id)
	}
	return nil
}

// ListProjects returns projects newest first. limit <= 0 returns all.
func (s *Store) ListProjects(ctx context.Context, limit int) ([]*model.Project, error) {
	q := "SELECT " + projectColumns + " FROM projects ORDER BY created_at DESC, id"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetFeatureCounts returns the per-status feature rollup for a project.
func (s *Store) GetFeatureCounts(ctx context.Context, projectID string) (model.FeatureCounts, error) {
	var counts model.FeatureCounts

	rows, err := s.query(ctx, `
		SELECT status, COUNT(*) FROM features WHERE project_id = ? GROUP BY status`, projectID)
	if err != nil {
		return counts, fmt.Errorf("count features for project %s: %w", projectID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return counts, fmt.Errorf("scan feature count: %w", err)
		}
		counts.Total += n
		switch status.FeatureStatus(st) {
		case status.FeaturePlanning:
			counts.Planning = n
		case status.FeatureInDevelopment:
			counts.InDevelopment = n
		case status.FeatureInReview:
			counts.InReview = n
		case status.FeatureCompleted:
			counts.Completed = n
		case status.FeatureArchived:
			counts.Archived = n
		}
	}
	return counts, rows.Err()
}
