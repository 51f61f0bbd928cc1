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

const sectionColumns = "id, entity_type, entity_id, title, usage_description, content, content_format, ordinal, tags, created_at, modified_at"

func scanSection(sc rowScanner) (*model.Section, error) {
	var sec model.Section
	var tags, createdAt, modifiedAt string
	if err := sc.Scan(&sec.ID, &sec.EntityType, &sec.EntityID, &sec.Title, &sec.UsageDescription,
		&sec.Content, &sec.ContentFormat, &sec.Ordinal, &tags, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	sec.Tags = decodeTags(tags)
	sec.CreatedAt = parseTime(createdAt)
	sec.ModifiedAt = parseTime(modifiedAt)
	return &sec, nil
}

// GetSection returns the section with the given id, or (nil, nil) when it
// does not exist.
func (s *Store) GetSection(ctx context.Context, id string) (*model.Section, error) {
	row := s.queryRow(ctx, "SELECT "+sectionColumns+" FROM sections WHERE id = ?", id)
	sec, err := scanSection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get section %s: %w", id, err)
	}
	return sec, nil
}

// GetSectionsForEntity returns an entity's sections in ordinal order.
func (s *Store) GetSectionsForEntity(ctx context.Context, entityType status.EntityType, entityID string) ([]*model.Section, error) {
	rows, err := s.query(ctx, `
		SELECT `+sectionColumns+` FROM sections
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY ordinal, created_at, id`, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query sections for %s %s: %w", entityType, entityID, err)
	}
	defer func() { _ = rows.Close() }()

	var sections []*model.Section
	for rows.Next() {
		sec, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		sections = append(sections, sec)
	}
	return sections, rows.Err()
}

// AddSection inserts a new section.
func (s *Store) AddSection(ctx context.Context, sec *model.Section) error {
	_, err := s.exec(ctx, `
		INSERT INTO sections (`+sectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sec.ID, string(sec.EntityType), sec.EntityID, sec.Title, sec.UsageDescription,
		sec.Content, string(sec.ContentFormat), sec.Ordinal, encodeTags(sec.Tags),
		formatTime(sec.CreatedAt), formatTime(sec.ModifiedAt))
	if err != nil {
		return fmt.Errorf("add section %s: %w", sec.ID, err)
	}
	return nil
}

// UpdateSection rewrites all mutable columns of an existing section.
func (s *Store) UpdateSection(ctx context.Context, sec *model.Section) error {
	res, err := s.exec(ctx, `
		UPDATE sections
		SET title = ?, usage_description = ?, content = ?, content_format = ?,
		    ordinal = ?, tags = ?, modified_at = ?
		WHERE id = ?`,
		sec.Title, sec.UsageDescription, sec.Content, string(sec.ContentFormat),
		sec.Ordinal, encodeTags(sec.Tags), formatTime(sec.ModifiedAt), sec.ID)
	if err != nil {
		return fmt.Errorf("update section %s: %w", sec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("section", sec.ID)
	}
	return nil
}

// DeleteSection removes a section row.
func (s *Store) DeleteSection(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM sections WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete section %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("section", id)
	}
	return nil
}

// DeleteSectionsForEntity removes every section attached to the entity.
func (s *Store) DeleteSectionsForEntity(ctx context.Context, entityType status.EntityType, entityID string) (int, error) {
	res, err := s.exec(ctx,
		"DELETE FROM sections WHERE entity_type = ? AND entity_id = ?", string(entityType), entityID)
	if err != nil {
		return 0, fmt.Errorf("delete sections for %s %s: %w", entityType, entityID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
