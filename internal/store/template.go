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

const templateColumns = "id, name, description, target_entity_type, is_built_in, is_protected, is_enabled, tags, created_at, modified_at"

const templateSectionColumns = "id, template_id, title, usage_description, content_sample, content_format, ordinal, is_required, tags, created_at, modified_at"

func scanTemplate(sc rowScanner) (*model.Template, error) {
	var t model.Template
	var builtIn, protected, enabled int
	var tags, createdAt, modifiedAt string
	if err := sc.Scan(&t.ID, &t.Name, &t.Description, &t.TargetEntityType,
		&builtIn, &protected, &enabled, &tags, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	t.IsBuiltIn = builtIn != 0
	t.IsProtected = protected != 0
	t.IsEnabled = enabled != 0
	t.Tags = decodeTags(tags)
	t.CreatedAt = parseTime(createdAt)
	t.ModifiedAt = parseTime(modifiedAt)
	return &t, nil
}

func scanTemplateSection(sc rowScanner) (*model.TemplateSection, error) {
	var ts model.TemplateSection
	var required int
	var tags, createdAt, modifiedAt string
	if err := sc.Scan(&ts.ID, &ts.TemplateID, &ts.Title, &ts.UsageDescription, &ts.ContentSample,
		&ts.ContentFormat, &ts.Ordinal, &required, &tags, &createdAt, &modifiedAt); err != nil {
		return nil, err
	}
	ts.IsRequired = required != 0
	ts.Tags = decodeTags(tags)
	ts.CreatedAt = parseTime(createdAt)
	ts.ModifiedAt = parseTime(modifiedAt)
	return &ts, nil
}

// GetTemplate returns the template with the given id, or (nil, nil) when
// it does not exist.
func (s *Store) GetTemplate(ctx context.Context, id string) (*model.Template, error) {
	row := s.queryRow(ctx, "SELECT "+templateColumns+" FROM templates WHERE id = ?", id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", id, err)
	}
	return t, nil
}

// GetTemplateByName returns the template with the given name, or (nil,
// nil) when it does not exist.
func (s *Store) GetTemplateByName(ctx context.Context, name string) (*model.Template, error) {
	row := s.queryRow(ctx, "SELECT "+templateColumns+" FROM templates WHERE name = ?", name)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template %q: %w", name, err)
	}
	return t, nil
}

// ListTemplates returns templates for a target entity type, or all
// templates when target is empty. Disabled templates are excluded unless
// includeDisabled is set.
func (s *Store) ListTemplates(ctx context.Context, target status.EntityType, includeDisabled bool) ([]*model.Template, error) {
	q := "SELECT " + templateColumns + " FROM templates"
	var conds []string
	var args []any
	if target != "" {
		conds = append(conds, "target_entity_type = ?")
		args = append(args, string(target))
	}
	if !includeDisabled {
		conds = append(conds, "is_enabled = 1")
	}
	for i, c := range conds {
		if i == 0 {
			q += " WHERE " + c
		} else {
			q += " AND " + c
		}
	}
	q += " ORDER BY name"

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var templates []*model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// CreateTemplate inserts a new template. Template names are unique.
func (s *Store) CreateTemplate(ctx context.Context, t *model.Template) error {
	existing, err := s.GetTemplateByName(ctx, t.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return taskerr.NewDuplicate("template", fmt.Sprintf("a template named %q already exists", t.Name))
	}

	_, err = s.exec(ctx, `
		INSERT INTO templates (`+templateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Description, string(t.TargetEntityType),
		boolToInt(t.IsBuiltIn), boolToInt(t.IsProtected), boolToInt(t.IsEnabled),
		encodeTags(t.Tags), formatTime(t.CreatedAt), formatTime(t.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create template %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTemplate rewrites all mutable columns of an existing template.
// Protection is enforced at the tool layer; the store writes what it is
// given.
func (s *Store) UpdateTemplate(ctx context.Context, t *model.Template) error {
	res, err := s.exec(ctx, `
		UPDATE templates
		SET name = ?, description = ?, target_entity_type = ?, is_built_in = ?,
		    is_protected = ?, is_enabled = ?, tags = ?, modified_at = ?
		WHERE id = ?`,
		t.Name, t.Description, string(t.TargetEntityType), boolToInt(t.IsBuiltIn),
		boolToInt(t.IsProtected), boolToInt(t.IsEnabled), encodeTags(t.Tags),
		formatTime(t.ModifiedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update template %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("template", t.ID)
	}
	return nil
}

// DeleteTemplate removes a template and, through the FK cascade, its
// section definitions.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	res, err := s.exec(ctx, "DELETE FROM templates WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete template %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskerr.NewNotFound("template", id)
	}
	return nil
}

// GetTemplateSections returns a template's section definitions in ordinal
// order.
func (s *Store) GetTemplateSections(ctx context.Context, templateID string) ([]*model.TemplateSection, error) {
	rows, err := s.query(ctx, `
		SELECT `+templateSectionColumns+` FROM template_sections
		WHERE template_id = ?
		ORDER BY ordinal, created_at, id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("query template sections for %s: %w", templateID, err)
	}
	defer func() { _ = rows.Close() }()

	var sections []*model.TemplateSection
	for rows.Next() {
		ts, err := scanTemplateSection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template section: %w", err)
		}
		sections = append(sections, ts)
	}
	return sections, rows.Err()
}

// CreateTemplateSection inserts a section definition.
func (s *Store) CreateTemplateSection(ctx context.Context, ts *model.TemplateSection) error {
	_, err := s.exec(ctx, `
		INSERT INTO template_sections (`+templateSectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.ID, ts.TemplateID, ts.Title, ts.UsageDescription, ts.ContentSample,
		string(ts.ContentFormat), ts.Ordinal, boolToInt(ts.IsRequired),
		encodeTags(ts.Tags), formatTime(ts.CreatedAt), formatTime(ts.ModifiedAt))
	if err != nil {
		return fmt.Errorf("create template section %s: %w", ts.ID, err)
	}
	return nil
}
