package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskorchestrator/taskorchestrator/internal/status"
)

// builtinSection is one section definition of a built-in template.
type builtinSection struct {
	title    string
	usage    string
	sample   string
	format   status.ContentFormat
	required bool
}

// builtinTemplate describes one entry of the shipped template catalog.
type builtinTemplate struct {
	name        string
	description string
	target      status.EntityType
	sections    []builtinSection
}

var builtinTemplates = []builtinTemplate{
	{
		name:        "Feature Specification",
		description: "Structured specification for a new feature: goals, scope, and acceptance criteria.",
		target:      status.EntityFeature,
		sections: []builtinSection{
			{
				title:    "Overview",
				usage:    "One or two paragraphs describing what the feature does and who needs it.",
				sample:   "## Overview\n\nDescribe the feature and the problem it solves.",
				format:   status.FormatMarkdown,
				required: true,
			},
			{
				title:    "Requirements",
				usage:    "Bullet list of functional requirements. Keep each testable.",
				sample:   "## Requirements\n\n- [ ] Requirement 1\n- [ ] Requirement 2",
				format:   status.FormatMarkdown,
				required: true,
			},
			{
				title:    "Out of Scope",
				usage:    "Explicitly excluded behavior, to keep reviews focused.",
				sample:   "## Out of Scope\n\n- Item 1",
				format:   status.FormatMarkdown,
				required: false,
			},
			{
				title:    "Acceptance Criteria",
				usage:    "Observable conditions under which the feature is done.",
				sample:   "## Acceptance Criteria\n\n1. Given ..., when ..., then ...",
				format:   status.FormatMarkdown,
				required: true,
			},
		},
	},
	{
		name:        "Task Implementation",
		description: "Implementation notes for a task: approach, affected areas, test plan.",
		target:      status.EntityTask,
		sections: []builtinSection{
			{
				title:    "Approach",
				usage:    "How the task will be implemented, including alternatives considered.",
				sample:   "## Approach\n\nOutline the implementation approach.",
				format:   status.FormatMarkdown,
				required: true,
			},
			{
				title:    "Affected Areas",
				usage:    "Modules, files, or services this task touches.",
				sample:   "## Affected Areas\n\n- module/path",
				format:   status.FormatMarkdown,
				required: false,
			},
			{
				title:    "Test Plan",
				usage:    "How the change will be verified.",
				sample:   "## Test Plan\n\n- Unit: ...\n- Integration: ...",
				format:   status.FormatMarkdown,
				required: true,
			},
		},
	},
	{
		name:        "Bug Report",
		description: "Reproduction-first bug write-up: observed vs expected, steps, environment.",
		target:      status.EntityTask,
		sections: []builtinSection{
			{
				title:    "Observed Behavior",
				usage:    "What actually happens, with exact error output where available.",
				sample:   "## Observed Behavior\n\nDescribe what happens.",
				format:   status.FormatMarkdown,
				required: true,
			},
			{
				title:    "Expected Behavior",
				usage:    "What should happen instead.",
				sample:   "## Expected Behavior\n\nDescribe the correct behavior.",
				format:   status.FormatMarkdown,
				required: true,
			},
			{
				title:    "Steps to Reproduce",
				usage:    "Minimal numbered steps from a clean state.",
				sample:   "## Steps to Reproduce\n\n1. ...\n2. ...",
				format:   status.FormatMarkdown,
				required: true,
			},
			{
				title:    "Environment",
				usage:    "Version, platform, and configuration where the bug occurs.",
				sample:   "## Environment\n\n- Version:\n- Platform:",
				format:   status.FormatMarkdown,
				required: false,
			},
		},
	},
}

// builtinID derives a stable UUID from a catalog key so reseeding is
// idempotent across databases.
func builtinID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("taskorchestrator/"+key)).String()
}

// seedBuiltinTemplates inserts the shipped catalog. Existing rows are left
// untouched, so user edits to non-protected fields survive reopening.
func (s *Store) seedBuiltinTemplates(ctx context.Context) error {
	now := formatTime(time.Now().UTC())

	for _, bt := range builtinTemplates {
		id := builtinID("template/" + bt.name)
		res, err := s.exec(ctx, `
			INSERT INTO templates (id, name, description, target_entity_type,
				is_built_in, is_protected, is_enabled, tags, created_at, modified_at)
			VALUES (?, ?, ?, ?, 1, 1, 1, '[]', ?, ?)
			ON CONFLICT (name) DO NOTHING`,
			id, bt.name, bt.description, string(bt.target), now, now)
		if err != nil {
			return fmt.Errorf("seed template %q: %w", bt.name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}

		for i, sec := range bt.sections {
			sectionID := builtinID(fmt.Sprintf("template/%s/section/%d", bt.name, i))
			if _, err := s.exec(ctx, `
				INSERT INTO template_sections (id, template_id, title, usage_description,
					content_sample, content_format, ordinal, is_required, tags, created_at, modified_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, '[]', ?, ?)`,
				sectionID, id, sec.title, sec.usage, sec.sample, string(sec.format),
				i, boolToInt(sec.required), now, now); err != nil {
				return fmt.Errorf("seed template section %q/%q: %w", bt.name, sec.title, err)
			}
		}
	}

	return nil
}
