package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
)

var _ pipeline.TemplateSource = (*Store)(nil)

// Template is a named set of template pages.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTemplate stores a template and its pages in the given order.
func (s *Store) CreateTemplate(ctx context.Context, name string, tpages []pipeline.TemplatePage) (*Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrInvalidTemplateID)
	}
	id := uuid.New().String()
	now := s.stamp()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO templates (id, name, created_at) VALUES (?, ?, ?)`, id, name, now); err != nil {
			return fmt.Errorf("insert template: %w", err)
		}
		for i, tp := range tpages {
			blobID, err := s.putSections(tp.Sections)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO template_pages (id, template_id, path, position, sections_blob)
				VALUES (?, ?, ?, ?, ?)`, uuid.New().String(), id, normalizePath(tp.Path), i, blobID); err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: duplicate path %s", ErrInvalidTemplateID, tp.Path)
				}
				return fmt.Errorf("insert template page: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Template{ID: id, Name: name, PageCount: len(tpages), CreatedAt: fromMillis(now)}, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at, COUNT(tp.id)
		FROM templates t LEFT JOIN template_pages tp ON tp.template_id = t.id
		GROUP BY t.id ORDER BY t.created_at, t.rowid`)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()
	var out []*Template
	for rows.Next() {
		var (
			t       Template
			created int64
		)
		if err := rows.Scan(&t.ID, &t.Name, &created, &t.PageCount); err != nil {
			return nil, err
		}
		t.CreatedAt = fromMillis(created)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// TemplatePages returns the pages of a template in position order. A
// template with no pages yields an empty slice; a missing one yields
// pipeline.ErrNoTemplate.
func (s *Store) TemplatePages(ctx context.Context, templateID string) ([]pipeline.TemplatePage, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates WHERE id = ?`, templateID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check template: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrNoTemplate, templateID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, path, sections_blob FROM template_pages WHERE template_id = ? ORDER BY position`, templateID)
	if err != nil {
		return nil, fmt.Errorf("query template pages: %w", err)
	}
	defer rows.Close()
	out := []pipeline.TemplatePage{}
	for rows.Next() {
		var tp pipeline.TemplatePage
		var blobID string
		if err := rows.Scan(&tp.ID, &tp.Path, &blobID); err != nil {
			return nil, err
		}
		tp.TemplateID = templateID
		if tp.Sections, err = s.getSections(blobID); err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}
