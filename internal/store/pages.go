package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

const pageColumns = `id, project_id, path, version, status, sections_blob, edit_chat_history, created_at, updated_at`

var _ pages.Backend = (*Store)(nil)

func (s *Store) FetchPage(ctx context.Context, pageID string) (*pages.Page, error) {
	return s.getPage(ctx, s.db, pageID)
}

func (s *Store) ListVersions(ctx context.Context, projectID, path string) ([]*pages.Page, error) {
	return s.listVersions(ctx, s.db, projectID, path)
}

// ListPaths returns the distinct paths of a project that still have versions.
func (s *Store) ListPaths(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT path FROM pages WHERE project_id = ? ORDER BY path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePage inserts version 1 of a new path as a draft.
func (s *Store) CreatePage(ctx context.Context, projectID, path string, sections []pages.Section) (*pages.Page, error) {
	path = normalizePath(path)
	var created *pages.Page
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getProject(ctx, tx, projectID); err != nil {
			return err
		}
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE project_id = ? AND path = ?`, projectID, path).Scan(&n); err != nil {
			return fmt.Errorf("count versions: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", pages.ErrPathExists, path)
		}
		p, err := s.insertVersion(ctx, tx, projectID, path, status.Draft, sections, nil)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	return created, err
}

// CreatePublishedPage inserts a new path directly as published. Used when
// generated pages are first materialized.
func (s *Store) CreatePublishedPage(ctx context.Context, projectID, path string, sections []pages.Section) (*pages.Page, error) {
	path = normalizePath(path)
	var created *pages.Page
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET status = ?, updated_at = ? WHERE project_id = ? AND path = ? AND status = ?`,
			string(status.Inactive), s.stamp(), projectID, path, string(status.Published)); err != nil {
			return fmt.Errorf("demote published: %w", err)
		}
		p, err := s.insertVersion(ctx, tx, projectID, path, status.Published, sections, nil)
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	return created, err
}

// CreateDraft copies the published version into a new draft. When the path
// already has a draft that draft is returned instead.
func (s *Store) CreateDraft(ctx context.Context, publishedPageID string) (*pages.Page, error) {
	var out *pages.Page
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		src, err := s.getPage(ctx, tx, publishedPageID)
		if err != nil {
			return err
		}
		versions, err := s.listVersions(ctx, tx, src.ProjectID, src.Path)
		if err != nil {
			return err
		}
		if d := pages.FindByStatus(versions, status.Draft); d != nil {
			out = d
			return nil
		}
		if src.Status != status.Published {
			return &pages.GuardError{Err: pages.ErrNoPublishedVersion, Path: src.Path}
		}
		p, err := s.insertVersion(ctx, tx, src.ProjectID, src.Path, status.Draft, src.Sections, src.EditChatHistory)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Store) SaveDraft(ctx context.Context, pageID string, content pages.Content) (*pages.Page, error) {
	var out *pages.Page
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getPage(ctx, tx, pageID)
		if err != nil {
			return err
		}
		if p.Status != status.Draft {
			return &pages.GuardError{Err: pages.ErrNotADraft, PageID: p.ID, Path: p.Path, Status: p.Status}
		}
		blobID, err := s.putSections(content.Sections)
		if err != nil {
			return err
		}
		history := p.EditChatHistory
		if content.ChatHistory != nil {
			history = content.ChatHistory
		}
		encoded, err := encodeHistory(history)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET sections_blob = ?, edit_chat_history = ?, updated_at = ? WHERE id = ? AND status = ?`,
			blobID, encoded, s.stamp(), pageID, string(status.Draft)); err != nil {
			return fmt.Errorf("update draft: %w", err)
		}
		out, err = s.getPage(ctx, tx, pageID)
		return err
	})
	return out, err
}

// Publish promotes a draft and demotes the previous published version in
// one transaction. The partial unique index on published rows backs this up.
func (s *Store) Publish(ctx context.Context, pageID string) (*pages.Page, error) {
	var out *pages.Page
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getPage(ctx, tx, pageID)
		if err != nil {
			return err
		}
		if p.Status != status.Draft {
			return &pages.GuardError{Err: pages.ErrNotADraft, PageID: p.ID, Path: p.Path, Status: p.Status}
		}
		now := s.stamp()
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET status = ?, updated_at = ? WHERE project_id = ? AND path = ? AND status = ?`,
			string(status.Inactive), now, p.ProjectID, p.Path, string(status.Published)); err != nil {
			return fmt.Errorf("demote published: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET status = ?, updated_at = ? WHERE id = ?`,
			string(status.Published), now, pageID); err != nil {
			return fmt.Errorf("promote draft: %w", err)
		}
		out, err = s.getPage(ctx, tx, pageID)
		return err
	})
	if err == nil {
		s.logger.Info("page published", logging.Field{Key: "page_id", Value: pageID}, logging.Field{Key: "version", Value: out.Version})
	}
	return out, err
}

// RestoreVersion copies an inactive version into a new draft.
func (s *Store) RestoreVersion(ctx context.Context, archivedPageID string) (*pages.Page, error) {
	var out *pages.Page
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getPage(ctx, tx, archivedPageID)
		if err != nil {
			return err
		}
		if p.Status != status.Inactive {
			return &pages.GuardError{Err: pages.ErrNotInactive, PageID: p.ID, Path: p.Path, Status: p.Status}
		}
		out, err = s.insertVersion(ctx, tx, p.ProjectID, p.Path, status.Draft, p.Sections, p.EditChatHistory)
		return err
	})
	return out, err
}

func (s *Store) DeleteVersion(ctx context.Context, pageID string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getPage(ctx, tx, pageID)
		if err != nil {
			return err
		}
		if p.Status == status.Published {
			return &pages.GuardError{Err: pages.ErrCannotDeletePublished, PageID: p.ID, Path: p.Path, Status: p.Status}
		}
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE project_id = ? AND path = ?`, p.ProjectID, p.Path).Scan(&n); err != nil {
			return fmt.Errorf("count versions: %w", err)
		}
		if n <= 1 {
			return &pages.GuardError{Err: pages.ErrSoleVersion, PageID: p.ID, Path: p.Path, Status: p.Status}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, pageID); err != nil {
			return fmt.Errorf("delete version: %w", err)
		}
		return nil
	})
}

// DeleteAllVersionsForPath removes every version of a path. The version
// counter is kept.
func (s *Store) DeleteAllVersionsForPath(ctx context.Context, projectID, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE project_id = ? AND path = ?`, projectID, normalizePath(path)); err != nil {
		return fmt.Errorf("delete versions: %w", err)
	}
	return nil
}

func (s *Store) insertVersion(ctx context.Context, tx *sql.Tx, projectID, path string, st status.PageStatus, sections []pages.Section, history pages.ChatHistory) (*pages.Page, error) {
	var version int
	err := tx.QueryRowContext(ctx, `
		INSERT INTO page_paths (project_id, path, next_version) VALUES (?, ?, 2)
		ON CONFLICT (project_id, path) DO UPDATE SET next_version = next_version + 1
		RETURNING next_version - 1`, projectID, path).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("allocate version: %w", err)
	}
	blobID, err := s.putSections(sections)
	if err != nil {
		return nil, err
	}
	encoded, err := encodeHistory(history)
	if err != nil {
		return nil, err
	}
	id := uuid.New().String()
	now := s.stamp()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pages (id, project_id, path, version, status, sections_blob, edit_chat_history, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, projectID, path, version, string(st), blobID, encoded, now, now); err != nil {
		return nil, fmt.Errorf("insert page: %w", err)
	}
	return s.getPage(ctx, tx, id)
}

func (s *Store) getPage(ctx context.Context, q querier, pageID string) (*pages.Page, error) {
	row := q.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, pageID)
	p, err := s.scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pages.ErrPageNotFound, pageID)
	}
	return p, err
}

func (s *Store) listVersions(ctx context.Context, q querier, projectID, path string) ([]*pages.Page, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE project_id = ? AND path = ? ORDER BY version`,
		projectID, normalizePath(path))
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()
	var out []*pages.Page
	for rows.Next() {
		p, err := s.scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) scanPage(r rowScanner) (*pages.Page, error) {
	var (
		p                pages.Page
		st, blobID, chat string
		created, updated int64
	)
	if err := r.Scan(&p.ID, &p.ProjectID, &p.Path, &p.Version, &st, &blobID, &chat, &created, &updated); err != nil {
		return nil, err
	}
	p.Status = status.PageStatus(st)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	sections, err := s.getSections(blobID)
	if err != nil {
		return nil, fmt.Errorf("load sections of %s: %w", p.ID, err)
	}
	p.Sections = sections
	if chat != "" && chat != "{}" {
		if err := json.Unmarshal([]byte(chat), &p.EditChatHistory); err != nil {
			return nil, fmt.Errorf("decode chat history of %s: %w", p.ID, err)
		}
	}
	return &p, nil
}

func encodeHistory(h pages.ChatHistory) (string, error) {
	if len(h) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("encode chat history: %w", err)
	}
	return string(data), nil
}

// paths are stored with a single leading slash and no trailing slash
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = "/" + strings.Trim(p, "/")
	return p
}
