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
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

var (
	ErrNotConfigured     = errors.New("project has no configuration")
	ErrHostnameTaken     = errors.New("generated hostname already in use")
	ErrStageMismatch     = errors.New("project is not at the expected stage")
	ErrInvalidProject    = errors.New("invalid project")
	ErrInvalidTemplateID = errors.New("invalid template id")
)

const projectColumns = `id, generated_hostname, status,
	selected_place_id, selected_website_url, template_id, primary_color, accent_color,
	stage_artifacts, updated_at`

// CreateProject inserts a project in CREATED. An empty hostname is derived
// from the id.
func (s *Store) CreateProject(ctx context.Context, hostname string) (*pipeline.ProjectState, error) {
	id := uuid.New().String()
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		hostname = "site-" + id[:8]
	}
	now := s.stamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, generated_hostname, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, id, hostname, string(status.Created), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrHostnameTaken, hostname)
		}
		return nil, fmt.Errorf("insert project: %w", err)
	}
	s.logger.Info("project created", logging.Field{Key: "project_id", Value: id}, logging.Field{Key: "hostname", Value: hostname})
	return s.getProject(ctx, s.db, id)
}

// ListProjects returns every project, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*pipeline.ProjectState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var out []*pipeline.ProjectState
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) FetchProjectStatus(ctx context.Context, projectID string) (*pipeline.ProjectState, error) {
	return s.getProject(ctx, s.db, projectID)
}

// SaveConfiguration stores the selection. While the project is CREATED the
// configuration may be replaced; afterwards only an identical repeat is
// accepted.
func (s *Store) SaveConfiguration(ctx context.Context, projectID string, cfg pipeline.Config) error {
	if strings.TrimSpace(cfg.PlaceID) == "" {
		return fmt.Errorf("%w: place id is required", ErrInvalidProject)
	}
	if strings.TrimSpace(cfg.TemplateID) == "" {
		return ErrInvalidTemplateID
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p.Status != status.Created {
			if p.Config != nil && *p.Config == cfg {
				return nil
			}
			return fmt.Errorf("%w: project %s is %s", pipeline.ErrAlreadyConfigured, projectID, p.Status)
		}
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM templates WHERE id = ?`, cfg.TemplateID).Scan(&exists); err != nil {
			return fmt.Errorf("check template: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", pipeline.ErrNoTemplate, cfg.TemplateID)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE projects SET selected_place_id = ?, selected_website_url = ?, template_id = ?,
				primary_color = ?, accent_color = ?, updated_at = ?
			WHERE id = ?`,
			cfg.PlaceID, cfg.WebsiteURL, cfg.TemplateID, cfg.PrimaryColor, cfg.AccentColor, s.stamp(), projectID)
		if err != nil {
			return fmt.Errorf("update configuration: %w", err)
		}
		return nil
	})
}

// StartPipeline moves a configured CREATED project to GBP_SELECTED. It
// reports whether this call made the move; later stages are left alone.
func (s *Store) StartPipeline(ctx context.Context, projectID string) (bool, error) {
	started := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p.Status != status.Created {
			return nil
		}
		if p.Config == nil {
			return fmt.Errorf("%w: %s", ErrNotConfigured, projectID)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE projects SET status = ?, updated_at = ? WHERE id = ?`,
			string(status.GBPSelected), s.stamp(), projectID); err != nil {
			return fmt.Errorf("start pipeline: %w", err)
		}
		started = true
		return nil
	})
	return started, err
}

// AdvanceStage moves the project from expected to the next stage and merges
// artifacts into its stage artifacts. It fails with ErrStageMismatch when
// the project is no longer at expected.
func (s *Store) AdvanceStage(ctx context.Context, projectID string, expected status.ProjectStatus, artifacts map[string]string) (status.ProjectStatus, error) {
	next, ok := expected.Next()
	if !ok {
		return "", fmt.Errorf("%w: %s has no next stage", ErrStageMismatch, expected)
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getProject(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if p.Status != expected {
			return fmt.Errorf("%w: want %s, have %s", ErrStageMismatch, expected, p.Status)
		}
		merged := p.StageArtifacts
		if merged == nil {
			merged = make(map[string]string)
		}
		for k, v := range artifacts {
			merged[k] = v
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("encode artifacts: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE projects SET status = ?, stage_artifacts = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(next), string(encoded), s.stamp(), projectID, string(expected)); err != nil {
			return fmt.Errorf("advance stage: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

// DeleteProject removes the project and, through cascades, its pages.
func (s *Store) DeleteProject(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", pipeline.ErrProjectNotFound, projectID)
	}
	return nil
}

func (s *Store) getProject(ctx context.Context, q querier, projectID string) (*pipeline.ProjectState, error) {
	row := q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, projectID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrProjectNotFound, projectID)
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (*pipeline.ProjectState, error) {
	var (
		p                                      pipeline.ProjectState
		st, artifacts                          string
		placeID, website, tpl, primary, accent sql.NullString
		updated                                int64
	)
	if err := r.Scan(&p.ID, &p.GeneratedHostname, &st, &placeID, &website, &tpl, &primary, &accent, &artifacts, &updated); err != nil {
		return nil, err
	}
	p.Status = status.ProjectStatus(st)
	p.UpdatedAt = fromMillis(updated)
	if placeID.Valid && placeID.String != "" {
		p.Config = &pipeline.Config{
			PlaceID:      placeID.String,
			WebsiteURL:   website.String,
			TemplateID:   tpl.String,
			PrimaryColor: primary.String,
			AccentColor:  accent.String,
		}
	}
	if artifacts != "" && artifacts != "{}" {
		if err := json.Unmarshal([]byte(artifacts), &p.StageArtifacts); err != nil {
			return nil, fmt.Errorf("decode stage artifacts: %w", err)
		}
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
