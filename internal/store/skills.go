package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

// BeginSkill records a generating job. Starting a job for a resource that
// already has one resets it.
func (s *Store) BeginSkill(ctx context.Context, resourceID, prompt string) error {
	now := s.stamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skills (resource_id, status, prompt, artifact, error, created_at, updated_at)
		VALUES (?, ?, ?, '', '', ?, ?)
		ON CONFLICT (resource_id) DO UPDATE SET
			status = excluded.status, prompt = excluded.prompt,
			artifact = '', error = '', updated_at = excluded.updated_at`,
		resourceID, string(status.SkillGenerating), prompt, now, now)
	if err != nil {
		return fmt.Errorf("begin skill: %w", err)
	}
	return nil
}

// SkillPrompt returns the prompt a job was started with.
func (s *Store) SkillPrompt(ctx context.Context, resourceID string) (string, error) {
	var prompt string
	err := s.db.QueryRowContext(ctx, `SELECT prompt FROM skills WHERE resource_id = ?`, resourceID).Scan(&prompt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", skills.ErrSkillNotFound, resourceID)
	}
	return prompt, err
}

func (s *Store) FetchSkillStatus(ctx context.Context, resourceID string) (*skills.Skill, error) {
	var (
		sk      skills.Skill
		st      string
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT resource_id, status, artifact, error, updated_at FROM skills WHERE resource_id = ?`, resourceID).
		Scan(&sk.ResourceID, &st, &sk.Artifact, &sk.Error, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", skills.ErrSkillNotFound, resourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("query skill: %w", err)
	}
	sk.Status = status.SkillStatus(st)
	sk.UpdatedAt = fromMillis(updated)
	return &sk, nil
}

// CompleteSkill marks a generating job ready.
func (s *Store) CompleteSkill(ctx context.Context, resourceID, artifact string) error {
	return s.finishSkill(ctx, resourceID, status.SkillReady, artifact, "")
}

// FailSkill marks a generating job failed.
func (s *Store) FailSkill(ctx context.Context, resourceID, reason string) error {
	return s.finishSkill(ctx, resourceID, status.SkillFailed, "", reason)
}

func (s *Store) finishSkill(ctx context.Context, resourceID string, st status.SkillStatus, artifact, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE skills SET status = ?, artifact = ?, error = ?, updated_at = ?
		WHERE resource_id = ? AND status = ?`,
		string(st), artifact, reason, s.stamp(), resourceID, string(status.SkillGenerating))
	if err != nil {
		return fmt.Errorf("finish skill: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: no generating job for %s", skills.ErrSkillNotFound, resourceID)
	}
	return nil
}
