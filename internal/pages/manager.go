package pages

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

// Manager applies the version lifecycle rules on top of a Backend.
//
// It performs no client-side locking. Two callers publishing different
// drafts of the same path at once rely on the backend to keep a single
// published row; Publish only detects a violation after the fact.
type Manager struct {
	backend Backend
	logger  logging.Logger
}

func NewManager(backend Backend, logger logging.Logger) *Manager {
	return &Manager{
		backend: backend,
		logger:  logging.OrNop(logger).With(logging.Field{Key: "component", Value: "pages"}),
	}
}

// Get fetches one version.
func (m *Manager) Get(ctx context.Context, pageID string) (*Page, error) {
	p, err := m.backend.FetchPage(ctx, pageID)
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", pageID, err)
	}
	return p, nil
}

// Versions lists every version of a path in ascending version order.
func (m *Manager) Versions(ctx context.Context, projectID, path string) ([]*Page, error) {
	versions, err := m.backend.ListVersions(ctx, projectID, path)
	if err != nil {
		return nil, fmt.Errorf("list versions of %s: %w", path, err)
	}
	SortByVersion(versions)
	return versions, nil
}

// CreatePage creates the first version of a new path as a draft.
func (m *Manager) CreatePage(ctx context.Context, projectID, path string, sections []Section) (*Page, error) {
	p, err := m.backend.CreatePage(ctx, projectID, path, sections)
	if err != nil {
		return nil, fmt.Errorf("create page %s: %w", path, err)
	}
	m.logger.Info("page created", logging.Field{Key: "page_id", Value: p.ID}, logging.Field{Key: "path", Value: path})
	return p, nil
}

// CreateDraftFromPublished returns the path's open draft when one exists,
// otherwise copies the published version into a new draft.
func (m *Manager) CreateDraftFromPublished(ctx context.Context, projectID, path string) (*Page, error) {
	versions, err := m.Versions(ctx, projectID, path)
	if err != nil {
		return nil, err
	}
	if d := FindByStatus(versions, status.Draft); d != nil {
		m.logger.Debug("reusing open draft", logging.Field{Key: "page_id", Value: d.ID})
		return d, nil
	}
	published := FindByStatus(versions, status.Published)
	if published == nil {
		return nil, &GuardError{Err: ErrNoPublishedVersion, Path: path}
	}
	draft, err := m.backend.CreateDraft(ctx, published.ID)
	if err != nil {
		return nil, fmt.Errorf("create draft from %s: %w", published.ID, err)
	}
	m.logger.Info("draft created",
		logging.Field{Key: "page_id", Value: draft.ID},
		logging.Field{Key: "from", Value: published.ID},
		logging.Field{Key: "version", Value: draft.Version})
	return draft, nil
}

// SaveDraft overwrites a draft's sections. A nil chatHistory keeps the
// stored history.
func (m *Manager) SaveDraft(ctx context.Context, pageID string, sections []Section, chatHistory ChatHistory) (*Page, error) {
	p, err := m.Get(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if p.Status != status.Draft {
		return nil, guard(ErrNotADraft, p)
	}
	saved, err := m.backend.SaveDraft(ctx, pageID, Content{Sections: sections, ChatHistory: chatHistory})
	if err != nil {
		return nil, fmt.Errorf("save draft %s: %w", pageID, err)
	}
	return saved, nil
}

// Publish promotes a draft and then reads the version set back to check that
// the target is the only published version of its path.
func (m *Manager) Publish(ctx context.Context, pageID string) (*Page, error) {
	p, err := m.Get(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if p.Status != status.Draft {
		return nil, guard(ErrNotADraft, p)
	}
	if _, err := m.backend.Publish(ctx, pageID); err != nil {
		return nil, fmt.Errorf("publish %s: %w", pageID, err)
	}

	versions, err := m.Versions(ctx, p.ProjectID, p.Path)
	if err != nil {
		return nil, err
	}
	var target *Page
	published := 0
	for _, v := range versions {
		if v.Status == status.Published {
			published++
		}
		if v.ID == pageID {
			target = v
		}
	}
	if target == nil || target.Status != status.Published || published != 1 {
		m.logger.Error("publish left an inconsistent version set",
			logging.Field{Key: "page_id", Value: pageID},
			logging.Field{Key: "path", Value: p.Path},
			logging.Field{Key: "published_count", Value: published})
		return nil, fmt.Errorf("%w: %s has %d published versions", ErrPublishNotAtomic, p.Path, published)
	}
	m.logger.Info("page published",
		logging.Field{Key: "page_id", Value: pageID},
		logging.Field{Key: "path", Value: p.Path},
		logging.Field{Key: "version", Value: target.Version})
	return target, nil
}

// DeleteVersion removes one non-published version, provided it is not the
// only version of its path.
func (m *Manager) DeleteVersion(ctx context.Context, pageID string) error {
	p, err := m.Get(ctx, pageID)
	if err != nil {
		return err
	}
	if p.Status == status.Published {
		return guard(ErrCannotDeletePublished, p)
	}
	versions, err := m.Versions(ctx, p.ProjectID, p.Path)
	if err != nil {
		return err
	}
	if len(versions) <= 1 {
		return guard(ErrSoleVersion, p)
	}
	if err := m.backend.DeleteVersion(ctx, pageID); err != nil {
		return fmt.Errorf("delete version %s: %w", pageID, err)
	}
	m.logger.Info("version deleted", logging.Field{Key: "page_id", Value: pageID}, logging.Field{Key: "version", Value: p.Version})
	return nil
}

// DeleteAllVersions removes the path entirely, published version included.
func (m *Manager) DeleteAllVersions(ctx context.Context, projectID, path string) error {
	if err := m.backend.DeleteAllVersionsForPath(ctx, projectID, path); err != nil {
		return fmt.Errorf("delete all versions of %s: %w", path, err)
	}
	m.logger.Info("path deleted", logging.Field{Key: "project_id", Value: projectID}, logging.Field{Key: "path", Value: path})
	return nil
}

// Restore copies an inactive version into a new draft. The archived row is
// left as is.
func (m *Manager) Restore(ctx context.Context, archivedPageID string) (*Page, error) {
	p, err := m.Get(ctx, archivedPageID)
	if err != nil {
		return nil, err
	}
	if p.Status != status.Inactive {
		return nil, guard(ErrNotInactive, p)
	}
	d, err := m.backend.RestoreVersion(ctx, archivedPageID)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", archivedPageID, err)
	}
	m.logger.Info("version restored",
		logging.Field{Key: "from", Value: archivedPageID},
		logging.Field{Key: "page_id", Value: d.ID},
		logging.Field{Key: "version", Value: d.Version})
	return d, nil
}

// OpenDraft loads pageID and fails with ErrNotADraft unless it is a draft.
func (m *Manager) OpenDraft(ctx context.Context, pageID string) (*Page, error) {
	p, err := m.Get(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if p.Status != status.Draft {
		return nil, guard(ErrNotADraft, p)
	}
	return p, nil
}

// IsNotFound reports whether err means the page does not exist.
func IsNotFound(err error) bool { return errors.Is(err, ErrPageNotFound) }
