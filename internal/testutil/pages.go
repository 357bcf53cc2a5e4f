package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

// FakePageBackend is an in-memory pages.Backend with the same version rules
// as the SQLite store. NonAtomicPublish makes Publish promote the target
// without demoting the previous published row.
type FakePageBackend struct {
	mu               sync.Mutex
	rows             map[string]*pages.Page
	nextVersion      map[string]int
	seq              int
	NonAtomicPublish bool
	calls            map[string]int
}

func NewFakePageBackend() *FakePageBackend {
	return &FakePageBackend{
		rows:        make(map[string]*pages.Page),
		nextVersion: make(map[string]int),
		calls:       make(map[string]int),
	}
}

func pathKey(projectID, path string) string { return projectID + "\x00" + path }

// Seed inserts a row directly, bypassing lifecycle rules.
func (b *FakePageBackend) Seed(projectID, path string, st status.PageStatus, sections ...pages.Section) *pages.Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.insertLocked(projectID, path, st, sections, nil)
}

// Calls returns how many times the named method ran.
func (b *FakePageBackend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// MutatingCalls sums the calls of every method that changes rows.
func (b *FakePageBackend) MutatingCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range []string{"CreatePage", "CreateDraft", "SaveDraft", "Publish", "RestoreVersion", "DeleteVersion", "DeleteAllVersionsForPath"} {
		n += b.calls[m]
	}
	return n
}

func (b *FakePageBackend) insertLocked(projectID, path string, st status.PageStatus, sections []pages.Section, chat pages.ChatHistory) *pages.Page {
	key := pathKey(projectID, path)
	b.nextVersion[key]++
	b.seq++
	now := time.Now().UTC()
	p := &pages.Page{
		ID:              fmt.Sprintf("page-%d", b.seq),
		ProjectID:       projectID,
		Path:            path,
		Version:         b.nextVersion[key],
		Status:          st,
		Sections:        append([]pages.Section(nil), sections...),
		EditChatHistory: chat.Clone(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	b.rows[p.ID] = p
	return clonePage(p)
}

func clonePage(p *pages.Page) *pages.Page {
	cp := *p
	cp.Sections = p.CloneSections()
	cp.EditChatHistory = p.EditChatHistory.Clone()
	return &cp
}

func (b *FakePageBackend) getLocked(pageID string) (*pages.Page, error) {
	p, ok := b.rows[pageID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pages.ErrPageNotFound, pageID)
	}
	return p, nil
}

func (b *FakePageBackend) siblingsLocked(projectID, path string) []*pages.Page {
	var out []*pages.Page
	for _, p := range b.rows {
		if p.ProjectID == projectID && p.Path == path {
			out = append(out, p)
		}
	}
	pages.SortByVersion(out)
	return out
}

func (b *FakePageBackend) FetchPage(_ context.Context, pageID string) (*pages.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["FetchPage"]++
	p, err := b.getLocked(pageID)
	if err != nil {
		return nil, err
	}
	return clonePage(p), nil
}

func (b *FakePageBackend) ListVersions(_ context.Context, projectID, path string) ([]*pages.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["ListVersions"]++
	var out []*pages.Page
	for _, p := range b.siblingsLocked(projectID, path) {
		out = append(out, clonePage(p))
	}
	return out, nil
}

func (b *FakePageBackend) CreatePage(_ context.Context, projectID, path string, sections []pages.Section) (*pages.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["CreatePage"]++
	if len(b.siblingsLocked(projectID, path)) > 0 {
		return nil, fmt.Errorf("%w: %s", pages.ErrPathExists, path)
	}
	return b.insertLocked(projectID, path, status.Draft, sections, nil), nil
}

func (b *FakePageBackend) CreateDraft(_ context.Context, publishedPageID string) (*pages.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["CreateDraft"]++
	src, err := b.getLocked(publishedPageID)
	if err != nil {
		return nil, err
	}
	for _, p := range b.siblingsLocked(src.ProjectID, src.Path) {
		if p.Status == status.Draft {
			return clonePage(p), nil
		}
	}
	if src.Status != status.Published {
		return nil, &pages.GuardError{Err: pages.ErrNoPublishedVersion, Path: src.Path}
	}
	return b.insertLocked(src.ProjectID, src.Path, status.Draft, src.Sections, src.EditChatHistory), nil
}

func (b *FakePageBackend) SaveDraft(_ context.Context, pageID string, content pages.Content) (*pages.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["SaveDraft"]++
	p, err := b.getLocked(pageID)
	if err != nil {
		return nil, err
	}
	if p.Status != status.Draft {
		return nil, &pages.GuardError{Err: pages.ErrNotADraft, PageID: p.ID, Status: p.Status}
	}
	p.Sections = append([]pages.Section(nil), content.Sections...)
	if content.ChatHistory != nil {
		p.EditChatHistory = content.ChatHistory.Clone()
	}
	p.UpdatedAt = time.Now().UTC()
	return clonePage(p), nil
}

func (b *FakePageBackend) Publish(_ context.Context, pageID string) (*pages.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["Publish"]++
	p, err := b.getLocked(pageID)
	if err != nil {
		return nil, err
	}
	if p.Status != status.Draft {
		return nil, &pages.GuardError{Err: pages.ErrNotADraft, PageID: p.ID, Status: p.Status}
	}
	if !b.NonAtomicPublish {
		for _, s := range b.siblingsLocked(p.ProjectID, p.Path) {
			if s.Status == status.Published {
				s.Status = status.Inactive
			}
		}
	}
	p.Status = status.Published
	return clonePage(p), nil
}

func (b *FakePageBackend) RestoreVersion(_ context.Context, archivedPageID string) (*pages.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["RestoreVersion"]++
	p, err := b.getLocked(archivedPageID)
	if err != nil {
		return nil, err
	}
	if p.Status != status.Inactive {
		return nil, &pages.GuardError{Err: pages.ErrNotInactive, PageID: p.ID, Status: p.Status}
	}
	return b.insertLocked(p.ProjectID, p.Path, status.Draft, p.Sections, p.EditChatHistory), nil
}

func (b *FakePageBackend) DeleteVersion(_ context.Context, pageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["DeleteVersion"]++
	p, err := b.getLocked(pageID)
	if err != nil {
		return err
	}
	if p.Status == status.Published {
		return &pages.GuardError{Err: pages.ErrCannotDeletePublished, PageID: p.ID, Status: p.Status}
	}
	if len(b.siblingsLocked(p.ProjectID, p.Path)) <= 1 {
		return &pages.GuardError{Err: pages.ErrSoleVersion, PageID: p.ID, Status: p.Status}
	}
	delete(b.rows, pageID)
	return nil
}

func (b *FakePageBackend) DeleteAllVersionsForPath(_ context.Context, projectID, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["DeleteAllVersionsForPath"]++
	for _, p := range b.siblingsLocked(projectID, path) {
		delete(b.rows, p.ID)
	}
	return nil
}
