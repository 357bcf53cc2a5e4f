// Package pages manages the version lifecycle of page documents: draft,
// published, inactive. Guard checks run against freshly fetched state before
// any mutating call reaches the backend.
package pages

import (
	"context"
	"sort"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

// Section is one named block of page content. Content is opaque HTML.
type Section struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ChatMessage is one entry in an element's edit conversation.
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatHistory maps an element id to its ordered conversation.
type ChatHistory map[string][]ChatMessage

// Clone returns a deep copy. A nil history clones to nil.
func (h ChatHistory) Clone() ChatHistory {
	if h == nil {
		return nil
	}
	out := make(ChatHistory, len(h))
	for k, v := range h {
		out[k] = append([]ChatMessage(nil), v...)
	}
	return out
}

// Page is one version row for a (project, path).
type Page struct {
	ID              string            `json:"id"`
	ProjectID       string            `json:"project_id"`
	Path            string            `json:"path"`
	Version         int               `json:"version"`
	Status          status.PageStatus `json:"status"`
	Sections        []Section         `json:"sections"`
	EditChatHistory ChatHistory       `json:"edit_chat_history,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// CloneSections returns a copy of the page's sections.
func (p *Page) CloneSections() []Section {
	return append([]Section(nil), p.Sections...)
}

// Content is the payload of a draft save. A nil ChatHistory leaves the stored
// history untouched; a non-nil one replaces it.
type Content struct {
	Sections    []Section   `json:"sections"`
	ChatHistory ChatHistory `json:"edit_chat_history"`
}

// Backend is the remote collaborator that owns page rows.
type Backend interface {
	FetchPage(ctx context.Context, pageID string) (*Page, error)
	ListVersions(ctx context.Context, projectID, path string) ([]*Page, error)
	CreatePage(ctx context.Context, projectID, path string, sections []Section) (*Page, error)
	CreateDraft(ctx context.Context, publishedPageID string) (*Page, error)
	SaveDraft(ctx context.Context, pageID string, content Content) (*Page, error)
	Publish(ctx context.Context, pageID string) (*Page, error)
	RestoreVersion(ctx context.Context, archivedPageID string) (*Page, error)
	DeleteVersion(ctx context.Context, pageID string) error
	DeleteAllVersionsForPath(ctx context.Context, projectID, path string) error
}

// SortByVersion orders versions ascending in place.
func SortByVersion(versions []*Page) {
	sort.Slice(versions, func(i, j int) bool { return versions[i].Version < versions[j].Version })
}

// FindByStatus returns the first version with status s, or nil.
func FindByStatus(versions []*Page, s status.PageStatus) *Page {
	for _, v := range versions {
		if v.Status == s {
			return v
		}
	}
	return nil
}
