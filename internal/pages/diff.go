package pages

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Chunk is a single change inside a section.
type Chunk struct {
	Type    string `json:"type"` // "added" or "removed"
	Section string `json:"section"`
	Content string `json:"content"`
}

// VersionDiff compares two versions of the same path section by section.
type VersionDiff struct {
	BaseID      string  `json:"base_id"`
	HeadID      string  `json:"head_id"`
	BaseVersion int     `json:"base_version"`
	HeadVersion int     `json:"head_version"`
	Chunks      []Chunk `json:"chunks"`
}

// Changed reports whether any section differs.
func (d *VersionDiff) Changed() bool { return len(d.Chunks) > 0 }

// Diff fetches both versions and diffs their section content.
func (m *Manager) Diff(ctx context.Context, basePageID, headPageID string) (*VersionDiff, error) {
	base, err := m.Get(ctx, basePageID)
	if err != nil {
		return nil, err
	}
	head, err := m.Get(ctx, headPageID)
	if err != nil {
		return nil, err
	}
	return DiffPages(base, head), nil
}

// DiffPages diffs two already loaded versions. Sections are matched by name;
// a section present on one side only is reported whole.
func DiffPages(base, head *Page) *VersionDiff {
	out := &VersionDiff{
		BaseID:      base.ID,
		HeadID:      head.ID,
		BaseVersion: base.Version,
		HeadVersion: head.Version,
		Chunks:      make([]Chunk, 0),
	}

	baseByName := make(map[string]string, len(base.Sections))
	for _, s := range base.Sections {
		baseByName[s.Name] = s.Content
	}
	seen := make(map[string]bool, len(head.Sections))
	for _, s := range head.Sections {
		seen[s.Name] = true
		out.Chunks = append(out.Chunks, DiffText(s.Name, baseByName[s.Name], s.Content)...)
	}
	for _, s := range base.Sections {
		if !seen[s.Name] {
			out.Chunks = append(out.Chunks, DiffText(s.Name, s.Content, "")...)
		}
	}
	return out
}

// DiffText returns the added and removed runs between two strings, with
// whitespace-only runs dropped.
func DiffText(section, before, after string) []Chunk {
	if before == after {
		return nil
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, true))

	var chunks []Chunk
	for _, d := range diffs {
		var typ string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			typ = "added"
		case diffmatchpatch.DiffDelete:
			typ = "removed"
		default:
			continue
		}
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Type: typ, Section: section, Content: d.Text})
	}
	return chunks
}

// Patch renders a unified-style patch of before→after, used for debug output.
func Patch(before, after string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(before, after))
}
