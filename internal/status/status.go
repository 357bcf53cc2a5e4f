// Package status holds the enumerated pipeline stages, page version states
// and skill job states shared by the rest of the module. It has no behavior
// beyond ordering and classification.
package status

import (
	"fmt"
	"strings"
)

// ProjectStatus is one stage in a project's linear generation sequence.
type ProjectStatus string

const (
	Created        ProjectStatus = "CREATED"
	GBPSelected    ProjectStatus = "GBP_SELECTED"
	GBPScraped     ProjectStatus = "GBP_SCRAPED"
	WebsiteScraped ProjectStatus = "WEBSITE_SCRAPED"
	ImagesAnalyzed ProjectStatus = "IMAGES_ANALYZED"
	HTMLGenerated  ProjectStatus = "HTML_GENERATED"
	Ready          ProjectStatus = "READY"
)

// Stages lists every project status in pipeline order.
var Stages = []ProjectStatus{
	Created,
	GBPSelected,
	GBPScraped,
	WebsiteScraped,
	ImagesAnalyzed,
	HTMLGenerated,
	Ready,
}

// ParseProjectStatus accepts the canonical upper-case names; surrounding
// whitespace and case are ignored.
func ParseProjectStatus(s string) (ProjectStatus, error) {
	ps := ProjectStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !ps.Valid() {
		return "", fmt.Errorf("unknown project status %q", s)
	}
	return ps, nil
}

// Ordinal returns the position of s in Stages, or -1 when s is unknown.
func (s ProjectStatus) Ordinal() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s ProjectStatus) Valid() bool { return s.Ordinal() >= 0 }

// Before reports whether s comes strictly earlier in the pipeline than o.
func (s ProjectStatus) Before(o ProjectStatus) bool {
	return s.Ordinal() < o.Ordinal()
}

// Next returns the stage following s. READY and unknown values have no
// successor.
func (s ProjectStatus) Next() (ProjectStatus, bool) {
	i := s.Ordinal()
	if i < 0 || i == len(Stages)-1 {
		return "", false
	}
	return Stages[i+1], true
}

// IsTerminal reports whether no further remote progress is possible.
func (s ProjectStatus) IsTerminal() bool { return s == Ready }

// NeedsPolling is false for the two states with no remote progress to
// observe: CREATED (nothing triggered yet) and READY (done).
func (s ProjectStatus) NeedsPolling() bool {
	return s.Valid() && s != Created && s != Ready
}

func (s ProjectStatus) String() string { return string(s) }

// PageStatus is the lifecycle state of a single page version row.
type PageStatus string

const (
	Draft     PageStatus = "draft"
	Published PageStatus = "published"
	Inactive  PageStatus = "inactive"
)

func (s PageStatus) Valid() bool {
	switch s {
	case Draft, Published, Inactive:
		return true
	}
	return false
}

// ParsePageStatus is case-insensitive.
func ParsePageStatus(s string) (PageStatus, error) {
	ps := PageStatus(strings.ToLower(strings.TrimSpace(s)))
	if !ps.Valid() {
		return "", fmt.Errorf("unknown page status %q", s)
	}
	return ps, nil
}

// SkillStatus is the state of an asynchronous skill generation job.
type SkillStatus string

const (
	SkillGenerating SkillStatus = "generating"
	SkillReady      SkillStatus = "ready"
	SkillFailed     SkillStatus = "failed"
)

func (s SkillStatus) Valid() bool {
	switch s {
	case SkillGenerating, SkillReady, SkillFailed:
		return true
	}
	return false
}

func (s SkillStatus) IsTerminal() bool { return s == SkillReady || s == SkillFailed }

// Source says where an observed status came from.
type Source int

const (
	// Local is an optimistic transition applied ahead of remote acknowledgment.
	Local Source = iota
	// Confirmed was read back from the remote system.
	Confirmed
)

func (s Source) String() string {
	if s == Confirmed {
		return "confirmed"
	}
	return "local"
}

// Observed wraps a project status with its provenance so callers can tell
// "we think it moved" apart from "the remote confirmed it moved".
type Observed struct {
	Status ProjectStatus `json:"status"`
	Source Source        `json:"source"`
}

func LocalStatus(s ProjectStatus) Observed     { return Observed{Status: s, Source: Local} }
func ConfirmedStatus(s ProjectStatus) Observed { return Observed{Status: s, Source: Confirmed} }

func (o Observed) IsConfirmed() bool { return o.Source == Confirmed }

func (o Observed) String() string {
	return fmt.Sprintf("%s (%s)", o.Status, o.Source)
}
