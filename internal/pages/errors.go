package pages

import (
	"errors"
	"fmt"

	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

// Guard violations. They are detected locally and no remote call is made.
var (
	ErrNotADraft             = errors.New("page is not a draft")
	ErrNotInactive           = errors.New("page is not inactive")
	ErrCannotDeletePublished = errors.New("cannot delete the published version")
	ErrSoleVersion           = errors.New("cannot delete the only version of a page")
	ErrNoPublishedVersion    = errors.New("path has no published version")
)

var (
	ErrPageNotFound = errors.New("page not found")
	ErrPathExists   = errors.New("page path already exists")
	// ErrPublishNotAtomic means the backend acknowledged a publish but the
	// version set read back afterwards does not have exactly the target
	// published. Retrying the publish is safe.
	ErrPublishNotAtomic = errors.New("publish was not applied atomically")
)

// GuardError carries the page a guard rejected.
type GuardError struct {
	Err    error
	PageID string
	Path   string
	Status status.PageStatus
}

func (e *GuardError) Error() string {
	if e.PageID == "" {
		return fmt.Sprintf("%v (path %s)", e.Err, e.Path)
	}
	return fmt.Sprintf("%v (page %s, status %s)", e.Err, e.PageID, e.Status)
}

func (e *GuardError) Unwrap() error { return e.Err }

func guard(err error, p *Page) error {
	ge := &GuardError{Err: err}
	if p != nil {
		ge.PageID = p.ID
		ge.Path = p.Path
		ge.Status = p.Status
	}
	return ge
}

// IsGuard reports whether err is one of the guard violations.
func IsGuard(err error) bool {
	for _, g := range []error{ErrNotADraft, ErrNotInactive, ErrCannotDeletePublished, ErrSoleVersion, ErrNoPublishedVersion} {
		if errors.Is(err, g) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether repeating the failed operation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPublishNotAtomic)
}

var codes = []struct {
	err  error
	code string
}{
	{ErrNotADraft, "NOT_A_DRAFT"},
	{ErrNotInactive, "NOT_INACTIVE"},
	{ErrCannotDeletePublished, "CANNOT_DELETE_PUBLISHED"},
	{ErrSoleVersion, "SOLE_VERSION"},
	{ErrNoPublishedVersion, "NO_PUBLISHED_VERSION"},
	{ErrPageNotFound, "PAGE_NOT_FOUND"},
	{ErrPathExists, "PATH_EXISTS"},
	{ErrPublishNotAtomic, "PUBLISH_NOT_ATOMIC"},
}

// Code returns the wire code for a known page error, or "".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// ErrorForCode maps a wire code back to its sentinel, or nil.
func ErrorForCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
