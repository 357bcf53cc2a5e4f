package apiclient

import (
	"fmt"

	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
)

// Error is a non-2xx API response. Known codes unwrap to the sentinel the
// server reported, so errors.Is works across the wire.
type Error struct {
	StatusCode int
	Code       string
	Message    string

	err error
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

var remoteCodes = map[string]error{
	"PROJECT_NOT_FOUND":  pipeline.ErrProjectNotFound,
	"TEMPLATE_NOT_FOUND": pipeline.ErrNoTemplate,
	"ALREADY_CONFIGURED": pipeline.ErrAlreadyConfigured,
	"SKILL_NOT_FOUND":    skills.ErrSkillNotFound,
}

func sentinelFor(code string) error {
	if err := pages.ErrorForCode(code); err != nil {
		return err
	}
	return remoteCodes[code]
}
