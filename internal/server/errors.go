package server

import (
	"errors"
	"net/http"

	"github.com/Hamiltonwise/signalsai-sub006/internal/llm"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/store"
	"github.com/Hamiltonwise/signalsai-sub006/internal/worker"
)

// errBadRequest marks request decoding and validation failures.
var errBadRequest = errors.New("bad request")

// Wire codes for errors outside the pages package.
const (
	CodeProjectNotFound   = "PROJECT_NOT_FOUND"
	CodeTemplateNotFound  = "TEMPLATE_NOT_FOUND"
	CodeSkillNotFound     = "SKILL_NOT_FOUND"
	CodeJobNotFound       = "JOB_NOT_FOUND"
	CodeAlreadyConfigured = "ALREADY_CONFIGURED"
	CodeNotConfigured     = "NOT_CONFIGURED"
	CodeHostnameTaken     = "HOSTNAME_TAKEN"
	CodeStageMismatch     = "STAGE_MISMATCH"
	CodeBadRequest        = "BAD_REQUEST"
	CodeUpstream          = "UPSTREAM_FAILED"
	CodeUnavailable       = "UNAVAILABLE"
	CodeInternal          = "INTERNAL"
)

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{pipeline.ErrProjectNotFound, http.StatusNotFound, CodeProjectNotFound},
	{pipeline.ErrNoTemplate, http.StatusNotFound, CodeTemplateNotFound},
	{skills.ErrSkillNotFound, http.StatusNotFound, CodeSkillNotFound},
	{pipeline.ErrAlreadyConfigured, http.StatusConflict, CodeAlreadyConfigured},
	{store.ErrNotConfigured, http.StatusConflict, CodeNotConfigured},
	{store.ErrHostnameTaken, http.StatusConflict, CodeHostnameTaken},
	{store.ErrStageMismatch, http.StatusConflict, CodeStageMismatch},
	{store.ErrInvalidProject, http.StatusBadRequest, CodeBadRequest},
	{store.ErrInvalidTemplateID, http.StatusBadRequest, CodeBadRequest},
	{errBadRequest, http.StatusBadRequest, CodeBadRequest},
	{llm.ErrUpstream, http.StatusBadGateway, CodeUpstream},
	{worker.ErrShutdown, http.StatusServiceUnavailable, CodeUnavailable},
}

// classify maps err to an HTTP status and wire code.
func classify(err error) (int, string) {
	if code := pages.Code(err); code != "" {
		switch {
		case errors.Is(err, pages.ErrPageNotFound):
			return http.StatusNotFound, code
		case errors.Is(err, pages.ErrPublishNotAtomic):
			return http.StatusInternalServerError, code
		default:
			return http.StatusConflict, code
		}
	}
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}
