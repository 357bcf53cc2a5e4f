package server

import (
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
)

// CreateProjectRequest creates a project in CREATED.
type CreateProjectRequest struct {
	GeneratedHostname string `json:"generated_hostname" example:"smile-dental"`
}

// CreateTemplateRequest seeds a template and its pages.
type CreateTemplateRequest struct {
	Name  string                  `json:"name" example:"dental"`
	Pages []pipeline.TemplatePage `json:"pages"`
}

// CreatePageRequest creates version 1 of a new path.
type CreatePageRequest struct {
	Path     string          `json:"path" example:"/about"`
	Sections []pages.Section `json:"sections"`
}

// StartSkillRequest starts skill generation for a resource.
type StartSkillRequest struct {
	Prompt string `json:"prompt" example:"Write a short bio for the clinic"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"page is not a draft"`
	Code  string `json:"code,omitempty" example:"NOT_A_DRAFT"`
}
