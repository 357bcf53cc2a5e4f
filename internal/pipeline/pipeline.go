// Package pipeline drives a project through its generation stages. The only
// transition it triggers itself is CREATED → GBP_SELECTED; every later stage
// is observed by polling the backend.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

var (
	ErrInvalidTransition = errors.New("transition not allowed from current status")
	ErrNoTemplate        = errors.New("template not found")
	ErrNoTemplatePages   = errors.New("template has no pages")
	ErrProjectNotFound   = errors.New("project not found")
	ErrClosed            = errors.New("controller closed")
	// ErrAlreadyConfigured is returned by a backend refusing to overwrite a
	// configuration captured earlier with different values.
	ErrAlreadyConfigured = errors.New("project already configured")
)

// Place is a business listing the user picked.
type Place struct {
	ID         string `json:"place_id"`
	Name       string `json:"name,omitempty"`
	WebsiteURL string `json:"website_url,omitempty"`
}

// Config is captured once, at CREATED → GBP_SELECTED.
type Config struct {
	PlaceID      string `json:"selected_place_id"`
	WebsiteURL   string `json:"selected_website_url,omitempty"`
	TemplateID   string `json:"template_id"`
	PrimaryColor string `json:"primary_color,omitempty"`
	AccentColor  string `json:"accent_color,omitempty"`
}

// ProjectState is what the backend reports for a project.
type ProjectState struct {
	ID                string               `json:"id"`
	GeneratedHostname string               `json:"generated_hostname"`
	Status            status.ProjectStatus `json:"status"`
	Config            *Config              `json:"config,omitempty"`
	StageArtifacts    map[string]string    `json:"stage_artifacts,omitempty"`
	UpdatedAt         time.Time            `json:"updated_at"`
}

// TemplatePage is one page of a site template.
type TemplatePage struct {
	ID         string          `json:"id"`
	TemplateID string          `json:"template_id"`
	Path       string          `json:"path"`
	Sections   []pages.Section `json:"sections"`
}

// Backend is the remote collaborator that owns project rows and runs the
// stages.
type Backend interface {
	FetchProjectStatus(ctx context.Context, projectID string) (*ProjectState, error)
	TriggerPipelineStart(ctx context.Context, projectID string, cfg Config) error
	SaveConfiguration(ctx context.Context, projectID string, cfg Config) error
}

// TemplateSource lists the pages of a template. A missing template is
// reported as ErrNoTemplate.
type TemplateSource interface {
	TemplatePages(ctx context.Context, templateID string) ([]TemplatePage, error)
}
