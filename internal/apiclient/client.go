// Package apiclient talks to the site builder REST API. Client implements
// every collaborator interface the core packages consume, so a controller,
// page manager, edit session or skill generator can run against a remote
// server unchanged.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
)

var (
	_ pipeline.Backend        = (*Client)(nil)
	_ pipeline.TemplateSource = (*Client)(nil)
	_ pages.Backend           = (*Client)(nil)
	_ editsession.Editor      = (*Client)(nil)
	_ skills.Backend          = (*Client)(nil)
)

// Template mirrors the server's template listing entry.
type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}

// Client is a JSON client for one API base URL.
type Client struct {
	baseURL string
	http    *http.Client
	logger  logging.Logger
}

// New validates baseURL and returns a Client. A nil httpClient gets a 30s
// timeout.
func New(baseURL string, httpClient *http.Client, logger logging.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: u.String(),
		http:    httpClient,
		logger:  logging.OrNop(logger).With(logging.Field{Key: "component", Value: "apiclient"}),
	}, nil
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out (when
// non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("api request failed",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "error", Value: err.Error()})
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	c.logger.Debug("api request",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "status", Value: resp.StatusCode},
		logging.Field{Key: "latency", Value: time.Since(start).String()})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(statusCode int, data []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	e := &Error{StatusCode: statusCode}
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		e.Message = strings.TrimSpace(string(data))
		if e.Message == "" {
			e.Message = http.StatusText(statusCode)
		}
		return e
	}
	e.Code = body.Code
	e.Message = body.Error
	e.err = sentinelFor(body.Code)
	return e
}

func seg(s string) string { return url.PathEscape(s) }

// ─── Projects and templates ────────────────────────────────────────────

func (c *Client) CreateProject(ctx context.Context, hostname string) (*pipeline.ProjectState, error) {
	var p pipeline.ProjectState
	in := map[string]string{"generated_hostname": hostname}
	if err := c.do(ctx, http.MethodPost, "/projects", in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListProjects(ctx context.Context) ([]*pipeline.ProjectState, error) {
	var out []*pipeline.ProjectState
	if err := c.do(ctx, http.MethodGet, "/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+seg(projectID), nil, nil)
}

func (c *Client) FetchProjectStatus(ctx context.Context, projectID string) (*pipeline.ProjectState, error) {
	var p pipeline.ProjectState
	if err := c.do(ctx, http.MethodGet, "/projects/"+seg(projectID), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) SaveConfiguration(ctx context.Context, projectID string, cfg pipeline.Config) error {
	return c.do(ctx, http.MethodPut, "/projects/"+seg(projectID)+"/config", cfg, nil)
}

func (c *Client) TriggerPipelineStart(ctx context.Context, projectID string, cfg pipeline.Config) error {
	return c.do(ctx, http.MethodPost, "/projects/"+seg(projectID)+"/pipeline", cfg, nil)
}

func (c *Client) CreateTemplate(ctx context.Context, name string, tpages []pipeline.TemplatePage) (*Template, error) {
	var t Template
	in := map[string]any{"name": name, "pages": tpages}
	if err := c.do(ctx, http.MethodPost, "/templates", in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) ListTemplates(ctx context.Context) ([]*Template, error) {
	var out []*Template
	if err := c.do(ctx, http.MethodGet, "/templates", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TemplatePages(ctx context.Context, templateID string) ([]pipeline.TemplatePage, error) {
	var out []pipeline.TemplatePage
	if err := c.do(ctx, http.MethodGet, "/templates/"+seg(templateID)+"/pages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ─── Pages ─────────────────────────────────────────────────────────────

func (c *Client) page(ctx context.Context, method, path string, in any) (*pages.Page, error) {
	var p pages.Page
	if err := c.do(ctx, method, path, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) FetchPage(ctx context.Context, pageID string) (*pages.Page, error) {
	return c.page(ctx, http.MethodGet, "/pages/"+seg(pageID), nil)
}

func (c *Client) ListPaths(ctx context.Context, projectID string) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/projects/"+seg(projectID)+"/paths", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListVersions(ctx context.Context, projectID, path string) ([]*pages.Page, error) {
	var out []*pages.Page
	q := url.Values{"path": {path}}
	if err := c.do(ctx, http.MethodGet, "/projects/"+seg(projectID)+"/pages?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePage(ctx context.Context, projectID, path string, sections []pages.Section) (*pages.Page, error) {
	in := map[string]any{"path": path, "sections": sections}
	return c.page(ctx, http.MethodPost, "/projects/"+seg(projectID)+"/pages", in)
}

func (c *Client) CreateDraft(ctx context.Context, publishedPageID string) (*pages.Page, error) {
	return c.page(ctx, http.MethodPost, "/pages/"+seg(publishedPageID)+"/draft", nil)
}

func (c *Client) SaveDraft(ctx context.Context, pageID string, content pages.Content) (*pages.Page, error) {
	return c.page(ctx, http.MethodPut, "/pages/"+seg(pageID), content)
}

func (c *Client) Publish(ctx context.Context, pageID string) (*pages.Page, error) {
	return c.page(ctx, http.MethodPost, "/pages/"+seg(pageID)+"/publish", nil)
}

func (c *Client) RestoreVersion(ctx context.Context, archivedPageID string) (*pages.Page, error) {
	return c.page(ctx, http.MethodPost, "/pages/"+seg(archivedPageID)+"/restore", nil)
}

func (c *Client) DeleteVersion(ctx context.Context, pageID string) error {
	return c.do(ctx, http.MethodDelete, "/pages/"+seg(pageID), nil, nil)
}

func (c *Client) DeleteAllVersionsForPath(ctx context.Context, projectID, path string) error {
	q := url.Values{"path": {path}}
	return c.do(ctx, http.MethodDelete, "/projects/"+seg(projectID)+"/pages?"+q.Encode(), nil, nil)
}

// Diff compares two versions on the server.
func (c *Client) Diff(ctx context.Context, basePageID, headPageID string) (*pages.VersionDiff, error) {
	var d pages.VersionDiff
	q := url.Values{"base": {basePageID}}
	if err := c.do(ctx, http.MethodGet, "/pages/"+seg(headPageID)+"/diff?"+q.Encode(), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ─── Edits and skills ──────────────────────────────────────────────────

func (c *Client) EditElement(ctx context.Context, pageID string, req editsession.EditRequest) (*editsession.EditResult, error) {
	var res editsession.EditResult
	if err := c.do(ctx, http.MethodPost, "/pages/"+seg(pageID)+"/edit", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) StartSkillGeneration(ctx context.Context, resourceID, prompt string) error {
	return c.do(ctx, http.MethodPost, "/skills/"+seg(resourceID), map[string]string{"prompt": prompt}, nil)
}

func (c *Client) FetchSkillStatus(ctx context.Context, resourceID string) (*skills.Skill, error) {
	var sk skills.Skill
	if err := c.do(ctx, http.MethodGet, "/skills/"+seg(resourceID), nil, &sk); err != nil {
		return nil, err
	}
	return &sk, nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}
