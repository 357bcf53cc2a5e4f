// Package worker simulates the externally performed pipeline stages and
// skill jobs for the dev server. Each triggered project or skill runs as a
// background job that advances rows in the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/scrape"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
)

var ErrShutdown = errors.New("runner is shut down")

// Store is the persistence the runner drives. *store.Store satisfies it.
type Store interface {
	FetchProjectStatus(ctx context.Context, projectID string) (*pipeline.ProjectState, error)
	SaveConfiguration(ctx context.Context, projectID string, cfg pipeline.Config) error
	StartPipeline(ctx context.Context, projectID string) (bool, error)
	AdvanceStage(ctx context.Context, projectID string, expected status.ProjectStatus, artifacts map[string]string) (status.ProjectStatus, error)
	TemplatePages(ctx context.Context, templateID string) ([]pipeline.TemplatePage, error)
	ListVersions(ctx context.Context, projectID, path string) ([]*pages.Page, error)
	CreatePublishedPage(ctx context.Context, projectID, path string, sections []pages.Section) (*pages.Page, error)

	BeginSkill(ctx context.Context, resourceID, prompt string) error
	FetchSkillStatus(ctx context.Context, resourceID string) (*skills.Skill, error)
	CompleteSkill(ctx context.Context, resourceID, artifact string) error
	FailSkill(ctx context.Context, resourceID, reason string) error
}

// Scraper summarizes a business website. *scrape.Scraper satisfies it.
type Scraper interface {
	Scrape(ctx context.Context, rawURL string) (*scrape.Summary, error)
}

// Writer produces a skill artifact from a prompt.
type Writer interface {
	WriteSkill(ctx context.Context, prompt string) (string, error)
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, prompt string) (string, error)

func (f WriterFunc) WriteSkill(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

type JobStatus string

const (
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

const (
	JobPipeline = "pipeline"
	JobSkill    = "skill"
)

type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Target    string    `json:"target"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// Runner implements pipeline.Backend and skills.Backend on top of a Store.
// Triggers are idempotent: a target with a running job is left alone.
type Runner struct {
	store  Store
	writer  Writer
	scraper Scraper
	cfg     Config
	logger  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	active     map[string]string // target -> running job id
	closed     bool
}

var (
	_ pipeline.Backend = (*Runner)(nil)
	_ skills.Backend   = (*Runner)(nil)
)

func New(st Store, writer Writer, cfg Config, logger logging.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	cfg = cfg.withDefaults()
	logger = logging.OrNop(logger).With(logging.Field{Key: "component", Value: "worker"})
	var scraper Scraper
	if cfg.ScrapeWebsites {
		scraper = scrape.New(&http.Client{Timeout: cfg.ScrapeTimeout}, logger)
	}
	return &Runner{
		store:      st,
		writer:     writer,
		scraper:    scraper,
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
		active:     make(map[string]string),
	}
}

func (r *Runner) FetchProjectStatus(ctx context.Context, projectID string) (*pipeline.ProjectState, error) {
	return r.store.FetchProjectStatus(ctx, projectID)
}

func (r *Runner) SaveConfiguration(ctx context.Context, projectID string, cfg pipeline.Config) error {
	return r.store.SaveConfiguration(ctx, projectID, cfg)
}

// TriggerPipelineStart moves a configured project out of CREATED and starts
// the stage job. Repeats while a job runs, or after READY, do nothing.
func (r *Runner) TriggerPipelineStart(ctx context.Context, projectID string, cfg pipeline.Config) error {
	p, err := r.store.FetchProjectStatus(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Config == nil && cfg.PlaceID != "" {
		if err := r.store.SaveConfiguration(ctx, projectID, cfg); err != nil {
			return fmt.Errorf("save configuration: %w", err)
		}
	}
	if _, err := r.store.StartPipeline(ctx, projectID); err != nil {
		return err
	}
	if p.Status.IsTerminal() {
		return nil
	}
	_, err = r.startJob(JobPipeline, projectID, func(ctx context.Context) error {
		return r.runPipeline(ctx, projectID)
	})
	return err
}

func (r *Runner) StartSkillGeneration(ctx context.Context, resourceID, prompt string) error {
	r.jobsMu.Lock()
	_, running := r.active[JobSkill+":"+resourceID]
	closed := r.closed
	r.jobsMu.Unlock()
	if closed {
		return ErrShutdown
	}
	if running {
		return nil
	}
	if err := r.store.BeginSkill(ctx, resourceID, prompt); err != nil {
		return err
	}
	_, err := r.startJob(JobSkill, resourceID, func(ctx context.Context) error {
		return r.runSkill(ctx, resourceID, prompt)
	})
	return err
}

func (r *Runner) FetchSkillStatus(ctx context.Context, resourceID string) (*skills.Skill, error) {
	return r.store.FetchSkillStatus(ctx, resourceID)
}

// startJob runs fn in the background unless target already has a running
// job of the same type, in which case that job is returned.
func (r *Runner) startJob(typ, target string, fn func(ctx context.Context) error) (*Job, error) {
	key := typ + ":" + target

	r.jobsMu.Lock()
	if r.closed {
		r.jobsMu.Unlock()
		return nil, ErrShutdown
	}
	if id, ok := r.active[key]; ok {
		j := *r.jobs[id]
		r.jobsMu.Unlock()
		return &j, nil
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Target:    target,
		Status:    JobRunning,
		StartedAt: time.Now().UTC(),
	}
	jobCtx, cancel := context.WithCancel(r.ctx)
	r.jobs[job.ID] = job
	r.jobCancels[job.ID] = cancel
	r.active[key] = job.ID
	r.wg.Add(1)
	snapshot := *job
	r.jobsMu.Unlock()

	logger := r.logger.With(
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "type", Value: typ},
		logging.Field{Key: "target", Value: target})
	logger.Info("job started")

	go func() {
		defer r.wg.Done()
		err := fn(jobCtx)

		r.jobsMu.Lock()
		defer r.jobsMu.Unlock()
		j := r.jobs[job.ID]
		j.EndedAt = time.Now().UTC()
		switch {
		case err == nil:
			j.Status = JobDone
		case jobCtx.Err() != nil:
			j.Status = JobCanceled
			j.Error = jobCtx.Err().Error()
		default:
			j.Status = JobFailed
			j.Error = err.Error()
		}
		delete(r.jobCancels, job.ID)
		delete(r.active, key)
		cancel()

		if j.Status == JobFailed {
			logger.Warn("job failed", logging.Field{Key: "error", Value: j.Error})
		} else {
			logger.Info("job finished", logging.Field{Key: "status", Value: string(j.Status)})
		}
	}()
	return &snapshot, nil
}

// WithScraper replaces the website scraper. A nil scraper disables scraping.
func (r *Runner) WithScraper(s Scraper) *Runner {
	r.scraper = s
	return r
}

// CancelJob stops a running job. The row it was advancing stays where it is.
func (r *Runner) CancelJob(jobID string) {
	r.jobsMu.Lock()
	cancel := r.jobCancels[jobID]
	r.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GetJob returns a copy of the job, or nil.
func (r *Runner) GetJob(jobID string) *Job {
	r.jobsMu.Lock()
	defer r.jobsMu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// ActiveJob returns the running job for a target, or nil.
func (r *Runner) ActiveJob(typ, target string) *Job {
	r.jobsMu.Lock()
	defer r.jobsMu.Unlock()
	id, ok := r.active[typ+":"+target]
	if !ok {
		return nil
	}
	cp := *r.jobs[id]
	return &cp
}

// Shutdown cancels every job and waits for them to exit or ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.jobsMu.Lock()
	r.closed = true
	r.jobsMu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("runner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) runSkill(ctx context.Context, resourceID, prompt string) error {
	if err := sleep(ctx, r.cfg.SkillDelay); err != nil {
		return err
	}
	if strings.TrimSpace(prompt) == "" {
		return r.failSkill(ctx, resourceID, errors.New("empty prompt"))
	}
	artifact, err := r.writer.WriteSkill(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return r.failSkill(ctx, resourceID, err)
	}
	return r.store.CompleteSkill(context.WithoutCancel(ctx), resourceID, artifact)
}

func (r *Runner) failSkill(ctx context.Context, resourceID string, cause error) error {
	if err := r.store.FailSkill(context.WithoutCancel(ctx), resourceID, cause.Error()); err != nil {
		return err
	}
	return cause
}

// runPipeline advances the project one stage per StageDelay until READY.
func (r *Runner) runPipeline(ctx context.Context, projectID string) error {
	for {
		if err := sleep(ctx, r.cfg.StageDelay); err != nil {
			return err
		}
		p, err := r.store.FetchProjectStatus(ctx, projectID)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return nil
		}
		if p.Config == nil {
			return fmt.Errorf("project %s is %s without a configuration", projectID, p.Status)
		}
		stage, ok := stages[p.Status]
		if !ok {
			return fmt.Errorf("no stage runs from %s", p.Status)
		}
		artifacts, err := stage(ctx, r, p)
		if err != nil {
			return fmt.Errorf("stage %s: %w", p.Status, err)
		}
		next, err := r.store.AdvanceStage(ctx, projectID, p.Status, artifacts)
		if err != nil {
			return err
		}
		r.logger.Debug("stage complete",
			logging.Field{Key: "project_id", Value: projectID},
			logging.Field{Key: "status", Value: string(next)})
	}
}

type stageFunc func(ctx context.Context, r *Runner, p *pipeline.ProjectState) (map[string]string, error)

// stages is keyed by the status a stage starts from.
var stages = map[status.ProjectStatus]stageFunc{
	status.GBPSelected: func(_ context.Context, _ *Runner, p *pipeline.ProjectState) (map[string]string, error) {
		return map[string]string{"gbp_place_id": p.Config.PlaceID}, nil
	},
	status.GBPScraped: func(ctx context.Context, r *Runner, p *pipeline.ProjectState) (map[string]string, error) {
		if p.Config.WebsiteURL == "" {
			return map[string]string{"website_scraped": "skipped"}, nil
		}
		return r.scrapeWebsite(ctx, p.Config.WebsiteURL), nil
	},
	status.WebsiteScraped: func(_ context.Context, _ *Runner, p *pipeline.ProjectState) (map[string]string, error) {
		n := p.StageArtifacts["website_images"]
		if n == "" {
			n = "0"
		}
		return map[string]string{"images_analyzed": n}, nil
	},
	status.ImagesAnalyzed: func(ctx context.Context, r *Runner, p *pipeline.ProjectState) (map[string]string, error) {
		n, err := r.generatePages(ctx, p)
		if err != nil {
			return nil, err
		}
		return map[string]string{"generated_pages": strconv.Itoa(n)}, nil
	},
	status.HTMLGenerated: func(_ context.Context, _ *Runner, _ *pipeline.ProjectState) (map[string]string, error) {
		return nil, nil
	},
}

// scrapeWebsite records what the site yielded. A failed fetch is recorded
// and the pipeline carries on without it.
func (r *Runner) scrapeWebsite(ctx context.Context, rawURL string) map[string]string {
	out := map[string]string{"website_url": rawURL}
	if r.scraper == nil {
		return out
	}
	sum, err := r.scraper.Scrape(ctx, rawURL)
	if err != nil {
		r.logger.Warn("website scrape failed",
			logging.Field{Key: "url", Value: rawURL},
			logging.Field{Key: "error", Value: err.Error()})
		out["website_scraped"] = "failed"
		out["website_error"] = err.Error()
		return out
	}
	out["website_url"] = sum.URL
	out["website_scraped"] = "ok"
	out["website_title"] = sum.Title
	out["website_images"] = strconv.Itoa(len(sum.Images))
	if sum.Description != "" {
		out["website_description"] = sum.Description
	}
	return out
}

// generatePages publishes version 1 of every template page the project does
// not have yet, so a rerun after a crash does not duplicate pages.
func (r *Runner) generatePages(ctx context.Context, p *pipeline.ProjectState) (int, error) {
	tpages, err := r.store.TemplatePages(ctx, p.Config.TemplateID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, tp := range tpages {
		existing, err := r.store.ListVersions(ctx, p.ID, tp.Path)
		if err != nil {
			return n, err
		}
		if len(existing) > 0 {
			continue
		}
		if _, err := r.store.CreatePublishedPage(ctx, p.ID, tp.Path, applyColors(tp.Sections, p.Config)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func applyColors(sections []pages.Section, cfg *pipeline.Config) []pages.Section {
	repl := strings.NewReplacer(
		"{{primary_color}}", cfg.PrimaryColor,
		"{{accent_color}}", cfg.AccentColor)
	out := make([]pages.Section, len(sections))
	for i, s := range sections {
		out[i] = pages.Section{Name: s.Name, Content: repl.Replace(s.Content)}
	}
	return out
}
