package worker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/scrape"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
	"github.com/Hamiltonwise/signalsai-sub006/internal/store"
	"github.com/Hamiltonwise/signalsai-sub006/internal/testutil"
	"github.com/Hamiltonwise/signalsai-sub006/internal/worker"
)

const delay = 2 * time.Millisecond

func echoWriter() worker.Writer {
	return worker.WriterFunc(func(_ context.Context, prompt string) (string, error) {
		return "# " + prompt, nil
	})
}

func setup(t *testing.T, w worker.Writer, cfg worker.Config) (*store.Store, *worker.Runner) {
	t.Helper()
	st, err := store.Open(store.Config{Dir: t.TempDir()}, testutil.NewDummyLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	r := worker.New(st, w, cfg, testutil.NewDummyLogger())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
		st.Close()
	})
	return st, r
}

func configuredProject(t *testing.T, st *store.Store) (*pipeline.ProjectState, pipeline.Config) {
	t.Helper()
	ctx := context.Background()
	tpl, err := st.CreateTemplate(ctx, "clinic", []pipeline.TemplatePage{
		{Path: "/", Sections: []pages.Section{{Name: "hero", Content: `<h1 style="color:{{primary_color}}">Hi</h1>`}}},
		{Path: "/about", Sections: []pages.Section{{Name: "body", Content: "<p>About</p>"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := st.CreateProject(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	return p, pipeline.Config{PlaceID: "place-9", TemplateID: tpl.ID, PrimaryColor: "#0a0"}
}

func waitJob(t *testing.T, r *worker.Runner, typ, target string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.ActiveJob(typ, target) != nil {
		if time.Now().After(deadline) {
			t.Fatalf("%s job for %s still running", typ, target)
		}
		time.Sleep(time.Millisecond)
	}
}

// ─── Pipeline ──────────────────────────────────────────────────────────

func TestRunner_AdvancesToReadyAndGeneratesPages(t *testing.T) {
	t.Parallel()
	st, r := setup(t, echoWriter(), worker.Config{StageDelay: delay})
	ctx := context.Background()
	p, cfg := configuredProject(t, st)

	if err := r.SaveConfiguration(ctx, p.ID, cfg); err != nil {
		t.Fatal(err)
	}
	if err := r.TriggerPipelineStart(ctx, p.ID, cfg); err != nil {
		t.Fatal(err)
	}
	waitJob(t, r, worker.JobPipeline, p.ID)

	got, _ := r.FetchProjectStatus(ctx, p.ID)
	if got.Status != status.Ready {
		t.Fatalf("status = %s, want READY", got.Status)
	}
	if got.StageArtifacts["generated_pages"] != "2" || got.StageArtifacts["gbp_place_id"] != "place-9" {
		t.Fatalf("artifacts = %v", got.StageArtifacts)
	}

	home, _ := st.ListVersions(ctx, p.ID, "/")
	if len(home) != 1 || home[0].Status != status.Published {
		t.Fatalf("home versions = %+v", home)
	}
	if !strings.Contains(home[0].Sections[0].Content, "#0a0") {
		t.Fatalf("colors not applied: %q", home[0].Sections[0].Content)
	}
}

func TestRunner_TriggerIsIdempotent(t *testing.T) {
	t.Parallel()
	st, r := setup(t, echoWriter(), worker.Config{StageDelay: time.Hour})
	ctx := context.Background()
	p, cfg := configuredProject(t, st)

	// configuration travels with the trigger
	if err := r.TriggerPipelineStart(ctx, p.ID, cfg); err != nil {
		t.Fatal(err)
	}
	first := r.ActiveJob(worker.JobPipeline, p.ID)
	if first == nil {
		t.Fatal("no job started")
	}
	if err := r.TriggerPipelineStart(ctx, p.ID, cfg); err != nil {
		t.Fatal(err)
	}
	if again := r.ActiveJob(worker.JobPipeline, p.ID); again == nil || again.ID != first.ID {
		t.Fatalf("second trigger started another job: %+v vs %+v", again, first)
	}
	got, _ := r.FetchProjectStatus(ctx, p.ID)
	if got.Status != status.GBPSelected {
		t.Fatalf("status = %s", got.Status)
	}

	r.CancelJob(first.ID)
	waitJob(t, r, worker.JobPipeline, p.ID)
	if j := r.GetJob(first.ID); j.Status != worker.JobCanceled {
		t.Fatalf("job status = %s", j.Status)
	}
}

func TestRunner_TriggerUnconfigured(t *testing.T) {
	t.Parallel()
	st, r := setup(t, echoWriter(), worker.Config{StageDelay: delay})
	p, _ := configuredProject(t, st)
	err := r.TriggerPipelineStart(context.Background(), p.ID, pipeline.Config{})
	if !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func runToReady(t *testing.T, st *store.Store, r *worker.Runner, p *pipeline.ProjectState, cfg pipeline.Config) *pipeline.ProjectState {
	t.Helper()
	ctx := context.Background()
	if err := r.TriggerPipelineStart(ctx, p.ID, cfg); err != nil {
		t.Fatal(err)
	}
	waitJob(t, r, worker.JobPipeline, p.ID)
	got, err := st.FetchProjectStatus(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != status.Ready {
		t.Fatalf("status = %s, want READY", got.Status)
	}
	return got
}

func TestRunner_ScrapesWebsite(t *testing.T) {
	t.Parallel()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><head><title>Smile Dental</title></head>
<body><img src="/a.jpg"><img src="/b.jpg"><img src="/c.jpg"></body></html>`))
	}))
	defer site.Close()

	st, r := setup(t, echoWriter(), worker.Config{StageDelay: delay})
	r.WithScraper(scrape.New(site.Client(), testutil.NewDummyLogger()))
	p, cfg := configuredProject(t, st)
	cfg.WebsiteURL = site.URL

	got := runToReady(t, st, r, p, cfg)
	a := got.StageArtifacts
	if a["website_scraped"] != "ok" || a["website_title"] != "Smile Dental" {
		t.Fatalf("artifacts = %v", a)
	}
	if a["website_images"] != "3" || a["images_analyzed"] != "3" {
		t.Fatalf("image counts = %q / %q", a["website_images"], a["images_analyzed"])
	}
}

func TestRunner_ScrapeFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer site.Close()

	st, r := setup(t, echoWriter(), worker.Config{StageDelay: delay})
	r.WithScraper(scrape.New(site.Client(), nil))
	p, cfg := configuredProject(t, st)
	cfg.WebsiteURL = site.URL

	got := runToReady(t, st, r, p, cfg)
	if got.StageArtifacts["website_scraped"] != "failed" || got.StageArtifacts["website_error"] == "" {
		t.Fatalf("artifacts = %v", got.StageArtifacts)
	}
	if got.StageArtifacts["generated_pages"] != "2" {
		t.Fatalf("pages not generated after scrape failure: %v", got.StageArtifacts)
	}
}

func TestRunner_NoScraperRecordsURL(t *testing.T) {
	t.Parallel()
	st, r := setup(t, echoWriter(), worker.Config{StageDelay: delay})
	p, cfg := configuredProject(t, st)
	cfg.WebsiteURL = "https://never-fetched.invalid"

	got := runToReady(t, st, r, p, cfg)
	if got.StageArtifacts["website_url"] != cfg.WebsiteURL || got.StageArtifacts["images_analyzed"] != "0" {
		t.Fatalf("artifacts = %v", got.StageArtifacts)
	}
	if _, ok := got.StageArtifacts["website_scraped"]; ok {
		t.Fatalf("unexpected scrape result: %v", got.StageArtifacts)
	}
}

// The controller only triggers CREATED -> GBP_SELECTED; every later stage
// is observed through polling the runner.
func TestRunner_DrivesController(t *testing.T) {
	t.Parallel()
	st, r := setup(t, echoWriter(), worker.Config{StageDelay: delay})
	ctx := context.Background()
	p, cfg := configuredProject(t, st)

	c := pipeline.New(r, st, p.ID, pipeline.Options{PollInterval: delay, Logger: testutil.NewDummyLogger()})
	defer c.Close()
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Select(ctx, pipeline.Place{ID: cfg.PlaceID}, cfg); err != nil {
		t.Fatal(err)
	}

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("controller never reached READY, state %s", c.State())
	}
	if s := c.State(); s.Status != status.Ready || !s.IsConfirmed() {
		t.Fatalf("final state = %s", s)
	}
	var prev status.ProjectStatus = status.Created
	for _, h := range c.History() {
		if h.Status.Before(prev) {
			t.Fatalf("history regressed: %v", c.History())
		}
		prev = h.Status
	}
}

// ─── Skills ────────────────────────────────────────────────────────────

func TestRunner_SkillReady(t *testing.T) {
	t.Parallel()
	_, r := setup(t, echoWriter(), worker.Config{SkillDelay: delay})
	g := skills.NewGenerator(r, skills.Config{PollInterval: delay, MaxAttempts: 500}, testutil.NewDummyLogger())

	h, err := g.Generate(context.Background(), "res-1", "dentist bio", nil)
	if err != nil {
		t.Fatal(err)
	}
	sk, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if sk.Status != status.SkillReady || sk.Artifact != "# dentist bio" {
		t.Fatalf("skill = %+v", sk)
	}
}

func TestRunner_SkillFailed(t *testing.T) {
	t.Parallel()
	broken := worker.WriterFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model overloaded")
	})
	_, r := setup(t, broken, worker.Config{SkillDelay: delay})
	g := skills.NewGenerator(r, skills.Config{PollInterval: delay, MaxAttempts: 500}, testutil.NewDummyLogger())

	h, err := g.Generate(context.Background(), "res-2", "anything", nil)
	if err != nil {
		t.Fatal(err)
	}
	sk, err := h.Wait(context.Background())
	if !errors.Is(err, skills.ErrFailed) {
		t.Fatalf("expected ErrFailed, got %v", err)
	}
	if sk == nil || sk.Error != "model overloaded" {
		t.Fatalf("skill = %+v", sk)
	}
}

func TestRunner_ShutdownRejectsNewJobs(t *testing.T) {
	t.Parallel()
	st, r := setup(t, echoWriter(), worker.Config{StageDelay: time.Hour})
	p, cfg := configuredProject(t, st)
	ctx := context.Background()

	if err := r.TriggerPipelineStart(ctx, p.ID, cfg); err != nil {
		t.Fatal(err)
	}
	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := r.Shutdown(sctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := r.StartSkillGeneration(ctx, "res-3", "x"); !errors.Is(err, worker.ErrShutdown) {
		t.Fatalf("expected ErrShutdown, got %v", err)
	}
}
