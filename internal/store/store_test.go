package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
	"github.com/Hamiltonwise/signalsai-sub006/internal/store"
	"github.com/Hamiltonwise/signalsai-sub006/internal/testutil"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Dir: t.TempDir()}, testutil.NewDummyLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTemplate(t *testing.T, s *store.Store) *store.Template {
	t.Helper()
	tpl, err := s.CreateTemplate(context.Background(), "dental", []pipeline.TemplatePage{
		{Path: "/", Sections: []pages.Section{{Name: "hero", Content: "<h1>Welcome</h1>"}}},
		{Path: "/about", Sections: []pages.Section{{Name: "body", Content: "<p>About us</p>"}}},
	})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	return tpl
}

func seedProject(t *testing.T, s *store.Store) *pipeline.ProjectState {
	t.Helper()
	p, err := s.CreateProject(context.Background(), "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	return p
}

func statuses(vs []*pages.Page) map[int]status.PageStatus {
	out := make(map[int]status.PageStatus, len(vs))
	for _, v := range vs {
		out[v.Version] = v.Status
	}
	return out
}

func publishedCount(vs []*pages.Page) int {
	n := 0
	for _, v := range vs {
		if v.Status == status.Published {
			n++
		}
	}
	return n
}

// ─── Open ──────────────────────────────────────────────────────────────

func TestOpen_NilLogger(t *testing.T) {
	t.Parallel()
	if _, err := store.Open(store.Config{Dir: t.TempDir()}, nil); err == nil {
		t.Fatal("expected error for nil logger")
	}
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := store.Open(store.Config{Dir: dir}, testutil.NewDummyLogger())
	if err != nil {
		t.Fatal(err)
	}
	p, _ := s.CreateProject(context.Background(), "clinic")
	s.Close()

	s2, err := store.Open(store.Config{Dir: dir}, testutil.NewDummyLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.FetchProjectStatus(context.Background(), p.ID)
	if err != nil || got.GeneratedHostname != "clinic" {
		t.Fatalf("FetchProjectStatus after reopen: %+v %v", got, err)
	}
}

// ─── Projects ──────────────────────────────────────────────────────────

func TestProject_ConfigurationIsCapturedOnce(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	tpl := seedTemplate(t, s)
	p := seedProject(t, s)

	if p.Status != status.Created || p.Config != nil {
		t.Fatalf("new project = %+v", p)
	}
	if _, err := s.StartPipeline(ctx, p.ID); !errors.Is(err, store.ErrNotConfigured) {
		t.Fatalf("StartPipeline unconfigured: %v", err)
	}

	cfg := pipeline.Config{PlaceID: "place-1", TemplateID: tpl.ID, PrimaryColor: "#112233"}
	if err := s.SaveConfiguration(ctx, p.ID, pipeline.Config{PlaceID: "place-0", TemplateID: tpl.ID}); err != nil {
		t.Fatal(err)
	}
	// replaceable while CREATED
	if err := s.SaveConfiguration(ctx, p.ID, cfg); err != nil {
		t.Fatal(err)
	}
	started, err := s.StartPipeline(ctx, p.ID)
	if err != nil || !started {
		t.Fatalf("StartPipeline = %v, %v", started, err)
	}
	again, err := s.StartPipeline(ctx, p.ID)
	if err != nil || again {
		t.Fatalf("second StartPipeline = %v, %v", again, err)
	}

	if err := s.SaveConfiguration(ctx, p.ID, cfg); err != nil {
		t.Fatalf("identical repeat should be a no-op: %v", err)
	}
	changed := cfg
	changed.PlaceID = "place-2"
	if err := s.SaveConfiguration(ctx, p.ID, changed); !errors.Is(err, pipeline.ErrAlreadyConfigured) {
		t.Fatalf("changed config after start: %v", err)
	}

	got, _ := s.FetchProjectStatus(ctx, p.ID)
	if got.Status != status.GBPSelected || got.Config == nil || *got.Config != cfg {
		t.Fatalf("project = %+v", got)
	}
}

func TestProject_SaveConfigurationRejectsUnknownTemplate(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	p := seedProject(t, s)
	err := s.SaveConfiguration(context.Background(), p.ID, pipeline.Config{PlaceID: "x", TemplateID: "nope"})
	if !errors.Is(err, pipeline.ErrNoTemplate) {
		t.Fatalf("expected ErrNoTemplate, got %v", err)
	}
}

func TestProject_AdvanceStage(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	tpl := seedTemplate(t, s)
	p := seedProject(t, s)
	_ = s.SaveConfiguration(ctx, p.ID, pipeline.Config{PlaceID: "p", TemplateID: tpl.ID})
	_, _ = s.StartPipeline(ctx, p.ID)

	if _, err := s.AdvanceStage(ctx, p.ID, status.GBPScraped, nil); !errors.Is(err, store.ErrStageMismatch) {
		t.Fatalf("advance from wrong stage: %v", err)
	}

	next, err := s.AdvanceStage(ctx, p.ID, status.GBPSelected, map[string]string{"gbp": "blob-1"})
	if err != nil || next != status.GBPScraped {
		t.Fatalf("AdvanceStage = %s, %v", next, err)
	}
	next, err = s.AdvanceStage(ctx, p.ID, status.GBPScraped, map[string]string{"website": "blob-2"})
	if err != nil || next != status.WebsiteScraped {
		t.Fatalf("AdvanceStage = %s, %v", next, err)
	}

	got, _ := s.FetchProjectStatus(ctx, p.ID)
	if got.StageArtifacts["gbp"] != "blob-1" || got.StageArtifacts["website"] != "blob-2" {
		t.Fatalf("artifacts not merged: %v", got.StageArtifacts)
	}
	if _, err := s.AdvanceStage(ctx, p.ID, status.Ready, nil); !errors.Is(err, store.ErrStageMismatch) {
		t.Fatalf("READY has no next: %v", err)
	}
}

func TestProject_NotFoundAndHostname(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	if _, err := s.FetchProjectStatus(ctx, "missing"); !errors.Is(err, pipeline.ErrProjectNotFound) {
		t.Fatalf("expected ErrProjectNotFound, got %v", err)
	}
	if _, err := s.CreateProject(ctx, "Clinic"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateProject(ctx, "clinic"); !errors.Is(err, store.ErrHostnameTaken) {
		t.Fatalf("expected ErrHostnameTaken, got %v", err)
	}
	if err := s.DeleteProject(ctx, "missing"); !errors.Is(err, pipeline.ErrProjectNotFound) {
		t.Fatalf("DeleteProject missing: %v", err)
	}
}

// ─── Templates ─────────────────────────────────────────────────────────

func TestTemplates(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	tpl := seedTemplate(t, s)

	tp, err := s.TemplatePages(ctx, tpl.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(tp) != 2 || tp[0].Path != "/" || tp[1].Path != "/about" {
		t.Fatalf("template pages out of order: %+v", tp)
	}
	if tp[1].Sections[0].Content != "<p>About us</p>" {
		t.Fatalf("sections not loaded: %+v", tp[1].Sections)
	}

	empty, _ := s.CreateTemplate(ctx, "blank", nil)
	if got, err := s.TemplatePages(ctx, empty.ID); err != nil || len(got) != 0 {
		t.Fatalf("empty template = %v, %v", got, err)
	}
	if _, err := s.TemplatePages(ctx, "missing"); !errors.Is(err, pipeline.ErrNoTemplate) {
		t.Fatalf("expected ErrNoTemplate, got %v", err)
	}

	list, _ := s.ListTemplates(ctx)
	if len(list) != 2 || list[0].PageCount != 2 || list[1].PageCount != 0 {
		t.Fatalf("ListTemplates = %+v", list)
	}
}

// ─── Pages ─────────────────────────────────────────────────────────────

func TestPages_AboutScenario(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	v1, err := s.CreatePage(ctx, p.ID, "about", []pages.Section{{Name: "body", Content: "<p>v1</p>"}})
	if err != nil {
		t.Fatal(err)
	}
	if v1.Path != "/about" || v1.Version != 1 || v1.Status != status.Draft {
		t.Fatalf("v1 = %+v", v1)
	}
	if _, err := s.CreatePage(ctx, p.ID, "/about", nil); !errors.Is(err, pages.ErrPathExists) {
		t.Fatalf("expected ErrPathExists, got %v", err)
	}
	if _, err := s.Publish(ctx, v1.ID); err != nil {
		t.Fatal(err)
	}

	v2, err := s.CreateDraft(ctx, v1.ID)
	if err != nil || v2.Version != 2 || v2.Sections[0].Content != "<p>v1</p>" {
		t.Fatalf("CreateDraft = %+v, %v", v2, err)
	}
	same, _ := s.CreateDraft(ctx, v1.ID)
	if same.ID != v2.ID {
		t.Fatalf("CreateDraft not idempotent: %s vs %s", same.ID, v2.ID)
	}

	history := pages.ChatHistory{"el-1": {{Role: pages.RoleUser, Content: "bolder"}}}
	if _, err := s.SaveDraft(ctx, v2.ID, pages.Content{Sections: []pages.Section{{Name: "body", Content: "<p>v2</p>"}}, ChatHistory: history}); err != nil {
		t.Fatal(err)
	}
	saved, _ := s.SaveDraft(ctx, v2.ID, pages.Content{Sections: []pages.Section{{Name: "body", Content: "<p>v2b</p>"}}})
	if len(saved.EditChatHistory["el-1"]) != 1 {
		t.Fatalf("nil history must leave stored history: %+v", saved.EditChatHistory)
	}
	if _, err := s.SaveDraft(ctx, v1.ID, pages.Content{}); !errors.Is(err, pages.ErrNotADraft) {
		t.Fatalf("SaveDraft on published: %v", err)
	}

	if _, err := s.Publish(ctx, v2.ID); err != nil {
		t.Fatal(err)
	}
	vs, _ := s.ListVersions(ctx, p.ID, "/about")
	st := statuses(vs)
	if st[1] != status.Inactive || st[2] != status.Published {
		t.Fatalf("after publish: %v", st)
	}

	v3, err := s.RestoreVersion(ctx, v1.ID)
	if err != nil || v3.Version != 3 || v3.Status != status.Draft || v3.ID == v1.ID {
		t.Fatalf("RestoreVersion = %+v, %v", v3, err)
	}
	if _, err := s.RestoreVersion(ctx, v2.ID); !errors.Is(err, pages.ErrNotInactive) {
		t.Fatalf("restore published: %v", err)
	}
}

func TestPages_DeleteGuards(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	v1, _ := s.CreatePage(ctx, p.ID, "/", nil)
	if err := s.DeleteVersion(ctx, v1.ID); !errors.Is(err, pages.ErrSoleVersion) {
		t.Fatalf("delete sole version: %v", err)
	}
	_, _ = s.Publish(ctx, v1.ID)
	v2, _ := s.CreateDraft(ctx, v1.ID)
	if err := s.DeleteVersion(ctx, v1.ID); !errors.Is(err, pages.ErrCannotDeletePublished) {
		t.Fatalf("delete published: %v", err)
	}
	if err := s.DeleteVersion(ctx, v2.ID); err != nil {
		t.Fatalf("delete draft: %v", err)
	}
	if _, err := s.FetchPage(ctx, v2.ID); !errors.Is(err, pages.ErrPageNotFound) {
		t.Fatalf("deleted page still fetchable: %v", err)
	}
}

func TestPages_VersionsNeverReused(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	v1, _ := s.CreatePage(ctx, p.ID, "/m", nil)
	_, _ = s.Publish(ctx, v1.ID)
	v2, _ := s.CreateDraft(ctx, v1.ID)
	if err := s.DeleteVersion(ctx, v2.ID); err != nil {
		t.Fatal(err)
	}
	v3, _ := s.CreateDraft(ctx, v1.ID)
	if v3.Version != 3 {
		t.Fatalf("version after delete = %d, want 3", v3.Version)
	}

	if err := s.DeleteAllVersionsForPath(ctx, p.ID, "/m"); err != nil {
		t.Fatal(err)
	}
	vs, _ := s.ListVersions(ctx, p.ID, "/m")
	if len(vs) != 0 {
		t.Fatalf("versions left: %d", len(vs))
	}
	fresh, err := s.CreatePage(ctx, p.ID, "/m", nil)
	if err != nil || fresh.Version != 4 {
		t.Fatalf("fresh page = %+v, %v", fresh, err)
	}
}

// The single published version per path is enforced by the store, not by
// the client-side manager, which takes no locks.
func TestPages_ConcurrentPublishersKeepOnePublished(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	p := seedProject(t, s)

	v1, _ := s.CreatePage(ctx, p.ID, "/race", nil)
	_, _ = s.Publish(ctx, v1.ID)
	v2, _ := s.CreateDraft(ctx, v1.ID)
	_, _ = s.Publish(ctx, v2.ID)

	var drafts []*pages.Page
	for i := 0; i < 4; i++ {
		d, err := s.RestoreVersion(ctx, v1.ID)
		if err != nil {
			t.Fatal(err)
		}
		drafts = append(drafts, d)
	}

	var wg sync.WaitGroup
	for _, d := range drafts {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = s.Publish(ctx, id)
		}(d.ID)
	}
	wg.Wait()

	vs, _ := s.ListVersions(ctx, p.ID, "/race")
	if n := publishedCount(vs); n != 1 {
		t.Fatalf("published versions = %d, want 1 (%v)", n, statuses(vs))
	}
}

func TestPages_ManagerOverStore(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	m := pages.NewManager(s, testutil.NewDummyLogger())

	v1, _ := m.CreatePage(ctx, p.ID, "/svc", []pages.Section{{Name: "a", Content: "one"}})
	if _, err := m.Publish(ctx, v1.ID); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	draft, err := m.CreateDraftFromPublished(ctx, p.ID, "/svc")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.SaveDraft(ctx, draft.ID, []pages.Section{{Name: "a", Content: "two"}}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Publish(ctx, draft.ID); err != nil {
		t.Fatalf("Publish draft: %v", err)
	}
	d, err := m.Diff(ctx, v1.ID, draft.ID)
	if err != nil || !d.Changed() {
		t.Fatalf("Diff = %+v, %v", d, err)
	}
}

// ─── Skills ────────────────────────────────────────────────────────────

func TestSkills(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()

	if _, err := s.FetchSkillStatus(ctx, "r1"); !errors.Is(err, skills.ErrSkillNotFound) {
		t.Fatalf("missing skill: %v", err)
	}
	if err := s.BeginSkill(ctx, "r1", "write a bio"); err != nil {
		t.Fatal(err)
	}
	sk, _ := s.FetchSkillStatus(ctx, "r1")
	if sk.Status != status.SkillGenerating {
		t.Fatalf("status = %s", sk.Status)
	}
	if prompt, _ := s.SkillPrompt(ctx, "r1"); prompt != "write a bio" {
		t.Fatalf("prompt = %q", prompt)
	}
	if err := s.CompleteSkill(ctx, "r1", "# Bio"); err != nil {
		t.Fatal(err)
	}
	if err := s.FailSkill(ctx, "r1", "late"); !errors.Is(err, skills.ErrSkillNotFound) {
		t.Fatalf("finishing a finished job: %v", err)
	}
	sk, _ = s.FetchSkillStatus(ctx, "r1")
	if sk.Status != status.SkillReady || sk.Artifact != "# Bio" {
		t.Fatalf("skill = %+v", sk)
	}

	// restart resets
	_ = s.BeginSkill(ctx, "r1", "again")
	sk, _ = s.FetchSkillStatus(ctx, "r1")
	if sk.Status != status.SkillGenerating || sk.Artifact != "" {
		t.Fatalf("restarted skill = %+v", sk)
	}
	_ = s.FailSkill(ctx, "r1", "model unavailable")
	sk, _ = s.FetchSkillStatus(ctx, "r1")
	if sk.Status != status.SkillFailed || sk.Error != "model unavailable" {
		t.Fatalf("failed skill = %+v", sk)
	}
}

func TestStore_DeleteProjectCascades(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	ctx := context.Background()
	p := seedProject(t, s)
	for i := 0; i < 3; i++ {
		if _, err := s.CreatePage(ctx, p.ID, fmt.Sprintf("/p%d", i), nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	paths, _ := s.ListPaths(ctx, p.ID)
	if len(paths) != 0 {
		t.Fatalf("pages left after project delete: %v", paths)
	}
}
