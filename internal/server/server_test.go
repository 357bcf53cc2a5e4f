package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/editsession"
	"github.com/Hamiltonwise/signalsai-sub006/internal/llm"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/pipeline"
	"github.com/Hamiltonwise/signalsai-sub006/internal/server"
	"github.com/Hamiltonwise/signalsai-sub006/internal/skills"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
	"github.com/Hamiltonwise/signalsai-sub006/internal/store"
	"github.com/Hamiltonwise/signalsai-sub006/internal/testutil"
	"github.com/Hamiltonwise/signalsai-sub006/internal/worker"
)

const testOrigin = "http://app.test"

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	logger := testutil.NewDummyLogger()
	st, err := store.Open(store.Config{Dir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	editor := llm.NewStaticEditor()
	runner := worker.New(st, editor, worker.Config{StageDelay: time.Millisecond, SkillDelay: time.Millisecond}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
		st.Close()
	})

	s, err := server.New(server.Config{
		ListenAddr:     ":0",
		AllowedOrigins: []string{testOrigin},
		Logger:         logger,
	}, st, runner, editor)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, wantStatus, rec.Body.String())
	}
	var e server.ErrorResponse
	decodeJSON(t, rec, &e)
	if e.Code != wantCode {
		t.Errorf("code = %q, want %q (error %q)", e.Code, wantCode, e.Error)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func createProject(t *testing.T, s http.Handler, hostname string) *pipeline.ProjectState {
	t.Helper()
	rec := doJSON(t, s, "POST", "/projects", mustJSON(t, server.CreateProjectRequest{GeneratedHostname: hostname}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: %d %s", rec.Code, rec.Body.String())
	}
	var p pipeline.ProjectState
	decodeJSON(t, rec, &p)
	return &p
}

func createPage(t *testing.T, s http.Handler, projectID, path, content string) *pages.Page {
	t.Helper()
	body := mustJSON(t, server.CreatePageRequest{Path: path, Sections: []pages.Section{{Name: "main", Content: content}}})
	rec := doJSON(t, s, "POST", "/projects/"+projectID+"/pages", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create page: %d %s", rec.Code, rec.Body.String())
	}
	var p pages.Page
	decodeJSON(t, rec, &p)
	return &p
}

func postPage(t *testing.T, s http.Handler, pageID, action string) *pages.Page {
	t.Helper()
	rec := doJSON(t, s, "POST", "/pages/"+pageID+"/"+action, "")
	if rec.Code != http.StatusOK && rec.Code != http.StatusCreated {
		t.Fatalf("%s %s: %d %s", action, pageID, rec.Code, rec.Body.String())
	}
	var p pages.Page
	decodeJSON(t, rec, &p)
	return &p
}

// ─── Middleware ────────────────────────────────────────────────────────

func TestServer_CORS_AllowedOrigin(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/projects", nil)
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, testOrigin)
	}
}

func TestServer_CORS_Preflight(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/pages/abc/publish", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != testOrigin {
		t.Errorf("preflight allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "POST") {
		t.Errorf("preflight allow methods = %q", got)
	}
}

func TestServer_CORS_UnknownOrigin(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/projects", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
	}
}

func TestServer_RequestID(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestServer_Swagger(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/swagger/doc.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("doc.json = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Sitebuilder API") {
		t.Errorf("doc.json does not describe the API: %.200s", rec.Body.String())
	}
}

// ─── Projects ──────────────────────────────────────────────────────────

func TestServer_Projects(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	p := createProject(t, s, "Smile-Dental")
	if p.Status != status.Created || p.GeneratedHostname != "smile-dental" {
		t.Fatalf("unexpected project %+v", p)
	}

	expectError(t, doJSON(t, s, "POST", "/projects", `{"generated_hostname":"smile-dental"}`), http.StatusConflict, server.CodeHostnameTaken)
	expectError(t, doJSON(t, s, "POST", "/projects", `{"hostname":`), http.StatusBadRequest, server.CodeBadRequest)

	rec := doJSON(t, s, "GET", "/projects", "")
	var list []pipeline.ProjectState
	decodeJSON(t, rec, &list)
	if len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("list = %+v", list)
	}

	rec = doJSON(t, s, "GET", "/projects/"+p.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get project = %d", rec.Code)
	}

	if rec := doJSON(t, s, "DELETE", "/projects/"+p.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	expectError(t, doJSON(t, s, "GET", "/projects/"+p.ID, ""), http.StatusNotFound, server.CodeProjectNotFound)
}

func TestServer_TriggerUnconfigured(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := createProject(t, s, "")

	expectError(t, doJSON(t, s, "POST", "/projects/"+p.ID+"/pipeline", ""), http.StatusConflict, server.CodeNotConfigured)
}

func TestServer_ConfigUnknownTemplate(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := createProject(t, s, "")

	body := mustJSON(t, pipeline.Config{PlaceID: "place-1", TemplateID: "missing"})
	expectError(t, doJSON(t, s, "PUT", "/projects/"+p.ID+"/config", body), http.StatusNotFound, server.CodeTemplateNotFound)
}

func TestServer_PipelineRunsToReady(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	tplBody := mustJSON(t, server.CreateTemplateRequest{Name: "clinic", Pages: []pipeline.TemplatePage{
		{Path: "/", Sections: []pages.Section{{Name: "hero", Content: "<h1>Welcome</h1>"}}},
		{Path: "/about", Sections: []pages.Section{{Name: "body", Content: "<p>About</p>"}}},
	}})
	rec := doJSON(t, s, "POST", "/templates", tplBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template = %d %s", rec.Code, rec.Body.String())
	}
	var tpl store.Template
	decodeJSON(t, rec, &tpl)
	if tpl.PageCount != 2 {
		t.Fatalf("page count = %d", tpl.PageCount)
	}

	rec = doJSON(t, s, "GET", "/templates/"+tpl.ID+"/pages", "")
	var tpages []pipeline.TemplatePage
	decodeJSON(t, rec, &tpages)
	if len(tpages) != 2 || tpages[0].Path != "/" {
		t.Fatalf("template pages = %+v", tpages)
	}

	p := createProject(t, s, "")
	cfg := mustJSON(t, pipeline.Config{PlaceID: "place-1", TemplateID: tpl.ID})
	if rec := doJSON(t, s, "PUT", "/projects/"+p.ID+"/config", cfg); rec.Code != http.StatusNoContent {
		t.Fatalf("save config = %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, "POST", "/projects/"+p.ID+"/pipeline", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("trigger = %d %s", rec.Code, rec.Body.String())
	}
	var tr server.TriggerResponse
	decodeJSON(t, rec, &tr)
	if tr.Project == nil || tr.Project.Status == status.Created {
		t.Fatalf("trigger project = %+v", tr.Project)
	}

	waitFor(t, "READY", func() bool {
		var ps pipeline.ProjectState
		rec := doJSON(t, s, "GET", "/projects/"+p.ID, "")
		decodeJSON(t, rec, &ps)
		return ps.Status == status.Ready
	})

	// a repeat trigger after READY changes nothing
	if rec := doJSON(t, s, "POST", "/projects/"+p.ID+"/pipeline", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("repeat trigger = %d", rec.Code)
	}
	expectError(t, doJSON(t, s, "PUT", "/projects/"+p.ID+"/config",
		mustJSON(t, pipeline.Config{PlaceID: "other", TemplateID: tpl.ID})), http.StatusConflict, server.CodeAlreadyConfigured)

	rec = doJSON(t, s, "GET", "/projects/"+p.ID+"/paths", "")
	var paths []string
	decodeJSON(t, rec, &paths)
	if len(paths) != 2 || paths[0] != "/" || paths[1] != "/about" {
		t.Fatalf("paths = %v", paths)
	}
}

// ─── Pages ─────────────────────────────────────────────────────────────

func TestServer_PageLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := createProject(t, s, "")

	v1 := createPage(t, s, p.ID, "about", "<p>One</p>")
	if v1.Version != 1 || v1.Status != status.Draft || v1.Path != "/about" {
		t.Fatalf("v1 = %+v", v1)
	}
	expectError(t, doJSON(t, s, "POST", "/projects/"+p.ID+"/pages",
		mustJSON(t, server.CreatePageRequest{Path: "/about"})), http.StatusConflict, "PATH_EXISTS")

	if got := postPage(t, s, v1.ID, "publish"); got.Status != status.Published {
		t.Fatalf("publish status = %s", got.Status)
	}
	expectError(t, doJSON(t, s, "POST", "/pages/"+v1.ID+"/publish", ""), http.StatusConflict, "NOT_A_DRAFT")
	expectError(t, doJSON(t, s, "DELETE", "/pages/"+v1.ID, ""), http.StatusConflict, "CANNOT_DELETE_PUBLISHED")

	v2 := postPage(t, s, v1.ID, "draft")
	if v2.Version != 2 || v2.Status != status.Draft {
		t.Fatalf("v2 = %+v", v2)
	}
	if again := postPage(t, s, v1.ID, "draft"); again.ID != v2.ID {
		t.Fatalf("second draft call made %s, want %s", again.ID, v2.ID)
	}

	save := mustJSON(t, pages.Content{Sections: []pages.Section{{Name: "main", Content: "<p>Two</p>"}}})
	rec := doJSON(t, s, "PUT", "/pages/"+v2.ID, save)
	if rec.Code != http.StatusOK {
		t.Fatalf("save = %d %s", rec.Code, rec.Body.String())
	}
	expectError(t, doJSON(t, s, "PUT", "/pages/"+v1.ID, save), http.StatusConflict, "NOT_A_DRAFT")

	rec = doJSON(t, s, "GET", "/pages/"+v2.ID+"/diff?base="+v1.ID, "")
	var d pages.VersionDiff
	decodeJSON(t, rec, &d)
	if !d.Changed() || d.BaseVersion != 1 || d.HeadVersion != 2 {
		t.Fatalf("diff = %+v", d)
	}
	expectError(t, doJSON(t, s, "GET", "/pages/"+v2.ID+"/diff", ""), http.StatusBadRequest, server.CodeBadRequest)

	postPage(t, s, v2.ID, "publish")
	expectError(t, doJSON(t, s, "POST", "/pages/"+v2.ID+"/restore", ""), http.StatusConflict, "NOT_INACTIVE")
	v3 := postPage(t, s, v1.ID, "restore")
	if v3.Version != 3 || v3.Sections[0].Content != "<p>One</p>" {
		t.Fatalf("v3 = %+v", v3)
	}

	rec = doJSON(t, s, "GET", "/projects/"+p.ID+"/pages?path=/about", "")
	var versions []pages.Page
	decodeJSON(t, rec, &versions)
	want := []status.PageStatus{status.Inactive, status.Published, status.Draft}
	if len(versions) != len(want) {
		t.Fatalf("versions = %+v", versions)
	}
	for i, v := range versions {
		if v.Status != want[i] {
			t.Errorf("v%d status = %s, want %s", v.Version, v.Status, want[i])
		}
	}
	expectError(t, doJSON(t, s, "GET", "/projects/"+p.ID+"/pages", ""), http.StatusBadRequest, server.CodeBadRequest)

	if rec := doJSON(t, s, "DELETE", "/pages/"+v3.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete draft = %d %s", rec.Code, rec.Body.String())
	}
	if rec := doJSON(t, s, "DELETE", "/projects/"+p.ID+"/pages?path=/about", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete path = %d", rec.Code)
	}
	expectError(t, doJSON(t, s, "GET", "/pages/"+v1.ID, ""), http.StatusNotFound, "PAGE_NOT_FOUND")
}

func TestServer_SoleVersionGuard(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := createProject(t, s, "")
	v1 := createPage(t, s, p.ID, "/", "<p>Home</p>")

	expectError(t, doJSON(t, s, "DELETE", "/pages/"+v1.ID, ""), http.StatusConflict, "SOLE_VERSION")
}

func TestServer_Edit(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := createProject(t, s, "")
	draft := createPage(t, s, p.ID, "/", "<h1>Hi</h1>")

	req := editsession.EditRequest{Selector: "h1", CurrentHTML: "<h1>Hi</h1>", Instruction: "text: Hello"}
	rec := doJSON(t, s, "POST", "/pages/"+draft.ID+"/edit", mustJSON(t, req))
	if rec.Code != http.StatusOK {
		t.Fatalf("edit = %d %s", rec.Code, rec.Body.String())
	}
	var res editsession.EditResult
	decodeJSON(t, rec, &res)
	if res.Rejected || res.EditedHTML != "<h1>Hello</h1>" {
		t.Fatalf("result = %+v", res)
	}

	req.Instruction = "reject not allowed"
	rec = doJSON(t, s, "POST", "/pages/"+draft.ID+"/edit", mustJSON(t, req))
	decodeJSON(t, rec, &res)
	if !res.Rejected {
		t.Fatalf("expected a rejection, got %+v", res)
	}

	req.Instruction = ""
	expectError(t, doJSON(t, s, "POST", "/pages/"+draft.ID+"/edit", mustJSON(t, req)), http.StatusBadRequest, server.CodeBadRequest)

	postPage(t, s, draft.ID, "publish")
	req.Instruction = "text: Again"
	expectError(t, doJSON(t, s, "POST", "/pages/"+draft.ID+"/edit", mustJSON(t, req)), http.StatusConflict, "NOT_A_DRAFT")
}

// ─── Skills and jobs ───────────────────────────────────────────────────

func TestServer_Skills(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	expectError(t, doJSON(t, s, "GET", "/skills/res-1", ""), http.StatusNotFound, server.CodeSkillNotFound)

	rec := doJSON(t, s, "POST", "/skills/res-1", mustJSON(t, server.StartSkillRequest{Prompt: "Clinic bio"}))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start = %d %s", rec.Code, rec.Body.String())
	}

	var sk skills.Skill
	waitFor(t, "skill ready", func() bool {
		rec := doJSON(t, s, "GET", "/skills/res-1", "")
		decodeJSON(t, rec, &sk)
		return sk.Status.IsTerminal()
	})
	if sk.Status != status.SkillReady || !strings.Contains(sk.Artifact, "Clinic bio") {
		t.Fatalf("skill = %+v", sk)
	}
}

func TestServer_Jobs(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	expectError(t, doJSON(t, s, "GET", "/jobs/nope", ""), http.StatusNotFound, server.CodeJobNotFound)
	expectError(t, doJSON(t, s, "DELETE", "/jobs/nope", ""), http.StatusNotFound, server.CodeJobNotFound)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()
	if _, err := server.New(server.DefaultConfig(), nil, nil, nil); err == nil {
		t.Fatal("expected an error for missing collaborators")
	}
}
