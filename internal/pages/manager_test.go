package pages_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Hamiltonwise/signalsai-sub006/internal/pages"
	"github.com/Hamiltonwise/signalsai-sub006/internal/status"
	"github.com/Hamiltonwise/signalsai-sub006/internal/testutil"
)

const project = "proj-1"

func newManager(t *testing.T) (*pages.Manager, *testutil.FakePageBackend) {
	t.Helper()
	b := testutil.NewFakePageBackend()
	return pages.NewManager(b, testutil.NewDummyLogger()), b
}

func publishedCount(t *testing.T, m *pages.Manager, path string) int {
	t.Helper()
	versions, err := m.Versions(context.Background(), project, path)
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	n := 0
	for _, v := range versions {
		if v.Status == status.Published {
			n++
		}
	}
	return n
}

// ─── Scenario ────────────────────────────────────────────────────────────

func TestAboutPageLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, b := newManager(t)
	v1 := b.Seed(project, "/about", status.Published, pages.Section{Name: "hero", Content: "<h1>About us</h1>"})

	v2, err := m.CreateDraftFromPublished(ctx, project, "/about")
	if err != nil {
		t.Fatalf("CreateDraftFromPublished: %v", err)
	}
	if v2.Version != 2 || v2.Status != status.Draft {
		t.Fatalf("expected v2 draft, got v%d %s", v2.Version, v2.Status)
	}
	if v2.Sections[0].Content != "<h1>About us</h1>" {
		t.Errorf("draft should copy published content, got %q", v2.Sections[0].Content)
	}

	if _, err := m.SaveDraft(ctx, v2.ID, []pages.Section{{Name: "hero", Content: "<h1>About our team</h1>"}}, nil); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if _, err := m.Publish(ctx, v2.ID); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	got1, _ := m.Get(ctx, v1.ID)
	got2, _ := m.Get(ctx, v2.ID)
	if got1.Status != status.Inactive || got2.Status != status.Published {
		t.Fatalf("expected v1 inactive and v2 published, got %s / %s", got1.Status, got2.Status)
	}
	if err := m.DeleteVersion(ctx, v1.ID); err != nil {
		t.Fatalf("DeleteVersion(v1) after supersede: %v", err)
	}
}

// ─── Create draft ────────────────────────────────────────────────────────

func TestCreateDraftFromPublished_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, b := newManager(t)
	b.Seed(project, "/", status.Published)

	first, err := m.CreateDraftFromPublished(ctx, project, "/")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.CreateDraftFromPublished(ctx, project, "/")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same draft, got %s and %s", first.ID, second.ID)
	}
	if b.Calls("CreateDraft") != 1 {
		t.Errorf("expected one remote create, got %d", b.Calls("CreateDraft"))
	}
}

func TestCreateDraftFromPublished_NoPublished(t *testing.T) {
	t.Parallel()
	m, b := newManager(t)
	b.Seed(project, "/contact", status.Inactive)

	_, err := m.CreateDraftFromPublished(context.Background(), project, "/contact")
	if !errors.Is(err, pages.ErrNoPublishedVersion) {
		t.Fatalf("expected ErrNoPublishedVersion, got %v", err)
	}
	if !pages.IsGuard(err) {
		t.Error("expected guard error")
	}
}

// ─── Guards ──────────────────────────────────────────────────────────────

func TestGuards_NoRemoteMutation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, b := newManager(t)
	pub := b.Seed(project, "/g", status.Published)
	old := b.Seed(project, "/g", status.Inactive)
	lone := b.Seed(project, "/lone", status.Draft)

	cases := []struct {
		name string
		call func() error
		want error
	}{
		{"save published", func() error { _, err := m.SaveDraft(ctx, pub.ID, nil, nil); return err }, pages.ErrNotADraft},
		{"publish published", func() error { _, err := m.Publish(ctx, pub.ID); return err }, pages.ErrNotADraft},
		{"publish inactive", func() error { _, err := m.Publish(ctx, old.ID); return err }, pages.ErrNotADraft},
		{"restore published", func() error { _, err := m.Restore(ctx, pub.ID); return err }, pages.ErrNotInactive},
		{"restore draft", func() error { _, err := m.Restore(ctx, lone.ID); return err }, pages.ErrNotInactive},
		{"delete published", func() error { return m.DeleteVersion(ctx, pub.ID) }, pages.ErrCannotDeletePublished},
		{"delete sole", func() error { return m.DeleteVersion(ctx, lone.ID) }, pages.ErrSoleVersion},
	}
	for _, tc := range cases {
		err := tc.call()
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		var ge *pages.GuardError
		if !errors.As(err, &ge) {
			t.Errorf("%s: expected *GuardError, got %T", tc.name, err)
		}
	}
	if n := b.MutatingCalls(); n != 0 {
		t.Fatalf("guards must reject before any remote mutation, saw %d calls", n)
	}
}

func TestDeleteAllVersions_IsUnconditional(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, b := newManager(t)
	b.Seed(project, "/x", status.Published)
	b.Seed(project, "/x", status.Draft)

	if err := m.DeleteAllVersions(ctx, project, "/x"); err != nil {
		t.Fatal(err)
	}
	versions, _ := m.Versions(ctx, project, "/x")
	if len(versions) != 0 {
		t.Fatalf("expected no versions left, got %d", len(versions))
	}
}

// ─── Versions ────────────────────────────────────────────────────────────

func TestVersionsAreMonotonicAcrossDeleteAndRestore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, b := newManager(t)
	v1 := b.Seed(project, "/m", status.Published)

	v2, _ := m.CreateDraftFromPublished(ctx, project, "/m")
	if _, err := m.Publish(ctx, v2.ID); err != nil {
		t.Fatal(err)
	}
	v3, _ := m.CreateDraftFromPublished(ctx, project, "/m")
	if err := m.DeleteVersion(ctx, v3.ID); err != nil {
		t.Fatal(err)
	}
	v4, err := m.Restore(ctx, v1.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if v4.Version != 4 {
		t.Fatalf("restored draft must take a fresh version, got %d", v4.Version)
	}
	if v4.ID == v1.ID {
		t.Fatal("restore must not resurrect the archived id")
	}
	archived, _ := m.Get(ctx, v1.ID)
	if archived.Status != status.Inactive {
		t.Errorf("archived row must stay inactive, got %s", archived.Status)
	}

	if err := m.DeleteAllVersions(ctx, project, "/m"); err != nil {
		t.Fatal(err)
	}
	fresh, _ := m.CreatePage(ctx, project, "/m", nil)
	if fresh.Version <= v4.Version {
		t.Fatalf("version reused after deleting the path: %d", fresh.Version)
	}
}

// ─── Publish ─────────────────────────────────────────────────────────────

func TestPublish_DetectsMissingDemotion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, b := newManager(t)
	b.Seed(project, "/p", status.Published)
	d := b.Seed(project, "/p", status.Draft)
	b.NonAtomicPublish = true

	_, err := m.Publish(ctx, d.ID)
	if !errors.Is(err, pages.ErrPublishNotAtomic) {
		t.Fatalf("expected ErrPublishNotAtomic, got %v", err)
	}
	if !pages.IsRetryable(err) {
		t.Error("expected retryable error")
	}
}

func TestPublish_KeepsSinglePublished(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, b := newManager(t)
	b.Seed(project, "/s", status.Published)

	for i := 0; i < 3; i++ {
		d, err := m.CreateDraftFromPublished(ctx, project, "/s")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := m.Publish(ctx, d.ID); err != nil {
			t.Fatal(err)
		}
		if n := publishedCount(t, m, "/s"); n != 1 {
			t.Fatalf("round %d: %d published versions", i, n)
		}
	}
}

// ─── Save ────────────────────────────────────────────────────────────────

func TestSaveDraft_NilHistoryKeepsStored(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, b := newManager(t)
	d := b.Seed(project, "/h", status.Draft)

	hist := pages.ChatHistory{"#title": {{Role: pages.RoleUser, Content: "shorter"}}}
	if _, err := m.SaveDraft(ctx, d.ID, []pages.Section{{Name: "a", Content: "1"}}, hist); err != nil {
		t.Fatal(err)
	}
	saved, err := m.SaveDraft(ctx, d.ID, []pages.Section{{Name: "a", Content: "2"}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.EditChatHistory["#title"]) != 1 {
		t.Fatalf("nil history must leave stored history, got %v", saved.EditChatHistory)
	}
	if saved.Sections[0].Content != "2" {
		t.Errorf("sections not overwritten: %v", saved.Sections)
	}
}

func TestGet_NotFound(t *testing.T) {
	t.Parallel()
	m, _ := newManager(t)
	_, err := m.Get(context.Background(), "missing")
	if !pages.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
