package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/starford/tabcache/internal/apperr"
	"github.com/starford/tabcache/internal/fetch"
	"github.com/starford/tabcache/internal/models"
	"github.com/starford/tabcache/internal/remote"
	"github.com/starford/tabcache/internal/store"
	"github.com/starford/tabcache/internal/testutil"
)

func testManager(t *testing.T) (*Manager, *store.DB, *testutil.FakeBackend) {
	t.Helper()
	db := testutil.TestDB(t)
	backend := testutil.NewFakeBackend()
	orch := fetch.New(db, backend, slog.Default())
	m := NewManager(db, db, orch, backend, slog.Default(), nil)
	t.Cleanup(m.Close)
	return m, db, backend
}

func mustPreview(t *testing.T, m *Manager, notebookID, path string) *models.FileRecord {
	t.Helper()
	rec, err := m.PreviewFile(context.Background(), notebookID, path, "", "")
	if err != nil {
		t.Fatalf("PreviewFile(%s, %s): %v", notebookID, path, err)
	}
	if rec == nil {
		t.Fatalf("PreviewFile(%s, %s): no record", notebookID, path)
	}
	return rec
}

func TestPreviewFile_OpensTabAndCaches(t *testing.T) {
	m, db, backend := testManager(t)
	backend.Put("N1", "report.csv", &remote.FileResponse{Content: "a,b\n1,2", LastModified: "v1"})

	rec := mustPreview(t, m, "N1", "report.csv")
	if rec.Content != "a,b\n1,2" || rec.FileType != models.FileTypeCSV {
		t.Errorf("record = %+v", rec)
	}

	live, ok := m.LiveSession()
	if !ok {
		t.Fatal("no live session")
	}
	if len(live.Tabs) != 1 || live.Tabs[0].ID != "N1::report.csv" {
		t.Errorf("tabs = %+v", live.Tabs)
	}
	if live.ActiveTabID != "N1::report.csv" {
		t.Errorf("active = %q", live.ActiveTabID)
	}

	if _, err := db.GetRecord(store.TierMain, "N1", "report.csv"); err != nil {
		t.Errorf("content not cached: %v", err)
	}
}

func TestPreviewFile_NotFoundIsSilent(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("N1", "a.csv", &remote.FileResponse{Content: "x"})
	mustPreview(t, m, "N1", "a.csv")

	rec, err := m.PreviewFile(context.Background(), "N1", "missing.png", "", "")
	if err != nil {
		t.Fatalf("not-found must not error: %v", err)
	}
	if rec != nil {
		t.Fatalf("record = %+v", rec)
	}

	live, _ := m.LiveSession()
	if len(live.Tabs) != 1 {
		t.Errorf("tab count changed: %+v", live.Tabs)
	}
	if live.ActiveTabID != "N1::a.csv" {
		t.Errorf("active = %q", live.ActiveTabID)
	}
}

func TestPreviewFile_ReopenKeepsSingleTab(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("N1", "a.csv", &remote.FileResponse{Content: "x"})
	backend.Put("N1", "b.md", &remote.FileResponse{Content: "y"})

	mustPreview(t, m, "N1", "a.csv")
	mustPreview(t, m, "N1", "b.md")
	mustPreview(t, m, "N1", "a.csv")

	live, _ := m.LiveSession()
	if len(live.Tabs) != 2 {
		t.Fatalf("tabs = %+v", live.Tabs)
	}
	if live.ActiveTabID != "N1::a.csv" {
		t.Errorf("active = %q", live.ActiveTabID)
	}
}

func TestCloseTab_ActivationRules(t *testing.T) {
	m, _, backend := testManager(t)
	for _, p := range []string{"a.csv", "b.md", "c.txt"} {
		backend.Put("N1", p, &remote.FileResponse{Content: p})
		mustPreview(t, m, "N1", p)
	}

	// Close the middle tab while it is active: activation moves to the
	// tab that now occupies the same index.
	mustPreview(t, m, "N1", "b.md")
	if err := m.CloseTab("N1::b.md"); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	live, _ := m.LiveSession()
	if live.ActiveTabID != "N1::c.txt" {
		t.Errorf("active = %q, want N1::c.txt", live.ActiveTabID)
	}

	// Close the last tab while active: activation moves to the new last.
	if err := m.CloseTab("N1::c.txt"); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	live, _ = m.LiveSession()
	if live.ActiveTabID != "N1::a.csv" {
		t.Errorf("active = %q, want N1::a.csv", live.ActiveTabID)
	}

	// Closing the only tab clears activation.
	if err := m.CloseTab("N1::a.csv"); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	live, _ = m.LiveSession()
	if len(live.Tabs) != 0 || live.ActiveTabID != "" {
		t.Errorf("session = %+v", live)
	}
}

func TestCloseTab_RemovesDirtyFlag(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("N1", "a.csv", &remote.FileResponse{Content: "x"})
	mustPreview(t, m, "N1", "a.csv")

	m.SetDirty("N1::a.csv", true)
	if err := m.CloseTab("N1::a.csv"); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	if m.IsDirty("N1::a.csv") {
		t.Error("dirty flag survived close")
	}
}

func TestActiveTabInvariant(t *testing.T) {
	m, _, backend := testManager(t)
	paths := []string{"a.csv", "b.md", "c.txt", "d.go"}
	for _, p := range paths {
		backend.Put("N1", p, &remote.FileResponse{Content: p})
	}

	mustPreview(t, m, "N1", "a.csv")
	mustPreview(t, m, "N1", "b.md")
	_ = m.CloseTab("N1::a.csv")
	mustPreview(t, m, "N1", "c.txt")
	mustPreview(t, m, "N1", "d.go")
	_ = m.CloseTab("N1::d.go")
	_ = m.CloseTab("N1::b.md")

	live, _ := m.LiveSession()
	if err := live.Validate(); err != nil {
		t.Errorf("invariant broken: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("A", "a.csv", &remote.FileResponse{Content: "x"})
	mustPreview(t, m, "A", "a.csv")

	if tabs := m.TabsByNotebook("B"); len(tabs) != 0 {
		t.Errorf("notebook B sees notebook A's tabs: %+v", tabs)
	}
}

func TestSwitchNotebook_FlushAndRestore(t *testing.T) {
	m, _, backend := testManager(t)
	for _, p := range []string{"a.csv", "b.md", "c.txt"} {
		backend.Put("N1", p, &remote.FileResponse{Content: p})
		mustPreview(t, m, "N1", p)
	}

	// Switch to an empty notebook, then back.
	s, err := m.SwitchNotebook(context.Background(), "N2")
	if err != nil {
		t.Fatalf("SwitchNotebook N2: %v", err)
	}
	if len(s.Tabs) != 0 {
		t.Errorf("N2 session = %+v", s)
	}

	s, err = m.SwitchNotebook(context.Background(), "N1")
	if err != nil {
		t.Fatalf("SwitchNotebook N1: %v", err)
	}
	if len(s.Tabs) != 3 {
		t.Fatalf("restored tabs = %+v", s.Tabs)
	}
	if s.ActiveTabID != "N1::c.txt" {
		t.Errorf("restored active = %q", s.ActiveTabID)
	}
}

func TestSwitchNotebook_DropsDeadTabs(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("N3", "keep.csv", &remote.FileResponse{Content: "x"})
	backend.Put("N3", "old.xlsx", &remote.FileResponse{DataURL: "data:application/vnd.openxmlformats-officedocument.spreadsheetml.sheet;base64,AAAA"})
	mustPreview(t, m, "N3", "keep.csv")
	mustPreview(t, m, "N3", "old.xlsx")

	// File disappears server-side, and its cached copy is evicted, while
	// the session is dormant.
	if _, err := m.SwitchNotebook(context.Background(), "other"); err != nil {
		t.Fatal(err)
	}
	backend.Files = map[string]*remote.FileResponse{"N3/keep.csv": {Content: "x"}}
	_ = m.content.(*store.DB).DeleteRecord(store.TierMain, "N3", "old.xlsx")

	s, err := m.SwitchNotebook(context.Background(), "N3")
	if err != nil {
		t.Fatalf("SwitchNotebook: %v", err)
	}
	if len(s.Tabs) != 1 || s.Tabs[0].ID != "N3::keep.csv" {
		t.Fatalf("tabs = %+v", s.Tabs)
	}
	// old.xlsx was the active tab; activation must clear.
	if s.ActiveTabID != "" {
		t.Errorf("active = %q, want cleared", s.ActiveTabID)
	}

	// The corrected session was re-persisted: the dormant read agrees.
	if _, err := m.SwitchNotebook(context.Background(), "other"); err != nil {
		t.Fatal(err)
	}
	if tabs := m.TabsByNotebook("N3"); len(tabs) != 1 {
		t.Errorf("re-persisted tabs = %+v", tabs)
	}
}

func TestSwitchNotebook_TransientValidationKeepsTab(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("N4", "cached.md", &remote.FileResponse{Content: "x"})
	backend.Put("N4", "probe.csv", &remote.FileResponse{Content: "y"})
	mustPreview(t, m, "N4", "cached.md")
	mustPreview(t, m, "N4", "probe.csv")

	if _, err := m.SwitchNotebook(context.Background(), "elsewhere"); err != nil {
		t.Fatal(err)
	}

	// probe.csv's cached copy is evicted, so restore validation must ask
	// the backend about it, and the backend is down.
	_ = m.content.(*store.DB).DeleteRecord(store.TierMain, "N4", "probe.csv")
	backend.Err = apperr.Transient(errors.New("backend down"))

	s, err := m.SwitchNotebook(context.Background(), "N4")
	if err != nil {
		t.Fatalf("SwitchNotebook: %v", err)
	}
	// Absence was not confirmed, so the tab survives the outage.
	if len(s.Tabs) != 2 {
		t.Fatalf("tabs = %+v, want both kept", s.Tabs)
	}
	if s.ActiveTabID != "N4::probe.csv" {
		t.Errorf("active = %q, want N4::probe.csv", s.ActiveTabID)
	}

	// Once the backend recovers, a definite not-found still drops it.
	backend.Err = nil
	delete(backend.Files, "N4/probe.csv")
	if _, err := m.SwitchNotebook(context.Background(), "elsewhere"); err != nil {
		t.Fatal(err)
	}
	s, err = m.SwitchNotebook(context.Background(), "N4")
	if err != nil {
		t.Fatalf("SwitchNotebook after recovery: %v", err)
	}
	if len(s.Tabs) != 1 || s.Tabs[0].ID != "N4::cached.md" {
		t.Errorf("tabs after recovery = %+v", s.Tabs)
	}
}

func TestSwitchNotebook_RestoreIdempotent(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("N1", "a.csv", &remote.FileResponse{Content: "x"})
	backend.Put("N1", "b.md", &remote.FileResponse{Content: "y"})
	mustPreview(t, m, "N1", "a.csv")
	mustPreview(t, m, "N1", "b.md")

	var snapshots []models.Session
	for i := 0; i < 2; i++ {
		if _, err := m.SwitchNotebook(context.Background(), "scratch"); err != nil {
			t.Fatal(err)
		}
		s, err := m.SwitchNotebook(context.Background(), "N1")
		if err != nil {
			t.Fatal(err)
		}
		snapshots = append(snapshots, s)
	}

	a, b := snapshots[0], snapshots[1]
	if len(a.Tabs) != len(b.Tabs) || a.ActiveTabID != b.ActiveTabID {
		t.Fatalf("restore not idempotent: %+v vs %+v", a, b)
	}
	for i := range a.Tabs {
		if a.Tabs[i].ID != b.Tabs[i].ID {
			t.Errorf("tab %d differs: %q vs %q", i, a.Tabs[i].ID, b.Tabs[i].ID)
		}
	}
}

func TestSwitchNotebook_ClosedTabStaysClosed(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("N1", "only.csv", &remote.FileResponse{Content: "x"})
	mustPreview(t, m, "N1", "only.csv")
	if err := m.CloseTab("N1::only.csv"); err != nil {
		t.Fatal(err)
	}

	// A preview in a different notebook must not resurrect it.
	backend.Put("N2", "other.md", &remote.FileResponse{Content: "y"})
	mustPreview(t, m, "N2", "other.md")

	if tabs := m.TabsByNotebook("N1"); len(tabs) != 0 {
		t.Errorf("closed tab resurrected: %+v", tabs)
	}
}

func TestSplitPreviewIndependence(t *testing.T) {
	m, db, backend := testManager(t)
	backend.Put("N1", "tabbed.csv", &remote.FileResponse{Content: "tab"})
	backend.Put("N1", "peeked.md", &remote.FileResponse{Content: "peek"})
	mustPreview(t, m, "N1", "tabbed.csv")

	rec, err := m.PreviewFileInSplit(context.Background(), "N1", "peeked.md", "")
	if err != nil || rec == nil {
		t.Fatalf("PreviewFileInSplit: %v, %v", rec, err)
	}

	// The peek opened no tab.
	live, _ := m.LiveSession()
	if len(live.Tabs) != 1 {
		t.Errorf("tabs = %+v", live.Tabs)
	}

	// Closing every tab leaves the split record untouched.
	_ = m.CloseTab("N1::tabbed.csv")
	if _, err := db.GetRecord(store.TierSplit, "N1", "peeked.md"); err != nil {
		t.Errorf("split record gone after tab close: %v", err)
	}
}

func TestDirtyTracker(t *testing.T) {
	m, _, backend := testManager(t)
	backend.Put("N1", "a.csv", &remote.FileResponse{Content: "x"})
	mustPreview(t, m, "N1", "a.csv")

	if m.IsDirty("N1::a.csv") {
		t.Error("fresh tab is dirty")
	}
	m.SetDirty("N1::a.csv", true)
	if !m.IsDirty("N1::a.csv") {
		t.Error("dirty flag not set")
	}
	m.SetDirty("N1::a.csv", false)
	if m.IsDirty("N1::a.csv") {
		t.Error("dirty flag not cleared")
	}

	// Dirty state resets on notebook switch.
	m.SetDirty("N1::a.csv", true)
	if _, err := m.SwitchNotebook(context.Background(), "N2"); err != nil {
		t.Fatal(err)
	}
	if m.IsDirty("N1::a.csv") {
		t.Error("dirty flag survived notebook switch")
	}
}

func TestUpdateContent(t *testing.T) {
	m, db, backend := testManager(t)
	backend.Put("N1", "a.csv", &remote.FileResponse{Content: "old", LastModified: "v1"})
	mustPreview(t, m, "N1", "a.csv")

	rec, err := m.UpdateContent("N1", "a.csv", "new content")
	if err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}
	if rec.Content != "new content" {
		t.Errorf("content = %q", rec.Content)
	}
	// Local edits do not re-stamp the remote version token.
	if rec.LastModified != "v1" {
		t.Errorf("last modified = %q, want v1", rec.LastModified)
	}
	if !m.IsDirty("N1::a.csv") {
		t.Error("open tab not marked dirty after edit")
	}

	got, err := db.GetRecord(store.TierMain, "N1", "a.csv")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.Content != "new content" {
		t.Errorf("persisted content = %q", got.Content)
	}
}

func TestUpdateContent_UncachedFile(t *testing.T) {
	m, db, _ := testManager(t)

	rec, err := m.UpdateContent("N1", "fresh.md", "# new")
	if err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}
	if rec.FileType != models.FileTypeMarkdown || rec.LastModified != "" {
		t.Errorf("record = %+v", rec)
	}
	if _, err := db.GetRecord(store.TierMain, "N1", "fresh.md"); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
}

func TestClearNotebook(t *testing.T) {
	m, db, backend := testManager(t)
	backend.Put("N1", "a.csv", &remote.FileResponse{Content: "x"})
	mustPreview(t, m, "N1", "a.csv")

	if err := m.ClearNotebook("N1"); err != nil {
		t.Fatalf("ClearNotebook: %v", err)
	}
	if _, ok := m.LiveSession(); ok {
		t.Error("live session survived clear")
	}
	if _, err := db.GetSession("N1"); err == nil {
		t.Error("persisted session survived clear")
	}
	if tabs := m.TabsByNotebook("N1"); len(tabs) != 0 {
		t.Errorf("tabs = %+v", tabs)
	}
}

func TestReorderTabs(t *testing.T) {
	m, _, backend := testManager(t)
	for _, p := range []string{"a.csv", "b.md", "c.txt"} {
		backend.Put("N1", p, &remote.FileResponse{Content: p})
		mustPreview(t, m, "N1", p)
	}

	if err := m.ReorderTabs("N1", []string{"N1::c.txt", "N1::a.csv", "N1::b.md"}); err != nil {
		t.Fatalf("ReorderTabs: %v", err)
	}
	live, _ := m.LiveSession()
	got := []string{live.Tabs[0].ID, live.Tabs[1].ID, live.Tabs[2].ID}
	want := []string{"N1::c.txt", "N1::a.csv", "N1::b.md"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	// Unknown ids are ignored, unlisted tabs go last.
	if err := m.ReorderTabs("N1", []string{"N1::b.md", "N1::nope.js"}); err != nil {
		t.Fatalf("ReorderTabs: %v", err)
	}
	live, _ = m.LiveSession()
	if live.Tabs[0].ID != "N1::b.md" || len(live.Tabs) != 3 {
		t.Errorf("tabs = %+v", live.Tabs)
	}
}

func TestDegradedRestoreFromListing(t *testing.T) {
	db := testutil.TestDB(t)
	backend := testutil.NewFakeBackend()
	orch := fetch.New(db, backend, slog.Default())
	// Session reads fail wholesale; the tab list is rebuilt from the
	// backend's directory listing.
	m := NewManager(db, failingSessions{}, orch, backend, slog.Default(), nil)
	t.Cleanup(m.Close)

	backend.Tree["N1"] = &models.TreeNode{
		Type: "dir",
		Children: []models.TreeNode{
			{Name: "a.csv", Path: "a.csv", Type: "file"},
			{Name: "b.md", Path: "b.md", Type: "file"},
		},
	}

	s, err := m.SwitchNotebook(context.Background(), "N1")
	if err != nil {
		t.Fatalf("SwitchNotebook: %v", err)
	}
	if len(s.Tabs) != 2 {
		t.Fatalf("tabs = %+v", s.Tabs)
	}
	if s.ActiveTabID != "" {
		t.Errorf("degraded restore picked an active tab: %q", s.ActiveTabID)
	}
}

// failingSessions simulates a wholesale session-store outage.
type failingSessions struct{}

func (failingSessions) SaveSession(models.Session) error { return errors.New("store offline") }
func (failingSessions) GetSession(string) (models.Session, error) {
	return models.Session{}, errors.New("store offline")
}
func (failingSessions) DeleteSession(string) error { return errors.New("store offline") }
