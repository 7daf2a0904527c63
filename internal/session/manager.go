// Package session implements the per-notebook tab session manager: the
// ordered tab list, the active tab, dirty flags, and the persistence and
// restore flow that survives reloads and notebook switches.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/tabcache/internal/apperr"
	"github.com/starford/tabcache/internal/fetch"
	"github.com/starford/tabcache/internal/metrics"
	"github.com/starford/tabcache/internal/models"
	"github.com/starford/tabcache/internal/remote"
	"github.com/starford/tabcache/internal/store"
)

// Resolver is the slice of the fetch orchestrator the manager depends on.
type Resolver interface {
	ResolveAndFetch(ctx context.Context, tier store.Tier, notebookID, path, knownLastModified string) (*models.FileRecord, error)
	Exists(ctx context.Context, notebookID, path string) (bool, error)
}

var _ Resolver = (*fetch.Orchestrator)(nil)

// EventCallback is called after a session-relevant mutation. kind is one
// of "tab.opened", "tab.closed", "session.switched".
type EventCallback func(kind, notebookID, tabID string)

// Manager owns the live session. Exactly one notebook is live at a time;
// all other sessions are dormant rows in the session store. All tab-list
// mutations happen under one mutex, so no caller ever observes a
// half-updated list.
type Manager struct {
	content  store.ContentStore
	sessions store.SessionStore
	resolver Resolver
	backend  remote.Backend
	logger   *slog.Logger
	onEvent  EventCallback

	mu    sync.Mutex
	live  *models.Session
	dirty map[string]bool

	persist *persistWorker
}

// NewManager creates a session manager. cb may be nil.
func NewManager(content store.ContentStore, sessions store.SessionStore, resolver Resolver, backend remote.Backend, logger *slog.Logger, cb EventCallback) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		content:  content,
		sessions: sessions,
		resolver: resolver,
		backend:  backend,
		logger:   logger,
		onEvent:  cb,
		dirty:    make(map[string]bool),
		persist:  newPersistWorker(sessions, logger),
	}
}

// Close stops the persistence worker after flushing pending writes.
func (m *Manager) Close() {
	m.persist.close()
}

func (m *Manager) emit(kind, notebookID, tabID string) {
	if m.onEvent != nil {
		m.onEvent(kind, notebookID, tabID)
	}
}

// PreviewFile resolves a file and opens (or refreshes) its tab in the
// notebook's session, making it active. If the notebook is not the live
// one, the current session is flushed and the target session restored
// first.
//
// A file that is absent at every backend path returns (nil, nil): no tab
// is added and no error reaches the user. notebookName may be empty; a
// non-empty value updates the stored notebook metadata.
func (m *Manager) PreviewFile(ctx context.Context, notebookID, path, knownLastModified, notebookName string) (*models.FileRecord, error) {
	if _, err := m.SwitchNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	if err := m.content.TouchNotebook(notebookID, notebookName); err != nil {
		m.logger.Warn("session: touch notebook failed",
			slog.String("notebook", notebookID), slog.String("error", err.Error()))
	}

	rec, err := m.resolver.ResolveAndFetch(ctx, store.TierMain, notebookID, path, knownLastModified)
	if errors.Is(err, apperr.ErrNotFound) {
		// A missing file must not leave a broken tab behind.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	tab := models.NewTab(notebookID, path)

	m.mu.Lock()
	// The live session can have moved on while the fetch was in
	// flight; the cache write already happened, only the tab is
	// skipped.
	if m.live == nil || m.live.NotebookID != notebookID {
		m.mu.Unlock()
		return rec, nil
	}
	found := false
	for i, t := range m.live.Tabs {
		if t.ID == tab.ID {
			m.live.Tabs[i] = tab
			found = true
			break
		}
	}
	if !found {
		m.live.Tabs = append(m.live.Tabs, tab)
	}
	m.live.ActiveTabID = tab.ID
	snapshot := m.live.Clone()
	m.mu.Unlock()

	m.persist.enqueue(snapshot)
	m.emit("tab.opened", notebookID, tab.ID)
	return rec, nil
}

// PreviewFileInSplit resolves a file through the split-preview tier. It
// never touches tabs, sessions, or dirty flags; a missing file returns
// (nil, nil) just like the main path.
func (m *Manager) PreviewFileInSplit(ctx context.Context, notebookID, path, knownLastModified string) (*models.FileRecord, error) {
	rec, err := m.resolver.ResolveAndFetch(ctx, store.TierSplit, notebookID, path, knownLastModified)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CloseTab removes a tab from the live session. If the closed tab was
// active, activation moves to the tab now occupying the same index, or
// the new last tab when the closed one was last; with no tabs left the
// active pointer clears. The tab's dirty flag is removed in the same
// state update.
func (m *Manager) CloseTab(tabID string) error {
	notebookID, _, ok := models.SplitTabID(tabID)
	if !ok {
		return fmt.Errorf("session: malformed tab id %q", tabID)
	}

	m.mu.Lock()
	if m.live == nil || m.live.NotebookID != notebookID {
		m.mu.Unlock()
		return fmt.Errorf("session: tab %q is not in the live session", tabID)
	}
	idx := -1
	for i, t := range m.live.Tabs {
		if t.ID == tabID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return fmt.Errorf("session: tab %q not open", tabID)
	}
	m.live.Tabs = append(m.live.Tabs[:idx], m.live.Tabs[idx+1:]...)
	delete(m.dirty, tabID)
	if m.live.ActiveTabID == tabID {
		switch {
		case len(m.live.Tabs) == 0:
			m.live.ActiveTabID = ""
		case idx < len(m.live.Tabs):
			m.live.ActiveTabID = m.live.Tabs[idx].ID
		default:
			m.live.ActiveTabID = m.live.Tabs[len(m.live.Tabs)-1].ID
		}
	}
	snapshot := m.live.Clone()
	m.mu.Unlock()

	m.persist.enqueue(snapshot)
	m.emit("tab.closed", notebookID, tabID)
	return nil
}

// ReorderTabs rearranges the live session's tabs to follow orderedIDs.
// Unknown ids are ignored; open tabs missing from orderedIDs keep their
// relative order after the listed ones.
func (m *Manager) ReorderTabs(notebookID string, orderedIDs []string) error {
	m.mu.Lock()
	if m.live == nil || m.live.NotebookID != notebookID {
		m.mu.Unlock()
		return fmt.Errorf("session: notebook %q is not live", notebookID)
	}
	byID := make(map[string]models.Tab, len(m.live.Tabs))
	for _, t := range m.live.Tabs {
		byID[t.ID] = t
	}
	reordered := make([]models.Tab, 0, len(m.live.Tabs))
	for _, id := range orderedIDs {
		if t, ok := byID[id]; ok {
			reordered = append(reordered, t)
			delete(byID, id)
		}
	}
	for _, t := range m.live.Tabs {
		if _, left := byID[t.ID]; left {
			reordered = append(reordered, t)
		}
	}
	m.live.Tabs = reordered
	snapshot := m.live.Clone()
	m.mu.Unlock()

	m.persist.enqueue(snapshot)
	return nil
}

// SwitchNotebook makes targetID the live notebook and returns the
// restored session. The outgoing session is flushed to the session store
// before the incoming one is read, so rapid back-and-forth switching
// never loses tab state. Restoring validates every persisted tab and
// drops the ones whose files are gone; the corrected session is
// re-persisted so dead entries are not re-validated on every load.
func (m *Manager) SwitchNotebook(ctx context.Context, targetID string) (models.Session, error) {
	m.mu.Lock()
	if m.live != nil && m.live.NotebookID == targetID {
		s := m.live.Clone()
		m.mu.Unlock()
		return s, nil
	}
	if m.live != nil {
		m.persist.enqueue(m.live.Clone())
	}
	m.mu.Unlock()

	// The outgoing flush is queued ahead of this drain, so the store is
	// settled before the incoming session is read.
	m.persist.drain()

	restored := m.loadAndValidate(ctx, targetID)

	m.mu.Lock()
	m.live = &restored
	m.dirty = make(map[string]bool)
	s := restored.Clone()
	m.mu.Unlock()

	m.persist.enqueue(s.Clone())
	m.emit("session.switched", targetID, s.ActiveTabID)
	metrics.SessionRestores.Inc()
	return s, nil
}

// loadAndValidate reads the persisted session for a notebook and checks
// every remembered tab. Individual failures are contained to their tab; a
// wholesale store read failure degrades to rebuilding the list from the
// backend's directory listing.
func (m *Manager) loadAndValidate(ctx context.Context, notebookID string) models.Session {
	persisted, err := m.sessions.GetSession(notebookID)
	switch {
	case errors.Is(err, apperr.ErrSessionMissing):
		return models.Session{NotebookID: notebookID, Tabs: []models.Tab{}}
	case err != nil:
		m.logger.Error("session: persistence read failed, rebuilding from listing",
			slog.String("notebook", notebookID), slog.String("error", err.Error()))
		return m.rebuildFromListing(ctx, notebookID)
	}

	kept := make([]models.Tab, 0, len(persisted.Tabs))
	for _, tab := range persisted.Tabs {
		_, path, ok := models.SplitTabID(tab.ID)
		if !ok {
			path = tab.Path
		}
		exists, err := m.resolver.Exists(ctx, notebookID, path)
		if err != nil {
			// Cannot confirm absence: keep the tab, content is
			// fetched lazily on activation anyway.
			m.logger.Warn("session: tab validation inconclusive",
				slog.String("tab", tab.ID), slog.String("error", err.Error()))
			kept = append(kept, tab)
			continue
		}
		if !exists {
			metrics.SessionTabsDropped.Inc()
			m.logger.Info("session: dropping dead tab", slog.String("tab", tab.ID))
			continue
		}
		kept = append(kept, tab)
	}

	restored := models.Session{NotebookID: notebookID, Tabs: kept, ActiveTabID: persisted.ActiveTabID}
	if restored.Validate() != nil {
		restored.ActiveTabID = ""
	}
	return restored
}

// rebuildFromListing is the degraded restore path: the session store is
// unreadable, so the tab list is reconstructed from a live directory
// listing of the notebook's files. No tab is active.
func (m *Manager) rebuildFromListing(ctx context.Context, notebookID string) models.Session {
	metrics.SessionDegradedRestores.Inc()
	s := models.Session{NotebookID: notebookID, Tabs: []models.Tab{}}

	tree, err := m.backend.ListFiles(ctx, notebookID)
	if err != nil {
		m.logger.Error("session: degraded rebuild failed",
			slog.String("notebook", notebookID), slog.String("error", err.Error()))
		return s
	}
	for _, path := range tree.Flatten() {
		s.Tabs = append(s.Tabs, models.NewTab(notebookID, path))
	}
	return s
}

// TabsByNotebook returns the tabs for a notebook: the live list when the
// notebook is live, the dormant persisted list otherwise. Dormant reads
// do not validate.
func (m *Manager) TabsByNotebook(notebookID string) []models.Tab {
	m.mu.Lock()
	if m.live != nil && m.live.NotebookID == notebookID {
		tabs := m.live.Clone().Tabs
		m.mu.Unlock()
		return tabs
	}
	m.mu.Unlock()

	persisted, err := m.sessions.GetSession(notebookID)
	if err != nil {
		return []models.Tab{}
	}
	if persisted.Tabs == nil {
		return []models.Tab{}
	}
	return persisted.Tabs
}

// LiveSession returns a copy of the live session, if any.
func (m *Manager) LiveSession() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live == nil {
		return models.Session{}, false
	}
	return m.live.Clone(), true
}

// SetDirty flags or clears a tab's unsaved-edits marker. Dirty state is
// scoped to the live session and is never persisted.
func (m *Manager) SetDirty(tabID string, dirty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dirty {
		m.dirty[tabID] = true
		return
	}
	delete(m.dirty, tabID)
}

// IsDirty reports whether a tab has unsaved edits.
func (m *Manager) IsDirty(tabID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty[tabID]
}

// UpdateContent overwrites a file's cached content after a local edit
// (last write wins). The record's LastModified token deliberately keeps
// its last-known-remote value; see the staleness note in DESIGN.md. The
// tab, when open in the live session, is marked dirty.
func (m *Manager) UpdateContent(notebookID, path, content string) (*models.FileRecord, error) {
	rec, err := m.content.GetRecord(store.TierMain, notebookID, path)
	if err != nil {
		if !errors.Is(err, apperr.ErrCacheMiss) {
			return nil, err
		}
		tab := models.NewTab(notebookID, path)
		rec = &models.FileRecord{
			NotebookID: notebookID,
			Path:       path,
			Name:       tab.Name,
			FileType:   tab.FileType,
		}
	}
	rec.Content = content
	rec.Size = int64(len(content))
	rec.DecodeError = ""
	if err := m.content.SaveRecord(store.TierMain, rec); err != nil {
		// The edit still took effect in memory for this call.
		m.logger.Warn("session: content update persistence failed",
			slog.String("notebook", notebookID), slog.String("path", path),
			slog.String("error", err.Error()))
	}

	tabID := models.TabID(notebookID, path)
	m.mu.Lock()
	if m.live != nil && m.live.NotebookID == notebookID {
		for _, t := range m.live.Tabs {
			if t.ID == tabID {
				m.dirty[tabID] = true
				break
			}
		}
	}
	m.mu.Unlock()
	return rec, nil
}

// ClearNotebook wipes everything stored for a notebook: both cache
// tiers, the persisted session, and notebook metadata. A live session
// for that notebook is discarded.
func (m *Manager) ClearNotebook(notebookID string) error {
	if err := m.content.ClearNotebook(notebookID); err != nil {
		return err
	}
	m.mu.Lock()
	if m.live != nil && m.live.NotebookID == notebookID {
		m.live = nil
		m.dirty = make(map[string]bool)
	}
	m.mu.Unlock()
	return nil
}
