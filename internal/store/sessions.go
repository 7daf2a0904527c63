package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/tabcache/internal/apperr"
	"github.com/starford/tabcache/internal/models"
)

// SaveSession writes a notebook's tab session. The tab list is stored as a
// JSON array so the persisted layout matches the externally documented
// shape ({id, path, name, file_type} per tab plus a nullable active id).
func (db *DB) SaveSession(s models.Session) error {
	tabs := s.Tabs
	if tabs == nil {
		tabs = []models.Tab{}
	}
	tabsJSON, err := json.Marshal(tabs)
	if err != nil {
		return fmt.Errorf("store: marshal tabs: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO sessions (notebook_id, tabs, active_tab_id, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(notebook_id) DO UPDATE SET
			tabs          = excluded.tabs,
			active_tab_id = excluded.active_tab_id,
			updated_at    = excluded.updated_at
	`, s.NotebookID, string(tabsJSON), s.ActiveTabID, time.Now().UTC())
	if err != nil {
		return &apperr.PersistenceError{Op: "save session", Err: err}
	}
	return nil
}

// GetSession reads a notebook's persisted session, or apperr.ErrSessionMissing.
func (db *DB) GetSession(notebookID string) (models.Session, error) {
	var tabsJSON, activeTabID string
	err := db.conn.QueryRow(`
		SELECT tabs, active_tab_id FROM sessions WHERE notebook_id = ?
	`, notebookID).Scan(&tabsJSON, &activeTabID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, apperr.ErrSessionMissing
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("store: get session: %w", err)
	}

	s := models.Session{NotebookID: notebookID, ActiveTabID: activeTabID}
	if err := json.Unmarshal([]byte(tabsJSON), &s.Tabs); err != nil {
		return models.Session{}, fmt.Errorf("store: unmarshal tabs: %w", err)
	}
	return s, nil
}

// DeleteSession removes a notebook's persisted session.
func (db *DB) DeleteSession(notebookID string) error {
	if _, err := db.conn.Exec(`DELETE FROM sessions WHERE notebook_id = ?`, notebookID); err != nil {
		return fmt.Errorf("store: delete session: %w", err)
	}
	return nil
}
