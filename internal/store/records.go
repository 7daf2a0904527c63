package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/tabcache/internal/apperr"
	"github.com/starford/tabcache/internal/models"
)

// GetRecord returns the cached record for (tier, notebookID, path), or
// apperr.ErrCacheMiss. The lookup also bumps the record's access stats;
// a failure of that bookkeeping update is ignored.
func (db *DB) GetRecord(tier Tier, notebookID, path string) (*models.FileRecord, error) {
	row := db.conn.QueryRow(`
		SELECT name, content, file_type, last_modified, size,
		       cached_at, access_count, last_accessed, decode_error
		FROM files
		WHERE tier = ? AND notebook_id = ? AND path = ?
	`, string(tier), notebookID, path)

	rec := models.FileRecord{NotebookID: notebookID, Path: path}
	var fileType string
	err := row.Scan(&rec.Name, &rec.Content, &fileType, &rec.LastModified,
		&rec.Size, &rec.CachedAt, &rec.AccessCount, &rec.LastAccessed, &rec.DecodeError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("store: get record: %w", err)
	}
	rec.FileType = models.ParseFileType(fileType)

	_, _ = db.conn.Exec(`
		UPDATE files SET access_count = access_count + 1, last_accessed = ?
		WHERE tier = ? AND notebook_id = ? AND path = ?
	`, time.Now().UTC(), string(tier), notebookID, path)
	rec.AccessCount++

	return &rec, nil
}

// HasRecord reports whether a record exists without touching access stats.
func (db *DB) HasRecord(tier Tier, notebookID, path string) (bool, error) {
	var one int
	err := db.conn.QueryRow(`
		SELECT 1 FROM files WHERE tier = ? AND notebook_id = ? AND path = ?
	`, string(tier), notebookID, path).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: has record: %w", err)
	}
	return true, nil
}

// SaveRecord upserts a record into the given tier. The whole row is
// replaced in a single statement, so readers see either the old or the
// new record, never a mix of fields.
func (db *DB) SaveRecord(tier Tier, rec *models.FileRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO files (tier, notebook_id, path, name, content, file_type,
		                   last_modified, size, cached_at, access_count,
		                   last_accessed, decode_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tier, notebook_id, path) DO UPDATE SET
			name          = excluded.name,
			content       = excluded.content,
			file_type     = excluded.file_type,
			last_modified = excluded.last_modified,
			size          = excluded.size,
			cached_at     = excluded.cached_at,
			access_count  = excluded.access_count,
			last_accessed = excluded.last_accessed,
			decode_error  = excluded.decode_error
	`, string(tier), rec.NotebookID, rec.Path, rec.Name, rec.Content,
		rec.FileType.String(), rec.LastModified, rec.Size, rec.CachedAt,
		rec.AccessCount, rec.LastAccessed, rec.DecodeError)
	if err != nil {
		return &apperr.PersistenceError{Op: "save record", Err: err}
	}
	return nil
}

// DeleteRecord removes a single record from the given tier.
func (db *DB) DeleteRecord(tier Tier, notebookID, path string) error {
	if _, err := db.conn.Exec(`
		DELETE FROM files WHERE tier = ? AND notebook_id = ? AND path = ?
	`, string(tier), notebookID, path); err != nil {
		return fmt.Errorf("store: delete record: %w", err)
	}
	return nil
}

// ClearNotebook removes every record (both tiers), the persisted session,
// and the notebook row for a notebook. Used for hard resets.
func (db *DB) ClearNotebook(notebookID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, _ = tx.Exec(`DELETE FROM files WHERE notebook_id = ?`, notebookID)
	_, _ = tx.Exec(`DELETE FROM sessions WHERE notebook_id = ?`, notebookID)
	_, _ = tx.Exec(`DELETE FROM notebooks WHERE id = ?`, notebookID)

	return tx.Commit()
}

// TouchNotebook upserts a notebook's access metadata. An empty name keeps
// the previously stored one.
func (db *DB) TouchNotebook(notebookID, name string) error {
	_, err := db.conn.Exec(`
		INSERT INTO notebooks (id, name, last_accessed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name             = CASE WHEN excluded.name != '' THEN excluded.name ELSE notebooks.name END,
			last_accessed_at = excluded.last_accessed_at
	`, notebookID, name, time.Now().UTC())
	if err != nil {
		return &apperr.PersistenceError{Op: "touch notebook", Err: err}
	}
	return nil
}

// ListNotebooks returns every known notebook, most recently accessed first.
func (db *DB) ListNotebooks() ([]models.NotebookInfo, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, last_accessed_at FROM notebooks
		ORDER BY last_accessed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("store: list notebooks: %w", err)
	}
	defer rows.Close()

	var out []models.NotebookInfo
	for rows.Next() {
		var nb models.NotebookInfo
		if err := rows.Scan(&nb.ID, &nb.Name, &nb.LastAccessedAt); err != nil {
			return nil, err
		}
		out = append(out, nb)
	}
	return out, rows.Err()
}
