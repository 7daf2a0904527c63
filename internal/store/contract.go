package store

import "github.com/starford/tabcache/internal/models"

// ContentStore is the durable file-content cache contract. Consumers
// should depend on this interface rather than the concrete *DB type to
// facilitate testing with mocks.
type ContentStore interface {
	GetRecord(tier Tier, notebookID, path string) (*models.FileRecord, error)
	HasRecord(tier Tier, notebookID, path string) (bool, error)
	SaveRecord(tier Tier, rec *models.FileRecord) error
	DeleteRecord(tier Tier, notebookID, path string) error
	ClearNotebook(notebookID string) error
	TouchNotebook(notebookID, name string) error
	ListNotebooks() ([]models.NotebookInfo, error)
}

// SessionStore is the tab-persistence contract.
type SessionStore interface {
	SaveSession(s models.Session) error
	GetSession(notebookID string) (models.Session, error)
	DeleteSession(notebookID string) error
}

// Verify *DB satisfies both contracts at compile time.
var (
	_ ContentStore = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
)
