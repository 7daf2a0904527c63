// Package testutil provides shared test helpers for setting up cache
// databases and fake backends.
package testutil

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/starford/tabcache/internal/apperr"
	"github.com/starford/tabcache/internal/models"
	"github.com/starford/tabcache/internal/remote"
	"github.com/starford/tabcache/internal/store"
)

// TestDB creates a temporary SQLite cache database that is automatically
// cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tabcache-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// FakeBackend is an in-memory remote.Backend for tests. Files maps
// "notebookID/path" to the response served for that key; keys not present
// return apperr.ErrNotFound. Err, when set, is returned for every call.
type FakeBackend struct {
	mu    sync.Mutex
	Files map[string]*remote.FileResponse
	Tree  map[string]*models.TreeNode
	Err   error

	getCalls  []string
	listCalls []string
}

var _ remote.Backend = (*FakeBackend)(nil)

// NewFakeBackend returns an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Files: make(map[string]*remote.FileResponse),
		Tree:  make(map[string]*models.TreeNode),
	}
}

// Put registers a file response for notebookID and path.
func (b *FakeBackend) Put(notebookID, path string, fr *remote.FileResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Files[notebookID+"/"+path] = fr
}

// GetFile implements remote.Backend.
func (b *FakeBackend) GetFile(_ context.Context, notebookID, path string) (*remote.FileResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getCalls = append(b.getCalls, notebookID+"/"+path)
	if b.Err != nil {
		return nil, b.Err
	}
	if fr, ok := b.Files[notebookID+"/"+path]; ok {
		return fr, nil
	}
	return nil, apperr.ErrNotFound
}

// ListFiles implements remote.Backend.
func (b *FakeBackend) ListFiles(_ context.Context, notebookID string) (*models.TreeNode, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listCalls = append(b.listCalls, notebookID)
	if b.Err != nil {
		return nil, b.Err
	}
	if tree, ok := b.Tree[notebookID]; ok {
		return tree, nil
	}
	return nil, apperr.ErrNotFound
}

// GetCalls returns every GetFile invocation as "notebookID/path".
func (b *FakeBackend) GetCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.getCalls...)
}

// ListCalls returns every ListFiles invocation.
func (b *FakeBackend) ListCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.listCalls...)
}
