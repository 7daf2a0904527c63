// Package fetch implements the path-resolving fetch orchestrator: it
// answers content requests from the durable cache when possible and
// otherwise probes the remote backend through a fixed list of path
// variants, normalizes the result, and writes it through to the cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/tabcache/internal/apperr"
	"github.com/starford/tabcache/internal/metrics"
	"github.com/starford/tabcache/internal/models"
	"github.com/starford/tabcache/internal/remote"
	"github.com/starford/tabcache/internal/store"
)

// Orchestrator resolves logical file paths against the cache and the
// remote backend. Concurrent requests for the same key share a single
// in-flight fetch instead of racing into duplicate network calls.
type Orchestrator struct {
	store   store.ContentStore
	backend remote.Backend
	logger  *slog.Logger

	group singleflight.Group
}

// New creates an orchestrator over the given store and backend.
func New(cs store.ContentStore, backend remote.Backend, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: cs, backend: backend, logger: logger}
}

// ResolveAndFetch returns the record for (tier, notebookID, filePath).
//
// The cached record is served without any network call when it exists and
// knownLastModified is either empty or equal to the cached version token.
// Otherwise the backend is probed through the ordered path variants; the
// first success is decoded, written through to the cache, and returned.
//
// Failure classification: apperr.ErrNotFound when every variant misses
// (the caller omits or removes the tab, no user-facing error); a
// transient error when the backend or network fails (re-invocation is up
// to the caller). A cache write failure is logged and the freshly fetched
// record is still returned from memory.
func (o *Orchestrator) ResolveAndFetch(ctx context.Context, tier store.Tier, notebookID, filePath, knownLastModified string) (*models.FileRecord, error) {
	cached, err := o.store.GetRecord(tier, notebookID, filePath)
	if err == nil && (knownLastModified == "" || knownLastModified == cached.LastModified) {
		metrics.CacheHits.WithLabelValues(string(tier)).Inc()
		return cached, nil
	}
	if err != nil && !errors.Is(err, apperr.ErrCacheMiss) {
		o.logger.Warn("fetch: cache read failed",
			slog.String("notebook", notebookID),
			slog.String("path", filePath),
			slog.String("error", err.Error()))
	}
	metrics.CacheMisses.WithLabelValues(string(tier)).Inc()

	key := string(tier) + "|" + notebookID + "|" + filePath
	v, err, _ := o.group.Do(key, func() (any, error) {
		return o.fetchRemote(ctx, tier, notebookID, filePath, cached)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.FileRecord), nil
}

// Exists probes the backend for a file without retaining content. The
// content store is consulted first; a cached record counts as existing.
// A transient backend failure is returned as an error, distinct from a
// definite "absent at every path" (false, nil).
func (o *Orchestrator) Exists(ctx context.Context, notebookID, filePath string) (bool, error) {
	ok, err := o.store.HasRecord(store.TierMain, notebookID, filePath)
	if err == nil && ok {
		return true, nil
	}

	for _, variant := range pathVariants(filePath) {
		_, err := o.backend.GetFile(ctx, notebookID, variant)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		return false, err
	}
	return false, nil
}

func (o *Orchestrator) fetchRemote(ctx context.Context, tier store.Tier, notebookID, filePath string, prev *models.FileRecord) (*models.FileRecord, error) {
	started := time.Now()

	var resp *remote.FileResponse
	for _, variant := range pathVariants(filePath) {
		fr, err := o.backend.GetFile(ctx, notebookID, variant)
		if err == nil {
			resp = fr
			break
		}
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		metrics.FetchTransientErrors.Inc()
		return nil, fmt.Errorf("fetch: %s/%s: %w", notebookID, filePath, err)
	}
	if resp == nil {
		metrics.FetchNotFound.Inc()
		return nil, apperr.ErrNotFound
	}
	metrics.FetchSuccess.Inc()
	metrics.FetchDuration.Observe(time.Since(started).Seconds())

	rec := o.buildRecord(notebookID, filePath, resp, prev)

	if err := o.store.SaveRecord(tier, rec); err != nil {
		// Non-fatal: the fetched content is served from memory for
		// this call; only durability is lost.
		metrics.CacheWriteErrors.Inc()
		o.logger.Warn("fetch: cache write failed",
			slog.String("notebook", notebookID),
			slog.String("path", filePath),
			slog.String("error", err.Error()))
	}
	return rec, nil
}

// buildRecord decodes the backend response into a FileRecord keyed by the
// original logical path, no matter which variant answered. A decode
// failure flags the record instead of failing the pipeline.
func (o *Orchestrator) buildRecord(notebookID, filePath string, resp *remote.FileResponse, prev *models.FileRecord) *models.FileRecord {
	now := time.Now().UTC()
	name := path.Base(filePath)
	fileType := models.ClassifyPath(filePath)

	rec := &models.FileRecord{
		NotebookID:   notebookID,
		Path:         filePath,
		Name:         name,
		FileType:     fileType,
		LastModified: resp.LastModified,
		Size:         resp.Size,
		CachedAt:     now,
		AccessCount:  1,
		LastAccessed: now,
	}
	if prev != nil {
		rec.AccessCount = prev.AccessCount + 1
	}

	content, err := models.DecodeContent(fileType, name, resp.Content, resp.DataURL)
	if err != nil {
		metrics.FetchDecodeErrors.Inc()
		o.logger.Warn("fetch: decode failed",
			slog.String("notebook", notebookID),
			slog.String("path", filePath),
			slog.String("error", err.Error()))
		rec.DecodeError = err.Error()
		return rec
	}
	rec.Content = content
	if rec.Size == 0 {
		rec.Size = int64(len(content))
	}
	return rec
}
