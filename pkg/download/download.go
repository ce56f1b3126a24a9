// Package download implements the offline-copy pipeline: admission control
// against storage quotas, a bounded job queue, resumable transfer workers
// streaming content from the object store to per-user local storage, and a
// reconciliation sweep that recovers lost jobs.
//
// Lifecycle writers are split by design: the Service owns admission and the
// user-facing transitions (pause, resume, cancel, delete), the Worker owns
// the downloading sub-states and byte counters. Every transition goes through
// a status-guarded update, so a stale writer loses instead of clobbering.
package download

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/reelcache/reelcache/pkg/models"
	"github.com/reelcache/reelcache/pkg/store"
)

// Store is the persistence surface the download pipeline needs: the full
// download record store plus catalog lookups for admission and transfer.
type Store interface {
	store.DownloadStore

	// GetContent returns a catalog entry by ID.
	GetContent(ctx context.Context, id string) (*models.Content, error)

	// GetQuota returns the user's quota row, read at admission for the
	// auto-delete retention preference.
	GetQuota(ctx context.Context, userID string) (*models.StorageQuota, error)
}

// Enqueuer dispatches admitted transfers to the worker pool. Implemented by
// *Queue; tests substitute a recorder.
type Enqueuer interface {
	Enqueue(job Job) bool
}

// LocalPath returns the on-disk location for a record's payload:
// <dir>/<userID>/<contentID>_<quality>.mp4. The path is derived, never
// stored before completion, so partial files are always addressable.
func LocalPath(dir string, rec *models.DownloadRecord) string {
	return filepath.Join(dir, rec.UserID,
		fmt.Sprintf("%s_%s.mp4", rec.ContentID, rec.Quality))
}

// VariantKey returns the object-store key for a content's quality variant.
// The catalog stores the base key; the transcoder pipeline publishes one
// object per quality under it.
func VariantKey(remoteKey, quality string) string {
	return fmt.Sprintf("%s/%s.mp4", strings.TrimSuffix(remoteKey, "/"), quality)
}
