package download

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/metrics"
	"github.com/reelcache/reelcache/pkg/models"
	"github.com/reelcache/reelcache/pkg/quota"
)

// Config holds admission-side configuration.
type Config struct {
	// DownloadDir is the root of per-user local storage.
	DownloadDir string `mapstructure:"download_dir" yaml:"download_dir"`

	// RetentionDays bounds how long a completed copy stays playable.
	// Default: 30.
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`

	// QualityMultipliers maps quality labels to the fraction of the
	// content's canonical size that variant occupies.
	QualityMultipliers map[string]float64 `mapstructure:"quality_multipliers" yaml:"quality_multipliers"`

	// DefaultQuality is used when a request omits the quality label.
	DefaultQuality string `mapstructure:"default_quality" yaml:"default_quality"`
}

// DefaultConfig returns the default admission configuration.
func DefaultConfig() Config {
	return Config{
		DownloadDir:   "/var/lib/reelcache/downloads",
		RetentionDays: 30,
		QualityMultipliers: map[string]float64{
			"480p":  0.3,
			"720p":  0.6,
			"1080p": 1.0,
			"4k":    2.0,
		},
		DefaultQuality: "1080p",
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.DownloadDir == "" {
		c.DownloadDir = def.DownloadDir
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = def.RetentionDays
	}
	if len(c.QualityMultipliers) == 0 {
		c.QualityMultipliers = def.QualityMultipliers
	}
	if c.DefaultQuality == "" {
		c.DefaultQuality = def.DefaultQuality
	}
}

// Service is the admission controller for offline copies. It decides which
// transfers start, owns the user-facing lifecycle transitions, and keeps the
// quota cache coherent after anything that frees space.
type Service struct {
	store  Store
	quotas *quota.Service
	queue  Enqueuer
	config Config

	collectors *metrics.DownloadMetrics // optional
}

// NewService creates the admission controller. collectors may be nil.
func NewService(st Store, quotas *quota.Service, queue Enqueuer, config Config, collectors *metrics.DownloadMetrics) *Service {
	config.applyDefaults()

	return &Service{
		store:      st,
		quotas:     quotas,
		queue:      queue,
		config:     config,
		collectors: collectors,
	}
}

// Config returns the effective admission configuration.
func (s *Service) Config() Config {
	return s.config
}

// EstimateSize returns the byte cost of a quality variant, derived from the
// content's canonical size and the quality multiplier table.
// Returns models.ErrUnknownQuality for labels outside the table.
func (s *Service) EstimateSize(content *models.Content, quality string) (int64, error) {
	mult, ok := s.config.QualityMultipliers[quality]
	if !ok {
		return 0, fmt.Errorf("%w: %q", models.ErrUnknownQuality, quality)
	}
	return int64(math.Round(float64(content.SizeBytes) * mult)), nil
}

// Request admits a new offline copy for (userID, contentID, quality) and
// enqueues the transfer.
//
// Admission order is fixed: catalog check, conflict check, quota check,
// record write, enqueue. The quota check runs before any write, so a
// rejected request leaves no trace. A failed enqueue is deliberately not an
// error: the pending record is the durable intent and the reconciliation
// sweep picks it up.
func (s *Service) Request(ctx context.Context, userID, contentID, quality string) (*models.DownloadRecord, error) {
	if quality == "" {
		quality = s.config.DefaultQuality
	}

	content, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		s.collectors.RecordAdmission("rejected")
		return nil, err
	}
	if !content.Published {
		s.collectors.RecordAdmission("rejected")
		return nil, fmt.Errorf("%w: %s", models.ErrContentUnpublished, contentID)
	}

	estimate, err := s.EstimateSize(content, quality)
	if err != nil {
		s.collectors.RecordAdmission("rejected")
		return nil, err
	}

	// At most one row per (user, content) pair. A live record conflicts;
	// a failed/cancelled/soft-deleted one is reset in place below so the
	// unique index holds.
	existing, err := s.store.GetDownloadByUserContent(ctx, userID, contentID)
	if err != nil && !errors.Is(err, models.ErrDownloadNotFound) {
		return nil, err
	}
	if existing != nil && existing.IsLive() {
		s.collectors.RecordAdmission("conflict")
		return nil, &models.ConflictError{Existing: existing}
	}

	avail, err := s.quotas.CheckAvailable(ctx, userID, estimate)
	if err != nil {
		return nil, err
	}
	if !avail.OK {
		if avail.Reason == quota.ReasonNoQuota {
			s.collectors.RecordAdmission("rejected")
			return nil, models.ErrQuotaNotFound
		}
		s.collectors.RecordAdmission("quota_exceeded")
		return nil, &models.QuotaExceededError{
			Required:       avail.Required,
			Available:      avail.Available,
			RequiredHuman:  avail.RequiredHuman,
			AvailableHuman: avail.AvailableHuman,
		}
	}

	now := time.Now()
	expires := now.AddDate(0, 0, s.retentionDaysFor(ctx, userID))

	var rec *models.DownloadRecord
	if existing != nil {
		// Re-admission: reset the existing row instead of inserting a
		// sibling. Counters, error markers and the delete marker all clear.
		rec = existing
		rec.Status = models.StatusPending
		rec.Quality = quality
		rec.ByteSize = estimate
		rec.BytesTransferred = 0
		rec.Progress = 0
		rec.LocalPath = ""
		rec.ErrorMessage = ""
		rec.RetryCount = 0
		rec.ExpiresAt = expires
		rec.DeletedAt = nil

		if err := s.store.SaveDownload(ctx, rec); err != nil {
			return nil, err
		}
	} else {
		rec = &models.DownloadRecord{
			ID:        uuid.New().String(),
			UserID:    userID,
			ContentID: contentID,
			Status:    models.StatusPending,
			Quality:   quality,
			ByteSize:  estimate,
			ExpiresAt: expires,
		}

		if _, err := s.store.CreateDownload(ctx, rec); err != nil {
			return nil, err
		}
	}

	s.collectors.RecordAdmission("accepted")
	logger.Info("Download admitted",
		"downloadID", rec.ID,
		"userID", userID,
		"contentID", contentID,
		"quality", quality,
		"size", bytesize.Format(estimate))

	if !s.enqueue(rec) {
		logger.Warn("Enqueue failed after admission, sweep will recover",
			"downloadID", rec.ID)
	}

	return rec, nil
}

// Pause suspends a pending or downloading transfer. The worker observes the
// transition at its next progress write and stops; the partial file stays
// for resume.
func (s *Service) Pause(ctx context.Context, userID, id string) (*models.DownloadRecord, error) {
	rec, err := s.liveRecord(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanPause() {
		return nil, &models.StateError{Current: rec.Status, Attempted: "pause"}
	}

	ok, err := s.store.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{models.StatusPending, models.StatusDownloading},
		map[string]any{"status": models.StatusPaused})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleTransition(ctx, rec.ID, "pause")
	}

	logger.Info("Download paused", "downloadID", rec.ID, "userID", userID)
	return s.store.GetDownload(ctx, rec.ID)
}

// Resume restarts a paused transfer from the bytes already on disk. The
// record flips back to downloading and a fresh job is enqueued; the worker
// derives the resume offset from the partial file, not from the counters.
// A lost enqueue is recovered by the sweep, which covers stale downloading
// records as well as pending ones.
func (s *Service) Resume(ctx context.Context, userID, id string) (*models.DownloadRecord, error) {
	rec, err := s.liveRecord(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanResume() {
		return nil, &models.StateError{Current: rec.Status, Attempted: "resume"}
	}

	ok, err := s.store.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{models.StatusPaused},
		map[string]any{"status": models.StatusDownloading})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleTransition(ctx, rec.ID, "resume")
	}

	rec, err = s.store.GetDownload(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	logger.Info("Download resumed",
		"downloadID", rec.ID,
		"userID", userID,
		"bytesTransferred", rec.BytesTransferred)

	if !s.enqueue(rec) {
		logger.Warn("Enqueue failed on resume, sweep will recover",
			"downloadID", rec.ID)
	}

	return rec, nil
}

// Cancel abandons a transfer that never completed. The partial file is
// removed best-effort and the record is soft-deleted so the pair can be
// requested again. Completed copies are removed via Delete instead.
func (s *Service) Cancel(ctx context.Context, userID, id string) (*models.DownloadRecord, error) {
	rec, err := s.liveRecord(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !rec.Status.CanCancel() {
		return nil, &models.StateError{Current: rec.Status, Attempted: "cancel"}
	}

	now := time.Now()
	ok, err := s.store.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{
			models.StatusPending, models.StatusDownloading,
			models.StatusPaused, models.StatusFailed,
		},
		map[string]any{
			"status":     models.StatusCancelled,
			"deleted_at": now,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.staleTransition(ctx, rec.ID, "cancel")
	}

	s.removeFile(rec)

	// Cancelled transfers never counted toward usage, but a recompute here
	// is cheap and keeps the cache honest after any lifecycle exit.
	if _, err := s.quotas.Refresh(ctx, userID); err != nil {
		logger.Warn("Quota refresh after cancel failed",
			"userID", userID, "error", err)
	}

	logger.Info("Download cancelled", "downloadID", rec.ID, "userID", userID)
	return s.store.GetDownload(ctx, rec.ID)
}

// Delete removes a completed copy from local storage, soft-deletes the
// record and refreshes the quota. Returns the freed bytes.
func (s *Service) Delete(ctx context.Context, userID, id string) (int64, error) {
	rec, err := s.liveRecord(ctx, userID, id)
	if err != nil {
		return 0, err
	}
	if rec.Status != models.StatusCompleted {
		return 0, &models.StateError{Current: rec.Status, Attempted: "delete"}
	}

	now := time.Now()
	ok, err := s.store.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{models.StatusCompleted},
		map[string]any{"deleted_at": now})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, s.staleTransition(ctx, rec.ID, "delete")
	}

	s.removeFile(rec)

	if _, err := s.quotas.Refresh(ctx, userID); err != nil {
		logger.Warn("Quota refresh after delete failed",
			"userID", userID, "error", err)
	}

	logger.Info("Download deleted",
		"downloadID", rec.ID,
		"userID", userID,
		"freed", bytesize.Format(rec.ByteSize))
	return rec.ByteSize, nil
}

// CleanupResult summarizes a bulk removal.
type CleanupResult struct {
	Deleted    int64 `json:"deleted"`
	FreedBytes int64 `json:"freed_bytes"`

	Freed string `json:"freed"`
}

// DeleteAll removes every non-deleted download for a user: files are removed
// best-effort, rows are hard-deleted, and the quota is refreshed once.
// Freed bytes count only completed copies, since in-flight transfers never
// entered the usage sum.
func (s *Service) DeleteAll(ctx context.Context, userID string) (*CleanupResult, error) {
	recs, err := s.store.ListActiveDownloads(ctx, userID)
	if err != nil {
		return nil, err
	}

	var freed int64
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.Status == models.StatusCompleted {
			freed += rec.ByteSize
		}
		s.removeFile(rec)
		ids = append(ids, rec.ID)
	}

	deleted, err := s.store.HardDeleteDownloads(ctx, ids)
	if err != nil {
		return nil, err
	}

	if _, err := s.quotas.Refresh(ctx, userID); err != nil {
		logger.Warn("Quota refresh after cleanup failed",
			"userID", userID, "error", err)
	}

	logger.Info("Downloads cleaned up",
		"userID", userID,
		"deleted", deleted,
		"freed", bytesize.Format(freed))

	return &CleanupResult{
		Deleted:    deleted,
		FreedBytes: freed,
		Freed:      bytesize.Format(freed),
	}, nil
}

// ExpireOverdue removes completed copies whose retention window has passed:
// file removal is best-effort, the record is soft-deleted through the status
// guard, and each affected user's quota is refreshed once. Returns how many
// records expired.
func (s *Service) ExpireOverdue(ctx context.Context) int {
	now := time.Now()
	recs, err := s.store.ListExpiredDownloads(ctx, now)
	if err != nil {
		logger.Error("Failed to list expired downloads", "error", err)
		return 0
	}

	users := make(map[string]struct{})
	expired := 0
	for _, rec := range recs {
		if !rec.IsExpired(now) {
			continue
		}
		ok, err := s.store.TransitionDownload(ctx, rec.ID,
			[]models.DownloadStatus{models.StatusCompleted},
			map[string]any{"deleted_at": now})
		if err != nil {
			logger.Error("Failed to expire download",
				"downloadID", rec.ID, "error", err)
			continue
		}
		if !ok {
			continue // deleted or re-admitted concurrently
		}

		s.removeFile(rec)
		users[rec.UserID] = struct{}{}
		expired++
	}

	for userID := range users {
		if _, err := s.quotas.Refresh(ctx, userID); err != nil {
			logger.Warn("Quota refresh after expiry failed",
				"userID", userID, "error", err)
		}
	}

	if expired > 0 {
		logger.Info("Expired downloads removed", "count", expired)
	}
	return expired
}

// retentionDaysFor returns the effective retention window for new copies:
// the platform window, shortened by the user's auto-delete preference.
func (s *Service) retentionDaysFor(ctx context.Context, userID string) int {
	days := s.config.RetentionDays
	q, err := s.store.GetQuota(ctx, userID)
	if err != nil {
		return days
	}
	if q.AutoDeleteEnabled && q.AutoDeleteDays > 0 && q.AutoDeleteDays < days {
		return q.AutoDeleteDays
	}
	return days
}

// List returns a page of the user's downloads, optionally filtered by status.
func (s *Service) List(ctx context.Context, userID string, status models.DownloadStatus, page, take int) ([]*models.DownloadRecord, int64, error) {
	if status != "" && !status.IsValid() {
		return nil, 0, fmt.Errorf("%w: %q", models.ErrInvalidStatusFilter, status)
	}
	return s.store.ListDownloads(ctx, userID, status, page, take)
}

// ProgressSnapshot is the client-facing progress view for one download.
type ProgressSnapshot struct {
	ID               string                `json:"id"`
	Status           models.DownloadStatus `json:"status"`
	Progress         float64               `json:"progress"`
	BytesTransferred int64                 `json:"bytes_transferred"`
	ByteSize         int64                 `json:"byte_size"`

	Transferred string `json:"transferred"`
	Total       string `json:"total"`
}

// Progress returns the current transfer progress for a download.
func (s *Service) Progress(ctx context.Context, userID, id string) (*ProgressSnapshot, error) {
	rec, err := s.liveRecord(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	return &ProgressSnapshot{
		ID:               rec.ID,
		Status:           rec.Status,
		Progress:         rec.Progress,
		BytesTransferred: rec.BytesTransferred,
		ByteSize:         rec.ByteSize,
		Transferred:      bytesize.Format(rec.BytesTransferred),
		Total:            bytesize.Format(rec.ByteSize),
	}, nil
}

// Get returns a live download record scoped to the user.
func (s *Service) Get(ctx context.Context, userID, id string) (*models.DownloadRecord, error) {
	return s.liveRecord(ctx, userID, id)
}

// liveRecord loads a record scoped to the user, hiding soft-deleted rows.
func (s *Service) liveRecord(ctx context.Context, userID, id string) (*models.DownloadRecord, error) {
	rec, err := s.store.GetDownloadForUser(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if rec.IsDeleted() {
		return nil, models.ErrDownloadNotFound
	}
	return rec, nil
}

// staleTransition maps a failed status guard to the error the caller would
// have gotten had it observed the concurrent transition first.
func (s *Service) staleTransition(ctx context.Context, id, op string) error {
	rec, err := s.store.GetDownload(ctx, id)
	if err != nil {
		return err
	}
	return &models.StateError{Current: rec.Status, Attempted: op}
}

func (s *Service) enqueue(rec *models.DownloadRecord) bool {
	return s.queue.Enqueue(Job{
		DownloadID: rec.ID,
		UserID:     rec.UserID,
		ContentID:  rec.ContentID,
		Quality:    rec.Quality,
	})
}

// removeFile deletes the record's payload from local storage, best-effort.
// Partial and completed files share the same derived path.
func (s *Service) removeFile(rec *models.DownloadRecord) {
	path := rec.LocalPath
	if path == "" {
		path = LocalPath(s.config.DownloadDir, rec)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove download file",
			"downloadID", rec.ID, "path", path, "error", err)
	}
}
