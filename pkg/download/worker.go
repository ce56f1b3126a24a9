package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/content"
	"github.com/reelcache/reelcache/pkg/metrics"
	"github.com/reelcache/reelcache/pkg/models"
	"github.com/reelcache/reelcache/pkg/quota"
)

// WorkerConfig holds transfer-side tuning knobs.
type WorkerConfig struct {
	// ChunkSize is the copy buffer size. Default: 256 KiB.
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`

	// ProgressInterval bounds how often byte counters are persisted.
	// Default: 1s.
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`

	// ProgressBytes forces a persist after this many bytes regardless of
	// the interval. Default: 4 MiB.
	ProgressBytes int64 `mapstructure:"progress_bytes" yaml:"progress_bytes"`
}

// DefaultWorkerConfig returns the default transfer configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ChunkSize:        256 * 1024,
		ProgressInterval: time.Second,
		ProgressBytes:    4 * 1024 * 1024,
	}
}

func (c *WorkerConfig) applyDefaults() {
	def := DefaultWorkerConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = def.ProgressInterval
	}
	if c.ProgressBytes <= 0 {
		c.ProgressBytes = def.ProgressBytes
	}
}

// Worker executes one transfer job: it streams a content variant from the
// object store into the user's local storage, resuming from whatever is
// already on disk.
//
// The partial file's size is the authoritative resume offset. Byte counters
// in the record are advisory progress; the file is what was actually
// written, and the range request starts exactly where it ends.
type Worker struct {
	store       Store
	objects     content.ObjectStore
	quotas      *quota.Service
	downloadDir string
	config      WorkerConfig

	collectors *metrics.DownloadMetrics // optional
}

// NewWorker creates a transfer worker. collectors may be nil.
func NewWorker(st Store, objects content.ObjectStore, quotas *quota.Service, downloadDir string, config WorkerConfig, collectors *metrics.DownloadMetrics) *Worker {
	config.applyDefaults()

	return &Worker{
		store:       st,
		objects:     objects,
		quotas:      quotas,
		downloadDir: downloadDir,
		config:      config,
		collectors:  collectors,
	}
}

// Process runs one transfer attempt for the job's download record.
//
// Errors wrapped with ErrUnrecoverable must not be retried; any other error
// is transient and the record is parked back in pending for the retry or the
// reconciliation sweep. A nil return means the transfer either completed or
// was legitimately declined (record paused, cancelled or already done).
func (w *Worker) Process(ctx context.Context, job Job) error {
	rec, err := w.store.GetDownload(ctx, job.DownloadID)
	if err != nil {
		if errors.Is(err, models.ErrDownloadNotFound) {
			return fmt.Errorf("%w: record %s gone", ErrUnrecoverable, job.DownloadID)
		}
		return fmt.Errorf("load record: %w", err)
	}

	// Jobs are best-effort pointers at records; the record decides. Anything
	// but pending/downloading means the user or another worker got here
	// first, and this job has nothing to do.
	if rec.IsDeleted() || (rec.Status != models.StatusPending && rec.Status != models.StatusDownloading) {
		logger.Debug("Skipping job for inactive record",
			"downloadID", rec.ID, "status", rec.Status)
		return nil
	}

	cnt, err := w.store.GetContent(ctx, rec.ContentID)
	if err != nil {
		if errors.Is(err, models.ErrContentNotFound) {
			w.markFailed(rec.ID, "content removed from catalog")
			return fmt.Errorf("%w: content %s gone", ErrUnrecoverable, rec.ContentID)
		}
		return fmt.Errorf("load content: %w", err)
	}
	if cnt.RemoteKey == "" {
		w.markFailed(rec.ID, "content has no remote object")
		return fmt.Errorf("%w: content %s has no remote key", ErrUnrecoverable, rec.ContentID)
	}

	path := LocalPath(w.downloadDir, rec)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		w.parkPending(rec.ID, err)
		return fmt.Errorf("create user dir: %w", err)
	}

	offset := diskOffset(path)
	if offset > rec.ByteSize {
		// The partial file outgrew the expected size, likely a leftover
		// from a different quality. Start over.
		logger.Warn("Partial file larger than expected, restarting",
			"downloadID", rec.ID, "onDisk", offset, "expected", rec.ByteSize)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			w.parkPending(rec.ID, err)
			return fmt.Errorf("remove oversized partial: %w", err)
		}
		offset = 0
	}

	progress := percent(offset, rec.ByteSize)
	ok, err := w.store.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{models.StatusPending, models.StatusDownloading},
		map[string]any{
			"status":            models.StatusDownloading,
			"bytes_transferred": offset,
			"progress":          progress,
			"error_message":     "",
		})
	if err != nil {
		return fmt.Errorf("claim record: %w", err)
	}
	if !ok {
		logger.Debug("Record claimed elsewhere, skipping",
			"downloadID", rec.ID)
		return nil
	}

	if offset >= rec.ByteSize {
		// Everything is already on disk, only the finalization was lost.
		return w.finalize(ctx, rec, path)
	}

	key := VariantKey(cnt.RemoteKey, rec.Quality)
	reader, err := w.objects.Open(ctx, key, offset)
	if err != nil {
		if errors.Is(err, content.ErrObjectNotFound) {
			w.markFailed(rec.ID, fmt.Sprintf("remote object %s missing", key))
			return fmt.Errorf("%w: object %s missing", ErrUnrecoverable, key)
		}
		w.parkPending(rec.ID, err)
		return fmt.Errorf("open remote object: %w", err)
	}
	defer reader.Close()

	logger.Info("Transfer started",
		"downloadID", rec.ID,
		"key", key,
		"offset", offset,
		"remaining", bytesize.Format(rec.ByteSize-offset))

	if w.collectors != nil {
		w.collectors.ActiveTransfers.Inc()
		defer w.collectors.ActiveTransfers.Dec()
	}

	transferred, streamErr := w.stream(ctx, rec, path, reader, offset)
	if streamErr != nil {
		if errors.Is(streamErr, errExternalTransition) {
			// Paused or cancelled mid-stream. The partial file stays for
			// resume; cancel's own cleanup already ran or will run.
			logger.Info("Transfer stopped by external transition",
				"downloadID", rec.ID, "bytesTransferred", transferred)
			return nil
		}
		w.parkPending(rec.ID, streamErr)
		return fmt.Errorf("stream payload: %w", streamErr)
	}

	if transferred < rec.ByteSize {
		// Clean EOF short of the admitted size: the remote object is
		// smaller than the estimate or the stream was truncated. Never
		// finalize, the quota charged the full size. Resume picks up at
		// the partial offset.
		err := fmt.Errorf("short payload: got %d of %d bytes",
			transferred, rec.ByteSize)
		w.parkPending(rec.ID, err)
		return err
	}

	return w.finalize(ctx, rec, path)
}

// errExternalTransition signals that a progress write observed the record
// leaving the downloading status.
var errExternalTransition = errors.New("record left downloading status")

// stream copies payload bytes into the partial file, persisting progress at
// bounded intervals. Each persisted write doubles as a cancellation check.
func (w *Worker) stream(ctx context.Context, rec *models.DownloadRecord, path string, reader io.Reader, offset int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return offset, fmt.Errorf("open partial file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek partial file: %w", err)
	}

	// Never write past the admitted size; the quota charged exactly this.
	limited := io.LimitReader(reader, rec.ByteSize-offset)

	buf := make([]byte, w.config.ChunkSize)
	transferred := offset
	lastFlush := time.Now()
	var unflushed int64

	for {
		select {
		case <-ctx.Done():
			return transferred, ctx.Err()
		default:
		}

		n, readErr := limited.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return transferred, fmt.Errorf("write partial file: %w", err)
			}
			transferred += int64(n)
			unflushed += int64(n)
			w.collectors.RecordBytes(int64(n))
		}

		flushDue := unflushed >= w.config.ProgressBytes ||
			time.Since(lastFlush) >= w.config.ProgressInterval

		if flushDue && unflushed > 0 {
			ok, err := w.store.UpdateDownloadProgress(ctx, rec.ID,
				transferred, percent(transferred, rec.ByteSize))
			if err != nil {
				return transferred, fmt.Errorf("persist progress: %w", err)
			}
			if !ok {
				return transferred, errExternalTransition
			}
			lastFlush = time.Now()
			unflushed = 0
		}

		if readErr != nil {
			if readErr == io.EOF {
				return transferred, nil
			}
			return transferred, fmt.Errorf("read remote object: %w", readErr)
		}
	}
}

// finalize flushes the file and flips the record to completed with exact
// totals. Completion is the only point where bytes enter the quota sum, and
// the cached counter is recomputed right after.
func (w *Worker) finalize(ctx context.Context, rec *models.DownloadRecord, path string) error {
	ok, err := w.store.TransitionDownload(ctx, rec.ID,
		[]models.DownloadStatus{models.StatusDownloading},
		map[string]any{
			"status":            models.StatusCompleted,
			"bytes_transferred": rec.ByteSize,
			"progress":          100.0,
			"local_path":        path,
			"error_message":     "",
		})
	if err != nil {
		return fmt.Errorf("finalize record: %w", err)
	}
	if !ok {
		logger.Info("Completion lost to external transition",
			"downloadID", rec.ID)
		return nil
	}

	if _, err := w.quotas.Refresh(ctx, rec.UserID); err != nil {
		logger.Warn("Quota refresh after completion failed",
			"userID", rec.UserID, "error", err)
	}

	logger.Info("Transfer completed",
		"downloadID", rec.ID,
		"path", path,
		"size", bytesize.Format(rec.ByteSize))
	return nil
}

// MarkFailed flips a record to failed with the cause. Wired as the queue's
// permanent-failure callback so exhausted retries land in a terminal state.
func (w *Worker) MarkFailed(job Job, cause error) {
	msg := "transfer failed"
	if cause != nil {
		msg = cause.Error()
	}
	w.markFailed(job.DownloadID, msg)
}

// markFailed transitions an active record to failed. Records already moved
// elsewhere (paused, cancelled) are left alone.
func (w *Worker) markFailed(id, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if len(msg) > 1024 {
		msg = msg[:1024]
	}

	ok, err := w.store.TransitionDownload(ctx, id,
		[]models.DownloadStatus{models.StatusPending, models.StatusDownloading},
		map[string]any{
			"status":        models.StatusFailed,
			"error_message": msg,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if err != nil {
		logger.Error("Failed to mark download failed",
			"downloadID", id, "error", err)
		return
	}
	if ok {
		logger.Info("Download marked failed", "downloadID", id, "reason", msg)
	}
}

// parkPending moves a record hit by a transient error back to pending, so
// the queue retry or the reconciliation sweep can pick it up again.
func (w *Worker) parkPending(id string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg := cause.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}

	_, err := w.store.TransitionDownload(ctx, id,
		[]models.DownloadStatus{models.StatusDownloading, models.StatusPending},
		map[string]any{
			"status":        models.StatusPending,
			"error_message": msg,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if err != nil {
		logger.Error("Failed to park download as pending",
			"downloadID", id, "error", err)
	}
}

// diskOffset returns the partial file's size, the authoritative resume
// offset. A missing file means starting from zero.
func diskOffset(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func percent(transferred, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(transferred) / float64(total) * 100
	if p > 100 {
		p = 100
	}
	return p
}
