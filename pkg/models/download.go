package models

import (
	"time"
)

// DownloadStatus is the lifecycle state of an offline download.
type DownloadStatus string

const (
	// StatusPending means the download is admitted and queued but no bytes
	// have been transferred yet.
	StatusPending DownloadStatus = "pending"
	// StatusDownloading means a worker is actively streaming bytes.
	StatusDownloading DownloadStatus = "downloading"
	// StatusPaused means the user suspended the transfer.
	StatusPaused DownloadStatus = "paused"
	// StatusCompleted means the full payload is on local storage.
	StatusCompleted DownloadStatus = "completed"
	// StatusFailed means the transfer exhausted its retries.
	StatusFailed DownloadStatus = "failed"
	// StatusCancelled means the user abandoned the transfer.
	StatusCancelled DownloadStatus = "cancelled"
)

// IsValid checks if the status is a known DownloadStatus.
func (s DownloadStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusDownloading, StatusPaused,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the transfer lifecycle.
// Terminal records never go back to downloading without re-admission.
func (s DownloadStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanPause reports whether Pause is a legal transition from this status.
func (s DownloadStatus) CanPause() bool {
	return s == StatusPending || s == StatusDownloading
}

// CanResume reports whether Resume is a legal transition from this status.
func (s DownloadStatus) CanResume() bool {
	return s == StatusPaused
}

// CanCancel reports whether Cancel is a legal transition from this status.
// Completed records are removed via Delete, not Cancel.
func (s DownloadStatus) CanCancel() bool {
	return s == StatusPending || s == StatusDownloading ||
		s == StatusPaused || s == StatusFailed
}

// Retryable reports whether a new admission for the same (user, content)
// pair may reset this record instead of conflicting.
func (s DownloadStatus) Retryable() bool {
	return s == StatusFailed || s == StatusCancelled
}

// DownloadRecord tracks one offline-copy request: its lifecycle status, byte
// progress and the local file it materializes into.
//
// At most one live (non-soft-deleted) record exists per (user, content) pair.
// The admission service owns creation and the user-facing transitions
// (pause/resume/cancel/delete); the transfer worker owns the downloading
// sub-states and the byte counters. No other writer touches those fields.
type DownloadRecord struct {
	ID        string `gorm:"primaryKey;size:36" json:"id"`
	UserID    string `gorm:"size:36;not null;uniqueIndex:idx_user_content" json:"user_id"`
	ContentID string `gorm:"size:36;not null;uniqueIndex:idx_user_content" json:"content_id"`

	Status  DownloadStatus `gorm:"size:20;not null;index" json:"status"`
	Quality string         `gorm:"size:10;not null" json:"quality"`

	// ByteSize is fixed at admission (content size × quality multiplier)
	// and never recomputed mid-transfer.
	ByteSize         int64   `gorm:"not null" json:"byte_size"`
	BytesTransferred int64   `gorm:"not null;default:0" json:"bytes_transferred"`
	Progress         float64 `gorm:"not null;default:0" json:"progress"`

	LocalPath    string `gorm:"size:512" json:"local_path,omitempty"`
	ErrorMessage string `gorm:"size:1024" json:"error_message,omitempty"`
	RetryCount   int    `gorm:"not null;default:0" json:"retry_count"`

	ExpiresAt time.Time  `json:"expires_at"`
	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for DownloadRecord.
func (DownloadRecord) TableName() string {
	return "download_records"
}

// IsDeleted reports whether the record is soft-deleted.
func (d *DownloadRecord) IsDeleted() bool {
	return d.DeletedAt != nil
}

// IsLive reports whether the record blocks a new admission for the same
// (user, content) pair: not soft-deleted and in a non-retryable status.
func (d *DownloadRecord) IsLive() bool {
	return !d.IsDeleted() && !d.Status.Retryable()
}

// IsExpired reports whether the retention window has passed.
func (d *DownloadRecord) IsExpired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}
