package models

import (
	"errors"
	"fmt"
)

// Common errors for catalog and download operations.
var (
	// User errors
	ErrUserNotFound       = errors.New("user not found")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrUserDisabled       = errors.New("user account is disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Content errors
	ErrContentNotFound    = errors.New("content not found")
	ErrContentUnpublished = errors.New("content is not published")
	ErrDuplicateContent   = errors.New("content already exists")

	// Download errors
	ErrDownloadNotFound    = errors.New("download not found")
	ErrUnknownQuality      = errors.New("unknown quality label")
	ErrNotCompleted        = errors.New("download is not completed")
	ErrInvalidStatusFilter = errors.New("invalid status filter")

	// Quota errors
	ErrQuotaNotFound = errors.New("no storage quota for user")
	ErrUnknownTier   = errors.New("unknown quota tier")

	// Engagement errors
	ErrRatingNotFound       = errors.New("rating not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrTicketNotFound       = errors.New("support ticket not found")
)

// Reason codes returned to clients alongside error messages. Stable values:
// clients branch on these, not on message text.
const (
	ReasonInvalidState   = "invalid_state"
	ReasonDownloadExists = "download_exists"
	ReasonQuotaExceeded  = "quota_exceeded"
	ReasonNoQuota        = "no_quota"
	ReasonNotFound       = "not_found"
	ReasonUnpublished    = "content_unpublished"
	ReasonUnknownQuality = "unknown_quality"
	ReasonUnknownTier    = "unknown_tier"
)

// StateError reports a download lifecycle transition that is not allowed
// from the record's current status.
type StateError struct {
	Current   DownloadStatus
	Attempted string // the requested operation, e.g. "pause"
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s download in status %q", e.Attempted, e.Current)
}

// Reason returns the stable client-facing reason code.
func (e *StateError) Reason() string { return ReasonInvalidState }

// ConflictError reports that a live download already exists for the same
// (user, content) pair. It carries the existing record so clients can offer
// "view existing" instead of blindly retrying.
type ConflictError struct {
	Existing *DownloadRecord
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("download already exists for content %s (status %q)",
		e.Existing.ContentID, e.Existing.Status)
}

// Reason returns the stable client-facing reason code.
func (e *ConflictError) Reason() string { return ReasonDownloadExists }

// QuotaExceededError reports an admission rejected for lack of storage space.
// Required and Available are raw byte counts; the human-readable forms are
// preformatted so every surface reports the same strings.
type QuotaExceededError struct {
	Required       int64
	Available      int64
	RequiredHuman  string
	AvailableHuman string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("insufficient storage: required %s, available %s",
		e.RequiredHuman, e.AvailableHuman)
}

// Reason returns the stable client-facing reason code.
func (e *QuotaExceededError) Reason() string { return ReasonQuotaExceeded }
