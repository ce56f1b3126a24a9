// Package store provides the persistence layer for the platform.
//
// Two backends are supported:
//   - SQLite (single-node, default)
//   - PostgreSQL (HA-capable)
package store

import (
	"context"
	"time"

	"github.com/reelcache/reelcache/pkg/models"
)

// Store is the full persistence interface.
//
// Thread safety: implementations must be safe for concurrent use from
// multiple goroutines.
type Store interface {
	UserStore
	ContentStore
	DownloadStore
	QuotaStore
	EngagementStore
}

// UserStore manages platform accounts.
type UserStore interface {
	// GetUserByID returns a user by their unique ID (UUID).
	// Returns models.ErrUserNotFound if no user has this ID.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// GetUserByEmail returns a user by email.
	// Returns models.ErrUserNotFound if the user doesn't exist.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// ListUsers returns all users.
	ListUsers(ctx context.Context) ([]*models.User, error)

	// CreateUser creates a new user. The ID is generated if empty.
	// Returns models.ErrDuplicateUser if a user with the same email exists.
	CreateUser(ctx context.Context, user *models.User) (string, error)

	// UpdateLastLogin updates the user's last login timestamp.
	UpdateLastLogin(ctx context.Context, id string, timestamp time.Time) error

	// ValidateCredentials verifies email/password credentials.
	// Returns models.ErrInvalidCredentials on a mismatch and
	// models.ErrUserDisabled if the account is disabled.
	ValidateCredentials(ctx context.Context, email, password string) (*models.User, error)
}

// ContentStore manages the content catalog.
type ContentStore interface {
	// GetContent returns a catalog entry by ID.
	// Returns models.ErrContentNotFound if it doesn't exist.
	GetContent(ctx context.Context, id string) (*models.Content, error)

	// ListContents returns published catalog entries, newest first,
	// with clamped pagination. Returns the page and the total count.
	ListContents(ctx context.Context, page, take int) ([]*models.Content, int64, error)

	// CreateContent creates a catalog entry. The ID is generated if empty.
	CreateContent(ctx context.Context, content *models.Content) (string, error)

	// UpdateContent updates an existing catalog entry.
	UpdateContent(ctx context.Context, content *models.Content) error

	// DeleteContent removes a catalog entry.
	DeleteContent(ctx context.Context, id string) error
}

// DownloadStore manages download records. Writers split ownership: the
// admission service performs creation and user-facing transitions, the
// transfer worker performs downloading transitions and byte counters.
type DownloadStore interface {
	// GetDownload returns a record by ID, soft-deleted ones included.
	// Returns models.ErrDownloadNotFound if it doesn't exist.
	GetDownload(ctx context.Context, id string) (*models.DownloadRecord, error)

	// GetDownloadForUser returns a record by ID scoped to a user.
	GetDownloadForUser(ctx context.Context, userID, id string) (*models.DownloadRecord, error)

	// GetDownloadByUserContent returns the record for a (user, content)
	// pair, soft-deleted ones included. There is at most one row per pair.
	GetDownloadByUserContent(ctx context.Context, userID, contentID string) (*models.DownloadRecord, error)

	// ListDownloads returns non-deleted records for a user, newest first.
	// status filters when non-empty. Pagination is clamped by the caller.
	ListDownloads(ctx context.Context, userID string, status models.DownloadStatus, page, take int) ([]*models.DownloadRecord, int64, error)

	// CreateDownload inserts a new record. The ID is generated if empty.
	CreateDownload(ctx context.Context, record *models.DownloadRecord) (string, error)

	// SaveDownload persists all fields of an existing record.
	SaveDownload(ctx context.Context, record *models.DownloadRecord) error

	// TransitionDownload atomically updates a record only if its current
	// status is one of from. Returns false when the guard did not match,
	// which callers treat as a concurrent external transition.
	TransitionDownload(ctx context.Context, id string, from []models.DownloadStatus, updates map[string]any) (bool, error)

	// UpdateDownloadProgress persists byte counters for a record that is
	// still downloading. Returns false if the record left the downloading
	// status (externally paused/cancelled) — callers must stop streaming.
	UpdateDownloadProgress(ctx context.Context, id string, bytesTransferred int64, progress float64) (bool, error)

	// SumCompletedBytes returns sum(byte_size) over completed, non-deleted
	// records for the user. This is the ground truth quota usage.
	SumCompletedBytes(ctx context.Context, userID string) (int64, error)

	// ListCompletedDownloads returns completed, non-deleted records for a user.
	ListCompletedDownloads(ctx context.Context, userID string) ([]*models.DownloadRecord, error)

	// ListActiveDownloads returns all non-deleted records for a user
	// regardless of status. Used by bulk cleanup.
	ListActiveDownloads(ctx context.Context, userID string) ([]*models.DownloadRecord, error)

	// HardDeleteDownloads permanently removes the given records.
	// Returns the number of rows deleted.
	HardDeleteDownloads(ctx context.Context, ids []string) (int64, error)

	// ListStaleActive returns pending or downloading non-deleted records
	// not updated since the cutoff. Used by the reconciliation sweep to
	// re-enqueue records whose job was lost or whose worker died
	// mid-stream; an active transfer is never stale because progress
	// writes keep touching the row.
	ListStaleActive(ctx context.Context, cutoff time.Time) ([]*models.DownloadRecord, error)

	// ListExpiredDownloads returns completed, non-deleted records whose
	// retention window passed before now. Used by the expiry sweep.
	ListExpiredDownloads(ctx context.Context, now time.Time) ([]*models.DownloadRecord, error)
}

// QuotaStore manages per-user storage quotas. Creation and deletion are
// driven by subscription events outside this service.
type QuotaStore interface {
	// GetQuota returns the quota row for a user.
	// Returns models.ErrQuotaNotFound if the user has no quota.
	GetQuota(ctx context.Context, userID string) (*models.StorageQuota, error)

	// UpsertQuota creates or replaces the quota row for a user.
	UpsertQuota(ctx context.Context, quota *models.StorageQuota) error

	// UpdateQuotaUsed rewrites the cached used-bytes counter.
	UpdateQuotaUsed(ctx context.Context, userID string, usedBytes int64) error

	// DeleteQuota removes the quota row (entitlement revoked).
	DeleteQuota(ctx context.Context, userID string) error
}

// EngagementStore manages ratings, favourites, notifications and tickets.
type EngagementStore interface {
	// UpsertRating creates or updates a user's rating for a content item.
	UpsertRating(ctx context.Context, rating *models.Rating) error

	// ListRatings returns all ratings for a content item.
	ListRatings(ctx context.Context, contentID string) ([]*models.Rating, error)

	// AddFavorite bookmarks a content item. Idempotent.
	AddFavorite(ctx context.Context, userID, contentID string) error

	// RemoveFavorite removes a bookmark. Idempotent.
	RemoveFavorite(ctx context.Context, userID, contentID string) error

	// ListFavorites returns a user's bookmarks, newest first.
	ListFavorites(ctx context.Context, userID string) ([]*models.Favorite, error)

	// CreateNotification inserts an in-app notification.
	CreateNotification(ctx context.Context, n *models.Notification) (string, error)

	// ListNotifications returns a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error)

	// MarkNotificationRead stamps a notification as read.
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error

	// CreateTicket inserts a support ticket.
	CreateTicket(ctx context.Context, t *models.SupportTicket) (string, error)

	// GetTicket returns a ticket by ID scoped to a user.
	GetTicket(ctx context.Context, userID, id string) (*models.SupportTicket, error)

	// ListTickets returns a user's tickets, newest first.
	ListTickets(ctx context.Context, userID string) ([]*models.SupportTicket, error)

	// UpdateTicket persists changes to a ticket (answer, status).
	UpdateTicket(ctx context.Context, t *models.SupportTicket) error
}

// Ensure GORMStore satisfies the full interface.
var _ Store = (*GORMStore)(nil)
