// Package quota implements storage accounting for offline downloads.
//
// Usage is always derived from the download records table (completed,
// non-deleted rows), never from the cached counter alone. The cached
// used-bytes value on the quota row is a full rewrite of that recompute,
// which keeps concurrent completions and deletions commutative without
// explicit locking: the last writer's recompute is always correct.
package quota

import (
	"context"
	"errors"
	"fmt"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/pkg/models"
)

// Store is the persistence surface the accounting service needs.
// *store.GORMStore satisfies it.
type Store interface {
	GetQuota(ctx context.Context, userID string) (*models.StorageQuota, error)
	UpsertQuota(ctx context.Context, quota *models.StorageQuota) error
	UpdateQuotaUsed(ctx context.Context, userID string, usedBytes int64) error
	SumCompletedBytes(ctx context.Context, userID string) (int64, error)
}

// Config maps subscription tier names to storage allowances and carries the
// default alert threshold applied when an entitlement is granted.
type Config struct {
	Tiers                 map[string]bytesize.ByteSize
	AlertThresholdPercent int
}

// Reasons for a failed availability check.
const (
	ReasonNoQuota      = models.ReasonNoQuota
	ReasonInsufficient = models.ReasonQuotaExceeded
)

// Availability is the result of a capacity check.
type Availability struct {
	OK             bool   `json:"ok"`
	Reason         string `json:"reason,omitempty"`
	Required       int64  `json:"required_bytes"`
	Available      int64  `json:"available_bytes"`
	RequiredHuman  string `json:"required"`
	AvailableHuman string `json:"available"`
}

// Alert reports how close a user is to their ceiling.
type Alert struct {
	UsedPercent      float64 `json:"used_percent"`
	ThresholdPercent int     `json:"threshold_percent"`
	Alert            bool    `json:"alert"`
}

// Snapshot is the full quota view returned to clients.
type Snapshot struct {
	Tier           string  `json:"tier"`
	TotalBytes     int64   `json:"total_bytes"`
	UsedBytes      int64   `json:"used_bytes"`
	RemainingBytes int64   `json:"remaining_bytes"`
	TotalHuman     string  `json:"total"`
	UsedHuman      string  `json:"used"`
	RemainingHuman string  `json:"remaining"`
	UsedPercent    float64 `json:"used_percent"`
	Alert          Alert   `json:"alert_status"`
}

// Service computes storage usage and availability for users.
type Service struct {
	store  Store
	config Config
}

// New creates a new accounting service.
func New(store Store, config Config) *Service {
	return &Service{store: store, config: config}
}

// Grant provisions (or re-tiers) the user's storage entitlement from the
// configured tier map. The cached usage counter is recomputed afterwards so
// a re-tier never resets accounting. Unknown tier names return
// models.ErrUnknownTier.
func (s *Service) Grant(ctx context.Context, userID, tier string) (*models.StorageQuota, error) {
	total, ok := s.config.Tiers[tier]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownTier, tier)
	}

	threshold := s.config.AlertThresholdPercent
	if threshold <= 0 {
		threshold = models.DefaultAlertThresholdPercent
	}

	q := &models.StorageQuota{
		UserID:                userID,
		Tier:                  tier,
		TotalBytes:            total.Int64(),
		AlertThresholdPercent: threshold,
	}
	if err := s.store.UpsertQuota(ctx, q); err != nil {
		return nil, fmt.Errorf("upsert quota: %w", err)
	}

	used, err := s.Refresh(ctx, userID)
	if err != nil {
		return nil, err
	}
	q.UsedBytes = used

	logger.Info("Storage quota granted",
		"userID", userID,
		"tier", tier,
		"total", bytesize.Format(q.TotalBytes))
	return q, nil
}

// ComputeUsed returns the user's consumed bytes, summed fresh from
// completed, non-deleted download records.
func (s *Service) ComputeUsed(ctx context.Context, userID string) (int64, error) {
	used, err := s.store.SumCompletedBytes(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("sum completed bytes: %w", err)
	}
	return used, nil
}

// Refresh recomputes the user's usage and rewrites the cached counter on the
// quota row. A missing quota row is not an error: the entitlement may have
// been revoked while downloads were still finishing.
func (s *Service) Refresh(ctx context.Context, userID string) (int64, error) {
	used, err := s.ComputeUsed(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.store.UpdateQuotaUsed(ctx, userID, used); err != nil {
		if errors.Is(err, models.ErrQuotaNotFound) {
			logger.Debug("Skipping usage refresh, no quota row", "userID", userID)
			return used, nil
		}
		return 0, fmt.Errorf("update quota used: %w", err)
	}

	return used, nil
}

// CheckAvailable reports whether requiredBytes fit in the user's remaining
// quota. It fails closed when the user has no quota row: no entitlement
// means zero capacity regardless of the requested size.
func (s *Service) CheckAvailable(ctx context.Context, userID string, requiredBytes int64) (*Availability, error) {
	q, err := s.store.GetQuota(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrQuotaNotFound) {
			return &Availability{
				OK:             false,
				Reason:         ReasonNoQuota,
				Required:       requiredBytes,
				RequiredHuman:  bytesize.Format(requiredBytes),
				AvailableHuman: bytesize.Format(0),
			}, nil
		}
		return nil, fmt.Errorf("get quota: %w", err)
	}

	used, err := s.ComputeUsed(ctx, userID)
	if err != nil {
		return nil, err
	}

	available := q.TotalBytes - used
	if available < 0 {
		available = 0
	}

	result := &Availability{
		OK:             requiredBytes <= available,
		Required:       requiredBytes,
		Available:      available,
		RequiredHuman:  bytesize.Format(requiredBytes),
		AvailableHuman: bytesize.Format(available),
	}
	if !result.OK {
		result.Reason = ReasonInsufficient
	}

	return result, nil
}

// AlertStatus reports usage against the quota's alert threshold. It drives a
// client warning banner and never blocks any operation.
func (s *Service) AlertStatus(ctx context.Context, userID string) (*Alert, error) {
	q, err := s.store.GetQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	used, err := s.ComputeUsed(ctx, userID)
	if err != nil {
		return nil, err
	}

	percent := 0.0
	if q.TotalBytes > 0 {
		percent = float64(used) / float64(q.TotalBytes) * 100
	}

	threshold := q.AlertThresholdPercent
	if threshold <= 0 {
		threshold = models.DefaultAlertThresholdPercent
	}

	return &Alert{
		UsedPercent:      percent,
		ThresholdPercent: threshold,
		Alert:            percent >= float64(threshold),
	}, nil
}

// Snapshot returns the user's quota state for the API.
// Returns models.ErrQuotaNotFound if the user has no quota row.
func (s *Service) Snapshot(ctx context.Context, userID string) (*Snapshot, error) {
	q, err := s.store.GetQuota(ctx, userID)
	if err != nil {
		return nil, err
	}

	used, err := s.ComputeUsed(ctx, userID)
	if err != nil {
		return nil, err
	}

	remaining := q.TotalBytes - used
	if remaining < 0 {
		remaining = 0
	}

	percent := 0.0
	if q.TotalBytes > 0 {
		percent = float64(used) / float64(q.TotalBytes) * 100
	}

	threshold := q.AlertThresholdPercent
	if threshold <= 0 {
		threshold = models.DefaultAlertThresholdPercent
	}

	return &Snapshot{
		Tier:           q.Tier,
		TotalBytes:     q.TotalBytes,
		UsedBytes:      used,
		RemainingBytes: remaining,
		TotalHuman:     bytesize.Format(q.TotalBytes),
		UsedHuman:      bytesize.Format(used),
		RemainingHuman: bytesize.Format(remaining),
		UsedPercent:    percent,
		Alert: Alert{
			UsedPercent:      percent,
			ThresholdPercent: threshold,
			Alert:            percent >= float64(threshold),
		},
	}, nil
}
