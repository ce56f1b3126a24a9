package models

import "time"

// DefaultAlertThresholdPercent is the fixed policy value above which the
// client shows a storage warning banner. It never blocks admissions.
const DefaultAlertThresholdPercent = 80

// StorageQuota is the per-user offline-storage ceiling with a cached usage
// counter.
//
// UsedBytes is a cache of the sum over completed, non-deleted download
// records for the user. It is always rewritten from a full recompute, never
// incremented, so concurrent completions and deletions stay commutative.
//
// The row is created when a subscription grants the download entitlement and
// deleted when the entitlement is revoked. Both are external triggers: the
// download pipeline only reads and refreshes the record.
type StorageQuota struct {
	UserID string `gorm:"primaryKey;size:36" json:"user_id"`
	Tier   string `gorm:"size:50;not null" json:"tier"`

	TotalBytes int64 `gorm:"not null" json:"total_bytes"`
	UsedBytes  int64 `gorm:"not null;default:0" json:"used_bytes"`

	AutoDeleteEnabled     bool `gorm:"not null;default:false" json:"auto_delete_enabled"`
	AutoDeleteDays        int  `gorm:"not null;default:0" json:"auto_delete_days"`
	AlertThresholdPercent int  `gorm:"not null;default:80" json:"alert_threshold_percent"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for StorageQuota.
func (StorageQuota) TableName() string {
	return "storage_quotas"
}

// AvailableBytes returns the remaining capacity, clamped at zero.
func (q *StorageQuota) AvailableBytes() int64 {
	avail := q.TotalBytes - q.UsedBytes
	if avail < 0 {
		return 0
	}
	return avail
}

// UsedPercent returns the used fraction as a percentage of the ceiling.
func (q *StorageQuota) UsedPercent() float64 {
	if q.TotalBytes <= 0 {
		return 0
	}
	return float64(q.UsedBytes) / float64(q.TotalBytes) * 100
}
