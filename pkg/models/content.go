package models

import (
	"fmt"
	"time"
)

// Content is a catalog entry: one transcoded video asset stored remotely.
//
// SizeBytes is the canonical size of the full-quality asset; admission
// estimates download sizes from it via the quality multiplier table.
// RemoteKey is the object-storage key the transfer worker streams from.
type Content struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	Title       string `gorm:"not null;size:255" json:"title"`
	Description string `gorm:"size:4096" json:"description,omitempty"`
	CreatorID   string `gorm:"size:36;index" json:"creator_id"`

	RemoteKey       string `gorm:"not null;size:512" json:"-"`
	SizeBytes       int64  `gorm:"not null" json:"size_bytes"`
	DurationSeconds int    `json:"duration_seconds"`

	Published bool `gorm:"default:false;index" json:"published"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Content.
func (Content) TableName() string {
	return "contents"
}

// Validate checks if the content has valid configuration.
func (c *Content) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("title is required")
	}
	if c.RemoteKey == "" {
		return fmt.Errorf("remote key is required")
	}
	if c.SizeBytes <= 0 {
		return fmt.Errorf("size must be positive")
	}
	return nil
}
