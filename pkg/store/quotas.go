package store

import (
	"context"

	"gorm.io/gorm/clause"

	"github.com/reelcache/reelcache/pkg/models"
)

func (s *GORMStore) GetQuota(ctx context.Context, userID string) (*models.StorageQuota, error) {
	return getByField[models.StorageQuota](s.db, ctx, "user_id", userID, models.ErrQuotaNotFound)
}

func (s *GORMStore) UpsertQuota(ctx context.Context, quota *models.StorageQuota) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(quota).Error
}

func (s *GORMStore) UpdateQuotaUsed(ctx context.Context, userID string, usedBytes int64) error {
	result := s.db.WithContext(ctx).
		Model(&models.StorageQuota{}).
		Where("user_id = ?", userID).
		Update("used_bytes", usedBytes)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrQuotaNotFound
	}
	return nil
}

func (s *GORMStore) DeleteQuota(ctx context.Context, userID string) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.StorageQuota{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrQuotaNotFound
	}
	return nil
}
