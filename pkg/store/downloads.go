package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/reelcache/reelcache/pkg/models"
)

func (s *GORMStore) GetDownload(ctx context.Context, id string) (*models.DownloadRecord, error) {
	return getByField[models.DownloadRecord](s.db, ctx, "id", id, models.ErrDownloadNotFound)
}

func (s *GORMStore) GetDownloadForUser(ctx context.Context, userID, id string) (*models.DownloadRecord, error) {
	var record models.DownloadRecord
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&record).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrDownloadNotFound)
	}
	return &record, nil
}

func (s *GORMStore) GetDownloadByUserContent(ctx context.Context, userID, contentID string) (*models.DownloadRecord, error) {
	var record models.DownloadRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND content_id = ?", userID, contentID).
		First(&record).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrDownloadNotFound)
	}
	return &record, nil
}

func (s *GORMStore) ListDownloads(ctx context.Context, userID string, status models.DownloadStatus, page, take int) ([]*models.DownloadRecord, int64, error) {
	page, take = clampPage(page, take)

	q := s.db.WithContext(ctx).
		Model(&models.DownloadRecord{}).
		Where("user_id = ? AND deleted_at IS NULL", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []*models.DownloadRecord
	err := q.Order("created_at DESC").
		Offset((page - 1) * take).
		Limit(take).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// CreateDownload inserts a new record. Losing a race on the (user_id,
// content_id) unique index returns a ConflictError carrying the row that won,
// so concurrent requests for the same pair resolve the same way as a
// sequential duplicate.
func (s *GORMStore) CreateDownload(ctx context.Context, record *models.DownloadRecord) (string, error) {
	id := record.ID
	if id == "" {
		id = uuid.New().String()
		record.ID = id
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueConstraintError(err) {
			existing, getErr := s.GetDownloadByUserContent(ctx, record.UserID, record.ContentID)
			if getErr != nil {
				return "", getErr
			}
			return "", &models.ConflictError{Existing: existing}
		}
		return "", err
	}
	return id, nil
}

func (s *GORMStore) SaveDownload(ctx context.Context, record *models.DownloadRecord) error {
	return s.db.WithContext(ctx).Save(record).Error
}

func (s *GORMStore) TransitionDownload(ctx context.Context, id string, from []models.DownloadStatus, updates map[string]any) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.DownloadRecord{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *GORMStore) UpdateDownloadProgress(ctx context.Context, id string, bytesTransferred int64, progress float64) (bool, error) {
	return s.TransitionDownload(ctx, id,
		[]models.DownloadStatus{models.StatusDownloading},
		map[string]any{
			"bytes_transferred": bytesTransferred,
			"progress":          progress,
		})
}

func (s *GORMStore) SumCompletedBytes(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&models.DownloadRecord{}).
		Where("user_id = ? AND status = ? AND deleted_at IS NULL", userID, models.StatusCompleted).
		Select("COALESCE(SUM(byte_size), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *GORMStore) ListCompletedDownloads(ctx context.Context, userID string) ([]*models.DownloadRecord, error) {
	var records []*models.DownloadRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND deleted_at IS NULL", userID, models.StatusCompleted).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GORMStore) ListActiveDownloads(ctx context.Context, userID string) ([]*models.DownloadRecord, error) {
	var records []*models.DownloadRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GORMStore) HardDeleteDownloads(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&models.DownloadRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *GORMStore) ListStaleActive(ctx context.Context, cutoff time.Time) ([]*models.DownloadRecord, error) {
	var records []*models.DownloadRecord
	err := s.db.WithContext(ctx).
		Where("status IN ? AND deleted_at IS NULL AND updated_at < ?",
			[]models.DownloadStatus{models.StatusPending, models.StatusDownloading}, cutoff).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *GORMStore) ListExpiredDownloads(ctx context.Context, now time.Time) ([]*models.DownloadRecord, error) {
	var records []*models.DownloadRecord
	err := s.db.WithContext(ctx).
		Where("status = ? AND deleted_at IS NULL AND expires_at < ?",
			models.StatusCompleted, now).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
