package store

import (
	"context"

	"github.com/reelcache/reelcache/pkg/models"
)

func (s *GORMStore) GetContent(ctx context.Context, id string) (*models.Content, error) {
	return getByField[models.Content](s.db, ctx, "id", id, models.ErrContentNotFound)
}

func (s *GORMStore) ListContents(ctx context.Context, page, take int) ([]*models.Content, int64, error) {
	page, take = clampPage(page, take)

	q := s.db.WithContext(ctx).
		Model(&models.Content{}).
		Where("published = ?", true)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var contents []*models.Content
	err := q.Order("created_at DESC").
		Offset((page - 1) * take).
		Limit(take).
		Find(&contents).Error
	if err != nil {
		return nil, 0, err
	}

	return contents, total, nil
}

func (s *GORMStore) CreateContent(ctx context.Context, content *models.Content) (string, error) {
	if err := content.Validate(); err != nil {
		return "", err
	}
	return createWithID(s.db, ctx, content,
		func(c *models.Content, id string) { c.ID = id },
		content.ID, models.ErrDuplicateContent)
}

func (s *GORMStore) UpdateContent(ctx context.Context, content *models.Content) error {
	var existing models.Content
	if err := s.db.WithContext(ctx).Where("id = ?", content.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, models.ErrContentNotFound)
	}
	return s.db.WithContext(ctx).Save(content).Error
}

func (s *GORMStore) DeleteContent(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Content{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrContentNotFound
	}
	return nil
}
