package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/reelcache/reelcache/pkg/models"
)

func (s *GORMStore) UpsertRating(ctx context.Context, rating *models.Rating) error {
	if rating.ID == "" {
		rating.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stars", "comment", "updated_at"}),
		}).
		Create(rating).Error
}

func (s *GORMStore) ListRatings(ctx context.Context, contentID string) ([]*models.Rating, error) {
	var ratings []*models.Rating
	err := s.db.WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("created_at DESC").
		Find(&ratings).Error
	if err != nil {
		return nil, err
	}
	return ratings, nil
}

func (s *GORMStore) AddFavorite(ctx context.Context, userID, contentID string) error {
	fav := &models.Favorite{
		ID:        uuid.New().String(),
		UserID:    userID,
		ContentID: contentID,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(fav).Error
	if isUniqueConstraintError(err) {
		return nil
	}
	return err
}

func (s *GORMStore) RemoveFavorite(ctx context.Context, userID, contentID string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND content_id = ?", userID, contentID).
		Delete(&models.Favorite{}).Error
}

func (s *GORMStore) ListFavorites(ctx context.Context, userID string) ([]*models.Favorite, error) {
	var favs []*models.Favorite
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&favs).Error
	if err != nil {
		return nil, err
	}
	return favs, nil
}

func (s *GORMStore) CreateNotification(ctx context.Context, n *models.Notification) (string, error) {
	return createWithID(s.db, ctx, n,
		func(m *models.Notification, id string) { m.ID = id },
		n.ID, models.ErrNotificationNotFound)
}

func (s *GORMStore) ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error) {
	var ns []*models.Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&ns).Error
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func (s *GORMStore) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrNotificationNotFound
	}
	return nil
}

func (s *GORMStore) CreateTicket(ctx context.Context, t *models.SupportTicket) (string, error) {
	if t.Status == "" {
		t.Status = models.TicketOpen
	}
	return createWithID(s.db, ctx, t,
		func(m *models.SupportTicket, id string) { m.ID = id },
		t.ID, models.ErrTicketNotFound)
}

func (s *GORMStore) GetTicket(ctx context.Context, userID, id string) (*models.SupportTicket, error) {
	var t models.SupportTicket
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrTicketNotFound)
	}
	return &t, nil
}

func (s *GORMStore) ListTickets(ctx context.Context, userID string) ([]*models.SupportTicket, error) {
	var ts []*models.SupportTicket
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&ts).Error
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (s *GORMStore) UpdateTicket(ctx context.Context, t *models.SupportTicket) error {
	var existing models.SupportTicket
	if err := s.db.WithContext(ctx).Where("id = ?", t.ID).First(&existing).Error; err != nil {
		return convertNotFoundError(err, models.ErrTicketNotFound)
	}
	return s.db.WithContext(ctx).Save(t).Error
}
