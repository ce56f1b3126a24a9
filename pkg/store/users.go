package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/reelcache/reelcache/pkg/models"
)

// EnvAdminInitialPassword overrides the generated admin password on first run.
const EnvAdminInitialPassword = "REELCACHE_ADMIN_PASSWORD"

func (s *GORMStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound)
}

func (s *GORMStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "email", email, models.ErrUserNotFound)
}

func (s *GORMStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", err
	}
	user.CreatedAt = time.Now()
	return createWithID(s.db, ctx, user,
		func(u *models.User, id string) { u.ID = id },
		user.ID, models.ErrDuplicateUser)
}

func (s *GORMStore) UpdateLastLogin(ctx context.Context, id string, timestamp time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login", timestamp)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// EnsureAdminUser creates the admin account on first run and returns its
// generated password. Returns an empty password when the account already
// exists or the credential came from configuration. The
// REELCACHE_ADMIN_PASSWORD environment variable wins over the configured
// passwordHash, which wins over password generation.
func (s *GORMStore) EnsureAdminUser(ctx context.Context, email, passwordHash string) (string, error) {
	_, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return "", nil // Admin already exists
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return "", err
	}

	var hash, password string
	generated := false
	switch {
	case os.Getenv(EnvAdminInitialPassword) != "":
		password = os.Getenv(EnvAdminInitialPassword)
	case passwordHash != "":
		hash = passwordHash
	default:
		generated = true
		password, err = generatePassword()
		if err != nil {
			return "", fmt.Errorf("generate admin password: %w", err)
		}
	}

	if hash == "" {
		hash, err = models.HashPassword(password)
		if err != nil {
			return "", fmt.Errorf("hash admin password: %w", err)
		}
	}

	admin := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Administrator",
		Role:         string(models.RoleAdmin),
		Enabled:      true,
	}
	if _, err := s.CreateUser(ctx, admin); err != nil {
		return "", fmt.Errorf("create admin user: %w", err)
	}

	if !generated {
		return "", nil
	}
	return password, nil
}

// generatePassword returns a random URL-safe password with 144 bits of
// entropy.
func generatePassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *GORMStore) ValidateCredentials(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.Enabled {
		return nil, models.ErrUserDisabled
	}

	if !user.CheckPassword(password) {
		return nil, models.ErrInvalidCredentials
	}

	return user, nil
}
