package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrEmptyName indicates the supplied name normalizes to an empty key.
var ErrEmptyName = errors.New("users: name is required")

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages account records keyed by normalized name.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Upsert creates an account for the normalized name or refreshes the
// existing one. Career and level are overwritten on every call; user id and
// created_at survive from the first registration.
func (s *Service) Upsert(ctx context.Context, name, career, level string) (User, error) {
	nameKey := NormalizeName(name)
	if nameKey == "" {
		return User{}, ErrEmptyName
	}

	now := s.now().UTC()

	var account User
	err := s.db.WithContext(ctx).
		Where("name_key = ?", nameKey).
		Take(&account).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = User{
			NameKey:   nameKey,
			UserID:    uuid.NewString(),
			Name:      strings.TrimSpace(name),
			Career:    career,
			Level:     level,
			CreatedAt: now,
			LastLogin: now,
		}
		if err := s.db.WithContext(ctx).Create(&account).Error; err != nil {
			s.logger.Error("user insert failed", zap.String("name_key", nameKey), zap.Error(err))
			return User{}, err
		}
		s.logger.Info("user created", zap.String("name_key", nameKey), zap.String("user_id", account.UserID))
		return account, nil
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("name_key", nameKey), zap.Error(err))
		return User{}, err
	}

	updates := map[string]interface{}{
		"career":     career,
		"level":      level,
		"last_login": now,
	}
	if err := s.db.WithContext(ctx).
		Model(&User{}).
		Where("name_key = ?", nameKey).
		Updates(updates).
		Error; err != nil {
		s.logger.Error("user update failed", zap.String("name_key", nameKey), zap.Error(err))
		return User{}, err
	}

	account.Career = career
	account.Level = level
	account.LastLogin = now
	return account, nil
}

// Find returns the account stored under the normalized form of name.
func (s *Service) Find(ctx context.Context, name string) (User, error) {
	nameKey := NormalizeName(name)
	if nameKey == "" {
		return User{}, ErrEmptyName
	}
	var account User
	if err := s.db.WithContext(ctx).
		Where("name_key = ?", nameKey).
		Take(&account).
		Error; err != nil {
		return User{}, err
	}
	return account, nil
}
