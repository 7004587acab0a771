package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/filehub/internal/models"
	apperrors "github.com/charlesng35/filehub/pkg/errors"
)

// SessionLimiter resolves how many concurrent sessions a user may hold.
// A nil limit means unlimited.
type SessionLimiter interface {
	ResolveLimit(ctx context.Context, userID string, role models.UserRole) (*int, error)
}

// LimiterConfig carries the role-based defaults. A role mapped to zero, or
// absent from the map, is unlimited.
type LimiterConfig struct {
	RoleLimits map[string]int
}

// GormSessionLimiter resolves limits from per-user overrides first, then
// falls back to the role configuration.
type GormSessionLimiter struct {
	db  *gorm.DB
	cfg LimiterConfig
}

func NewGormSessionLimiter(db *gorm.DB, cfg LimiterConfig) *GormSessionLimiter {
	return &GormSessionLimiter{db: db, cfg: cfg}
}

func (l *GormSessionLimiter) ResolveLimit(ctx context.Context, userID string, role models.UserRole) (*int, error) {
	var override models.SessionLimit
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&override).Error
	if err == nil {
		if override.MaxSessions <= 0 {
			return nil, nil
		}
		limit := override.MaxSessions
		return &limit, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	limit, ok := l.cfg.RoleLimits[strings.ToLower(string(role))]
	if !ok || limit <= 0 {
		return nil, nil
	}
	return &limit, nil
}

// SetUserLimit installs or replaces a per-user override.
func (l *GormSessionLimiter) SetUserLimit(ctx context.Context, userID string, maxSessions int, reason, setBy string) error {
	record := models.SessionLimit{
		UserID:      userID,
		MaxSessions: maxSessions,
		Reason:      reason,
		SetBy:       setBy,
	}
	err := l.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"max_sessions", "reason", "set_by", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

// RemoveUserLimit drops a per-user override; removing a missing override
// is not an error.
func (l *GormSessionLimiter) RemoveUserLimit(ctx context.Context, userID string) error {
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.SessionLimit{}).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}
