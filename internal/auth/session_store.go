package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/filehub/internal/models"
	apperrors "github.com/charlesng35/filehub/pkg/errors"
)

// CreateSessionInput carries everything needed to persist a new session.
type CreateSessionInput struct {
	UserID           string
	TokenHash        string
	RefreshTokenHash string
	IPAddress        string
	UserAgent        string
	DeviceInfo       datatypes.JSON
	OverflowKickedID *string
}

// SessionStore is the persistence surface for session records. All reads
// of "active" sessions share one predicate: not terminated and not past
// the absolute expiry.
type SessionStore interface {
	Create(ctx context.Context, input CreateSessionInput) (*models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)

	CountActiveByUser(ctx context.Context, userID string) (int64, error)
	CountAllActive(ctx context.Context) (int64, error)
	FindActiveByUser(ctx context.Context, userID string) ([]models.Session, error)
	FindAllActive(ctx context.Context) ([]models.Session, error)
	FindOldestActiveByUser(ctx context.Context, userID string) (*models.Session, error)
	FindMostIdleActiveByUser(ctx context.Context, userID string) (*models.Session, error)

	// TerminateSession applies the one-way termination transition. It
	// reports false when the session was already terminated or unknown.
	TerminateSession(ctx context.Context, id string, by *string, reason string) (bool, error)

	TouchActivity(ctx context.Context, id string) error
	UpdateTokenHashes(ctx context.Context, id, tokenHash, refreshTokenHash string) error
	UpdateRefreshTokenHash(ctx context.Context, id, refreshTokenHash string) error
	MarkSeatAllocated(ctx context.Context, id string) error

	SetWSConnected(ctx context.Context, id string, connected bool) error
	SetPresenceStatus(ctx context.Context, id string, status models.PresenceStatus) error

	// FindExpiredOrIdle returns active sessions that have passed their
	// absolute expiry or have been idle longer than idleTimeout.
	FindExpiredOrIdle(ctx context.Context, idleTimeout time.Duration) ([]models.Session, error)

	// FindStaleWSConnections returns sessions whose websocket connected
	// before the cutoff and never disconnected cleanly.
	FindStaleWSConnections(ctx context.Context, cutoff time.Time) ([]models.Session, error)
}

// SessionStoreConfig tunes the database-backed store.
type SessionStoreConfig struct {
	// AbsoluteTimeout caps a session's life regardless of activity.
	AbsoluteTimeout time.Duration

	// Clock supplies the current time; defaults to time.Now.
	Clock func() time.Time
}

// GormSessionStore persists sessions through gorm.
type GormSessionStore struct {
	db  *gorm.DB
	cfg SessionStoreConfig
}

func NewGormSessionStore(db *gorm.DB, cfg SessionStoreConfig) *GormSessionStore {
	if cfg.AbsoluteTimeout <= 0 {
		cfg.AbsoluteTimeout = 12 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &GormSessionStore{db: db, cfg: cfg}
}

func (s *GormSessionStore) now() time.Time {
	return s.cfg.Clock()
}

func (s *GormSessionStore) activeScope(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("terminated_at IS NULL").
		Where("expires_at > ?", s.now())
}

func (s *GormSessionStore) Create(ctx context.Context, input CreateSessionInput) (*models.Session, error) {
	now := s.now()
	session := models.Session{
		UserID:           input.UserID,
		TokenHash:        input.TokenHash,
		RefreshTokenHash: input.RefreshTokenHash,
		IPAddress:        input.IPAddress,
		UserAgent:        input.UserAgent,
		DeviceInfo:       input.DeviceInfo,
		OverflowKickedID: input.OverflowKickedID,
		PresenceStatus:   models.PresenceActive,
		LastActivity:     now,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.cfg.AbsoluteTimeout),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &session, nil
}

func (s *GormSessionStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("Session not found")
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &session, nil
}

func (s *GormSessionStore) CountActiveByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.activeScope(ctx).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(err)
	}
	return count, nil
}

func (s *GormSessionStore) CountAllActive(ctx context.Context) (int64, error) {
	var count int64
	err := s.activeScope(ctx).Count(&count).Error
	if err != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(err)
	}
	return count, nil
}

func (s *GormSessionStore) FindActiveByUser(ctx context.Context, userID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.activeScope(ctx).Where("user_id = ?", userID).
		Order("created_at ASC").Find(&sessions).Error
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return sessions, nil
}

func (s *GormSessionStore) FindAllActive(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	err := s.activeScope(ctx).Order("created_at ASC").Find(&sessions).Error
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return sessions, nil
}

func (s *GormSessionStore) FindOldestActiveByUser(ctx context.Context, userID string) (*models.Session, error) {
	var session models.Session
	err := s.activeScope(ctx).Where("user_id = ?", userID).
		Order("created_at ASC").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &session, nil
}

func (s *GormSessionStore) FindMostIdleActiveByUser(ctx context.Context, userID string) (*models.Session, error) {
	var session models.Session
	err := s.activeScope(ctx).Where("user_id = ?", userID).
		Order("last_activity ASC").First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &session, nil
}

func (s *GormSessionStore) TerminateSession(ctx context.Context, id string, by *string, reason string) (bool, error) {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Where("terminated_at IS NULL").
		Updates(map[string]interface{}{
			"terminated_at":     now,
			"terminated_by":     by,
			"terminated_reason": reason,
			"presence_status":   models.PresenceOffline,
			"ws_connected":      false,
		})
	if result.Error != nil {
		return false, apperrors.ErrInternalServer.WithInternal(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *GormSessionStore) TouchActivity(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		UpdateColumn("last_activity", s.now()).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

func (s *GormSessionStore) UpdateTokenHashes(ctx context.Context, id, tokenHash, refreshTokenHash string) error {
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"token_hash":         tokenHash,
			"refresh_token_hash": refreshTokenHash,
		}).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

func (s *GormSessionStore) UpdateRefreshTokenHash(ctx context.Context, id, refreshTokenHash string) error {
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		UpdateColumn("refresh_token_hash", refreshTokenHash).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

func (s *GormSessionStore) MarkSeatAllocated(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		UpdateColumn("seat_allocated_at", s.now()).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

func (s *GormSessionStore) SetWSConnected(ctx context.Context, id string, connected bool) error {
	updates := map[string]interface{}{"ws_connected": connected}
	if connected {
		updates["ws_connected_at"] = s.now()
	}
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

func (s *GormSessionStore) SetPresenceStatus(ctx context.Context, id string, status models.PresenceStatus) error {
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", id).
		UpdateColumn("presence_status", status).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

func (s *GormSessionStore) FindExpiredOrIdle(ctx context.Context, idleTimeout time.Duration) ([]models.Session, error) {
	now := s.now()
	var sessions []models.Session
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("terminated_at IS NULL").
		Where("expires_at <= ? OR last_activity <= ?", now, now.Add(-idleTimeout)).
		Find(&sessions).Error
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return sessions, nil
}

func (s *GormSessionStore) FindStaleWSConnections(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("ws_connected = ?", true).
		Where("ws_connected_at IS NOT NULL AND ws_connected_at <= ?", cutoff).
		Find(&sessions).Error
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return sessions, nil
}
