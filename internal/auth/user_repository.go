package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/filehub/internal/models"
	apperrors "github.com/charlesng35/filehub/pkg/errors"
)

// UserRepository is the account lookup and lockout bookkeeping surface the
// session manager depends on.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)

	// IncrementFailedAttempts bumps the failure counter and returns the new
	// value.
	IncrementFailedAttempts(ctx context.Context, id string) (int, error)

	// LockAccount marks the account locked until the given time.
	LockAccount(ctx context.Context, id string, until time.Time) error

	// ResetLoginState clears the failure counter after a successful login.
	ResetLoginState(ctx context.Context, id string) error

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// GormUserRepository is the database-backed UserRepository.
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &user, nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound.WithMessage("User not found")
	}
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}
	return &user, nil
}

func (r *GormUserRepository) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1")).Error
	if err != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(err)
	}

	var count int
	err = r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Pluck("failed_login_attempts", &count).Error
	if err != nil {
		return 0, apperrors.ErrInternalServer.WithInternal(err)
	}
	return count, nil
}

func (r *GormUserRepository) LockAccount(ctx context.Context, id string, until time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.UserStatusLocked,
			"locked_until": until,
		}).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

func (r *GormUserRepository) ResetLoginState(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("failed_login_attempts", 0).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}

func (r *GormUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	return nil
}
