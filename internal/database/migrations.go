package database

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/filehub/internal/models"
	"github.com/charlesng35/filehub/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.SessionLimit{},
		&models.PoolSnapshot{},
		&models.CacheEntry{},
	)
}

// SeedData provisions the initial administrator account when no users exist.
// The bootstrap password must be rotated on first login; it is hashed here so
// it never persists in plaintext.
func SeedData(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.HashPassword("filehub-admin")
	if err != nil {
		return err
	}

	admin := models.User{
		Username:     "admin",
		Email:        "admin@localhost",
		PasswordHash: hash,
		DisplayName:  "Administrator",
		Status:       models.UserStatusActive,
		Role:         models.UserRoleAdmin,
		CreatedAt:    time.Now(),
	}

	return db.Create(&admin).Error
}
