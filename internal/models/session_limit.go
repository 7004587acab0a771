package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionLimit is a per-user override of the role-based concurrent session
// limit. When present it wins over configuration.
type SessionLimit struct {
	ID          string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string    `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	MaxSessions int       `gorm:"not null" json:"max_sessions"`
	Reason      string    `json:"reason,omitempty"`
	SetBy       string    `gorm:"type:uuid" json:"set_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (l *SessionLimit) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
