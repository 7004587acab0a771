package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PresenceStatus tracks the presence reported for a session.
type PresenceStatus string

const (
	PresenceActive  PresenceStatus = "active"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

// Session is one login: a durable record bound to an admitted seat.
// Token material is stored as SHA-256 digests only.
type Session struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`

	TokenHash        string `gorm:"not null" json:"-"`
	RefreshTokenHash string `gorm:"index" json:"-"`

	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	DeviceInfo datatypes.JSON `json:"device_info,omitempty"`

	// Seat linkage: set once admission succeeds. OverflowKickedID records
	// the session evicted to make room for this one (diagnostic only).
	SeatAllocatedAt  *time.Time `json:"seat_allocated_at"`
	OverflowKickedID *string    `gorm:"type:uuid" json:"overflow_kicked_id,omitempty"`

	PresenceStatus PresenceStatus `gorm:"default:active" json:"presence_status"`
	WSConnected    bool           `gorm:"default:false" json:"ws_connected"`
	WSConnectedAt  *time.Time     `json:"ws_connected_at"`
	LastActivity   time.Time      `gorm:"index" json:"last_activity"`

	// Termination triple: all null while the session is active. Set exactly
	// once; the store guards the transition with terminated_at IS NULL.
	TerminatedBy     *string    `gorm:"type:uuid" json:"terminated_by"`
	TerminatedReason *string    `json:"terminated_reason"`
	TerminatedAt     *time.Time `gorm:"index" json:"terminated_at"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsActive reports whether the session is neither terminated nor expired.
func (s *Session) IsActive(now time.Time) bool {
	return s.TerminatedAt == nil && s.ExpiresAt.After(now)
}

// IsTerminated reports whether the one-way termination transition happened.
func (s *Session) IsTerminated() bool {
	return s.TerminatedAt != nil
}

// IdleSince reports how long the session has been without activity.
func (s *Session) IdleSince(now time.Time) time.Duration {
	idle := now.Sub(s.LastActivity)
	if idle < 0 {
		return 0
	}
	return idle
}
