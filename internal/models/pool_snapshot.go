package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PoolSnapshot records the seat pool state observed by a reconciliation pass.
// Snapshots are the audit trail for drift between the allocator and the
// session store's ground truth.
type PoolSnapshot struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	TotalSeats     int    `json:"total_seats"`
	CheckedOut     int    `json:"checked_out"`
	Available      int    `json:"available"`
	AdminReserved  int    `json:"admin_reserved"`
	ActiveSessions int    `json:"active_sessions"`

	DriftDetected bool           `gorm:"index" json:"drift_detected"`
	DriftDetail   datatypes.JSON `json:"drift_detail,omitempty"`
	Source        string         `json:"source"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *PoolSnapshot) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
