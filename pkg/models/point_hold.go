package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HoldStatus string

const (
	HoldReserved HoldStatus = "reserved"
	HoldReleased HoldStatus = "released"
)

// PointHold reserves points against a future redemption commit without
// decrementing the ledger. The sum of reserved holds for a (user, seller)
// pair never exceeds that pair's balance. A hold is released exactly once
// and never goes back to reserved.
type PointHold struct {
	ID           string     `gorm:"type:uuid;primary_key" json:"id"`
	UserID       string     `gorm:"type:uuid;not null;index:idx_hold_user_seller" json:"user_id"`
	SellerID     string     `gorm:"type:uuid;not null;index:idx_hold_user_seller" json:"seller_id"`
	RedemptionID string     `gorm:"type:uuid;not null;uniqueIndex" json:"redemption_id"`
	Points       int        `gorm:"not null" json:"points"`
	Status       HoldStatus `gorm:"type:varchar(20);not null;default:'reserved';index" json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
}

func (h *PointHold) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}
