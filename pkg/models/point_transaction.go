package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PointTransactionType string

const (
	PointTransactionEarn   PointTransactionType = "earn"
	PointTransactionRedeem PointTransactionType = "redeem"
)

// PointTransaction is the activity history. Earns are recorded with positive
// points (base + bonus breakdown), redemption debits with negative points.
type PointTransaction struct {
	ID           string               `gorm:"type:uuid;primary_key" json:"id"`
	UserID       string               `gorm:"type:uuid;not null;index" json:"user_id"`
	SellerID     string               `gorm:"type:uuid;not null;index" json:"seller_id"`
	Type         PointTransactionType `gorm:"type:varchar(20);not null" json:"type"`
	Points       int                  `gorm:"not null" json:"points"`
	BasePoints   int                  `json:"base_points"`
	BonusPoints  int                  `json:"bonus_points"`
	FirstScan    bool                 `gorm:"default:false" json:"first_scan"`
	RedemptionID *string              `gorm:"type:uuid" json:"redemption_id,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

func (t *PointTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
