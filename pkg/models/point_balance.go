package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PointBalance is the ledger row for one (user, seller) pair. Points never
// go negative and the row is never deleted. Every mutation is either an
// atomic SQL increment (earns) or happens inside a transaction holding the
// row lock (redemption commits).
type PointBalance struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_balance_user_seller" json:"user_id"`
	SellerID  string    `gorm:"type:uuid;not null;uniqueIndex:idx_balance_user_seller" json:"seller_id"`
	Points    int       `gorm:"not null;default:0" json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *PointBalance) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}
